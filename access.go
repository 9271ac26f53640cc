package imarket

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Role names a privilege checked at mutating entry points.
type Role string

const (
	RoleAdmin          Role = "admin"
	RoleFeeManager     Role = "fee_manager"
	RolePauser         Role = "pauser"
	RoleWhitelister    Role = "whitelister"
	RoleDiscountMinter Role = "discount_minter"
)

// adminBundle is the fixed set of roles that moves atomically on admin
// transfer.
var adminBundle = []Role{RoleAdmin, RoleFeeManager, RolePauser, RoleWhitelister}

// Op names a role-gated operation.
type Op string

const (
	OpSetFeeRate     Op = "set_fee_rate"
	OpSetMintFees    Op = "set_mint_fees"
	OpSetPartnerRate Op = "set_partner_rate"
	OpSetRegistry    Op = "set_registry"
	OpWhitelist      Op = "whitelist"
	OpPause          Op = "pause"
	OpTransferAdmin  Op = "transfer_admin"
	OpWithdrawFees   Op = "withdraw_fees"
	OpWithdrawFor    Op = "withdraw_for"
	OpGrantDiscount  Op = "grant_discount"
)

// opRoles maps each operation to the role it requires.
var opRoles = map[Op]Role{
	OpSetFeeRate:     RoleFeeManager,
	OpSetMintFees:    RoleFeeManager,
	OpSetPartnerRate: RoleFeeManager,
	OpSetRegistry:    RoleAdmin,
	OpWhitelist:      RoleWhitelister,
	OpPause:          RolePauser,
	OpTransferAdmin:  RoleAdmin,
	OpWithdrawFees:   RoleFeeManager,
	OpWithdrawFor:    RoleAdmin,
	OpGrantDiscount:  RoleAdmin,
}

// HasRole reports whether an account holds a role.
func (m *Market) HasRole(role Role, account common.Address) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.roles[role][account]
}

// authorize checks the policy table for an operation.
func (m *Market) authorize(op Op, caller common.Address) error {
	role, ok := opRoles[op]
	if !ok {
		return ErrNotAuthorized
	}
	if !m.HasRole(role, caller) {
		return ErrNotAuthorized
	}
	return nil
}

// grant adds a role holder; caller holds m.mu or runs during construction.
func (m *Market) grant(role Role, account common.Address) {
	holders, ok := m.roles[role]
	if !ok {
		holders = make(map[common.Address]bool)
		m.roles[role] = holders
	}
	holders[account] = true
}

// SetFeeRate updates the platform fee rate, bounded by MaxFeeRateBps.
func (m *Market) SetFeeRate(call Call, rateBps uint64) (Event, error) {
	if err := m.authorize(OpSetFeeRate, call.Caller); err != nil {
		return Event{}, err
	}
	if rateBps > MaxFeeRateBps {
		return Event{}, ErrFeeRateTooHigh
	}

	m.mu.Lock()
	old := m.feeRate
	m.feeRate = rateBps
	m.mu.Unlock()

	m.log.Info("fee rate changed", zap.Uint64("old", old), zap.Uint64("new", rateBps))
	return m.emit(EventFeeRateChanged, FeeRateData{OldRate: old, NewRate: rateBps}), nil
}

// SetMintFees updates the flat fees charged by the minting flow.
func (m *Market) SetMintFees(call Call, mintFee, discountMintFee *big.Int) (Event, error) {
	if err := m.authorize(OpSetMintFees, call.Caller); err != nil {
		return Event{}, err
	}
	if mintFee == nil || discountMintFee == nil || mintFee.Sign() < 0 || discountMintFee.Sign() < 0 {
		return Event{}, ErrZeroAmount
	}

	m.mu.Lock()
	m.mintFee = new(big.Int).Set(mintFee)
	m.discountMintFee = new(big.Int).Set(discountMintFee)
	m.mu.Unlock()

	return m.emit(EventMintFeesChanged, MintFeesData{
		MintFee:         mintFee.String(),
		DiscountMintFee: discountMintFee.String(),
	}), nil
}

// SetPartnerRate configures a partner's revenue-share rate in basis points.
func (m *Market) SetPartnerRate(call Call, partner common.Address, rateBps uint64) (Event, error) {
	if err := m.authorize(OpSetPartnerRate, call.Caller); err != nil {
		return Event{}, err
	}
	if partner == (common.Address{}) {
		return Event{}, ErrBadAddress
	}
	if rateBps > MaxPartnerRateBps {
		return Event{}, ErrPartnerRateTooHigh
	}

	m.mu.Lock()
	m.partnerRates[partner] = rateBps
	m.mu.Unlock()

	m.log.Info("partner rate changed",
		zap.String("partner", partner.Hex()),
		zap.Uint64("rate", rateBps),
	)
	return m.emit(EventPartnerRateChanged, PartnerRateData{Partner: partner, Rate: rateBps}), nil
}

// SetRegistry repoints the platform asset registry.
func (m *Market) SetRegistry(call Call, registry AssetRegistry, addr common.Address) error {
	if err := m.authorize(OpSetRegistry, call.Caller); err != nil {
		return err
	}
	if registry == nil || addr == (common.Address{}) {
		return ErrBadAddress
	}

	m.mu.Lock()
	m.registry = registry
	m.registryAddr = addr
	m.mu.Unlock()

	m.log.Info("registry changed", zap.String("registry", addr.Hex()))
	return nil
}

// AddAssetContract whitelists an external asset contract.
func (m *Market) AddAssetContract(call Call, addr common.Address, registry AssetRegistry) (Event, error) {
	if err := m.authorize(OpWhitelist, call.Caller); err != nil {
		return Event{}, err
	}
	if addr == (common.Address{}) || registry == nil {
		return Event{}, ErrBadAddress
	}

	m.mu.Lock()
	m.whitelist[addr] = registry
	m.mu.Unlock()

	return m.emit(EventAssetWhitelisted, WhitelistData{AssetContract: addr}), nil
}

// RemoveAssetContract delists an external asset contract. The platform's own
// registry cannot be removed.
func (m *Market) RemoveAssetContract(call Call, addr common.Address) (Event, error) {
	if err := m.authorize(OpWhitelist, call.Caller); err != nil {
		return Event{}, err
	}

	m.mu.Lock()
	if addr == m.registryAddr {
		m.mu.Unlock()
		return Event{}, ErrProtectedAssetContract
	}
	delete(m.whitelist, addr)
	m.mu.Unlock()

	return m.emit(EventAssetDelisted, WhitelistData{AssetContract: addr}), nil
}

// GrantDiscountMinter grants the discounted mint fee to an account.
func (m *Market) GrantDiscountMinter(call Call, account common.Address) error {
	if err := m.authorize(OpGrantDiscount, call.Caller); err != nil {
		return err
	}
	if account == (common.Address{}) {
		return ErrBadAddress
	}

	m.mu.Lock()
	m.grant(RoleDiscountMinter, account)
	m.mu.Unlock()
	return nil
}

// Pause halts fulfillment, deposit and withdrawal. Admin configuration and
// partner fee withdrawal remain available.
func (m *Market) Pause(call Call) (Event, error) {
	if err := m.authorize(OpPause, call.Caller); err != nil {
		return Event{}, err
	}

	m.mu.Lock()
	m.paused = true
	m.mu.Unlock()

	m.log.Warn("paused", zap.String("by", call.Caller.Hex()))
	return m.emit(EventPaused, nil), nil
}

// Unpause resumes halted operations.
func (m *Market) Unpause(call Call) (Event, error) {
	if err := m.authorize(OpPause, call.Caller); err != nil {
		return Event{}, err
	}

	m.mu.Lock()
	m.paused = false
	m.mu.Unlock()

	m.log.Info("unpaused", zap.String("by", call.Caller.Hex()))
	return m.emit(EventUnpaused, nil), nil
}

// TransferAdmin atomically moves the privileged role bundle from the current
// admin to a new one.
func (m *Market) TransferAdmin(call Call, newAdmin common.Address) (Event, error) {
	if err := m.authorize(OpTransferAdmin, call.Caller); err != nil {
		return Event{}, err
	}
	if newAdmin == (common.Address{}) {
		return Event{}, ErrBadAddress
	}

	m.mu.Lock()
	for _, role := range adminBundle {
		delete(m.roles[role], call.Caller)
		m.grant(role, newAdmin)
	}
	m.mu.Unlock()

	m.log.Info("admin changed",
		zap.String("old", call.Caller.Hex()),
		zap.String("new", newAdmin.Hex()),
	)
	return m.emit(EventAdminChanged, AdminData{OldAdmin: call.Caller, NewAdmin: newAdmin}), nil
}
