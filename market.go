// Package imarket implements the escrow-based settlement engine for tokenized
// intelligent assets: signature-backed matching of a seller's order against a
// buyer's offer, replay protection, dual-mode payment settlement and
// proportional fee distribution between the platform and per-asset partners.
package imarket

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/kaifufi/imarket-go/chain"
)

const (
	// MaxFeeRateBps bounds the platform fee at 10%
	MaxFeeRateBps uint64 = 1000

	// MaxPartnerRateBps bounds the partner revenue share at 100%
	MaxPartnerRateBps uint64 = 10000
)

// Options configures a new Market.
type Options struct {
	// Admin receives the full privileged role bundle.
	Admin common.Address

	// ChainID and Contract bind message digests to this deployment.
	ChainID  *big.Int
	Contract common.Address

	// FeeRateBps is the initial platform fee in basis points.
	FeeRateBps uint64

	// MintFee and DiscountMintFee are flat native-currency fees for the
	// minting flow.
	MintFee         *big.Int
	DiscountMintFee *big.Int

	// Registry is the platform's own asset registry; RegistryAddr is its
	// address for whitelist resolution.
	Registry     AssetRegistry
	RegistryAddr common.Address

	// Tokens moves ERC20-style currency. Required for token-denominated
	// settlement.
	Tokens TokenBackend

	// Sink receives emitted events. Optional.
	Sink EventSink

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Market is the single shared settlement ledger. All state transitions are
// atomic and totally ordered; external calls into collaborators never happen
// while the state lock is held.
type Market struct {
	verifier *chain.Verifier
	self     common.Address

	registry     AssetRegistry
	registryAddr common.Address
	tokens       TokenBackend
	sink         EventSink
	log          *zap.Logger

	// settleMu serializes fulfillment and fee withdrawal and rejects
	// re-entry instead of blocking on it.
	settleMu reentrantGuard

	mu sync.RWMutex

	roles  map[Role]map[common.Address]bool
	paused bool

	feeRate         uint64
	mintFee         *big.Int
	discountMintFee *big.Int
	partnerRates    map[common.Address]uint64

	balances     map[common.Address]*big.Int
	platformFees map[common.Address]*big.Int
	partnerFees  map[common.Address]map[common.Address]*big.Int

	usedOrders map[common.Hash]bool
	usedOffers map[common.Hash]bool

	whitelist map[common.Address]AssetRegistry

	// nativeHeld tracks the total native value the engine holds; the sum of
	// all native-denominated liabilities never exceeds it.
	nativeHeld *big.Int
}

// New creates the market ledger. It is created once and persists for the
// lifetime of the process.
func New(opts Options) (*Market, error) {
	if opts.Admin == (common.Address{}) {
		return nil, ErrBadAddress
	}
	if opts.Registry == nil || opts.ChainID == nil {
		return nil, ErrBadAddress
	}
	if opts.FeeRateBps > MaxFeeRateBps {
		return nil, ErrFeeRateTooHigh
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	mintFee := opts.MintFee
	if mintFee == nil {
		mintFee = big.NewInt(0)
	}
	discountMintFee := opts.DiscountMintFee
	if discountMintFee == nil {
		discountMintFee = big.NewInt(0)
	}

	m := &Market{
		verifier:        chain.NewVerifier(opts.ChainID, opts.Contract),
		self:            opts.Contract,
		registry:        opts.Registry,
		registryAddr:    opts.RegistryAddr,
		tokens:          opts.Tokens,
		sink:            opts.Sink,
		log:             log,
		roles:           make(map[Role]map[common.Address]bool),
		feeRate:         opts.FeeRateBps,
		mintFee:         new(big.Int).Set(mintFee),
		discountMintFee: new(big.Int).Set(discountMintFee),
		partnerRates:    make(map[common.Address]uint64),
		balances:        make(map[common.Address]*big.Int),
		platformFees:    make(map[common.Address]*big.Int),
		partnerFees:     make(map[common.Address]map[common.Address]*big.Int),
		usedOrders:      make(map[common.Hash]bool),
		usedOffers:      make(map[common.Hash]bool),
		whitelist:       make(map[common.Address]AssetRegistry),
		nativeHeld:      big.NewInt(0),
	}

	for _, role := range adminBundle {
		m.grant(role, opts.Admin)
	}

	return m, nil
}

// Deposit credits the caller's balance with the attached native value.
func (m *Market) Deposit(call Call) (Event, error) {
	value := call.AttachedValue()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.paused {
		return Event{}, ErrPaused
	}
	if value.Sign() <= 0 {
		return Event{}, ErrZeroAmount
	}

	m.addBalance(call.Caller, value)
	m.nativeHeld.Add(m.nativeHeld, value)

	m.log.Info("deposit",
		zap.String("account", call.Caller.Hex()),
		zap.String("amount", value.String()),
	)

	return m.emit(EventDeposit, BalanceData{
		Account: call.Caller,
		Amount:  value.String(),
	}), nil
}

// Withdraw debits the caller's deposited balance and releases the value.
func (m *Market) Withdraw(call Call, amount *big.Int) (Event, error) {
	return m.withdraw(call.Caller, call.Caller, amount)
}

// WithdrawFor lets the admin release a user's deposited balance on their
// behalf. The value is always released to the account owner.
func (m *Market) WithdrawFor(call Call, account common.Address, amount *big.Int) (Event, error) {
	if !m.HasRole(RoleAdmin, call.Caller) {
		return Event{}, ErrNotAuthorized
	}
	return m.withdraw(account, call.Caller, amount)
}

func (m *Market) withdraw(account, by common.Address, amount *big.Int) (Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.paused {
		return Event{}, ErrPaused
	}
	if amount == nil || amount.Sign() <= 0 {
		return Event{}, ErrZeroAmount
	}
	if m.balanceLocked(account).Cmp(amount) < 0 {
		return Event{}, ErrInsufficientBalance
	}

	m.subBalance(account, amount)
	m.nativeHeld.Sub(m.nativeHeld, amount)

	m.log.Info("withdrawal",
		zap.String("account", account.Hex()),
		zap.String("amount", amount.String()),
	)

	data := BalanceData{Account: account, Amount: amount.String()}
	if by != account {
		data.By = by
	}
	return m.emit(EventWithdrawal, data), nil
}

// BalanceOf returns an account's deposited native balance.
func (m *Market) BalanceOf(account common.Address) *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return new(big.Int).Set(m.balanceLocked(account))
}

// PlatformFeeBalance returns the accumulated platform fee pool for a currency.
func (m *Market) PlatformFeeBalance(currency common.Address) *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if b, ok := m.platformFees[currency]; ok {
		return new(big.Int).Set(b)
	}
	return big.NewInt(0)
}

// PartnerFeeBalance returns a partner's accumulated pool for a currency.
func (m *Market) PartnerFeeBalance(partner, currency common.Address) *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if pools, ok := m.partnerFees[partner]; ok {
		if b, ok := pools[currency]; ok {
			return new(big.Int).Set(b)
		}
	}
	return big.NewInt(0)
}

// FeeRate returns the platform fee rate in basis points.
func (m *Market) FeeRate() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.feeRate
}

// MintFees returns the flat mint fee and the discounted mint fee.
func (m *Market) MintFees() (*big.Int, *big.Int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return new(big.Int).Set(m.mintFee), new(big.Int).Set(m.discountMintFee)
}

// PartnerRate returns a partner's revenue-share rate in basis points.
func (m *Market) PartnerRate(partner common.Address) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.partnerRates[partner]
}

// IsWhitelisted reports whether an asset contract is accepted. The platform's
// own registry is implicitly always accepted.
func (m *Market) IsWhitelisted(assetContract common.Address) bool {
	if assetContract == (common.Address{}) || assetContract == m.registryAddr {
		return true
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.whitelist[assetContract]
	return ok
}

// Paused reports whether settlement and balance movement are halted.
func (m *Market) Paused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paused
}

// NativeHeld returns the total native value the engine currently holds.
func (m *Market) NativeHeld() *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return new(big.Int).Set(m.nativeHeld)
}

// OrderNonceUsed reports whether an order nonce was consumed.
func (m *Market) OrderNonceUsed(nonce common.Hash) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.usedOrders[nonce]
}

// OfferNonceUsed reports whether an offer nonce was consumed.
func (m *Market) OfferNonceUsed(nonce common.Hash) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.usedOffers[nonce]
}

// Verifier exposes the digest builder bound to this deployment.
func (m *Market) Verifier() *chain.Verifier { return m.verifier }

// balance helpers; callers hold m.mu

func (m *Market) balanceLocked(account common.Address) *big.Int {
	if b, ok := m.balances[account]; ok {
		return b
	}
	return big.NewInt(0)
}

func (m *Market) addBalance(account common.Address, amount *big.Int) {
	if b, ok := m.balances[account]; ok {
		b.Add(b, amount)
		return
	}
	m.balances[account] = new(big.Int).Set(amount)
}

func (m *Market) subBalance(account common.Address, amount *big.Int) {
	m.balances[account].Sub(m.balances[account], amount)
}

func (m *Market) addPlatformFee(currency common.Address, amount *big.Int) {
	if amount.Sign() == 0 {
		return
	}
	if b, ok := m.platformFees[currency]; ok {
		b.Add(b, amount)
		return
	}
	m.platformFees[currency] = new(big.Int).Set(amount)
}

func (m *Market) addPartnerFee(partner, currency common.Address, amount *big.Int) {
	if amount.Sign() == 0 {
		return
	}
	pools, ok := m.partnerFees[partner]
	if !ok {
		pools = make(map[common.Address]*big.Int)
		m.partnerFees[partner] = pools
	}
	if b, ok := pools[currency]; ok {
		b.Add(b, amount)
		return
	}
	pools[currency] = new(big.Int).Set(amount)
}

// reentrantGuard is a non-blocking mutual exclusion gate: a nested attempt to
// enter while held fails instead of deadlocking.
type reentrantGuard struct {
	mu sync.Mutex
}

func (g *reentrantGuard) enter() error {
	if !g.mu.TryLock() {
		return ErrReentrantCall
	}
	return nil
}

func (g *reentrantGuard) leave() {
	g.mu.Unlock()
}
