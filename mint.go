package imarket

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// MintAsset mints a new asset through the platform registry, debiting the
// flat mint fee from the caller's deposited native balance. Callers holding
// the discount-minter role pay the discounted fee. A zero creator attributes
// the asset to the new owner.
func (m *Market) MintAsset(ctx context.Context, call Call, to, creator common.Address, sealedKey []byte) (*big.Int, Event, error) {
	if to == (common.Address{}) {
		return nil, Event{}, ErrBadAddress
	}

	discounted := m.HasRole(RoleDiscountMinter, call.Caller)

	// The fee is reserved out of the caller's balance before the external
	// mint so a concurrent withdrawal cannot spend it twice; a failed mint
	// returns it.
	m.mu.Lock()
	if m.paused {
		m.mu.Unlock()
		return nil, Event{}, ErrPaused
	}
	fee := new(big.Int).Set(m.mintFee)
	if discounted {
		fee.Set(m.discountMintFee)
	}
	if m.balanceLocked(call.Caller).Cmp(fee) < 0 {
		m.mu.Unlock()
		return nil, Event{}, ErrInsufficientBalance
	}
	if fee.Sign() > 0 {
		m.subBalance(call.Caller, fee)
	}
	registry := m.registry
	m.mu.Unlock()

	tokenID, err := registry.MintWithRole(ctx, m.self, to, creator, sealedKey)
	if err != nil {
		if fee.Sign() > 0 {
			m.mu.Lock()
			m.addBalance(call.Caller, fee)
			m.mu.Unlock()
		}
		return nil, Event{}, fmt.Errorf("mint: %w", err)
	}

	if fee.Sign() > 0 {
		m.mu.Lock()
		m.addPlatformFee(NativeCurrency, fee)
		m.mu.Unlock()
	}

	m.log.Info("asset minted",
		zap.String("minter", call.Caller.Hex()),
		zap.String("owner", to.Hex()),
		zap.String("token_id", tokenID.String()),
		zap.String("fee", fee.String()),
	)

	return tokenID, m.emit(EventAssetMinted, MintData{
		Minter:  call.Caller,
		Owner:   to,
		Creator: creator,
		TokenID: tokenID.String(),
		Fee:     fee.String(),
	}), nil
}
