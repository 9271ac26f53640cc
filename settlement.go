package imarket

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/kaifufi/imarket-go/chain"
)

var bpsDenominator = big.NewInt(10000)

// SplitFees computes the platform/partner division of the trade fee. Integer
// floor division; rounding dust accrues to the platform by construction of
// the two-step split.
func SplitFees(price *big.Int, feeRateBps, partnerRateBps uint64) (total, platform, partner *big.Int) {
	total = new(big.Int).Mul(price, new(big.Int).SetUint64(feeRateBps))
	total.Div(total, bpsDenominator)

	partner = new(big.Int).Mul(total, new(big.Int).SetUint64(partnerRateBps))
	partner.Div(partner, bpsDenominator)

	platform = new(big.Int).Sub(total, partner)
	return total, platform, partner
}

// FulfillOrder settles a matched order/offer pair: it authenticates both
// messages, moves asset ownership through the registry collaborator, moves
// payment, credits fee pools and finally consumes both nonces. Any failure
// before the final commit leaves the ledger untouched, so a failed pair can
// be retried.
func (m *Market) FulfillOrder(ctx context.Context, call Call, order *chain.Order, offer *chain.Offer, proofs [][]byte) (Event, error) {
	if err := m.settleMu.enter(); err != nil {
		return Event{}, err
	}
	defer m.settleMu.leave()

	if m.Paused() {
		return Event{}, ErrPaused
	}

	value := call.AttachedValue()

	// Zero-price transfers must not trap attached funds.
	if offer.Price.Sign() == 0 && value.Sign() > 0 {
		return Event{}, ErrUnexpectedValue
	}

	seller, reg, regAddr, err := m.validateOrder(ctx, order)
	if err != nil {
		return Event{}, err
	}

	buyer, err := m.ValidateOffer(offer, order)
	if err != nil {
		return Event{}, err
	}

	// Payment feasibility is checked before the asset moves so a funding
	// failure cannot strand ownership.
	feeRate := m.FeeRate()
	partner, partnerRate := m.resolvePartner(ctx, reg, order.TokenID)

	priced := offer.Price.Sign() > 0
	fundedFromBalance := false
	if priced {
		if order.Currency == NativeCurrency {
			if value.Sign() > 0 {
				// Attached value takes precedence over balance funding.
				if value.Cmp(offer.Price) < 0 {
					return Event{}, ErrInsufficientBalance
				}
			} else {
				// Reserve the price out of the buyer's balance before any
				// external call. A withdrawal racing the asset transfer can
				// only see the remainder, never the reserved funds.
				m.mu.Lock()
				if m.balanceLocked(buyer).Cmp(offer.Price) < 0 {
					m.mu.Unlock()
					return Event{}, ErrInsufficientBalance
				}
				m.subBalance(buyer, offer.Price)
				m.mu.Unlock()
				fundedFromBalance = true
			}
		} else if value.Sign() > 0 {
			return Event{}, ErrUnexpectedValue
		}
	}

	// Asset transfer is the first external interaction. On failure the
	// settlement aborts, returning any reserved funds.
	if offer.NeedProof {
		err = reg.TransferWithProof(ctx, seller, buyer, order.TokenID, proofs)
	} else {
		err = reg.TransferFrom(ctx, seller, buyer, order.TokenID)
	}
	if err != nil {
		if fundedFromBalance {
			m.mu.Lock()
			m.addBalance(buyer, offer.Price)
			m.mu.Unlock()
		}
		return Event{}, fmt.Errorf("asset transfer: %w", err)
	}

	totalFee, platformFee, partnerFee := SplitFees(offer.Price, feeRate, partnerRate)
	sellerAmount := new(big.Int).Sub(offer.Price, totalFee)

	if priced && order.Currency != NativeCurrency {
		if err := m.pullTokenPayment(ctx, order.Currency, buyer, seller, sellerAmount, totalFee); err != nil {
			return Event{}, err
		}
	}

	// Ledger commit: balance movement, pool credits and nonce consumption
	// happen atomically, after every external call has succeeded. The
	// balance-funded debit already happened at reservation time. Nonce
	// consumption is the final mutation.
	m.mu.Lock()
	if priced && order.Currency == NativeCurrency {
		if value.Sign() > 0 {
			m.nativeHeld.Add(m.nativeHeld, value)
			excess := new(big.Int).Sub(value, offer.Price)
			if excess.Sign() > 0 {
				// Refund excess attached value to the caller's balance.
				m.addBalance(call.Caller, excess)
			}
		}
		m.addBalance(seller, sellerAmount)
	}
	if priced {
		m.addPlatformFee(order.Currency, platformFee)
		if partnerFee.Sign() > 0 {
			m.addPartnerFee(partner, order.Currency, partnerFee)
		}
	}
	m.usedOrders[order.Nonce] = true
	m.usedOffers[offer.Nonce] = true
	m.mu.Unlock()

	m.log.Info("settlement completed",
		zap.String("seller", seller.Hex()),
		zap.String("buyer", buyer.Hex()),
		zap.String("token_id", order.TokenID.String()),
		zap.String("price", offer.Price.String()),
		zap.String("currency", order.Currency.Hex()),
	)

	data := SettlementData{
		Seller:        seller,
		Buyer:         buyer,
		TokenID:       order.TokenID.String(),
		Price:         offer.Price.String(),
		Currency:      order.Currency,
		AssetContract: regAddr,
		PlatformFee:   platformFee.String(),
		PartnerFee:    partnerFee.String(),
	}
	if partnerFee.Sign() > 0 {
		data.Partner = partner
	}
	return m.emit(EventSettlementCompleted, data), nil
}

// resolvePartner looks up the asset's creator and their configured share
// rate. Creator lookup is best effort: any failure maps to "no partner" and
// is never propagated.
func (m *Market) resolvePartner(ctx context.Context, reg AssetRegistry, tokenID *big.Int) (common.Address, uint64) {
	creator, err := reg.CreatorOf(ctx, tokenID)
	if err != nil || creator == (common.Address{}) {
		return common.Address{}, 0
	}
	rate := m.PartnerRate(creator)
	if rate == 0 {
		return common.Address{}, 0
	}
	return creator, rate
}

// pullTokenPayment runs the ERC20 settlement path: the fee is pulled into
// escrow first, then the seller's share is pulled buyer-to-seller. If the
// second pull fails the escrowed fee is returned before aborting.
func (m *Market) pullTokenPayment(ctx context.Context, token, buyer, seller common.Address, sellerAmount, totalFee *big.Int) error {
	if m.tokens == nil {
		return ErrUnsupportedAssetContract
	}

	if totalFee.Sign() > 0 {
		if err := m.tokens.TransferFrom(ctx, token, buyer, m.self, totalFee); err != nil {
			return fmt.Errorf("fee transfer: %w", err)
		}
	}

	if err := m.tokens.TransferFrom(ctx, token, buyer, seller, sellerAmount); err != nil {
		if totalFee.Sign() > 0 {
			if rerr := m.tokens.Transfer(ctx, token, buyer, totalFee); rerr != nil {
				m.log.Error("fee refund failed after aborted settlement",
					zap.String("token", token.Hex()),
					zap.String("buyer", buyer.Hex()),
					zap.Error(rerr),
				)
			}
		}
		return fmt.Errorf("payment transfer: %w", err)
	}

	return nil
}

// WithdrawFees moves the platform's accumulated fee pool for one currency to
// the caller. The pool is zeroed before any external transfer.
func (m *Market) WithdrawFees(ctx context.Context, call Call, currency common.Address) (Event, error) {
	if err := m.authorize(OpWithdrawFees, call.Caller); err != nil {
		return Event{}, err
	}
	if err := m.settleMu.enter(); err != nil {
		return Event{}, err
	}
	defer m.settleMu.leave()

	m.mu.Lock()
	if m.paused {
		m.mu.Unlock()
		return Event{}, ErrPaused
	}
	amount, ok := m.platformFees[currency]
	if !ok || amount.Sign() == 0 {
		m.mu.Unlock()
		return Event{}, ErrNothingToWithdraw
	}
	delete(m.platformFees, currency)
	if currency == NativeCurrency {
		m.nativeHeld.Sub(m.nativeHeld, amount)
	}
	m.mu.Unlock()

	if currency != NativeCurrency {
		if err := m.tokens.Transfer(ctx, currency, call.Caller, amount); err != nil {
			m.mu.Lock()
			m.addPlatformFee(currency, amount)
			m.mu.Unlock()
			return Event{}, fmt.Errorf("fee withdrawal transfer: %w", err)
		}
	}

	return m.emit(EventFeesWithdrawn, FeeWithdrawalData{
		Recipient: call.Caller,
		Currency:  currency,
		Amount:    amount.String(),
	}), nil
}

// WithdrawPartnerFees moves the caller's own partner pool for one currency to
// the caller. Self-service: no role required, available while paused.
func (m *Market) WithdrawPartnerFees(ctx context.Context, call Call, currency common.Address) (Event, error) {
	if err := m.settleMu.enter(); err != nil {
		return Event{}, err
	}
	defer m.settleMu.leave()

	m.mu.Lock()
	pools := m.partnerFees[call.Caller]
	var amount *big.Int
	if pools != nil {
		amount = pools[currency]
	}
	if amount == nil || amount.Sign() == 0 {
		m.mu.Unlock()
		return Event{}, ErrNothingToWithdraw
	}
	delete(pools, currency)
	if currency == NativeCurrency {
		m.nativeHeld.Sub(m.nativeHeld, amount)
	}
	m.mu.Unlock()

	if currency != NativeCurrency {
		if err := m.tokens.Transfer(ctx, currency, call.Caller, amount); err != nil {
			m.mu.Lock()
			m.addPartnerFee(call.Caller, currency, amount)
			m.mu.Unlock()
			return Event{}, fmt.Errorf("partner withdrawal transfer: %w", err)
		}
	}

	return m.emit(EventPartnerWithdrawn, FeeWithdrawalData{
		Recipient: call.Caller,
		Currency:  currency,
		Amount:    amount.String(),
	}), nil
}
