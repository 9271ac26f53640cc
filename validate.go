package imarket

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kaifufi/imarket-go/chain"
)

// resolveAssetContract maps an order/offer asset-contract selector to a
// registry binding. A zero selector, or the platform registry's own address,
// resolves to the platform registry; anything else must be whitelisted.
func (m *Market) resolveAssetContract(addr common.Address) (AssetRegistry, common.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if addr == (common.Address{}) || addr == m.registryAddr {
		return m.registry, m.registryAddr, nil
	}
	if reg, ok := m.whitelist[addr]; ok {
		return reg, addr, nil
	}
	return nil, common.Address{}, ErrUnsupportedAssetContract
}

// ValidateOrder authenticates a seller's order. It is a pure read: no nonce
// is consumed here. The recovered signer must be the asset's current owner,
// which doubles as signer authentication.
func (m *Market) ValidateOrder(ctx context.Context, order *chain.Order) (common.Address, error) {
	seller, _, _, err := m.validateOrder(ctx, order)
	return seller, err
}

func (m *Market) validateOrder(ctx context.Context, order *chain.Order) (common.Address, AssetRegistry, common.Address, error) {
	if uint64(time.Now().Unix()) > order.ExpireTime {
		return common.Address{}, nil, common.Address{}, ErrOrderExpired
	}

	reg, regAddr, err := m.resolveAssetContract(order.AssetContract)
	if err != nil {
		return common.Address{}, nil, common.Address{}, err
	}

	seller, err := m.verifier.RecoverOrderSigner(order)
	if err != nil {
		return common.Address{}, nil, common.Address{}, err
	}

	owner, err := reg.OwnerOf(ctx, order.TokenID)
	if err != nil {
		return common.Address{}, nil, common.Address{}, fmt.Errorf("owner lookup: %w", err)
	}
	if owner != seller {
		return common.Address{}, nil, common.Address{}, ErrOwnerMismatch
	}

	if m.OrderNonceUsed(order.Nonce) {
		return common.Address{}, nil, common.Address{}, ErrOrderAlreadyUsed
	}

	return seller, reg, regAddr, nil
}

// ValidateOffer authenticates a buyer's offer against an order. It is a pure
// read with respect to the ledger.
func (m *Market) ValidateOffer(offer *chain.Offer, order *chain.Order) (common.Address, error) {
	if uint64(time.Now().Unix()) > offer.ExpireTime {
		return common.Address{}, ErrOfferExpired
	}

	if offer.Price.Cmp(order.MinPrice) < 0 {
		return common.Address{}, ErrPriceTooLow
	}
	if offer.TokenID.Cmp(order.TokenID) != 0 {
		return common.Address{}, ErrAssetMismatch
	}

	// Order and offer must resolve to the identical asset contract.
	_, orderReg, err := m.resolveAssetContract(order.AssetContract)
	if err != nil {
		return common.Address{}, err
	}
	_, offerReg, err := m.resolveAssetContract(offer.AssetContract)
	if err != nil {
		return common.Address{}, err
	}
	if orderReg != offerReg {
		return common.Address{}, ErrAssetMismatch
	}

	buyer, err := m.verifier.RecoverOfferSigner(offer)
	if err != nil {
		return common.Address{}, err
	}

	if m.OfferNonceUsed(offer.Nonce) {
		return common.Address{}, ErrOfferAlreadyUsed
	}

	if order.Receiver != (common.Address{}) && order.Receiver != buyer {
		return common.Address{}, ErrReceiverMismatch
	}

	return buyer, nil
}
