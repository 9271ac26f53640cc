package chain

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// OrderBuilder builds and signs orders and offers for a single key.
type OrderBuilder struct {
	verifier *Verifier
	signer   *ecdsa.PrivateKey
}

// NewOrderBuilder creates a new OrderBuilder bound to a market contract.
func NewOrderBuilder(marketAddr common.Address, chainID int64, signer *ecdsa.PrivateKey) *OrderBuilder {
	return &OrderBuilder{
		verifier: NewVerifier(big.NewInt(chainID), marketAddr),
		signer:   signer,
	}
}

// SignerAddress returns the address of the builder's signing key.
func (ob *OrderBuilder) SignerAddress() common.Address {
	return crypto.PubkeyToAddress(ob.signer.PublicKey)
}

// BuildOrder fills defaults, generates a nonce when absent and signs the order.
func (ob *OrderBuilder) BuildOrder(order *Order) (*Order, error) {
	if order.TokenID == nil {
		return nil, fmt.Errorf("tokenId is required")
	}
	if order.MinPrice == nil {
		order.MinPrice = big.NewInt(0)
	}
	if order.Nonce == (common.Hash{}) {
		order.Nonce = generateNonce()
	}

	digest, err := ob.verifier.OrderDigest(order)
	if err != nil {
		return nil, err
	}

	signature, err := ob.sign(digest)
	if err != nil {
		return nil, fmt.Errorf("failed to sign order: %w", err)
	}
	order.Signature = signature

	return order, nil
}

// BuildOffer fills defaults, generates a nonce when absent and signs the offer.
func (ob *OrderBuilder) BuildOffer(offer *Offer) (*Offer, error) {
	if offer.TokenID == nil {
		return nil, fmt.Errorf("tokenId is required")
	}
	if offer.Price == nil {
		offer.Price = big.NewInt(0)
	}
	if offer.Nonce == (common.Hash{}) {
		offer.Nonce = generateNonce()
	}

	digest, err := ob.verifier.OfferDigest(offer)
	if err != nil {
		return nil, err
	}

	signature, err := ob.sign(digest)
	if err != nil {
		return nil, fmt.Errorf("failed to sign offer: %w", err)
	}
	offer.Signature = signature

	return offer, nil
}

func (ob *OrderBuilder) sign(digest common.Hash) ([]byte, error) {
	signature, err := crypto.Sign(digest.Bytes(), ob.signer)
	if err != nil {
		return nil, err
	}

	// Recovery id on the wire uses the 27/28 convention
	signature[64] += 27

	return signature, nil
}

func generateNonce() common.Hash {
	var nonce common.Hash
	if _, err := rand.Read(nonce[:]); err != nil {
		panic("failed to read random nonce: " + err.Error())
	}
	return nonce
}
