package chain

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signature and digest errors
var (
	ErrInvalidSignatureLength = errors.New("invalid signature length")
	ErrInvalidSignature       = errors.New("invalid signature")
	ErrUnknownSignScheme      = errors.New("unknown signature scheme")
)

// EIP712 domain constants
const (
	EIP712DomainName    = "IMarket"
	EIP712DomainVersion = "1"

	// SignatureLength is the expected r||s||v signature size
	SignatureLength = 65
)

// Pre-computed type hashes using keccak256
var (
	// EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)
	EIP712DomainTypeHash = crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)",
	))

	// Order(uint256 tokenId,uint256 minPrice,address currency,uint256 expireTime,uint256 nonce,address receiver,address assetContract)
	OrderTypeHash = crypto.Keccak256Hash([]byte(
		"Order(uint256 tokenId,uint256 minPrice,address currency,uint256 expireTime,uint256 nonce,address receiver,address assetContract)",
	))

	// Offer(uint256 tokenId,uint256 price,uint256 expireTime,bool needProof,uint256 nonce,address assetContract)
	OfferTypeHash = crypto.Keccak256Hash([]byte(
		"Offer(uint256 tokenId,uint256 price,uint256 expireTime,bool needProof,uint256 nonce,address assetContract)",
	))
)

// EIP712Domain represents the EIP712 domain separator data
type EIP712Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// NewEIP712Domain creates a new EIP712Domain with the standard values
func NewEIP712Domain(chainID *big.Int, verifyingContract common.Address) *EIP712Domain {
	return &EIP712Domain{
		Name:              EIP712DomainName,
		Version:           EIP712DomainVersion,
		ChainID:           chainID,
		VerifyingContract: verifyingContract,
	}
}

// Hash computes the EIP712 domain separator hash
func (d *EIP712Domain) Hash() common.Hash {
	nameHash := crypto.Keccak256Hash([]byte(d.Name))
	versionHash := crypto.Keccak256Hash([]byte(d.Version))

	bytes32Type, _ := abi.NewType("bytes32", "", nil)
	uint256Type, _ := abi.NewType("uint256", "", nil)
	addressType, _ := abi.NewType("address", "", nil)

	arguments := abi.Arguments{
		{Type: bytes32Type}, // typeHash
		{Type: bytes32Type}, // nameHash
		{Type: bytes32Type}, // versionHash
		{Type: uint256Type}, // chainId
		{Type: addressType}, // verifyingContract
	}

	encoded, err := arguments.Pack(
		EIP712DomainTypeHash,
		nameHash,
		versionHash,
		d.ChainID,
		d.VerifyingContract,
	)
	if err != nil {
		panic("failed to encode domain separator: " + err.Error())
	}

	return crypto.Keccak256Hash(encoded)
}

// Verifier rebuilds message digests for the configured domain and recovers
// signer addresses.
type Verifier struct {
	domain *EIP712Domain
}

// NewVerifier creates a Verifier bound to the given chain and contract.
func NewVerifier(chainID *big.Int, verifyingContract common.Address) *Verifier {
	return &Verifier{domain: NewEIP712Domain(chainID, verifyingContract)}
}

// Domain returns the EIP712 domain the verifier is bound to.
func (v *Verifier) Domain() *EIP712Domain { return v.domain }

// OrderDigest computes the digest an order signature must cover.
func (v *Verifier) OrderDigest(o *Order) (common.Hash, error) {
	switch o.Scheme {
	case SignSchemeTyped:
		return typedDigest(v.domain, orderStructHash(o)), nil
	case SignSchemeLegacy:
		return legacyDigest(v.domain, packOrder(v.domain, o)), nil
	default:
		return common.Hash{}, ErrUnknownSignScheme
	}
}

// OfferDigest computes the digest an offer signature must cover.
func (v *Verifier) OfferDigest(o *Offer) (common.Hash, error) {
	switch o.Scheme {
	case SignSchemeTyped:
		return typedDigest(v.domain, offerStructHash(o)), nil
	case SignSchemeLegacy:
		return legacyDigest(v.domain, packOffer(v.domain, o)), nil
	default:
		return common.Hash{}, ErrUnknownSignScheme
	}
}

// RecoverOrderSigner recovers the address that signed an order.
func (v *Verifier) RecoverOrderSigner(o *Order) (common.Address, error) {
	digest, err := v.OrderDigest(o)
	if err != nil {
		return common.Address{}, err
	}
	return recoverSigner(digest, o.Signature)
}

// RecoverOfferSigner recovers the address that signed an offer.
func (v *Verifier) RecoverOfferSigner(o *Offer) (common.Address, error) {
	digest, err := v.OfferDigest(o)
	if err != nil {
		return common.Address{}, err
	}
	return recoverSigner(digest, o.Signature)
}

func orderStructHash(o *Order) common.Hash {
	bytes32Type, _ := abi.NewType("bytes32", "", nil)
	uint256Type, _ := abi.NewType("uint256", "", nil)
	addressType, _ := abi.NewType("address", "", nil)

	arguments := abi.Arguments{
		{Type: bytes32Type}, // typeHash
		{Type: uint256Type}, // tokenId
		{Type: uint256Type}, // minPrice
		{Type: addressType}, // currency
		{Type: uint256Type}, // expireTime
		{Type: uint256Type}, // nonce
		{Type: addressType}, // receiver
		{Type: addressType}, // assetContract
	}

	encoded, err := arguments.Pack(
		OrderTypeHash,
		o.TokenID,
		o.MinPrice,
		o.Currency,
		new(big.Int).SetUint64(o.ExpireTime),
		new(big.Int).SetBytes(o.Nonce[:]),
		o.Receiver,
		o.AssetContract,
	)
	if err != nil {
		panic("failed to encode order struct: " + err.Error())
	}

	return crypto.Keccak256Hash(encoded)
}

func offerStructHash(o *Offer) common.Hash {
	bytes32Type, _ := abi.NewType("bytes32", "", nil)
	uint256Type, _ := abi.NewType("uint256", "", nil)
	addressType, _ := abi.NewType("address", "", nil)
	boolType, _ := abi.NewType("bool", "", nil)

	arguments := abi.Arguments{
		{Type: bytes32Type}, // typeHash
		{Type: uint256Type}, // tokenId
		{Type: uint256Type}, // price
		{Type: uint256Type}, // expireTime
		{Type: boolType},    // needProof
		{Type: uint256Type}, // nonce
		{Type: addressType}, // assetContract
	}

	encoded, err := arguments.Pack(
		OfferTypeHash,
		o.TokenID,
		o.Price,
		new(big.Int).SetUint64(o.ExpireTime),
		o.NeedProof,
		new(big.Int).SetBytes(o.Nonce[:]),
		o.AssetContract,
	)
	if err != nil {
		panic("failed to encode offer struct: " + err.Error())
	}

	return crypto.Keccak256Hash(encoded)
}

// typedDigest follows the EIP712 specification:
// keccak256("\x19\x01" ++ domainSeparator ++ structHash)
func typedDigest(domain *EIP712Domain, structHash common.Hash) common.Hash {
	data := make([]byte, 0, 2+32+32)
	data = append(data, 0x19, 0x01)
	data = append(data, domain.Hash().Bytes()...)
	data = append(data, structHash.Bytes()...)
	return crypto.Keccak256Hash(data)
}

// legacyDigest hashes the packed raw fields and wraps the result in the
// generic signed-message prefix with an embedded length.
func legacyDigest(domain *EIP712Domain, packed []byte) common.Hash {
	inner := crypto.Keccak256Hash(packed)
	data := make([]byte, 0, 28+32)
	data = append(data, []byte("\x19Ethereum Signed Message:\n32")...)
	data = append(data, inner.Bytes()...)
	return crypto.Keccak256Hash(data)
}

func packOrder(domain *EIP712Domain, o *Order) []byte {
	packed := make([]byte, 0, 32*5+20*3)
	packed = append(packed, common.LeftPadBytes(o.TokenID.Bytes(), 32)...)
	packed = append(packed, common.LeftPadBytes(o.MinPrice.Bytes(), 32)...)
	packed = append(packed, o.Currency.Bytes()...)
	packed = append(packed, common.LeftPadBytes(new(big.Int).SetUint64(o.ExpireTime).Bytes(), 32)...)
	packed = append(packed, o.Nonce.Bytes()...)
	packed = append(packed, o.Receiver.Bytes()...)
	packed = append(packed, o.AssetContract.Bytes()...)
	packed = append(packed, common.LeftPadBytes(domain.ChainID.Bytes(), 32)...)
	packed = append(packed, domain.VerifyingContract.Bytes()...)
	return packed
}

func packOffer(domain *EIP712Domain, o *Offer) []byte {
	needProof := byte(0)
	if o.NeedProof {
		needProof = 1
	}
	packed := make([]byte, 0, 32*5+20*2+1)
	packed = append(packed, common.LeftPadBytes(o.TokenID.Bytes(), 32)...)
	packed = append(packed, common.LeftPadBytes(o.Price.Bytes(), 32)...)
	packed = append(packed, common.LeftPadBytes(new(big.Int).SetUint64(o.ExpireTime).Bytes(), 32)...)
	packed = append(packed, needProof)
	packed = append(packed, o.Nonce.Bytes()...)
	packed = append(packed, o.AssetContract.Bytes()...)
	packed = append(packed, common.LeftPadBytes(domain.ChainID.Bytes(), 32)...)
	packed = append(packed, domain.VerifyingContract.Bytes()...)
	return packed
}

// recoverSigner recovers the signing address from a 65-byte r||s||v signature.
func recoverSigner(digest common.Hash, signature []byte) (common.Address, error) {
	if len(signature) != SignatureLength {
		return common.Address{}, ErrInvalidSignatureLength
	}

	sig := make([]byte, SignatureLength)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pubKey, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return common.Address{}, ErrInvalidSignature
	}

	return crypto.PubkeyToAddress(*pubKey), nil
}
