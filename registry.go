package imarket

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// NativeCurrency is the sentinel currency address for native-value settlement.
var NativeCurrency = common.Address{}

// Call carries the caller identity and any attached native value for a
// mutating entry point.
type Call struct {
	Caller common.Address
	Value  *big.Int
}

// AttachedValue returns the attached native value, treating nil as zero.
func (c Call) AttachedValue() *big.Int {
	if c.Value == nil {
		return big.NewInt(0)
	}
	return c.Value
}

// AssetRegistry is the ownership-registry collaborator consumed by the
// settlement engine. Implementations hold the mint/transfer semantics and,
// for the proof-gated path, their own proof replay guard.
type AssetRegistry interface {
	// OwnerOf returns the current owner of an asset.
	OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error)

	// CreatorOf returns the asset's recorded creator. The engine treats any
	// failure as "no creator".
	CreatorOf(ctx context.Context, tokenID *big.Int) (common.Address, error)

	// TransferFrom moves asset ownership.
	TransferFrom(ctx context.Context, from, to common.Address, tokenID *big.Int) error

	// TransferWithProof moves asset ownership, consuming the supplied
	// transfer-validity proofs. Fails if any proof was consumed before or
	// fails verification.
	TransferWithProof(ctx context.Context, from, to common.Address, tokenID *big.Int, proofs [][]byte) error

	// MintWithRole mints a new asset on behalf of a privileged minter.
	MintWithRole(ctx context.Context, minter, to, creator common.Address, sealedKey []byte) (*big.Int, error)
}

// TokenBackend moves ERC20-style currency on behalf of the engine. The
// engine identity is the implicit spender for TransferFrom and the implicit
// sender for Transfer.
type TokenBackend interface {
	TransferFrom(ctx context.Context, token, from, to common.Address, amount *big.Int) error
	Transfer(ctx context.Context, token, to common.Address, amount *big.Int) error
}
