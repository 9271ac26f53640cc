// Package registry provides an in-process implementation of the asset
// ownership registry consumed by the settlement engine. It is used by tests
// and the local service mode; production deployments bind a deployed
// contract instead.
package registry

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Registry errors
var (
	ErrUnknownAsset     = errors.New("unknown asset")
	ErrNotOwner         = errors.New("not the owner")
	ErrNoCreator        = errors.New("no creator recorded")
	ErrNotMinter        = errors.New("minter role required")
	ErrMissingProof     = errors.New("transfer proof required")
	ErrProofAlreadyUsed = errors.New("transfer proof already used")
	ErrProofInvalid     = errors.New("transfer proof invalid")
)

// ProofVerifier checks a transfer-validity proof. A nil verifier accepts
// every proof, which suits tests and local mode.
type ProofVerifier func(proof []byte) error

// Memory is an in-process asset registry with creator attribution, a
// permanent consumed-proof set and role-gated minting.
type Memory struct {
	verify ProofVerifier

	mu         sync.RWMutex
	owners     map[string]common.Address
	creators   map[string]common.Address
	minters    map[common.Address]bool
	usedProofs map[common.Hash]bool
	nextID     *big.Int
}

// NewMemory creates a registry. The given minters hold the privileged mint
// role.
func NewMemory(verify ProofVerifier, minters ...common.Address) *Memory {
	m := &Memory{
		verify:     verify,
		owners:     make(map[string]common.Address),
		creators:   make(map[string]common.Address),
		minters:    make(map[common.Address]bool),
		usedProofs: make(map[common.Hash]bool),
		nextID:     big.NewInt(1),
	}
	for _, minter := range minters {
		m.minters[minter] = true
	}
	return m
}

// Register creates an asset owned by the given address without creator
// attribution. Test helper.
func (m *Memory) Register(owner common.Address) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mint(owner, common.Address{})
}

// RegisterWithCreator creates an asset with creator attribution. Test helper.
func (m *Memory) RegisterWithCreator(owner, creator common.Address) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mint(owner, creator)
}

// OwnerOf returns the current owner of an asset.
func (m *Memory) OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	owner, ok := m.owners[tokenID.String()]
	if !ok {
		return common.Address{}, ErrUnknownAsset
	}
	return owner, nil
}

// CreatorOf returns the asset's recorded creator, failing when none was
// recorded.
func (m *Memory) CreatorOf(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	creator, ok := m.creators[tokenID.String()]
	if !ok || creator == (common.Address{}) {
		return common.Address{}, ErrNoCreator
	}
	return creator, nil
}

// TransferFrom moves asset ownership.
func (m *Memory) TransferFrom(ctx context.Context, from, to common.Address, tokenID *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transfer(from, to, tokenID)
}

// TransferWithProof moves asset ownership after verifying and consuming the
// supplied transfer-validity proofs. A consumed proof can never be replayed.
func (m *Memory) TransferWithProof(ctx context.Context, from, to common.Address, tokenID *big.Int, proofs [][]byte) error {
	if len(proofs) == 0 {
		return ErrMissingProof
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// All proofs are checked before any is consumed so a failed call leaves
	// the consumed set unchanged.
	nonces := make([]common.Hash, len(proofs))
	for i, proof := range proofs {
		nonce := crypto.Keccak256Hash(proof)
		if m.usedProofs[nonce] {
			return ErrProofAlreadyUsed
		}
		if m.verify != nil {
			if err := m.verify(proof); err != nil {
				return ErrProofInvalid
			}
		}
		nonces[i] = nonce
	}

	if err := m.transfer(from, to, tokenID); err != nil {
		return err
	}

	for _, nonce := range nonces {
		m.usedProofs[nonce] = true
	}
	return nil
}

// MintWithRole mints a new asset on behalf of a privileged minter. A zero
// creator attributes the asset to the new owner.
func (m *Memory) MintWithRole(ctx context.Context, minter, to, creator common.Address, sealedKey []byte) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.minters[minter] {
		return nil, ErrNotMinter
	}
	if creator == (common.Address{}) {
		creator = to
	}
	return m.mint(to, creator), nil
}

// ProofUsed reports whether a proof was already consumed.
func (m *Memory) ProofUsed(proof []byte) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.usedProofs[crypto.Keccak256Hash(proof)]
}

// callers hold m.mu

func (m *Memory) transfer(from, to common.Address, tokenID *big.Int) error {
	key := tokenID.String()
	owner, ok := m.owners[key]
	if !ok {
		return ErrUnknownAsset
	}
	if owner != from {
		return ErrNotOwner
	}
	m.owners[key] = to
	return nil
}

func (m *Memory) mint(owner, creator common.Address) *big.Int {
	id := new(big.Int).Set(m.nextID)
	m.nextID.Add(m.nextID, big.NewInt(1))

	m.owners[id.String()] = owner
	if creator != (common.Address{}) {
		m.creators[id.String()] = creator
	}
	return id
}
