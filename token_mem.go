package imarket

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// MemoryTokenBackend is an in-process ERC20-style token ledger with
// allowance semantics. It backs tests and the local service mode.
type MemoryTokenBackend struct {
	operator common.Address

	mu         sync.Mutex
	balances   map[common.Address]map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]map[common.Address]*big.Int
}

// NewMemoryTokenBackend creates a token ledger. The operator is the engine
// identity whose allowance TransferFrom consumes.
func NewMemoryTokenBackend(operator common.Address) *MemoryTokenBackend {
	return &MemoryTokenBackend{
		operator:   operator,
		balances:   make(map[common.Address]map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]map[common.Address]*big.Int),
	}
}

// Mint credits a holder balance out of thin air. Test and bootstrap helper.
func (t *MemoryTokenBackend) Mint(token, to common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.credit(token, to, amount)
}

// Approve sets the operator allowance for a holder.
func (t *MemoryTokenBackend) Approve(token, owner, spender common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	owners, ok := t.allowances[token]
	if !ok {
		owners = make(map[common.Address]map[common.Address]*big.Int)
		t.allowances[token] = owners
	}
	spenders, ok := owners[owner]
	if !ok {
		spenders = make(map[common.Address]*big.Int)
		owners[owner] = spenders
	}
	spenders[spender] = new(big.Int).Set(amount)
}

// BalanceOf returns a holder's token balance.
func (t *MemoryTokenBackend) BalanceOf(token, account common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if holders, ok := t.balances[token]; ok {
		if b, ok := holders[account]; ok {
			return new(big.Int).Set(b)
		}
	}
	return big.NewInt(0)
}

// Allowance returns the remaining operator allowance for a holder.
func (t *MemoryTokenBackend) Allowance(token, owner, spender common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if a := t.allowance(token, owner, spender); a != nil {
		return new(big.Int).Set(a)
	}
	return big.NewInt(0)
}

// TransferFrom pulls tokens from a holder against the operator's allowance.
func (t *MemoryTokenBackend) TransferFrom(ctx context.Context, token, from, to common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	allowance := t.allowance(token, from, t.operator)
	if allowance == nil || allowance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if err := t.move(token, from, to, amount); err != nil {
		return err
	}
	allowance.Sub(allowance, amount)
	return nil
}

// Transfer moves operator-held tokens to a recipient.
func (t *MemoryTokenBackend) Transfer(ctx context.Context, token, to common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.move(token, t.operator, to, amount)
}

// callers hold t.mu

func (t *MemoryTokenBackend) allowance(token, owner, spender common.Address) *big.Int {
	if owners, ok := t.allowances[token]; ok {
		if spenders, ok := owners[owner]; ok {
			return spenders[spender]
		}
	}
	return nil
}

func (t *MemoryTokenBackend) move(token, from, to common.Address, amount *big.Int) error {
	holders := t.balances[token]
	balance, ok := holders[from]
	if !ok || balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	balance.Sub(balance, amount)
	t.credit(token, to, amount)
	return nil
}

func (t *MemoryTokenBackend) credit(token, to common.Address, amount *big.Int) {
	holders, ok := t.balances[token]
	if !ok {
		holders = make(map[common.Address]*big.Int)
		t.balances[token] = holders
	}
	if b, ok := holders[to]; ok {
		b.Add(b, amount)
		return
	}
	holders[to] = new(big.Int).Set(amount)
}
