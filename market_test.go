package imarket

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaifufi/imarket-go/registry"
)

func TestNewRejectsBadOptions(t *testing.T) {
	admin := common.HexToAddress("0x01")
	reg := registry.NewMemory(nil)

	_, err := New(Options{ChainID: big.NewInt(1), Registry: reg})
	assert.ErrorIs(t, err, ErrBadAddress)

	_, err = New(Options{Admin: admin, ChainID: big.NewInt(1)})
	assert.ErrorIs(t, err, ErrBadAddress)

	_, err = New(Options{Admin: admin, ChainID: big.NewInt(1), Registry: reg, FeeRateBps: MaxFeeRateBps + 1})
	assert.ErrorIs(t, err, ErrFeeRateTooHigh)
}

func TestDepositAndWithdraw(t *testing.T) {
	f := newFixture(t)

	ev, err := f.market.Deposit(f.buyer.callWithValue(500))
	require.NoError(t, err)
	assert.Equal(t, EventDeposit, ev.Type)
	assert.Equal(t, big.NewInt(500), f.market.BalanceOf(f.buyer.addr))
	assert.Equal(t, big.NewInt(500), f.market.NativeHeld())

	ev, err = f.market.Withdraw(f.buyer.call(), big.NewInt(200))
	require.NoError(t, err)
	assert.Equal(t, EventWithdrawal, ev.Type)
	assert.Equal(t, big.NewInt(300), f.market.BalanceOf(f.buyer.addr))
	assert.Equal(t, big.NewInt(300), f.market.NativeHeld())
}

func TestDepositRejectsZeroValue(t *testing.T) {
	f := newFixture(t)

	_, err := f.market.Deposit(f.buyer.call())
	assert.ErrorIs(t, err, ErrZeroAmount)
}

func TestWithdrawRejectsOverdraft(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, f.buyer, 100)

	_, err := f.market.Withdraw(f.buyer.call(), big.NewInt(101))
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = f.market.Withdraw(f.buyer.call(), big.NewInt(0))
	assert.ErrorIs(t, err, ErrZeroAmount)

	_, err = f.market.Withdraw(f.buyer.call(), nil)
	assert.ErrorIs(t, err, ErrZeroAmount)
}

func TestWithdrawForRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, f.buyer, 100)

	_, err := f.market.WithdrawFor(f.seller.call(), f.buyer.addr, big.NewInt(50))
	assert.ErrorIs(t, err, ErrNotAuthorized)

	ev, err := f.market.WithdrawFor(f.admin.call(), f.buyer.addr, big.NewInt(50))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(50), f.market.BalanceOf(f.buyer.addr))

	data, ok := ev.Data.(BalanceData)
	require.True(t, ok)
	assert.Equal(t, f.buyer.addr, data.Account)
	assert.Equal(t, f.admin.addr, data.By)
}

func TestBalanceAccessorsCopyState(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, f.buyer, 100)

	b := f.market.BalanceOf(f.buyer.addr)
	b.SetInt64(0)
	assert.Equal(t, big.NewInt(100), f.market.BalanceOf(f.buyer.addr))

	held := f.market.NativeHeld()
	held.SetInt64(0)
	assert.Equal(t, big.NewInt(100), f.market.NativeHeld())
}

func TestIsWhitelistedTreatsPlatformRegistryAsImplicit(t *testing.T) {
	f := newFixture(t)

	assert.True(t, f.market.IsWhitelisted(common.Address{}))
	assert.True(t, f.market.IsWhitelisted(testRegistryAddr))
	assert.False(t, f.market.IsWhitelisted(common.HexToAddress("0x99")))
}

func TestSinkReceivesEvents(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, f.buyer, 100)

	ev, ok := f.sink.last()
	require.True(t, ok)
	assert.Equal(t, EventDeposit, ev.Type)
	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.At.IsZero())
}
