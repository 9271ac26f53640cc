package imarket

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaifufi/imarket-go/registry"
)

func TestMintAsset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.deposit(t, f.buyer, 150)

	tokenID, ev, err := f.market.MintAsset(ctx, f.buyer.call(), f.buyer.addr, common.Address{}, []byte("sealed"))
	require.NoError(t, err)
	require.NotNil(t, tokenID)
	assert.Equal(t, EventAssetMinted, ev.Type)

	owner, err := f.reg.OwnerOf(ctx, tokenID)
	require.NoError(t, err)
	assert.Equal(t, f.buyer.addr, owner)

	// A zero creator attributes the asset to the new owner.
	creator, err := f.reg.CreatorOf(ctx, tokenID)
	require.NoError(t, err)
	assert.Equal(t, f.buyer.addr, creator)

	// Flat fee debited into the platform's native pool.
	assert.Equal(t, big.NewInt(50), f.market.BalanceOf(f.buyer.addr))
	assert.Equal(t, big.NewInt(100), f.market.PlatformFeeBalance(NativeCurrency))
}

func TestMintAssetWithCreatorAttribution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	creator := common.HexToAddress("0xc0ffee")
	f.deposit(t, f.buyer, 100)

	tokenID, _, err := f.market.MintAsset(ctx, f.buyer.call(), f.seller.addr, creator, nil)
	require.NoError(t, err)

	owner, err := f.reg.OwnerOf(ctx, tokenID)
	require.NoError(t, err)
	assert.Equal(t, f.seller.addr, owner)

	got, err := f.reg.CreatorOf(ctx, tokenID)
	require.NoError(t, err)
	assert.Equal(t, creator, got)
}

func TestMintAssetDiscount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.market.GrantDiscountMinter(f.admin.call(), f.buyer.addr))
	f.deposit(t, f.buyer, 10)

	_, _, err := f.market.MintAsset(ctx, f.buyer.call(), f.buyer.addr, common.Address{}, nil)
	require.NoError(t, err)

	assert.Equal(t, big.NewInt(0), f.market.BalanceOf(f.buyer.addr))
	assert.Equal(t, big.NewInt(10), f.market.PlatformFeeBalance(NativeCurrency))
}

func TestMintAssetInsufficientBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.deposit(t, f.buyer, 99)

	_, _, err := f.market.MintAsset(ctx, f.buyer.call(), f.buyer.addr, common.Address{}, nil)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestMintAssetRejectsZeroOwner(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.market.MintAsset(context.Background(), f.buyer.call(), common.Address{}, common.Address{}, nil)
	assert.ErrorIs(t, err, ErrBadAddress)
}

// hookMintRegistry runs a callback at the start of every privileged mint.
type hookMintRegistry struct {
	*registry.Memory
	before func()
}

func (h *hookMintRegistry) MintWithRole(ctx context.Context, minter, to, creator common.Address, sealedKey []byte) (*big.Int, error) {
	if h.before != nil {
		h.before()
	}
	return h.Memory.MintWithRole(ctx, minter, to, creator, sealedKey)
}

func newMintMarket(t *testing.T, reg AssetRegistry, admin, minter actor) *Market {
	t.Helper()
	market, err := New(Options{
		Admin:        admin.addr,
		ChainID:      big.NewInt(testChainID),
		Contract:     testMarketAddr,
		FeeRateBps:   250,
		MintFee:      big.NewInt(100),
		Registry:     reg,
		RegistryAddr: testRegistryAddr,
		Tokens:       NewMemoryTokenBackend(testMarketAddr),
	})
	require.NoError(t, err)
	_, err = market.Deposit(Call{Caller: minter.addr, Value: big.NewInt(100)})
	require.NoError(t, err)
	return market
}

func TestMintAssetFeeReservedDuringMint(t *testing.T) {
	ctx := context.Background()
	admin := newActor(t)
	minter := newActor(t)

	hook := &hookMintRegistry{Memory: registry.NewMemory(nil, testMarketAddr)}
	market := newMintMarket(t, hook, admin, minter)

	// A withdrawal racing the external mint must not reach the fee.
	var nested error
	hook.before = func() {
		_, nested = market.Withdraw(Call{Caller: minter.addr}, big.NewInt(100))
	}

	tokenID, _, err := market.MintAsset(ctx, Call{Caller: minter.addr}, minter.addr, common.Address{}, nil)
	require.NoError(t, err)
	require.NotNil(t, tokenID)
	assert.ErrorIs(t, nested, ErrInsufficientBalance)

	assert.Equal(t, big.NewInt(0), market.BalanceOf(minter.addr))
	assert.Equal(t, big.NewInt(100), market.PlatformFeeBalance(NativeCurrency))
}

func TestMintAssetFailureReturnsFee(t *testing.T) {
	ctx := context.Background()
	admin := newActor(t)
	minter := newActor(t)

	// Registry without the mint role for the engine: every mint fails.
	market := newMintMarket(t, registry.NewMemory(nil), admin, minter)

	_, _, err := market.MintAsset(ctx, Call{Caller: minter.addr}, minter.addr, common.Address{}, nil)
	require.Error(t, err)

	assert.Equal(t, big.NewInt(100), market.BalanceOf(minter.addr))
	assert.Equal(t, big.NewInt(0), market.PlatformFeeBalance(NativeCurrency))
}

func TestMintAssetWhilePaused(t *testing.T) {
	f := newFixture(t)

	f.deposit(t, f.buyer, 100)
	_, err := f.market.Pause(f.admin.call())
	require.NoError(t, err)

	_, _, err = f.market.MintAsset(context.Background(), f.buyer.call(), f.buyer.addr, common.Address{}, nil)
	assert.ErrorIs(t, err, ErrPaused)
}
