package imarket

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaifufi/imarket-go/registry"
)

func TestSetFeeRate(t *testing.T) {
	f := newFixture(t)

	_, err := f.market.SetFeeRate(f.buyer.call(), 100)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	_, err = f.market.SetFeeRate(f.admin.call(), MaxFeeRateBps+1)
	assert.ErrorIs(t, err, ErrFeeRateTooHigh)

	ev, err := f.market.SetFeeRate(f.admin.call(), 500)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), f.market.FeeRate())

	data, ok := ev.Data.(FeeRateData)
	require.True(t, ok)
	assert.Equal(t, uint64(250), data.OldRate)
	assert.Equal(t, uint64(500), data.NewRate)
}

func TestSetPartnerRate(t *testing.T) {
	f := newFixture(t)
	partner := common.HexToAddress("0x42")

	_, err := f.market.SetPartnerRate(f.buyer.call(), partner, 100)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	_, err = f.market.SetPartnerRate(f.admin.call(), common.Address{}, 100)
	assert.ErrorIs(t, err, ErrBadAddress)

	_, err = f.market.SetPartnerRate(f.admin.call(), partner, MaxPartnerRateBps+1)
	assert.ErrorIs(t, err, ErrPartnerRateTooHigh)

	_, err = f.market.SetPartnerRate(f.admin.call(), partner, 4000)
	require.NoError(t, err)
	assert.Equal(t, uint64(4000), f.market.PartnerRate(partner))
}

func TestSetMintFees(t *testing.T) {
	f := newFixture(t)

	_, err := f.market.SetMintFees(f.buyer.call(), big.NewInt(1), big.NewInt(1))
	assert.ErrorIs(t, err, ErrNotAuthorized)

	_, err = f.market.SetMintFees(f.admin.call(), nil, big.NewInt(1))
	assert.ErrorIs(t, err, ErrZeroAmount)

	_, err = f.market.SetMintFees(f.admin.call(), big.NewInt(200), big.NewInt(20))
	require.NoError(t, err)

	mintFee, discountFee := f.market.MintFees()
	assert.Equal(t, big.NewInt(200), mintFee)
	assert.Equal(t, big.NewInt(20), discountFee)
}

func TestWhitelistManagement(t *testing.T) {
	f := newFixture(t)
	ext := registry.NewMemory(nil)
	extAddr := common.HexToAddress("0x66")

	_, err := f.market.AddAssetContract(f.buyer.call(), extAddr, ext)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	_, err = f.market.AddAssetContract(f.admin.call(), common.Address{}, ext)
	assert.ErrorIs(t, err, ErrBadAddress)

	_, err = f.market.AddAssetContract(f.admin.call(), extAddr, ext)
	require.NoError(t, err)
	assert.True(t, f.market.IsWhitelisted(extAddr))

	// The platform registry cannot be delisted.
	_, err = f.market.RemoveAssetContract(f.admin.call(), testRegistryAddr)
	assert.ErrorIs(t, err, ErrProtectedAssetContract)

	_, err = f.market.RemoveAssetContract(f.admin.call(), extAddr)
	require.NoError(t, err)
	assert.False(t, f.market.IsWhitelisted(extAddr))
}

func TestPauseUnpause(t *testing.T) {
	f := newFixture(t)

	_, err := f.market.Pause(f.buyer.call())
	assert.ErrorIs(t, err, ErrNotAuthorized)

	_, err = f.market.Pause(f.admin.call())
	require.NoError(t, err)
	assert.True(t, f.market.Paused())

	_, err = f.market.Deposit(f.buyer.callWithValue(100))
	assert.ErrorIs(t, err, ErrPaused)
	_, err = f.market.Withdraw(f.buyer.call(), big.NewInt(1))
	assert.ErrorIs(t, err, ErrPaused)

	// Configuration stays available while paused.
	_, err = f.market.SetFeeRate(f.admin.call(), 100)
	assert.NoError(t, err)

	_, err = f.market.Unpause(f.admin.call())
	require.NoError(t, err)
	assert.False(t, f.market.Paused())

	_, err = f.market.Deposit(f.buyer.callWithValue(100))
	assert.NoError(t, err)
}

func TestTransferAdminMovesRoleBundle(t *testing.T) {
	f := newFixture(t)
	next := newActor(t)

	_, err := f.market.TransferAdmin(f.buyer.call(), next.addr)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	_, err = f.market.TransferAdmin(f.admin.call(), common.Address{})
	assert.ErrorIs(t, err, ErrBadAddress)

	ev, err := f.market.TransferAdmin(f.admin.call(), next.addr)
	require.NoError(t, err)
	assert.Equal(t, EventAdminChanged, ev.Type)

	// The old admin lost every privileged role, the new one holds them all.
	_, err = f.market.Pause(f.admin.call())
	assert.ErrorIs(t, err, ErrNotAuthorized)
	_, err = f.market.SetFeeRate(f.admin.call(), 100)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	_, err = f.market.Pause(next.call())
	assert.NoError(t, err)
	_, err = f.market.SetFeeRate(next.call(), 100)
	assert.NoError(t, err)
	_, err = f.market.Unpause(next.call())
	assert.NoError(t, err)
}

func TestGrantDiscountMinter(t *testing.T) {
	f := newFixture(t)
	minter := newActor(t)

	err := f.market.GrantDiscountMinter(f.buyer.call(), minter.addr)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	err = f.market.GrantDiscountMinter(f.admin.call(), common.Address{})
	assert.ErrorIs(t, err, ErrBadAddress)

	err = f.market.GrantDiscountMinter(f.admin.call(), minter.addr)
	require.NoError(t, err)
	assert.True(t, f.market.HasRole(RoleDiscountMinter, minter.addr))
}

func TestSetRegistry(t *testing.T) {
	f := newFixture(t)
	next := registry.NewMemory(nil)
	nextAddr := common.HexToAddress("0x88")

	err := f.market.SetRegistry(f.buyer.call(), next, nextAddr)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	err = f.market.SetRegistry(f.admin.call(), nil, nextAddr)
	assert.ErrorIs(t, err, ErrBadAddress)

	err = f.market.SetRegistry(f.admin.call(), next, nextAddr)
	require.NoError(t, err)
	assert.True(t, f.market.IsWhitelisted(nextAddr))
	assert.False(t, f.market.IsWhitelisted(testRegistryAddr))
}
