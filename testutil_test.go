package imarket

import (
	"crypto/ecdsa"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/kaifufi/imarket-go/chain"
	"github.com/kaifufi/imarket-go/registry"
)

const testChainID int64 = 31337

var (
	testMarketAddr   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testRegistryAddr = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

// actor is a test identity with its own signing key.
type actor struct {
	key     *ecdsa.PrivateKey
	addr    common.Address
	builder *chain.OrderBuilder
}

func newActor(t *testing.T) actor {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return actor{
		key:     key,
		addr:    crypto.PubkeyToAddress(key.PublicKey),
		builder: chain.NewOrderBuilder(testMarketAddr, testChainID, key),
	}
}

func (a actor) call() Call {
	return Call{Caller: a.addr}
}

func (a actor) callWithValue(value int64) Call {
	return Call{Caller: a.addr, Value: big.NewInt(value)}
}

// memorySink captures every emitted event for assertions.
type memorySink struct {
	mu     sync.Mutex
	events []Event
}

func (s *memorySink) Record(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *memorySink) last() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return Event{}, false
	}
	return s.events[len(s.events)-1], true
}

type fixture struct {
	market *Market
	reg    *registry.Memory
	tokens *MemoryTokenBackend
	sink   *memorySink

	admin  actor
	seller actor
	buyer  actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		reg:    registry.NewMemory(nil, testMarketAddr),
		tokens: NewMemoryTokenBackend(testMarketAddr),
		sink:   &memorySink{},
		admin:  newActor(t),
		seller: newActor(t),
		buyer:  newActor(t),
	}

	market, err := New(Options{
		Admin:           f.admin.addr,
		ChainID:         big.NewInt(testChainID),
		Contract:        testMarketAddr,
		FeeRateBps:      250,
		MintFee:         big.NewInt(100),
		DiscountMintFee: big.NewInt(10),
		Registry:        f.reg,
		RegistryAddr:    testRegistryAddr,
		Tokens:          f.tokens,
		Sink:            f.sink,
	})
	require.NoError(t, err)
	f.market = market

	return f
}

func futureExpiry() uint64 {
	return uint64(time.Now().Add(time.Hour).Unix())
}

// signedOrder signs a listing for the fixture's seller.
func (f *fixture) signedOrder(t *testing.T, tokenID *big.Int, minPrice int64, mutate ...func(*chain.Order)) *chain.Order {
	t.Helper()
	order := &chain.Order{
		TokenID:    tokenID,
		MinPrice:   big.NewInt(minPrice),
		ExpireTime: futureExpiry(),
	}
	for _, m := range mutate {
		m(order)
	}
	signed, err := f.seller.builder.BuildOrder(order)
	require.NoError(t, err)
	return signed
}

// signedOffer signs an acceptance for the fixture's buyer.
func (f *fixture) signedOffer(t *testing.T, tokenID *big.Int, price int64, mutate ...func(*chain.Offer)) *chain.Offer {
	t.Helper()
	offer := &chain.Offer{
		TokenID:    tokenID,
		Price:      big.NewInt(price),
		ExpireTime: futureExpiry(),
	}
	for _, m := range mutate {
		m(offer)
	}
	signed, err := f.buyer.builder.BuildOffer(offer)
	require.NoError(t, err)
	return signed
}

func (f *fixture) deposit(t *testing.T, a actor, amount int64) {
	t.Helper()
	_, err := f.market.Deposit(Call{Caller: a.addr, Value: big.NewInt(amount)})
	require.NoError(t, err)
}
