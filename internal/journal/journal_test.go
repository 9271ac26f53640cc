package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	imarket "github.com/kaifufi/imarket-go"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "journal.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndRecent(t *testing.T) {
	store := newTestStore(t)

	base := time.Now().UTC().Truncate(time.Second)
	store.Record(imarket.Event{
		ID:   "ev-1",
		Type: imarket.EventDeposit,
		At:   base,
		Data: map[string]any{"amount": "100"},
	})
	store.Record(imarket.Event{
		ID:   "ev-2",
		Type: imarket.EventWithdrawal,
		At:   base.Add(time.Second),
		Data: map[string]any{"amount": "40"},
	})

	events, err := store.Recent(10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	// Newest first.
	assert.Equal(t, "ev-2", events[0].ID)
	assert.Equal(t, imarket.EventWithdrawal, events[0].Type)
	assert.Equal(t, "ev-1", events[1].ID)

	payload, ok := events[0].Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "40", payload["amount"])
}

func TestRecentHonorsLimit(t *testing.T) {
	store := newTestStore(t)

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		store.Record(imarket.Event{
			ID:   string(rune('a' + i)),
			Type: imarket.EventDeposit,
			At:   base.Add(time.Duration(i) * time.Second),
		})
	}

	events, err := store.Recent(3)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestRecordNilDataRoundTrips(t *testing.T) {
	store := newTestStore(t)

	store.Record(imarket.Event{ID: "ev-1", Type: imarket.EventPaused, At: time.Now().UTC()})

	events, err := store.Recent(1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Nil(t, events[0].Data)
}
