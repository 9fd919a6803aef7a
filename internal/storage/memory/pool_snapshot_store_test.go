package memory

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foundersnet-telemetry/internal/domain"
)

// fakeClock is a manually advanced clock in milliseconds.
type fakeClock struct {
	mu  sync.Mutex
	now int64
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.UnixMilli(c.now)
}

func (c *fakeClock) Set(ms int64) {
	c.mu.Lock()
	c.now = ms
	c.mu.Unlock()
}

func newTestStore(clock *fakeClock, opts ...PoolStoreOption) *PoolSnapshotStore {
	return NewPoolSnapshotStore(append([]PoolStoreOption{WithClock(clock.Now)}, opts...)...)
}

func TestPoolSnapshotStore_IngestAndQuery(t *testing.T) {
	clock := &fakeClock{now: 1_000}
	store := newTestStore(clock)

	store.Ingest("M1", 5_000_000_000, 2_500_000_000)

	result := store.Query("M1", domain.TimeframeAll)
	require.Len(t, result, 1)
	assert.Equal(t, int64(1_000), result[0].TimestampMs)
	assert.Equal(t, 5.0, result[0].YesPool)
	assert.Equal(t, 2.5, result[0].NoPool)
	assert.Equal(t, 7.5, result[0].TotalPool)
}

func TestPoolSnapshotStore_NotIdempotent(t *testing.T) {
	clock := &fakeClock{now: 1_000}
	store := newTestStore(clock)

	store.Ingest("M1", 1, 1)
	clock.Set(2_000)
	store.Ingest("M1", 1, 1)

	result := store.Query("M1", domain.TimeframeAll)
	require.Len(t, result, 2)
	assert.NotEqual(t, result[0].TimestampMs, result[1].TimestampMs)
}

func TestPoolSnapshotStore_CapEvictsOldest(t *testing.T) {
	clock := &fakeClock{}
	store := newTestStore(clock)

	for i := 0; i < 101; i++ {
		clock.Set(int64(i))
		store.Ingest("M1", uint64(i), 0)
	}

	result := store.Query("M1", domain.TimeframeAll)
	require.Len(t, result, DefaultHistoryCap)

	// First ingestion (timestamp 0) is gone; 2nd..101st remain in order.
	for i, snap := range result {
		assert.Equal(t, int64(i+1), snap.TimestampMs)
	}
	assert.Equal(t, 100, store.Len("M1"))
	assert.Equal(t, 100, store.Stats().Snapshots)
}

func TestPoolSnapshotStore_CapNeverExceeded(t *testing.T) {
	clock := &fakeClock{}
	store := newTestStore(clock, WithHistoryCap(5))

	for i := 0; i < 50; i++ {
		clock.Set(int64(i))
		store.Ingest("M1", 1, 1)
		if n := store.Len("M1"); n > 5 {
			t.Fatalf("history length %d exceeds cap after %d ingests", n, i+1)
		}
	}
}

func TestPoolSnapshotStore_TimeframeScenario(t *testing.T) {
	clock := &fakeClock{}
	store := newTestStore(clock)

	for _, ts := range []int64{0, 500, 2_000_000} {
		clock.Set(ts)
		store.Ingest("M1", 1_000_000_000, 1_000_000_000)
	}

	assert.Len(t, store.Query("M1", domain.Timeframe1H), 3)
	assert.Len(t, store.Query("M1", domain.Timeframe24H), 3)

	clock.Set(4_000_000)
	result := store.Query("M1", domain.Timeframe1H)
	require.Len(t, result, 1)
	assert.Equal(t, int64(2_000_000), result[0].TimestampMs)
}

func TestPoolSnapshotStore_QueryIsOrderPreservingSubsequence(t *testing.T) {
	clock := &fakeClock{}
	store := newTestStore(clock)

	// Out-of-order timestamps stay in insertion order.
	for _, ts := range []int64{10_000_000, 1_000, 9_000_000, 5_000_000} {
		clock.Set(ts)
		store.Ingest("M1", uint64(ts), 0)
	}

	all := store.Query("M1", domain.TimeframeAll)
	require.Len(t, all, 4)
	assert.Equal(t, []int64{10_000_000, 1_000, 9_000_000, 5_000_000}, timestamps(all))

	clock.Set(10_500_000)
	cutoff := domain.Timeframe1H.Cutoff(10_500_000)
	var want []int64
	for _, s := range all {
		if s.TimestampMs >= cutoff {
			want = append(want, s.TimestampMs)
		}
	}
	assert.Equal(t, want, timestamps(store.Query("M1", domain.Timeframe1H)))
}

func TestPoolSnapshotStore_UnknownMarket(t *testing.T) {
	store := NewPoolSnapshotStore()

	result := store.Query("unknown-id", domain.TimeframeAll)
	assert.NotNil(t, result)
	assert.Empty(t, result)
	assert.Equal(t, 0, store.Len("unknown-id"))
}

func TestPoolSnapshotStore_IsolatedPerMarket(t *testing.T) {
	clock := &fakeClock{now: 1}
	store := newTestStore(clock)

	store.Ingest("M1", 1, 1)
	store.Ingest("M2", 2, 2)
	store.Ingest("M2", 3, 3)

	assert.Len(t, store.Query("M1", domain.TimeframeAll), 1)
	assert.Len(t, store.Query("M2", domain.TimeframeAll), 2)
	assert.Equal(t, []string{"M1", "M2"}, store.Markets())
}

func TestPoolSnapshotStore_ReturnsCopies(t *testing.T) {
	clock := &fakeClock{now: 1}
	store := newTestStore(clock)
	store.Ingest("M1", 1_000_000_000, 0)

	result := store.Query("M1", domain.TimeframeAll)
	result[0].YesPool = 99

	again := store.Query("M1", domain.TimeframeAll)
	assert.Equal(t, 1.0, again[0].YesPool)
}

func TestPoolSnapshotStore_MaxMarketsEvictsLeastRecent(t *testing.T) {
	clock := &fakeClock{now: 1}
	store := newTestStore(clock, WithMaxMarkets(2))

	store.Ingest("A", 1, 1)
	store.Ingest("B", 1, 1)
	store.Ingest("A", 1, 1) // A is now most recent
	store.Ingest("C", 1, 1) // evicts B

	assert.Equal(t, []string{"A", "C"}, store.Markets())
	assert.Empty(t, store.Query("B", domain.TimeframeAll))

	stats := store.Stats()
	assert.Equal(t, 2, stats.Markets)
	assert.Equal(t, 3, stats.Snapshots)
	assert.Equal(t, DefaultHistoryCap, stats.Cap)
}

func TestPoolSnapshotStore_ConcurrentIngest(t *testing.T) {
	store := NewPoolSnapshotStore(WithHistoryCap(1000))

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				store.Ingest("M1", 1, 1)
				_ = store.Query("M1", domain.Timeframe1H)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 400, store.Len("M1"))
}

func timestamps(snaps []domain.Snapshot) []int64 {
	out := make([]int64, len(snaps))
	for i, s := range snaps {
		out[i] = s.TimestampMs
	}
	return out
}
