package markets

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foundersnet-telemetry/internal/domain"
	"foundersnet-telemetry/internal/program"
	"foundersnet-telemetry/internal/storage/memory"
)

func marketResult(markets ...domain.Market) Result {
	return Result{Data: markets}
}

func TestRecorder_RecordIngestsEveryMarket(t *testing.T) {
	store := memory.NewPoolSnapshotStore()
	rec := NewRecorder(RecorderOptions{Store: store})

	res := marketResult(
		domain.Market{PublicKey: "M1", YesPool: 1_000_000_000, NoPool: 0},
		domain.Market{PublicKey: "M2", YesPool: 0, NoPool: 3_000_000_000},
	)

	assert.Equal(t, 2, rec.Record(res))
	assert.Equal(t, 2, rec.Record(res), "identical results still ingest by default")

	assert.Equal(t, 2, store.Len("M1"))
	snaps := store.Query("M2", domain.TimeframeAll)
	require.Len(t, snaps, 2)
	assert.Equal(t, 3.0, snaps[0].NoPool)
	assert.Equal(t, 3.0, snaps[0].TotalPool)
}

func TestRecorder_SkipUnchanged(t *testing.T) {
	store := memory.NewPoolSnapshotStore()
	rec := NewRecorder(RecorderOptions{Store: store, SkipUnchanged: true})

	first := marketResult(domain.Market{PublicKey: "M1", YesPool: 1, NoPool: 1})
	changed := marketResult(domain.Market{PublicKey: "M1", YesPool: 2, NoPool: 1})

	assert.Equal(t, 1, rec.Record(first))
	assert.Equal(t, 0, rec.Record(first))
	assert.Equal(t, 1, rec.Record(changed))
	assert.Equal(t, 2, store.Len("M1"))
}

func TestRecorder_SkipUnchanged_ReingestsEvictedMarket(t *testing.T) {
	store := memory.NewPoolSnapshotStore(memory.WithMaxMarkets(1))
	rec := NewRecorder(RecorderOptions{Store: store, SkipUnchanged: true})

	a := domain.Market{PublicKey: "A", YesPool: 1, NoPool: 1}
	b := domain.Market{PublicKey: "B", YesPool: 2, NoPool: 2}

	// B evicts A. A's pools are unchanged in the next result, but its
	// history is gone, so it is written again.
	assert.Equal(t, 2, rec.Record(marketResult(a, b)))
	assert.Equal(t, 0, store.Len("A"))

	assert.Equal(t, 1, rec.Record(marketResult(a)), "evicted market must be re-ingested")
	assert.Equal(t, 1, store.Len("A"))

	// Still held, so the unchanged pools are skipped again.
	assert.Equal(t, 0, rec.Record(marketResult(a)))
}

// staticSource hands out a pre-filled channel.
type staticSource struct {
	ch chan Result
}

func (s *staticSource) Subscribe() (<-chan Result, func()) {
	return s.ch, func() {}
}

func TestRecorder_Run(t *testing.T) {
	store := memory.NewPoolSnapshotStore()
	src := &staticSource{ch: make(chan Result, 2)}
	src.ch <- marketResult(domain.Market{PublicKey: "M1", YesPool: 1, NoPool: 1})
	src.ch <- marketResult(domain.Market{PublicKey: "M1", YesPool: 2, NoPool: 1})
	close(src.ch)

	rec := NewRecorder(RecorderOptions{Source: src, Store: store})
	require.NoError(t, rec.Run(context.Background()))

	assert.Equal(t, 2, store.Len("M1"))
}

func TestRecorder_RunWithQuery(t *testing.T) {
	store := memory.NewPoolSnapshotStore()
	reader := newFakeReader(response{markets: []program.RawMarket{raw("M1", 5_000_000_000, 0)}})
	q := NewQuery(Options{Reader: reader})
	rec := NewRecorder(RecorderOptions{Source: q, Store: store})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rec.Run(ctx)

	require.Eventually(t, func() bool {
		q.Refresh(ctx)
		return store.Len("M1") > 0
	}, 2*time.Second, 10*time.Millisecond)

	snaps := store.Query("M1", domain.TimeframeAll)
	assert.Equal(t, 5.0, snaps[0].YesPool)
}

func TestRecorder_SubscribeBeforeRun(t *testing.T) {
	store := memory.NewPoolSnapshotStore()
	reader := newFakeReader(response{markets: []program.RawMarket{raw("M1", 1_000_000_000, 0)}})
	q := NewQuery(Options{Reader: reader})
	rec := NewRecorder(RecorderOptions{Source: q, Store: store})

	rec.Subscribe()
	rec.Subscribe() // idempotent

	// Committed before Run starts.
	q.Refresh(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rec.Run(ctx)

	require.Eventually(t, func() bool {
		return store.Len("M1") == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, reader.Calls())
}

func TestRecorder_NilStoreIsNoop(t *testing.T) {
	rec := NewRecorder(RecorderOptions{Source: &staticSource{ch: make(chan Result)}})
	assert.NoError(t, rec.Run(context.Background()))
}
