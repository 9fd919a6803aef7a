package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"foundersnet-telemetry/internal/domain"
	"foundersnet-telemetry/internal/logging"
	"foundersnet-telemetry/internal/normalization"
	"foundersnet-telemetry/internal/observability"
	"foundersnet-telemetry/internal/storage"
)

// DefaultHistoryCap is the maximum number of snapshots kept per market.
const DefaultHistoryCap = 100

// PoolSnapshotStore is an in-memory implementation of storage.PoolSnapshotStore.
// Each market keeps a FIFO history bounded by the history cap.
type PoolSnapshotStore struct {
	mu         sync.RWMutex
	histories  map[string]*poolHistory // keyed by market public key
	historyCap int
	maxMarkets int    // 0 = unlimited
	seq        uint64 // ingest sequence, orders markets by recency
	total      int    // snapshots across all histories

	now    func() time.Time
	logger *logrus.Entry
}

// poolHistory is the bounded snapshot sequence for one market.
type poolHistory struct {
	snapshots  []domain.Snapshot
	lastIngest uint64
}

// PoolStoreOption configures PoolSnapshotStore.
type PoolStoreOption func(*PoolSnapshotStore)

// WithHistoryCap sets the per-market history cap. Values < 1 are ignored.
func WithHistoryCap(n int) PoolStoreOption {
	return func(s *PoolSnapshotStore) {
		if n > 0 {
			s.historyCap = n
		}
	}
}

// WithMaxMarkets bounds the number of tracked markets. When exceeded, the
// history of the least recently ingested market is dropped. 0 disables it.
func WithMaxMarkets(n int) PoolStoreOption {
	return func(s *PoolSnapshotStore) {
		if n >= 0 {
			s.maxMarkets = n
		}
	}
}

// WithClock sets a custom clock function for deterministic timestamps.
func WithClock(now func() time.Time) PoolStoreOption {
	return func(s *PoolSnapshotStore) {
		s.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logrus.Entry) PoolStoreOption {
	return func(s *PoolSnapshotStore) {
		s.logger = logger
	}
}

// NewPoolSnapshotStore creates a new in-memory pool snapshot store.
func NewPoolSnapshotStore(opts ...PoolStoreOption) *PoolSnapshotStore {
	s := &PoolSnapshotStore{
		histories:  make(map[string]*poolHistory),
		historyCap: DefaultHistoryCap,
		now:        time.Now,
		logger:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest appends a snapshot of the given pools to the market's history,
// dropping the oldest entry once the cap is exceeded.
func (s *PoolSnapshotStore) Ingest(marketID string, yesPoolLamports, noPoolLamports uint64) {
	snap := domain.NewSnapshot(
		s.now().UnixMilli(),
		normalization.LamportsToSol(yesPoolLamports),
		normalization.LamportsToSol(noPoolLamports),
	)

	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.histories[marketID]
	if !ok {
		if s.maxMarkets > 0 && len(s.histories) >= s.maxMarkets {
			s.evictLeastRecentLocked()
		}
		h = &poolHistory{snapshots: make([]domain.Snapshot, 0, s.historyCap)}
		s.histories[marketID] = h
	}

	// Insertion order is the contract; timestamps are not re-sorted.
	if n := len(h.snapshots); n > 0 && snap.TimestampMs < h.snapshots[n-1].TimestampMs {
		observability.RecordOutOfOrderSnapshot()
		s.logger.WithFields(logrus.Fields{
			"market":    marketID,
			"timestamp": snap.TimestampMs,
			"previous":  h.snapshots[n-1].TimestampMs,
		}).Debug("out-of-order snapshot")
	}

	h.snapshots = append(h.snapshots, snap)
	s.total++

	evicted := false
	if len(h.snapshots) > s.historyCap {
		drop := len(h.snapshots) - s.historyCap
		n := copy(h.snapshots, h.snapshots[drop:])
		h.snapshots = h.snapshots[:n]
		s.total -= drop
		evicted = true
	}

	s.seq++
	h.lastIngest = s.seq

	observability.RecordSnapshotIngested(evicted)
	observability.UpdateTelemetrySize(len(s.histories), s.total)
}

// evictLeastRecentLocked drops the history ingested into least recently.
// Caller must hold s.mu.
func (s *PoolSnapshotStore) evictLeastRecentLocked() {
	var (
		victim string
		oldest uint64
		found  bool
	)
	for id, h := range s.histories {
		if !found || h.lastIngest < oldest {
			victim, oldest, found = id, h.lastIngest, true
		}
	}
	if !found {
		return
	}

	s.total -= len(s.histories[victim].snapshots)
	delete(s.histories, victim)
	observability.RecordMarketEvicted()
	s.logger.WithField("market", victim).Debug("evicted market history")
}

// Query returns the market's snapshots within the timeframe, in insertion order.
// An unrecognized timeframe behaves like TimeframeAll.
func (s *PoolSnapshotStore) Query(marketID string, tf domain.Timeframe) []domain.Snapshot {
	cutoff := tf.Cutoff(s.now().UnixMilli())

	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.histories[marketID]
	if !ok {
		return []domain.Snapshot{}
	}

	result := make([]domain.Snapshot, 0, len(h.snapshots))
	for _, snap := range h.snapshots {
		if snap.TimestampMs >= cutoff {
			result = append(result, snap)
		}
	}
	return result
}

// Len returns the number of snapshots stored for a market.
func (s *PoolSnapshotStore) Len(marketID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if h, ok := s.histories[marketID]; ok {
		return len(h.snapshots)
	}
	return 0
}

// Markets returns the IDs of all markets with a history, sorted.
func (s *PoolSnapshotStore) Markets() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.histories))
	for id := range s.histories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Stats returns store size counters.
func (s *PoolSnapshotStore) Stats() storage.SnapshotStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return storage.SnapshotStats{
		Markets:   len(s.histories),
		Snapshots: s.total,
		Cap:       s.historyCap,
	}
}

var _ storage.PoolSnapshotStore = (*PoolSnapshotStore)(nil)
