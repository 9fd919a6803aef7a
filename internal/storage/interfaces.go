package storage

import "foundersnet-telemetry/internal/domain"

// PoolSnapshotStore records pool snapshots per market and answers
// timeframe queries over each market's bounded history.
type PoolSnapshotStore interface {
	// Ingest converts the raw lamport pools to SOL and appends a snapshot
	// stamped with the current time. It never fails and never deduplicates.
	Ingest(marketID string, yesPoolLamports, noPoolLamports uint64)

	// Query returns, in insertion order, the market's snapshots with
	// timestamp >= now - window(tf). Unknown markets yield an empty slice.
	Query(marketID string, tf domain.Timeframe) []domain.Snapshot

	// Len returns the number of snapshots held for a market. Zero after
	// the market has been evicted.
	Len(marketID string) int
}

// SnapshotStats summarizes the contents of a PoolSnapshotStore.
type SnapshotStats struct {
	Markets   int `json:"markets"`   // markets with a history
	Snapshots int `json:"snapshots"` // snapshots across all histories
	Cap       int `json:"cap"`       // per-market history cap
}
