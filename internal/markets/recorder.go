package markets

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"foundersnet-telemetry/internal/logging"
	"foundersnet-telemetry/internal/storage"
)

// ResultSource publishes committed query results.
type ResultSource interface {
	Subscribe() (<-chan Result, func())
}

var _ ResultSource = (*Query)(nil)

// Recorder ingests a pool snapshot for each market on every committed
// query result.
type Recorder struct {
	source        ResultSource
	store         storage.PoolSnapshotStore
	skipUnchanged bool
	logger        *logrus.Entry

	last map[string]pools // only used with skipUnchanged

	subOnce     sync.Once
	results     <-chan Result
	unsubscribe func()
}

type pools struct {
	yes, no uint64
}

// RecorderOptions contains configuration for creating a Recorder.
type RecorderOptions struct {
	Source ResultSource
	Store  storage.PoolSnapshotStore
	// SkipUnchanged suppresses ingestion when a market's pools equal the
	// previously ingested values.
	SkipUnchanged bool
	Logger        *logrus.Entry
}

// NewRecorder creates a recorder.
func NewRecorder(opts RecorderOptions) *Recorder {
	r := &Recorder{
		source:        opts.Source,
		store:         opts.Store,
		skipUnchanged: opts.SkipUnchanged,
		logger:        opts.Logger,
		last:          make(map[string]pools),
	}
	if r.logger == nil {
		r.logger = logging.Discard()
	}
	return r
}

// Record ingests every market in res. Returns the number of snapshots written.
func (r *Recorder) Record(res Result) int {
	ingested := 0
	for _, m := range res.Data {
		p := pools{yes: m.YesPool, no: m.NoPool}
		if r.skipUnchanged {
			// An evicted market has no history left, so it is ingested
			// again even when its pools did not move.
			if prev, ok := r.last[m.PublicKey]; ok && prev == p && r.store.Len(m.PublicKey) > 0 {
				continue
			}
			r.last[m.PublicKey] = p
		}
		r.store.Ingest(m.PublicKey, m.YesPool, m.NoPool)
		ingested++
	}
	return ingested
}

// Subscribe registers with the source. Call it before the source starts
// publishing so Run sees the first result; Run subscribes on its own
// otherwise. Safe to call more than once.
func (r *Recorder) Subscribe() {
	r.subOnce.Do(func() {
		if r.source != nil {
			r.results, r.unsubscribe = r.source.Subscribe()
		}
	})
}

// Run records results until ctx is cancelled or the source closes.
func (r *Recorder) Run(ctx context.Context) error {
	if r.source == nil || r.store == nil {
		return nil
	}

	r.Subscribe()
	defer r.unsubscribe()
	ch := r.results

	for {
		select {
		case <-ctx.Done():
			return nil
		case res, ok := <-ch:
			if !ok {
				return nil
			}
			n := r.Record(res)
			r.logger.WithFields(logrus.Fields{
				"markets":  len(res.Data),
				"ingested": n,
			}).Debug("recorded pool snapshots")
		}
	}
}
