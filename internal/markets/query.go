// Package markets keeps a cached, auto-refreshing view of all market accounts.
package markets

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"foundersnet-telemetry/internal/domain"
	"foundersnet-telemetry/internal/logging"
	"foundersnet-telemetry/internal/observability"
	"foundersnet-telemetry/internal/program"
	"foundersnet-telemetry/internal/solana"
)

// Default refresh configuration.
const (
	DefaultStaleTime       = 5 * time.Second
	DefaultRefetchInterval = 10 * time.Second
	DefaultFetchTimeout    = 30 * time.Second
)

// fetchKey identifies the single logical query served by Query.
const fetchKey = "markets:all"

// MarketReader is the bulk account read the query layer depends on.
type MarketReader interface {
	AllMarkets(ctx context.Context) ([]program.RawMarket, error)
}

// MarketFetcher reads a single market account. Readers that implement it
// let Market resolve accounts created since the last refresh.
type MarketFetcher interface {
	FetchMarket(ctx context.Context, pubkey string) (program.RawMarket, error)
}

var (
	_ MarketReader  = (*program.Client)(nil)
	_ MarketFetcher = (*program.Client)(nil)
)

// Options configures Query.
type Options struct {
	// Reader is the program client. nil disables fetching entirely.
	Reader MarketReader
	// StaleTime is how long a committed result is served without refetching.
	StaleTime time.Duration
	// RefetchInterval is the period of the background refresh in Run.
	RefetchInterval time.Duration
	// FetchTimeout bounds a single bulk read.
	FetchTimeout time.Duration
	Logger       *logrus.Entry
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// Result is the observable state of the query.
type Result struct {
	Data      []domain.Market `json:"markets"`
	IsLoading bool            `json:"is_loading"`
	// Error is set only when the caller's own context ended before a
	// result was available. Collaborator failures yield empty Data instead.
	Error     error     `json:"-"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Query fetches every market account and shares the result among callers.
// Concurrent refreshes are coalesced; out-of-order completions are
// resolved by request generation, so the most recently issued fetch wins.
type Query struct {
	reader          MarketReader
	staleTime       time.Duration
	refetchInterval time.Duration
	fetchTimeout    time.Duration
	logger          *logrus.Entry
	now             func() time.Time

	group      singleflight.Group
	generation atomic.Uint64 // last issued fetch token

	mu           sync.RWMutex
	result       Result
	committedGen uint64 // token of the committed result
	staleBefore  uint64 // results with token <= staleBefore are stale
	loaded       bool

	wake chan struct{}

	subsMu  sync.Mutex
	subs    map[int]chan Result
	nextSub int
}

// NewQuery creates a query layer. Zero durations take the defaults.
func NewQuery(opts Options) *Query {
	q := &Query{
		reader:          opts.Reader,
		staleTime:       opts.StaleTime,
		refetchInterval: opts.RefetchInterval,
		fetchTimeout:    opts.FetchTimeout,
		logger:          opts.Logger,
		now:             opts.Now,
		wake:            make(chan struct{}, 1),
		subs:            make(map[int]chan Result),
	}
	if q.staleTime <= 0 {
		q.staleTime = DefaultStaleTime
	}
	if q.refetchInterval <= 0 {
		q.refetchInterval = DefaultRefetchInterval
	}
	if q.fetchTimeout <= 0 {
		q.fetchTimeout = DefaultFetchTimeout
	}
	if q.logger == nil {
		q.logger = logging.Discard()
	}
	if q.now == nil {
		q.now = time.Now
	}
	q.result.IsLoading = q.Enabled()
	return q
}

// Enabled reports whether a program client is configured.
func (q *Query) Enabled() bool {
	return q.reader != nil
}

// FetchAll reads and normalizes every market account. Read failures are
// logged and produce an empty slice. Returns nil when disabled.
func (q *Query) FetchAll(ctx context.Context) []domain.Market {
	if !q.Enabled() {
		return nil
	}

	start := q.now()
	raw, err := q.reader.AllMarkets(ctx)
	elapsed := q.now().Sub(start).Seconds()
	if err != nil {
		observability.RecordMarketFetch("error", elapsed, 0)
		q.logger.WithError(err).Error("failed to fetch markets")
		return []domain.Market{}
	}

	markets := make([]domain.Market, 0, len(raw))
	for _, r := range raw {
		markets = append(markets, toDomain(r, q.logger))
	}

	observability.RecordMarketFetch("success", elapsed, len(markets))
	observability.UpdateLastSuccessfulFetch(q.now().Unix())
	return markets
}

// Current returns the latest committed result without triggering a fetch.
func (q *Query) Current() Result {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.copyResultLocked()
}

// Get returns the cached result while it is fresh and refreshes otherwise.
// When disabled it returns an empty, non-loading result without I/O.
func (q *Query) Get(ctx context.Context) Result {
	if !q.Enabled() {
		return Result{}
	}
	if r, fresh := q.fresh(); fresh {
		return r
	}
	return q.Refresh(ctx)
}

// Refresh forces a fetch, joining one already in flight.
func (q *Query) Refresh(ctx context.Context) Result {
	if !q.Enabled() {
		return Result{}
	}

	// The token is taken at request time. Only the leader's closure runs,
	// so tokens of callers that join a flight go unused.
	gen := q.generation.Add(1)
	ch := q.group.DoChan(fetchKey, func() (interface{}, error) {
		// The fetch is shared, so one caller's cancellation must not abort it.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), q.fetchTimeout)
		defer cancel()

		markets := q.FetchAll(fetchCtx)
		q.commit(gen, markets)
		return nil, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			observability.RecordCoalescedRequest()
		}
		return q.Current()
	case <-ctx.Done():
		r := q.Current()
		r.Error = fmt.Errorf("wait for markets: %w", ctx.Err())
		return r
	}
}

// Invalidate marks the cached result stale and wakes Run for an immediate
// refresh. A fetch already in flight is not joined by later callers, and
// its result loses to the fetch issued after the invalidation.
func (q *Query) Invalidate() {
	q.mu.Lock()
	q.staleBefore = q.generation.Load()
	q.mu.Unlock()

	q.group.Forget(fetchKey)

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Market returns one market from the current result. Ids missing from it
// are read directly from chain when the reader supports single reads.
func (q *Query) Market(ctx context.Context, id string) (domain.Market, error) {
	r := q.Get(ctx)
	for _, m := range r.Data {
		if m.PublicKey == id {
			return m, nil
		}
	}

	fetcher, ok := q.reader.(MarketFetcher)
	if !ok {
		return domain.Market{}, fmt.Errorf("market %s: %w", id, domain.ErrNotFound)
	}
	if _, err := solana.ParsePublicKey(id); err != nil {
		return domain.Market{}, fmt.Errorf("market %s: %w", id, domain.ErrNotFound)
	}

	raw, err := fetcher.FetchMarket(ctx, id)
	if err != nil {
		return domain.Market{}, err
	}
	q.Invalidate()
	return toDomain(raw, q.logger), nil
}

// Subscribe registers an observer of committed results. The channel holds
// only the latest result; a slow observer misses intermediate ones but
// never blocks the refresher. The returned func unsubscribes and closes
// the channel.
func (q *Query) Subscribe() (<-chan Result, func()) {
	ch := make(chan Result, 1)

	q.subsMu.Lock()
	id := q.nextSub
	q.nextSub++
	q.subs[id] = ch
	q.subsMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			q.subsMu.Lock()
			delete(q.subs, id)
			q.subsMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Run fetches immediately, then every RefetchInterval and on Invalidate,
// until ctx is cancelled. Returns at once if disabled.
func (q *Query) Run(ctx context.Context) error {
	if !q.Enabled() {
		q.logger.Info("market query disabled: no program client configured")
		return nil
	}

	q.logger.WithFields(logrus.Fields{
		"stale_time":       q.staleTime.String(),
		"refetch_interval": q.refetchInterval.String(),
	}).Info("market query started")

	q.Refresh(ctx)

	ticker := time.NewTicker(q.refetchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			q.Refresh(ctx)
		case <-q.wake:
			q.Refresh(ctx)
		}
	}
}

// fresh returns the committed result and whether it can be served as is.
func (q *Query) fresh() (Result, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if !q.loaded || q.committedGen <= q.staleBefore {
		return Result{}, false
	}
	if q.now().Sub(q.result.UpdatedAt) >= q.staleTime {
		return Result{}, false
	}
	return q.copyResultLocked(), true
}

// commit stores markets fetched under token gen unless a newer fetch has
// already committed, then notifies observers.
func (q *Query) commit(gen uint64, markets []domain.Market) bool {
	q.mu.Lock()
	if gen <= q.committedGen {
		q.mu.Unlock()
		observability.RecordStaleResultDropped()
		q.logger.WithFields(logrus.Fields{
			"generation": gen,
			"committed":  q.committedGen,
		}).Debug("dropping superseded market fetch")
		return false
	}

	q.committedGen = gen
	q.loaded = true
	q.result = Result{
		Data:      markets,
		IsLoading: false,
		UpdatedAt: q.now(),
	}
	// Publishing under mu keeps observer order equal to commit order.
	q.publish(q.copyResultLocked())
	q.mu.Unlock()
	return true
}

// publish hands r to every observer. Callers hold mu; lock order is
// mu then subsMu.
func (q *Query) publish(r Result) {
	q.subsMu.Lock()
	defer q.subsMu.Unlock()

	for _, ch := range q.subs {
		// Replace any unread result with the newer one.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- r:
		default:
		}
	}
}

func (q *Query) copyResultLocked() Result {
	r := q.result
	if r.Data != nil {
		r.Data = make([]domain.Market, len(q.result.Data))
		copy(r.Data, q.result.Data)
	}
	return r
}
