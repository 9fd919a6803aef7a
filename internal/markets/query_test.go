package markets

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foundersnet-telemetry/internal/domain"
	"foundersnet-telemetry/internal/program"
	"foundersnet-telemetry/internal/solana"
)

// response is one scripted AllMarkets reply. A non-nil gate blocks the
// call until closed.
type response struct {
	markets []program.RawMarket
	err     error
	gate    chan struct{}
}

// fakeReader replays responses in call order, repeating the last one.
type fakeReader struct {
	mu        sync.Mutex
	responses []response
	calls     int
	started   chan int // receives the call number when a call begins
}

func newFakeReader(responses ...response) *fakeReader {
	return &fakeReader{responses: responses, started: make(chan int, 16)}
}

func (f *fakeReader) AllMarkets(ctx context.Context) ([]program.RawMarket, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	resp := f.responses[len(f.responses)-1]
	if n <= len(f.responses) {
		resp = f.responses[n-1]
	}
	f.mu.Unlock()

	select {
	case f.started <- n:
	default:
	}

	if resp.gate != nil {
		select {
		case <-resp.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return resp.markets, resp.err
}

func (f *fakeReader) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func raw(pubkey string, yes, no uint64) program.RawMarket {
	return program.RawMarket{
		PublicKey: pubkey,
		Title:     "market " + pubkey,
		YesPool:   yes,
		NoPool:    no,
	}
}

func TestQuery_FetchAll_Normalizes(t *testing.T) {
	outcome := uint8(2)
	unknownOutcome := uint8(9)
	reader := newFakeReader(response{markets: []program.RawMarket{
		{PublicKey: "resolved", Status: 1, Outcome: &outcome, EventType: 3, YesPool: 10},
		{PublicKey: "weird", Status: 7, Outcome: &unknownOutcome, EventType: 99},
	}})
	q := NewQuery(Options{Reader: reader})

	markets := q.FetchAll(context.Background())
	require.Len(t, markets, 2)

	resolved := markets[0]
	assert.Equal(t, domain.StatusResolved, resolved.Status)
	require.NotNil(t, resolved.Outcome)
	assert.Equal(t, domain.OutcomeInvalid, *resolved.Outcome)
	require.NotNil(t, resolved.EventType)
	assert.Equal(t, domain.EventTypeIPO, *resolved.EventType)
	assert.Equal(t, uint64(10), resolved.YesPool)

	weird := markets[1]
	assert.Equal(t, domain.StatusOpen, weird.Status)
	assert.Nil(t, weird.Outcome)
	assert.Nil(t, weird.EventType)
}

func TestQuery_FetchAll_FailureYieldsEmpty(t *testing.T) {
	reader := newFakeReader(response{err: errors.New("rpc unavailable")})
	q := NewQuery(Options{Reader: reader})

	markets := q.FetchAll(context.Background())
	assert.NotNil(t, markets)
	assert.Empty(t, markets)

	r := q.Get(context.Background())
	assert.NoError(t, r.Error)
	assert.NotNil(t, r.Data)
	assert.Empty(t, r.Data)
	assert.False(t, r.IsLoading)
}

func TestQuery_Disabled(t *testing.T) {
	q := NewQuery(Options{})

	assert.False(t, q.Enabled())
	assert.Nil(t, q.FetchAll(context.Background()))

	r := q.Get(context.Background())
	assert.Nil(t, r.Data)
	assert.False(t, r.IsLoading)
	assert.False(t, q.Current().IsLoading)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, q.Run(ctx))
	assert.NoError(t, ctx.Err(), "Run should return immediately when disabled")
}

func TestQuery_LoadingBeforeFirstResult(t *testing.T) {
	q := NewQuery(Options{Reader: newFakeReader(response{})})
	assert.True(t, q.Current().IsLoading)
}

func TestQuery_CoalescesConcurrentRequests(t *testing.T) {
	gate := make(chan struct{})
	reader := newFakeReader(response{markets: []program.RawMarket{raw("M1", 1, 2)}, gate: gate})
	q := NewQuery(Options{Reader: reader})

	var wg sync.WaitGroup
	results := make([]Result, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = q.Get(context.Background())
		}(i)
	}

	<-reader.started
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, 1, reader.Calls())
	for _, r := range results {
		require.Len(t, r.Data, 1)
		assert.Equal(t, "M1", r.Data[0].PublicKey)
	}
}

func TestQuery_ServesFreshResultUntilStale(t *testing.T) {
	clock := newFakeClock()
	reader := newFakeReader(response{markets: []program.RawMarket{raw("M1", 1, 2)}})
	q := NewQuery(Options{Reader: reader, StaleTime: 5 * time.Second, Now: clock.Now})
	ctx := context.Background()

	q.Get(ctx)
	clock.Advance(4 * time.Second)
	q.Get(ctx)
	assert.Equal(t, 1, reader.Calls())

	clock.Advance(time.Second)
	q.Get(ctx)
	assert.Equal(t, 2, reader.Calls())
}

func TestQuery_InvalidateForcesRefetch(t *testing.T) {
	reader := newFakeReader(response{markets: []program.RawMarket{raw("M1", 1, 2)}})
	q := NewQuery(Options{Reader: reader, StaleTime: time.Hour})
	ctx := context.Background()

	q.Get(ctx)
	q.Get(ctx)
	assert.Equal(t, 1, reader.Calls())

	q.Invalidate()
	q.Get(ctx)
	assert.Equal(t, 2, reader.Calls())
}

func TestQuery_LastIssuedFetchWins(t *testing.T) {
	slow := make(chan struct{})
	reader := newFakeReader(
		response{markets: []program.RawMarket{raw("old", 1, 1)}, gate: slow},
		response{markets: []program.RawMarket{raw("new", 2, 2)}},
	)
	q := NewQuery(Options{Reader: reader})
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		q.Refresh(ctx)
	}()
	<-reader.started

	// A newer request is issued and resolves first.
	q.Invalidate()
	r := q.Refresh(ctx)
	require.Len(t, r.Data, 1)
	assert.Equal(t, "new", r.Data[0].PublicKey)

	// The older request resolves late and must be discarded.
	close(slow)
	<-done

	current := q.Current()
	require.Len(t, current.Data, 1)
	assert.Equal(t, "new", current.Data[0].PublicKey)
	assert.Equal(t, 2, reader.Calls())
}

func TestQuery_CallerCancellation(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	reader := newFakeReader(response{gate: gate})
	q := NewQuery(Options{Reader: reader})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-reader.started
		cancel()
	}()

	r := q.Get(ctx)
	assert.ErrorIs(t, r.Error, context.Canceled)
	assert.True(t, r.IsLoading)
}

func TestQuery_Subscribe_LatestWins(t *testing.T) {
	clock := newFakeClock()
	reader := newFakeReader(
		response{markets: []program.RawMarket{raw("M1", 1, 1)}},
		response{markets: []program.RawMarket{raw("M1", 5, 5)}},
	)
	q := NewQuery(Options{Reader: reader, Now: clock.Now})
	ctx := context.Background()

	ch, cancel := q.Subscribe()

	q.Refresh(ctx)
	clock.Advance(time.Second)
	q.Refresh(ctx)

	r := <-ch
	require.Len(t, r.Data, 1)
	assert.Equal(t, uint64(5), r.Data[0].YesPool)

	select {
	case <-ch:
		t.Fatal("expected only the latest result to be buffered")
	default:
	}

	cancel()
	cancel() // idempotent
	_, ok := <-ch
	assert.False(t, ok)
}

func TestQuery_Market(t *testing.T) {
	reader := newFakeReader(response{markets: []program.RawMarket{raw("M1", 1, 2), raw("M2", 3, 4)}})
	q := NewQuery(Options{Reader: reader})
	ctx := context.Background()

	m, err := q.Market(ctx, "M2")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), m.YesPool)

	_, err = q.Market(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestQuery_ResultIsCopied(t *testing.T) {
	reader := newFakeReader(response{markets: []program.RawMarket{raw("M1", 1, 2)}})
	q := NewQuery(Options{Reader: reader})

	r := q.Get(context.Background())
	r.Data[0].YesPool = 999

	assert.Equal(t, uint64(1), q.Current().Data[0].YesPool)
}

func TestQuery_Run(t *testing.T) {
	reader := newFakeReader(response{markets: []program.RawMarket{raw("M1", 1, 2)}})
	q := NewQuery(Options{Reader: reader, RefetchInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- q.Run(ctx) }()

	require.Eventually(t, func() bool { return reader.Calls() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-errCh)
}

func TestQuery_RunRefreshesOnInvalidate(t *testing.T) {
	reader := newFakeReader(response{markets: []program.RawMarket{raw("M1", 1, 2)}})
	q := NewQuery(Options{Reader: reader, RefetchInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	require.Eventually(t, func() bool { return reader.Calls() == 1 }, time.Second, 5*time.Millisecond)
	q.Invalidate()
	require.Eventually(t, func() bool { return reader.Calls() == 2 }, time.Second, 5*time.Millisecond)
}

func TestQuery_ObserversSeeCommitOrder(t *testing.T) {
	q := NewQuery(Options{Reader: newFakeReader(response{})})
	ch, cancel := q.Subscribe()
	defer cancel()

	var wg sync.WaitGroup
	for gen := uint64(1); gen <= 200; gen++ {
		wg.Add(1)
		go func(gen uint64) {
			defer wg.Done()
			q.commit(gen, []domain.Market{{PublicKey: fmt.Sprintf("gen-%d", gen)}})
		}(gen)
	}
	wg.Wait()

	// The single buffered slot holds the last published result, which
	// must be the committed one.
	got := <-ch
	assert.Equal(t, q.Current().Data, got.Data)
}

func TestQuery_TokenTakenPerRequest(t *testing.T) {
	gate := make(chan struct{})
	reader := newFakeReader(response{markets: []program.RawMarket{raw("M1", 1, 1)}, gate: gate})
	q := NewQuery(Options{Reader: reader})
	ctx := context.Background()

	done := make(chan struct{}, 2)
	go func() {
		q.Refresh(ctx)
		done <- struct{}{}
	}()
	<-reader.started
	assert.Equal(t, uint64(1), q.generation.Load())

	// A second request takes its token before it joins or starts a fetch,
	// while the first is still blocked.
	go func() {
		q.Refresh(ctx)
		done <- struct{}{}
	}()
	require.Eventually(t, func() bool {
		return q.generation.Load() == 2
	}, 2*time.Second, 5*time.Millisecond)

	close(gate)
	<-done
	<-done

	current := q.Current()
	require.Len(t, current.Data, 1)
	assert.Equal(t, "M1", current.Data[0].PublicKey)
}

// singleReader adds single-account reads to fakeReader.
type singleReader struct {
	*fakeReader
	mu       sync.Mutex
	accounts map[string]program.RawMarket
	err      error
	fetches  int
}

func (s *singleReader) FetchMarket(_ context.Context, pubkey string) (program.RawMarket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if s.err != nil {
		return program.RawMarket{}, s.err
	}
	m, ok := s.accounts[pubkey]
	if !ok {
		return program.RawMarket{}, fmt.Errorf("market %s: %w", pubkey, domain.ErrNotFound)
	}
	return m, nil
}

func (s *singleReader) Fetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

func TestQuery_Market_FetchesUncachedAccount(t *testing.T) {
	fresh := solana.PublicKey{7}.String()
	absent := solana.PublicKey{8}.String()

	reader := &singleReader{
		fakeReader: newFakeReader(response{markets: []program.RawMarket{raw("M1", 1, 2)}}),
		accounts: map[string]program.RawMarket{
			fresh: {PublicKey: fresh, Title: "created after refresh", YesPool: 9, Status: 1},
		},
	}
	q := NewQuery(Options{Reader: reader})
	ctx := context.Background()

	m, err := q.Market(ctx, "M1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), m.YesPool)
	assert.Equal(t, 0, reader.Fetches(), "cached markets need no single read")

	m, err = q.Market(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, "created after refresh", m.Title)
	assert.Equal(t, domain.StatusResolved, m.Status)

	_, err = q.Market(ctx, absent)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	before := reader.Fetches()
	_, err = q.Market(ctx, "not a pubkey")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, before, reader.Fetches(), "malformed ids never reach the chain")
}

func TestQuery_Market_FetchError(t *testing.T) {
	reader := &singleReader{
		fakeReader: newFakeReader(response{}),
		err:        errors.New("rpc down"),
	}
	q := NewQuery(Options{Reader: reader})

	_, err := q.Market(context.Background(), solana.PublicKey{7}.String())
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrNotFound))
}
