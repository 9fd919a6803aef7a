// Package httpapi serves markets, pool charts and service status over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"foundersnet-telemetry/internal/chart"
	"foundersnet-telemetry/internal/domain"
	"foundersnet-telemetry/internal/logging"
	"foundersnet-telemetry/internal/markets"
	"foundersnet-telemetry/internal/observability"
	"foundersnet-telemetry/internal/program"
	"foundersnet-telemetry/internal/storage"
)

// MarketService is the part of the query layer the API reads from.
type MarketService interface {
	Get(ctx context.Context) markets.Result
	Market(ctx context.Context, id string) (domain.Market, error)
}

// ChartService builds chart series for a market.
type ChartService interface {
	Series(m domain.Market, tf domain.Timeframe) chart.Series
}

// StatsProvider reports telemetry store size.
type StatsProvider interface {
	Stats() storage.SnapshotStats
}

// SlotReader reports the slot of the RPC node.
type SlotReader interface {
	Slot(ctx context.Context) (int64, error)
}

var (
	_ MarketService = (*markets.Query)(nil)
	_ ChartService  = (*chart.Presenter)(nil)
	_ SlotReader    = (*program.Client)(nil)
)

// slotTimeout bounds the slot lookup of /status.
const slotTimeout = 3 * time.Second

// Options contains configuration for creating a Server.
type Options struct {
	Markets MarketService
	Charts  ChartService
	Stats   StatsProvider // optional
	Chain   SlotReader    // optional

	Cluster     string
	ProgramID   string
	CORSOrigins []string
	Logger      *logrus.Entry
	Now         func() time.Time
}

// Server holds the HTTP handlers.
type Server struct {
	markets   MarketService
	charts    ChartService
	stats     StatsProvider
	chain     SlotReader
	cluster   string
	programID string
	cors      []string
	logger    *logrus.Entry
	now       func() time.Time
	started   time.Time
}

// NewServer creates the API server.
func NewServer(opts Options) *Server {
	s := &Server{
		markets:   opts.Markets,
		charts:    opts.Charts,
		stats:     opts.Stats,
		chain:     opts.Chain,
		cluster:   opts.Cluster,
		programID: opts.ProgramID,
		cors:      opts.CORSOrigins,
		logger:    opts.Logger,
		now:       opts.Now,
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.started = s.now()
	return s
}

// Handler returns the routed handler with logging and CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("GET /metrics", observability.Handler())

	mux.HandleFunc("GET /api/timeframes", s.handleTimeframes)
	mux.HandleFunc("GET /api/markets", s.handleListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", s.handleGetMarket)
	mux.HandleFunc("GET /api/markets/{id}/chart", s.handleChart)

	var h http.Handler = mux
	h = logRequests(s.logger)(h)
	h = cors(s.cors)(h)
	return h
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
}

// StatusResponse is the JSON body of /status.
type StatusResponse struct {
	Status         string                 `json:"status"`
	Uptime         string                 `json:"uptime"`
	Started        time.Time              `json:"started"`
	Cluster        string                 `json:"cluster"`
	ProgramID      string                 `json:"program_id"`
	MarketsLoaded  int                    `json:"markets_loaded"`
	MarketsLoading bool                   `json:"markets_loading"`
	LastFetch      *time.Time             `json:"last_fetch,omitempty"`
	Slot           *int64                 `json:"slot,omitempty"`
	Telemetry      *storage.SnapshotStats `json:"telemetry,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	res := s.listMarkets(r.Context())

	resp := StatusResponse{
		Status:         "running",
		Uptime:         s.now().Sub(s.started).Round(time.Second).String(),
		Started:        s.started,
		Cluster:        s.cluster,
		ProgramID:      s.programID,
		MarketsLoaded:  len(res.Data),
		MarketsLoading: res.IsLoading,
	}
	if !res.UpdatedAt.IsZero() {
		updated := res.UpdatedAt
		resp.LastFetch = &updated
	}
	if s.stats != nil {
		stats := s.stats.Stats()
		resp.Telemetry = &stats
	}
	if s.chain != nil {
		ctx, cancel := context.WithTimeout(r.Context(), slotTimeout)
		slot, err := s.chain.Slot(ctx)
		cancel()
		if err != nil {
			s.logger.WithError(err).Warn("status: slot unavailable")
		} else {
			resp.Slot = &slot
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTimeframes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"timeframes": chart.Timeframes(),
		"default":    domain.DefaultTimeframe,
	})
}

// listMarketsResponse wraps the list endpoint output.
type listMarketsResponse struct {
	Markets   []domain.Market `json:"markets"`
	IsLoading bool            `json:"is_loading"`
	UpdatedAt *time.Time      `json:"updated_at,omitempty"`
}

// handleListMarkets returns the current market set. Collaborator failures
// surface as an empty list, never as an error status.
// GET /api/markets
func (s *Server) handleListMarkets(w http.ResponseWriter, r *http.Request) {
	res := s.listMarkets(r.Context())
	if res.Error != nil {
		s.logger.WithError(res.Error).Debug("market list request ended early")
	}

	resp := listMarketsResponse{
		Markets:   res.Data,
		IsLoading: res.IsLoading,
	}
	if resp.Markets == nil {
		resp.Markets = []domain.Market{}
	}
	if !res.UpdatedAt.IsZero() {
		updated := res.UpdatedAt
		resp.UpdatedAt = &updated
	}

	writeJSON(w, http.StatusOK, resp)
}

// GET /api/markets/{id}
func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lookupMarket(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// handleChart returns the pool series for a market.
// GET /api/markets/{id}/chart?timeframe=24h
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	tf, err := domain.ParseTimeframe(r.URL.Query().Get("timeframe"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	m, ok := s.lookupMarket(w, r)
	if !ok {
		return
	}

	if s.charts == nil {
		writeError(w, http.StatusServiceUnavailable, "charts unavailable")
		return
	}

	series := s.charts.Series(m, tf)
	observability.RecordChartRequest(tf.String(), series.Fallback)
	writeJSON(w, http.StatusOK, series)
}

func (s *Server) listMarkets(ctx context.Context) markets.Result {
	if s.markets == nil {
		return markets.Result{}
	}
	return s.markets.Get(ctx)
}

// lookupMarket resolves the {id} path value, writing the error response
// itself when the market cannot be returned.
func (s *Server) lookupMarket(w http.ResponseWriter, r *http.Request) (domain.Market, bool) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return domain.Market{}, false
	}
	if s.markets == nil {
		writeError(w, http.StatusNotFound, "market not found")
		return domain.Market{}, false
	}

	m, err := s.markets.Market(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return domain.Market{}, false
		}
		s.logger.WithError(err).WithField("market_id", id).Error("get market failed")
		writeError(w, http.StatusInternalServerError, "failed to get market")
		return domain.Market{}, false
	}
	return m, true
}
