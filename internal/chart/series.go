// Package chart turns pool snapshot histories into display-ready series.
package chart

import (
	"strings"
	"time"

	"foundersnet-telemetry/internal/domain"
	"foundersnet-telemetry/internal/normalization"
	"foundersnet-telemetry/internal/storage"
)

// NowLabel labels the synthesized point shown when a market has no history.
const NowLabel = "Now"

// timeLabelLayout renders point times as hour:minute.
const timeLabelLayout = "15:04"

// Point is one chart sample.
type Point struct {
	TimestampMs int64   `json:"timestamp"`
	Time        string  `json:"time"`
	YesPool     float64 `json:"yes_pool"`
	NoPool      float64 `json:"no_pool"`
	TotalPool   float64 `json:"total_pool"`
	YesPct      float64 `json:"yes_pct"`
	NoPct       float64 `json:"no_pct"`
}

// Summary describes the market's current pools.
type Summary struct {
	YesPool      float64 `json:"yes_pool"`
	NoPool       float64 `json:"no_pool"`
	TotalPool    float64 `json:"total_pool"`
	YesDisplay   string  `json:"yes_display"`
	NoDisplay    string  `json:"no_display"`
	TotalDisplay string  `json:"total_display"`
}

// Series is the chart payload for one market and timeframe.
type Series struct {
	MarketID  string           `json:"market_id"`
	Timeframe domain.Timeframe `json:"timeframe"`
	Points    []Point          `json:"points"`
	// Fallback is true when Points holds only the synthesized current point.
	Fallback bool    `json:"fallback"`
	Summary  Summary `json:"summary"`
}

// TimeframeOption is one entry of the timeframe selector.
type TimeframeOption struct {
	Value   domain.Timeframe `json:"value"`
	Label   string           `json:"label"`
	Default bool             `json:"default"`
}

// Timeframes returns the fixed selector options in display order.
func Timeframes() []TimeframeOption {
	opts := make([]TimeframeOption, 0, len(domain.Timeframes))
	for _, tf := range domain.Timeframes {
		opts = append(opts, TimeframeOption{
			Value:   tf,
			Label:   strings.ToUpper(tf.String()),
			Default: tf == domain.DefaultTimeframe,
		})
	}
	return opts
}

// Presenter builds series from a snapshot store. It only reads the store.
type Presenter struct {
	store    storage.PoolSnapshotStore
	now      func() time.Time
	location *time.Location
}

// PresenterOption configures Presenter.
type PresenterOption func(*Presenter)

// WithClock sets the clock used for the fallback point.
func WithClock(now func() time.Time) PresenterOption {
	return func(p *Presenter) {
		p.now = now
	}
}

// WithLocation sets the zone point labels are rendered in.
func WithLocation(loc *time.Location) PresenterOption {
	return func(p *Presenter) {
		if loc != nil {
			p.location = loc
		}
	}
}

// NewPresenter creates a presenter over store.
func NewPresenter(store storage.PoolSnapshotStore, opts ...PresenterOption) *Presenter {
	p := &Presenter{
		store:    store,
		now:      time.Now,
		location: time.Local,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Series returns the market's history within tf. With no history it
// returns a single point built from the market's current pools; that
// point is never written back to the store.
func (p *Presenter) Series(m domain.Market, tf domain.Timeframe) Series {
	yes := normalization.LamportsToSol(m.YesPool)
	no := normalization.LamportsToSol(m.NoPool)

	s := Series{
		MarketID:  m.PublicKey,
		Timeframe: tf,
		Summary: Summary{
			YesPool:      yes,
			NoPool:       no,
			TotalPool:    yes + no,
			YesDisplay:   normalization.FormatSol(yes),
			NoDisplay:    normalization.FormatSol(no),
			TotalDisplay: normalization.FormatSol(yes + no),
		},
	}

	snapshots := p.store.Query(m.PublicKey, tf)
	if len(snapshots) == 0 {
		pt := newPoint(p.now().UnixMilli(), yes, no)
		pt.Time = NowLabel
		s.Points = []Point{pt}
		s.Fallback = true
		return s
	}

	s.Points = make([]Point, 0, len(snapshots))
	for _, snap := range snapshots {
		pt := newPoint(snap.TimestampMs, snap.YesPool, snap.NoPool)
		pt.Time = time.UnixMilli(snap.TimestampMs).In(p.location).Format(timeLabelLayout)
		s.Points = append(s.Points, pt)
	}
	return s
}

func newPoint(ts int64, yes, no float64) Point {
	pt := Point{
		TimestampMs: ts,
		YesPool:     yes,
		NoPool:      no,
		TotalPool:   yes + no,
	}
	pt.YesPct, pt.NoPct = percentages(yes, no)
	return pt
}

// percentages returns each side's share of the total, or zeros when the
// total is zero.
func percentages(yes, no float64) (float64, float64) {
	total := yes + no
	if total <= 0 {
		return 0, 0
	}
	return yes / total * 100, no / total * 100
}
