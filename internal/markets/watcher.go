package markets

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"foundersnet-telemetry/internal/logging"
	"foundersnet-telemetry/internal/program"
	"foundersnet-telemetry/internal/solana"
)

// Invalidator is notified when market accounts change on chain.
type Invalidator interface {
	Invalidate()
}

var _ Invalidator = (*Query)(nil)

// Watcher subscribes to program account changes and invalidates the query
// on each one, so pool changes show up before the next interval refresh.
type Watcher struct {
	ws        solana.WSClient
	programID string
	target    Invalidator
	logger    *logrus.Entry
}

// NewWatcher creates a watcher. A nil ws disables it.
func NewWatcher(ws solana.WSClient, programID string, target Invalidator, logger *logrus.Entry) *Watcher {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Watcher{
		ws:        ws,
		programID: programID,
		target:    target,
		logger:    logger,
	}
}

// Run subscribes and forwards notifications until ctx is cancelled or the
// subscription channel closes.
func (w *Watcher) Run(ctx context.Context) error {
	if w.ws == nil {
		w.logger.Info("account watcher disabled: no websocket endpoint")
		return nil
	}

	ch, err := w.ws.SubscribeProgram(ctx, solana.ProgramFilter{
		ProgramID: w.programID,
		Filters: []solana.AccountFilter{
			{Memcmp: &solana.MemcmpFilter{Offset: 0, Bytes: program.MarketDiscriminator[:]}},
		},
	})
	if err != nil {
		return fmt.Errorf("subscribe program accounts: %w", err)
	}

	w.logger.WithField("program_id", w.programID).Info("watching market accounts")

	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-ch:
			if !ok {
				return nil
			}
			w.logger.WithFields(logrus.Fields{
				"pubkey": n.Pubkey,
				"slot":   n.Slot,
			}).Debug("market account changed")
			w.target.Invalidate()
		}
	}
}
