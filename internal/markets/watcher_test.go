package markets

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foundersnet-telemetry/internal/program"
	"foundersnet-telemetry/internal/solana"
)

type fakeWS struct {
	ch     chan solana.ProgramNotification
	err    error
	filter solana.ProgramFilter
}

func (f *fakeWS) SubscribeProgram(_ context.Context, filter solana.ProgramFilter) (<-chan solana.ProgramNotification, error) {
	f.filter = filter
	if f.err != nil {
		return nil, f.err
	}
	return f.ch, nil
}

func (f *fakeWS) Close() error { return nil }

type countingInvalidator struct {
	n atomic.Int32
}

func (c *countingInvalidator) Invalidate() { c.n.Add(1) }

func TestWatcher_InvalidatesOnNotification(t *testing.T) {
	ws := &fakeWS{ch: make(chan solana.ProgramNotification, 2)}
	target := &countingInvalidator{}
	w := NewWatcher(ws, program.DefaultProgramID, target, nil)

	ws.ch <- solana.ProgramNotification{Pubkey: "M1", Slot: 10}
	ws.ch <- solana.ProgramNotification{Pubkey: "M2", Slot: 11}
	close(ws.ch)

	require.NoError(t, w.Run(context.Background()))
	assert.Equal(t, int32(2), target.n.Load())

	assert.Equal(t, program.DefaultProgramID, ws.filter.ProgramID)
	require.Len(t, ws.filter.Filters, 1)
	assert.Equal(t, program.MarketDiscriminator[:], ws.filter.Filters[0].Memcmp.Bytes)
}

func TestWatcher_StopsOnContextCancel(t *testing.T) {
	ws := &fakeWS{ch: make(chan solana.ProgramNotification)}
	w := NewWatcher(ws, program.DefaultProgramID, &countingInvalidator{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.NoError(t, w.Run(ctx))
}

func TestWatcher_SubscribeError(t *testing.T) {
	ws := &fakeWS{err: errors.New("handshake failed")}
	w := NewWatcher(ws, program.DefaultProgramID, &countingInvalidator{}, nil)

	assert.Error(t, w.Run(context.Background()))
}

func TestWatcher_Disabled(t *testing.T) {
	w := NewWatcher(nil, program.DefaultProgramID, &countingInvalidator{}, nil)
	assert.NoError(t, w.Run(context.Background()))
}
