package solana

import "context"

// WSClient defines Solana WebSocket subscription interface.
type WSClient interface {
	// SubscribeProgram subscribes to changes of accounts owned by a program.
	SubscribeProgram(ctx context.Context, filter ProgramFilter) (<-chan ProgramNotification, error)

	// Close closes the WebSocket connection.
	Close() error
}

// ProgramFilter defines subscription filter for program accounts.
type ProgramFilter struct {
	ProgramID string
	Filters   []AccountFilter
}

// ProgramNotification represents a programSubscribe message.
type ProgramNotification struct {
	Pubkey   string
	Slot     int64
	Lamports uint64
	Data     string // base64 encoded
}
