package solana

import "context"

// RPCClient defines the Solana RPC HTTP calls used to read program state.
type RPCClient interface {
	// GetProgramAccounts retrieves every account owned by a program that
	// passes the given filters.
	GetProgramAccounts(ctx context.Context, programID string, opts *ProgramAccountsOpts) ([]ProgramAccount, error)

	// GetAccountInfo retrieves a single account. Returns nil if not found.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	// GetSlot retrieves the current slot.
	GetSlot(ctx context.Context) (int64, error)
}
