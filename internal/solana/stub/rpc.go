// Package stub provides in-memory Solana clients for tests.
package stub

import (
	"context"
	"encoding/base64"
	"sort"
	"sync"

	"foundersnet-telemetry/internal/solana"
)

// RPCClient implements solana.RPCClient for testing.
// Accounts are keyed by pubkey; every account is treated as owned by any
// queried program and filtered only by the supplied memcmp/dataSize filters.
type RPCClient struct {
	mu       sync.Mutex
	Accounts map[string]solana.AccountInfo
	Slot     int64
	// Err, when set, is returned by every call.
	Err error
	// Calls counts GetProgramAccounts invocations.
	Calls int
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Accounts: make(map[string]solana.AccountInfo),
	}
}

// SetAccount stores raw account data under pubkey.
func (c *RPCClient) SetAccount(pubkey string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Accounts[pubkey] = solana.AccountInfo{
		Lamports: 1,
		Data:     base64.StdEncoding.EncodeToString(data),
	}
}

// SetOwnedAccount stores raw account data under pubkey owned by owner.
// GetAccountInfo reports the owner; accounts set with SetAccount have none.
func (c *RPCClient) SetOwnedAccount(pubkey, owner string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Accounts[pubkey] = solana.AccountInfo{
		Lamports: 1,
		Owner:    owner,
		Data:     base64.StdEncoding.EncodeToString(data),
	}
}

// SetError makes subsequent calls fail with err. nil clears it.
func (c *RPCClient) SetError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Err = err
}

// CallCount returns the number of GetProgramAccounts calls so far.
func (c *RPCClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Calls
}

// GetProgramAccounts returns stored accounts matching all filters, ordered by pubkey.
func (c *RPCClient) GetProgramAccounts(_ context.Context, programID string, opts *solana.ProgramAccountsOpts) ([]solana.ProgramAccount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls++

	if c.Err != nil {
		return nil, c.Err
	}

	var out []solana.ProgramAccount
	for pubkey, info := range c.Accounts {
		data, err := info.DecodeData()
		if err != nil {
			continue
		}
		if opts != nil && !matches(data, opts.Filters) {
			continue
		}
		info.Owner = programID
		out = append(out, solana.ProgramAccount{Pubkey: pubkey, Account: info})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Pubkey < out[j].Pubkey })
	return out, nil
}

// GetAccountInfo returns the stored account or nil when absent.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Err != nil {
		return nil, c.Err
	}

	info, ok := c.Accounts[pubkey]
	if !ok {
		return nil, nil
	}
	return &info, nil
}

// GetSlot returns the configured slot.
func (c *RPCClient) GetSlot(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Err != nil {
		return 0, c.Err
	}
	return c.Slot, nil
}

func matches(data []byte, filters []solana.AccountFilter) bool {
	for _, f := range filters {
		switch {
		case f.Memcmp != nil:
			end := f.Memcmp.Offset + uint64(len(f.Memcmp.Bytes))
			if end > uint64(len(data)) {
				return false
			}
			if string(data[f.Memcmp.Offset:end]) != string(f.Memcmp.Bytes) {
				return false
			}
		case f.DataSize > 0:
			if uint64(len(data)) != f.DataSize {
				return false
			}
		}
	}
	return true
}

var _ solana.RPCClient = (*RPCClient)(nil)
