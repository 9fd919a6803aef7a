package solana

import (
	"encoding/base64"
	"fmt"
)

// Commitment levels accepted by RPC calls.
const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Data       string `json:"data"` // base64 encoded
	Executable bool   `json:"executable"`
	RentEpoch  uint64 `json:"rentEpoch"`
}

// DecodeData returns the raw account data bytes.
func (a *AccountInfo) DecodeData() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(a.Data)
	if err != nil {
		return nil, fmt.Errorf("decode account data: %w", err)
	}
	return data, nil
}

// ProgramAccount is one entry returned by getProgramAccounts.
type ProgramAccount struct {
	Pubkey  string
	Account AccountInfo
}

// ProgramAccountsOpts defines optional parameters for getProgramAccounts.
type ProgramAccountsOpts struct {
	Commitment string          // defaults to confirmed
	Filters    []AccountFilter // all filters must match
}

// AccountFilter restricts getProgramAccounts results. Exactly one field
// should be set.
type AccountFilter struct {
	Memcmp   *MemcmpFilter
	DataSize uint64
}

// MemcmpFilter matches accounts whose data at Offset equals Bytes.
type MemcmpFilter struct {
	Offset uint64
	Bytes  []byte // encoded as base58 on the wire
}
