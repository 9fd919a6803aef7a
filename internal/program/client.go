package program

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"foundersnet-telemetry/internal/domain"
	"foundersnet-telemetry/internal/logging"
	"foundersnet-telemetry/internal/observability"
	"foundersnet-telemetry/internal/solana"
)

// DefaultProgramID is the devnet deployment of the market program.
const DefaultProgramID = "EEZJxm2YmPHxH2VfqPXaS2k3qSmRhvKHEFMxjbzNxNfQ"

// marketSeed is the first PDA seed of every market account.
const marketSeed = "market"

// Client reads market accounts through a Solana RPC client.
type Client struct {
	rpc       solana.RPCClient
	programID solana.PublicKey
	logger    *logrus.Entry
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithLogger sets the logger used for skipped accounts.
func WithLogger(logger *logrus.Entry) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a program client for programID.
func NewClient(rpc solana.RPCClient, programID solana.PublicKey, opts ...ClientOption) *Client {
	c := &Client{
		rpc:       rpc,
		programID: programID,
		logger:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}

	// Deployed programs live at keypair addresses, which are on the curve.
	if !programID.IsOnCurve() {
		c.logger.WithField("program_id", programID.String()).Warn("program id is not an ed25519 point")
	}
	return c
}

// ProgramID returns the program the client reads from.
func (c *Client) ProgramID() solana.PublicKey {
	return c.programID
}

// AllMarkets returns every Market account owned by the program.
// Accounts that fail to decode are logged and skipped.
func (c *Client) AllMarkets(ctx context.Context) ([]RawMarket, error) {
	accounts, err := c.rpc.GetProgramAccounts(ctx, c.programID.String(), &solana.ProgramAccountsOpts{
		Commitment: solana.CommitmentConfirmed,
		Filters: []solana.AccountFilter{
			{Memcmp: &solana.MemcmpFilter{Offset: 0, Bytes: MarketDiscriminator[:]}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get program accounts: %w", err)
	}

	markets := make([]RawMarket, 0, len(accounts))
	for _, acc := range accounts {
		m, err := decodeAccount(acc.Pubkey, acc.Account)
		if err != nil {
			observability.RecordAccountDecodeError()
			c.logger.WithError(err).WithField("pubkey", acc.Pubkey).Warn("skipping undecodable market account")
			continue
		}
		markets = append(markets, m)
	}

	return markets, nil
}

// FetchMarket reads a single market account.
// Returns domain.ErrNotFound if the account does not exist, is owned by
// another program or is not a Market.
func (c *Client) FetchMarket(ctx context.Context, pubkey string) (RawMarket, error) {
	info, err := c.rpc.GetAccountInfo(ctx, pubkey)
	if err != nil {
		return RawMarket{}, fmt.Errorf("get account info: %w", err)
	}
	if info == nil || info.Owner != c.programID.String() {
		return RawMarket{}, fmt.Errorf("market %s: %w", pubkey, domain.ErrNotFound)
	}

	m, err := decodeAccount(pubkey, *info)
	if errors.Is(err, ErrDiscriminator) {
		return RawMarket{}, fmt.Errorf("market %s: %w", pubkey, domain.ErrNotFound)
	}
	return m, err
}

// Slot returns the slot the RPC node has processed.
func (c *Client) Slot(ctx context.Context) (int64, error) {
	slot, err := c.rpc.GetSlot(ctx)
	if err != nil {
		return 0, fmt.Errorf("get slot: %w", err)
	}
	return slot, nil
}

// MarketAddress derives the market PDA for a creator and title.
func (c *Client) MarketAddress(creator solana.PublicKey, title string) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(
		[][]byte{[]byte(marketSeed), creator[:], []byte(title)},
		c.programID,
	)
}

func decodeAccount(pubkey string, info solana.AccountInfo) (RawMarket, error) {
	data, err := info.DecodeData()
	if err != nil {
		return RawMarket{}, err
	}
	return DecodeMarket(pubkey, data)
}
