// Package main lists the markets of the prediction program once and exits.
//
// Usage:
//
//	markets [-config config.yaml] [-json]
//	markets -creator <pubkey> -title <title>
//
// The second form derives the market address a creator and title map to
// and prints it with the account, if one exists.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"

	"foundersnet-telemetry/internal/config"
	"foundersnet-telemetry/internal/domain"
	"foundersnet-telemetry/internal/logging"
	"foundersnet-telemetry/internal/markets"
	"foundersnet-telemetry/internal/normalization"
	"foundersnet-telemetry/internal/program"
	"foundersnet-telemetry/internal/solana"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "Optional YAML config file")
	asJSON := flag.Bool("json", false, "Print markets as JSON")
	timeout := flag.Duration("timeout", 30*time.Second, "Fetch timeout")
	creator := flag.String("creator", "", "Creator wallet for address derivation")
	title := flag.String("title", "", "Market title for address derivation")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}

	// Logs go to stderr so stdout stays machine-readable.
	logger := logging.NewWithWriter(os.Stderr, cfg.Logging.Level)

	rpc := solana.NewHTTPClient(cfg.Solana.RPCEndpoint)
	client := program.NewClient(rpc, cfg.ProgramKey(), program.WithLogger(logging.Component(logger, "program")))
	query := markets.NewQuery(markets.Options{
		Reader:       client,
		FetchTimeout: *timeout,
		Logger:       logging.Component(logger, "markets"),
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *creator != "" || *title != "" {
		if err := lookup(ctx, client, query, *creator, *title); err != nil {
			logger.WithError(err).Fatal("lookup market")
		}
		return
	}

	list := query.FetchAll(ctx)

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(list); err != nil {
			logger.WithError(err).Fatal("encode markets")
		}
		return
	}

	printTable(list)
}

// lookup derives the market address for creator and title and prints the
// market stored there.
func lookup(ctx context.Context, client *program.Client, query *markets.Query, creator, title string) error {
	if creator == "" || title == "" {
		return errors.New("-creator and -title must be set together")
	}
	creatorKey, err := solana.ParsePublicKey(creator)
	if err != nil {
		return fmt.Errorf("parse creator: %w", err)
	}

	addr, bump, err := client.MarketAddress(creatorKey, title)
	if err != nil {
		return fmt.Errorf("derive market address: %w", err)
	}
	fmt.Printf("address: %s (bump %d)\n", addr, bump)

	m, err := query.Market(ctx, addr.String())
	if errors.Is(err, domain.ErrNotFound) {
		fmt.Println("no market account at this address")
		return nil
	}
	if err != nil {
		return err
	}
	printTable([]domain.Market{m})
	return nil
}

func printTable(list []domain.Market) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tTITLE\tSTATUS\tYES\tNO\tTOTAL\tYES %")
	for _, m := range list {
		total := m.YesPool + m.NoPool
		yesPct := 0.0
		if total > 0 {
			yesPct = float64(m.YesPool) / float64(total) * 100
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%.1f\n",
			m.PublicKey,
			m.Title,
			m.Status,
			normalization.FormatSol(normalization.LamportsToSol(m.YesPool)),
			normalization.FormatSol(normalization.LamportsToSol(m.NoPool)),
			normalization.FormatSol(normalization.LamportsToSol(total)),
			yesPct,
		)
	}
	w.Flush()
	fmt.Printf("\n%d markets\n", len(list))
}
