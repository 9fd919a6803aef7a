// Package main runs the pool telemetry service: it keeps the market list
// fresh from chain, records pool snapshots and serves them over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"foundersnet-telemetry/internal/chart"
	"foundersnet-telemetry/internal/config"
	"foundersnet-telemetry/internal/httpapi"
	"foundersnet-telemetry/internal/logging"
	"foundersnet-telemetry/internal/markets"
	"foundersnet-telemetry/internal/program"
	"foundersnet-telemetry/internal/solana"
	"foundersnet-telemetry/internal/storage/memory"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "Optional YAML config file")
	httpAddr := flag.String("http-addr", "", "HTTP listen address (overrides config)")
	logLevel := flag.String("log-level", "", "Log level (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	if *httpAddr != "" {
		cfg.HTTP.Addr = *httpAddr
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		logrus.WithError(err).Fatal("invalid flags")
	}

	logger := logging.New(cfg.Logging.Level)
	log := logging.Component(logger, "server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.WithField("signal", sig.String()).Info("shutting down")
		cancel()

		// A second signal, or a hung shutdown, forces exit.
		select {
		case sig := <-sigCh:
			log.WithField("signal", sig.String()).Warn("second signal, forcing exit")
			os.Exit(1)
		case <-time.After(shutdownTimeout):
			log.Warn("graceful shutdown timed out, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, cfg, logger)
	close(done)
	if err != nil {
		log.WithError(err).Fatal("server error")
	}
	log.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	log := logging.Component(logger, "server")

	rpcOpts := []solana.ClientOption{}
	if cfg.Solana.RateLimit > 0 {
		rpcOpts = append(rpcOpts, solana.WithRateLimit(cfg.Solana.RateLimit, cfg.Solana.RateBurst))
	}
	rpc := solana.NewHTTPClient(cfg.Solana.RPCEndpoint, rpcOpts...)

	programID := cfg.ProgramKey()
	client := program.NewClient(rpc, programID, program.WithLogger(logging.Component(logger, "program")))

	query := markets.NewQuery(markets.Options{
		Reader:          client,
		StaleTime:       cfg.Query.StaleTime,
		RefetchInterval: cfg.Query.RefetchInterval,
		FetchTimeout:    cfg.Query.FetchTimeout,
		Logger:          logging.Component(logger, "markets"),
	})

	store := memory.NewPoolSnapshotStore(
		memory.WithHistoryCap(cfg.Telemetry.HistoryCap),
		memory.WithMaxMarkets(cfg.Telemetry.MaxMarkets),
		memory.WithLogger(logging.Component(logger, "telemetry")),
	)

	recorder := markets.NewRecorder(markets.RecorderOptions{
		Source:        query,
		Store:         store,
		SkipUnchanged: cfg.Telemetry.SkipUnchanged,
		Logger:        logging.Component(logger, "recorder"),
	})

	// The watcher only shortens refresh latency, so a failed connection
	// degrades to interval polling.
	var ws solana.WSClient
	if cfg.Solana.WSEndpoint != "" {
		wsCfg := solana.DefaultWSConfig()
		wsCfg.Logger = logging.Component(logger, "ws")
		wsClient, err := solana.NewWSClient(ctx, cfg.Solana.WSEndpoint, &wsCfg)
		if err != nil {
			log.WithError(err).Warn("websocket unavailable, polling only")
		} else {
			defer wsClient.Close()
			ws = wsClient
		}
	}
	watcher := markets.NewWatcher(ws, programID.String(), query, logging.Component(logger, "watcher"))

	api := httpapi.NewServer(httpapi.Options{
		Markets:     query,
		Charts:      chart.NewPresenter(store),
		Stats:       store,
		Chain:       client,
		Cluster:     cfg.Solana.Cluster,
		ProgramID:   programID.String(),
		CORSOrigins: cfg.HTTP.CORSOrigins,
		Logger:      logging.Component(logger, "http"),
	})
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.WithFields(logrus.Fields{
		"rpc":        cfg.Solana.RPCEndpoint,
		"cluster":    cfg.Solana.Cluster,
		"program_id": programID.String(),
		"http_addr":  cfg.HTTP.Addr,
	}).Info("starting telemetry service")

	// Registered before the first refresh so its result is recorded.
	recorder.Subscribe()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return query.Run(ctx) })
	g.Go(func() error { return recorder.Run(ctx) })
	g.Go(func() error {
		if err := watcher.Run(ctx); err != nil {
			log.WithError(err).Warn("account watcher stopped, polling only")
		}
		return nil
	})

	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
