// Package config loads service configuration from defaults, an optional
// YAML file, a .env file and the environment, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"foundersnet-telemetry/internal/markets"
	"foundersnet-telemetry/internal/program"
	"foundersnet-telemetry/internal/solana"
	"foundersnet-telemetry/internal/storage/memory"
)

// Environment variable names.
const (
	EnvRPCEndpoint     = "SOLANA_RPC_ENDPOINT"
	EnvWSEndpoint      = "SOLANA_WS_ENDPOINT"
	EnvProgramID       = "PROGRAM_ID"
	EnvCluster         = "SOLANA_CLUSTER"
	EnvStaleTime       = "STALE_TIME"
	EnvRefetchInterval = "REFETCH_INTERVAL"
	EnvHistoryCap      = "TELEMETRY_HISTORY_CAP"
	EnvMaxMarkets      = "TELEMETRY_MAX_MARKETS"
	EnvSkipUnchanged   = "TELEMETRY_SKIP_UNCHANGED"
	EnvRPCRateLimit    = "RPC_RATE_LIMIT"
	EnvHTTPAddr        = "HTTP_ADDR"
	EnvCORSOrigins     = "CORS_ORIGINS"
	EnvLogLevel        = "LOG_LEVEL"
)

// DefaultRPCEndpoint is the public devnet RPC.
const DefaultRPCEndpoint = "https://api.devnet.solana.com"

// Config holds all service configuration.
type Config struct {
	Solana    SolanaConfig    `yaml:"solana"`
	Query     QueryConfig     `yaml:"query"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	HTTP      HTTPConfig      `yaml:"http"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SolanaConfig configures chain access.
type SolanaConfig struct {
	RPCEndpoint string  `yaml:"rpc_endpoint"`
	WSEndpoint  string  `yaml:"ws_endpoint"` // empty disables the account watcher
	ProgramID   string  `yaml:"program_id"`
	Cluster     string  `yaml:"cluster"`
	RateLimit   float64 `yaml:"rate_limit"` // requests per second, 0 = unlimited
	RateBurst   int     `yaml:"rate_burst"`
}

// QueryConfig configures the market query layer.
type QueryConfig struct {
	StaleTime       time.Duration `yaml:"stale_time"`
	RefetchInterval time.Duration `yaml:"refetch_interval"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout"`
}

// TelemetryConfig configures the pool snapshot store.
type TelemetryConfig struct {
	HistoryCap    int  `yaml:"history_cap"`
	MaxMarkets    int  `yaml:"max_markets"` // 0 = unlimited
	SkipUnchanged bool `yaml:"skip_unchanged"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Solana: SolanaConfig{
			RPCEndpoint: DefaultRPCEndpoint,
			ProgramID:   program.DefaultProgramID,
			Cluster:     "devnet",
			RateBurst:   1,
		},
		Query: QueryConfig{
			StaleTime:       markets.DefaultStaleTime,
			RefetchInterval: markets.DefaultRefetchInterval,
			FetchTimeout:    markets.DefaultFetchTimeout,
		},
		Telemetry: TelemetryConfig{
			HistoryCap: memory.DefaultHistoryCap,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration. path names an optional YAML file; a
// missing file is an error only when path is set. envFiles default to
// ".env" and are skipped when absent. Values already present in the
// environment win over .env entries.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Solana.RPCEndpoint, EnvRPCEndpoint)
	setString(&c.Solana.WSEndpoint, EnvWSEndpoint)
	setString(&c.Solana.ProgramID, EnvProgramID)
	setString(&c.Solana.Cluster, EnvCluster)
	setString(&c.HTTP.Addr, EnvHTTPAddr)
	setString(&c.Logging.Level, EnvLogLevel)

	if v := getEnv(EnvCORSOrigins); v != "" {
		c.HTTP.CORSOrigins = splitList(v)
	}

	if err := setDuration(&c.Query.StaleTime, EnvStaleTime); err != nil {
		return err
	}
	if err := setDuration(&c.Query.RefetchInterval, EnvRefetchInterval); err != nil {
		return err
	}
	if err := setInt(&c.Telemetry.HistoryCap, EnvHistoryCap); err != nil {
		return err
	}
	if err := setInt(&c.Telemetry.MaxMarkets, EnvMaxMarkets); err != nil {
		return err
	}

	if v := getEnv(EnvSkipUnchanged); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvSkipUnchanged, err)
		}
		c.Telemetry.SkipUnchanged = b
	}

	if v := getEnv(EnvRPCRateLimit); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRPCRateLimit, err)
		}
		c.Solana.RateLimit = f
	}

	return nil
}

// Validate checks that values are usable.
func (c *Config) Validate() error {
	if c.Solana.RPCEndpoint == "" {
		return fmt.Errorf("%s is required", EnvRPCEndpoint)
	}
	if _, err := solana.ParsePublicKey(c.Solana.ProgramID); err != nil {
		return fmt.Errorf("%s: %w", EnvProgramID, err)
	}
	if c.Solana.RateLimit < 0 {
		return fmt.Errorf("%s must not be negative", EnvRPCRateLimit)
	}
	if c.Query.StaleTime <= 0 {
		return fmt.Errorf("%s must be positive", EnvStaleTime)
	}
	if c.Query.RefetchInterval <= 0 {
		return fmt.Errorf("%s must be positive", EnvRefetchInterval)
	}
	if c.Telemetry.HistoryCap < 1 {
		return fmt.Errorf("%s must be at least 1", EnvHistoryCap)
	}
	if c.Telemetry.MaxMarkets < 0 {
		return fmt.Errorf("%s must not be negative", EnvMaxMarkets)
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("%s is required", EnvHTTPAddr)
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%s: %w", EnvLogLevel, err)
	}
	return nil
}

// ProgramKey returns the parsed program id. Call after Validate.
func (c *Config) ProgramKey() solana.PublicKey {
	pk, _ := solana.ParsePublicKey(c.Solana.ProgramID)
	return pk
}

func getEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func setString(dst *string, key string) {
	if v := getEnv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := getEnv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

// setDuration accepts Go duration strings ("5s") or bare integers, which
// are read as milliseconds.
func setDuration(dst *time.Duration, key string) error {
	v := getEnv(key)
	if v == "" {
		return nil
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		*dst = time.Duration(ms) * time.Millisecond
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
