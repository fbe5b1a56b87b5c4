// Package main implements analyticsctl, the operator CLI for maintenance runs
// against the analytics database.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Nilsonfts/Skvoznaya-analitika/internal/config"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/infra"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/router"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// withRedis makes maintenance runs invalidate cached metric ranges
	withRedis bool
	version   = "dev"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	// Ctrl-C stops a recompute between units; finished units stay committed.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "analyticsctl",
	Short: "Operator CLI for the channel analytics service",
	Long: `analyticsctl runs maintenance operations directly against the analytics
database, using the same configuration (environment / .env) as the server.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&withRedis, "redis", true, "connect to REDIS_URL to keep the metrics cache coherent")
	rootCmd.AddCommand(recomputeCmd)
	rootCmd.AddCommand(refreshSegmentsCmd)
	rootCmd.AddCommand(mintTokenCmd)
	rootCmd.AddCommand(dlqCmd)
}

// services loads config and wires the service layer the same way the server does.
func services() (*config.Config, *router.Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	var rdb *redis.Client
	if withRedis && cfg.RedisURL != "" {
		ro := infra.RedisOptions{URL: cfg.RedisURL, PoolSize: cfg.RedisPoolSize, Timeout: cfg.RedisTimeout()}
		if rdb, err = infra.NewRedis(ro); err != nil {
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
	}
	return cfg, router.NewServices(cfg, db, rdb), nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
