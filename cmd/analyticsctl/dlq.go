package main

import (
	"fmt"

	"github.com/Nilsonfts/Skvoznaya-analitika/internal/config"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/infra"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var (
	dlqQueue       string
	dlqShowLimit   int
	dlqReplayLimit int
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect and replay dead-lettered jobs",
}

var dlqShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the size and the oldest entries of a dead letter queue",
	RunE: func(cmd *cobra.Command, _ []string) error {
		rdb, err := queueRedis()
		if err != nil {
			return err
		}
		defer rdb.Close()
		n, err := worker.DLQLength(cmd.Context(), rdb, dlqQueue)
		if err != nil {
			return err
		}
		entries, err := worker.PeekDLQ(cmd.Context(), rdb, dlqQueue, int64(dlqShowLimit))
		if err != nil {
			return err
		}
		return printJSON(map[string]interface{}{"queue": dlqQueue, "length": n, "oldest": entries})
	},
}

var dlqReplayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Move dead-lettered jobs back onto their queue",
	Long: `Requeue the oldest dead-lettered jobs as fresh jobs with a clean attempt
count. Run it after fixing what rejected them, e.g. creating a missing channel.
Entries with an undecodable envelope stay in the dead letter queue.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		rdb, err := queueRedis()
		if err != nil {
			return err
		}
		defer rdb.Close()
		res, err := worker.ReplayDLQ(cmd.Context(), rdb, dlqQueue, dlqReplayLimit)
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

func init() {
	dlqCmd.PersistentFlags().StringVar(&dlqQueue, "queue", worker.QueueEvents, "source queue ("+worker.QueueEvents+" or "+worker.QueueRecompute+")")
	dlqShowCmd.Flags().IntVar(&dlqShowLimit, "limit", 10, "entries to print")
	dlqReplayCmd.Flags().IntVar(&dlqReplayLimit, "limit", 0, "entries to replay, 0 for all")
	dlqCmd.AddCommand(dlqShowCmd, dlqReplayCmd)
}

// queueRedis connects to REDIS_URL without touching the database.
func queueRedis() (*redis.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is empty")
	}
	if dlqQueue != worker.QueueEvents && dlqQueue != worker.QueueRecompute {
		return nil, fmt.Errorf("unknown queue %q", dlqQueue)
	}
	return infra.NewRedis(infra.RedisOptions{URL: cfg.RedisURL, PoolSize: 2, Timeout: cfg.RedisTimeout()})
}
