package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions tunes the client behind the job queues and the metrics cache.
// Zero values keep the go-redis defaults.
type RedisOptions struct {
	URL      string
	PoolSize int
	// Timeout bounds dialing, each read and each write.
	Timeout time.Duration
}

// NewRedis connects with the given options and pings the server before
// returning, so a bad address fails at startup rather than on the first job.
func NewRedis(o RedisOptions) (*redis.Client, error) {
	opts, err := redisOptions(o)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)

	ping := opts.DialTimeout + opts.ReadTimeout
	if ping <= 0 {
		ping = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), ping)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	return rdb, nil
}

func redisOptions(o RedisOptions) (*redis.Options, error) {
	opts, err := redis.ParseURL(o.URL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	if o.PoolSize > 0 {
		opts.PoolSize = o.PoolSize
	}
	if o.Timeout > 0 {
		opts.DialTimeout = o.Timeout
		opts.ReadTimeout = o.Timeout
		opts.WriteTimeout = o.Timeout
	}
	return opts, nil
}
