package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Nilsonfts/Skvoznaya-analitika/internal/dto"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/infra"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	metricVersionPrefix = "metrics:ver:"
	metricRangePrefix   = "metrics:range:"
)

// noVersion marks a read that could not learn the channel version; nothing is
// stored for it.
const noVersion int64 = -1

// metricCache caches metric range reads keyed by a per-channel version that
// every recompute bumps. A fill is stored under the version its read started
// from, so rows read before a bump land under a key nobody asks for again.
// A nil client disables caching; cache errors are logged and treated as
// misses. Reads and fills go through a breaker so a degraded Redis does not
// add latency to every request.
type metricCache struct {
	rdb     redis.Cmdable
	ttl     time.Duration
	breaker *infra.Breaker
}

func newMetricCache(rdb *redis.Client, ttl time.Duration) *metricCache {
	c := &metricCache{ttl: ttl, breaker: infra.NewBreaker(infra.BreakerConfig{})}
	if rdb != nil {
		c.rdb = rdb
	}
	return c
}

func (c *metricCache) enabled() bool { return c != nil && c.rdb != nil && c.ttl > 0 }

func (c *metricCache) version(ctx context.Context, channelID uuid.UUID) (int64, error) {
	v, err := c.rdb.Get(ctx, metricVersionPrefix+channelID.String()).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return v, err
}

func (c *metricCache) rangeKey(channelID uuid.UUID, ver int64, from, to time.Time) string {
	return fmt.Sprintf("%s%s:%d:%s:%s", metricRangePrefix, channelID, ver,
		from.Format("2006-01-02"), to.Format("2006-01-02"))
}

// get returns the cached rows and the version it looked under. Pass that
// version to set when filling a miss.
func (c *metricCache) get(ctx context.Context, channelID uuid.UUID, from, to time.Time) ([]dto.ChannelMetricResponse, int64, bool) {
	if !c.enabled() {
		return nil, noVersion, false
	}
	ver := noVersion
	var raw []byte
	err := c.breaker.Do(func() error {
		v, err := c.version(ctx, channelID)
		if err != nil {
			return err
		}
		ver = v
		raw, err = c.rdb.Get(ctx, c.rangeKey(channelID, v, from, to)).Bytes()
		if err == redis.Nil {
			raw = nil
			return nil
		}
		return err
	})
	if err != nil {
		if err != infra.ErrBreakerOpen {
			log.Warn().Err(err).Msg("metric cache: get failed")
		}
		return nil, ver, false
	}
	if raw == nil {
		return nil, ver, false
	}
	var rows []dto.ChannelMetricResponse
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, ver, false
	}
	return rows, ver, true
}

// set stores rows read under ver.
func (c *metricCache) set(ctx context.Context, channelID uuid.UUID, ver int64, from, to time.Time, rows []dto.ChannelMetricResponse) {
	if !c.enabled() || ver == noVersion {
		return
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return
	}
	err = c.breaker.Do(func() error {
		return c.rdb.Set(ctx, c.rangeKey(channelID, ver, from, to), data, c.ttl).Err()
	})
	if err != nil && err != infra.ErrBreakerOpen {
		log.Warn().Err(err).Msg("metric cache: set failed")
	}
}

func (c *metricCache) invalidate(ctx context.Context, channelID uuid.UUID) {
	if !c.enabled() {
		return
	}
	// Invalidation bypasses the breaker: a skipped bump would serve stale rows until TTL.
	if err := c.rdb.Incr(ctx, metricVersionPrefix+channelID.String()).Err(); err != nil {
		log.Warn().Err(err).Str("channel_id", channelID.String()).Msg("metric cache: version bump failed")
	}
}
