package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Nilsonfts/Skvoznaya-analitika/internal/telemetry"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Jobs rejected outright or out of retries land in dlq:<queue>, newest first.
// Operators inspect them with analyticsctl and replay them once the cause
// (an unknown channel, a missing client) is fixed.
const DLQPrefix = "dlq:"

// jobTypeMalformed marks entries whose envelope could not be decoded; their
// payload is the raw queue item and they cannot be replayed.
const jobTypeMalformed = "malformed"

// DLQEntry is one dead-lettered job.
type DLQEntry struct {
	JobID         string          `json:"job_id,omitempty"`
	OriginalQueue string          `json:"original_queue"`
	JobType       string          `json:"job_type"`
	Payload       json.RawMessage `json:"payload"`
	Reason        string          `json:"reason"`
	FailedAt      time.Time       `json:"failed_at"`
	Attempts      int             `json:"attempts"`
}

func newDLQEntry(queue string, job Job, reason string, at time.Time) DLQEntry {
	return DLQEntry{
		JobID:         job.ID,
		OriginalQueue: queue,
		JobType:       job.Type,
		Payload:       job.Payload,
		Reason:        reason,
		FailedAt:      at.UTC(),
		Attempts:      job.Attempts,
	}
}

// replayable reports whether the entry can run again as a fresh job.
func (e DLQEntry) replayable() bool {
	switch e.JobType {
	case JobEvent, JobRecompute:
		return len(e.Payload) > 0
	}
	return false
}

// retry rebuilds the job with a new id and a clean attempt count.
func (e DLQEntry) retry() Job {
	return Job{ID: uuid.NewString(), Type: e.JobType, Payload: e.Payload}
}

// SendToDLQ dead-letters job. Push errors are logged, not returned: the job is
// already lost to the caller.
func SendToDLQ(ctx context.Context, rdb *redis.Client, queue string, job Job, reason string) {
	data, err := json.Marshal(newDLQEntry(queue, job, reason, time.Now()))
	if err != nil {
		log.Error().Err(err).Str("queue", queue).Msg("dlq: failed to marshal entry")
		return
	}

	dlqKey := DLQPrefix + queue
	if err := rdb.LPush(ctx, dlqKey, data).Err(); err != nil {
		log.Error().Err(err).Str("dlq_key", dlqKey).Str("job_id", job.ID).Msg("dlq: push failed, job dropped")
		return
	}

	telemetry.DeadLettered.WithLabelValues(queue).Inc()
	log.Warn().
		Str("queue", queue).
		Str("job_id", job.ID).
		Str("job_type", job.Type).
		Str("reason", reason).
		Int("attempts", job.Attempts).
		Msg("dlq: job dead-lettered")
}

// DLQLength returns the number of entries dead-lettered from queue.
func DLQLength(ctx context.Context, rdb *redis.Client, queue string) (int64, error) {
	return rdb.LLen(ctx, DLQPrefix+queue).Result()
}

// PeekDLQ decodes the oldest n entries of queue's DLQ without removing them.
func PeekDLQ(ctx context.Context, rdb *redis.Client, queue string, n int64) ([]DLQEntry, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := rdb.LRange(ctx, DLQPrefix+queue, -n, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]DLQEntry, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var e DLQEntry
		if err := json.Unmarshal([]byte(raw[i]), &e); err != nil {
			e = DLQEntry{OriginalQueue: queue, JobType: jobTypeMalformed, Reason: "undecodable dlq entry"}
		}
		out = append(out, e)
	}
	return out, nil
}

// ReplayResult counts what ReplayDLQ did.
type ReplayResult struct {
	Requeued int `json:"requeued"`
	Skipped  int `json:"skipped"`
}

// ReplayDLQ moves up to limit of the oldest entries of queue's DLQ back onto
// queue as fresh jobs. Entries that cannot run again are rotated to the
// newest end of the DLQ and counted as skipped. limit <= 0 replays the whole
// list as it stood when the call started.
func ReplayDLQ(ctx context.Context, rdb *redis.Client, queue string, limit int) (ReplayResult, error) {
	var res ReplayResult
	dlqKey := DLQPrefix + queue
	n, err := rdb.LLen(ctx, dlqKey).Result()
	if err != nil {
		return res, err
	}
	if limit > 0 && int64(limit) < n {
		n = int64(limit)
	}

	for i := int64(0); i < n; i++ {
		raw, err := rdb.RPop(ctx, dlqKey).Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return res, err
		}

		var entry DLQEntry
		if json.Unmarshal([]byte(raw), &entry) != nil || !entry.replayable() {
			if err := rdb.LPush(ctx, dlqKey, raw).Err(); err != nil {
				return res, fmt.Errorf("return skipped entry to %s: %w", dlqKey, err)
			}
			res.Skipped++
			continue
		}

		encoded, err := json.Marshal(entry.retry())
		if err == nil {
			err = rdb.LPush(ctx, queue, encoded).Err()
		}
		if err != nil {
			// put it back where it came from before giving up
			_ = rdb.RPush(ctx, dlqKey, raw).Err()
			return res, fmt.Errorf("requeue %s job %s: %w", entry.JobType, entry.JobID, err)
		}
		res.Requeued++
	}

	log.Info().
		Str("queue", queue).
		Int("requeued", res.Requeued).
		Int("skipped", res.Skipped).
		Msg("dlq: replay finished")
	return res, nil
}
