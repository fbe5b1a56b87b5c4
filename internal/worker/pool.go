package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Nilsonfts/Skvoznaya-analitika/internal/dto"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/service"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/telemetry"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	QueueEvents    = "jobs:events"
	QueueRecompute = "jobs:recompute"

	JobEvent     = "event"
	JobRecompute = "recompute"

	// MaxJobAttempts bounds retries of transient failures before a job is dead-lettered.
	MaxJobAttempts = 5
)

// Job is the generic envelope for all async tasks.
type Job struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	Attempts int             `json:"attempts"`
}

// Dispatcher enqueues async jobs into Redis lists.
// The worker pool dequeues them via BRPOP.
type Dispatcher struct {
	rdb *redis.Client
}

func NewDispatcher(rdb *redis.Client) *Dispatcher {
	return &Dispatcher{rdb: rdb}
}

// EnqueueEvents pushes one job per event in a single pipeline round trip.
func (d *Dispatcher) EnqueueEvents(ctx context.Context, events []dto.EventRequest) (int, error) {
	pipe := d.rdb.Pipeline()
	for i := range events {
		encoded, err := encodeJob(JobEvent, events[i])
		if err != nil {
			return 0, err
		}
		pipe.LPush(ctx, QueueEvents, encoded)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return len(events), nil
}

// EnqueueRecompute pushes a range recompute and returns its job id.
func (d *Dispatcher) EnqueueRecompute(ctx context.Context, req dto.RecomputeRequest) (string, error) {
	job, err := newJob(JobRecompute, req)
	if err != nil {
		return "", err
	}
	encoded, err := json.Marshal(job)
	if err != nil {
		return "", err
	}
	if err := d.rdb.LPush(ctx, QueueRecompute, encoded).Err(); err != nil {
		return "", err
	}
	return job.ID, nil
}

func newJob(jobType string, payload interface{}) (Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Job{}, err
	}
	return Job{ID: uuid.NewString(), Type: jobType, Payload: data}, nil
}

func encodeJob(jobType string, payload interface{}) ([]byte, error) {
	job, err := newJob(jobType, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(job)
}

// Processor holds the services jobs are executed against.
type Processor struct {
	Ingest  service.IngestService
	Metrics service.MetricsService
}

// StartWorkerPool launches numWorkers goroutines consuming both queues.
// Each goroutine blocks on BRPOP, so idle workers cost nothing.
func StartWorkerPool(ctx context.Context, rdb *redis.Client, numWorkers int, p Processor) {
	for i := 0; i < numWorkers; i++ {
		go runWorker(ctx, rdb, i, p)
	}
	log.Info().Msgf("worker pool started with %d workers", numWorkers)
}

func runWorker(ctx context.Context, rdb *redis.Client, id int, p Processor) {
	queues := []string{QueueEvents, QueueRecompute}
	for {
		select {
		case <-ctx.Done():
			log.Info().Msgf("worker %d shutting down", id)
			return
		default:
			// Blocking pop; waits up to 5s then loops to check ctx
			result, err := rdb.BRPop(ctx, 5*time.Second, queues...).Result()
			if err != nil {
				continue // timeout or context cancelled
			}
			if len(result) < 2 {
				continue
			}
			processJob(ctx, rdb, p, result[0], result[1])
		}
	}
}

func processJob(ctx context.Context, rdb *redis.Client, p Processor, queue, raw string) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		log.Error().Str("queue", queue).Err(err).Msg("failed to unmarshal job")
		quoted, _ := json.Marshal(raw)
		SendToDLQ(ctx, rdb, queue, Job{Type: jobTypeMalformed, Payload: quoted}, "malformed envelope: "+err.Error())
		return
	}
	job.Attempts++

	err := p.handle(ctx, job)
	var cut *rangeInterruptedError
	switch {
	case errors.As(err, &cut):
		// Shutdown is not a failure of the job: only the unfinished days go back.
		telemetry.QueueJobsProcessed.WithLabelValues(job.Type, "interrupted").Inc()
		rest, mErr := json.Marshal(cut.Rest)
		if mErr != nil {
			log.Error().Err(mErr).Str("job_id", job.ID).Msg("failed to encode remaining range")
			return
		}
		job.Payload, job.Attempts = rest, job.Attempts-1
		requeue(rdb, queue, job)
		return
	case err == nil:
		telemetry.QueueJobsProcessed.WithLabelValues(job.Type, "ok").Inc()
		return
	case !service.IsRetryable(err):
		telemetry.QueueJobsProcessed.WithLabelValues(job.Type, "rejected").Inc()
		SendToDLQ(ctx, rdb, queue, job, err.Error())
		return
	case job.Attempts >= MaxJobAttempts:
		telemetry.QueueJobsProcessed.WithLabelValues(job.Type, "exhausted").Inc()
		SendToDLQ(ctx, rdb, queue, job, fmt.Sprintf("max attempts (%d) exceeded: %s", MaxJobAttempts, err))
		return
	}

	telemetry.QueueJobsProcessed.WithLabelValues(job.Type, "retried").Inc()
	log.Warn().
		Str("job_id", job.ID).
		Str("type", job.Type).
		Int("attempts", job.Attempts).
		Err(err).
		Msg("job failed, requeueing")

	select {
	case <-ctx.Done():
	case <-time.After(retryBackoff(job.Attempts)):
	}
	requeue(rdb, queue, job)
}

// requeue pushes the job back with a fresh context so a shutdown does not drop it.
func requeue(rdb *redis.Client, queue string, job Job) {
	encoded, err := json.Marshal(job)
	if err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("failed to re-encode job")
		return
	}
	if err := rdb.LPush(context.Background(), queue, encoded).Err(); err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("failed to requeue job")
	}
}

// retryBackoff is 1s, 2s, 4s, ... capped at 30s.
func retryBackoff(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	d := time.Second << (attempt - 1)
	if d > 30*time.Second || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// handle runs one job. A nil error means the job is finished, including
// unattributable leads and reserves that were stored raw.
func (p Processor) handle(ctx context.Context, job Job) error {
	switch job.Type {
	case JobEvent:
		var ev dto.EventRequest
		if err := json.Unmarshal(job.Payload, &ev); err != nil {
			return fmt.Errorf("%w: event payload: %v", service.ErrInvalidInput, err)
		}
		res, err := p.Ingest.Ingest(ctx, ev)
		if err != nil {
			if res != nil && errors.Is(err, service.ErrUnattributable) {
				log.Info().Str("job_id", job.ID).Str("event_type", ev.EventType).Msg("event stored unattributed")
				return nil
			}
			return err
		}
		return nil

	case JobRecompute:
		var req dto.RecomputeRequest
		if err := json.Unmarshal(job.Payload, &req); err != nil {
			return fmt.Errorf("%w: recompute payload: %v", service.ErrInvalidInput, err)
		}
		return p.recompute(ctx, job.ID, req)

	default:
		return fmt.Errorf("%w: unknown job type %q", service.ErrInvalidInput, job.Type)
	}
}

func (p Processor) recompute(ctx context.Context, jobID string, req dto.RecomputeRequest) error {
	loc := p.Metrics.Location()
	from, err := time.ParseInLocation("2006-01-02", req.From, loc)
	if err != nil {
		return fmt.Errorf("%w: from: %v", service.ErrInvalidInput, err)
	}
	to, err := time.ParseInLocation("2006-01-02", req.To, loc)
	if err != nil {
		return fmt.Errorf("%w: to: %v", service.ErrInvalidInput, err)
	}
	var channelID *uuid.UUID
	if req.ChannelID != nil {
		id, err := uuid.Parse(*req.ChannelID)
		if err != nil {
			return fmt.Errorf("%w: channel_id: %v", service.ErrInvalidInput, err)
		}
		channelID = &id
	}

	report, err := p.Metrics.RecomputeRange(ctx, from, to, channelID)
	if err != nil {
		return err
	}
	evt := log.Info()
	if len(report.Failures) > 0 {
		evt = log.Warn()
	}
	evt.Str("job_id", jobID).
		Int("units", report.Units).
		Int("written", report.Written).
		Int("unchanged", report.Unchanged).
		Int("failures", len(report.Failures)).
		Bool("cancelled", report.Cancelled).
		Msg("recompute job finished")
	if report.Cancelled && report.ResumeFrom != "" {
		rest := req
		rest.From = report.ResumeFrom
		return &rangeInterruptedError{Rest: rest}
	}
	return nil
}

// rangeInterruptedError reports a range recompute stopped by shutdown. Rest
// covers the days it did not finish.
type rangeInterruptedError struct {
	Rest dto.RecomputeRequest
}

func (e *rangeInterruptedError) Error() string {
	return fmt.Sprintf("recompute interrupted, %s..%s left", e.Rest.From, e.Rest.To)
}
