package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Nilsonfts/Skvoznaya-analitika/internal/dto"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var msk = time.FixedZone("MSK", 3*60*60)

type stubIngest struct {
	res *dto.EventResult
	err error
	n   int
}

func (s *stubIngest) Ingest(_ context.Context, _ dto.EventRequest) (*dto.EventResult, error) {
	s.n++
	return s.res, s.err
}

type rangeCall struct {
	from, to  time.Time
	channelID *uuid.UUID
}

type stubMetrics struct {
	calls  []rangeCall
	report *dto.RecomputeReport
	err    error
}

func (s *stubMetrics) Recompute(context.Context, uuid.UUID, time.Time) (*dto.ChannelMetricResponse, error) {
	return nil, errors.New("not used")
}

func (s *stubMetrics) RecomputeRange(_ context.Context, from, to time.Time, channelID *uuid.UUID) (*dto.RecomputeReport, error) {
	s.calls = append(s.calls, rangeCall{from, to, channelID})
	if s.err != nil {
		return nil, s.err
	}
	if s.report != nil {
		return s.report, nil
	}
	return &dto.RecomputeReport{}, nil
}

func (s *stubMetrics) ListRange(context.Context, uuid.UUID, time.Time, time.Time) ([]dto.ChannelMetricResponse, error) {
	return nil, nil
}

func (s *stubMetrics) Location() *time.Location { return msk }

type stubLedger struct {
	service.LedgerService
	refreshed int
	changed   int
	err       error
}

func (s *stubLedger) RefreshSegments(context.Context) (int, error) {
	s.refreshed++
	return s.changed, s.err
}

func mustJob(t *testing.T, jobType string, payload any) Job {
	t.Helper()
	job, err := newJob(jobType, payload)
	require.NoError(t, err)
	return job
}

func TestEncodeJob_Envelope(t *testing.T) {
	raw, err := encodeJob(JobEvent, dto.EventRequest{EventType: "lead", Phone: "89991234567", Date: "2026-03-15"})
	require.NoError(t, err)

	var job Job
	require.NoError(t, json.Unmarshal(raw, &job))
	assert.Equal(t, JobEvent, job.Type)
	assert.NotEmpty(t, job.ID)
	assert.Zero(t, job.Attempts)
	assert.Contains(t, string(job.Payload), `"phone":"89991234567"`)
}

func TestHandle_Event(t *testing.T) {
	ingest := &stubIngest{res: &dto.EventResult{Outcome: dto.OutcomeCreated}}
	p := Processor{Ingest: ingest}
	require.NoError(t, p.handle(context.Background(), mustJob(t, JobEvent, dto.EventRequest{EventType: "lead"})))
	assert.Equal(t, 1, ingest.n)
}

func TestHandle_UnattributableStoredCountsAsDone(t *testing.T) {
	ingest := &stubIngest{
		res: &dto.EventResult{Outcome: dto.OutcomeUnattributable},
		err: fmt.Errorf("%w: no channel", service.ErrUnattributable),
	}
	p := Processor{Ingest: ingest}
	assert.NoError(t, p.handle(context.Background(), mustJob(t, JobEvent, dto.EventRequest{EventType: "lead"})))
}

func TestHandle_UnattributableVisitIsNotRetryable(t *testing.T) {
	ingest := &stubIngest{err: fmt.Errorf("%w: visit", service.ErrUnattributable)}
	p := Processor{Ingest: ingest}
	err := p.handle(context.Background(), mustJob(t, JobEvent, dto.EventRequest{EventType: "visit"}))
	require.ErrorIs(t, err, service.ErrUnattributable)
	assert.False(t, service.IsRetryable(err))
}

func TestHandle_TransientErrorIsRetryable(t *testing.T) {
	p := Processor{Ingest: &stubIngest{err: errors.New("connection refused")}}
	err := p.handle(context.Background(), mustJob(t, JobEvent, dto.EventRequest{EventType: "lead"}))
	require.Error(t, err)
	assert.True(t, service.IsRetryable(err))
}

func TestHandle_UnknownType(t *testing.T) {
	p := Processor{}
	err := p.handle(context.Background(), Job{ID: "x", Type: "email", Payload: json.RawMessage(`{}`)})
	assert.ErrorIs(t, err, service.ErrInvalidInput)
}

func TestHandle_RecomputeParsesBusinessDays(t *testing.T) {
	metrics := &stubMetrics{}
	p := Processor{Metrics: metrics}
	ch := uuid.New().String()
	job := mustJob(t, JobRecompute, dto.RecomputeRequest{ChannelID: &ch, From: "2026-03-01", To: "2026-03-03"})

	require.NoError(t, p.handle(context.Background(), job))
	require.Len(t, metrics.calls, 1)
	call := metrics.calls[0]
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, msk), call.from)
	assert.Equal(t, time.Date(2026, 3, 3, 0, 0, 0, 0, msk), call.to)
	require.NotNil(t, call.channelID)
	assert.Equal(t, ch, call.channelID.String())
}

func TestHandle_InterruptedRecomputeCarriesRemainingDays(t *testing.T) {
	metrics := &stubMetrics{report: &dto.RecomputeReport{Units: 3, Written: 3, Cancelled: true, ResumeFrom: "2026-03-04"}}
	p := Processor{Metrics: metrics}
	ch := uuid.New().String()
	job := mustJob(t, JobRecompute, dto.RecomputeRequest{ChannelID: &ch, From: "2026-03-01", To: "2026-03-10"})

	err := p.handle(context.Background(), job)
	var cut *rangeInterruptedError
	require.ErrorAs(t, err, &cut)
	assert.Equal(t, "2026-03-04", cut.Rest.From)
	assert.Equal(t, "2026-03-10", cut.Rest.To)
	require.NotNil(t, cut.Rest.ChannelID)
	assert.Equal(t, ch, *cut.Rest.ChannelID)
	assert.True(t, service.IsRetryable(err))
}

func TestHandle_CompletedRecomputeIsDone(t *testing.T) {
	metrics := &stubMetrics{report: &dto.RecomputeReport{Units: 10, Written: 10}}
	p := Processor{Metrics: metrics}
	job := mustJob(t, JobRecompute, dto.RecomputeRequest{From: "2026-03-01", To: "2026-03-10"})
	assert.NoError(t, p.handle(context.Background(), job))
}

func TestHandle_RecomputeBadPayload(t *testing.T) {
	metrics := &stubMetrics{}
	p := Processor{Metrics: metrics}
	bad := "not-a-uuid"
	cases := []dto.RecomputeRequest{
		{From: "March 1", To: "2026-03-03"},
		{From: "2026-03-01", To: ""},
		{ChannelID: &bad, From: "2026-03-01", To: "2026-03-03"},
	}
	for _, req := range cases {
		err := p.handle(context.Background(), mustJob(t, JobRecompute, req))
		assert.ErrorIs(t, err, service.ErrInvalidInput)
	}
	assert.Empty(t, metrics.calls)
}

func TestRetryBackoff(t *testing.T) {
	assert.Equal(t, time.Duration(0), retryBackoff(0))
	assert.Equal(t, time.Second, retryBackoff(1))
	assert.Equal(t, 2*time.Second, retryBackoff(2))
	assert.Equal(t, 16*time.Second, retryBackoff(5))
	assert.Equal(t, 30*time.Second, retryBackoff(6))
	assert.Equal(t, 30*time.Second, retryBackoff(80))
}

func TestRunSweep(t *testing.T) {
	metrics := &stubMetrics{report: &dto.RecomputeReport{
		Units: 8, Written: 6,
		Failures: []dto.UnitFailure{{ChannelID: "c", Date: "2026-03-19", Error: "boom"}},
	}}
	ledger := &stubLedger{changed: 3}
	now := time.Date(2026, 3, 20, 9, 0, 0, 0, time.UTC)

	res := RunSweep(context.Background(), SweepCronConfig{Metrics: metrics, Ledger: ledger, LookbackDays: 3}, now)

	require.NoError(t, res.Err)
	assert.Equal(t, 8, res.Units)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 3, res.SegmentsChanged)
	require.Len(t, metrics.calls, 1)
	assert.Equal(t, "2026-03-17", metrics.calls[0].from.Format("2006-01-02"))
	assert.Equal(t, "2026-03-20", metrics.calls[0].to.Format("2006-01-02"))
	assert.Nil(t, metrics.calls[0].channelID)
}

func TestRunSweep_CancelledSkipsSegments(t *testing.T) {
	metrics := &stubMetrics{report: &dto.RecomputeReport{Units: 2, Cancelled: true}}
	ledger := &stubLedger{}
	res := RunSweep(context.Background(), SweepCronConfig{Metrics: metrics, Ledger: ledger, LookbackDays: 1}, time.Now())
	assert.NoError(t, res.Err)
	assert.Zero(t, ledger.refreshed)
}

func TestRunSweep_RecomputeError(t *testing.T) {
	metrics := &stubMetrics{err: errors.New("db down")}
	ledger := &stubLedger{}
	res := RunSweep(context.Background(), SweepCronConfig{Metrics: metrics, Ledger: ledger}, time.Now())
	assert.Error(t, res.Err)
	assert.Zero(t, ledger.refreshed)
}
