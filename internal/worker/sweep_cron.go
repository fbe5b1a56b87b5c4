package worker

// Periodic metrics sweep: rebuilds every active channel's rows for the last
// N business days, then re-classifies client segments.

import (
	"context"
	"time"

	"github.com/Nilsonfts/Skvoznaya-analitika/internal/service"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/telemetry"

	"github.com/rs/zerolog/log"
)

// SweepCronConfig holds all dependencies for the sweep goroutine.
type SweepCronConfig struct {
	Metrics      service.MetricsService
	Ledger       service.LedgerService
	Interval     time.Duration
	LookbackDays int
}

// StartSweepCron launches a background goroutine that runs one sweep per tick.
// A sweep in flight when ctx is cancelled stops between units.
func StartSweepCron(ctx context.Context, cfg SweepCronConfig) {
	if cfg.Interval <= 0 {
		log.Info().Msg("sweep_cron: disabled")
		return
	}
	go func() {
		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()

		log.Info().Dur("interval", cfg.Interval).Int("lookback_days", cfg.LookbackDays).Msg("sweep_cron: started")

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("sweep_cron: shutting down")
				return
			case <-ticker.C:
				RunSweep(ctx, cfg, time.Now())
			}
		}
	}()
}

// RunSweep recomputes [today-lookback, today] in the business timezone.
func RunSweep(ctx context.Context, cfg SweepCronConfig, now time.Time) *SweepResult {
	start := time.Now()
	defer func() { telemetry.SweepDuration.Observe(time.Since(start).Seconds()) }()

	loc := cfg.Metrics.Location()
	today := now.In(loc)
	from := today.AddDate(0, 0, -cfg.LookbackDays)

	res := &SweepResult{}
	report, err := cfg.Metrics.RecomputeRange(ctx, from, today, nil)
	if err != nil {
		log.Error().Err(err).Msg("sweep_cron: recompute failed")
		res.Err = err
		return res
	}
	res.Units, res.Written, res.Failed = report.Units, report.Written, len(report.Failures)
	for _, f := range report.Failures {
		log.Warn().
			Str("channel_id", f.ChannelID).
			Str("date", f.Date).
			Str("error", f.Error).
			Msg("sweep_cron: unit failed")
	}
	if report.Cancelled {
		log.Info().Int("units", report.Units).Msg("sweep_cron: cancelled mid-sweep")
		return res
	}

	if cfg.Ledger != nil {
		n, err := cfg.Ledger.RefreshSegments(ctx)
		if err != nil {
			log.Error().Err(err).Msg("sweep_cron: segment refresh failed")
			res.Err = err
			return res
		}
		res.SegmentsChanged = n
	}

	log.Info().
		Int("units", res.Units).
		Int("written", res.Written).
		Int("failed", res.Failed).
		Int("segments_changed", res.SegmentsChanged).
		Dur("took", time.Since(start)).
		Msg("sweep_cron: sweep finished")
	return res
}

// SweepResult summarises one sweep run.
type SweepResult struct {
	Units           int
	Written         int
	Failed          int
	SegmentsChanged int
	Err             error
}
