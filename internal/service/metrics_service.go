package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Nilsonfts/Skvoznaya-analitika/internal/dto"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/model"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/repository"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/telemetry"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const maxMetricRangeDays = 366

type MetricsService interface {
	// Recompute rebuilds the (channel, day) row. day is interpreted in the business timezone.
	Recompute(ctx context.Context, channelID uuid.UUID, day time.Time) (*dto.ChannelMetricResponse, error)
	// RecomputeRange sweeps [from, to] ascending by date. A nil channelID means
	// every active channel. Unit failures are collected, not fatal.
	RecomputeRange(ctx context.Context, from, to time.Time, channelID *uuid.UUID) (*dto.RecomputeReport, error)
	ListRange(ctx context.Context, channelID uuid.UUID, from, to time.Time) ([]dto.ChannelMetricResponse, error)
	Location() *time.Location
}

// MetricsOptions carries the aggregation settings from config.
type MetricsOptions struct {
	Location    *time.Location
	Concurrency int
	CacheTTL    time.Duration
}

type metricsService struct {
	channels repository.ChannelRepository
	leads    repository.LeadRepository
	clients  repository.ClientRepository
	visits   repository.VisitRepository
	metrics  repository.MetricRepository
	cache    *metricCache
	opts     MetricsOptions
	now      func() time.Time
}

func NewMetricsService(
	channels repository.ChannelRepository,
	leads repository.LeadRepository,
	clients repository.ClientRepository,
	visits repository.VisitRepository,
	metrics repository.MetricRepository,
	rdb *redis.Client,
	opts MetricsOptions,
) MetricsService {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &metricsService{
		channels: channels,
		leads:    leads,
		clients:  clients,
		visits:   visits,
		metrics:  metrics,
		cache:    newMetricCache(rdb, opts.CacheTTL),
		opts:     opts,
		now:      time.Now,
	}
}

func (s *metricsService) Location() *time.Location { return s.opts.Location }

func (s *metricsService) Recompute(ctx context.Context, channelID uuid.UUID, day time.Time) (*dto.ChannelMetricResponse, error) {
	ch, err := s.channels.FindByID(ctx, channelID)
	if err != nil {
		return nil, notFound(err, "channel "+channelID.String())
	}
	m, _, err := s.recomputeUnit(ctx, ch, day)
	if err != nil {
		return nil, err
	}
	resp := toMetricResponse(m)
	return &resp, nil
}

// recomputeUnit gathers the snapshot, computes the row and writes it in one
// transaction. The bool reports whether the stored row changed.
func (s *metricsService) recomputeUnit(ctx context.Context, ch *model.Channel, day time.Time) (model.ChannelMetric, bool, error) {
	from, to := DayBounds(day, s.opts.Location)
	var (
		out     model.ChannelMetric
		written bool
	)
	err := runTx(ctx, s.metrics.DB(), func(tx *gorm.DB) error {
		snap := MetricSnapshot{ChannelID: ch.ID, Day: from, CostPerMonth: ch.CostPerMonth}
		var err error
		if snap.Leads, err = s.leads.CountByChannel(ctx, tx, ch.ID, from, to); err != nil {
			return fmt.Errorf("%w: count leads: %v", ErrAggregationInconsistency, err)
		}
		if snap.FirstVisits, err = s.clients.CountFirstVisits(ctx, tx, ch.ID, from, to); err != nil {
			return fmt.Errorf("%w: count first visits: %v", ErrAggregationInconsistency, err)
		}
		if snap.Revenue, err = s.visits.SumRevenueByChannel(ctx, tx, ch.ID, from, to); err != nil {
			return fmt.Errorf("%w: sum revenue: %v", ErrAggregationInconsistency, err)
		}
		if snap.AvgClientRevenue, err = s.clients.AverageRevenue(ctx, tx, ch.ID); err != nil {
			return fmt.Errorf("%w: average client revenue: %v", ErrAggregationInconsistency, err)
		}

		m := ComputeMetric(snap)
		existing, err := s.metrics.Find(ctx, tx, ch.ID, m.Date)
		switch {
		case err == nil:
			if existing.SameValues(m) {
				out = *existing
				return nil
			}
			m.ID = existing.ID
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
		m.UpdatedAt = s.now()
		if err := s.metrics.Upsert(ctx, tx, &m); err != nil {
			return err
		}
		out = m
		written = true
		return nil
	})
	if err != nil {
		telemetry.MetricUnits.WithLabelValues("failed").Inc()
		return model.ChannelMetric{}, false, &UnitError{ChannelID: ch.ID.String(), Date: MetricDate(from), Err: err}
	}
	if written {
		telemetry.MetricUnits.WithLabelValues("written").Inc()
		s.cache.invalidate(ctx, ch.ID)
	} else {
		telemetry.MetricUnits.WithLabelValues("unchanged").Inc()
	}
	return out, written, nil
}

func (s *metricsService) RecomputeRange(ctx context.Context, from, to time.Time, channelID *uuid.UUID) (*dto.RecomputeReport, error) {
	start, _ := DayBounds(from, s.opts.Location)
	end, _ := DayBounds(to, s.opts.Location)
	if end.Before(start) {
		return nil, invalid("range end %s is before start %s", end.Format("2006-01-02"), start.Format("2006-01-02"))
	}

	var channels []model.Channel
	if channelID != nil {
		ch, err := s.channels.FindByID(ctx, *channelID)
		if err != nil {
			return nil, notFound(err, "channel "+channelID.String())
		}
		channels = []model.Channel{*ch}
	} else {
		var err error
		if channels, err = s.channels.List(ctx, true); err != nil {
			return nil, err
		}
	}

	began := time.Now()
	defer func() { telemetry.SweepDuration.Observe(time.Since(began).Seconds()) }()

	report := &dto.RecomputeReport{Failures: []dto.UnitFailure{}}
	var mu sync.Mutex
	day := start
	for ; !day.After(end); day = day.AddDate(0, 0, 1) {
		if ctx.Err() != nil {
			break
		}
		g := new(errgroup.Group)
		g.SetLimit(s.opts.Concurrency)
		for i := range channels {
			ch := &channels[i]
			d := day
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				_, written, err := s.recomputeUnit(ctx, ch, d)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err != nil && ctx.Err() != nil:
					// interrupted mid-unit; its transaction rolled back
				case err != nil:
					report.Units++
					report.Failures = append(report.Failures, dto.UnitFailure{
						ChannelID: ch.ID.String(),
						Date:      MetricDate(d).Format("2006-01-02"),
						Error:     err.Error(),
					})
					log.Error().Err(err).Str("channel_id", ch.ID.String()).Time("date", d).Msg("metric unit failed")
				case written:
					report.Units++
					report.Written++
				default:
					report.Units++
					report.Unchanged++
				}
				return nil
			})
		}
		_ = g.Wait()
		if ctx.Err() != nil {
			// units of this day may have rolled back
			break
		}
	}
	if !day.After(end) {
		report.Cancelled = true
		report.ResumeFrom = MetricDate(day).Format("2006-01-02")
	}

	log.Info().
		Time("from", start).
		Time("to", end).
		Int("units", report.Units).
		Int("written", report.Written).
		Int("failed", len(report.Failures)).
		Bool("cancelled", report.Cancelled).
		Msg("metric sweep finished")
	return report, nil
}

func (s *metricsService) ListRange(ctx context.Context, channelID uuid.UUID, from, to time.Time) ([]dto.ChannelMetricResponse, error) {
	from, to = MetricDate(from), MetricDate(to)
	if to.Before(from) {
		return nil, invalid("range end is before start")
	}
	if to.Sub(from) > maxMetricRangeDays*24*time.Hour {
		return nil, invalid("range exceeds %d days", maxMetricRangeDays)
	}
	if _, err := s.channels.FindByID(ctx, channelID); err != nil {
		return nil, notFound(err, "channel "+channelID.String())
	}
	cached, ver, ok := s.cache.get(ctx, channelID, from, to)
	if ok {
		return cached, nil
	}

	rows, err := s.metrics.ListRange(ctx, channelID, from, to)
	if err != nil {
		return nil, err
	}
	resp := make([]dto.ChannelMetricResponse, len(rows))
	for i := range rows {
		resp[i] = toMetricResponse(rows[i])
	}
	s.cache.set(ctx, channelID, ver, from, to, resp)
	return resp, nil
}

func toMetricResponse(m model.ChannelMetric) dto.ChannelMetricResponse {
	return dto.ChannelMetricResponse{
		ChannelID:      m.ChannelID.String(),
		Date:           m.Date.Format("2006-01-02"),
		LeadsCount:     m.LeadsCount,
		ClientsCount:   m.ClientsCount,
		Revenue:        m.Revenue,
		Cost:           m.Cost,
		CAC:            m.CAC,
		LTV:            m.LTV,
		ROI:            m.ROI,
		ConversionRate: m.ConversionRate,
		UpdatedAt:      m.UpdatedAt.Format(time.RFC3339),
	}
}
