package service

import (
	"context"
	"time"

	"github.com/Nilsonfts/Skvoznaya-analitika/internal/dto"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/model"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReportService answers read-side questions over the ledger and the
// materialized metric rows. It never writes.
type ReportService interface {
	Segments(ctx context.Context) ([]dto.SegmentStatResponse, error)
	ChannelSummary(ctx context.Context, channelID uuid.UUID, from, to time.Time) (*dto.ChannelSummaryResponse, error)
	// Counts reads raw leads/visits for [from, to] (calendar days in the business timezone).
	Counts(ctx context.Context, from, to time.Time, channelID *uuid.UUID) (*dto.CountsResponse, error)
}

type reportService struct {
	channels repository.ChannelRepository
	leads    repository.LeadRepository
	clients  repository.ClientRepository
	visits   repository.VisitRepository
	metrics  repository.MetricRepository
	loc      *time.Location
}

func NewReportService(
	channels repository.ChannelRepository,
	leads repository.LeadRepository,
	clients repository.ClientRepository,
	visits repository.VisitRepository,
	metrics repository.MetricRepository,
	loc *time.Location,
) ReportService {
	if loc == nil {
		loc = time.UTC
	}
	return &reportService{channels: channels, leads: leads, clients: clients, visits: visits, metrics: metrics, loc: loc}
}

func (s *reportService) Segments(ctx context.Context) ([]dto.SegmentStatResponse, error) {
	rows, err := s.clients.SegmentStats(ctx)
	if err != nil {
		return nil, err
	}
	bySegment := make(map[model.Segment]repository.SegmentStat, len(rows))
	var total int64
	for _, r := range rows {
		bySegment[r.Segment] = r
		total += r.Clients
	}

	resp := make([]dto.SegmentStatResponse, 0, len(model.Segments))
	for _, seg := range model.Segments {
		r := bySegment[seg]
		item := dto.SegmentStatResponse{
			Segment:        string(seg),
			Clients:        r.Clients,
			TotalRevenue:   r.TotalRevenue.Round(2),
			AverageRevenue: decimal.Zero,
			AverageVisits:  r.AvgVisits.Round(2),
			AverageCheck:   r.AvgCheck.Round(2),
			Share:          decimal.Zero,
		}
		if r.Clients > 0 {
			item.AverageRevenue = r.TotalRevenue.Div(decimal.NewFromInt(r.Clients)).Round(2)
		}
		if total > 0 {
			item.Share = decimal.NewFromInt(r.Clients).Div(decimal.NewFromInt(total)).Round(4)
		}
		resp = append(resp, item)
	}
	return resp, nil
}

func (s *reportService) ChannelSummary(ctx context.Context, channelID uuid.UUID, from, to time.Time) (*dto.ChannelSummaryResponse, error) {
	ch, err := s.channels.FindByID(ctx, channelID)
	if err != nil {
		return nil, notFound(err, "channel "+channelID.String())
	}
	from, to = MetricDate(from), MetricDate(to)
	if to.Before(from) {
		return nil, invalid("range end is before start")
	}
	rows, err := s.metrics.ListRange(ctx, channelID, from, to)
	if err != nil {
		return nil, err
	}

	sum := dto.ChannelSummaryResponse{
		ChannelID: ch.ID.String(),
		Name:      ch.Name,
		From:      from.Format("2006-01-02"),
		To:        to.Format("2006-01-02"),
		Revenue:   decimal.Zero,
		Cost:      decimal.Zero,
	}
	for _, r := range rows {
		sum.Leads += r.LeadsCount
		sum.Clients += r.ClientsCount
		sum.Revenue = sum.Revenue.Add(r.Revenue)
		sum.Cost = sum.Cost.Add(r.Cost)
	}

	sum.LTV, err = s.clients.AverageRevenue(ctx, nil, ch.ID)
	if err != nil {
		return nil, err
	}
	sum.LTV = sum.LTV.Round(2)

	sum.CAC, sum.ROI, sum.ConversionRate = decimal.Zero, decimal.Zero, decimal.Zero
	if sum.Clients > 0 {
		sum.CAC = sum.Cost.Div(decimal.NewFromInt(int64(sum.Clients))).Round(2)
	}
	if sum.Cost.IsPositive() {
		sum.ROI = sum.Revenue.Sub(sum.Cost).Div(sum.Cost).Round(4)
	}
	if sum.Leads > 0 {
		sum.ConversionRate = decimal.NewFromInt(int64(sum.Clients)).Div(decimal.NewFromInt(int64(sum.Leads))).Round(4)
	}

	lo, _ := DayBounds(time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, s.loc), s.loc)
	_, hi := DayBounds(time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, s.loc), s.loc)
	totals, err := s.visits.Totals(ctx, &ch.ID, lo, hi)
	if err != nil {
		return nil, err
	}
	sum.PaybackVisits = decimal.Zero
	if totals.Visits > 0 && totals.Revenue.IsPositive() {
		avgCheck := totals.Revenue.Div(decimal.NewFromInt(totals.Visits))
		sum.PaybackVisits = sum.CAC.Div(avgCheck).Round(2)
	}
	sum.Rating = ChannelRating(sum.ROI, sum.ConversionRate, sum.CAC)
	return &sum, nil
}

func (s *reportService) Counts(ctx context.Context, from, to time.Time, channelID *uuid.UUID) (*dto.CountsResponse, error) {
	lo, _ := DayBounds(from, s.loc)
	_, hi := DayBounds(to, s.loc)
	if !hi.After(lo) {
		return nil, invalid("range end is before start")
	}
	if channelID != nil {
		if _, err := s.channels.FindByID(ctx, *channelID); err != nil {
			return nil, notFound(err, "channel "+channelID.String())
		}
	}
	leads, err := s.leads.CountRange(ctx, channelID, lo, hi)
	if err != nil {
		return nil, err
	}
	totals, err := s.visits.Totals(ctx, channelID, lo, hi)
	if err != nil {
		return nil, err
	}
	return &dto.CountsResponse{
		From:    lo.Format("2006-01-02"),
		To:      hi.AddDate(0, 0, -1).Format("2006-01-02"),
		Leads:   leads,
		Visits:  totals.Visits,
		Revenue: totals.Revenue.Round(2),
	}, nil
}

var (
	five         = decimal.NewFromInt(5)
	cacBest      = decimal.NewFromInt(10000)
	cacWorst     = decimal.NewFromInt(50000)
	ratingROIW   = decimal.RequireFromString("0.5")
	ratingConvW  = decimal.RequireFromString("0.3")
	ratingCACW   = decimal.RequireFromString("0.2")
	roiScoreMult = decimal.RequireFromString("2.5")
)

// ChannelRating scores a channel from 1 to 5: half ROI, 30% conversion, 20% CAC.
func ChannelRating(roi, conversion, cac decimal.Decimal) decimal.Decimal {
	roiScore := clamp(roi.Add(decimal.NewFromInt(1)).Mul(roiScoreMult), decimal.Zero, five)
	convScore := clamp(conversion.Mul(decimal.NewFromInt(10)), decimal.Zero, five)

	var cacScore decimal.Decimal
	switch {
	case cac.LessThanOrEqual(cacBest):
		cacScore = five
	case cac.GreaterThanOrEqual(cacWorst):
		cacScore = decimal.NewFromInt(1)
	default:
		// linear from 5 at cacBest down to 1 at cacWorst
		span := cacWorst.Sub(cacBest)
		cacScore = five.Sub(cac.Sub(cacBest).Div(span).Mul(decimal.NewFromInt(4)))
	}

	rating := roiScore.Mul(ratingROIW).Add(convScore.Mul(ratingConvW)).Add(cacScore.Mul(ratingCACW))
	return clamp(rating, decimal.NewFromInt(1), five).Round(2)
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}
