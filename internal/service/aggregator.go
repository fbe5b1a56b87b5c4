package service

import (
	"time"

	"github.com/Nilsonfts/Skvoznaya-analitika/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MetricSnapshot is everything one (channel, day) unit is derived from.
type MetricSnapshot struct {
	ChannelID    uuid.UUID
	Day          time.Time // any instant within the day, business timezone
	CostPerMonth decimal.Decimal
	Leads        int64
	// FirstVisits counts clients of the channel whose first visit falls on Day
	FirstVisits int64
	Revenue     decimal.Decimal
	// AvgClientRevenue is the mean total_revenue over all clients of the channel
	AvgClientRevenue decimal.Decimal
}

// ComputeMetric derives the ChannelMetric row from a snapshot. It has no side
// effects: the same snapshot always yields the same row.
func ComputeMetric(s MetricSnapshot) model.ChannelMetric {
	cost := DailyCost(s.CostPerMonth, s.Day)
	clients := decimal.NewFromInt(s.FirstVisits)
	leads := decimal.NewFromInt(s.Leads)
	revenue := s.Revenue.Round(2)

	m := model.ChannelMetric{
		ChannelID:      s.ChannelID,
		Date:           MetricDate(s.Day),
		LeadsCount:     int(s.Leads),
		ClientsCount:   int(s.FirstVisits),
		Revenue:        revenue,
		Cost:           cost,
		CAC:            decimal.Zero,
		LTV:            s.AvgClientRevenue.Round(2),
		ROI:            decimal.Zero,
		ConversionRate: decimal.Zero,
	}
	if s.FirstVisits > 0 {
		m.CAC = cost.Div(clients).Round(2)
	}
	// Zero cost yields ROI 0, not an infinite return.
	if cost.IsPositive() {
		m.ROI = revenue.Sub(cost).Div(cost).Round(4)
	}
	if s.Leads > 0 {
		m.ConversionRate = clients.Div(leads).Round(4)
	}
	return m
}

// DailyCost spreads the monthly budget evenly over the days of the day's month.
func DailyCost(costPerMonth decimal.Decimal, day time.Time) decimal.Decimal {
	if !costPerMonth.IsPositive() {
		return decimal.Zero
	}
	return costPerMonth.Div(decimal.NewFromInt(int64(daysInMonth(day)))).Round(2)
}

func daysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

// DayBounds returns [start, end) of the calendar day containing t in loc.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	lt := t.In(loc)
	start := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// MetricDate is the storage key of a day: its calendar date at 00:00 UTC.
func MetricDate(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
}
