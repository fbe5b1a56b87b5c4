package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ChannelMetric is the materialized per-(channel, day) performance row.
// It is derived state: rows are rebuilt wholesale by the aggregator and never
// edited by hand.
type ChannelMetric struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ChannelID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_channel_metrics_channel_date,priority:1"`
	// Date is the calendar day at 00:00 UTC
	Date           time.Time       `gorm:"type:date;not null;uniqueIndex:idx_channel_metrics_channel_date,priority:2"`
	LeadsCount     int             `gorm:"not null;default:0"`
	ClientsCount   int             `gorm:"not null;default:0"`
	Revenue        decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0"`
	Cost           decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0"`
	CAC            decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0;column:cac"`
	LTV            decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0;column:ltv"`
	ROI            decimal.Decimal `gorm:"type:decimal(14,4);not null;default:0;column:roi"`
	ConversionRate decimal.Decimal `gorm:"type:decimal(8,4);not null;default:0"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime:false"`
}

// SameValues compares the derived fields, ignoring identity and audit columns.
func (m ChannelMetric) SameValues(o ChannelMetric) bool {
	return m.ChannelID == o.ChannelID &&
		m.Date.Equal(o.Date) &&
		m.LeadsCount == o.LeadsCount &&
		m.ClientsCount == o.ClientsCount &&
		m.Revenue.Equal(o.Revenue) &&
		m.Cost.Equal(o.Cost) &&
		m.CAC.Equal(o.CAC) &&
		m.LTV.Equal(o.LTV) &&
		m.ROI.Equal(o.ROI) &&
		m.ConversionRate.Equal(o.ConversionRate)
}
