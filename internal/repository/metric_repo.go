package repository

import (
	"context"
	"time"

	"github.com/Nilsonfts/Skvoznaya-analitika/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Metric dates are bound as YYYY-MM-DD so the comparison against the date
// column does not depend on the session time zone.
const dateLayout = "2006-01-02"

type MetricRepository interface {
	Find(ctx context.Context, tx *gorm.DB, channelID uuid.UUID, date time.Time) (*model.ChannelMetric, error)
	// Upsert writes the whole (channel_id, date) row, replacing any previous values.
	Upsert(ctx context.Context, tx *gorm.DB, m *model.ChannelMetric) error
	// ListRange returns rows with date in [from, to], ordered by date ascending.
	ListRange(ctx context.Context, channelID uuid.UUID, from, to time.Time) ([]model.ChannelMetric, error)
	DB() *gorm.DB
}

type metricRepo struct{ db *gorm.DB }

func NewMetricRepository(db *gorm.DB) MetricRepository { return &metricRepo{db: db} }

func (r *metricRepo) DB() *gorm.DB { return r.db }

func (r *metricRepo) Find(ctx context.Context, tx *gorm.DB, channelID uuid.UUID, date time.Time) (*model.ChannelMetric, error) {
	var m model.ChannelMetric
	err := conn(r.db, tx).WithContext(ctx).
		Where("channel_id = ? AND date = ?", channelID, date.Format(dateLayout)).
		First(&m).Error
	return &m, err
}

func (r *metricRepo) Upsert(ctx context.Context, tx *gorm.DB, m *model.ChannelMetric) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return conn(r.db, tx).WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "channel_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"leads_count", "clients_count", "revenue", "cost",
			"cac", "ltv", "roi", "conversion_rate", "updated_at",
		}),
	}).Create(m).Error
}

func (r *metricRepo) ListRange(ctx context.Context, channelID uuid.UUID, from, to time.Time) ([]model.ChannelMetric, error) {
	var rows []model.ChannelMetric
	err := r.db.WithContext(ctx).
		Where("channel_id = ? AND date >= ? AND date <= ?", channelID, from.Format(dateLayout), to.Format(dateLayout)).
		Order("date ASC").
		Find(&rows).Error
	return rows, err
}
