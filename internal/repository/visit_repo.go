package repository

import (
	"context"
	"time"

	"github.com/Nilsonfts/Skvoznaya-analitika/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// VisitTotals is the raw count/revenue rollup for an ad-hoc range.
type VisitTotals struct {
	Visits  int64
	Revenue decimal.Decimal
}

// VisitRepository is append-only: visits are corrected with adjustment rows,
// never updated or deleted.
type VisitRepository interface {
	Create(ctx context.Context, tx *gorm.DB, v *model.Visit) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Visit, error)
	ExistsByReserveID(ctx context.Context, tx *gorm.DB, reserveID string) (bool, error)
	// SumRevenueByChannel sums amounts of visits in [from, to) whose client is
	// attributed to the channel.
	SumRevenueByChannel(ctx context.Context, tx *gorm.DB, channelID uuid.UUID, from, to time.Time) (decimal.Decimal, error)
	Totals(ctx context.Context, channelID *uuid.UUID, from, to time.Time) (VisitTotals, error)
	ListByClient(ctx context.Context, clientID uuid.UUID, limit int) ([]model.Visit, error)
}

type visitRepo struct{ db *gorm.DB }

func NewVisitRepository(db *gorm.DB) VisitRepository { return &visitRepo{db: db} }

func (r *visitRepo) Create(ctx context.Context, tx *gorm.DB, v *model.Visit) error {
	return conn(r.db, tx).WithContext(ctx).Create(v).Error
}

func (r *visitRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Visit, error) {
	var v model.Visit
	err := r.db.WithContext(ctx).First(&v, "id = ?", id).Error
	return &v, err
}

func (r *visitRepo) ExistsByReserveID(ctx context.Context, tx *gorm.DB, reserveID string) (bool, error) {
	var n int64
	err := conn(r.db, tx).WithContext(ctx).Model(&model.Visit{}).
		Where("reserve_id = ?", reserveID).Count(&n).Error
	return n > 0, err
}

func (r *visitRepo) SumRevenueByChannel(ctx context.Context, tx *gorm.DB, channelID uuid.UUID, from, to time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := conn(r.db, tx).WithContext(ctx).Model(&model.Visit{}).
		Select("COALESCE(SUM(visits.amount), 0)").
		Joins("JOIN clients ON clients.id = visits.client_id").
		Where("clients.channel_id = ? AND visits.visit_date >= ? AND visits.visit_date < ?", channelID, from, to).
		Row().Scan(&sum)
	return sum, err
}

func (r *visitRepo) Totals(ctx context.Context, channelID *uuid.UUID, from, to time.Time) (VisitTotals, error) {
	var out VisitTotals
	q := r.db.WithContext(ctx).Model(&model.Visit{}).
		Select("COUNT(*) FILTER (WHERE visits.kind = 'visit') AS visits, COALESCE(SUM(visits.amount), 0) AS revenue").
		Where("visits.visit_date >= ? AND visits.visit_date < ?", from, to)
	if channelID != nil {
		q = q.Joins("JOIN clients ON clients.id = visits.client_id").
			Where("clients.channel_id = ?", *channelID)
	}
	err := q.Scan(&out).Error
	return out, err
}

func (r *visitRepo) ListByClient(ctx context.Context, clientID uuid.UUID, limit int) ([]model.Visit, error) {
	var visits []model.Visit
	err := r.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("visit_date DESC").
		Limit(limit).
		Find(&visits).Error
	return visits, err
}
