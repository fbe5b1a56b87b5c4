package repository

import (
	"context"
	"time"

	"github.com/Nilsonfts/Skvoznaya-analitika/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SegmentStat is one row of the per-segment rollup.
type SegmentStat struct {
	Segment      model.Segment
	Clients      int64
	TotalRevenue decimal.Decimal
	AvgVisits    decimal.Decimal
	AvgCheck     decimal.Decimal
}

// ContactPatch carries the contact fields an inbound record may fill in. Nil fields are left alone.
type ContactPatch struct {
	Name  *string
	Phone *string
	Email *string
}

func (p ContactPatch) Empty() bool { return p.Name == nil && p.Phone == nil && p.Email == nil }

type ClientRepository interface {
	Create(ctx context.Context, tx *gorm.DB, c *model.Client) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Client, error)
	FindByPhone(ctx context.Context, tx *gorm.DB, phone string) (*model.Client, error)
	FindByEmail(ctx context.Context, tx *gorm.DB, email string) (*model.Client, error)
	// LockByID loads the client with SELECT ... FOR UPDATE. tx must be an open transaction.
	LockByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Client, error)
	// UpdateLedger writes the visit aggregates and segment of a row locked by LockByID.
	UpdateLedger(ctx context.Context, tx *gorm.DB, c *model.Client) error
	// FillContact sets the patched contact columns only where they are still NULL.
	FillContact(ctx context.Context, tx *gorm.DB, id uuid.UUID, p ContactPatch, at time.Time) error
	// SetFirstTouch attributes a client that has neither channel nor lead.
	// It reports false when the row was already attributed.
	SetFirstTouch(ctx context.Context, tx *gorm.DB, id uuid.UUID, channelID, leadID *uuid.UUID, at time.Time) (bool, error)
	// UpdateSegment stores a segment classified from snapshot. The write only
	// lands while total_visits and last_visit_date still match the snapshot.
	UpdateSegment(ctx context.Context, snapshot *model.Client, segment model.Segment, at time.Time) (bool, error)
	// CountFirstVisits counts clients of a channel whose first visit falls in [from, to).
	CountFirstVisits(ctx context.Context, tx *gorm.DB, channelID uuid.UUID, from, to time.Time) (int64, error)
	// AverageRevenue is the mean total_revenue over every client attributed to the channel.
	AverageRevenue(ctx context.Context, tx *gorm.DB, channelID uuid.UUID) (decimal.Decimal, error)
	// ListBatch pages through clients ordered by id, starting after afterID.
	ListBatch(ctx context.Context, afterID uuid.UUID, limit int) ([]model.Client, error)
	SegmentStats(ctx context.Context) ([]SegmentStat, error)
	DB() *gorm.DB
}

type clientRepo struct{ db *gorm.DB }

func NewClientRepository(db *gorm.DB) ClientRepository { return &clientRepo{db: db} }

func (r *clientRepo) DB() *gorm.DB { return r.db }

// Create inserts the client. Inside a transaction the insert runs behind a
// savepoint so a unique-key conflict leaves the transaction usable.
func (r *clientRepo) Create(ctx context.Context, tx *gorm.DB, c *model.Client) error {
	if tx == nil {
		return r.db.WithContext(ctx).Create(c).Error
	}
	db := tx.WithContext(ctx)
	if err := db.SavePoint("client_create").Error; err != nil {
		return err
	}
	if err := db.Create(c).Error; err != nil {
		db.RollbackTo("client_create")
		return err
	}
	return nil
}

func (r *clientRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Client, error) {
	var c model.Client
	err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error
	return &c, err
}

func (r *clientRepo) FindByPhone(ctx context.Context, tx *gorm.DB, phone string) (*model.Client, error) {
	var c model.Client
	err := conn(r.db, tx).WithContext(ctx).Where("phone = ?", phone).First(&c).Error
	return &c, err
}

func (r *clientRepo) FindByEmail(ctx context.Context, tx *gorm.DB, email string) (*model.Client, error) {
	// Several email-only rows may share an address; the oldest one wins.
	var c model.Client
	err := conn(r.db, tx).WithContext(ctx).Where("email = ?", email).
		Order("created_at ASC").First(&c).Error
	return &c, err
}

func (r *clientRepo) LockByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Client, error) {
	var c model.Client
	err := conn(r.db, tx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&c, "id = ?", id).Error
	return &c, err
}

var ledgerColumns = []string{
	"first_visit_date", "last_visit_date", "total_visits", "total_revenue",
	"average_check", "segment", "updated_at",
}

func (r *clientRepo) UpdateLedger(ctx context.Context, tx *gorm.DB, c *model.Client) error {
	res := conn(r.db, tx).WithContext(ctx).Model(c).Select(ledgerColumns).Updates(c)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *clientRepo) FillContact(ctx context.Context, tx *gorm.DB, id uuid.UUID, p ContactPatch, at time.Time) error {
	if p.Empty() {
		return nil
	}
	fields := map[string]interface{}{"updated_at": at}
	if p.Name != nil {
		fields["name"] = gorm.Expr("COALESCE(name, ?)", *p.Name)
	}
	if p.Phone != nil {
		fields["phone"] = gorm.Expr("COALESCE(phone, ?)", *p.Phone)
	}
	if p.Email != nil {
		fields["email"] = gorm.Expr("COALESCE(email, ?)", *p.Email)
	}
	return conn(r.db, tx).WithContext(ctx).Model(&model.Client{}).Where("id = ?", id).Updates(fields).Error
}

func (r *clientRepo) SetFirstTouch(ctx context.Context, tx *gorm.DB, id uuid.UUID, channelID, leadID *uuid.UUID, at time.Time) (bool, error) {
	res := conn(r.db, tx).WithContext(ctx).Model(&model.Client{}).
		Where("id = ? AND channel_id IS NULL AND lead_id IS NULL", id).
		Updates(map[string]interface{}{"channel_id": channelID, "lead_id": leadID, "updated_at": at})
	return res.RowsAffected > 0, res.Error
}

func (r *clientRepo) UpdateSegment(ctx context.Context, snapshot *model.Client, segment model.Segment, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Client{}).
		Where("id = ? AND total_visits = ? AND last_visit_date IS NOT DISTINCT FROM ?",
			snapshot.ID, snapshot.TotalVisits, snapshot.LastVisitDate).
		Updates(map[string]interface{}{"segment": segment, "updated_at": at})
	return res.RowsAffected > 0, res.Error
}

func (r *clientRepo) CountFirstVisits(ctx context.Context, tx *gorm.DB, channelID uuid.UUID, from, to time.Time) (int64, error) {
	var n int64
	err := conn(r.db, tx).WithContext(ctx).Model(&model.Client{}).
		Where("channel_id = ? AND first_visit_date >= ? AND first_visit_date < ?", channelID, from, to).
		Count(&n).Error
	return n, err
}

func (r *clientRepo) AverageRevenue(ctx context.Context, tx *gorm.DB, channelID uuid.UUID) (decimal.Decimal, error) {
	var avg decimal.Decimal
	err := conn(r.db, tx).WithContext(ctx).Model(&model.Client{}).
		Select("COALESCE(AVG(total_revenue), 0)").
		Where("channel_id = ?", channelID).
		Row().Scan(&avg)
	return avg, err
}

func (r *clientRepo) ListBatch(ctx context.Context, afterID uuid.UUID, limit int) ([]model.Client, error) {
	var clients []model.Client
	err := r.db.WithContext(ctx).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&clients).Error
	return clients, err
}

func (r *clientRepo) SegmentStats(ctx context.Context) ([]SegmentStat, error) {
	var rows []SegmentStat
	err := r.db.WithContext(ctx).Model(&model.Client{}).
		Select(`segment,
			COUNT(*) AS clients,
			COALESCE(SUM(total_revenue), 0) AS total_revenue,
			COALESCE(AVG(total_visits), 0) AS avg_visits,
			COALESCE(AVG(average_check), 0) AS avg_check`).
		Group("segment").
		Scan(&rows).Error
	return rows, err
}
