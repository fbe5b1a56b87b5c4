package repository

import (
	"context"
	"time"

	"github.com/Nilsonfts/Skvoznaya-analitika/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type LeadRepository interface {
	Create(ctx context.Context, tx *gorm.DB, l *model.Lead) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Lead, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.LeadStatus, at time.Time) error
	// FindEarliestByContact returns the oldest lead sharing the phone, falling
	// back to the email. Empty identifiers are ignored.
	FindEarliestByContact(ctx context.Context, tx *gorm.DB, phone, email string) (*model.Lead, error)
	LinkClient(ctx context.Context, tx *gorm.DB, leadID, clientID uuid.UUID, status model.LeadStatus, at time.Time) error
	// CountByChannel counts leads of a channel with lead_date in [from, to).
	CountByChannel(ctx context.Context, tx *gorm.DB, channelID uuid.UUID, from, to time.Time) (int64, error)
	// CountRange counts leads in [from, to), optionally restricted to one channel.
	CountRange(ctx context.Context, channelID *uuid.UUID, from, to time.Time) (int64, error)
}

type leadRepo struct{ db *gorm.DB }

func NewLeadRepository(db *gorm.DB) LeadRepository { return &leadRepo{db: db} }

func (r *leadRepo) Create(ctx context.Context, tx *gorm.DB, l *model.Lead) error {
	return conn(r.db, tx).WithContext(ctx).Create(l).Error
}

func (r *leadRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Lead, error) {
	var l model.Lead
	err := r.db.WithContext(ctx).First(&l, "id = ?", id).Error
	return &l, err
}

func (r *leadRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status model.LeadStatus, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.Lead{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "updated_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *leadRepo) FindEarliestByContact(ctx context.Context, tx *gorm.DB, phone, email string) (*model.Lead, error) {
	db := conn(r.db, tx).WithContext(ctx)
	var l model.Lead
	if phone != "" {
		err := db.Where("phone = ?", phone).Order("lead_date ASC, created_at ASC").First(&l).Error
		if err == nil {
			return &l, nil
		}
		if err != gorm.ErrRecordNotFound {
			return nil, err
		}
	}
	if email != "" {
		err := db.Where("email = ?", email).Order("lead_date ASC, created_at ASC").First(&l).Error
		return &l, err
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *leadRepo) LinkClient(ctx context.Context, tx *gorm.DB, leadID, clientID uuid.UUID, status model.LeadStatus, at time.Time) error {
	return conn(r.db, tx).WithContext(ctx).Model(&model.Lead{}).Where("id = ?", leadID).
		Updates(map[string]interface{}{"client_id": clientID, "status": status, "updated_at": at}).Error
}

func (r *leadRepo) CountByChannel(ctx context.Context, tx *gorm.DB, channelID uuid.UUID, from, to time.Time) (int64, error) {
	var n int64
	err := conn(r.db, tx).WithContext(ctx).Model(&model.Lead{}).
		Where("channel_id = ? AND lead_date >= ? AND lead_date < ?", channelID, from, to).
		Count(&n).Error
	return n, err
}

func (r *leadRepo) CountRange(ctx context.Context, channelID *uuid.UUID, from, to time.Time) (int64, error) {
	var n int64
	q := r.db.WithContext(ctx).Model(&model.Lead{}).Where("lead_date >= ? AND lead_date < ?", from, to)
	if channelID != nil {
		q = q.Where("channel_id = ?", *channelID)
	}
	err := q.Count(&n).Error
	return n, err
}
