package repository

import (
	"context"

	"github.com/Nilsonfts/Skvoznaya-analitika/internal/model"

	"gorm.io/gorm"
)

type ReserveRepository interface {
	FindByReserveID(ctx context.Context, tx *gorm.DB, reserveID string) (*model.Reserve, error)
	Create(ctx context.Context, tx *gorm.DB, rs *model.Reserve) error
	Update(ctx context.Context, tx *gorm.DB, rs *model.Reserve) error
}

type reserveRepo struct{ db *gorm.DB }

func NewReserveRepository(db *gorm.DB) ReserveRepository { return &reserveRepo{db: db} }

func (r *reserveRepo) FindByReserveID(ctx context.Context, tx *gorm.DB, reserveID string) (*model.Reserve, error) {
	var rs model.Reserve
	err := conn(r.db, tx).WithContext(ctx).Where("reserve_id = ?", reserveID).First(&rs).Error
	return &rs, err
}

func (r *reserveRepo) Create(ctx context.Context, tx *gorm.DB, rs *model.Reserve) error {
	return conn(r.db, tx).WithContext(ctx).Create(rs).Error
}

func (r *reserveRepo) Update(ctx context.Context, tx *gorm.DB, rs *model.Reserve) error {
	return conn(r.db, tx).WithContext(ctx).Save(rs).Error
}
