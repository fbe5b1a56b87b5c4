package repository

import (
	"context"

	"github.com/Nilsonfts/Skvoznaya-analitika/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChannelRepository defines the data access contract for marketing channels.
// Services depend on this interface, not on the concrete GORM implementation,
// enabling clean unit testing via fakes.
type ChannelRepository interface {
	Create(ctx context.Context, c *model.Channel) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Channel, error)
	FindByName(ctx context.Context, name string) (*model.Channel, error)
	List(ctx context.Context, activeOnly bool) ([]model.Channel, error)
	Update(ctx context.Context, c *model.Channel) error
}

type channelRepo struct{ db *gorm.DB }

func NewChannelRepository(db *gorm.DB) ChannelRepository { return &channelRepo{db: db} }

func (r *channelRepo) Create(ctx context.Context, c *model.Channel) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *channelRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Channel, error) {
	var c model.Channel
	err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error
	return &c, err
}

func (r *channelRepo) FindByName(ctx context.Context, name string) (*model.Channel, error) {
	var c model.Channel
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&c).Error
	return &c, err
}

func (r *channelRepo) List(ctx context.Context, activeOnly bool) ([]model.Channel, error) {
	var channels []model.Channel
	q := r.db.WithContext(ctx).Model(&model.Channel{})
	if activeOnly {
		q = q.Where("is_active = true")
	}
	err := q.Order("name ASC").Find(&channels).Error
	return channels, err
}

func (r *channelRepo) Update(ctx context.Context, c *model.Channel) error {
	return r.db.WithContext(ctx).Save(c).Error
}
