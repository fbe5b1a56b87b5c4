package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Nilsonfts/Skvoznaya-analitika/internal/dto"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/model"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/normalize"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// ChannelService is the administrative path for channels. It is the only
// place cost_per_month changes.
type ChannelService interface {
	Create(ctx context.Context, req dto.CreateChannelRequest) (*dto.ChannelResponse, error)
	List(ctx context.Context, includeInactive bool) ([]dto.ChannelResponse, error)
	Get(ctx context.Context, id uuid.UUID) (*dto.ChannelResponse, error)
	Update(ctx context.Context, id uuid.UUID, req dto.UpdateChannelRequest) (*dto.ChannelResponse, error)
}

type channelService struct {
	repo repository.ChannelRepository
	now  func() time.Time
}

func NewChannelService(repo repository.ChannelRepository) ChannelService {
	return &channelService{repo: repo, now: time.Now}
}

func (s *channelService) Create(ctx context.Context, req dto.CreateChannelRequest) (*dto.ChannelResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalid("channel name is required")
	}
	if req.CostPerMonth.IsNegative() {
		return nil, invalid("cost_per_month must be >= 0")
	}
	if _, err := s.repo.FindByName(ctx, name); err == nil {
		return nil, &RecordError{Entity: "channel", ID: name, Constraint: "channels.name", Err: ErrConstraintViolation}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := s.now()
	ch := &model.Channel{
		ID:           uuid.New(),
		Name:         name,
		CostPerMonth: req.CostPerMonth.Round(2),
		Description:  normalize.Text(deref(req.Description)),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, ch); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, &RecordError{Entity: "channel", ID: name, Constraint: "channels.name", Err: ErrConstraintViolation}
		}
		return nil, err
	}
	resp := toChannelResponse(ch)
	return &resp, nil
}

func (s *channelService) List(ctx context.Context, includeInactive bool) ([]dto.ChannelResponse, error) {
	channels, err := s.repo.List(ctx, !includeInactive)
	if err != nil {
		return nil, err
	}
	resp := make([]dto.ChannelResponse, len(channels))
	for i := range channels {
		resp[i] = toChannelResponse(&channels[i])
	}
	return resp, nil
}

func (s *channelService) Get(ctx context.Context, id uuid.UUID) (*dto.ChannelResponse, error) {
	ch, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "channel "+id.String())
	}
	resp := toChannelResponse(ch)
	return &resp, nil
}

func (s *channelService) Update(ctx context.Context, id uuid.UUID, req dto.UpdateChannelRequest) (*dto.ChannelResponse, error) {
	ch, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "channel "+id.String())
	}
	if req.CostPerMonth != nil {
		if req.CostPerMonth.IsNegative() {
			return nil, invalid("cost_per_month must be >= 0")
		}
		if !req.CostPerMonth.Equal(ch.CostPerMonth) {
			log.Info().
				Str("channel_id", ch.ID.String()).
				Str("from", ch.CostPerMonth.String()).
				Str("to", req.CostPerMonth.String()).
				Msg("channel cost changed; recompute affected days to refresh metrics")
		}
		ch.CostPerMonth = req.CostPerMonth.Round(2)
	}
	if req.Description != nil {
		ch.Description = normalize.Text(*req.Description)
	}
	if req.IsActive != nil {
		ch.IsActive = *req.IsActive
	}
	ch.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, ch); err != nil {
		return nil, err
	}
	resp := toChannelResponse(ch)
	return &resp, nil
}

func toChannelResponse(ch *model.Channel) dto.ChannelResponse {
	return dto.ChannelResponse{
		ID:           ch.ID.String(),
		Name:         ch.Name,
		CostPerMonth: ch.CostPerMonth,
		Description:  ch.Description,
		IsActive:     ch.IsActive,
		UpdatedAt:    ch.UpdatedAt.Format(time.RFC3339),
	}
}
