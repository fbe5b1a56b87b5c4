package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Nilsonfts/Skvoznaya-analitika/internal/model"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const segmentRefreshBatch = 500

// LedgerService owns every mutation of a client's cumulative state.
type LedgerService interface {
	// ApplyVisit locks the client row, inserts the visit and folds it into the
	// client's aggregates. It must run inside tx; callers use RecordVisit otherwise.
	ApplyVisit(ctx context.Context, tx *gorm.DB, clientID uuid.UUID, v *model.Visit) (*model.Client, error)
	RecordVisit(ctx context.Context, clientID uuid.UUID, v *model.Visit) (*model.Client, error)
	// RefreshSegments re-evaluates every client's segment against the current time.
	RefreshSegments(ctx context.Context) (int, error)
	Policy() model.SegmentPolicy
}

type ledgerService struct {
	clients repository.ClientRepository
	visits  repository.VisitRepository
	policy  model.SegmentPolicy
	now     func() time.Time
}

func NewLedgerService(clients repository.ClientRepository, visits repository.VisitRepository, policy model.SegmentPolicy) LedgerService {
	return &ledgerService{clients: clients, visits: visits, policy: policy, now: time.Now}
}

func (s *ledgerService) Policy() model.SegmentPolicy { return s.policy }

func (s *ledgerService) RecordVisit(ctx context.Context, clientID uuid.UUID, v *model.Visit) (*model.Client, error) {
	var out *model.Client
	err := runTx(ctx, s.clients.DB(), func(tx *gorm.DB) error {
		c, err := s.ApplyVisit(ctx, tx, clientID, v)
		out = c
		return err
	})
	return out, err
}

func (s *ledgerService) ApplyVisit(ctx context.Context, tx *gorm.DB, clientID uuid.UUID, v *model.Visit) (*model.Client, error) {
	if err := validateVisit(v); err != nil {
		return nil, err
	}

	c, err := s.clients.LockByID(ctx, tx, clientID)
	if err != nil {
		return nil, notFound(err, "client "+clientID.String())
	}

	now := s.now()
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	v.ClientID = c.ID
	v.CreatedAt = now
	if err := s.visits.Create(ctx, tx, v); err != nil {
		return nil, err
	}

	applyVisit(c, v, s.policy, now)
	if err := s.clients.UpdateLedger(ctx, tx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func validateVisit(v *model.Visit) error {
	if v.Kind == "" {
		v.Kind = model.VisitRegular
	}
	if !v.Kind.Valid() {
		return invalid("unknown visit kind %q", v.Kind)
	}
	if v.Kind == model.VisitRegular && v.Amount.IsNegative() {
		return invalid("visit amount must be >= 0, got %s", v.Amount)
	}
	if v.VisitDate.IsZero() {
		return invalid("visit date is required")
	}
	if v.GuestsCount <= 0 {
		v.GuestsCount = 1
	}
	return nil
}

// applyVisit folds one visit into the client's aggregates. Regular visits count
// as attendance; adjustments move revenue only.
func applyVisit(c *model.Client, v *model.Visit, policy model.SegmentPolicy, now time.Time) {
	c.TotalRevenue = c.TotalRevenue.Add(v.Amount)
	if v.Kind == model.VisitRegular {
		c.TotalVisits++
		d := v.VisitDate
		if c.FirstVisitDate == nil || d.Before(*c.FirstVisitDate) {
			c.FirstVisitDate = &d
		}
		if c.LastVisitDate == nil || d.After(*c.LastVisitDate) {
			last := d
			c.LastVisitDate = &last
		}
	}
	c.AverageCheck = averageCheck(c.TotalRevenue, c.TotalVisits)
	c.Segment = policy.Classify(c.TotalVisits, c.LastVisitDate, now)
	c.UpdatedAt = now
}

func averageCheck(revenue decimal.Decimal, visits int) decimal.Decimal {
	if visits == 0 {
		return decimal.Zero
	}
	return revenue.Div(decimal.NewFromInt(int64(visits))).Round(2)
}

func (s *ledgerService) RefreshSegments(ctx context.Context) (int, error) {
	now := s.now()
	changed := 0
	after := uuid.Nil
	for {
		if err := ctx.Err(); err != nil {
			return changed, err
		}
		batch, err := s.clients.ListBatch(ctx, after, segmentRefreshBatch)
		if err != nil {
			return changed, fmt.Errorf("list clients: %w", err)
		}
		for i := range batch {
			c := &batch[i]
			seg := s.policy.Classify(c.TotalVisits, c.LastVisitDate, now)
			if seg == c.Segment {
				continue
			}
			// A visit landing after the snapshot already reclassified the client.
			ok, err := s.clients.UpdateSegment(ctx, c, seg, now)
			if err != nil {
				return changed, fmt.Errorf("update segment of client %s: %w", c.ID, err)
			}
			if ok {
				changed++
			}
		}
		if len(batch) < segmentRefreshBatch {
			break
		}
		after = batch[len(batch)-1].ID
	}
	log.Info().Int("changed", changed).Msg("segment refresh complete")
	return changed, nil
}
