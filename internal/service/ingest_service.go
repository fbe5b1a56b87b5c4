package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/Nilsonfts/Skvoznaya-analitika/internal/dto"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/model"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/normalize"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/repository"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/telemetry"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// IngestService turns normalized inbound events into leads, visits and reserves.
// Each event is applied in its own transaction.
type IngestService interface {
	// Ingest applies one event. For unattributable leads and reserves the raw
	// record is still stored: the result is returned together with an error
	// wrapping ErrUnattributable.
	Ingest(ctx context.Context, req dto.EventRequest) (*dto.EventResult, error)
}

type ingestService struct {
	channels repository.ChannelRepository
	leads    repository.LeadRepository
	clients  repository.ClientRepository
	visits   repository.VisitRepository
	reserves repository.ReserveRepository
	resolver IdentityResolver
	ledger   LedgerService
	loc      *time.Location
	now      func() time.Time
}

func NewIngestService(
	channels repository.ChannelRepository,
	leads repository.LeadRepository,
	clients repository.ClientRepository,
	visits repository.VisitRepository,
	reserves repository.ReserveRepository,
	resolver IdentityResolver,
	ledger LedgerService,
	loc *time.Location,
) IngestService {
	if loc == nil {
		loc = time.UTC
	}
	return &ingestService{
		channels: channels,
		leads:    leads,
		clients:  clients,
		visits:   visits,
		reserves: reserves,
		resolver: resolver,
		ledger:   ledger,
		loc:      loc,
		now:      time.Now,
	}
}

func (s *ingestService) Ingest(ctx context.Context, req dto.EventRequest) (*dto.EventResult, error) {
	var (
		res *dto.EventResult
		err error
	)
	switch req.EventType {
	case dto.EventLead:
		res, err = s.ingestLead(ctx, req)
	case dto.EventVisit:
		res, err = s.ingestVisit(ctx, req)
	case dto.EventReserve:
		res, err = s.ingestReserve(ctx, req)
	default:
		err = invalid("unknown event_type %q", req.EventType)
	}

	outcome := "failed"
	if res != nil {
		outcome = res.Outcome
	}
	telemetry.EventsIngested.WithLabelValues(req.EventType, outcome).Inc()
	if err != nil {
		log.Warn().Err(err).Str("event_type", req.EventType).Str("outcome", outcome).Msg("ingest: event not fully applied")
	}
	return res, err
}

// ── Leads ─────────────────────────────────────────────────────────────────────
// A lead never creates a client. It is matched to an existing one when possible
// and then backfills that client's first touch.

func (s *ingestService) ingestLead(ctx context.Context, req dto.EventRequest) (*dto.EventResult, error) {
	date, err := ParseEventDate(req.Date, s.loc)
	if err != nil {
		return nil, err
	}
	channelID, err := s.resolveChannel(ctx, req)
	if err != nil {
		return nil, err
	}
	status := model.LeadNew
	if req.Status != "" {
		status = model.LeadStatus(strings.ToLower(req.Status))
		if !status.Valid() {
			return nil, invalid("unknown lead status %q", req.Status)
		}
	}

	now := s.now()
	phone, email := normalize.Phone(req.Phone), normalize.Email(req.Email)
	lead := &model.Lead{
		ID:          uuid.New(),
		Name:        normalize.Text(req.Name),
		Phone:       normalize.Ptr(phone),
		Email:       normalize.Ptr(email),
		ChannelID:   channelID,
		Source:      normalize.Text(req.Source),
		UTMSource:   normalize.Text(req.UTMSource),
		UTMMedium:   normalize.Text(req.UTMMedium),
		UTMCampaign: normalize.Text(req.UTMCampaign),
		LeadDate:    date,
		Status:      status,
		Notes:       normalize.Text(req.Notes),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	res := &dto.EventResult{EventType: dto.EventLead, Outcome: dto.OutcomeCreated, LeadID: strPtr(lead.ID.String())}

	if phone == "" && email == "" {
		if err := s.leads.Create(ctx, nil, lead); err != nil {
			return nil, err
		}
		res.Outcome = dto.OutcomeUnattributable
		return res, &RecordError{Entity: "lead", ID: lead.ID.String(), Constraint: "phone_or_email", Err: ErrUnattributable}
	}

	err = runTx(ctx, s.clients.DB(), func(tx *gorm.DB) error {
		if err := s.leads.Create(ctx, tx, lead); err != nil {
			return err
		}
		r, err := s.resolver.Resolve(ctx, tx, Identity{
			Phone:     phone,
			Email:     email,
			Name:      req.Name,
			ChannelID: lead.ChannelID,
			LeadID:    &lead.ID,
		}, false)
		if err != nil || r.Client == nil {
			return err
		}
		res.Outcome = dto.OutcomeMatched
		res.ClientID = strPtr(r.Client.ID.String())
		if r.Attributed {
			// the resolver already linked the lead and marked it converted
			return nil
		}
		return s.leads.LinkClient(ctx, tx, lead.ID, r.Client.ID, lead.Status, now)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ── Visits ────────────────────────────────────────────────────────────────────

func (s *ingestService) ingestVisit(ctx context.Context, req dto.EventRequest) (*dto.EventResult, error) {
	date, err := ParseEventDate(req.Date, s.loc)
	if err != nil {
		return nil, err
	}
	if req.Amount == nil {
		return nil, invalid("amount is required for visits")
	}
	if req.Amount.IsNegative() {
		return nil, invalid("visit amount must be >= 0, got %s", req.Amount)
	}
	ident, err := s.identity(ctx, req)
	if err != nil {
		return nil, err
	}

	var explicitClient *uuid.UUID
	if req.ClientID != nil {
		id, err := uuid.Parse(*req.ClientID)
		if err != nil {
			return nil, invalid("client_id: %v", err)
		}
		explicitClient = &id
	} else if normalize.Phone(req.Phone) == "" && normalize.Email(req.Email) == "" {
		return nil, &RecordError{Entity: "visit", Constraint: "phone_or_email", Err: ErrUnattributable}
	}

	visit := &model.Visit{
		VisitDate:       date,
		Amount:          req.Amount.Round(2),
		Kind:            model.VisitRegular,
		GuestsCount:     req.GuestsCount,
		DurationMinutes: req.DurationMinutes,
		RoomType:        normalize.Text(req.RoomType),
		Services:        normalize.Text(req.Services),
		Notes:           normalize.Text(req.Notes),
		ReserveID:       normalize.Text(req.ReserveID),
	}
	res := &dto.EventResult{EventType: dto.EventVisit, Outcome: dto.OutcomeCreated}

	err = runTx(ctx, s.clients.DB(), func(tx *gorm.DB) error {
		if visit.ReserveID != nil {
			exists, err := s.visits.ExistsByReserveID(ctx, tx, *visit.ReserveID)
			if err != nil {
				return err
			}
			if exists {
				res.Outcome = dto.OutcomeDuplicate
				return nil
			}
		}

		var clientID uuid.UUID
		if explicitClient != nil {
			clientID = *explicitClient
		} else {
			r, err := s.resolver.Resolve(ctx, tx, ident, true)
			if err != nil {
				return err
			}
			clientID = r.Client.ID
			res.ClientCreated = r.Created
		}

		c, err := s.ledger.ApplyVisit(ctx, tx, clientID, visit)
		if err != nil {
			return err
		}
		res.ClientID = strPtr(c.ID.String())
		res.VisitID = strPtr(visit.ID.String())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ── Reserves ──────────────────────────────────────────────────────────────────
// Reserves are upserted by reserve_id. A realised reserve (closed/paid with a
// positive amount) that resolves to a client produces exactly one visit.

func (s *ingestService) ingestReserve(ctx context.Context, req dto.EventRequest) (*dto.EventResult, error) {
	reserveID := strings.TrimSpace(req.ReserveID)
	if reserveID == "" {
		return nil, invalid("reserve_id is required for reserves")
	}
	if strings.TrimSpace(req.Status) == "" {
		return nil, invalid("status is required for reserves")
	}
	date, err := ParseEventDate(req.Date, s.loc)
	if err != nil {
		return nil, err
	}
	amount := decimal.Zero
	if req.Amount != nil {
		if req.Amount.IsNegative() {
			return nil, invalid("reserve amount must be >= 0, got %s", req.Amount)
		}
		amount = req.Amount.Round(2)
	}
	ident, err := s.identity(ctx, req)
	if err != nil {
		return nil, err
	}
	guests := req.GuestsCount
	if guests <= 0 {
		guests = 1
	}

	phone, email := normalize.Phone(req.Phone), normalize.Email(req.Email)
	now := s.now()
	incoming := model.Reserve{
		ReserveID:   reserveID,
		Name:        normalize.Text(req.Name),
		Phone:       normalize.Ptr(phone),
		Email:       normalize.Ptr(email),
		ReservedAt:  date,
		Status:      strings.ToLower(strings.TrimSpace(req.Status)),
		Amount:      amount,
		GuestsCount: guests,
		Source:      normalize.Text(req.Source),
	}
	incoming.PayloadHash = reservePayloadHash(&incoming)
	res := &dto.EventResult{EventType: dto.EventReserve, ReserveID: strPtr(reserveID)}
	unattributable := phone == "" && email == ""

	err = runTx(ctx, s.clients.DB(), func(tx *gorm.DB) error {
		rs, err := s.reserves.FindByReserveID(ctx, tx, reserveID)
		switch {
		case err == nil:
			if rs.PayloadHash == incoming.PayloadHash {
				res.Outcome = dto.OutcomeDuplicate
				if rs.ClientID != nil {
					res.ClientID = strPtr(rs.ClientID.String())
				}
				return nil
			}
			if req.OnConflict != "update" {
				return &RecordError{Entity: "reserve", ID: reserveID, Constraint: "reserves.reserve_id", Err: ErrConstraintViolation}
			}
			incoming.ID, incoming.CreatedAt, incoming.ClientID = rs.ID, rs.CreatedAt, rs.ClientID
			incoming.UpdatedAt = now
			res.Outcome = dto.OutcomeUpdated
		case errors.Is(err, gorm.ErrRecordNotFound):
			incoming.ID = uuid.New()
			incoming.CreatedAt, incoming.UpdatedAt = now, now
			res.Outcome = dto.OutcomeCreated
		default:
			return err
		}
		rs = &incoming

		if !unattributable {
			r, err := s.resolver.Resolve(ctx, tx, ident, rs.Realised())
			if err != nil {
				return err
			}
			if r.Client != nil {
				rs.ClientID = &r.Client.ID
				res.ClientCreated = r.Created
			}
		}

		if res.Outcome == dto.OutcomeCreated {
			err = s.reserves.Create(ctx, tx, rs)
		} else {
			err = s.reserves.Update(ctx, tx, rs)
		}
		if err != nil {
			return err
		}
		if rs.ClientID != nil {
			res.ClientID = strPtr(rs.ClientID.String())
		}
		if !rs.Realised() || rs.ClientID == nil {
			return nil
		}

		applied, err := s.visits.ExistsByReserveID(ctx, tx, rs.ReserveID)
		if err != nil || applied {
			return err
		}
		visit := &model.Visit{
			VisitDate:   rs.ReservedAt,
			Amount:      rs.Amount,
			Kind:        model.VisitRegular,
			GuestsCount: rs.GuestsCount,
			ReserveID:   strPtr(rs.ReserveID),
		}
		if _, err := s.ledger.ApplyVisit(ctx, tx, *rs.ClientID, visit); err != nil {
			return err
		}
		res.VisitID = strPtr(visit.ID.String())
		return nil
	})
	if err != nil {
		return nil, err
	}
	if unattributable && res.Outcome != dto.OutcomeDuplicate {
		res.Outcome = dto.OutcomeUnattributable
		return res, &RecordError{Entity: "reserve", ID: reserveID, Constraint: "phone_or_email", Err: ErrUnattributable}
	}
	return res, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// identity builds the resolver input, deriving the channel from an explicit
// lead reference when the event names no channel.
func (s *ingestService) identity(ctx context.Context, req dto.EventRequest) (Identity, error) {
	channelID, err := s.resolveChannel(ctx, req)
	if err != nil {
		return Identity{}, err
	}
	in := Identity{Phone: req.Phone, Email: req.Email, Name: req.Name, ChannelID: channelID}
	if req.LeadID != nil {
		id, err := uuid.Parse(*req.LeadID)
		if err != nil {
			return Identity{}, invalid("lead_id: %v", err)
		}
		lead, err := s.leads.FindByID(ctx, id)
		if err != nil {
			return Identity{}, notFound(err, "lead "+id.String())
		}
		in.LeadID = &lead.ID
		if in.ChannelID == nil {
			in.ChannelID = lead.ChannelID
		}
	}
	return in, nil
}

func (s *ingestService) resolveChannel(ctx context.Context, req dto.EventRequest) (*uuid.UUID, error) {
	if req.ChannelID != nil {
		id, err := uuid.Parse(*req.ChannelID)
		if err != nil {
			return nil, invalid("channel_id: %v", err)
		}
		if _, err := s.channels.FindByID(ctx, id); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, invalid("unknown channel %s", id)
			}
			return nil, err
		}
		return &id, nil
	}
	if name := strings.TrimSpace(req.ChannelName); name != "" {
		ch, err := s.channels.FindByName(ctx, name)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, invalid("unknown channel %q", name)
			}
			return nil, err
		}
		return &ch.ID, nil
	}
	return nil, nil
}

// ParseEventDate accepts YYYY-MM-DD (midnight in loc), "YYYY-MM-DD HH:MM[:SS]"
// in loc, or RFC3339.
func ParseEventDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, invalid("date is required")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02", "2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02T15:04:05"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, invalid("unparseable date %q", s)
}

// reservePayloadHash fingerprints the fields an external booking system may
// change, so a resend of the same booking is recognised as a duplicate.
func reservePayloadHash(r *model.Reserve) string {
	parts := []string{
		r.ReserveID,
		deref(r.Name),
		deref(r.Phone),
		deref(r.Email),
		r.ReservedAt.UTC().Format(time.RFC3339),
		r.Status,
		r.Amount.StringFixed(2),
		strconv.Itoa(r.GuestsCount),
		deref(r.Source),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func strPtr(s string) *string { return &s }

// IsRetryable reports whether a failed event may succeed on a later attempt.
func IsRetryable(err error) bool {
	return err != nil &&
		!errors.Is(err, ErrUnattributable) &&
		!errors.Is(err, ErrConstraintViolation) &&
		!errors.Is(err, ErrInvalidInput) &&
		!errors.Is(err, ErrNotFound)
}
