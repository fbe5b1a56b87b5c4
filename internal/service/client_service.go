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
	"gorm.io/gorm"
)

const recentVisitsLimit = 10

// ClientService serves ledger lookups and the explicit client-side edits:
// registration, visit corrections and lead status changes.
type ClientService interface {
	Get(ctx context.Context, id uuid.UUID) (*dto.ClientResponse, error)
	Lookup(ctx context.Context, q dto.ClientLookup) (*dto.ClientResponse, error)
	Register(ctx context.Context, req dto.RegisterClientRequest) (*dto.ClientResponse, bool, error)
	CorrectVisit(ctx context.Context, visitID uuid.UUID, req dto.VisitCorrectionRequest) (*dto.VisitResponse, error)
	UpdateLeadStatus(ctx context.Context, leadID uuid.UUID, req dto.UpdateLeadStatusRequest) (*dto.LeadResponse, error)
}

type clientService struct {
	clients  repository.ClientRepository
	leads    repository.LeadRepository
	visits   repository.VisitRepository
	channels repository.ChannelRepository
	resolver IdentityResolver
	ledger   LedgerService
	loc      *time.Location
	now      func() time.Time
}

func NewClientService(
	clients repository.ClientRepository,
	leads repository.LeadRepository,
	visits repository.VisitRepository,
	channels repository.ChannelRepository,
	resolver IdentityResolver,
	ledger LedgerService,
	loc *time.Location,
) ClientService {
	if loc == nil {
		loc = time.UTC
	}
	return &clientService{
		clients:  clients,
		leads:    leads,
		visits:   visits,
		channels: channels,
		resolver: resolver,
		ledger:   ledger,
		loc:      loc,
		now:      time.Now,
	}
}

func (s *clientService) Get(ctx context.Context, id uuid.UUID) (*dto.ClientResponse, error) {
	c, err := s.clients.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "client "+id.String())
	}
	return s.withVisits(ctx, c)
}

func (s *clientService) Lookup(ctx context.Context, q dto.ClientLookup) (*dto.ClientResponse, error) {
	var (
		c   *model.Client
		err error
	)
	switch {
	case normalize.Phone(q.Phone) != "":
		c, err = s.clients.FindByPhone(ctx, nil, normalize.Phone(q.Phone))
	case normalize.Email(q.Email) != "":
		c, err = s.clients.FindByEmail(ctx, nil, normalize.Email(q.Email))
	default:
		return nil, invalid("phone or email is required")
	}
	if err != nil {
		return nil, notFound(err, "client")
	}
	return s.withVisits(ctx, c)
}

func (s *clientService) withVisits(ctx context.Context, c *model.Client) (*dto.ClientResponse, error) {
	resp := toClientResponse(c)
	visits, err := s.visits.ListByClient(ctx, c.ID, recentVisitsLimit)
	if err != nil {
		return nil, err
	}
	resp.RecentVisits = make([]dto.VisitResponse, len(visits))
	for i := range visits {
		resp.RecentVisits[i] = toVisitResponse(&visits[i])
	}
	return &resp, nil
}

func (s *clientService) Register(ctx context.Context, req dto.RegisterClientRequest) (*dto.ClientResponse, bool, error) {
	in := Identity{Phone: req.Phone, Email: req.Email, Name: req.Name}
	if req.ChannelID != nil {
		id, err := uuid.Parse(*req.ChannelID)
		if err != nil {
			return nil, false, invalid("channel_id: %v", err)
		}
		if _, err := s.channels.FindByID(ctx, id); err != nil {
			return nil, false, notFound(err, "channel "+id.String())
		}
		in.ChannelID = &id
	}
	if req.LeadID != nil {
		id, err := uuid.Parse(*req.LeadID)
		if err != nil {
			return nil, false, invalid("lead_id: %v", err)
		}
		lead, err := s.leads.FindByID(ctx, id)
		if err != nil {
			return nil, false, notFound(err, "lead "+id.String())
		}
		in.LeadID = &lead.ID
		if in.ChannelID == nil {
			in.ChannelID = lead.ChannelID
		}
	}

	var r Resolution
	err := runTx(ctx, s.clients.DB(), func(tx *gorm.DB) error {
		var err error
		r, err = s.resolver.Resolve(ctx, tx, in, true)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	resp := toClientResponse(r.Client)
	return &resp, r.Created, nil
}

// CorrectVisit records a compensating adjustment; the original visit is never edited.
func (s *clientService) CorrectVisit(ctx context.Context, visitID uuid.UUID, req dto.VisitCorrectionRequest) (*dto.VisitResponse, error) {
	orig, err := s.visits.FindByID(ctx, visitID)
	if err != nil {
		return nil, notFound(err, "visit "+visitID.String())
	}
	if req.Amount.IsZero() {
		return nil, invalid("correction amount must not be zero")
	}
	date := s.now()
	if strings.TrimSpace(req.Date) != "" {
		if date, err = ParseEventDate(req.Date, s.loc); err != nil {
			return nil, err
		}
	}
	adj := &model.Visit{
		VisitDate:       date,
		Amount:          req.Amount.Round(2),
		Kind:            model.VisitAdjustment,
		GuestsCount:     1,
		Notes:           normalize.Text(req.Notes),
		CorrectsVisitID: &orig.ID,
	}
	if _, err := s.ledger.RecordVisit(ctx, orig.ClientID, adj); err != nil {
		return nil, err
	}
	resp := toVisitResponse(adj)
	return &resp, nil
}

func (s *clientService) UpdateLeadStatus(ctx context.Context, leadID uuid.UUID, req dto.UpdateLeadStatusRequest) (*dto.LeadResponse, error) {
	status := model.LeadStatus(req.Status)
	if !status.Valid() {
		return nil, invalid("unknown lead status %q", req.Status)
	}
	if err := s.leads.UpdateStatus(ctx, leadID, status, s.now()); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(err, "lead "+leadID.String())
		}
		return nil, err
	}
	lead, err := s.leads.FindByID(ctx, leadID)
	if err != nil {
		return nil, notFound(err, "lead "+leadID.String())
	}
	resp := toLeadResponse(lead)
	return &resp, nil
}

// ── Mapping ───────────────────────────────────────────────────────────────────

func toClientResponse(c *model.Client) dto.ClientResponse {
	return dto.ClientResponse{
		ID:             c.ID.String(),
		Name:           c.Name,
		Phone:          c.Phone,
		Email:          c.Email,
		FirstVisitDate: fmtTime(c.FirstVisitDate),
		LastVisitDate:  fmtTime(c.LastVisitDate),
		TotalVisits:    c.TotalVisits,
		TotalRevenue:   c.TotalRevenue,
		AverageCheck:   c.AverageCheck,
		Segment:        string(c.Segment),
		LeadID:         fmtUUID(c.LeadID),
		ChannelID:      fmtUUID(c.ChannelID),
		CreatedAt:      c.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      c.UpdatedAt.Format(time.RFC3339),
	}
}

func toVisitResponse(v *model.Visit) dto.VisitResponse {
	return dto.VisitResponse{
		ID:              v.ID.String(),
		ClientID:        v.ClientID.String(),
		VisitDate:       v.VisitDate.Format(time.RFC3339),
		Amount:          v.Amount,
		Kind:            string(v.Kind),
		GuestsCount:     v.GuestsCount,
		ReserveID:       v.ReserveID,
		CorrectsVisitID: fmtUUID(v.CorrectsVisitID),
	}
}

func toLeadResponse(l *model.Lead) dto.LeadResponse {
	return dto.LeadResponse{
		ID:        l.ID.String(),
		Name:      l.Name,
		Phone:     l.Phone,
		Email:     l.Email,
		ChannelID: fmtUUID(l.ChannelID),
		LeadDate:  l.LeadDate.Format(time.RFC3339),
		Status:    string(l.Status),
		ClientID:  fmtUUID(l.ClientID),
		UpdatedAt: l.UpdatedAt.Format(time.RFC3339),
	}
}

func fmtTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func fmtUUID(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}
