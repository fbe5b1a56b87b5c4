package service

import (
	"context"
	"errors"
	"time"

	"github.com/Nilsonfts/Skvoznaya-analitika/internal/model"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/normalize"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Identity is the contact and attribution data an inbound record carries.
// Phone and Email may be raw; the resolver normalizes them.
type Identity struct {
	Phone     string
	Email     string
	Name      string
	ChannelID *uuid.UUID
	LeadID    *uuid.UUID
}

// Resolution is the outcome of matching an Identity against the client base.
type Resolution struct {
	Client  *model.Client
	Created bool
	// Attributed is true when this call backfilled the client's first-touch channel/lead.
	Attributed bool
}

// IdentityResolver maps inbound records to a canonical Client.
// Match priority: normalized phone, then normalized email, then create.
type IdentityResolver interface {
	// Resolve returns the matching client, creating one when create is true.
	// Without a match and with create=false the Resolution carries a nil Client.
	Resolve(ctx context.Context, tx *gorm.DB, in Identity, create bool) (Resolution, error)
}

type identityResolver struct {
	clients repository.ClientRepository
	leads   repository.LeadRepository
	now     func() time.Time
}

func NewIdentityResolver(clients repository.ClientRepository, leads repository.LeadRepository) IdentityResolver {
	return &identityResolver{clients: clients, leads: leads, now: time.Now}
}

func (r *identityResolver) Resolve(ctx context.Context, tx *gorm.DB, in Identity, create bool) (Resolution, error) {
	phone := normalize.Phone(in.Phone)
	email := normalize.Email(in.Email)
	if phone == "" && email == "" {
		return Resolution{}, &RecordError{Entity: "client", Constraint: "phone_or_email", Err: ErrUnattributable}
	}

	client, err := r.match(ctx, tx, phone, email)
	if err != nil {
		return Resolution{}, err
	}
	if client != nil {
		attributed, err := r.enrich(ctx, tx, client, phone, email, in)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{Client: client, Attributed: attributed}, nil
	}
	if !create {
		return Resolution{}, nil
	}
	return r.create(ctx, tx, phone, email, in)
}

func (r *identityResolver) match(ctx context.Context, tx *gorm.DB, phone, email string) (*model.Client, error) {
	if phone != "" {
		c, err := r.clients.FindByPhone(ctx, tx, phone)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if email != "" {
		c, err := r.clients.FindByEmail(ctx, tx, email)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

// enrich fills blanks on an existing client: a missing phone/email/name and,
// when the client has no first touch yet, the channel and lead of this record.
// Only the filled columns are written; populated fields are never overwritten.
// A record without a channel leaves the first touch open.
func (r *identityResolver) enrich(ctx context.Context, tx *gorm.DB, c *model.Client, phone, email string, in Identity) (bool, error) {
	var patch repository.ContactPatch
	if c.Phone == nil && phone != "" {
		// The phone may already belong to another client; only claim it when free.
		if _, err := r.clients.FindByPhone(ctx, tx, phone); errors.Is(err, gorm.ErrRecordNotFound) {
			patch.Phone = normalize.Ptr(phone)
		}
	}
	if c.Email == nil && email != "" {
		patch.Email = normalize.Ptr(email)
	}
	if c.Name == nil {
		patch.Name = normalize.Text(in.Name)
	}

	now := r.now()
	if !patch.Empty() {
		if err := r.clients.FillContact(ctx, tx, c.ID, patch, now); err != nil {
			return false, err
		}
		if patch.Phone != nil {
			c.Phone = patch.Phone
		}
		if patch.Email != nil {
			c.Email = patch.Email
		}
		if patch.Name != nil {
			c.Name = patch.Name
		}
		c.UpdatedAt = now
	}

	if c.Attributed() || in.ChannelID == nil {
		return false, nil
	}
	ok, err := r.clients.SetFirstTouch(ctx, tx, c.ID, in.ChannelID, in.LeadID, now)
	if err != nil || !ok {
		return false, err
	}
	c.ChannelID, c.LeadID, c.UpdatedAt = in.ChannelID, in.LeadID, now
	if in.LeadID != nil {
		if err := r.leads.LinkClient(ctx, tx, *in.LeadID, c.ID, model.LeadConverted, now); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (r *identityResolver) create(ctx context.Context, tx *gorm.DB, phone, email string, in Identity) (Resolution, error) {
	now := r.now()
	c := &model.Client{
		ID:        uuid.New(),
		Name:      normalize.Text(in.Name),
		Phone:     normalize.Ptr(phone),
		Email:     normalize.Ptr(email),
		Segment:   model.SegmentNew,
		ChannelID: in.ChannelID,
		LeadID:    in.LeadID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Without explicit attribution the earliest lead with the same contact is the first touch.
	var firstTouch *model.Lead
	if !c.Attributed() {
		lead, err := r.leads.FindEarliestByContact(ctx, tx, phone, email)
		switch {
		case err == nil:
			firstTouch = lead
			c.LeadID = &lead.ID
			c.ChannelID = lead.ChannelID
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return Resolution{}, err
		}
	}

	if err := r.clients.Create(ctx, tx, c); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) && phone != "" {
			// Lost a creation race on the phone key: the other writer's row wins.
			existing, findErr := r.clients.FindByPhone(ctx, tx, phone)
			if findErr != nil {
				return Resolution{}, findErr
			}
			log.Debug().Str("phone", phone).Msg("client created concurrently, reusing existing row")
			attributed, err := r.enrich(ctx, tx, existing, phone, email, in)
			if err != nil {
				return Resolution{}, err
			}
			return Resolution{Client: existing, Attributed: attributed}, nil
		}
		return Resolution{}, err
	}

	leadID := in.LeadID
	if firstTouch != nil {
		leadID = &firstTouch.ID
	}
	if leadID != nil {
		if err := r.leads.LinkClient(ctx, tx, *leadID, c.ID, model.LeadConverted, now); err != nil {
			return Resolution{}, err
		}
	}
	return Resolution{Client: c, Created: true, Attributed: c.Attributed()}, nil
}
