package dto

import "github.com/shopspring/decimal"

// Event types accepted by the ingestion surface.
const (
	EventLead    = "lead"
	EventVisit   = "visit"
	EventReserve = "reserve"
)

// Ingestion outcomes reported back to the caller.
const (
	OutcomeCreated        = "created"
	OutcomeMatched        = "matched"
	OutcomeDuplicate      = "duplicate"
	OutcomeUpdated        = "updated"
	OutcomeUnattributable = "unattributable"
)

// ─── Request DTOs ────────────────────────────────────────────────────────────

// EventRequest is one normalized inbound record from an ingestion adapter.
// Date accepts YYYY-MM-DD (business timezone midnight) or RFC3339.
type EventRequest struct {
	EventType   string  `json:"event_type"   validate:"required,oneof=lead visit reserve"`
	Phone       string  `json:"phone"        validate:"max=40"`
	Email       string  `json:"email"        validate:"max=255"`
	Name        string  `json:"name"         validate:"max=255"`
	ChannelID   *string `json:"channel_id"   validate:"omitempty,uuid"`
	ChannelName string  `json:"channel_name" validate:"max=100"`
	LeadID      *string `json:"lead_id"      validate:"omitempty,uuid"`
	ClientID    *string `json:"client_id"    validate:"omitempty,uuid"`
	UTMSource   string  `json:"utm_source"   validate:"max=255"`
	UTMMedium   string  `json:"utm_medium"   validate:"max=255"`
	UTMCampaign string  `json:"utm_campaign" validate:"max=255"`
	Source      string  `json:"source"       validate:"max=100"`
	// Status is the lead status for leads and the booking status for reserves
	Status          string           `json:"status" validate:"max=40"`
	Notes           string           `json:"notes"`
	Amount          *decimal.Decimal `json:"amount"`
	Date            string           `json:"date"             validate:"required"`
	GuestsCount     int              `json:"guests_count"     validate:"omitempty,min=1"`
	DurationMinutes *int             `json:"duration_minutes" validate:"omitempty,min=0"`
	RoomType        string           `json:"room_type"        validate:"max=100"`
	Services        string           `json:"services"`
	ReserveID       string           `json:"reserve_id"       validate:"max=64"`
	// OnConflict controls reserves whose reserve_id already exists with a different payload
	OnConflict string `json:"on_conflict" validate:"omitempty,oneof=reject update"`
}

type BatchEventsRequest struct {
	Events []EventRequest `json:"events" validate:"required,min=1,max=1000,dive"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type EventResult struct {
	EventType     string  `json:"event_type"`
	Outcome       string  `json:"outcome"`
	ClientID      *string `json:"client_id,omitempty"`
	ClientCreated bool    `json:"client_created"`
	LeadID        *string `json:"lead_id,omitempty"`
	VisitID       *string `json:"visit_id,omitempty"`
	ReserveID     *string `json:"reserve_id,omitempty"`
	Detail        string  `json:"detail,omitempty"`
}

type BatchAcceptedResponse struct {
	Queued int    `json:"queued"`
	Queue  string `json:"queue"`
}
