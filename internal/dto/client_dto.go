package dto

import "github.com/shopspring/decimal"

type RegisterClientRequest struct {
	Phone     string  `json:"phone"      validate:"required_without=Email,max=40"`
	Email     string  `json:"email"      validate:"omitempty,email"`
	Name      string  `json:"name"       validate:"max=255"`
	ChannelID *string `json:"channel_id" validate:"omitempty,uuid"`
	LeadID    *string `json:"lead_id"    validate:"omitempty,uuid"`
}

// ClientLookup is bound from GET /v1/clients.
type ClientLookup struct {
	Phone string `form:"phone"`
	Email string `form:"email"`
}

type ClientResponse struct {
	ID             string          `json:"id"`
	Name           *string         `json:"name"`
	Phone          *string         `json:"phone"`
	Email          *string         `json:"email"`
	FirstVisitDate *string         `json:"first_visit_date"`
	LastVisitDate  *string         `json:"last_visit_date"`
	TotalVisits    int             `json:"total_visits"`
	TotalRevenue   decimal.Decimal `json:"total_revenue"`
	AverageCheck   decimal.Decimal `json:"average_check"`
	Segment        string          `json:"segment"`
	LeadID         *string         `json:"lead_id"`
	ChannelID      *string         `json:"channel_id"`
	CreatedAt      string          `json:"created_at"`
	UpdatedAt      string          `json:"updated_at"`
	RecentVisits   []VisitResponse `json:"recent_visits,omitempty"`
}

type VisitResponse struct {
	ID              string          `json:"id"`
	ClientID        string          `json:"client_id"`
	VisitDate       string          `json:"visit_date"`
	Amount          decimal.Decimal `json:"amount"`
	Kind            string          `json:"kind"`
	GuestsCount     int             `json:"guests_count"`
	ReserveID       *string         `json:"reserve_id,omitempty"`
	CorrectsVisitID *string         `json:"corrects_visit_id,omitempty"`
}

// VisitCorrectionRequest records a compensating adjustment for an existing visit.
// Amount is the signed revenue delta.
type VisitCorrectionRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required"`
	Date   string          `json:"date"`
	Notes  string          `json:"notes"`
}

type UpdateLeadStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=new contacted converted lost imported"`
}

type LeadResponse struct {
	ID        string  `json:"id"`
	Name      *string `json:"name"`
	Phone     *string `json:"phone"`
	Email     *string `json:"email"`
	ChannelID *string `json:"channel_id"`
	LeadDate  string  `json:"lead_date"`
	Status    string  `json:"status"`
	ClientID  *string `json:"client_id"`
	UpdatedAt string  `json:"updated_at"`
}
