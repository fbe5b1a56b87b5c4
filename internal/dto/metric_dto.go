package dto

import "github.com/shopspring/decimal"

// ─── Recompute ───────────────────────────────────────────────────────────────

// RecomputeRequest covers a single (channel, date) unit when ChannelID and Date
// are set, otherwise a From..To range over ChannelID or every active channel.
type RecomputeRequest struct {
	ChannelID *string `json:"channel_id" validate:"omitempty,uuid"`
	Date      string  `json:"date"       validate:"omitempty,datetime=2006-01-02"`
	From      string  `json:"from"       validate:"omitempty,datetime=2006-01-02"`
	To        string  `json:"to"         validate:"omitempty,datetime=2006-01-02"`
}

type UnitFailure struct {
	ChannelID string `json:"channel_id"`
	Date      string `json:"date"`
	Error     string `json:"error"`
}

type RecomputeReport struct {
	Units     int           `json:"units"`
	Written   int           `json:"written"`
	Unchanged int           `json:"unchanged"`
	Failures  []UnitFailure `json:"failures"`
	Cancelled bool          `json:"cancelled"`
	// ResumeFrom is the first business day left unfinished by a cancelled run.
	ResumeFrom string `json:"resume_from,omitempty"`
}

type RecomputeQueuedResponse struct {
	JobID string `json:"job_id"`
	Queue string `json:"queue"`
}

// ─── Query ───────────────────────────────────────────────────────────────────

// RangeFilter is bound from ?from=&to= (inclusive, YYYY-MM-DD).
type RangeFilter struct {
	From      string `form:"from"       validate:"required,datetime=2006-01-02"`
	To        string `form:"to"         validate:"required,datetime=2006-01-02"`
	ChannelID string `form:"channel_id" validate:"omitempty,uuid"`
}

type ChannelMetricResponse struct {
	ChannelID      string          `json:"channel_id"`
	Date           string          `json:"date"`
	LeadsCount     int             `json:"leads_count"`
	ClientsCount   int             `json:"clients_count"`
	Revenue        decimal.Decimal `json:"revenue"`
	Cost           decimal.Decimal `json:"cost"`
	CAC            decimal.Decimal `json:"cac"`
	LTV            decimal.Decimal `json:"ltv"`
	ROI            decimal.Decimal `json:"roi"`
	ConversionRate decimal.Decimal `json:"conversion_rate"`
	UpdatedAt      string          `json:"updated_at"`
}

type CountsResponse struct {
	From    string          `json:"from"`
	To      string          `json:"to"`
	Leads   int64           `json:"leads"`
	Visits  int64           `json:"visits"`
	Revenue decimal.Decimal `json:"revenue"`
}

type SegmentStatResponse struct {
	Segment        string          `json:"segment"`
	Clients        int64           `json:"clients"`
	TotalRevenue   decimal.Decimal `json:"total_revenue"`
	AverageRevenue decimal.Decimal `json:"average_revenue"`
	AverageVisits  decimal.Decimal `json:"average_visits"`
	AverageCheck   decimal.Decimal `json:"average_check"`
	Share          decimal.Decimal `json:"share"`
}

type ChannelSummaryResponse struct {
	ChannelID      string          `json:"channel_id"`
	Name           string          `json:"name"`
	From           string          `json:"from"`
	To             string          `json:"to"`
	Leads          int             `json:"leads"`
	Clients        int             `json:"clients"`
	Revenue        decimal.Decimal `json:"revenue"`
	Cost           decimal.Decimal `json:"cost"`
	CAC            decimal.Decimal `json:"cac"`
	LTV            decimal.Decimal `json:"ltv"`
	ROI            decimal.Decimal `json:"roi"`
	ConversionRate decimal.Decimal `json:"conversion_rate"`
	// PaybackVisits is how many average checks it takes to recover the CAC
	PaybackVisits decimal.Decimal `json:"payback_visits"`
	Rating        decimal.Decimal `json:"rating"`
}
