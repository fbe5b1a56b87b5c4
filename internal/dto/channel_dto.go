package dto

import "github.com/shopspring/decimal"

type CreateChannelRequest struct {
	Name         string          `json:"name"           validate:"required,min=1,max=100"`
	CostPerMonth decimal.Decimal `json:"cost_per_month" validate:"min=0"`
	Description  *string         `json:"description"`
}

// UpdateChannelRequest is the administrative edit; nil fields are left as is.
type UpdateChannelRequest struct {
	CostPerMonth *decimal.Decimal `json:"cost_per_month" validate:"omitempty,min=0"`
	Description  *string          `json:"description"`
	IsActive     *bool            `json:"is_active"`
}

type ChannelResponse struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	CostPerMonth decimal.Decimal `json:"cost_per_month"`
	Description  *string         `json:"description"`
	IsActive     bool            `json:"is_active"`
	UpdatedAt    string          `json:"updated_at"`
}
