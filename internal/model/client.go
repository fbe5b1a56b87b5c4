package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Client is a deduplicated person. Phone (normalized) is the primary dedup key;
// email-only clients keep Phone nil. Aggregates are mutated additively by the
// ledger and never decrease in visit count.
type Client struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name           *string   `gorm:"type:varchar(255)"`
	Phone          *string   `gorm:"type:varchar(20);uniqueIndex"`
	Email          *string   `gorm:"type:varchar(255);index"`
	FirstVisitDate *time.Time
	LastVisitDate  *time.Time
	TotalVisits    int             `gorm:"not null;default:0"`
	TotalRevenue   decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0"`
	// AverageCheck = TotalRevenue / TotalVisits, zero when there are no visits
	AverageCheck decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0"`
	Segment      Segment         `gorm:"type:varchar(20);not null;default:'New'"`
	// First-touch attribution; once set it is never overwritten
	LeadID    *uuid.UUID `gorm:"type:uuid;index"`
	ChannelID *uuid.UUID `gorm:"type:uuid;index"`
	CreatedAt time.Time
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
}

// Attributed reports whether the client already carries a first-touch channel or lead.
func (c *Client) Attributed() bool {
	return c.ChannelID != nil || c.LeadID != nil
}
