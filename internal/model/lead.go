package model

import (
	"time"

	"github.com/google/uuid"
)

// LeadStatus is the lifecycle tag of a lead.
type LeadStatus string

const (
	LeadNew       LeadStatus = "new"
	LeadContacted LeadStatus = "contacted"
	LeadConverted LeadStatus = "converted"
	LeadLost      LeadStatus = "lost"
	LeadImported  LeadStatus = "imported"
)

func (s LeadStatus) Valid() bool {
	switch s {
	case LeadNew, LeadContacted, LeadConverted, LeadLost, LeadImported:
		return true
	}
	return false
}

// Lead is one inbound inquiry attributed (optionally) to a channel.
// Leads are never deleted; only Status and ClientID change after creation.
type Lead struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name        *string    `gorm:"type:varchar(255)"`
	Phone       *string    `gorm:"type:varchar(20);index"` // normalized
	Email       *string    `gorm:"type:varchar(255);index"` // normalized
	ChannelID   *uuid.UUID `gorm:"type:uuid;index"`
	Source      *string    `gorm:"type:varchar(100)"`
	UTMSource   *string    `gorm:"type:varchar(255);column:utm_source"`
	UTMMedium   *string    `gorm:"type:varchar(255);column:utm_medium"`
	UTMCampaign *string    `gorm:"type:varchar(255);column:utm_campaign"`
	LeadDate    time.Time  `gorm:"not null;index"`
	Status      LeadStatus `gorm:"type:varchar(20);not null;default:'new'"`
	Notes       *string
	// ClientID is set once the lead's identity has been matched to a client.
	ClientID  *uuid.UUID `gorm:"type:uuid;index"`
	CreatedAt time.Time
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
}
