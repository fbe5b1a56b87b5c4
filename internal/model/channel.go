package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Channel is a marketing acquisition channel (VK, site, Instagram, ...).
// CostPerMonth is the only externally supplied cost signal; it changes only
// through the administrative edit path.
type Channel struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name         string          `gorm:"type:varchar(100);uniqueIndex;not null"`
	CostPerMonth decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Description  *string
	IsActive     bool `gorm:"not null;default:true"`
	CreatedAt    time.Time
	// UpdatedAt is written explicitly by every mutation path.
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
}
