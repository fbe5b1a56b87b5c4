package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Reserve mirrors a booking from the external reservation system.
// It is independent of Client/Lead until matched by phone.
type Reserve struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ReserveID   string          `gorm:"type:varchar(64);uniqueIndex;not null"`
	Name        *string         `gorm:"type:varchar(255)"`
	Phone       *string         `gorm:"type:varchar(20);index"` // normalized
	Email       *string         `gorm:"type:varchar(255)"`
	ReservedAt  time.Time       `gorm:"not null;index"`
	Status      string          `gorm:"type:varchar(40);not null"`
	Amount      decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0"`
	GuestsCount int             `gorm:"not null;default:1"`
	Source      *string         `gorm:"type:varchar(100)"`
	ClientID    *uuid.UUID      `gorm:"type:uuid;index"`
	// PayloadHash fingerprints the external payload for duplicate detection
	PayloadHash string `gorm:"type:varchar(64);not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false"`
}

var realisedReserveStatuses = map[string]bool{
	"closed":    true,
	"completed": true,
	"done":      true,
	"paid":      true,
}

// Realised reports whether the booking turned into an actual, paid visit.
func (r *Reserve) Realised() bool {
	return realisedReserveStatuses[strings.ToLower(strings.TrimSpace(r.Status))] && r.Amount.IsPositive()
}
