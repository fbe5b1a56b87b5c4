package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// VisitKind: "visit" | "adjustment"
type VisitKind string

const (
	VisitRegular VisitKind = "visit"
	// VisitAdjustment is a compensating revenue entry. It moves TotalRevenue
	// (possibly down) without counting as an attendance.
	VisitAdjustment VisitKind = "adjustment"
)

func (k VisitKind) Valid() bool {
	return k == VisitRegular || k == VisitAdjustment
}

// Visit is an immutable revenue event for a client.
// Visits are NEVER modified or deleted; corrections create adjustment visits.
type Visit struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ClientID        uuid.UUID       `gorm:"type:uuid;index;not null"`
	VisitDate       time.Time       `gorm:"not null;index"`
	Amount          decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	Kind            VisitKind       `gorm:"type:varchar(20);not null;default:'visit'"`
	GuestsCount     int             `gorm:"not null;default:1"`
	DurationMinutes *int
	RoomType        *string `gorm:"type:varchar(100)"`
	Services        *string
	Notes           *string
	// ReserveID links the reservation this visit realised (at most one visit per reserve)
	ReserveID       *string    `gorm:"type:varchar(64);uniqueIndex"`
	CorrectsVisitID *uuid.UUID `gorm:"type:uuid"`
	CreatedAt       time.Time
}
