package service

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var (
	// ErrUnattributable: the record carries neither a usable phone nor email.
	ErrUnattributable = errors.New("unattributable record")
	// ErrConstraintViolation: a unique key already exists with a different payload.
	ErrConstraintViolation = errors.New("constraint violation")
	// ErrAggregationInconsistency: a metric unit could not be derived from the ledger.
	ErrAggregationInconsistency = errors.New("aggregation inconsistency")
	ErrNotFound                 = errors.New("not found")
	ErrInvalidInput             = errors.New("invalid input")
)

// RecordError describes a failed ingestion record. It unwraps to one of the
// sentinel errors above.
type RecordError struct {
	Entity     string
	ID         string
	Constraint string
	Err        error
}

func (e *RecordError) Error() string {
	msg := e.Entity
	if e.ID != "" {
		msg += " " + e.ID
	}
	if e.Constraint != "" {
		msg += " (" + e.Constraint + ")"
	}
	return msg + ": " + e.Err.Error()
}

func (e *RecordError) Unwrap() error { return e.Err }

// UnitError is the failure of one (channel, date) aggregation unit.
type UnitError struct {
	ChannelID string
	Date      time.Time
	Err       error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("channel %s on %s: %v", e.ChannelID, e.Date.Format("2006-01-02"), e.Err)
}

func (e *UnitError) Unwrap() error { return e.Err }

// notFound maps gorm.ErrRecordNotFound to ErrNotFound, leaving other errors as is.
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
