package model

import "time"

// Segment is the lifecycle label of a client.
type Segment string

const (
	SegmentNew       Segment = "New"
	SegmentReturning Segment = "Returning"
	SegmentVIP       Segment = "VIP"
	SegmentLost      Segment = "Lost"
)

// Segments lists every segment in report order.
var Segments = []Segment{SegmentNew, SegmentReturning, SegmentVIP, SegmentLost}

func (s Segment) Valid() bool {
	switch s {
	case SegmentNew, SegmentReturning, SegmentVIP, SegmentLost:
		return true
	}
	return false
}

// SegmentPolicy holds the thresholds of the segment transition function.
type SegmentPolicy struct {
	RecencyWindow time.Duration
	VIPVisits     int
}

// DefaultSegmentPolicy: 90-day recency window, VIP from the 5th visit.
func DefaultSegmentPolicy() SegmentPolicy {
	return SegmentPolicy{RecencyWindow: 90 * 24 * time.Hour, VIPVisits: 5}
}

// Classify derives the segment from total visits and the last visit date only.
// VIP wins over recency; any other client last seen before now-window is Lost.
func (p SegmentPolicy) Classify(totalVisits int, lastVisit *time.Time, now time.Time) Segment {
	switch {
	case totalVisits >= p.VIPVisits:
		return SegmentVIP
	case lastVisit != nil && now.Sub(*lastVisit) > p.RecencyWindow:
		return SegmentLost
	case totalVisits <= 1:
		return SegmentNew
	default:
		return SegmentReturning
	}
}
