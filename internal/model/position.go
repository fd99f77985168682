package model

import "time"

// PositionSource records how a position sample was obtained.
type PositionSource string

const (
	SourceScan   PositionSource = "scan"
	SourceLive   PositionSource = "live"
	SourceManual PositionSource = "manual"
)

// Valid reports whether s is a known source.
func (s PositionSource) Valid() bool {
	return s == SourceScan || s == SourceLive || s == SourceManual
}

// Intensity is the heatmap weight of a sample from this source.
func (s PositionSource) Intensity() float64 {
	switch s {
	case SourceScan:
		return 1.0
	case SourceManual:
		return 0.8
	default:
		return 0.5
	}
}

// PositionSample is one observed location inside a venue.  Samples form an
// append-only log; they are never updated or deleted.  SubjectID is nil for
// anonymous samples.
type PositionSample struct {
	ID         uint64         `json:"id"`
	VenueID    uint64         `json:"event"`
	SubjectID  *uint64        `json:"user"`
	Lat        float64        `json:"lat"`
	Lng        float64        `json:"lng"`
	Source     PositionSource `json:"source"`
	ObservedAt time.Time      `json:"timestamp"`
}
