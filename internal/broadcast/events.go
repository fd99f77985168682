package broadcast

import "time"

// AttendanceUpdate is published on attendance topics after every
// successful scan.
type AttendanceUpdate struct {
	CurrentAttendance int64 `json:"current_attendance"`
	Capacity          int64 `json:"capacity"`
}

// HeatmapData carries weighted points as [lat, lng, intensity] triples.
type HeatmapData struct {
	Type      string       `json:"type"`
	Points    [][3]float64 `json:"points"`
	Timestamp time.Time    `json:"timestamp"`
}

// NewHeatmapPoint builds a single point heatmap event.
func NewHeatmapPoint(lat, lng, intensity float64, at time.Time) HeatmapData {
	return HeatmapData{
		Type:      "heatmap_data",
		Points:    [][3]float64{{lat, lng, intensity}},
		Timestamp: at.UTC(),
	}
}

// Live-map entity types.  Person entities use the lowercased role of the
// subject (attendee, staff, volunteer, ...).
const (
	EntityIncident = "incident"
	EntitySOS      = "sos"
)

// EntityUpdate is the single wire shape for anything drawn on the live
// map.  A later update with the same ID replaces the earlier marker.
type EntityUpdate struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Label     string    `json:"label"`
	Severity  string    `json:"severity,omitempty"`
	Status    string    `json:"status,omitempty"`
	Category  string    `json:"category,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SafetyAlert wraps an announcement for broadcast topics.
type SafetyAlert struct {
	Type  string `json:"type"`
	Alert any    `json:"alert"`
}

// NewSafetyAlert wraps alert in the safety_alert envelope.
func NewSafetyAlert(alert any) SafetyAlert {
	return SafetyAlert{Type: "safety_alert", Alert: alert}
}

// Reply is a frame sent to one session only, in answer to a command.
type Reply struct {
	Type    string `json:"type"`
	Topic   string `json:"topic,omitempty"`
	Message string `json:"message,omitempty"`
}
