// Package broadcast is the realtime fan-out fabric.  A Registry maps
// venue-scoped topics to the sessions subscribed to them; each Session
// owns a bounded outbound queue that the transport drains.  The package
// knows nothing about tickets or incidents beyond the wire shapes in
// events.go.
package broadcast

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind is the event family a topic carries.
type Kind string

const (
	KindAttendance Kind = "attendance"
	KindHeatmap    Kind = "heatmap"
	KindLiveMap    Kind = "live_map"
	KindBroadcast  Kind = "broadcast"
)

// Kinds lists every topic kind.
var Kinds = []Kind{KindAttendance, KindHeatmap, KindLiveMap, KindBroadcast}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindAttendance, KindHeatmap, KindLiveMap, KindBroadcast:
		return true
	}
	return false
}

// KindFromPath maps a URL path segment such as "live-map" to its kind.
func KindFromPath(seg string) (Kind, bool) {
	k := Kind(strings.ReplaceAll(strings.ToLower(seg), "-", "_"))
	return k, k.Valid()
}

// Topic identifies one fan-out channel: a kind scoped to a venue.
type Topic struct {
	Kind    Kind
	VenueID uint64
}

// ErrBadTopic is returned by ParseTopic for malformed names.
var ErrBadTopic = errors.New("broadcast: malformed topic")

func AttendanceTopic(venueID uint64) Topic { return Topic{KindAttendance, venueID} }
func HeatmapTopic(venueID uint64) Topic { return Topic{KindHeatmap, venueID} }
func LiveMapTopic(venueID uint64) Topic { return Topic{KindLiveMap, venueID} }
func BroadcastTopic(venueID uint64) Topic { return Topic{KindBroadcast, venueID} }

// String renders the topic as "{kind}_{venue_id}", the name peers and
// clients use on the wire.
func (t Topic) String() string {
	return string(t.Kind) + "_" + strconv.FormatUint(t.VenueID, 10)
}

// ParseTopic is the inverse of Topic.String.
func ParseTopic(s string) (Topic, error) {
	i := strings.LastIndexByte(s, '_')
	if i <= 0 || i == len(s)-1 {
		return Topic{}, fmt.Errorf("%w: %q", ErrBadTopic, s)
	}
	k := Kind(s[:i])
	if !k.Valid() {
		return Topic{}, fmt.Errorf("%w: unknown kind in %q", ErrBadTopic, s)
	}
	id, err := strconv.ParseUint(s[i+1:], 10, 64)
	if err != nil {
		return Topic{}, fmt.Errorf("%w: bad venue id in %q", ErrBadTopic, s)
	}
	return Topic{Kind: k, VenueID: id}, nil
}
