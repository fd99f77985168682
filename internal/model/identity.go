package model

import "strings"

// Role is the caller's role as carried in the access token's "role"
// claim.  Roles are compared for equality only; the core attaches no
// hierarchy to them.
type Role string

const (
	RoleOrganizer Role = "ORGANIZER"
	RoleStaff     Role = "STAFF"
	RoleAttendee  Role = "ATTENDEE"
	RoleVolunteer Role = "VOLUNTEER"
	RoleAuthority Role = "AUTHORITY"
)

// Identity is the authenticated caller behind a request or connection.
// The zero value is the anonymous identity.
type Identity struct {
	ID   uint64 // users.id of the caller, 0 when anonymous
	Role Role   // role claim
	Name string // display name claim, optional
}

// Anonymous is the identity used when no valid token was presented.
var Anonymous = Identity{}

// IsAnonymous reports whether no authenticated user stands behind the identity.
func (i Identity) IsAnonymous() bool { return i.ID == 0 }

// Is reports whether the identity holds one of the given roles.
func (i Identity) Is(roles ...Role) bool {
	for _, r := range roles {
		if i.Role == r {
			return true
		}
	}
	return false
}

// IsResponder reports whether the caller may act on incidents and SOS
// alerts raised by others.  Organizers additionally need to own the venue;
// that check lives with the venue.
func (i Identity) IsResponder() bool {
	return i.Is(RoleOrganizer, RoleStaff, RoleVolunteer, RoleAuthority)
}

// MapKind is the live-map entity kind for a person with this identity.
// Anonymous callers and unknown roles render as attendees.
func (i Identity) MapKind() string {
	switch i.Role {
	case RoleOrganizer, RoleStaff, RoleVolunteer, RoleAuthority, RoleAttendee:
		return strings.ToLower(string(i.Role))
	}
	return "attendee"
}

// Label is the human readable marker label for the identity.
func (i Identity) Label() string {
	if i.Name != "" {
		return i.Name
	}
	if i.IsAnonymous() {
		return "Anonymous"
	}
	r := i.MapKind()
	return strings.ToUpper(r[:1]) + r[1:]
}
