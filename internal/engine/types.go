package engine

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Priority is the delivery urgency of a message. It controls out-of-band
// alert dispatch, never queue ordering.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityUrgent Priority = "URGENT"
)

// ParsePriority parses a user-supplied priority, case-insensitively.
func ParsePriority(s string) (Priority, error) {
	switch Priority(strings.ToUpper(strings.TrimSpace(s))) {
	case PriorityLow:
		return PriorityLow, nil
	case PriorityNormal:
		return PriorityNormal, nil
	case PriorityUrgent:
		return PriorityUrgent, nil
	default:
		return "", fmt.Errorf("unknown priority %q", s)
	}
}

// UserKey is the normalized form of a nick: all whitespace stripped, then
// lowercased. Two nicks denote the same user iff their keys are equal.
type UserKey string

// NormalizeNick derives the UserKey for a raw nick.
func NormalizeNick(nick string) UserKey {
	return UserKey(strings.ToLower(stripSpace(nick)))
}

// DisplayNick strips whitespace from a nick but preserves its case, which is
// the form shown back to users.
func DisplayNick(nick string) string {
	return stripSpace(nick)
}

func stripSpace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Name is one nick of a user: the normalized key plus the display form.
type Name struct {
	Key     UserKey
	Display string
}

// NameOf builds a Name from a raw nick.
func NameOf(nick string) Name {
	return Name{Key: NormalizeNick(nick), Display: DisplayNick(nick)}
}

// Identity is a consolidated user record: the canonical key plus the
// ordered, deduplicated alias set. The alias set is never empty; a user
// without recorded aliasing is a singleton whose only alias is itself.
type Identity struct {
	Canonical UserKey
	Names     []Name
}

// Group is a named, ordered, deduplicated set of identities. Members hold
// the canonical key of the identity and the display nick it was added under.
type Group struct {
	Name        string
	Description string
	Members     []Name
}

// Message is one queued notification.
type Message struct {
	ID          string
	From        Name
	To          UserKey // canonical recipient key at enqueue time
	ToNick      string  // display nick the recipient was addressed by
	Reason      string  // addressing token, e.g. "@joe" or "*ops"; replies carry a "<re> " prefix
	Text        string
	Priority    Priority
	Room        string
	Created     time.Time
	Delivered   time.Time // zero until delivered
	DeliveredTo string    // chat message id of the delivery notice, once known
}

// IsDelivered reports whether the message has been shown to its recipient.
func (m *Message) IsDelivered() bool { return !m.Delivered.IsZero() }

// PresenceRecord is the last observed activity of one nick.
type PresenceRecord struct {
	Name   string // display nick as last used
	Room   string
	At     time.Time
	Unread int // pending-message count at the time of the observation
}
