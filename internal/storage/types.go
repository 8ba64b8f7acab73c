package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled and the bot runs
// in-memory only.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AliasRow is one nick of a consolidated identity. Base is the canonical
// key owning the set; Pos preserves list order.
type AliasRow struct {
	Base    string
	Key     string
	Display string
	Pos     int
}

// GroupMemberRow is one group member, by canonical key.
type GroupMemberRow struct {
	Key     string
	Display string
	Pos     int
}

// GroupRecord is a full group: name, description, ordered members.
type GroupRecord struct {
	Name        string
	Description string
	Members     []GroupMemberRow
}

// MessageRow is one queued or retained notification.
type MessageRow struct {
	ID          string
	FromKey     string
	FromDisplay string
	ToKey       string
	ToNick      string
	Reason      string
	Text        string
	Priority    string
	Room        string
	Created     time.Time
	Delivered   time.Time // zero until delivered
	DeliveredTo string    // delivery-notice chat message id, once known
}

// SeenRow is the last observed activity of one nick key.
type SeenRow struct {
	Key     string
	Display string
	Room    string
	At      time.Time
	Unread  int
}

// AlertRow is the alert subscription and throttle state of one identity.
type AlertRow struct {
	Key           string
	Address       string
	ThrottleUntil time.Time
}

// State is everything Load returns. Alias rows are grouped by base and
// ordered by Pos; group members likewise.
type State struct {
	Aliases  map[string][]AliasRow
	Groups   []GroupRecord
	Messages []MessageRow
	Seen     []SeenRow
	Alerts   []AlertRow
}
