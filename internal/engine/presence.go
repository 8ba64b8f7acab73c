package engine

import "time"

// presenceTracker records the last observed activity per nick. Records are
// keyed by the alias actually used, not the canonical key, so "when was X
// seen" can answer for each alias individually while identity-wide queries
// aggregate.
type presenceTracker struct {
	seen map[UserKey]PresenceRecord
}

func newPresenceTracker() *presenceTracker {
	return &presenceTracker{seen: map[UserKey]PresenceRecord{}}
}

// touch updates the record for n and returns the previous record for that
// alias, if any.
func (p *presenceTracker) touch(n Name, room string, at time.Time, unread int) (prev PresenceRecord, existed bool) {
	prev, existed = p.seen[n.Key]
	p.seen[n.Key] = PresenceRecord{Name: n.Display, Room: room, At: at, Unread: unread}
	return prev, existed
}

func (p *presenceTracker) restore(key UserKey, rec PresenceRecord) {
	p.seen[key] = rec
}

// get returns the record for a single alias key.
func (p *presenceTracker) get(key UserKey) (PresenceRecord, bool) {
	rec, ok := p.seen[key]
	return rec, ok
}

// lastSeen aggregates across an identity's aliases: the most recent
// observation wins.
func (p *presenceTracker) lastSeen(aliases []Name) (PresenceRecord, bool) {
	var best PresenceRecord
	found := false
	for _, a := range aliases {
		rec, ok := p.seen[a.Key]
		if !ok {
			continue
		}
		if !found || rec.At.After(best.At) {
			best = rec
			found = true
		}
	}
	return best, found
}
