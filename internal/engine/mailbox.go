package engine

import (
	"sort"
	"time"
)

// mailbox holds per-recipient message queues, keyed by canonical user key.
// Delivered messages are retained for a retention window so a stale flush
// can re-show them and replies can find their context.
type mailbox struct {
	pending   map[UserKey][]*Message
	delivered map[UserKey][]*Message
	byID      map[string]*Message
}

func newMailbox() *mailbox {
	return &mailbox{
		pending:   map[UserKey][]*Message{},
		delivered: map[UserKey][]*Message{},
		byID:      map[string]*Message{},
	}
}

func (mb *mailbox) enqueue(m *Message) {
	mb.pending[m.To] = append(mb.pending[m.To], m)
	mb.byID[m.ID] = m
}

// restore places an already-persisted message into the right queue.
func (mb *mailbox) restore(m *Message) {
	if m.IsDelivered() {
		mb.delivered[m.To] = append(mb.delivered[m.To], m)
	} else {
		mb.pending[m.To] = append(mb.pending[m.To], m)
	}
	mb.byID[m.ID] = m
}

func (mb *mailbox) countPending(key UserKey) int {
	return len(mb.pending[key])
}

// bounds reports the pending-message count and the creation times of the
// oldest and newest pending messages.
func (mb *mailbox) bounds(key UserKey) (count int, oldest, newest time.Time) {
	q := mb.pending[key]
	for _, m := range q {
		if oldest.IsZero() || m.Created.Before(oldest) {
			oldest = m.Created
		}
		if m.Created.After(newest) {
			newest = m.Created
		}
	}
	return len(q), oldest, newest
}

// flush delivers all pending messages for key, marking them delivered at
// now. With stale set, messages already delivered within the retention
// window are merged back in for re-display without touching their delivery
// stamp. The returned slice is ordered by creation time; fresh holds only
// the newly delivered messages.
func (mb *mailbox) flush(key UserKey, stale bool, now time.Time, retention time.Duration) (all, fresh []*Message) {
	fresh = mb.pending[key]
	delete(mb.pending, key)
	for _, m := range fresh {
		m.Delivered = now
	}
	mb.delivered[key] = append(mb.delivered[key], fresh...)

	if stale {
		cutoff := now.Add(-retention)
		for _, m := range mb.delivered[key] {
			if !m.Delivered.Before(cutoff) {
				all = append(all, m)
			}
		}
	} else {
		all = append(all, fresh...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Created.Before(all[j].Created) })
	return all, fresh
}

func (mb *mailbox) find(id string) (*Message, bool) {
	m, ok := mb.byID[id]
	return m, ok
}

// rekey moves queues whose recipient key was absorbed or re-canonicalized.
// Moved messages keep their relative order; merged queues interleave by
// creation time.
func (mb *mailbox) rekey(remap map[UserKey]UserKey) {
	rekeyQueues(mb.pending, remap)
	rekeyQueues(mb.delivered, remap)
}

func rekeyQueues(queues map[UserKey][]*Message, remap map[UserKey]UserKey) {
	for old, next := range remap {
		q, ok := queues[old]
		if !ok || old == next {
			continue
		}
		delete(queues, old)
		for _, m := range q {
			m.To = next
		}
		merged := append(queues[next], q...)
		sort.SliceStable(merged, func(i, j int) bool { return merged[i].Created.Before(merged[j].Created) })
		queues[next] = merged
	}
}

// prune drops delivered messages older than the retention window and
// returns their ids.
func (mb *mailbox) prune(now time.Time, retention time.Duration) []string {
	cutoff := now.Add(-retention)
	var dropped []string
	for key, q := range mb.delivered {
		kept := q[:0]
		for _, m := range q {
			if m.Delivered.Before(cutoff) {
				dropped = append(dropped, m.ID)
				delete(mb.byID, m.ID)
			} else {
				kept = append(kept, m)
			}
		}
		if len(kept) == 0 {
			delete(mb.delivered, key)
		} else {
			mb.delivered[key] = kept
		}
	}
	return dropped
}
