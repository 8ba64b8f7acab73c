package engine

import "time"

// ReplyEntry is the recorded context of one delivery notice, keyed by the
// chat message id of the notice itself.
type ReplyEntry struct {
	MessageID string // id of the delivered Message
	Sender    Name   // who sent the original message
	Dest      string // addressing token it was sent under, e.g. "@joe" or "*ops"
	Room      string
	At        time.Time // delivery time; entries expire window after this
}

// replyIndex maps delivery-notice chat message ids to reply context.
// Expiry is lazy: lookups check the window, and the periodic sweep drops
// entries wholesale.
type replyIndex struct {
	window  time.Duration
	entries map[string]ReplyEntry
}

func newReplyIndex(window time.Duration) *replyIndex {
	return &replyIndex{window: window, entries: map[string]ReplyEntry{}}
}

func (r *replyIndex) record(chatMsgID string, entry ReplyEntry) {
	r.entries[chatMsgID] = entry
}

func (r *replyIndex) lookup(chatMsgID string, now time.Time) (ReplyEntry, bool) {
	entry, ok := r.entries[chatMsgID]
	if !ok {
		return ReplyEntry{}, false
	}
	if now.Sub(entry.At) > r.window {
		delete(r.entries, chatMsgID)
		return ReplyEntry{}, false
	}
	return entry, true
}

// sweep drops expired entries and returns how many were removed.
func (r *replyIndex) sweep(now time.Time) int {
	removed := 0
	for id, entry := range r.entries {
		if now.Sub(entry.At) > r.window {
			delete(r.entries, id)
			removed++
		}
	}
	return removed
}
