package engine

import "time"

// Decision is the out-of-band alert outcome for one queued message.
type Decision int

const (
	// DecisionNone sends no alert.
	DecisionNone Decision = iota
	// DecisionImmediate dispatches an alert right away.
	DecisionImmediate
	// DecisionDeferred dispatches an alert because the recipient has been
	// away long enough and is not inside the cooldown.
	DecisionDeferred
)

// alertPolicy decides when a queued message additionally triggers an
// out-of-band alert. Only subscribed recipients (those with a registered
// address) are ever alerted. The throttle is an until-timestamp per
// identity: activity and sent alerts both push it forward, and it only
// ever moves forward.
type alertPolicy struct {
	awayThreshold time.Duration
	addresses     map[UserKey]string
	throttle      map[UserKey]time.Time
}

func newAlertPolicy(awayThreshold time.Duration) *alertPolicy {
	return &alertPolicy{
		awayThreshold: awayThreshold,
		addresses:     map[UserKey]string{},
		throttle:      map[UserKey]time.Time{},
	}
}

// authorize checks the sender's right to use the given priority.
func (p *alertPolicy) authorize(pri Priority, privileged bool) error {
	if pri == PriorityUrgent && !privileged {
		return reject(KindUnauthorized, "urgent notifications are restricted to privileged senders")
	}
	return nil
}

// decide evaluates the alert rule for one message to the identity canon.
// last/seenOK describe the recipient's aggregated presence before the
// message arrived.
func (p *alertPolicy) decide(canon UserKey, pri Priority, last PresenceRecord, seenOK bool, now time.Time) Decision {
	if p.addresses[canon] == "" {
		return DecisionNone
	}
	switch pri {
	case PriorityLow:
		return DecisionNone
	case PriorityUrgent:
		// Urgent bypasses both the away threshold and the throttle.
		return DecisionImmediate
	}
	if seenOK && now.Sub(last.At) < p.awayThreshold {
		return DecisionNone
	}
	if until, ok := p.throttle[canon]; ok && now.Before(until) {
		return DecisionNone
	}
	return DecisionDeferred
}

func (p *alertPolicy) address(canon UserKey) string {
	return p.addresses[canon]
}

func (p *alertPolicy) subscribe(canon UserKey, address string) {
	if address == "" {
		delete(p.addresses, canon)
		return
	}
	p.addresses[canon] = address
}

// raiseThrottle extends the alert suppression window; it never shortens it.
func (p *alertPolicy) raiseThrottle(canon UserKey, until time.Time) {
	if cur, ok := p.throttle[canon]; !ok || until.After(cur) {
		p.throttle[canon] = until
	}
}

func (p *alertPolicy) throttleUntil(canon UserKey) time.Time {
	return p.throttle[canon]
}

func (p *alertPolicy) restore(canon UserKey, address string, until time.Time) {
	if address != "" {
		p.addresses[canon] = address
	}
	if !until.IsZero() {
		p.throttle[canon] = until
	}
}

// rekey folds absorbed identities' subscriptions into their new canonical
// key. An existing subscription on the surviving identity wins; throttles
// keep the furthest deadline.
func (p *alertPolicy) rekey(remap map[UserKey]UserKey) {
	for old, next := range remap {
		if old == next {
			continue
		}
		if addr, ok := p.addresses[old]; ok {
			delete(p.addresses, old)
			if _, taken := p.addresses[next]; !taken {
				p.addresses[next] = addr
			}
		}
		if until, ok := p.throttle[old]; ok {
			delete(p.throttle, old)
			p.raiseThrottle(next, until)
		}
	}
}
