package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tellbot/internal/storage"
	"tellbot/pkg/glob"
	logx "tellbot/pkg/logx"
)

// Config tunes the delivery and alert behavior. Zero fields take defaults.
type Config struct {
	// StaleWindow bounds both the re-display of delivered messages on a
	// stale inbox flush and their retention before garbage collection.
	StaleWindow time.Duration
	// ReplyWindow bounds how long a delivery notice stays replyable.
	ReplyWindow time.Duration
	// InlineCutoff is the maximum away time for which pending messages are
	// still delivered inline on activity; recipients away longer get a
	// check-your-inbox notice instead.
	InlineCutoff time.Duration
	// AwayThreshold is the minimum away time before a NORMAL message may
	// trigger a deferred alert.
	AwayThreshold time.Duration
	// AlertSendCooldown is how far a dispatched alert pushes the throttle.
	AlertSendCooldown time.Duration
	// AlertSeenCooldown is how far recipient activity pushes the throttle.
	AlertSeenCooldown time.Duration
}

func (c *Config) applyDefaults() {
	if c.StaleWindow <= 0 {
		c.StaleWindow = 48 * time.Hour
	}
	if c.ReplyWindow <= 0 {
		c.ReplyWindow = 48 * time.Hour
	}
	if c.InlineCutoff <= 0 {
		c.InlineCutoff = 48 * time.Hour
	}
	if c.AwayThreshold <= 0 {
		c.AwayThreshold = 7 * 24 * time.Hour
	}
	if c.AlertSendCooldown <= 0 {
		c.AlertSendCooldown = 7 * 24 * time.Hour
	}
	if c.AlertSeenCooldown <= 0 {
		c.AlertSeenCooldown = 7 * 24 * time.Hour
	}
}

// Alert is an out-of-band notification request handed to the sink.
type Alert struct {
	Address  string
	Message  Message
	Unread   int
	Decision Decision
}

// AlertSink receives alert requests. Dispatch is called with the engine
// lock held and must not block; implementations queue and return.
type AlertSink interface {
	Dispatch(Alert)
}

// AlertFunc adapts a function to AlertSink.
type AlertFunc func(Alert)

func (f AlertFunc) Dispatch(a Alert) { f(a) }

// Engine is the notification core. All public methods are safe for
// concurrent use; one mutex serializes every command so each runs as an
// atomic transaction over the full state graph. Commands validate
// completely before mutating, so a rejection never leaves partial state.
type Engine struct {
	cfg   Config
	log   logx.Logger
	store storage.Store
	now   func() time.Time

	mu      sync.Mutex
	ids     *resolver
	groups  *groupStore
	mail    *mailbox
	seen    *presenceTracker
	policy  *alertPolicy
	replies *replyIndex
	sink    AlertSink
}

// New builds an Engine, restoring persisted state when store is non-nil.
func New(ctx context.Context, cfg Config, store storage.Store, log logx.Logger) (*Engine, error) {
	cfg.applyDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	e := &Engine{
		cfg:     cfg,
		log:     log,
		store:   store,
		now:     time.Now,
		ids:     newResolver(),
		groups:  newGroupStore(),
		mail:    newMailbox(),
		seen:    newPresenceTracker(),
		policy:  newAlertPolicy(cfg.AwayThreshold),
		replies: newReplyIndex(cfg.ReplyWindow),
	}
	if store != nil {
		if err := e.load(ctx); err != nil {
			return nil, fmt.Errorf("engine: load state: %w", err)
		}
	}
	return e, nil
}

// SetAlertSink installs the alert dispatcher. Call before serving traffic.
func (e *Engine) SetAlertSink(s AlertSink) {
	e.mu.Lock()
	e.sink = s
	e.mu.Unlock()
}

func (e *Engine) load(ctx context.Context) error {
	st, err := e.store.Load(ctx)
	if err != nil {
		return err
	}
	for _, rows := range st.Aliases {
		names := make([]Name, 0, len(rows))
		for _, r := range rows {
			names = append(names, Name{Key: UserKey(r.Key), Display: r.Display})
		}
		e.ids.install(names)
	}
	for _, g := range st.Groups {
		members := make([]Name, 0, len(g.Members))
		for _, m := range g.Members {
			members = append(members, Name{Key: e.ids.canonical(UserKey(m.Key)), Display: m.Display})
		}
		grp := e.groups.upsert(g.Name, members)
		grp.Description = g.Description
	}
	for _, r := range st.Messages {
		m := &Message{
			ID:          r.ID,
			From:        Name{Key: UserKey(r.FromKey), Display: r.FromDisplay},
			To:          e.ids.canonical(UserKey(r.ToKey)),
			ToNick:      r.ToNick,
			Reason:      r.Reason,
			Text:        r.Text,
			Priority:    Priority(r.Priority),
			Room:        r.Room,
			Created:     r.Created,
			Delivered:   r.Delivered,
			DeliveredTo: r.DeliveredTo,
		}
		e.mail.restore(m)
		if m.IsDelivered() && m.DeliveredTo != "" {
			e.replies.record(m.DeliveredTo, ReplyEntry{
				MessageID: m.ID,
				Sender:    m.From,
				Dest:      stripReplyPrefix(m.Reason),
				Room:      m.Room,
				At:        m.Delivered,
			})
		}
	}
	for _, r := range st.Seen {
		e.seen.restore(UserKey(r.Key), PresenceRecord{Name: r.Display, Room: r.Room, At: r.At, Unread: r.Unread})
	}
	for _, r := range st.Alerts {
		e.policy.restore(e.ids.canonical(UserKey(r.Key)), r.Address, r.ThrottleUntil)
	}
	e.log.Info("state restored",
		logx.Int("groups", len(st.Groups)),
		logx.Int("messages", len(st.Messages)),
		logx.Int("identities", len(st.Aliases)))
	return nil
}

// TellRequest is one !tell (or reply) invocation.
type TellRequest struct {
	Sender     Name
	Room       string
	Ops        []Op
	Text       string
	Priority   Priority
	Privileged bool

	reason string // override for replies
}

// TellResult reports how a tell resolved. When Queued is empty the command
// was a resolution-only no-op (empty text or nobody left to deliver to);
// List still carries the full breakdown for display.
type TellResult struct {
	List         *ListResult
	Delivery     []Name // members actually addressed, after self-exclusion
	SelfExcluded bool
	Queued       []*Message
	Alerted      []Name
}

// Tell evaluates the recipient expression and enqueues the message for every
// resolved recipient. The sender is excluded from group-derived membership
// unless explicitly named by a user token.
func (e *Engine) Tell(ctx context.Context, req TellRequest) (*TellResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tell(ctx, req)
}

func (e *Engine) tell(ctx context.Context, req TellRequest) (*TellResult, error) {
	if req.Priority == "" {
		req.Priority = PriorityNormal
	}
	if err := e.policy.authorize(req.Priority, req.Privileged); err != nil {
		return nil, err
	}
	list, err := e.evalList(nil, req.Ops, true)
	if err != nil {
		return nil, err
	}

	res := &TellResult{List: list}
	senderCanon := e.ids.canonical(req.Sender.Key)
	for _, m := range list.Members {
		if m.Key == senderCanon {
			if _, explicit := list.Explicit[m.Key]; !explicit {
				res.SelfExcluded = true
				continue
			}
		}
		res.Delivery = append(res.Delivery, m)
	}
	if strings.TrimSpace(req.Text) == "" || len(res.Delivery) == 0 {
		return res, nil
	}

	now := e.now()
	var errs []error
	for _, rcpt := range res.Delivery {
		reason := req.reason
		if reason == "" {
			reason = list.Reasons[rcpt.Key]
		}
		msg := &Message{
			ID:       uuid.NewString(),
			From:     req.Sender,
			To:       rcpt.Key,
			ToNick:   rcpt.Display,
			Reason:   reason,
			Text:     req.Text,
			Priority: req.Priority,
			Room:     req.Room,
			Created:  now,
		}
		e.mail.enqueue(msg)
		res.Queued = append(res.Queued, msg)
		errs = append(errs, e.persistMessage(ctx, msg))

		last, seenOK := e.seen.lastSeen(e.ids.aliases(rcpt.Key, rcpt))
		d := e.policy.decide(rcpt.Key, req.Priority, last, seenOK, now)
		if d == DecisionNone {
			continue
		}
		alert := Alert{
			Address:  e.policy.address(rcpt.Key),
			Message:  *msg,
			Unread:   e.mail.countPending(rcpt.Key),
			Decision: d,
		}
		e.policy.raiseThrottle(rcpt.Key, now.Add(e.cfg.AlertSendCooldown))
		errs = append(errs, e.persistAlert(ctx, rcpt.Key))
		res.Alerted = append(res.Alerted, rcpt)
		if e.sink != nil {
			e.sink.Dispatch(alert)
		}
	}
	e.log.Debug("message queued",
		logx.String("from", string(req.Sender.Key)),
		logx.Int("recipients", len(res.Queued)),
		logx.String("priority", string(req.Priority)))
	return res, errors.Join(errs...)
}

// ActivityNotice classifies what the bot should do after observing
// recipient activity.
type ActivityNotice int

const (
	// NoticeNone: nothing pending, or nothing changed since last notice.
	NoticeNone ActivityNotice = iota
	// NoticeInline: deliver Messages directly into the room.
	NoticeInline
	// NoticeInbox: point the recipient at their inbox instead.
	NoticeInbox
)

// ActivityResult is the outcome of an activity observation.
type ActivityResult struct {
	Notice   ActivityNotice
	Unread   int
	Oldest   time.Time
	Messages []*Message // inline-delivered, oldest first
}

// Activity records that sender was just seen in room and decides whether
// pending messages are delivered inline or announced as an inbox notice.
// Recipients away longer than the inline cutoff never get inline delivery.
// A notice is only produced when the pending count changed since the last
// observation of this nick, so lurkers are not nagged every message.
func (e *Engine) Activity(ctx context.Context, sender Name, room string) (*ActivityResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	canon := e.ids.canonical(sender.Key)
	aliases := e.ids.aliases(canon, sender)
	last, seenOK := e.seen.lastSeen(aliases)
	count, oldest, _ := e.mail.bounds(canon)

	prev, existed := e.seen.touch(sender, room, now, count)
	e.policy.raiseThrottle(canon, now.Add(e.cfg.AlertSeenCooldown))
	errs := []error{e.persistSeen(ctx, sender.Key), e.persistAlert(ctx, canon)}

	res := &ActivityResult{Unread: count, Oldest: oldest}
	if count == 0 {
		return res, errors.Join(errs...)
	}
	if existed && prev.Unread == count {
		return res, errors.Join(errs...)
	}

	if !seenOK || now.Sub(last.At) <= e.cfg.InlineCutoff {
		all, fresh := e.mail.flush(canon, false, now, e.cfg.StaleWindow)
		res.Notice = NoticeInline
		res.Messages = all
		e.seen.touch(sender, room, now, 0)
		errs = append(errs, e.persistDelivered(ctx, fresh, now), e.persistSeen(ctx, sender.Key))
	} else {
		res.Notice = NoticeInbox
	}
	return res, errors.Join(errs...)
}

// InboxResult is the outcome of an explicit inbox flush.
type InboxResult struct {
	Messages []*Message // oldest first; stale flushes include re-shown ones
	Fresh    int        // how many were newly delivered
}

// Inbox flushes the sender's pending messages. With stale set, messages
// delivered within the stale window are re-shown without being re-marked.
func (e *Engine) Inbox(ctx context.Context, sender Name, room string, stale bool) (*InboxResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	canon := e.ids.canonical(sender.Key)
	all, fresh := e.mail.flush(canon, stale, now, e.cfg.StaleWindow)
	e.seen.touch(sender, room, now, 0)
	e.policy.raiseThrottle(canon, now.Add(e.cfg.AlertSeenCooldown))

	err := errors.Join(
		e.persistDelivered(ctx, fresh, now),
		e.persistSeen(ctx, sender.Key),
		e.persistAlert(ctx, canon),
	)
	return &InboxResult{Messages: all, Fresh: len(fresh)}, err
}

// RecordDelivery binds a delivered message to the chat message id of its
// delivery notice, making the notice replyable for the reply window.
func (e *Engine) RecordDelivery(ctx context.Context, messageID, noticeID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, ok := e.mail.find(messageID)
	if !ok || !m.IsDelivered() {
		return fmt.Errorf("engine: no delivered message %q", messageID)
	}
	m.DeliveredTo = noticeID
	e.replies.record(noticeID, ReplyEntry{
		MessageID: m.ID,
		Sender:    m.From,
		Dest:      stripReplyPrefix(m.Reason),
		Room:      m.Room,
		At:        m.Delivered,
	})
	if e.store == nil {
		return nil
	}
	return e.store.SetDeliveredTo(ctx, m.ID, noticeID)
}

// ReplyRequest is a threadless reply to a delivery notice.
type ReplyRequest struct {
	Sender     Name
	Room       string
	NoticeID   string // chat message id being replied to
	Text       string
	All        bool // address the original destination set, not just the sender
	Priority   Priority
	Privileged bool
}

// Reply resolves the reply context recorded for the notice and sends the
// text as a new tell. Reply-all to a group-addressed message re-expands the
// group at reply time.
func (e *Engine) Reply(ctx context.Context, req ReplyRequest) (*TellResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.replies.lookup(req.NoticeID, e.now())
	if !ok {
		return nil, reject(KindStaleReplyContext, "that message can no longer be replied to")
	}

	var ops []Op
	var reason string
	if req.All && strings.HasPrefix(entry.Dest, "*") {
		ops = []Op{{Group: true, Ref: entry.Dest[1:]}}
		reason = "<re> " + entry.Dest
	} else {
		ops = []Op{{Ref: entry.Sender.Display}}
		reason = "<re> @" + entry.Sender.Display
	}
	return e.tell(ctx, TellRequest{
		Sender:     req.Sender,
		Room:       req.Room,
		Ops:        ops,
		Text:       req.Text,
		Priority:   req.Priority,
		Privileged: req.Privileged,
		reason:     reason,
	})
}

// GroupRequest is one group mutation or display.
type GroupRequest struct {
	Name string
	Ops  []Op
	// Remove interprets the resolved expression as the set to remove from
	// the group instead of folding onto the current members.
	Remove bool
	// Description, when non-nil and non-empty, replaces the description.
	Description *string
}

// GroupResult reports a group operation.
type GroupResult struct {
	Name        string
	Description string
	Before      []Name
	After       []Name
	Changed     bool
	DescChanged bool
}

// Group applies a group edit, creating the group on first mutating
// reference. With no ops and no description it is a pure display.
func (e *Engine) Group(ctx context.Context, req GroupRequest) (*GroupResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	before := e.groups.members(req.Name)
	res := &GroupResult{Name: req.Name, Before: before, After: before}
	if grp, ok := e.groups.get(req.Name); ok {
		res.Name = grp.Name
	}

	after := before
	if req.Remove {
		removal, err := e.evalList(nil, req.Ops, true)
		if err != nil {
			return nil, err
		}
		if len(removal.Members) == 0 {
			return nil, reject(KindEmptyList, "nothing to be done")
		}
		set := newOrderedNames(nil)
		set.extend(before)
		for _, m := range removal.Members {
			set.discardKey(m.Key)
		}
		after = set.names()
	} else if len(req.Ops) > 0 {
		list, err := e.evalList(before, req.Ops, true)
		if err != nil {
			return nil, err
		}
		after = list.Members
	}

	var errs []error
	if !sameNames(before, after) {
		grp := e.groups.upsert(res.Name, after)
		res.Name = grp.Name
		res.After = grp.Members
		res.Changed = true
		errs = append(errs, e.persistGroup(ctx, grp.Name))
	}
	if req.Description != nil && *req.Description != "" {
		grp := e.groups.setDescription(res.Name, *req.Description)
		res.Name = grp.Name
		res.DescChanged = true
		errs = append(errs, e.persistGroup(ctx, grp.Name))
	}
	res.Description = e.groups.description(res.Name)
	if res.Changed {
		e.log.Debug("group updated",
			logx.String("group", res.Name),
			logx.Int("members", len(res.After)))
	}
	return res, errors.Join(errs...)
}

// GroupInfo is one row of a group listing.
type GroupInfo struct {
	Name        string
	Description string
	Size        int
}

// ListGroups enumerates groups whose name matches the entire pattern,
// case-insensitively. An empty pattern matches everything.
func (e *Engine) ListGroups(pattern string) ([]GroupInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	names, err := e.groups.list(pattern)
	if err != nil {
		if errors.Is(err, glob.ErrBadPattern) {
			return nil, reject(KindMalformedPattern, "malformed pattern %q", pattern)
		}
		return nil, err
	}
	out := make([]GroupInfo, 0, len(names))
	for _, n := range names {
		grp, _ := e.groups.get(n)
		out = append(out, GroupInfo{Name: grp.Name, Description: grp.Description, Size: len(grp.Members)})
	}
	return out, nil
}

// MembershipInfo lists the groups one resolved user belongs to.
type MembershipInfo struct {
	Name   Name
	Groups []string
}

// GroupsOf resolves the expression and reports each member's group
// memberships, sorted case-insensitively.
func (e *Engine) GroupsOf(ops []Op) ([]MembershipInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	list, err := e.evalList(nil, ops, true)
	if err != nil {
		return nil, err
	}
	out := make([]MembershipInfo, 0, len(list.Members))
	for _, m := range list.Members {
		out = append(out, MembershipInfo{Name: m, Groups: e.groups.groupsOf(m.Key)})
	}
	return out, nil
}

// AliasResult reports an alias operation.
type AliasResult struct {
	Subject  Name
	Before   []Name
	Identity Identity
	Changed  int // names merged in or split off
}

// Alias merges the identities of the listed nicks into the subject's.
// The expression must contain only user tokens. With an empty expression
// it is a pure display of the subject's current alias set.
func (e *Engine) Alias(ctx context.Context, subject Name, ops []Op) (*AliasResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	names, err := evalUserNames(ops)
	if err != nil {
		return nil, err
	}
	res := &AliasResult{Subject: subject, Before: e.ids.identity(subject).Names}
	if len(names) == 0 {
		res.Identity = e.ids.identity(subject)
		return res, nil
	}

	oldCanon := e.ids.canonical(subject.Key)
	id, remap := e.ids.merge(subject, names)
	res.Identity = id
	res.Changed = len(names)

	drop := []string{string(oldCanon)}
	for old := range remap {
		drop = append(drop, string(old))
	}
	errs := []error{
		e.applyRemap(ctx, remap),
		e.persistAliases(ctx, drop, id),
	}
	e.log.Info("aliases merged",
		logx.String("canonical", string(id.Canonical)),
		logx.Int("names", len(id.Names)))
	return res, errors.Join(errs...)
}

// Unalias removes the listed nicks from the subject's alias set; removed
// nicks become independent singletons again. An expression resolving no
// names is rejected as a no-op, and listed nicks none of which are in the
// subject's alias set are rejected as an unknown reference.
func (e *Engine) Unalias(ctx context.Context, subject Name, ops []Op) (*AliasResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	names, err := evalUserNames(ops)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, reject(KindEmptyList, "nothing to be done")
	}

	oldCanon := e.ids.canonical(subject.Key)
	before := e.ids.identity(subject).Names
	id, removed, remap := e.ids.unmerge(subject, names)
	res := &AliasResult{Subject: subject, Before: before, Identity: id, Changed: removed}
	if removed == 0 {
		return nil, reject(KindUnknownReference, "no matching aliases of @%s", subject.Display)
	}

	errs := []error{
		e.applyRemap(ctx, remap),
		e.persistAliases(ctx, []string{string(oldCanon)}, id),
	}
	e.log.Info("aliases split",
		logx.String("subject", string(subject.Key)),
		logx.Int("removed", removed))
	return res, errors.Join(errs...)
}

// SeenInfo is the presence answer for one resolved user.
type SeenInfo struct {
	Name   Name
	Found  bool
	Record PresenceRecord // most recent across the identity's aliases
	Unread int
}

// Seen resolves the expression and reports when each member was last
// observed, aggregated across aliases.
func (e *Engine) Seen(ops []Op) ([]SeenInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	list, err := e.evalList(nil, ops, true)
	if err != nil {
		return nil, err
	}
	out := make([]SeenInfo, 0, len(list.Members))
	for _, m := range list.Members {
		rec, ok := e.seen.lastSeen(e.ids.aliases(m.Key, m))
		out = append(out, SeenInfo{Name: m, Found: ok, Record: rec, Unread: e.mail.countPending(m.Key)})
	}
	return out, nil
}

// Resolve returns the identity a nick denotes, without mutating anything.
func (e *Engine) Resolve(n Name) Identity {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ids.identity(n)
}

// SetAlertAddress registers (or, with an empty address, clears) the
// out-of-band alert address for the identity behind subject.
func (e *Engine) SetAlertAddress(ctx context.Context, subject Name, address string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	canon := e.ids.canonical(subject.Key)
	e.policy.subscribe(canon, address)
	return e.persistAlert(ctx, canon)
}

// GCStats reports one garbage-collection sweep.
type GCStats struct {
	Messages int
	Replies  int
}

// GC drops delivered messages past the stale window and expired reply
// contexts. Pending messages are never collected.
func (e *Engine) GC(ctx context.Context) (GCStats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	dropped := e.mail.prune(now, e.cfg.StaleWindow)
	stats := GCStats{Messages: len(dropped), Replies: e.replies.sweep(now)}

	var err error
	if e.store != nil && len(dropped) > 0 {
		err = e.store.DeleteMessages(ctx, dropped)
	}
	if stats.Messages > 0 || stats.Replies > 0 {
		e.log.Debug("gc sweep",
			logx.Int("messages", stats.Messages),
			logx.Int("replies", stats.Replies))
	}
	return stats, err
}

// evalUserNames resolves a users-only expression to raw (non-canonical)
// names, for alias commands that operate on individual nicks.
func evalUserNames(ops []Op) ([]Name, error) {
	set := newOrderedNames(nil)
	for _, op := range ops {
		if op.Group {
			return nil, reject(KindInvalidListContent, "please do not specify groups")
		}
		n := NameOf(op.Ref)
		if op.Remove {
			set.discard(n)
		} else {
			set.add(n)
		}
	}
	return set.names(), nil
}

// applyRemap propagates canonical-key changes to groups, mailboxes, the
// alert policy, and the store.
func (e *Engine) applyRemap(ctx context.Context, remap map[UserKey]UserKey) error {
	if len(remap) == 0 {
		return nil
	}
	changed := e.groups.rekey(remap)
	e.mail.rekey(remap)
	e.policy.rekey(remap)
	if e.store == nil {
		return nil
	}
	sm := make(map[string]string, len(remap))
	for old, next := range remap {
		sm[string(old)] = string(next)
	}
	errs := []error{e.store.RekeyRecipients(ctx, sm)}
	for _, name := range changed {
		errs = append(errs, e.persistGroup(ctx, name))
	}
	return errors.Join(errs...)
}

func (e *Engine) persistMessage(ctx context.Context, m *Message) error {
	if e.store == nil {
		return nil
	}
	return e.store.AddMessage(ctx, storage.MessageRow{
		ID:          m.ID,
		FromKey:     string(m.From.Key),
		FromDisplay: m.From.Display,
		ToKey:       string(m.To),
		ToNick:      m.ToNick,
		Reason:      m.Reason,
		Text:        m.Text,
		Priority:    string(m.Priority),
		Room:        m.Room,
		Created:     m.Created,
		Delivered:   m.Delivered,
		DeliveredTo: m.DeliveredTo,
	})
}

func (e *Engine) persistDelivered(ctx context.Context, msgs []*Message, at time.Time) error {
	if e.store == nil || len(msgs) == 0 {
		return nil
	}
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	return e.store.MarkDelivered(ctx, ids, at)
}

func (e *Engine) persistSeen(ctx context.Context, key UserKey) error {
	if e.store == nil {
		return nil
	}
	rec, ok := e.seen.get(key)
	if !ok {
		return nil
	}
	return e.store.SaveSeen(ctx, storage.SeenRow{
		Key:     string(key),
		Display: rec.Name,
		Room:    rec.Room,
		At:      rec.At,
		Unread:  rec.Unread,
	})
}

func (e *Engine) persistAlert(ctx context.Context, canon UserKey) error {
	if e.store == nil {
		return nil
	}
	return e.store.SaveAlert(ctx, storage.AlertRow{
		Key:           string(canon),
		Address:       e.policy.address(canon),
		ThrottleUntil: e.policy.throttleUntil(canon),
	})
}

func (e *Engine) persistGroup(ctx context.Context, name string) error {
	if e.store == nil {
		return nil
	}
	grp, ok := e.groups.get(name)
	if !ok {
		return nil
	}
	rec := storage.GroupRecord{Name: grp.Name, Description: grp.Description}
	for i, m := range grp.Members {
		rec.Members = append(rec.Members, storage.GroupMemberRow{Key: string(m.Key), Display: m.Display, Pos: i})
	}
	return e.store.ReplaceGroup(ctx, rec)
}

func (e *Engine) persistAliases(ctx context.Context, dropBases []string, id Identity) error {
	if e.store == nil {
		return nil
	}
	var rows []storage.AliasRow
	for i, n := range id.Names {
		rows = append(rows, storage.AliasRow{Base: string(id.Canonical), Key: string(n.Key), Display: n.Display, Pos: i})
	}
	return e.store.ReplaceAliases(ctx, dropBases, string(id.Canonical), rows)
}

func stripReplyPrefix(reason string) string {
	for strings.HasPrefix(reason, "<re> ") {
		reason = reason[len("<re> "):]
	}
	return reason
}

func sameNames(a, b []Name) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Key != b[i].Key {
			return false
		}
	}
	return true
}
