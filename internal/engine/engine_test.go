package engine

import (
	"context"
	"testing"
	"time"

	logx "tellbot/pkg/logx"
)

type testClock struct {
	now time.Time
}

func (c *testClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestEngine(t *testing.T) (*Engine, *testClock) {
	t.Helper()
	e, err := New(context.Background(), Config{}, nil, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	clk := &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	e.now = func() time.Time { return clk.now }
	return e, clk
}

func mustOps(t *testing.T, tokens ...string) []Op {
	t.Helper()
	ops := make([]Op, 0, len(tokens))
	for _, tok := range tokens {
		op, ok := ParseOp(tok)
		if !ok {
			t.Fatalf("ParseOp(%q) not recognized", tok)
		}
		ops = append(ops, op)
	}
	return ops
}

func memberKeys(ns []Name) []string {
	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = string(n.Key)
	}
	return out
}

func sameKeys(got []Name, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if string(got[i].Key) != want[i] {
			return false
		}
	}
	return true
}

func TestTellQueuesPerRecipient(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	res, err := e.Tell(ctx, TellRequest{
		Sender: NameOf("alice"),
		Room:   "lobby",
		Ops:    mustOps(t, "@bob", "@carol"),
		Text:   "meeting at noon",
	})
	if err != nil {
		t.Fatalf("Tell: %v", err)
	}
	if len(res.Queued) != 2 {
		t.Fatalf("expected 2 queued messages, got %d", len(res.Queued))
	}
	if got := e.mail.countPending(NormalizeNick("bob")); got != 1 {
		t.Fatalf("bob pending = %d, want 1", got)
	}
	if res.Queued[0].Reason != "@bob" || res.Queued[1].Reason != "@carol" {
		t.Fatalf("reasons = %q, %q", res.Queued[0].Reason, res.Queued[1].Reason)
	}
}

func TestTellEmptyTextQueuesNothing(t *testing.T) {
	e, _ := newTestEngine(t)

	res, err := e.Tell(context.Background(), TellRequest{
		Sender: NameOf("alice"),
		Ops:    mustOps(t, "@bob"),
		Text:   "   ",
	})
	if err != nil {
		t.Fatalf("Tell: %v", err)
	}
	if len(res.Queued) != 0 {
		t.Fatalf("expected no queued messages, got %d", len(res.Queued))
	}
	if !sameKeys(res.Delivery, "bob") {
		t.Fatalf("delivery = %v", memberKeys(res.Delivery))
	}
}

func TestTellSelfExclusion(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.Group(ctx, GroupRequest{Name: "team", Ops: mustOps(t, "@alice", "@bob")}); err != nil {
		t.Fatalf("Group: %v", err)
	}

	res, err := e.Tell(ctx, TellRequest{Sender: NameOf("alice"), Ops: mustOps(t, "*team"), Text: "hi"})
	if err != nil {
		t.Fatalf("Tell: %v", err)
	}
	if !res.SelfExcluded {
		t.Fatalf("expected self-exclusion")
	}
	if !sameKeys(res.Delivery, "bob") {
		t.Fatalf("delivery = %v", memberKeys(res.Delivery))
	}
	// The full breakdown still shows the sender.
	if !sameKeys(res.List.Members, "alice", "bob") {
		t.Fatalf("full list = %v", memberKeys(res.List.Members))
	}

	// Explicitly naming yourself on top of the group opts back in.
	res, err = e.Tell(ctx, TellRequest{Sender: NameOf("alice"), Ops: mustOps(t, "*team", "+@alice"), Text: "hi"})
	if err != nil {
		t.Fatalf("Tell: %v", err)
	}
	if res.SelfExcluded {
		t.Fatalf("explicit mention must defeat self-exclusion")
	}
	if !sameKeys(res.Delivery, "alice", "bob") {
		t.Fatalf("delivery = %v", memberKeys(res.Delivery))
	}
}

func TestTellAliasCollapsesRecipients(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.Alias(ctx, NameOf("Fred"), mustOps(t, "@Barney")); err != nil {
		t.Fatalf("Alias: %v", err)
	}
	res, err := e.Tell(ctx, TellRequest{Sender: NameOf("alice"), Ops: mustOps(t, "@fred", "@barney"), Text: "hi"})
	if err != nil {
		t.Fatalf("Tell: %v", err)
	}
	if len(res.Queued) != 1 {
		t.Fatalf("aliases of one user must collapse; queued %d", len(res.Queued))
	}
	if res.Queued[0].To != "barney" {
		t.Fatalf("canonical key = %q, want %q", res.Queued[0].To, "barney")
	}
	if res.Queued[0].ToNick != "fred" {
		t.Fatalf("display nick = %q, want first reference %q", res.Queued[0].ToNick, "fred")
	}
}

func TestUserListOrderedDedupFold(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.Group(ctx, GroupRequest{Name: "g", Ops: mustOps(t, "@a", "@b", "@c")}); err != nil {
		t.Fatalf("Group: %v", err)
	}

	tests := []struct {
		name   string
		tokens []string
		want   []string
	}{
		{"group minus member", []string{"*g", "-@b"}, []string{"a", "c"}},
		{"re-add moves to tail", []string{"*g", "-@a", "+@a"}, []string{"b", "c", "a"}},
		{"re-add of present member keeps position", []string{"@a", "@b", "+@a"}, []string{"a", "b"}},
		{"remove absent is a no-op", []string{"@a", "-@z"}, []string{"a"}},
		{"group remove", []string{"@a", "@z", "-*g"}, []string{"z"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e.mu.Lock()
			list, err := e.evalList(nil, mustOps(t, tc.tokens...), true)
			e.mu.Unlock()
			if err != nil {
				t.Fatalf("evalList: %v", err)
			}
			if !sameKeys(list.Members, tc.want...) {
				t.Fatalf("members = %v, want %v", memberKeys(list.Members), tc.want)
			}
		})
	}
}

func TestUserListReasonUserTokenWins(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.Group(ctx, GroupRequest{Name: "ops", Ops: mustOps(t, "@a", "@b")}); err != nil {
		t.Fatalf("Group: %v", err)
	}
	e.mu.Lock()
	list, err := e.evalList(nil, mustOps(t, "*ops", "@a"), true)
	e.mu.Unlock()
	if err != nil {
		t.Fatalf("evalList: %v", err)
	}
	if got := list.Reasons[NormalizeNick("a")]; got != "@a" {
		t.Fatalf("reason for a = %q, want direct mention", got)
	}
	if got := list.Reasons[NormalizeNick("b")]; got != "*ops" {
		t.Fatalf("reason for b = %q, want group token", got)
	}
}

func TestUrgentRequiresPrivilege(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Tell(ctx, TellRequest{Sender: NameOf("alice"), Ops: mustOps(t, "@bob"), Text: "now", Priority: PriorityUrgent})
	if !IsKind(err, KindUnauthorized) {
		t.Fatalf("expected Unauthorized, got %v", err)
	}
	if got := e.mail.countPending(NormalizeNick("bob")); got != 0 {
		t.Fatalf("rejection must not mutate; pending = %d", got)
	}

	if _, err := e.Tell(ctx, TellRequest{Sender: NameOf("alice"), Ops: mustOps(t, "@bob"), Text: "now", Priority: PriorityUrgent, Privileged: true}); err != nil {
		t.Fatalf("privileged urgent: %v", err)
	}
}

func TestActivityInlineDelivery(t *testing.T) {
	e, clk := newTestEngine(t)
	ctx := context.Background()

	// bob was around recently.
	if _, err := e.Activity(ctx, NameOf("bob"), "lobby"); err != nil {
		t.Fatalf("Activity: %v", err)
	}
	clk.advance(time.Hour)
	if _, err := e.Tell(ctx, TellRequest{Sender: NameOf("alice"), Ops: mustOps(t, "@bob"), Text: "ping"}); err != nil {
		t.Fatalf("Tell: %v", err)
	}
	clk.advance(time.Minute)

	res, err := e.Activity(ctx, NameOf("bob"), "lobby")
	if err != nil {
		t.Fatalf("Activity: %v", err)
	}
	if res.Notice != NoticeInline {
		t.Fatalf("notice = %v, want inline", res.Notice)
	}
	if len(res.Messages) != 1 || res.Messages[0].Text != "ping" {
		t.Fatalf("messages = %v", res.Messages)
	}
	if got := e.mail.countPending(NormalizeNick("bob")); got != 0 {
		t.Fatalf("pending after inline delivery = %d", got)
	}
}

func TestActivityLongAwayGetsInboxNotice(t *testing.T) {
	e, clk := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.Activity(ctx, NameOf("bob"), "lobby"); err != nil {
		t.Fatalf("Activity: %v", err)
	}
	clk.advance(72 * time.Hour) // past the inline cutoff
	if _, err := e.Tell(ctx, TellRequest{Sender: NameOf("alice"), Ops: mustOps(t, "@bob"), Text: "ping"}); err != nil {
		t.Fatalf("Tell: %v", err)
	}
	clk.advance(time.Minute)

	res, err := e.Activity(ctx, NameOf("bob"), "lobby")
	if err != nil {
		t.Fatalf("Activity: %v", err)
	}
	if res.Notice != NoticeInbox {
		t.Fatalf("notice = %v, want inbox", res.Notice)
	}
	if res.Unread != 1 {
		t.Fatalf("unread = %d", res.Unread)
	}
	if got := e.mail.countPending(NormalizeNick("bob")); got != 1 {
		t.Fatalf("inbox notice must not deliver; pending = %d", got)
	}

	// Same unread count again: no repeated nagging.
	clk.advance(time.Minute)
	res, err = e.Activity(ctx, NameOf("bob"), "lobby")
	if err != nil {
		t.Fatalf("Activity: %v", err)
	}
	if res.Notice != NoticeNone {
		t.Fatalf("unchanged unread must not re-notify, got %v", res.Notice)
	}
}

func TestInboxStaleReshowsDelivered(t *testing.T) {
	e, clk := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.Tell(ctx, TellRequest{Sender: NameOf("alice"), Ops: mustOps(t, "@bob"), Text: "one"}); err != nil {
		t.Fatalf("Tell: %v", err)
	}
	res, err := e.Inbox(ctx, NameOf("bob"), "lobby", false)
	if err != nil {
		t.Fatalf("Inbox: %v", err)
	}
	if res.Fresh != 1 || len(res.Messages) != 1 {
		t.Fatalf("first flush: fresh=%d messages=%d", res.Fresh, len(res.Messages))
	}
	firstDelivered := res.Messages[0].Delivered

	clk.advance(time.Hour)
	if _, err := e.Tell(ctx, TellRequest{Sender: NameOf("alice"), Ops: mustOps(t, "@bob"), Text: "two"}); err != nil {
		t.Fatalf("Tell: %v", err)
	}
	res, err = e.Inbox(ctx, NameOf("bob"), "lobby", true)
	if err != nil {
		t.Fatalf("Inbox stale: %v", err)
	}
	if res.Fresh != 1 || len(res.Messages) != 2 {
		t.Fatalf("stale flush: fresh=%d messages=%d", res.Fresh, len(res.Messages))
	}
	if res.Messages[0].Text != "one" || res.Messages[1].Text != "two" {
		t.Fatalf("stale flush order: %q, %q", res.Messages[0].Text, res.Messages[1].Text)
	}
	if !res.Messages[0].Delivered.Equal(firstDelivered) {
		t.Fatalf("re-shown message must keep its delivery stamp")
	}

	// Outside the stale window the old message drops out of the flush.
	clk.advance(49 * time.Hour)
	res, err = e.Inbox(ctx, NameOf("bob"), "lobby", true)
	if err != nil {
		t.Fatalf("Inbox stale: %v", err)
	}
	if len(res.Messages) != 0 {
		t.Fatalf("expected empty stale flush, got %d", len(res.Messages))
	}
}

func TestReplyRoundTrip(t *testing.T) {
	e, clk := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.Tell(ctx, TellRequest{Sender: NameOf("alice"), Ops: mustOps(t, "@bob"), Text: "hello"}); err != nil {
		t.Fatalf("Tell: %v", err)
	}
	flushed, err := e.Inbox(ctx, NameOf("bob"), "lobby", false)
	if err != nil {
		t.Fatalf("Inbox: %v", err)
	}
	if err := e.RecordDelivery(ctx, flushed.Messages[0].ID, "notice-1"); err != nil {
		t.Fatalf("RecordDelivery: %v", err)
	}

	res, err := e.Reply(ctx, ReplyRequest{Sender: NameOf("bob"), Room: "lobby", NoticeID: "notice-1", Text: "hi back"})
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if len(res.Queued) != 1 || res.Queued[0].To != NormalizeNick("alice") {
		t.Fatalf("reply must target the original sender: %+v", res.Queued)
	}
	if res.Queued[0].Reason != "<re> @alice" {
		t.Fatalf("reply reason = %q", res.Queued[0].Reason)
	}

	// Context expires after the reply window.
	clk.advance(49 * time.Hour)
	_, err = e.Reply(ctx, ReplyRequest{Sender: NameOf("bob"), NoticeID: "notice-1", Text: "too late"})
	if !IsKind(err, KindStaleReplyContext) {
		t.Fatalf("expected StaleReplyContext, got %v", err)
	}
}

func TestReplyAllReExpandsGroup(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.Group(ctx, GroupRequest{Name: "team", Ops: mustOps(t, "@bob", "@carol")}); err != nil {
		t.Fatalf("Group: %v", err)
	}
	if _, err := e.Tell(ctx, TellRequest{Sender: NameOf("alice"), Ops: mustOps(t, "*team"), Text: "standup?"}); err != nil {
		t.Fatalf("Tell: %v", err)
	}
	flushed, err := e.Inbox(ctx, NameOf("bob"), "lobby", false)
	if err != nil {
		t.Fatalf("Inbox: %v", err)
	}
	if err := e.RecordDelivery(ctx, flushed.Messages[0].ID, "notice-7"); err != nil {
		t.Fatalf("RecordDelivery: %v", err)
	}

	// Membership changes between delivery and reply are honored.
	if _, err := e.Group(ctx, GroupRequest{Name: "team", Ops: mustOps(t, "+@dave")}); err != nil {
		t.Fatalf("Group: %v", err)
	}
	res, err := e.Reply(ctx, ReplyRequest{Sender: NameOf("bob"), NoticeID: "notice-7", Text: "yes", All: true})
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if !sameKeys(res.Delivery, "carol", "dave") {
		t.Fatalf("reply-all delivery = %v", memberKeys(res.Delivery))
	}
	if !res.SelfExcluded {
		t.Fatalf("replier must be excluded from the re-expanded group")
	}
	for _, m := range res.Queued {
		if m.Reason != "<re> *team" {
			t.Fatalf("reason = %q", m.Reason)
		}
	}
}

func TestGroupRemoveAndDisplay(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.Group(ctx, GroupRequest{Name: "Team", Ops: mustOps(t, "@a", "@b", "@c")}); err != nil {
		t.Fatalf("Group: %v", err)
	}

	res, err := e.Group(ctx, GroupRequest{Name: "team", Ops: mustOps(t, "@b"), Remove: true})
	if err != nil {
		t.Fatalf("Group remove: %v", err)
	}
	if !sameKeys(res.After, "a", "c") {
		t.Fatalf("after = %v", memberKeys(res.After))
	}
	if res.Name != "Team" {
		t.Fatalf("display casing of first reference must win, got %q", res.Name)
	}

	_, err = e.Group(ctx, GroupRequest{Name: "team", Ops: nil, Remove: true})
	if !IsKind(err, KindEmptyList) {
		t.Fatalf("empty removal must be rejected, got %v", err)
	}

	// Pure display does not create groups.
	if _, err := e.Group(ctx, GroupRequest{Name: "ghost"}); err != nil {
		t.Fatalf("Group display: %v", err)
	}
	if _, ok := e.groups.get("ghost"); ok {
		t.Fatalf("display must not create the group")
	}
}

func TestGroupSelfRemovalClears(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.Group(ctx, GroupRequest{Name: "team", Ops: mustOps(t, "@a", "@b", "@c")}); err != nil {
		t.Fatalf("Group: %v", err)
	}

	// Subtracting a group from itself empties it: the expression is
	// evaluated against the membership as it was before the edit.
	res, err := e.Group(ctx, GroupRequest{Name: "team", Ops: mustOps(t, "-*team")})
	if err != nil {
		t.Fatalf("Group: %v", err)
	}
	if len(res.After) != 0 {
		t.Fatalf("after = %v", memberKeys(res.After))
	}
	if !sameKeys(res.Before, "a", "b", "c") {
		t.Fatalf("before = %v", memberKeys(res.Before))
	}
	if !res.Changed {
		t.Fatalf("clearing the group must report a change")
	}
}

func TestListGroupsPattern(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	for _, name := range []string{"groupA", "groupC", "groupH", "other"} {
		if _, err := e.Group(ctx, GroupRequest{Name: name, Ops: mustOps(t, "@x")}); err != nil {
			t.Fatalf("Group %s: %v", name, err)
		}
	}

	infos, err := e.ListGroups("group?")
	if err != nil {
		t.Fatalf("ListGroups: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("group? matched %d, want 3", len(infos))
	}

	infos, err = e.ListGroups("*[c-g]")
	if err != nil {
		t.Fatalf("ListGroups: %v", err)
	}
	if len(infos) != 1 || infos[0].Name != "groupC" {
		t.Fatalf("*[c-g] matched %v", infos)
	}

	_, err = e.ListGroups("group[")
	if !IsKind(err, KindMalformedPattern) {
		t.Fatalf("expected MalformedPattern, got %v", err)
	}
}

func TestAliasMergeRewritesGroupsAndMail(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.Group(ctx, GroupRequest{Name: "g", Ops: mustOps(t, "@fred", "@wilma", "@barney")}); err != nil {
		t.Fatalf("Group: %v", err)
	}
	if _, err := e.Tell(ctx, TellRequest{Sender: NameOf("alice"), Ops: mustOps(t, "@barney"), Text: "hi"}); err != nil {
		t.Fatalf("Tell: %v", err)
	}

	res, err := e.Alias(ctx, NameOf("Fred"), mustOps(t, "@Barney"))
	if err != nil {
		t.Fatalf("Alias: %v", err)
	}
	if res.Identity.Canonical != "barney" {
		t.Fatalf("canonical = %q, want alphabetically lowest", res.Identity.Canonical)
	}
	if !sameKeys(res.Identity.Names, "fred", "barney") {
		t.Fatalf("alias order = %v", memberKeys(res.Identity.Names))
	}

	// Group deduplicates to the first surviving position.
	members := e.groups.members("g")
	if !sameKeys(members, "barney", "wilma") {
		t.Fatalf("group after merge = %v", memberKeys(members))
	}
	// Barney's pending mail is reachable under the merged identity.
	if got := e.mail.countPending("barney"); got != 1 {
		t.Fatalf("merged mailbox pending = %d", got)
	}

	// Unalias splits barney back out; the survivor gets a fresh canonical.
	split, err := e.Unalias(ctx, NameOf("fred"), mustOps(t, "@barney"))
	if err != nil {
		t.Fatalf("Unalias: %v", err)
	}
	if split.Changed != 1 {
		t.Fatalf("removed = %d", split.Changed)
	}
	if split.Identity.Canonical != "fred" {
		t.Fatalf("survivor canonical = %q", split.Identity.Canonical)
	}
}

func TestAliasRejectsGroups(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.Alias(context.Background(), NameOf("fred"), mustOps(t, "*ops"))
	if !IsKind(err, KindInvalidListContent) {
		t.Fatalf("expected InvalidListContent, got %v", err)
	}
	_, err = e.Unalias(context.Background(), NameOf("fred"), nil)
	if !IsKind(err, KindEmptyList) {
		t.Fatalf("expected EmptyList, got %v", err)
	}
	// Splitting off a nick that was never aliased must not silently succeed.
	_, err = e.Unalias(context.Background(), NameOf("fred"), mustOps(t, "@nobody"))
	if !IsKind(err, KindUnknownReference) {
		t.Fatalf("expected UnknownReference, got %v", err)
	}
}

func TestSeenAggregatesAliases(t *testing.T) {
	e, clk := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.Activity(ctx, NameOf("fred"), "lobby"); err != nil {
		t.Fatalf("Activity: %v", err)
	}
	clk.advance(time.Hour)
	if _, err := e.Activity(ctx, NameOf("barney"), "den"); err != nil {
		t.Fatalf("Activity: %v", err)
	}
	if _, err := e.Alias(ctx, NameOf("fred"), mustOps(t, "@barney")); err != nil {
		t.Fatalf("Alias: %v", err)
	}

	infos, err := e.Seen(mustOps(t, "@fred"))
	if err != nil {
		t.Fatalf("Seen: %v", err)
	}
	if len(infos) != 1 || !infos[0].Found {
		t.Fatalf("infos = %+v", infos)
	}
	if infos[0].Record.Room != "den" {
		t.Fatalf("most recent alias observation must win, got room %q", infos[0].Record.Room)
	}
}

func TestAlertDecisions(t *testing.T) {
	e, clk := newTestEngine(t)
	ctx := context.Background()

	var alerts []Alert
	e.SetAlertSink(AlertFunc(func(a Alert) { alerts = append(alerts, a) }))

	if err := e.SetAlertAddress(ctx, NameOf("bob"), "bob@example.net"); err != nil {
		t.Fatalf("SetAlertAddress: %v", err)
	}

	// Recently active: NORMAL does not alert.
	if _, err := e.Activity(ctx, NameOf("bob"), "lobby"); err != nil {
		t.Fatalf("Activity: %v", err)
	}
	clk.advance(time.Hour)
	if _, err := e.Tell(ctx, TellRequest{Sender: NameOf("alice"), Ops: mustOps(t, "@bob"), Text: "a"}); err != nil {
		t.Fatalf("Tell: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("active recipient must not be alerted")
	}

	// Urgent bypasses the away threshold and the activity throttle.
	if _, err := e.Tell(ctx, TellRequest{Sender: NameOf("alice"), Ops: mustOps(t, "@bob"), Text: "b", Priority: PriorityUrgent, Privileged: true}); err != nil {
		t.Fatalf("Tell urgent: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Decision != DecisionImmediate {
		t.Fatalf("alerts = %+v", alerts)
	}
	if alerts[0].Address != "bob@example.net" {
		t.Fatalf("address = %q", alerts[0].Address)
	}

	// Away past the threshold and the throttle: NORMAL defers an alert.
	alerts = nil
	clk.advance(8 * 24 * time.Hour)
	if _, err := e.Tell(ctx, TellRequest{Sender: NameOf("alice"), Ops: mustOps(t, "@bob"), Text: "c"}); err != nil {
		t.Fatalf("Tell: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Decision != DecisionDeferred {
		t.Fatalf("alerts = %+v", alerts)
	}

	// The send cooldown suppresses the next one.
	if _, err := e.Tell(ctx, TellRequest{Sender: NameOf("alice"), Ops: mustOps(t, "@bob"), Text: "d"}); err != nil {
		t.Fatalf("Tell: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("send cooldown must suppress repeat alerts, got %d", len(alerts))
	}

	// LOW never alerts, even after the cooldown.
	alerts = nil
	clk.advance(8 * 24 * time.Hour)
	if _, err := e.Tell(ctx, TellRequest{Sender: NameOf("alice"), Ops: mustOps(t, "@bob"), Text: "e", Priority: PriorityLow}); err != nil {
		t.Fatalf("Tell low: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("LOW must not alert")
	}
}

func TestGCDropsOldDeliveredAndReplies(t *testing.T) {
	e, clk := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.Tell(ctx, TellRequest{Sender: NameOf("alice"), Ops: mustOps(t, "@bob"), Text: "old"}); err != nil {
		t.Fatalf("Tell: %v", err)
	}
	flushed, err := e.Inbox(ctx, NameOf("bob"), "lobby", false)
	if err != nil {
		t.Fatalf("Inbox: %v", err)
	}
	if err := e.RecordDelivery(ctx, flushed.Messages[0].ID, "notice-9"); err != nil {
		t.Fatalf("RecordDelivery: %v", err)
	}
	// A pending message must survive any sweep.
	if _, err := e.Tell(ctx, TellRequest{Sender: NameOf("alice"), Ops: mustOps(t, "@carol"), Text: "keep"}); err != nil {
		t.Fatalf("Tell: %v", err)
	}

	clk.advance(50 * time.Hour)
	stats, err := e.GC(ctx)
	if err != nil {
		t.Fatalf("GC: %v", err)
	}
	if stats.Messages != 1 || stats.Replies != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if got := e.mail.countPending(NormalizeNick("carol")); got != 1 {
		t.Fatalf("pending message must survive GC")
	}
}
