package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"tellbot/internal/engine"
	"tellbot/internal/transport"
	"tellbot/pkg/logx"
)

type sent struct {
	Room    string
	Text    string
	ReplyTo string
}

// fakeAdapter records outbound sends and hands out sequential notice ids.
type fakeAdapter struct {
	mu   sync.Mutex
	msgs []sent
	next int
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- transport.Message) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                                { return nil }

func (f *fakeAdapter) Send(ctx context.Context, room, text, replyTo string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.msgs = append(f.msgs, sent{Room: room, Text: text, ReplyTo: replyTo})
	return fmt.Sprintf("notice-%d", f.next), nil
}

func (f *fakeAdapter) all() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.msgs...)
}

func (f *fakeAdapter) last(t *testing.T) sent {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.msgs) == 0 {
		t.Fatalf("no message sent")
	}
	return f.msgs[len(f.msgs)-1]
}

func newTestBot(t *testing.T, cfg Config) (*Bot, *fakeAdapter) {
	t.Helper()
	eng, err := engine.New(context.Background(), engine.Config{}, nil, logx.Nop())
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	out := &fakeAdapter{}
	return New(cfg, eng, out, logx.Nop()), out
}

func say(id, sender, text string) transport.Message {
	return transport.Message{ID: id, Room: "lobby", Sender: sender, Text: text}
}

func TestLexLineOffsets(t *testing.T) {
	line := "!tell @bob   hello   spaced  out"
	toks := lexLine(line)
	if len(toks) != 5 {
		t.Fatalf("got %d tokens, want 5", len(toks))
	}
	if toks[1].Text != "@bob" {
		t.Fatalf("second token = %q", toks[1].Text)
	}
	// The body must be the raw tail, inner spacing intact.
	if got := line[toks[2].Start:]; got != "hello   spaced  out" {
		t.Fatalf("body = %q", got)
	}
}

func TestFormatList(t *testing.T) {
	for _, tc := range []struct {
		in   []string
		want string
	}{
		{nil, "-none-"},
		{[]string{"a"}, "a"},
		{[]string{"a", "b"}, "a and b"},
		{[]string{"a", "b", "c"}, "a, b, and c"},
	} {
		if got := formatList(tc.in, "-none-"); got != tc.want {
			t.Errorf("formatList(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatDelta(t *testing.T) {
	for _, tc := range []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{45 * time.Second, "45s"},
		{90 * time.Second, "1m 30s"},
		{26*time.Hour + 5*time.Minute, "1d 2h 5m"},
	} {
		if got := formatDelta(tc.in); got != tc.want {
			t.Errorf("formatDelta(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTellAndInlineDelivery(t *testing.T) {
	ctx := context.Background()
	b, out := newTestBot(t, Config{Nick: "TellBot"})

	b.Handle(ctx, say("m1", "alice", "!tell @bob see you  at   noon"))
	if got := out.last(t).Text; got != "Will tell bob." {
		t.Fatalf("confirmation = %q", got)
	}

	// Bob shows up: the message is delivered inline, spacing intact.
	b.Handle(ctx, say("m2", "bob", "morning"))
	got := out.last(t)
	if !strings.HasPrefix(got.Text, "[Alice, ") {
		t.Fatalf("delivery = %q", got.Text)
	}
	if !strings.HasSuffix(got.Text, "] see you  at   noon") {
		t.Fatalf("delivery = %q", got.Text)
	}
	// A direct mention of the recipient adds no reason clause.
	if strings.Contains(got.Text, " to ") {
		t.Fatalf("unexpected reason in %q", got.Text)
	}
	if got.ReplyTo != "m2" {
		t.Fatalf("delivery replied to %q", got.ReplyTo)
	}
}

func TestTellWithoutBody(t *testing.T) {
	ctx := context.Background()
	b, out := newTestBot(t, Config{})

	b.Handle(ctx, say("m1", "alice", "!tell @bob"))
	if got := out.last(t).Text; got != "Nothing to tell bob (did you specify a message?)." {
		t.Fatalf("reply = %q", got)
	}
}

func TestTellPingAndGroupBreakdown(t *testing.T) {
	ctx := context.Background()
	b, out := newTestBot(t, Config{})

	b.Handle(ctx, say("m1", "carol", "!tgroup *team @alice @bob"))
	b.Handle(ctx, say("m2", "carol", "!tell --ping *team standup time"))
	if got := out.last(t).Text; got != "Will tell *team (@alice and @bob)." {
		t.Fatalf("confirmation = %q", got)
	}
}

func TestReplyRoundTrip(t *testing.T) {
	ctx := context.Background()
	b, out := newTestBot(t, Config{})

	b.Handle(ctx, say("m1", "alice", "!tell @bob ping me back"))
	b.Handle(ctx, say("m2", "bob", "hi"))
	delivery := out.last(t)
	if !strings.Contains(delivery.Text, "ping me back") {
		t.Fatalf("delivery = %q", delivery.Text)
	}
	noticeID := fmt.Sprintf("notice-%d", len(out.all()))

	b.Handle(ctx, transport.Message{
		ID: "m3", Room: "lobby", ParentID: noticeID,
		Sender: "bob", Text: "!reply on my way",
	})
	if got := out.last(t).Text; got != "Will tell alice." {
		t.Fatalf("reply confirmation = %q", got)
	}

	// The reply lands in alice's mailbox with a reply reason.
	b.Handle(ctx, say("m4", "alice", "hello again"))
	if got := out.last(t).Text; !strings.Contains(got, " replying to you, ") {
		t.Fatalf("reply delivery = %q", got)
	}
}

func TestReplyWithoutParent(t *testing.T) {
	ctx := context.Background()
	b, out := newTestBot(t, Config{})

	b.Handle(ctx, say("m1", "bob", "!reply hi"))
	if got := out.last(t).Text; got != "Nothing to reply to." {
		t.Fatalf("reply = %q", got)
	}
}

func TestInboxEmpty(t *testing.T) {
	ctx := context.Background()
	b, out := newTestBot(t, Config{})

	b.Handle(ctx, say("m1", "bob", "!inbox"))
	if got := out.last(t).Text; got != "No mail." {
		t.Fatalf("reply = %q", got)
	}
}

func TestGroupDisplay(t *testing.T) {
	ctx := context.Background()
	b, out := newTestBot(t, Config{})

	b.Handle(ctx, say("m1", "carol", "!tgroup *team @alice @bob"))
	got := out.last(t).Text
	for _, want := range []string{"Group: *team", "Members before: -none-", "Members after (2): alice and bob"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in %q", want, got)
		}
	}

	b.Handle(ctx, say("m2", "carol", "!tgrouplist *team"))
	if got := out.last(t).Text; !strings.Contains(got, "Members (2): alice and bob") {
		t.Fatalf("display = %q", got)
	}

	b.Handle(ctx, say("m3", "carol", "!tgrouplist *team @dave"))
	if got := out.last(t).Text; got != "Use !tgroup to edit a group." {
		t.Fatalf("reply = %q", got)
	}
}

func TestGroupDescription(t *testing.T) {
	ctx := context.Background()
	b, out := newTestBot(t, Config{})

	b.Handle(ctx, say("m1", "carol", "!tgroup *ops @alice -- people with pagers"))
	if got := out.last(t).Text; !strings.Contains(got, "New description: people with pagers") {
		t.Fatalf("reply = %q", got)
	}
	b.Handle(ctx, say("m2", "carol", "!tgrouplist *ops"))
	if got := out.last(t).Text; !strings.Contains(got, "Description: people with pagers") {
		t.Fatalf("reply = %q", got)
	}
}

func TestListGroupsClustering(t *testing.T) {
	ctx := context.Background()
	b, out := newTestBot(t, Config{})

	for i, g := range []string{"alpha", "arrows", "beta"} {
		b.Handle(ctx, say(fmt.Sprintf("m%d", i), "carol", "!tgroup *"+g+" @alice"))
	}
	b.Handle(ctx, say("m9", "carol", "!tlistgroups"))
	if got := out.last(t).Text; got != "*alpha, *arrows\n*beta" {
		t.Fatalf("listing = %q", got)
	}

	b.Handle(ctx, say("m10", "carol", "!tlistgroups z*"))
	if got := out.last(t).Text; got != "No groups matching pattern." {
		t.Fatalf("reply = %q", got)
	}
}

func TestGroupsOf(t *testing.T) {
	ctx := context.Background()
	b, out := newTestBot(t, Config{})

	b.Handle(ctx, say("m1", "carol", "!tgroup *team @alice"))
	b.Handle(ctx, say("m2", "carol", "!tgroupsof @alice"))
	if got := out.last(t).Text; got != "Groups of alice (1): *team" {
		t.Fatalf("reply = %q", got)
	}

	b.Handle(ctx, say("m3", "carol", "!tgroupsof"))
	if got := out.last(t).Text; got != "No-one to look for." {
		t.Fatalf("reply = %q", got)
	}
}

func TestAliasCommand(t *testing.T) {
	ctx := context.Background()
	b, out := newTestBot(t, Config{})

	b.Handle(ctx, say("m1", "carol", "!alias @fred @freddy"))
	got := out.last(t).Text
	if !strings.Contains(got, "before") || !strings.Contains(got, "after") {
		t.Fatalf("reply = %q", got)
	}
	if !strings.Contains(got, "fred and freddy") {
		t.Fatalf("reply = %q", got)
	}

	b.Handle(ctx, say("m2", "carol", "!alias @fred *team"))
	if got := out.last(t).Text; got != "Please do not specify groups." {
		t.Fatalf("reply = %q", got)
	}

	b.Handle(ctx, say("m3", "carol", "!unalias @fred"))
	if got := out.last(t).Text; got != "Nothing to be done." {
		t.Fatalf("reply = %q", got)
	}

	b.Handle(ctx, say("m4", "carol", "!unalias @fred @barney"))
	if got := out.last(t).Text; got != "No matching aliases of @fred." {
		t.Fatalf("reply = %q", got)
	}
}

func TestSeenCommand(t *testing.T) {
	ctx := context.Background()
	b, out := newTestBot(t, Config{})

	b.Handle(ctx, say("m1", "carol", "!seen @bob"))
	if got := out.last(t).Text; got != "@bob not seen." {
		t.Fatalf("reply = %q", got)
	}

	b.Handle(ctx, say("m2", "bob", "hello"))
	b.Handle(ctx, say("m3", "carol", "!seen @bob"))
	got := out.last(t).Text
	if !strings.HasPrefix(got, "@bob last seen here on ") || !strings.HasSuffix(got, ", just now.") {
		t.Fatalf("reply = %q", got)
	}

	b.Handle(ctx, say("m4", "carol", "!seen"))
	if got := out.last(t).Text; got != "No-one to check for." {
		t.Fatalf("reply = %q", got)
	}
}

func TestNotifyDelayFallback(t *testing.T) {
	ctx := context.Background()
	b, out := newTestBot(t, Config{NotifyMode: "delay", NotifyDelay: 20 * time.Millisecond})

	b.Handle(ctx, say("m1", "alice", "!notify @bob are you there"))
	if len(out.all()) != 0 {
		t.Fatalf("answered before the fallback delay: %v", out.all())
	}
	time.Sleep(60 * time.Millisecond)
	if got := out.last(t).Text; got != "Will tell bob." {
		t.Fatalf("fallback reply = %q", got)
	}
}

func TestNotifyDelayCancelledByOtherBot(t *testing.T) {
	ctx := context.Background()
	b, out := newTestBot(t, Config{NotifyMode: "delay", NotifyDelay: 20 * time.Millisecond})

	b.Handle(ctx, say("m1", "alice", "!notify @bob are you there"))
	// Another bot answered the trigger first.
	b.Handle(ctx, transport.Message{
		ID: "x1", Room: "lobby", ParentID: "m1", Sender: "NotBot", Text: "bob will be notified",
	})
	time.Sleep(60 * time.Millisecond)
	for _, s := range out.all() {
		if strings.HasPrefix(s.Text, "Will tell") {
			t.Fatalf("fallback fired despite cancellation: %q", s.Text)
		}
	}
}

func TestUnreadInboxNotice(t *testing.T) {
	ctx := context.Background()
	b, out := newTestBot(t, Config{})

	// Age bob far past the inline cutoff, then queue mail for him.
	eng, err := engine.New(context.Background(), engine.Config{InlineCutoff: time.Nanosecond}, nil, logx.Nop())
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	b.eng = eng
	b.Handle(ctx, say("m1", "bob", "around"))
	time.Sleep(2 * time.Millisecond)
	b.Handle(ctx, say("m2", "alice", "!tell @bob one thing"))

	b.Handle(ctx, say("m3", "bob", "back"))
	got := out.last(t).Text
	if !strings.HasPrefix(got, "You have 1 unread message; use !inbox to read it.") {
		t.Fatalf("notice = %q", got)
	}

	b.Handle(ctx, say("m4", "bob", "!inbox"))
	if got := out.last(t).Text; !strings.Contains(got, "one thing") {
		t.Fatalf("inbox delivery = %q", got)
	}
}
