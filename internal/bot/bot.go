// Package bot turns inbound chat messages into notification-engine calls
// and renders the results back into the room. It owns the command grammar
// (!tell, !inbox, group and alias management) while the engine owns all
// state; the transport adapter is only used to post replies.
package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"tellbot/internal/engine"
	"tellbot/internal/transport"
	"tellbot/pkg/logx"
)

// Config is the bot-level behavior knobs, separate from engine policy.
type Config struct {
	// Nick is how the bot refers to itself ("me" in rendered lists).
	Nick string
	// NotifyMode controls the generic !notify command: "off" ignores it,
	// "always" treats it like !tnotify, "delay" answers only if no other
	// bot responded within NotifyDelay.
	NotifyMode  string
	NotifyDelay time.Duration
}

func (c *Config) applyDefaults() {
	if c.Nick == "" {
		c.Nick = "TellBot"
	}
	if c.NotifyMode == "" {
		c.NotifyMode = "delay"
	}
	if c.NotifyDelay <= 0 {
		c.NotifyDelay = 10 * time.Second
	}
}

// Bot wires a transport to the notification engine.
type Bot struct {
	eng *engine.Engine
	out transport.Adapter
	log logx.Logger

	mu      sync.Mutex
	cfg     Config
	runCtx  context.Context
	pending map[string]*time.Timer // delayed !notify fallbacks, keyed by trigger message id
}

// New builds a Bot. The adapter is only used for sending; the caller runs
// the receive loop by feeding Run.
func New(cfg Config, eng *engine.Engine, out transport.Adapter, log logx.Logger) *Bot {
	cfg.applyDefaults()
	return &Bot{
		eng:     eng,
		out:     out,
		log:     log.With(logx.String("component", "bot")),
		cfg:     cfg,
		pending: map[string]*time.Timer{},
	}
}

// Apply installs a new configuration, used for live reloads.
func (b *Bot) Apply(cfg Config) {
	cfg.applyDefaults()
	b.mu.Lock()
	b.cfg = cfg
	b.mu.Unlock()
}

func (b *Bot) config() Config {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg
}

// Run consumes inbound messages until the context ends or in is closed.
func (b *Bot) Run(ctx context.Context, in <-chan transport.Message) error {
	b.mu.Lock()
	b.runCtx = ctx
	b.mu.Unlock()
	defer b.cancelAllDelayed()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			b.Handle(ctx, msg)
		}
	}
}

// Handle processes one inbound message: presence bookkeeping, pending
// delivery, then command dispatch.
func (b *Bot) Handle(ctx context.Context, msg transport.Message) {
	if msg.FromSelf {
		return
	}
	// Any foreign response to a message settles a pending !notify fallback:
	// some other bot answered first.
	if msg.ParentID != "" {
		b.cancelDelayed(msg.ParentID)
	}

	toks := lexLine(msg.Text)
	cmd := ""
	if len(toks) > 0 && strings.HasPrefix(toks[0].Text, "!") {
		cmd = toks[0].Text
	}

	// !inbox flushes the mailbox itself; running the activity notice first
	// would race it for the same messages.
	if cmd != "!inbox" && cmd != "!boop" {
		b.observeActivity(ctx, msg)
	}

	switch cmd {
	case "":
		return
	case "!tell", "!tnotify":
		b.handleTell(ctx, msg, toks[1:])
	case "!notify":
		b.handleNotify(ctx, msg, toks[1:])
	case "!reply":
		b.handleReply(ctx, msg, toks[1:], false)
	case "!reply-all":
		b.handleReply(ctx, msg, toks[1:], true)
	case "!inbox", "!boop":
		b.handleInbox(ctx, msg, toks[1:])
	case "!tgroup", "!tungroup", "!tgrouplist":
		b.handleGroup(ctx, msg, cmd, toks[1:])
	case "!tlistgroups":
		b.handleListGroups(ctx, msg, toks[1:])
	case "!tgroupsof":
		b.handleGroupsOf(ctx, msg, toks[1:])
	case "!alias", "!unalias":
		b.handleAlias(ctx, msg, cmd, toks[1:])
	case "!seen":
		b.handleSeen(ctx, msg, toks[1:])
	}
}

// observeActivity records presence and delivers or announces pending
// messages according to the engine's decision.
func (b *Bot) observeActivity(ctx context.Context, msg transport.Message) {
	res, err := b.eng.Activity(ctx, engine.NameOf(msg.Sender), msg.Room)
	if err != nil {
		b.log.Error("activity bookkeeping failed", logx.Err(err))
		if res == nil {
			return
		}
	}
	switch res.Notice {
	case engine.NoticeInline:
		b.deliverMessages(ctx, msg, res.Messages)
	case engine.NoticeInbox:
		if res.Unread == 1 {
			b.reply(ctx, msg, "You have 1 unread message; use !inbox to read it. "+replyHelp)
		} else {
			b.replyf(ctx, msg, "You have %d unread messages; use !inbox to read them. %s",
				res.Unread, replyHelp)
		}
	}
}

// deliverMessages posts each pending message as its own reply and records
// the resulting notice id so the recipient can !reply to it.
func (b *Bot) deliverMessages(ctx context.Context, trigger transport.Message, msgs []*engine.Message) {
	now := time.Now()
	for _, m := range msgs {
		line := b.deliveryLine(m, trigger.Sender, now)
		noticeID, err := b.out.Send(ctx, trigger.Room, line, trigger.ID)
		if err != nil {
			b.log.Error("message delivery failed",
				logx.String("message_id", m.ID), logx.Err(err))
			continue
		}
		if err := b.eng.RecordDelivery(ctx, m.ID, noticeID); err != nil {
			b.log.Warn("delivery notice not recorded",
				logx.String("message_id", m.ID), logx.Err(err))
		}
	}
}

// reply posts text as a response to the triggering message.
func (b *Bot) reply(ctx context.Context, msg transport.Message, text string) {
	if _, err := b.out.Send(ctx, msg.Room, text, msg.ID); err != nil {
		b.log.Error("reply failed", logx.String("room", msg.Room), logx.Err(err))
	}
}

func (b *Bot) replyf(ctx context.Context, msg transport.Message, format string, args ...any) {
	b.reply(ctx, msg, fmt.Sprintf(format, args...))
}

// replyRejection renders an engine rejection as a user-facing sentence.
// Non-rejection errors are logged, not shown.
func (b *Bot) replyRejection(ctx context.Context, msg transport.Message, err error) {
	if rej, ok := engine.RejectionOf(err); ok {
		b.reply(ctx, msg, titleFirst(rej.Msg)+".")
		return
	}
	b.log.Error("command failed", logx.Err(err))
}

func (b *Bot) cancelDelayed(id string) {
	b.mu.Lock()
	t, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	b.mu.Unlock()
	if ok {
		t.Stop()
	}
}

func (b *Bot) cancelAllDelayed() {
	b.mu.Lock()
	timers := b.pending
	b.pending = map[string]*time.Timer{}
	b.mu.Unlock()
	for _, t := range timers {
		t.Stop()
	}
}

// scheduleDelayed arms the !notify fallback for one trigger message.
func (b *Bot) scheduleDelayed(msg transport.Message, toks []token, delay time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ctx := b.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	if old, ok := b.pending[msg.ID]; ok {
		old.Stop()
	}
	b.pending[msg.ID] = time.AfterFunc(delay, func() {
		b.mu.Lock()
		delete(b.pending, msg.ID)
		b.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		b.handleTell(ctx, msg, toks)
	})
}
