// Package telegram adapts Telegram group chats to the transport interface.
// Each configured room name maps to one chat id; messages from unmapped
// chats are ignored.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "tellbot/internal/runtime/supervisor"
	kit "tellbot/internal/transport"
	logx "tellbot/pkg/logx"
)

// Config configures the Telegram adapter.
type Config struct {
	Token       string
	PollTimeout time.Duration
	// Rooms maps room names to Telegram chat ids.
	Rooms map[string]int64
	// AdminIDs are senders allowed to use restricted features.
	AdminIDs []int64
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot    *tele.Bot
	rooms  map[string]int64 // room name -> chat id
	names  map[int64]string // chat id -> room name
	admins map[int64]bool

	out     atomic.Value // stores (chan<- kit.Message)
	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	// dropped counts inbound messages discarded because the consumer was
	// slower than the poll loop; reported periodically instead of per drop.
	dropped uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if len(cfg.Rooms) == 0 {
		return nil, errors.New("telegram rooms are empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{
		cfg:    cfg,
		log:    log,
		bot:    b,
		rooms:  map[string]int64{},
		names:  map[int64]string{},
		admins: map[int64]bool{},
	}
	for name, id := range cfg.Rooms {
		a.rooms[name] = id
		a.names[id] = name
	}
	for _, id := range cfg.AdminIDs {
		a.admins[id] = true
	}
	var nilOut chan<- kit.Message
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil {
			return nil
		}
		room, ok := a.names[m.Chat.ID]
		if !ok {
			return nil
		}
		msg := kit.Message{
			ID:         strconv.Itoa(m.ID),
			Room:       room,
			Sender:     senderNick(m.Sender),
			SenderID:   m.Sender.ID,
			Text:       m.Text,
			FromSelf:   a.bot.Me != nil && m.Sender.ID == a.bot.Me.ID,
			Privileged: a.admins[m.Sender.ID],
		}
		if m.ReplyTo != nil {
			msg.ParentID = strconv.Itoa(m.ReplyTo.ID)
		}
		a.deliver(msg)
		return nil
	})
}

func senderNick(u *tele.User) string {
	if u.Username != "" {
		return u.Username
	}
	return strings.TrimSpace(u.FirstName + u.LastName)
}

func (a *Adapter) deliver(msg kit.Message) {
	v := a.out.Load()
	out, _ := v.(chan<- kit.Message)
	if out == nil {
		return
	}
	select {
	case out <- msg:
	default:
		atomic.AddUint64(&a.dropped, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Message) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log.With(logx.String("comp", "telegram"))),
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	sup.Go0("drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-c.Done():
				if n := atomic.SwapUint64(&a.dropped, 0); n > 0 {
					a.log.Warn("inbound messages dropped", logx.Uint64("count", n))
				}
				return
			case <-ticker.C:
				if n := atomic.SwapUint64(&a.dropped, 0); n > 0 {
					a.log.Warn("inbound messages dropped", logx.Uint64("count", n))
				}
			}
		}
	})
	sup.Go0("stop_on_cancel", func(c context.Context) {
		<-c.Done()
		if a.bot != nil {
			a.bot.Stop()
		}
	})
	// Telebot's Start blocks; run it under a restart loop so a poll-loop
	// failure does not silence the bot.
	sup.GoRestart("poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
		return nil
	}, 500*time.Millisecond, 10*time.Second)
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Message
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if sup != nil {
		sup.Cancel()
	}
	if a.bot != nil {
		go a.bot.Stop()
	}

	// Keep shutdown snappy even if the long-poll is still waiting.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Warn("telegram stop error", logx.Err(err))
	}
	return nil
}

const textLimit = 4000

func (a *Adapter) Send(ctx context.Context, room, text, replyTo string) (string, error) {
	chatID, ok := a.rooms[room]
	if !ok {
		return "", fmt.Errorf("unknown room %q", room)
	}
	chat := &tele.Chat{ID: chatID}

	var opts tele.SendOptions
	if replyTo != "" {
		id, err := strconv.Atoi(replyTo)
		if err != nil {
			return "", fmt.Errorf("bad reply target %q: %w", replyTo, err)
		}
		opts.ReplyTo = &tele.Message{ID: id, Chat: chat}
	}

	first := ""
	for _, chunk := range splitText(text, textLimit) {
		m, err := a.bot.Send(chat, chunk, &opts)
		if err != nil {
			return first, err
		}
		if first == "" {
			first = strconv.Itoa(m.ID)
		}
		opts.ReplyTo = nil // only the first chunk threads
	}
	return first, nil
}

// splitText chunks long messages, preferring newline boundaries.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	var out []string
	start := 0
	for start < len(rs) {
		end := start + limit
		if end >= len(rs) {
			out = append(out, string(rs[start:]))
			break
		}
		cut := end
		for i := end - 1; i > start+limit/3; i-- {
			if rs[i] == '\n' {
				cut = i + 1
				break
			}
		}
		out = append(out, string(rs[start:cut]))
		start = cut
	}
	return out
}
