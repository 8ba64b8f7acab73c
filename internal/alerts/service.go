package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tellbot/internal/engine"
	rtsup "tellbot/internal/runtime/supervisor"
	logx "tellbot/pkg/logx"
)

// Config controls the alert pipeline.
type Config struct {
	Enabled bool
	Backend string // "sendmail" or "null"

	// From is the full mailbox used in the From header, e.g.
	// "TellBot <tellbot@example.com>".
	From string
	// EnvelopeFrom overrides the envelope sender; defaults to the
	// addr-spec of From.
	EnvelopeFrom string
	// SubjectTag, when set, is prepended to subjects in square brackets.
	SubjectTag      string
	SendmailCommand string

	Workers       int
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
}

func (c *Config) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 1
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 2 * time.Second
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = time.Minute
	}
}

// Service is the async alert pipeline. It implements engine.AlertSink:
// Dispatch never blocks, so it is safe to call from under the engine lock.
type Service struct {
	mu        sync.Mutex
	log       logx.Logger
	cfg       Config
	limiter   *rate.Limiter
	sender    Sender
	queue     chan engine.Alert
	sup       *rtsup.Supervisor
	accepting bool
	sendWG    sync.WaitGroup
}

var _ engine.AlertSink = (*Service)(nil)

func New(cfg Config, log logx.Logger) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{log: log}
	if err := s.applyLocked(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

// Apply swaps configuration, including the backend, for live reload.
// A changed queue size takes effect on the next Start.
func (s *Service) Apply(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(cfg)
}

func (s *Service) applyLocked(cfg Config) error {
	cfg.applyDefaults()
	sender, err := newSender(cfg)
	if err != nil {
		return err
	}
	s.cfg = cfg
	s.sender = sender
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	return nil
}

// Dispatch enqueues an alert, dropping it with a warning when the queue is
// full or the service is not running.
func (s *Service) Dispatch(a engine.Alert) {
	s.mu.Lock()
	q := s.queue
	accepting := s.accepting && s.cfg.Enabled
	if accepting && q != nil {
		s.sendWG.Add(1)
		defer s.sendWG.Done()
	}
	s.mu.Unlock()
	if !accepting || q == nil {
		return
	}
	select {
	case q <- a:
	default:
		s.log.Warn("alert dropped, queue full",
			logx.String("to", a.Address),
			logx.String("priority", string(a.Message.Priority)))
	}
}

// Start is idempotent.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.queue != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}
	s.queue = make(chan engine.Alert, s.cfg.QueueSize)
	s.accepting = true
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "alerts"))),
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	q := s.queue
	workers := s.cfg.Workers
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		sup.Go0(fmt.Sprintf("worker.%d", i), func(c context.Context) {
			s.workerLoop(c, q)
		})
	}
}

// Stop blocks intake and drains the queue best-effort until ctx expires.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	q := s.queue
	sup := s.sup
	s.queue = nil
	s.sup = nil
	s.accepting = false
	s.mu.Unlock()
	if q == nil {
		return
	}
	// Wait out in-flight Dispatch calls before closing the queue.
	s.sendWG.Wait()
	close(q)
	if sup == nil {
		return
	}
	if err := sup.Wait(ctx); err != nil {
		sup.Cancel()
		s.log.Warn("alert drain interrupted", logx.Err(err))
	}
}

func (s *Service) workerLoop(ctx context.Context, q <-chan engine.Alert) {
	for {
		select {
		case <-ctx.Done():
			return
		case a, ok := <-q:
			if !ok {
				return
			}
			s.sendWithRetry(ctx, a)
		}
	}
}

func (s *Service) sendWithRetry(ctx context.Context, a engine.Alert) {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	sender := s.sender
	s.mu.Unlock()

	from, to, data, err := formatMail(cfg, a)
	if err != nil {
		s.log.Error("alert unformattable", logx.Err(err))
		return
	}

	attempts := 1 + cfg.RetryMax
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return
		}
		callCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := sender.Send(callCtx, from, to, data)
		cancel()
		if err == nil {
			s.log.Info("alert sent",
				logx.String("to", to),
				logx.String("priority", string(a.Message.Priority)),
				logx.Int("unread", a.Unread))
			return
		}
		s.log.Warn("alert send failed",
			logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", attempts))
		if attempt >= attempts {
			return
		}
		delay := cfg.RetryBase << (attempt - 1)
		if delay > cfg.RetryMaxDelay {
			delay = cfg.RetryMaxDelay
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}
