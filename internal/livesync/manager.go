package livesync

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/hourlyarb/internal/domain"
)

// PushSource streams reports for an asset until ctx is done or the stream
// fails.
type PushSource interface {
	Stream(ctx context.Context, asset string, emit func(domain.OpportunityReport)) error
}

// PollSource fetches a fresh report for an asset.
type PollSource interface {
	Poll(ctx context.Context, asset string) (domain.OpportunityReport, error)
}

// Sink receives what the manager delivers. Both methods are called with the
// manager's lock held and must not call back into the Manager or block.
type Sink interface {
	// Clear drops whatever the consumer displays; asset is the new asset.
	Clear(asset string)
	// Deliver hands over an accepted update.
	Deliver(u Update)
}

// Config tunes a Manager.
type Config struct {
	// PollInterval is the delay between two polls.
	PollInterval time.Duration
	// Lateness is how long push may stay silent before poll updates are
	// accepted again.
	Lateness time.Duration
	// BackoffMin and BackoffMax bound push reconnect delays.
	BackoffMin time.Duration
	BackoffMax time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.Lateness <= 0 {
		c.Lateness = 3 * time.Second
	}
	if c.BackoffMin <= 0 {
		c.BackoffMin = time.Second
	}
	if c.BackoffMax < c.BackoffMin {
		c.BackoffMax = 30 * time.Second
		if c.BackoffMax < c.BackoffMin {
			c.BackoffMax = c.BackoffMin
		}
	}
	return c
}

// Manager runs the push and poll producers of one consumer and delivers
// their updates to a Sink. Only one asset is active at a time.
type Manager struct {
	push   PushSource
	poll   PollSource
	sink   Sink
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu           sync.Mutex
	token        Token
	state        State
	channel      Channel
	cancel       context.CancelFunc
	lastPush     time.Time
	lastUpdate   time.Time
	lastReportAt time.Time

	wg sync.WaitGroup
}

// NewManager creates an idle Manager. Either source may be nil.
func NewManager(push PushSource, poll PollSource, sink Sink, cfg Config, logger *slog.Logger) *Manager {
	return &Manager{
		push:   push,
		poll:   poll,
		sink:   sink,
		cfg:    cfg.withDefaults(),
		logger: logger.With(slog.String("component", "livesync")),
		now:    time.Now,
	}
}

// Activate switches the manager to asset. It cancels the previous session,
// clears the sink and starts fresh producers before returning; no update for
// the previous asset is delivered after that.
func (m *Manager) Activate(ctx context.Context, asset string) Token {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
	}
	tok := Token{Asset: asset, Generation: m.token.Generation + 1}
	m.token = tok
	m.state = StateConnecting
	m.channel = ""
	m.lastPush = time.Time{}
	m.lastUpdate = time.Time{}
	m.lastReportAt = time.Time{}
	m.sink.Clear(asset)

	sessionCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	updates := make(chan Update, 16)

	m.wg.Add(1)
	go m.consume(sessionCtx, updates)
	if m.push != nil {
		m.wg.Add(1)
		go m.runPush(sessionCtx, tok, updates)
	}
	if m.poll != nil {
		m.wg.Add(1)
		go m.runPoll(sessionCtx, tok, updates)
	}

	m.logger.Debug("session activated", slog.String("asset", asset), slog.Uint64("generation", tok.Generation))
	return tok
}

// Deactivate cancels the current session. Late updates are discarded.
func (m *Manager) Deactivate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deactivateLocked()
}

func (m *Manager) deactivateLocked() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.token = Token{Asset: m.token.Asset, Generation: m.token.Generation + 1}
	m.state = StateCancelled
}

// Close cancels the current session and waits for its goroutines.
func (m *Manager) Close() {
	m.Deactivate()
	m.wg.Wait()
}

// Current returns the current guard token.
func (m *Manager) Current() Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// Session returns a snapshot of the current session.
func (m *Manager) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Session{
		Asset:        m.token.Asset,
		Channel:      m.channel,
		State:        m.state,
		LastUpdateAt: m.lastUpdate,
		Cancelled:    m.state == StateCancelled,
	}
}

// consume is the single consumer of a session's producers.
func (m *Manager) consume(ctx context.Context, updates <-chan Update) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-updates:
			m.handle(u)
		}
	}
}

// handle applies the merge rule: identity first, then freshness.
func (m *Manager) handle(u Update) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u.Token != m.token || m.state == StateCancelled {
		return
	}
	if u.Err == nil && u.Report.Asset != "" && !strings.EqualFold(u.Report.Asset, m.token.Asset) {
		m.logger.Warn("dropping report for another asset",
			slog.String("active", m.token.Asset),
			slog.String("report", u.Report.Asset),
			slog.String("channel", string(u.Channel)),
		)
		return
	}
	now := m.now()

	if u.Err != nil {
		if u.Channel == ChannelPush {
			m.lastPush = time.Time{}
			if m.state == StateStreaming {
				m.state = StatePolling
			}
		}
		m.sink.Deliver(u)
		return
	}

	switch u.Channel {
	case ChannelPush:
		m.lastPush = now
		m.state = StateStreaming
	case ChannelPoll:
		if !m.lastPush.IsZero() && now.Sub(m.lastPush) <= m.cfg.Lateness {
			return
		}
		m.state = StatePolling
	}

	if !u.Report.GeneratedAt.IsZero() && u.Report.GeneratedAt.Before(m.lastReportAt) {
		return
	}
	if !u.Report.GeneratedAt.IsZero() {
		m.lastReportAt = u.Report.GeneratedAt
	}
	m.channel = u.Channel
	m.lastUpdate = now
	m.sink.Deliver(u)
}

// runPush keeps the push stream alive, reconnecting with exponential
// backoff. A stream that stayed up longer than BackoffMax resets the delay.
func (m *Manager) runPush(ctx context.Context, tok Token, updates chan<- Update) {
	defer m.wg.Done()

	backoff := m.cfg.BackoffMin
	for {
		started := m.now()
		err := m.push.Stream(ctx, tok.Asset, func(r domain.OpportunityReport) {
			send(ctx, updates, Update{Token: tok, Channel: ChannelPush, Report: r, At: m.now()})
		})
		if ctx.Err() != nil {
			return
		}

		var chErr *domain.ChannelError
		if !errors.As(err, &chErr) {
			err = &domain.ChannelError{Channel: string(ChannelPush), Reason: domain.ErrDisconnected, Err: err}
		}
		m.logger.Warn("push channel dropped",
			slog.String("asset", tok.Asset),
			slog.Duration("retry_in", backoff),
			slog.String("error", err.Error()),
		)
		send(ctx, updates, Update{Token: tok, Channel: ChannelPush, Err: err, At: m.now()})

		if m.now().Sub(started) > m.cfg.BackoffMax {
			backoff = m.cfg.BackoffMin
		}
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		backoff *= 2
		if backoff > m.cfg.BackoffMax {
			backoff = m.cfg.BackoffMax
		}
	}
}

// runPoll polls immediately and then every PollInterval.
func (m *Manager) runPoll(ctx context.Context, tok Token, updates chan<- Update) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	for {
		report, err := m.poll.Poll(ctx, tok.Asset)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			send(ctx, updates, Update{Token: tok, Channel: ChannelPoll, Err: err, At: m.now()})
		} else {
			send(ctx, updates, Update{Token: tok, Channel: ChannelPoll, Report: report, At: m.now()})
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func send(ctx context.Context, updates chan<- Update, u Update) {
	select {
	case updates <- u:
	case <-ctx.Done():
	}
}
