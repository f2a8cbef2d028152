// Package alert shows failure alerts and tracks when they go away.
package alert

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/venkytv/failgate/internal/notifier"
)

// DefaultTimeout is how long an alert stays up before closing itself.
const DefaultTimeout = 2 * time.Minute

// Close reasons reported to notifiers.
const (
	ReasonDismissed = "dismissed"
	ReasonTimeout   = "timeout"
	ReasonDisabled  = "disabled"
	ReasonShutdown  = "shutdown"
)

// ErrNoPreference is returned by Disable when no preference store is set.
var ErrNoPreference = errors.New("no preference store configured")

// PreferenceSetter writes the alert enable flag.
type PreferenceSetter interface {
	SetEnabled(enabled bool) error
}

type Config struct {
	Timeout    time.Duration
	Preference PreferenceSetter
	// OnClosed runs once for every alert that stops showing, whatever the
	// reason.
	OnClosed func()
	Debug    bool
	Logger   *slog.Logger
}

type shown struct {
	evt   notifier.Event
	since time.Time
	timer *time.Timer
}

// Presenter shows at most one alert at a time.
type Presenter struct {
	cfg      Config
	notifier notifier.Notifier
	logger   *slog.Logger

	mu      sync.Mutex
	current *shown
}

// Status describes the alert currently showing.
type Status struct {
	Check     string    `json:"check"`
	Detail    string    `json:"detail,omitempty"`
	ShownAt   time.Time `json:"shown_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func New(n notifier.Notifier, cfg Config) *Presenter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if n == nil {
		n = notifier.Nop{}
	}
	logger := cfg.Logger
	if logger == nil {
		level := slog.LevelInfo
		if cfg.Debug {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		}))
	}
	return &Presenter{
		cfg:      cfg,
		notifier: n,
		logger:   logger,
	}
}

// Show raises an alert for evt and schedules it to close after the
// configured timeout. A second Show while one is up is ignored.
func (p *Presenter) Show(ctx context.Context, evt notifier.Event) {
	p.mu.Lock()
	if p.current != nil {
		p.mu.Unlock()
		p.logger.Warn("alert already showing; ignoring", "check", evt.Check, "showing", p.current.evt.Check)
		return
	}
	a := &shown{evt: evt, since: time.Now()}
	a.timer = time.AfterFunc(p.cfg.Timeout, func() {
		p.close(context.Background(), a, ReasonTimeout)
	})
	p.current = a
	p.mu.Unlock()

	p.logger.Info("alert shown", "check", evt.Check, "timeout", p.cfg.Timeout)
	if err := p.notifier.Alert(ctx, evt); err != nil {
		p.logger.Error("alert notify failed", "check", evt.Check, "err", err)
	}
}

// Close dismisses the current alert. It reports whether one was showing.
func (p *Presenter) Close(ctx context.Context) bool {
	return p.closeCurrent(ctx, ReasonDismissed)
}

// Disable turns alerts off and dismisses the current one, if any.
func (p *Presenter) Disable(ctx context.Context) error {
	if p.cfg.Preference == nil {
		return ErrNoPreference
	}
	if err := p.cfg.Preference.SetEnabled(false); err != nil {
		return err
	}
	p.logger.Info("alerts disabled from alert action")
	p.closeCurrent(ctx, ReasonDisabled)
	return nil
}

// Shutdown closes any alert still showing.
func (p *Presenter) Shutdown(ctx context.Context) {
	p.closeCurrent(ctx, ReasonShutdown)
}

// Current returns the alert showing now, if any.
func (p *Presenter) Current() (Status, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return Status{}, false
	}
	return Status{
		Check:     p.current.evt.Check,
		Detail:    p.current.evt.Detail,
		ShownAt:   p.current.since,
		ExpiresAt: p.current.since.Add(p.cfg.Timeout),
	}, true
}

func (p *Presenter) closeCurrent(ctx context.Context, reason string) bool {
	p.mu.Lock()
	a := p.current
	p.mu.Unlock()
	if a == nil {
		return false
	}
	return p.close(ctx, a, reason)
}

// close tears down a if it is still the current alert. Only the first
// caller for a given alert gets past the identity check.
func (p *Presenter) close(ctx context.Context, a *shown, reason string) bool {
	p.mu.Lock()
	if p.current != a {
		p.mu.Unlock()
		return false
	}
	p.current = nil
	a.timer.Stop()
	p.mu.Unlock()

	if p.cfg.OnClosed != nil {
		p.cfg.OnClosed()
	}
	p.logger.Info("alert closed", "check", a.evt.Check, "reason", reason, "shown_for", time.Since(a.since))

	evt := a.evt
	evt.Reason = reason
	if err := p.notifier.Closed(ctx, evt); err != nil {
		p.logger.Error("closed notify failed", "check", evt.Check, "err", err)
	}
	return true
}
