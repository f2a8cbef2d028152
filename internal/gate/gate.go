// Package gate decides when a failing check should raise an alert.
//
// A Gate consumes status events and reports at most one fire per failure
// episode. An episode starts with the first FAILED seen while armed and ends
// with PASSED or STOPPED, which re-arm the gate. While alerts are disabled,
// FAILED also re-arms so that the first failure after re-enabling fires.
package gate

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/venkytv/failgate/pkg/checkstatus"
)

// ErrUnrecognizedStatus is returned for status values outside the known set.
var ErrUnrecognizedStatus = errors.New("unrecognized status")

// Preference reports whether alerts are currently enabled.
type Preference interface {
	Enabled() (bool, error)
}

// Decision is the outcome of handling one event.
type Decision struct {
	Fire bool
}

// Snapshot is a point-in-time copy of the gate state.
type Snapshot struct {
	Armed   bool `json:"armed"`
	Visible bool `json:"visible"`
}

type state struct {
	armed   bool
	visible bool
}

// Gate tracks one failure episode at a time and decides when to fire.
type Gate struct {
	pref   Preference
	logger *slog.Logger

	mu sync.Mutex
	st state
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the logger used for preference read failures.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

// New returns an armed gate with no alert showing.
func New(pref Preference, opts ...Option) *Gate {
	g := &Gate{
		pref:   pref,
		logger: slog.Default(),
		st:     state{armed: true},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// HandleEvent applies one status event and reports whether an alert should
// be shown now. Unknown statuses return ErrUnrecognizedStatus and leave the
// gate untouched.
func (g *Gate) HandleEvent(s checkstatus.Status) (Decision, error) {
	if !s.Valid() {
		return Decision{}, fmt.Errorf("%w: %q", ErrUnrecognizedStatus, s)
	}

	// The preference may live in a remote store; read it before taking the
	// lock so NotifyAlertClosed never waits on it.
	enabled := s == checkstatus.Failed && g.IsEnabled()

	g.mu.Lock()
	defer g.mu.Unlock()

	switch s {
	case checkstatus.Failed:
		if !enabled {
			g.st.armed = true
			return Decision{}, nil
		}
		if !g.st.armed {
			return Decision{}, nil
		}
		g.st.armed = false
		if g.st.visible {
			return Decision{}, nil
		}
		g.st.visible = true
		return Decision{Fire: true}, nil

	case checkstatus.Passed, checkstatus.Stopped:
		g.st.armed = true
	}
	return Decision{}, nil
}

// NotifyAlertClosed records that the alert is no longer showing. Calling it
// when nothing is showing is a no-op.
func (g *Gate) NotifyAlertClosed() {
	g.mu.Lock()
	g.st.visible = false
	g.mu.Unlock()
}

// IsEnabled reads the preference. A failed read counts as disabled so that
// a broken preference store never causes extra alerts.
func (g *Gate) IsEnabled() bool {
	if g.pref == nil {
		return false
	}
	enabled, err := g.pref.Enabled()
	if err != nil {
		g.logger.Warn("read alert preference failed; treating alerts as disabled", "err", err)
		return false
	}
	return enabled
}

// Snapshot returns a copy of the current state.
func (g *Gate) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Snapshot{Armed: g.st.armed, Visible: g.st.visible}
}
