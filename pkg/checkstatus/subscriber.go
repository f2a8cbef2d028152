package checkstatus

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
)

// Listener receives status changes. Implementations must be comparable
// (typically a pointer) so they can be removed again.
type Listener interface {
	StatusChanged(msg Message)
}

// Source is anything listeners can be registered with.
type Source interface {
	AddListener(l Listener)
	RemoveListener(l Listener)
}

// Feed dispatches messages to its listeners one at a time, in call order.
// The zero value is ready to use.
type Feed struct {
	mu        sync.Mutex
	listeners []Listener
}

func (f *Feed) AddListener(l Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, l)
}

// RemoveListener detaches l. It waits for an in-flight Dispatch to finish,
// so l sees no deliveries once RemoveListener returns.
func (f *Feed) RemoveListener(l Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, existing := range f.listeners {
		if existing == l {
			f.listeners = append(f.listeners[:i], f.listeners[i+1:]...)
			return
		}
	}
}

// Dispatch delivers msg to every registered listener.
func (f *Feed) Dispatch(msg Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.listeners {
		l.StatusChanged(msg)
	}
}

// Subscriber is a Source fed by status messages arriving over NATS.
type Subscriber struct {
	Feed

	nc     *nats.Conn
	prefix string
	logger *slog.Logger

	subMu sync.Mutex
	sub   *nats.Subscription
}

func NewSubscriber(nc *nats.Conn, prefix string, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{
		nc:     nc,
		prefix: strings.TrimSuffix(prefix, "."),
		logger: logger,
	}
}

// Start subscribes to <prefix>.> and begins dispatching.
func (s *Subscriber) Start() error {
	if s.nc == nil {
		return errors.New("nats connection is required")
	}
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.sub != nil {
		return nil
	}

	subject := s.Subject()
	sub, err := s.nc.Subscribe(subject, s.handleMessage)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	if err := s.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("flush subscription: %w", err)
	}
	s.sub = sub
	s.logger.Info("status subscriber started", "subject", subject)
	return nil
}

// Close unsubscribes from NATS. Registered listeners are kept.
func (s *Subscriber) Close() error {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.sub == nil {
		return nil
	}
	err := s.sub.Unsubscribe()
	s.sub = nil
	return err
}

// Subject returns the wildcard subject the subscriber listens on.
func (s *Subscriber) Subject() string {
	if s.prefix == "" {
		return ">"
	}
	return fmt.Sprintf("%s.>", s.prefix)
}

func (s *Subscriber) handleMessage(msg *nats.Msg) {
	status, err := Unmarshal(msg.Data)
	if err != nil {
		s.logger.Error("failed to decode status", "subject", msg.Subject, "err", err)
		return
	}
	s.logger.Debug("status received", "subject", msg.Subject, "check", status.Check, "status", status.Status)
	s.Dispatch(status)
}
