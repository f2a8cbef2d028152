package alert

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/venkytv/failgate/internal/notifier"
	"github.com/venkytv/failgate/internal/preference"
)

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []notifier.Event
	closed []notifier.Event
	err    error
}

func (r *recordingNotifier) Alert(_ context.Context, evt notifier.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, evt)
	return r.err
}

func (r *recordingNotifier) Closed(_ context.Context, evt notifier.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, evt)
	return nil
}

func (r *recordingNotifier) closedReasons() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.closed))
	for _, evt := range r.closed {
		out = append(out, evt.Reason)
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestShowThenDismiss(t *testing.T) {
	n := &recordingNotifier{}
	var closes atomic.Int32
	p := New(n, Config{Timeout: time.Hour, Logger: quietLogger(), OnClosed: func() { closes.Add(1) }})

	p.Show(context.Background(), notifier.Event{Check: "lint", Detail: "bad"})
	st, ok := p.Current()
	if !ok || st.Check != "lint" || st.Detail != "bad" {
		t.Fatalf("expected lint alert showing, got %+v ok=%v", st, ok)
	}
	if st.ExpiresAt.Sub(st.ShownAt) != time.Hour {
		t.Fatalf("expected expiry one timeout after shown, got %s", st.ExpiresAt.Sub(st.ShownAt))
	}

	if !p.Close(context.Background()) {
		t.Fatalf("expected close to report an alert")
	}
	if p.Close(context.Background()) {
		t.Fatalf("expected second close to report nothing")
	}
	if _, ok := p.Current(); ok {
		t.Fatalf("expected no alert after close")
	}
	if closes.Load() != 1 {
		t.Fatalf("expected OnClosed once, got %d", closes.Load())
	}
	if got := n.closedReasons(); len(got) != 1 || got[0] != ReasonDismissed {
		t.Fatalf("expected one dismissed close, got %v", got)
	}
}

func TestTimeoutClosesAlert(t *testing.T) {
	n := &recordingNotifier{}
	closed := make(chan struct{}, 1)
	p := New(n, Config{Timeout: 20 * time.Millisecond, Logger: quietLogger(), OnClosed: func() { closed <- struct{}{} }})

	p.Show(context.Background(), notifier.Event{Check: "lint"})

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for auto close")
	}
	if _, ok := p.Current(); ok {
		t.Fatalf("expected alert gone after timeout")
	}
	if got := n.closedReasons(); len(got) != 1 || got[0] != ReasonTimeout {
		t.Fatalf("expected timeout close, got %v", got)
	}
}

func TestSecondShowIgnoredWhileShowing(t *testing.T) {
	n := &recordingNotifier{}
	p := New(n, Config{Timeout: time.Hour, Logger: quietLogger()})
	p.Show(context.Background(), notifier.Event{Check: "first"})
	p.Show(context.Background(), notifier.Event{Check: "second"})

	st, _ := p.Current()
	if st.Check != "first" {
		t.Fatalf("expected first alert to remain, got %s", st.Check)
	}
	if len(n.alerts) != 1 {
		t.Fatalf("expected one delivery, got %d", len(n.alerts))
	}
	p.Shutdown(context.Background())
}

func TestDisableWritesPreferenceAndCloses(t *testing.T) {
	pref := preference.NewStatic(true)
	n := &recordingNotifier{}
	var closes atomic.Int32
	p := New(n, Config{Timeout: time.Hour, Logger: quietLogger(), Preference: pref, OnClosed: func() { closes.Add(1) }})

	p.Show(context.Background(), notifier.Event{Check: "lint"})
	if err := p.Disable(context.Background()); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if v, _ := pref.Enabled(); v {
		t.Fatalf("expected preference disabled")
	}
	if closes.Load() != 1 {
		t.Fatalf("expected OnClosed once, got %d", closes.Load())
	}
	if got := n.closedReasons(); len(got) != 1 || got[0] != ReasonDisabled {
		t.Fatalf("expected disabled close, got %v", got)
	}
}

func TestDisableWithoutPreference(t *testing.T) {
	p := New(nil, Config{Logger: quietLogger()})
	if err := p.Disable(context.Background()); !errors.Is(err, ErrNoPreference) {
		t.Fatalf("expected ErrNoPreference, got %v", err)
	}
}

func TestNotifyFailureStillCountsAsShown(t *testing.T) {
	n := &recordingNotifier{err: errors.New("push down")}
	var closes atomic.Int32
	p := New(n, Config{Timeout: time.Hour, Logger: quietLogger(), OnClosed: func() { closes.Add(1) }})

	p.Show(context.Background(), notifier.Event{Check: "lint"})
	if _, ok := p.Current(); !ok {
		t.Fatalf("expected alert tracked despite delivery failure")
	}
	p.Shutdown(context.Background())
	if closes.Load() != 1 {
		t.Fatalf("expected OnClosed after shutdown, got %d", closes.Load())
	}
}

func TestConcurrentClosePathsReportOnce(t *testing.T) {
	var closes atomic.Int32
	p := New(nil, Config{Timeout: time.Millisecond, Logger: quietLogger(), OnClosed: func() { closes.Add(1) }})
	p.Show(context.Background(), notifier.Event{Check: "lint"})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Close(context.Background())
		}()
	}
	wg.Wait()
	time.Sleep(20 * time.Millisecond)

	if closes.Load() != 1 {
		t.Fatalf("expected exactly one OnClosed, got %d", closes.Load())
	}
}
