package watcher

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/venkytv/failgate/internal/notifier"
	"github.com/venkytv/failgate/internal/preference"
	"github.com/venkytv/failgate/pkg/checkstatus"
)

type countingNotifier struct {
	mu     sync.Mutex
	alerts []notifier.Event
}

func (c *countingNotifier) Alert(_ context.Context, evt notifier.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, evt)
	return nil
}

func (c *countingNotifier) Closed(context.Context, notifier.Event) error { return nil }

func (c *countingNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}

func newTestWatcher(src checkstatus.Source, pref preference.Store) (*Watcher, *countingNotifier) {
	n := &countingNotifier{}
	w := New(src, pref, n, Config{
		AlertTimeout: time.Hour,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return w, n
}

func status(check string, s checkstatus.Status) checkstatus.Message {
	return checkstatus.Message{Check: check, Status: s, GeneratedAt: time.Now(), Host: "host-a"}
}

// attach starts w against feed and returns a stop func that waits for
// Start to return.
func attach(t *testing.T, w *Watcher, feed *checkstatus.Feed) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	// Wait until the listener is registered.
	deadline := time.Now().Add(2 * time.Second)
	for {
		feed.Dispatch(checkstatus.Message{Check: "attach-check", Status: checkstatus.Updating, GeneratedAt: time.Now()})
		w.mu.Lock()
		attached := w.last.Check == "attach-check"
		w.mu.Unlock()
		if attached {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("watcher never attached")
		}
		time.Sleep(5 * time.Millisecond)
	}

	return func() {
		cancel()
		if err := <-done; err != nil {
			t.Fatalf("start returned %v", err)
		}
	}
}

func TestWatcherAlertsOncePerEpisode(t *testing.T) {
	var feed checkstatus.Feed
	w, n := newTestWatcher(&feed, preference.NewStatic(true))
	stop := attach(t, w, &feed)
	defer stop()

	feed.Dispatch(status("lint", checkstatus.Failed))
	feed.Dispatch(status("lint", checkstatus.Failed))
	if n.count() != 1 {
		t.Fatalf("expected one alert, got %d", n.count())
	}

	w.presenter.Close(context.Background())
	feed.Dispatch(status("lint", checkstatus.Failed))
	if n.count() != 1 {
		t.Fatalf("expected no alert within same episode, got %d", n.count())
	}

	feed.Dispatch(status("lint", checkstatus.Passed))
	feed.Dispatch(status("lint", checkstatus.Failed))
	if n.count() != 2 {
		t.Fatalf("expected new episode to alert, got %d", n.count())
	}
}

func TestPassingCheckDoesNotEndAnotherChecksEpisode(t *testing.T) {
	var feed checkstatus.Feed
	w, n := newTestWatcher(&feed, preference.NewStatic(true))
	stop := attach(t, w, &feed)
	defer stop()

	for i := 0; i < 5; i++ {
		feed.Dispatch(status("lint", checkstatus.Updating))
		feed.Dispatch(status("lint", checkstatus.Failed))
		feed.Dispatch(status("build", checkstatus.Updating))
		feed.Dispatch(status("build", checkstatus.Passed))
		w.presenter.Close(context.Background())
	}
	if n.count() != 1 {
		t.Fatalf("expected 1 alert for one lint failure episode, got %d", n.count())
	}
	if got := w.snapshot(time.Now()).Failing; len(got) != 1 || got[0] != "lint" {
		t.Fatalf("expected lint reported failing, got %v", got)
	}

	// The episode ends only when lint recovers too.
	feed.Dispatch(status("lint", checkstatus.Passed))
	feed.Dispatch(status("build", checkstatus.Failed))
	if n.count() != 2 {
		t.Fatalf("expected new episode to alert, got %d", n.count())
	}
}

func TestStoppedCheckEndsItsShareOfEpisode(t *testing.T) {
	var feed checkstatus.Feed
	w, n := newTestWatcher(&feed, preference.NewStatic(true))
	stop := attach(t, w, &feed)
	defer stop()

	feed.Dispatch(status("lint", checkstatus.Failed))
	feed.Dispatch(status("build", checkstatus.Failed))
	w.presenter.Close(context.Background())

	feed.Dispatch(status("lint", checkstatus.Stopped))
	feed.Dispatch(status("build", checkstatus.Failed))
	if n.count() != 1 {
		t.Fatalf("expected build to keep the episode open, got %d alerts", n.count())
	}

	feed.Dispatch(status("build", checkstatus.Stopped))
	feed.Dispatch(status("lint", checkstatus.Failed))
	if n.count() != 2 {
		t.Fatalf("expected alert after every check stopped and lint failed again, got %d", n.count())
	}
}

func TestWatcherRejectsUnknownStatus(t *testing.T) {
	var feed checkstatus.Feed
	w, n := newTestWatcher(&feed, preference.NewStatic(true))
	stop := attach(t, w, &feed)
	defer stop()

	before := w.gate.Snapshot()
	feed.Dispatch(status("lint", "EXPLODED"))
	if w.gate.Snapshot() != before {
		t.Fatalf("expected gate untouched by unknown status")
	}
	if w.snapshot(time.Now()).Rejected != 1 {
		t.Fatalf("expected one rejected event")
	}

	feed.Dispatch(status("lint", checkstatus.Failed))
	if n.count() != 1 {
		t.Fatalf("expected first real failure to alert, got %d", n.count())
	}
}

func TestWatcherDetachStopsProcessing(t *testing.T) {
	var feed checkstatus.Feed
	w, n := newTestWatcher(&feed, preference.NewStatic(true))
	stop := attach(t, w, &feed)
	stop()

	feed.Dispatch(status("lint", checkstatus.Failed))
	if n.count() != 0 {
		t.Fatalf("expected no alert after detach, got %d", n.count())
	}
	if !w.gate.Snapshot().Armed {
		t.Fatalf("expected gate untouched after detach")
	}
}

func TestWatcherShutdownClosesAlert(t *testing.T) {
	var feed checkstatus.Feed
	w, _ := newTestWatcher(&feed, preference.NewStatic(true))
	stop := attach(t, w, &feed)

	feed.Dispatch(status("lint", checkstatus.Failed))
	if !w.gate.Snapshot().Visible {
		t.Fatalf("expected alert visible")
	}
	stop()
	if w.gate.Snapshot().Visible {
		t.Fatalf("expected shutdown to report the alert closed")
	}
}

func TestStartRequiresSource(t *testing.T) {
	w, _ := newTestWatcher(nil, nil)
	if err := w.Start(context.Background()); err == nil {
		t.Fatalf("expected error without source")
	}
}

func TestDisableActionSuppressesAndReenableFires(t *testing.T) {
	var feed checkstatus.Feed
	pref := preference.NewStatic(true)
	w, n := newTestWatcher(&feed, pref)
	stop := attach(t, w, &feed)
	defer stop()
	router := w.Router()

	feed.Dispatch(status("lint", checkstatus.Failed))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/alert/disable", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 from disable, got %d", rec.Code)
	}
	if v, _ := pref.Enabled(); v {
		t.Fatalf("expected alerts disabled")
	}
	if w.gate.Snapshot().Visible {
		t.Fatalf("expected alert closed by disable")
	}

	feed.Dispatch(status("lint", checkstatus.Failed))
	if n.count() != 1 {
		t.Fatalf("expected no alert while disabled, got %d", n.count())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/alerts/enable", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 from enable, got %d", rec.Code)
	}

	feed.Dispatch(status("lint", checkstatus.Failed))
	if n.count() != 2 {
		t.Fatalf("expected alert after re-enabling, got %d", n.count())
	}
}

func TestStatusEndpointReportsState(t *testing.T) {
	var feed checkstatus.Feed
	w, _ := newTestWatcher(&feed, preference.NewStatic(true))
	stop := attach(t, w, &feed)
	defer stop()
	router := w.Router()

	feed.Dispatch(status("lint", checkstatus.Failed))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got statusResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Enabled || got.Armed || !got.Visible {
		t.Fatalf("unexpected gate state %+v", got)
	}
	if got.LastCheck != "lint" || got.LastStatus != "FAILED" || got.LastHost != "host-a" {
		t.Fatalf("unexpected last event %+v", got)
	}
	if got.Alert == nil || got.Alert.Check != "lint" {
		t.Fatalf("expected alert details, got %+v", got.Alert)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/alert/close", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 from close, got %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/alert/close", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 closing with nothing showing, got %d", rec.Code)
	}
	if w.gate.Snapshot().Visible {
		t.Fatalf("expected gate to see the alert closed")
	}
}

func TestHealthz(t *testing.T) {
	w, _ := newTestWatcher(&checkstatus.Feed{}, nil)
	rec := httptest.NewRecorder()
	w.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
