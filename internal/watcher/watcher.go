package watcher

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/venkytv/failgate/internal/alert"
	"github.com/venkytv/failgate/internal/gate"
	"github.com/venkytv/failgate/internal/notifier"
	"github.com/venkytv/failgate/internal/preference"
	"github.com/venkytv/failgate/pkg/checkstatus"
)

type Config struct {
	StatusAddr   string
	AlertTimeout time.Duration
	Debug        bool
	Logger       *slog.Logger
}

// Watcher feeds status changes from a Source through a gate and shows an
// alert whenever the gate fires.
type Watcher struct {
	cfg       Config
	source    checkstatus.Source
	pref      preference.Store
	gate      *gate.Gate
	presenter *alert.Presenter
	logger    *slog.Logger

	mu       sync.Mutex
	ctx      context.Context
	checks   *rollup
	last     checkstatus.Message
	rejected int
}

func New(src checkstatus.Source, pref preference.Store, n notifier.Notifier, cfg Config) *Watcher {
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
	if pref == nil {
		pref = preference.NewStatic(true)
	}
	g := gate.New(pref, gate.WithLogger(logger))
	return &Watcher{
		cfg:    cfg,
		source: src,
		pref:   pref,
		gate:   g,
		presenter: alert.New(n, alert.Config{
			Timeout:    cfg.AlertTimeout,
			Preference: pref,
			OnClosed:   g.NotifyAlertClosed,
			Logger:     logger,
		}),
		logger: logger,
		ctx:    context.Background(),
		checks: newRollup(),
	}
}

// Start attaches to the source and blocks until ctx is done. On return the
// watcher is detached and no further events reach the gate.
func (w *Watcher) Start(ctx context.Context) error {
	if w.source == nil {
		return errors.New("status source is required")
	}
	w.mu.Lock()
	w.ctx = ctx
	w.mu.Unlock()

	w.source.AddListener(w)
	w.logger.Info("watcher attached", "status_addr", w.cfg.StatusAddr, "alert_timeout", w.cfg.AlertTimeout)

	var srv *http.Server
	if w.cfg.StatusAddr != "" {
		srv = &http.Server{
			Addr:              w.cfg.StatusAddr,
			Handler:           w.Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				w.logger.Error("status server failed", "err", err)
			}
		}()
	}

	<-ctx.Done()
	w.logger.Info("watcher stopping")
	w.source.RemoveListener(w)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			w.logger.Warn("status server shutdown failed", "err", err)
		}
	}
	w.presenter.Shutdown(shutdownCtx)
	return nil
}

// StatusChanged implements checkstatus.Listener. Statuses from all checks
// are folded into one before reaching the gate, so a passing check cannot
// end the episode of another that is still failing.
func (w *Watcher) StatusChanged(msg checkstatus.Message) {
	w.mu.Lock()
	aggregate := w.checks.apply(msg)
	w.mu.Unlock()

	decision, err := w.gate.HandleEvent(aggregate)
	if err != nil {
		w.mu.Lock()
		w.rejected++
		w.mu.Unlock()
		w.logger.Error("status event rejected", "check", msg.Check, "status", msg.Status, "err", err)
		return
	}

	w.mu.Lock()
	w.last = msg
	ctx := w.ctx
	w.mu.Unlock()

	w.logger.Debug("status handled", "check", msg.Check, "status", msg.Status, "aggregate", aggregate, "fire", decision.Fire)
	if !decision.Fire {
		return
	}
	w.presenter.Show(ctx, notifier.Event{
		Check:    msg.Check,
		Host:     msg.Host,
		Detail:   msg.Detail,
		FailedAt: msg.GeneratedAt,
	})
}
