package watcher

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/venkytv/failgate/internal/alert"
)

type statusResponse struct {
	ObservedAt  time.Time     `json:"observed_at"`
	Enabled     bool          `json:"enabled"`
	Armed       bool          `json:"armed"`
	Visible     bool          `json:"visible"`
	LastCheck   string        `json:"last_check,omitempty"`
	LastStatus  string        `json:"last_status,omitempty"`
	LastHost    string        `json:"last_host,omitempty"`
	LastEventAt *time.Time    `json:"last_event_at,omitempty"`
	Failing     []string      `json:"failing"`
	Rejected    int           `json:"rejected"`
	Alert       *alert.Status `json:"alert,omitempty"`
}

// Router serves the watcher's status and alert actions.
func (w *Watcher) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/", w.handleStatus)
	r.Get("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		writeJSON(rw, map[string]string{"status": "ok"})
	})
	r.Post("/alert/close", w.handleClose)
	r.Post("/alert/disable", w.handleDisable)
	r.Post("/alerts/enable", w.handleEnable)
	return r
}

func (w *Watcher) snapshot(now time.Time) statusResponse {
	snap := w.gate.Snapshot()
	resp := statusResponse{
		ObservedAt: now.UTC(),
		Enabled:    w.gate.IsEnabled(),
		Armed:      snap.Armed,
		Visible:    snap.Visible,
	}

	w.mu.Lock()
	last := w.last
	resp.Rejected = w.rejected
	resp.Failing = w.checks.failingChecks()
	w.mu.Unlock()

	if last.Check != "" {
		resp.LastCheck = last.Check
		resp.LastStatus = last.Status.String()
		resp.LastHost = last.Host
		at := last.GeneratedAt.UTC()
		resp.LastEventAt = &at
	}
	if st, ok := w.presenter.Current(); ok {
		resp.Alert = &st
	}
	return resp
}

func (w *Watcher) handleStatus(rw http.ResponseWriter, _ *http.Request) {
	writeJSON(rw, w.snapshot(time.Now()))
}

func (w *Watcher) handleClose(rw http.ResponseWriter, r *http.Request) {
	if !w.presenter.Close(r.Context()) {
		http.Error(rw, "no alert showing", http.StatusNotFound)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

func (w *Watcher) handleDisable(rw http.ResponseWriter, r *http.Request) {
	if err := w.presenter.Disable(r.Context()); err != nil {
		w.logger.Error("disable alerts failed", "err", err)
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

func (w *Watcher) handleEnable(rw http.ResponseWriter, _ *http.Request) {
	if err := w.pref.SetEnabled(true); err != nil {
		w.logger.Error("enable alerts failed", "err", err)
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}
	w.logger.Info("alerts enabled")
	rw.WriteHeader(http.StatusNoContent)
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(v)
}
