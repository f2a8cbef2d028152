package notifier

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Event captures what an alert is about.
type Event struct {
	Check    string
	Host     string
	Detail   string
	FailedAt time.Time
	Reason   string // why the alert closed; empty when raising
}

// Notifier delivers alerts to a user-facing channel.
type Notifier interface {
	Alert(ctx context.Context, evt Event) error
	Closed(ctx context.Context, evt Event) error
}

// Nop is a no-op notifier useful in tests.
type Nop struct{}

func (Nop) Alert(_ context.Context, _ Event) error  { return nil }
func (Nop) Closed(_ context.Context, _ Event) error { return nil }

// Log writes alerts to a structured logger.
type Log struct {
	Logger *slog.Logger
}

func (l Log) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

func (l Log) Alert(_ context.Context, evt Event) error {
	l.logger().Warn(alertTitle, "check", evt.Check, "host", evt.Host, "detail", evt.Detail, "failed_at", evt.FailedAt)
	return nil
}

func (l Log) Closed(_ context.Context, evt Event) error {
	l.logger().Info("alert closed", "check", evt.Check, "reason", evt.Reason)
	return nil
}

// Multi fans out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Alert(ctx context.Context, evt Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Alert(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Closed(ctx context.Context, evt Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Closed(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

const alertTitle = "Check failures need your attention"

func alertMessage(evt Event) string {
	msg := "The check process found issues that need your attention."
	if evt.Check != "" {
		msg += "\nCheck: " + evt.Check
	}
	if evt.Host != "" {
		msg += "\nHost: " + evt.Host
	}
	if evt.Detail != "" {
		msg += "\n" + evt.Detail
	}
	if !evt.FailedAt.IsZero() {
		msg += "\nFailed at: " + evt.FailedAt.UTC().Format(time.RFC3339)
	}
	return msg
}
