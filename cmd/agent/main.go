package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/nats-io/nats.go"

	"github.com/venkytv/failgate/pkg/checkstatus"
)

func main() {
	var (
		natsURL  = flag.String("nats-url", envDefault("NATS_URL", nats.DefaultURL), "NATS server URL")
		prefix   = flag.String("subject-prefix", envDefault("SUBJECT_PREFIX", checkstatus.DefaultPrefix), "Subject prefix for status messages")
		check    = flag.String("check", envDefault("CHECK", ""), "Check name (required)")
		command  = flag.String("command", envDefault("COMMAND", ""), "Shell command to run; exit status 0 means passed (required)")
		interval = flag.Duration("interval", envDuration("INTERVAL", time.Minute), "How often to run the check")
		timeout  = flag.Duration("timeout", envDuration("TIMEOUT", 0), "Optional limit on a single check run")
		debug    = flag.Bool("debug", envBool("DEBUG", false), "Enable debug logging")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	if *debug {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}
	slog.SetDefault(logger)

	if *check == "" {
		log.Fatal("check is required")
	}
	if *command == "" {
		log.Fatal("command is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	nc, err := connectWithRetry(ctx, logger, *natsURL)
	if err != nil {
		logger.Error("connect to nats failed", "err", err)
		return
	}
	defer nc.Drain()

	pub := checkstatus.NewPublisher(nc, *prefix)
	publish := func(ctx context.Context, status checkstatus.Status, detail string) {
		msg := checkstatus.Message{
			Check:       *check,
			Status:      status,
			GeneratedAt: time.Now().UTC(),
			Detail:      detail,
		}
		if err := pub.Publish(ctx, msg); err != nil {
			logger.Error("publish status failed", "err", err, "check", msg.Check, "status", status)
		} else {
			logger.Debug("status published", "check", msg.Check, "status", status)
		}
	}
	// A stopped agent lets the watcher re-arm, so the first failure after a
	// restart is reported again.
	defer publish(context.Background(), checkstatus.Stopped, "agent stopped")

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		publish(ctx, checkstatus.Updating, "")
		status, detail := runCheck(ctx, *command, *timeout)
		if ctx.Err() != nil {
			return
		}
		publish(ctx, status, detail)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// runCheck runs command through the shell and maps its exit status.
func runCheck(ctx context.Context, command string, timeout time.Duration) (checkstatus.Status, string) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	out, err := exec.CommandContext(ctx, "sh", "-c", command).CombinedOutput()
	if err != nil {
		detail := lastLine(out)
		if detail == "" {
			detail = err.Error()
		}
		return checkstatus.Failed, detail
	}
	return checkstatus.Passed, lastLine(out)
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	line := strings.TrimSpace(lines[len(lines)-1])
	if len(line) > maxDetail {
		n := maxDetail
		for n > 0 && !utf8.RuneStart(line[n]) {
			n--
		}
		line = line[:n]
	}
	return line
}

const maxDetail = 256

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "1" || v == "true" || v == "TRUE" || v == "yes" || v == "on"
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func connectWithRetry(ctx context.Context, logger *slog.Logger, url string) (*nats.Conn, error) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		nc, err := nats.Connect(
			url,
			nats.MaxReconnects(-1), // never give up once connected
			nats.ReconnectWait(2*time.Second),
			nats.RetryOnFailedConnect(true), // keep trying initial connects with the same backoff policy
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if err != nil {
					logger.Warn("nats disconnected", "err", err)
					return
				}
				logger.Warn("nats disconnected")
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				logger.Info("nats reconnected")
			}),
			nats.ClosedHandler(func(_ *nats.Conn) {
				logger.Error("nats connection closed; will restart if context allows")
			}),
		)
		if err == nil {
			return nc, nil
		}

		logger.Error("connect to nats failed", "err", err, "retry_in", backoff)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}

		if backoff < maxBackoff {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}
