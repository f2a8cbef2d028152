package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/venkytv/failgate/internal/alert"
	"github.com/venkytv/failgate/internal/notifier"
	"github.com/venkytv/failgate/internal/preference"
	"github.com/venkytv/failgate/internal/watcher"
	"github.com/venkytv/failgate/pkg/checkstatus"
)

func main() {
	var (
		natsURL      = flag.String("nats-url", envDefault("NATS_URL", nats.DefaultURL), "NATS server URL")
		prefix       = flag.String("subject-prefix", envDefault("SUBJECT_PREFIX", checkstatus.DefaultPrefix), "Subject prefix carrying check status")
		bucket       = flag.String("pref-bucket", envDefault("PREF_BUCKET", preference.DefaultBucket), "JetStream KV bucket holding the alert preference (empty for in-memory)")
		alertTimeout = flag.Duration("alert-timeout", envDuration("ALERT_TIMEOUT", alert.DefaultTimeout), "How long an alert stays up before closing itself")
		statusAddr   = flag.String("status-addr", envDefault("STATUS_ADDR", "127.0.0.1:8080"), "Listen address for HTTP status (empty to disable)")
		poUser       = flag.String("pushover-user", os.Getenv("PUSHOVER_USER"), "Pushover user key")
		poToken      = flag.String("pushover-token", os.Getenv("PUSHOVER_TOKEN"), "Pushover app token")
		debug        = flag.Bool("debug", envBool("DEBUG", false), "Enable debug logging")
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

	nc, err := nats.Connect(*natsURL)
	if err != nil {
		log.Fatalf("connect to nats: %v", err)
	}
	defer nc.Drain()

	var pref preference.Store = preference.NewStatic(true)
	if *bucket != "" {
		kv, err := preference.OpenKV(nc, *bucket, preference.DefaultKey)
		if err != nil {
			log.Fatalf("open preference bucket: %v", err)
		}
		pref = kv
	}

	notify := notifier.Multi{notifier.Log{Logger: logger}}
	if *poUser != "" && *poToken != "" {
		notify = append(notify, notifier.Pushover{
			User:  *poUser,
			Token: *poToken,
		})
	}

	sub := checkstatus.NewSubscriber(nc, *prefix, logger)
	if err := sub.Start(); err != nil {
		log.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	w := watcher.New(sub, pref, notify, watcher.Config{
		StatusAddr:   *statusAddr,
		AlertTimeout: *alertTimeout,
		Debug:        *debug,
		Logger:       logger,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := w.Start(ctx); err != nil {
		log.Fatalf("watcher failed: %v", err)
	}
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
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

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "1" || v == "true" || v == "TRUE" || v == "yes" || v == "on"
	}
	return fallback
}
