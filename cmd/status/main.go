package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

type statusResponse struct {
	ObservedAt  time.Time   `json:"observed_at"`
	Enabled     bool        `json:"enabled"`
	Armed       bool        `json:"armed"`
	Visible     bool        `json:"visible"`
	LastCheck   string      `json:"last_check,omitempty"`
	LastStatus  string      `json:"last_status,omitempty"`
	LastHost    string      `json:"last_host,omitempty"`
	LastEventAt *time.Time  `json:"last_event_at,omitempty"`
	Failing     []string    `json:"failing"`
	Rejected    int         `json:"rejected"`
	Alert       *alertState `json:"alert,omitempty"`
}

type alertState struct {
	Check     string    `json:"check"`
	Detail    string    `json:"detail,omitempty"`
	ShownAt   time.Time `json:"shown_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func main() {
	statusURL := flag.String("url", envDefault("STATUS_URL", "http://127.0.0.1:8080/"), "Status endpoint URL")
	timeout := flag.Duration("timeout", envDuration("STATUS_TIMEOUT", 3*time.Second), "HTTP request timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	resp, err := fetchStatus(ctx, *statusURL)
	if err != nil {
		log.Fatalf("fetch status: %v", err)
	}

	printStatus(resp, os.Stdout)
}

func fetchStatus(ctx context.Context, url string) (statusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return statusResponse{}, fmt.Errorf("build request: %w", err)
	}

	client := &http.Client{}
	res, err := client.Do(req)
	if err != nil {
		return statusResponse{}, fmt.Errorf("request status: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return statusResponse{}, fmt.Errorf("unexpected status %s: %s", res.Status, strings.TrimSpace(string(body)))
	}

	var status statusResponse
	if err := json.NewDecoder(res.Body).Decode(&status); err != nil {
		return statusResponse{}, fmt.Errorf("decode response: %w", err)
	}

	return status, nil
}

func printStatus(resp statusResponse, w io.Writer) {
	if resp.ObservedAt.IsZero() {
		resp.ObservedAt = time.Now()
	}
	fmt.Fprintf(w, "Observed at: %s\n\n", resp.ObservedAt.Format(time.RFC3339))

	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ALERTS\t%s\n", onOff(resp.Enabled))
	fmt.Fprintf(tw, "GATE\t%s\n", gateState(resp))

	last := "-"
	if resp.LastCheck != "" {
		last = fmt.Sprintf("%s %s", resp.LastCheck, resp.LastStatus)
		if resp.LastHost != "" {
			last += " on " + resp.LastHost
		}
		if resp.LastEventAt != nil {
			last += " at " + resp.LastEventAt.Format(time.RFC3339)
		}
	}
	fmt.Fprintf(tw, "LAST EVENT\t%s\n", last)
	failing := "-"
	if len(resp.Failing) > 0 {
		failing = strings.Join(resp.Failing, ", ")
	}
	fmt.Fprintf(tw, "FAILING\t%s\n", failing)
	if resp.Rejected > 0 {
		fmt.Fprintf(tw, "REJECTED\t%d\n", resp.Rejected)
	}

	showing := "-"
	if resp.Alert != nil {
		showing = fmt.Sprintf("%s (closes %s)", fallback(resp.Alert.Detail, resp.Alert.Check), resp.Alert.ExpiresAt.Format(time.RFC3339))
	}
	fmt.Fprintf(tw, "SHOWING\t%s\n", showing)
	_ = tw.Flush()

	out := buf.String()
	if shouldColor(w) {
		out = colorizeStatuses(out)
	}
	fmt.Fprint(w, out)
}

func onOff(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// gateState names the gate position the way an operator thinks about it.
func gateState(resp statusResponse) string {
	switch {
	case resp.Visible:
		return "ALERTING"
	case resp.Armed:
		return "ARMED"
	default:
		return "SUPPRESSED"
	}
}

func fallback(v, defaultVal string) string {
	if strings.TrimSpace(v) == "" {
		return defaultVal
	}
	return v
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

func shouldColor(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return false
	}

	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func applyColor(s string, colorize bool, code int) string {
	if !colorize {
		return s
	}
	return fmt.Sprintf("\x1b[%dm%s\x1b[0m", code, s)
}

func colorizeStatuses(out string) string {
	colors := map[string]int{
		"ALERTING":   31,
		"DISABLED":   33,
		"SUPPRESSED": 33,
		"ARMED":      32,
		"ENABLED":    32,
	}
	lines := strings.Split(out, "\n")
	for i, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		value := fields[len(fields)-1]
		code, ok := colors[value]
		if !ok {
			continue
		}
		lines[i] = strings.TrimSuffix(line, value) + applyColor(value, true, code)
	}
	return strings.Join(lines, "\n")
}
