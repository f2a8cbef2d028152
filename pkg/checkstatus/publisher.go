package checkstatus

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultPrefix is the subject prefix used when none is configured.
const DefaultPrefix = "checkstatus"

// Publisher sends status messages to NATS under a subject prefix.
type Publisher struct {
	nc     *nats.Conn
	prefix string
}

var hostname = os.Hostname

func NewPublisher(nc *nats.Conn, prefix string) *Publisher {
	return &Publisher{
		nc:     nc,
		prefix: strings.TrimSuffix(prefix, "."),
	}
}

// Publish sends a status message on <prefix>.<check>. A cancelled ctx
// publishes nothing.
func (p *Publisher) Publish(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.GeneratedAt.IsZero() {
		msg.GeneratedAt = time.Now().UTC()
	}
	msg = applyHostDefault(msg)
	payload, err := msg.Marshal()
	if err != nil {
		return err
	}
	return p.nc.Publish(p.fullSubject(msg.Check), payload)
}

func (p *Publisher) fullSubject(check string) string {
	if p.prefix == "" {
		return check
	}
	return fmt.Sprintf("%s.%s", p.prefix, check)
}

func applyHostDefault(msg Message) Message {
	if msg.Host != "" {
		return msg
	}
	if host, err := hostname(); err == nil && host != "" {
		msg.Host = host
	}
	return msg
}
