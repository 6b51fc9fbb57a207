package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// Publisher is the subset of *nats.Conn the NATS logger needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATS publishes events as JSON on <prefix>.<event_type>.
type NATS struct {
	pub    Publisher
	prefix string
}

// NewNATS creates a NATS event logger. An empty prefix defaults to "pai.tasks".
func NewNATS(pub Publisher, prefix string) *NATS {
	prefix = strings.TrimSuffix(prefix, ".")
	if prefix == "" {
		prefix = "pai.tasks"
	}
	return &NATS{pub: pub, prefix: prefix}
}

// Subject returns the subject an event type is published on.
func (l *NATS) Subject(eventType string) string {
	return l.prefix + "." + eventType
}

func (l *NATS) LogEvent(ctx context.Context, event Event) error {
	if l == nil || l.pub == nil {
		return fmt.Errorf("nats publisher is nil")
	}
	if err := event.validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := l.pub.Publish(l.Subject(event.EventType), data); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// ConnectNATS dials a NATS server for event publishing.
func ConnectNATS(url string) (*nats.Conn, error) {
	if url == "" {
		return nil, fmt.Errorf("nats URL is empty")
	}
	conn, err := nats.Connect(url,
		nats.Name("pai-planner"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	return conn, nil
}
