// Package events publishes domain events to NATS JetStream, fire-and-forget.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	SubjectTitleCreated = "catalog.title.created"
	SubjectTitleUpdated = "catalog.title.updated"
)

// Event is the envelope sent on every catalog.* subject.
type Event struct {
	EventID    string         `json:"event_id"`
	EventName  string         `json:"event_name"`
	OccurredAt time.Time      `json:"occurred_at"`
	Properties map[string]any `json:"properties,omitempty"`
}

// JetStream is the subset of nats.JetStreamContext the publisher needs.
type JetStream interface {
	PublishAsync(subj string, data []byte, opts ...nats.PubOpt) (nats.PubAckFuture, error)
}

// Publisher is safe to use as a nil pointer or with a nil JetStream; both
// turn Publish into a no-op.
type Publisher struct {
	js  JetStream
	log *zap.Logger
}

func New(js JetStream, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{js: js, log: log}
}

// FromConn builds a Publisher over nc's JetStream context. A nil nc gives a
// no-op publisher.
func FromConn(nc *nats.Conn, log *zap.Logger) (*Publisher, error) {
	if nc == nil {
		return New(nil, log), nil
	}
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	return New(js, log), nil
}

// Publish never surfaces failures; they are logged as warnings.
func (p *Publisher) Publish(subject string, props map[string]any) {
	if p == nil || p.js == nil {
		return
	}
	ev := Event{
		EventID:    uuid.NewString(),
		EventName:  subject,
		OccurredAt: time.Now().UTC(),
		Properties: props,
	}
	data, err := json.Marshal(ev)
	if err != nil {
		p.log.Warn("events: marshal failed", zap.String("subject", subject), zap.Error(err))
		return
	}
	if _, err := p.js.PublishAsync(subject, data); err != nil {
		p.log.Warn("events: publish failed", zap.String("subject", subject), zap.Error(err))
	}
}
