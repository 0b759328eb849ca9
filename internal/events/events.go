// Package events publishes post-commit domain events.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	TypeSaleCompleted   = "sale.completed"
	TypeLayawayCreated  = "layaway.created"
	TypeLayawayPayment  = "layaway.payment"
	TypeLayawayPaid     = "layaway.paid"
	TypeLayawayCanceled = "layaway.cancelled"
	TypeStockReceived   = "product.stock_received"
	TypeReportSent      = "report.sent"
)

const producerName = "dukapos"

// Envelope wraps every event payload.
type Envelope struct {
	EventID      string          `json:"event_id"`
	EventType    string          `json:"event_type"`
	EventVersion int             `json:"event_version"`
	OccurredAt   time.Time       `json:"occurred_at"`
	Producer     string          `json:"producer"`
	Key          string          `json:"key,omitempty"`
	Payload      json.RawMessage `json:"payload"`
}

// Publisher emits domain events. Implementations never block the caller on broker I/O.
type Publisher interface {
	Publish(ctx context.Context, eventType, key string, payload any) error
}

// NewEnvelope encodes the payload into an Envelope.
func NewEnvelope(eventType, key string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:      uuid.NewString(),
		EventType:    eventType,
		EventVersion: 1,
		OccurredAt:   time.Now().UTC(),
		Producer:     producerName,
		Key:          key,
		Payload:      raw,
	}, nil
}

// Noop discards events.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, string, string, any) error { return nil }

// Memory keeps events in process, used by tests.
type Memory struct {
	mu     sync.Mutex
	events []Envelope
}

// Publish implements Publisher.
func (m *Memory) Publish(_ context.Context, eventType, key string, payload any) error {
	env, err := NewEnvelope(eventType, key, payload)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, env)
	return nil
}

// Types returns the recorded event types in publish order.
func (m *Memory) Types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.EventType)
	}
	return out
}

// Events returns a copy of the recorded envelopes.
func (m *Memory) Events() []Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Envelope(nil), m.events...)
}
