package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stargate-bridger/bridger/internal/queue"
)

const EventTypeRecord = "bridge.record.v1"

// Event is the payload published for every appended record.
type Event struct {
	Type   string `json:"type"`
	Wallet string `json:"wallet"`
	Record Record `json:"record"`
}

// EventSink publishes records to a queue topic keyed by wallet, so one wallet's history stays ordered.
type EventSink struct {
	pub   queue.Publisher
	topic string
}

func NewEventSink(pub queue.Publisher, topic string) (*EventSink, error) {
	topic = strings.TrimSpace(topic)
	if pub == nil || topic == "" {
		return nil, errors.New("ledger: event sink needs a publisher and topic")
	}
	return &EventSink{pub: pub, topic: topic}, nil
}

func (s *EventSink) Record(ctx context.Context, wallet string, rec Record) error {
	payload, err := json.Marshal(Event{Type: EventTypeRecord, Wallet: wallet, Record: rec})
	if err != nil {
		return fmt.Errorf("ledger: encode event: %w", err)
	}
	return s.pub.Publish(ctx, queue.Message{
		Topic: s.topic,
		Key:   []byte(wallet),
		Value: payload,
		Time:  rec.Timestamp,
	})
}
