package queue

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	DriverKafka = "kafka"
	DriverStdio = "stdio"
)

var (
	ErrInvalidConfig  = errors.New("queue: invalid config")
	ErrInvalidMessage = errors.New("queue: invalid message")
)

// Message is one outbound event. Key groups related events on the same partition.
type Message struct {
	Topic string
	Key   []byte
	Value []byte
	Time  time.Time
}

// Publisher delivers events to a topic.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

type PublisherConfig struct {
	Driver string

	// Kafka fields.
	Brokers      []string
	BatchTimeout time.Duration
	TLS          bool

	// Stdio fields.
	Writer io.Writer
}

// NewPublisher creates a publisher for the configured driver. An empty driver means Kafka.
func NewPublisher(cfg PublisherConfig) (Publisher, error) {
	switch normalizeDriver(cfg.Driver) {
	case DriverKafka:
		return newKafkaPublisher(cfg)
	case DriverStdio:
		return newStdioPublisher(cfg), nil
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", ErrInvalidConfig, cfg.Driver)
	}
}

func normalizeDriver(v string) string {
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "" {
		return DriverKafka
	}
	return v
}

// SplitCommaList splits a comma separated list, dropping blanks.
func SplitCommaList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func validate(msg Message) error {
	if strings.TrimSpace(msg.Topic) == "" {
		return fmt.Errorf("%w: topic is required", ErrInvalidMessage)
	}
	if len(msg.Value) == 0 {
		return fmt.Errorf("%w: empty value", ErrInvalidMessage)
	}
	return nil
}

type kafkaPublisher struct {
	writer *kafka.Writer
}

func newKafkaPublisher(cfg PublisherConfig) (Publisher, error) {
	brokers := SplitCommaList(strings.Join(cfg.Brokers, ","))
	if len(brokers) == 0 {
		return nil, fmt.Errorf("%w: kafka requires at least one broker", ErrInvalidConfig)
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 10 * time.Millisecond
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: batchTimeout,
		RequiredAcks: kafka.RequireAll,
	}
	if cfg.TLS {
		writer.Transport = &kafka.Transport{
			TLS: &tls.Config{MinVersion: tls.VersionTLS12},
		}
	}
	return &kafkaPublisher{writer: writer}, nil
}

func (p *kafkaPublisher) Publish(ctx context.Context, msg Message) error {
	if err := validate(msg); err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: strings.TrimSpace(msg.Topic),
		Key:   msg.Key,
		Value: msg.Value,
		Time:  msg.Time,
	})
}

func (p *kafkaPublisher) Close() error {
	return p.writer.Close()
}

// stdioPublisher writes one JSON envelope per line; useful without a broker.
type stdioPublisher struct {
	mu sync.Mutex
	w  io.Writer
}

func newStdioPublisher(cfg PublisherConfig) Publisher {
	w := cfg.Writer
	if w == nil {
		w = os.Stdout
	}
	return &stdioPublisher{w: w}
}

func (p *stdioPublisher) Publish(_ context.Context, msg Message) error {
	if err := validate(msg); err != nil {
		return err
	}
	line, err := json.Marshal(struct {
		Topic string          `json:"topic"`
		Key   string          `json:"key,omitempty"`
		Value json.RawMessage `json:"value"`
	}{Topic: msg.Topic, Key: string(msg.Key), Value: rawOrString(msg.Value)})
	if err != nil {
		return fmt.Errorf("queue: encode stdio message: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.w.Write(append(line, '\n')); err != nil {
		return err
	}
	return nil
}

func (p *stdioPublisher) Close() error {
	return nil
}

func rawOrString(v []byte) json.RawMessage {
	if json.Valid(v) {
		return v
	}
	quoted, _ := json.Marshal(string(v))
	return quoted
}
