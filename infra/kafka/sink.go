// Package kafka streams ledger entries to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/kilianp07/fleetdispatch/core/audit"
	"github.com/kilianp07/fleetdispatch/core/factory"
	"github.com/kilianp07/fleetdispatch/core/model"
)

// DefaultTopic receives the audit entries when none is configured.
const DefaultTopic = "fleet.audit"

// Config configures the audit sink.
type Config struct {
	Brokers     []string `json:"brokers"`
	Topic       string   `json:"topic"`
	CreateTopic bool     `json:"create_topic"`
	TimeoutMS   int      `json:"timeout_ms"`
}

func (c *Config) setDefaults() {
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}
	if c.TimeoutMS <= 0 {
		c.TimeoutMS = 5000
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// AuditSink publishes each entry as one message keyed by entity id, so
// all entries of an entity land on the same partition.
type AuditSink struct {
	w       messageWriter
	topic   string
	timeout time.Duration
}

// NewAuditSink connects a writer to the brokers.
func NewAuditSink(ctx context.Context, cfg Config) (*AuditSink, error) {
	cfg.setDefaults()
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	if cfg.CreateTopic {
		if err := ensureTopic(ctx, cfg.Brokers[0], cfg.Topic); err != nil {
			return nil, err
		}
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	return newAuditSink(w, cfg), nil
}

func newAuditSink(w messageWriter, cfg Config) *AuditSink {
	cfg.setDefaults()
	return &AuditSink{w: w, topic: cfg.Topic, timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond}
}

func ensureTopic(ctx context.Context, broker, topic string) error {
	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		return fmt.Errorf("kafka dial %s: %w", broker, err)
	}
	defer func() { _ = conn.Close() }()
	ctrl, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("kafka controller: %w", err)
	}
	cc, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(ctrl.Host, strconv.Itoa(ctrl.Port)))
	if err != nil {
		return fmt.Errorf("kafka dial controller: %w", err)
	}
	defer func() { _ = cc.Close() }()
	return cc.CreateTopics(kafka.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1})
}

// Write publishes entries in ledger order.
func (s *AuditSink) Write(ctx context.Context, entries []model.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(entries))
	for _, e := range entries {
		b, err := json.Marshal(e)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{
			Topic: s.topic,
			Key:   []byte(e.EntityID),
			Value: b,
			Time:  e.Timestamp,
			Headers: []kafka.Header{
				{Key: "action", Value: []byte(e.Action.String())},
				{Key: "severity", Value: []byte(e.SeverityName())},
			},
		})
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.w.WriteMessages(ctx, msgs...)
}

// Close flushes and closes the writer.
func (s *AuditSink) Close() error { return s.w.Close() }

func init() {
	_ = audit.RegisterSink("kafka", func(conf map[string]any) (audit.Sink, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return NewAuditSink(ctx, c)
	})
}
