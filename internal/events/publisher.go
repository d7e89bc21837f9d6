package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/jengzang/farm-advisory-backend-go/internal/models"
)

// Publisher hands submitted forms to the recommendation pipeline
type Publisher interface {
	Publish(ctx context.Context, s models.Submission) error
	Close() error
}

// SubmissionEvent is the message value written for each submission
type SubmissionEvent struct {
	Type       string            `json:"type"`
	Submission models.Submission `json:"submission"`
	SentAt     time.Time         `json:"sent_at"`
}

// SubmissionEventType tags submission messages
const SubmissionEventType = "farm.submission.created"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes submissions to a Kafka topic keyed by form ID
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

// NewKafkaPublisher creates a publisher for the given brokers and topic
func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, errors.New("kafka topic must not be empty")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
	return newKafkaPublisher(w, topic, logger), nil
}

func newKafkaPublisher(w messageWriter, topic string, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaPublisher{writer: w, topic: topic, logger: logger}
}

// Publish writes one submission event
func (p *KafkaPublisher) Publish(ctx context.Context, s models.Submission) error {
	value, err := json.Marshal(SubmissionEvent{
		Type:       SubmissionEventType,
		Submission: s,
		SentAt:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode submission %s: %w", s.ID, err)
	}

	msg := kafka.Message{
		Key:   []byte(s.FormID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(SubmissionEventType)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish submission %s to %s: %w", s.ID, p.topic, err)
	}
	p.logger.Debug("submission published", zap.String("id", s.ID), zap.String("topic", p.topic))
	return nil
}

// Close flushes and closes the underlying writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops every submission. Used when no brokers are configured.
type NopPublisher struct{}

// Publish does nothing
func (NopPublisher) Publish(context.Context, models.Submission) error { return nil }

// Close does nothing
func (NopPublisher) Close() error { return nil }
