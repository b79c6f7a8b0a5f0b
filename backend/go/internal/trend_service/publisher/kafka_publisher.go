package publisher

import (
	"context"
	"encoding/json"

	"Trendline/backend/go/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ActivityPublisher publishes activity messages to Kafka.
type ActivityPublisher struct {
	writer MessageWriter
	topic  string
	logger *logger.Logger
}

// NewActivityPublisher wraps writer. topic is only used for logging.
func NewActivityPublisher(writer MessageWriter, topic string, log *logger.Logger) *ActivityPublisher {
	return &ActivityPublisher{
		writer: writer,
		topic:  topic,
		logger: log.WithField("component", "activity_publisher"),
	}
}

// Publish sends value as JSON, keyed so one user's events stay on one partition.
func (p *ActivityPublisher) Publish(ctx context.Context, key string, value interface{}) error {
	msgBytes, err := json.Marshal(value)
	if err != nil {
		p.logger.WithErr("marshal_error", err).Error("Failed to marshal activity for Kafka")
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: msgBytes,
	})
	if err != nil {
		p.logger.WithErr("kafka_error", err).WithPayload(map[string]interface{}{"topic": p.topic}).Error("Failed to write message to Kafka")
		return err
	}
	return nil
}

// Close closes the underlying Kafka writer.
func (p *ActivityPublisher) Close() error {
	return p.writer.Close()
}
