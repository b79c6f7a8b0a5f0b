package consumer

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"Trendline/backend/go/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// MessageReader is the subset of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Handler processes one message. A failed message is retried while the consumer's
// retry classifier reports the error as transient, and committed otherwise.
type Handler func(ctx context.Context, msg kafka.Message) error

// ActivityConsumer consumes the activity topic.
type ActivityConsumer struct {
	reader     MessageReader
	logger     *logger.Logger
	backoff    time.Duration
	maxBackoff time.Duration
	retryable  func(error) bool
	stop       chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

// Option configures an ActivityConsumer.
type Option func(*ActivityConsumer)

// WithRetryable sets the classifier for handler errors. A message whose handler error is
// retryable is handled again, with backoff, and is not committed until it succeeds or
// fails permanently. Without a classifier every failed message is committed.
func WithRetryable(fn func(error) bool) Option {
	return func(c *ActivityConsumer) { c.retryable = fn }
}

// WithBackoff sets the initial and maximum delay between attempts.
func WithBackoff(initial, max time.Duration) Option {
	return func(c *ActivityConsumer) {
		if initial > 0 {
			c.backoff = initial
		}
		if max >= c.backoff {
			c.maxBackoff = max
		}
	}
}

func NewActivityConsumer(reader MessageReader, log *logger.Logger, opts ...Option) *ActivityConsumer {
	c := &ActivityConsumer{
		reader:     reader,
		logger:     log.WithField("component", "activity_consumer"),
		backoff:    time.Second,
		maxBackoff: 30 * time.Second,
		stop:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start consumes in a background goroutine until ctx is cancelled.
func (c *ActivityConsumer) Start(ctx context.Context, handler Handler) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx, handler)
	}()
}

func (c *ActivityConsumer) run(ctx context.Context, handler Handler) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				c.logger.Info("Stopping Kafka activity consumer...")
				return
			}
			c.logger.WithErr("kafka_error", err).Error("Error fetching message from Kafka")
			if !c.sleep(ctx, c.backoff) {
				return
			}
			continue
		}

		if !c.handle(ctx, handler, msg) {
			c.logger.WithPayload(map[string]interface{}{
				"partition": msg.Partition,
				"offset":    msg.Offset,
			}).Info("Stopping Kafka activity consumer with message uncommitted")
			return
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.WithErr("kafka_error", err).Error("Failed to commit Kafka message")
		}
	}
}

// handle runs handler until it succeeds or fails permanently. It returns false when the
// consumer was stopped before that, in which case msg must not be committed.
func (c *ActivityConsumer) handle(ctx context.Context, handler Handler, msg kafka.Message) bool {
	delay := c.backoff
	for attempt := 1; ; attempt++ {
		err := handler(ctx, msg)
		if err == nil {
			return true
		}
		log := c.logger.WithErr("handler_error", err).WithPayload(map[string]interface{}{
			"topic":     msg.Topic,
			"partition": msg.Partition,
			"offset":    msg.Offset,
			"attempt":   attempt,
		})
		if c.retryable == nil || !c.retryable(err) {
			log.Error("Error handling Kafka message, skipping")
			return true
		}
		log.Warn("Error handling Kafka message, retrying")
		if !c.sleep(ctx, delay) {
			return false
		}
		delay *= 2
		if delay > c.maxBackoff {
			delay = c.maxBackoff
		}
	}
}

func (c *ActivityConsumer) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-c.stop:
		return false
	case <-t.C:
		return true
	}
}

// Close closes the reader and waits for the consume loop to exit.
func (c *ActivityConsumer) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	err := c.reader.Close()
	c.wg.Wait()
	return err
}
