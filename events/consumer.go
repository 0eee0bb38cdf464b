package events

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-dcb/core"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/segmentio/kafka-go"
)

const defaultMaxAttempts = 3

// Sink receives decoded lifecycle events. core.Service handles them inline;
// gojob.EventEnqueuer hands them to a job queue.
type Sink interface {
	HandleRequestExpired(ctx context.Context, requestID string) error
	HandleItemCheckedIn(ctx context.Context, itemID string) error
}

// MessageReader is the subset of *kafka.Reader the consumer drives.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader      MessageReader
	sink        Sink
	decoder     Decoder
	logger      core.Logger
	maxAttempts int
	scheduler   core.BackoffScheduler
	sleep       core.Sleeper
}

type Option func(*Consumer)

func WithLogger(logger core.Logger) Option {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDecoder replaces the default topic classification.
func WithDecoder(decoder Decoder) Option {
	return func(c *Consumer) {
		c.decoder = decoder
	}
}

// WithRetry bounds how often a server-side failure is retried before the
// message is committed and skipped.
func WithRetry(maxAttempts int, scheduler core.BackoffScheduler) Option {
	return func(c *Consumer) {
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
		if scheduler != nil {
			c.scheduler = scheduler
		}
	}
}

func WithSleeper(sleep core.Sleeper) Option {
	return func(c *Consumer) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

func NewConsumer(reader MessageReader, sink Sink, opts ...Option) (*Consumer, error) {
	if reader == nil {
		return nil, fmt.Errorf("events: message reader is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("events: sink is required")
	}
	consumer := &Consumer{
		reader:      reader,
		sink:        sink,
		maxAttempts: defaultMaxAttempts,
		scheduler:   core.ExponentialBackoffScheduler{},
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(consumer)
		}
	}
	_, logger := glog.Resolve("dcb.events", nil, consumer.logger)
	consumer.logger = glog.Ensure(logger)
	return consumer, nil
}

// NewKafkaConsumer joins the configured consumer group on every topic.
func NewKafkaConsumer(cfg core.EventsConfig, sink Sink, opts ...Option) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("events: kafka consumer requires at least one broker")
	}
	if strings.TrimSpace(cfg.GroupID) == "" {
		return nil, fmt.Errorf("events: kafka consumer requires group id")
	}
	if len(cfg.Topics) == 0 {
		return nil, fmt.Errorf("events: kafka consumer requires at least one topic")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
	})
	decoder := WithDecoder(Decoder{
		RequestTopicSuffix: cfg.RequestTopicSuffix,
		CheckInTopicSuffix: cfg.CheckInTopicSuffix,
	})
	return NewConsumer(reader, sink, append([]Option{decoder}, opts...)...)
}

// Run consumes until ctx is cancelled or the reader fails.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("events: fetch message: %w", err)
		}
		if err := c.HandleMessage(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// HandleMessage dispatches one message and commits its offset. Undecodable
// messages and exhausted retries are logged and committed.
func (c *Consumer) HandleMessage(ctx context.Context, msg kafka.Message) error {
	fields := []any{"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset}

	event, ok, err := c.decoder.Decode(msg.Topic, msg.Value)
	switch {
	case err != nil:
		c.logger.Warn("dcb event discarded", append(fields, "error", err.Error())...)
	case ok:
		if err := c.dispatchWithRetry(ctx, event); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("dcb event failed", append(fields, "kind", string(event.Kind), "error", err.Error())...)
		} else {
			c.logger.Debug("dcb event handled", append(fields, "kind", string(event.Kind))...)
		}
	}

	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		return fmt.Errorf("events: commit offset %d on %s: %w", msg.Offset, msg.Topic, err)
	}
	return nil
}

func (c *Consumer) dispatchWithRetry(ctx context.Context, event Event) error {
	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		err = c.dispatch(ctx, event)
		if err == nil || core.ErrorHTTPStatus(err) < http.StatusInternalServerError || attempt == c.maxAttempts {
			return err
		}
		c.logger.Warn("dcb event retry scheduled", "kind", string(event.Kind), "attempt", attempt, "error", err.Error())
		if sleepErr := c.sleep(ctx, c.scheduler.NextDelay(attempt)); sleepErr != nil {
			return sleepErr
		}
	}
	return err
}

func (c *Consumer) dispatch(ctx context.Context, event Event) error {
	switch event.Kind {
	case KindRequestExpired:
		return c.sink.HandleRequestExpired(ctx, event.RequestID)
	case KindItemCheckedIn:
		return c.sink.HandleItemCheckedIn(ctx, event.ItemID)
	default:
		return fmt.Errorf("events: unsupported event kind %q", event.Kind)
	}
}

func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
