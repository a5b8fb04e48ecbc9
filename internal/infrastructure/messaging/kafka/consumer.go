package kafka

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/colinvwood/taxa-barplot/internal/config"
	"github.com/colinvwood/taxa-barplot/internal/infrastructure/monitoring/logging"
	"github.com/colinvwood/taxa-barplot/pkg/errors"
)

var (
	ErrAlreadyRunning = errors.New(errors.ErrCodeConflict, "consumer already running")
)

// EventHandler processes one decoded event. A returned error is logged and the
// record is committed anyway, so a bad event never blocks the stream.
type EventHandler func(ctx context.Context, ev *ReceivedEvent) error

// ReaderInterface abstracts kafka.Reader for testing.
type ReaderInterface interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ConsumerStats struct {
	Consumed int64
	Failed   int64
	Lag      int64
}

type Consumer struct {
	reader     ReaderInterface
	logger     logging.Logger
	retryDelay time.Duration

	running  atomic.Bool
	consumed atomic.Int64
	failed   atomic.Int64
	lag      atomic.Int64
	wg       sync.WaitGroup
	mu       sync.Mutex
	cancel   context.CancelFunc
}

// NewConsumer joins groupID on topics. fromStart selects the earliest offset
// for a group that has no committed position yet.
func NewConsumer(cfg *config.KafkaConfig, groupID string, topics []string, fromStart bool, logger logging.Logger) (*Consumer, error) {
	if cfg == nil || len(cfg.Brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "kafka brokers required")
	}
	if groupID == "" {
		return nil, errors.New(errors.ErrCodeValidation, "consumer group required")
	}
	if len(topics) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "at least one topic required")
	}
	start := kafka.LastOffset
	if fromStart {
		start = kafka.FirstOffset
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     groupID,
		GroupTopics: topics,
		MinBytes:    1,
		MaxBytes:    10 * 1024 * 1024,
		MaxWait:     time.Second,
		StartOffset: start,
		Dialer:      &kafka.Dialer{Timeout: 10 * time.Second, DualStack: true},
	})
	return newConsumer(reader, logger), nil
}

func newConsumer(r ReaderInterface, logger logging.Logger) *Consumer {
	return &Consumer{reader: r, logger: logger, retryDelay: time.Second}
}

// Run blocks, dispatching events to handler until ctx is cancelled or Close
// is called.
func (c *Consumer) Run(ctx context.Context, handler EventHandler) error {
	if c.running.Swap(true) {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.wg.Add(1)
	c.mu.Unlock()
	defer c.wg.Done()
	defer cancel()

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Fetch failed", logging.Err(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.retryDelay):
			}
			continue
		}
		c.consumed.Add(1)
		if m.HighWaterMark > 0 {
			c.lag.Store(m.HighWaterMark - m.Offset - 1)
		}

		ev, err := DecodeMessage(m)
		if err == nil {
			err = handler(ctx, ev)
		}
		if err != nil {
			c.failed.Add(1)
			c.logger.Warn("Event handling failed",
				logging.String("topic", m.Topic),
				logging.Int64("offset", m.Offset),
				logging.Err(err))
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.logger.Error("Commit failed", logging.Err(err))
		}
	}
}

func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Consumed: c.consumed.Load(),
		Failed:   c.failed.Load(),
		Lag:      c.lag.Load(),
	}
}

// Close stops a running loop and releases the reader.
func (c *Consumer) Close() error {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()
	c.wg.Wait()
	err := c.reader.Close()
	c.logger.Info("Kafka consumer closed", logging.Int64("consumed", c.consumed.Load()))
	return err
}
