// Package messaging connects the catalog to the currency rate stream.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	catalogapp "github.com/erp/catalog-engine/internal/application/catalog"
	"github.com/erp/catalog-engine/internal/domain/shared"
	"github.com/erp/catalog-engine/internal/infrastructure/config"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// RateChangeHandler applies one exchange rate change
type RateChangeHandler interface {
	HandleRateChange(ctx context.Context, change catalogapp.RateChange) (*catalogapp.RateChangeResult, error)
}

// MessageReader is the part of *kafka.Reader the consumer uses
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// RateConsumerConfig tunes redelivery of failed rate changes
type RateConsumerConfig struct {
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// DefaultRateConsumerConfig returns the default consumer settings
func DefaultRateConsumerConfig() RateConsumerConfig {
	return RateConsumerConfig{
		RetryDelay:    time.Second,
		MaxRetryDelay: time.Minute,
	}
}

// RateConsumer reads currency rate changes and applies them. A message is
// committed only after it was applied or rejected as invalid, so a crash
// replays it; applying the same rate twice is harmless.
type RateConsumer struct {
	reader  MessageReader
	handler RateChangeHandler
	config  RateConsumerConfig
	logger  *zap.Logger
	done    chan struct{}
}

// NewKafkaReader creates a consumer group reader for the rates topic
func NewKafkaReader(cfg config.KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.RatesTopic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 1e6,
	})
}

// NewRateConsumer creates a consumer over reader
func NewRateConsumer(reader MessageReader, handler RateChangeHandler, cfg RateConsumerConfig, logger *zap.Logger) *RateConsumer {
	defaults := DefaultRateConsumerConfig()
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaults.RetryDelay
	}
	if cfg.MaxRetryDelay < cfg.RetryDelay {
		cfg.MaxRetryDelay = max(defaults.MaxRetryDelay, cfg.RetryDelay)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateConsumer{
		reader:  reader,
		handler: handler,
		config:  cfg,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Run consumes until ctx is cancelled. It returns nil on cancellation.
func (c *RateConsumer) Run(ctx context.Context) error {
	defer close(c.done)
	c.logger.Info("Rate consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Rate consumer stopped")
				return nil
			}
			return fmt.Errorf("failed to fetch rate message: %w", err)
		}

		if err := c.process(ctx, msg); err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Rate consumer stopped")
				return nil
			}
			return err
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to commit rate message: %w", err)
		}
	}
}

// Done is closed when Run has returned
func (c *RateConsumer) Done() <-chan struct{} {
	return c.done
}

// Close releases the reader
func (c *RateConsumer) Close() error {
	return c.reader.Close()
}

// process applies one message, retrying transient failures with backoff
// until it succeeds or ctx ends. Malformed and invalid changes are logged
// and skipped.
func (c *RateConsumer) process(ctx context.Context, msg kafka.Message) error {
	var change catalogapp.RateChange
	if err := json.Unmarshal(msg.Value, &change); err != nil {
		c.logger.Warn("Skipping malformed rate message",
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
		return nil
	}

	delay := c.config.RetryDelay
	for attempt := 1; ; attempt++ {
		result, err := c.handler.HandleRateChange(ctx, change)
		if err == nil {
			c.logger.Info("Applied currency rate",
				zap.String("currency", result.Currency),
				zap.String("rate", result.Rate.String()),
				zap.Int("repriced_products", result.RepricedProducts),
				zap.Bool("sink_update_failed", result.SinkUpdateFailed),
			)
			return nil
		}

		if errors.Is(err, shared.ErrValidation) {
			c.logger.Warn("Skipping invalid rate change",
				zap.String("currency", change.Currency),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
			return nil
		}

		c.logger.Error("Failed to apply rate change, retrying",
			zap.String("currency", change.Currency),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, c.config.MaxRetryDelay)
	}
}
