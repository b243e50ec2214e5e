package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	catalogapp "github.com/erp/catalog-engine/internal/application/catalog"
	"github.com/erp/catalog-engine/internal/infrastructure/config"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the publisher uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// RatePublisher sends rate changes to the rates topic. Messages are keyed
// by currency so changes to one currency keep their order.
type RatePublisher struct {
	writer MessageWriter
}

// NewKafkaWriter creates a writer for the rates topic
func NewKafkaWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.RatesTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
}

// NewRatePublisher creates a publisher over writer
func NewRatePublisher(writer MessageWriter) *RatePublisher {
	return &RatePublisher{writer: writer}
}

// Publish sends one rate change
func (p *RatePublisher) Publish(ctx context.Context, change catalogapp.RateChange) error {
	data, err := json.Marshal(change)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(change.Currency), Value: data}); err != nil {
		return fmt.Errorf("failed to publish rate change: %w", err)
	}
	return nil
}

// Close flushes and closes the writer
func (p *RatePublisher) Close() error {
	return p.writer.Close()
}
