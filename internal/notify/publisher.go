// Package notify fans newly created alerts out to a Kafka topic for
// downstream consumers (dashboards, pagers). Publishing is best-effort and
// out-of-band: it never delays or fails the queue acknowledgment path.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"agrosense/internal/logger"
	"agrosense/internal/metrics"
	"agrosense/internal/models"
)

// Publisher errors
var (
	ErrPublisherClosed = errors.New("publisher is closed")
)

const (
	publishMaxRetries   = 3
	publishRetryBackoff = 250 * time.Millisecond
)

// Publisher sends alert events to a downstream topic.
type Publisher interface {
	PublishBatch(ctx context.Context, events []*models.AlertEvent) error
	Close() error
}

// KafkaPublisher publishes alert events to Kafka, keyed by field id so all
// events for one field land on the same partition.
type KafkaPublisher struct {
	writer *kafka.Writer
	closed atomic.Bool

	sent   atomic.Uint64
	failed atomic.Uint64
}

// NewKafkaPublisher creates a publisher for the given brokers and topic.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	return &KafkaPublisher{writer: writer}, nil
}

// PublishBatch sends a batch of alert events with bounded retry.
func (p *KafkaPublisher) PublishBatch(ctx context.Context, events []*models.AlertEvent) error {
	if p.closed.Load() {
		return ErrPublisherClosed
	}
	if len(events) == 0 {
		return nil
	}

	log := logger.WithComponent("notify_publisher")
	start := time.Now()

	messages := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			log.Error().
				Err(err).
				Str("alert_id", event.AlertID.String()).
				Msg("failed to serialize alert event")
			p.failed.Add(1)
			metrics.NotifyPublishTotal.WithLabelValues("failed").Inc()
			continue
		}

		messages = append(messages, kafka.Message{
			Key:   []byte(strconv.Itoa(event.FieldID)),
			Value: data,
			Headers: []kafka.Header{
				{Key: "alert_type", Value: []byte(event.Type)},
				{Key: "severity", Value: []byte(event.Severity)},
			},
			Time: event.CreatedAt,
		})
	}

	if len(messages) == 0 {
		return nil
	}

	err := p.writeWithRetry(ctx, messages)
	duration := time.Since(start)
	metrics.NotifyPublishDuration.Observe(duration.Seconds())

	if err != nil {
		log.Error().
			Err(err).
			Int("batch_size", len(messages)).
			Dur("duration", duration).
			Msg("failed to publish alert events")
		p.failed.Add(uint64(len(messages)))
		metrics.NotifyPublishTotal.WithLabelValues("failed").Add(float64(len(messages)))
		return err
	}

	p.sent.Add(uint64(len(messages)))
	metrics.NotifyPublishTotal.WithLabelValues("success").Add(float64(len(messages)))
	log.Debug().
		Int("batch_size", len(messages)).
		Dur("duration", duration).
		Msg("alert events published")
	return nil
}

func (p *KafkaPublisher) writeWithRetry(ctx context.Context, messages []kafka.Message) error {
	log := logger.WithComponent("notify_publisher")
	var lastErr error
	backoff := publishRetryBackoff

	for attempt := 0; attempt <= publishMaxRetries; attempt++ {
		if attempt > 0 {
			log.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("retrying alert event publish")
			metrics.NotifyPublishRetries.Inc()

			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := p.writer.WriteMessages(ctx, messages...)
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", publishMaxRetries+1, lastErr)
}

// Close closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.writer.Close()
}

// Stats returns publish counters.
func (p *KafkaPublisher) Stats() PublisherStats {
	return PublisherStats{
		Sent:   p.sent.Load(),
		Failed: p.failed.Load(),
	}
}

// PublisherStats holds publisher counters.
type PublisherStats struct {
	Sent   uint64
	Failed uint64
}
