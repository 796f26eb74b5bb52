// Package consumer owns the queue connection and the one-message-at-a-time
// consumption loop. The connection is acquired when the loop starts and
// released on every exit path.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"agrosense/internal/analysis"
	"agrosense/internal/logger"
	"agrosense/internal/metrics"
)

var errDeliveriesClosed = errors.New("delivery channel closed")

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
)

// Processor handles one message payload and reports how to settle it.
type Processor interface {
	Process(ctx context.Context, payload []byte) (analysis.Outcome, error)
}

// Consumer pulls messages from a durable queue with manual acknowledgment
// and a prefetch of one: the next message is not pulled until the current
// one is acked or nacked.
type Consumer struct {
	url       string
	queue     string
	processor Processor

	conn      *amqp.Connection
	channel   *amqp.Channel
	connected atomic.Bool

	acked    atomic.Uint64
	rejected atomic.Uint64
	requeued atomic.Uint64
}

// Config holds consumer configuration.
type Config struct {
	URL       string
	Queue     string
	Processor Processor
}

// New constructs a consumer. The connection is not opened until Run.
func New(cfg Config) *Consumer {
	return &Consumer{
		url:       cfg.URL,
		queue:     cfg.Queue,
		processor: cfg.Processor,
	}
}

// Run consumes until ctx is cancelled, reconnecting with bounded backoff on
// transport failure. Cancellation stops pulling immediately; the in-flight
// message always finishes its ack/nack cycle because processing is
// synchronous inside the loop.
func (c *Consumer) Run(ctx context.Context) error {
	log := logger.WithComponent("consumer")
	backoff := initialBackoff

	for {
		if ctx.Err() != nil {
			return nil
		}

		deliveries, err := c.connect()
		if err != nil {
			log.Error().
				Err(err).
				Dur("backoff", backoff).
				Msg("queue connection failed, retrying")
			metrics.QueueReconnectsTotal.Inc()

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = initialBackoff

		log.Info().Str("queue", c.queue).Msg("consuming")
		err = c.consume(ctx, deliveries)
		c.teardown()

		if ctx.Err() != nil {
			log.Info().Msg("consumer stopped")
			return nil
		}

		log.Warn().Err(err).Msg("queue connection lost, reconnecting")
		metrics.QueueReconnectsTotal.Inc()
	}
}

// connect dials the broker, declares the durable queue, and starts a
// manual-ack consume with a prefetch of one.
func (c *Consumer) connect() (<-chan amqp.Delivery, error) {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if _, err := channel.QueueDeclare(
		c.queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	// One unacknowledged message in flight per instance.
	if err := channel.Qos(1, 0, false); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := channel.Consume(
		c.queue,
		"",    // consumer tag, broker-assigned
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("start consume: %w", err)
	}

	c.conn = conn
	c.channel = channel
	c.connected.Store(true)
	return deliveries, nil
}

func (c *Consumer) consume(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errDeliveriesClosed
			}
			c.handle(ctx, d)
		}
	}
}

// handle processes a single delivery to completion. A panic in the processor
// is recovered and routed to the requeue path so one poison message cannot
// kill the loop.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	log := logger.WithComponent("consumer")

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered while processing message")
			metrics.PanicsRecovered.WithLabelValues("consumer").Inc()
			c.settle(d, analysis.OutcomeRequeue)
		}
	}()

	outcome, err := c.processor.Process(ctx, d.Body)
	if err != nil {
		log.Error().
			Err(err).
			Str("outcome", outcome.String()).
			Msg("message processing failed")
	}

	c.settle(d, outcome)
}

// settle acknowledges or negative-acknowledges a delivery per the outcome.
func (c *Consumer) settle(d amqp.Delivery, outcome analysis.Outcome) {
	log := logger.WithComponent("consumer")

	var err error
	switch outcome {
	case analysis.OutcomeAck:
		err = d.Ack(false)
		c.acked.Add(1)
	case analysis.OutcomeReject:
		err = d.Nack(false, false)
		c.rejected.Add(1)
	case analysis.OutcomeRequeue:
		err = d.Nack(false, true)
		c.requeued.Add(1)
	default:
		// Unknown outcomes requeue: the broker redelivers and a later
		// attempt classifies the message properly.
		err = d.Nack(false, true)
		c.requeued.Add(1)
	}

	metrics.MessagesConsumedTotal.WithLabelValues(outcome.String()).Inc()

	if err != nil {
		log.Error().
			Err(err).
			Str("outcome", outcome.String()).
			Uint64("delivery_tag", d.DeliveryTag).
			Msg("failed to settle delivery")
	}
}

func (c *Consumer) teardown() {
	c.connected.Store(false)
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// HealthCheck reports whether the consumer currently holds a live connection.
func (c *Consumer) HealthCheck() error {
	if !c.connected.Load() {
		return errors.New("not connected to queue")
	}
	return nil
}

// Stats returns consumption counters.
func (c *Consumer) Stats() Stats {
	return Stats{
		Acked:    c.acked.Load(),
		Rejected: c.rejected.Load(),
		Requeued: c.requeued.Load(),
	}
}

// Stats holds consumer counters by settlement outcome.
type Stats struct {
	Acked    uint64
	Rejected uint64
	Requeued uint64
}
