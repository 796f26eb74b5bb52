package notify

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"agrosense/internal/logger"
	"agrosense/internal/metrics"
	"agrosense/internal/models"
)

// Pool drains alert events from a buffered channel and publishes them in
// small batches. It sits between the analysis service and the publisher so a
// slow or unreachable broker never blocks message acknowledgment.
type Pool struct {
	publisher    Publisher
	eventChan    chan *models.AlertEvent
	workers      int
	batchSize    int
	batchTimeout time.Duration

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	published atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// PoolConfig holds pool configuration.
type PoolConfig struct {
	Publisher    Publisher
	BufferSize   int
	Workers      int
	BatchSize    int
	BatchTimeout time.Duration
}

// NewPool creates an alert event pool.
func NewPool(cfg PoolConfig) *Pool {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 200 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		publisher:    cfg.Publisher,
		eventChan:    make(chan *models.AlertEvent, cfg.BufferSize),
		workers:      cfg.Workers,
		batchSize:    cfg.BatchSize,
		batchTimeout: cfg.BatchTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Notify enqueues an alert event without blocking. A full buffer drops the
// event; alert persistence already succeeded, so dropping costs only the
// downstream notification.
func (p *Pool) Notify(event *models.AlertEvent) {
	select {
	case p.eventChan <- event:
	default:
		p.dropped.Add(1)
		metrics.NotifyPublishTotal.WithLabelValues("dropped").Inc()
		logger.WithComponent("notify_pool").Warn().
			Str("alert_id", event.AlertID.String()).
			Msg("notification buffer full, event dropped")
	}
}

// Start begins draining the event channel.
func (p *Pool) Start() {
	log := logger.WithComponent("notify_pool")
	log.Info().
		Int("workers", p.workers).
		Int("batch_size", p.batchSize).
		Dur("batch_timeout", p.batchTimeout).
		Msg("starting notification pool")

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop flushes buffered events and waits for the workers to exit.
func (p *Pool) Stop() {
	log := logger.WithComponent("notify_pool")
	log.Info().Msg("stopping notification pool")
	p.cancel()
	p.wg.Wait()
	log.Info().Msg("notification pool stopped")
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	log := logger.WithComponent("notify_pool").With().Int("worker_id", id).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("worker panic recovered")
			metrics.PanicsRecovered.WithLabelValues("notify_pool").Inc()
		}
	}()

	batch := make([]*models.AlertEvent, 0, p.batchSize)
	timer := time.NewTimer(p.batchTimeout)
	defer timer.Stop()

	for {
		select {
		case <-p.ctx.Done():
			// Drain whatever is still buffered before exiting.
			for {
				select {
				case event := <-p.eventChan:
					batch = append(batch, event)
					if len(batch) >= p.batchSize {
						p.publishBatch(batch)
						batch = batch[:0]
					}
				default:
					if len(batch) > 0 {
						p.publishBatch(batch)
					}
					return
				}
			}

		case event := <-p.eventChan:
			batch = append(batch, event)
			if len(batch) >= p.batchSize {
				p.publishBatch(batch)
				batch = batch[:0]
				timer.Reset(p.batchTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				p.publishBatch(batch)
				batch = batch[:0]
			}
			timer.Reset(p.batchTimeout)
		}
	}
}

func (p *Pool) publishBatch(batch []*models.AlertEvent) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := p.publisher.PublishBatch(ctx, batch); err != nil {
		logger.WithComponent("notify_pool").Error().
			Err(err).
			Int("batch_size", len(batch)).
			Msg("failed to publish alert event batch")
		p.failed.Add(uint64(len(batch)))
		return
	}

	p.published.Add(uint64(len(batch)))
}

// Stats returns pool counters.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Published: p.published.Load(),
		Failed:    p.failed.Load(),
		Dropped:   p.dropped.Load(),
	}
}

// PoolStats holds notification pool counters.
type PoolStats struct {
	Published uint64
	Failed    uint64
	Dropped   uint64
}
