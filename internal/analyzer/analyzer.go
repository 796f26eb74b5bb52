// Package analyzer wires the stores, the queue consumer, and the alert
// notification path together and owns their lifecycles.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agrosense/internal/alerts"
	"agrosense/internal/analysis"
	"agrosense/internal/config"
	"agrosense/internal/consumer"
	"agrosense/internal/logger"
	"agrosense/internal/middleware"
	"agrosense/internal/notify"
	"agrosense/internal/storage"
)

// Analyzer is the high-level coordinator for the analysis service.
type Analyzer struct {
	cfg        *config.Config
	db         *storage.Postgres
	cache      *alerts.ActiveAlertCache
	publisher  *notify.KafkaPublisher
	pool       *notify.Pool
	consumer   *consumer.Consumer
	httpServer *http.Server
	wg         sync.WaitGroup
}

// New constructs an Analyzer with the given config.
func New(cfg *config.Config) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Run acquires all resources, consumes until ctx is cancelled, and releases
// everything on the way out. The queue connection is owned exclusively by
// the consumer and torn down only after its loop exits.
func (a *Analyzer) Run(ctx context.Context) error {
	log := logger.WithComponent("analyzer")
	log.Info().Msg("analyzer starting")

	db, err := storage.NewPostgres(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	a.db = db
	defer a.db.Close()

	if a.cfg.RedisAddr != "" {
		cache, err := alerts.NewActiveAlertCache(ctx, a.cfg)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		a.cache = cache
		defer a.cache.Close()
		log.Info().Str("addr", a.cfg.RedisAddr).Msg("active-alert cache enabled")
	}

	svc := analysis.New(analysis.Config{
		Readings:     a.db.Readings(),
		Dedup:        alerts.NewDeduplicator(a.db.Alerts(), a.cache),
		Notifier:     a.initNotifier(),
		StoreTimeout: a.cfg.StoreTimeout,
	})

	a.consumer = consumer.New(consumer.Config{
		URL:       a.cfg.AMQPURL,
		Queue:     a.cfg.AMQPQueue,
		Processor: svc,
	})

	a.startHTTPServer()

	// Blocks until ctx is cancelled; the in-flight message finishes its
	// ack/nack cycle before this returns.
	runErr := a.consumer.Run(ctx)

	a.shutdown()
	return runErr
}

// initNotifier starts the Kafka notification path when a topic is
// configured. Without one, created alerts are persisted and logged only.
func (a *Analyzer) initNotifier() analysis.Notifier {
	log := logger.WithComponent("analyzer")

	if a.cfg.KafkaAlertTopic == "" {
		log.Info().Msg("alert notifications disabled")
		return nil
	}

	publisher, err := notify.NewKafkaPublisher(a.cfg.KafkaBrokers, a.cfg.KafkaAlertTopic)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize alert publisher, notifications disabled")
		return nil
	}
	a.publisher = publisher

	a.pool = notify.NewPool(notify.PoolConfig{Publisher: publisher})
	a.pool.Start()

	log.Info().
		Strs("brokers", a.cfg.KafkaBrokers).
		Str("topic", a.cfg.KafkaAlertTopic).
		Msg("alert notifications enabled")
	return a.pool
}

func (a *Analyzer) startHTTPServer() {
	log := logger.WithComponent("analyzer")

	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.healthHandler)
	mux.HandleFunc("/stats", a.statsHandler)
	mux.Handle("/metrics", promhttp.Handler())

	a.httpServer = &http.Server{
		Addr:         a.cfg.HTTPAddr,
		Handler:      middleware.Chain(mux, middleware.Recovery, middleware.Logging),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		log.Info().Str("addr", a.cfg.HTTPAddr).Msg("starting ops HTTP server")
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()
}

// shutdown releases everything the consumer loop does not own itself. The
// notification pool is stopped after the consumer so the last message's
// alert event still gets flushed.
func (a *Analyzer) shutdown() {
	log := logger.WithComponent("analyzer")
	log.Info().Msg("initiating graceful shutdown")

	if a.pool != nil {
		a.pool.Stop()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			log.Error().Err(err).Msg("publisher close error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	a.wg.Wait()
	log.Info().Msg("analyzer stopped gracefully")
}

func (a *Analyzer) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		http.Error(w, fmt.Sprintf("unhealthy: %v", err), http.StatusServiceUnavailable)
		return
	}
	if err := a.consumer.HealthCheck(); err != nil {
		http.Error(w, fmt.Sprintf("unhealthy: %v", err), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

func (a *Analyzer) statsHandler(w http.ResponseWriter, r *http.Request) {
	consumerStats := a.consumer.Stats()

	var poolStats notify.PoolStats
	if a.pool != nil {
		poolStats = a.pool.Stats()
	}
	var publisherStats notify.PublisherStats
	if a.publisher != nil {
		publisherStats = a.publisher.Stats()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{
		"consumer": {
			"acked": %d,
			"rejected": %d,
			"requeued": %d
		},
		"notify": {
			"published": %d,
			"failed": %d,
			"dropped": %d
		},
		"publisher": {
			"sent": %d,
			"failed": %d
		}
	}`,
		consumerStats.Acked,
		consumerStats.Rejected,
		consumerStats.Requeued,
		poolStats.Published,
		poolStats.Failed,
		poolStats.Dropped,
		publisherStats.Sent,
		publisherStats.Failed,
	)
}
