package alerts

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"agrosense/internal/config"
	"agrosense/internal/logger"
	"agrosense/internal/models"
)

// ActiveAlertCache is a best-effort Redis cache of active alert ids. A hit
// short-circuits the store lookup; any miss or error falls through to the
// store, which stays authoritative. Safe because this service never resolves
// alerts, so a cached entry cannot go stale within its scope.
type ActiveAlertCache struct {
	client *redis.Client
}

// NewActiveAlertCache connects to Redis and verifies connectivity.
func NewActiveAlertCache(ctx context.Context, cfg *config.Config) (*ActiveAlertCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &ActiveAlertCache{client: client}, nil
}

func (c *ActiveAlertCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

func activeKey(fieldID int, alertType models.AlertType) string {
	return fmt.Sprintf("alert:active:%d:%s", fieldID, alertType)
}

// Get returns the cached active alert id for (field, type), if any.
func (c *ActiveAlertCache) Get(ctx context.Context, fieldID int, alertType models.AlertType) (uuid.UUID, bool) {
	if c == nil {
		return uuid.Nil, false
	}

	val, err := c.client.Get(ctx, activeKey(fieldID, alertType)).Result()
	if err != nil {
		if err != redis.Nil {
			logger.WithComponent("alert_cache").Warn().
				Err(err).
				Int("field_id", fieldID).
				Str("alert_type", string(alertType)).
				Msg("cache lookup failed, falling back to store")
		}
		return uuid.Nil, false
	}

	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// Set records an active alert id. Errors are logged and ignored.
func (c *ActiveAlertCache) Set(ctx context.Context, alert *models.Alert) {
	if c == nil {
		return
	}

	if err := c.client.Set(ctx, activeKey(alert.FieldID, alert.Type), alert.ID.String(), 0).Err(); err != nil {
		logger.WithComponent("alert_cache").Warn().
			Err(err).
			Int("field_id", alert.FieldID).
			Str("alert_type", string(alert.Type)).
			Msg("cache write failed")
	}
}
