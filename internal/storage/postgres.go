package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"agrosense/internal/config"
	"agrosense/internal/metrics"
	"agrosense/internal/models"
)

// Postgres owns the connection pool and hands out the repository views.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to the database and verifies connectivity.
func NewPostgres(ctx context.Context, cfg *config.Config) (*Postgres, error) {
	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?pool_max_conns=%d",
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBName,
		cfg.DBMaxConns,
	)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create db pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Readings returns the reading repository backed by this pool.
func (p *Postgres) Readings() *ReadingRepo {
	return &ReadingRepo{pool: p.pool}
}

// Alerts returns the alert repository backed by this pool.
func (p *Postgres) Alerts() *AlertRepo {
	return &AlertRepo{pool: p.pool}
}

// ReadingRepo implements ReadingStore on Postgres.
type ReadingRepo struct {
	pool *pgxpool.Pool
}

func (r *ReadingRepo) Insert(ctx context.Context, reading *models.SensorReading) error {
	start := time.Now()
	query := `
		INSERT INTO sensor_readings
			(field_id, sensor_type, value, timestamp, processed_at)
		VALUES
			($1, $2, $3, $4, $5)
		ON CONFLICT (field_id, sensor_type, timestamp) DO NOTHING
	`
	_, err := r.pool.Exec(
		ctx,
		query,
		reading.FieldID,
		string(reading.SensorType),
		reading.Value,
		reading.Timestamp,
		reading.ProcessedAt,
	)
	metrics.StoreOpDuration.WithLabelValues("insert_reading").Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

func (r *ReadingRepo) Last24h(ctx context.Context, fieldID int, sensorType models.SensorType) ([]models.SensorReading, error) {
	start := time.Now()
	query := `
		SELECT field_id, sensor_type, value, timestamp, processed_at
		FROM sensor_readings
		WHERE field_id = $1
		  AND sensor_type = $2
		  AND timestamp >= now() - interval '24 hours'
		ORDER BY timestamp DESC
	`
	rows, err := r.pool.Query(ctx, query, fieldID, string(sensorType))
	metrics.StoreOpDuration.WithLabelValues("last_24h").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("query last 24h readings: %w", err)
	}
	defer rows.Close()

	var readings []models.SensorReading
	for rows.Next() {
		var reading models.SensorReading
		if err := rows.Scan(
			&reading.FieldID,
			&reading.SensorType,
			&reading.Value,
			&reading.Timestamp,
			&reading.ProcessedAt,
		); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate readings: %w", err)
	}
	return readings, nil
}

// AlertRepo implements AlertStore on Postgres.
type AlertRepo struct {
	pool *pgxpool.Pool
}

func (a *AlertRepo) Insert(ctx context.Context, alert *models.Alert) error {
	start := time.Now()
	query := `
		INSERT INTO alerts
			(id, field_id, type, severity, status, message, trigger_value, created_at, resolved_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := a.pool.Exec(
		ctx,
		query,
		alert.ID,
		alert.FieldID,
		string(alert.Type),
		string(alert.Severity),
		string(alert.Status),
		alert.Message,
		alert.TriggerValue,
		alert.CreatedAt,
		alert.ResolvedAt,
	)
	metrics.StoreOpDuration.WithLabelValues("insert_alert").Observe(time.Since(start).Seconds())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateActiveAlert
		}
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (a *AlertRepo) ActiveByField(ctx context.Context, fieldID int) ([]models.Alert, error) {
	start := time.Now()
	query := `
		SELECT id, field_id, type, severity, status, message, trigger_value, created_at, resolved_at
		FROM alerts
		WHERE field_id = $1 AND status = $2
		ORDER BY created_at DESC
	`
	rows, err := a.pool.Query(ctx, query, fieldID, string(models.StatusActive))
	metrics.StoreOpDuration.WithLabelValues("active_by_field").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("query active alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return alerts, nil
}

func (a *AlertRepo) ActiveByFieldAndType(ctx context.Context, fieldID int, alertType models.AlertType) (*models.Alert, error) {
	start := time.Now()
	query := `
		SELECT id, field_id, type, severity, status, message, trigger_value, created_at, resolved_at
		FROM alerts
		WHERE field_id = $1 AND type = $2 AND status = $3
		LIMIT 1
	`
	row := a.pool.QueryRow(ctx, query, fieldID, string(alertType), string(models.StatusActive))
	alert, err := scanAlert(row)
	metrics.StoreOpDuration.WithLabelValues("active_by_field_type").Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return alert, nil
}

func scanAlert(row pgx.Row) (*models.Alert, error) {
	var alert models.Alert
	err := row.Scan(
		&alert.ID,
		&alert.FieldID,
		&alert.Type,
		&alert.Severity,
		&alert.Status,
		&alert.Message,
		&alert.TriggerValue,
		&alert.CreatedAt,
		&alert.ResolvedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("scan alert: %w", err)
	}
	return &alert, nil
}
