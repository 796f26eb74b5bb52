// Command init_db creates the analysis schema: the reading log, the alert
// table, and the indexes that back the dedup and idempotency guarantees.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"

	"agrosense/internal/config"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS sensor_readings (
		id BIGSERIAL PRIMARY KEY,
		field_id INT NOT NULL,
		sensor_type VARCHAR(50) NOT NULL,
		value DOUBLE PRECISION NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		processed_at TIMESTAMPTZ NOT NULL
	)`,

	// Makes reading inserts idempotent under queue redelivery.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_readings_field_type_ts
		ON sensor_readings (field_id, sensor_type, timestamp)`,

	`CREATE INDEX IF NOT EXISTS idx_readings_field
		ON sensor_readings (field_id)`,

	`CREATE TABLE IF NOT EXISTS alerts (
		id UUID PRIMARY KEY,
		field_id INT NOT NULL,
		type VARCHAR(50) NOT NULL,
		severity VARCHAR(50) NOT NULL,
		status VARCHAR(50) NOT NULL,
		message VARCHAR(500) NOT NULL,
		trigger_value DOUBLE PRECISION NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		resolved_at TIMESTAMPTZ
	)`,

	`CREATE INDEX IF NOT EXISTS idx_alerts_field
		ON alerts (field_id)`,

	`CREATE INDEX IF NOT EXISTS idx_alerts_field_status
		ON alerts (field_id, status)`,

	// Authoritative guard for at most one Active alert per (field, type).
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_alerts_one_active
		ON alerts (field_id, type) WHERE status = 'Active'`,
}

func main() {
	cfg := config.Load()

	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBName,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer conn.Close(ctx)

	for _, stmt := range statements {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			log.Fatalf("exec failed: %v\nstatement: %s", err, stmt)
		}
	}

	log.Println("schema initialized")
}
