// Package pgsink appends every reading to a Postgres (or Timescale) table.
package pgsink

import (
	"context"
	"fmt"

	"github.com/berfenger/statesync2mqtt/internal/core/domain"
	"github.com/berfenger/statesync2mqtt/internal/core/port"

	"github.com/jackc/pgx/v5/pgxpool"
)

const SINK_NAME = "postgres"

const schema = `
CREATE TABLE IF NOT EXISTS sensor_readings (
	time        TIMESTAMPTZ NOT NULL,
	instance    TEXT NOT NULL,
	unique_id   TEXT NOT NULL,
	sensor_type TEXT NOT NULL,
	value_num   DOUBLE PRECISION,
	value_text  TEXT,
	unit        TEXT
)`

const insertReading = `
INSERT INTO sensor_readings (time, instance, unique_id, sensor_type, value_num, value_text, unit)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

type Sink struct {
	pool *pgxpool.Pool
}

// ensure interface compliance
var _ port.ReadingSink = (*Sink)(nil)

// Connect pings the database and creates the table when missing.
func Connect(ctx context.Context, url string) (*Sink, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("postgres config: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres unreachable: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	return &Sink{pool: pool}, nil
}

// Columns splits a value into its numeric and text columns; absent values
// leave both NULL.
func Columns(value any) (num *float64, text *string) {
	switch v := value.(type) {
	case float64:
		return &v, nil
	case string:
		return nil, &v
	}
	return nil, nil
}

func (s *Sink) Name() string {
	return SINK_NAME
}

func (s *Sink) Write(ctx context.Context, event domain.ReadingPublishedEvent) error {
	num, text := Columns(event.Published.Reading.Value)
	var unit *string
	if u := event.Published.Reading.Unit; u != "" {
		unit = &u
	}
	_, err := s.pool.Exec(ctx, insertReading,
		event.At, event.Instance.Name, event.Published.Identity.UniqueId, event.Published.Identity.SensorType,
		num, text, unit)
	if err != nil {
		return fmt.Errorf("postgres insert: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	s.pool.Close()
	return nil
}
