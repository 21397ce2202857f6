// Package sqlitedir is the host device directory, persisted in SQLite.
package sqlitedir

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/berfenger/statesync2mqtt/internal/core/domain"
	"github.com/berfenger/statesync2mqtt/internal/core/port"

	_ "github.com/mattn/go-sqlite3"
)

const (
	dirPermissions    = 0750
	busyTimeoutMillis = 5000
	connectionTimeout = 5 * time.Second
)

const schema = `
CREATE TABLE IF NOT EXISTS devices (
	instance_id   TEXT PRIMARY KEY,
	instance_name TEXT NOT NULL,
	kind          TEXT NOT NULL,
	device_id     TEXT NOT NULL,
	identifiers   TEXT NOT NULL,
	name          TEXT NOT NULL,
	manufacturer  TEXT NOT NULL,
	model         TEXT NOT NULL,
	sw_version    TEXT NOT NULL,
	registered_at INTEGER NOT NULL
)`

const upsertDevice = `
INSERT INTO devices (instance_id, instance_name, kind, device_id, identifiers, name, manufacturer, model, sw_version, registered_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(instance_id) DO UPDATE SET
	instance_name = excluded.instance_name,
	kind          = excluded.kind,
	device_id     = excluded.device_id,
	identifiers   = excluded.identifiers,
	name          = excluded.name,
	manufacturer  = excluded.manufacturer,
	model         = excluded.model,
	sw_version    = excluded.sw_version,
	registered_at = excluded.registered_at`

const selectDevices = `
SELECT instance_id, instance_name, kind, device_id, identifiers, name, manufacturer, model, sw_version, registered_at
FROM devices`

// DeviceEntry is one registered device row.
type DeviceEntry struct {
	Instance     domain.IntegrationInstance
	Device       domain.Device
	RegisteredAt time.Time
}

type Directory struct {
	db *sql.DB
}

// ensure interface compliance
var _ port.DeviceDirectory = (*Directory)(nil)

// Open creates the database file and schema when missing.
func Open(path string) (*Directory, error) {
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL", path, busyTimeoutMillis)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Directory{db: db}, nil
}

// Register inserts or refreshes the device row of an instance.
func (d *Directory) Register(ctx context.Context, instance domain.IntegrationInstance, device domain.Device) error {
	identifiers, err := json.Marshal(device.Identifiers)
	if err != nil {
		return err
	}
	_, err = d.db.ExecContext(ctx, upsertDevice,
		instance.Id, instance.Name, instance.Kind, device.Id, string(identifiers),
		device.Name, device.Manufacturer, device.Model, device.Version, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("registering device of %s: %w", instance.Name, err)
	}
	return nil
}

// Get returns the device of an instance; ok is false when none is registered.
func (d *Directory) Get(ctx context.Context, instanceId string) (entry DeviceEntry, ok bool, err error) {
	row := d.db.QueryRowContext(ctx, selectDevices+" WHERE instance_id = ?", instanceId)
	entry, err = scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return DeviceEntry{}, false, nil
	}
	if err != nil {
		return DeviceEntry{}, false, err
	}
	return entry, true, nil
}

func (d *Directory) List(ctx context.Context) ([]DeviceEntry, error) {
	rows, err := d.db.QueryContext(ctx, selectDevices+" ORDER BY instance_name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []DeviceEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (d *Directory) Close() error {
	return d.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (DeviceEntry, error) {
	var (
		e           DeviceEntry
		identifiers string
		registered  int64
	)
	err := s.Scan(&e.Instance.Id, &e.Instance.Name, &e.Instance.Kind, &e.Device.Id, &identifiers,
		&e.Device.Name, &e.Device.Manufacturer, &e.Device.Model, &e.Device.Version, &registered)
	if err != nil {
		return DeviceEntry{}, err
	}
	if err := json.Unmarshal([]byte(identifiers), &e.Device.Identifiers); err != nil {
		return DeviceEntry{}, fmt.Errorf("decoding identifiers: %w", err)
	}
	e.RegisteredAt = time.Unix(registered, 0)
	return e, nil
}
