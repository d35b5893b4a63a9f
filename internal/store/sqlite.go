package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/muurk/castscan/internal/device"
	"github.com/muurk/castscan/internal/service"
)

// schemaVersion is stored in PRAGMA user_version
const schemaVersion = 1

// SQLite persists devices in a SQLite database
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens or creates the database at path and migrates it.
// ":memory:" opens a private in-memory database.
func OpenSQLite(path string) (*SQLite, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return err
	}
	if version > schemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, schemaVersion)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS devices (
		id TEXT PRIMARY KEY,
		friendly_name TEXT NOT NULL DEFAULT '',
		ip TEXT NOT NULL DEFAULT '',
		data JSON NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS device_services (
		service_uuid TEXT PRIMARY KEY,
		device_id TEXT NOT NULL,
		service_id TEXT NOT NULL,
		FOREIGN KEY (device_id) REFERENCES devices(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_device_services_device ON device_services(device_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	_, err := s.db.Exec("PRAGMA foreign_keys = ON")
	return err
}

// Close closes the database
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Get implements discovery.Store
func (s *SQLite) Get(serviceUUID string) (*device.ConnectableDevice, error) {
	rec, err := s.recordByServiceUUID(serviceUUID)
	if err != nil || rec == nil {
		return nil, err
	}
	return device.FromRecord(*rec), nil
}

// Add implements discovery.Store
func (s *SQLite) Add(d *device.ConnectableDevice) error {
	return s.put(d.Record())
}

// Update implements discovery.Store
func (s *SQLite) Update(d *device.ConnectableDevice) error {
	return s.put(d.Record())
}

func (s *SQLite) put(rec device.Record) (err error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal device %s: %w", rec.ID, err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.Exec(`
		INSERT INTO devices (id, friendly_name, ip, data, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			friendly_name = excluded.friendly_name,
			ip = excluded.ip,
			data = excluded.data,
			updated_at = excluded.updated_at
	`, rec.ID, rec.FriendlyName, rec.LastKnownIPAddress, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert device %s: %w", rec.ID, err)
	}

	if _, err = tx.Exec(`DELETE FROM device_services WHERE device_id = ?`, rec.ID); err != nil {
		return fmt.Errorf("failed to clear services of %s: %w", rec.ID, err)
	}
	for uuid, sr := range rec.Services {
		_, err = tx.Exec(`
			INSERT INTO device_services (service_uuid, device_id, service_id)
			VALUES (?, ?, ?)
			ON CONFLICT(service_uuid) DO UPDATE SET
				device_id = excluded.device_id,
				service_id = excluded.service_id
		`, uuid, rec.ID, sr.ServiceID)
		if err != nil {
			return fmt.Errorf("failed to insert service %s: %w", uuid, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit device %s: %w", rec.ID, err)
	}
	return nil
}

// Remove implements discovery.Store
func (s *SQLite) Remove(d *device.ConnectableDevice) error {
	if _, err := s.db.Exec(`DELETE FROM device_services WHERE device_id = ?`, d.ID()); err != nil {
		return fmt.Errorf("failed to delete services of %s: %w", d.ID(), err)
	}
	if _, err := s.db.Exec(`DELETE FROM devices WHERE id = ?`, d.ID()); err != nil {
		return fmt.Errorf("failed to delete device %s: %w", d.ID(), err)
	}
	return nil
}

// ServiceConfig implements discovery.Store
func (s *SQLite) ServiceConfig(desc *service.Description) (*service.Config, error) {
	if desc == nil {
		return nil, nil
	}
	rec, err := s.recordByServiceUUID(desc.UUID)
	if err != nil {
		return nil, err
	}
	return serviceConfig(rec, desc), nil
}

// Records implements Store
func (s *SQLite) Records() ([]device.Record, error) {
	rows, err := s.db.Query(`SELECT id, data FROM devices ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var out []device.Record
	for rows.Next() {
		var (
			id   string
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		rec, err := decodeRecord(id, data)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating devices: %w", err)
	}
	return out, nil
}

func (s *SQLite) recordByServiceUUID(serviceUUID string) (*device.Record, error) {
	var (
		id   string
		data []byte
	)
	err := s.db.QueryRow(`
		SELECT d.id, d.data
		FROM devices d
		JOIN device_services ds ON ds.device_id = d.id
		WHERE ds.service_uuid = ?
	`, serviceUUID).Scan(&id, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query service %s: %w", serviceUUID, err)
	}
	rec, err := decodeRecord(id, data)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func decodeRecord(id string, data []byte) (device.Record, error) {
	var rec device.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("failed to unmarshal device %s: %w", id, err)
	}
	// The indexed column is the source of truth.
	rec.ID = strings.TrimSpace(id)
	return rec, nil
}
