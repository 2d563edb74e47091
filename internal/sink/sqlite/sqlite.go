// Package sqlite persists readings into a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/d21d3q/wmbusd/internal/gateway"
)

const schema = `
CREATE TABLE IF NOT EXISTS readings (
	id           TEXT PRIMARY KEY,
	dongle       TEXT,
	address      TEXT NOT NULL,
	manufacturer TEXT NOT NULL,
	device_id    TEXT NOT NULL,
	received     DATETIME NOT NULL,
	rssi         INTEGER,
	status       TEXT NOT NULL,
	decoder      TEXT,
	raw          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_readings_device ON readings (address, received);

CREATE TABLE IF NOT EXISTS reading_values (
	reading_id TEXT NOT NULL REFERENCES readings(id),
	name       TEXT NOT NULL,
	value      REAL,
	text       TEXT,
	unit       TEXT
);
CREATE INDEX IF NOT EXISTS idx_values_reading ON reading_values (reading_id);
`

// Reading statuses stored in the readings table.
const (
	StatusDecoded     = "decoded"
	StatusVendor      = "vendor"
	StatusUndecrypted = "undecrypted"
)

// Sink stores every reading with its values.
type Sink struct {
	db  *sql.DB
	log logrus.FieldLogger
}

// Open opens or creates the database at path.
func Open(path string, log logrus.FieldLogger) (*Sink, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// one writer at a time
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	log.WithField("path", path).Info("sqlite sink opened")
	return &Sink{db: db, log: log}, nil
}

func (s *Sink) Name() string { return "sqlite" }

func (s *Sink) Close() error { return s.db.Close() }

type value struct {
	name string
	num  sql.NullFloat64
	text sql.NullString
	unit string
}

// Publish stores r in one transaction.
func (s *Sink) Publish(ctx context.Context, r gateway.Reading) error {
	status, decoder, values := flatten(r)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	id := uuid.NewString()
	var rssi sql.NullInt64
	if r.HasRSSI {
		rssi = sql.NullInt64{Int64: int64(r.RSSI), Valid: true}
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO readings
		(id, dongle, address, manufacturer, device_id, received, rssi, status, decoder, raw)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, r.Dongle, r.Address.Key().String(), r.Address.ManufacturerID(), r.Address.DeviceID(),
		r.Received.UTC(), rssi, status, decoder, strings.ToUpper(hex.EncodeToString(r.Raw)))
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	for _, v := range values {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO reading_values (reading_id, name, value, text, unit) VALUES (?, ?, ?, ?, ?)`,
			id, v.name, v.num, v.text, v.unit)
		if err != nil {
			return fmt.Errorf("insert value %s: %w", v.name, err)
		}
	}
	return tx.Commit()
}

func flatten(r gateway.Reading) (string, string, []value) {
	switch {
	case r.Undecrypted():
		return StatusUndecrypted, "", nil
	case r.Data != nil:
		out := make([]value, 0, len(r.Data.Records))
		for _, rec := range r.Data.Records {
			v := value{name: rec.Name(), unit: rec.Unit.Symbol()}
			if f, err := rec.ScaledValue(); err == nil {
				v.num = sql.NullFloat64{Float64: f, Valid: true}
			} else {
				v.text = sql.NullString{String: rec.FormatValue(), Valid: true}
			}
			out = append(out, v)
		}
		return StatusDecoded, "", out
	default:
		out := make([]value, 0, len(r.VendorRecords))
		for _, rec := range r.VendorRecords {
			v := value{name: rec.Kind.String(), unit: rec.Kind.Unit()}
			switch x := rec.Value.(type) {
			case int64:
				v.num = sql.NullFloat64{Float64: float64(x), Valid: true}
			case float64:
				v.num = sql.NullFloat64{Float64: x, Valid: true}
			case time.Time:
				v.text = sql.NullString{String: x.Format(time.RFC3339), Valid: true}
			default:
				v.text = sql.NullString{String: fmt.Sprint(x), Valid: true}
			}
			out = append(out, v)
		}
		return StatusVendor, r.Vendor, out
	}
}

// Value is a stored reading value as returned by Latest.
type Value struct {
	Name  string
	Value *float64
	Text  string
	Unit  string
}

// ErrNoReading is returned by Latest when a meter has no stored reading.
var ErrNoReading = errors.New("no reading stored")

// Latest returns the status and values of the newest reading of the meter
// with the given address key.
func (s *Sink) Latest(ctx context.Context, addressKey string) (string, []Value, error) {
	var id, status string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, status FROM readings WHERE address = ? ORDER BY received DESC, rowid DESC LIMIT 1`,
		addressKey).Scan(&id, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, fmt.Errorf("%w for %s", ErrNoReading, addressKey)
	}
	if err != nil {
		return "", nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, value, text, unit FROM reading_values WHERE reading_id = ? ORDER BY rowid`, id)
	if err != nil {
		return "", nil, err
	}
	defer rows.Close()
	var out []Value
	for rows.Next() {
		var (
			v    Value
			num  sql.NullFloat64
			text sql.NullString
			unit sql.NullString
		)
		if err := rows.Scan(&v.Name, &num, &text, &unit); err != nil {
			return "", nil, err
		}
		if num.Valid {
			f := num.Float64
			v.Value = &f
		}
		v.Text, v.Unit = text.String, unit.String
		out = append(out, v)
	}
	return status, out, rows.Err()
}
