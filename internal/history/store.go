// Package history persists reliable tension readings in SQLite.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond

	// fixed width so recorded_at sorts lexically
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

	// DefaultLimit bounds List when no limit is given.
	DefaultLimit = 50
)

// Reading is one recorded measurement.
type Reading struct {
	ID               int64     `json:"id"`
	RunID            string    `json:"run_id"`
	RecordedAt       time.Time `json:"recorded_at"`
	TensionNewton    float64   `json:"tension_newton"`
	TensionKgf       float64   `json:"tension_kgf"`
	PeakFrequencyHz  float64   `json:"peak_frequency_hz"`
	PeakAmplitudeDB  float64   `json:"peak_amplitude_db"`
	ReliabilityScore float64   `json:"reliability_score"`
	SpokeLengthM     float64   `json:"spoke_length_m"`
	SpokeMassKg      float64   `json:"spoke_mass_kg"`
}

// Store is a SQLite-backed reading log.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the database at path and applies migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Insert stores r and returns its id. A zero RecordedAt is set to now.
func (s *Store) Insert(ctx context.Context, r Reading) (int64, error) {
	if r.RecordedAt.IsZero() {
		r.RecordedAt = time.Now()
	}

	var id int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO readings (
                run_id, recorded_at, tension_newton, tension_kgf,
                peak_frequency_hz, peak_amplitude_db, reliability_score,
                spoke_length_m, spoke_mass_kg
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.RunID,
			r.RecordedAt.UTC().Format(timeLayout),
			r.TensionNewton,
			r.TensionKgf,
			r.PeakFrequencyHz,
			r.PeakAmplitudeDB,
			r.ReliabilityScore,
			r.SpokeLengthM,
			r.SpokeMassKg,
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("insert reading: %w", err)
	}
	return id, nil
}

// ListOptions filters List.
type ListOptions struct {
	// Limit caps the number of rows; DefaultLimit when <= 0.
	Limit int
	// RunID restricts the result to one run when set.
	RunID string
}

// List returns readings, newest first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Reading, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	query := `SELECT id, run_id, recorded_at, tension_newton, tension_kgf,
        peak_frequency_hz, peak_amplitude_db, reliability_score,
        spoke_length_m, spoke_mass_kg FROM readings`
	var args []any
	if opts.RunID != "" {
		query += ` WHERE run_id = ?`
		args = append(args, opts.RunID)
	}
	query += ` ORDER BY recorded_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list readings: %w", err)
	}
	defer rows.Close()

	var out []Reading
	for rows.Next() {
		var (
			r  Reading
			ts string
		)
		if err := rows.Scan(&r.ID, &r.RunID, &ts, &r.TensionNewton, &r.TensionKgf,
			&r.PeakFrequencyHz, &r.PeakAmplitudeDB, &r.ReliabilityScore,
			&r.SpokeLengthM, &r.SpokeMassKg); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		if r.RecordedAt, err = time.Parse(timeLayout, ts); err != nil {
			return nil, fmt.Errorf("parse recorded_at %q: %w", ts, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate readings: %w", err)
	}
	return out, nil
}

// Prune deletes readings recorded before cutoff and returns the count.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM readings WHERE recorded_at < ?`,
			cutoff.UTC().Format(timeLayout))
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("prune readings: %w", err)
	}
	return n, nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := range busyRetryAttempts {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = min(delay*2, busyRetryMaxBackoff)
	}
	return lastErr
}
