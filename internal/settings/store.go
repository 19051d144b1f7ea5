package settings

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/groupmix/go-controller/internal/schedule"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS presets (
	name          TEXT PRIMARY KEY,
	settings_json TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS solve_history (
	solve_id        TEXT PRIMARY KEY,
	people_count    INTEGER NOT NULL,
	group_count     INTEGER NOT NULL,
	session_count   INTEGER NOT NULL,
	final_score     REAL,
	iteration_count INTEGER,
	elapsed_ms      REAL,
	outcome         TEXT NOT NULL,
	detail          TEXT,
	created_at      TEXT NOT NULL
);
`

// #endregion schema

// #region types

// Preset is a named, persisted solver configuration.
type Preset struct {
	Name      string
	Settings  schedule.SolverSettings
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SolveRecord is one row of the append-only solve history.
type SolveRecord struct {
	SolveID        string
	PeopleCount    int
	GroupCount     int
	SessionCount   int
	FinalScore     float64
	IterationCount uint64
	ElapsedMS      float64
	Outcome        string // "solved" | "cancelled" | "error"
	Detail         string // error text, empty on success
	CreatedAt      time.Time
}

// #endregion types

// #region store

// Store persists solver presets and solve history in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens the database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages.
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion store

// #region presets

// SavePreset inserts or replaces a named configuration.
func (s *Store) SavePreset(name string, settings schedule.SolverSettings) error {
	if name == "" {
		return fmt.Errorf("save preset: empty name")
	}
	body, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.Exec(
		`INSERT INTO presets (name, settings_json, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET settings_json = excluded.settings_json, updated_at = excluded.updated_at`,
		name, string(body), now, now,
	)
	if err != nil {
		return fmt.Errorf("save preset %s: %w", name, err)
	}
	return nil
}

// LoadPreset retrieves one configuration by name.
func (s *Store) LoadPreset(name string) (schedule.SolverSettings, error) {
	var body string
	err := s.db.QueryRow(`SELECT settings_json FROM presets WHERE name = ?`, name).Scan(&body)
	if err != nil {
		return schedule.SolverSettings{}, fmt.Errorf("load preset %s: %w", name, err)
	}
	var settings schedule.SolverSettings
	if err := json.Unmarshal([]byte(body), &settings); err != nil {
		return schedule.SolverSettings{}, fmt.Errorf("unmarshal preset %s: %w", name, err)
	}
	return settings, nil
}

// ListPresets returns all presets ordered by name.
func (s *Store) ListPresets() ([]Preset, error) {
	rows, err := s.db.Query(`SELECT name, settings_json, created_at, updated_at FROM presets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list presets: %w", err)
	}
	defer rows.Close()

	var presets []Preset
	for rows.Next() {
		var p Preset
		var body, createdStr, updatedStr string
		if err := rows.Scan(&p.Name, &body, &createdStr, &updatedStr); err != nil {
			return nil, fmt.Errorf("scan preset: %w", err)
		}
		if err := json.Unmarshal([]byte(body), &p.Settings); err != nil {
			return nil, fmt.Errorf("unmarshal preset %s: %w", p.Name, err)
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedStr)
		presets = append(presets, p)
	}
	return presets, rows.Err()
}

// DeletePreset removes a configuration; deleting a missing preset is
// an error.
func (s *Store) DeletePreset(name string) error {
	res, err := s.db.Exec(`DELETE FROM presets WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete preset %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete preset %s: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("preset %s not found", name)
	}
	return nil
}

// #endregion presets

// #region history

// RecordSolve appends one outcome to the solve history.
func (s *Store) RecordSolve(rec SolveRecord) error {
	if rec.SolveID == "" {
		rec.SolveID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO solve_history (solve_id, people_count, group_count, session_count, final_score, iteration_count, elapsed_ms, outcome, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SolveID, rec.PeopleCount, rec.GroupCount, rec.SessionCount,
		rec.FinalScore, rec.IterationCount, rec.ElapsedMS,
		rec.Outcome, nullIfEmpty(rec.Detail),
		rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record solve: %w", err)
	}
	return nil
}

// RecentSolves returns the newest history rows first.
func (s *Store) RecentSolves(limit int) ([]SolveRecord, error) {
	rows, err := s.db.Query(
		`SELECT solve_id, people_count, group_count, session_count, final_score, iteration_count, elapsed_ms, outcome, detail, created_at
		 FROM solve_history ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent solves: %w", err)
	}
	defer rows.Close()

	var records []SolveRecord
	for rows.Next() {
		var rec SolveRecord
		var detail sql.NullString
		var createdStr string
		if err := rows.Scan(&rec.SolveID, &rec.PeopleCount, &rec.GroupCount, &rec.SessionCount,
			&rec.FinalScore, &rec.IterationCount, &rec.ElapsedMS, &rec.Outcome, &detail, &createdStr); err != nil {
			return nil, fmt.Errorf("scan solve: %w", err)
		}
		if detail.Valid {
			rec.Detail = detail.String
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// #endregion history

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
