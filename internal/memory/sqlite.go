package memory

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"codeberg.org/snonux/backtrans/internal/provider"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tm_entries (
	position    INTEGER PRIMARY KEY,
	source      TEXT NOT NULL,
	translation TEXT NOT NULL,
	target_lang TEXT NOT NULL,
	provider_id TEXT NOT NULL,
	access_time TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS tm_meta (
	name  TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

// SQLiteStore persists snapshots in a SQLite database
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (and creates if needed) the database at path
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("%w: creating %s: %w", ErrPersistence, dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", ErrPersistence, path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: creating schema: %w", ErrPersistence, err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load reads all entries in insertion order together with the stored
// configuration and metrics.
func (s *SQLiteStore) Load() (*Snapshot, error) {
	snap := &Snapshot{}

	found, err := s.loadMeta("config", &snap.Config)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fs.ErrNotExist
	}
	if _, err := s.loadMeta("metrics", &snap.Metrics); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`SELECT source, translation, target_lang, provider_id, access_time
		FROM tm_entries ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("%w: querying entries: %w", ErrPersistence, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var e Entry
		var pid, accessed string
		if err := rows.Scan(&e.Source, &e.Translation, &e.TargetLang, &pid, &accessed); err != nil {
			return nil, fmt.Errorf("%w: scanning entry: %w", ErrPersistence, err)
		}
		e.ProviderID = provider.Normalize(pid)
		if t, err := time.Parse(time.RFC3339Nano, accessed); err == nil {
			e.AccessTime = t
		}
		snap.Cache = append(snap.Cache, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return snap, nil
}

func (s *SQLiteStore) loadMeta(name string, into any) (bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM tm_meta WHERE name = ?`, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: reading %s: %w", ErrPersistence, name, err)
	}
	if err := json.Unmarshal([]byte(value), into); err != nil {
		return false, fmt.Errorf("%w: decoding %s: %w", ErrPersistence, name, err)
	}
	return true, nil
}

// Save replaces the stored contents with snap in a single transaction
func (s *SQLiteStore) Save(snap *Snapshot) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrPersistence, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.Exec(`DELETE FROM tm_entries`); err != nil {
		return fmt.Errorf("%w: clearing entries: %w", ErrPersistence, err)
	}

	stmt, err := tx.Prepare(`INSERT INTO tm_entries
		(position, source, translation, target_lang, provider_id, access_time)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("%w: preparing insert: %w", ErrPersistence, err)
	}
	defer func() { _ = stmt.Close() }()

	for i, e := range snap.Cache {
		if _, err = stmt.Exec(i, e.Source, e.Translation, e.TargetLang,
			string(e.ProviderID), e.AccessTime.UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("%w: inserting entry: %w", ErrPersistence, err)
		}
	}

	for name, value := range map[string]any{"config": snap.Config, "metrics": snap.Metrics} {
		data, mErr := json.Marshal(value)
		if mErr != nil {
			err = mErr
			return fmt.Errorf("%w: encoding %s: %w", ErrPersistence, name, err)
		}
		if _, err = tx.Exec(`INSERT INTO tm_meta (name, value) VALUES (?, ?)
			ON CONFLICT(name) DO UPDATE SET value = excluded.value`, name, string(data)); err != nil {
			return fmt.Errorf("%w: writing %s: %w", ErrPersistence, name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrPersistence, err)
	}
	return nil
}
