// Package catalog stores named infrared captures in a SQLite database so they
// can be replayed later.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"libdb.so/irrelay"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no entry has the requested name.
var ErrNotFound = errors.New("catalog: entry not found")

// Entry is a named capture.
type Entry struct {
	ID   uuid.UUID
	Name string
	// Code is the decoded command. It is the zero value for captures that
	// were stored without decoding.
	Code irrelay.Code
	// Pulses is the raw train in microseconds, starting with a pulse.
	Pulses    []int
	CreatedAt time.Time
}

// Catalog is a SQLite-backed library of entries. Entry names are unique.
type Catalog struct {
	db *sql.DB
}

// Open opens or creates the catalog database at path.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS captures (
			capture_id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			code BLOB NOT NULL,
			pulses TEXT NOT NULL,
			created_at_ns BIGINT NOT NULL
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("cannot create catalog schema: %w", err)
	}

	return &Catalog{db: db}, nil
}

// Save stores entry, replacing any entry of the same name. A missing ID or
// creation time is filled in, and the stored entry is returned.
func (c *Catalog) Save(ctx context.Context, entry Entry) (Entry, error) {
	entry.Name = strings.TrimSpace(entry.Name)
	if entry.Name == "" {
		return Entry{}, errors.New("catalog: entry name is empty")
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	pulses, err := json.Marshal(entry.Pulses)
	if err != nil {
		return Entry{}, err
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO captures (capture_id, name, code, pulses, created_at_ns)
		VALUES (?, ?, ?, ?, ?)
	`,
		entry.ID.String(),
		entry.Name,
		entry.Code[:],
		string(pulses),
		entry.CreatedAt.UnixNano(),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("cannot save %q: %w", entry.Name, err)
	}

	return entry, nil
}

// Get returns the entry called name.
func (c *Catalog) Get(ctx context.Context, name string) (Entry, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT capture_id, name, code, pulses, created_at_ns
		FROM captures WHERE name = ?
	`, strings.TrimSpace(name))

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return entry, err
}

// List returns every entry ordered by name.
func (c *Catalog) List(ctx context.Context) ([]Entry, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT capture_id, name, code, pulses, created_at_ns
		FROM captures ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

// Delete removes the entry called name.
func (c *Catalog) Delete(ctx context.Context, name string) error {
	res, err := c.db.ExecContext(ctx, "DELETE FROM captures WHERE name = ?", strings.TrimSpace(name))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		id        string
		entry     Entry
		code      []byte
		pulses    string
		createdAt int64
	)
	if err := s.Scan(&id, &entry.Name, &code, &pulses, &createdAt); err != nil {
		return Entry{}, err
	}

	var err error
	entry.ID, err = uuid.Parse(id)
	if err != nil {
		return Entry{}, fmt.Errorf("entry %q has invalid id: %w", entry.Name, err)
	}
	if len(code) != len(entry.Code) {
		return Entry{}, fmt.Errorf("entry %q has a %d byte code", entry.Name, len(code))
	}
	copy(entry.Code[:], code)
	if err := json.Unmarshal([]byte(pulses), &entry.Pulses); err != nil {
		return Entry{}, fmt.Errorf("entry %q has invalid pulses: %w", entry.Name, err)
	}
	entry.CreatedAt = time.Unix(0, createdAt)

	return entry, nil
}
