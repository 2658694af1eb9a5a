// Package ingest turns a captured smtpd.RawMessage into a StoredMessage:
// it parses the header block, persists metadata in sqlite, compresses and
// writes the raw body to disk (optionally mirroring it to S3), and
// publishes the result on the event bus.
package ingest

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/ExPixel/mercury/lalog"
)

// MessageID is a strictly increasing identifier assigned by sqlite's
// INTEGER PRIMARY KEY AUTOINCREMENT; it is not a UUID.
type MessageID int64

// StoredMessage is the persisted record of one captured message.
type StoredMessage struct {
	ID          MessageID         `json:"id"`
	ReversePath string            `json:"reverse_path"`
	ForwardPath []string          `json:"forward_path"`
	Headers     map[string]string `json:"headers"`
	CreatedAt   time.Time         `json:"created_at"`
	BodyPath    string            `json:"body_path"`
}

// task is one unit of work handed to the storage goroutine. Every sqlite
// access in this package funnels through here so the driver is only ever
// touched by a single goroutine, mirroring a single-writer connection
// dedicated to serializing access.
type task struct {
	fn   func(*sql.DB) (interface{}, error)
	resp chan taskResult
}

type taskResult struct {
	value interface{}
	err   error
}

// Store owns the sqlite connection and the goroutine that serializes all
// access to it.
type Store struct {
	tasks  chan task
	logger *lalog.Logger
}

// OpenStore opens (creating if absent) the sqlite database at path, runs
// migrations, and starts the worker goroutine.
func OpenStore(path string, logger *lalog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ingest: opening sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return newStore(db, logger)
}

// newStore wraps an already-open *sql.DB in a Store, running migrations and
// starting the worker goroutine. Split out from OpenStore so tests can hand
// it a go-sqlmock-backed *sql.DB instead of a real sqlite file.
func newStore(db *sql.DB, logger *lalog.Logger) (*Store, error) {
	if logger == nil {
		logger = &lalog.Logger{ComponentName: "ingest"}
	}
	s := &Store{tasks: make(chan task), logger: logger}
	ready := make(chan error, 1)
	go s.loop(db, ready)
	if err := <-ready; err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) loop(db *sql.DB, ready chan<- error) {
	defer db.Close()
	if err := migrate(db); err != nil {
		ready <- err
		return
	}
	ready <- nil
	for t := range s.tasks {
		v, err := t.fn(db)
		t.resp <- taskResult{value: v, err: err}
	}
}

// with submits fn to the storage goroutine and blocks for its result.
func (s *Store) with(fn func(*sql.DB) (interface{}, error)) (interface{}, error) {
	resp := make(chan taskResult, 1)
	s.tasks <- task{fn: fn, resp: resp}
	r := <-resp
	return r.value, r.err
}

// Close stops accepting new work. The worker goroutine closes the
// connection once it has run the tasks already queued; Close returns
// without waiting for that.
func (s *Store) Close() {
	close(s.tasks)
}

// migrate runs every not-yet-applied migration in order. Failures here are
// wrapped with errors.Wrap rather than fmt.Errorf: a migration failure is a
// startup-time, operator-facing event, and the attached stack trace is what
// actually helps track down which statement in which migration failed,
// unlike the request-scoped errors the rest of this package returns.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS migrations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		migrated_at TEXT NOT NULL
	);`); err != nil {
		return errors.Wrap(err, "ingest: creating migrations table")
	}

	migrations := []struct {
		name string
		fn   func(*sql.DB) error
	}{
		{"create_mail_table", createMailTable},
	}

	for _, m := range migrations {
		var done bool
		row := db.QueryRow(`SELECT EXISTS (SELECT 1 FROM migrations WHERE name = ?);`, m.name)
		if err := row.Scan(&done); err != nil {
			return errors.Wrapf(err, "ingest: checking migration %q", m.name)
		}
		if done {
			continue
		}
		if err := m.fn(db); err != nil {
			return errors.Wrapf(err, "ingest: running migration %q", m.name)
		}
		if _, err := db.Exec(`INSERT INTO migrations (name, migrated_at) VALUES (?, ?);`, m.name, time.Now().UTC()); err != nil {
			return errors.Wrapf(err, "ingest: recording migration %q", m.name)
		}
	}
	return nil
}

func createMailTable(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS mail (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		reverse_path TEXT NOT NULL,
		forward_path TEXT NOT NULL,
		headers TEXT NOT NULL,
		created_at TEXT NOT NULL,
		body_path TEXT NOT NULL
	);`)
	return err
}

// Insert persists a new message's metadata and returns its assigned ID.
func (s *Store) Insert(reversePath, forwardPathJSON, headersJSON, bodyPath string, createdAt time.Time) (MessageID, error) {
	v, err := s.with(func(db *sql.DB) (interface{}, error) {
		res, err := db.Exec(
			`INSERT INTO mail (reverse_path, forward_path, headers, created_at, body_path) VALUES (?, ?, ?, ?, ?);`,
			reversePath, forwardPathJSON, headersJSON, createdAt.UTC(), bodyPath,
		)
		if err != nil {
			return nil, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		return MessageID(id), nil
	})
	if err != nil {
		return 0, fmt.Errorf("ingest: inserting mail record: %w", err)
	}
	return v.(MessageID), nil
}

// UpdateBodyPath records where a message's compressed body was written,
// once it has been inserted with an assigned ID.
func (s *Store) UpdateBodyPath(id MessageID, bodyPath string) error {
	_, err := s.with(func(db *sql.DB) (interface{}, error) {
		_, err := db.Exec(`UPDATE mail SET body_path = ? WHERE id = ?;`, bodyPath, int64(id))
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("ingest: updating body path for mail %d: %w", id, err)
	}
	return nil
}

// List returns up to max messages with ID greater than after, ordered by
// ID ascending.
func (s *Store) List(after MessageID, max int) ([]StoredMessage, error) {
	v, err := s.with(func(db *sql.DB) (interface{}, error) {
		rows, err := db.Query(
			`SELECT id, reverse_path, forward_path, headers, created_at, body_path FROM mail WHERE id > ? ORDER BY id ASC LIMIT ?;`,
			int64(after), max,
		)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []rawRow
		for rows.Next() {
			var r rawRow
			if err := rows.Scan(&r.id, &r.reversePath, &r.forwardPathJSON, &r.headersJSON, &r.createdAt, &r.bodyPath); err != nil {
				return nil, err
			}
			out = append(out, r)
		}
		return out, rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("ingest: listing mail: %w", err)
	}
	rows := v.([]rawRow)
	result := make([]StoredMessage, 0, len(rows))
	for _, r := range rows {
		sm, err := r.toStoredMessage()
		if err != nil {
			return nil, err
		}
		result = append(result, sm)
	}
	return result, nil
}

// Get returns the single message with the given ID.
func (s *Store) Get(id MessageID) (StoredMessage, bool, error) {
	v, err := s.with(func(db *sql.DB) (interface{}, error) {
		row := db.QueryRow(
			`SELECT id, reverse_path, forward_path, headers, created_at, body_path FROM mail WHERE id = ?;`,
			int64(id),
		)
		var r rawRow
		if err := row.Scan(&r.id, &r.reversePath, &r.forwardPathJSON, &r.headersJSON, &r.createdAt, &r.bodyPath); err != nil {
			if err == sql.ErrNoRows {
				return nil, nil
			}
			return nil, err
		}
		return &r, nil
	})
	if err != nil {
		return StoredMessage{}, false, fmt.Errorf("ingest: fetching mail %d: %w", id, err)
	}
	if v == nil {
		return StoredMessage{}, false, nil
	}
	sm, err := v.(*rawRow).toStoredMessage()
	if err != nil {
		return StoredMessage{}, false, err
	}
	return sm, true, nil
}

type rawRow struct {
	id              int64
	reversePath     string
	forwardPathJSON string
	headersJSON     string
	createdAt       time.Time
	bodyPath        string
}

func (r *rawRow) toStoredMessage() (StoredMessage, error) {
	var forwardPath []string
	if err := json.Unmarshal([]byte(r.forwardPathJSON), &forwardPath); err != nil {
		return StoredMessage{}, fmt.Errorf("ingest: decoding forward path for mail %d: %w", r.id, err)
	}
	var headers map[string]string
	if err := json.Unmarshal([]byte(r.headersJSON), &headers); err != nil {
		return StoredMessage{}, fmt.Errorf("ingest: decoding headers for mail %d: %w", r.id, err)
	}
	return StoredMessage{
		ID:          MessageID(r.id),
		ReversePath: r.reversePath,
		ForwardPath: forwardPath,
		Headers:     headers,
		CreatedAt:   r.createdAt,
		BodyPath:    r.bodyPath,
	}, nil
}
