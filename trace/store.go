// Package trace records call-stack events and snapshots of an nxrt runtime
// in a SQLite database.
package trace

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chazu/nxrt/manifest"
	"github.com/chazu/nxrt/vm"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"
)

var log = commonlog.GetLogger("nxrt.trace")

// ErrSessionNotFound indicates the requested session doesn't exist
var ErrSessionNotFound = errors.New("session not found")

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	label      TEXT NOT NULL DEFAULT '',
	started_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	session    TEXT NOT NULL REFERENCES sessions(id),
	seq        INTEGER NOT NULL,
	kind       TEXT NOT NULL,
	level      INTEGER NOT NULL,
	object     TEXT NOT NULL DEFAULT '',
	class      TEXT NOT NULL DEFAULT '',
	method     TEXT NOT NULL DEFAULT '',
	frame_type INTEGER NOT NULL DEFAULT 0,
	call_type  INTEGER NOT NULL DEFAULT 0,
	detail     TEXT NOT NULL DEFAULT '',
	at         INTEGER NOT NULL,
	PRIMARY KEY (session, seq)
);
CREATE TABLE IF NOT EXISTS snapshots (
	session  TEXT NOT NULL REFERENCES sessions(id),
	seq      INTEGER NOT NULL,
	taken_at INTEGER NOT NULL,
	error    TEXT NOT NULL DEFAULT '',
	data     BLOB NOT NULL,
	PRIMARY KEY (session, seq)
);
`

// Store is a trace database. It may be shared by several runtimes.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// Open opens (creating if needed) the trace database at dbPath.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating trace directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// OpenManifest opens the trace database configured in m. It returns nil
// without an error when tracing is disabled.
func OpenManifest(m *manifest.Manifest) (*Store, error) {
	if !m.Trace.Enabled {
		return nil, nil
	}
	return Open(m.TraceDatabasePath())
}

// Path returns the database path.
func (s *Store) Path() string { return s.dbPath }

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// NewSession starts a trace session. The returned session is a vm.Observer.
func (s *Store) NewSession(label string) (*Session, error) {
	id := uuid.NewString()
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(
		"INSERT INTO sessions (id, label, started_at) VALUES (?, ?, ?)",
		id, label, now.UnixNano(),
	); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	log.Infof("trace session %s started (%s)", id, label)
	return &Session{store: s, id: id, label: label, started: now}, nil
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// SessionInfo describes a recorded session.
type SessionInfo struct {
	ID        string
	Label     string
	StartedAt time.Time
	Events    int
	Snapshots int
}

// Sessions lists recorded sessions, oldest first.
func (s *Store) Sessions() ([]SessionInfo, error) {
	rows, err := s.db.Query(`SELECT s.id, s.label, s.started_at,
		(SELECT COUNT(*) FROM events e WHERE e.session = s.id),
		(SELECT COUNT(*) FROM snapshots p WHERE p.session = s.id)
		FROM sessions s ORDER BY s.started_at, s.id`)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var started int64
		if err := rows.Scan(&info.ID, &info.Label, &started, &info.Events, &info.Snapshots); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		info.StartedAt = time.Unix(0, started)
		out = append(out, info)
	}
	return out, rows.Err()
}

// Session returns one session by id.
func (s *Store) Session(id string) (SessionInfo, error) {
	info := SessionInfo{ID: id}
	var started int64
	err := s.db.QueryRow(`SELECT s.label, s.started_at,
		(SELECT COUNT(*) FROM events e WHERE e.session = s.id),
		(SELECT COUNT(*) FROM snapshots p WHERE p.session = s.id)
		FROM sessions s WHERE s.id = ?`, id).
		Scan(&info.Label, &started, &info.Events, &info.Snapshots)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionInfo{}, fmt.Errorf("%s: %w", id, ErrSessionNotFound)
	}
	if err != nil {
		return SessionInfo{}, fmt.Errorf("querying session: %w", err)
	}
	info.StartedAt = time.Unix(0, started)
	return info, nil
}

// exists reports ErrSessionNotFound for unknown ids.
func (s *Store) exists(id string) error {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM sessions WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", id, ErrSessionNotFound)
	}
	if err != nil {
		return fmt.Errorf("querying session: %w", err)
	}
	return nil
}

// Events returns the events of a session in recording order.
func (s *Store) Events(session string) ([]Event, error) {
	if err := s.exists(session); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`SELECT seq, kind, level, object, class, method,
		frame_type, call_type, detail, at
		FROM events WHERE session = ? ORDER BY seq`, session)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		e := Event{Session: session}
		var ft, ct int
		var at int64
		if err := rows.Scan(&e.Seq, &e.Kind, &e.Level, &e.Object, &e.Class, &e.Method,
			&ft, &ct, &e.Detail, &at); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		e.FrameType = vm.FrameType(ft)
		e.CallType = vm.CallType(ct)
		e.At = time.Unix(0, at)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Snapshots returns the decoded snapshots of a session in recording order.
func (s *Store) Snapshots(session string) ([]*vm.Snapshot, error) {
	if err := s.exists(session); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(
		"SELECT data FROM snapshots WHERE session = ? ORDER BY seq", session)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	var out []*vm.Snapshot
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		snap, err := vm.UnmarshalSnapshot(data)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}
