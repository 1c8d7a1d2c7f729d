package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS profiles (
	user_id       TEXT PRIMARY KEY,
	doc           TEXT NOT NULL,
	last_activity INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_profiles_last_activity ON profiles(last_activity);
`

// SQLiteStore is a durable Store backed by a single SQLite file. Profiles
// are stored as JSON documents; read-modify-write runs inside a transaction
// under a per-key lock so concurrent updates for the same user serialize
// without blocking unrelated users.
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.Mutex
	keys map[string]*sync.Mutex
	now  func() time.Time
}

// OpenSQLite opens (or creates) a profile database at path.
// Path may be ":memory:" for tests.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open profile db: %w", err)
	}
	// Serialized writes through a single connection; SQLite handles one
	// writer at a time and the driver otherwise returns SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure profile db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create profile schema: %w", err)
	}

	return &SQLiteStore{
		db:   db,
		keys: make(map[string]*sync.Mutex),
		now:  time.Now,
	}, nil
}

// SetClock overrides the store's clock. Test hook.
func (s *SQLiteStore) SetClock(now func() time.Time) { s.now = now }

func (s *SQLiteStore) keyLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.keys[userID]
	if !ok {
		m = &sync.Mutex{}
		s.keys[userID] = m
	}
	return m
}

func (s *SQLiteStore) readRow(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, userID string) (*Profile, error) {
	var doc string
	err := q.QueryRowContext(ctx, "SELECT doc FROM profiles WHERE user_id = ?", userID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read profile %s: %w", userID, err)
	}
	var p Profile
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", userID, err)
	}
	return &p, nil
}

func writeRow(ctx context.Context, tx *sql.Tx, p *Profile) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile %s: %w", p.UserID, err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO profiles (user_id, doc, last_activity) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET doc=excluded.doc, last_activity=excluded.last_activity`,
		p.UserID, string(doc), p.LastActivity.UTC().Unix())
	if err != nil {
		return fmt.Errorf("write profile %s: %w", p.UserID, err)
	}
	return nil
}

// GetOrCreate returns the stored profile, inserting a neutral one if absent.
func (s *SQLiteStore) GetOrCreate(ctx context.Context, userID string) (*Profile, error) {
	var out *Profile
	err := s.Update(ctx, userID, func(p *Profile) error {
		out = p.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Update applies fn inside a transaction under the per-key lock.
func (s *SQLiteStore) Update(ctx context.Context, userID string, fn func(*Profile) error) error {
	lock := s.keyLock(userID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin profile update: %w", err)
	}
	defer tx.Rollback()

	p, err := s.readRow(ctx, tx, userID)
	if err != nil {
		return err
	}
	if p == nil {
		p = New(userID, s.now().UTC())
	}

	if err := fn(p); err != nil {
		return err
	}
	p.ClampScores()

	if err := writeRow(ctx, tx, p); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes the profile row.
func (s *SQLiteStore) Delete(ctx context.Context, userID string) error {
	lock := s.keyLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM profiles WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("delete profile %s: %w", userID, err)
	}
	return nil
}

// ScanAll visits every stored profile in key order.
func (s *SQLiteStore) ScanAll(ctx context.Context, fn func(*Profile) error) error {
	rows, err := s.db.QueryContext(ctx, "SELECT doc FROM profiles ORDER BY user_id")
	if err != nil {
		return fmt.Errorf("scan profiles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return fmt.Errorf("scan profile row: %w", err)
		}
		var p Profile
		if err := json.Unmarshal([]byte(doc), &p); err != nil {
			return fmt.Errorf("decode profile row: %w", err)
		}
		if err := fn(&p); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Count returns the number of stored profiles.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM profiles").Scan(&n); err != nil {
		return 0, fmt.Errorf("count profiles: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
