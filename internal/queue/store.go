package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go sqlite driver, no cgo

	"github.com/siemagent/agent/internal/event"
)

// Store is the durable FIFO queue of §4.2, backed by an embedded SQLite
// database the way the teacher's internal/storage/sqlite package persists
// alert history: WAL mode, owner-only file permissions, a single writer.
//
// A sync.Mutex additionally serializes enqueue/peekBatch/remove/bumpRetry
// so that peek-then-remove is race-free across the dispatcher and drainer,
// per the single-writer invariant in §4.2/§4.6 — SQLite's own locking
// guarantees statement-level atomicity but not the compound
// peek-then-decide-then-remove protocol the spec requires.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// Open creates or opens the queue store at path. It reclaims partial writes
// via SQLite's own WAL recovery on open; any corruption it cannot recover
// from is a fatal error per §4.2/§7 — the caller is expected to exit the
// process rather than run with an unreliable queue.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return nil, fmt.Errorf("queue store path must not be empty")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create queue directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?mode=rwc&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}
	// A single connection enforces the spec's single-writer discipline at
	// the storage layer, on top of the dispatcher/drainer coordination.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("queue store corrupt or unreachable: %w", err)
	}

	s := &Store{db: db, path: path, logger: logger}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize queue schema: %w", err)
	}

	if err := os.Chmod(path, 0o600); err != nil {
		logger.Warn("failed to set queue store file permissions to 0600", "error", err)
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS queue_entries (
	id            TEXT PRIMARY KEY,
	cached_at     INTEGER NOT NULL,
	submitted_at  INTEGER NOT NULL,
	retry_count   INTEGER NOT NULL DEFAULT 0,
	last_retry_at INTEGER,
	event_json    BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_queue_entries_cached_at ON queue_entries(cached_at);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Enqueue appends one entry with cachedAt = now. It fails with ErrFull when
// the queue is already at maxCachedEvents.
func (s *Store) Enqueue(ctx context.Context, e event.Event, retryCount int, maxCachedEvents int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.countLocked(ctx)
	if err != nil {
		return err
	}
	if n >= maxCachedEvents {
		return ErrFull{Capacity: maxCachedEvents}
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event for queue: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO queue_entries (id, cached_at, submitted_at, retry_count, event_json) VALUES (?, ?, ?, ?, ?)`,
		e.ID.String(), now.UnixNano(), now.UnixNano(), retryCount, payload,
	)
	if err != nil {
		return fmt.Errorf("insert queue entry: %w", err)
	}
	return nil
}

// PeekBatch returns the oldest up-to-n entries, ordered by cachedAt
// ascending, without removing them.
func (s *Store) PeekBatch(ctx context.Context, n int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peekBatchLocked(ctx, n)
}

func (s *Store) peekBatchLocked(ctx context.Context, n int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, cached_at, submitted_at, retry_count, last_retry_at, event_json
		 FROM queue_entries ORDER BY cached_at ASC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("peek queue batch: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			idStr       string
			cachedAtNs  int64
			submittedNs int64
			retryCount  int
			lastRetryNs sql.NullInt64
			payload     []byte
		)
		if err := rows.Scan(&idStr, &cachedAtNs, &submittedNs, &retryCount, &lastRetryNs, &payload); err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		var evt event.Event
		if err := json.Unmarshal(payload, &evt); err != nil {
			return nil, fmt.Errorf("unmarshal queue entry %s: %w", idStr, err)
		}
		entry := Entry{
			Event:       evt,
			CachedAt:    time.Unix(0, cachedAtNs).UTC(),
			SubmittedAt: time.Unix(0, submittedNs).UTC(),
			RetryCount:  retryCount,
		}
		if lastRetryNs.Valid {
			t := time.Unix(0, lastRetryNs.Int64).UTC()
			entry.LastRetryAt = &t
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Remove deletes the named entries transactionally: on crash mid-remove the
// entries either all remain or all are gone. Removing an id that is no
// longer present is not an error — remove is idempotent per §4.2.
func (s *Store) Remove(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin remove transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM queue_entries WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("prepare remove statement: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id.String()); err != nil {
			return fmt.Errorf("remove queue entry %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// BumpRetry increments retryCount and sets lastRetryAt = now for the named
// entries.
func (s *Store) BumpRetry(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bump-retry transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE queue_entries SET retry_count = retry_count + 1, last_retry_at = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("prepare bump-retry statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().UnixNano()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, now, id.String()); err != nil {
			return fmt.Errorf("bump retry for %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// EvictExpired removes entries with cachedAt older than maxAge and returns
// the count removed.
func (s *Store) EvictExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-maxAge).UnixNano()
	res, err := s.db.ExecContext(ctx, `DELETE FROM queue_entries WHERE cached_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("evict expired queue entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count evicted queue entries: %w", err)
	}
	return int(n), nil
}

// Count returns the current queue size.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countLocked(ctx)
}

func (s *Store) countLocked(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queue_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count queue entries: %w", err)
	}
	return n, nil
}

// Clear removes every entry from the queue.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM queue_entries`)
	if err != nil {
		return fmt.Errorf("clear queue: %w", err)
	}
	return nil
}

// EvictOldest removes the single oldest entry, used by the dispatcher's
// capacity-eviction retry path in §4.6.
func (s *Store) EvictOldest(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.peekBatchLocked(ctx, 1)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM queue_entries WHERE id = ?`, entries[0].ID().String())
	if err != nil {
		return fmt.Errorf("evict oldest queue entry: %w", err)
	}
	return nil
}
