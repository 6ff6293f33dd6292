package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alucardeht/ytscribe-mcp/internal/logger"
)

var log = logger.ForComponent("cache")

const DefaultTTL = 7 * 24 * time.Hour

// Entry is a transcript stored for one video id.
type Entry struct {
	VideoID    string    `json:"video_id"`
	Source     string    `json:"source"`
	Transcript string    `json:"transcript"`
	CreatedAt  time.Time `json:"created_at"`
	Hits       int       `json:"hits"`
}

type Stats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// Store keeps successful transcripts in sqlite so repeated requests for the
// same video skip the extraction chain. Entries older than ttl are misses.
type Store struct {
	db     *sql.DB
	ttl    time.Duration
	now    func() time.Time
	mu     sync.Mutex
	hits   int64
	misses int64
}

func Open(path string, ttl time.Duration) (*Store, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &Store{db: db, ttl: ttl, now: time.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init cache schema: %w", err)
	}

	if n, err := s.Purge(context.Background()); err == nil && n > 0 {
		log.Info("purged expired transcripts", "count", n)
	}

	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transcripts (
		video_id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		transcript TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		hits INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_transcripts_created ON transcripts(created_at);
	`

	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the cached transcript for videoID. A missing or expired entry
// returns (nil, nil).
func (s *Store) Get(ctx context.Context, videoID string) (*Entry, error) {
	cutoff := s.now().Add(-s.ttl).Unix()

	entry := &Entry{VideoID: videoID}
	var created int64
	err := s.db.QueryRowContext(ctx,
		"SELECT source, transcript, created_at, hits FROM transcripts WHERE video_id = ? AND created_at > ?",
		videoID, cutoff,
	).Scan(&entry.Source, &entry.Transcript, &created, &entry.Hits)

	s.mu.Lock()
	defer s.mu.Unlock()

	if errors.Is(err, sql.ErrNoRows) {
		s.misses++
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache lookup %s: %w", videoID, err)
	}
	s.hits++
	entry.CreatedAt = time.Unix(created, 0).UTC()

	if _, err := s.db.ExecContext(ctx, "UPDATE transcripts SET hits = hits + 1 WHERE video_id = ?", videoID); err != nil {
		log.Debug("failed to bump hit count", "video_id", videoID, "error", err)
	}
	return entry, nil
}

// Put stores or replaces the transcript for videoID.
func (s *Store) Put(ctx context.Context, videoID, source, transcript string) error {
	if strings.TrimSpace(transcript) == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcripts (video_id, source, transcript, created_at, hits) VALUES (?, ?, ?, ?, 0)
		ON CONFLICT(video_id) DO UPDATE SET source = excluded.source, transcript = excluded.transcript, created_at = excluded.created_at, hits = 0`,
		videoID, source, transcript, s.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("cache store %s: %w", videoID, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, videoID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM transcripts WHERE video_id = ?", videoID)
	return err
}

// Purge drops expired entries and reports how many were removed.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM transcripts WHERE created_at <= ?", s.now().Add(-s.ttl).Unix())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transcripts").Scan(&st.Entries); err != nil {
		return st, err
	}
	s.mu.Lock()
	st.Hits, st.Misses = s.hits, s.misses
	s.mu.Unlock()
	return st, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
