// Package checkpoint persists per-(profile, content-type) walk
// progress and per-profile session blobs. Every write is durable
// before the call returns, so a crash immediately after a successful
// append never loses the item and never re-emits it on the next run.
package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "modernc.org/sqlite"

	"igwalker/pkg/models"
)

// Cursor is the modal-walk position for one (profile, content-type)
// pair.
type Cursor struct {
	CurrentID   string
	Ordinal     int
	CanAdvance  bool
	LastSuccess time.Time
}

// Record is the durable resume state for one (profile, content-type).
type Record struct {
	Profile     string
	ContentType models.ContentType
	Cursor      Cursor
	Items       []models.ContentItem
	UpdatedAt   time.Time
}

// Seen reports whether an identifier is already in the record.
func (r *Record) Seen(id string) bool {
	for _, it := range r.Items {
		if it.ID == id {
			return true
		}
	}
	return false
}

// SessionBlob is a persisted session token with its validation
// timestamp.
type SessionBlob struct {
	Token         string
	LastValidated time.Time
}

// Store is the durable checkpoint and session persistence contract.
type Store interface {
	// Load returns the record for (profile, contentType), nil when
	// absent.
	Load(ctx context.Context, profile string, ct models.ContentType) (*Record, error)

	// Append durably records a discovered item. Appending an
	// already-seen identifier is a no-op reported as duplicate=true,
	// never an error.
	Append(ctx context.Context, profile string, ct models.ContentType, item models.ContentItem) (duplicate bool, err error)

	// SnapshotCursor durably records the walk position.
	SnapshotCursor(ctx context.Context, profile string, ct models.ContentType, cur Cursor) error

	// Reset drops the record for (profile, contentType).
	Reset(ctx context.Context, profile string, ct models.ContentType) error

	// SaveSession persists a profile's session blob.
	SaveSession(ctx context.Context, profile string, blob SessionBlob) error

	// LoadSession returns a profile's persisted session, nil when
	// absent.
	LoadSession(ctx context.Context, profile string) (*SessionBlob, error)

	// DeleteSession removes a profile's persisted session.
	DeleteSession(ctx context.Context, profile string) error

	Close() error
}

// SQLiteStore implements Store on a single SQLite database. Rows are
// keyed by (profile, content_type), so concurrent profile workers
// always touch disjoint keys.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens or creates the checkpoint database at the given path. An
// empty path selects the platform data directory default.
func Open(path string) (*SQLiteStore, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	// synchronous(FULL) makes every commit durable before it returns
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=synchronous(full)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint db: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate checkpoint db: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS checkpoints (
		profile        TEXT NOT NULL,
		content_type   TEXT NOT NULL,
		current_id     TEXT,
		ordinal        INTEGER NOT NULL DEFAULT 0,
		can_advance    INTEGER NOT NULL DEFAULT 1,
		last_success_at TEXT,
		updated_at     TEXT NOT NULL,
		PRIMARY KEY (profile, content_type)
	);
	CREATE TABLE IF NOT EXISTS seen_items (
		profile       TEXT NOT NULL,
		content_type  TEXT NOT NULL,
		content_id    TEXT NOT NULL,
		content_url   TEXT NOT NULL,
		ordinal       INTEGER NOT NULL,
		discovered_at TEXT NOT NULL,
		PRIMARY KEY (profile, content_type, content_id)
	);
	CREATE INDEX IF NOT EXISTS idx_seen_items_ordinal
		ON seen_items(profile, content_type, ordinal);
	CREATE TABLE IF NOT EXISTS sessions (
		profile           TEXT PRIMARY KEY,
		token             TEXT NOT NULL,
		last_validated_at TEXT NOT NULL,
		updated_at        TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Load(ctx context.Context, profile string, ct models.ContentType) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT current_id, ordinal, can_advance, last_success_at, updated_at
		FROM checkpoints WHERE profile = ? AND content_type = ?`,
		profile, string(ct))

	rec := &Record{Profile: profile, ContentType: ct}
	var currentID sql.NullString
	var canAdvance int
	var lastSuccess sql.NullString
	var updatedAt string

	err := row.Scan(&currentID, &rec.Cursor.Ordinal, &canAdvance, &lastSuccess, &updatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	rec.Cursor.CurrentID = currentID.String
	rec.Cursor.CanAdvance = canAdvance != 0
	if lastSuccess.Valid {
		rec.Cursor.LastSuccess, _ = time.Parse(time.RFC3339Nano, lastSuccess.String)
	}
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

	rows, err := s.db.QueryContext(ctx, `
		SELECT content_id, content_url, ordinal, discovered_at
		FROM seen_items WHERE profile = ? AND content_type = ?
		ORDER BY ordinal`,
		profile, string(ct))
	if err != nil {
		return nil, fmt.Errorf("failed to load seen items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.ContentItem
		var discovered string
		if err := rows.Scan(&item.ID, &item.URL, &item.Order, &discovered); err != nil {
			return nil, fmt.Errorf("failed to scan seen item: %w", err)
		}
		item.Type = models.ContentTypeOf(item.URL)
		item.ScrapedAt, _ = time.Parse(time.RFC3339Nano, discovered)
		rec.Items = append(rec.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read seen items: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) Append(ctx context.Context, profile string, ct models.ContentType, item models.ContentItem) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO seen_items
			(profile, content_type, content_id, content_url, ordinal, discovered_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		profile, string(ct), item.ID, item.URL, item.Order,
		item.ScrapedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return false, fmt.Errorf("failed to append item: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read append result: %w", err)
	}
	return n == 0, nil
}

func (s *SQLiteStore) SnapshotCursor(ctx context.Context, profile string, ct models.ContentType, cur Cursor) error {
	var lastSuccess interface{}
	if !cur.LastSuccess.IsZero() {
		lastSuccess = cur.LastSuccess.UTC().Format(time.RFC3339Nano)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints
			(profile, content_type, current_id, ordinal, can_advance, last_success_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (profile, content_type) DO UPDATE SET
			current_id = excluded.current_id,
			ordinal = excluded.ordinal,
			can_advance = excluded.can_advance,
			last_success_at = excluded.last_success_at,
			updated_at = excluded.updated_at`,
		profile, string(ct), nullable(cur.CurrentID), cur.Ordinal,
		boolToInt(cur.CanAdvance), lastSuccess,
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to snapshot cursor: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Reset(ctx context.Context, profile string, ct models.ContentType) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin reset: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE profile = ? AND content_type = ?`,
		profile, string(ct)); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM seen_items WHERE profile = ? AND content_type = ?`,
		profile, string(ct)); err != nil {
		return fmt.Errorf("failed to delete seen items: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) SaveSession(ctx context.Context, profile string, blob SessionBlob) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (profile, token, last_validated_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (profile) DO UPDATE SET
			token = excluded.token,
			last_validated_at = excluded.last_validated_at,
			updated_at = excluded.updated_at`,
		profile, blob.Token,
		blob.LastValidated.UTC().Format(time.RFC3339Nano),
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadSession(ctx context.Context, profile string) (*SessionBlob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT token, last_validated_at FROM sessions WHERE profile = ?`, profile)

	var blob SessionBlob
	var validated string
	err := row.Scan(&blob.Token, &validated)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	blob.LastValidated, _ = time.Parse(time.RFC3339Nano, validated)
	return &blob, nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, profile string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE profile = ?`, profile); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// DefaultPath returns the checkpoint database location in the
// platform data directory.
func DefaultPath() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "linux":
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			dataDir = filepath.Join(xdg, "igwalker")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "igwalker")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "igwalker")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "igwalker")
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, ".igwalker")
	}

	return filepath.Join(dataDir, "igwalker.db"), nil
}
