package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrReadOnly              = errors.New("index is read-only")
	ErrAuthorizationResolved = errors.New("authorization already resolved")
)

// SQLiteStorage is the media index: every photo and video the scanner found,
// plus the deletion authorizations waiting for a host decision.
type SQLiteStorage struct {
	db       *sql.DB
	readOnly bool
}

func NewSQLiteStorage(dbPath string, readOnly bool) (*SQLiteStorage, error) {
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	if readOnly {
		dsn = dbPath + "?_pragma=busy_timeout(5000)&_pragma=query_only(1)"
	} else {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStorage{db: db, readOnly: readOnly}

	if !readOnly {
		if err := s.migrate(); err != nil {
			db.Close()
			return nil, err
		}
	}

	return s, nil
}

func (s *SQLiteStorage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS media_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		path TEXT NOT NULL UNIQUE,
		folder TEXT NOT NULL DEFAULT '',
		kind INTEGER NOT NULL,
		size INTEGER,
		captured_at INTEGER,
		duration_ms INTEGER,
		file_modified_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_media_kind ON media_items(kind);
	CREATE INDEX IF NOT EXISTS idx_media_captured ON media_items(captured_at);

	CREATE TABLE IF NOT EXISTS deletion_authorizations (
		id TEXT PRIMARY KEY,
		locators TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		resolved_at DATETIME
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// CanDelete reports whether the index accepts deletions.
func (s *SQLiteStorage) CanDelete() bool {
	return !s.readOnly
}

// Media items

const mediaColumns = `id, name, folder, kind, size, captured_at, duration_ms, file_modified_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMediaItem(row rowScanner) (MediaItem, error) {
	var (
		m          MediaItem
		size       sql.NullInt64
		capturedAt sql.NullInt64
		durationMs sql.NullInt64
		modifiedAt sql.NullTime
	)
	if err := row.Scan(&m.ID, &m.Name, &m.Folder, &m.Kind, &size, &capturedAt, &durationMs, &modifiedAt); err != nil {
		return MediaItem{}, err
	}

	m.Locator = FormatLocator(m.Kind, m.ID)
	if size.Valid {
		v := size.Int64
		m.Size = &v
	}
	if capturedAt.Valid {
		t := time.UnixMilli(capturedAt.Int64)
		m.CapturedAt = &t
	}
	if durationMs.Valid && m.Kind == KindVideo {
		v := durationMs.Int64
		m.DurationMs = &v
	}
	if modifiedAt.Valid {
		m.ModifiedAt = modifiedAt.Time
	}

	return m, nil
}

// ListMedia returns every indexed item, newest capture first. Items without
// a capture time sort last.
func (s *SQLiteStorage) ListMedia(ctx context.Context) ([]MediaItem, error) {
	query := "SELECT " + mediaColumns + " FROM media_items ORDER BY captured_at IS NULL, captured_at DESC, id"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query media items: %w", err)
	}
	defer rows.Close()

	var items []MediaItem
	for rows.Next() {
		m, err := scanMediaItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan media item: %w", err)
		}
		items = append(items, m)
	}

	return items, rows.Err()
}

func (s *SQLiteStorage) GetMediaItem(ctx context.Context, id int64) (*MediaItem, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+mediaColumns+" FROM media_items WHERE id = ?", id)

	m, err := scanMediaItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &m, nil
}

// UpsertMediaItem inserts or refreshes an entry keyed by path. The id of an
// existing path never changes.
func (s *SQLiteStorage) UpsertMediaItem(ctx context.Context, e IndexEntry) (int64, error) {
	if s.readOnly {
		return 0, ErrReadOnly
	}

	var capturedAt, durationMs sql.NullInt64
	if e.CapturedAt != nil {
		capturedAt = sql.NullInt64{Int64: e.CapturedAt.UnixMilli(), Valid: true}
	}
	if e.DurationMs != nil {
		durationMs = sql.NullInt64{Int64: *e.DurationMs, Valid: true}
	}

	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO media_items (
			name, path, folder, kind, size, captured_at, duration_ms, file_modified_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			name = excluded.name,
			folder = excluded.folder,
			kind = excluded.kind,
			size = excluded.size,
			captured_at = excluded.captured_at,
			duration_ms = excluded.duration_ms,
			file_modified_at = excluded.file_modified_at,
			updated_at = excluded.updated_at
		RETURNING id
	`,
		e.Name, e.Path, e.Folder, int(e.Kind), e.Size, capturedAt, durationMs,
		e.ModifiedAt, time.Now(), time.Now(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert media item %s: %w", e.Path, err)
	}

	return id, nil
}

// GetAllMediaPaths returns all media file paths for cleanup
func (s *SQLiteStorage) GetAllMediaPaths(ctx context.Context) (map[int64]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, path FROM media_items")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	paths := make(map[int64]string)
	for rows.Next() {
		var id int64
		var path string
		if err := rows.Scan(&id, &path); err != nil {
			return nil, err
		}
		paths[id] = path
	}
	return paths, rows.Err()
}

// DeleteMediaItem removes a media item row by ID. The file is left alone.
func (s *SQLiteStorage) DeleteMediaItem(ctx context.Context, id int64) error {
	if s.readOnly {
		return ErrReadOnly
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM media_items WHERE id = ?", id)
	return err
}

// Locators

func (s *SQLiteStorage) pathFor(ctx context.Context, locator string) (int64, string, error) {
	_, id, err := ParseLocator(locator)
	if err != nil {
		return 0, "", err
	}

	var path string
	err = s.db.QueryRowContext(ctx, "SELECT path FROM media_items WHERE id = ?", id).Scan(&path)
	if err == sql.ErrNoRows {
		return 0, "", fmt.Errorf("%w: %s", ErrNotFound, locator)
	}
	if err != nil {
		return 0, "", err
	}

	return id, path, nil
}

// Locator resolves a media id to its access locator.
func (s *SQLiteStorage) Locator(ctx context.Context, id int64) (string, error) {
	var kind MediaKind
	err := s.db.QueryRowContext(ctx, "SELECT kind FROM media_items WHERE id = ?", id).Scan(&kind)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: media %d", ErrNotFound, id)
	}
	if err != nil {
		return "", err
	}
	return FormatLocator(kind, id), nil
}

// ResolvePath returns the filesystem path behind a locator.
func (s *SQLiteStorage) ResolvePath(ctx context.Context, locator string) (string, error) {
	_, path, err := s.pathFor(ctx, locator)
	return path, err
}

// Open returns the content behind a locator.
func (s *SQLiteStorage) Open(ctx context.Context, locator string) (io.ReadCloser, error) {
	_, path, err := s.pathFor(ctx, locator)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

// DeleteLocator removes the file and then its index row. A file that is
// already gone only loses its row. Reports whether a row was removed.
func (s *SQLiteStorage) DeleteLocator(ctx context.Context, locator string) (bool, error) {
	if s.readOnly {
		return false, ErrReadOnly
	}

	id, path, err := s.pathFor(ctx, locator)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("remove %s: %w", path, err)
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM media_items WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete media item %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

// Forget drops the index row behind a locator without touching the file.
func (s *SQLiteStorage) Forget(ctx context.Context, locator string) error {
	if s.readOnly {
		return ErrReadOnly
	}
	_, id, err := ParseLocator(locator)
	if err != nil {
		return err
	}
	return s.DeleteMediaItem(ctx, id)
}

// Deletion authorizations

func (s *SQLiteStorage) CreateDeletionAuthorization(ctx context.Context, locators []string) (*Authorization, error) {
	if s.readOnly {
		return nil, ErrReadOnly
	}
	if len(locators) == 0 {
		return nil, errors.New("authorization needs at least one locator")
	}

	encoded, err := json.Marshal(locators)
	if err != nil {
		return nil, err
	}

	auth := &Authorization{
		ID:        uuid.NewString(),
		Locators:  append([]string(nil), locators...),
		Status:    AuthorizationPending,
		CreatedAt: time.Now(),
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO deletion_authorizations (id, locators, status, created_at)
		VALUES (?, ?, ?, ?)
	`, auth.ID, string(encoded), string(auth.Status), auth.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create deletion authorization: %w", err)
	}

	return auth, nil
}

func (s *SQLiteStorage) GetAuthorization(ctx context.Context, id string) (*Authorization, error) {
	var (
		auth    Authorization
		encoded string
		status  string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, locators, status, created_at FROM deletion_authorizations WHERE id = ?
	`, id).Scan(&auth.ID, &encoded, &status, &auth.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: authorization %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(encoded), &auth.Locators); err != nil {
		return nil, fmt.Errorf("decode authorization %s: %w", id, err)
	}
	auth.Status = AuthorizationStatus(status)

	return &auth, nil
}

// CompleteAuthorization applies the host decision. An approved authorization
// deletes every locator it covers and returns the locators actually removed.
// The error is set only when nothing could be removed.
func (s *SQLiteStorage) CompleteAuthorization(ctx context.Context, id string, approved bool) ([]string, error) {
	auth, err := s.GetAuthorization(ctx, id)
	if err != nil {
		return nil, err
	}
	if auth.Status != AuthorizationPending {
		return nil, fmt.Errorf("%w: %s is %s", ErrAuthorizationResolved, id, auth.Status)
	}

	status := AuthorizationCancelled
	var (
		deleted  []string
		firstErr error
	)
	if approved {
		status = AuthorizationApproved
		for _, locator := range auth.Locators {
			ok, err := s.DeleteLocator(ctx, locator)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			if ok {
				deleted = append(deleted, locator)
			}
		}
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE deletion_authorizations SET status = ?, resolved_at = ? WHERE id = ?
	`, string(status), time.Now(), id)
	if err != nil {
		return deleted, fmt.Errorf("update authorization %s: %w", id, err)
	}

	if len(deleted) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return deleted, nil
}

// PrunePaths removes the rows for ids whose files vanished from disk.
func (s *SQLiteStorage) PrunePaths(ctx context.Context, ids []int64) (int, error) {
	if s.readOnly {
		return 0, ErrReadOnly
	}
	pruned := 0
	for _, id := range ids {
		res, err := s.db.ExecContext(ctx, "DELETE FROM media_items WHERE id = ?", id)
		if err != nil {
			return pruned, fmt.Errorf("prune media item %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			pruned++
		}
	}
	return pruned, nil
}
