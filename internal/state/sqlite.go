package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/leapstack-labs/leapview/pkg/navigation"
)

// ErrNotOpen is returned when the store is used before Open.
var ErrNotOpen = errors.New("database not opened")

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite state store instance.
func NewSQLiteStore(logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{logger: logger}
}

// OpenStore opens the store at path and applies migrations.
func OpenStore(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStore, error) {
	s := NewSQLiteStore(logger)
	if err := s.Open(ctx, path); err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Open opens a connection to the SQLite database, creating parent
// directories as needed. Use ":memory:" for an in-memory database.
func (s *SQLiteStore) Open(ctx context.Context, path string) error {
	dsn := ":memory:?_pragma=foreign_keys(1)"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
		dsn = path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// Path returns the database path the store was opened with.
func (s *SQLiteStore) Path() string { return s.path }

// Timestamps are stored as unix milliseconds.
func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// generateID creates a new UUID.
func generateID() string {
	return uuid.New().String()
}

// --- Dataset operations ---

// SaveDataset inserts d, or updates the dataset with the same name. ID and
// CreatedAt are filled in on insert.
func (s *SQLiteStore) SaveDataset(ctx context.Context, d *Dataset) error {
	if s.db == nil {
		return ErrNotOpen
	}
	files, err := json.Marshal(d.Files)
	if err != nil {
		return fmt.Errorf("failed to encode files: %w", err)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	if d.ID == "" {
		d.ID = generateID()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	var created int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO datasets (id, name, kind, files, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			kind = excluded.kind,
			files = excluded.files,
			updated_at = excluded.updated_at
		RETURNING id, created_at`,
		d.ID, d.Name, string(d.Kind), string(files), toMillis(d.CreatedAt), toMillis(d.UpdatedAt),
	).Scan(&d.ID, &created)
	if err != nil {
		return fmt.Errorf("failed to save dataset %s: %w", d.Name, err)
	}
	d.CreatedAt = fromMillis(created)
	return nil
}

const datasetColumns = `id, name, kind, files, created_at, updated_at, opened_at`

type rowScanner interface{ Scan(dest ...any) error }

func scanDataset(row rowScanner) (*Dataset, error) {
	var (
		d                Dataset
		kind             string
		files            string
		created, updated int64
		openedAt         sql.NullInt64
	)
	if err := row.Scan(&d.ID, &d.Name, &kind, &files, &created, &updated, &openedAt); err != nil {
		return nil, err
	}
	d.CreatedAt = fromMillis(created)
	d.UpdatedAt = fromMillis(updated)
	d.Kind = DatasetKind(kind)
	if err := json.Unmarshal([]byte(files), &d.Files); err != nil {
		return nil, fmt.Errorf("failed to decode files of %s: %w", d.Name, err)
	}
	if openedAt.Valid {
		t := fromMillis(openedAt.Int64)
		d.OpenedAt = &t
	}
	return &d, nil
}

// GetDataset retrieves a dataset by name.
func (s *SQLiteStore) GetDataset(ctx context.Context, name string) (*Dataset, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}
	d, err := scanDataset(s.db.QueryRowContext(ctx,
		`SELECT `+datasetColumns+` FROM datasets WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("dataset %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset: %w", err)
	}
	return d, nil
}

// ListDatasets returns all datasets, most recently opened first.
func (s *SQLiteStore) ListDatasets(ctx context.Context) ([]*Dataset, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+datasetColumns+` FROM datasets ORDER BY COALESCE(opened_at, updated_at) DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Dataset
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dataset: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteDataset removes a dataset and its bookmarks.
func (s *SQLiteStore) DeleteDataset(ctx context.Context, name string) error {
	if s.db == nil {
		return ErrNotOpen
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM datasets WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete dataset: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("dataset %s: %w", name, ErrNotFound)
	}
	return nil
}

// MarkOpened records that the dataset was just opened.
func (s *SQLiteStore) MarkOpened(ctx context.Context, id string) error {
	if s.db == nil {
		return ErrNotOpen
	}
	_, err := s.db.ExecContext(ctx, `UPDATE datasets SET opened_at = ? WHERE id = ?`, toMillis(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to mark dataset opened: %w", err)
	}
	return nil
}

// --- Bookmark operations ---

// SaveBookmark inserts b or replaces the bookmark with the same name in
// the same dataset.
func (s *SQLiteStore) SaveBookmark(ctx context.Context, b *Bookmark) error {
	if s.db == nil {
		return ErrNotOpen
	}
	pos, err := json.Marshal(b.Position)
	if err != nil {
		return fmt.Errorf("failed to encode position: %w", err)
	}
	var end sql.NullString
	if b.RangeEnd != nil {
		raw, err := json.Marshal(b.RangeEnd)
		if err != nil {
			return fmt.Errorf("failed to encode range end: %w", err)
		}
		end = sql.NullString{String: string(raw), Valid: true}
	}
	if b.ID == "" {
		b.ID = generateID()
	}
	b.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO bookmarks (id, dataset_id, name, position, range_end, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(dataset_id, name) DO UPDATE SET
			position = excluded.position,
			range_end = excluded.range_end,
			created_at = excluded.created_at
		RETURNING id`,
		b.ID, b.DatasetID, b.Name, string(pos), end, toMillis(b.CreatedAt),
	).Scan(&b.ID)
	if err != nil {
		return fmt.Errorf("failed to save bookmark %s: %w", b.Name, err)
	}
	return nil
}

func scanBookmark(row rowScanner) (*Bookmark, error) {
	var (
		b       Bookmark
		pos     string
		end     sql.NullString
		created int64
	)
	if err := row.Scan(&b.ID, &b.DatasetID, &b.Name, &pos, &end, &created); err != nil {
		return nil, err
	}
	b.CreatedAt = fromMillis(created)
	if err := json.Unmarshal([]byte(pos), &b.Position); err != nil {
		return nil, fmt.Errorf("failed to decode position of %s: %w", b.Name, err)
	}
	if end.Valid {
		var p navigation.Position
		if err := json.Unmarshal([]byte(end.String), &p); err != nil {
			return nil, fmt.Errorf("failed to decode range end of %s: %w", b.Name, err)
		}
		b.RangeEnd = &p
	}
	return &b, nil
}

const bookmarkColumns = `id, dataset_id, name, position, range_end, created_at`

// ListBookmarks returns the bookmarks of a dataset ordered by name.
func (s *SQLiteStore) ListBookmarks(ctx context.Context, datasetID string) ([]*Bookmark, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+bookmarkColumns+` FROM bookmarks WHERE dataset_id = ? ORDER BY name`, datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookmarks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Bookmark
	for rows.Next() {
		b, err := scanBookmark(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bookmark: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// GetBookmark retrieves one bookmark.
func (s *SQLiteStore) GetBookmark(ctx context.Context, datasetID, name string) (*Bookmark, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}
	b, err := scanBookmark(s.db.QueryRowContext(ctx,
		`SELECT `+bookmarkColumns+` FROM bookmarks WHERE dataset_id = ? AND name = ?`, datasetID, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bookmark %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bookmark: %w", err)
	}
	return b, nil
}

// DeleteBookmark removes one bookmark.
func (s *SQLiteStore) DeleteBookmark(ctx context.Context, datasetID, name string) error {
	if s.db == nil {
		return ErrNotOpen
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM bookmarks WHERE dataset_id = ? AND name = ?`, datasetID, name)
	if err != nil {
		return fmt.Errorf("failed to delete bookmark: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("bookmark %s: %w", name, ErrNotFound)
	}
	return nil
}

// SaveLastPosition stores pos under LastPositionBookmark.
func (s *SQLiteStore) SaveLastPosition(ctx context.Context, datasetID string, pos navigation.Position) error {
	return s.SaveBookmark(ctx, &Bookmark{DatasetID: datasetID, Name: LastPositionBookmark, Position: pos})
}

// LastPosition returns the position stored by SaveLastPosition.
func (s *SQLiteStore) LastPosition(ctx context.Context, datasetID string) (navigation.Position, bool, error) {
	b, err := s.GetBookmark(ctx, datasetID, LastPositionBookmark)
	if errors.Is(err, ErrNotFound) {
		return navigation.Position{}, false, nil
	}
	if err != nil {
		return navigation.Position{}, false, err
	}
	return b.Position, true, nil
}
