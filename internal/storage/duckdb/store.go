// Package duckdb provides the accelerated storage backend. It is selected via
// the "backend" configuration key and implements the same storage.Store
// contract as the default SQLite backend, trading a heavier driver for faster
// bulk ingestion and analytical queries.
package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"findit/internal/storage"

	_ "github.com/marcboeker/go-duckdb/v2"
)

// Store persists file metadata inside a DuckDB database.
type Store struct {
	db *sql.DB
}

// Open initializes (or reuses) a DuckDB database at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("database path cannot be empty")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Close releases the underlying database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS files (
        path VARCHAR NOT NULL,
        filename VARCHAR NOT NULL,
        extension VARCHAR,
        size BIGINT NOT NULL DEFAULT 0,
        modified BIGINT NOT NULL,
        is_directory BOOLEAN NOT NULL,
        filesystem_type VARCHAR,
        indexed_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_files_filename ON files(filename);
CREATE INDEX IF NOT EXISTS idx_files_path ON files(path);
CREATE INDEX IF NOT EXISTS idx_files_extension ON files(extension);

CREATE TABLE IF NOT EXISTS mount_points (
        path VARCHAR PRIMARY KEY,
        filesystem_type VARCHAR,
        last_indexed BIGINT NOT NULL DEFAULT 0,
        enabled BOOLEAN NOT NULL DEFAULT true
);
`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	return nil
}

// PurgeUnderRoot removes every entry at or beneath root.
func (s *Store) PurgeUnderRoot(ctx context.Context, root string) error {
	prefix := escapeLike(strings.TrimSuffix(root, "/")) + "/%"
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM files WHERE path = ? OR path LIKE ? ESCAPE '\'`,
		root, prefix)
	if err != nil {
		return fmt.Errorf("purge entries under %s: %w", root, err)
	}
	return nil
}

// InsertBatch writes entries inside a single transaction.
func (s *Store) InsertBatch(ctx context.Context, entries []storage.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO files (path, filename, extension, size, modified, is_directory, filesystem_type, indexed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare batch insert: %w", err)
	}
	defer stmt.Close()

	for _, entry := range entries {
		if _, err := stmt.ExecContext(ctx,
			entry.Path, entry.Name, entry.Extension, entry.Size,
			entry.Modified.Unix(), entry.IsDir, entry.FilesystemType, entry.IndexedAt.Unix(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert entry %s: %w", entry.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Query returns entries matching q. DuckDB's LIKE is case-sensitive, so the
// case-insensitive literal path uses ILIKE instead of a NOCASE collation.
func (s *Store) Query(ctx context.Context, q storage.Query) ([]storage.Entry, error) {
	var (
		conditions []string
		args       []any
	)

	if q.Substring != "" {
		column := "filename"
		if q.SearchPath {
			column = "path"
		}
		if q.MatchCase {
			conditions = append(conditions, "strpos("+column+", ?) > 0")
			args = append(args, q.Substring)
		} else {
			conditions = append(conditions, column+` ILIKE ? ESCAPE '\'`)
			args = append(args, "%"+escapeLike(q.Substring)+"%")
		}
	}

	switch q.Type {
	case storage.TypeFiles:
		conditions = append(conditions, "NOT is_directory")
	case storage.TypeFolders:
		conditions = append(conditions, "is_directory")
	}

	if q.Location != "" {
		prefix := escapeLike(strings.TrimSuffix(q.Location, "/")) + "/%"
		conditions = append(conditions, `(path = ? OR path LIKE ? ESCAPE '\')`)
		args = append(args, q.Location, prefix)
	}

	query := `SELECT path, filename, extension, size, modified, is_directory, filesystem_type, indexed_at FROM files`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY is_directory DESC, lower(filename) ASC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Stats reports file count, directory count, and total file size.
func (s *Store) Stats(ctx context.Context) (storage.Stats, error) {
	var stats storage.Stats

	row := s.db.QueryRowContext(ctx, `
SELECT
        COUNT(CASE WHEN NOT is_directory THEN 1 END),
        COUNT(CASE WHEN is_directory THEN 1 END),
        COALESCE(SUM(CASE WHEN NOT is_directory THEN size END), 0)
FROM files`)
	if err := row.Scan(&stats.Files, &stats.Directories, &stats.TotalSize); err != nil {
		return storage.Stats{}, fmt.Errorf("query stats: %w", err)
	}

	return stats, nil
}

// UpsertMount inserts or replaces a mount point by its unique path.
func (s *Store) UpsertMount(ctx context.Context, path, fsType string, enabled bool) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO mount_points(path, filesystem_type, enabled)
VALUES(?, ?, ?)
ON CONFLICT(path) DO UPDATE SET
        filesystem_type=excluded.filesystem_type,
        enabled=excluded.enabled
`, path, fsType, enabled)
	if err != nil {
		return fmt.Errorf("upsert mount point %s: %w", path, err)
	}
	return nil
}

// ListMounts returns every registered mount point.
func (s *Store) ListMounts(ctx context.Context) ([]storage.MountPoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, filesystem_type, last_indexed, enabled FROM mount_points ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("query mount points: %w", err)
	}
	defer rows.Close()

	var mounts []storage.MountPoint
	for rows.Next() {
		var (
			mount       storage.MountPoint
			fsType      sql.NullString
			lastIndexed int64
		)
		if scanErr := rows.Scan(&mount.Path, &fsType, &lastIndexed, &mount.Enabled); scanErr != nil {
			return nil, fmt.Errorf("scan mount point: %w", scanErr)
		}
		mount.FilesystemType = fsType.String
		if lastIndexed > 0 {
			mount.LastIndexed = time.Unix(lastIndexed, 0)
		}
		mounts = append(mounts, mount)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mount points: %w", err)
	}
	return mounts, nil
}

// SetMountEnabled toggles a mount point without triggering a crawl.
func (s *Store) SetMountEnabled(ctx context.Context, path string, enabled bool) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE mount_points SET enabled = ? WHERE path = ?`, enabled, path); err != nil {
		return fmt.Errorf("set mount point %s enabled: %w", path, err)
	}
	return nil
}

// TouchMountIndexed records a completed crawl of path.
func (s *Store) TouchMountIndexed(ctx context.Context, path string, when time.Time) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE mount_points SET last_indexed = ? WHERE path = ?`, when.Unix(), path); err != nil {
		return fmt.Errorf("touch mount point %s: %w", path, err)
	}
	return nil
}

func scanEntries(rows *sql.Rows) ([]storage.Entry, error) {
	var entries []storage.Entry
	for rows.Next() {
		var (
			entry     storage.Entry
			extension sql.NullString
			fsType    sql.NullString
			modified  int64
			indexedAt int64
		)
		if err := rows.Scan(&entry.Path, &entry.Name, &extension, &entry.Size,
			&modified, &entry.IsDir, &fsType, &indexedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entry.Extension = extension.String
		entry.FilesystemType = fsType.String
		entry.Modified = time.Unix(modified, 0)
		entry.IndexedAt = time.Unix(indexedAt, 0)
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

func escapeLike(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(s)
}
