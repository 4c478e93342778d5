package sqlite

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

	_ "modernc.org/sqlite"
)

// Store persists file metadata inside a SQLite database.
type Store struct {
	db *sql.DB
}

// Open initializes (or reuses) a SQLite database at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("database path cannot be empty")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
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
        path TEXT NOT NULL,
        filename TEXT NOT NULL,
        extension TEXT,
        size INTEGER NOT NULL DEFAULT 0,
        modified INTEGER NOT NULL,
        is_directory INTEGER NOT NULL,
        filesystem_type TEXT,
        indexed_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_files_filename ON files(filename COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_files_path ON files(path COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_files_extension ON files(extension);

CREATE TABLE IF NOT EXISTS mount_points (
        path TEXT PRIMARY KEY,
        filesystem_type TEXT,
        last_indexed INTEGER NOT NULL DEFAULT 0,
        enabled INTEGER NOT NULL DEFAULT 1
);
`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	return nil
}

// PurgeUnderRoot removes every entry at or beneath root. The two-armed
// predicate keeps sibling roots intact: purging /data must not touch /database.
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
		isDir := 0
		if entry.IsDir {
			isDir = 1
		}
		if _, err := stmt.ExecContext(ctx,
			entry.Path, entry.Name, entry.Extension, entry.Size,
			entry.Modified.Unix(), isDir, entry.FilesystemType, entry.IndexedAt.Unix(),
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

// Query returns entries matching q, ordered directories first then filename
// ascending with case-insensitive collation.
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
			conditions = append(conditions, "instr("+column+", ?) > 0")
			args = append(args, q.Substring)
		} else {
			conditions = append(conditions, column+` LIKE ? ESCAPE '\'`)
			args = append(args, "%"+escapeLike(q.Substring)+"%")
		}
	}

	switch q.Type {
	case storage.TypeFiles:
		conditions = append(conditions, "is_directory = 0")
	case storage.TypeFolders:
		conditions = append(conditions, "is_directory = 1")
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
	query += " ORDER BY is_directory DESC, filename COLLATE NOCASE ASC"
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
        COUNT(CASE WHEN is_directory = 0 THEN 1 END),
        COUNT(CASE WHEN is_directory = 1 THEN 1 END),
        COALESCE(SUM(CASE WHEN is_directory = 0 THEN size END), 0)
FROM files`)
	if err := row.Scan(&stats.Files, &stats.Directories, &stats.TotalSize); err != nil {
		return storage.Stats{}, fmt.Errorf("query stats: %w", err)
	}

	return stats, nil
}

// UpsertMount inserts or replaces a mount point by its unique path.
func (s *Store) UpsertMount(ctx context.Context, path, fsType string, enabled bool) error {
	enabledInt := 0
	if enabled {
		enabledInt = 1
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO mount_points(path, filesystem_type, enabled)
VALUES(?, ?, ?)
ON CONFLICT(path) DO UPDATE SET
        filesystem_type=excluded.filesystem_type,
        enabled=excluded.enabled
`, path, fsType, enabledInt)
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
			lastIndexed int64
			enabled     int
		)
		if scanErr := rows.Scan(&mount.Path, &mount.FilesystemType, &lastIndexed, &enabled); scanErr != nil {
			return nil, fmt.Errorf("scan mount point: %w", scanErr)
		}
		if lastIndexed > 0 {
			mount.LastIndexed = time.Unix(lastIndexed, 0)
		}
		mount.Enabled = enabled != 0
		mounts = append(mounts, mount)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mount points: %w", err)
	}
	return mounts, nil
}

// SetMountEnabled toggles a mount point without triggering a crawl.
func (s *Store) SetMountEnabled(ctx context.Context, path string, enabled bool) error {
	enabledInt := 0
	if enabled {
		enabledInt = 1
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE mount_points SET enabled = ? WHERE path = ?`, enabledInt, path); err != nil {
		return fmt.Errorf("set mount point %s enabled: %w", path, err)
	}
	return nil
}

// TouchMountIndexed records a completed crawl of path. Unregistered paths are
// left alone.
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
			isDir     int
		)
		if err := rows.Scan(&entry.Path, &entry.Name, &extension, &entry.Size,
			&modified, &isDir, &fsType, &indexedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entry.Extension = extension.String
		entry.FilesystemType = fsType.String
		entry.Modified = time.Unix(modified, 0)
		entry.IndexedAt = time.Unix(indexedAt, 0)
		entry.IsDir = isDir != 0
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// escapeLike neutralizes LIKE metacharacters so user input always matches
// literally.
func escapeLike(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(s)
}
