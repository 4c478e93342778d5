package storage

import (
	"context"
	"time"
)

// Entry represents one indexed file or directory.
type Entry struct {
	Path           string    `json:"path"`
	Name           string    `json:"name"`
	Extension      string    `json:"extension,omitempty"`
	Size           int64     `json:"size"`
	Modified       time.Time `json:"modified"`
	IsDir          bool      `json:"isDirectory"`
	FilesystemType string    `json:"filesystemType"`
	IndexedAt      time.Time `json:"indexedAt"`
}

// MountPoint is a registered root eligible for indexing.
type MountPoint struct {
	Path           string    `json:"path"`
	FilesystemType string    `json:"filesystemType"`
	LastIndexed    time.Time `json:"lastIndexed"`
	Enabled        bool      `json:"enabled"`
}

// Stats summarizes the indexed corpus.
type Stats struct {
	Files       int64 `json:"files"`
	Directories int64 `json:"directories"`
	TotalSize   int64 `json:"totalSize"`
}

// TypeFilter narrows a query to files, directories, or both.
type TypeFilter string

const (
	TypeAll     TypeFilter = "all"
	TypeFiles   TypeFilter = "files"
	TypeFolders TypeFilter = "folders"
)

// Query describes an indexed lookup pushed down to a Store.
//
// An empty Substring applies no text predicate; the remaining filters and the
// limit still apply, which is how regex candidate sets are fetched.
type Query struct {
	Substring  string
	MatchCase  bool
	SearchPath bool
	Type       TypeFilter
	Location   string
	Limit      int
}

// Store is the persistence boundary shared by the crawler, the search engine,
// and the mount registry. Implementations must be safe for concurrent use and
// must keep write transactions bounded so readers are never starved.
type Store interface {
	// PurgeUnderRoot deletes every entry whose path equals root or lives
	// beneath it. Called before a crawl so the post-crawl entry set exactly
	// mirrors disk state under that root.
	PurgeUnderRoot(ctx context.Context, root string) error

	// InsertBatch appends entries inside a single transaction. A failure
	// rolls back only this batch; prior commits stay intact.
	InsertBatch(ctx context.Context, entries []Entry) error

	// Query returns entries matching q, ordered directories first then name
	// ascending (case-insensitive), capped at q.Limit.
	Query(ctx context.Context, q Query) ([]Entry, error)

	// Stats reports file count, directory count, and total file size.
	Stats(ctx context.Context) (Stats, error)

	// UpsertMount inserts or replaces a mount point by its unique path.
	UpsertMount(ctx context.Context, path, fsType string, enabled bool) error

	// ListMounts returns every registered mount point.
	ListMounts(ctx context.Context) ([]MountPoint, error)

	// SetMountEnabled toggles a mount point without triggering a crawl.
	SetMountEnabled(ctx context.Context, path string, enabled bool) error

	// TouchMountIndexed records when a root was last fully indexed. It is a
	// no-op for paths that are not registered mounts.
	TouchMountIndexed(ctx context.Context, path string, when time.Time) error

	Close() error
}
