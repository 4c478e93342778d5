// Package crawler walks a filesystem root and indexes its metadata into the
// store in bounded transactions.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"findit/internal/mounts"
	"findit/internal/storage"
)

const (
	defaultBatchSize     = 1000
	defaultProgressEvery = 1000
)

// ProgressFunc receives the running indexed-file count and the directory being
// walked. It is invoked in crawl order, never concurrently, and only after the
// covering batch has been durably committed.
type ProgressFunc func(count int, currentDir string)

// Detector resolves the filesystem type of a path.
type Detector func(ctx context.Context, path string) string

// Options tunes a Crawler. Zero values fall back to defaults.
type Options struct {
	// BatchSize bounds how many entries one insert transaction carries.
	BatchSize int

	// ProgressEvery is the progress reporting interval in indexed files.
	ProgressEvery int

	// AllowDotDirs lists hidden directory names that are still descended
	// into. Everything else starting with "." is pruned.
	AllowDotDirs []string

	// Detect overrides filesystem-type detection, mainly for tests.
	Detect Detector
}

// Crawler indexes one root at a time into a storage.Store.
type Crawler struct {
	store         storage.Store
	detect        Detector
	batchSize     int
	progressEvery int
	allowDotDirs  map[string]struct{}
}

// New constructs a Crawler writing through the provided store.
func New(store storage.Store, opts Options) *Crawler {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = defaultProgressEvery
	}
	if opts.AllowDotDirs == nil {
		opts.AllowDotDirs = []string{".local", ".config"}
	}
	if opts.Detect == nil {
		opts.Detect = mounts.DetectFilesystem
	}

	allowed := make(map[string]struct{}, len(opts.AllowDotDirs))
	for _, name := range opts.AllowDotDirs {
		allowed[name] = struct{}{}
	}

	return &Crawler{
		store:         store,
		detect:        opts.Detect,
		batchSize:     opts.BatchSize,
		progressEvery: opts.ProgressEvery,
		allowDotDirs:  allowed,
	}
}

// Crawl purges root's previous entry set and re-indexes it, returning the
// number of files indexed. Per-entry I/O failures are skipped. Cancellation is
// polled before each directory and each file; on cancellation the in-flight
// batch is still committed, the partial count is returned together with the
// context error, and the mount's last-indexed timestamp is left untouched.
func (c *Crawler) Crawl(ctx context.Context, root string, onProgress ProgressFunc) (int, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return 0, fmt.Errorf("resolve root %q: %w", root, err)
	}
	root = filepath.Clean(abs)

	fsType := c.detect(ctx, root)

	if err := c.store.PurgeUnderRoot(ctx, root); err != nil {
		return 0, fmt.Errorf("purge root %s: %w", root, err)
	}

	run := &crawlRun{
		crawler: c,
		// Batch commits are never interrupted mid-transaction: an open
		// transaction always finishes, and the tail batch is committed
		// even after cancellation.
		writeCtx:   context.WithoutCancel(ctx),
		fsType:     fsType,
		onProgress: onProgress,
		nextReport: c.progressEvery,
		currentDir: root,
	}

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable directory or entry that vanished mid-listing.
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if d.IsDir() {
			if path == root {
				return nil
			}
			if name := d.Name(); strings.HasPrefix(name, ".") {
				if _, ok := c.allowDotDirs[name]; !ok {
					return fs.SkipDir
				}
			}
			run.currentDir = filepath.Dir(path)
			return run.addDir(path, d)
		}

		run.currentDir = filepath.Dir(path)
		return run.addFile(path, d)
	})

	canceled := errors.Is(walkErr, context.Canceled) || errors.Is(walkErr, context.DeadlineExceeded)
	if walkErr != nil && !canceled {
		return run.filesIndexed, walkErr
	}

	// Preserve partial progress: the tail batch is committed even when the
	// crawl was cancelled.
	if err := run.flush(); err != nil {
		return run.filesIndexed, err
	}

	if canceled {
		return run.filesIndexed, walkErr
	}

	if err := c.store.TouchMountIndexed(ctx, root, time.Now()); err != nil {
		return run.filesIndexed, fmt.Errorf("record completed crawl of %s: %w", root, err)
	}
	return run.filesIndexed, nil
}

// crawlRun carries the mutable state of one Crawl invocation.
type crawlRun struct {
	crawler      *Crawler
	writeCtx     context.Context
	fsType       string
	onProgress   ProgressFunc
	batch        []storage.Entry
	filesIndexed int
	nextReport   int
	currentDir   string
}

func (r *crawlRun) addDir(path string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		// Still descend; only the directory's own row is lost.
		return nil
	}
	r.batch = append(r.batch, storage.Entry{
		Path:           path,
		Name:           d.Name(),
		Size:           0,
		Modified:       info.ModTime(),
		IsDir:          true,
		FilesystemType: r.fsType,
		IndexedAt:      time.Now(),
	})
	return r.flushIfFull()
}

func (r *crawlRun) addFile(path string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return nil
	}
	r.batch = append(r.batch, storage.Entry{
		Path:           path,
		Name:           d.Name(),
		Extension:      strings.ToLower(filepath.Ext(d.Name())),
		Size:           info.Size(),
		Modified:       info.ModTime(),
		IsDir:          false,
		FilesystemType: r.fsType,
		IndexedAt:      time.Now(),
	})
	r.filesIndexed++
	return r.flushIfFull()
}

func (r *crawlRun) flushIfFull() error {
	if len(r.batch) < r.crawler.batchSize {
		return nil
	}
	return r.flush()
}

// flush commits the in-memory batch and, once it is durable, delivers any
// pending progress report.
func (r *crawlRun) flush() error {
	if len(r.batch) > 0 {
		if err := r.crawler.store.InsertBatch(r.writeCtx, r.batch); err != nil {
			return fmt.Errorf("commit batch of %d entries: %w", len(r.batch), err)
		}
		r.batch = r.batch[:0]
	}

	if r.onProgress != nil && r.filesIndexed >= r.nextReport {
		r.onProgress(r.filesIndexed, r.currentDir)
		for r.nextReport <= r.filesIndexed {
			r.nextReport += r.crawler.progressEvery
		}
	}
	return nil
}
