// Package indexer orchestrates crawls across a set of roots as one background
// run.
package indexer

import (
	"context"
	"errors"
	"sync"
	"time"

	"findit/internal/crawler"
	"findit/internal/event"
	"findit/internal/storage"
)

// ErrScanInProgress is returned when attempting to start a run while one is
// already active.
var ErrScanInProgress = errors.New("scan already in progress")

// ErrNoMountPoints is returned by IndexAll when no enabled mount points are
// registered.
var ErrNoMountPoints = errors.New("no enabled mount points registered")

// ScanStatus summarizes the current or most recent indexing run.
type ScanStatus struct {
	Running           bool      `json:"running"`
	CurrentPath       string    `json:"currentPath"`
	Processed         int       `json:"processed"`
	Roots             []string  `json:"roots,omitempty"`
	StartedAt         time.Time `json:"startedAt"`
	FinishedAt        time.Time `json:"finishedAt"`
	LastSuccessfulRun time.Time `json:"lastSuccessfulRun"`
	Stopped           bool      `json:"stopped"`
	Error             string    `json:"error,omitempty"`
}

// Indexer runs the crawler sequentially over a set of roots. Roots are
// serialized, never parallel, to avoid write contention on the store. At most
// one run is in flight at a time.
type Indexer struct {
	store   storage.Store
	crawler *crawler.Crawler
	bus     *event.Bus

	statusMu sync.RWMutex
	status   ScanStatus

	scanMu     sync.Mutex
	scanCancel context.CancelFunc
}

// New constructs an Indexer publishing scan events to bus.
func New(store storage.Store, c *crawler.Crawler, bus *event.Bus) *Indexer {
	return &Indexer{store: store, crawler: c, bus: bus}
}

// IndexAll starts a run over every enabled registered mount point.
func (idx *Indexer) IndexAll(ctx context.Context) error {
	mountPoints, err := idx.store.ListMounts(ctx)
	if err != nil {
		return err
	}

	var paths []string
	for _, mount := range mountPoints {
		if mount.Enabled {
			paths = append(paths, mount.Path)
		}
	}
	if len(paths) == 0 {
		return ErrNoMountPoints
	}

	return idx.Start(ctx, paths)
}

// Start launches a background run over paths. Only one run may be active;
// starting while one is in flight returns ErrScanInProgress.
func (idx *Indexer) Start(ctx context.Context, paths []string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	idx.statusMu.Lock()
	if idx.status.Running {
		idx.statusMu.Unlock()
		return ErrScanInProgress
	}
	lastRun := idx.status.LastSuccessfulRun
	idx.status = ScanStatus{
		Running:           true,
		Roots:             paths,
		StartedAt:         time.Now(),
		LastSuccessfulRun: lastRun,
	}
	idx.statusMu.Unlock()

	scanCtx, cancel := context.WithCancel(ctx)

	idx.scanMu.Lock()
	idx.scanCancel = cancel
	idx.scanMu.Unlock()

	go idx.run(scanCtx, paths)
	return nil
}

// Stop cancels the in-flight run, if any. The crawler observes the
// cancellation at its per-directory and per-file check points; roots not yet
// started are skipped entirely.
func (idx *Indexer) Stop() {
	idx.scanMu.Lock()
	defer idx.scanMu.Unlock()
	if idx.scanCancel != nil {
		idx.scanCancel()
		idx.scanCancel = nil
	}
}

// Status returns a snapshot of the current or most recent run.
func (idx *Indexer) Status() ScanStatus {
	idx.statusMu.RLock()
	defer idx.statusMu.RUnlock()
	return idx.status
}

func (idx *Indexer) run(ctx context.Context, paths []string) {
	defer func() {
		idx.scanMu.Lock()
		idx.scanCancel = nil
		idx.scanMu.Unlock()
	}()

	var (
		total    int
		firstErr error
	)

	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}

		count, err := idx.crawler.Crawl(ctx, path, func(count int, currentDir string) {
			idx.updateStatus(func(status *ScanStatus) {
				status.Processed = total + count
				status.CurrentPath = currentDir
			})
			idx.bus.Publish(event.Event{
				Kind:  event.KindProgress,
				Count: total + count,
				Path:  currentDir,
			})
		})
		total += count

		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
			// One root's failed crawl never blocks the remaining roots.
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	stopped := ctx.Err() != nil
	finish := time.Now()

	idx.updateStatus(func(status *ScanStatus) {
		status.Running = false
		status.FinishedAt = finish
		status.Processed = total
		status.CurrentPath = ""
		status.Stopped = stopped
		if firstErr != nil {
			status.Error = firstErr.Error()
		}
		if !stopped && firstErr == nil {
			status.LastSuccessfulRun = finish
		}
	})

	kind := event.KindCompleted
	if stopped {
		kind = event.KindStopped
	}
	idx.bus.Publish(event.Event{Kind: kind, Count: total})
}

func (idx *Indexer) updateStatus(update func(*ScanStatus)) {
	idx.statusMu.Lock()
	update(&idx.status)
	idx.statusMu.Unlock()
}
