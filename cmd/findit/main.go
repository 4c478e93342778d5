package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"

	"findit/internal/app"
	"findit/internal/config"
	"findit/internal/event"
	"findit/internal/indexer"
	"findit/internal/mounts"
	"findit/internal/search"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	var (
		indexMode  = flag.Bool("index", false, "index all enabled mount points and exit")
		searchTerm = flag.String("search", "", "run a one-shot search and exit")
		regexMode  = flag.Bool("regex", false, "treat the search term as a regular expression")
		matchCase  = flag.Bool("match-case", false, "case-sensitive search")
		statsMode  = flag.Bool("stats", false, "print index statistics and exit")
		addPath    = flag.String("add", "", "register a path as an indexing root and exit")
		listMounts = flag.Bool("mounts", false, "list registered mount points and exit")
	)

	cfg, err := config.FromFlags()
	if err != nil {
		log.Fatalf("parse config: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("initialize app: %v", err)
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *addPath != "":
		err = registerMount(ctx, application, *addPath)
	case *listMounts:
		err = printMounts(ctx, application)
	case *statsMode:
		err = printStats(ctx, application)
	case *searchTerm != "":
		err = runSearch(ctx, application, cfg, *searchTerm, *regexMode, *matchCase)
	case *indexMode:
		err = runIndex(ctx, application)
	default:
		err = application.Run(ctx)
	}
	if err != nil {
		log.Fatalf("application error: %v", err)
	}
}

func registerMount(ctx context.Context, application *app.App, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("inspect %s: %w", path, err)
	}

	fsType := mounts.DetectFilesystem(ctx, path)
	if err := application.Store().UpsertMount(ctx, path, fsType, true); err != nil {
		return err
	}
	fmt.Printf("registered %s (filesystem: %s)\n", path, fsType)
	return nil
}

func printMounts(ctx context.Context, application *app.App) error {
	mountPoints, err := application.Store().ListMounts(ctx)
	if err != nil {
		return err
	}
	if len(mountPoints) == 0 {
		fmt.Println("no mount points registered")
		return nil
	}

	for _, mount := range mountPoints {
		state := "enabled"
		if !mount.Enabled {
			state = "disabled"
		}
		lastIndexed := "never"
		if !mount.LastIndexed.IsZero() {
			lastIndexed = humanize.Time(mount.LastIndexed)
		}
		fmt.Printf("%s\t%s\t%s\tindexed %s\n", mount.Path, mount.FilesystemType, state, lastIndexed)
	}
	return nil
}

func printStats(ctx context.Context, application *app.App) error {
	stats, err := application.Store().Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("files: %s | folders: %s | total: %s\n",
		humanize.Comma(stats.Files),
		humanize.Comma(stats.Directories),
		humanize.IBytes(uint64(stats.TotalSize)))
	return nil
}

func runSearch(ctx context.Context, application *app.App, cfg config.Config, term string, regexMode, matchCase bool) error {
	results, err := application.SearchEngine().Search(ctx, search.Request{
		Query:      term,
		Regex:      regexMode,
		MatchCase:  matchCase,
		MaxResults: cfg.MaxResults,
	})
	if err != nil {
		return err
	}

	for _, entry := range results {
		kind := "file"
		if entry.IsDir {
			kind = "dir"
		}
		fmt.Printf("%s\t%s\t%s\n", kind, humanize.IBytes(uint64(entry.Size)), entry.Path)
	}
	fmt.Fprintf(os.Stderr, "%d results\n", len(results))
	return nil
}

func runIndex(ctx context.Context, application *app.App) error {
	events := application.Events().Subscribe()
	defer application.Events().Unsubscribe(events)

	if err := application.Indexer().IndexAll(ctx); err != nil {
		if errors.Is(err, indexer.ErrNoMountPoints) {
			return fmt.Errorf("no mount points configured; register one with -add first")
		}
		return err
	}

	for {
		select {
		case <-ctx.Done():
			// First interrupt stops the run; the terminal event still
			// arrives once the in-flight batch has been committed.
			application.Indexer().Stop()
			ctx = context.Background()
		case ev := <-events:
			switch ev.Kind {
			case event.KindProgress:
				log.Printf("indexed %s files... current: %s", humanize.Comma(int64(ev.Count)), ev.Path)
			case event.KindCompleted:
				log.Printf("indexing complete: %s files", humanize.Comma(int64(ev.Count)))
				return nil
			case event.KindStopped:
				log.Printf("indexing stopped: %s files committed", humanize.Comma(int64(ev.Count)))
				return nil
			}
		}
	}
}
