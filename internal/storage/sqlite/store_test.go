package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"findit/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "fileindex.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func entry(path string, isDir bool, size int64) storage.Entry {
	name := filepath.Base(path)
	ext := ""
	if !isDir {
		ext = filepath.Ext(name)
	}
	return storage.Entry{
		Path:           path,
		Name:           name,
		Extension:      ext,
		Size:           size,
		Modified:       time.Now(),
		IsDir:          isDir,
		FilesystemType: "ext4",
		IndexedAt:      time.Now(),
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fileindex.db")

	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("   ")
	require.Error(t, err)
}

func TestQueryOrderingAndLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertBatch(ctx, []storage.Entry{
		entry("/data/zebra.txt", false, 5),
		entry("/data/Apple.txt", false, 5),
		entry("/data/sub", true, 0),
		entry("/data/banana.txt", false, 5),
	}))

	results, err := store.Query(ctx, storage.Query{Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 4)

	// Directories first, then names ascending case-insensitively.
	require.Equal(t, "sub", results[0].Name)
	require.True(t, results[0].IsDir)
	require.Equal(t, "Apple.txt", results[1].Name)
	require.Equal(t, "banana.txt", results[2].Name)
	require.Equal(t, "zebra.txt", results[3].Name)

	capped, err := store.Query(ctx, storage.Query{Limit: 2})
	require.NoError(t, err)
	require.Len(t, capped, 2)
}

func TestQueryLiteralCaseSensitivity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertBatch(ctx, []storage.Entry{
		entry("/data/a.txt", false, 10),
		entry("/data/B.txt", false, 20),
	}))

	insensitive, err := store.Query(ctx, storage.Query{Substring: "txt", Limit: 10})
	require.NoError(t, err)
	require.Len(t, insensitive, 2)
	require.Equal(t, "a.txt", insensitive[0].Name)
	require.Equal(t, "B.txt", insensitive[1].Name)

	sensitive, err := store.Query(ctx, storage.Query{Substring: "TXT", MatchCase: true, Limit: 10})
	require.NoError(t, err)
	require.Empty(t, sensitive)
}

func TestQueryEscapesLikeMetacharacters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertBatch(ctx, []storage.Entry{
		entry("/data/report 100%.txt", false, 1),
		entry("/data/report 100x.txt", false, 1),
		entry("/data/a_b.txt", false, 1),
		entry("/data/axb.txt", false, 1),
	}))

	percent, err := store.Query(ctx, storage.Query{Substring: "100%", Limit: 10})
	require.NoError(t, err)
	require.Len(t, percent, 1)
	require.Equal(t, "report 100%.txt", percent[0].Name)

	underscore, err := store.Query(ctx, storage.Query{Substring: "a_b", Limit: 10})
	require.NoError(t, err)
	require.Len(t, underscore, 1)
	require.Equal(t, "a_b.txt", underscore[0].Name)
}

func TestQueryFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertBatch(ctx, []storage.Entry{
		entry("/data/a.txt", false, 10),
		entry("/data/sub", true, 0),
		entry("/other/b.txt", false, 20),
	}))

	files, err := store.Query(ctx, storage.Query{Type: storage.TypeFiles, Limit: 10})
	require.NoError(t, err)
	for _, result := range files {
		require.False(t, result.IsDir)
	}
	require.Len(t, files, 2)

	folders, err := store.Query(ctx, storage.Query{Type: storage.TypeFolders, Limit: 10})
	require.NoError(t, err)
	require.Len(t, folders, 1)
	require.True(t, folders[0].IsDir)

	located, err := store.Query(ctx, storage.Query{Location: "/data", Limit: 10})
	require.NoError(t, err)
	require.Len(t, located, 2)
	for _, result := range located {
		require.Contains(t, result.Path, "/data/")
	}

	pathMatch, err := store.Query(ctx, storage.Query{Substring: "other", SearchPath: true, Limit: 10})
	require.NoError(t, err)
	require.Len(t, pathMatch, 1)
	require.Equal(t, "/other/b.txt", pathMatch[0].Path)
}

func TestPurgeUnderRootSparesSiblings(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertBatch(ctx, []storage.Entry{
		entry("/data", true, 0),
		entry("/data/a.txt", false, 10),
		entry("/data/sub/b.txt", false, 20),
		entry("/database/c.txt", false, 30),
	}))

	require.NoError(t, store.PurgeUnderRoot(ctx, "/data"))

	remaining, err := store.Query(ctx, storage.Query{Limit: 10})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, "/database/c.txt", remaining[0].Path)
}

func TestStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, storage.Stats{}, stats)

	require.NoError(t, store.InsertBatch(ctx, []storage.Entry{
		entry("/data/a.txt", false, 10),
		entry("/data/B.txt", false, 20),
		entry("/data/sub", true, 0),
	}))

	stats, err = store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.Files)
	require.Equal(t, int64(1), stats.Directories)
	require.Equal(t, int64(30), stats.TotalSize)
}

func TestMountPointLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertMount(ctx, "/data", "ext4", true))
	require.NoError(t, store.UpsertMount(ctx, "/mnt/usb", "vfat", true))

	// Re-registering the same path must not create a second record.
	require.NoError(t, store.UpsertMount(ctx, "/data", "btrfs", true))

	mounts, err := store.ListMounts(ctx)
	require.NoError(t, err)
	require.Len(t, mounts, 2)
	require.Equal(t, "/data", mounts[0].Path)
	require.Equal(t, "btrfs", mounts[0].FilesystemType)
	require.True(t, mounts[0].LastIndexed.IsZero())

	require.NoError(t, store.SetMountEnabled(ctx, "/mnt/usb", false))
	mounts, err = store.ListMounts(ctx)
	require.NoError(t, err)
	require.False(t, mounts[1].Enabled)

	when := time.Now().Truncate(time.Second)
	require.NoError(t, store.TouchMountIndexed(ctx, "/data", when))
	mounts, err = store.ListMounts(ctx)
	require.NoError(t, err)
	require.True(t, mounts[0].LastIndexed.Equal(when))

	// Touching an unregistered path is a no-op.
	require.NoError(t, store.TouchMountIndexed(ctx, "/nowhere", when))
}

func TestInsertBatchEmptyIsNoop(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.InsertBatch(context.Background(), nil))
}
