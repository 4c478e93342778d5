package search

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"findit/internal/storage"
	"findit/internal/storage/sqlite"
)

func newTestEngine(t *testing.T) (*Engine, storage.Store) {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "fileindex.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(store, 0), store
}

func seed(t *testing.T, store storage.Store, entries ...storage.Entry) {
	t.Helper()
	require.NoError(t, store.InsertBatch(context.Background(), entries))
}

func entry(path string, isDir bool) storage.Entry {
	return storage.Entry{
		Path:      path,
		Name:      filepath.Base(path),
		Modified:  time.Now(),
		IsDir:     isDir,
		IndexedAt: time.Now(),
	}
}

func TestEmptyQueryReturnsEmptyResults(t *testing.T) {
	engine, store := newTestEngine(t)
	seed(t, store, entry("/data/a.txt", false))

	for _, req := range []Request{
		{Query: ""},
		{Query: "   "},
		{Query: "", Regex: true},
		{Query: "", MatchCase: true, SearchPath: true, Type: storage.TypeFiles},
	} {
		results, err := engine.Search(context.Background(), req)
		require.NoError(t, err)
		require.Empty(t, results)
		require.NotNil(t, results)
	}
}

func TestLiteralSearch(t *testing.T) {
	engine, store := newTestEngine(t)
	seed(t, store,
		entry("/data/a.txt", false),
		entry("/data/B.txt", false),
		entry("/data/notes.md", false),
	)

	results, err := engine.Search(context.Background(), Request{Query: "txt"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "a.txt", results[0].Name)
	require.Equal(t, "B.txt", results[1].Name)

	results, err = engine.Search(context.Background(), Request{Query: "TXT", MatchCase: true})
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestLiteralSearchAgainstFullPath(t *testing.T) {
	engine, store := newTestEngine(t)
	seed(t, store,
		entry("/music/song.mp3", false),
		entry("/videos/song.mp4", false),
	)

	byName, err := engine.Search(context.Background(), Request{Query: "music"})
	require.NoError(t, err)
	require.Empty(t, byName)

	byPath, err := engine.Search(context.Background(), Request{Query: "music", SearchPath: true})
	require.NoError(t, err)
	require.Len(t, byPath, 1)
	require.Equal(t, "/music/song.mp3", byPath[0].Path)
}

func TestTypeFilter(t *testing.T) {
	engine, store := newTestEngine(t)
	seed(t, store,
		entry("/data/docs", true),
		entry("/data/docs.txt", false),
	)

	files, err := engine.Search(context.Background(), Request{Query: "docs", Type: storage.TypeFiles})
	require.NoError(t, err)
	for _, result := range files {
		require.False(t, result.IsDir)
	}
	require.Len(t, files, 1)

	folders, err := engine.Search(context.Background(), Request{Query: "docs", Type: storage.TypeFolders})
	require.NoError(t, err)
	for _, result := range folders {
		require.True(t, result.IsDir)
	}
	require.Len(t, folders, 1)
}

func TestLocationFilter(t *testing.T) {
	engine, store := newTestEngine(t)
	seed(t, store,
		entry("/a/one.txt", false),
		entry("/b/one.txt", false),
	)

	all, err := engine.Search(context.Background(), Request{Query: "one"})
	require.NoError(t, err)
	require.Len(t, all, 2)

	scoped, err := engine.Search(context.Background(), Request{Query: "one", Location: "/a"})
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	require.Equal(t, "/a/one.txt", scoped[0].Path)
}

func TestMaxResultsCap(t *testing.T) {
	engine, store := newTestEngine(t)
	for i := 0; i < 30; i++ {
		seed(t, store, entry(fmt.Sprintf("/data/file%02d.txt", i), false))
	}

	literal, err := engine.Search(context.Background(), Request{Query: "file", MaxResults: 7})
	require.NoError(t, err)
	require.Len(t, literal, 7)

	regex, err := engine.Search(context.Background(), Request{Query: `file\d+`, Regex: true, MaxResults: 7})
	require.NoError(t, err)
	require.Len(t, regex, 7)
}

func TestRegexSearch(t *testing.T) {
	engine, store := newTestEngine(t)
	seed(t, store,
		entry("/data/report-2024.pdf", false),
		entry("/data/report-draft.pdf", false),
		entry("/data/Summary-2023.PDF", false),
	)

	results, err := engine.Search(context.Background(), Request{Query: `-\d{4}\.pdf$`, Regex: true})
	require.NoError(t, err)
	require.Len(t, results, 2)

	sensitive, err := engine.Search(context.Background(), Request{Query: `\.PDF$`, Regex: true, MatchCase: true})
	require.NoError(t, err)
	require.Len(t, sensitive, 1)
	require.Equal(t, "Summary-2023.PDF", sensitive[0].Name)
}

func TestRegexAgainstFullPath(t *testing.T) {
	engine, store := newTestEngine(t)
	seed(t, store,
		entry("/logs/2024/app.log", false),
		entry("/data/app.log", false),
	)

	results, err := engine.Search(context.Background(), Request{Query: `^/logs/\d+/`, Regex: true, SearchPath: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "/logs/2024/app.log", results[0].Path)
}

func TestInvalidRegexIsAnError(t *testing.T) {
	engine, store := newTestEngine(t)
	seed(t, store, entry("/data/a.txt", false))

	_, err := engine.Search(context.Background(), Request{Query: "[unclosed", Regex: true})
	require.Error(t, err)

	// The failure leaves the store untouched.
	entries, qerr := store.Query(context.Background(), storage.Query{Limit: 10})
	require.NoError(t, qerr)
	require.Len(t, entries, 1)
}

func TestRegexOrderingDirectoriesFirst(t *testing.T) {
	engine, store := newTestEngine(t)
	seed(t, store,
		entry("/data/zeta.txt", false),
		entry("/data/alpha", true),
		entry("/data/beta.txt", false),
	)

	results, err := engine.Search(context.Background(), Request{Query: `.`, Regex: true})
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.True(t, results[0].IsDir)
	require.Equal(t, "beta.txt", results[1].Name)
	require.Equal(t, "zeta.txt", results[2].Name)
}
