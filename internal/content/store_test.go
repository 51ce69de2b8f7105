package content

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/at-ishikawa/kikitori/internal/config"
	"github.com/at-ishikawa/kikitori/internal/database"
	"github.com/at-ishikawa/kikitori/internal/embedding"
	"github.com/at-ishikawa/kikitori/internal/embedding/hashing"
)

const testDimension = 64

var testEpoch = time.Date(2026, 10, 18, 10, 15, 0, 0, time.UTC)

// steppingClock returns a clock that advances one second per call.
func steppingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	dir := t.TempDir()
	return newTestStoreAt(t, filepath.Join(dir, "kikitori.db"), embedding.NewGenerator(hashing.NewModel(testDimension)), opts...)
}

func newTestStoreAt(t *testing.T, path string, generator *embedding.Generator, opts ...Option) *Store {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Path: path, MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})

	defaults := []Option{
		WithBackupDirectory(filepath.Join(filepath.Dir(path), "backups")),
		WithClock(steppingClock(testEpoch)),
	}
	store, err := NewStore(db, generator, append(defaults, opts...)...)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func countRows(t *testing.T, store *Store, query string, args ...any) int {
	t.Helper()
	var count int
	require.NoError(t, store.db.GetContext(context.Background(), &count, query, args...))
	return count
}

func storeTestTranscript(t *testing.T, store *Store, content string) int64 {
	t.Helper()
	id, err := store.StoreTranscript(context.Background(), TranscriptInput{
		SourceURL: "https://example.com/" + content,
		Content:   content,
	})
	require.NoError(t, err)
	return id
}

func ptr[T any](v T) *T {
	return &v
}
