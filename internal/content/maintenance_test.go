package content

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/at-ishikawa/kikitori/internal/database"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time {
		return t
	}
}

func TestBackupFileName(t *testing.T) {
	assert.Equal(t, "kikitori_backup_20261018_101500.db", BackupFileName(testEpoch))
}

func TestStore_Backup(t *testing.T) {
	dir := t.TempDir()
	backupDir := filepath.Join(dir, "backups")
	store := newTestStore(t, WithBackupDirectory(backupDir), WithClock(fixedClock(testEpoch)))
	ctx := context.Background()
	storeTestTranscript(t, store, "バックアップします。")

	first, err := store.Backup(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(backupDir, "kikitori_backup_20261018_101500.db"), first)

	second, err := store.Backup(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(backupDir, "kikitori_backup_20261018_101500_1.db"), second)

	explicit := filepath.Join(dir, "manual", "copy.db")
	got, err := store.Backup(ctx, explicit)
	require.NoError(t, err)
	assert.Equal(t, explicit, got)

	_, err = store.Backup(ctx, explicit)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "path", verr.Field)

	backup, err := sqlx.Open(database.DriverName, first)
	require.NoError(t, err)
	defer backup.Close()
	var count int
	require.NoError(t, backup.GetContext(ctx, &count, `SELECT COUNT(*) FROM segments`))
	assert.Equal(t, 1, count)
}

func TestStore_Backup_DefaultDirectoryNextToDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "kikitori.db")
	store := newTestStoreAt(t, path, nil, WithBackupDirectory(""), WithClock(fixedClock(testEpoch)))

	got, err := store.Backup(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "kikitori_backup_20261018_101500.db", filepath.Base(got))
	assert.Equal(t, "backups", filepath.Base(filepath.Dir(got)))
	assert.FileExists(t, got)
}

func TestStore_Restore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	kept := storeTestTranscript(t, store, "復元される文です。")
	_, err := store.AddQuestion(ctx, validQuestion(kept))
	require.NoError(t, err)
	_, err = store.AddVocabulary(ctx, kept, []VocabularyItem{{Word: "文"}})
	require.NoError(t, err)
	backup, err := store.Backup(ctx, "")
	require.NoError(t, err)

	added := storeTestTranscript(t, store, "バックアップ後の文です。")
	ok, err := store.DeleteTranscript(ctx, kept)
	require.NoError(t, err)
	require.True(t, ok)

	snapshot, err := store.Restore(ctx, backup)
	require.NoError(t, err)
	assert.FileExists(t, snapshot)
	assert.NotEqual(t, backup, snapshot)

	restored, err := store.GetTranscript(ctx, kept)
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.Equal(t, "復元される文です。", restored.Content)
	require.Len(t, restored.Segments, 1)
	questions, err := store.GetQuestionsByTranscript(ctx, kept, LevelUnset)
	require.NoError(t, err)
	assert.Len(t, questions, 1)
	vocabulary, err := store.GetVocabularyByTranscript(ctx, kept)
	require.NoError(t, err)
	assert.Len(t, vocabulary, 1)

	gone, err := store.GetTranscript(ctx, added)
	require.NoError(t, err)
	assert.Nil(t, gone)

	// The snapshot holds the state from just before the restore
	snapshotDB, err := sqlx.Open(database.DriverName, snapshot)
	require.NoError(t, err)
	defer snapshotDB.Close()
	var ids []int64
	require.NoError(t, snapshotDB.SelectContext(ctx, &ids, `SELECT id FROM transcripts ORDER BY id`))
	assert.Equal(t, []int64{added}, ids)

	// The store keeps working after a restore
	next := storeTestTranscript(t, store, "復元後の文です。")
	assert.Greater(t, next, added)
}

func TestStore_Restore_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, dir string) string
	}{
		{
			name: "missing file",
			setup: func(t *testing.T, dir string) string {
				return filepath.Join(dir, "missing.db")
			},
		},
		{
			name: "directory",
			setup: func(t *testing.T, dir string) string {
				return dir
			},
		},
		{
			name: "database without the content tables",
			setup: func(t *testing.T, dir string) string {
				path := filepath.Join(dir, "other.db")
				db, err := sqlx.Open(database.DriverName, path)
				require.NoError(t, err)
				defer db.Close()
				_, err = db.Exec(`CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT)`)
				require.NoError(t, err)
				return path
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			ctx := context.Background()
			id := storeTestTranscript(t, store, "消えてはいけない文です。")

			_, err := store.Restore(ctx, tt.setup(t, t.TempDir()))
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, "path", verr.Field)

			got, err := store.GetTranscript(ctx, id)
			require.NoError(t, err)
			assert.NotNil(t, got)
		})
	}
}

func TestStore_Stats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	empty, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, empty.Transcripts)
	assert.Empty(t, empty.TranscriptLevels)

	n5, err := store.StoreTranscript(ctx, TranscriptInput{SourceURL: "https://example.com/a", Content: "一。二。", JLPTLevel: LevelN5})
	require.NoError(t, err)
	_, err = store.StoreTranscript(ctx, TranscriptInput{SourceURL: "https://example.com/b", Content: "三。", JLPTLevel: LevelN5})
	require.NoError(t, err)
	unset := storeTestTranscript(t, store, "四。")
	_, err = store.db.ExecContext(ctx, `UPDATE segments SET embedding = NULL WHERE transcript_id = ?`, unset)
	require.NoError(t, err)

	n3 := validQuestion(n5)
	n3.JLPTLevel = LevelN3
	_, err = store.AddQuestionsBatch(ctx, n5, []QuestionInput{validQuestion(n5), validQuestion(n5), n3})
	require.NoError(t, err)
	_, err = store.AddVocabulary(ctx, n5, []VocabularyItem{{Word: "一"}, {Word: "二"}})
	require.NoError(t, err)

	got, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Transcripts)
	assert.Equal(t, 4, got.Segments)
	assert.Equal(t, 3, got.Questions)
	assert.Equal(t, 2, got.Vocabulary)
	assert.Equal(t, 3, got.EmbeddedTranscripts)
	assert.Equal(t, 3, got.EmbeddedSegments)
	assert.Equal(t, map[Level]int{LevelN5: 2, LevelUnset: 1}, got.TranscriptLevels)
	assert.Equal(t, map[Level]int{LevelN5: 2, LevelN3: 1}, got.QuestionLevels)

	info, err := os.Stat(got.Path)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), got.SizeBytes)
	assert.Positive(t, got.SizeBytes)
	assert.False(t, got.LastModified.IsZero())
}
