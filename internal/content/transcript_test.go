package content

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/at-ishikawa/kikitori/internal/embedding"
	"github.com/at-ishikawa/kikitori/internal/embedding/hashing"
	mock_embedding "github.com/at-ishikawa/kikitori/internal/mocks/embedding"
)

func TestStore_Migrate_Idempotent(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Migrate(context.Background()))
	storeTestTranscript(t, store, "もう一度。")
	require.NoError(t, store.Migrate(context.Background()))
	assert.Equal(t, 1, countRows(t, store, `SELECT COUNT(*) FROM transcripts`))
}

func TestMigrationStatements(t *testing.T) {
	statements, err := migrationStatements()
	require.NoError(t, err)
	require.Len(t, statements, 8)
	assert.True(t, strings.HasPrefix(statements[0], "CREATE TABLE IF NOT EXISTS transcripts"))
	for _, table := range tableColumns {
		found := false
		for _, stmt := range statements {
			if strings.HasPrefix(stmt, "CREATE TABLE IF NOT EXISTS "+table.name+" (") {
				found = true
			}
		}
		assert.True(t, found, table.name)
	}
}

func TestStore_StoreTranscript(t *testing.T) {
	tests := []struct {
		name         string
		input        TranscriptInput
		wantSegments []Segment
		wantErrField string
	}{
		{
			name: "splits content into positioned segments",
			input: TranscriptInput{
				SourceURL: "https://example.com/v1",
				Content:   "私は学生です。今日は晴れです。",
			},
			wantSegments: []Segment{
				{Position: 0, Text: "私は学生です"},
				{Position: 1, Text: "今日は晴れです"},
			},
		},
		{
			name: "mixed terminators and empty fragments",
			input: TranscriptInput{
				SourceURL: "https://example.com/v2",
				Content:   "本当？！ はい。。Yes. ",
			},
			wantSegments: []Segment{
				{Position: 0, Text: "本当"},
				{Position: 1, Text: "はい"},
				{Position: 2, Text: "Yes"},
			},
		},
		{
			name: "timed segments replace splitting",
			input: TranscriptInput{
				SourceURL: "https://www.youtube.com/watch?v=abc",
				VideoID:   "abc",
				Content:   "おはようございます。今日は。",
				Segments: []SegmentInput{
					{Text: "おはようございます", StartTime: ptr(0.0), EndTime: ptr(1.5)},
					{Text: "  ", StartTime: ptr(1.5), EndTime: ptr(2.0)},
					{Text: "今日は", StartTime: ptr(2.0), EndTime: ptr(3.25)},
				},
			},
			wantSegments: []Segment{
				{Position: 0, Text: "おはようございます", StartTime: ptr(0.0), EndTime: ptr(1.5)},
				{Position: 1, Text: "今日は", StartTime: ptr(2.0), EndTime: ptr(3.25)},
			},
		},
		{
			name: "content without terminator is one segment",
			input: TranscriptInput{
				SourceURL: "https://example.com/v3",
				Content:   "句点のない文",
			},
			wantSegments: []Segment{
				{Position: 0, Text: "句点のない文"},
			},
		},
		{
			name:         "empty content",
			input:        TranscriptInput{SourceURL: "https://example.com/v4", Content: "  "},
			wantErrField: "content",
		},
		{
			name:         "empty source",
			input:        TranscriptInput{Content: "こんにちは。"},
			wantErrField: "source_url",
		},
		{
			name:         "invalid level",
			input:        TranscriptInput{SourceURL: "https://example.com/v5", Content: "こんにちは。", JLPTLevel: "N6"},
			wantErrField: "jlpt_level",
		},
		{
			name: "segment ends before it starts",
			input: TranscriptInput{
				SourceURL: "https://example.com/v6",
				Content:   "こんにちは。",
				Segments:  []SegmentInput{{Text: "こんにちは", StartTime: ptr(2.0), EndTime: ptr(1.0)}},
			},
			wantErrField: "segments[0]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			ctx := context.Background()

			id, err := store.StoreTranscript(ctx, tt.input)
			if tt.wantErrField != "" {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tt.wantErrField, verr.Field)
				assert.Equal(t, 0, countRows(t, store, `SELECT COUNT(*) FROM transcripts`))
				assert.Equal(t, 0, countRows(t, store, `SELECT COUNT(*) FROM segments`))
				return
			}
			require.NoError(t, err)
			assert.Positive(t, id)

			got, err := store.GetTranscript(ctx, id)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Len(t, got.Embedding, testDimension*4)
			require.Len(t, got.Segments, len(tt.wantSegments))
			for i, want := range tt.wantSegments {
				segment := got.Segments[i]
				assert.Equal(t, id, segment.TranscriptID)
				assert.Equal(t, want.Position, segment.Position)
				assert.Equal(t, want.Text, segment.Text)
				assert.Equal(t, want.StartTime, segment.StartTime)
				assert.Equal(t, want.EndTime, segment.EndTime)
				assert.Len(t, segment.Embedding, testDimension*4)
			}
		})
	}
}

func TestStore_StoreTranscript_PrecomputedEmbedding(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	vector := []float32{0.5, -0.25, 1}

	id, err := store.StoreTranscript(ctx, TranscriptInput{
		SourceURL: "https://example.com/precomputed",
		Content:   "埋め込み済み。",
		Embedding: vector,
	})
	require.NoError(t, err)

	got, err := store.GetTranscript(ctx, id)
	require.NoError(t, err)
	decoded, err := embedding.DecodeVector(got.Embedding)
	require.NoError(t, err)
	assert.Equal(t, vector, decoded)
}

func TestStore_GetTranscript(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	input := TranscriptInput{
		SourceURL: "https://www.youtube.com/watch?v=xyz",
		VideoID:   "xyz",
		Title:     "天気予報",
		Content:   "明日は雨です。傘を持って行きましょう。",
		Metadata: map[string]any{
			"channel":  "NHK",
			"duration": 95,
			"speakers": []any{"アナウンサー"},
		},
		JLPTLevel: LevelN4,
		Tags:      []string{"weather", "news"},
	}
	id, err := store.StoreTranscript(ctx, input)
	require.NoError(t, err)

	got, err := store.GetTranscript(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, input.SourceURL, got.SourceURL)
	assert.Equal(t, input.VideoID, got.VideoID)
	assert.Equal(t, input.Title, got.Title)
	assert.Equal(t, input.Content, got.Content)
	assert.Equal(t, map[string]any{
		"channel":  "NHK",
		"duration": json.Number("95"),
		"speakers": []any{"アナウンサー"},
	}, got.Metadata)
	assert.Equal(t, input.JLPTLevel, got.JLPTLevel)
	assert.Equal(t, DefaultLanguage, got.Language)
	assert.Equal(t, input.Tags, got.Tags)
	assert.True(t, testEpoch.Add(time.Second).Equal(got.CreatedAt), "created_at %s", got.CreatedAt)
	require.Len(t, got.Segments, 2)

	t.Run("not found", func(t *testing.T) {
		got, err := store.GetTranscript(ctx, id+100)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestStore_GetTranscript_MetadataRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		metadata map[string]any
	}{
		{
			name:     "int",
			metadata: map[string]any{"duration": 95},
		},
		{
			name:     "int64 above float64 precision",
			metadata: map[string]any{"view_count": int64(9007199254740993)},
		},
		{
			name: "nested values",
			metadata: map[string]any{
				"cues":    []any{1.5, 3},
				"speaker": map[string]any{"name": "田中", "age": 30},
				"live":    false,
			},
		},
		{
			name:     "nil",
			metadata: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			ctx := context.Background()

			id, err := store.StoreTranscript(ctx, TranscriptInput{
				SourceURL: "https://example.com/metadata",
				Content:   "メタデータの確認です。",
				Metadata:  tt.metadata,
			})
			require.NoError(t, err)

			got, err := store.GetTranscript(ctx, id)
			require.NoError(t, err)
			require.NotNil(t, got)

			want, err := NormalizeMetadata(tt.metadata)
			require.NoError(t, err)
			assert.Equal(t, want, got.Metadata)
		})
	}

	t.Run("large integers keep their precision", func(t *testing.T) {
		store := newTestStore(t)
		ctx := context.Background()

		id, err := store.StoreTranscript(ctx, TranscriptInput{
			SourceURL: "https://example.com/metadata",
			Content:   "メタデータの確認です。",
			Metadata:  map[string]any{"duration": 95, "view_count": int64(9007199254740993)},
		})
		require.NoError(t, err)

		got, err := store.GetTranscript(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got)

		duration, err := got.Metadata["duration"].(json.Number).Int64()
		require.NoError(t, err)
		assert.Equal(t, int64(95), duration)
		viewCount, err := got.Metadata["view_count"].(json.Number).Int64()
		require.NoError(t, err)
		assert.Equal(t, int64(9007199254740993), viewCount)
	})
}

func TestNormalizeMetadata(t *testing.T) {
	got, err := NormalizeMetadata(map[string]any{"duration": 95, "tags": []string{"a"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"duration": json.Number("95"), "tags": []any{"a"}}, got)

	got, err = NormalizeMetadata(nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, got)

	_, err = NormalizeMetadata(map[string]any{"bad": make(chan int)})
	assert.True(t, IsValidationError(err))
}

func TestStore_UpdateTranscript(t *testing.T) {
	tests := []struct {
		name         string
		id           func(id int64) int64
		update       TranscriptUpdate
		want         bool
		wantErrField string
		check        func(t *testing.T, got *Transcript)
	}{
		{
			name:   "updates only supplied fields",
			update: TranscriptUpdate{Title: ptr("新しいタイトル"), Metadata: map[string]any{"reviewed": true}},
			want:   true,
			check: func(t *testing.T, got *Transcript) {
				assert.Equal(t, "新しいタイトル", got.Title)
				assert.Equal(t, map[string]any{"reviewed": true}, got.Metadata)
				assert.Equal(t, "https://example.com/original", got.SourceURL)
				assert.Equal(t, "元の内容です。", got.Content)
				assert.NotEmpty(t, got.Embedding)
			},
		},
		{
			name:   "updates source content level and tags",
			update: TranscriptUpdate{SourceURL: ptr("https://example.com/moved"), Content: ptr("変更後。"), JLPTLevel: ptr(LevelN2), Tags: []string{"edited"}},
			want:   true,
			check: func(t *testing.T, got *Transcript) {
				assert.Equal(t, "https://example.com/moved", got.SourceURL)
				assert.Equal(t, "変更後。", got.Content)
				assert.Equal(t, LevelN2, got.JLPTLevel)
				assert.Equal(t, []string{"edited"}, got.Tags)
				assert.Len(t, got.Segments, 1, "segments are not re-split")
			},
		},
		{
			name:   "empty embedding clears it",
			update: TranscriptUpdate{Embedding: []float32{}},
			want:   true,
			check: func(t *testing.T, got *Transcript) {
				assert.Nil(t, got.Embedding)
			},
		},
		{
			name:   "no fields is a successful no-op",
			update: TranscriptUpdate{},
			want:   true,
			check: func(t *testing.T, got *Transcript) {
				assert.Equal(t, "元の内容です。", got.Content)
			},
		},
		{
			name:   "missing transcript",
			id:     func(id int64) int64 { return id + 1 },
			update: TranscriptUpdate{Title: ptr("x")},
			want:   false,
		},
		{
			name:   "missing transcript without fields",
			id:     func(id int64) int64 { return id + 1 },
			update: TranscriptUpdate{},
			want:   false,
		},
		{
			name:         "empty content",
			update:       TranscriptUpdate{Content: ptr("")},
			wantErrField: "content",
		},
		{
			name:         "invalid level",
			update:       TranscriptUpdate{JLPTLevel: ptr(Level("N0"))},
			wantErrField: "jlpt_level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			ctx := context.Background()
			id, err := store.StoreTranscript(ctx, TranscriptInput{
				SourceURL: "https://example.com/original",
				Content:   "元の内容です。",
			})
			require.NoError(t, err)

			target := id
			if tt.id != nil {
				target = tt.id(id)
			}
			got, err := store.UpdateTranscript(ctx, target, tt.update)
			if tt.wantErrField != "" {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tt.wantErrField, verr.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			if tt.check == nil {
				return
			}
			transcript, err := store.GetTranscript(ctx, id)
			require.NoError(t, err)
			tt.check(t, transcript)
		})
	}
}

func TestStore_SetTranscriptLevel(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id := storeTestTranscript(t, store, "分類します。")

	ok, err := store.SetTranscriptLevel(ctx, id, LevelN3)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.GetTranscript(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, LevelN3, got.JLPTLevel)

	ok, err = store.SetTranscriptLevel(ctx, id, LevelUnset)
	require.NoError(t, err)
	assert.True(t, ok)
	got, err = store.GetTranscript(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, LevelUnset, got.JLPTLevel)
}

func TestStore_DeleteTranscript(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id := storeTestTranscript(t, store, "消される文です。二つ目の文です。")
	kept := storeTestTranscript(t, store, "残る文です。")
	transcript, err := store.GetTranscript(ctx, id)
	require.NoError(t, err)

	_, err = store.AddQuestion(ctx, QuestionInput{
		TranscriptID: id,
		SegmentID:    &transcript.Segments[1].ID,
		Text:         "何番目の文ですか。",
		Options:      []string{"一つ目", "二つ目"},
		Answer:       "二つ目",
	})
	require.NoError(t, err)
	_, err = store.AddVocabulary(ctx, id, []VocabularyItem{{Word: "文", Frequency: 2}})
	require.NoError(t, err)
	_, err = store.AddQuestion(ctx, QuestionInput{
		TranscriptID: kept,
		Text:         "残りますか。",
		Options:      []string{"はい", "いいえ"},
		Answer:       "はい",
	})
	require.NoError(t, err)

	ok, err := store.DeleteTranscript(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	for _, table := range []string{"segments", "questions", "vocabulary"} {
		assert.Equal(t, 0, countRows(t, store, `SELECT COUNT(*) FROM `+table+` WHERE transcript_id = ?`, id), table)
	}
	got, err := store.GetTranscript(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.Equal(t, 1, countRows(t, store, `SELECT COUNT(*) FROM segments WHERE transcript_id = ?`, kept))
	assert.Equal(t, 1, countRows(t, store, `SELECT COUNT(*) FROM questions WHERE transcript_id = ?`, kept))

	ok, err = store.DeleteTranscript(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_ListTranscripts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	long := strings.Repeat("あ", 150) + "。"
	first := storeTestTranscript(t, store, "最初の文。")
	second := storeTestTranscript(t, store, long)
	third := storeTestTranscript(t, store, "三番目。最後。")

	tests := []struct {
		name    string
		limit   int
		offset  int
		wantIDs []int64
	}{
		{name: "newest first", limit: 10, wantIDs: []int64{third, second, first}},
		{name: "limit", limit: 2, wantIDs: []int64{third, second}},
		{name: "offset", limit: 2, offset: 2, wantIDs: []int64{first}},
		{name: "default limit", wantIDs: []int64{third, second, first}},
		{name: "offset past end", limit: 10, offset: 5, wantIDs: []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListTranscripts(ctx, tt.limit, tt.offset)
			require.NoError(t, err)
			ids := make([]int64, len(got))
			for i, summary := range got {
				ids[i] = summary.ID
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}

	summaries, err := store.ListTranscripts(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("あ", 100)+"...", summaries[1].Preview)
	assert.Equal(t, 1, summaries[1].SegmentCount)
	assert.Equal(t, "三番目。最後。", summaries[0].Preview)
	assert.Equal(t, 2, summaries[0].SegmentCount)
}

func TestStore_SearchTranscripts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tokyo := storeTestTranscript(t, store, "Tokyoに行きます。")
	lower := storeTestTranscript(t, store, "tokyoと書きます。")
	osaka := storeTestTranscript(t, store, "大阪に行きます。")

	tests := []struct {
		name      string
		substring string
		wantIDs   []int64
	}{
		{name: "case-sensitive", substring: "Tokyo", wantIDs: []int64{tokyo}},
		{name: "lowercase", substring: "tokyo", wantIDs: []int64{lower}},
		{name: "japanese", substring: "行きます", wantIDs: []int64{osaka, tokyo}},
		{name: "no match", substring: "名古屋", wantIDs: []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.SearchTranscripts(ctx, tt.substring)
			require.NoError(t, err)
			ids := make([]int64, len(got))
			for i, summary := range got {
				ids[i] = summary.ID
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestStore_StoreTranscript_DegradedEmbeddingsAreBackfilled(t *testing.T) {
	ctrl := gomock.NewController(t)
	failing := mock_embedding.NewMockModel(ctrl)
	failing.EXPECT().Name().Return("failing").AnyTimes()
	failing.EXPECT().Dimension().Return(testDimension).AnyTimes()
	failing.EXPECT().Encode(gomock.Any(), gomock.Any()).Return(nil, errors.New("model unavailable")).AnyTimes()

	path := filepath.Join(t.TempDir(), "kikitori.db")
	degradedStore := newTestStoreAt(t, path, embedding.NewGenerator(failing))
	ctx := context.Background()

	id, err := degradedStore.StoreTranscript(ctx, TranscriptInput{
		SourceURL: "https://example.com/degraded",
		Content:   "一つ目。二つ目。",
	})
	require.NoError(t, err)

	got, err := degradedStore.GetTranscript(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got.Embedding)
	require.Len(t, got.Segments, 2)
	for _, segment := range got.Segments {
		assert.Nil(t, segment.Embedding)
	}

	result, err := degradedStore.BackfillEmbeddings(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, BackfillResult{Degraded: 3}, result)

	store := newTestStoreAt(t, path, embedding.NewGenerator(hashing.NewModel(testDimension)))
	result, err = store.BackfillEmbeddings(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, BackfillResult{Transcripts: 1, Segments: 2}, result)

	candidates, err := store.EmbeddedSegments(ctx, LevelUnset)
	require.NoError(t, err)
	assert.Len(t, candidates, 2)

	result, err = store.BackfillEmbeddings(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, BackfillResult{}, result)
}

func TestStore_StoreTranscript_StorageError(t *testing.T) {
	tests := []struct {
		name  string
		setup func(mock sqlmock.Sqlmock)
	}{
		{
			name: "begin fails",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin().WillReturnError(errors.New("database is locked"))
			},
		},
		{
			name: "transcript insert fails",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("INSERT INTO transcripts").WillReturnError(errors.New("disk I/O error"))
				mock.ExpectRollback()
			},
		},
		{
			name: "segment insert fails after transcript insert",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("INSERT INTO transcripts").WillReturnResult(sqlmock.NewResult(7, 1))
				mock.ExpectExec("INSERT INTO segments").WillReturnError(errors.New("UNIQUE constraint failed"))
				mock.ExpectRollback()
			},
		},
		{
			name: "commit fails",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("INSERT INTO transcripts").WillReturnResult(sqlmock.NewResult(7, 1))
				mock.ExpectExec("INSERT INTO segments").WillReturnResult(sqlmock.NewResult(2, 2))
				mock.ExpectCommit().WillReturnError(errors.New("disk full"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockDB, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer mockDB.Close()
			tt.setup(mock)

			store, err := NewStore(sqlx.NewDb(mockDB, "sqlmock"), embedding.NewGenerator(hashing.NewModel(testDimension)))
			require.NoError(t, err)

			id, err := store.StoreTranscript(context.Background(), TranscriptInput{
				SourceURL: "https://example.com/v1",
				Content:   "私は学生です。今日は晴れです。",
			})
			assert.Zero(t, id)
			var serr *StorageError
			require.ErrorAs(t, err, &serr)
			assert.Equal(t, "store transcript", serr.Op)
			assert.False(t, IsValidationError(err))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
