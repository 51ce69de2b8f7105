package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/at-ishikawa/kikitori/internal/config"
	"github.com/at-ishikawa/kikitori/internal/questionset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupTestConfig(t *testing.T) {
	tmpDir := t.TempDir()
	got := SetupTestConfig(t, tmpDir)

	want := filepath.Join(tmpDir, "config.yml")
	assert.Equal(t, want, got)

	loader, err := config.NewConfigLoader(got)
	require.NoError(t, err)
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, DatabasePath(tmpDir), cfg.Database.Path)
	assert.Equal(t, BackupDirectory(tmpDir), cfg.Database.BackupDirectory)
	assert.Equal(t, "hashing", cfg.Embedding.Provider)
	assert.Equal(t, TestDimension, cfg.Embedding.Dimension)
	assert.Equal(t, 3, cfg.Search.DefaultLimit)
	assert.Equal(t, WorksheetDirectory(tmpDir), cfg.Outputs.WorksheetDirectory)
	assert.DirExists(t, filepath.Join(tmpDir, "data"))
}

func TestSetupTestConfigWithAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	tmpDir := t.TempDir()
	got := SetupTestConfigWithAPIKey(t, tmpDir, "http://127.0.0.1:8080/v1")

	loader, err := config.NewConfigLoader(got)
	require.NoError(t, err)
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, "test-embedding", cfg.Embedding.Model)
	assert.Equal(t, "fake-key-for-testing", cfg.Embedding.OpenAI.APIKey)
	assert.Equal(t, "http://127.0.0.1:8080/v1", cfg.Embedding.OpenAI.BaseURL)
	assert.Equal(t, uint(1), cfg.Embedding.OpenAI.MaxRetries)
	assert.Equal(t, TestDimension, cfg.Embedding.Dimension)
}

func TestCreateQuestionSet(t *testing.T) {
	position := 1
	file := questionset.File{
		TranscriptID: 7,
		Questions: []questionset.Question{
			{
				Question:        "どこに住んでいますか。",
				Options:         []string{"東京", "大阪"},
				Answer:          "東京",
				SegmentPosition: &position,
			},
		},
	}

	path := CreateQuestionSet(t, t.TempDir(), file)
	assert.Equal(t, "questions-7.yml", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "transcript_id: 7")

	loaded, err := questionset.Load(path)
	require.NoError(t, err)
	assert.Equal(t, &file, loaded)
}
