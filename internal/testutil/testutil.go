// Package testutil provides shared test helpers for creating config files and question-set fixtures.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/at-ishikawa/kikitori/internal/questionset"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// TestDimension is the embedding width of the hashing model configured by SetupTestConfig.
const TestDimension = 64

// SetupTestConfig creates a config file that stores everything under tmpDir and embeds
// with the offline hashing model. Returns the path to the generated config file.
func SetupTestConfig(t *testing.T, tmpDir string) string {
	t.Helper()
	return writeConfig(t, tmpDir, "hashing", "")
}

// SetupTestConfigWithAPIKey creates a config file that embeds with the openai provider
// against baseURL with a fake API key.
func SetupTestConfigWithAPIKey(t *testing.T, tmpDir, baseURL string) string {
	t.Helper()
	return writeConfig(t, tmpDir, "openai", fmt.Sprintf(`  model: test-embedding
  openai:
    api_key: fake-key-for-testing
    base_url: %s
    max_retries: 1
`, baseURL))
}

func writeConfig(t *testing.T, tmpDir, provider, embeddingExtra string) string {
	// The environment takes precedence over the file
	t.Setenv("KIKITORI_DATABASE_PATH", "")
	require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, "data"), 0755))

	configContent := fmt.Sprintf(`database:
  path: %s
  backup_directory: %s
embedding:
  provider: %s
  dimension: %d
%ssearch:
  default_limit: 3
outputs:
  worksheet_directory: %s
`,
		DatabasePath(tmpDir),
		BackupDirectory(tmpDir),
		provider,
		TestDimension,
		embeddingExtra,
		WorksheetDirectory(tmpDir),
	)

	cfgPath := filepath.Join(tmpDir, "config.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(configContent), 0644))
	return cfgPath
}

func DatabasePath(tmpDir string) string {
	return filepath.Join(tmpDir, "data", "kikitori.db")
}

func BackupDirectory(tmpDir string) string {
	return filepath.Join(tmpDir, "backups")
}

func WorksheetDirectory(tmpDir string) string {
	return filepath.Join(tmpDir, "worksheets")
}

// CreateQuestionSet writes file as a YAML question set under dir and returns its path.
func CreateQuestionSet(t *testing.T, dir string, file questionset.File) string {
	t.Helper()

	data, err := yaml.Marshal(file)
	require.NoError(t, err)
	path := filepath.Join(dir, fmt.Sprintf("questions-%d.yml", file.TranscriptID))
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}
