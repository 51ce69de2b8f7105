package content

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/at-ishikawa/kikitori/internal/database"
	"github.com/at-ishikawa/kikitori/schemas"
)

// tableColumns lists every table in parent-first order with the columns copied on restore.
var tableColumns = []struct {
	name    string
	columns string
}{
	{"transcripts", "id, source_url, video_id, title, content, embedding, metadata, jlpt_level, language, tags, created_at"},
	{"segments", "id, transcript_id, position, start_time, end_time, text, embedding"},
	{"questions", "id, transcript_id, segment_id, question, options, answer, explanation, jlpt_level, question_type, created_at"},
	{"vocabulary", "id, transcript_id, word, reading, meaning, jlpt_level, part_of_speech, example, frequency"},
}

// migrationStatements returns the statements of every embedded migration file in file name order.
func migrationStatements() ([]string, error) {
	paths, err := fs.Glob(schemas.Migrations, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("fs.Glob(migrations) > %w", err)
	}
	sort.Strings(paths)

	var statements []string
	for _, path := range paths {
		data, err := fs.ReadFile(schemas.Migrations, path)
		if err != nil {
			return nil, fmt.Errorf("fs.ReadFile(%s) > %w", path, err)
		}
		for _, stmt := range strings.Split(string(data), ";") {
			if stmt = strings.TrimSpace(stmt); stmt != "" {
				statements = append(statements, stmt)
			}
		}
	}
	return statements, nil
}

// Migrate creates the tables and indexes if they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	statements, err := migrationStatements()
	if err != nil {
		return storageError("migrate schema", err)
	}
	err = database.RunInTx(ctx, s.db, func(ctx context.Context, tx *sqlx.Tx) error {
		for _, stmt := range statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("tx.ExecContext(schema) > %w", err)
			}
		}
		return nil
	})
	return storageError("migrate schema", err)
}
