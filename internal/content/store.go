// Package content persists transcripts, their segments, questions and vocabulary in SQLite.
package content

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/at-ishikawa/kikitori/internal/database"
	"github.com/at-ishikawa/kikitori/internal/embedding"
)

// Store is the content store. Embeddings are computed before a transaction starts,
// so no transaction is held open while the model runs.
type Store struct {
	db        *sqlx.DB
	generator *embedding.Generator
	validator *inputValidator
	backupDir string
	now       func() time.Time
}

type Option func(*Store)

// WithBackupDirectory sets where Backup writes timestamped files.
// It defaults to a "backups" directory next to the database file.
func WithBackupDirectory(dir string) Option {
	return func(s *Store) {
		s.backupDir = dir
	}
}

// WithClock replaces time.Now for created_at columns and backup names.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func NewStore(db *sqlx.DB, generator *embedding.Generator, opts ...Option) (*Store, error) {
	v, err := newInputValidator()
	if err != nil {
		return nil, fmt.Errorf("newInputValidator() > %w", err)
	}
	s := &Store{
		db:        db,
		generator: generator,
		validator: v,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

func (s *Store) transcriptExists(ctx context.Context, q database.Queryer, id int64) (bool, error) {
	var count int
	if err := q.GetContext(ctx, &count, `SELECT COUNT(*) FROM transcripts WHERE id = ?`, id); err != nil {
		return false, fmt.Errorf("q.GetContext(transcripts) > %w", err)
	}
	return count > 0, nil
}

func (s *Store) ensureTranscript(ctx context.Context, q database.Queryer, id int64) error {
	exists, err := s.transcriptExists(ctx, q, id)
	if err != nil {
		return err
	}
	if !exists {
		return validationErrorf("transcript_id", "transcript %d does not exist", id)
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func blobOrNil(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func encodeEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	return embedding.EncodeVector(v)
}

func marshalMetadata(metadata map[string]any) (string, error) {
	if metadata == nil {
		return "{}", nil
	}
	b, err := json.Marshal(metadata)
	if err != nil {
		return "", &ValidationError{Field: "metadata", Message: err.Error()}
	}
	return string(b), nil
}

func unmarshalMetadata(raw string) (map[string]any, error) {
	metadata := map[string]any{}
	if raw == "" {
		return metadata, nil
	}
	decoder := json.NewDecoder(strings.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&metadata); err != nil {
		return nil, fmt.Errorf("decoder.Decode(metadata) > %w", err)
	}
	return metadata, nil
}

// NormalizeMetadata returns metadata in the form GetTranscript reads it back:
// numbers become json.Number, arrays []any and objects map[string]any.
func NormalizeMetadata(metadata map[string]any) (map[string]any, error) {
	raw, err := marshalMetadata(metadata)
	if err != nil {
		return nil, err
	}
	return unmarshalMetadata(raw)
}

func marshalStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("json.Marshal() > %w", err)
	}
	return string(b), nil
}

func unmarshalStrings(raw string) ([]string, error) {
	values := []string{}
	if raw == "" {
		return values, nil
	}
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("json.Unmarshal() > %w", err)
	}
	return values, nil
}
