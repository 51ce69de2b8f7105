package content

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/at-ishikawa/kikitori/internal/database"
)

type candidateRecord struct {
	SegmentID    int64   `db:"segment_id"`
	TranscriptID int64   `db:"transcript_id"`
	Text         string  `db:"text"`
	Embedding    []byte  `db:"embedding"`
	SourceURL    string  `db:"source_url"`
	Title        *string `db:"title"`
	JLPTLevel    *string `db:"jlpt_level"`
}

// EmbeddedSegments returns every segment that has an embedding, joined with its transcript.
// When level is set only segments of transcripts at that level are returned.
func (s *Store) EmbeddedSegments(ctx context.Context, level Level) ([]SegmentCandidate, error) {
	if !level.Valid() {
		return nil, validationErrorf("jlpt_level", "%q is not one of %v", level, Levels)
	}
	query := `SELECT
		s.id AS segment_id, s.transcript_id, s.text, s.embedding,
		t.source_url, t.title, t.jlpt_level
		FROM segments s
		JOIN transcripts t ON t.id = s.transcript_id
		WHERE s.embedding IS NOT NULL`
	var args []any
	if level != LevelUnset {
		query += ` AND t.jlpt_level = ?`
		args = append(args, string(level))
	}
	query += ` ORDER BY s.transcript_id, s.position`

	var records []candidateRecord
	if err := s.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, storageError("select embedded segments", err)
	}
	candidates := make([]SegmentCandidate, len(records))
	for i, r := range records {
		candidates[i] = SegmentCandidate{
			SegmentID:    r.SegmentID,
			TranscriptID: r.TranscriptID,
			Text:         r.Text,
			SourceURL:    r.SourceURL,
			Title:        stringOrEmpty(r.Title),
			JLPTLevel:    levelFromNull(r.JLPTLevel),
			Embedding:    r.Embedding,
		}
	}
	return candidates, nil
}

type pendingEmbedding struct {
	ID   int64  `db:"id"`
	Text string `db:"text"`
}

// BackfillEmbeddings embeds up to limit transcripts and limit segments whose embedding is
// missing, all of them when limit <= 0. Rows that degrade again stay NULL.
func (s *Store) BackfillEmbeddings(ctx context.Context, limit int) (BackfillResult, error) {
	if limit <= 0 {
		limit = -1
	}
	var transcripts, segments []pendingEmbedding
	if err := s.db.SelectContext(ctx, &transcripts, `SELECT id, content AS text
		FROM transcripts WHERE embedding IS NULL ORDER BY id LIMIT ?`, limit); err != nil {
		return BackfillResult{}, storageError("select transcripts without embedding", err)
	}
	if err := s.db.SelectContext(ctx, &segments, `SELECT id, text
		FROM segments WHERE embedding IS NULL ORDER BY id LIMIT ?`, limit); err != nil {
		return BackfillResult{}, storageError("select segments without embedding", err)
	}

	transcriptBlobs, transcriptDegraded := s.embedPending(ctx, transcripts)
	segmentBlobs, segmentDegraded := s.embedPending(ctx, segments)
	result := BackfillResult{Degraded: transcriptDegraded + segmentDegraded}

	err := database.RunInTx(ctx, s.db, func(ctx context.Context, tx *sqlx.Tx) error {
		var err error
		if result.Transcripts, err = updateEmbeddings(ctx, tx, "transcripts", transcriptBlobs); err != nil {
			return err
		}
		result.Segments, err = updateEmbeddings(ctx, tx, "segments", segmentBlobs)
		return err
	})
	if err != nil {
		return BackfillResult{}, storageError("backfill embeddings", err)
	}

	slog.Default().Info("backfilled embeddings",
		"transcripts", result.Transcripts,
		"segments", result.Segments,
		"degraded", result.Degraded)
	return result, nil
}

func (s *Store) embedPending(ctx context.Context, pending []pendingEmbedding) (map[int64][]byte, int) {
	texts := make([]string, len(pending))
	for i, p := range pending {
		texts[i] = p.Text
	}
	blobs := make(map[int64][]byte, len(pending))
	degraded := 0
	for i, r := range s.generator.EmbedBatch(ctx, texts, 0) {
		if r.Degraded {
			degraded++
			continue
		}
		blobs[pending[i].ID] = encodeEmbedding(r.Vector)
	}
	return blobs, degraded
}

func updateEmbeddings(ctx context.Context, tx *sqlx.Tx, table string, blobs map[int64][]byte) (int, error) {
	updated := 0
	query := fmt.Sprintf("UPDATE %s SET embedding = ? WHERE id = ? AND embedding IS NULL", table)
	for id, blob := range blobs {
		result, err := tx.ExecContext(ctx, query, blob, id)
		if err != nil {
			return 0, fmt.Errorf("tx.ExecContext(%s %d) > %w", table, id, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("result.RowsAffected() > %w", err)
		}
		updated += int(affected)
	}
	return updated, nil
}
