package content

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/at-ishikawa/kikitori/internal/database"
)

const (
	previewRunes      = 100
	defaultListLimit  = 100
	segmentInsertRows = 100
)

var segmentColumns = []string{"transcript_id", "position", "start_time", "end_time", "text", "embedding"}

type transcriptRecord struct {
	ID        int64     `db:"id"`
	SourceURL string    `db:"source_url"`
	VideoID   *string   `db:"video_id"`
	Title     *string   `db:"title"`
	Content   string    `db:"content"`
	Embedding []byte    `db:"embedding"`
	Metadata  string    `db:"metadata"`
	JLPTLevel *string   `db:"jlpt_level"`
	Language  string    `db:"language"`
	Tags      string    `db:"tags"`
	CreatedAt time.Time `db:"created_at"`
}

func (r transcriptRecord) toTranscript() (*Transcript, error) {
	metadata, err := unmarshalMetadata(r.Metadata)
	if err != nil {
		return nil, fmt.Errorf("transcript %d: %w", r.ID, err)
	}
	tags, err := unmarshalStrings(r.Tags)
	if err != nil {
		return nil, fmt.Errorf("transcript %d tags: %w", r.ID, err)
	}
	return &Transcript{
		ID:        r.ID,
		SourceURL: r.SourceURL,
		VideoID:   stringOrEmpty(r.VideoID),
		Title:     stringOrEmpty(r.Title),
		Content:   r.Content,
		Embedding: r.Embedding,
		Metadata:  metadata,
		JLPTLevel: levelFromNull(r.JLPTLevel),
		Language:  r.Language,
		Tags:      tags,
		CreatedAt: r.CreatedAt,
	}, nil
}

type segmentRecord struct {
	ID           int64    `db:"id"`
	TranscriptID int64    `db:"transcript_id"`
	Position     int      `db:"position"`
	StartTime    *float64 `db:"start_time"`
	EndTime      *float64 `db:"end_time"`
	Text         string   `db:"text"`
	Embedding    []byte   `db:"embedding"`
}

type summaryRecord struct {
	ID           int64     `db:"id"`
	SourceURL    string    `db:"source_url"`
	Title        *string   `db:"title"`
	JLPTLevel    *string   `db:"jlpt_level"`
	ContentHead  string    `db:"content_head"`
	SegmentCount int       `db:"segment_count"`
	CreatedAt    time.Time `db:"created_at"`
}

// preparedTranscript is a validated input with every embedding already computed.
type preparedTranscript struct {
	input     TranscriptInput
	metadata  string
	tags      string
	embedding []byte
	segments  []preparedSegment
}

type preparedSegment struct {
	SegmentInput
	embedding []byte
}

func validateTranscriptInput(input TranscriptInput) error {
	if strings.TrimSpace(input.Content) == "" {
		return validationErrorf("content", "must not be empty")
	}
	if strings.TrimSpace(input.SourceURL) == "" {
		return validationErrorf("source_url", "must not be empty")
	}
	if !input.JLPTLevel.Valid() {
		return validationErrorf("jlpt_level", "%q is not one of %v", input.JLPTLevel, Levels)
	}
	for i, segment := range input.Segments {
		if segment.StartTime != nil && segment.EndTime != nil && *segment.EndTime < *segment.StartTime {
			return validationErrorf(fmt.Sprintf("segments[%d]", i), "end time %.3f is before start time %.3f", *segment.EndTime, *segment.StartTime)
		}
	}
	return nil
}

// segmentInputs returns the non-empty segments of input, splitting Content when none are given.
func segmentInputs(input TranscriptInput) []SegmentInput {
	if len(input.Segments) == 0 {
		sentences := SplitSentences(input.Content)
		segments := make([]SegmentInput, len(sentences))
		for i, sentence := range sentences {
			segments[i] = SegmentInput{Text: sentence}
		}
		return segments
	}

	segments := make([]SegmentInput, 0, len(input.Segments))
	for _, segment := range input.Segments {
		segment.Text = strings.TrimSpace(segment.Text)
		if segment.Text == "" {
			continue
		}
		segments = append(segments, segment)
	}
	return segments
}

func (s *Store) prepareTranscript(ctx context.Context, input TranscriptInput) (*preparedTranscript, error) {
	if err := validateTranscriptInput(input); err != nil {
		return nil, err
	}
	metadata, err := marshalMetadata(input.Metadata)
	if err != nil {
		return nil, err
	}
	tags, err := marshalStrings(input.Tags)
	if err != nil {
		return nil, err
	}
	if input.Language == "" {
		input.Language = DefaultLanguage
	}
	prepared := &preparedTranscript{
		input:    input,
		metadata: metadata,
		tags:     tags,
	}

	if input.Embedding != nil {
		prepared.embedding = encodeEmbedding(input.Embedding)
	} else if result := s.generator.Embed(ctx, input.Content); !result.Degraded {
		prepared.embedding = encodeEmbedding(result.Vector)
	}

	segments := segmentInputs(input)
	texts := make([]string, len(segments))
	for i, segment := range segments {
		texts[i] = segment.Text
	}
	results := s.generator.EmbedBatch(ctx, texts, 0)
	prepared.segments = make([]preparedSegment, len(segments))
	for i, segment := range segments {
		prepared.segments[i] = preparedSegment{SegmentInput: segment}
		// Degraded vectors stay NULL so BackfillEmbeddings can retry them
		if !results[i].Degraded {
			prepared.segments[i].embedding = encodeEmbedding(results[i].Vector)
		}
	}
	return prepared, nil
}

func (s *Store) insertTranscript(ctx context.Context, tx *sqlx.Tx, p *preparedTranscript) (int64, error) {
	result, err := tx.ExecContext(ctx, `INSERT INTO transcripts
		(source_url, video_id, title, content, embedding, metadata, jlpt_level, language, tags, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.input.SourceURL,
		nullIfEmpty(p.input.VideoID),
		nullIfEmpty(p.input.Title),
		p.input.Content,
		blobOrNil(p.embedding),
		p.metadata,
		p.input.JLPTLevel.nullable(),
		p.input.Language,
		p.tags,
		s.timestamp(),
	)
	if err != nil {
		return 0, fmt.Errorf("tx.ExecContext(transcripts) > %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("result.LastInsertId() > %w", err)
	}

	for _, chunk := range database.Chunks(len(p.segments), segmentInsertRows) {
		rows := p.segments[chunk[0]:chunk[1]]
		args := make([]any, 0, len(rows)*len(segmentColumns))
		for i, segment := range rows {
			args = append(args,
				id,
				chunk[0]+i,
				segment.StartTime,
				segment.EndTime,
				segment.Text,
				blobOrNil(segment.embedding),
			)
		}
		query := database.BuildMultiRowInsert("segments", segmentColumns, len(rows))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return 0, fmt.Errorf("tx.ExecContext(segments of %d) > %w", id, err)
		}
	}
	return id, nil
}

// StoreTranscript embeds and stores a transcript, splitting it into positioned segments.
func (s *Store) StoreTranscript(ctx context.Context, input TranscriptInput) (int64, error) {
	prepared, err := s.prepareTranscript(ctx, input)
	if err != nil {
		return 0, err
	}

	var id int64
	err = database.RunInTx(ctx, s.db, func(ctx context.Context, tx *sqlx.Tx) error {
		var err error
		id, err = s.insertTranscript(ctx, tx, prepared)
		return err
	})
	if err != nil {
		return 0, storageError("store transcript", err)
	}

	slog.Default().Debug("stored transcript",
		"id", id,
		"source_url", input.SourceURL,
		"segments", len(prepared.segments))
	return id, nil
}

// GetTranscript returns the transcript with its segments ordered by position,
// or nil when it does not exist.
func (s *Store) GetTranscript(ctx context.Context, id int64) (*Transcript, error) {
	var transcript *Transcript
	err := database.RunInTx(ctx, s.db, func(ctx context.Context, tx *sqlx.Tx) error {
		var record transcriptRecord
		if err := tx.GetContext(ctx, &record, `SELECT
			id, source_url, video_id, title, content, embedding, metadata, jlpt_level, language, tags, created_at
			FROM transcripts WHERE id = ?`, id); err != nil {
			if isNoRows(err) {
				return nil
			}
			return fmt.Errorf("tx.GetContext(transcript) > %w", err)
		}

		var segments []segmentRecord
		if err := tx.SelectContext(ctx, &segments, `SELECT
			id, transcript_id, position, start_time, end_time, text, embedding
			FROM segments WHERE transcript_id = ? ORDER BY position`, id); err != nil {
			return fmt.Errorf("tx.SelectContext(segments) > %w", err)
		}

		var err error
		transcript, err = record.toTranscript()
		if err != nil {
			return err
		}
		transcript.Segments = make([]Segment, len(segments))
		for i, segment := range segments {
			transcript.Segments[i] = Segment(segment)
		}
		return nil
	})
	if err != nil {
		return nil, storageError("get transcript", err)
	}
	return transcript, nil
}

// UpdateTranscript changes the supplied fields of a transcript. It returns false when
// the transcript does not exist. Segments are not re-split when Content changes.
// A non-nil empty Embedding clears the stored embedding.
func (s *Store) UpdateTranscript(ctx context.Context, id int64, update TranscriptUpdate) (bool, error) {
	var (
		sets []string
		args []any
	)
	if update.SourceURL != nil {
		if strings.TrimSpace(*update.SourceURL) == "" {
			return false, validationErrorf("source_url", "must not be empty")
		}
		sets = append(sets, "source_url = ?")
		args = append(args, *update.SourceURL)
	}
	if update.Content != nil {
		if strings.TrimSpace(*update.Content) == "" {
			return false, validationErrorf("content", "must not be empty")
		}
		sets = append(sets, "content = ?")
		args = append(args, *update.Content)
	}
	if update.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, nullIfEmpty(*update.Title))
	}
	if update.Embedding != nil {
		sets = append(sets, "embedding = ?")
		args = append(args, blobOrNil(encodeEmbedding(update.Embedding)))
	}
	if update.Metadata != nil {
		metadata, err := marshalMetadata(update.Metadata)
		if err != nil {
			return false, err
		}
		sets = append(sets, "metadata = ?")
		args = append(args, metadata)
	}
	if update.JLPTLevel != nil {
		if !update.JLPTLevel.Valid() {
			return false, validationErrorf("jlpt_level", "%q is not one of %v", *update.JLPTLevel, Levels)
		}
		sets = append(sets, "jlpt_level = ?")
		args = append(args, update.JLPTLevel.nullable())
	}
	if update.Tags != nil {
		tags, err := marshalStrings(update.Tags)
		if err != nil {
			return false, err
		}
		sets = append(sets, "tags = ?")
		args = append(args, tags)
	}

	var found bool
	err := database.RunInTx(ctx, s.db, func(ctx context.Context, tx *sqlx.Tx) error {
		var err error
		found, err = s.transcriptExists(ctx, tx, id)
		if err != nil || !found || update.empty() {
			return err
		}
		query := fmt.Sprintf("UPDATE transcripts SET %s WHERE id = ?", strings.Join(sets, ", "))
		if _, err := tx.ExecContext(ctx, query, append(args, id)...); err != nil {
			return fmt.Errorf("tx.ExecContext(transcripts) > %w", err)
		}
		return nil
	})
	if err != nil {
		return false, storageError("update transcript", err)
	}
	return found, nil
}

// SetTranscriptLevel records the JLPT classification of a transcript.
func (s *Store) SetTranscriptLevel(ctx context.Context, id int64, level Level) (bool, error) {
	return s.UpdateTranscript(ctx, id, TranscriptUpdate{JLPTLevel: &level})
}

// DeleteTranscript removes a transcript with its vocabulary, questions and segments.
// It returns false when the transcript does not exist.
func (s *Store) DeleteTranscript(ctx context.Context, id int64) (bool, error) {
	var found bool
	err := database.RunInTx(ctx, s.db, func(ctx context.Context, tx *sqlx.Tx) error {
		var err error
		found, err = s.transcriptExists(ctx, tx, id)
		if err != nil || !found {
			return err
		}
		for _, table := range []string{"vocabulary", "questions", "segments"} {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE transcript_id = ?", table), id); err != nil {
				return fmt.Errorf("tx.ExecContext(DELETE %s) > %w", table, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM transcripts WHERE id = ?`, id); err != nil {
			return fmt.Errorf("tx.ExecContext(DELETE transcripts) > %w", err)
		}
		return nil
	})
	if err != nil {
		return false, storageError("delete transcript", err)
	}
	return found, nil
}

const summaryColumns = `t.id, t.source_url, t.title, t.jlpt_level, t.created_at,
	substr(t.content, 1, ?) AS content_head,
	(SELECT COUNT(*) FROM segments s WHERE s.transcript_id = t.id) AS segment_count`

// ListTranscripts returns transcript summaries, newest first.
func (s *Store) ListTranscripts(ctx context.Context, limit, offset int) ([]TranscriptSummary, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	var records []summaryRecord
	if err := s.db.SelectContext(ctx, &records, `SELECT `+summaryColumns+`
		FROM transcripts t
		ORDER BY t.created_at DESC, t.id DESC
		LIMIT ? OFFSET ?`, previewRunes+1, limit, offset); err != nil {
		return nil, storageError("list transcripts", err)
	}
	return toSummaries(records), nil
}

// SearchTranscripts returns transcripts whose content contains substring, newest first.
// Matching is case-sensitive and unranked.
func (s *Store) SearchTranscripts(ctx context.Context, substring string) ([]TranscriptSummary, error) {
	var records []summaryRecord
	if err := s.db.SelectContext(ctx, &records, `SELECT `+summaryColumns+`
		FROM transcripts t
		WHERE instr(t.content, ?) > 0
		ORDER BY t.created_at DESC, t.id DESC`, previewRunes+1, substring); err != nil {
		return nil, storageError("search transcripts", err)
	}
	return toSummaries(records), nil
}

func toSummaries(records []summaryRecord) []TranscriptSummary {
	summaries := make([]TranscriptSummary, len(records))
	for i, r := range records {
		summaries[i] = TranscriptSummary{
			ID:           r.ID,
			SourceURL:    r.SourceURL,
			Title:        stringOrEmpty(r.Title),
			JLPTLevel:    levelFromNull(r.JLPTLevel),
			Preview:      Preview(r.ContentHead, previewRunes),
			SegmentCount: r.SegmentCount,
			CreatedAt:    r.CreatedAt,
		}
	}
	return summaries
}

// Preview truncates text to n runes, appending "..." when it was longer.
func Preview(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
