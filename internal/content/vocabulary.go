package content

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/at-ishikawa/kikitori/internal/database"
)

const vocabularyInsertRows = 100

var vocabularyColumns = []string{"transcript_id", "word", "reading", "meaning", "jlpt_level", "part_of_speech", "example", "frequency"}

type vocabularyRecord struct {
	ID           int64   `db:"id"`
	TranscriptID int64   `db:"transcript_id"`
	Word         string  `db:"word"`
	Reading      string  `db:"reading"`
	Meaning      string  `db:"meaning"`
	JLPTLevel    *string `db:"jlpt_level"`
	PartOfSpeech string  `db:"part_of_speech"`
	Example      string  `db:"example"`
	Frequency    int     `db:"frequency"`
}

// AddVocabulary appends vocabulary items to a transcript and returns their ids in input order.
// A zero Frequency is stored as 1.
func (s *Store) AddVocabulary(ctx context.Context, transcriptID int64, items []VocabularyItem) ([]int64, error) {
	if len(items) == 0 {
		return []int64{}, nil
	}
	rows := make([]VocabularyItem, len(items))
	for i, item := range items {
		item.Word = strings.TrimSpace(item.Word)
		if err := s.validator.check(item); err != nil {
			if verr, ok := err.(*ValidationError); ok {
				verr.Field = fmt.Sprintf("vocabulary[%d].%s", i, verr.Field)
			}
			return nil, err
		}
		if item.Frequency == 0 {
			item.Frequency = 1
		}
		rows[i] = item
	}

	ids := make([]int64, 0, len(rows))
	err := database.RunInTx(ctx, s.db, func(ctx context.Context, tx *sqlx.Tx) error {
		if err := s.ensureTranscript(ctx, tx, transcriptID); err != nil {
			return err
		}
		for _, chunk := range database.Chunks(len(rows), vocabularyInsertRows) {
			batch := rows[chunk[0]:chunk[1]]
			args := make([]any, 0, len(batch)*len(vocabularyColumns))
			for _, item := range batch {
				args = append(args,
					transcriptID,
					item.Word,
					item.Reading,
					item.Meaning,
					item.JLPTLevel.nullable(),
					item.PartOfSpeech,
					item.Example,
					item.Frequency,
				)
			}
			result, err := tx.ExecContext(ctx, database.BuildMultiRowInsert("vocabulary", vocabularyColumns, len(batch)), args...)
			if err != nil {
				return fmt.Errorf("tx.ExecContext(vocabulary) > %w", err)
			}
			// A multi-row insert assigns consecutive rowids and reports the last one
			last, err := result.LastInsertId()
			if err != nil {
				return fmt.Errorf("result.LastInsertId() > %w", err)
			}
			for id := last - int64(len(batch)) + 1; id <= last; id++ {
				ids = append(ids, id)
			}
		}
		return nil
	})
	if err != nil {
		return nil, storageError("add vocabulary", err)
	}
	return ids, nil
}

// GetVocabularyByTranscript returns the vocabulary of a transcript, most frequent first.
func (s *Store) GetVocabularyByTranscript(ctx context.Context, transcriptID int64) ([]VocabularyItem, error) {
	var records []vocabularyRecord
	if err := s.db.SelectContext(ctx, &records, `SELECT
		id, transcript_id, word, reading, meaning, jlpt_level, part_of_speech, example, frequency
		FROM vocabulary WHERE transcript_id = ?
		ORDER BY frequency DESC, id`, transcriptID); err != nil {
		return nil, storageError("get vocabulary", err)
	}
	items := make([]VocabularyItem, len(records))
	for i, r := range records {
		items[i] = VocabularyItem{
			ID:           r.ID,
			TranscriptID: r.TranscriptID,
			Word:         r.Word,
			Reading:      r.Reading,
			Meaning:      r.Meaning,
			JLPTLevel:    levelFromNull(r.JLPTLevel),
			PartOfSpeech: r.PartOfSpeech,
			Example:      r.Example,
			Frequency:    r.Frequency,
		}
	}
	return items, nil
}
