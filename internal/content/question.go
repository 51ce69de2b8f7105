package content

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/at-ishikawa/kikitori/internal/database"
)

type questionRecord struct {
	ID           int64     `db:"id"`
	TranscriptID int64     `db:"transcript_id"`
	SegmentID    *int64    `db:"segment_id"`
	Question     string    `db:"question"`
	Options      string    `db:"options"`
	Answer       string    `db:"answer"`
	Explanation  string    `db:"explanation"`
	JLPTLevel    *string   `db:"jlpt_level"`
	QuestionType string    `db:"question_type"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r questionRecord) toQuestion() (Question, error) {
	options, err := unmarshalStrings(r.Options)
	if err != nil {
		return Question{}, fmt.Errorf("question %d options: %w", r.ID, err)
	}
	return Question{
		ID:           r.ID,
		TranscriptID: r.TranscriptID,
		SegmentID:    r.SegmentID,
		Text:         r.Question,
		Options:      options,
		Answer:       r.Answer,
		Explanation:  r.Explanation,
		JLPTLevel:    levelFromNull(r.JLPTLevel),
		Type:         r.QuestionType,
		CreatedAt:    r.CreatedAt,
	}, nil
}

func (q Question) input() QuestionInput {
	return QuestionInput{
		TranscriptID: q.TranscriptID,
		SegmentID:    q.SegmentID,
		Text:         q.Text,
		Options:      q.Options,
		Answer:       q.Answer,
		Explanation:  q.Explanation,
		JLPTLevel:    q.JLPTLevel,
		Type:         q.Type,
	}
}

const questionColumns = `id, transcript_id, segment_id, question, options, answer, explanation, jlpt_level, question_type, created_at`

// validateQuestions checks every input before anything is written.
// The transcript id is checked by the caller when it is not yet known.
func (s *Store) validateQuestions(inputs []QuestionInput, skipTranscriptID bool) ([]QuestionInput, error) {
	validated := make([]QuestionInput, len(inputs))
	for i, input := range inputs {
		if input.Type == "" {
			input.Type = DefaultQuestionType
		}
		var except []string
		if skipTranscriptID {
			except = append(except, "TranscriptID")
		}
		if err := s.validator.check(input, except...); err != nil {
			if verr, ok := err.(*ValidationError); ok && len(inputs) > 1 {
				return nil, &ValidationError{
					Field:   fmt.Sprintf("questions[%d].%s", i, verr.Field),
					Message: verr.Message,
				}
			}
			return nil, err
		}
		validated[i] = input
	}
	return validated, nil
}

// insertQuestions checks segment ownership of every question, then inserts them in order.
func (s *Store) insertQuestions(ctx context.Context, tx *sqlx.Tx, transcriptID int64, inputs []QuestionInput) ([]int64, error) {
	for i, input := range inputs {
		if input.SegmentID == nil {
			continue
		}
		var owner int64
		err := tx.GetContext(ctx, &owner, `SELECT transcript_id FROM segments WHERE id = ?`, *input.SegmentID)
		if err != nil && !isNoRows(err) {
			return nil, fmt.Errorf("tx.GetContext(segment %d) > %w", *input.SegmentID, err)
		}
		if isNoRows(err) || owner != transcriptID {
			return nil, validationErrorf(fmt.Sprintf("questions[%d].SegmentID", i),
				"segment %d does not belong to transcript %d", *input.SegmentID, transcriptID)
		}
	}

	ids := make([]int64, len(inputs))
	createdAt := s.timestamp()
	for i, input := range inputs {
		options, err := marshalStrings(input.Options)
		if err != nil {
			return nil, err
		}
		result, err := tx.ExecContext(ctx, `INSERT INTO questions
			(transcript_id, segment_id, question, options, answer, explanation, jlpt_level, question_type, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			transcriptID,
			input.SegmentID,
			input.Text,
			options,
			input.Answer,
			input.Explanation,
			input.JLPTLevel.nullable(),
			input.Type,
			createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("tx.ExecContext(questions[%d]) > %w", i, err)
		}
		if ids[i], err = result.LastInsertId(); err != nil {
			return nil, fmt.Errorf("result.LastInsertId() > %w", err)
		}
	}
	return ids, nil
}

// AddQuestion stores one question for input.TranscriptID.
func (s *Store) AddQuestion(ctx context.Context, input QuestionInput) (int64, error) {
	ids, err := s.AddQuestionsBatch(ctx, input.TranscriptID, []QuestionInput{input})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// AddQuestionsBatch stores questions for a transcript. Every question is validated first
// and either all of them are stored or none.
func (s *Store) AddQuestionsBatch(ctx context.Context, transcriptID int64, inputs []QuestionInput) ([]int64, error) {
	if len(inputs) == 0 {
		return []int64{}, nil
	}
	withTranscript := make([]QuestionInput, len(inputs))
	for i, input := range inputs {
		input.TranscriptID = transcriptID
		withTranscript[i] = input
	}
	questions, err := s.validateQuestions(withTranscript, false)
	if err != nil {
		return nil, err
	}

	var ids []int64
	err = database.RunInTx(ctx, s.db, func(ctx context.Context, tx *sqlx.Tx) error {
		if err := s.ensureTranscript(ctx, tx, transcriptID); err != nil {
			return err
		}
		var err error
		ids, err = s.insertQuestions(ctx, tx, transcriptID, questions)
		return err
	})
	if err != nil {
		return nil, storageError("add questions", err)
	}
	return ids, nil
}

// GetQuestionsByTranscript returns the questions of a transcript ordered by id,
// limited to level unless it is LevelUnset.
func (s *Store) GetQuestionsByTranscript(ctx context.Context, transcriptID int64, level Level) ([]Question, error) {
	if !level.Valid() {
		return nil, validationErrorf("jlpt_level", "%q is not one of %v", level, Levels)
	}
	query := `SELECT ` + questionColumns + ` FROM questions WHERE transcript_id = ?`
	args := []any{transcriptID}
	if level != LevelUnset {
		query += ` AND jlpt_level = ?`
		args = append(args, string(level))
	}
	query += ` ORDER BY id`

	var records []questionRecord
	if err := s.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, storageError("get questions", err)
	}
	questions := make([]Question, len(records))
	for i, r := range records {
		q, err := r.toQuestion()
		if err != nil {
			return nil, storageError("get questions", err)
		}
		questions[i] = q
	}
	return questions, nil
}

// UpdateQuestion changes the supplied fields of a question and re-validates the result.
// It returns false when the question does not exist.
func (s *Store) UpdateQuestion(ctx context.Context, id int64, update QuestionUpdate) (bool, error) {
	var found bool
	err := database.RunInTx(ctx, s.db, func(ctx context.Context, tx *sqlx.Tx) error {
		var record questionRecord
		if err := tx.GetContext(ctx, &record, `SELECT `+questionColumns+` FROM questions WHERE id = ?`, id); err != nil {
			if isNoRows(err) {
				return nil
			}
			return fmt.Errorf("tx.GetContext(question) > %w", err)
		}
		found = true
		if update.empty() {
			return nil
		}

		current, err := record.toQuestion()
		if err != nil {
			return err
		}
		merged := current.input()
		if update.Text != nil {
			merged.Text = *update.Text
		}
		if update.Options != nil {
			merged.Options = update.Options
		}
		if update.Answer != nil {
			merged.Answer = *update.Answer
		}
		if update.Explanation != nil {
			merged.Explanation = *update.Explanation
		}
		if update.JLPTLevel != nil {
			merged.JLPTLevel = *update.JLPTLevel
		}
		if update.Type != nil {
			merged.Type = *update.Type
		}
		validated, err := s.validateQuestions([]QuestionInput{merged}, false)
		if err != nil {
			return err
		}
		merged = validated[0]

		options, err := marshalStrings(merged.Options)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE questions
			SET question = ?, options = ?, answer = ?, explanation = ?, jlpt_level = ?, question_type = ?
			WHERE id = ?`,
			merged.Text, options, merged.Answer, merged.Explanation, merged.JLPTLevel.nullable(), merged.Type, id); err != nil {
			return fmt.Errorf("tx.ExecContext(questions) > %w", err)
		}
		return nil
	})
	if err != nil {
		return false, storageError("update question", err)
	}
	return found, nil
}

// DeleteQuestion removes a question. It returns false when the question does not exist.
func (s *Store) DeleteQuestion(ctx context.Context, id int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM questions WHERE id = ?`, id)
	if err != nil {
		return false, storageError("delete question", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, storageError("delete question", err)
	}
	return affected > 0, nil
}

// StoreTranscriptWithQuestions stores a transcript, its segments and its questions in one
// transaction. Nothing is persisted when any part fails.
func (s *Store) StoreTranscriptWithQuestions(ctx context.Context, input TranscriptInput, questions []QuestionInput) (TranscriptWithQuestionsResult, error) {
	validated, err := s.validateQuestions(questions, true)
	if err != nil {
		return TranscriptWithQuestionsResult{}, err
	}
	prepared, err := s.prepareTranscript(ctx, input)
	if err != nil {
		return TranscriptWithQuestionsResult{}, err
	}

	var result TranscriptWithQuestionsResult
	err = database.RunInTx(ctx, s.db, func(ctx context.Context, tx *sqlx.Tx) error {
		id, err := s.insertTranscript(ctx, tx, prepared)
		if err != nil {
			return err
		}
		ids, err := s.insertQuestions(ctx, tx, id, validated)
		if err != nil {
			return err
		}
		result = TranscriptWithQuestionsResult{TranscriptID: id, QuestionIDs: ids}
		return nil
	})
	if err != nil {
		return TranscriptWithQuestionsResult{}, storageError("store transcript with questions", err)
	}
	return result, nil
}
