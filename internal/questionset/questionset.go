// Package questionset reads comprehension questions from YAML files for batch import.
package questionset

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/at-ishikawa/kikitori/internal/content"
)

// File is a question-set document.
//
//	transcript_id: 12
//	questions:
//	  - question: 学生はどこに住んでいますか。
//	    options: [東京, 大阪, 京都]
//	    answer: 京都
//	    segment_position: 1
type File struct {
	TranscriptID int64      `yaml:"transcript_id"`
	Questions    []Question `yaml:"questions"`
}

type Question struct {
	Question    string   `yaml:"question"`
	Options     []string `yaml:"options"`
	Answer      string   `yaml:"answer"`
	Explanation string   `yaml:"explanation,omitempty"`
	JLPTLevel   string   `yaml:"jlpt_level,omitempty"`
	Type        string   `yaml:"type,omitempty"`
	// SegmentPosition ties the question to the transcript segment at that position.
	SegmentPosition *int `yaml:"segment_position,omitempty"`
}

// Load reads a question-set file. Unknown keys are rejected.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("os.Open(%s) > %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	return Decode(f)
}

func Decode(r io.Reader) (*File, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var file File
	if err := decoder.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("question set is empty")
		}
		return nil, fmt.Errorf("decoder.Decode() > %w", err)
	}
	if len(file.Questions) == 0 {
		return nil, fmt.Errorf("question set has no questions")
	}
	return &file, nil
}

// QuestionInputs converts the questions for transcript, resolving segment positions to ids.
func (f *File) QuestionInputs(transcript *content.Transcript) ([]content.QuestionInput, error) {
	segmentIDs := make(map[int]int64, len(transcript.Segments))
	for _, segment := range transcript.Segments {
		segmentIDs[segment.Position] = segment.ID
	}

	inputs := make([]content.QuestionInput, len(f.Questions))
	for i, q := range f.Questions {
		level, err := content.ParseLevel(q.JLPTLevel)
		if err != nil {
			return nil, fmt.Errorf("questions[%d]: %w", i, err)
		}
		input := content.QuestionInput{
			TranscriptID: transcript.ID,
			Text:         q.Question,
			Options:      q.Options,
			Answer:       q.Answer,
			Explanation:  q.Explanation,
			JLPTLevel:    level,
			Type:         q.Type,
		}
		if q.SegmentPosition != nil {
			id, ok := segmentIDs[*q.SegmentPosition]
			if !ok {
				return nil, fmt.Errorf("questions[%d]: transcript %d has no segment at position %d", i, transcript.ID, *q.SegmentPosition)
			}
			input.SegmentID = &id
		}
		inputs[i] = input
	}
	return inputs, nil
}
