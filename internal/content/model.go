package content

import (
	"time"
)

const (
	DefaultLanguage     = "ja"
	DefaultQuestionType = "multiple_choice"
)

// Transcript is a stored body of Japanese text with its segments.
// Metadata is stored as JSON and read back JSON-normalized (see NormalizeMetadata),
// so an int 95 comes back as json.Number("95") without losing precision.
type Transcript struct {
	ID        int64
	SourceURL string
	VideoID   string
	Title     string
	Content   string
	Embedding []byte
	Metadata  map[string]any
	JLPTLevel Level
	Language  string
	Tags      []string
	CreatedAt time.Time
	Segments  []Segment
}

// Segment is a sentence-level slice of a transcript, the unit of semantic retrieval.
type Segment struct {
	ID           int64
	TranscriptID int64
	Position     int
	StartTime    *float64
	EndTime      *float64
	Text         string
	Embedding    []byte
}

// SegmentInput is a pre-split, optionally timed slice of a transcript such as a subtitle cue.
type SegmentInput struct {
	Text      string
	StartTime *float64
	EndTime   *float64
}

// TranscriptInput holds the fields of a new transcript.
// Embedding, when set, is used instead of embedding Content.
// Segments, when set, replace sentence splitting of Content.
type TranscriptInput struct {
	SourceURL string
	Content   string
	VideoID   string
	Title     string
	Metadata  map[string]any
	JLPTLevel Level
	Language  string
	Tags      []string
	Embedding []float32
	Segments  []SegmentInput
}

// TranscriptUpdate lists the fields to change; nil fields stay untouched.
type TranscriptUpdate struct {
	SourceURL *string
	Content   *string
	Title     *string
	Embedding []float32
	Metadata  map[string]any
	JLPTLevel *Level
	Tags      []string
}

func (u TranscriptUpdate) empty() bool {
	return u.SourceURL == nil && u.Content == nil && u.Title == nil && u.Embedding == nil &&
		u.Metadata == nil && u.JLPTLevel == nil && u.Tags == nil
}

// TranscriptSummary is the listing form of a transcript.
type TranscriptSummary struct {
	ID           int64
	SourceURL    string
	Title        string
	JLPTLevel    Level
	Preview      string
	SegmentCount int
	CreatedAt    time.Time
}

// Question is a comprehension question about a transcript.
type Question struct {
	ID           int64
	TranscriptID int64
	SegmentID    *int64
	Text         string
	Options      []string
	Answer       string
	Explanation  string
	JLPTLevel    Level
	Type         string
	CreatedAt    time.Time
}

// QuestionInput holds the fields of a new question.
type QuestionInput struct {
	TranscriptID int64    `validate:"gt=0"`
	SegmentID    *int64   `validate:"omitempty,gt=0"`
	Text         string   `validate:"required"`
	Options      []string `validate:"min=2,dive,required"`
	Answer       string   `validate:"required"`
	Explanation  string
	JLPTLevel    Level `validate:"jlpt"`
	Type         string
}

// QuestionUpdate lists the fields to change; nil fields stay untouched.
type QuestionUpdate struct {
	Text        *string
	Options     []string
	Answer      *string
	Explanation *string
	JLPTLevel   *Level
	Type        *string
}

func (u QuestionUpdate) empty() bool {
	return u.Text == nil && u.Options == nil && u.Answer == nil && u.Explanation == nil &&
		u.JLPTLevel == nil && u.Type == nil
}

// TranscriptWithQuestionsResult reports the rows created by StoreTranscriptWithQuestions.
type TranscriptWithQuestionsResult struct {
	TranscriptID int64
	QuestionIDs  []int64
}

// VocabularyItem is a word extracted from a transcript.
type VocabularyItem struct {
	ID           int64
	TranscriptID int64
	Word         string `validate:"required"`
	Reading      string
	Meaning      string
	JLPTLevel    Level `validate:"jlpt"`
	PartOfSpeech string
	Example      string
	Frequency    int `validate:"gte=0"`
}

// SegmentCandidate is an embedded segment joined with its transcript, as scanned by search.
type SegmentCandidate struct {
	SegmentID    int64
	TranscriptID int64
	Text         string
	SourceURL    string
	Title        string
	JLPTLevel    Level
	Embedding    []byte
}

// BackfillResult counts rows touched by BackfillEmbeddings.
type BackfillResult struct {
	Transcripts int
	Segments    int
	Degraded    int
}

// Stats summarizes the store.
type Stats struct {
	Path                string
	Transcripts         int
	Segments            int
	Questions           int
	Vocabulary          int
	EmbeddedTranscripts int
	EmbeddedSegments    int
	SizeBytes           int64
	LastModified        time.Time
	TranscriptLevels    map[Level]int
	QuestionLevels      map[Level]int
}
