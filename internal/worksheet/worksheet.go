// Package worksheet exports a transcript with its questions as a study worksheet.
package worksheet

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/at-ishikawa/kikitori/internal/assets"
	"github.com/at-ishikawa/kikitori/internal/content"
)

// Writer writes worksheets into an output directory.
type Writer struct {
	outputDirectory string
	templatePath    string
}

func NewWriter(outputDirectory, templatePath string) *Writer {
	return &Writer{
		outputDirectory: outputDirectory,
		templatePath:    templatePath,
	}
}

// Result lists the files written for one worksheet.
type Result struct {
	MarkdownPath string
	PDFPath      string
}

// Write renders transcript-<id>.md, and transcript-<id>.pdf next to it when withPDF is set.
func (w *Writer) Write(transcript *content.Transcript, questions []content.Question, vocabulary []content.VocabularyItem, withPDF bool) (Result, error) {
	var buf bytes.Buffer
	if err := assets.WriteWorksheet(&buf, w.templatePath, NewTemplateData(transcript, questions, vocabulary)); err != nil {
		return Result{}, fmt.Errorf("assets.WriteWorksheet() > %w", err)
	}

	if err := os.MkdirAll(w.outputDirectory, 0755); err != nil {
		return Result{}, fmt.Errorf("os.MkdirAll(%s) > %w", w.outputDirectory, err)
	}
	markdownPath := w.path(transcript, ".md")
	if err := os.WriteFile(markdownPath, buf.Bytes(), 0644); err != nil {
		return Result{}, fmt.Errorf("os.WriteFile(%s) > %w", markdownPath, err)
	}

	result := Result{MarkdownPath: markdownPath}
	if !withPDF {
		return result, nil
	}
	pdfPath, err := writePDF(buf.Bytes(), w.path(transcript, ".pdf"), transcript)
	if err != nil {
		return result, fmt.Errorf("writePDF(%d) > %w", transcript.ID, err)
	}
	result.PDFPath = pdfPath
	return result, nil
}

func (w *Writer) path(transcript *content.Transcript, ext string) string {
	return filepath.Join(w.outputDirectory, fmt.Sprintf("transcript-%d%s", transcript.ID, ext))
}

// NewTemplateData maps a transcript, its questions and its vocabulary onto the worksheet template.
func NewTemplateData(transcript *content.Transcript, questions []content.Question, vocabulary []content.VocabularyItem) assets.WorksheetTemplate {
	title := transcript.Title
	if title == "" {
		title = transcript.SourceURL
	}
	data := assets.WorksheetTemplate{
		Title:     title,
		SourceURL: transcript.SourceURL,
		JLPTLevel: transcript.JLPTLevel.String(),
	}

	for _, segment := range transcript.Segments {
		data.Segments = append(data.Segments, assets.WorksheetSegment{
			Timestamp: FormatTimestamp(segment.StartTime),
			Text:      segment.Text,
		})
	}
	if len(data.Segments) == 0 {
		data.Segments = []assets.WorksheetSegment{{Text: transcript.Content}}
	}

	for _, item := range vocabulary {
		data.Vocabulary = append(data.Vocabulary, assets.WorksheetWord{
			Word:         item.Word,
			Reading:      item.Reading,
			PartOfSpeech: item.PartOfSpeech,
			Meaning:      item.Meaning,
		})
	}

	for i, q := range questions {
		question := assets.WorksheetQuestion{
			Number:      i + 1,
			Text:        q.Text,
			Answer:      q.Answer,
			Explanation: q.Explanation,
		}
		for j, option := range q.Options {
			label := optionLabel(j)
			question.Options = append(question.Options, assets.WorksheetOption{Label: label, Text: option})
			if option == q.Answer {
				question.Answer = label + ". " + option
			}
		}
		data.Questions = append(data.Questions, question)
	}
	return data
}

// optionLabel returns A, B, ... Z, then falls back to the 1-based number.
func optionLabel(i int) string {
	if i < 26 {
		return string(rune('A' + i))
	}
	return fmt.Sprintf("%d", i+1)
}

// FormatTimestamp renders seconds as mm:ss, or h:mm:ss from one hour on.
func FormatTimestamp(seconds *float64) string {
	if seconds == nil {
		return ""
	}
	total := int(*seconds)
	if total >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", total/3600, total%3600/60, total%60)
	}
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
