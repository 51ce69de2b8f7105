package assets

import (
	_ "embed"
	"fmt"
	"io"
)

const worksheetTemplateName = "worksheet.md.go.tmpl"

//go:embed templates/worksheet.md.go.tmpl
var fallbackWorksheetTemplate string

// WorksheetTemplate is the data passed to the worksheet template.
type WorksheetTemplate struct {
	Title      string
	SourceURL  string
	JLPTLevel  string
	Segments   []WorksheetSegment
	Vocabulary []WorksheetWord
	Questions  []WorksheetQuestion
}

type WorksheetSegment struct {
	Timestamp string
	Text      string
}

type WorksheetWord struct {
	Word         string
	Reading      string
	PartOfSpeech string
	Meaning      string
}

type WorksheetQuestion struct {
	Number      int
	Text        string
	Options     []WorksheetOption
	Answer      string
	Explanation string
}

type WorksheetOption struct {
	Label string
	Text  string
}

// WriteWorksheet renders data with the template at templatePath, or with the embedded
// template when templatePath is empty or cannot be parsed.
func WriteWorksheet(output io.Writer, templatePath string, data WorksheetTemplate) error {
	tmpl, err := parseTemplateWithFallback(templatePath, worksheetTemplateName, fallbackWorksheetTemplate)
	if err != nil {
		return fmt.Errorf("parseTemplateWithFallback() > %w", err)
	}
	if err := tmpl.Execute(output, data); err != nil {
		return fmt.Errorf("tmpl.Execute() > %w", err)
	}
	return nil
}
