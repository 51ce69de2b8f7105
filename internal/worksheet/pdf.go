package worksheet

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mandolyte/mdtopdf"

	"github.com/at-ishikawa/kikitori/internal/content"
)

// writePDF renders a worksheet's markdown to pdfPath with the transcript as document title.
func writePDF(markdown []byte, pdfPath string, transcript *content.Transcript) (string, error) {
	if filepath.Ext(pdfPath) != ".pdf" {
		return "", fmt.Errorf("output file must have .pdf extension: %s", pdfPath)
	}

	renderer := mdtopdf.NewPdfRenderer("P", "A4", pdfPath, "", nil, mdtopdf.LIGHT)
	renderer.Pdf.SetTitle(documentTitle(transcript), true)
	renderer.Pdf.SetSubject(transcript.SourceURL, true)
	if err := renderer.Process(stripTimestampCode(markdown)); err != nil {
		return "", fmt.Errorf("renderer.Process(%s) > %w", pdfPath, err)
	}

	absPath, err := filepath.Abs(pdfPath)
	if err != nil {
		return pdfPath, nil
	}
	return absPath, nil
}

func documentTitle(transcript *content.Transcript) string {
	title := strings.TrimSpace(transcript.Title)
	if title == "" {
		title = fmt.Sprintf("Transcript %d", transcript.ID)
	}
	if transcript.JLPTLevel != "" {
		title = fmt.Sprintf("%s (%s)", title, transcript.JLPTLevel)
	}
	return title
}

// stripTimestampCode turns the `01:05` segment timestamps into [01:05].
// mdtopdf draws inline code as a shaded box that breaks the transcript lines.
func stripTimestampCode(markdown []byte) []byte {
	lines := strings.Split(string(markdown), "\n")
	for i, line := range lines {
		if !strings.HasPrefix(line, "`") {
			continue
		}
		end := strings.Index(line[1:], "`")
		if end < 0 {
			continue
		}
		lines[i] = "[" + line[1:end+1] + "]" + line[end+2:]
	}
	return []byte(strings.Join(lines, "\n"))
}
