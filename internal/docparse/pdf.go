package docparse

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFParser extracts page text and a best-effort heading hierarchy from PDF
// bytes. Grounded on bbiangul-go-reason's PDFParser (ledongthuc/pdf page
// iteration, all-caps/numbered-prefix heading heuristic), trimmed of its
// image-extraction machinery: this spec's PDF path only needs prose + table
// text, and images are a Non-goal-adjacent multimodal concern (§9) handled
// upstream of the chunker, not inside every parser backend.
type PDFParser struct{}

func (PDFParser) Supports(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	return ct == "application/pdf"
}

func (PDFParser) Parse(_ context.Context, raw []byte, _ string) (*ParsedDocument, error) {
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, Corrupt(fmt.Errorf("opening pdf: %w", err))
	}

	var body strings.Builder
	var headings []Heading

	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if isLikelyHeading(line) {
				level := headingLevel(line)
				headings = append(headings, Heading{Level: level, Text: line})
				body.WriteString(strings.Repeat("#", level) + " " + line + "\n\n")
			} else {
				body.WriteString(line + "\n")
			}
		}
		body.WriteString("\n")
	}

	if body.Len() == 0 {
		return nil, Corrupt(fmt.Errorf("no extractable text in pdf"))
	}

	return &ParsedDocument{
		MarkdownBody: strings.TrimSpace(body.String()),
		Headings:     headings,
	}, nil
}

func isLikelyHeading(line string) bool {
	if len(line) < 100 && line == strings.ToUpper(line) && len(line) > 2 {
		return true
	}
	if len(line) > 0 && line[0] >= '0' && line[0] <= '9' {
		limit := 10
		if len(line) < limit {
			limit = len(line)
		}
		if strings.Contains(line[:limit], ".") {
			return true
		}
	}
	return false
}

func headingLevel(line string) int {
	parts := strings.SplitN(line, " ", 2)
	if len(parts) > 0 {
		dots := strings.Count(parts[0], ".")
		if dots > 0 {
			if dots > 6 {
				dots = 6
			}
			return dots
		}
	}
	if line == strings.ToUpper(line) {
		return 1
	}
	return 2
}
