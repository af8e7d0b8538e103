package docparse

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/xuri/excelize/v2"
)

// OfficeParser handles spreadsheets (xlsx) by rendering each sheet as a
// markdown table, and Drive-exported Google Docs (text/html) by converting
// to markdown. Grounded on bbiangul-go-reason's XLSXParser (one Section per
// sheet, pipe-table rendering) and the teacher's internal/tools/web/fetch.go
// use of htmltomarkdown.ConvertString for HTML→Markdown conversion.
type OfficeParser struct{}

func (OfficeParser) Supports(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	switch ct {
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"application/vnd.ms-excel",
		"text/html":
		return true
	}
	return false
}

func (OfficeParser) Parse(_ context.Context, raw []byte, contentType string) (*ParsedDocument, error) {
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if ct == "text/html" {
		return parseHTML(raw)
	}
	return parseXLSX(raw)
}

func parseHTML(raw []byte) (*ParsedDocument, error) {
	md, err := htmltomarkdown.ConvertString(string(raw))
	if err != nil {
		return nil, Corrupt(fmt.Errorf("html to markdown: %w", err))
	}
	md = strings.TrimSpace(md)
	return &ParsedDocument{
		MarkdownBody: md,
		Headings:     extractHeadings(md),
	}, nil
}

func parseXLSX(raw []byte) (*ParsedDocument, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, Corrupt(fmt.Errorf("opening xlsx: %w", err))
	}
	defer f.Close()

	var tables []Table
	var headings []Heading
	var body strings.Builder

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}
		var content strings.Builder
		for i, row := range rows {
			content.WriteString("| " + strings.Join(row, " | ") + " |\n")
			if i == 0 {
				sep := make([]string, len(row))
				for j := range sep {
					sep[j] = "---"
				}
				content.WriteString("| " + strings.Join(sep, " | ") + " |\n")
			}
		}
		tables = append(tables, Table{Caption: sheet, Content: content.String()})
		headings = append(headings, Heading{Level: 1, Text: sheet})
		body.WriteString("## " + sheet + "\n\n")
		body.WriteString(content.String())
		body.WriteString("\n\n")
	}

	if len(tables) == 0 {
		return nil, Corrupt(fmt.Errorf("no data found in xlsx"))
	}

	return &ParsedDocument{
		MarkdownBody: strings.TrimSpace(body.String()),
		Tables:       tables,
		Headings:     headings,
	}, nil
}
