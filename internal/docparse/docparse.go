// Package docparse transforms raw document bytes into the structured shape
// the chunker consumes: a markdown body, ordered tables, ordered images and
// a heading hierarchy, per spec §4.2. Grounded on bbiangul-go-reason's
// parser.Parser/ParseResult shape (generalized here from file-path input to
// in-memory bytes, since connectors already hand back fetched content) and
// its xlsx.go/pdf.go concrete parsers.
package docparse

import "context"

// Heading is one entry of a document's heading hierarchy, in document order.
type Heading struct {
	Level int
	Text  string
}

// Table is one table extracted from the document, rendered as a markdown
// pipe table in Content so the chunker can treat it as ordinary markdown.
type Table struct {
	Caption string
	Content string
}

// Image is one image extracted from the document.
type Image struct {
	Data       []byte
	MIMEType   string
	PageNumber int
	Caption    string
}

// ParsedDocument is the Parser's output.
type ParsedDocument struct {
	MarkdownBody string
	Tables       []Table
	Images       []Image
	Headings     []Heading
}

// Parser transforms raw bytes of a declared content type into a
// ParsedDocument. A concrete type implements exactly one variant (markdown
// passthrough, office, pdf); the variant is chosen by content type at
// dispatch, never by inheritance.
type Parser interface {
	// Supports reports whether this parser handles contentType.
	Supports(contentType string) bool
	// Parse transforms raw into a ParsedDocument.
	Parse(ctx context.Context, raw []byte, contentType string) (*ParsedDocument, error)
}
