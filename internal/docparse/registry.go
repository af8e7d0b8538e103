package docparse

import "context"

// Registry dispatches to the first registered Parser that supports a given
// content type, mirroring bbiangul-go-reason's registry.go dispatch pattern
// generalized from file-extension dispatch to declared-content-type dispatch.
type Registry struct {
	parsers []Parser
}

// NewRegistry builds a Registry with the standard parser set: markdown
// passthrough, office (xlsx + Drive-exported html), and pdf. Order matters:
// the markdown parser is checked last since it also accepts "" / octet-stream
// as a catch-all.
func NewRegistry() *Registry {
	return &Registry{parsers: []Parser{
		OfficeParser{},
		PDFParser{},
		MarkdownParser{},
	}}
}

// Parse dispatches raw/contentType to the first parser that supports it.
func (r *Registry) Parse(ctx context.Context, raw []byte, contentType string) (*ParsedDocument, error) {
	for _, p := range r.parsers {
		if p.Supports(contentType) {
			return p.Parse(ctx, raw, contentType)
		}
	}
	return nil, UnsupportedType(contentType)
}
