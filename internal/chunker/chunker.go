// Package chunker splits a parsed document into ordered, token-bounded
// chunks with stable section paths and a per-chunk type tag, per spec §4.3.
// Grounded on the teacher's internal/rag/chunker.SimpleChunker — this
// package keeps its block-accumulation strategy and 4-chars-per-token
// heuristic (targetLen) but replaces "strategy hint from options" dispatch
// with the spec's single deterministic algorithm: respect heading and table
// boundaries, never split inside a table row, tag each chunk's type, and
// derive section_path from the innermost enclosing heading stack.
package chunker

import (
	"strings"

	"github.com/manifold-labs/knowledgebase/internal/docparse"
	"github.com/manifold-labs/knowledgebase/internal/fingerprint"
)

// SegmentType is the closed set of per-chunk type tags spec §3 defines.
type SegmentType string

const (
	SegmentText  SegmentType = "text"
	SegmentTable SegmentType = "table"
	SegmentImage SegmentType = "image"
	SegmentCode  SegmentType = "code"
)

// Chunk is one ordered unit of chunker output.
type Chunk struct {
	Content     string
	ContentHash string
	SectionPath string // joined "A > B > C", empty means none
	SegmentType SegmentType
	Position    int
}

const charsPerToken = 4

// targetChars converts a token budget to the chunker's internal character
// budget using the teacher's rough 4-chars-per-token heuristic.
func targetChars(maxTokens int) int {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	tgt := maxTokens * charsPerToken
	if tgt < 32 {
		tgt = 32
	}
	return tgt
}

// block is one indivisible unit considered for accumulation into a chunk:
// a paragraph, a whole table, or a whole fenced code block. Blocks are
// never split across a chunk boundary internally (a table's rows, or a
// code fence's lines, always stay together).
type block struct {
	text        string
	segmentType SegmentType
	sectionPath string
}

// Chunk splits parsed into ordered, token-bounded Chunks. maxTokens is the
// per-chunk target size (spec §4.3's max_tokens). Blocks are never split,
// so a single paragraph, table or code fence longer than the budget becomes
// one chunk that exceeds it. Images carried on parsed
// are appended as their own image-type chunks with no section path, per
// spec §9's multimodal placement rule.
func Chunk(parsed *docparse.ParsedDocument, maxTokens int) []Chunk {
	tgt := targetChars(maxTokens)
	blocks := splitBlocks(parsed.MarkdownBody)
	chunks := accumulate(blocks, tgt)

	for _, img := range parsed.Images {
		caption := img.Caption
		if caption == "" {
			caption = "image"
		}
		chunks = append(chunks, Chunk{
			Content:     caption,
			SegmentType: SegmentImage,
			SectionPath: "",
		})
	}

	for i := range chunks {
		chunks[i].Position = i
		chunks[i].ContentHash = fingerprint.Chunk(chunks[i].Content)
	}
	return chunks
}

// splitBlocks walks body line by line, grouping consecutive table rows and
// fenced code lines into single indivisible blocks, and stamping every
// block with the heading stack active at its start.
func splitBlocks(body string) []block {
	lines := strings.Split(body, "\n")
	stack := newHeadingStack()

	var blocks []block
	var buf strings.Builder
	bufType := SegmentText

	flush := func() {
		text := strings.TrimSpace(buf.String())
		if text != "" {
			blocks = append(blocks, block{text: text, segmentType: bufType, sectionPath: stack.path()})
		}
		buf.Reset()
		bufType = SegmentText
	}

	inFence := false
	inTable := false

	for i := 0; i < len(lines); i++ {
		ln := lines[i]
		trimmed := strings.TrimSpace(ln)

		if strings.HasPrefix(trimmed, "```") {
			if !inFence {
				flush()
				inFence = true
				bufType = SegmentCode
			} else {
				buf.WriteString(ln)
				flush()
				inFence = false
				continue
			}
			buf.WriteString(ln)
			buf.WriteString("\n")
			continue
		}
		if inFence {
			buf.WriteString(ln)
			buf.WriteString("\n")
			continue
		}

		if level, text, ok := parseHeading(trimmed); ok {
			flush()
			stack.push(level, text)
			continue
		}

		isTableRow := strings.HasPrefix(trimmed, "|")
		if isTableRow {
			if !inTable {
				flush()
				inTable = true
				bufType = SegmentTable
			}
			buf.WriteString(ln)
			buf.WriteString("\n")
			continue
		}
		if inTable {
			flush()
			inTable = false
		}

		if trimmed == "" {
			flush()
			continue
		}
		buf.WriteString(ln)
		buf.WriteString("\n")
	}
	flush()
	return blocks
}

// accumulate packs blocks into chunks up to tgt characters, never splitting
// a single block (table, code fence, or paragraph) across a boundary,
// and always starting a new chunk when the section path changes so
// section_path remains exact per chunk.
func accumulate(blocks []block, tgt int) []Chunk {
	var out []Chunk
	var buf strings.Builder
	var curPath string
	curType := SegmentText

	flush := func() {
		text := strings.TrimSpace(buf.String())
		if text == "" {
			buf.Reset()
			return
		}
		out = append(out, Chunk{Content: text, SectionPath: curPath, SegmentType: curType})
		buf.Reset()
	}

	for _, b := range blocks {
		// Tables and code blocks never merge with surrounding prose; each
		// becomes its own chunk (never split inside a table row).
		if b.segmentType == SegmentTable || b.segmentType == SegmentCode {
			flush()
			out = append(out, Chunk{Content: b.text, SectionPath: b.sectionPath, SegmentType: b.segmentType})
			continue
		}
		if b.sectionPath != curPath && buf.Len() > 0 {
			flush()
		}
		curPath = b.sectionPath
		curType = SegmentText
		if buf.Len()+len(b.text)+1 > tgt && buf.Len() > 0 {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(b.text)
	}
	flush()
	return out
}

func parseHeading(trimmed string) (level int, text string, ok bool) {
	if !strings.HasPrefix(trimmed, "#") {
		return 0, "", false
	}
	n := 0
	for n < len(trimmed) && trimmed[n] == '#' {
		n++
	}
	if n > 6 || n >= len(trimmed) || trimmed[n] != ' ' {
		return 0, "", false
	}
	text = strings.TrimSpace(trimmed[n:])
	if text == "" {
		return 0, "", false
	}
	return n, text, true
}

// headingStack tracks the currently open heading at each level, so a chunk
// starting under "## B" nested under "# A" gets section_path "A > B".
type headingStack struct {
	levels []string // 1-indexed by heading level, empty string if unset
}

func newHeadingStack() *headingStack {
	return &headingStack{levels: make([]string, 7)}
}

func (h *headingStack) push(level int, text string) {
	h.levels[level] = text
	for l := level + 1; l < len(h.levels); l++ {
		h.levels[l] = ""
	}
}

func (h *headingStack) path() string {
	var parts []string
	for _, l := range h.levels {
		if l != "" {
			parts = append(parts, l)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, " > ")
}
