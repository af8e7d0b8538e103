// Package fingerprint computes the content hashes the engine uses for
// document-level idempotency and chunk-level diffing. Grounded on the
// teacher's internal/rag/ingest/preprocess.go ComputeHash.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var blankLineRun = regexp.MustCompile(`\n{3,}`)
var spaceRun = regexp.MustCompile(`[ \t]{2,}`)

// NormalizeWhitespace canonicalizes line endings and collapses redundant
// whitespace before hashing, so trivial re-saves of an otherwise identical
// document or chunk do not register as changed content.
func NormalizeWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = spaceRun.ReplaceAllString(text, " ")
	text = blankLineRun.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Document hashes a document's normalized byte content together with its
// source identity, so two connectors surfacing the same bytes under
// different source/url pairs are not treated as the same document.
func Document(text, source, url string) string {
	return hash(NormalizeWhitespace(text), source, url)
}

// Chunk hashes a single segment's normalized text. Two chunks with identical
// hashes are treated as unchanged across a re-ingest regardless of position,
// per the chunk-level diff contract.
func Chunk(text string) string {
	return hash(NormalizeWhitespace(text))
}

func hash(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{'|'})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
