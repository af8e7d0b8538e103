package index

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
)

type memoryEntry struct {
	seg IndexedSegment
}

func matches(e IndexedSegment, f Filter) bool {
	if f.SourceType != "" && e.SourceType != f.SourceType {
		return false
	}
	if f.SourceID != "" && e.SourceID != f.SourceID {
		return false
	}
	if f.Project != "" && e.Project != f.Project {
		return false
	}
	if f.Owner != "" && e.Owner != f.Owner {
		return false
	}
	for _, want := range f.Tags {
		found := false
		for _, got := range e.Tags {
			if got == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.UpdatedAfter != nil && e.UpdatedAt < *f.UpdatedAfter {
		return false
	}
	if f.UpdatedBefore != nil && e.UpdatedAt >= *f.UpdatedBefore {
		return false
	}
	return true
}

func metadataOf(e IndexedSegment) map[string]string {
	return map[string]string{
		"document_id": e.DocumentID,
		"source_type": e.SourceType,
		"source_id":   e.SourceID,
		"project":     e.Project,
		"owner":       e.Owner,
	}
}

// MemoryLexical is a naive term-count full text index, grounded on the
// teacher's memorySearch (lowercase substring term counting, no stemming).
type MemoryLexical struct {
	mu       sync.RWMutex
	segments map[string]memoryEntry
}

// NewMemoryLexical constructs an empty MemoryLexical index.
func NewMemoryLexical() *MemoryLexical {
	return &MemoryLexical{segments: make(map[string]memoryEntry)}
}

func (m *MemoryLexical) EnsureIndex(_ context.Context) error { return nil }

func (m *MemoryLexical) BulkUpsert(_ context.Context, segments []IndexedSegment) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range segments {
		m.segments[s.SegmentID] = memoryEntry{seg: s}
	}
	return len(segments), nil
}

func (m *MemoryLexical) DeleteByDocument(_ context.Context, documentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.segments {
		if e.seg.DocumentID == documentID {
			delete(m.segments, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryLexical) SearchText(_ context.Context, query string, filter Filter, k int) ([]Result, error) {
	if k <= 0 {
		k = 10
	}
	terms := strings.Fields(strings.ToLower(query))

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Result
	for id, e := range m.segments {
		if !matches(e.seg, filter) {
			continue
		}
		lt := strings.ToLower(e.seg.Content)
		var score float64
		for _, t := range terms {
			if t == "" {
				continue
			}
			if c := strings.Count(lt, t); c > 0 {
				score += float64(c)
			}
		}
		if score > 0 {
			out = append(out, Result{SegmentID: id, Score: score, Metadata: metadataOf(e.seg)})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].SegmentID < out[j].SegmentID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// MemoryVector is a brute-force cosine-similarity vector index, grounded on
// the teacher's memoryVector.
type MemoryVector struct {
	mu       sync.RWMutex
	segments map[string]memoryEntry
}

// NewMemoryVector constructs an empty MemoryVector index.
func NewMemoryVector() *MemoryVector {
	return &MemoryVector{segments: make(map[string]memoryEntry)}
}

func (m *MemoryVector) EnsureIndex(_ context.Context, _ int) error { return nil }

func (m *MemoryVector) BulkUpsert(_ context.Context, segments []IndexedSegment) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range segments {
		m.segments[s.SegmentID] = memoryEntry{seg: s}
	}
	return len(segments), nil
}

func (m *MemoryVector) DeleteByDocument(_ context.Context, documentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.segments {
		if e.seg.DocumentID == documentID {
			delete(m.segments, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryVector) SearchVector(_ context.Context, vector []float32, filter Filter, k, _ int) ([]Result, error) {
	if k <= 0 {
		k = 10
	}
	qnorm := l2norm(vector)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Result
	for id, e := range m.segments {
		if !matches(e.seg, filter) {
			continue
		}
		out = append(out, Result{SegmentID: id, Score: cosine(vector, e.seg.Embedding, qnorm), Metadata: metadataOf(e.seg)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].SegmentID < out[j].SegmentID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func l2norm(a []float32) float64 {
	var s float64
	for _, x := range a {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var s float64
	for i := 0; i < n; i++ {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func cosine(a, b []float32, anorm float64) float64 {
	if anorm == 0 {
		anorm = l2norm(a)
	}
	bnorm := l2norm(b)
	if anorm == 0 || bnorm == 0 {
		return 0
	}
	return dot(a, b) / (anorm * bnorm)
}

var _ LexicalIndex = (*MemoryLexical)(nil)
var _ VectorIndex = (*MemoryVector)(nil)
