package graphstore

import (
	"context"
	"regexp"
	"strings"
	"time"
)

// GraphStore is the optional temporal knowledge graph per spec §4.7.
type GraphStore interface {
	AddEpisode(ctx context.Context, chunkID, text string, referenceTime time.Time, groupID string, entityTypes []string) (AddEpisodeResult, error)
	RemoveEpisode(ctx context.Context, episodeID string) error
	Search(ctx context.Context, query string, k int) ([]Edge, error)
	Neighborhood(ctx context.Context, entityName string, hops int) ([]Entity, error)
	EntityHistory(ctx context.Context, entityName string, since, asOf *time.Time) ([]Edge, error)
}

// capitalizedRun matches a run of Title-Case words, the naive entity-mention
// heuristic this store uses in place of a real NER/LLM extraction pass —
// spec §4.7 names the shape of entities and edges but not how they are
// mined, and this system has no NLP/NER library anywhere in its dependency
// pack, so a regex-based capitalized-phrase heuristic stands in, matching
// the "entities mined from segments" contract without inventing a dependency.
var capitalizedRun = regexp.MustCompile(`\b([A-Z][a-zA-Z0-9]*(?:\s+[A-Z][a-zA-Z0-9]*){0,3})\b`)

var stopWords = map[string]bool{
	"The": true, "A": true, "An": true, "This": true, "That": true, "It": true,
	"I": true, "We": true, "They": true, "In": true, "On": true, "At": true,
}

// extractEntities returns the distinct capitalized phrases in text, in
// first-seen order, skipping common sentence-initial stop words.
func extractEntities(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range capitalizedRun.FindAllString(text, -1) {
		name := strings.TrimSpace(m)
		if name == "" || stopWords[name] || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// buildEdges connects every pair of entities mentioned in the same episode
// with a "mentioned_with" relation, the minimal co-occurrence signal a
// heuristic extractor can support without a real relation classifier.
func buildEdges(entities []string, episodeID, fact string, at time.Time) []Edge {
	var edges []Edge
	for i := 0; i < len(entities); i++ {
		for j := i + 1; j < len(entities); j++ {
			edges = append(edges, Edge{
				SourceEntity: entities[i],
				Relation:     "mentioned_with",
				TargetEntity: entities[j],
				Fact:         fact,
				EpisodeID:    episodeID,
				ValidAt:      at,
			})
		}
	}
	return edges
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
