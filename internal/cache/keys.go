package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// SearchPrefix is the namespace every hybrid-retrieval cache entry lives
// under, invalidated in full after every successful ingestion run (spec
// §4.8, §4.10 step 12).
const SearchPrefix = "search:"

// SearchKey builds the stable cache key for a fused retrieval result,
// hashing the normalized (query, k, filters) tuple so that equivalent
// requests collide regardless of filter map ordering.
func SearchKey(query string, k int, filters map[string]string) string {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "%s|%d", strings.TrimSpace(strings.ToLower(query)), k)
	for _, key := range keys {
		fmt.Fprintf(&b, "|%s=%s", key, filters[key])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return SearchPrefix + hex.EncodeToString(sum[:])
}

// SessionKey builds the cache key for a conversation's agent-loop session
// state (spec §4.8).
func SessionKey(conversationID string) string {
	return "session:" + conversationID
}
