package index

import "sort"

// Fuse combines a lexical rank list and a vector rank list with Reciprocal
// Rank Fusion per spec §4.13: score(d) = Σ 1/(rankConstant + rank(d)) over
// the lists containing d, ranks 1-based. Ties break by lower original vector
// rank, then by segment id. The top k fused results are returned.
func Fuse(lexical, vector []Result, k, rankConstant int) []Result {
	if rankConstant <= 0 {
		rankConstant = 60
	}

	type entry struct {
		result    Result
		score     float64
		vectorRank int // 0 means "absent from the vector list"
	}

	byID := make(map[string]*entry)
	order := func(id string) *entry {
		e, ok := byID[id]
		if !ok {
			e = &entry{}
			byID[id] = e
		}
		return e
	}

	for i, r := range lexical {
		e := order(r.SegmentID)
		e.result = r
		e.score += 1.0 / float64(rankConstant+i+1)
	}
	for i, r := range vector {
		e := order(r.SegmentID)
		if e.result.SegmentID == "" {
			e.result = r
		} else if e.result.Metadata == nil {
			e.result.Metadata = r.Metadata
		}
		e.score += 1.0 / float64(rankConstant+i+1)
		e.vectorRank = i + 1
	}

	fused := make([]entry, 0, len(byID))
	for _, e := range byID {
		fused = append(fused, *e)
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		ri, rj := fused[i].vectorRank, fused[j].vectorRank
		if ri == 0 {
			ri = len(vector) + 1
		}
		if rj == 0 {
			rj = len(vector) + 1
		}
		if ri != rj {
			return ri < rj
		}
		return fused[i].result.SegmentID < fused[j].result.SegmentID
	})

	if k > 0 && len(fused) > k {
		fused = fused[:k]
	}

	out := make([]Result, len(fused))
	for i, e := range fused {
		out[i] = e.result
		out[i].Score = e.score
	}
	return out
}
