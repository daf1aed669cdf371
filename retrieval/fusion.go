package retrieval

import (
	"sort"

	"github.com/veritas-eu/orchestrator-core/domain"
)

// sourceRanking is one sub-source's ranked result list, used as fusion
// input.
type sourceRanking struct {
	kind    domain.SourceKind
	weight  float64
	results []domain.RetrievalResult
}

// fuse applies Reciprocal-Rank Fusion (k configurable, contract default
// 60): a document at 1-based rank r in source s contributes 1/(k+r),
// multiplied by that source's weight (default 1). Contributions sum across
// sources a document appears in. Ties are broken by the higher maximum
// per-source relevance score, then by document ID for full determinism.
func fuse(rankings []sourceRanking, rrfK int) []domain.RetrievalResult {
	type acc struct {
		result      domain.RetrievalResult
		score       float64
		maxPerSource float64
		citations   []domain.Citation
	}
	byDoc := make(map[string]*acc)
	var order []string

	for _, ranking := range rankings {
		for i, r := range ranking.results {
			rank := i + 1
			contribution := ranking.weight * (1.0 / float64(rrfK+rank))

			a, exists := byDoc[r.DocumentID]
			if !exists {
				a = &acc{result: r}
				byDoc[r.DocumentID] = a
				order = append(order, r.DocumentID)
			}
			a.score += contribution
			if r.RelevanceScore > a.maxPerSource {
				a.maxPerSource = r.RelevanceScore
			}
			for _, c := range r.Citations {
				c.RankInSource = rank
				a.citations = append(a.citations, c)
			}
		}
	}

	fused := make([]domain.RetrievalResult, 0, len(order))
	for _, docID := range order {
		a := byDoc[docID]
		result := a.result
		result.RelevanceScore = a.score
		result.SourceKind = domain.SourceFused
		result.Citations = a.citations
		fused = append(fused, result)
	}

	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].RelevanceScore != fused[j].RelevanceScore {
			return fused[i].RelevanceScore > fused[j].RelevanceScore
		}
		maxI := byDoc[fused[i].DocumentID].maxPerSource
		maxJ := byDoc[fused[j].DocumentID].maxPerSource
		if maxI != maxJ {
			return maxI > maxJ
		}
		return fused[i].DocumentID < fused[j].DocumentID
	})

	for rank := range fused {
		for i := range fused[rank].Citations {
			fused[rank].Citations[i].RankAfterFusion = rank + 1
		}
	}

	return fused
}
