package search

import (
	"sort"
)

// DefaultRRFConstant is the standard RRF smoothing parameter, k=60,
// which is empirically validated across domains.
const DefaultRRFConstant = 60

// FusedResult is a single candidate after merging the ranked lists.
type FusedResult struct {
	ID            string
	Score         float64  // fused score, normalized 0-1
	KeywordScore  float64  // best raw lexical score across lists
	KeywordRank   int      // best 1-indexed lexical rank, 0 if absent
	SemanticScore float64  // best raw semantic score across lists
	SemanticRank  int      // best 1-indexed semantic rank, 0 if absent
	InBothLists   bool     // appeared under both methods
	MatchedTerms  []string // lexical matched terms, for highlighting
}

// MergeStrategy combines the ranked lists of every (method, variant)
// execution into one candidate ranking.
type MergeStrategy interface {
	Name() string
	Merge(lists []*RankedList, weights Weights) []*FusedResult
}

// RRFStrategy merges lists with weighted Reciprocal Rank Fusion:
//
//	score(d) = Σ over lists containing d of weight(method) / (K + rank)
//
// with rank 1-indexed. A document absent from a list simply
// contributes nothing for it. Ordering is fully deterministic:
// score desc, then in-both-methods first, then keyword score desc,
// then ID asc.
type RRFStrategy struct {
	K int
}

// NewRRFStrategy creates the fusion strategy with default K when
// k <= 0.
func NewRRFStrategy(k int) *RRFStrategy {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFStrategy{K: k}
}

func (s *RRFStrategy) Name() string { return "rrf" }

func (s *RRFStrategy) Merge(lists []*RankedList, weights Weights) []*FusedResult {
	if len(lists) == 0 {
		return []*FusedResult{}
	}

	fused := make(map[string]*FusedResult)
	for _, list := range lists {
		weight := weights.Keyword
		if list.Method == MethodSemantic {
			weight = weights.Semantic
		}
		for i, item := range list.Items {
			rank := i + 1
			r, ok := fused[item.ID]
			if !ok {
				r = &FusedResult{ID: item.ID}
				fused[item.ID] = r
			}
			r.Score += weight / float64(s.K+rank)

			switch list.Method {
			case MethodSemantic:
				if r.SemanticRank == 0 || rank < r.SemanticRank {
					r.SemanticRank = rank
					r.SemanticScore = item.Score
				}
			case MethodLexical:
				if r.KeywordRank == 0 || rank < r.KeywordRank {
					r.KeywordRank = rank
					r.KeywordScore = item.Score
				}
				if len(item.MatchedTerms) > len(r.MatchedTerms) {
					r.MatchedTerms = item.MatchedTerms
				}
			}
			r.InBothLists = r.SemanticRank > 0 && r.KeywordRank > 0
		}
	}

	results := make([]*FusedResult, 0, len(fused))
	for _, r := range fused {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		return lessFused(results[i], results[j])
	})
	normalizeScores(results)
	return results
}

// lessFused reports whether a ranks before b.
func lessFused(a, b *FusedResult) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.InBothLists != b.InBothLists {
		return a.InBothLists
	}
	if a.KeywordScore != b.KeywordScore {
		return a.KeywordScore > b.KeywordScore
	}
	return a.ID < b.ID
}

// normalizeScores scales scores so the top result is 1.0.
func normalizeScores(results []*FusedResult) {
	if len(results) == 0 || results[0].Score == 0 {
		return
	}
	maxScore := results[0].Score
	for _, r := range results {
		r.Score /= maxScore
	}
}

var _ MergeStrategy = (*RRFStrategy)(nil)
