package search

// RoundRobinStrategy interleaves the ranked lists position by
// position, deduplicating by ID. Each list contributes near the top
// instead of one list dominating. Scores are positional: the first
// merged document gets 1.0 and each subsequent one a strictly lower
// value, so downstream ordering stays stable.
//
// Kept as the explainable fallback to RRF; debugging a round-robin
// merge only needs the source lists, not score arithmetic.
type RoundRobinStrategy struct{}

// NewRoundRobinStrategy creates the round-robin merge strategy.
func NewRoundRobinStrategy() *RoundRobinStrategy {
	return &RoundRobinStrategy{}
}

func (s *RoundRobinStrategy) Name() string { return "round-robin" }

func (s *RoundRobinStrategy) Merge(lists []*RankedList, _ Weights) []*FusedResult {
	if len(lists) == 0 {
		return []*FusedResult{}
	}

	maxLen := 0
	total := 0
	for _, list := range lists {
		if len(list.Items) > maxLen {
			maxLen = len(list.Items)
		}
		total += len(list.Items)
	}

	seen := make(map[string]*FusedResult, total)
	merged := make([]*FusedResult, 0, total)
	for pos := 0; pos < maxLen; pos++ {
		for _, list := range lists {
			if pos >= len(list.Items) {
				continue
			}
			item := list.Items[pos]
			r, ok := seen[item.ID]
			if !ok {
				r = &FusedResult{
					ID:    item.ID,
					Score: 1.0 / float64(len(merged)+1),
				}
				seen[item.ID] = r
				merged = append(merged, r)
			}
			switch list.Method {
			case MethodSemantic:
				if r.SemanticRank == 0 || pos+1 < r.SemanticRank {
					r.SemanticRank = pos + 1
					r.SemanticScore = item.Score
				}
			case MethodLexical:
				if r.KeywordRank == 0 || pos+1 < r.KeywordRank {
					r.KeywordRank = pos + 1
					r.KeywordScore = item.Score
				}
				if len(item.MatchedTerms) > len(r.MatchedTerms) {
					r.MatchedTerms = item.MatchedTerms
				}
			}
			r.InBothLists = r.SemanticRank > 0 && r.KeywordRank > 0
		}
	}
	return merged
}

var _ MergeStrategy = (*RoundRobinStrategy)(nil)
