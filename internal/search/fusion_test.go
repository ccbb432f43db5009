package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func items(ids ...string) []*RankedItem {
	out := make([]*RankedItem, 0, len(ids))
	for i, id := range ids {
		out = append(out, &RankedItem{ID: id, Score: 1.0 - float64(i)*0.1})
	}
	return out
}

func TestRRFMergeWeightedScores(t *testing.T) {
	s := NewRRFStrategy(60)
	lists := []*RankedList{
		{Method: MethodSemantic, Items: items("a", "b")},
		{Method: MethodLexical, Items: items("b", "c")},
	}
	results := s.Merge(lists, DefaultWeights())
	require.Len(t, results, 3)

	// b appears in both lists: 0.6/61 + 0.4/61, the top raw score.
	assert.Equal(t, "b", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-12)
	assert.True(t, results[0].InBothLists)

	// a (semantic rank 1) outscores c (keyword rank 2).
	assert.Equal(t, "a", results[1].ID)
	assert.Equal(t, "c", results[2].ID)
	assert.False(t, results[1].InBothLists)

	// Normalized scores preserve the raw ratio a:b = (0.6/61) : (1.0/61).
	assert.InDelta(t, 0.6, results[1].Score, 1e-12)
	assert.InDelta(t, 0.4/62, results[2].Score*(1.0/61), 1e-12)
}

func TestRRFMergeRankBookkeeping(t *testing.T) {
	s := NewRRFStrategy(60)
	lists := []*RankedList{
		{Method: MethodSemantic, Items: []*RankedItem{
			{ID: "a", Score: 0.91},
			{ID: "b", Score: 0.80},
		}},
		{Method: MethodLexical, Items: []*RankedItem{
			{ID: "b", Score: 7.5, MatchedTerms: []string{"cardiac", "rehab"}},
		}},
	}
	results := s.Merge(lists, DefaultWeights())

	byID := make(map[string]*FusedResult, len(results))
	for _, r := range results {
		byID[r.ID] = r
	}

	b := byID["b"]
	require.NotNil(t, b)
	assert.Equal(t, 2, b.SemanticRank)
	assert.Equal(t, 0.80, b.SemanticScore)
	assert.Equal(t, 1, b.KeywordRank)
	assert.Equal(t, 7.5, b.KeywordScore)
	assert.Equal(t, []string{"cardiac", "rehab"}, b.MatchedTerms)

	a := byID["a"]
	require.NotNil(t, a)
	assert.Equal(t, 1, a.SemanticRank)
	assert.Zero(t, a.KeywordRank)
	assert.False(t, a.InBothLists)
}

func TestRRFMergeBestRankAcrossVariants(t *testing.T) {
	// The same document surfaced by two variants of the same method
	// keeps its best rank, while both occurrences add to the score.
	s := NewRRFStrategy(60)
	lists := []*RankedList{
		{Method: MethodSemantic, Items: items("x", "a")},
		{Method: MethodSemantic, Items: items("a", "y")},
	}
	results := s.Merge(lists, DefaultWeights())

	for _, r := range results {
		if r.ID == "a" {
			assert.Equal(t, 1, r.SemanticRank)
			return
		}
	}
	t.Fatal("document a missing from merge output")
}

func TestRRFMergeTieBreaks(t *testing.T) {
	s := NewRRFStrategy(60)

	// Same fused score, only one document in both lists.
	lists := []*RankedList{
		{Method: MethodSemantic, Items: items("both")},
		{Method: MethodLexical, Items: items("both")},
		{Method: MethodSemantic, Items: items("semantic-only")},
		{Method: MethodLexical, Items: items("lexical-only")},
	}
	// both: 0.6/61 + 0.4/61 = 1.0/61
	// semantic-only + lexical-only each score less, so make them tie.
	results := s.Merge(lists, Weights{Semantic: 0.5, Keyword: 0.5})
	require.Len(t, results, 3)
	assert.Equal(t, "both", results[0].ID)

	// The remaining two tie on score; keyword score breaks the tie.
	assert.Equal(t, "lexical-only", results[1].ID)
	assert.Equal(t, "semantic-only", results[2].ID)
}

func TestRRFMergeIDTieBreak(t *testing.T) {
	s := NewRRFStrategy(60)
	lists := []*RankedList{
		{Method: MethodSemantic, Items: []*RankedItem{
			{ID: "zeta", Score: 0.5},
		}},
		{Method: MethodSemantic, Items: []*RankedItem{
			{ID: "alpha", Score: 0.5},
		}},
	}
	results := s.Merge(lists, DefaultWeights())
	require.Len(t, results, 2)
	assert.Equal(t, "alpha", results[0].ID)
	assert.Equal(t, "zeta", results[1].ID)
}

func TestRRFMergeDeterministic(t *testing.T) {
	s := NewRRFStrategy(60)
	lists := []*RankedList{
		{Method: MethodSemantic, Items: items("a", "b", "c", "d")},
		{Method: MethodLexical, Items: items("c", "a", "e")},
		{Method: MethodSemantic, Items: items("e", "b")},
	}
	first := s.Merge(lists, DefaultWeights())
	for i := 0; i < 5; i++ {
		again := s.Merge(lists, DefaultWeights())
		require.Len(t, again, len(first))
		for j := range first {
			assert.Equal(t, first[j].ID, again[j].ID)
			assert.Equal(t, first[j].Score, again[j].Score)
		}
	}
}

func TestRRFMergeEmptyInput(t *testing.T) {
	s := NewRRFStrategy(60)
	assert.Empty(t, s.Merge(nil, DefaultWeights()))
	assert.Empty(t, s.Merge([]*RankedList{{Method: MethodLexical}}, DefaultWeights()))
}

func TestRRFDefaultConstant(t *testing.T) {
	assert.Equal(t, DefaultRRFConstant, NewRRFStrategy(0).K)
	assert.Equal(t, DefaultRRFConstant, NewRRFStrategy(-5).K)
	assert.Equal(t, 30, NewRRFStrategy(30).K)
}

func TestRoundRobinInterleaves(t *testing.T) {
	s := NewRoundRobinStrategy()
	lists := []*RankedList{
		{Method: MethodSemantic, Items: items("s1", "s2", "s3")},
		{Method: MethodLexical, Items: items("l1", "l2")},
	}
	results := s.Merge(lists, DefaultWeights())
	require.Len(t, results, 5)

	got := make([]string, 0, len(results))
	for _, r := range results {
		got = append(got, r.ID)
	}
	assert.Equal(t, []string{"s1", "l1", "s2", "l2", "s3"}, got)

	// Positional scores decrease strictly.
	for i := 1; i < len(results); i++ {
		assert.Less(t, results[i].Score, results[i-1].Score)
	}
}

func TestRoundRobinDeduplicates(t *testing.T) {
	s := NewRoundRobinStrategy()
	lists := []*RankedList{
		{Method: MethodSemantic, Items: items("a", "b")},
		{Method: MethodLexical, Items: items("a", "c")},
	}
	results := s.Merge(lists, DefaultWeights())
	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].ID)
	assert.True(t, results[0].InBothLists)
}
