package search

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covrag/covrag/internal/store"
)

func rankedDoc(id string, source store.Source, score float64) *RetrievedDocument {
	return &RetrievedDocument{
		Document: &store.Document{
			ID: id,
			Metadata: store.Metadata{
				Source:  source,
				DocType: store.DocTypeChunk,
			},
		},
		Score: score,
	}
}

func rankedSummary(id string, source store.Source, score float64) *RetrievedDocument {
	d := rankedDoc(id, source, score)
	d.Document.Metadata.DocType = store.DocTypeTopicSummary
	return d
}

func docIDs(docs []*RetrievedDocument) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Document.ID)
	}
	return out
}

func sourceCounts(docs []*RetrievedDocument) map[store.Source]int {
	out := make(map[store.Source]int)
	for _, d := range docs {
		out[d.Document.Metadata.Source]++
	}
	return out
}

func TestDiversityPromotesUnderrepresentedSource(t *testing.T) {
	// Top-4 all policy manual, coverage records buried below the cut.
	docs := []*RetrievedDocument{
		rankedDoc("iom-1", store.SourcePolicyManual, 1.0),
		rankedDoc("iom-2", store.SourcePolicyManual, 0.9),
		rankedDoc("iom-3", store.SourcePolicyManual, 0.8),
		rankedDoc("iom-4", store.SourcePolicyManual, 0.7),
		rankedDoc("lcd-1", store.SourceCoverageRecord, 0.6),
		rankedDoc("lcd-2", store.SourceCoverageRecord, 0.5),
	}
	relevance := map[store.Source]float64{
		store.SourcePolicyManual:   0.8,
		store.SourceCoverageRecord: 0.7,
	}

	out := ensureSourceDiversity(docs, relevance, 4, 2)
	require.Len(t, out, 4)

	counts := sourceCounts(out)
	assert.GreaterOrEqual(t, counts[store.SourceCoverageRecord], 2)
	assert.GreaterOrEqual(t, counts[store.SourcePolicyManual], 2)
	assert.Contains(t, docIDs(out), "lcd-1")
	assert.Contains(t, docIDs(out), "lcd-2")
}

func TestDiversitySingleRelevantSourceUntouched(t *testing.T) {
	docs := []*RetrievedDocument{
		rankedDoc("iom-1", store.SourcePolicyManual, 1.0),
		rankedDoc("iom-2", store.SourcePolicyManual, 0.9),
		rankedDoc("lcd-1", store.SourceCoverageRecord, 0.8),
	}
	relevance := map[store.Source]float64{
		store.SourcePolicyManual:   0.9,
		store.SourceCoverageRecord: 0.1,
	}

	out := ensureSourceDiversity(docs, relevance, 2, 2)
	assert.Equal(t, []string{"iom-1", "iom-2"}, docIDs(out))
}

func TestDiversityNoCandidatesBelowCut(t *testing.T) {
	// No coverage records anywhere: only possible promotions are
	// skipped, ranking stays intact.
	docs := []*RetrievedDocument{
		rankedDoc("iom-1", store.SourcePolicyManual, 1.0),
		rankedDoc("iom-2", store.SourcePolicyManual, 0.9),
		rankedDoc("code-1", store.SourceCodeRecord, 0.8),
		rankedDoc("code-2", store.SourceCodeRecord, 0.7),
	}
	relevance := map[store.Source]float64{
		store.SourcePolicyManual:   0.8,
		store.SourceCoverageRecord: 0.7,
		store.SourceCodeRecord:     0.6,
	}

	out := ensureSourceDiversity(docs, relevance, 4, 2)
	assert.Equal(t, []string{"iom-1", "iom-2", "code-1", "code-2"}, docIDs(out))
}

func TestDiversitySummariesNeverDisplaced(t *testing.T) {
	docs := []*RetrievedDocument{
		rankedSummary("topic-sum", store.SourcePolicyManual, 1.0),
		rankedDoc("iom-1", store.SourcePolicyManual, 0.9),
		rankedDoc("iom-2", store.SourcePolicyManual, 0.8),
		rankedDoc("iom-3", store.SourcePolicyManual, 0.7),
		rankedDoc("lcd-1", store.SourceCoverageRecord, 0.6),
		rankedDoc("lcd-2", store.SourceCoverageRecord, 0.5),
	}
	relevance := map[store.Source]float64{
		store.SourcePolicyManual:   0.8,
		store.SourceCoverageRecord: 0.7,
	}

	out := ensureSourceDiversity(docs, relevance, 4, 2)
	require.Len(t, out, 4)
	assert.Contains(t, docIDs(out), "topic-sum")
	assert.Contains(t, docIDs(out), "lcd-1")
	assert.Contains(t, docIDs(out), "lcd-2")
}

func TestDiversityDisplacesOverRepresentedFirst(t *testing.T) {
	docs := []*RetrievedDocument{
		rankedDoc("iom-1", store.SourcePolicyManual, 1.0),
		rankedDoc("iom-2", store.SourcePolicyManual, 0.9),
		rankedDoc("iom-3", store.SourcePolicyManual, 0.8),
		rankedDoc("code-1", store.SourceCodeRecord, 0.7),
		rankedDoc("code-2", store.SourceCodeRecord, 0.6),
		rankedDoc("lcd-1", store.SourceCoverageRecord, 0.5),
		rankedDoc("lcd-2", store.SourceCoverageRecord, 0.4),
	}
	relevance := map[store.Source]float64{
		store.SourcePolicyManual:   0.8,
		store.SourceCoverageRecord: 0.7,
		store.SourceCodeRecord:     0.6,
	}

	out := ensureSourceDiversity(docs, relevance, 6, 2)
	require.Len(t, out, 6)

	counts := sourceCounts(out)
	for source, n := range counts {
		assert.GreaterOrEqual(t, n, 2, "source %s below floor", source)
	}
	// Policy manual was over-represented with 3; the lowest of its
	// three falls out while the two code records stay.
	assert.NotContains(t, docIDs(out), "iom-3")
	assert.Contains(t, docIDs(out), "code-1")
	assert.Contains(t, docIDs(out), "code-2")
	assert.Contains(t, docIDs(out), "lcd-2")
}

func TestDiversityShortResultSet(t *testing.T) {
	docs := []*RetrievedDocument{
		rankedDoc("iom-1", store.SourcePolicyManual, 1.0),
	}
	relevance := map[store.Source]float64{
		store.SourcePolicyManual:   0.8,
		store.SourceCoverageRecord: 0.7,
	}

	out := ensureSourceDiversity(docs, relevance, 8, 2)
	assert.Equal(t, []string{"iom-1"}, docIDs(out))

	assert.Empty(t, ensureSourceDiversity(nil, relevance, 8, 2))
}

func TestDiversityTruncatesToK(t *testing.T) {
	var docs []*RetrievedDocument
	for i := 0; i < 10; i++ {
		docs = append(docs, rankedDoc(fmt.Sprintf("iom-%d", i), store.SourcePolicyManual, 1.0-float64(i)*0.05))
	}
	relevance := map[store.Source]float64{store.SourcePolicyManual: 0.9}

	out := ensureSourceDiversity(docs, relevance, 4, 2)
	assert.Len(t, out, 4)
}
