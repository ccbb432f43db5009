package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coverrors "github.com/covrag/covrag/internal/errors"
	"github.com/covrag/covrag/internal/store"
)

const testTopicYAML = `
topics:
  - name: cardiac_rehab
    label: Cardiac Rehabilitation
    patterns:
      - '\bcardiac\s*rehab'
      - '\bheart\b.*\brehab'
    related_terms:
      - cardiovascular
    min_pattern_matches: 1
  - name: hyperbaric_oxygen
    patterns:
      - '\bhyperbaric\b'
      - '\bhbo2?t?\b'
    anchor_doc_ids:
      - topic_hbo_primary
      - topic_hbo_wounds
    min_pattern_matches: 2
`

func newTestTable(t *testing.T) *TopicTable {
	t.Helper()
	table, err := LoadTopicTable([]byte(testTopicYAML))
	require.NoError(t, err)
	return table
}

type fakeFetcher struct {
	docs  map[string]*store.Document
	err   error
	calls int
}

func (f *fakeFetcher) GetByIDs(_ context.Context, ids []string) ([]*store.Document, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []*store.Document
	for _, id := range ids {
		if doc, ok := f.docs[id]; ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

func anchorDoc(id string) *store.Document {
	return &store.Document{
		ID:   id,
		Text: "anchor " + id,
		Metadata: store.Metadata{
			Source:  store.SourcePolicyManual,
			DocType: store.DocTypeTopicSummary,
		},
	}
}

func TestTopicTableDefaults(t *testing.T) {
	table := newTestTable(t)
	entries := table.Entries()
	require.Len(t, entries, 2)

	// Label falls back to the name, anchor ID to topic_<name>.
	assert.Equal(t, "hyperbaric_oxygen", entries[1].Label)
	assert.Equal(t, []string{"topic_cardiac_rehab"}, entries[0].AnchorDocIDs)
	assert.Equal(t, []string{"topic_hbo_primary", "topic_hbo_wounds"}, entries[1].AnchorDocIDs)
}

func TestTopicTableInvalidYAML(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"malformed document", "topics: ["},
		{"missing name", "topics:\n  - label: No Name\n    patterns: ['\\bx\\b']"},
		{"bad pattern", "topics:\n  - name: broken\n    patterns: ['[unclosed']"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTopicTable([]byte(tt.yaml))
			require.Error(t, err)
			assert.Equal(t, coverrors.ErrCodeTopicsInvalid, coverrors.GetCode(err))
		})
	}
}

func TestTopicDetect(t *testing.T) {
	table := newTestTable(t)

	tests := []struct {
		query string
		want  []string
	}{
		{"Does Medicare cover cardiac rehab?", []string{"cardiac_rehab"}},
		{"cardiovascular program criteria", []string{"cardiac_rehab"}},
		{"hyperbaric chamber", nil}, // one match, needs two
		{"hyperbaric oxygen HBOT wound healing", []string{"hyperbaric_oxygen"}},
		{"ambulance transport rules", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, table.Detect(tt.query), tt.query)
	}
}

func TestTopicTableReload(t *testing.T) {
	table := newTestTable(t)
	require.NotEmpty(t, table.Detect("cardiac rehab"))

	err := table.Reload([]byte("topics:\n  - name: dialysis\n    patterns: ['\\bdialysis\\b']"))
	require.NoError(t, err)
	assert.Empty(t, table.Detect("cardiac rehab"))
	assert.Equal(t, []string{"dialysis"}, table.Detect("dialysis coverage"))

	// A failed reload keeps the previous entries.
	require.Error(t, table.Reload([]byte("topics: [")))
	assert.Equal(t, []string{"dialysis"}, table.Detect("dialysis coverage"))
}

func TestAnchorInjectPrepends(t *testing.T) {
	table := newTestTable(t)
	fetcher := &fakeFetcher{docs: map[string]*store.Document{
		"topic_cardiac_rehab": anchorDoc("topic_cardiac_rehab"),
	}}
	inj, err := NewAnchorInjector(table, fetcher, 16, nil)
	require.NoError(t, err)

	organic := []*RetrievedDocument{
		rankedDoc("iom-1", store.SourcePolicyManual, 1.0),
		rankedDoc("lcd-1", store.SourceCoverageRecord, 0.8),
	}
	out := inj.Inject(context.Background(), "cardiac rehab coverage", organic, 8)
	require.Len(t, out, 3)
	assert.Equal(t, "topic_cardiac_rehab", out[0].Document.ID)
	assert.True(t, out[0].Anchor)
	assert.Equal(t, "iom-1", out[1].Document.ID)
	assert.False(t, out[1].Anchor)
}

func TestAnchorInjectNoDuplicate(t *testing.T) {
	table := newTestTable(t)
	fetcher := &fakeFetcher{docs: map[string]*store.Document{
		"topic_cardiac_rehab": anchorDoc("topic_cardiac_rehab"),
	}}
	inj, err := NewAnchorInjector(table, fetcher, 16, nil)
	require.NoError(t, err)

	organic := []*RetrievedDocument{
		rankedDoc("topic_cardiac_rehab", store.SourcePolicyManual, 1.0),
		rankedDoc("iom-1", store.SourcePolicyManual, 0.9),
	}
	out := inj.Inject(context.Background(), "cardiac rehab coverage", organic, 8)
	require.Len(t, out, 2)
	assert.Equal(t, "topic_cardiac_rehab", out[0].Document.ID)
	assert.False(t, out[0].Anchor, "organic occurrence keeps its ranked position")
}

func TestAnchorInjectRespectsLimit(t *testing.T) {
	table := newTestTable(t)
	fetcher := &fakeFetcher{docs: map[string]*store.Document{
		"topic_cardiac_rehab": anchorDoc("topic_cardiac_rehab"),
	}}
	inj, err := NewAnchorInjector(table, fetcher, 16, nil)
	require.NoError(t, err)

	organic := []*RetrievedDocument{
		rankedDoc("a", store.SourcePolicyManual, 1.0),
		rankedDoc("b", store.SourcePolicyManual, 0.9),
	}
	out := inj.Inject(context.Background(), "cardiac rehab", organic, 2)
	require.Len(t, out, 2)
	assert.Equal(t, "topic_cardiac_rehab", out[0].Document.ID)
	assert.Equal(t, "a", out[1].Document.ID)
}

func TestAnchorInjectMissingAnchorSkipped(t *testing.T) {
	table := newTestTable(t)
	fetcher := &fakeFetcher{docs: map[string]*store.Document{}}
	inj, err := NewAnchorInjector(table, fetcher, 16, nil)
	require.NoError(t, err)

	organic := []*RetrievedDocument{rankedDoc("iom-1", store.SourcePolicyManual, 1.0)}
	out := inj.Inject(context.Background(), "cardiac rehab", organic, 8)
	require.Len(t, out, 1)
	assert.Equal(t, "iom-1", out[0].Document.ID)
}

func TestAnchorInjectFetchErrorDegrades(t *testing.T) {
	table := newTestTable(t)
	fetcher := &fakeFetcher{err: errors.New("store down")}
	inj, err := NewAnchorInjector(table, fetcher, 16, nil)
	require.NoError(t, err)

	organic := []*RetrievedDocument{rankedDoc("iom-1", store.SourcePolicyManual, 1.0)}
	out := inj.Inject(context.Background(), "cardiac rehab", organic, 8)
	require.Len(t, out, 1)
	assert.Equal(t, "iom-1", out[0].Document.ID)
}

func TestAnchorInjectNoTopicNoFetch(t *testing.T) {
	table := newTestTable(t)
	fetcher := &fakeFetcher{}
	inj, err := NewAnchorInjector(table, fetcher, 16, nil)
	require.NoError(t, err)

	organic := []*RetrievedDocument{rankedDoc("iom-1", store.SourcePolicyManual, 1.0)}
	out := inj.Inject(context.Background(), "ambulance transport", organic, 8)
	assert.Len(t, out, 1)
	assert.Zero(t, fetcher.calls)
}

func TestAnchorCacheAvoidsRefetch(t *testing.T) {
	table := newTestTable(t)
	fetcher := &fakeFetcher{docs: map[string]*store.Document{
		"topic_cardiac_rehab": anchorDoc("topic_cardiac_rehab"),
	}}
	inj, err := NewAnchorInjector(table, fetcher, 16, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		out := inj.Inject(context.Background(), "cardiac rehab", nil, 8)
		require.Len(t, out, 1)
	}
	assert.Equal(t, 1, fetcher.calls)
}
