// Package search implements hybrid retrieval: rule-based query
// expansion, parallel lexical and semantic search per variant,
// weighted Reciprocal Rank Fusion, cross-source diversification, and
// topic anchor injection.
package search

import (
	"github.com/covrag/covrag/internal/store"
)

// Method identifies a retrieval method contributing a ranked list.
type Method string

const (
	MethodSemantic Method = "semantic"
	MethodLexical  Method = "lexical"
)

// VariantKind orders variants when the cap truncates the set.
type VariantKind int

const (
	VariantPrimary VariantKind = iota
	VariantSourceTargeted
	VariantSynonym
	VariantConceptStripped
)

// QueryVariant is one reformulation of the user query. Variants are
// ephemeral: generated per query, never persisted.
type QueryVariant struct {
	Text         string
	TargetSource store.Source // empty means unfiltered
	Kind         VariantKind
	Primary      bool
}

// RankedItem is one entry of a ranked list with its raw method score.
type RankedItem struct {
	ID           string
	Score        float64
	MatchedTerms []string
}

// RankedList is the ordered output of one (method, variant) execution.
type RankedList struct {
	Method  Method
	Variant QueryVariant
	Items   []*RankedItem
}

// Weights control the per-method contribution during fusion.
type Weights struct {
	Semantic float64
	Keyword  float64
}

// DefaultWeights mirrors the tuned production split.
func DefaultWeights() Weights {
	return Weights{Semantic: 0.6, Keyword: 0.4}
}

// Valid reports whether both weights are positive.
func (w Weights) Valid() bool {
	return w.Semantic > 0 && w.Keyword > 0
}

// Options configure a single Retrieve call.
type Options struct {
	Limit        int
	SourceFilter store.Source // empty means all sources
	Weights      *Weights     // nil uses the engine default
	Strategy     MergeStrategy
	LexicalOnly  bool // skip embedding and vector search
}

// DefaultLimit is the result count when Options.Limit is unset.
const DefaultLimit = 8

// RetrievedDocument is a final ranked result with its fused score and
// full document payload.
type RetrievedDocument struct {
	Document     *store.Document
	Score        float64
	InBothLists  bool
	MatchedTerms []string
	Anchor       bool // injected as a topic anchor rather than ranked
}
