package search

import (
	"sort"
	"strings"

	"github.com/covrag/covrag/internal/store"
)

// DefaultMaxQueryVariants caps the variant set per query.
const DefaultMaxQueryVariants = 5

// RelevanceThreshold is the score above which a source counts as
// relevant for diversity and variant targeting.
const RelevanceThreshold = 0.2

// Expander turns one query into a capped, deterministic set of
// variants. Expansion is pure table lookup: same query, same variants.
type Expander struct {
	maxVariants int
}

// NewExpander creates an expander with the given variant cap.
// A cap below 1 falls back to the default.
func NewExpander(maxVariants int) *Expander {
	if maxVariants < 1 {
		maxVariants = DefaultMaxQueryVariants
	}
	return &Expander{maxVariants: maxVariants}
}

// DetectSourceRelevance scores each source's relevance on 0-1.
// With no signal at all every source gets a moderate fallback score so
// cross-source retrieval still casts a wide net.
func DetectSourceRelevance(query string) map[store.Source]float64 {
	scores := make(map[store.Source]float64, len(sourcePatterns))
	anySignal := false
	for source, patterns := range sourcePatterns {
		threshold := max(1, len(patterns)/3)
		matches := 0
		for _, p := range patterns {
			if p.MatchString(query) {
				matches++
			}
		}
		score := float64(matches) / float64(threshold)
		if score > 1.0 {
			score = 1.0
		}
		scores[source] = score
		if score > 0 {
			anySignal = true
		}
	}
	if !anySignal {
		for source, score := range fallbackRelevance {
			scores[source] = score
		}
	}
	return scores
}

// IsCoverageQuery reports whether the query uses coverage-determination
// phrasing (contractor names, jurisdiction codes, coverage+therapy).
func IsCoverageQuery(query string) bool {
	for _, p := range coverageQueryPatterns {
		if p.MatchString(query) {
			return true
		}
	}
	return false
}

// Expand generates query variants in priority order:
// the primary (always first, exactly one), source-targeted variants
// for each relevant source, a synonym-expanded variant, and for
// coverage queries a topic-expanded plus a concept-stripped variant.
// The result is capped at the configured maximum keeping that order.
func (e *Expander) Expand(query string) []QueryVariant {
	variants := []QueryVariant{{
		Text:    query,
		Kind:    VariantPrimary,
		Primary: true,
	}}

	relevance := DetectSourceRelevance(query)
	for _, source := range store.KnownSources {
		if relevance[source] > 0 {
			variants = append(variants, QueryVariant{
				Text:         query + " " + sourceVocabulary[source],
				TargetSource: source,
				Kind:         VariantSourceTargeted,
			})
		}
	}

	if expanded := applySynonyms(query); expanded != query {
		variants = append(variants, QueryVariant{
			Text: expanded,
			Kind: VariantSynonym,
		})
	}

	if IsCoverageQuery(query) {
		variants = append(variants, coverageVariants(query)...)
	}

	variants = dedupeVariants(variants)
	sort.SliceStable(variants, func(i, j int) bool {
		return variants[i].Kind < variants[j].Kind
	})
	if len(variants) > e.maxVariants {
		variants = variants[:e.maxVariants]
	}
	return variants
}

// applySynonyms appends the expansion of every synonym rule the query
// triggers. Returns the query unchanged when nothing fires.
func applySynonyms(query string) string {
	var additions []string
	for _, rule := range synonymRules {
		if rule.pattern.MatchString(query) {
			additions = append(additions, rule.expansion)
		}
	}
	if len(additions) == 0 {
		return query
	}
	return query + " " + strings.Join(additions, " ")
}

// coverageVariants produces the coverage-specific reformulations: a
// topic-expanded variant targeting coverage records and a stripped
// medical-concept variant that drops the determination jargon.
func coverageVariants(query string) []QueryVariant {
	var out []QueryVariant

	var expansions []string
	for _, rule := range coverageTopicExpansions {
		if rule.pattern.MatchString(query) {
			expansions = append(expansions, rule.expansion)
		}
	}
	expanded := query + " " + genericCoverageExpansion
	if len(expansions) > 0 {
		expanded = query + " " + strings.Join(expansions, " ")
	}
	out = append(out, QueryVariant{
		Text:         expanded,
		TargetSource: store.SourceCoverageRecord,
		Kind:         VariantSourceTargeted,
	})

	if concept := StripToMedicalConcept(query); concept != "" && !strings.EqualFold(concept, query) {
		out = append(out, QueryVariant{
			Text: concept,
			Kind: VariantConceptStripped,
		})
	}
	return out
}

// StripToMedicalConcept removes coverage jargon, contractor names, and
// filler words so embedding focuses on the clinical topic.
func StripToMedicalConcept(query string) string {
	cleaned := stripCoverageJargon.ReplaceAllString(query, "")
	cleaned = stripFiller.ReplaceAllString(cleaned, "")
	cleaned = stripParens.ReplaceAllString(cleaned, " ")
	cleaned = collapseSpaces.ReplaceAllString(cleaned, " ")
	return strings.Trim(cleaned, trimPunctuation)
}

func dedupeVariants(variants []QueryVariant) []QueryVariant {
	seen := make(map[string]bool, len(variants))
	out := variants[:0]
	for _, v := range variants {
		key := v.Text + "\x00" + string(v.TargetSource)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}
