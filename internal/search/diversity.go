package search

import (
	"github.com/covrag/covrag/internal/store"
)

// DefaultMinPerSource is the per-source floor within the final top-k.
const DefaultMinPerSource = 2

// ensureSourceDiversity re-ranks so every relevant source (relevance
// above the threshold) has at least minPerSource representatives in
// the top-k, when candidates exist below the cut. Each promotion
// displaces the lowest-ranked non-summary document from an
// over-represented source, or failing that the lowest-ranked
// non-summary at all. Summary documents are never displaced. With
// zero or one relevant source the ranking is returned untouched.
func ensureSourceDiversity(
	docs []*RetrievedDocument,
	relevance map[store.Source]float64,
	k, minPerSource int,
) []*RetrievedDocument {
	if len(docs) == 0 || len(relevance) == 0 {
		return truncate(docs, k)
	}

	var targets []store.Source
	for _, source := range store.KnownSources {
		if relevance[source] > RelevanceThreshold {
			targets = append(targets, source)
		}
	}
	if len(targets) <= 1 {
		return truncate(docs, k)
	}

	var top, remaining []*RetrievedDocument
	if len(docs) > k {
		top = append(top, docs[:k]...)
		remaining = append(remaining, docs[k:]...)
	} else {
		top = append(top, docs...)
	}

	counts := make(map[store.Source]int)
	for _, doc := range top {
		counts[doc.Document.Metadata.Source]++
	}

	for _, src := range targets {
		deficit := minPerSource - counts[src]
		if deficit <= 0 {
			continue
		}

		var promotions []*RetrievedDocument
		keep := remaining[:0]
		for _, doc := range remaining {
			if doc.Document.Metadata.Source == src && len(promotions) < deficit {
				promotions = append(promotions, doc)
			} else {
				keep = append(keep, doc)
			}
		}
		remaining = keep

		for _, promo := range promotions {
			displaced := false

			// Prefer evicting from an over-represented source,
			// scanning from the bottom of the ranking.
			for i := len(top) - 1; i >= 0; i-- {
				doc := top[i].Document
				if counts[doc.Metadata.Source] > minPerSource && !doc.Metadata.DocType.IsSummary() {
					counts[doc.Metadata.Source]--
					top = append(top[:i], top[i+1:]...)
					displaced = true
					break
				}
			}

			if !displaced && len(top) >= k {
				// No over-represented source: evict the lowest-ranked
				// non-summary from any other source so the deficit
				// slot is still filled.
				for i := len(top) - 1; i >= 0; i-- {
					doc := top[i].Document
					if doc.Metadata.Source != src && !doc.Metadata.DocType.IsSummary() {
						if counts[doc.Metadata.Source] > 0 {
							counts[doc.Metadata.Source]--
						}
						top = append(top[:i], top[i+1:]...)
						displaced = true
						break
					}
				}
			} else if !displaced {
				// Still room below k; append without evicting.
				displaced = true
			}

			if displaced {
				top = append(top, promo)
				counts[src]++
			}
		}
	}

	return truncate(top, k)
}
