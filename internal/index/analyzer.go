// Package index provides the in-memory lexical (BM25) index with
// count-based staleness detection and full snapshot rebuilds.
package index

import (
	"regexp"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/kljensen/snowball"
)

const (
	policyTokenizerName  = "policy_tokenizer"
	policyStopFilterName = "policy_stop"
	policyStemFilterName = "policy_stem"
	policyAnalyzerName   = "policy_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(policyTokenizerName, policyTokenizerConstructor)
	_ = registry.RegisterTokenFilter(policyStopFilterName, policyStopFilterConstructor)
	_ = registry.RegisterTokenFilter(policyStemFilterName, policyStemFilterConstructor)
}

// defaultStopWords are filler terms common in regulatory prose. Domain
// terms like "coverage" or "criteria" are deliberately kept.
var defaultStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "but", "by", "for",
	"if", "in", "into", "is", "it", "no", "not", "of", "on", "or",
	"such", "that", "the", "their", "then", "there", "these", "they",
	"this", "to", "was", "will", "with", "shall", "pursuant", "herein",
}

var wordPattern = regexp.MustCompile(`[a-zA-Z0-9]+`)


func buildIndexMapping() (*mapping.IndexMappingImpl, error) {
	m := bleve.NewIndexMapping()
	err := m.AddCustomAnalyzer(policyAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": policyTokenizerName,
		"token_filters": []string{
			lowercase.Name,
			policyStopFilterName,
			policyStemFilterName,
		},
	})
	if err != nil {
		return nil, err
	}
	m.DefaultAnalyzer = policyAnalyzerName

	// The source field is matched exactly for filtered lists and must
	// not be stemmed.
	docMapping := bleve.NewDocumentMapping()
	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = policyAnalyzerName
	docMapping.AddFieldMappingsAt("text", textField)
	titleField := bleve.NewTextFieldMapping()
	titleField.Analyzer = policyAnalyzerName
	docMapping.AddFieldMappingsAt("title", titleField)
	sourceField := bleve.NewTextFieldMapping()
	sourceField.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("source", sourceField)
	m.DefaultMapping = docMapping

	return m, nil
}

func policyTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &policyTokenizer{}, nil
}

type policyTokenizer struct{}

// Tokenize splits prose into lowercase word tokens, dropping
// single-character fragments. Offsets come straight from the regexp
// match positions so highlight locations point at the actual word, not
// an earlier substring occurrence.
func (t *policyTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	matches := wordPattern.FindAllStringIndex(text, -1)

	result := make(analysis.TokenStream, 0, len(matches))
	pos := 1
	for _, m := range matches {
		term := strings.ToLower(text[m[0]:m[1]])
		if len(term) < 2 {
			continue
		}
		result = append(result, &analysis.Token{
			Term:     []byte(term),
			Start:    m[0],
			End:      m[1],
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
	}
	return result
}

func policyStopFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	stop := make(map[string]struct{}, len(defaultStopWords))
	for _, w := range defaultStopWords {
		stop[w] = struct{}{}
	}
	return &policyStopFilter{stopWords: stop}, nil
}

type policyStopFilter struct {
	stopWords map[string]struct{}
}

func (f *policyStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		if _, isStop := f.stopWords[strings.ToLower(string(token.Term))]; !isStop {
			result = append(result, token)
		}
	}
	return result
}

func policyStemFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	return &policyStemFilter{}, nil
}

// policyStemFilter applies Snowball stemming so "rehabilitation" and
// "rehabilitative" index to the same term.
type policyStemFilter struct{}

func (f *policyStemFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	for _, token := range input {
		stemmed, err := snowball.Stem(string(token.Term), "english", false)
		if err != nil {
			continue
		}
		token.Term = []byte(stemmed)
	}
	return input
}
