package index

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyTokenizerOffsets(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		terms []string
	}{
		{
			// "rehab" is a substring of "rehabilitation"; its offsets
			// must point at the standalone word, not the earlier prefix.
			name:  "substring of longer word",
			text:  "Rehab precedes rehabilitation, then rehab again.",
			terms: []string{"rehab", "precedes", "rehabilitation", "then", "rehab", "again"},
		},
		{
			name:  "short fragments dropped",
			text:  "a CPT code 97110 x",
			terms: []string{"cpt", "code", "97110"},
		},
		{
			// Lowercasing "İ" grows it by a byte; offsets must be
			// computed against the original text, not a lowered copy.
			name:  "multibyte rune before words",
			text:  "İ cardiac rehab coverage",
			terms: []string{"cardiac", "rehab", "coverage"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream := (&policyTokenizer{}).Tokenize([]byte(tt.text))
			require.Len(t, stream, len(tt.terms))
			for i, token := range stream {
				assert.Equal(t, tt.terms[i], string(token.Term))
				assert.Equal(t, i+1, token.Position)
				assert.Equal(t, tt.terms[i], strings.ToLower(tt.text[token.Start:token.End]),
					"token %d offsets must select its own word", i)
			}
		})
	}
}
