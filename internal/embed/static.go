package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
	"sync"
	"unicode"
)

// StaticEmbedder generates hash-based embeddings. Deterministic and
// dependency-free (no network, no model download), with reduced
// semantic quality compared to a learned model. The same text always
// produces the same vector, which is what the retrieval tests rely on.
type StaticEmbedder struct {
	mu     sync.RWMutex
	closed bool
}

// regulatoryStopWords filters boilerplate common across policy text
// that carries no retrieval signal.
var regulatoryStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "to": true,
	"and": true, "or": true, "in": true, "for": true, "is": true,
	"be": true, "as": true, "by": true, "with": true, "that": true,
	"shall": true, "may": true, "must": true, "pursuant": true,
	"herein": true, "thereof": true, "section": true, "subsection": true,
}

// Weights for vector generation.
const (
	wordWeight  = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

var wordRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// NewStaticEmbedder creates a new static embedder.
func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{}
}

// Embed generates an embedding for a single text.
func (e *StaticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, StaticDimensions), nil
	}
	return normalize(e.buildVector(trimmed)), nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	results := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		results[i] = emb
	}
	return results, nil
}

// buildVector accumulates hashed word features plus character n-gram
// features, so related terms with shared stems land near each other.
func (e *StaticEmbedder) buildVector(text string) []float32 {
	vector := make([]float32, StaticDimensions)

	for _, word := range wordRegex.FindAllString(text, -1) {
		lower := strings.ToLower(word)
		if regulatoryStopWords[lower] {
			continue
		}
		vector[hashToIndex(lower, StaticDimensions)] += wordWeight
	}

	flat := flattenForNgrams(text)
	for i := 0; i+ngramSize <= len(flat); i++ {
		vector[hashToIndex(flat[i:i+ngramSize], StaticDimensions)] += ngramWeight
	}

	return vector
}

// flattenForNgrams strips everything but lowercase letters and digits.
func flattenForNgrams(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// hashToIndex maps a string to a vector index via FNV-64.
func hashToIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}

// normalize scales the vector to unit length.
func normalize(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return v
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
	return v
}

// Dimensions returns the embedding dimension.
func (e *StaticEmbedder) Dimensions() int { return StaticDimensions }

// ModelName returns the model identifier.
func (e *StaticEmbedder) ModelName() string { return "static-hash" }

// Close releases resources.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

var _ Embedder = (*StaticEmbedder)(nil)
