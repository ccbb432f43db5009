package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDerivesClassification(t *testing.T) {
	tests := []struct {
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{ErrCodeConfigInvalid, CategoryConfig, SeverityFatal, false},
		{ErrCodeStoreUnavailable, CategoryStore, SeverityError, true},
		{ErrCodeEmbeddingFailed, CategoryExternal, SeverityError, true},
		{ErrCodeKeywordSearchFailed, CategoryExternal, SeverityError, true},
		{ErrCodeInvalidDocument, CategoryValidation, SeverityError, false},
		{ErrCodePartialRetrieval, CategoryRetrieval, SeverityWarning, false},
		{ErrCodeTotalRetrieval, CategoryRetrieval, SeverityFatal, false},
		{ErrCodeIndexRebuild, CategoryRetrieval, SeverityWarning, true},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			e := New(tt.code, "boom", nil)
			assert.Equal(t, tt.category, e.Category)
			assert.Equal(t, tt.severity, e.Severity)
			assert.Equal(t, tt.retryable, e.Retryable)
		})
	}
}

func TestErrorChain(t *testing.T) {
	cause := errors.New("disk full")
	e := StoreUnavailable("write batch", cause)

	assert.Equal(t, "[ERR_201_STORE_UNAVAILABLE] write batch", e.Error())
	assert.ErrorIs(t, e, cause)

	wrapped := fmt.Errorf("ingest: %w", e)
	assert.Equal(t, ErrCodeStoreUnavailable, GetCode(wrapped))
	assert.True(t, IsRetryable(wrapped))
	assert.False(t, IsFatal(wrapped))

	// errors.Is matches RetrievalErrors by code.
	assert.ErrorIs(t, wrapped, StoreUnavailable("other message", nil))
}

func TestTotalFailureDetection(t *testing.T) {
	total := TotalRetrievalFailure("all executions failed", errors.New("embedder offline"))
	assert.True(t, IsTotalFailure(total))
	assert.True(t, IsFatal(total))

	partial := PartialRetrievalFailure("3 of 8 failed", nil)
	assert.False(t, IsTotalFailure(partial))
	assert.False(t, IsFatal(partial))
}

func TestGetCodePlainError(t *testing.T) {
	assert.Empty(t, GetCode(errors.New("plain")))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeWriteFailed, nil))
}

func TestWithDetail(t *testing.T) {
	e := New(ErrCodeInvalidSource, "unknown source", nil).
		WithDetail("source", "medline").
		WithDetail("query", "cardiac rehab")
	assert.Equal(t, "medline", e.Details["source"])
	assert.Equal(t, "cardiac rehab", e.Details["query"])
}

func TestValidationErrorCode(t *testing.T) {
	e := ValidationError("empty text", nil)
	require.Equal(t, ErrCodeInvalidDocument, e.Code)
	assert.Equal(t, CategoryValidation, e.Category)
}
