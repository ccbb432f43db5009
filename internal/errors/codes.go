// Package errors provides structured error handling for covrag.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Store errors (SQLite, disk)
//   - 3XX: External service errors (embedder, vector index)
//   - 4XX: Validation errors
//   - 5XX: Retrieval errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStore indicates content store and persistence errors.
	CategoryStore Category = "STORE"
	// CategoryExternal indicates embedder or vector index errors.
	CategoryExternal Category = "EXTERNAL"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryRetrieval indicates query-time retrieval errors.
	CategoryRetrieval Category = "RETRIEVAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"
	ErrCodeTopicsInvalid  = "ERR_103_TOPICS_INVALID"

	// Store errors (200-299)
	ErrCodeStoreUnavailable = "ERR_201_STORE_UNAVAILABLE"
	ErrCodeStoreCorrupt     = "ERR_202_STORE_CORRUPT"
	ErrCodeWriteFailed      = "ERR_203_WRITE_FAILED"

	// External service errors (300-399)
	ErrCodeEmbeddingFailed     = "ERR_301_EMBEDDING_FAILED"
	ErrCodeVectorSearchFailed  = "ERR_302_VECTOR_SEARCH_FAILED"
	ErrCodeKeywordSearchFailed = "ERR_303_KEYWORD_SEARCH_FAILED"

	// Validation errors (400-499)
	ErrCodeInvalidDocument = "ERR_401_INVALID_DOCUMENT"
	ErrCodeInvalidQuery    = "ERR_402_INVALID_QUERY"
	ErrCodeQueryEmpty      = "ERR_403_QUERY_EMPTY"
	ErrCodeInvalidSource   = "ERR_404_INVALID_SOURCE"

	// Retrieval errors (500-599)
	ErrCodePartialRetrieval = "ERR_501_PARTIAL_RETRIEVAL"
	ErrCodeTotalRetrieval   = "ERR_502_TOTAL_RETRIEVAL"
	ErrCodeIndexRebuild     = "ERR_503_INDEX_REBUILD"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryRetrieval
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStore
	case '3':
		return CategoryExternal
	case '4':
		return CategoryValidation
	default:
		return CategoryRetrieval
	}
}

// severityFromCode derives severity from error code.
// Total retrieval failure and corrupt stores are fatal to the current
// operation; partial failures only degrade it.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeTotalRetrieval, ErrCodeStoreCorrupt, ErrCodeConfigInvalid, ErrCodeTopicsInvalid:
		return SeverityFatal
	case ErrCodePartialRetrieval, ErrCodeIndexRebuild:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// isRetryableCode reports whether operations failing with this code may
// succeed on retry.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeStoreUnavailable, ErrCodeEmbeddingFailed, ErrCodeVectorSearchFailed,
		ErrCodeKeywordSearchFailed, ErrCodeIndexRebuild:
		return true
	default:
		return false
	}
}
