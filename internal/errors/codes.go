// Package errors provides structured error handling for the discovery engine.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Repository errors
//   - 3XX: Network / backend errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Kind is the stable discriminator surfaced to callers. Transports map kinds
// onto their own status codes; the core only guarantees the kind is stable.
type Kind string

const (
	// KindInvalidInput indicates the caller supplied a bad query, limit, or
	// enum value. No side effects occurred.
	KindInvalidInput Kind = "INVALID_INPUT"
	// KindUnavailable indicates the repository or embedding backend cannot be
	// reached. Callers may degrade.
	KindUnavailable Kind = "UNAVAILABLE"
	// KindNotFound indicates a product or search-log id is unknown.
	KindNotFound Kind = "NOT_FOUND"
	// KindConflict indicates an upsert violated a uniqueness invariant.
	KindConflict Kind = "CONFLICT"
	// KindCancelled indicates the task was cancelled before completion.
	KindCancelled Kind = "CANCELLED"
	// KindTimeout indicates the task exceeded its hard deadline.
	KindTimeout Kind = "TIMEOUT"
	// KindInternal indicates a bug or invariant violation.
	KindInternal Kind = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but the process can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Repository errors (200-299)
	ErrCodeRepoUnavailable  = "ERR_201_REPO_UNAVAILABLE"
	ErrCodeProductNotFound  = "ERR_202_PRODUCT_NOT_FOUND"
	ErrCodeSearchLogMissing = "ERR_203_SEARCH_LOG_NOT_FOUND"
	ErrCodeDuplicateSKU     = "ERR_204_DUPLICATE_SKU"
	ErrCodeMigrationFailed  = "ERR_205_MIGRATION_FAILED"
	ErrCodeRecordNotFound   = "ERR_206_RECORD_NOT_FOUND"

	// Network / backend errors (300-399)
	ErrCodeEmbeddingTimeout     = "ERR_301_EMBEDDING_TIMEOUT"
	ErrCodeEmbeddingUnavailable = "ERR_302_EMBEDDING_UNAVAILABLE"
	ErrCodeSearchCancelled      = "ERR_303_SEARCH_CANCELLED"
	ErrCodeSearchTimeout        = "ERR_304_SEARCH_TIMEOUT"

	// Validation errors (400-499)
	ErrCodeInvalidInput    = "ERR_401_INVALID_INPUT"
	ErrCodeQueryEmpty      = "ERR_402_QUERY_EMPTY"
	ErrCodeQueryTooLong    = "ERR_403_QUERY_TOO_LONG"
	ErrCodeInvalidLimit    = "ERR_404_INVALID_LIMIT"
	ErrCodeInvalidKind     = "ERR_405_INVALID_INTERACTION_KIND"
	ErrCodeInvalidWeights  = "ERR_406_INVALID_WEIGHTS"
	ErrCodeInvalidProduct  = "ERR_407_INVALID_PRODUCT"
	ErrCodeInvalidFilter   = "ERR_408_INVALID_FILTER"
	ErrCodeSessionExpired  = "ERR_409_SESSION_EXPIRED"
	ErrCodeInvalidJudgment = "ERR_410_INVALID_JUDGMENT"

	// Internal errors (500-599)
	ErrCodeInternal         = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed  = "ERR_502_EMBEDDING_FAILED"
	ErrCodeSearchFailed     = "ERR_503_SEARCH_FAILED"
	ErrCodeVectorCorrupt    = "ERR_504_VECTOR_NOT_NORMALIZED"
	ErrCodeIndexFailed      = "ERR_505_INDEX_FAILED"
	ErrCodeDimensionInvalid = "ERR_506_DIMENSION_MISMATCH"
)

// kindFromCode maps an error code prefix onto the public kind.
func kindFromCode(code string) Kind {
	switch code {
	case ErrCodeProductNotFound, ErrCodeSearchLogMissing, ErrCodeRecordNotFound:
		return KindNotFound
	case ErrCodeDuplicateSKU:
		return KindConflict
	case ErrCodeSearchCancelled:
		return KindCancelled
	case ErrCodeEmbeddingTimeout, ErrCodeSearchTimeout:
		return KindTimeout
	}
	if len(code) < 7 {
		return KindInternal
	}
	switch code[4] {
	case '1':
		return KindInvalidInput
	case '2', '3':
		return KindUnavailable
	case '4':
		return KindInvalidInput
	default:
		return KindInternal
	}
}

// severityFromCode derives severity from the error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeConfigInvalid, ErrCodeConfigNotFound, ErrCodeMigrationFailed:
		return SeverityFatal
	case ErrCodeEmbeddingTimeout, ErrCodeEmbeddingUnavailable, ErrCodeVectorCorrupt:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// isRetryableCode reports whether operations failing with this code may be
// retried. Backend and repository connectivity failures are transient.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeRepoUnavailable,
		ErrCodeEmbeddingTimeout,
		ErrCodeEmbeddingUnavailable,
		ErrCodeEmbeddingFailed:
		return true
	}
	return false
}
