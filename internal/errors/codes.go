// Package errors provides structured error handling for refvec.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO and store errors
//   - 3XX: Network errors
//   - 4XX: Validation errors
//   - 5XX: Internal and indexing errors
//
// On top of the code taxonomy every error carries a Kind, which is what the
// pipeline uses to decide whether a failure aborts the run or is recorded
// against a single file.
package errors

// Category defines error categories for classification.
type Category string

const (
	CategoryConfig     Category = "CONFIG"
	CategoryIO         Category = "IO"
	CategoryNetwork    Category = "NETWORK"
	CategoryValidation Category = "VALIDATION"
	CategoryInternal   Category = "INTERNAL"
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

// Kind is the pipeline-level failure class of an error.
type Kind string

const (
	// KindConfiguration covers bad paths, invalid settings and missing
	// collaborators. Always fatal.
	KindConfiguration Kind = "configuration_error"
	// KindMetadataStore covers an unreadable or corrupt metadata store.
	// Always fatal: the skip logic cannot be trusted without it.
	KindMetadataStore Kind = "metadata_store_error"
	// KindExtraction is a per-file failure to turn a document into text.
	KindExtraction Kind = "extraction_error"
	// KindIndex is a per-file failure to embed or write index entries.
	KindIndex Kind = "index_error"
	// KindInternal is anything else.
	KindInternal Kind = "internal_error"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound    = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid     = "ERR_102_CONFIG_INVALID"
	ErrCodeConfigPermission  = "ERR_103_CONFIG_PERMISSION"
	ErrCodeDirectoryMissing  = "ERR_104_DIRECTORY_MISSING"
	ErrCodeRunInProgress     = "ERR_105_RUN_IN_PROGRESS"
	ErrCodeModelMismatch     = "ERR_106_MODEL_MISMATCH"
	ErrCodeEmbedderMissing   = "ERR_107_EMBEDDER_UNAVAILABLE"
	ErrCodeUnsupportedFormat = "ERR_108_UNSUPPORTED_FORMAT"

	// IO and store errors (200-299)
	ErrCodeFileNotFound     = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFilePermission   = "ERR_202_FILE_PERMISSION"
	ErrCodeDiskFull         = "ERR_203_DISK_FULL"
	ErrCodeCorruptIndex     = "ERR_205_CORRUPT_INDEX"
	ErrCodeMetadataCorrupt  = "ERR_207_METADATA_CORRUPT"
	ErrCodeExtractionFailed = "ERR_208_EXTRACTION_FAILED"
	ErrCodeMetadataWrite    = "ERR_209_METADATA_WRITE"
	ErrCodeIndexUnavailable = "ERR_210_INDEX_UNAVAILABLE"

	// Network errors (300-399)
	ErrCodeNetworkTimeout     = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeNetworkUnavailable = "ERR_302_NETWORK_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeQueryEmpty        = "ERR_404_QUERY_EMPTY"
	ErrCodeIndexEmpty        = "ERR_407_INDEX_EMPTY"

	// Internal errors (500-599)
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed = "ERR_502_EMBEDDING_FAILED"
	ErrCodeSearchFailed    = "ERR_503_SEARCH_FAILED"
	ErrCodeIndexFailed     = "ERR_505_INDEX_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// "101" from "ERR_101_CONFIG_NOT_FOUND"
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// kindFromCode maps a code onto the pipeline failure class.
func kindFromCode(code string) Kind {
	switch code {
	case ErrCodeMetadataCorrupt, ErrCodeMetadataWrite:
		return KindMetadataStore
	case ErrCodeExtractionFailed, ErrCodeUnsupportedFormat:
		return KindExtraction
	case ErrCodeIndexFailed, ErrCodeEmbeddingFailed, ErrCodeDimensionMismatch,
		ErrCodeNetworkTimeout, ErrCodeNetworkUnavailable:
		return KindIndex
	}
	if categoryFromCode(code) == CategoryConfig {
		return KindConfiguration
	}
	return KindInternal
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch kindFromCode(code) {
	case KindConfiguration, KindMetadataStore:
		return SeverityFatal
	}

	switch code {
	case ErrCodeCorruptIndex, ErrCodeDiskFull:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout, ErrCodeNetworkUnavailable, ErrCodeEmbeddingFailed:
		return true
	default:
		return false
	}
}
