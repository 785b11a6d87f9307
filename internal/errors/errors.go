package errors

import (
	"errors"
	"fmt"
)

// RefvecError is the structured error type used across refvec.
type RefvecError struct {
	// Code is the unique error code (e.g., "ERR_104_DIRECTORY_MISSING").
	Code string

	// Kind is the pipeline failure class derived from Code.
	Kind Kind

	Message  string
	Category Category
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable hint for the operator.
	Suggestion string
}

// Error implements the error interface.
func (e *RefvecError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *RefvecError) Unwrap() error {
	return e.Cause
}

// Is matches another RefvecError by code so errors.Is works on sentinels.
func (e *RefvecError) Is(target error) bool {
	if t, ok := target.(*RefvecError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *RefvecError) WithDetail(key, value string) *RefvecError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *RefvecError) WithSuggestion(suggestion string) *RefvecError {
	e.Suggestion = suggestion
	return e
}

// New creates a RefvecError. Kind, category, severity and the retryable
// flag are derived from the code.
func New(code string, message string, cause error) *RefvecError {
	return &RefvecError{
		Code:      code,
		Kind:      kindFromCode(code),
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a RefvecError from an existing error, reusing its message.
func Wrap(code string, err error) *RefvecError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigurationError reports a bad path, invalid setting or missing
// collaborator. Fatal.
func ConfigurationError(message string, cause error) *RefvecError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// MetadataStoreError reports an unreadable metadata store. Fatal.
func MetadataStoreError(message string, cause error) *RefvecError {
	return New(ErrCodeMetadataCorrupt, message, cause).
		WithSuggestion("inspect the store, or reset it with 'refvec clean --force'")
}

// ExtractionError reports that one file could not be turned into text.
func ExtractionError(path string, cause error) *RefvecError {
	msg := "failed to extract text"
	if cause != nil {
		msg = fmt.Sprintf("failed to extract text: %v", cause)
	}
	return New(ErrCodeExtractionFailed, msg, cause).WithDetail("path", path)
}

// IndexError reports that one file could not be embedded or written to the
// index after the retry policy was exhausted.
func IndexError(path string, cause error) *RefvecError {
	msg := "failed to index"
	if cause != nil {
		msg = fmt.Sprintf("failed to index: %v", cause)
	}
	return New(ErrCodeIndexFailed, msg, cause).WithDetail("path", path)
}

// NetworkError creates a retryable network error.
func NetworkError(message string, cause error) *RefvecError {
	return New(ErrCodeNetworkUnavailable, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *RefvecError {
	return New(ErrCodeInternal, message, cause)
}

// As returns the first RefvecError in err's chain.
func As(err error) (*RefvecError, bool) {
	var re *RefvecError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// KindOf returns the failure kind of err, or KindInternal when err carries
// none.
func KindOf(err error) Kind {
	if re, ok := As(err); ok {
		return re.Kind
	}
	return KindInternal
}

// IsRetryable reports whether any RefvecError in the chain is retryable.
func IsRetryable(err error) bool {
	if re, ok := As(err); ok {
		return re.Retryable
	}
	return false
}

// IsFatal reports whether err must abort the current run.
func IsFatal(err error) bool {
	if re, ok := As(err); ok {
		return re.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code, or "" when err is not a RefvecError.
func GetCode(err error) string {
	if re, ok := As(err); ok {
		return re.Code
	}
	return ""
}
