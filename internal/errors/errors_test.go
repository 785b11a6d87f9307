package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefvecError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an error wrapping an underlying cause
	cause := errors.New("disk on fire")
	err := New(ErrCodeIndexFailed, "upsert failed", cause)

	// Then: errors.Is reaches the cause
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "[ERR_505_INDEX_FAILED] upsert failed", err.Error())
}

func TestRefvecError_Is_MatchesByCode(t *testing.T) {
	a := New(ErrCodeDirectoryMissing, "one", nil)
	b := New(ErrCodeDirectoryMissing, "two", nil)
	c := New(ErrCodeConfigInvalid, "three", nil)

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))
}

func TestKindFromCode(t *testing.T) {
	tests := []struct {
		code string
		want Kind
	}{
		{ErrCodeDirectoryMissing, KindConfiguration},
		{ErrCodeConfigInvalid, KindConfiguration},
		{ErrCodeRunInProgress, KindConfiguration},
		{ErrCodeMetadataCorrupt, KindMetadataStore},
		{ErrCodeMetadataWrite, KindMetadataStore},
		{ErrCodeExtractionFailed, KindExtraction},
		{ErrCodeIndexFailed, KindIndex},
		{ErrCodeEmbeddingFailed, KindIndex},
		{ErrCodeInternal, KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, kindFromCode(tt.code))
		})
	}
}

func TestSeverity_FatalKinds(t *testing.T) {
	// Given: one error of each kind
	// Then: configuration and metadata store errors abort, per-file ones do not
	assert.True(t, IsFatal(ConfigurationError("bad", nil)))
	assert.True(t, IsFatal(MetadataStoreError("corrupt", nil)))
	assert.False(t, IsFatal(ExtractionError("/docs/a.pdf", nil)))
	assert.False(t, IsFatal(IndexError("/docs/a.pdf", nil)))
	assert.False(t, IsFatal(errors.New("plain")))
}

func TestKindOf_SeesThroughWrapping(t *testing.T) {
	// Given: a per-file error wrapped by fmt.Errorf
	inner := ExtractionError("/docs/b.pdf", errors.New("malformed xref"))
	wrapped := fmt.Errorf("processing b.pdf: %w", inner)

	// Then: the kind and code survive wrapping
	assert.Equal(t, KindExtraction, KindOf(wrapped))
	assert.Equal(t, ErrCodeExtractionFailed, GetCode(wrapped))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
}

func TestExtractionError_CarriesPathDetail(t *testing.T) {
	err := ExtractionError("/docs/c.pdf", errors.New("eof"))

	assert.Equal(t, "/docs/c.pdf", err.Details["path"])
	assert.Contains(t, err.Message, "eof")
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NetworkError("refused", nil)))
	assert.True(t, IsRetryable(fmt.Errorf("batch 2: %w", New(ErrCodeEmbeddingFailed, "503", nil))))
	assert.False(t, IsRetryable(ConfigurationError("bad", nil)))
	assert.False(t, IsRetryable(nil))
}

func TestFormatForCLI_IncludesHintAndCode(t *testing.T) {
	err := New(ErrCodeDirectoryMissing, "reference directory not found: /nope", nil).
		WithSuggestion("create it or pass --path")

	out := FormatForCLI(err)

	assert.Contains(t, out, "Error: reference directory not found: /nope")
	assert.Contains(t, out, "Hint: create it or pass --path")
	assert.Contains(t, out, "Code: ERR_104_DIRECTORY_MISSING")
}

func TestFormatForCLI_StandardError(t *testing.T) {
	out := FormatForCLI(errors.New("boom"))
	assert.Contains(t, out, "Error: boom")
	assert.Contains(t, out, ErrCodeInternal)
	assert.Empty(t, FormatForCLI(nil))
}

func TestFormatJSON_IncludesKind(t *testing.T) {
	data, err := FormatJSON(IndexError("/docs/a.pdf", errors.New("timeout")))
	require.NoError(t, err)

	assert.Contains(t, string(data), `"kind":"index_error"`)
	assert.Contains(t, string(data), `"cause":"timeout"`)
}

func TestLogAttrs_SortsDetails(t *testing.T) {
	err := New(ErrCodeIndexFailed, "x", nil).WithDetail("z", "1").WithDetail("a", "2")

	attrs := LogAttrs(err)

	var keys []string
	for _, a := range attrs {
		keys = append(keys, a.Key)
	}
	assert.Equal(t, []string{"error", "error_code", "error_kind", "retryable", "detail_a", "detail_z"}, keys)
}
