package errors

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// FormatForCLI formats an error for terminal output.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	re, ok := As(err)
	if !ok {
		re = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", re.Message)
	if re.Suggestion != "" {
		fmt.Fprintf(&sb, "  Hint: %s\n", re.Suggestion)
	}
	fmt.Fprintf(&sb, "  Code: %s\n", re.Code)
	return sb.String()
}

type jsonError struct {
	Code       string            `json:"code"`
	Kind       string            `json:"kind"`
	Message    string            `json:"message"`
	Severity   string            `json:"severity"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Cause      string            `json:"cause,omitempty"`
	Retryable  bool              `json:"retryable"`
}

// FormatJSON returns a JSON representation of the error.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}

	re, ok := As(err)
	if !ok {
		re = Wrap(ErrCodeInternal, err)
	}

	je := jsonError{
		Code:       re.Code,
		Kind:       string(re.Kind),
		Message:    re.Message,
		Severity:   string(re.Severity),
		Details:    re.Details,
		Suggestion: re.Suggestion,
		Retryable:  re.Retryable,
	}
	if re.Cause != nil {
		je.Cause = re.Cause.Error()
	}
	return json.Marshal(je)
}

// LogAttrs returns slog attributes describing err, details sorted by key.
func LogAttrs(err error) []slog.Attr {
	if err == nil {
		return nil
	}

	re, ok := As(err)
	if !ok {
		return []slog.Attr{slog.String("error", err.Error())}
	}

	attrs := []slog.Attr{
		slog.String("error", re.Message),
		slog.String("error_code", re.Code),
		slog.String("error_kind", string(re.Kind)),
		slog.Bool("retryable", re.Retryable),
	}
	if re.Cause != nil {
		attrs = append(attrs, slog.String("cause", re.Cause.Error()))
	}

	keys := make([]string, 0, len(re.Details))
	for k := range re.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.String("detail_"+k, re.Details[k]))
	}
	return attrs
}
