package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error is the structured error type shared by every memesearch package.
// It carries enough context for the caller to decide whether to skip the
// unit of work, degrade, or abort.
type Error struct {
	// Code is the unique error code (e.g., "ERR_502_EMBEDDING_FAILED").
	Code string

	Message  string
	Category Category
	Severity Severity

	// Details contains additional context such as the affected path.
	Details map[string]string

	Cause     error
	Retryable bool

	// Suggestion is an actionable hint shown by the CLI.
	Suggestion string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by code so errors.Is works against sentinel values.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion sets the user-facing hint.
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestion = suggestion
	return e
}

// New creates an Error. Category, severity and retryability derive from the code.
func New(code string, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an Error from an existing error, reusing its message.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// TransientIO reports a file that vanished or could not be read mid-operation.
// The affected unit is skipped and the operation continues.
func TransientIO(path string, cause error) *Error {
	return New(ErrCodeFileNotFound, fmt.Sprintf("cannot read %s", path), cause).
		WithDetail("path", path)
}

// Inference reports an embedding backend failure.
func Inference(message string, cause error) *Error {
	return New(ErrCodeEmbeddingFailed, message, cause)
}

// OCR reports a text extraction failure. Callers degrade to empty text.
func OCR(path string, cause error) *Error {
	return New(ErrCodeOCRFailed, fmt.Sprintf("text extraction failed for %s", path), cause).
		WithDetail("path", path)
}

// AssetLoad reports a missing or malformed model asset. It is fatal.
func AssetLoad(path string, cause error) *Error {
	return New(ErrCodeAssetLoad, fmt.Sprintf("cannot load asset %s", path), cause).
		WithDetail("path", path).
		WithSuggestion("check the embeddings.vocab_path / merges_path / tokenizer_path settings")
}

// Store reports a failed write against the vector store.
func Store(op string, cause error) *Error {
	return New(ErrCodeStoreWrite, fmt.Sprintf("store %s failed", op), cause).
		WithDetail("op", op)
}

// Config reports an invalid configuration.
func Config(message string, cause error) *Error {
	return New(ErrCodeConfigInvalid, message, cause)
}

// Validation reports invalid user input.
func Validation(message string, cause error) *Error {
	return New(ErrCodeInvalidInput, message, cause)
}

// as finds the first *Error in the chain.
func as(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := as(err); ok {
		return e.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	if e, ok := as(err); ok {
		return e.Severity == SeverityFatal
	}
	return false
}

// HasCode reports whether any *Error in the chain carries code.
func HasCode(err error, code string) bool {
	return GetCode(err) == code
}

// GetCode extracts the error code. Returns empty string for foreign errors.
func GetCode(err error) string {
	if e, ok := as(err); ok {
		return e.Code
	}
	return ""
}

// FormatForCLI formats an error for terminal display.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	e, ok := as(err)
	if !ok {
		e = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", e.Message)
	if e.Cause != nil && e.Cause.Error() != e.Message {
		fmt.Fprintf(&sb, "  Cause: %s\n", e.Cause)
	}
	if e.Suggestion != "" {
		fmt.Fprintf(&sb, "  Hint: %s\n", e.Suggestion)
	}
	fmt.Fprintf(&sb, "  Code: %s\n", e.Code)
	return sb.String()
}

// LogAttrs flattens an error into slog-friendly key/value pairs.
func LogAttrs(err error) []any {
	if err == nil {
		return nil
	}
	e, ok := as(err)
	if !ok {
		return []any{"error", err.Error()}
	}
	attrs := []any{"error", e.Error(), "error_code", e.Code, "severity", string(e.Severity)}
	if e.Cause != nil {
		attrs = append(attrs, "cause", e.Cause.Error())
	}
	for k, v := range e.Details {
		attrs = append(attrs, "detail_"+k, v)
	}
	return attrs
}
