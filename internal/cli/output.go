package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/waleedabdullah7/school-fee-manager/internal/backup"
	"github.com/waleedabdullah7/school-fee-manager/internal/records"
	"github.com/waleedabdullah7/school-fee-manager/internal/storage"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation rejected (malformed bundle, migration errors, duplicate record)
	ExitCommandError = 2 // Command error (bad config, backend unavailable, unsupported operation)
)

// Error codes reported in JSON output.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeConfig      = "E002" // Config file missing or invalid
	ErrCodeBackend     = "E003" // Storage backend unavailable
	ErrCodeQuota       = "E004" // Storage quota exceeded
	ErrCodeMalformed   = "E005" // Bundle or backup rejected
	ErrCodeUnsupported = "E006" // Operation not supported by the engine
	ErrCodeDuplicate   = "E007" // Uniqueness rule violated
	ErrCodeNotFound    = "E008" // File or record not found
	ErrCodeMigration   = "E009" // Migration completed with errors
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// classify maps a store error onto an exit code and an error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, storage.ErrBackendUnavailable):
		return ExitCommandError, ErrCodeBackend
	case errors.Is(err, storage.ErrUnsupported):
		return ExitCommandError, ErrCodeUnsupported
	case storage.IsQuotaError(err):
		return ExitFailure, ErrCodeQuota
	case errors.Is(err, backup.ErrMalformedBundle), errors.Is(err, backup.ErrInvalidBackup):
		return ExitFailure, ErrCodeMalformed
	case errors.Is(err, records.ErrDuplicateKey):
		return ExitFailure, ErrCodeDuplicate
	case errors.Is(err, records.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return ExitCommandError, ErrCodeNotFound
	default:
		return ExitFailure, ErrCodeGeneric
	}
}

// fail reports err through the formatter and returns it as an ExitError.
func fail(out *OutputFormatter, message string, err error) error {
	code, errCode := classify(err)
	_ = out.Error(errCode, fmt.Sprintf("%s: %v", message, err), nil)
	return WrapExitError(code, message, err)
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E002", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a result. Text mode prints text; JSON mode wraps data.
func (f *OutputFormatter) Success(data any, text string) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	fmt.Fprintln(f.Writer, text)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.GetErrWriter(), "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.GetErrWriter(), "Details: %v\n", details)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
