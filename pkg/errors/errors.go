package errors

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes errors
type ErrorCode string

const (
	ErrCodeProbe      ErrorCode = "PROBE_ERROR"
	ErrCodeExtraction ErrorCode = "EXTRACTION_ERROR"
	ErrCodeExport     ErrorCode = "EXPORT_ERROR"
	ErrCodeFFmpeg     ErrorCode = "FFMPEG_ERROR"
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"
	ErrCodeIO         ErrorCode = "IO_ERROR"
	ErrCodeCanceled   ErrorCode = "CANCELED_ERROR"
)

// MixError is the base structured error
type MixError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Fields  map[string]interface{}
}

func (e *MixError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *MixError) Unwrap() error {
	return e.Cause
}

// ProbeError represents a stream-probing failure. Session resets to the
// no-media state when one of these surfaces.
type ProbeError struct {
	MixError
	Path string
}

func NewProbeError(path, message string, cause error) *ProbeError {
	return &ProbeError{
		MixError: MixError{
			Code:    ErrCodeProbe,
			Message: message,
			Cause:   cause,
		},
		Path: path,
	}
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("%s (path=%s)", e.MixError.Error(), e.Path)
}

// ExtractionError represents a per-track preview extraction failure.
// Contained: the affected track goes inert, other tracks are unaffected.
type ExtractionError struct {
	MixError
	TrackIndex int
}

func NewExtractionError(trackIndex int, message string, cause error) *ExtractionError {
	return &ExtractionError{
		MixError: MixError{
			Code:    ErrCodeExtraction,
			Message: message,
			Cause:   cause,
		},
		TrackIndex: trackIndex,
	}
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s (track=%d)", e.MixError.Error(), e.TrackIndex)
}

// ExportError represents a failed export job
type ExportError struct {
	MixError
	JobID string
}

func NewExportError(jobID, message string, cause error) *ExportError {
	return &ExportError{
		MixError: MixError{
			Code:    ErrCodeExport,
			Message: message,
			Cause:   cause,
		},
		JobID: jobID,
	}
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("%s (job=%s)", e.MixError.Error(), e.JobID)
}

// FFmpegError represents an FFmpeg execution failure
type FFmpegError struct {
	MixError
	Args     []string
	ExitCode int
	Stderr   string
}

func NewFFmpegError(message string, args []string, exitCode int, stderr string, cause error) *FFmpegError {
	return &FFmpegError{
		MixError: MixError{
			Code:    ErrCodeFFmpeg,
			Message: message,
			Cause:   cause,
		},
		Args:     args,
		ExitCode: exitCode,
		Stderr:   stderr,
	}
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("[%s] %s (exit=%d, stderr=%q): %v",
		e.Code, e.Message, e.ExitCode, truncate(e.Stderr, 200), e.Cause)
}

// ValidationError represents input validation failure
type ValidationError struct {
	MixError
	Field string
	Value interface{}
}

func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		MixError: MixError{
			Code:    ErrCodeValidation,
			Message: message,
		},
		Field: field,
		Value: value,
	}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] field=%s value=%v: %s", e.Code, e.Field, e.Value, e.Message)
}

// Is enables errors.Is checks
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As enables errors.As checks
func As[T error](err error) (T, bool) {
	var target T
	ok := errors.As(err, &target)
	return target, ok
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
