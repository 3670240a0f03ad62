package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents a classified analysis failure.
type ErrorCode string

const (
	ErrTimeout          ErrorCode = "timeout"
	ErrContextCancelled ErrorCode = "context_cancelled"
	ErrParseError       ErrorCode = "parse_error"
	ErrEmptyContent     ErrorCode = "empty_content"
	ErrContentTooLarge  ErrorCode = "content_too_large"
	ErrDuplicateContent ErrorCode = "duplicate_content"
	ErrStoreUnavailable ErrorCode = "store_unavailable"
	ErrPublishFailed    ErrorCode = "publish_failed"
	ErrProcessingError  ErrorCode = "processing_error"
)

// Stages of a triage run, used as PipelineError.Stage.
const (
	StageRead    = "read"
	StageParse   = "parse"
	StageExtract = "extract"
	StageRedact  = "redact"
	StageScore   = "score"
	StageStore   = "store"
	StagePublish = "publish"
)

// PipelineError is a structured error for a failed triage stage.
type PipelineError struct {
	Code     ErrorCode
	Stage    string
	Message  string
	Duration time.Duration
	Cause    error
}

func (e *PipelineError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// ClassifyError inspects err and returns a *PipelineError with the matching code.
// Unrecognised errors are classified as ErrProcessingError.
func ClassifyError(err error, stage string) *PipelineError {
	if err == nil {
		return nil
	}

	var existing *PipelineError
	if errors.As(err, &existing) {
		return existing
	}

	pe := &PipelineError{Stage: stage, Cause: err, Message: err.Error()}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		pe.Code = ErrTimeout
		pe.Message = "operation timed out"
		return pe
	case errors.Is(err, context.Canceled):
		pe.Code = ErrContextCancelled
		pe.Message = "operation cancelled"
		return pe
	case errors.Is(err, ErrParse):
		pe.Code = ErrParseError
		return pe
	case errors.Is(err, ErrEmptyMessage):
		pe.Code = ErrEmptyContent
		return pe
	case errors.Is(err, ErrMessageTooLarge):
		pe.Code = ErrContentTooLarge
		return pe
	case errors.Is(err, ErrDuplicate):
		pe.Code = ErrDuplicateContent
		return pe
	}

	lower := strings.ToLower(err.Error())

	if strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "failed to connect") {
		if stage == StagePublish {
			pe.Code = ErrPublishFailed
		} else {
			pe.Code = ErrStoreUnavailable
		}
		return pe
	}

	switch stage {
	case StageStore:
		pe.Code = ErrStoreUnavailable
	case StagePublish:
		pe.Code = ErrPublishFailed
	default:
		pe.Code = ErrProcessingError
	}
	return pe
}

// WithDuration records how long the failing stage ran.
func (e *PipelineError) WithDuration(d time.Duration) *PipelineError {
	e.Duration = d
	return e
}

// IsTimeout returns true if the error is a classified timeout.
func IsTimeout(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code == ErrTimeout
	}
	return false
}

// IsErrorRetryable returns true if the error is likely transient and worth retrying.
func IsErrorRetryable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return IsRetryable(pe.Code)
	}
	return false
}

// SuggestedAction returns the suggested action for a classified error, or ""
// when err carries no PipelineError.
func SuggestedAction(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return GetSuggestedAction(pe.Code)
	}
	return ""
}
