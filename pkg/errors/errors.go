// Package errors provides common domain error types for mailtriage.
//
// Sentinel errors describe conditions callers branch on with errors.Is, while
// PipelineError (see pipeline.go) carries a classified code and the analysis
// stage that failed.
//
// Usage:
//
//	import mterrors "github.com/otherjamesbrown/mailtriage/pkg/errors"
//
//	if mterrors.IsParse(err) {
//	    // the message could not be decoded as MIME
//	}
package errors

import "errors"

// Domain errors.
var (
	// ErrParse indicates the raw input is not decodable as an RFC 5322/MIME message.
	ErrParse = errors.New("parse error")

	// ErrNotFound indicates the requested analysis was not found.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates invalid input or configuration.
	ErrValidation = errors.New("validation error")

	// ErrEmptyMessage indicates the input contained no bytes.
	ErrEmptyMessage = errors.New("empty message")

	// ErrMessageTooLarge indicates the input exceeded a configured size limit.
	ErrMessageTooLarge = errors.New("message too large")

	// ErrDuplicate indicates a message with the same fingerprint was already triaged.
	ErrDuplicate = errors.New("duplicate message")
)

// IsParse reports whether any error in err's chain is ErrParse.
func IsParse(err error) bool {
	return errors.Is(err, ErrParse)
}

// IsNotFound reports whether any error in err's chain is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether any error in err's chain is ErrValidation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsEmptyMessage reports whether any error in err's chain is ErrEmptyMessage.
func IsEmptyMessage(err error) bool {
	return errors.Is(err, ErrEmptyMessage)
}

// IsMessageTooLarge reports whether any error in err's chain is ErrMessageTooLarge.
func IsMessageTooLarge(err error) bool {
	return errors.Is(err, ErrMessageTooLarge)
}

// IsDuplicate reports whether any error in err's chain is ErrDuplicate.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// ParseError wraps a MIME decoding failure. It matches ErrParse.
type ParseError struct {
	Reason string
	Cause  error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return "parse error: " + e.Reason + ": " + e.Cause.Error()
	}
	return "parse error: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Cause }

// Is makes errors.Is(err, ErrParse) hold for every ParseError.
func (e *ParseError) Is(target error) bool { return target == ErrParse }

// NewParseError returns a ParseError for the given reason and cause.
func NewParseError(reason string, cause error) *ParseError {
	return &ParseError{Reason: reason, Cause: cause}
}
