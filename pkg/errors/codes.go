package errors

// ErrorCodeInfo contains metadata about an error code.
type ErrorCodeInfo struct {
	Code            ErrorCode
	Retryable       bool
	Description     string
	SuggestedAction string
}

// ErrorCodeRegistry maps error codes to their metadata.
var ErrorCodeRegistry = map[ErrorCode]ErrorCodeInfo{
	ErrTimeout: {
		Code:            ErrTimeout,
		Retryable:       true,
		Description:     "Operation exceeded time limit",
		SuggestedAction: "Re-run with a longer deadline or fewer concurrent workers: mailtriage batch --concurrency 1",
	},
	ErrContextCancelled: {
		Code:            ErrContextCancelled,
		Retryable:       false,
		Description:     "Operation cancelled by user or system",
		SuggestedAction: "Check if cancellation was intentional",
	},
	ErrParseError: {
		Code:            ErrParseError,
		Retryable:       false,
		Description:     "Message is not valid RFC 5322/MIME",
		SuggestedAction: "Confirm the file is a raw .eml export, not a .msg or HTML save",
	},
	ErrEmptyContent: {
		Code:            ErrEmptyContent,
		Retryable:       false,
		Description:     "Message is empty",
		SuggestedAction: "Verify the source file: ls -l <file.eml>",
	},
	ErrContentTooLarge: {
		Code:            ErrContentTooLarge,
		Retryable:       false,
		Description:     "Message exceeds the configured size limit",
		SuggestedAction: "Raise intake.max_message_bytes in ~/.mailtriage/config.yaml",
	},
	ErrDuplicateContent: {
		Code:            ErrDuplicateContent,
		Retryable:       false,
		Description:     "Message already triaged (same fingerprint)",
		SuggestedAction: "This is expected for re-reported messages; no action needed",
	},
	ErrStoreUnavailable: {
		Code:            ErrStoreUnavailable,
		Retryable:       true,
		Description:     "Analysis store unreachable or rejected the write",
		SuggestedAction: "Check database settings: mailtriage config show",
	},
	ErrPublishFailed: {
		Code:            ErrPublishFailed,
		Retryable:       true,
		Description:     "Event could not be published to Redis",
		SuggestedAction: "Check redis.addr: mailtriage config show",
	},
	ErrProcessingError: {
		Code:            ErrProcessingError,
		Retryable:       false,
		Description:     "Unclassified processing error",
		SuggestedAction: "Re-run with --debug and inspect the logs",
	},
}

// IsRetryable returns true if the given error code represents a transient, retryable error.
func IsRetryable(code ErrorCode) bool {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.Retryable
	}
	return false
}

// GetSuggestedAction returns the suggested action for the given error code.
func GetSuggestedAction(code ErrorCode) string {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.SuggestedAction
	}
	return "Re-run with --debug and inspect the logs"
}

// GetDescription returns the human-readable description for the given error code.
func GetDescription(code ErrorCode) string {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.Description
	}
	return "Unknown error"
}
