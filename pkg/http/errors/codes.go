package errors

// Error codes for standardized error responses
const (
	// Authentication errors
	ErrCodeInvalidToken           = "invalid_token"
	ErrCodeTokenExpired           = "token_expired"
	ErrCodeAuthenticationRequired = "authentication_required"

	// Validation errors
	ErrCodeInvalidRequest   = "invalid_request"
	ErrCodeValidationFailed = "validation_failed"
	ErrCodeInvalidLength    = "invalid_length"

	// Resource errors
	ErrCodeNotFound        = "not_found"
	ErrCodeModuleNotFound  = "module_not_found"
	ErrCodeSessionNotFound = "session_not_found"
	ErrCodeResultNotFound  = "result_not_found"
	ErrCodeQuestionUnknown = "question_not_in_session"

	// Session errors
	ErrCodeEmptyPool        = "empty_pool"
	ErrCodeSessionFinished  = "session_finished"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeHistoryFetchFail = "history_fetch_failed"

	// Report errors
	ErrCodeAlreadyViewed   = "already_viewed"
	ErrCodeExportDisabled  = "export_disabled"
	ErrCodeReportCloseFail = "report_close_failed"

	// WebSocket errors
	ErrCodeInvalidPayload     = "invalid_payload"
	ErrCodeUnknownMessageType = "unknown_message_type"

	// Server errors
	ErrCodeInternalError      = "internal_error"
	ErrCodeServiceUnavailable = "service_unavailable"
	ErrCodeUpstreamError      = "upstream_error"
)
