package v1

// Error codes the frontend switches on. The split between expired (3003)
// and not-found (3004) is load-bearing: clients may re-authenticate on
// expired, and must never retry on a revoked session.
const (
	UnknownErrorCode    = 0
	UnknownErrorMessage = "unknown error"

	InvalidCredentialsCode    = 1001
	InvalidCredentialsMessage = "invalid credentials"
	UserNotFoundCode          = 1002
	UserNotFoundMessage       = "user not found"

	SessionCredentialMissingCode      = 3001
	SessionCredentialMissingMessage   = "session credential missing"
	SessionCredentialMalformedCode    = 3002
	SessionCredentialMalformedMessage = "session credential malformed"
	SessionExpiredCode                = 3003
	SessionExpiredMessage             = "session expired"
	SessionNotFoundCode               = 3004
	SessionNotFoundMessage            = "session not found"
	DeviceActionForbiddenCode         = 3005
	DeviceActionForbiddenMessage      = "session or device belongs to another user"
)

type ErrorCode int
type ErrorMessage string

type ErrorStruct struct {
	ErrorCode    `json:"error_code"`
	ErrorMessage `json:"error_message"`
} // @name ErrorStruct

type ValidationErrorStruct struct {
	ErrorCode    int               `json:"error_code"`
	ErrorMessage string            `json:"error_message"`
	Errors       []ValidationError `json:"validation_errors"`
}

type ValidationError struct {
	FieldKey     string `json:"field_key"`
	ErrorMessage string `json:"error_message"`
}

func getErrorStruct(code ErrorCode) *ErrorStruct {
	errorStruct := &ErrorStruct{
		ErrorCode:    UnknownErrorCode,
		ErrorMessage: UnknownErrorMessage,
	}

	switch code {
	case InvalidCredentialsCode:
		errorStruct.ErrorCode = InvalidCredentialsCode
		errorStruct.ErrorMessage = InvalidCredentialsMessage
	case UserNotFoundCode:
		errorStruct.ErrorCode = UserNotFoundCode
		errorStruct.ErrorMessage = UserNotFoundMessage
	case SessionCredentialMissingCode:
		errorStruct.ErrorCode = SessionCredentialMissingCode
		errorStruct.ErrorMessage = SessionCredentialMissingMessage
	case SessionCredentialMalformedCode:
		errorStruct.ErrorCode = SessionCredentialMalformedCode
		errorStruct.ErrorMessage = SessionCredentialMalformedMessage
	case SessionExpiredCode:
		errorStruct.ErrorCode = SessionExpiredCode
		errorStruct.ErrorMessage = SessionExpiredMessage
	case SessionNotFoundCode:
		errorStruct.ErrorCode = SessionNotFoundCode
		errorStruct.ErrorMessage = SessionNotFoundMessage
	case DeviceActionForbiddenCode:
		errorStruct.ErrorCode = DeviceActionForbiddenCode
		errorStruct.ErrorMessage = DeviceActionForbiddenMessage
	}

	return errorStruct
}
