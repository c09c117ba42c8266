package bridge

import "errors"

// Code identifies a bridge failure class. Codes are part of the application
// contract and stay stable across releases.
type Code string

const (
	CodeNotInitialized         Code = "BUBBL_NOT_INITIALIZED"
	CodeInvalidArgument        Code = "BUBBL_INVALID_ARGUMENT"
	CodePersistFailed          Code = "BUBBL_PERSIST_FAILED"
	CodeVendorFailed           Code = "BUBBL_VENDOR_FAILED"
	CodeSegmentsFailed         Code = "BUBBL_SEGMENTS_FAILED"
	CodeCorrelationIDFailed    Code = "BUBBL_CORRELATION_ID_FAILED"
	CodePrivacyFailed          Code = "BUBBL_PRIVACY_FAILED"
	CodeGetConfigFailed        Code = "BUBBL_GET_CONFIG_FAILED"
	CodeSendEventFailed        Code = "BUBBL_SEND_EVENT_FAILED"
	CodeSurveyEventFailed      Code = "BUBBL_SURVEY_EVENT_FAILED"
	CodeSurveySubmitFailed     Code = "BUBBL_SURVEY_SUBMIT_FAILED"
	CodePushPermissionFailed   Code = "BUBBL_PUSH_PERMISSION_FAILED"
	CodeTestNotificationFailed Code = "BUBBL_TEST_NOTIFICATION_FAILED"
	CodeBootFailed             Code = "BUBBL_BOOT_FAILED"
	CodeTenantGetFailed        Code = "BUBBL_TENANT_GET_FAILED"
	CodeTenantSetFailed        Code = "BUBBL_TENANT_SET_FAILED"
	CodeTenantClearFailed      Code = "BUBBL_TENANT_CLEAR_FAILED"
	CodeClearConfigFailed      Code = "BUBBL_CLEAR_CONFIG_FAILED"
	CodeStartLocationFailed    Code = "BUBBL_START_LOCATION_FAILED"
)

// Error carries a stable code for the application layer plus the underlying
// cause for logs.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Code) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// errf builds an Error without a cause.
func errf(code Code, msg string) *Error { return &Error{Code: code, Message: msg} }

// wrapf builds an Error around a cause. A nil cause collapses to errf.
func wrapf(code Code, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// errNotInitialized is the shared gate failure: every gated method rejects
// with it before any vendor work happens.
func errNotInitialized() *Error {
	return errf(CodeNotInitialized, "call boot() before using the bridge")
}

// CodeOf extracts the bridge code from an error chain; empty when none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
