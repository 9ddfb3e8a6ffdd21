// Package apperr carries the machine-readable error codes of the signing
// API. Codes are part of the wire contract; callers branch on them.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable error codes
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeForbidden        = "FORBIDDEN"
	CodeAlreadySigned    = "ALREADY_SIGNED"
	CodeFileNotPending   = "FILE_NOT_PENDING"
	CodeConsentRequired  = "CONSENT_REQUIRED"
	CodeOtpRequired      = "OTP_REQUIRED"
	CodeOtpInvalid       = "OTP_INVALID"
	CodeOtpExpired       = "OTP_EXPIRED"
	CodeOtpWaiverAck     = "OTP_WAIVER_ACK_REQUIRED"
	CodeUserHasLegalData = "USER_HAS_LEGAL_DATA"
	CodeInvalidPDF       = "INVALID_PDF"
	CodeAuditWriteFailed = "AUDIT_WRITE_FAILED"
	CodeStorage          = "STORAGE_ERROR"
	CodeInternal         = "INTERNAL_ERROR"
)

// Error is an error with a stable code and a human message. The message may
// be localized by the caller; the code never changes.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates an Error with the given code and message.
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an Error wrapping an underlying cause.
func Wrap(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// CodeOf extracts the stable code from any error, defaulting to
// INTERNAL_ERROR for unclassified failures.
func CodeOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	return CodeOf(err) == code
}

// HTTPStatus maps a code to the status the handlers respond with.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeValidation, CodeInvalidPDF:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodeAlreadySigned, CodeFileNotPending, CodeUserHasLegalData:
		return http.StatusConflict
	case CodeConsentRequired, CodeOtpRequired, CodeOtpInvalid, CodeOtpExpired, CodeOtpWaiverAck:
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}
