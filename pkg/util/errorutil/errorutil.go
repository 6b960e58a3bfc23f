package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes shared by every DomainError.
const (
	CodeValidation = "VALIDATION_FAILED"
	CodeConflict   = "CONFLICT"
	CodeStorage    = "STORAGE_ERROR"
	CodeAttachment = "ATTACHMENT_ERROR"
	CodeNotFound   = "NOT_FOUND"
	CodeUnauth     = "UNAUTHORIZED"
	CodeForbidden  = "FORBIDDEN"
	CodeInternal   = "INTERNAL_ERROR"
)

// Reason names the invariant a rejected call violated.
type Reason string

const (
	ReasonSummaryRequired         Reason = "summary_required"
	ReasonDepartmentNotFound      Reason = "department_not_found"
	ReasonDepartmentCompany       Reason = "department_company_mismatch"
	ReasonEmailRequired           Reason = "email_required"
	ReasonEmailInvalid            Reason = "email_invalid"
	ReasonInvalidStatus           Reason = "invalid_status"
	ReasonInvalidPriority         Reason = "invalid_priority"
	ReasonStaffNotFound           Reason = "staff_not_found"
	ReasonClientNotFound          Reason = "client_not_found"
	ReasonClientCompany           Reason = "client_company_mismatch"
	ReasonServiceNotOwned         Reason = "service_not_owned"
	ReasonContactNotOwned         Reason = "contact_not_owned"
	ReasonDetailsRequired         Reason = "details_required"
	ReasonInvalidReplyType        Reason = "invalid_reply_type"
	ReasonCustomFieldUnknown      Reason = "custom_field_unknown"
	ReasonCustomFieldRequired     Reason = "custom_field_required"
	ReasonCustomFieldOption       Reason = "custom_field_option"
	ReasonSplitReplyInvalid       Reason = "split_reply_invalid"
	ReasonSplitRequiresReply      Reason = "split_requires_reply"
	ReasonSplitEmptiesOrigin      Reason = "split_empties_origin"
	ReasonMergeSourceMismatch     Reason = "merge_source_mismatch"
	ReasonMergeSelf               Reason = "merge_self"
	ReasonTicketIDsRequired       Reason = "ticket_ids_required"
	ReasonClientAlreadyAssigned   Reason = "client_already_assigned"
	ReasonTicketTrashed           Reason = "ticket_trashed"
	ReasonTicketClosed            Reason = "ticket_closed"
	ReasonMergeSourceClosed       Reason = "merge_source_closed"
	ReasonStorageFailure          Reason = "storage_failure"
	ReasonAttachmentWriteFailure  Reason = "attachment_write_failure"
	ReasonInvalidPayload          Reason = "invalid_payload"
	ReasonCredentialsInvalid      Reason = "credentials_invalid"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Reason     Reason
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code string, reason Reason, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Reason: reason, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(reason Reason, message string, details map[string]any) error {
	return NewDomainError(CodeValidation, reason, message, http.StatusUnprocessableEntity, details)
}

func NewConflict(reason Reason, message string, details map[string]any) error {
	return NewDomainError(CodeConflict, reason, message, http.StatusConflict, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

// NewStorageError wraps a failed store call; the surrounding transaction has rolled back.
func NewStorageError(err error) error {
	return &DomainError{
		Code:       CodeStorage,
		Reason:     ReasonStorageFailure,
		Message:    "storage operation failed",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// NewAttachmentError reports a failed attachment write. Written files are already removed.
func NewAttachmentError(name string, err error) error {
	return &DomainError{
		Code:       CodeAttachment,
		Reason:     ReasonAttachmentWriteFailure,
		Message:    "attachment could not be stored",
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"name": name},
		Err:        err,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauth, "", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, "", message, http.StatusForbidden, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// IsReason reports whether err carries the given reason.
func IsReason(err error, reason Reason) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Reason == reason
}

// IsCode reports whether err is a DomainError of the given code.
func IsCode(err error, code string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}
