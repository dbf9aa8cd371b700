package library

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers that only care about the broad outcome.
type Kind string

// Error kinds.
const (
	KindNotFound         Kind = "NOT_FOUND"
	KindConflict         Kind = "CONFLICT"
	KindStoreUnavailable Kind = "STORE_UNAVAILABLE"
	KindValidation       Kind = "VALIDATION_FAILED"
)

// Reasons refine a Kind.
const (
	ReasonBook            = "BOOK"
	ReasonMember          = "MEMBER"
	ReasonOpenTransaction = "OPEN_TRANSACTION"
	ReasonAlreadyIssued   = "ALREADY_ISSUED"
	ReasonLimitExceeded   = "LIMIT_EXCEEDED"
	ReasonEmailTaken      = "EMAIL_TAKEN"
)

// Error is a typed failure returned by the ledger and the catalog.
type Error struct {
	Kind    Kind
	Reason  string
	Message string
	Details any
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.cause }

// Is matches another *Error with the same Kind. When the target names a
// Reason, the Reason must match too.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	if e.Kind != t.Kind {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

// WithCause returns a copy of e wrapping err.
func (e *Error) WithCause(err error) *Error {
	return &Error{Kind: e.Kind, Reason: e.Reason, Message: e.Message, Details: e.Details, cause: err}
}

// WithDetails returns a copy of e carrying details.
func (e *Error) WithDetails(details any) *Error {
	return &Error{Kind: e.Kind, Reason: e.Reason, Message: e.Message, Details: details, cause: e.cause}
}

// Sentinel errors for use with errors.Is.
var (
	ErrNotFound         = &Error{Kind: KindNotFound, Message: "not found"}
	ErrConflict         = &Error{Kind: KindConflict, Message: "conflict"}
	ErrStoreUnavailable = &Error{Kind: KindStoreUnavailable, Message: "store unavailable"}
	ErrValidation       = &Error{Kind: KindValidation, Message: "validation failed"}

	ErrBookNotFound            = &Error{Kind: KindNotFound, Reason: ReasonBook, Message: "book not found"}
	ErrMemberNotFound          = &Error{Kind: KindNotFound, Reason: ReasonMember, Message: "member not found"}
	ErrOpenTransactionNotFound = &Error{Kind: KindNotFound, Reason: ReasonOpenTransaction, Message: "open transaction not found"}

	ErrAlreadyIssued = &Error{Kind: KindConflict, Reason: ReasonAlreadyIssued, Message: "book is already issued"}
	ErrLimitExceeded = &Error{Kind: KindConflict, Reason: ReasonLimitExceeded, Message: "member has reached the loan limit"}
	ErrEmailTaken    = &Error{Kind: KindConflict, Reason: ReasonEmailTaken, Message: "email already registered"}
)

// ErrRecordNotFound is returned by gateway lookups when no row matches.
var ErrRecordNotFound = errors.New("record not found")

// Validation builds a validation error with per-field messages.
func Validation(msg string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: msg, Details: fields}
}

// StoreUnavailable wraps an infrastructure failure.
func StoreUnavailable(err error) *Error {
	return ErrStoreUnavailable.WithCause(err)
}

// storeErr passes domain errors through and classifies everything else as a
// store failure.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return err
	}
	return StoreUnavailable(err)
}

// FieldErrors extracts the per-field messages from a validation error.
func FieldErrors(err error) map[string]string {
	var domainErr *Error
	if !errors.As(err, &domainErr) || domainErr.Kind != KindValidation {
		return nil
	}
	fields, _ := domainErr.Details.(map[string]string)
	return fields
}
