package workflow

import (
	"errors"
	"fmt"

	"callpanel/internal/record"
)

// Kind classifies an error for callers deciding how to react.
type Kind string

const (
	KindNotFound   Kind = "not_found"
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindForbidden  Kind = "forbidden"
	KindInternal   Kind = "internal"
)

// Error codes. Each belongs to exactly one Kind.
const (
	CodeNotFound               = "not_found"
	CodeBadFilterN             = "bad_filter_n"
	CodeBadNextDue             = "bad_next_due"
	CodeReasonRequired         = "reason_required"
	CodeAgentRequired          = "agent_required"
	CodeActorRequired          = "actor_required"
	CodeLocked                 = "locked"
	CodeAlreadyInFilter        = "already_in_filter"
	CodeCannotStartFromStatus  = "cannot_start_from_status"
	CodeSequenceBlocked        = "sequence_blocked"
	CodeNotInThatFilter        = "not_in_that_filter"
	CodeNoLock                 = "no_lock"
	CodeCannotCancelFromStatus = "cannot_cancel_from_status"
	CodeNotLockOwner           = "not_lock_owner"
	CodeInternal               = "internal"
)

// Error is returned by every Engine operation. Conflict and validation
// errors carry the record's current state so the operator can see why.
type Error struct {
	Kind     Kind
	Code     string
	Message  string
	RecordID int64
	Status   record.Status
	Filters  *[record.FilterCount]record.FilterStatus
	Holder   *record.Lease
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Kind == KindInternal {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorKind implements the classifier interface used by transport layers.
func (e *Error) ErrorKind() string { return string(e.Kind) }

// KindOf returns the Kind of err. Errors not produced by the engine are internal.
func KindOf(err error) Kind {
	var wfErr *Error
	if errors.As(err, &wfErr) {
		return wfErr.Kind
	}
	return KindInternal
}

// CodeOf returns the code of err, or CodeInternal.
func CodeOf(err error) string {
	var wfErr *Error
	if errors.As(err, &wfErr) {
		return wfErr.Code
	}
	return CodeInternal
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func notFound(id int64) *Error {
	return &Error{Kind: KindNotFound, Code: CodeNotFound, Message: fmt.Sprintf("record %d not found", id), RecordID: id}
}

func validation(code, message string) *Error {
	return newError(KindValidation, code, message)
}

// conflict builds a Conflict error carrying the record's state.
func conflict(code, message string, rec *record.Record, filters record.Filters) *Error {
	statuses := filters.Statuses()
	return &Error{
		Kind:     KindConflict,
		Code:     code,
		Message:  message,
		RecordID: rec.ID,
		Status:   rec.Status,
		Filters:  &statuses,
	}
}

func internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: "internal error", Err: err}
}

// asEngineError passes engine errors through and wraps everything else as internal.
func asEngineError(err error) *Error {
	if err == nil {
		return nil
	}
	var wfErr *Error
	if errors.As(err, &wfErr) {
		return wfErr
	}
	return internal(err)
}
