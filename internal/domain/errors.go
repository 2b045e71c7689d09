package domain

import (
	"errors"
	"fmt"
)

// ErrorKind groups errors by how callers should react to them.
type ErrorKind string

const (
	KindValidation ErrorKind = "VALIDATION"
	KindWindow     ErrorKind = "WINDOW"
	KindState      ErrorKind = "STATE"
	KindResource   ErrorKind = "RESOURCE"
	KindExternal   ErrorKind = "EXTERNAL"
	KindInternal   ErrorKind = "INTERNAL"
)

// Error is a structured core error. Two Errors compare equal under errors.Is
// when their codes match, so wrapped instances still match the sentinels
// below.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// WithMessage clones the error with a caller-supplied message, keeping kind
// and code so errors.Is still matches.
func (e *Error) WithMessage(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the ErrorKind from any error in the chain; unrecognized
// errors are INTERNAL.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

var (
	ErrInvalidExamType  = &Error{KindValidation, "INVALID_EXAM_TYPE", "exam type is not recognized"}
	ErrInvalidDate      = &Error{KindValidation, "INVALID_DATE", "date must be formatted YYYY-MM-DD"}
	ErrDurationTooLong  = &Error{KindValidation, "DURATION_TOO_LONG", "exam duration exceeds the allowed maximum"}
	ErrWeekdayViolation = &Error{KindValidation, "WEEKDAY_VIOLATION", "this exam type cannot be scheduled on a Sunday"}
	ErrExamDisabled     = &Error{KindValidation, "EXAM_DISABLED", "this exam type is currently disabled"}
	ErrCodeTooLong      = &Error{KindValidation, "CODE_TOO_LONG", "submitted code exceeds the maximum length"}

	ErrWindowUpcoming = &Error{KindWindow, "UPCOMING", "the exam window has not opened yet"}
	ErrWindowExpired  = &Error{KindWindow, "EXPIRED", "the exam window has already closed"}
	ErrWindowClosed   = &Error{KindWindow, "CLOSED", "the exam window closes before the scheduled time"}
	ErrWindowMissing  = &Error{KindWindow, "NO_CONFIG", "no window is configured for this exam type"}

	ErrAlreadyStarted     = &Error{KindState, "ALREADY_STARTED", "the exam has already been started"}
	ErrAlreadySubmitted   = &Error{KindState, "ALREADY_SUBMITTED", "the exam has already been submitted"}
	ErrNotStarted         = &Error{KindState, "NOT_STARTED", "the exam has not been started"}
	ErrRaceAlreadyStarted = &Error{KindState, "RACE_ALREADY_STARTED", "the exam was started by a concurrent request"}

	ErrNoEligibleStudents = &Error{KindResource, "NO_ELIGIBLE_STUDENTS", "no eligible students for this exam"}
	ErrPaperEmpty         = &Error{KindResource, "PAPER_EMPTY", "no questions could be sourced for this exam"}
	ErrPaperTimeout       = &Error{KindResource, "PAPER_TIMEOUT", "paper assembly timed out before any questions arrived"}
	ErrQuestionsMissing   = &Error{KindResource, "QUESTIONS_MISSING", "requested questions are missing from the pool"}
	ErrAttemptNotFound    = &Error{KindResource, "ATTEMPT_NOT_FOUND", "exam attempt not found"}

	ErrExecutionUnavailable = &Error{KindExternal, "EXECUTION_UNAVAILABLE", "the code execution service is unavailable"}
	ErrExecutionTimeout     = &Error{KindExternal, "EXECUTION_TIMEOUT", "code execution timed out"}

	ErrInternal = &Error{KindInternal, "INTERNAL", "internal invariant violation"}
)
