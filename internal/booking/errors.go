package booking

import (
	"errors"
	"fmt"
)

// Kind tells callers which policy applies to a failure.
type Kind int

const (
	KindUnexpectedTerminal Kind = iota
	KindRetryable
	KindExpectedTerminal
	KindTimedOut
)

func (k Kind) String() string {
	switch k {
	case KindRetryable:
		return "retryable"
	case KindExpectedTerminal:
		return "expected_terminal"
	case KindTimedOut:
		return "timed_out"
	default:
		return "unexpected_terminal"
	}
}

// Code identifies what went wrong.
type Code string

const (
	CodeSessionNotReady   Code = "session_not_ready"
	CodeActivityNotFound  Code = "activity_not_found"
	CodeAPI               Code = "api_error"
	CodeAutomationElement Code = "automation_element"
	CodeBusinessRule      Code = "business_rule"
	CodeTimedOut          Code = "timed_out"
	CodeInternal          Code = "internal"
)

var (
	ErrSessionNotReady   = &Error{Code: CodeSessionNotReady}
	ErrActivityNotFound  = &Error{Code: CodeActivityNotFound}
	ErrAPI               = &Error{Code: CodeAPI}
	ErrAutomationElement = &Error{Code: CodeAutomationElement}
	ErrBusinessRule      = &Error{Code: CodeBusinessRule}
	ErrTimedOut          = &Error{Code: CodeTimedOut}
)

type Error struct {
	Kind Kind
	Code Code
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code so the exported sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func E(kind Kind, code Code, op, msg string, err error) *Error {
	return &Error{Kind: kind, Code: code, Op: op, Msg: msg, Err: err}
}

func SessionNotReady(op string, err error) *Error {
	return E(KindUnexpectedTerminal, CodeSessionNotReady, op, "session storage never became ready", err)
}

func ActivityNotFound(op, activity, startTime string) *Error {
	return E(KindExpectedTerminal, CodeActivityNotFound, op,
		fmt.Sprintf("no matching activity found for %q at %q", activity, startTime), nil)
}

func APIError(kind Kind, op, msg string) *Error {
	return E(kind, CodeAPI, op, msg, nil)
}

func ElementError(op, locator string, err error) *Error {
	return E(KindUnexpectedTerminal, CodeAutomationElement, op, "element "+locator, err)
}

func BusinessRule(op, msg string) *Error {
	return E(KindExpectedTerminal, CodeBusinessRule, op, msg, nil)
}

func TimedOut(op, msg string) *Error {
	return E(KindTimedOut, CodeTimedOut, op, msg, nil)
}

// KindOf reports the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindUnexpectedTerminal
}

func CodeOf(err error) Code {
	var be *Error
	if errors.As(err, &be) {
		return be.Code
	}
	return CodeInternal
}
