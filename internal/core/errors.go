package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies triage errors
type ErrorKind string

const (
	KindTransientFetch ErrorKind = "TRANSIENT_FETCH"
	KindNotFound       ErrorKind = "NOT_FOUND"
	KindPersistence    ErrorKind = "PERSISTENCE"
	KindConfig         ErrorKind = "CONFIG"
)

// ErrMessageNotFound is wrapped by mail sources when a message no longer exists
var ErrMessageNotFound = errors.New("message not found")

// Error is the error type returned by the triage service
type Error struct {
	Kind ErrorKind
	Op   string
	ID   string
	Err  error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.ID != "" {
		msg += fmt.Sprintf(" [%s]", e.ID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new triage error
func NewError(kind ErrorKind, op, id string, err error) *Error {
	return &Error{Kind: kind, Op: op, ID: id, Err: err}
}

// KindOf returns the kind of a triage error, or "" for other errors
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is a triage error of the given kind
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// classifyFetchError maps a mail source error onto the fetch error kinds
func classifyFetchError(op, id string, err error) *Error {
	if errors.Is(err, ErrMessageNotFound) || IsKind(err, KindNotFound) {
		return NewError(KindNotFound, op, id, err)
	}
	return NewError(KindTransientFetch, op, id, err)
}
