// Package errors carries a Code alongside Go errors so transport layers can
// map failures to status codes without string matching.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Error is a coded error. Message is internal context; what clients see is
// decided by the code's Metadata.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap attaches code and message to err. A nil err behaves like New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails sets client-visible details; they are dropped for codes whose
// metadata does not allow them.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := string(e.code) + ": " + e.message
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var coded *Error
	if err != nil && stderrors.As(err, &coded) {
		return coded
	}
	return nil
}

func HasCode(err error, code Code) bool {
	coded := As(err)
	return coded != nil && coded.code == code
}

// Retryable reports whether the failure may succeed on a later attempt.
// Uncoded errors count as retryable.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if coded := As(err); coded != nil {
		return MetadataFor(coded.code).Retryable
	}
	return true
}
