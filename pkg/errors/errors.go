package errors

import (
	stdErrors "errors"
	"strings"
)

// Error carries a Code through an error chain. A nil *Error reads as an
// internal error with no message.
type Error struct {
	code   Code
	msg    string
	detail any
	err    error
}

func New(code Code, message string) *Error {
	return &Error{code: code, msg: message}
}

// Wrap attaches code and message to err. A nil err behaves like New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, msg: message, err: err}
}

func (e *Error) Code() Code {
	if e != nil {
		return e.code
	}
	return CodeInternal
}

// Message is the text without the code prefix or cause.
func (e *Error) Message() string {
	if e != nil {
		return e.msg
	}
	return ""
}

func (e *Error) Details() any {
	if e != nil {
		return e.detail
	}
	return nil
}

// WithDetails sets details on e and returns it.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.detail = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(string(e.code))
	b.WriteString(": ")
	b.WriteString(e.msg)
	if e.err != nil {
		b.WriteString(": ")
		b.WriteString(e.err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	if e != nil {
		return e.err
	}
	return nil
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code Code) bool {
	return As(err).codeIs(code)
}

func (e *Error) codeIs(code Code) bool {
	return e != nil && e.code == code
}
