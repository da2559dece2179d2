// Package faults defines the unified publish-error taxonomy.
//
// Adapters classify raw transport/platform failures into one of these codes
// at the boundary; the scheduler and metrics only ever see classified codes.
package faults

import (
	"errors"
	"fmt"
)

// Code identifies a classified publish failure.
type Code string

const (
	AuthFailed       Code = "AUTH_FAILED"
	RateLimit        Code = "RATE_LIMIT"
	InvalidPayload   Code = "INVALID_PAYLOAD"
	Timeout          Code = "TIMEOUT"
	CaptchaRequired  Code = "CAPTCHA_REQUIRED"
	ContentViolation Code = "CONTENT_VIOLATION"
	RequestFailed    Code = "REQUEST_FAILED"
	InvalidConfig    Code = "INVALID_CONFIG"
)

// Fault is a classified publish error.
type Fault struct {
	Code    Code
	Message string
	wrapped error
}

func (f *Fault) Error() string {
	if f.Message == "" {
		return string(f.Code)
	}
	return string(f.Code) + ": " + f.Message
}

func (f *Fault) Unwrap() error { return f.wrapped }

// New builds a classified error.
func New(code Code, msg string) *Fault {
	return &Fault{Code: code, Message: msg}
}

// Newf builds a classified error with a formatted message.
func Newf(code Code, format string, args ...any) *Fault {
	return &Fault{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error. A nil err yields nil.
func Wrap(code Code, msg string, err error) error {
	if err == nil {
		return nil
	}
	if msg == "" {
		msg = err.Error()
	}
	return &Fault{Code: code, Message: msg, wrapped: err}
}

// CodeOf extracts the classification from err.
// Unclassified errors report RequestFailed.
func CodeOf(err error) Code {
	var f *Fault
	if errors.As(err, &f) {
		return f.Code
	}
	return RequestFailed
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var f *Fault
	return errors.As(err, &f) && f.Code == code
}
