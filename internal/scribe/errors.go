package scribe

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorCodeAcquisition ErrorCode = "ACQUISITION"
	ErrorCodeCapability  ErrorCode = "CAPABILITY"
	ErrorCodeInsertion   ErrorCode = "INSERTION"
	ErrorCodeSpawn       ErrorCode = "SPAWN"
	ErrorCodeConfig      ErrorCode = "CONFIG"
)

// Error is the typed failure returned by the typing engine.
type Error struct {
	Code ErrorCode
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewAcquisitionError(msg string, err error) error {
	return &Error{Code: ErrorCodeAcquisition, Msg: msg, Err: err}
}

func NewCapabilityError(msg string) error {
	return &Error{Code: ErrorCodeCapability, Msg: msg}
}

func NewInsertionError(msg string, err error) error {
	return &Error{Code: ErrorCodeInsertion, Msg: msg, Err: err}
}

func NewSpawnError(msg string, err error) error {
	return &Error{Code: ErrorCodeSpawn, Msg: msg, Err: err}
}

func NewConfigError(msg string) error {
	return &Error{Code: ErrorCodeConfig, Msg: msg}
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	if err == nil {
		return "", false
	}
	var se *Error
	if !errors.As(err, &se) {
		return "", false
	}
	return se.Code, true
}

func IsAcquisitionError(err error) bool { return hasCode(err, ErrorCodeAcquisition) }
func IsCapabilityError(err error) bool  { return hasCode(err, ErrorCodeCapability) }
func IsInsertionError(err error) bool   { return hasCode(err, ErrorCodeInsertion) }
func IsSpawnError(err error) bool       { return hasCode(err, ErrorCodeSpawn) }
func IsConfigError(err error) bool      { return hasCode(err, ErrorCodeConfig) }

func hasCode(err error, code ErrorCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}
