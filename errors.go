package onvif

import (
	"fmt"

	"github.com/juju/errors"
)

// Failure kinds reported for a device-protocol call
const (
	ErrTransportFailure      = errors.ConstError("transport failure")
	ErrAuthenticationFailure = errors.ConstError("authentication failure")
	ErrMalformedResponse     = errors.ConstError("malformed response")
	ErrDecodeFailure         = errors.ConstError("decode failure")
)

// CallError is the typed error of a failed call. It matches its Kind with
// errors.Is.
type CallError struct {
	Kind errors.ConstError
	Call CallKind
	Err  error
}

func (e *CallError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Call, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Call, e.Kind, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

func (e *CallError) Is(target error) bool {
	kind, ok := target.(errors.ConstError)
	return ok && kind == e.Kind
}

func callError(call CallKind, kind errors.ConstError, err error) *CallError {
	return &CallError{Kind: kind, Call: call, Err: err}
}

// KindOf returns the failure kind carried by err, if any
func KindOf(err error) (errors.ConstError, bool) {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}
