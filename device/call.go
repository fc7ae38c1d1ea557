package device

import (
	"fmt"

	"github.com/camstream/onvif"
)

// Params is the call-specific part of a request
type Params struct {
	ProfileToken string
}

// Call is one protocol call against a session
type Call struct {
	Kind    onvif.CallKind
	Params  Params
	Session *Session
}

// Outcome is the single completion of a submitted Call. Err is set iff
// Success is false; Result is set iff Success is true.
type Outcome struct {
	Kind    onvif.CallKind
	Success bool
	Message string
	Err     error
	Result  onvif.Result
}

func succeeded(kind onvif.CallKind, result onvif.Result) Outcome {
	return Outcome{
		Kind:    kind,
		Success: true,
		Message: fmt.Sprintf("%s succeeded", kind),
		Result:  result,
	}
}

func failed(kind onvif.CallKind, err error) Outcome {
	return Outcome{
		Kind:    kind,
		Success: false,
		Message: fmt.Sprintf("%s failed: %v", kind, err),
		Err:     err,
	}
}

// Notification is what the caller hears about each outcome
type Notification struct {
	Kind    onvif.CallKind
	Success bool
	Summary string
	Err     error
	State   ConnectionState
}

// Observer receives notifications in the order the outcomes were delivered
type Observer func(Notification)
