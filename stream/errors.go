package stream

import (
	"fmt"

	"github.com/juju/errors"
)

const (
	ErrPlaybackError               = errors.ConstError("playback error")
	ErrCaptureError                = errors.ConstError("capture error")
	ErrPictureInPictureUnsupported = errors.ConstError("picture-in-picture not supported")
	ErrAlreadyActive               = errors.ConstError("playback already active")

	// ErrCaptureInProgress is wrapped in a capture error when a capture is
	// requested while another one is still running
	ErrCaptureInProgress = errors.ConstError("capture already in progress")
	// ErrNoFrame is returned by a FrameSource before the first frame is decoded
	ErrNoFrame = errors.ConstError("no frame rendered yet")
	ErrClosed  = errors.ConstError("stream controller closed")
)

// Error is a failed controller operation. Kind is one of the Err* kinds
// above and matches with errors.Is.
type Error struct {
	Kind errors.ConstError
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	kind, ok := target.(errors.ConstError)
	return ok && kind == e.Kind
}

func opError(kind errors.ConstError, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of a controller error
func KindOf(err error) (errors.ConstError, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
