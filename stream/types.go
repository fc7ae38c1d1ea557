// Package stream controls playback of a resolved camera stream: play and stop,
// frame capture and picture-in-picture.
package stream

import (
	"image"
)

// State is the playback state of a Controller
type State int

const (
	StateIdle State = iota
	StateLoading
	StatePlaying
	StateStopped
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateLoading:
		return "Loading"
	case StatePlaying:
		return "Playing"
	case StateStopped:
		return "Stopped"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Visibility is how the stream is presented, independent of playback
type Visibility int

const (
	VisibilityNormal Visibility = iota
	VisibilityPictureInPicture
)

func (v Visibility) String() string {
	if v == VisibilityPictureInPicture {
		return "PictureInPicture"
	}
	return "Normal"
}

// Status is a point-in-time view of a Controller
type Status struct {
	State          State
	URI            string
	Visibility     Visibility
	Capturing      bool
	CaptureEnabled bool
}

// Listener receives the signals of one playback. A player emits at most one
// of OnLoadComplete and OnPlaybackError per Play, except that a playback
// error may follow a load complete.
type Listener interface {
	OnLoadComplete()
	OnPlaybackError(err error)
}

// Player renders a stream URI
type Player interface {
	Play(uri string, l Listener) error
	Stop() error
}

// FrameSource gives access to the frame currently rendered
type FrameSource interface {
	Snapshot() (image.Image, error)
}

// Storage persists captured images and returns where they were written
type Storage interface {
	Save(name string, data []byte) (string, error)
}

// PictureInPictureHost switches the presentation surface in and out of
// picture-in-picture mode
type PictureInPictureHost interface {
	Supported() bool
	Enter() error
	Exit() error
}
