// Package device drives an ONVIF camera from credentials to a playable stream
// URI: a Session holds the connection state, the Dispatcher runs one protocol
// call at a time and the Orchestrator sequences the calls.
package device

import (
	"fmt"
	"sync/atomic"

	"github.com/camstream/onvif"
)

// ConnectionState is how far the discovery sequence got for a session
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	ServicesRetrieved
	InformationRetrieved
	ProfilesRetrieved
	StreamReady
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case ServicesRetrieved:
		return "ServicesRetrieved"
	case InformationRetrieved:
		return "InformationRetrieved"
	case ProfilesRetrieved:
		return "ProfilesRetrieved"
	case StreamReady:
		return "StreamReady"
	}
	return fmt.Sprintf("ConnectionState(%d)", int(s))
}

// Session is one camera addressed with one set of credentials. Only the
// Orchestrator mutates it; everything exported is a read.
type Session struct {
	address  string
	username string
	password string

	state     ConnectionState
	services  onvif.ServiceList
	info      *onvif.DeviceInformation
	profiles  onvif.ProfileList
	streamURI string

	started bool
	halted  bool

	// set while a call is outstanding
	inflight atomic.Bool
}

// NewSession creates a disconnected session. It never fails; bad addresses or
// credentials surface as call failures.
func NewSession(address, username, password string) *Session {
	return &Session{
		address:  address,
		username: username,
		password: password,
		state:    Disconnected,
	}
}

func (s *Session) State() ConnectionState { return s.state }

// IsStreamReady reports whether the sequence completed and a URI is available
func (s *Session) IsStreamReady() bool {
	return s.state == StreamReady && s.streamURI != ""
}

func (s *Session) Address() string  { return s.address }
func (s *Session) Username() string { return s.username }

// StreamURI returns the resolved stream URI, if any
func (s *Session) StreamURI() (string, bool) {
	return s.streamURI, s.streamURI != ""
}

// Profiles returns a copy of the discovered media profiles in server order
func (s *Session) Profiles() onvif.ProfileList {
	if s.profiles == nil {
		return nil
	}
	return append(onvif.ProfileList(nil), s.profiles...)
}

// Services returns a copy of the services reported by the device
func (s *Session) Services() onvif.ServiceList {
	if s.services == nil {
		return nil
	}
	return append(onvif.ServiceList(nil), s.services...)
}

// DeviceInformation returns the device information, nil before it was retrieved
func (s *Session) DeviceInformation() *onvif.DeviceInformation {
	if s.info == nil {
		return nil
	}
	info := *s.info
	return &info
}

// Halted reports whether the discovery sequence stopped on a failure
func (s *Session) Halted() bool { return s.halted }

// advance moves the session exactly one step forward
func (s *Session) advance(to ConnectionState) {
	if to != s.state+1 {
		panic(fmt.Sprintf("device: invalid transition %s -> %s", s.state, to))
	}
	s.state = to
}

func (s *Session) request(kind onvif.CallKind) onvif.Request {
	return onvif.Request{
		Kind:     kind,
		Address:  s.address,
		Username: s.username,
		Password: s.password,
		MediaURL: s.services.XAddr(onvif.NamespaceMedia),
	}
}
