// Package onvif provides the ONVIF device-protocol calls needed to go from
// credentials to a playable stream URI, plus WS-Discovery of cameras on the LAN.
package onvif

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// CallKind identifies one of the device-protocol calls issued against a camera
type CallKind int

const (
	CallGetServices CallKind = iota
	CallGetDeviceInformation
	CallGetProfiles
	CallGetStreamURI
)

func (k CallKind) String() string {
	switch k {
	case CallGetServices:
		return "GetServices"
	case CallGetDeviceInformation:
		return "GetDeviceInformation"
	case CallGetProfiles:
		return "GetProfiles"
	case CallGetStreamURI:
		return "GetStreamURI"
	}
	return fmt.Sprintf("CallKind(%d)", int(k))
}

// Request carries everything the transport needs for one call
type Request struct {
	Kind     CallKind
	Address  string // IP, host:port or full device service URL
	Username string
	Password string

	// MediaURL is the media service XAddr from GetServices; when empty it is
	// derived from the device service address.
	MediaURL string

	// ProfileToken selects the profile for GetStreamURI
	ProfileToken string
}

// Result is the decoded payload of a successful call. The concrete type
// identifies the call it came from.
type Result interface {
	CallKind() CallKind
}

// Service represents one entry of a GetServices response
type Service struct {
	Namespace string
	XAddr     string
	Major     int
	Minor     int
}

// ServiceList is the result of GetServices
type ServiceList []Service

func (ServiceList) CallKind() CallKind { return CallGetServices }

// XAddr returns the service address registered for namespace, or "" if absent
func (l ServiceList) XAddr(namespace string) string {
	for _, s := range l {
		if s.Namespace == namespace {
			return s.XAddr
		}
	}
	return ""
}

// DeviceInformation is the result of GetDeviceInformation
type DeviceInformation struct {
	Manufacturer    string
	Model           string
	FirmwareVersion string
	SerialNumber    string
	HardwareId      string
}

func (*DeviceInformation) CallKind() CallKind { return CallGetDeviceInformation }

// Profile represents a media profile. The token is unique on the device and
// doubles as the profile identifier.
type Profile struct {
	Token     string
	Name      string
	Encoding  string
	Width     int
	Height    int
	Framerate int
}

// ID returns the device-unique identifier of the profile
func (p Profile) ID() string { return p.Token }

// Resolution formats the encoder resolution as WIDTHxHEIGHT
func (p Profile) Resolution() string {
	return fmt.Sprintf("%dx%d", p.Width, p.Height)
}

// ProfileList is the result of GetProfiles, in the order the camera returned it
type ProfileList []Profile

func (ProfileList) CallKind() CallKind { return CallGetProfiles }

// StreamURI is the result of GetStreamURI
type StreamURI string

func (StreamURI) CallKind() CallKind { return CallGetStreamURI }

// Camera represents a device found by WS-Discovery
type Camera struct {
	Name     string
	Address  string
	Types    []string
	Model    string
	Location string
}

// Client executes device-protocol calls. Credentials travel with each Request
// so one Client can serve any session.
type Client struct {
	Timeout     time.Duration
	InsecureTLS bool // Skip TLS certificate verification

	// HTTPClient overrides the client built from Timeout and InsecureTLS
	HTTPClient *http.Client

	Logger zerolog.Logger
}

// DiscoveryOptions provides options for camera discovery
type DiscoveryOptions struct {
	Timeout       time.Duration
	MulticastAddr string
	Interface     string // network interface for the probe, default route when empty
	TTL           int
}

// Service namespaces
const (
	NamespaceDevice = "http://www.onvif.org/ver10/device/wsdl"
	NamespaceMedia  = "http://www.onvif.org/ver10/media/wsdl"
	NamespaceSchema = "http://www.onvif.org/ver10/schema"
)

// Default configuration
const (
	DefaultMulticastAddr = "239.255.255.250:3702"
	DefaultTimeout       = 5 * time.Second
	DefaultCallTimeout   = 10 * time.Second
	DefaultMulticastTTL  = 2
)
