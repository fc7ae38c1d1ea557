package onvif

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/rs/zerolog"
)

// NewClient creates a new ONVIF client with the default call timeout
func NewClient() *Client {
	return NewClientWithTimeout(DefaultCallTimeout)
}

// NewClientWithTimeout creates a new ONVIF client with custom timeout
func NewClientWithTimeout(timeout time.Duration) *Client {
	return &Client{
		Timeout: timeout,
		Logger:  zerolog.Nop(),
	}
}

// Do executes the call named by req.Kind and returns its decoded result
func (c *Client) Do(ctx context.Context, req Request) (Result, error) {
	var (
		result Result
		err    error
	)

	switch req.Kind {
	case CallGetServices:
		var services ServiceList
		services, err = c.GetServices(ctx, req)
		result = services
	case CallGetDeviceInformation:
		var info *DeviceInformation
		info, err = c.GetDeviceInformation(ctx, req)
		result = info
	case CallGetProfiles:
		var profiles ProfileList
		profiles, err = c.GetProfiles(ctx, req)
		result = profiles
	case CallGetStreamURI:
		var uri StreamURI
		uri, err = c.GetStreamURI(ctx, req)
		result = uri
	default:
		return nil, errors.NotSupportedf("call %s", req.Kind)
	}

	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeviceServiceURL turns an address typed by a user (IP, host:port or full
// URL) into the device service endpoint
func DeviceServiceURL(address string) string {
	address = getFirstAddress(strings.TrimSpace(address))
	if !strings.Contains(address, "://") {
		return "http://" + address + "/onvif/device_service"
	}

	u, err := url.Parse(address)
	if err != nil {
		return address
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/onvif/device_service"
	}
	return u.String()
}

// Summary returns the device information formatted for display
func (info *DeviceInformation) Summary() string {
	s := "Device information:\n"
	s += fmt.Sprintf("  Manufacturer: %s\n", info.Manufacturer)
	s += fmt.Sprintf("  Model: %s\n", info.Model)
	s += fmt.Sprintf("  Firmware: %s\n", info.FirmwareVersion)
	s += fmt.Sprintf("  Serial: %s\n", info.SerialNumber)
	return s
}

// GetDisplayName returns the best available name for the camera
func (camera *Camera) GetDisplayName() string {
	// Priority: Discovery Name > Hardware > Address
	if camera.Name != "" {
		return camera.Name
	}

	if camera.Model != "" {
		return camera.Model
	}

	return getFirstAddress(camera.Address)
}

// IsMainStream checks if a profile is likely the main stream
func IsMainStream(p Profile) bool {
	return p.Width >= 1280 ||
		strings.Contains(strings.ToLower(p.Name), "main") ||
		strings.Contains(strings.ToLower(p.Name), "stream1")
}

// IsSubStream checks if a profile is likely the sub stream
func IsSubStream(p Profile) bool {
	return strings.Contains(strings.ToLower(p.Name), "sub") ||
		strings.Contains(strings.ToLower(p.Name), "stream2") ||
		(p.Width > 0 && p.Width < 1280)
}
