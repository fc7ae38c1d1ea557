package onvif

import (
	"context"
	"strconv"

	"github.com/beevik/etree"
	"github.com/juju/errors"
)

const (
	actionGetServices          = "http://www.onvif.org/ver10/device/wsdl/GetServices"
	actionGetDeviceInformation = "http://www.onvif.org/ver10/device/wsdl/GetDeviceInformation"
)

// GetServices lists the services the device exposes and their addresses
func (c *Client) GetServices(ctx context.Context, req Request) (ServiceList, error) {
	body := etree.NewElement("tds:GetServices")
	body.CreateElement("tds:IncludeCapability").SetText("false")

	resp, err := c.sendSOAPRequest(ctx, CallGetServices, DeviceServiceURL(req.Address),
		actionGetServices, req, body)
	if err != nil {
		return nil, err
	}

	r := resp.SelectElement("GetServicesResponse")
	if r == nil {
		return nil, callError(CallGetServices, ErrMalformedResponse, errors.New("missing GetServicesResponse"))
	}

	var services ServiceList
	for _, s := range r.SelectElements("Service") {
		service := Service{
			Namespace: childText(s, "Namespace"),
			XAddr:     childText(s, "XAddr"),
		}

		if v := s.SelectElement("Version"); v != nil {
			major, err := atoiOrZero(childText(v, "Major"))
			if err != nil {
				return nil, callError(CallGetServices, ErrDecodeFailure, errors.Annotate(err, "service major version"))
			}
			minor, err := atoiOrZero(childText(v, "Minor"))
			if err != nil {
				return nil, callError(CallGetServices, ErrDecodeFailure, errors.Annotate(err, "service minor version"))
			}
			service.Major, service.Minor = major, minor
		}

		if service.Namespace == "" || service.XAddr == "" {
			return nil, callError(CallGetServices, ErrDecodeFailure, errors.NotValidf("service entry without namespace or address"))
		}
		services = append(services, service)
	}

	if len(services) == 0 {
		return nil, callError(CallGetServices, ErrMalformedResponse, errors.New("device reported no services"))
	}

	return services, nil
}

// GetDeviceInformation fetches manufacturer, model, firmware and serial number
func (c *Client) GetDeviceInformation(ctx context.Context, req Request) (*DeviceInformation, error) {
	body := etree.NewElement("tds:GetDeviceInformation")

	resp, err := c.sendSOAPRequest(ctx, CallGetDeviceInformation, DeviceServiceURL(req.Address),
		actionGetDeviceInformation, req, body)
	if err != nil {
		return nil, err
	}

	r := resp.SelectElement("GetDeviceInformationResponse")
	if r == nil {
		return nil, callError(CallGetDeviceInformation, ErrMalformedResponse, errors.New("missing GetDeviceInformationResponse"))
	}

	return &DeviceInformation{
		Manufacturer:    childText(r, "Manufacturer"),
		Model:           childText(r, "Model"),
		FirmwareVersion: childText(r, "FirmwareVersion"),
		SerialNumber:    childText(r, "SerialNumber"),
		HardwareId:      childText(r, "HardwareId"),
	}, nil
}

func atoiOrZero(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
