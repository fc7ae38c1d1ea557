package onvif

import (
	"context"
	"net/url"
	"strings"

	"github.com/beevik/etree"
	"github.com/juju/errors"
)

const (
	actionGetProfiles  = "http://www.onvif.org/ver10/media/wsdl/GetProfiles"
	actionGetStreamUri = "http://www.onvif.org/ver10/media/wsdl/GetStreamUri"
)

// GetProfiles enumerates the media profiles in the order the camera reports them
func (c *Client) GetProfiles(ctx context.Context, req Request) (ProfileList, error) {
	body := etree.NewElement("trt:GetProfiles")

	resp, err := c.sendSOAPRequest(ctx, CallGetProfiles, resolveMediaURL(req),
		actionGetProfiles, req, body)
	if err != nil {
		return nil, err
	}

	r := resp.SelectElement("GetProfilesResponse")
	if r == nil {
		return nil, callError(CallGetProfiles, ErrMalformedResponse, errors.New("missing GetProfilesResponse"))
	}

	profiles := ProfileList{}
	for _, p := range r.SelectElements("Profiles") {
		profile := Profile{
			Token: p.SelectAttrValue("token", ""),
			Name:  childText(p, "Name"),
		}
		if profile.Token == "" {
			return nil, callError(CallGetProfiles, ErrDecodeFailure, errors.NotValidf("profile %q without token", profile.Name))
		}

		if vec := p.SelectElement("VideoEncoderConfiguration"); vec != nil {
			profile.Encoding = childText(vec, "Encoding")
			if res := vec.SelectElement("Resolution"); res != nil {
				if profile.Width, err = atoiOrZero(childText(res, "Width")); err != nil {
					return nil, callError(CallGetProfiles, ErrDecodeFailure, errors.Annotate(err, "resolution width"))
				}
				if profile.Height, err = atoiOrZero(childText(res, "Height")); err != nil {
					return nil, callError(CallGetProfiles, ErrDecodeFailure, errors.Annotate(err, "resolution height"))
				}
			}
			if rc := vec.SelectElement("RateControl"); rc != nil {
				if profile.Framerate, err = atoiOrZero(childText(rc, "FrameRateLimit")); err != nil {
					return nil, callError(CallGetProfiles, ErrDecodeFailure, errors.Annotate(err, "frame rate limit"))
				}
			}
		}

		profiles = append(profiles, profile)
	}

	return profiles, nil
}

// GetStreamURI retrieves the RTSP stream URI for the profile in req.ProfileToken
func (c *Client) GetStreamURI(ctx context.Context, req Request) (StreamURI, error) {
	if req.ProfileToken == "" {
		return "", callError(CallGetStreamURI, ErrDecodeFailure, errors.NotValidf("empty profile token"))
	}

	body := etree.NewElement("trt:GetStreamUri")
	setup := body.CreateElement("trt:StreamSetup")
	setup.CreateElement("tt:Stream").SetText("RTP-Unicast")
	setup.CreateElement("tt:Transport").CreateElement("tt:Protocol").SetText("RTSP")
	body.CreateElement("trt:ProfileToken").SetText(req.ProfileToken)

	resp, err := c.sendSOAPRequest(ctx, CallGetStreamURI, resolveMediaURL(req),
		actionGetStreamUri, req, body)
	if err != nil {
		return "", err
	}

	uri := ""
	if e := resp.FindElement("./GetStreamUriResponse/MediaUri/Uri"); e != nil {
		uri = strings.TrimSpace(e.Text())
	}
	if uri == "" {
		return "", callError(CallGetStreamURI, ErrMalformedResponse, errors.New("no stream URI found in response"))
	}

	parsed, err := url.Parse(uri)
	if err != nil {
		return "", callError(CallGetStreamURI, ErrDecodeFailure, errors.Annotatef(err, "stream URI %q", uri))
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", callError(CallGetStreamURI, ErrDecodeFailure, errors.NotValidf("stream URI %q", uri))
	}

	return StreamURI(uri), nil
}

// resolveMediaURL returns the media service URL for a request.
// Uses the XAddr discovered by GetServices if available, otherwise
// falls back to path replacement on the device service address.
func resolveMediaURL(req Request) string {
	if req.MediaURL != "" {
		return req.MediaURL
	}
	address := DeviceServiceURL(req.Address)
	mediaURL := strings.Replace(address, "/device_service", "/media_service", 1)
	if !strings.Contains(mediaURL, "media_service") {
		mediaURL = strings.TrimSuffix(address, "/") + "/onvif/media_service"
	}
	return mediaURL
}
