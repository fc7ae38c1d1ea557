package onvif

import (
	"bytes"
	"context"
	"crypto/sha1"
	"crypto/tls"
	"encoding/base64"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/elgs/gostrgen"
	"github.com/juju/errors"
)

const (
	nsSOAPEnvelope = "http://www.w3.org/2003/05/soap-envelope"
	nsWSSE         = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd"
	nsWSU          = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-utility-1.0.xsd"
	typeDigest     = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-username-token-profile-1.0#PasswordDigest"
	typeBase64     = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-soap-message-security-1.0#Base64Binary"
)

// generatePasswordDigest creates WS-Security password digest
func generatePasswordDigest(password string, now time.Time) (digest, nonce, created string, err error) {
	created = now.UTC().Format("2006-01-02T15:04:05.000Z")
	raw, err := gostrgen.RandGen(16, gostrgen.Lower|gostrgen.Upper|gostrgen.Digit, "", "")
	if err != nil {
		return "", "", "", errors.Annotate(err, "generating nonce")
	}

	h := sha1.New()
	h.Write([]byte(raw))
	h.Write([]byte(created))
	h.Write([]byte(password))

	return base64.StdEncoding.EncodeToString(h.Sum(nil)),
		base64.StdEncoding.EncodeToString([]byte(raw)),
		created, nil
}

// buildEnvelope wraps body in a SOAP 1.2 envelope with an optional UsernameToken header
func buildEnvelope(username, password string, body *etree.Element) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	env := doc.CreateElement("s:Envelope")
	env.CreateAttr("xmlns:s", nsSOAPEnvelope)
	env.CreateAttr("xmlns:tds", NamespaceDevice)
	env.CreateAttr("xmlns:trt", NamespaceMedia)
	env.CreateAttr("xmlns:tt", NamespaceSchema)

	header := env.CreateElement("s:Header")
	if username != "" {
		digest, nonce, created, err := generatePasswordDigest(password, time.Now())
		if err != nil {
			return nil, err
		}

		security := header.CreateElement("Security")
		security.CreateAttr("xmlns", nsWSSE)
		token := security.CreateElement("UsernameToken")
		token.CreateElement("Username").SetText(username)
		pass := token.CreateElement("Password")
		pass.CreateAttr("Type", typeDigest)
		pass.SetText(digest)
		n := token.CreateElement("Nonce")
		n.CreateAttr("EncodingType", typeBase64)
		n.SetText(nonce)
		c := token.CreateElement("Created")
		c.CreateAttr("xmlns", nsWSU)
		c.SetText(created)
	}

	env.CreateElement("s:Body").AddChild(body)

	return doc.WriteToBytes()
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}

	timeout := c.Timeout
	if timeout == 0 {
		timeout = DefaultCallTimeout
	}

	client := &http.Client{Timeout: timeout}
	if c.InsecureTLS {
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return client
}

// sendSOAPRequest posts body to endpoint and returns the SOAP Body element of
// the response. Every failure is a *CallError tagged with call.
func (c *Client) sendSOAPRequest(ctx context.Context, call CallKind, endpoint, action string, req Request, body *etree.Element) (*etree.Element, error) {
	payload, err := buildEnvelope(req.Username, req.Password, body)
	if err != nil {
		return nil, callError(call, ErrTransportFailure, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, callError(call, ErrTransportFailure, errors.Annotatef(err, "building request for %q", endpoint))
	}
	httpReq.Header.Set("Content-Type", `application/soap+xml; charset=utf-8; action="`+action+`"`)
	httpReq.Header.Set("SOAPAction", action)

	c.Logger.Debug().Str("call", call.String()).Str("endpoint", endpoint).Msg("sending SOAP request")

	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, callError(call, ErrTransportFailure, errors.Timeoutf("POST %s", endpoint))
		}
		return nil, callError(call, ErrTransportFailure, errors.Annotatef(err, "POST %s", endpoint))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, callError(call, ErrTransportFailure, errors.Annotate(err, "reading response"))
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, callError(call, ErrAuthenticationFailure, errors.Unauthorizedf("HTTP %d", resp.StatusCode))
	}

	// Some cameras return error codes with an empty body instead of a SOAP fault
	if resp.StatusCode >= 400 && len(bytes.TrimSpace(respBody)) == 0 {
		return nil, callError(call, ErrMalformedResponse, errors.Errorf("HTTP %d with empty response", resp.StatusCode))
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(respBody); err != nil {
		if resp.StatusCode >= 400 {
			return nil, callError(call, ErrMalformedResponse, errors.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
		}
		return nil, callError(call, ErrDecodeFailure, errors.Annotate(err, "parsing response XML"))
	}

	if fault := doc.FindElement("//Fault"); fault != nil {
		return nil, faultError(call, fault)
	}

	if resp.StatusCode >= 400 {
		return nil, callError(call, ErrMalformedResponse, errors.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
	}

	envBody := doc.FindElement("./Envelope/Body")
	if envBody == nil {
		return nil, callError(call, ErrMalformedResponse, errors.New("response has no SOAP body"))
	}

	return envBody, nil
}

// faultError maps a SOAP fault onto a call error. Authorization faults are
// authentication failures, anything else is an unexpected response.
func faultError(call CallKind, fault *etree.Element) error {
	var codes []string
	for _, v := range fault.FindElements(".//Value") {
		codes = append(codes, strings.TrimSpace(v.Text()))
	}
	if fc := fault.FindElement(".//faultcode"); fc != nil {
		codes = append(codes, strings.TrimSpace(fc.Text()))
	}

	reason := "SOAP fault in response"
	if text := fault.FindElement(".//Reason/Text"); text != nil && strings.TrimSpace(text.Text()) != "" {
		reason = "SOAP fault: " + strings.TrimSpace(text.Text())
	} else if fs := fault.FindElement(".//faultstring"); fs != nil && strings.TrimSpace(fs.Text()) != "" {
		reason = "SOAP fault: " + strings.TrimSpace(fs.Text())
	}

	for _, code := range codes {
		if strings.Contains(code, "NotAuthorized") ||
			strings.Contains(code, "FailedAuthentication") ||
			strings.Contains(code, "InvalidSecurity") {
			return callError(call, ErrAuthenticationFailure, errors.Unauthorizedf("%s", reason))
		}
	}

	return callError(call, ErrMalformedResponse, errors.New(reason))
}

// childText returns the trimmed text of the first child named tag, with any prefix
func childText(e *etree.Element, tag string) string {
	if c := e.SelectElement(tag); c != nil {
		return strings.TrimSpace(c.Text())
	}
	return ""
}

// getFirstAddress extracts the first address if multiple are provided
func getFirstAddress(address string) string {
	addresses := strings.Fields(address)
	if len(addresses) > 0 {
		return addresses[0]
	}
	return address
}
