package onvif

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const probeMatchesResponse = `<?xml version="1.0" encoding="UTF-8"?>
<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://www.w3.org/2003/05/soap-envelope" xmlns:wsa="http://schemas.xmlsoap.org/ws/2004/08/addressing" xmlns:d="http://schemas.xmlsoap.org/ws/2005/04/discovery" xmlns:dn="http://www.onvif.org/ver10/network/wsdl">
  <SOAP-ENV:Header>
    <wsa:MessageID>uuid:reply-1</wsa:MessageID>
    <wsa:RelatesTo>uuid:probe-1</wsa:RelatesTo>
  </SOAP-ENV:Header>
  <SOAP-ENV:Body>
    <d:ProbeMatches>
      <d:ProbeMatch>
        <wsa:EndpointReference><wsa:Address>urn:uuid:cam-1</wsa:Address></wsa:EndpointReference>
        <d:Types>dn:NetworkVideoTransmitter tds:Device</d:Types>
        <d:Scopes>onvif://www.onvif.org/name/Front_Door onvif://www.onvif.org/location/Porch onvif://www.onvif.org/hardware/IPC_100</d:Scopes>
        <d:XAddrs>http://10.0.0.5/onvif/device_service http://[fe80::1]/onvif/device_service</d:XAddrs>
        <d:MetadataVersion>1</d:MetadataVersion>
      </d:ProbeMatch>
      <d:ProbeMatch>
        <d:Types>dn:NetworkVideoTransmitter</d:Types>
        <d:XAddrs></d:XAddrs>
      </d:ProbeMatch>
    </d:ProbeMatches>
  </SOAP-ENV:Body>
</SOAP-ENV:Envelope>`

func TestParseProbeMatches(t *testing.T) {
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(probeMatchesResponse))
	env := doc.SelectElement("Envelope")
	require.NotNil(t, env)
	assert.Equal(t, "uuid:probe-1", childText(env.SelectElement("Header"), "RelatesTo"))

	cameras := parseProbeMatches(env)
	require.Len(t, cameras, 1)

	camera := cameras[0]
	assert.Equal(t, "Front Door", camera.Name)
	assert.Equal(t, "Porch", camera.Location)
	assert.Equal(t, "IPC 100", camera.Model)
	assert.Equal(t, []string{"Network Video Transmitter", "Device"}, camera.Types)
	assert.Equal(t, "Front Door", camera.GetDisplayName())
	assert.Equal(t, "http://10.0.0.5/onvif/device_service", DeviceServiceURL(camera.Address))
}

func TestDeduplicateCameras(t *testing.T) {
	cameras := deduplicateCameras([]Camera{
		{Name: "b", Address: "http://10.0.0.6/onvif/device_service"},
		{Name: "a", Address: "http://10.0.0.5/onvif/device_service"},
		{Name: "a-again", Address: "http://10.0.0.5/onvif/device_service http://[fe80::1]/onvif/device_service"},
	})

	require.Len(t, cameras, 2)
	assert.Equal(t, "a", cameras[0].Name)
	assert.Equal(t, "b", cameras[1].Name)
}

func TestNewProbeUsesFreshMessageID(t *testing.T) {
	first, firstID, err := newProbe()
	require.NoError(t, err)
	second, secondID, err := newProbe()
	require.NoError(t, err)

	assert.NotEqual(t, firstID, secondID)
	assert.True(t, strings.HasPrefix(firstID, "uuid:"))
	assert.Contains(t, string(first), "<a:MessageID>"+firstID+"</a:MessageID>")
	assert.Contains(t, string(second), "<d:Types>dn:NetworkVideoTransmitter</d:Types>")

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(first))
	assert.Equal(t, actionProbe, doc.FindElement("./Envelope/Header/Action").Text())
}

func TestParseScopes(t *testing.T) {
	name, location, model := parseScopes("onvif://www.onvif.org/type/video_encoder onvif://www.onvif.org/name/Back%20Yard onvif://www.onvif.org/location/country/nl onvif://www.onvif.org/hardware/DS-2CD2143")
	assert.Equal(t, "Back Yard", name)
	assert.Equal(t, "country/nl", location)
	assert.Equal(t, "DS-2CD2143", model)

	name, _, _ = parseScopes("")
	assert.Empty(t, name)
}

func TestDisplayNameFallsBackToAddress(t *testing.T) {
	camera := Camera{Address: "http://10.0.0.7/onvif/device_service http://[fe80::7]/onvif/device_service"}
	assert.Equal(t, "http://10.0.0.7/onvif/device_service", camera.GetDisplayName())
}

func TestReadProbeMatchesFiltersByMessageID(t *testing.T) {
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()

	sender, err := net.Dial("udp4", conn.LocalAddr().String())
	require.NoError(t, err)
	defer sender.Close()

	other := strings.ReplaceAll(probeMatchesResponse, "uuid:probe-1", "uuid:probe-2")
	other = strings.ReplaceAll(other, "10.0.0.5", "10.0.0.99")
	for _, msg := range []string{other, "not xml", probeMatchesResponse} {
		_, err := sender.Write([]byte(msg))
		require.NoError(t, err)
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	cameras := readProbeMatches(context.Background(), conn, "uuid:probe-1")

	require.Len(t, cameras, 1)
	assert.Contains(t, cameras[0].Address, "http://10.0.0.5/")
}

func TestReadProbeMatchesReturnsOnClosedConn(t *testing.T) {
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	done := make(chan []Camera, 1)
	go func() { done <- readProbeMatches(context.Background(), conn, "uuid:probe-1") }()

	select {
	case cameras := <-done:
		assert.Empty(t, cameras)
	case <-time.After(2 * time.Second):
		t.Fatal("read loop kept running on a closed connection")
	}
}

func TestReadProbeMatchesReturnsWhenContextDone(t *testing.T) {
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, conn.SetReadDeadline(time.Now()))

	done := make(chan []Camera, 1)
	go func() { done <- readProbeMatches(ctx, conn, "uuid:probe-1") }()

	select {
	case cameras := <-done:
		assert.Empty(t, cameras)
	case <-time.After(2 * time.Second):
		t.Fatal("read loop ignored the cancelled context")
	}
}
