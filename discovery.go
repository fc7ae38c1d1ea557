package onvif

import (
	"context"
	"net"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/gofrs/uuid"
	"github.com/juju/errors"
	"golang.org/x/net/ipv4"
)

const (
	nsAddressing = "http://schemas.xmlsoap.org/ws/2004/08/addressing"
	nsDiscovery  = "http://schemas.xmlsoap.org/ws/2005/04/discovery"
	nsNetwork    = "http://www.onvif.org/ver10/network/wsdl"

	actionProbe = "http://schemas.xmlsoap.org/ws/2005/04/discovery/Probe"
	probeTarget = "urn:schemas-xmlsoap-org:ws:2005:04:discovery"
)

// newProbe builds a Probe for network video transmitters and returns it
// with its MessageID
func newProbe() ([]byte, string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, "", errors.Annotate(err, "generating probe message id")
	}
	messageID := "uuid:" + id.String()

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	env := doc.CreateElement("s:Envelope")
	env.CreateAttr("xmlns:s", nsSOAPEnvelope)
	env.CreateAttr("xmlns:a", nsAddressing)
	env.CreateAttr("xmlns:d", nsDiscovery)
	env.CreateAttr("xmlns:dn", nsNetwork)

	header := env.CreateElement("s:Header")
	header.CreateElement("a:Action").SetText(actionProbe)
	header.CreateElement("a:MessageID").SetText(messageID)
	header.CreateElement("a:To").SetText(probeTarget)

	probe := env.CreateElement("s:Body").CreateElement("d:Probe")
	probe.CreateElement("d:Types").SetText("dn:NetworkVideoTransmitter")

	data, err := doc.WriteToBytes()
	if err != nil {
		return nil, "", errors.Annotate(err, "encoding probe")
	}
	return data, messageID, nil
}

// DiscoverCameras discovers ONVIF cameras on the network. It returns when the
// probe timeout elapses or ctx is done, with whatever answered until then.
func DiscoverCameras(ctx context.Context, options *DiscoveryOptions) ([]Camera, error) {
	opts := DiscoveryOptions{}
	if options != nil {
		opts = *options
	}
	if opts.MulticastAddr == "" {
		opts.MulticastAddr = DefaultMulticastAddr
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.TTL == 0 {
		opts.TTL = DefaultMulticastTTL
	}

	addr, err := net.ResolveUDPAddr("udp4", opts.MulticastAddr)
	if err != nil {
		return nil, errors.Annotate(err, "failed to resolve multicast address")
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, errors.Annotate(err, "failed to create UDP connection")
	}
	defer conn.Close()

	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetMulticastTTL(opts.TTL); err != nil {
		return nil, errors.Annotate(err, "failed to set multicast TTL")
	}
	if opts.Interface != "" {
		ifi, err := net.InterfaceByName(opts.Interface)
		if err != nil {
			return nil, errors.Annotatef(err, "failed to find interface %q", opts.Interface)
		}
		if err := pc.SetMulticastInterface(ifi); err != nil {
			return nil, errors.Annotatef(err, "failed to select interface %q", opts.Interface)
		}
	}

	deadline := time.Now().Add(opts.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, errors.Annotate(err, "failed to set read deadline")
	}
	stop := context.AfterFunc(ctx, func() { conn.SetReadDeadline(time.Now()) })
	defer stop()

	probe, messageID, err := newProbe()
	if err != nil {
		return nil, err
	}
	if _, err := conn.WriteToUDP(probe, addr); err != nil {
		return nil, errors.Annotate(err, "failed to send probe message")
	}

	cameras := readProbeMatches(ctx, conn, messageID)
	return deduplicateCameras(cameras), nil
}

// readProbeMatches collects the cameras answering messageID until the read
// deadline passes, ctx is done or conn is closed
func readProbeMatches(ctx context.Context, conn net.PacketConn, messageID string) []Camera {
	var cameras []Camera
	buffer := make([]byte, 65536)

	for {
		n, _, err := conn.ReadFrom(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return cameras
			}
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return cameras
			}
			continue
		}

		doc := etree.NewDocument()
		if err := doc.ReadFromBytes(buffer[:n]); err != nil {
			continue
		}
		env := doc.SelectElement("Envelope")
		if env == nil {
			continue
		}
		if header := env.SelectElement("Header"); header != nil {
			if relatesTo := childText(header, "RelatesTo"); relatesTo != "" && relatesTo != messageID {
				continue
			}
		}

		cameras = append(cameras, parseProbeMatches(env)...)
	}
}

// parseProbeMatches reads the cameras announced in a ProbeMatches envelope
func parseProbeMatches(env *etree.Element) []Camera {
	var cameras []Camera
	for _, match := range env.FindElements("./Body/ProbeMatches/ProbeMatch") {
		xaddrs := childText(match, "XAddrs")
		if xaddrs == "" {
			continue
		}
		name, location, model := parseScopes(childText(match, "Scopes"))

		cameras = append(cameras, Camera{
			Name:     name,
			Address:  xaddrs,
			Types:    parseTypes(childText(match, "Types")),
			Model:    model,
			Location: location,
		})
	}
	return cameras
}

const (
	scopeName     = "onvif://www.onvif.org/name/"
	scopeLocation = "onvif://www.onvif.org/location/"
	scopeHardware = "onvif://www.onvif.org/hardware/"
)

// parseScopes picks name, location and hardware out of the scope URIs.
// Underscores stand for spaces in scope values.
func parseScopes(scopes string) (name, location, model string) {
	for _, scope := range strings.Fields(scopes) {
		switch {
		case strings.HasPrefix(scope, scopeName):
			name = scopeValue(scope, scopeName)
		case strings.HasPrefix(scope, scopeLocation):
			location = scopeValue(scope, scopeLocation)
		case strings.HasPrefix(scope, scopeHardware):
			model = scopeValue(scope, scopeHardware)
		}
	}
	return
}

func scopeValue(scope, prefix string) string {
	v := strings.TrimPrefix(scope, prefix)
	if unescaped, err := url.PathUnescape(v); err == nil {
		v = unescaped
	}
	return strings.ReplaceAll(v, "_", " ")
}

// knownTypes maps a substring of an advertised type to its display name, in
// match priority order
var knownTypes = []struct {
	match, name string
}{
	{"NetworkVideoTransmitter", "Network Video Transmitter"},
	{"Device", "Device"},
	{"Media", "Media"},
	{"PTZ", "PTZ"},
	{"Analytics", "Analytics"},
	{"Events", "Events"},
	{"Imaging", "Imaging"},
	{"Recording", "Recording"},
	{"Replay", "Replay"},
}

func parseTypes(types string) []string {
	var names []string
	for _, t := range strings.Fields(types) {
		for _, known := range knownTypes {
			if strings.Contains(t, known.match) {
				names = append(names, known.name)
				break
			}
		}
	}
	return names
}

// deduplicateCameras keeps the first answer per device, keyed by its first
// XAddr, sorted by address
func deduplicateCameras(cameras []Camera) []Camera {
	seen := make(map[string]bool)
	var unique []Camera
	for _, camera := range cameras {
		key := getFirstAddress(camera.Address)
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, camera)
	}

	sort.SliceStable(unique, func(i, j int) bool {
		return unique[i].Address < unique[j].Address
	})
	return unique
}
