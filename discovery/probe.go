package discovery

import (
	"errors"
	"net/url"
	"regexp"
	"strings"

	"github.com/clbanning/mxj"
	"github.com/golang/glog"

	"github.com/quocson95/onvif-inventory/soap"
)

var errWrongDiscoveryResponse = errors.New("response is not related to discovery request")

var (
	betweenTags = regexp.MustCompile(`>\s+<`)
	whitespace  = regexp.MustCompile(`\s+`)
)

const probeTemplate = `<?xml version="1.0" encoding="UTF-8"?>
	<s:Envelope
		xmlns:s="http://www.w3.org/2003/05/soap-envelope"
		xmlns:a="http://schemas.xmlsoap.org/ws/2004/08/addressing">
		<s:Header>
			<a:Action s:mustUnderstand="1">http://schemas.xmlsoap.org/ws/2005/04/discovery/Probe</a:Action>
			<a:MessageID>{{MESSAGE_ID}}</a:MessageID>
			<a:ReplyTo><a:Address>http://schemas.xmlsoap.org/ws/2004/08/addressing/role/anonymous</a:Address></a:ReplyTo>
			<a:To s:mustUnderstand="1">urn:schemas-xmlsoap-org:ws:2005:04:discovery</a:To>
		</s:Header>
		<s:Body>
			<Probe xmlns="http://schemas.xmlsoap.org/ws/2005/04/discovery">
				<d:Types xmlns:d="http://schemas.xmlsoap.org/ws/2005/04/discovery" xmlns:dp0="http://www.onvif.org/ver10/network/wsdl">dp0:NetworkVideoTransmitter</d:Types>
			</Probe>
		</s:Body>
	</s:Envelope>`

// buildProbe returns a compact WS-Discovery Probe for network video transmitters.
func buildProbe(messageID string) []byte {
	request := strings.Replace(probeTemplate, "{{MESSAGE_ID}}", messageID, 1)
	request = betweenTags.ReplaceAllString(request, "><")
	request = whitespace.ReplaceAllString(request, " ")
	return []byte(request)
}

// parseProbeMatches decodes a ProbeMatches reply to the probe messageID.
// A reply may carry several ProbeMatch elements.
func parseProbeMatches(messageID string, buffer []byte) ([]Device, error) {
	glog.V(2).Infof("Discover response: %s", buffer)

	mapXML, err := mxj.NewMapXml(buffer)
	if err != nil {
		return nil, err
	}

	relatesTo, err := mapXML.ValueForPath("Envelope.Header.RelatesTo")
	if err != nil || soap.Text(relatesTo) != messageID {
		return nil, errWrongDiscoveryResponse
	}

	matches := soap.MapsAt(mapXML, "Envelope.Body.ProbeMatches.ProbeMatch")
	devices := make([]Device, 0, len(matches))
	for _, match := range matches {
		device, err := deviceFromMatch(match)
		if err != nil {
			glog.Warningf("Skipping probe match: %v", err)
			continue
		}
		devices = append(devices, device)
	}
	return devices, nil
}

func deviceFromMatch(match mxj.Map) (Device, error) {
	// Hikvision: urn:uuid:0a940000-..., Dahua: uuid:0bed4837-...
	endpointID := soap.StringAt(match, "EndpointReference.Address")
	endpointID = strings.TrimPrefix(endpointID, "urn:")
	endpointID = strings.TrimPrefix(endpointID, "uuid:")

	xAddrs := strings.Fields(soap.StringAt(match, "XAddrs"))
	if len(xAddrs) == 0 {
		return Device{}, errors.New("device " + endpointID + " does not have any xAddr")
	}

	var base *url.URL
	for _, xAddr := range xAddrs {
		u, err := url.Parse(xAddr)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		base = soap.CanonicalURL(&url.URL{Scheme: u.Scheme, Host: u.Host})
		break
	}
	if base == nil {
		return Device{}, errors.New("device " + endpointID + " has no usable xAddr in " + strings.Join(xAddrs, " "))
	}

	scopes := strings.Fields(soap.StringAt(match, "Scopes"))
	device := Device{
		Address:    base,
		EndpointID: endpointID,
		XAddrs:     xAddrs,
		Scopes:     scopes,
	}
	parseScopes(&device, scopes)
	return device, nil
}

const scopePrefix = "onvif://www.onvif.org/"

// parseScopes fills the name, hardware, location and MAC fields from the
// onvif:// scope URIs.
func parseScopes(device *Device, scopes []string) {
	for _, scope := range scopes {
		rest, ok := strings.CutPrefix(scope, scopePrefix)
		if !ok {
			continue
		}
		kind, value, ok := strings.Cut(rest, "/")
		if !ok {
			continue
		}
		if unescaped, err := url.PathUnescape(value); err == nil {
			value = unescaped
		}
		switch kind {
		case "name":
			device.Name = value
		case "hardware":
			device.Hardware = value
		case "location":
			device.Location = value
		case "MAC":
			device.MACAddress = value
		}
	}
}
