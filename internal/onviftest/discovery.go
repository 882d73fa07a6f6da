package onviftest

import (
	"net"
	"net/url"
	"strings"
	"testing"

	"github.com/clbanning/mxj"

	"github.com/quocson95/onvif-inventory/soap"
)

// Advert is what a fake device announces in its ProbeMatch.
type Advert struct {
	Name   string
	XAddrs []string
}

// ServeDiscovery answers WS-Discovery probes on a loopback UDP port with one
// ProbeMatches reply listing adverts. It returns the "host:port" to probe.
func ServeDiscovery(t testing.TB, adverts ...Advert) string {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen udp: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 10*1024)
		for {
			n, from, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			m, err := mxj.NewMapXml(buf[:n])
			if err != nil {
				continue
			}
			conn.WriteToUDP([]byte(probeMatches(soap.StringAt(m, "Envelope.Header.MessageID"), adverts)), from)
		}
	}()
	return conn.LocalAddr().String()
}

func probeMatches(relatesTo string, adverts []Advert) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` +
		`<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://www.w3.org/2003/05/soap-envelope" ` +
		`xmlns:wsa="http://schemas.xmlsoap.org/ws/2004/08/addressing" xmlns:d="http://schemas.xmlsoap.org/ws/2005/04/discovery">` +
		`<SOAP-ENV:Header><wsa:MessageID>uuid:fake-reply</wsa:MessageID><wsa:RelatesTo>` + relatesTo + `</wsa:RelatesTo></SOAP-ENV:Header>` +
		`<SOAP-ENV:Body><d:ProbeMatches>`)
	for i, a := range adverts {
		b.WriteString(`<d:ProbeMatch><wsa:EndpointReference><wsa:Address>urn:uuid:fake-` + string(rune('a'+i)) + `</wsa:Address></wsa:EndpointReference>`)
		b.WriteString(`<d:Types>dn:NetworkVideoTransmitter</d:Types>`)
		b.WriteString(`<d:Scopes>onvif://www.onvif.org/type/video_encoder onvif://www.onvif.org/name/` + url.PathEscape(a.Name) + `</d:Scopes>`)
		b.WriteString(`<d:XAddrs>` + strings.Join(a.XAddrs, " ") + `</d:XAddrs><d:MetadataVersion>1</d:MetadataVersion></d:ProbeMatch>`)
	}
	b.WriteString(`</d:ProbeMatches></SOAP-ENV:Body></SOAP-ENV:Envelope>`)
	return b.String()
}
