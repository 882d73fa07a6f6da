// Package onviftest provides a fake ONVIF device served over httptest.
package onviftest

import (
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clbanning/mxj"

	"github.com/quocson95/onvif-inventory/soap"
)

const (
	deviceNS = "http://www.onvif.org/ver10/device/wsdl"
	mediaNS  = "http://www.onvif.org/ver10/media/wsdl"
	eventsNS = "http://www.onvif.org/ver10/events/wsdl"

	// Base is replaced with the server URL in Service addresses.
	Base = "{base}"
)

// Service is one GetServices entry.
type Service struct {
	Namespace string
	XAddr     string
}

// Profile is one media profile. Width 0 omits the video encoder
// configuration, FrameRate 0 omits its rate control.
type Profile struct {
	Token     string
	Name      string
	Width     int
	Height    int
	FrameRate int
	// Delay holds the GetStreamUri response back.
	Delay time.Duration
	// Fail answers GetStreamUri with a SOAP fault.
	Fail bool
}

// Call is one request received by the device.
type Call struct {
	Action   string
	Username string
}

// Device answers GetServices, GetDeviceInformation, GetProfiles and
// GetStreamUri. Configure it before Start.
type Device struct {
	// Users are the accepted UsernameToken credentials. Empty accepts anything.
	Users map[string]string
	// Services overrides the advertised services. Nil advertises device
	// management, media and events under the server URL.
	Services []Service
	Profiles []Profile

	URL string

	mu       sync.Mutex
	calls    []Call
	inFlight int
	peak     int
}

// Start serves the device until the test ends and returns its base address.
func (d *Device) Start(t testing.TB) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(d.serveHTTP))
	t.Cleanup(srv.Close)
	d.URL = srv.URL
	return srv.URL
}

// Calls returns the received requests in arrival order.
func (d *Device) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

// Count returns how many requests had the given action name, e.g. "GetProfiles".
func (d *Device) Count(action string) int {
	n := 0
	for _, c := range d.Calls() {
		if c.Action == action {
			n++
		}
	}
	return n
}

// PeakStreamRequests is the highest number of GetStreamUri requests served at once.
func (d *Device) PeakStreamRequests() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.peak
}

func (d *Device) serveHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	m, err := mxj.NewMapXml(data)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	action := path.Base(r.Header.Get("SOAPAction"))
	token := "Envelope.Header.Security.UsernameToken."
	username := soap.StringAt(m, token+"Username")

	d.mu.Lock()
	d.calls = append(d.calls, Call{Action: action, Username: username})
	d.mu.Unlock()

	if !d.authorized(m) {
		fault(w, http.StatusBadRequest, "env:Sender", "ter:NotAuthorized", "Sender not Authorized")
		return
	}

	switch action {
	case "GetServices":
		respond(w, d.servicesResponse())
	case "GetDeviceInformation":
		respond(w, `<tds:GetDeviceInformationResponse xmlns:tds="`+deviceNS+`">`+
			`<tds:Manufacturer>Acme</tds:Manufacturer><tds:Model>C1</tds:Model>`+
			`<tds:FirmwareVersion>1.0</tds:FirmwareVersion><tds:SerialNumber>SN1</tds:SerialNumber>`+
			`<tds:HardwareId>HW1</tds:HardwareId></tds:GetDeviceInformationResponse>`)
	case "GetProfiles":
		respond(w, d.profilesResponse())
	case "GetStreamUri":
		d.streamURI(w, r, soap.StringAt(m, "Envelope.Body.GetStreamUri.ProfileToken"))
	default:
		fault(w, http.StatusBadRequest, "env:Receiver", "ter:ActionNotSupported", "Optional Action Not Implemented")
	}
}

func (d *Device) authorized(m mxj.Map) bool {
	if len(d.Users) == 0 {
		return true
	}
	token := "Envelope.Header.Security.UsernameToken."
	password, ok := d.Users[soap.StringAt(m, token+"Username")]
	if !ok {
		return false
	}
	nonce, err := base64.StdEncoding.DecodeString(soap.StringAt(m, token+"Nonce"))
	if err != nil {
		return false
	}
	h := sha1.New()
	h.Write(nonce)
	h.Write([]byte(soap.StringAt(m, token+"Created")))
	h.Write([]byte(password))
	return soap.StringAt(m, token+"Password") == base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func (d *Device) servicesResponse() string {
	services := d.Services
	if services == nil {
		services = []Service{
			{Namespace: deviceNS, XAddr: Base + "/onvif/device_service"},
			{Namespace: mediaNS, XAddr: Base + "/onvif/media_service"},
			{Namespace: eventsNS, XAddr: Base + "/onvif/event_service"},
		}
	}

	var b strings.Builder
	b.WriteString(`<tds:GetServicesResponse xmlns:tds="` + deviceNS + `">`)
	for _, s := range services {
		fmt.Fprintf(&b, `<tds:Service><tds:Namespace>%s</tds:Namespace><tds:XAddr>%s</tds:XAddr>`+
			`<tds:Version><tt:Major xmlns:tt="http://www.onvif.org/ver10/schema">2</tt:Major>`+
			`<tt:Minor xmlns:tt="http://www.onvif.org/ver10/schema">60</tt:Minor></tds:Version></tds:Service>`,
			s.Namespace, strings.ReplaceAll(s.XAddr, Base, d.URL))
	}
	b.WriteString(`</tds:GetServicesResponse>`)
	return b.String()
}

func (d *Device) profilesResponse() string {
	var b strings.Builder
	b.WriteString(`<trt:GetProfilesResponse xmlns:trt="` + mediaNS + `" xmlns:tt="http://www.onvif.org/ver10/schema">`)
	for _, p := range d.Profiles {
		fmt.Fprintf(&b, `<trt:Profiles token="%s" fixed="true"><tt:Name>%s</tt:Name>`, p.Token, p.Name)
		if p.Width > 0 {
			fmt.Fprintf(&b, `<tt:VideoEncoderConfiguration token="enc_%s"><tt:Name>enc</tt:Name><tt:Encoding>H264</tt:Encoding>`+
				`<tt:Resolution><tt:Width>%d</tt:Width><tt:Height>%d</tt:Height></tt:Resolution>`, p.Token, p.Width, p.Height)
			if p.FrameRate > 0 {
				fmt.Fprintf(&b, `<tt:RateControl><tt:FrameRateLimit>%d</tt:FrameRateLimit><tt:BitrateLimit>4096</tt:BitrateLimit></tt:RateControl>`, p.FrameRate)
			}
			b.WriteString(`</tt:VideoEncoderConfiguration>`)
		}
		b.WriteString(`</trt:Profiles>`)
	}
	b.WriteString(`</trt:GetProfilesResponse>`)
	return b.String()
}

func (d *Device) streamURI(w http.ResponseWriter, r *http.Request, token string) {
	d.mu.Lock()
	d.inFlight++
	d.peak = max(d.peak, d.inFlight)
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.inFlight--
		d.mu.Unlock()
	}()

	for _, p := range d.Profiles {
		if p.Token != token {
			continue
		}
		select {
		case <-time.After(p.Delay):
		case <-r.Context().Done():
			return
		}
		if p.Fail {
			fault(w, http.StatusInternalServerError, "env:Receiver", "ter:Action", "stream unavailable")
			return
		}
		respond(w, `<trt:GetStreamUriResponse xmlns:trt="`+mediaNS+`" xmlns:tt="http://www.onvif.org/ver10/schema">`+
			`<trt:MediaUri><tt:Uri>rtsp://`+strings.TrimPrefix(d.URL, "http://")+`/`+token+`</tt:Uri>`+
			`<tt:InvalidAfterConnect>false</tt:InvalidAfterConnect><tt:Timeout>PT0S</tt:Timeout></trt:MediaUri>`+
			`</trt:GetStreamUriResponse>`)
		return
	}
	fault(w, http.StatusBadRequest, "env:Sender", "ter:InvalidArgVal", "no such profile")
}

func respond(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/soap+xml; charset=utf-8")
	io.WriteString(w, envelope(body))
}

func fault(w http.ResponseWriter, status int, code, subcode, reason string) {
	w.Header().Set("Content-Type", "application/soap+xml; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, envelope(`<env:Fault><env:Code><env:Value>`+code+`</env:Value>`+
		`<env:Subcode><env:Value>`+subcode+`</env:Value></env:Subcode></env:Code>`+
		`<env:Reason><env:Text xml:lang="en">`+reason+`</env:Text></env:Reason></env:Fault>`))
}

func envelope(body string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<env:Envelope xmlns:env="http://www.w3.org/2003/05/soap-envelope" xmlns:ter="http://www.onvif.org/ver10/error">` +
		`<env:Body>` + body + `</env:Body></env:Envelope>`
}
