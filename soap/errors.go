package soap

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAuthentication is returned when the device rejects the credentials,
	// either with HTTP 401/403 or with a NotAuthorized SOAP fault.
	ErrAuthentication = errors.New("soap: authentication failed")

	// ErrConnectivity covers dial failures, timeouts and non-SOAP HTTP errors.
	ErrConnectivity = errors.New("soap: connection failed")

	// ErrMalformedResponse is returned when the body is not a SOAP envelope.
	ErrMalformedResponse = errors.New("soap: malformed response")
)

// Fault is a SOAP 1.2 fault returned by the device.
type Fault struct {
	Code    string
	Subcode string
	Reason  string
}

func (f *Fault) Error() string {
	var b strings.Builder
	b.WriteString("soap fault")
	if f.Code != "" {
		fmt.Fprintf(&b, " %s", f.Code)
	}
	if f.Subcode != "" {
		fmt.Fprintf(&b, "/%s", f.Subcode)
	}
	if f.Reason != "" {
		fmt.Fprintf(&b, ": %s", f.Reason)
	}
	return b.String()
}

// Is reports NotAuthorized faults as ErrAuthentication.
func (f *Fault) Is(target error) bool {
	return target == ErrAuthentication && f.notAuthorized()
}

func (f *Fault) notAuthorized() bool {
	return strings.HasSuffix(f.Subcode, "NotAuthorized") ||
		strings.HasSuffix(f.Subcode, "FailedAuthentication") ||
		strings.Contains(strings.ToLower(f.Reason), "not authorized")
}
