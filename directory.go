package onvif

import (
	"context"
	"net/url"
	"strings"

	"github.com/golang/glog"

	"github.com/quocson95/onvif-inventory/soap"
)

// ServiceDirectory maps service namespaces to the addresses a device
// advertised for them. It is built once per session.
type ServiceDirectory struct {
	addrs      map[string]*url.URL
	namespaces []string
}

// Lookup returns the address advertised for namespace.
func (d *ServiceDirectory) Lookup(namespace string) (*url.URL, bool) {
	u, ok := d.addrs[namespace]
	return u, ok
}

// Namespaces lists the advertised namespaces in response order.
func (d *ServiceDirectory) Namespaces() []string {
	return append([]string(nil), d.namespaces...)
}

// withinBase reports whether addr extends base: base must be a prefix of
// addr ending at a path, query or string boundary, so that
// http://10.0.0.1:80 does not accept http://10.0.0.1:8080/.
func withinBase(addr, base string) bool {
	rest, ok := strings.CutPrefix(addr, base)
	if !ok {
		return false
	}
	return rest == "" || rest[0] == '/' || rest[0] == '?'
}

// resolveDirectory lists the device's services through management and
// checks every advertised address against base. It returns the directory
// and, when advertised, a media client sharing management's credentials.
func resolveDirectory(ctx context.Context, management *soap.Client, base string) (*ServiceDirectory, *soap.Client, error) {
	services, err := getServices(ctx, management)
	if err != nil {
		return nil, nil, err
	}

	managementURL := management.Endpoint().String()
	dir := &ServiceDirectory{addrs: make(map[string]*url.URL, len(services))}
	var media *soap.Client

	for _, s := range services {
		u, err := url.Parse(s.XAddr)
		if err != nil || !u.IsAbs() || u.Host == "" {
			if err == nil {
				err = errNotAbsolute
			}
			return nil, nil, &AddressError{Namespace: s.Namespace, Address: s.XAddr, Base: base, Err: err}
		}
		u = soap.CanonicalURL(u)
		if !withinBase(u.String(), base) {
			return nil, nil, &AddressError{Namespace: s.Namespace, Address: s.XAddr, Base: base}
		}

		switch s.Namespace {
		case DeviceNamespace:
			if u.String() != managementURL {
				return nil, nil, &InconsistencyError{Advertised: s.XAddr, Expected: managementURL}
			}
		case MediaNamespace:
			if media == nil {
				media = management.Rebind(u)
			}
		default:
			glog.V(1).Infof("Unknown service %s at %s", s.Namespace, s.XAddr)
		}

		if _, seen := dir.addrs[s.Namespace]; !seen {
			dir.addrs[s.Namespace] = u
			dir.namespaces = append(dir.namespaces, s.Namespace)
		}
	}
	return dir, media, nil
}
