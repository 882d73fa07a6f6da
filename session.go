package onvif

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/quocson95/onvif-inventory/soap"
)

var (
	errNotAbsolute         = errors.New("not an absolute http(s) URL")
	errPasswordWithoutUser = errors.New("onvif: password given without a username")
)

// Session is an authenticated view of one device. Sessions are never
// shared: every credential attempt opens its own.
type Session struct {
	base       string
	management *soap.Client
	media      *soap.Client
	directory  *ServiceDirectory
}

// NewSession connects to the device at base (scheme://host[:port]) with
// creds, nil meaning anonymous, and resolves its service directory. Every
// advertised service address must extend base. Default ports are dropped
// from base and from the advertised addresses before comparing.
//
// NewSession panics when creds has a password but no username.
func NewSession(ctx context.Context, base string, creds *soap.Credentials, opts ...soap.Option) (*Session, error) {
	if creds != nil && creds.Username == "" {
		if creds.Password != "" {
			panic("onvif: username and password must be specified together")
		}
		creds = nil
	}

	base = strings.TrimSuffix(base, "/")
	u, err := url.Parse(base)
	if err == nil && (!u.IsAbs() || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https")) {
		err = errNotAbsolute
	}
	if err != nil {
		return nil, &AddressError{Address: base, Base: base, Err: err}
	}
	base = soap.CanonicalURL(u).String()

	managementURL, err := url.Parse(base + ManagementPath)
	if err != nil {
		return nil, &AddressError{Address: base + ManagementPath, Base: base, Err: err}
	}

	management := soap.NewClient(managementURL, creds, opts...)
	directory, media, err := resolveDirectory(ctx, management, base)
	if err != nil {
		return nil, err
	}

	return &Session{
		base:       base,
		management: management,
		media:      media,
		directory:  directory,
	}, nil
}

// Base returns the address the session was opened on.
func (s *Session) Base() string {
	return s.base
}

func (s *Session) Directory() *ServiceDirectory {
	return s.directory
}

// HasMedia reports whether the device advertised a media service.
func (s *Session) HasMedia() bool {
	return s.media != nil
}

// DeviceInformation queries the device management service.
func (s *Session) DeviceInformation(ctx context.Context) (DeviceInformation, error) {
	return getDeviceInformation(ctx, s.management)
}

// Profiles lists the media profiles.
func (s *Session) Profiles(ctx context.Context) ([]MediaProfile, error) {
	if s.media == nil {
		return nil, ErrMediaUnavailable
	}
	return getProfiles(ctx, s.media)
}
