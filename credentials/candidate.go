// Package credentials holds the per-device credential table and the
// fallback candidates tried against devices the table does not name.
package credentials

import (
	"errors"
	"strings"

	"github.com/quocson95/onvif-inventory/soap"
)

// Candidate is one username/password pair, or the Anonymous sentinel.
type Candidate struct {
	Username string
	Password string

	anonymous bool
}

// Anonymous sends requests without any credentials.
var Anonymous = Candidate{anonymous: true}

var (
	errPasswordWithoutUser = errors.New("password given without a username")
	errMissingColon        = errors.New("expected username:password")
)

// NewCandidate builds a candidate. An empty username with an empty password
// is Anonymous; an empty username with a password is rejected.
func NewCandidate(username, password string) (Candidate, error) {
	if username == "" {
		if password != "" {
			return Candidate{}, errPasswordWithoutUser
		}
		return Anonymous, nil
	}
	return Candidate{Username: username, Password: password}, nil
}

// ParseCandidate parses "username:password". ":" alone is Anonymous.
func ParseCandidate(s string) (Candidate, error) {
	username, password, ok := strings.Cut(s, ":")
	if !ok {
		return Candidate{}, errMissingColon
	}
	return NewCandidate(strings.TrimSpace(username), strings.TrimSpace(password))
}

// IsAnonymous reports whether c carries no credentials.
func (c Candidate) IsAnonymous() bool {
	return c.anonymous
}

// SOAP returns the transport credentials, nil for Anonymous.
func (c Candidate) SOAP() *soap.Credentials {
	if c.anonymous {
		return nil
	}
	return &soap.Credentials{Username: c.Username, Password: c.Password}
}

// String never includes the password.
func (c Candidate) String() string {
	if c.anonymous {
		return "anonymous"
	}
	return c.Username
}
