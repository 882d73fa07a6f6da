// Package digest implements an http.RoundTripper that answers HTTP Digest
// authentication challenges. Many ONVIF devices ignore WS-Security tokens and
// only accept Digest on the HTTP layer.
package digest

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

var (
	errNoDigestChallenge = errors.New("no digest challenge in response")
	errUnsupportedQop    = errors.New("digest challenge only offers unsupported qop")
)

// Transport retries a request once with an Authorization header when the
// server responds 401 with a Digest challenge.
type Transport struct {
	Username string
	Password string

	// Transport is the underlying round tripper, http.DefaultTransport when nil.
	Transport http.RoundTripper
}

// NewTransport creates a digest transport over http.DefaultTransport.
func NewTransport(username, password string) *Transport {
	return &Transport{Username: username, Password: password}
}

func (t *Transport) base() http.RoundTripper {
	if t.Transport != nil {
		return t.Transport
	}
	return http.DefaultTransport
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	var payload []byte
	if req.Body != nil && req.Body != http.NoBody {
		var err error
		payload, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
	}

	resp, err := t.base().RoundTrip(withBody(req, payload, ""))
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	chal, err := parseChallenge(resp.Header.Values("WWW-Authenticate"))
	if err != nil {
		// No digest challenge we can answer, hand the 401 back to the caller.
		return resp, nil
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	auth, err := chal.authorize(t.Username, t.Password, req.Method, req.URL.RequestURI())
	if err != nil {
		return nil, err
	}
	return t.base().RoundTrip(withBody(req, payload, auth))
}

func withBody(req *http.Request, payload []byte, authorization string) *http.Request {
	r := req.Clone(req.Context())
	if payload != nil {
		r.Body = io.NopCloser(bytes.NewReader(payload))
		r.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(payload)), nil
		}
		r.ContentLength = int64(len(payload))
	}
	if authorization != "" {
		r.Header.Set("Authorization", authorization)
	}
	return r
}

type challenge struct {
	realm     string
	nonce     string
	opaque    string
	algorithm string
	qop       string
}

func parseChallenge(headers []string) (*challenge, error) {
	err := errNoDigestChallenge
	for _, h := range headers {
		scheme, rest, _ := strings.Cut(strings.TrimSpace(h), " ")
		if !strings.EqualFold(scheme, "Digest") {
			continue
		}
		params := parseParams(rest)
		c := &challenge{
			realm:     params["realm"],
			nonce:     params["nonce"],
			opaque:    params["opaque"],
			algorithm: params["algorithm"],
		}
		if c.nonce == "" {
			continue
		}
		// Only qop=auth is supported, auth-int would need the body hash.
		if qop, ok := params["qop"]; ok {
			for _, q := range strings.Split(qop, ",") {
				if strings.TrimSpace(q) == "auth" {
					c.qop = "auth"
				}
			}
			if c.qop == "" {
				err = errUnsupportedQop
				continue
			}
		}
		return c, nil
	}
	return nil, err
}

// parseParams splits `k1="v, 1", k2=v2` honouring quoted commas.
func parseParams(s string) map[string]string {
	params := make(map[string]string)
	for len(s) > 0 {
		s = strings.TrimLeft(s, " ,\t")
		eq := strings.IndexByte(s, '=')
		if eq < 0 {
			break
		}
		key := strings.ToLower(strings.TrimSpace(s[:eq]))
		s = strings.TrimLeft(s[eq+1:], " \t")

		var val string
		if strings.HasPrefix(s, `"`) {
			end := 1
			for end < len(s) && s[end] != '"' {
				if s[end] == '\\' {
					end++
				}
				end++
			}
			if end > len(s) {
				end = len(s)
			}
			val = strings.ReplaceAll(s[1:end], `\"`, `"`)
			s = s[min(end+1, len(s)):]
		} else {
			comma := strings.IndexByte(s, ',')
			if comma < 0 {
				comma = len(s)
			}
			val = strings.TrimSpace(s[:comma])
			s = s[comma:]
		}
		params[key] = val
	}
	return params
}

func (c *challenge) hasher() (func() hash.Hash, error) {
	switch strings.TrimSuffix(strings.ToUpper(c.algorithm), "-SESS") {
	case "", "MD5":
		return md5.New, nil
	case "SHA-256":
		return sha256.New, nil
	default:
		return nil, fmt.Errorf("digest: unsupported algorithm %q", c.algorithm)
	}
}

func (c *challenge) authorize(username, password, method, uri string) (string, error) {
	newHash, err := c.hasher()
	if err != nil {
		return "", err
	}
	h := func(parts ...string) string {
		sum := newHash()
		io.WriteString(sum, strings.Join(parts, ":"))
		return hex.EncodeToString(sum.Sum(nil))
	}

	cnonce := strings.ReplaceAll(uuid.NewString(), "-", "")
	const nc = "00000001"

	ha1 := h(username, c.realm, password)
	if strings.HasSuffix(strings.ToUpper(c.algorithm), "-SESS") {
		ha1 = h(ha1, c.nonce, cnonce)
	}
	ha2 := h(method, uri)

	var response string
	if c.qop != "" {
		response = h(ha1, c.nonce, nc, cnonce, c.qop, ha2)
	} else {
		response = h(ha1, c.nonce, ha2)
	}

	var b strings.Builder
	fmt.Fprintf(&b, `Digest username="%s", realm="%s", nonce="%s", uri="%s", response="%s"`,
		quote(username), quote(c.realm), quote(c.nonce), quote(uri), response)
	if c.algorithm != "" {
		fmt.Fprintf(&b, ", algorithm=%s", c.algorithm)
	}
	if c.opaque != "" {
		fmt.Fprintf(&b, `, opaque="%s"`, quote(c.opaque))
	}
	if c.qop != "" {
		fmt.Fprintf(&b, `, qop=%s, nc=%s, cnonce="%s"`, c.qop, nc, cnonce)
	}
	return b.String(), nil
}

func quote(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
