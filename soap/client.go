// Package soap sends ONVIF SOAP 1.2 requests to a single bound endpoint and
// decodes the responses with mxj.
package soap

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/clbanning/mxj"
	"github.com/golang/glog"
	"golang.org/x/time/rate"

	"github.com/quocson95/onvif-inventory/digest"
)

const (
	// DefaultTimeout bounds one request/response exchange.
	DefaultTimeout = 10 * time.Second

	maxResponseBody = 4 << 20
)

// Client is bound to one service endpoint and one set of credentials.
type Client struct {
	endpoint *url.URL
	creds    *Credentials
	http     *http.Client
	limiter  *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client. Its Transport is wrapped
// with a digest transport when credentials are set.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLimiter makes every Call wait on l before sending.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// NewClient creates a client for endpoint. A nil creds sends anonymous requests.
func NewClient(endpoint *url.URL, creds *Credentials, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		creds:    creds,
		http:     &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if creds != nil {
		hc := *c.http
		dt := digest.NewTransport(creds.Username, creds.Password)
		dt.Transport = c.http.Transport
		hc.Transport = dt
		c.http = &hc
	}
	return c
}

// CanonicalURL returns a copy of u without the default port of its scheme,
// so that http://host:80/x and http://host/x print the same.
func CanonicalURL(u *url.URL) *url.URL {
	c := *u
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		c.Host = strings.TrimSuffix(u.Host, ":"+port)
	}
	return &c
}

// Rebind returns a client for another endpoint sharing this client's
// credentials, HTTP client and limiter.
func (c *Client) Rebind(endpoint *url.URL) *Client {
	return &Client{
		endpoint: endpoint,
		creds:    c.creds,
		http:     c.http,
		limiter:  c.limiter,
	}
}

// Endpoint returns the address the client is bound to.
func (c *Client) Endpoint() *url.URL {
	return c.endpoint
}

// Call posts body (the content of s:Body) with the given SOAP action and
// returns the decoded response envelope.
func (c *Client) Call(ctx context.Context, action, body string) (mxj.Map, error) {
	endpoint := c.endpoint.String()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %s: rate limit: %w", ErrConnectivity, endpoint, err)
		}
	}

	envelope := buildEnvelope(body, c.creds, time.Now())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(envelope))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectivity, endpoint, err)
	}
	req.Header.Set("Content-Type", `application/soap+xml; charset=utf-8; action="`+action+`"`)
	req.Header.Set("SOAPAction", action)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectivity, endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: reading response: %w", ErrConnectivity, endpoint, err)
	}
	glog.V(2).Infof("SOAP %s %s: HTTP %d %s", action, endpoint, resp.StatusCode, data)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: %s: HTTP %d", ErrAuthentication, endpoint, resp.StatusCode)
	}

	m, parseErr := mxj.NewMapXml(data)
	if parseErr == nil {
		if fault := faultFrom(m); fault != nil {
			return nil, fmt.Errorf("%s: %w", endpoint, fault)
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: HTTP %d", ErrConnectivity, endpoint, resp.StatusCode)
	}
	if parseErr != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedResponse, endpoint, parseErr)
	}
	if _, err := m.ValueForPath("Envelope.Body"); err != nil {
		return nil, fmt.Errorf("%w: %s: no envelope body", ErrMalformedResponse, endpoint)
	}
	return m, nil
}

func faultFrom(m mxj.Map) *Fault {
	if _, err := m.ValueForPath("Envelope.Body.Fault"); err != nil {
		return nil
	}
	return &Fault{
		Code:    StringAt(m, "Envelope.Body.Fault.Code.Value"),
		Subcode: StringAt(m, "Envelope.Body.Fault.Code.Subcode.Value"),
		Reason:  StringAt(m, "Envelope.Body.Fault.Reason.Text"),
	}
}
