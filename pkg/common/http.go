package common

import (
	_ "embed"
	"net/http"
	"strings"
	"time"
)

//go:embed VERSION
var version string

// Version returns the trimmed build version.
func Version() string {
	return strings.TrimSpace(version)
}

// headerTransport sets a fixed set of headers on every outgoing request.
type headerTransport struct {
	transport http.RoundTripper
	headers   http.Header
}

// RoundTrip implements http.RoundTripper
func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// the request may be reused by the caller so never mutate it
	req = req.Clone(req.Context())
	for k, vs := range t.headers {
		req.Header[k] = append([]string(nil), vs...)
	}
	return t.transport.RoundTrip(req)
}

// HTTPClient returns a default http client with a default user-agent set
func HTTPClient(timeout time.Duration) *http.Client {
	return HTTPClientWithHeaders(timeout, nil)
}

// HTTPClientWithHeaders returns an http client that sets the user-agent plus
// the given headers on every request. It is used for APIs that authenticate
// with static header credentials.
func HTTPClientWithHeaders(timeout time.Duration, headers map[string]string) *http.Client {
	h := http.Header{}
	h.Set("User-Agent", "LenedaBridge/"+Version())
	for k, v := range headers {
		h.Set(k, v)
	}
	return &http.Client{
		Transport: &headerTransport{
			transport: http.DefaultTransport,
			headers:   h,
		},
		Timeout: timeout,
	}
}
