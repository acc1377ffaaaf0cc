package cmr

import (
	"net/http"
	"net/http/cookiejar"
	"time"
)

// URSHost is the Earthdata Login host that data servers redirect to.
const URSHost = "urs.earthdata.nasa.gov"

// EarthdataTransport adds basic auth to requests bound for the Earthdata
// Login host. Credentials are never sent to the data servers themselves.
type EarthdataTransport struct {
	Username string
	Password string
	// Host defaults to URSHost.
	Host string
	Base http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *EarthdataTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	host := t.Host
	if host == "" {
		host = URSHost
	}
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if req.URL.Hostname() == host && t.Username != "" {
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.Username, t.Password)
	}
	return base.RoundTrip(req)
}

// NewEarthdataClient returns an HTTP client that can follow Earthdata
// download redirects. The cookie jar keeps the session cookie URS issues so
// later downloads skip the login round trip.
func NewEarthdataClient(username, password string, timeout time.Duration) *http.Client {
	jar, _ := cookiejar.New(nil)
	return &http.Client{
		Timeout: timeout,
		Jar:     jar,
		Transport: &EarthdataTransport{
			Username: username,
			Password: password,
		},
	}
}
