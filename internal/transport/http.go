package transport

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// maxHTTPRedirects limits redirects followed by delegated HTTP fetches.
const maxHTTPRedirects = 10

// NewHTTPClient creates an HTTP client whose connections go through d.
// Certificates are verified against the system roots.
func NewHTTPClient(d Dialer, timeout time.Duration) *http.Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return d.DialContext(ctx, network, addr)
		},
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxHTTPRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}
