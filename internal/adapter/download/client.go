package download

import (
	"net"
	"net/http"
	"time"
)

// NewHTTPClient returns a client whose dial and TLS handshake are bounded by
// connectTimeout. Overall request time is bounded per attempt by the caller's
// context, so the client itself carries no Timeout.
func NewHTTPClient(connectTimeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          16,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   connectTimeout,
			ResponseHeaderTimeout: connectTimeout,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}
