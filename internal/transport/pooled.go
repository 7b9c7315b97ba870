package transport

import (
	"net"
	"net/http"
	"time"
)

// NewPooled returns an HTTP/1.1 transport tuned for many keep-alive
// connections to a single upstream.
func NewPooled(timeout time.Duration) *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		MaxConnsPerHost:       100,
		IdleConnTimeout:       60 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     false,
		// Accept-Encoding is set explicitly and bodies are decoded by the
		// dispatcher, so the transport must leave them alone.
		DisableCompression: true,
	}
}

// NewHTTP2 returns a transport that negotiates HTTP/2 when the upstream
// offers it.
func NewHTTP2(timeout time.Duration) *http.Transport {
	t := NewPooled(timeout)
	t.ForceAttemptHTTP2 = true
	t.MaxConnsPerHost = 0
	return t
}

// NewKeepAlive returns a small transport with an explicit keep-alive
// dialer, used by the last-resort strategy.
func NewKeepAlive(timeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 15 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DisableCompression:  true,
	}
}
