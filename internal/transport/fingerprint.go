// Package transport provides the upstream round trippers the dispatcher's
// strategies are built on.
package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"

	"mirror-proxy/internal/fingerprint"
)

// =============================================================================
// FINGERPRINTED TRANSPORT
// =============================================================================
//
// Go's crypto/tls ClientHello is trivially distinguishable from a browser's,
// and bot-protection fronts reject it before a request is ever seen.
//
// This transport dials every request on a fresh connection:
//
//   1. uTLS with HelloCustom, applying the profile's ClientHelloSpec so cipher,
//      extension and curve order match the browser byte for byte
//   2. ALPN decides the framing: "h2" hands the conn to an http2.ClientConn
//      configured from the profile's SETTINGS, anything else speaks HTTP/1.1
//      on the same conn
//   3. The response body owns the conn and closes it on Close
//
// x/net/http2 fixes INITIAL_WINDOW_SIZE, MAX_CONCURRENT_STREAMS and the
// pseudo-header order for client connections; those profile values are
// advertised only where the library exposes a knob.
//
// =============================================================================

// FingerprintOptions configures NewFingerprint.
type FingerprintOptions struct {
	Profile *fingerprint.Profile
	Timeout time.Duration

	// InsecureSkipVerify disables certificate checks. Tests only.
	InsecureSkipVerify bool
}

// NewFingerprint returns a RoundTripper that presents opts.Profile on the
// wire. Plain http:// URLs are sent without TLS over a direct HTTP/1.1 conn.
func NewFingerprint(opts FingerprintOptions) http.RoundTripper {
	if opts.Profile == nil {
		opts.Profile = fingerprint.Chrome()
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	s := opts.Profile.HTTP2
	return &fingerprintTransport{
		opts:   opts,
		dialer: &net.Dialer{Timeout: opts.Timeout, KeepAlive: 30 * time.Second},
		h2: &http2.Transport{
			MaxDecoderHeaderTableSize: s.HeaderTableSize,
			MaxReadFrameSize:          s.MaxFrameSize,
			MaxHeaderListSize:         s.MaxHeaderListSize,
			DisableCompression:        true,
			ReadIdleTimeout:           opts.Timeout,
		},
	}
}

type fingerprintTransport struct {
	opts   FingerprintOptions
	dialer *net.Dialer
	h2     *http2.Transport
}

// RoundTrip implements http.RoundTripper.
func (t *fingerprintTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	addr := canonicalAddr(req)

	if req.URL.Scheme == "http" {
		conn, err := t.dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("dial: %w", err)
		}
		return roundTripHTTP1(conn, req)
	}

	uconn, err := t.dialTLS(ctx, addr, req.URL.Hostname())
	if err != nil {
		return nil, err
	}

	if uconn.ConnectionState().NegotiatedProtocol == http2.NextProtoTLS {
		cc, err := t.h2.NewClientConn(uconn)
		if err != nil {
			uconn.Close()
			return nil, fmt.Errorf("h2 client conn: %w", err)
		}
		resp, err := cc.RoundTrip(req)
		if err != nil {
			cc.Close()
			return nil, fmt.Errorf("h2 round trip: %w", err)
		}
		resp.Body = &connClosingBody{ReadCloser: resp.Body, close: cc.Close}
		return resp, nil
	}
	return roundTripHTTP1(uconn, req)
}

// dialTLS connects and completes a handshake using the profile's spec.
func (t *fingerprintTransport) dialTLS(ctx context.Context, addr, serverName string) (*utls.UConn, error) {
	conn, err := t.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	uconn := utls.UClient(conn, &utls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: t.opts.InsecureSkipVerify,
	}, utls.HelloCustom)

	if err := uconn.ApplyPreset(t.opts.Profile.ClientHelloSpec()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("apply client hello: %w", err)
	}
	if err := uconn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}
	return uconn, nil
}

// roundTripHTTP1 writes req on conn and reads one response. The returned
// body closes conn.
func roundTripHTTP1(conn net.Conn, req *http.Request) (*http.Response, error) {
	if deadline, ok := req.Context().Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	if err := req.Write(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("write request: %w", err)
	}
	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read response: %w", err)
	}
	resp.Body = &connClosingBody{ReadCloser: resp.Body, close: conn.Close}
	return resp, nil
}

type connClosingBody struct {
	io.ReadCloser
	close func() error
}

func (b *connClosingBody) Close() error {
	err := b.ReadCloser.Close()
	if cerr := b.close(); err == nil {
		err = cerr
	}
	return err
}

func canonicalAddr(req *http.Request) string {
	host := req.URL.Hostname()
	port := req.URL.Port()
	if port == "" {
		port = "443"
		if req.URL.Scheme == "http" {
			port = "80"
		}
	}
	return net.JoinHostPort(host, port)
}
