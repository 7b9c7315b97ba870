package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mirror-proxy/internal/fingerprint"
)

func newFingerprintClient() *http.Client {
	return &http.Client{
		Transport: NewFingerprint(FingerprintOptions{
			Profile:            fingerprint.Chrome(),
			Timeout:            5 * time.Second,
			InsecureSkipVerify: true,
		}),
		Timeout: 10 * time.Second,
	}
}

func TestFingerprint_HTTP2(t *testing.T) {
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Proto", r.Proto)
		io.WriteString(w, "hello over "+r.Proto)
	}))
	srv.EnableHTTP2 = true
	srv.StartTLS()
	defer srv.Close()

	resp, err := newFingerprintClient().Get(srv.URL + "/path")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.Header.Get("X-Proto") != "HTTP/2.0" {
		t.Errorf("server saw %q, want HTTP/2.0", resp.Header.Get("X-Proto"))
	}
	if string(body) != "hello over HTTP/2.0" {
		t.Errorf("body = %q", body)
	}
}

func TestFingerprint_HTTP1OverTLS(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, r.Proto+" "+r.URL.RequestURI())
	}))
	defer srv.Close()

	resp, err := newFingerprintClient().Get(srv.URL + "/a?b=1")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "HTTP/1.1 /a?b=1" {
		t.Errorf("body = %q, want %q", body, "HTTP/1.1 /a?b=1")
	}
}

func TestFingerprint_PlainHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		io.WriteString(w, r.Method)
	}))
	defer srv.Close()

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodPost, srv.URL, nil)
	resp, err := newFingerprintClient().Do(req)
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusTeapot || string(body) != "POST" {
		t.Errorf("got %d %q, want 418 POST", resp.StatusCode, body)
	}
}

func TestFingerprint_DialError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if _, err := newFingerprintClient().Get(url); err == nil {
		t.Error("expected dial error against closed server")
	}
}

func TestPooledTransports(t *testing.T) {
	p := NewPooled(5 * time.Second)
	if p.MaxConnsPerHost != 100 || p.ForceAttemptHTTP2 || !p.DisableCompression {
		t.Errorf("NewPooled() = %+v", p)
	}
	h2 := NewHTTP2(5 * time.Second)
	if !h2.ForceAttemptHTTP2 {
		t.Error("NewHTTP2() should attempt HTTP/2")
	}
	if ka := NewKeepAlive(5 * time.Second); !ka.DisableCompression {
		t.Error("NewKeepAlive() should leave bodies encoded")
	}
}
