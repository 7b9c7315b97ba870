package transform

import (
	"bytes"
	"net/http"
	"strings"
	"testing"

	"mirror-proxy/internal/model"
)

func response(contentType string, body []byte) *model.Response {
	h := http.Header{}
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return &model.Response{StatusCode: http.StatusOK, Header: h, Body: body}
}

func TestProcess(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		contains    string
	}{
		{"html", "text/html; charset=utf-8", `<a href="/x">x</a>`, `href="http://localhost:3000/x"`},
		{"xhtml", "application/xhtml+xml", `<a href="/x">x</a>`, `href="http://localhost:3000/x"`},
		{"css", "text/css", `body { background: url(/bg.png) }`, `url('http://localhost:3000/bg.png')`},
		{"javascript", "application/javascript", `fetch("/api")`, `fetch("http://localhost:3000/api")`},
		{"legacy javascript", "text/ecmascript", `fetch("/api")`, `fetch("http://localhost:3000/api")`},
		{"json untouched", "application/json", `{"url":"/api"}`, `{"url":"/api"}`},
		{"plain text untouched", "text/plain", `fetch("/api")`, `fetch("/api")`},
	}

	tr := newTestTransformer(t, Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tr.Process(response(tt.contentType, []byte(tt.body)), pageURL)
			if !strings.Contains(string(got.Body), tt.contains) {
				t.Errorf("Process() body = %q, want it to contain %q", got.Body, tt.contains)
			}
		})
	}
}

func TestProcess_SniffsMissingContentType(t *testing.T) {
	tr := newTestTransformer(t, Options{})
	got := tr.Process(response("", []byte(`<!DOCTYPE html><html><body><a href="/p">p</a></body></html>`)), pageURL)

	if ct := got.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want sniffed text/html", ct)
	}
	if !strings.Contains(string(got.Body), "http://localhost:3000/p") {
		t.Errorf("sniffed html not rewritten: %q", got.Body)
	}
}

func TestProcess_ConvertsDeclaredCharset(t *testing.T) {
	tr := newTestTransformer(t, Options{})
	body := []byte("<p>caf\xe9</p>")
	got := tr.Process(response("text/html; charset=ISO-8859-1", body), pageURL)

	if !strings.Contains(string(got.Body), "café") {
		t.Errorf("body = %q, want latin-1 decoded to UTF-8", got.Body)
	}
	if ct := got.Header.Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q, want text/html; charset=utf-8", ct)
	}
}

func TestProcess_LeavesBinaryAndInputAlone(t *testing.T) {
	tr := newTestTransformer(t, Options{})
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	in := response("image/png", png)

	got := tr.Process(in, pageURL)
	if !bytes.Equal(got.Body, png) {
		t.Error("binary body modified")
	}

	html := response("text/html", []byte(`<a href="/x">x</a>`))
	tr.Process(html, pageURL)
	if string(html.Body) != `<a href="/x">x</a>` {
		t.Errorf("input response mutated: %q", html.Body)
	}
}

func TestProcess_EmptyBody(t *testing.T) {
	tr := newTestTransformer(t, Options{})
	got := tr.Process(&model.Response{StatusCode: http.StatusNoContent}, pageURL)
	if got.StatusCode != http.StatusNoContent || len(got.Body) != 0 {
		t.Errorf("Process() = %d %q, want untouched 204", got.StatusCode, got.Body)
	}
}
