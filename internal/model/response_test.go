package model

import (
	"net/http"
	"testing"
)

func TestResponse_IsRedirect(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{200, false},
		{301, true},
		{302, true},
		{303, true},
		{304, false},
		{307, true},
		{308, true},
		{404, false},
	}

	for _, tt := range tests {
		r := &Response{StatusCode: tt.status}
		if got := r.IsRedirect(); got != tt.want {
			t.Errorf("IsRedirect(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestResponse_MediaType(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		wantType    string
		wantCharset string
	}{
		{"empty", "", "", ""},
		{"plain", "text/html", "text/html", ""},
		{"with charset", "text/html; charset=ISO-8859-1", "text/html", "ISO-8859-1"},
		{"uppercase", "Text/CSS", "text/css", ""},
		{"malformed params", "application/javascript; ;;", "application/javascript", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Response{Header: http.Header{}}
			if tt.contentType != "" {
				r.Header.Set("Content-Type", tt.contentType)
			}
			mt, cs := r.MediaType()
			if mt != tt.wantType {
				t.Errorf("media type = %q, want %q", mt, tt.wantType)
			}
			if cs != tt.wantCharset {
				t.Errorf("charset = %q, want %q", cs, tt.wantCharset)
			}
		})
	}
}

func TestResponse_Clone(t *testing.T) {
	orig := &Response{
		StatusCode: 200,
		Header:     http.Header{"X-Test": {"a"}},
		Body:       []byte("hello"),
	}
	c := orig.Clone()
	c.Body[0] = 'j'
	c.Header.Set("X-Test", "b")

	if string(orig.Body) != "hello" {
		t.Errorf("original body mutated: %q", orig.Body)
	}
	if orig.Header.Get("X-Test") != "a" {
		t.Errorf("original header mutated: %q", orig.Header.Get("X-Test"))
	}
}
