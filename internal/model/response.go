package model

import (
	"mime"
	"net/http"
	"strings"
)

// Response is an upstream response after the dispatcher has read the body
// fully and removed any content encoding it understands.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// IsRedirect reports whether the status is one the proxy replays as a redirect.
func (r *Response) IsRedirect() bool {
	switch r.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// MediaType returns the lowercased media type of the Content-Type header
// and its charset parameter, if any.
func (r *Response) MediaType() (mediaType, charset string) {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return "", ""
	}
	mt, params, err := mime.ParseMediaType(ct)
	if err != nil {
		// Fall back to the part before the first parameter.
		mt, _, _ = strings.Cut(ct, ";")
		return strings.ToLower(strings.TrimSpace(mt)), ""
	}
	return mt, params["charset"]
}

// Clone returns a deep copy safe to hand to another goroutine.
func (r *Response) Clone() *Response {
	body := make([]byte, len(r.Body))
	copy(body, r.Body)
	header := r.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	return &Response{
		StatusCode: r.StatusCode,
		Header:     header,
		Body:       body,
	}
}
