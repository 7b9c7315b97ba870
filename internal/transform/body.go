package transform

import (
	"bytes"
	"io"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"

	"mirror-proxy/internal/model"
)

// Process rewrites a decoded upstream response for the page at pageURL.
// HTML, CSS and JavaScript bodies are converted to UTF-8 and rewritten;
// every other type is returned as is. The input is not modified.
func (t *Transformer) Process(resp *model.Response, pageURL string) *model.Response {
	out := resp.Clone()
	if len(out.Body) == 0 {
		return out
	}

	if out.Header.Get("Content-Type") == "" {
		out.Header.Set("Content-Type", mimetype.Detect(out.Body).String())
	}
	mediaType, declared := out.MediaType()

	kind := classify(mediaType)
	if kind == kindOther {
		return out
	}

	text, converted := toUTF8(out.Body, declared)
	if converted {
		out.Header.Set("Content-Type", withUTF8(out.Header.Get("Content-Type")))
	}

	switch kind {
	case kindHTML:
		// A parse failure leaves the original markup in place.
		text, _ = t.RewriteHTML(text, pageURL)
	case kindCSS:
		text = t.rw.RewriteCSS(text, pageURL)
	case kindJS:
		text = t.rw.RewriteJavaScript(text, pageURL)
	}
	out.Body = []byte(text)
	return out
}

type bodyKind int

const (
	kindOther bodyKind = iota
	kindHTML
	kindCSS
	kindJS
)

func classify(mediaType string) bodyKind {
	switch {
	case mediaType == "text/html", mediaType == "application/xhtml+xml":
		return kindHTML
	case mediaType == "text/css":
		return kindCSS
	case strings.Contains(mediaType, "javascript"), strings.Contains(mediaType, "ecmascript"):
		return kindJS
	}
	return kindOther
}

// toUTF8 decodes body using the declared charset label, or a detected one
// when nothing is declared and the bytes are not already UTF-8. It reports
// whether a conversion took place.
func toUTF8(body []byte, declared string) (string, bool) {
	label := strings.ToLower(strings.TrimSpace(declared))
	if label == "" {
		if utf8.Valid(body) {
			return string(body), false
		}
		res, err := chardet.NewTextDetector().DetectBest(body)
		if err != nil {
			return string(body), false
		}
		label = strings.ToLower(res.Charset)
	}
	if label == "utf-8" || label == "utf8" {
		return string(body), false
	}

	r, err := charset.NewReaderLabel(label, bytes.NewReader(body))
	if err != nil {
		return string(body), false
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return string(body), false
	}
	return string(decoded), true
}

// withUTF8 replaces any charset parameter of a Content-Type with utf-8.
func withUTF8(contentType string) string {
	mt, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return contentType
	}
	params["charset"] = "utf-8"
	return mime.FormatMediaType(mt, params)
}
