// Package transform rewrites upstream documents so every same-origin
// reference points back at the proxy.
package transform

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"mirror-proxy/internal/rewrite"
)

// metaRefreshPattern splits "5; url=/next" into delay, quote, URL, quote.
var metaRefreshPattern = regexp.MustCompile(`(?i)^(\s*\d+\s*;\s*url\s*=\s*)(['"]?)(.+?)(['"]?)\s*$`)

// dataURLAttrs hold lazy-loading URLs used by common front-end libraries.
var dataURLAttrs = []string{"data-src", "data-href", "data-url"}

// Options configures a Transformer.
type Options struct {
	// Stealth appends the navigator/WebGL overrides after the client shim.
	Stealth bool
}

// Transformer rewrites HTML, CSS and JavaScript bodies through a Rewriter.
type Transformer struct {
	rw      *rewrite.Rewriter
	opts    Options
	shim    string
	stealth string
}

// New renders the client scripts once for rw's origins.
func New(rw *rewrite.Rewriter, opts Options) (*Transformer, error) {
	shim, err := renderShim(rw)
	if err != nil {
		return nil, fmt.Errorf("render shim: %w", err)
	}
	t := &Transformer{rw: rw, opts: opts, shim: shim}
	if opts.Stealth {
		t.stealth = stealthScript
	}
	return t, nil
}

// Shim returns the rendered client shim script body.
func (t *Transformer) Shim() string { return t.shim }

// RewriteHTML rewrites a document served at pageURL. On a parse failure the
// input is returned unchanged together with the error.
func (t *Transformer) RewriteHTML(src, pageURL string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return src, fmt.Errorf("parse html: %w", err)
	}

	head := doc.Find("head").First()
	t.ensureBase(head)

	t.rewriteAttr(doc, "a[href]", "href", pageURL)
	t.rewriteAttr(doc, "[src]", "src", pageURL)
	t.rewriteAttr(doc, "form[action]", "action", pageURL)
	t.rewriteAttr(doc, "link[href]", "href", pageURL)
	t.rewriteAttr(doc, "video[poster]", "poster", pageURL)
	for _, attr := range dataURLAttrs {
		t.rewriteAttr(doc, "["+attr+"]", attr, pageURL)
	}

	doc.Find("[srcset]").Each(func(_ int, s *goquery.Selection) {
		v, _ := s.Attr("srcset")
		s.SetAttr("srcset", t.rw.RewriteSrcset(v, pageURL))
	})
	doc.Find(`[style*="url("]`).Each(func(_ int, s *goquery.Selection) {
		v, _ := s.Attr("style")
		s.SetAttr("style", t.rw.RewriteCSS(v, pageURL))
	})
	doc.Find("style").Each(func(_ int, s *goquery.Selection) {
		setRawText(s, t.rw.RewriteCSS(s.Text(), pageURL))
	})
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if _, external := s.Attr("src"); external || !isJavaScriptType(s.AttrOr("type", "")) {
			return
		}
		setRawText(s, t.rw.RewriteJavaScript(s.Text(), pageURL))
	})

	doc.Find("form").Each(func(_ int, s *goquery.Selection) {
		if _, ok := s.Attr("action"); !ok {
			s.SetAttr("action", t.rw.ToProxyURL(pageURL, pageURL))
		}
	})

	doc.Find("meta[http-equiv]").Each(func(_ int, s *goquery.Selection) {
		if !strings.EqualFold(s.AttrOr("http-equiv", ""), "refresh") {
			return
		}
		if content, ok := s.Attr("content"); ok {
			s.SetAttr("content", t.rewriteRefresh(content, pageURL))
		}
	})

	head.AppendHtml("<script>" + t.shim + "</script>")
	if t.stealth != "" {
		head.AppendHtml("<script>" + t.stealth + "</script>")
	}

	out, err := doc.Html()
	if err != nil {
		return src, fmt.Errorf("render html: %w", err)
	}
	return out, nil
}

// ensureBase anchors relative URLs at the proxy origin. An existing <base>
// is pointed at the proxy instead of duplicated.
func (t *Transformer) ensureBase(head *goquery.Selection) {
	if base := head.Find("base[href]").First(); base.Length() > 0 {
		href, _ := base.Attr("href")
		base.SetAttr("href", t.rw.ToProxyURL(href, t.rw.TargetOrigin()+"/"))
		return
	}
	head.PrependHtml(t.rw.BaseTag())
}

func (t *Transformer) rewriteAttr(doc *goquery.Document, selector, attr, pageURL string) {
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		v, ok := s.Attr(attr)
		if !ok {
			return
		}
		ref := strings.TrimSpace(v)
		if strings.HasPrefix(ref, "#") {
			// Under <base> a bare fragment would jump to the proxy root.
			ref = stripFragment(pageURL) + ref
		}
		s.SetAttr(attr, t.rw.ToProxyURL(ref, pageURL))
	})
}

func (t *Transformer) rewriteRefresh(content, pageURL string) string {
	m := metaRefreshPattern.FindStringSubmatch(content)
	if m == nil {
		return content
	}
	return m[1] + m[2] + t.rw.ToProxyURL(m[3], pageURL) + m[4]
}

// setRawText replaces s's children with an unescaped text node. goquery's
// SetText would escape quotes and angle brackets inside raw-text elements.
func setRawText(s *goquery.Selection, text string) {
	for _, n := range s.Nodes {
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			n.RemoveChild(c)
			c = next
		}
		n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
}

func isJavaScriptType(typ string) bool {
	typ = strings.ToLower(strings.TrimSpace(typ))
	switch typ {
	case "", "module", "text/javascript", "application/javascript", "text/ecmascript", "application/ecmascript":
		return true
	}
	return false
}

func stripFragment(u string) string {
	if i := strings.IndexByte(u, '#'); i >= 0 {
		return u[:i]
	}
	return u
}
