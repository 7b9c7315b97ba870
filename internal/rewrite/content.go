package rewrite

import (
	"regexp"
	"strings"
)

var (
	cssURLPattern = regexp.MustCompile(`url\(\s*(['"]?)([^'")\s]+)(['"]?)\s*\)`)

	// Call sites whose first argument is a request URL. The receiver list is
	// kept narrow so unrelated .get('key') calls on maps are left alone.
	jsCallPattern = regexp.MustCompile(
		`((?:\bfetch|\baxios\.(?:get|post|put|patch|delete)|\$\.(?:get|post|ajax)|\bjQuery\.(?:get|post|ajax)|\.ajax)\(\s*)(?:'([^'\n]*)'|"([^"\n]*)")`)
	jsLocationPattern = regexp.MustCompile(
		`(\blocation\.href\s*=\s*)(?:'([^'\n]*)'|"([^"\n]*)")`)
)

// RewriteCSS rewrites every url(...) in a stylesheet. Quoted arguments keep
// their quote; unquoted ones are emitted single-quoted. Arguments that do not
// change (cross-origin, data:) are left byte-for-byte as they were.
func (r *Rewriter) RewriteCSS(css, base string) string {
	if !strings.Contains(css, "url(") {
		return css
	}
	return cssURLPattern.ReplaceAllStringFunc(css, func(match string) string {
		m := cssURLPattern.FindStringSubmatch(match)
		open, ref, closing := m[1], m[2], m[3]
		if open != closing {
			return match
		}
		rewritten := r.ToProxyURL(ref, base)
		if rewritten == ref {
			return match
		}
		q := open
		if q == "" {
			q = "'"
		}
		return "url(" + q + rewritten + q + ")"
	})
}

// RewriteJavaScript rewrites string-literal URLs at known request call sites
// and location.href assignments. Anything else in the script is untouched.
func (r *Rewriter) RewriteJavaScript(js, base string) string {
	js = rewriteQuoted(jsCallPattern, js, func(ref string) string { return r.ToProxyURL(ref, base) })
	return rewriteQuoted(jsLocationPattern, js, func(ref string) string { return r.ToProxyURL(ref, base) })
}

// rewriteQuoted applies fn to the quoted literal of a pattern with groups
// (prefix, single-quoted, double-quoted), keeping the original quote.
func rewriteQuoted(re *regexp.Regexp, src string, fn func(string) string) string {
	return re.ReplaceAllStringFunc(src, func(match string) string {
		m := re.FindStringSubmatch(match)
		prefix, single, double := m[1], m[2], m[3]
		q, ref := "'", single
		if strings.HasSuffix(match, `"`) {
			q, ref = `"`, double
		}
		if ref == "" {
			return match
		}
		rewritten := fn(ref)
		if rewritten == ref || strings.Contains(rewritten, q) {
			return match
		}
		return prefix + q + rewritten + q
	})
}

// RewriteSrcset rewrites each candidate URL of a srcset attribute and
// re-joins the candidates with ", ".
func (r *Rewriter) RewriteSrcset(srcset, base string) string {
	candidates := splitSrcset(srcset)
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ref := r.ToProxyURL(c.url, base)
		if c.descriptor != "" {
			ref += " " + c.descriptor
		}
		out = append(out, ref)
	}
	return strings.Join(out, ", ")
}

type srcsetCandidate struct {
	url        string
	descriptor string
}

// splitSrcset parses a srcset the way browsers do: the URL runs up to the
// next whitespace, so commas inside it (data: payloads) stay put. Only a
// comma after the descriptor, or trailing the URL itself, separates
// candidates.
func splitSrcset(s string) []srcsetCandidate {
	var out []srcsetCandidate
	i := 0
	for {
		for i < len(s) && (isSrcsetSpace(s[i]) || s[i] == ',') {
			i++
		}
		if i >= len(s) {
			return out
		}

		start := i
		for i < len(s) && !isSrcsetSpace(s[i]) {
			i++
		}
		url := s[start:i]
		if strings.HasSuffix(url, ",") {
			out = append(out, srcsetCandidate{url: strings.TrimRight(url, ",")})
			continue
		}

		start = i
		depth := 0
	descriptor:
		for ; i < len(s); i++ {
			switch s[i] {
			case '(':
				depth++
			case ')':
				if depth > 0 {
					depth--
				}
			case ',':
				if depth == 0 {
					break descriptor
				}
			}
		}
		out = append(out, srcsetCandidate{
			url:        url,
			descriptor: strings.Join(strings.Fields(s[start:i]), " "),
		})
	}
}

func isSrcsetSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

// RewriteSetCookie adapts an upstream Set-Cookie value for the proxy origin:
// the Domain attribute is dropped so the cookie binds to the proxy host,
// Secure is dropped when the proxy runs over plain http, and SameSite is
// forced to Lax.
func (r *Rewriter) RewriteSetCookie(value string) string {
	parts := strings.Split(value, ";")
	out := make([]string, 0, len(parts))
	for i, part := range parts {
		p := strings.TrimSpace(part)
		if p == "" {
			continue
		}
		if i == 0 {
			out = append(out, p)
			continue
		}
		lower := strings.ToLower(p)
		switch {
		case strings.HasPrefix(lower, "domain="):
			continue
		case lower == "secure" && r.proxy.Scheme == "http":
			continue
		case strings.HasPrefix(lower, "samesite"):
			out = append(out, "SameSite=Lax")
		default:
			out = append(out, p)
		}
	}
	return strings.Join(out, "; ")
}
