package fingerprint

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/dunglas/httpsfv"
	"golang.org/x/mod/semver"
)

// Header values a desktop Chrome sends on a top-level navigation.
const (
	AcceptDocument = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7"
	AcceptLanguage = "en-US,en;q=0.9"
	AcceptEncoding = "gzip, deflate, br"
)

// greaseBrand is the placeholder brand Chrome 122 rotates into Sec-CH-UA.
const greaseBrand, greaseVersion = "Not(A:Brand", "24"

var chromeVersionPattern = regexp.MustCompile(`(?:Chrome|Chromium)/(\d+)\.(\d+)\.(\d+)`)

// BrowserHeaders returns the header set a browser with userAgent would send
// for a navigation. hasReferer selects Sec-Fetch-Site: same-origin when the
// request carries a referer, none otherwise. Client hints are only added
// for Chromium user agents.
func BrowserHeaders(userAgent string, hasReferer bool) http.Header {
	h := http.Header{}
	h.Set("User-Agent", userAgent)
	h.Set("Accept", AcceptDocument)
	h.Set("Accept-Language", AcceptLanguage)
	h.Set("Accept-Encoding", AcceptEncoding)
	h.Set("Cache-Control", "no-cache")
	h.Set("Pragma", "no-cache")
	h.Set("Dnt", "1")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-User", "?1")
	if hasReferer {
		h.Set("Sec-Fetch-Site", "same-origin")
	} else {
		h.Set("Sec-Fetch-Site", "none")
	}

	if ua, ok := SecCHUA(userAgent); ok {
		h.Set("Sec-Ch-Ua", ua)
		h.Set("Sec-Ch-Ua-Mobile", "?0")
		if platform, err := httpsfv.Marshal(httpsfv.NewItem(Platform(userAgent))); err == nil {
			h.Set("Sec-Ch-Ua-Platform", platform)
		}
	}
	return h
}

// SecCHUA builds the Sec-CH-UA structured list for a Chromium user agent,
// e.g. "Chromium";v="122", "Not(A:Brand";v="24", "Google Chrome";v="122".
func SecCHUA(userAgent string) (string, bool) {
	major, ok := ChromeMajor(userAgent)
	if !ok {
		return "", false
	}
	list := httpsfv.List{
		brand("Chromium", major),
		brand(greaseBrand, greaseVersion),
		brand("Google Chrome", major),
	}
	out, err := httpsfv.Marshal(list)
	if err != nil {
		return "", false
	}
	return out, true
}

// ChromeMajor extracts the Chrome major version from a user agent string.
// Safari's "AppleWebKit" token does not count; only an explicit Chrome or
// Chromium product token does.
func ChromeMajor(userAgent string) (string, bool) {
	m := chromeVersionPattern.FindStringSubmatch(userAgent)
	if m == nil {
		return "", false
	}
	v := "v" + m[1] + "." + m[2] + "." + m[3]
	if !semver.IsValid(v) {
		return "", false
	}
	return strings.TrimPrefix(semver.Major(v), "v"), true
}

// Platform maps a user agent to its Sec-CH-UA-Platform value.
func Platform(userAgent string) string {
	switch {
	case strings.Contains(userAgent, "Windows"):
		return "Windows"
	case strings.Contains(userAgent, "Macintosh"), strings.Contains(userAgent, "Mac OS X"):
		return "macOS"
	case strings.Contains(userAgent, "Android"):
		return "Android"
	case strings.Contains(userAgent, "Linux"), strings.Contains(userAgent, "X11"):
		return "Linux"
	}
	return "Unknown"
}

func brand(name, version string) httpsfv.Item {
	item := httpsfv.NewItem(name)
	item.Params.Add("v", version)
	return item
}
