package handler

import (
	"fmt"
	"net/http"

	"github.com/microcosm-cc/bluemonday"
)

// errorPolicy strips every tag; upstream error text can echo attacker input.
var errorPolicy = bluemonday.StrictPolicy()

const errorPageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>%[1]d %[2]s</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 40rem; margin: 4rem auto; padding: 0 1rem; color: #222; }
h1 { font-size: 1.5rem; }
code { background: #f4f4f4; padding: 0.1rem 0.3rem; }
button { padding: 0.5rem 1rem; font-size: 1rem; cursor: pointer; }
</style>
</head>
<body>
<h1>Proxy error %[1]d: %[2]s</h1>
<p><code>%[3]s</code></p>
<p>Things to try:</p>
<ul>
<li>Reload the page; the target may have been briefly unavailable.</li>
<li>Check that the target site is reachable directly.</li>
<li>Clear the proxy cache and your cookies for this host.</li>
</ul>
<button onclick="location.reload()">Retry</button>
</body>
</html>
`

func renderErrorPage(status int, message string) string {
	text := http.StatusText(status)
	if text == "" {
		text = "Error"
	}
	return fmt.Sprintf(errorPageTemplate, status, text, errorPolicy.Sanitize(message))
}
