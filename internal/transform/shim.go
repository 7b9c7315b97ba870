package transform

import (
	"strings"
	"text/template"

	"mirror-proxy/internal/rewrite"
)

// shimTemplate keeps navigation and runtime requests on the proxy. Its
// rewriteUrl mirrors Rewriter.ToProxyURL: special schemes pass through and
// absolute URLs on other origins are untouched.
var shimTemplate = template.Must(template.New("shim").Parse(`(function () {
  var TARGET_ORIGIN = "{{js .TargetOrigin}}";
  var PROXY_ORIGIN = "{{js .ProxyOrigin}}";
  var PASSTHROUGH = [{{range $i, $s := .Passthrough}}{{if $i}}, {{end}}"{{js $s}}"{{end}}];

  function rewriteUrl(url) {
    if (url === undefined || url === null) return url;
    if (typeof url !== "string") url = String(url);
    if (url === "") return url;
    var lower = url.trim().toLowerCase();
    for (var i = 0; i < PASSTHROUGH.length; i++) {
      if (lower.indexOf(PASSTHROUGH[i]) === 0) return url;
    }
    if (url.indexOf("//") === 0) url = TARGET_ORIGIN.split("//")[0] + url;
    if (url.indexOf(TARGET_ORIGIN) === 0) return PROXY_ORIGIN + url.slice(TARGET_ORIGIN.length);
    return url;
  }

  var originalFetch = window.fetch;
  if (originalFetch) {
    window.fetch = function (input, init) {
      if (typeof Request !== "undefined" && input instanceof Request) {
        var rewritten = rewriteUrl(input.url);
        if (rewritten !== input.url) input = new Request(rewritten, input);
      } else {
        input = rewriteUrl(input);
      }
      return originalFetch.call(this, input, init);
    };
  }

  var originalOpen = XMLHttpRequest.prototype.open;
  XMLHttpRequest.prototype.open = function (method, url) {
    var args = Array.prototype.slice.call(arguments);
    args[1] = rewriteUrl(url);
    return originalOpen.apply(this, args);
  };

  ["pushState", "replaceState"].forEach(function (name) {
    var original = history[name];
    history[name] = function (state, title, url) {
      if (url !== undefined && url !== null) url = rewriteUrl(String(url));
      return original.call(this, state, title, url);
    };
  });

  function clickedLink(event) {
    return event.target && event.target.closest ? event.target.closest("a[href]") : null;
  }

  // Capture: fix the href so a handler that stops propagation still
  // leaves the browser on the proxy.
  document.addEventListener("click", function (event) {
    var el = clickedLink(event);
    if (!el) return;
    var href = el.getAttribute("href");
    var rewritten = rewriteUrl(href);
    if (rewritten !== href) el.setAttribute("href", rewritten);
  }, true);

  // Bubble: plain left clicks the page did not handle itself navigate
  // explicitly to the rewritten URL.
  document.addEventListener("click", function (event) {
    var el = clickedLink(event);
    if (!el || event.defaultPrevented) return;
    if (event.button !== 0 || event.metaKey || event.ctrlKey || event.shiftKey || event.altKey) return;
    if ((el.target && el.target !== "_self") || el.hasAttribute("download")) return;
    var href = el.getAttribute("href");
    if (!href || href.charAt(0) === "#") return;
    var rewritten = rewriteUrl(el.href);
    if (rewritten.indexOf(PROXY_ORIGIN) !== 0) return;
    event.preventDefault();
    window.location.href = rewritten;
  });
})();`))

type shimData struct {
	TargetOrigin string
	ProxyOrigin  string
	Passthrough  []string
}

func renderShim(rw *rewrite.Rewriter) (string, error) {
	var b strings.Builder
	err := shimTemplate.Execute(&b, shimData{
		TargetOrigin: rw.TargetOrigin(),
		ProxyOrigin:  rw.ProxyOrigin(),
		Passthrough:  rewrite.PassthroughSchemes(),
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

// stealthScript masks the most common automation and headless signals.
const stealthScript = `(function () {
  function define(obj, prop, value) {
    try {
      Object.defineProperty(obj, prop, { get: function () { return value; }, configurable: true });
    } catch (e) {}
  }

  define(navigator, "webdriver", false);
  define(navigator, "languages", ["en-US", "en"]);
  define(navigator, "platform", "Win32");
  define(navigator, "hardwareConcurrency", 8);
  define(navigator, "deviceMemory", 8);
  define(navigator, "plugins", [
    { name: "PDF Viewer", filename: "internal-pdf-viewer", description: "Portable Document Format" },
    { name: "Chrome PDF Viewer", filename: "internal-pdf-viewer", description: "Portable Document Format" },
    { name: "Chromium PDF Viewer", filename: "internal-pdf-viewer", description: "Portable Document Format" }
  ]);

  define(screen, "width", 1920);
  define(screen, "height", 1080);
  define(screen, "availWidth", 1920);
  define(screen, "availHeight", 1040);
  define(screen, "colorDepth", 24);
  define(screen, "pixelDepth", 24);

  if (!window.chrome) {
    window.chrome = { runtime: {}, loadTimes: function () {}, csi: function () {}, app: {} };
  }

  if (window.WebGLRenderingContext) {
    var getParameter = WebGLRenderingContext.prototype.getParameter;
    WebGLRenderingContext.prototype.getParameter = function (p) {
      if (p === 37445) return "Intel Inc.";
      if (p === 37446) return "Intel Iris OpenGL Engine";
      return getParameter.call(this, p);
    };
  }

  if (navigator.permissions && navigator.permissions.query) {
    var query = navigator.permissions.query.bind(navigator.permissions);
    navigator.permissions.query = function (params) {
      if (params && params.name === "notifications") {
        return Promise.resolve({ state: Notification.permission });
      }
      return query(params);
    };
  }

  var threshold = 160;
  setInterval(function () {
    var open = window.outerWidth - window.innerWidth > threshold ||
      window.outerHeight - window.innerHeight > threshold;
    document.documentElement.dataset.devtools = open ? "open" : "closed";
  }, 1000);
})();`
