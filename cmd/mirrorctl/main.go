// mirrorctl is a CLI tool for inspecting a running mirror proxy.
// Each command performs a single operation, making it composable for scripts.
//
// Commands:
//
//	mirrorctl status -proxy URL
//	mirrorctl clear-cache -proxy URL
//	mirrorctl leaks -proxy URL -target HOST [-path /page]
//
// Examples:
//
//	mirrorctl status -proxy http://localhost:3000
//	mirrorctl leaks -proxy http://localhost:3000 -target example.com -path /blog
//	mirrorctl leaks -proxy http://localhost:3000 -target example.com -q | wc -l
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

var client = &http.Client{
	Timeout: 30 * time.Second,
	// Redirects are part of what leaks reports on.
	CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
}

// Global flags (apply to all commands)
var (
	proxyURL string
	quiet    bool
	noColor  bool
	verbose  bool
)

// ANSI color codes
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		disableColors()
	}
}

func disableColors() {
	colorReset, colorRed, colorGreen, colorYellow = "", "", "", ""
	colorCyan, colorGray, colorBold = "", "", ""
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "status":
		runStatus(args)
	case "clear-cache":
		runClearCache(args)
	case "leaks":
		runLeaks(args)
	case "-h", "-help", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `mirrorctl - mirror proxy inspection tool

Usage:
  mirrorctl <command> [options]

Commands:
  status       Show proxy health, cache and session counts
  clear-cache  Drop every cached response
  leaks        Fetch a page through the proxy and list references
               that still point at the target host

Examples:
  mirrorctl status -proxy http://localhost:3000
  mirrorctl leaks -proxy http://localhost:3000 -target example.com -path /blog

Run 'mirrorctl <command> -h' for command-specific options.
`)
}

func commonFlags(fs *flag.FlagSet) {
	fs.StringVar(&proxyURL, "proxy", "http://localhost:3000", "Mirror proxy base URL")
	fs.BoolVar(&quiet, "q", false, "Quiet mode - minimal output")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Verbose - show full response bodies")
}

func parseFlags(fs *flag.FlagSet, args []string) {
	fs.Parse(args)
	if noColor {
		disableColors()
	}
	proxyURL = strings.TrimSuffix(proxyURL, "/")
}

// =============================================================================
// STATUS COMMAND
// =============================================================================

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	commonFlags(fs)
	parseFlags(fs, args)

	resp, err := doJSON(http.MethodGet, "/_health")
	if err != nil {
		fatal("Failed to get status: %v", err)
	}

	status, _ := resp["status"].(string)
	if quiet {
		fmt.Println(status)
		return
	}

	printSuccess("Proxy is %s", status)
	fmt.Printf("  Target:   %s%v%s\n", colorCyan, resp["target_url"], colorReset)
	fmt.Printf("  Proxy:    %s%v%s\n", colorCyan, resp["proxy_url"], colorReset)
	fmt.Printf("  Sessions: %v\n", resp["sessions"])
	if c, ok := resp["cache"].(map[string]interface{}); ok {
		fmt.Printf("  Cache:    enabled=%v entries=%v capacity=%v ttl=%vs\n",
			c["enabled"], c["entries"], c["capacity"], c["ttl_seconds"])
	}
	if s, ok := resp["strategies"].([]interface{}); ok {
		names := make([]string, 0, len(s))
		for _, n := range s {
			names = append(names, fmt.Sprint(n))
		}
		fmt.Printf("  Strategies: %s\n", strings.Join(names, " → "))
	}
}

// =============================================================================
// CLEAR-CACHE COMMAND
// =============================================================================

func runClearCache(args []string) {
	fs := flag.NewFlagSet("clear-cache", flag.ExitOnError)
	commonFlags(fs)
	parseFlags(fs, args)

	resp, err := doJSON(http.MethodPost, "/_cache/clear")
	if err != nil {
		fatal("Failed to clear cache: %v", err)
	}
	msg, _ := resp["message"].(string)
	printSuccess("%s", msg)
}

// =============================================================================
// LEAKS COMMAND
// =============================================================================

func runLeaks(args []string) {
	fs := flag.NewFlagSet("leaks", flag.ExitOnError)
	commonFlags(fs)
	var target, path string
	fs.StringVar(&target, "target", "", "Target host to look for, e.g. example.com (required)")
	fs.StringVar(&path, "path", "/", "Page path to fetch through the proxy")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: mirrorctl leaks -target HOST [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	parseFlags(fs, args)

	if target == "" {
		fs.Usage()
		os.Exit(1)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	if !quiet {
		printRequest(http.MethodGet, path)
	}
	start := time.Now()
	resp, err := client.Get(proxyURL + path)
	if err != nil {
		fatal("Request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fatal("Reading response: %v", err)
	}
	if !quiet {
		printResponse(resp.StatusCode, time.Since(start))
	}

	leaks := headerLeaks(resp.Header, target)
	if strings.Contains(resp.Header.Get("Content-Type"), "html") {
		found, err := findLeaks(bytes.NewReader(body), target)
		if err != nil {
			fatal("Parsing HTML: %v", err)
		}
		leaks = append(leaks, found...)
	}

	if quiet {
		for _, l := range leaks {
			fmt.Println(l.Value)
		}
	} else {
		printLeaks(leaks)
	}
	if len(leaks) > 0 {
		os.Exit(2)
	}
}

// leak is a reference that still points at the target host after rewriting.
type leak struct {
	Where string // element and attribute, or response header name
	Value string
}

// leakAttrs lists the attributes the proxy rewrites. Anything left here
// that resolves to the target host bypasses the proxy.
var leakAttrs = []struct{ selector, attr string }{
	{"a[href]", "href"},
	{"link[href]", "href"},
	{"[src]", "src"},
	{"form[action]", "action"},
	{"video[poster]", "poster"},
	{"[data-src]", "data-src"},
	{"[data-href]", "data-href"},
	{"[data-url]", "data-url"},
	{"base[href]", "href"},
}

// findLeaks parses an HTML document and returns every rewritten attribute,
// srcset candidate or meta refresh that still names targetHost.
func findLeaks(r io.Reader, targetHost string) ([]leak, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	var leaks []leak
	for _, la := range leakAttrs {
		doc.Find(la.selector).Each(func(_ int, s *goquery.Selection) {
			v, _ := s.Attr(la.attr)
			if pointsAt(v, targetHost) {
				leaks = append(leaks, leak{Where: goquery.NodeName(s) + "[" + la.attr + "]", Value: v})
			}
		})
	}

	doc.Find("[srcset]").Each(func(_ int, s *goquery.Selection) {
		v, _ := s.Attr("srcset")
		for _, candidate := range strings.Split(v, ",") {
			fields := strings.Fields(candidate)
			if len(fields) > 0 && pointsAt(fields[0], targetHost) {
				leaks = append(leaks, leak{Where: goquery.NodeName(s) + "[srcset]", Value: fields[0]})
			}
		}
	})

	doc.Find(`meta[http-equiv]`).Each(func(_ int, s *goquery.Selection) {
		equiv, _ := s.Attr("http-equiv")
		if !strings.EqualFold(equiv, "refresh") {
			return
		}
		content, _ := s.Attr("content")
		if _, after, ok := strings.Cut(strings.ToLower(content), "url="); ok {
			if pointsAt(strings.Trim(after, `'" `), targetHost) {
				leaks = append(leaks, leak{Where: "meta[refresh]", Value: content})
			}
		}
	})

	return leaks, nil
}

// headerLeaks reports Location and Set-Cookie values that name targetHost.
func headerLeaks(h http.Header, targetHost string) []leak {
	var leaks []leak
	if loc := h.Get("Location"); pointsAt(loc, targetHost) {
		leaks = append(leaks, leak{Where: "Location", Value: loc})
	}
	for _, sc := range h.Values("Set-Cookie") {
		for _, part := range strings.Split(sc, ";") {
			k, v, _ := strings.Cut(strings.TrimSpace(part), "=")
			if strings.EqualFold(k, "domain") && strings.EqualFold(strings.TrimPrefix(v, "."), targetHost) {
				leaks = append(leaks, leak{Where: "Set-Cookie", Value: sc})
			}
		}
	}
	return leaks
}

// pointsAt reports whether ref is an absolute or protocol-relative URL
// whose host is targetHost.
func pointsAt(ref, targetHost string) bool {
	ref = strings.TrimSpace(ref)
	if !strings.HasPrefix(ref, "//") && !strings.Contains(ref, "://") {
		return false
	}
	if strings.HasPrefix(ref, "//") {
		ref = "http:" + ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Hostname(), targetHost)
}

// =============================================================================
// HTTP HELPERS
// =============================================================================

func doJSON(method, path string) (map[string]interface{}, error) {
	req, err := http.NewRequest(method, proxyURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	if !quiet {
		printRequest(method, path)
	}

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if !quiet {
		printResponse(resp.StatusCode, duration)
		if verbose {
			printJSON(respBody, "  ")
		}
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var result map[string]interface{}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return result, nil
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

func printRequest(method, path string) {
	fmt.Printf("\n%s▶ REQUEST%s %s%s %s%s\n", colorYellow, colorReset, colorBold, method, path, colorReset)
}

func printResponse(status int, duration time.Duration) {
	statusColor := colorGreen
	if status >= 400 {
		statusColor = colorRed
	}
	fmt.Printf("%s◀ RESPONSE%s %s%d%s (%v)\n\n", colorCyan, colorReset, statusColor, status, colorReset, duration)
}

func printJSON(data []byte, prefix string) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, prefix, "  "); err != nil {
		fmt.Printf("%s%s\n", prefix, string(data))
		return
	}
	fmt.Println(pretty.String())
}

func printLeaks(leaks []leak) {
	if len(leaks) == 0 {
		printSuccess("No references to the target host")
		return
	}
	printWarning("%d reference(s) bypass the proxy", len(leaks))
	for _, l := range leaks {
		fmt.Printf("  %s%-16s%s %s\n", colorGray, l.Where, colorReset, l.Value)
	}
}

func printSuccess(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf("%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
	}
}

func printWarning(format string, args ...interface{}) {
	fmt.Printf("%s⚠ %s%s\n", colorYellow, fmt.Sprintf(format, args...), colorReset)
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	os.Exit(1)
}
