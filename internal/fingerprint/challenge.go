package fingerprint

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ChallengeDelay is how long the interstitial expects a browser to wait
// before submitting its answer.
const ChallengeDelay = 4 * time.Second

var challengeMarkers = []string{
	"cf-browser-verification",
	"Checking your browser",
	"cf-challenge",
	"jschl-answer",
}

// IsChallengePage reports whether body looks like a bot-check interstitial.
func IsChallengePage(body string) bool {
	for _, m := range challengeMarkers {
		if strings.Contains(body, m) {
			return true
		}
	}
	return strings.Contains(body, "Cloudflare") && strings.Contains(body, "Ray ID")
}

var (
	jschlVCPattern = regexp.MustCompile(`name="jschl_vc" value="([^"]+)"`)
	passPattern    = regexp.MustCompile(`name="pass" value="([^"]+)"`)
	rPattern       = regexp.MustCompile(`name="r" value="([^"]+)"`)
	delayedPattern = regexp.MustCompile(`setTimeout\(function\(\)\{([\s\S]+?)\},\s*4000\)`)
	assignPattern  = regexp.MustCompile(`a\.value\s*=\s*([\d.+\-*/()\s]+)`)
)

// Solver answers arithmetic interstitials.
type Solver struct {
	// Delay is waited before the answer URL is returned. Zero means
	// ChallengeDelay; a negative value disables waiting (tests).
	Delay  time.Duration
	Logger *slog.Logger
}

// Solve extracts the challenge from body served for rawURL and returns the
// resubmission URL. It reports false when any required piece is missing,
// the arithmetic contains anything but numbers and operators, or ctx ends
// during the wait. It never returns an error.
func (s *Solver) Solve(ctx context.Context, body, rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", false
	}

	vc := firstGroup(jschlVCPattern, body)
	pass := firstGroup(passPattern, body)
	if vc == "" || pass == "" {
		s.debug("challenge missing form fields", rawURL)
		return "", false
	}

	script := firstGroup(delayedPattern, body)
	if script == "" {
		s.debug("challenge missing delayed script", rawURL)
		return "", false
	}
	expr := strings.TrimSpace(firstGroup(assignPattern, script))
	if expr == "" {
		s.debug("challenge missing answer expression", rawURL)
		return "", false
	}

	answer, ok := Answer(expr, u.Hostname())
	if !ok {
		s.debug("challenge expression rejected", rawURL)
		return "", false
	}

	if err := s.wait(ctx); err != nil {
		return "", false
	}

	q := url.Values{}
	q.Set("jschl_vc", vc)
	q.Set("pass", pass)
	if r := firstGroup(rPattern, body); r != "" {
		q.Set("r", r)
	}
	q.Set("jschl_answer", answer)

	submit := url.URL{
		Scheme:   u.Scheme,
		Host:     u.Host,
		Path:     "/cdn-cgi/l/chk_jschl",
		RawQuery: q.Encode(),
	}
	return submit.String(), true
}

// Answer evaluates expr and adds the length of hostname, formatted with ten
// decimal places.
func Answer(expr, hostname string) (string, bool) {
	v, err := Eval(expr)
	if err != nil {
		return "", false
	}
	v += float64(len(hostname))
	return strconv.FormatFloat(v, 'f', 10, 64), true
}

func (s *Solver) wait(ctx context.Context) error {
	d := s.Delay
	if d == 0 {
		d = ChallengeDelay
	}
	if d < 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Solver) debug(msg, rawURL string) {
	if s.Logger != nil {
		s.Logger.Debug(msg, slog.String("url", rawURL))
	}
}

func firstGroup(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}
