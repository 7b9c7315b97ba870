package fingerprint

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"
)

const challengeHTML = `<!DOCTYPE html>
<html><head><title>Just a moment...</title></head>
<body>
<div class="cf-browser-verification">Checking your browser before accessing example.com.</div>
<form id="challenge-form" action="/cdn-cgi/l/chk_jschl" method="get">
  <input type="hidden" name="r" value="rtoken"/>
  <input type="hidden" name="jschl_vc" value="vc123"/>
  <input type="hidden" name="pass" value="1700000000.123-abc"/>
  <input type="hidden" id="jschl-answer" name="jschl_answer"/>
</form>
<script>
  setTimeout(function(){
    var a = document.getElementById('jschl-answer');
    a.value = 1+2*3;
    document.getElementById('challenge-form').submit();
  }, 4000);
</script>
</body></html>`

func TestIsChallengePage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"verification div", `<div class="cf-browser-verification">`, true},
		{"checking text", "Checking your browser before accessing", true},
		{"challenge id", `<div id="cf-challenge-running">`, true},
		{"answer input", `<input id="jschl-answer">`, true},
		{"brand and ray id", "Cloudflare ... Ray ID: 8a1b2c", true},
		{"brand only", "Powered by Cloudflare", false},
		{"ordinary page", "<html><body>Hello</body></html>", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsChallengePage(tt.body); got != tt.want {
				t.Errorf("IsChallengePage() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSolve(t *testing.T) {
	s := &Solver{Delay: -1}

	got, ok := s.Solve(context.Background(), challengeHTML, "https://abc.de/login?next=/")
	if !ok {
		t.Fatal("Solve() = false, want solved")
	}

	u, err := url.Parse(got)
	if err != nil {
		t.Fatalf("Solve() returned unparseable URL %q: %v", got, err)
	}
	if u.Scheme != "https" || u.Host != "abc.de" || u.Path != "/cdn-cgi/l/chk_jschl" {
		t.Errorf("submit URL = %q, want https://abc.de/cdn-cgi/l/chk_jschl?...", got)
	}
	q := u.Query()
	want := map[string]string{
		"jschl_vc":     "vc123",
		"pass":         "1700000000.123-abc",
		"r":            "rtoken",
		"jschl_answer": "13.0000000000",
	}
	for k, v := range want {
		if q.Get(k) != v {
			t.Errorf("query %s = %q, want %q", k, q.Get(k), v)
		}
	}
}

func TestSolve_Unsolvable(t *testing.T) {
	s := &Solver{Delay: -1}
	ctx := context.Background()

	tests := []struct {
		name string
		body string
		url  string
	}{
		{"missing pass", strings.Replace(challengeHTML, `name="pass"`, `name="other"`, 1), "https://abc.de/"},
		{"missing script", strings.Replace(challengeHTML, "4000", "5000", 1), "https://abc.de/"},
		{"non arithmetic", strings.Replace(challengeHTML, "a.value = 1+2*3;", "a.value = t.length;", 1), "https://abc.de/"},
		{"bad url", challengeHTML, "::not a url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, ok := s.Solve(ctx, tt.body, tt.url); ok || got != "" {
				t.Errorf("Solve() = (%q, %v), want unsolved", got, ok)
			}
		})
	}
}

func TestSolve_WaitHonorsContext(t *testing.T) {
	s := &Solver{Delay: time.Hour}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, ok := s.Solve(ctx, challengeHTML, "https://abc.de/"); ok {
		t.Error("Solve() succeeded after context deadline")
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Solve() ignored context cancellation")
	}
}
