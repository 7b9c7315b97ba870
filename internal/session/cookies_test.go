package session

import "testing"

func TestMergeCookies(t *testing.T) {
	tests := []struct {
		name       string
		current    string
		setCookies []string
		want       string
	}{
		{"empty start", "", []string{"a=1; Path=/"}, "a=1"},
		{"append new", "a=1", []string{"b=2"}, "a=1; b=2"},
		{"replace keeps order", "a=1; b=2", []string{"a=9"}, "a=9; b=2"},
		{"expired by max-age removes", "a=1; b=2", []string{"a=; Max-Age=0"}, "b=2"},
		{"expired by date removes", "a=1", []string{"a=x; Expires=Thu, 01 Jan 1970 00:00:00 GMT"}, ""},
		{"garbage ignored", "a=1", []string{"", "=novalue"}, "a=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MergeCookies(tt.current, tt.setCookies); got != tt.want {
				t.Errorf("MergeCookies() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCombineCookies(t *testing.T) {
	got := CombineCookies("a=1; b=2", "b=3; sessionId=xyz; c=4")
	if want := "a=1; b=3; c=4"; got != want {
		t.Errorf("CombineCookies() = %q, want %q", got, want)
	}
}
