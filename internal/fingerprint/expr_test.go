package fingerprint

import (
	"errors"
	"math"
	"testing"
)

func TestEval(t *testing.T) {
	tests := []struct {
		expr string
		want float64
	}{
		{"1+2*3", 7},
		{"(1+2)*3", 9},
		{"10/4", 2.5},
		{"-3+5", 2},
		{"-(2+3)*2", -10},
		{" 1 + 2 ", 3},
		{"1.5*2", 3},
		{"2*-3", -6},
		{"((4))", 4},
		{"8-2-1", 5},
		{"8/2/2", 2},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Eval(tt.expr)
			if err != nil {
				t.Fatalf("Eval(%q) error = %v", tt.expr, err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Eval(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEval_Rejects(t *testing.T) {
	exprs := []string{
		"",
		"1+",
		"(1+2",
		"1+2)",
		"alert(1)",
		"1+x",
		"1;2",
		"2**3",
		"1/0",
		"1.2.3",
		"[1]",
	}

	for _, expr := range exprs {
		t.Run(expr, func(t *testing.T) {
			_, err := Eval(expr)
			if err == nil {
				t.Fatalf("Eval(%q) succeeded, want error", expr)
			}
			if !errors.Is(err, ErrUnsupportedExpression) {
				t.Errorf("Eval(%q) error = %v, want ErrUnsupportedExpression", expr, err)
			}
		})
	}
}

func TestEval_DeepNestingRejected(t *testing.T) {
	expr := ""
	for i := 0; i < 200; i++ {
		expr += "("
	}
	expr += "1"
	for i := 0; i < 200; i++ {
		expr += ")"
	}
	if _, err := Eval(expr); err == nil {
		t.Error("Eval accepted nesting deeper than the limit")
	}
}

func TestAnswer(t *testing.T) {
	tests := []struct {
		expr   string
		host   string
		want   string
		wantOK bool
	}{
		{"1+2*3", "abc.de", "13.0000000000", true},
		{"1+2*3", "abcd.ef", "14.0000000000", true},
		{"10/4", "a.io", "6.5000000000", true},
		{"1+window.x", "a.io", "", false},
	}

	for _, tt := range tests {
		got, ok := Answer(tt.expr, tt.host)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("Answer(%q, %q) = (%q, %v), want (%q, %v)", tt.expr, tt.host, got, ok, tt.want, tt.wantOK)
		}
	}
}
