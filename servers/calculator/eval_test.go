package calculator

import (
	"strings"
	"testing"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want float64
	}{
		{name: "single number", expr: "42", want: 42},
		{name: "decimal number", expr: "2.5", want: 2.5},
		{name: "addition", expr: "1 + 2", want: 3},
		{name: "precedence", expr: "10 + 5 * 2", want: 20},
		{name: "parentheses", expr: "(10 + 5) * 2", want: 30},
		{name: "nested parentheses", expr: "((1 + 2) * (3 + 4))", want: 21},
		{name: "division", expr: "10 / 4", want: 2.5},
		{name: "left associative subtraction", expr: "10 - 3 - 2", want: 5},
		{name: "left associative division", expr: "100 / 5 / 2", want: 10},
		{name: "unary minus", expr: "-4 + 2", want: -2},
		{name: "double unary minus", expr: "--4", want: 4},
		{name: "unary minus on parentheses", expr: "-(2 + 3)", want: -5},
		{name: "surrounding spaces", expr: "  7 * 3  ", want: 21},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := evaluate(tt.expr)
			if err != nil {
				t.Fatalf("evaluate(%q) failed: %v", tt.expr, err)
			}
			if got != tt.want {
				t.Errorf("evaluate(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEvaluateErrors(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr string
	}{
		{name: "empty expression", expr: "", wantErr: "unexpected end"},
		{name: "trailing operator", expr: "2 +", wantErr: "unexpected end"},
		{name: "division by zero", expr: "1 / 0", wantErr: "division by zero"},
		{name: "division by zero in subexpression", expr: "3 + 4 / (2 - 2)", wantErr: "division by zero"},
		{name: "unbalanced parenthesis", expr: "(1 + 2", wantErr: "closing parenthesis"},
		{name: "stray character", expr: "1 + x", wantErr: "unexpected"},
		{name: "trailing garbage", expr: "1 + 2 )", wantErr: "unexpected"},
		{name: "adjacent numbers", expr: "2 2", wantErr: "unexpected"},
		{name: "malformed number", expr: "1..2", wantErr: "invalid number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := evaluate(tt.expr)
			if err == nil {
				t.Fatalf("evaluate(%q) succeeded, want error", tt.expr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("evaluate(%q) error = %q, want it to mention %q", tt.expr, err, tt.wantErr)
			}
		})
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{in: 3, want: "3"},
		{in: 2.5, want: "2.5"},
		{in: -0.125, want: "-0.125"},
		{in: 1024, want: "1024"},
	}

	for _, tt := range tests {
		if got := formatNumber(tt.in); got != tt.want {
			t.Errorf("formatNumber(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
