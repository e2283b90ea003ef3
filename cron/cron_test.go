package cron

import (
	"errors"
	"testing"
	"time"
)

// TestParse validates expression parsing across valid and invalid forms.
func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr error
	}{
		{name: "all wildcards", expr: "* * * * *"},
		{name: "exact minute", expr: "30 * * * *"},
		{name: "minute and hour", expr: "0 12 * * *"},
		{name: "minute step", expr: "*/15 * * * *"},
		{name: "hour step", expr: "* */6 * * *"},
		{name: "range bounds", expr: "59 23 * * *"},
		{
			name:    "too few fields",
			expr:    "* * * *",
			wantErr: ErrInvalidExpr,
		},
		{
			name:    "too many fields",
			expr:    "* * * * * *",
			wantErr: ErrInvalidExpr,
		},
		{
			name:    "minute out of range",
			expr:    "60 * * * *",
			wantErr: ErrInvalidExpr,
		},
		{
			name:    "hour out of range",
			expr:    "0 24 * * *",
			wantErr: ErrInvalidExpr,
		},
		{
			name:    "non-numeric field",
			expr:    "abc * * * *",
			wantErr: ErrInvalidExpr,
		},
		{
			name:    "zero step",
			expr:    "*/0 * * * *",
			wantErr: ErrInvalidExpr,
		},
		{
			name:    "step out of range",
			expr:    "* */24 * * *",
			wantErr: ErrInvalidExpr,
		},
		{
			name:    "day-of-month constrained",
			expr:    "0 0 15 * *",
			wantErr: ErrUnsupportedField,
		},
		{
			name:    "month constrained",
			expr:    "0 0 * 6 *",
			wantErr: ErrUnsupportedField,
		},
		{
			name:    "day-of-week constrained",
			expr:    "0 0 * * 1",
			wantErr: ErrUnsupportedField,
		},
		{
			name:    "day-of-month out of range",
			expr:    "0 0 32 * *",
			wantErr: ErrInvalidExpr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.expr)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Parse(%q) failed: %v", tt.expr, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Parse(%q) error = %v, want %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}

// TestNext verifies next-fire computation for minute and hour fields.
func TestNext(t *testing.T) {
	base := time.Date(2025, time.March, 10, 14, 25, 42, 0, time.Local)

	tests := []struct {
		name  string
		expr  string
		after time.Time
		want  time.Time
	}{
		{
			name:  "wildcard advances one minute",
			expr:  "* * * * *",
			after: base,
			want:  time.Date(2025, time.March, 10, 14, 26, 0, 0, time.Local),
		},
		{
			name:  "exact minute later this hour",
			expr:  "30 * * * *",
			after: base,
			want:  time.Date(2025, time.March, 10, 14, 30, 0, 0, time.Local),
		},
		{
			name:  "exact minute wraps to next hour",
			expr:  "10 * * * *",
			after: base,
			want:  time.Date(2025, time.March, 10, 15, 10, 0, 0, time.Local),
		},
		{
			name:  "minute step",
			expr:  "*/15 * * * *",
			after: base,
			want:  time.Date(2025, time.March, 10, 14, 30, 0, 0, time.Local),
		},
		{
			name:  "hour constraint wraps to next day",
			expr:  "0 9 * * *",
			after: base,
			want:  time.Date(2025, time.March, 11, 9, 0, 0, 0, time.Local),
		},
		{
			name:  "already on boundary is strictly after",
			expr:  "0 * * * *",
			after: time.Date(2025, time.March, 10, 14, 0, 0, 0, time.Local),
			want:  time.Date(2025, time.March, 10, 15, 0, 0, 0, time.Local),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Parse(tt.expr)
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", tt.expr, err)
			}
			got := s.Next(tt.after)
			if !got.Equal(tt.want) {
				t.Errorf("Next() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestNextStrictlyAfter verifies the strictly-greater property across a
// range of expressions and instants.
func TestNextStrictlyAfter(t *testing.T) {
	exprs := []string{"* * * * *", "0 * * * *", "*/5 * * * *", "30 6 * * *", "* */3 * * *"}

	for _, expr := range exprs {
		s, err := Parse(expr)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", expr, err)
		}
		at := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.Local)
		for i := 0; i < 100; i++ {
			next := s.Next(at)
			if !next.After(at) {
				t.Fatalf("Next(%q, %v) = %v, not strictly after", expr, at, next)
			}
			at = next
		}
	}
}
