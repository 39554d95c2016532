package eval

import (
	"errors"
	"testing"
	"time"

	"github.com/devicelab-dev/keyflow/pkg/core"
)

func TestEvaluateDate(t *testing.T) {
	ref := time.Date(2025, 3, 15, 10, 30, 0, 0, time.UTC)
	tests := []struct {
		expr   string
		format string
		want   string
	}{
		{"today", "", "2025-03-15"},
		{"today + 3d", "", "2025-03-18"},
		{"today - 1mo", "", "2025-02-15"},
		{"today + 1y", "", "2026-03-15"},
		{"today + 1w - 2d", "", "2025-03-20"},
		{"now", "yyyy-MM-dd HH:mm", "2025-03-15 10:30"},
		{"now + 2h", "yyyy-MM-dd HH:mm", "2025-03-15 12:30"},
		{"now - 90min", "HH:mm", "09:00"},
		{"now + 30s", "HH:mm:ss", "10:30:30"},
		{"2025-01-15 + 2w", "", "2025-01-29"},
		{"2025-01-15 10:00 + 90min", "yyyy-MM-dd HH:mm", "2025-01-15 11:30"},
		{"2025-01-15T10:00:00 + 1h", "HH:mm", "11:00"},
		{"today", "dd", "15"},
		{"today", "yy-MM", "25-03"},
	}
	for _, tt := range tests {
		got, err := EvaluateDate(tt.expr, tt.format, ref)
		if err != nil {
			t.Errorf("EvaluateDate(%q, %q) error: %v", tt.expr, tt.format, err)
			continue
		}
		if got != tt.want {
			t.Errorf("EvaluateDate(%q, %q) = %q, want %q", tt.expr, tt.format, got, tt.want)
		}
	}
}

func TestEvaluateDate_Errors(t *testing.T) {
	ref := time.Date(2025, 3, 15, 10, 30, 0, 0, time.UTC)
	tests := []string{
		"",
		"yesterday",
		"today * 3d",
		"today +",
		"today + 3fortnights",
		"today + d",
		"today + 3",
	}
	for _, src := range tests {
		if _, err := EvaluateDate(src, "", ref); !errors.Is(err, core.ErrExpression) {
			t.Errorf("EvaluateDate(%q) error = %v, want ErrExpression", src, err)
		}
	}
}

func TestDateLayout(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"", "2006-01-02"},
		{"yyyy-MM-dd", "2006-01-02"},
		{"yyyy-MM-dd HH:mm:ss", "2006-01-02 15:04:05"},
		{"dd/MM/yyyy", "02/01/2006"},
		{"yy-MM", "06-01"},
	}
	for _, tt := range tests {
		if got := DateLayout(tt.format); got != tt.want {
			t.Errorf("DateLayout(%q) = %q, want %q", tt.format, got, tt.want)
		}
	}
}
