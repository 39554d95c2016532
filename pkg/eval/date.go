package eval

import (
	"strconv"
	"strings"
	"time"

	"github.com/devicelab-dev/keyflow/pkg/core"
)

// DefaultDateFormat is the output pattern used when a date expression
// does not name one.
const DefaultDateFormat = "yyyy-MM-dd"

var layoutReplacer = strings.NewReplacer(
	"yyyy", "2006",
	"yy", "06",
	"MM", "01",
	"dd", "02",
	"HH", "15",
	"mm", "04",
	"ss", "05",
)

// DateLayout converts a yyyy-MM-dd style pattern into a time layout.
func DateLayout(format string) string {
	if format == "" {
		format = DefaultDateFormat
	}
	return layoutReplacer.Replace(format)
}

// EvaluateDate computes a date expression such as "today + 3d" or
// "2025-01-15 - 2w" and renders the result with format. The reference
// time anchors "today" and "now".
func EvaluateDate(src, format string, ref time.Time) (string, error) {
	t, err := resolveDate(src, ref)
	if err != nil {
		return "", err
	}
	return t.Format(DateLayout(format)), nil
}

func resolveDate(src string, ref time.Time) (time.Time, error) {
	fields := strings.Fields(strings.TrimSpace(src))
	if len(fields) == 0 {
		return time.Time{}, core.ErrExpression.WithMessage("empty date expression")
	}
	// A "2006-01-02 15:04:05" literal spans two fields.
	if len(fields) >= 2 && isDate(fields[0]) && isClock(fields[1]) {
		fields = append([]string{fields[0] + " " + fields[1]}, fields[2:]...)
	}
	t, err := parseBase(fields[0], ref)
	if err != nil {
		return time.Time{}, err
	}
	rest := fields[1:]
	for len(rest) > 0 {
		if len(rest) < 2 {
			return time.Time{}, core.ErrExpression.WithMessagef("dangling %q in date expression %q", rest[0], src)
		}
		op := rest[0]
		if op != "+" && op != "-" {
			return time.Time{}, core.ErrExpression.WithMessagef("expected + or - in date expression %q, got %q", src, op)
		}
		n, unit, err := parseOffset(rest[1])
		if err != nil {
			return time.Time{}, err
		}
		if op == "-" {
			n = -n
		}
		t = shift(t, n, unit)
		rest = rest[2:]
	}
	return t, nil
}

var baseLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

func parseBase(tok string, ref time.Time) (time.Time, error) {
	switch strings.ToLower(tok) {
	case "now":
		return ref, nil
	case "today":
		y, m, d := ref.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, ref.Location()), nil
	}
	for _, layout := range baseLayouts {
		if t, err := time.ParseInLocation(layout, tok, ref.Location()); err == nil {
			return t, nil
		}
	}
	return time.Time{}, core.ErrExpression.WithMessagef("bad date %q, want today, now or 2006-01-02", tok)
}

// parseOffset splits a token such as "3d" or "90min" into count and unit.
func parseOffset(tok string) (int, string, error) {
	i := 0
	for i < len(tok) && tok[i] >= '0' && tok[i] <= '9' {
		i++
	}
	if i == 0 || i == len(tok) {
		return 0, "", core.ErrExpression.WithMessagef("bad date offset %q, want <count><unit> such as 3d", tok)
	}
	n, err := strconv.Atoi(tok[:i])
	if err != nil {
		return 0, "", core.ErrExpression.WithMessagef("bad date offset %q: %v", tok, err)
	}
	unit := strings.ToLower(tok[i:])
	switch unit {
	case "y", "mo", "w", "d", "h", "min", "s":
		return n, unit, nil
	}
	return 0, "", core.ErrExpression.WithMessagef("unknown date unit %q in %q", unit, tok)
}

func shift(t time.Time, n int, unit string) time.Time {
	switch unit {
	case "y":
		return t.AddDate(n, 0, 0)
	case "mo":
		return t.AddDate(0, n, 0)
	case "w":
		return t.AddDate(0, 0, 7*n)
	case "d":
		return t.AddDate(0, 0, n)
	case "h":
		return t.Add(time.Duration(n) * time.Hour)
	case "min":
		return t.Add(time.Duration(n) * time.Minute)
	case "s":
		return t.Add(time.Duration(n) * time.Second)
	}
	return t
}

func isDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

func isClock(s string) bool {
	if _, err := time.Parse("15:04:05", s); err == nil {
		return true
	}
	_, err := time.Parse("15:04", s)
	return err == nil
}
