package probe

import (
	"strconv"
	"strings"
)

// DefaultExpectedStatus applies when a monitor sets no expected codes.
var DefaultExpectedStatus = []string{"200-299"}

// IsExpectedStatus matches code against patterns: exact codes ("404"),
// inclusive ranges ("200-299") and class wildcards ("2xx"). A pattern may
// hold several comma-separated entries.
func IsExpectedStatus(code int, patterns []string) bool {
	if len(patterns) == 0 {
		patterns = DefaultExpectedStatus
	}
	for _, p := range patterns {
		for _, part := range strings.Split(p, ",") {
			if matchStatus(code, strings.ToLower(strings.TrimSpace(part))) {
				return true
			}
		}
	}
	return false
}

func matchStatus(code int, p string) bool {
	switch {
	case p == "":
		return false
	case len(p) == 3 && strings.HasSuffix(p, "xx"):
		d := p[0]
		if d < '1' || d > '5' {
			return false
		}
		return code/100 == int(d-'0')
	case strings.Contains(p, "-"):
		lo, hi, ok := strings.Cut(p, "-")
		if !ok {
			return false
		}
		l, err1 := strconv.Atoi(strings.TrimSpace(lo))
		h, err2 := strconv.Atoi(strings.TrimSpace(hi))
		if err1 != nil || err2 != nil {
			return false
		}
		return code >= l && code <= h
	default:
		n, err := strconv.Atoi(p)
		return err == nil && n == code
	}
}
