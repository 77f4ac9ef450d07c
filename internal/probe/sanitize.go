package probe

import (
	"regexp"
	"strings"
)

var (
	ssnRE   = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	cardRE  = regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`)
	emailRE = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

	userinfoRE  = regexp.MustCompile(`(://)[^/@\s]+@`)
	secretKVRE  = regexp.MustCompile(`(?i)\b(password|passwd|pwd|token|secret|api[_-]?key|access[_-]?key|auth)=([^&\s]+)`)
	bearerRE    = regexp.MustCompile(`(?i)\b(bearer|basic)\s+[A-Za-z0-9._~+/=\-]+`)
	maxMsgBytes = 500
)

// MaskCredential keeps the first and last two characters and masks the rest.
// Short values are masked entirely.
func MaskCredential(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}

// SanitizeSnippet redacts card numbers, SSNs and email addresses from body
// excerpts attached to results.
func SanitizeSnippet(s string) string {
	s = ssnRE.ReplaceAllString(s, "[REDACTED-SSN]")
	s = cardRE.ReplaceAllString(s, "[REDACTED-CARD]")
	s = emailRE.ReplaceAllString(s, "[REDACTED-EMAIL]")
	return s
}

// SanitizeMessage strips credentials from error text before it reaches users
// or logs.
func SanitizeMessage(s string) string {
	s = userinfoRE.ReplaceAllString(s, "${1}***@")
	s = secretKVRE.ReplaceAllString(s, "${1}=***")
	s = bearerRE.ReplaceAllString(s, "${1} ***")
	if len(s) > maxMsgBytes {
		s = s[:maxMsgBytes] + "..."
	}
	return s
}

// snippet returns up to radius bytes around [start,end) of body.
func snippet(body string, start, end, radius int) string {
	from := start - radius
	if from < 0 {
		from = 0
	}
	to := end + radius
	if to > len(body) {
		to = len(body)
	}
	if from > to {
		from = to
	}
	return strings.ToValidUTF8(body[from:to], "")
}
