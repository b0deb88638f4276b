package service

import (
	"regexp"
	"strings"
)

// Verification-code patterns, checked in order; first match wins. Labelled
// forms are checked before a bare digit run so that promotional numbers or
// sender names are less likely to shadow the real code. This stays a
// heuristic: a vendor-supplied structured code field is always preferred
// over text mining.
var codePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:код|code|verification|confirm)\s*:?\s*(\d{4,6})\b`),
	regexp.MustCompile(`\b(\d{4,6})\s+is\s+your\b`),
	regexp.MustCompile(`\b(\d{4,6})\b`),
}

var (
	phoneJunk       = regexp.MustCompile(`[^\d+]`)
	phonePattern    = regexp.MustCompile(`^\+\d{10,15}$`)
	whitespaceRun   = regexp.MustCompile(`\s+`)
	controlChars    = regexp.MustCompile("[\x00-\x1f\x7f]")
	digitsOnlyCheck = regexp.MustCompile(`^\d{4,6}$`)
)

// ExtractVerificationCode pulls a 4-6 digit verification code out of free
// text. Returns "" when nothing matches; that is not fatal for the caller.
func ExtractVerificationCode(text string) string {
	for _, pattern := range codePatterns {
		match := pattern.FindStringSubmatch(text)
		if match != nil {
			return match[1]
		}
	}
	return ""
}

// NormalizePhoneNumber strips everything except digits and '+' and validates
// the result as '+' followed by 10-15 digits.
func NormalizePhoneNumber(phone string) (string, bool) {
	clean := phoneJunk.ReplaceAllString(phone, "")
	if !phonePattern.MatchString(clean) {
		return "", false
	}
	return clean, true
}

// SanitizeMessageText collapses whitespace runs and drops control characters.
// Duplicate detection compares sanitized texts byte for byte, so this is
// also the canonical form messages are stored in.
func SanitizeMessageText(text string) string {
	clean := whitespaceRun.ReplaceAllString(strings.TrimSpace(text), " ")
	return controlChars.ReplaceAllString(clean, "")
}

// ValidCode reports whether a vendor-supplied code field looks like a
// verification code.
func ValidCode(code string) bool {
	return digitsOnlyCheck.MatchString(code)
}
