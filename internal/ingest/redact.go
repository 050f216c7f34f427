package ingest

import (
	"regexp"

	"chatrag/internal/schema"
)

// Sensitive-pattern classes, applied in fixed order so overlapping
// matches resolve deterministically: emails, phones, credential tokens,
// then password assignments.
var (
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	phonePattern = regexp.MustCompile(`\b(?:\+?\d{1,3}[\s.-]?)?(?:\(?\d{3}\)?[\s.-]?)\d{3}[\s.-]?\d{4}\b`)

	// Vendor-prefixed API keys, hash-style tokens, cloud access-key ids
	// and three-segment signed tokens all collapse into one class.
	tokenPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bsk-[A-Za-z0-9]{20,}\b`),
		regexp.MustCompile(`\bhf_[A-Za-z0-9]{20,}\b`),
		regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
		regexp.MustCompile(`\b[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}\b`),
	}

	passwordPattern = regexp.MustCompile(`(?i)\b(?:password|pwd)\s*[:=]\s*[^\s,;]+`)
)

// Sentinels substituted for each redacted class.
const (
	EmailSentinel    = "[REDACTED_EMAIL]"
	PhoneSentinel    = "[REDACTED_PHONE]"
	TokenSentinel    = "[REDACTED_TOKEN]"
	PasswordSentinel = "[REDACTED_PASSWORD]"
)

// RedactText replaces sensitive substrings with class-named sentinels and
// reports how many were removed per class.
func RedactText(text string) (string, schema.RedactionStats) {
	var stats schema.RedactionStats
	redacted := text

	redacted, stats.Emails = replaceCounting(emailPattern, EmailSentinel, redacted)
	redacted, stats.Phones = replaceCounting(phonePattern, PhoneSentinel, redacted)
	for _, pattern := range tokenPatterns {
		var count int
		redacted, count = replaceCounting(pattern, TokenSentinel, redacted)
		stats.Tokens += count
	}
	redacted, stats.Passwords = replaceCounting(passwordPattern, PasswordSentinel, redacted)

	return redacted, stats
}

func replaceCounting(pattern *regexp.Regexp, sentinel, text string) (string, int) {
	count := 0
	replaced := pattern.ReplaceAllStringFunc(text, func(string) string {
		count++
		return sentinel
	})
	return replaced, count
}
