// Package redact strips credentials and other sensitive fragments from
// strings before they reach logs or error responses.
package redact

import "regexp"

// Placeholders substituted for redacted fragments
const (
	RedactedCredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	RedactedKeyPlaceholder        = "[REDACTED_KEY]"
	RedactedJWTPlaceholder        = "[REDACTED_JWT]"
	RedactedSQLPlaceholder        = "[REDACTED_SQL]"
	RedactedPathPlaceholder       = "[REDACTED_PATH]"
)

type rule struct {
	pattern     *regexp.Regexp
	placeholder string
}

// Rules run in order. JWTs go before keys so a bearer header loses the
// whole token rather than just its tail.
var rules = []rule{
	{
		regexp.MustCompile(`(?i)\b(postgres|postgresql|mysql|redis|amqp)://[^@\s]+@`),
		RedactedCredentialPlaceholder,
	},
	{
		regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`),
		RedactedJWTPlaceholder,
	},
	{
		regexp.MustCompile(`(?i)(password|passwd|pwd)([=:\s]?['"]?)[^'"&\s]{3,}`),
		RedactedCredentialPlaceholder,
	},
	{
		regexp.MustCompile(`(?i)(api[_-]?key|x-api-key|token|secret|bearer|key)(['"\s:=]+)[A-Za-z0-9_\-.~+/]{8,}`),
		RedactedKeyPlaceholder,
	},
	{
		regexp.MustCompile(`(?i)\b(SELECT|INSERT|UPDATE|DELETE)\b[^;]*?\b(FROM|INTO|SET)\b\s+\w+`),
		RedactedSQLPlaceholder,
	},
	{
		regexp.MustCompile(`(?:^|\s)(/[\w.-]+){3,}`),
		" " + RedactedPathPlaceholder,
	},
}

// String redacts sensitive information from s.
func String(s string) string {
	if s == "" {
		return s
	}
	for _, r := range rules {
		s = r.pattern.ReplaceAllString(s, r.placeholder)
	}
	return s
}

// Error redacts sensitive information from err.Error().
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
