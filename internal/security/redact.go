// Package security masks credentials before they reach logs, errors or the terminal.
package security

import (
	"regexp"
	"strings"
)

// sensitiveFields contains field names whose values are always masked.
var sensitiveFields = map[string]bool{
	"api_key":      true,
	"apikey":       true,
	"access_token": true,
	"token":        true,
	"secret":       true,
	"api_secret":   true,
	"password":     true,
}

// sensitivePatterns match key=value pairs in URLs, headers and free text.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(api[_-]?key|api[_-]?secret|access[_-]?token|enctoken|password)([=:]\s*["']?)([^\s"'&:]+)`),
	regexp.MustCompile(`(?i)\b(authorization:\s*(?:token|bearer)\s+)([^\s]+)`),
}

// IsSensitiveField reports whether a field name holds a secret.
func IsSensitiveField(field string) bool {
	return sensitiveFields[strings.ToLower(field)]
}

// MaskCredential masks a credential value, keeping at most the last four characters.
func MaskCredential(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 4 {
		return "****"
	}
	return "****" + value[len(value)-4:]
}

// Redact masks secrets embedded in s, such as apikey= query parameters.
func Redact(s string) string {
	s = sensitivePatterns[0].ReplaceAllStringFunc(s, func(match string) string {
		m := sensitivePatterns[0].FindStringSubmatch(match)
		return m[1] + m[2] + MaskCredential(m[3])
	})
	return sensitivePatterns[1].ReplaceAllStringFunc(s, func(match string) string {
		m := sensitivePatterns[1].FindStringSubmatch(match)
		return m[1] + MaskCredential(m[2])
	})
}

// redactedError keeps the original chain for errors.Is and errors.As while
// hiding secrets in the message.
type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

// RedactError returns err with secrets masked in its message. A nil err, or
// one without secrets, is returned as is.
func RedactError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	clean := Redact(msg)
	if clean == msg {
		return err
	}
	return &redactedError{msg: clean, err: err}
}

// RedactFields returns a copy of fields with sensitive values masked.
func RedactFields(fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		if IsSensitiveField(k) {
			out[k] = MaskCredential(v)
			continue
		}
		out[k] = Redact(v)
	}
	return out
}
