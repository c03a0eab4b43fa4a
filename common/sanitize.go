package common

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

// RedactedText replaces secrets found inside free-form text
const RedactedText = "[REDACTED]"

// secretPattern finds one kind of credential embedded in text
type secretPattern struct {
	re          *regexp.Regexp
	replacement string
}

var secretPatterns = []secretPattern{
	{regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9\-._~+/]+=*`), "${1}" + RedactedText},
	{regexp.MustCompile(`(?i)((?:token|api[_-]?key|apikey|password|secret|access[_-]?key)=)[^&\s"']+`), "${1}" + RedactedText},
	{regexp.MustCompile(`(?i)("(?:token|api[_-]?key|apikey|password|secret|authorization)"\s*:\s*")[^"]*(")`), "${1}" + RedactedText + "${2}"},
	{regexp.MustCompile(`(://)[^/\s:@]+:[^/\s@]+(@)`), "${1}" + RedactedText + "${2}"},
	{regexp.MustCompile(`\b(?:ghp|gho|ghs|ghu|github_pat)_[A-Za-z0-9_]{20,}\b`), RedactedText},
}

var sensitiveKeyParts = []string{"token", "password", "passwd", "secret", "authorization", "api_key", "apikey", "credential"}

// IsSensitiveKey reports whether a field name usually holds a credential
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}

// SanitizeString removes credentials embedded in free-form text
func SanitizeString(s string) string {
	for _, p := range secretPatterns {
		s = p.re.ReplaceAllString(s, p.replacement)
	}
	return s
}

// SanitizeValue masks a value stored under key. Nested maps and slices are walked.
func SanitizeValue(key string, value interface{}) interface{} {
	if IsSensitiveKey(key) {
		switch v := value.(type) {
		case string:
			return MaskSecret(v)
		case nil:
			return nil
		default:
			return MaskSecret(fmt.Sprintf("%v", v))
		}
	}

	switch v := value.(type) {
	case string:
		return SanitizeString(v)
	case error:
		return SanitizeString(v.Error())
	case map[string]interface{}:
		return SanitizeMap(v)
	case map[string]string:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[k] = SanitizeValue(k, item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = SanitizeValue(key, item)
		}
		return out
	default:
		return value
	}
}

// SanitizeMap returns a sanitized copy of fields
func SanitizeMap(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		out[k] = SanitizeValue(k, v)
	}
	return out
}

// SanitizeHook is a logrus hook that masks credentials in messages and fields
type SanitizeHook struct{}

// NewSanitizeHook creates the hook
func NewSanitizeHook() *SanitizeHook {
	return &SanitizeHook{}
}

// Levels implements logrus.Hook
func (h *SanitizeHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook
func (h *SanitizeHook) Fire(entry *logrus.Entry) error {
	entry.Message = SanitizeString(entry.Message)
	for k, v := range entry.Data {
		entry.Data[k] = SanitizeValue(k, v)
	}
	return nil
}
