package audit

import "strings"

const maskedValue = "[REDACTED]"

// sensitiveKeySubstrings is matched case-insensitively against map keys.
// Masking happens at the producer, before an entry enters the queue, so raw
// secrets never sit in memory buffers or DLQ rows.
var sensitiveKeySubstrings = []string{
	"password",
	"secret",
	"token",
	"authorization",
	"api_key",
	"apikey",
	"credit_card",
	"card_number",
	"cvv",
	"ssn",
	"mfa",
	"recovery_code",
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeySubstrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// MaskSensitiveValues walks the value tree and replaces anything under a
// sensitive key. The input is not mutated.
func MaskSensitiveValues(values map[string]any) map[string]any {
	if values == nil {
		return nil
	}
	masked := make(map[string]any, len(values))
	for key, value := range values {
		if isSensitiveKey(key) {
			masked[key] = maskedValue
			continue
		}
		masked[key] = maskValue(value)
	}
	return masked
}

func maskValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return MaskSensitiveValues(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = maskValue(item)
		}
		return out
	default:
		return value
	}
}
