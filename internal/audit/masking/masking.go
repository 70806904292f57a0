package masking

import "strings"

const maskToken = "****"

// SensitiveKeys are metadata keys whose values never reach the audit table in clear.
var SensitiveKeys = map[string]struct{}{
	"email":               {},
	"payout_destination":  {},
	"bank_account_number": {},
}

// MaskSecret keeps the last four characters of value.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 4 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}

// MaskFields returns a copy of input where string values under sensitive keys
// are masked. Nested maps are walked.
func MaskFields(input map[string]any, sensitive map[string]struct{}) map[string]any {
	if len(input) == 0 {
		return nil
	}

	out := make(map[string]any, len(input))
	for key, value := range input {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		switch cast := value.(type) {
		case map[string]any:
			out[key] = MaskFields(cast, sensitive)
		case string:
			if _, ok := sensitive[strings.ToLower(key)]; ok {
				out[key] = MaskSecret(cast)
			} else {
				out[key] = cast
			}
		default:
			out[key] = value
		}
	}
	return out
}
