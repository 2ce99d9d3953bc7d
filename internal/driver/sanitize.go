package driver

import "strings"

// sanitizeConfig strips any key from bag whose lowercased name contains
// both "api" and "key", or "secret", or both "token" and "auth". The
// result is what the metadata record and its observers see; values are
// otherwise passed through unchanged.
func sanitizeConfig(bag map[string]any) map[string]any {
	out := make(map[string]any, len(bag))
	for k, v := range bag {
		if isSensitiveKey(k) {
			continue
		}
		out[k] = v
	}
	return out
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	if strings.Contains(lower, "api") && strings.Contains(lower, "key") {
		return true
	}
	if strings.Contains(lower, "secret") {
		return true
	}
	if strings.Contains(lower, "token") && strings.Contains(lower, "auth") {
		return true
	}
	return false
}
