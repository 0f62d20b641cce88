// internal/llmclient/images.go
package llmclient

import "strings"

// NormalizeImages coerces loosely typed image input into a list of base64
// strings: a single string is wrapped, non-strings and empty values are
// dropped, and data URI prefixes are stripped.
func NormalizeImages(v any) []string {
	var raw []string
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		raw = []string{t}
	case []string:
		raw = t
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	default:
		return nil
	}

	var out []string
	for _, s := range raw {
		if i := strings.Index(s, ";base64,"); i >= 0 && strings.HasPrefix(s, "data:") {
			s = s[i+len(";base64,"):]
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
