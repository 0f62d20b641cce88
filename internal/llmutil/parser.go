// internal/llmutil/parser.go
package llmutil

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	json "github.com/json-iterator/go"
)

// ErrNoJSON is returned when a response contains no balanced JSON object.
var ErrNoJSON = errors.New("no JSON object found in model response")

var (
	// \x60 is a backtick; Go raw strings cannot contain one.
	fencedBlockRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json|JSON)?\\s*(.*?)\\s*\x60\x60\x60")
)

// ExtractJSONObject returns the first balanced JSON object in response.
// Fenced markdown blocks are searched first, then the raw text. Braces inside
// string literals do not count toward the balance.
func ExtractJSONObject(response string) (string, bool) {
	response = strings.TrimSpace(response)
	for _, m := range fencedBlockRegex.FindAllStringSubmatch(response, -1) {
		if obj, ok := firstBalancedObject(m[1]); ok {
			return obj, true
		}
	}
	return firstBalancedObject(response)
}

func firstBalancedObject(s string) (string, bool) {
	for start := strings.IndexByte(s, '{'); start >= 0; {
		if end := matchBrace(s, start); end > start {
			candidate := s[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, true
			}
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

// matchBrace returns the index of the brace closing the one at open, or -1.
func matchBrace(s string, open int) int {
	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// ParseJSONResponse locates the first JSON object in a model response and
// decodes it into T.
func ParseJSONResponse[T any](response string) (*T, error) {
	obj, ok := ExtractJSONObject(response)
	if !ok {
		return nil, ErrNoJSON
	}
	var result T
	if err := json.Unmarshal([]byte(obj), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model JSON response: %w. Extracted JSON (truncated): %s", err, Truncate(obj, 500))
	}
	return &result, nil
}

// Truncate shortens s to at most maxLen bytes, marking the cut with "...".
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
