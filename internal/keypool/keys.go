package keypool

import (
	"strings"
)

// Shape is the minimal format check applied to candidate keys.
// The zero Shape accepts any non-empty token.
type Shape struct {
	Prefix    string
	MinLength int
}

// Matches reports whether key satisfies the shape.
func (s Shape) Matches(key string) bool {
	if key == "" {
		return false
	}
	if s.Prefix != "" && !strings.HasPrefix(key, s.Prefix) {
		return false
	}
	return len(key) >= s.MinLength
}

// ShapeFor returns the key shape of a provider type.
func ShapeFor(providerType string) Shape {
	switch providerType {
	case "gemini":
		return Shape{Prefix: "AIza", MinLength: 30}
	case "openai":
		return Shape{Prefix: "sk-", MinLength: 20}
	default:
		return Shape{MinLength: 8}
	}
}

// ParseResult is the outcome of cleaning pasted key text.
type ParseResult struct {
	Keys     []string // unique keys in first-seen order
	Rejected int      // non-empty candidates that failed the shape check
}

// stripCutset is removed from both ends of each candidate.
const stripCutset = " \t\r\n\"'`[]"

// Parse turns free text into unique candidate keys. Newlines and commas
// separate candidates; whitespace, quotes and list brackets around each
// candidate are stripped.
func Parse(raw string, shape Shape) ParseResult {
	var result ParseResult
	seen := make(map[string]struct{})

	normalized := strings.ReplaceAll(raw, "\r\n", ",")
	normalized = strings.ReplaceAll(normalized, "\n", ",")

	for _, candidate := range strings.Split(normalized, ",") {
		key := strings.Trim(candidate, stripCutset)
		if key == "" {
			continue
		}
		if !shape.Matches(key) {
			result.Rejected++
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		result.Keys = append(result.Keys, key)
	}

	if result.Keys == nil {
		result.Keys = []string{}
	}
	return result
}

// CleanKeys returns the unique keys in raw that satisfy shape.
// It never fails; empty or all-invalid input yields an empty slice.
func CleanKeys(raw string, shape Shape) []string {
	return Parse(raw, shape).Keys
}

// Source names where keys came from.
type Source string

const (
	SourceSecrets Source = "secrets"
	SourceManual  Source = "manual"
	SourceNone    Source = "none"
)

// Resolve prefers keys from the secrets source and falls back to manual input.
func Resolve(secrets, manual string, shape Shape) ([]string, Source) {
	if keys := CleanKeys(secrets, shape); len(keys) > 0 {
		return keys, SourceSecrets
	}
	if keys := CleanKeys(manual, shape); len(keys) > 0 {
		return keys, SourceManual
	}
	return []string{}, SourceNone
}
