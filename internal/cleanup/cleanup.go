// Package cleanup strips the wrappers models put around generated text.
package cleanup

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnparseable is returned when the expected JSON envelope is missing.
var ErrUnparseable = errors.New("output did not contain the expected JSON field")

var (
	leadingFence  = regexp.MustCompile("^```[A-Za-z0-9_+-]*[ \t]*\r?\n?")
	trailingFence = regexp.MustCompile("\r?\n?```$")
	braces        = regexp.MustCompile(`(?s)\{.*\}`)

	// Checked in order when Clean has to guess the envelope field.
	envelopeFields = []string{"prompt", "text", "result", "output", "content"}

	prefixLabels = []string{"/imagine prompt:", "prompt:"}
)

// Clean removes code fences, a JSON envelope, surrounding quotes and known
// prefix labels. It is idempotent.
func Clean(raw string) string {
	s := raw
	// Every pass that changes s makes it shorter, so this terminates.
	for {
		next := cleanOnce(s)
		if next == s {
			return s
		}
		s = next
	}
}

func cleanOnce(s string) string {
	s = strings.TrimSpace(s)
	s = stripFences(s)

	if v, ok := guessEnvelope(s); ok {
		s = v
	}

	s = stripQuotes(s)
	s = stripLabels(s)
	return strings.TrimSpace(s)
}

func stripFences(s string) string {
	s = leadingFence.ReplaceAllString(s, "")
	s = trailingFence.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// stripQuotes removes one pair of quotes wrapping the whole text. Quotes
// inside the text, or a pair that only looks outer ("a" and "b"), stay.
func stripQuotes(s string) string {
	if len(s) < 2 {
		return s
	}
	first, last := s[0], s[len(s)-1]
	if first != last || (first != '"' && first != '\'' && first != '`') {
		return s
	}
	inner := s[1 : len(s)-1]
	if strings.IndexByte(inner, first) >= 0 {
		return s
	}
	return inner
}

func stripLabels(s string) string {
	lower := strings.ToLower(s)
	for _, label := range prefixLabels {
		if strings.HasPrefix(lower, label) {
			return strings.TrimSpace(s[len(label):])
		}
	}
	return s
}

// envelope decodes the brace-delimited object in s, if any.
func envelope(s string) (map[string]interface{}, bool) {
	match := braces.FindString(s)
	if match == "" {
		return nil, false
	}
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(match), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// guessEnvelope picks a well-known string field, or the only string field.
func guessEnvelope(s string) (string, bool) {
	obj, ok := envelope(s)
	if !ok {
		return "", false
	}
	for _, f := range envelopeFields {
		if v, ok := obj[f].(string); ok {
			return v, true
		}
	}
	var only string
	count := 0
	for _, v := range obj {
		if str, ok := v.(string); ok {
			only = str
			count++
		}
	}
	if count == 1 {
		return only, true
	}
	return "", false
}

// ExtractField returns the string value of field from the JSON object in
// raw, tolerating code fences and surrounding prose.
func ExtractField(raw, field string) (string, error) {
	obj, ok := envelope(stripFences(strings.TrimSpace(raw)))
	if !ok {
		return "", ErrUnparseable
	}
	v, ok := obj[field]
	if !ok {
		return "", fmt.Errorf("field %q missing: %w", field, ErrUnparseable)
	}
	str, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q is %T, not a string: %w", field, v, ErrUnparseable)
	}
	return Clean(str), nil
}

// Lenient returns the extracted field when present, else the cleaned raw text.
func Lenient(raw, field string) string {
	if v, err := ExtractField(raw, field); err == nil {
		return v
	}
	return Clean(raw)
}
