// Package decode turns model output into JSON values.
//
// Model responses are plain text that should hold a single JSON array or
// object, sometimes wrapped in a Markdown code fence with a language tag.
// The decoder unwraps the fence and parses what remains. It never repairs
// malformed JSON: a parse error is returned as a *Failure that keeps the raw
// text for diagnostics.
package decode

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

const fence = "```"

// ErrDecode matches every *Failure via errors.Is.
var ErrDecode = errors.New("decode failure")

// Failure reports model output that could not be parsed.
type Failure struct {
	Raw string
	Err error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("decode failure: %v", f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

func (f *Failure) Is(target error) bool { return target == ErrDecode }

// Decode parses raw into a generic JSON value (map[string]any, []any, ...).
func Decode(raw string) (any, error) {
	var v any
	if err := unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Into parses raw into T.
func Into[T any](raw string) (T, error) {
	var v T
	if err := unmarshal(raw, &v); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// Elements parses raw as a JSON array and returns its elements undecoded so
// callers can validate them one at a time. A top-level object is treated as a
// one-element array.
func Elements(raw string) ([]json.RawMessage, error) {
	var msg json.RawMessage
	if err := unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(msg))
	switch {
	case strings.HasPrefix(trimmed, "["):
		var items []json.RawMessage
		if err := json.Unmarshal(msg, &items); err != nil {
			return nil, &Failure{Raw: raw, Err: err}
		}
		return items, nil
	case strings.HasPrefix(trimmed, "{"):
		return []json.RawMessage{msg}, nil
	default:
		return nil, &Failure{Raw: raw, Err: fmt.Errorf("expected array or object, got %.20q", trimmed)}
	}
}

func unmarshal(raw string, v any) error {
	body := Clean(raw)
	if body == "" {
		return &Failure{Raw: raw, Err: errors.New("empty response")}
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return &Failure{Raw: raw, Err: err}
	}
	return nil
}

// Clean trims whitespace and a byte order mark and removes a surrounding code
// fence, including an optional language tag after the opening marker.
func Clean(raw string) string {
	s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "\ufeff"))
	if !strings.HasPrefix(s, fence) {
		return s
	}
	s = strings.TrimPrefix(s, fence)
	if body := unfence(dropLanguageTag(s)); body != "" {
		return body
	}
	// A bare scalar such as ```true``` looks like a tag on its own.
	return unfence(s)
}

func unfence(s string) string {
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), fence))
}

// dropLanguageTag removes a leading word such as "json" when it is followed
// by whitespace or the start of a JSON value.
func dropLanguageTag(s string) string {
	i := 0
	for i < len(s) {
		r := rune(s[i])
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '+') {
			break
		}
		i++
	}
	if i == 0 || i == len(s) {
		return s
	}
	switch s[i] {
	case '\n', '\r', ' ', '\t', '{', '[':
		return s[i:]
	}
	return s
}
