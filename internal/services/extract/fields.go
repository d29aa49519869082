package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// fields is one decoded element keyed by property name.
type fields map[string]json.RawMessage

// MissingFieldsError reports an element without all required keys.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Fields, ", "))
}

// parseFields decodes raw as an object and checks that every required key is
// present with a non-null, non-blank value.
func parseFields(raw json.RawMessage, required ...string) (fields, error) {
	var f fields
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("element is not an object: %w", err)
	}
	if f == nil {
		return nil, fmt.Errorf("element is null")
	}
	var missing []string
	for _, key := range required {
		if f.str(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingFieldsError{Fields: missing}
	}
	return f, nil
}

func (f fields) has(key string) bool {
	v, ok := f[key]
	return ok && !isNull(v)
}

// str renders a value as text. Strings are unquoted, numbers and booleans keep
// their literal form, and objects or arrays are returned compacted.
func (f fields) str(key string) string {
	v, ok := f[key]
	if !ok || isNull(v) {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, v); err != nil {
		return strings.TrimSpace(string(v))
	}
	return buf.String()
}

// float reads a number or a numeric string.
func (f fields) float(key string) (float64, bool) {
	v, ok := f[key]
	if !ok || isNull(v) {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(v, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		s = strings.TrimSuffix(strings.TrimSpace(s), "%")
		if n, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(n) && !math.IsInf(n, 0) {
			return n, true
		}
	}
	return 0, false
}

func (f fields) integer(key string) (int, bool) {
	n, ok := f.float(key)
	if !ok {
		return 0, false
	}
	return int(math.Round(n)), true
}

func (f fields) object(key string) fields {
	v, ok := f[key]
	if !ok || isNull(v) {
		return nil
	}
	var nested fields
	if err := json.Unmarshal(v, &nested); err != nil {
		return nil
	}
	return nested
}

func (f fields) list(key string) []json.RawMessage {
	v, ok := f[key]
	if !ok || isNull(v) {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(v, &items); err != nil {
		return nil
	}
	return items
}

func (f fields) texts(key string) []string {
	var out []string
	for _, item := range f.list(key) {
		var s string
		if err := json.Unmarshal(item, &s); err == nil && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

func isNull(v json.RawMessage) bool {
	return len(bytes.TrimSpace(v)) == 0 || bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}
