package helpers

import (
	"fmt"
	"strings"
)

const urlTrailingJunk = `)].,;"'`

// NormalizeURL trims whitespace and strips trailing punctuation that model
// output tends to glue onto links, e.g. "https://x.dev/page)." -> "https://x.dev/page".
func NormalizeURL(u string) string {
	u = strings.TrimSpace(u)
	for u != "" && strings.IndexByte(urlTrailingJunk, u[len(u)-1]) >= 0 {
		u = u[:len(u)-1]
	}
	return strings.TrimSpace(u)
}

// SanitizeLinks walks a decoded JSON tree and normalises every string value
// stored under a key named exactly "url". Containers are updated in place and
// returned; all other values pass through.
func SanitizeLinks(v any) any {
	switch t := v.(type) {
	case *Object:
		for _, k := range t.keys {
			if s, ok := t.values[k].(string); ok && k == "url" {
				t.values[k] = NormalizeURL(s)
				continue
			}
			t.values[k] = SanitizeLinks(t.values[k])
		}
		return t
	case map[string]any:
		for k, val := range t {
			if s, ok := val.(string); ok && k == "url" {
				t[k] = NormalizeURL(s)
				continue
			}
			t[k] = SanitizeLinks(val)
		}
		return t
	case []any:
		for i := range t {
			t[i] = SanitizeLinks(t[i])
		}
		return t
	default:
		return v
	}
}

// SanitizeJSONText turns almost-JSON model output into compact strict JSON
// with clean links. Blank input, or input with no recoverable JSON value, is
// returned unchanged; this function never panics.
func SanitizeJSONText(raw string) (out string) {
	if strings.TrimSpace(raw) == "" {
		return raw
	}
	defer func() {
		if r := recover(); r != nil {
			out = raw
		}
	}()
	cleaned, err := sanitizeJSON(raw)
	if err != nil {
		return raw
	}
	return cleaned
}

func sanitizeJSON(raw string) (string, error) {
	v, err := ExtractFirstJSONValue(raw)
	if err != nil {
		return "", err
	}
	out, err := EncodeCompact(SanitizeLinks(v))
	if err != nil {
		return "", fmt.Errorf("re-encode: %w", err)
	}
	return out, nil
}
