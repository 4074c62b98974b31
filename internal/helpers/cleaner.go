package helpers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrParse reports that no JSON value could be recovered from a text.
var ErrParse = errors.New("no JSON value recoverable")

// MaxDepth bounds container nesting; encoding/json applies the same limit.
const MaxDepth = 10000

// ExtractFirstJSONValue recovers the first JSON object or array from noisy
// model output. It tolerates Markdown fences, leading commentary and
// concatenated duplicates such as {..}{..}; anything after the first complete
// value is discarded. Objects decode to *Object so key order survives a
// round trip, numbers decode to json.Number.
func ExtractFirstJSONValue(text string) (any, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: empty input", ErrParse)
	}
	s := strings.TrimSpace(trimBOM(strings.TrimSpace(text)))

	s = stripLeadingFence(s)
	s = stripTrailingFence(s)

	start := firstJSONStart(s)
	if start == -1 {
		return nil, fmt.Errorf("%w: no JSON start found", ErrParse)
	}
	s = s[start:]

	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	v, err := decodeValue(dec, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return v, nil
}

// stripLeadingFence drops an opening ``` marker; a ```json tag is treated as
// a bare fence so the tag does not survive as text.
func stripLeadingFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.Replace(s, "```json", "```", 1)
	return strings.TrimLeft(s[len("```"):], " \t\r\n")
}

func stripTrailingFence(s string) string {
	if !strings.HasSuffix(s, "```") {
		return s
	}
	return strings.TrimRight(s[:len(s)-len("```")], " \t\r\n")
}

func firstJSONStart(s string) int {
	curly := strings.IndexByte(s, '{')
	square := strings.IndexByte(s, '[')
	switch {
	case curly == -1:
		return square
	case square == -1:
		return curly
	case curly < square:
		return curly
	default:
		return square
	}
}

// decodeValue reads exactly one value from dec and leaves the rest unread.
func decodeValue(dec *json.Decoder, depth int) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	if depth >= MaxDepth {
		return nil, fmt.Errorf("nesting exceeds %d levels", MaxDepth)
	}
	switch delim {
	case '{':
		obj := NewObject()
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("object key is %T, not string", keyTok)
			}
			val, err := decodeValue(dec, depth+1)
			if err != nil {
				return nil, err
			}
			obj.Set(key, val)
		}
		if err := expectDelim(dec, '}'); err != nil {
			return nil, err
		}
		return obj, nil
	case '[':
		arr := make([]any, 0)
		for dec.More() {
			val, err := decodeValue(dec, depth+1)
			if err != nil {
				return nil, err
			}
			arr = append(arr, val)
		}
		if err := expectDelim(dec, ']'); err != nil {
			return nil, err
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("unexpected delimiter %q", delim)
	}
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

// trimBOM removes an optional UTF-8 BOM.
func trimBOM(s string) string {
	if strings.HasPrefix(s, "\uFEFF") {
		return strings.TrimPrefix(s, "\uFEFF")
	}
	if len(s) >= 3 && s[0] == 0xEF && s[1] == 0xBB && s[2] == 0xBF && utf8.ValidString(s[3:]) {
		return s[3:]
	}
	return s
}
