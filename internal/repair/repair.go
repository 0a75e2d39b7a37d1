// Package repair extracts a single well-formed JSON record from raw
// intelligence-call output. Upstream models wrap records in prose or code
// fences, duplicate them back-to-back, or truncate them; this layer imposes
// structure without ever calling an external service.
package repair

import (
	"encoding/json"
	"strings"
)

// Error is returned when no well-formed record can be recovered. It carries
// the original text for diagnostics; callers decide whether the failure is
// fatal or triggers a stage fallback.
type Error struct {
	Reason string
	Raw    string
}

func (e *Error) Error() string {
	return "repair: " + e.Reason
}

// Record extracts the first complete JSON object or array from raw.
// When the input contains a well-formed record followed by anything else
// (a duplicate of the same record, trailing prose), only the first record
// is returned and records are never merged. The function is idempotent:
// Record(Record(x)) == Record(x) for any recoverable x.
func Record(raw string) (string, error) {
	text := stripWrappers(raw)
	if text == "" {
		return "", &Error{Reason: "empty response", Raw: raw}
	}

	// Fast path: the whole thing is already valid.
	if json.Valid([]byte(text)) {
		return text, nil
	}

	// Scan for the first syntactically balanced block starting at the first
	// opening delimiter, discarding everything after it.
	block, ok := balancedBlock(text)
	if !ok {
		return "", &Error{Reason: "no balanced record found", Raw: raw}
	}
	if !json.Valid([]byte(block)) {
		return "", &Error{Reason: "balanced block is not valid JSON", Raw: raw}
	}
	return block, nil
}

// Into repairs raw and unmarshals the recovered record into v.
func Into(raw string, v any) error {
	rec, err := Record(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(rec), v); err != nil {
		return &Error{Reason: "unmarshal: " + err.Error(), Raw: raw}
	}
	return nil
}

// stripWrappers removes markdown code fences and leading prose before the
// first structural delimiter.
func stripWrappers(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	// Drop leading prose up to the first opening delimiter.
	obj := strings.IndexByte(text, '{')
	arr := strings.IndexByte(text, '[')
	start := obj
	if start < 0 || (arr >= 0 && arr < start) {
		start = arr
	}
	if start > 0 {
		text = text[start:]
	}

	return strings.TrimSpace(text)
}

// balancedBlock returns the substring from the first opening delimiter to
// the point where delimiter depth returns to zero, tracking JSON string
// literals and escapes so braces inside strings don't count.
func balancedBlock(text string) (string, bool) {
	start := -1
	for i := 0; i < len(text); i++ {
		if text[i] == '{' || text[i] == '[' {
			start = i
			break
		}
	}
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escape := false
	for i := start; i < len(text); i++ {
		c := text[i]

		if inString {
			switch {
			case escape:
				escape = false
			case c == '\\':
				escape = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}

	return "", false
}
