// Package jsonx recovers JSON values from text produced by remote models.
//
// Model output is not guaranteed to be well-formed: it may be wrapped in
// markdown fences, surrounded by prose, truncated mid-value or carry trailing
// commas. Extract runs an ordered pipeline of small pure functions over the
// text and returns the first value that parses strictly:
//
//	StripFences -> ParseStrict -> BalancedSpan -> TrimTrailingCommas
//	            -> CloseStrings -> CloseBrackets
//
// Each stage is exported so it can be tested and reused on its own.
package jsonx

import (
	"encoding/json"
	"strings"
)

// Stage names the pipeline step at which extraction gave up.
type Stage string

const (
	StageEmpty  Stage = "empty"
	StageNoJSON Stage = "no_json"
	StageRepair Stage = "repair"
)

// ExtractError reports that no JSON value could be recovered. Raw always holds
// the caller's original text, unmodified.
type ExtractError struct {
	Raw    string
	Stage  Stage
	Reason string
	Err    error
}

func (e *ExtractError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return "jsonx: " + e.Reason + ": " + e.Err.Error()
	}
	return "jsonx: " + e.Reason
}

func (e *ExtractError) Unwrap() error { return e.Err }

// Tolerant adapts Extract to interfaces that expect an extractor value.
type Tolerant struct{}

// Extract calls the package-level Extract.
func (Tolerant) Extract(text string) (any, error) { return Extract(text) }

type repair struct {
	name string
	fn   func(string) string
}

// repairs run cumulatively; the order matters.
var repairs = []repair{
	{"trailing_commas", TrimTrailingCommas},
	{"close_strings", CloseStrings},
	{"close_brackets", CloseBrackets},
}

// Extract returns the best-effort JSON value contained in text. On failure the
// error is always an *ExtractError; Extract never panics.
func Extract(text string) (any, error) {
	stripped := StripFences(text)
	if stripped == "" {
		return nil, &ExtractError{Raw: text, Stage: StageEmpty, Reason: "empty payload"}
	}

	v, strictErr := ParseStrict(stripped)
	if strictErr == nil {
		return v, nil
	}

	candidate, ok := BalancedSpan(stripped)
	if ok {
		if v, err := ParseStrict(candidate); err == nil {
			return v, nil
		}
	} else {
		start := strings.IndexAny(stripped, "{[")
		if start < 0 {
			return nil, &ExtractError{Raw: text, Stage: StageNoJSON, Reason: "no JSON object or array found", Err: strictErr}
		}
		candidate = stripped[start:]
	}

	for _, r := range repairs {
		candidate = r.fn(candidate)
		if v, err := ParseStrict(candidate); err == nil {
			return v, nil
		}
	}
	return nil, &ExtractError{Raw: text, Stage: StageRepair, Reason: "payload is not repairable JSON", Err: strictErr}
}

// StripFences trims surrounding whitespace and a markdown code fence, including
// an optional language tag on the opening fence line.
func StripFences(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = s[3:]
		line := s
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			line = s[:nl]
		}
		if isFenceTag(strings.TrimSpace(line)) {
			s = s[len(line):]
		}
	}
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "```") {
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}

func isFenceTag(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '+', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}

// ParseStrict decodes text with encoding/json. Trailing data is an error.
func ParseStrict(text string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, err
	}
	return v, nil
}
