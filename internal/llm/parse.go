package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSONObject is returned when a completion contains no JSON object.
var ErrNoJSONObject = errors.New("no JSON object in completion")

// ParseResult is the outcome of decoding model output into T. Exactly one of
// Value (when OK) or Err is meaningful.
type ParseResult[T any] struct {
	Value T
	Err   error
}

// OK reports whether decoding succeeded.
func (r ParseResult[T]) OK() bool {
	return r.Err == nil
}

// ParseJSON decodes the first JSON object found in text. Markdown code fences
// and leading or trailing prose are tolerated.
func ParseJSON[T any](text string) ParseResult[T] {
	var out T

	obj, ok := extractObject(text)
	if !ok {
		return ParseResult[T]{Err: ErrNoJSONObject}
	}

	if err := json.Unmarshal([]byte(obj), &out); err != nil {
		return ParseResult[T]{Err: fmt.Errorf("decode completion: %w", err)}
	}
	return ParseResult[T]{Value: out}
}

func extractObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}
