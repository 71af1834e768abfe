package generator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrEmptyResponse means the provider answered with nothing usable.
var ErrEmptyResponse = errors.New("model returned empty content")

// Parsed is the outcome of decoding structured model output: either a
// value (OK) or a parse failure carrying the reason. Callers branch on OK.
type Parsed[T any] struct {
	Value T
	OK    bool
	Err   error
}

// Failed builds a ParseFailed result.
func Failed[T any](err error) Parsed[T] {
	return Parsed[T]{Err: err}
}

// fence matches a Markdown code block around the whole answer, on one line
// or several, with an optional info string.
var fence = regexp.MustCompile("(?s)^```[\\w+-]*\\s*(.*?)\\s*```$")

// stripFences removes a surrounding Markdown code block, if any.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if m := fence.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// Decode parses raw model output as a JSON object into T. It never panics;
// malformed or empty output yields a failed Parsed.
func Decode[T any](raw string) Parsed[T] {
	s := stripFences(raw)
	if s == "" {
		return Failed[T](ErrEmptyResponse)
	}
	var v T
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return Failed[T](fmt.Errorf("decode model output: %w", err))
	}
	return Parsed[T]{Value: v, OK: true}
}

// CleanText trims free-text output and rejects empty answers.
func CleanText(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrEmptyResponse
	}
	return s, nil
}

// FlexText accepts a JSON string or any other JSON value; non-strings are
// kept as their compact JSON text.
type FlexText string

func (f *FlexText) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = FlexText(s)
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return err
	}
	*f = FlexText(buf.String())
	return nil
}

func (f FlexText) String() string { return string(f) }
