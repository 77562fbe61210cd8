package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Text is a string that also accepts JSON numbers, booleans and null.
// Client configuration is produced by several upstream tools that disagree
// on whether codes, sequences and caps are strings or numbers.
type Text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*t = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return eris.Wrap(err, "model: decode text")
		}
		*t = Text(s)
	case b[0] == '{' || b[0] == '[':
		return eris.Errorf("model: expected scalar, got %s", string(b[:1]))
	default:
		*t = Text(b)
	}
	return nil
}

// String returns the underlying string.
func (t Text) String() string { return string(t) }

// Blank reports whether the value is empty after trimming whitespace.
func (t Text) Blank() bool { return strings.TrimSpace(string(t)) == "" }

// Int is an integer that also accepts numeric strings.
type Int int

// UnmarshalJSON implements json.Unmarshaler.
func (i *Int) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return eris.New("model: integer can't be null")
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return eris.Wrap(err, "model: decode integer")
		}
		b = []byte(strings.TrimSpace(s))
	}
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return eris.Wrapf(err, "model: %q is not an integer", string(b))
	}
	*i = Int(n)
	return nil
}

// StringList accepts either a JSON array of strings or a single string.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*l = nil
		return nil
	}
	if b[0] == '[' {
		var items []Text
		if err := json.Unmarshal(b, &items); err != nil {
			return eris.Wrap(err, "model: decode string list")
		}
		out := make([]string, len(items))
		for i, it := range items {
			out[i] = string(it)
		}
		*l = out
		return nil
	}
	var s Text
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	if s == "" {
		*l = nil
		return nil
	}
	*l = StringList{string(s)}
	return nil
}

// Contains reports whether s is an element of the list.
func (l StringList) Contains(s string) bool {
	for _, v := range l {
		if v == s {
			return true
		}
	}
	return false
}

// embeddedJSON decodes b either as a JSON string holding a JSON document, or
// as the document itself. Config tables carry most nested structures as
// strings, but some producers inline them.
func embeddedJSON(b []byte, v any) (string, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return "", nil
	}
	raw := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return "", eris.Wrap(err, "model: decode embedded json string")
		}
		if strings.TrimSpace(raw) == "" {
			return "", nil
		}
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return raw, eris.Wrap(err, "model: decode embedded json")
	}
	return raw, nil
}
