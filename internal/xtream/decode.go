// Package xtream talks to Xtream-style player_api.php providers.
//
// Provider panels are wildly inconsistent about field typing: numeric ids
// arrive as ints on one panel and strings on the next, absent values as
// null, "" or a missing key, url lists as a string or an array. The flex
// types below absorb all of that at decode time so one malformed field never
// fails an entire response. Each type is one adapter per scalar shape —
// per-field ad hoc probing (the old interface{} switch) is deliberately gone.
package xtream

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"
	"unicode/utf8"
)

// FlexInt decodes an int or numeric string. Anything else becomes 0.
type FlexInt int

func (v *FlexInt) UnmarshalJSON(b []byte) error {
	n, _ := flexInt(b)
	*v = FlexInt(n)
	return nil
}

func (v FlexInt) Int() int { return int(v) }

// OptInt decodes an int, numeric string or null. Null, absence and garbage
// leave it unset.
type OptInt struct {
	Value int
	Valid bool
}

func (v *OptInt) UnmarshalJSON(b []byte) error {
	n, ok := flexInt(b)
	*v = OptInt{Value: n, Valid: ok}
	return nil
}

// OptFloat decodes a double, numeric string or empty string ("" and null
// leave it unset). Provider rating fields use all three shapes.
type OptFloat struct {
	Value float64
	Valid bool
}

func (v *OptFloat) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(unquote(b))
	if s == "" || s == "null" {
		*v = OptFloat{}
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*v = OptFloat{}
		return nil
	}
	*v = OptFloat{Value: f, Valid: true}
	return nil
}

// FlexString decodes a string or a bare number (ids are stringified on some
// panels and numeric on others). Null becomes "".
type FlexString string

func (v *FlexString) UnmarshalJSON(b []byte) error {
	s := unquote(b)
	if s == "null" {
		s = ""
	}
	*v = FlexString(s)
	return nil
}

func (v FlexString) String() string { return string(v) }

// StringList decodes a string or an array of strings; blank elements are
// filtered out. Used for backdrop/url-list fields.
type StringList []string

func (v *StringList) UnmarshalJSON(b []byte) error {
	*v = nil
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil
	}
	if trimmed[0] == '[' {
		var raw []FlexString
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil
		}
		for _, s := range raw {
			if t := strings.TrimSpace(string(s)); t != "" {
				*v = append(*v, t)
			}
		}
		return nil
	}
	if s := strings.TrimSpace(unquote(trimmed)); s != "" {
		*v = StringList{s}
	}
	return nil
}

// Base64Text decodes a base64-encoded text field (short-EPG titles and
// descriptions are encoded opaquely). Values that are not valid base64 —
// some panels send plain text — pass through unchanged.
type Base64Text string

func (v *Base64Text) UnmarshalJSON(b []byte) error {
	s := unquote(b)
	if s == "null" {
		*v = ""
		return nil
	}
	*v = Base64Text(decodeBase64(s))
	return nil
}

func (v Base64Text) String() string { return string(v) }

func decodeBase64(s string) string {
	t := strings.TrimSpace(s)
	if t == "" {
		return ""
	}
	dec, err := base64.StdEncoding.DecodeString(t)
	if err != nil {
		dec, err = base64.RawStdEncoding.DecodeString(t)
	}
	if err != nil || !utf8.Valid(dec) {
		return s
	}
	return string(dec)
}

// flexInt parses an int from a JSON number or numeric-string token.
// Fractional numbers truncate. Returns ok=false on null/empty/garbage.
func flexInt(b []byte) (int, bool) {
	s := strings.TrimSpace(unquote(b))
	if s == "" || s == "null" {
		return 0, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return int(n), true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f), true
	}
	return 0, false
}

// unquote strips one level of JSON string quoting without failing on
// anything; non-string tokens come back verbatim.
func unquote(b []byte) string {
	t := bytes.TrimSpace(b)
	if len(t) >= 2 && t[0] == '"' && t[len(t)-1] == '"' {
		var s string
		if err := json.Unmarshal(t, &s); err == nil {
			return s
		}
		return string(t[1 : len(t)-1])
	}
	return string(t)
}
