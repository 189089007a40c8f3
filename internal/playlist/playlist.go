// Package playlist parses the M3U/EXTINF playlist grammar into entries.
//
// The parser is streaming (bufio.Scanner) so multi-hundred-MB provider
// playlists never need to be held in memory, and it never fails hard:
// malformed lines are reported as ParseErrors alongside whatever entries
// could be recovered. Provider exports are noisy — availability beats
// strictness here.
package playlist

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net/url"
	"path"
	"strconv"
	"strings"
)

const (
	maxLineSize  = 1 << 20 // 1 MiB per line
	maxErrorText = 200     // offending text is truncated in ParseError
)

// DurationLive is the EXTINF duration sentinel for live streams.
const DurationLive = -1

// Reason classifies a non-fatal parse defect.
type Reason string

const (
	ReasonBadDuration    Reason = "bad_duration"
	ReasonMissingName    Reason = "missing_name"
	ReasonMissingLocator Reason = "missing_locator"
	ReasonOrphanLocator  Reason = "orphan_locator"
	ReasonLineTooLong    Reason = "line_too_long"
	ReasonReadFailed     Reason = "read_failed"
)

// ParseError is one recoverable defect found while parsing.
type ParseError struct {
	Line   int
	Reason Reason
	Text   string // offending line, truncated to 200 chars
}

// Header carries playlist-level hints from the #EXTM3U line.
type Header struct {
	GuideURL      string // url-tvg / x-tvg-url
	CatchupKind   string // catchup / catchup-type
	CatchupSource string
	CatchupDays   int
}

// Entry is one playlist entry: a directive line plus its locator.
type Entry struct {
	Name          string
	ProviderID    string // CUID / channel-id attribute; stable across URL churn when present
	TvgID         string // guide join key
	Group         string
	URL           string
	LogoURL       string
	ChannelNumber int // 0 = unset
	// Duration from the directive: negative = live, positive = on-demand seconds.
	Duration float64
	// Extra holds attributes outside the known set, verbatim.
	Extra map[string]string
}

// Result is the full outcome of one parse.
type Result struct {
	Header  Header
	Entries []Entry
	Errors  []ParseError
}

// Parse reads an M3U document and returns every recoverable entry plus the
// defects encountered. It never returns an error: unreadable input yields an
// empty Result with the scanner failure recorded.
func Parse(r io.Reader) *Result {
	res := &Result{}
	sc := bufio.NewScanner(r)
	sc.Buffer(nil, maxLineSize)

	var pending *Entry
	pendingLine := 0
	lineNo := 0
	first := true

	flushPendingAsError := func() {
		if pending != nil {
			res.addError(pendingLine, ReasonMissingLocator, pending.Name)
			pending = nil
		}
	}

	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if first {
			line = stripBOM(line)
			first = false
		}
		line = strings.TrimRight(line, "\r")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "#EXTM3U"):
			res.Header = parseHeader(line)

		case strings.HasPrefix(line, "#EXTINF:"):
			flushPendingAsError()
			e, errs := parseDirective(line, lineNo)
			res.Errors = append(res.Errors, errs...)
			pending = &e
			pendingLine = lineNo

		case strings.HasPrefix(line, "#"):
			// Player options, third-party props, #EXTGRP etc. — skipped
			// without disturbing a pending directive/locator pair.

		default:
			// Locator line.
			if pending == nil {
				e := Entry{
					Name:     nameFromLocator(line),
					URL:      line,
					Duration: DurationLive,
				}
				res.Entries = append(res.Entries, e)
				res.addError(lineNo, ReasonOrphanLocator, line)
				continue
			}
			pending.URL = line
			if pending.Name == "" {
				pending.Name = nameFromLocator(line)
			}
			res.Entries = append(res.Entries, *pending)
			pending = nil
		}
	}
	flushPendingAsError()

	if err := sc.Err(); err != nil {
		reason := ReasonReadFailed
		if errors.Is(err, bufio.ErrTooLong) {
			reason = ReasonLineTooLong
		}
		res.addError(lineNo+1, reason, err.Error())
	}
	return res
}

// ParseBytes parses an in-memory document. Used by tests and file imports.
func ParseBytes(data []byte) *Result {
	return Parse(bytes.NewReader(data))
}

func (r *Result) addError(line int, reason Reason, text string) {
	if len(text) > maxErrorText {
		text = text[:maxErrorText]
	}
	r.Errors = append(r.Errors, ParseError{Line: line, Reason: reason, Text: text})
}

func stripBOM(s string) string {
	return strings.TrimPrefix(s, "\uFEFF")
}

// parseHeader extracts guide and catch-up hints from the #EXTM3U line.
func parseHeader(line string) Header {
	attrs, _, _ := scanAttributes(strings.TrimPrefix(line, "#EXTM3U"), headerAttrs)
	h := Header{
		GuideURL:      firstNonEmpty(attrs["url-tvg"], attrs["x-tvg-url"], attrs["tvg-url"]),
		CatchupKind:   firstNonEmpty(attrs["catchup"], attrs["catchup-type"]),
		CatchupSource: attrs["catchup-source"],
	}
	if v := attrs["catchup-days"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			h.CatchupDays = n
		}
	}
	return h
}

// parseDirective parses one #EXTINF line into an Entry (locator still empty).
func parseDirective(line string, lineNo int) (Entry, []ParseError) {
	var errs []ParseError
	payload := strings.TrimPrefix(line, "#EXTINF:")

	// Display name is everything after the last comma that is not inside a
	// quoted attribute value; quoted commas (e.g. group-title="News, US")
	// must not truncate it.
	attrPart := payload
	name := ""
	if i := lastUnquotedComma(payload); i >= 0 {
		attrPart = payload[:i]
		name = strings.TrimSpace(payload[i+1:])
	}

	// Leading duration token, before the first attribute.
	durTok := attrPart
	if i := strings.IndexAny(attrPart, " \t"); i >= 0 {
		durTok = attrPart[:i]
		attrPart = attrPart[i:]
	} else {
		attrPart = ""
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(durTok), 64)
	if err != nil {
		dur = DurationLive
		errs = append(errs, ParseError{Line: lineNo, Reason: ReasonBadDuration, Text: truncate(line)})
	}

	attrs, extra, _ := scanAttributes(attrPart, entryAttrs)
	if name == "" {
		name = firstNonEmpty(attrs["tvg-name"], attrs["name"])
		if name == "" {
			errs = append(errs, ParseError{Line: lineNo, Reason: ReasonMissingName, Text: truncate(line)})
		}
	}

	e := Entry{
		Name:       name,
		ProviderID: firstNonEmpty(attrs["cuid"], attrs["channel-id"]),
		TvgID:      attrs["tvg-id"],
		Group:      firstNonEmpty(attrs["group-title"], attrs["tvg-group"]),
		LogoURL:    attrs["tvg-logo"],
		Duration:   dur,
		Extra:      extra,
	}
	if v := firstNonEmpty(attrs["tvg-chno"], attrs["channel-number"]); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			e.ChannelNumber = n
		}
	}
	return e, errs
}

// entryAttrs is the directive attribute set mapped to typed Entry fields;
// anything else is preserved in Entry.Extra.
var entryAttrs = map[string]bool{
	"cuid":           true,
	"channel-id":     true,
	"tvg-id":         true,
	"tvg-name":       true,
	"name":           true,
	"tvg-logo":       true,
	"tvg-chno":       true,
	"channel-number": true,
	"group-title":    true,
	"tvg-group":      true,
}

// headerAttrs is the #EXTM3U attribute set mapped to Header fields.
var headerAttrs = map[string]bool{
	"url-tvg":        true,
	"x-tvg-url":      true,
	"tvg-url":        true,
	"catchup":        true,
	"catchup-type":   true,
	"catchup-source": true,
	"catchup-days":   true,
}

// scanAttributes walks key="value" / key='value' / key=value pairs. Keys are
// lowercased. Returns the map for keys in the known set, the extras map for
// the rest (nil when empty), and whether an unterminated quote was seen.
func scanAttributes(s string, known map[string]bool) (map[string]string, map[string]string, bool) {
	attrs := make(map[string]string)
	var extra map[string]string
	unterminated := false

	i := 0
	n := len(s)
	for i < n {
		// Skip separators.
		for i < n && (s[i] == ' ' || s[i] == '\t' || s[i] == ',') {
			i++
		}
		start := i
		for i < n && s[i] != '=' && s[i] != ' ' && s[i] != '\t' {
			i++
		}
		if i >= n || s[i] != '=' {
			continue // bare token, not an attribute
		}
		key := strings.ToLower(s[start:i])
		i++ // consume '='
		var val string
		if i < n && (s[i] == '"' || s[i] == '\'') {
			q := s[i]
			i++
			vstart := i
			for i < n && s[i] != q {
				i++
			}
			val = s[vstart:i]
			if i < n {
				i++ // closing quote
			} else {
				unterminated = true
			}
		} else {
			vstart := i
			for i < n && s[i] != ' ' && s[i] != '\t' && s[i] != ',' {
				i++
			}
			val = s[vstart:i]
		}
		if key == "" {
			continue
		}
		if known[key] {
			attrs[key] = val
		} else {
			if extra == nil {
				extra = make(map[string]string)
			}
			extra[key] = val
		}
	}
	return attrs, extra, unterminated
}

// lastUnquotedComma returns the index of the last comma outside single or
// double quotes, or -1.
func lastUnquotedComma(s string) int {
	last := -1
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == ',':
			last = i
		}
	}
	return last
}

// nameFromLocator synthesizes a display name for an orphaned locator.
func nameFromLocator(loc string) string {
	if u, err := url.Parse(loc); err == nil && u.Path != "" {
		base := path.Base(u.Path)
		if base != "" && base != "/" && base != "." {
			if i := strings.LastIndex(base, "."); i > 0 {
				base = base[:i]
			}
			return base
		}
	}
	return loc
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string) string {
	if len(s) > maxErrorText {
		return s[:maxErrorText]
	}
	return s
}
