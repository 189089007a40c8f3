// Package xmltv parses XMLTV guide documents incrementally.
//
// Guide files from providers run to hundreds of megabytes, so the parser is
// a state machine fed by xml.Decoder tokens: memory is bounded by the
// element currently open, never by the document. One malformed programme is
// dropped with an error record; the rest of the document still parses.
package xmltv

import (
	"encoding/xml"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

// ChannelDef is one <channel> element: an external id plus display names.
type ChannelDef struct {
	ID           string
	DisplayNames []string
	IconURL      string
}

// Program is one <programme> element. Start/Stop are epoch seconds UTC.
// Start < Stop is not checked here; the store owns that decision.
type Program struct {
	ChannelID   string
	Start       int64
	Stop        int64
	Title       string
	Description string
	Category    string
	IconURL     string
	Rating      string
}

// Reason classifies a per-entry defect.
type Reason string

const (
	ReasonMissingChannelID   Reason = "missing_channel_id"
	ReasonMissingDisplayName Reason = "missing_display_name"
	ReasonMissingChannelRef  Reason = "missing_channel_ref"
	ReasonBadStart           Reason = "bad_start"
	ReasonBadStop            Reason = "bad_stop"
	ReasonMissingTitle       Reason = "missing_title"
	ReasonSyntax             Reason = "xml_syntax"
)

// ParseError is one recoverable defect with its position in the document.
type ParseError struct {
	Line   int
	Reason Reason
	Detail string
}

// Result summarizes a parse: committed entry counts plus all defects.
type Result struct {
	Channels int
	Programs int
	Errors   []ParseError
}

// Handler receives committed entries. Either callback may be nil.
// Entries are only delivered at element end, fully validated; no partial
// channel or programme ever reaches a handler.
type Handler struct {
	Channel func(ChannelDef)
	Program func(Program)
}

// parser is the explicit state machine. At most one channel and one
// programme accumulator are live at a time.
type parser struct {
	dec *xml.Decoder
	h   Handler
	res *Result

	curChannel *ChannelDef
	curProg    *progAcc
	inRating   bool
	collecting string // element name whose text is being accumulated
	text       strings.Builder
}

// progAcc holds raw programme fields until end-element validation.
type progAcc struct {
	channel, start, stop            string
	title, desc, category, icon     string
	rating                          string
	line                            int
}

// Parse consumes the stream and reports committed counts and defects.
// It never returns a Go error: an unrecoverable decoder failure is recorded
// as a ReasonSyntax entry and whatever was committed before it is kept.
func Parse(r io.Reader, h Handler) *Result {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel
	dec.Strict = true

	p := &parser{dec: dec, h: h, res: &Result{}}
	p.run()
	return p.res
}

func (p *parser) run() {
	for {
		tok, err := p.dec.Token()
		if err == io.EOF {
			return
		}
		if err != nil {
			line, _ := p.pos()
			if se, ok := err.(*xml.SyntaxError); ok {
				line = se.Line
			}
			p.res.Errors = append(p.res.Errors, ParseError{Line: line, Reason: ReasonSyntax, Detail: err.Error()})
			return
		}
		switch t := tok.(type) {
		case xml.StartElement:
			p.startElement(t)
		case xml.CharData:
			if p.collecting != "" {
				// Character data for one logical value can arrive in
				// several chunks (entity boundaries); concatenate.
				p.text.Write(t)
			}
		case xml.EndElement:
			p.endElement(t)
		}
	}
}

func (p *parser) pos() (int, int) {
	line, col := p.dec.InputPos()
	return line, col
}

func (p *parser) startElement(t xml.StartElement) {
	name := t.Name.Local
	switch {
	case name == "channel" && p.curChannel == nil && p.curProg == nil:
		p.curChannel = &ChannelDef{ID: attr(t, "id")}

	case name == "display-name" && p.curChannel != nil:
		p.collect("display-name")

	case name == "icon" && p.curChannel != nil:
		if p.curChannel.IconURL == "" {
			p.curChannel.IconURL = attr(t, "src")
		}

	case name == "programme" && p.curProg == nil && p.curChannel == nil:
		line, _ := p.pos()
		p.curProg = &progAcc{
			channel: attr(t, "channel"),
			start:   attr(t, "start"),
			stop:    attr(t, "stop"),
			line:    line,
		}

	case p.curProg != nil:
		switch name {
		case "title", "desc", "category":
			p.collect(name)
		case "icon":
			if p.curProg.icon == "" {
				p.curProg.icon = attr(t, "src")
			}
		case "rating":
			p.inRating = true
		case "value":
			// Only honored inside a programme's <rating>; value elements
			// elsewhere (e.g. star-rating) are ignored.
			if p.inRating {
				p.collect("value")
			}
		}
	}
}

func (p *parser) endElement(t xml.EndElement) {
	name := t.Name.Local

	if p.collecting != "" && name == p.collecting {
		val := strings.TrimSpace(p.text.String())
		p.commitText(val)
		p.collecting = ""
		p.text.Reset()
		return
	}

	switch name {
	case "channel":
		if p.curChannel != nil {
			p.commitChannel(*p.curChannel)
			p.curChannel = nil
		}
	case "programme":
		if p.curProg != nil {
			p.commitProgram(*p.curProg)
			p.curProg = nil
			p.inRating = false
		}
	case "rating":
		p.inRating = false
	}
}

func (p *parser) collect(name string) {
	p.collecting = name
	p.text.Reset()
}

func (p *parser) commitText(val string) {
	switch p.collecting {
	case "display-name":
		if p.curChannel != nil && val != "" {
			p.curChannel.DisplayNames = append(p.curChannel.DisplayNames, val)
		}
	case "title":
		if p.curProg != nil && p.curProg.title == "" {
			p.curProg.title = val
		}
	case "desc":
		if p.curProg != nil && p.curProg.desc == "" {
			p.curProg.desc = val
		}
	case "category":
		if p.curProg != nil && p.curProg.category == "" {
			p.curProg.category = val
		}
	case "value":
		if p.curProg != nil && p.curProg.rating == "" {
			p.curProg.rating = val
		}
	}
}

// commitChannel validates and emits a finished <channel>. A channel missing
// its id or every display name is discarded whole — never partially added.
func (p *parser) commitChannel(ch ChannelDef) {
	line, _ := p.pos()
	if strings.TrimSpace(ch.ID) == "" {
		p.addError(line, ReasonMissingChannelID, "")
		return
	}
	if len(ch.DisplayNames) == 0 {
		p.addError(line, ReasonMissingDisplayName, ch.ID)
		return
	}
	p.res.Channels++
	if p.h.Channel != nil {
		p.h.Channel(ch)
	}
}

// commitProgram validates and emits a finished <programme>. Each missing or
// unparseable field yields its own error reason; any defect discards the
// whole entry.
func (p *parser) commitProgram(acc progAcc) {
	if strings.TrimSpace(acc.channel) == "" {
		p.addError(acc.line, ReasonMissingChannelRef, "")
		return
	}
	start, err := ParseTime(acc.start)
	if err != nil {
		p.addError(acc.line, ReasonBadStart, acc.start)
		return
	}
	stop, err := ParseTime(acc.stop)
	if err != nil {
		p.addError(acc.line, ReasonBadStop, acc.stop)
		return
	}
	if acc.title == "" {
		p.addError(acc.line, ReasonMissingTitle, acc.channel)
		return
	}
	p.res.Programs++
	if p.h.Program != nil {
		p.h.Program(Program{
			ChannelID:   acc.channel,
			Start:       start,
			Stop:        stop,
			Title:       acc.title,
			Description: acc.desc,
			Category:    acc.category,
			IconURL:     acc.icon,
			Rating:      acc.rating,
		})
	}
}

func (p *parser) addError(line int, reason Reason, detail string) {
	p.res.Errors = append(p.res.Errors, ParseError{Line: line, Reason: reason, Detail: detail})
}

func attr(t xml.StartElement, name string) string {
	for _, a := range t.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}
