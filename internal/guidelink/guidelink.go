// Package guidelink suggests guide (tvg) ids for channels that imported
// without one, by matching them against the channel list of an XMLTV guide.
// Only deterministic matches are offered: an exact id hit, a configured
// alias, or a normalized name that maps to exactly one guide channel.
package guidelink

import (
	"encoding/json"
	"io"
	"sort"
	"strings"
	"unicode"

	"github.com/snapetech/iptv-catalog/internal/catalog"
	"github.com/snapetech/iptv-catalog/internal/xmltv"
)

type Method string

const (
	MethodIDExact   Method = "id_exact"
	MethodAlias     Method = "alias"
	MethodNameExact Method = "name_exact"
)

// Aliases maps normalized channel names to guide channel ids, for providers
// whose naming never lines up with the guide.
type Aliases struct {
	NameToGuideID map[string]string `json:"name_to_guide_id,omitempty"`
}

type Match struct {
	ChannelID  string `json:"channel_id"`
	Name       string `json:"name"`
	TvgID      string `json:"tvg_id,omitempty"`
	Matched    bool   `json:"matched"`
	GuideID    string `json:"guide_id,omitempty"`
	Method     Method `json:"method,omitempty"`
	Normalized string `json:"normalized_name,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

type Report struct {
	TotalChannels int            `json:"total_channels"`
	Matched       int            `json:"matched"`
	Unmatched     int            `json:"unmatched"`
	Methods       map[string]int `json:"methods"`
	Rows          []Match        `json:"rows"`
}

// Normalize reduces a channel name to a deterministic matching token:
// lowercase, punctuation collapsed, quality and region noise dropped.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	noise := map[string]struct{}{
		"hd": {}, "uhd": {}, "fhd": {}, "sd": {}, "4k": {},
		"us": {}, "usa": {}, "uk": {}, "ca": {},
		"hq": {}, "vip": {}, "backup": {}, "raw": {},
	}
	toks := strings.Fields(b.String())
	out := toks[:0]
	for _, t := range toks {
		if _, drop := noise[t]; drop {
			continue
		}
		out = append(out, t)
	}
	joined := strings.Join(out, "")
	return strings.ReplaceAll(joined, "channel", "")
}

// LoadAliases reads an alias file and normalizes its keys.
func LoadAliases(r io.Reader) (Aliases, error) {
	var out Aliases
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return Aliases{}, err
	}
	norm := make(map[string]string, len(out.NameToGuideID))
	for k, v := range out.NameToGuideID {
		nk := Normalize(k)
		if nk == "" || strings.TrimSpace(v) == "" {
			continue
		}
		norm[nk] = strings.TrimSpace(v)
	}
	out.NameToGuideID = norm
	return out, nil
}

// MatchChannels pairs catalog channels against guide channel definitions.
// Channels that already carry a tvg id are confirmed (or reported stale)
// via the id tier; the rest go through aliases and unique-name matching.
func MatchChannels(channels []catalog.Channel, guide []xmltv.ChannelDef, aliases Aliases) Report {
	byID := make(map[string]string, len(guide))
	// Normalized name to unique guide id; "" marks an ambiguous name.
	nameToID := make(map[string]string)
	for _, gc := range guide {
		idKey := strings.ToLower(strings.TrimSpace(gc.ID))
		if idKey != "" {
			byID[idKey] = gc.ID
		}
		for _, n := range append([]string{gc.ID}, gc.DisplayNames...) {
			nk := Normalize(n)
			if nk == "" {
				continue
			}
			if existing, ok := nameToID[nk]; ok && existing != gc.ID {
				nameToID[nk] = ""
				continue
			}
			nameToID[nk] = gc.ID
		}
	}

	rep := Report{
		TotalChannels: len(channels),
		Methods:       map[string]int{},
		Rows:          make([]Match, 0, len(channels)),
	}
	for _, ch := range channels {
		row := Match{
			ChannelID:  ch.ID,
			Name:       ch.Name,
			TvgID:      ch.TvgID,
			Normalized: Normalize(ch.Name),
		}
		if tid := strings.ToLower(strings.TrimSpace(ch.TvgID)); tid != "" {
			if guideID, ok := byID[tid]; ok {
				row.Matched, row.GuideID, row.Method = true, guideID, MethodIDExact
			}
		}
		if !row.Matched && row.Normalized != "" {
			if guideID := aliases.NameToGuideID[row.Normalized]; guideID != "" {
				row.Matched, row.GuideID, row.Method = true, guideID, MethodAlias
			}
		}
		if !row.Matched && row.Normalized != "" {
			if guideID, ok := nameToID[row.Normalized]; ok {
				if guideID != "" {
					row.Matched, row.GuideID, row.Method = true, guideID, MethodNameExact
				} else {
					row.Reason = "ambiguous normalized name"
				}
			}
		}
		if !row.Matched && row.Reason == "" {
			row.Reason = "no deterministic match"
		}
		if row.Matched {
			rep.Matched++
			rep.Methods[string(row.Method)]++
		}
		rep.Rows = append(rep.Rows, row)
	}
	rep.Unmatched = rep.TotalChannels - rep.Matched

	sort.Slice(rep.Rows, func(i, j int) bool {
		if rep.Rows[i].Matched != rep.Rows[j].Matched {
			return rep.Rows[j].Matched
		}
		return strings.ToLower(rep.Rows[i].Name) < strings.ToLower(rep.Rows[j].Name)
	})
	return rep
}

// Suggestions returns the matches that would change a channel: a guide id
// for a channel that has none, or a different one than it carries.
func (r Report) Suggestions() []Match {
	out := make([]Match, 0, r.Matched)
	for _, row := range r.Rows {
		if row.Matched && row.GuideID != row.TvgID {
			out = append(out, row)
		}
	}
	return out
}

func (r Report) UnmatchedRows() []Match {
	out := make([]Match, 0, r.Unmatched)
	for _, row := range r.Rows {
		if !row.Matched {
			out = append(out, row)
		}
	}
	return out
}
