package xmltv

import (
	"errors"
	"strings"
	"time"
)

// XMLTV timestamps are YYYYMMDDHHMMSS with trailing fields optional, plus an
// optional ±HHMM zone offset. Truncated month/day default to 01, truncated
// time fields to 00. No offset means UTC.

var (
	errTimeEmpty    = errors.New("empty timestamp")
	errTimeDigits   = errors.New("timestamp is not all digits")
	errTimeLength   = errors.New("timestamp too short")
	errTimeRange    = errors.New("timestamp field out of range")
	errBadOffset    = errors.New("malformed zone offset")
	errOffsetDigits = errors.New("zone offset is not all digits")
)

// ParseTime converts an XMLTV timestamp to epoch seconds UTC.
func ParseTime(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errTimeEmpty
	}

	core := s
	offsetSec := 0
	if i := strings.IndexAny(s, "+-"); i > 0 {
		var err error
		offsetSec, err = parseOffset(s[i:])
		if err != nil {
			return 0, err
		}
		core = strings.TrimSpace(s[:i])
	}

	if len(core) < 4 || len(core) > 14 || len(core)%2 != 0 {
		return 0, errTimeLength
	}
	for i := 0; i < len(core); i++ {
		if core[i] < '0' || core[i] > '9' {
			return 0, errTimeDigits
		}
	}

	year := atoi(core[0:4])
	month, day := 1, 1
	hour, minute, sec := 0, 0, 0
	if len(core) >= 6 {
		month = atoi(core[4:6])
	}
	if len(core) >= 8 {
		day = atoi(core[6:8])
	}
	if len(core) >= 10 {
		hour = atoi(core[8:10])
	}
	if len(core) >= 12 {
		minute = atoi(core[10:12])
	}
	if len(core) == 14 {
		sec = atoi(core[12:14])
	}

	if month < 1 || month > 12 || day < 1 || day > 31 ||
		hour > 23 || minute > 59 || sec > 59 {
		return 0, errTimeRange
	}

	// Wall-clock time in the stated zone; subtracting the offset yields UTC.
	wall := time.Date(year, time.Month(month), day, hour, minute, sec, 0, time.UTC)
	return wall.Unix() - int64(offsetSec), nil
}

// parseOffset parses ±HHMM into seconds.
func parseOffset(s string) (int, error) {
	if len(s) != 5 {
		return 0, errBadOffset
	}
	sign := 1
	switch s[0] {
	case '+':
	case '-':
		sign = -1
	default:
		return 0, errBadOffset
	}
	for i := 1; i < 5; i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, errOffsetDigits
		}
	}
	hh := atoi(s[1:3])
	mm := atoi(s[3:5])
	if mm > 59 {
		return 0, errBadOffset
	}
	return sign * (hh*3600 + mm*60), nil
}

func atoi(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		n = n*10 + int(s[i]-'0')
	}
	return n
}
