package schema

import (
	"strconv"
	"strings"
	"time"
)

// Integers strictly inside this interval are read as epoch seconds.
const (
	epochSecondsMin = 1_000_000_000
	epochSecondsMax = 2_000_000_000
)

// timestampLayouts are tried in order; the first that parses wins.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"2006.01.02",
	"01/02/2006 15:04:05",
	"1/2/2006 15:04:05",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"1-2-2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	"02-Jan-2006",
}

var clockLayouts = []string{"15:04:05.999999999", "15:04:05", "15:04"}

// ParseBool accepts true/false/1/0 in any case.
func ParseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1":
		return true, true
	case "false", "0":
		return false, true
	}
	return false, false
}

// ParseInt parses a base-10 signed 64-bit integer.
func ParseInt(s string) (int64, bool) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return v, err == nil
}

// ParseFloat parses a 64-bit float.
func ParseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v, err == nil
}

// IsEpochSeconds reports whether v falls in the range read as epoch seconds.
func IsEpochSeconds(v int64) bool {
	return v > epochSecondsMin && v < epochSecondsMax
}

// LooksLikeTimestamp is the cheap heuristic used during type probing: the
// text contains a date or clock separator, or is an epoch-seconds integer.
func LooksLikeTimestamp(s string) bool {
	if strings.ContainsAny(s, "-/:") {
		return true
	}
	v, ok := ParseInt(s)
	return ok && IsEpochSeconds(v)
}

// ParseTimestamp converts text to milliseconds since the Unix epoch.
// Epoch-second integers are scaled to milliseconds, other integers are taken
// as milliseconds already, and bare clock times yield milliseconds since
// midnight.
func ParseTimestamp(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if v, ok := ParseInt(s); ok {
		if IsEpochSeconds(v) {
			return v * 1000, true
		}
		return v, true
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixMilli(), true
		}
	}
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d := time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second +
				time.Duration(t.Nanosecond())
			return d.Milliseconds(), true
		}
	}
	return 0, false
}
