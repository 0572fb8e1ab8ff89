// Package eventtime parses the loosely formatted event dates entered in the CMS
// and derives event status from them against an explicit reference instant.
package eventtime

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

var (
	yearRegex    = regexp.MustCompile(`\b\d{4}\b`)
	ordinalRegex = regexp.MustCompile(`(\d+)(st|nd|rd|th)\b`)
)

type layout struct {
	value    string
	dateOnly bool
}

var isoLayouts = []layout{
	{time.RFC3339, false},
	{"2006-01-02T15:04:05", false},
	{"2006-01-02T15:04", false},
	{"2006-01-02 15:04:05", false},
	{"2006-01-02 15:04", false},
	{"2006-01-02", true},
	{"20060102", true},
}

var textualLayouts = []layout{
	{"January 2, 2006", true},
	{"Jan 2, 2006", true},
	{"January 2 2006", true},
	{"Jan 2 2006", true},
	{"2 January 2006", true},
	{"2 Jan 2006", true},
	{"Monday, January 2, 2006", true},
	{"Mon, Jan 2, 2006", true},
	{"January 2, 2006 3:04 PM", false},
	{"January 2, 2006 3:04PM", false},
	{"Jan 2, 2006 3:04 PM", false},
}

// Parse interprets s relative to now. Zone-less values are read in now's
// location and a missing year is taken from now. dateOnly reports that s
// carried no time of day.
func Parse(s string, now time.Time) (t time.Time, dateOnly bool, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, false
	}
	loc := now.Location()

	for _, l := range isoLayouts {
		if parsed, err := time.ParseInLocation(l.value, s, loc); err == nil {
			return parsed, l.dateOnly, true
		}
	}

	text := ordinalRegex.ReplaceAllString(s, "$1")
	if !yearRegex.MatchString(text) {
		text = withYear(text, now.Year())
	}

	for _, l := range textualLayouts {
		if parsed, err := time.ParseInLocation(l.value, text, loc); err == nil {
			return parsed, l.dateOnly, true
		}
	}

	parsed, err := dateparse.ParseIn(text, loc)
	if err != nil {
		return time.Time{}, false, false
	}
	only := parsed.Hour() == 0 && parsed.Minute() == 0 && parsed.Second() == 0
	return parsed, only, true
}

func withYear(s string, year int) string {
	y := strconv.Itoa(year)
	if s != "" && s[0] >= '0' && s[0] <= '9' {
		return s + " " + y
	}
	return s + ", " + y
}

// EndOfDay returns the last instant of t's calendar day
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}

// Status derives the upcoming and ended flags of an event window.
// With only a start date, the event ends with the start's calendar day;
// a date-only end date ends with its calendar day.
func Status(startDate, endDate string, now time.Time) (upcoming, ended bool) {
	start, _, hasStart := Parse(startDate, now)
	end, endDateOnly, hasEnd := Parse(endDate, now)

	if hasStart {
		upcoming = start.After(now)
	}

	switch {
	case hasEnd:
		if endDateOnly {
			end = EndOfDay(end)
		}
		ended = now.After(end)
	case hasStart:
		ended = now.After(EndOfDay(start))
	}
	return upcoming, ended
}

// Start returns the parsed start instant of an event, if any
func Start(startDate string, now time.Time) (time.Time, bool) {
	t, _, ok := Parse(startDate, now)
	return t, ok
}
