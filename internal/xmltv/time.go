package xmltv

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FallbackOffsetSeconds is applied to timestamps that carry no zone token.
// Feeds in this ecosystem that omit the offset mean China Standard Time;
// the fallback is fixed and never depends on the system timezone.
const FallbackOffsetSeconds = 8 * 60 * 60

// ParseTime parses an XMLTV timestamp: 12-14 digits of
// "yyyyMMdd[HH[mm[ss]]]", optionally followed by whitespace and a zone token
// ("Z" or a signed 4-digit HHMM offset). Missing minutes/seconds default to
// zero; a missing zone defaults to FallbackOffsetSeconds. Returns the
// instant as epoch milliseconds plus the offset the source declared.
func ParseTime(raw string) (millis int64, offsetSeconds int, err error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, 0, fmt.Errorf("xmltv: empty timestamp")
	}

	n := len(s)
	for i, r := range s {
		if r < '0' || r > '9' {
			n = i
			break
		}
	}
	if n < 12 {
		return 0, 0, fmt.Errorf("xmltv: timestamp %q: want at least 12 digits", raw)
	}
	digits := s[:n]
	if len(digits) > 14 {
		digits = digits[:14]
	}
	for len(digits) < 14 {
		digits += "0"
	}

	offsetSeconds, err = parseZone(strings.TrimSpace(s[n:]))
	if err != nil {
		return 0, 0, fmt.Errorf("xmltv: timestamp %q: %w", raw, err)
	}

	year, _ := strconv.Atoi(digits[0:4])
	month, _ := strconv.Atoi(digits[4:6])
	day, _ := strconv.Atoi(digits[6:8])
	hour, _ := strconv.Atoi(digits[8:10])
	minute, _ := strconv.Atoi(digits[10:12])
	sec, _ := strconv.Atoi(digits[12:14])
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || sec > 60 {
		return 0, 0, fmt.Errorf("xmltv: timestamp %q out of range", raw)
	}

	t := time.Date(year, time.Month(month), day, hour, minute, sec, 0,
		time.FixedZone("", offsetSeconds))
	return t.UnixMilli(), offsetSeconds, nil
}

// parseZone handles the optional zone token after the digit block. The digit
// block's trailing whitespace has already been trimmed by the caller.
func parseZone(zone string) (int, error) {
	switch {
	case zone == "":
		return FallbackOffsetSeconds, nil
	case zone == "Z" || zone == "z":
		return 0, nil
	}
	if len(zone) != 5 || (zone[0] != '+' && zone[0] != '-') {
		return 0, fmt.Errorf("bad zone token %q", zone)
	}
	hh, err1 := strconv.Atoi(zone[1:3])
	mm, err2 := strconv.Atoi(zone[3:5])
	if err1 != nil || err2 != nil || hh > 14 || mm > 59 {
		return 0, fmt.Errorf("bad zone token %q", zone)
	}
	off := hh*3600 + mm*60
	if zone[0] == '-' {
		off = -off
	}
	return off, nil
}
