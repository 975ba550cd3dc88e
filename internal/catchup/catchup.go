// Package catchup builds time-shifted playback URLs from per-channel
// templates. Two placeholder dialects are honored simultaneously: the
// documented brace style ({begin_utc}, ...) and the widely deployed ${...}
// style, whose bare time tokens mean fixed +08:00 wall time. Catch-up servers
// expect that fixed regional time regardless of the device timezone.
package catchup

import (
	"strconv"
	"strings"
	"time"
)

// Mode is the catch-up URL construction mode.
type Mode int

const (
	// ModeNone disables catch-up; building always yields no URL.
	ModeNone Mode = iota
	// ModeAppend concatenates the filled template onto the live URL.
	ModeAppend
	// ModeDefault uses the filled template as the complete URL.
	ModeDefault
)

const timeLayout = "20060102150405"

// cst is the fixed +08:00 offset used by bare template tokens. Fixed by
// protocol convention, independent of the system timezone.
var cst = time.FixedZone("CST", 8*60*60)

// ParseMode parses a raw catchup mode string case-insensitively.
// Unrecognized or absent values map to ModeNone.
func ParseMode(raw string) Mode {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "append":
		return ModeAppend
	case "default":
		return ModeDefault
	default:
		return ModeNone
	}
}

// FormatUTC renders an instant as yyyyMMddHHmmss in UTC.
func FormatUTC(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// FormatCST renders an instant as yyyyMMddHHmmss at the fixed +08:00 offset.
func FormatCST(t time.Time) string {
	return t.In(cst).Format(timeLayout)
}

// BuildURL expands a channel's catch-up template for the [start, stop)
// window. It returns ok=false when the mode is none/unrecognized or the
// template is blank — a normal "not supported" outcome, not an error.
// Every occurrence of every recognized token is replaced in a single pass;
// unrecognized tokens pass through unchanged.
func BuildURL(liveURL, modeRaw, sourceTemplate string, start, stop time.Time) (string, bool) {
	mode := ParseMode(modeRaw)
	if mode == ModeNone {
		return "", false
	}
	template := strings.TrimSpace(sourceTemplate)
	if template == "" {
		return "", false
	}

	beginUTC := FormatUTC(start)
	endUTC := FormatUTC(stop)
	beginCST := FormatCST(start)
	endCST := FormatCST(stop)
	beginTS := strconv.FormatInt(start.Unix(), 10)
	endTS := strconv.FormatInt(stop.Unix(), 10)

	// Ordered substitution rules covering both dialects. The ":utc" ${...}
	// variants must precede their bare counterparts so the longer token wins.
	filled := strings.NewReplacer(
		"{begin_utc}", beginUTC,
		"{end_utc}", endUTC,
		"{begin_cst}", beginCST,
		"{end_cst}", endCST,
		"{begin_ts}", beginTS,
		"{end_ts}", endTS,
		"${(b)yyyyMMddHHmmss:utc}", beginUTC,
		"${(e)yyyyMMddHHmmss:utc}", endUTC,
		"${(b)yyyyMMddHHmmss}", beginCST,
		"${(e)yyyyMMddHHmmss}", endCST,
		"${start}", beginTS,
		"${end}", endTS,
		"${timestamp}", beginTS,
	).Replace(template)

	if mode == ModeAppend {
		return liveURL + filled, true
	}
	return filled, true
}

// WindowForProgram converts a guide program's millisecond interval into a
// playback window, clamping the stop to "not after now" so a replay of the
// currently airing program seeks only into its elapsed part.
func WindowForProgram(startMillis, endMillis int64, now time.Time) (start, stop time.Time) {
	start = time.UnixMilli(startMillis)
	stop = time.UnixMilli(endMillis)
	if stop.After(now) {
		stop = now
	}
	if stop.Before(start) {
		stop = start
	}
	return start, stop
}
