// Package epg holds the immutable program-guide snapshot and answers
// channel-resolution and "what's on now" queries against it. A snapshot is
// rebuilt wholesale by the XMLTV parser and swapped by reference on refresh;
// readers never see a partially updated guide.
package epg

import (
	"strings"

	"github.com/cjlhll/iptv-core/internal/normalize"
	"github.com/cjlhll/iptv-core/internal/playlist"
)

// Program is one guide entry. Start and End are absolute UTC epoch
// milliseconds with End > Start after cross-midnight correction.
// OffsetSeconds is the UTC offset the source declared the timestamp in,
// kept for display formatting only.
type Program struct {
	ChannelID     string
	Start         int64
	End           int64
	Title         string
	OffsetSeconds int
}

// Data is one immutable guide snapshot: programs per EPG channel id (sorted
// ascending by start time) and a normalized display-name index.
type Data struct {
	ProgramsByChannel map[string][]Program
	NameToChannelID   map[string]string
}

// Annotation prefixes for gap results from NowProgramTitle.
const (
	UpcomingPrefix = "即将："
	ReplayPrefix   = "回看："
)

// maxSkewMillis bounds how far from a program boundary a gap query may be
// answered; beyond it the guide is considered stale for that instant.
const maxSkewMillis = 72 * 60 * 60 * 1000

// ResolveChannelID maps a playlist channel to an EPG channel id. Tiers, first
// hit wins: exact tvg-id, normalized tvg-id, normalized tvg-name, normalized
// title. A resolved id must actually carry programs; a display-name collision
// can therefore never resolve to an empty program list.
func (d *Data) ResolveChannelID(ch playlist.Channel) (string, bool) {
	if d == nil {
		return "", false
	}
	if tvgID := strings.TrimSpace(ch.TvgID); tvgID != "" {
		if _, ok := d.ProgramsByChannel[tvgID]; ok {
			return tvgID, true
		}
		if id, ok := d.lookupKeys(normalize.Keys(tvgID)); ok {
			return id, true
		}
	}
	if tvgName := strings.TrimSpace(ch.TvgName); tvgName != "" {
		if id, ok := d.lookupKeys(normalize.Keys(tvgName)); ok {
			return id, true
		}
	}
	return d.lookupKeys(normalize.Keys(ch.Title))
}

func (d *Data) lookupKeys(keys []string) (string, bool) {
	for _, key := range keys {
		id, ok := d.NameToChannelID[key]
		if !ok {
			continue
		}
		if _, ok := d.ProgramsByChannel[id]; ok {
			return id, true
		}
	}
	return "", false
}

// Programs returns the sorted program list for an EPG channel id.
func (d *Data) Programs(channelID string) []Program {
	if d == nil {
		return nil
	}
	return d.ProgramsByChannel[channelID]
}

// ProgramAt returns the program whose [Start, End) interval contains
// nowMillis on the resolved channel.
func (d *Data) ProgramAt(ch playlist.Channel, nowMillis int64) (Program, bool) {
	id, ok := d.ResolveChannelID(ch)
	if !ok {
		return Program{}, false
	}
	programs := d.ProgramsByChannel[id]
	idx, hit := searchInterval(programs, nowMillis)
	if !hit {
		return Program{}, false
	}
	return programs[idx], true
}

// NowProgramTitle answers "what's on this channel at nowMillis". An exact
// interval hit returns the bare title. In a gap the nearest neighbor within
// the skew bound is returned, annotated as upcoming or replay. Unresolvable
// channels, empty guides and gaps beyond the bound return ok=false.
func (d *Data) NowProgramTitle(ch playlist.Channel, nowMillis int64) (string, bool) {
	id, ok := d.ResolveChannelID(ch)
	if !ok {
		return "", false
	}
	programs := d.ProgramsByChannel[id]
	if len(programs) == 0 {
		return "", false
	}

	insert, hit := searchInterval(programs, nowMillis)
	if hit {
		return programs[insert].Title, true
	}

	nearest, ok := nearestNeighbor(programs, insert, nowMillis)
	if !ok {
		return "", false
	}
	if minBoundaryDistance(nearest, nowMillis) > maxSkewMillis {
		return "", false
	}
	if nowMillis < nearest.Start {
		return UpcomingPrefix + nearest.Title, true
	}
	return ReplayPrefix + nearest.Title, true
}

// searchInterval binary-searches a start-sorted program list for the entry
// containing nowMillis. On a hit it returns (index, true); on a miss it
// returns (insertion point, false). Overlapping entries are tolerated: the
// search assumes but does not enforce non-overlap.
func searchInterval(programs []Program, nowMillis int64) (int, bool) {
	lo, hi := 0, len(programs)-1
	for lo <= hi {
		mid := int(uint(lo+hi) >> 1)
		p := programs[mid]
		switch {
		case nowMillis < p.Start:
			hi = mid - 1
		case nowMillis >= p.End:
			lo = mid + 1
		default:
			return mid, true
		}
	}
	return lo, false
}

// nearestNeighbor picks the program around an insertion point closest in
// time to nowMillis. Ties favor the predecessor (replay over upcoming).
func nearestNeighbor(programs []Program, insert int, nowMillis int64) (Program, bool) {
	var prev, next *Program
	if insert-1 >= 0 && insert-1 < len(programs) {
		prev = &programs[insert-1]
	}
	if insert >= 0 && insert < len(programs) {
		next = &programs[insert]
	}
	switch {
	case prev == nil && next == nil:
		return Program{}, false
	case prev == nil:
		return *next, true
	case next == nil:
		return *prev, true
	}
	if abs64(nowMillis-prev.End) <= abs64(next.Start-nowMillis) {
		return *prev, true
	}
	return *next, true
}

func minBoundaryDistance(p Program, nowMillis int64) int64 {
	ds := abs64(nowMillis - p.Start)
	de := abs64(nowMillis - p.End)
	if ds < de {
		return ds
	}
	return de
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
