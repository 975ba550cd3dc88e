package epg

import (
	"strings"
	"testing"

	"github.com/cjlhll/iptv-core/internal/playlist"
)

const hour = int64(60 * 60 * 1000)

// guide with programs 10:00-11:00 "A" and 11:00-12:00 "B" on one channel,
// reachable by normalized name "cctv1".
func testData() *Data {
	return &Data{
		ProgramsByChannel: map[string][]Program{
			"ch.1": {
				{ChannelID: "ch.1", Start: 10 * hour, End: 11 * hour, Title: "A"},
				{ChannelID: "ch.1", Start: 11 * hour, End: 12 * hour, Title: "B"},
			},
		},
		NameToChannelID: map[string]string{"cctv1": "ch.1"},
	}
}

func TestResolveChannelIDTiers(t *testing.T) {
	d := testData()

	// Tier 1: tvg-id equals an EPG channel id directly.
	if id, ok := d.ResolveChannelID(playlist.Channel{TvgID: "ch.1", Title: "whatever"}); !ok || id != "ch.1" {
		t.Fatalf("tvg-id exact: %q %v", id, ok)
	}
	// Tier 2: normalized tvg-id.
	if id, ok := d.ResolveChannelID(playlist.Channel{TvgID: "CCTV-1", Title: "whatever"}); !ok || id != "ch.1" {
		t.Fatalf("tvg-id normalized: %q %v", id, ok)
	}
	// Tier 3: normalized tvg-name.
	if id, ok := d.ResolveChannelID(playlist.Channel{TvgName: "中央电视台一套", Title: "whatever"}); !ok || id != "ch.1" {
		t.Fatalf("tvg-name normalized: %q %v", id, ok)
	}
	// Tier 4: normalized title.
	if id, ok := d.ResolveChannelID(playlist.Channel{Title: "CCTV-1 高清"}); !ok || id != "ch.1" {
		t.Fatalf("title normalized: %q %v", id, ok)
	}
	if _, ok := d.ResolveChannelID(playlist.Channel{Title: "局域网测试"}); ok {
		t.Fatal("unknown channel must not resolve")
	}
}

func TestResolveRequiresPrograms(t *testing.T) {
	d := testData()
	// A name key pointing at a channel with no program list must not resolve.
	d.NameToChannelID["湖南卫视"] = "ghost"
	if _, ok := d.ResolveChannelID(playlist.Channel{Title: "湖南卫视"}); ok {
		t.Fatal("resolved to a channel without programs")
	}
}

func TestNowProgramTitleHit(t *testing.T) {
	d := testData()
	ch := playlist.Channel{Title: "CCTV-1"}
	got, ok := d.NowProgramTitle(ch, 10*hour+30*60*1000)
	if !ok || got != "A" {
		t.Fatalf("at 10:30: %q %v", got, ok)
	}
	// Interval is [start, end): the boundary belongs to the next program.
	got, ok = d.NowProgramTitle(ch, 11*hour)
	if !ok || got != "B" {
		t.Fatalf("at 11:00: %q %v", got, ok)
	}
}

func TestNowProgramTitleGapAnnotations(t *testing.T) {
	d := testData()
	ch := playlist.Channel{Title: "CCTV-1"}

	// 12:30 is after the last program but within the skew bound: replay of B.
	got, ok := d.NowProgramTitle(ch, 12*hour+30*60*1000)
	if !ok || got != ReplayPrefix+"B" {
		t.Fatalf("at 12:30: %q %v", got, ok)
	}
	// 9:00 is before the first program: upcoming A.
	got, ok = d.NowProgramTitle(ch, 9*hour)
	if !ok || got != UpcomingPrefix+"A" {
		t.Fatalf("at 9:00: %q %v", got, ok)
	}
	// Far beyond the 72h bound: no answer.
	if _, ok := d.NowProgramTitle(ch, 12*hour+73*hour); ok {
		t.Fatal("beyond skew bound must return none")
	}
}

func TestNowProgramTitleGapTieFavorsPredecessor(t *testing.T) {
	d := &Data{
		ProgramsByChannel: map[string][]Program{
			"ch.1": {
				{ChannelID: "ch.1", Start: 0, End: 1 * hour, Title: "Earlier"},
				{ChannelID: "ch.1", Start: 3 * hour, End: 4 * hour, Title: "Later"},
			},
		},
		NameToChannelID: map[string]string{"cctv1": "ch.1"},
	}
	// 2h is equidistant from Earlier.End (1h) and Later.Start (3h).
	got, ok := d.NowProgramTitle(playlist.Channel{Title: "CCTV-1"}, 2*hour)
	if !ok || !strings.HasPrefix(got, ReplayPrefix) || !strings.HasSuffix(got, "Earlier") {
		t.Fatalf("tie: %q %v", got, ok)
	}
}

func TestNowProgramTitleBoundaries(t *testing.T) {
	empty := &Data{
		ProgramsByChannel: map[string][]Program{"ch.1": {}},
		NameToChannelID:   map[string]string{"cctv1": "ch.1"},
	}
	if _, ok := empty.NowProgramTitle(playlist.Channel{Title: "CCTV-1"}, 0); ok {
		t.Fatal("empty program list must return none")
	}
	var nilData *Data
	if _, ok := nilData.NowProgramTitle(playlist.Channel{Title: "CCTV-1"}, 0); ok {
		t.Fatal("nil snapshot must return none")
	}
	d := testData()
	if _, ok := d.NowProgramTitle(playlist.Channel{Title: "没有这个频道"}, 10*hour); ok {
		t.Fatal("unresolvable channel must return none")
	}
}

func TestProgramAt(t *testing.T) {
	d := testData()
	p, ok := d.ProgramAt(playlist.Channel{Title: "CCTV-1"}, 11*hour+1)
	if !ok || p.Title != "B" {
		t.Fatalf("ProgramAt: %+v %v", p, ok)
	}
	if _, ok := d.ProgramAt(playlist.Channel{Title: "CCTV-1"}, 20*hour); ok {
		t.Fatal("ProgramAt in a gap must return none")
	}
}
