// Package playlist parses extended M3U playlists into an ordered channel
// list. The parser is a single-pass line state machine: an #EXTINF line
// carries the attributes for the next stream URL line; everything else is a
// comment or noise and is skipped.
package playlist

import (
	"bufio"
	"io"
	"strings"
)

const maxLineSize = 1 << 20 // 1 MiB per line

// Parse reads an M3U document and returns its channels in playlist order.
// Malformed entries are dropped; the only error reported is a read error.
func Parse(r io.Reader) ([]Channel, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(nil, maxLineSize)

	var out []Channel
	var pending *extinf

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if hasPrefixFold(line, "#EXTINF:") {
			e := parseExtinf(line)
			pending = &e
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}

		ch := Channel{URL: line, Title: line}
		if pending != nil {
			if pending.title != "" {
				ch.Title = pending.title
			}
			ch.Group = pending.attrs["group-title"]
			ch.LogoURL = pending.attrs["tvg-logo"]
			ch.TvgID = pending.attrs["tvg-id"]
			ch.TvgName = pending.attrs["tvg-name"]
			ch.CatchupMode = pending.attrs["catchup"]
			ch.CatchupSource = pending.attrs["catchup-source"]
		}
		ch.CatchupExplicit = ch.CatchupMode != "" || ch.CatchupSource != ""
		if ch.CatchupMode == "" {
			ch.CatchupMode = DefaultCatchupMode
		}
		if ch.CatchupSource == "" {
			ch.CatchupSource = DefaultCatchupSource
		}
		out = append(out, ch)
		pending = nil
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ParseString is Parse over an in-memory document.
func ParseString(content string) []Channel {
	out, _ := Parse(strings.NewReader(content))
	return out
}

type extinf struct {
	title string
	attrs map[string]string
}

// parseExtinf scans one #EXTINF line. Attributes may appear in any order
// with double-quoted, single-quoted or bare values; the display title is the
// text after the last comma. Attribute names are matched case-insensitively.
func parseExtinf(line string) extinf {
	e := extinf{attrs: make(map[string]string)}

	if idx := strings.LastIndexByte(line, ','); idx >= 0 {
		e.title = strings.TrimSpace(line[idx+1:])
		line = line[:idx]
	}

	for {
		eq := strings.IndexByte(line, '=')
		if eq <= 0 {
			break
		}
		before := strings.TrimSpace(line[:eq])
		key := before
		if idx := strings.LastIndexAny(before, " \t"); idx >= 0 {
			key = strings.TrimSpace(before[idx+1:])
		}
		line = strings.TrimSpace(line[eq+1:])
		if line == "" {
			break
		}

		var val string
		if q := line[0]; q == '"' || q == '\'' {
			end := strings.IndexByte(line[1:], q)
			if end < 0 {
				break
			}
			val = line[1 : 1+end]
			line = line[2+end:]
		} else {
			end := strings.IndexAny(line, " \t")
			if end < 0 {
				val, line = line, ""
			} else {
				val, line = line[:end], line[end:]
			}
		}
		if key != "" && val != "" {
			e.attrs[strings.ToLower(key)] = val
		}
	}
	return e
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
