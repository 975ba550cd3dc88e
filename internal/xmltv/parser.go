// Package xmltv turns an XMLTV byte stream into an epg.Data snapshot. Input
// may be gzip-compressed (detected by magic bytes) and may use any charset
// the document declares. The parse fails as a whole only on structurally
// malformed XML; individual malformed records are dropped silently.
package xmltv

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/cjlhll/iptv-core/internal/epg"
	"github.com/cjlhll/iptv-core/internal/normalize"
)

const crossMidnightMillis = 24 * 60 * 60 * 1000

type channelNode struct {
	ID           string `xml:"id,attr"`
	DisplayNames []struct {
		Text string `xml:",chardata"`
	} `xml:"display-name"`
}

type programmeNode struct {
	Channel string `xml:"channel,attr"`
	Start   string `xml:"start,attr"`
	Stop    string `xml:"stop,attr"`
	Titles  []struct {
		Text string `xml:",chardata"`
	} `xml:"title"`
}

// Parse reads an XMLTV document and builds a fresh guide snapshot.
func Parse(r io.Reader) (*epg.Data, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, gzErr := gzip.NewReader(br)
		if gzErr != nil {
			return nil, fmt.Errorf("xmltv: gzip: %w", gzErr)
		}
		defer gz.Close()
		return parseXML(gz)
	}
	return parseXML(br)
}

// ParseBytes is Parse over an in-memory payload.
func ParseBytes(b []byte) (*epg.Data, error) {
	return Parse(bytes.NewReader(b))
}

func parseXML(r io.Reader) (*epg.Data, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel

	programs := make(map[string][]epg.Program)
	nameToID := make(map[string]string)

	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("xmltv: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "channel":
			var node channelNode
			if err := dec.DecodeElement(&node, &se); err != nil {
				return nil, fmt.Errorf("xmltv: channel: %w", err)
			}
			registerChannel(nameToID, node)
		case "programme":
			var node programmeNode
			if err := dec.DecodeElement(&node, &se); err != nil {
				return nil, fmt.Errorf("xmltv: programme: %w", err)
			}
			if p, ok := buildProgram(node); ok {
				programs[p.ChannelID] = append(programs[p.ChannelID], p)
			}
		}
	}

	for id := range programs {
		list := programs[id]
		sort.SliceStable(list, func(i, j int) bool { return list[i].Start < list[j].Start })
		programs[id] = list
	}

	return &epg.Data{ProgramsByChannel: programs, NameToChannelID: nameToID}, nil
}

// registerChannel indexes every normalized key of every display name against
// the channel id. Last writer wins on key collision.
func registerChannel(nameToID map[string]string, node channelNode) {
	id := strings.TrimSpace(node.ID)
	if id == "" {
		return
	}
	for _, dn := range node.DisplayNames {
		for _, key := range normalize.Keys(dn.Text) {
			nameToID[key] = id
		}
	}
}

// buildProgram validates one programme record. Records missing a channel
// reference, either timestamp, or a non-blank title are dropped. A stop not
// strictly after start is advanced by 24 hours: some sources omit the date
// rollover on programmes crossing midnight.
func buildProgram(node programmeNode) (epg.Program, bool) {
	channelID := strings.TrimSpace(node.Channel)
	if channelID == "" {
		return epg.Program{}, false
	}
	start, offset, err := ParseTime(node.Start)
	if err != nil {
		return epg.Program{}, false
	}
	stop, _, err := ParseTime(node.Stop)
	if err != nil {
		return epg.Program{}, false
	}
	var title string
	for _, t := range node.Titles {
		if s := strings.TrimSpace(t.Text); s != "" {
			title = s
			break
		}
	}
	if title == "" {
		return epg.Program{}, false
	}
	if stop <= start {
		stop += crossMidnightMillis
	}
	return epg.Program{
		ChannelID:     channelID,
		Start:         start,
		End:           stop,
		Title:         title,
		OffsetSeconds: offset,
	}, true
}
