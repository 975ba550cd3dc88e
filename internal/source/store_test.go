package source

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBlobNaming(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	p := s.PlaylistPath("http://x/list.m3u")
	g := s.GuidePath("http://x/guide.xml")
	if !strings.HasPrefix(filepath.Base(p), "channels_") || !strings.HasSuffix(p, ".m3u") {
		t.Fatalf("playlist path: %s", p)
	}
	if !strings.HasPrefix(filepath.Base(g), "epg_") || !strings.HasSuffix(g, ".xmltv") {
		t.Fatalf("guide path: %s", g)
	}
	// Different URLs must not collide.
	if p == s.PlaylistPath("http://y/list.m3u") {
		t.Fatal("distinct urls share a blob path")
	}
}

func TestReadWriteRoundTrip(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	url := "http://x/list.m3u"
	if _, err := s.ReadPlaylist(url); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist, got %v", err)
	}
	if err := s.WritePlaylist(url, []byte("#EXTM3U\n")); err != nil {
		t.Fatal(err)
	}
	b, err := s.ReadPlaylist(url)
	if err != nil || string(b) != "#EXTM3U\n" {
		t.Fatalf("read back: %q, %v", b, err)
	}
	// Overwrite replaces, never appends.
	if err := s.WritePlaylist(url, []byte("v2")); err != nil {
		t.Fatal(err)
	}
	b, _ = s.ReadPlaylist(url)
	if string(b) != "v2" {
		t.Fatalf("after overwrite: %q", b)
	}
}
