package logo

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func newServer(t *testing.T, body []byte, hits *int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(hits, 1)
		w.Header().Set("Content-Type", "image/png")
		w.Write(body)
	}))
}

func TestGetScalesToFit(t *testing.T) {
	var hits int64
	srv := newServer(t, encodePNG(t, 640, 200), &hits)
	defer srv.Close()

	c, err := New(t.TempDir(), srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	img, err := c.Get(context.Background(), srv.URL+"/logo.png", 160, 100)
	if err != nil {
		t.Fatal(err)
	}
	b := img.Bounds()
	if b.Dx() != 160 || b.Dy() != 50 {
		t.Fatalf("scaled bounds = %dx%d, want 160x50", b.Dx(), b.Dy())
	}
	if hits != 1 {
		t.Fatalf("hits = %d, want 1", hits)
	}
}

func TestGetMemoryTierAvoidsNetwork(t *testing.T) {
	var hits int64
	srv := newServer(t, encodePNG(t, 64, 64), &hits)
	defer srv.Close()

	c, err := New(t.TempDir(), srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	url := srv.URL + "/a.png"
	if _, err := c.Get(context.Background(), url, 160, 100); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(context.Background(), url, 160, 100); err != nil {
		t.Fatal(err)
	}
	if hits != 1 {
		t.Fatalf("hits = %d, want 1", hits)
	}
}

func TestGetDiskTierSurvivesRestart(t *testing.T) {
	var hits int64
	srv := newServer(t, encodePNG(t, 64, 64), &hits)
	defer srv.Close()
	dir := t.TempDir()
	url := srv.URL + "/b.png"

	c1, err := New(dir, srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c1.Get(context.Background(), url, 160, 100); err != nil {
		t.Fatal(err)
	}

	// A fresh cache over the same directory must serve from disk.
	c2, err := New(dir, srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c2.Get(context.Background(), url, 160, 100); err != nil {
		t.Fatal(err)
	}
	if hits != 1 {
		t.Fatalf("hits = %d, want 1", hits)
	}
}

func TestConcurrentGetsFetchOnce(t *testing.T) {
	var hits int64
	srv := newServer(t, encodePNG(t, 64, 64), &hits)
	defer srv.Close()

	c, err := New(t.TempDir(), srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	url := srv.URL + "/c.png"

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Get(context.Background(), url, 160, 100)
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("goroutine %d: %v", i, err)
		}
	}
	if hits != 1 {
		t.Fatalf("hits = %d, want 1", hits)
	}
}

func TestDistinctBoxesAreDistinctEntries(t *testing.T) {
	var hits int64
	srv := newServer(t, encodePNG(t, 640, 480), &hits)
	defer srv.Close()

	c, err := New(t.TempDir(), srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	url := srv.URL + "/d.png"
	if _, err := c.Get(context.Background(), url, 160, 100); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(context.Background(), url, 320, 200); err != nil {
		t.Fatal(err)
	}
	if hits != 2 {
		t.Fatalf("hits = %d, want 2", hits)
	}
}

func TestPrefetchSkipsCached(t *testing.T) {
	var hits int64
	srv := newServer(t, encodePNG(t, 64, 64), &hits)
	defer srv.Close()

	c, err := New(t.TempDir(), srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	u1 := srv.URL + "/1.png"
	u2 := srv.URL + "/2.png"
	if _, err := c.Get(context.Background(), u1, 160, 100); err != nil {
		t.Fatal(err)
	}

	c.Prefetch(context.Background(), []string{u1, u2, ""}, 160, 100)
	if hits != 2 {
		t.Fatalf("hits = %d, want 2", hits)
	}
	if !c.Cached(u2, 160, 100) {
		t.Fatal("u2 should be cached after prefetch")
	}
}

func TestGetDecodeFailure(t *testing.T) {
	var hits int64
	srv := newServer(t, []byte("not an image"), &hits)
	defer srv.Close()

	c, err := New(t.TempDir(), srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(context.Background(), srv.URL+"/x.png", 160, 100); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestFitDims(t *testing.T) {
	tests := []struct {
		w, h, maxW, maxH int
		wantW, wantH     int
	}{
		{640, 200, 160, 100, 160, 50},
		{200, 640, 160, 100, 31, 100},
		{64, 64, 160, 100, 64, 64},
		{1, 4000, 160, 100, 1, 100},
	}
	for _, tt := range tests {
		gotW, gotH := fitDims(tt.w, tt.h, tt.maxW, tt.maxH)
		if gotW != tt.wantW || gotH != tt.wantH {
			t.Errorf("fitDims(%d,%d,%d,%d) = %dx%d, want %dx%d",
				tt.w, tt.h, tt.maxW, tt.maxH, gotW, gotH, tt.wantW, tt.wantH)
		}
	}
}
