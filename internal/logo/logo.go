// Package logo caches channel artwork in two tiers: a bounded in-memory LRU
// of decoded images in front of a directory of pre-scaled JPEG files. A miss
// in both tiers downloads the source image, scales it to fit the requested
// box and persists it, so later sessions start from the disk tier.
package logo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/jpeg"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/cjlhll/iptv-core/internal/httpclient"
)

const (
	defaultMemEntries   = 128
	defaultFetchPermits = 3

	// DefaultBoxWidth and DefaultBoxHeight bound the scaled artwork when the
	// caller gives no explicit box.
	DefaultBoxWidth  = 160
	DefaultBoxHeight = 100

	jpegQuality = 85
)

var (
	memHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "logo_cache_mem_hits_total",
		Help: "Artwork lookups served from the in-memory tier.",
	})
	diskHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "logo_cache_disk_hits_total",
		Help: "Artwork lookups served from the disk tier.",
	})
	fetches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "logo_cache_fetches_total",
		Help: "Artwork downloads from the network.",
	})
	fetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "logo_cache_fetch_errors_total",
		Help: "Failed artwork downloads or decodes.",
	})
	evictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "logo_cache_mem_evictions_total",
		Help: "Entries evicted from the in-memory tier.",
	})
)

// Cache is the two-tier artwork cache. Safe for concurrent use.
type Cache struct {
	dir      string
	client   *http.Client
	fetchSem chan struct{}
	limiter  *rate.Limiter

	mem *lru.Cache[string, image.Image]

	mu       sync.Mutex
	inFlight map[string]chan struct{}
}

// New opens a cache rooted at dir, creating the directory if needed.
// client may be nil to use the shared default.
func New(dir string, client *http.Client) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logo: cache dir: %w", err)
	}
	if client == nil {
		client = httpclient.Default()
	}
	mem, err := lru.NewWithEvict[string, image.Image](defaultMemEntries, func(string, image.Image) {
		evictions.Inc()
	})
	if err != nil {
		return nil, fmt.Errorf("logo: lru: %w", err)
	}
	return &Cache{
		dir:      dir,
		client:   client,
		fetchSem: make(chan struct{}, defaultFetchPermits),
		limiter:  rate.NewLimiter(rate.Limit(4), 2),
		mem:      mem,
		inFlight: make(map[string]chan struct{}),
	}, nil
}

// cacheKey identifies one source URL at one target box.
func cacheKey(url string, w, h int) string {
	sum := sha256.Sum256([]byte(url))
	return fmt.Sprintf("%s_%dx%d", hex.EncodeToString(sum[:]), w, h)
}

func (c *Cache) filePath(key string) string {
	return filepath.Join(c.dir, key+".jpg")
}

// Get returns the artwork at url scaled to fit within w x h, consulting the
// memory tier, then the disk tier, then the network. Concurrent calls for the
// same url and box perform at most one network fetch; the others wait for it.
func (c *Cache) Get(ctx context.Context, url string, w, h int) (image.Image, error) {
	if url == "" {
		return nil, fmt.Errorf("logo: empty url")
	}
	if w <= 0 || h <= 0 {
		w, h = DefaultBoxWidth, DefaultBoxHeight
	}
	key := cacheKey(url, w, h)

	if img, ok := c.mem.Get(key); ok {
		memHits.Inc()
		return img, nil
	}

	release, err := c.claim(ctx, key)
	if err != nil {
		return nil, err
	}
	defer release()

	// A waiter resumes here after the fetcher finished: check both tiers
	// again before going to the network.
	if img, ok := c.mem.Get(key); ok {
		memHits.Inc()
		return img, nil
	}
	if img, err := c.loadDisk(key); err == nil {
		diskHits.Inc()
		c.mem.Add(key, img)
		return img, nil
	}

	img, err := c.fetchAndStore(ctx, url, key, w, h)
	if err != nil {
		fetchErrors.Inc()
		return nil, err
	}
	c.mem.Add(key, img)
	return img, nil
}

// claim either registers key as in flight and returns its release func, or
// waits for the current fetcher to finish and then claims.
func (c *Cache) claim(ctx context.Context, key string) (func(), error) {
	for {
		c.mu.Lock()
		ch, busy := c.inFlight[key]
		if !busy {
			done := make(chan struct{})
			c.inFlight[key] = done
			c.mu.Unlock()
			return func() {
				c.mu.Lock()
				delete(c.inFlight, key)
				c.mu.Unlock()
				close(done)
			}, nil
		}
		c.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ch:
		}
	}
}

func (c *Cache) loadDisk(key string) (image.Image, error) {
	f, err := os.Open(c.filePath(key))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("logo: decode cached file: %w", err)
	}
	return img, nil
}

func (c *Cache) fetchAndStore(ctx context.Context, url, key string, w, h int) (image.Image, error) {
	select {
	case c.fetchSem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-c.fetchSem }()

	fetches.Inc()
	raw, err := httpclient.FetchBytes(ctx, c.client, url)
	if err != nil {
		return nil, fmt.Errorf("logo: fetch %s: %w", url, err)
	}
	img, err := decodeAndFit(raw, w, h)
	if err != nil {
		return nil, fmt.Errorf("logo: %s: %w", url, err)
	}
	if err := c.store(key, img); err != nil {
		// The scaled image is still usable; the disk tier just misses it.
		log.Printf("logo: store %s: %v", key, err)
	}
	return img, nil
}

// store writes the scaled image to a temp file and renames it into place, so
// readers never observe a partially written file.
func (c *Cache) store(key string, img image.Image) error {
	tmp, err := os.CreateTemp(c.dir, key+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := jpeg.Encode(tmp, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), c.filePath(key))
}

// Cached reports whether the artwork is already present in either tier.
func (c *Cache) Cached(url string, w, h int) bool {
	if w <= 0 || h <= 0 {
		w, h = DefaultBoxWidth, DefaultBoxHeight
	}
	key := cacheKey(url, w, h)
	if c.mem.Contains(key) {
		return true
	}
	_, err := os.Stat(c.filePath(key))
	return err == nil
}

// Prefetch warms the cache for a set of URLs, best effort. Already cached
// entries are skipped without consuming rate budget; failures are logged and
// do not stop the batch.
func (c *Cache) Prefetch(ctx context.Context, urls []string, w, h int) {
	for _, url := range urls {
		if url == "" || c.Cached(url, w, h) {
			continue
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return
		}
		if _, err := c.Get(ctx, url, w, h); err != nil {
			log.Printf("logo: prefetch %s: %v", url, err)
		}
	}
}
