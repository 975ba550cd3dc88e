package source

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cjlhll/iptv-core/internal/epg"
	"github.com/cjlhll/iptv-core/internal/httpclient"
	"github.com/cjlhll/iptv-core/internal/playlist"
	"github.com/cjlhll/iptv-core/internal/xmltv"
)

const (
	// guideMaxAge is how old a guide snapshot may grow before a refresh is
	// due, in addition to the calendar-day rollover check.
	guideMaxAge = 6 * time.Hour
	// failureBackoff suppresses refresh retries after a failed attempt.
	failureBackoff = 5 * time.Minute
)

// guideDayZone fixes which calendar day a refresh instant belongs to. Guide
// sources publish per-day schedules at +08:00 wall time.
var guideDayZone = time.FixedZone("CST", 8*60*60)

var (
	refreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "source_refresh_total",
		Help: "Completed source downloads by kind.",
	}, []string{"kind"})
	refreshErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "source_refresh_errors_total",
		Help: "Failed source downloads by kind.",
	}, []string{"kind"})
)

// Snapshot is one consistent view of the loaded sources. Snapshots are
// immutable once published; readers keep using the one they hold while a
// refresh builds the next.
type Snapshot struct {
	Channels  []playlist.Channel
	Guide     *epg.Data
	FetchedAt time.Time
}

// Manager loads playlist and guide cache-first and swaps in fresh snapshots
// atomically after successful refreshes.
type Manager struct {
	store  *Store
	client *http.Client

	snap atomic.Pointer[Snapshot]

	mu          sync.Mutex
	lastRefresh time.Time
	lastFailure time.Time
}

// NewManager wraps a blob store. client may be nil to use the shared default.
func NewManager(store *Store, client *http.Client) *Manager {
	if client == nil {
		client = httpclient.Default()
	}
	return &Manager{store: store, client: client}
}

// Snapshot returns the current view, or nil before the first load.
func (m *Manager) Snapshot() *Snapshot {
	return m.snap.Load()
}

// LoadCached builds a snapshot purely from the disk blobs, without touching
// the network. Missing or unparsable blobs leave the corresponding part
// empty; err is non-nil only when nothing at all could be loaded.
func (m *Manager) LoadCached(liveURL, epgURL string) (*Snapshot, error) {
	snap := &Snapshot{}
	if raw, err := m.store.ReadPlaylist(liveURL); err == nil {
		channels, perr := playlist.Parse(bytes.NewReader(raw))
		if perr != nil {
			log.Printf("source: cached playlist: %v", perr)
		} else {
			snap.Channels = channels
		}
	}
	if raw, err := m.store.ReadGuide(epgURL); err == nil {
		data, perr := xmltv.ParseBytes(raw)
		if perr != nil {
			log.Printf("source: cached guide: %v", perr)
		} else {
			snap.Guide = data
		}
	}
	if snap.Channels == nil && snap.Guide == nil {
		return nil, fmt.Errorf("source: no cached data")
	}
	m.snap.Store(snap)
	return snap, nil
}

// RefreshPlaylist downloads the playlist, persists the blob and publishes a
// snapshot carrying the new channel list (keeping the current guide).
func (m *Manager) RefreshPlaylist(ctx context.Context, liveURL string) ([]playlist.Channel, error) {
	raw, err := httpclient.FetchBytes(ctx, m.client, liveURL)
	if err != nil {
		refreshErrors.WithLabelValues("playlist").Inc()
		return nil, err
	}
	channels, err := playlist.Parse(bytes.NewReader(raw))
	if err != nil {
		refreshErrors.WithLabelValues("playlist").Inc()
		return nil, err
	}
	if err := m.store.WritePlaylist(liveURL, raw); err != nil {
		log.Printf("source: persist playlist: %v", err)
	}
	refreshes.WithLabelValues("playlist").Inc()
	m.publish(func(next *Snapshot) { next.Channels = channels })
	return channels, nil
}

// RefreshGuide downloads the guide, persists the blob and publishes a
// snapshot carrying the new guide (keeping the current channels).
func (m *Manager) RefreshGuide(ctx context.Context, epgURL string) (*epg.Data, error) {
	raw, err := httpclient.FetchBytes(ctx, m.client, epgURL)
	if err != nil {
		refreshErrors.WithLabelValues("guide").Inc()
		return nil, err
	}
	data, err := xmltv.ParseBytes(raw)
	if err != nil {
		refreshErrors.WithLabelValues("guide").Inc()
		return nil, err
	}
	if err := m.store.WriteGuide(epgURL, raw); err != nil {
		log.Printf("source: persist guide: %v", err)
	}
	refreshes.WithLabelValues("guide").Inc()
	m.publish(func(next *Snapshot) { next.Guide = data })
	return data, nil
}

// EnsureFresh loads cached data first for immediate availability, then
// refreshes from the network when the guide snapshot is stale per the
// cadence rules. Network failures keep the cached snapshot in place.
func (m *Manager) EnsureFresh(ctx context.Context, liveURL, epgURL string, now time.Time) error {
	_, _ = m.LoadCached(liveURL, epgURL)

	m.mu.Lock()
	due := refreshDue(m.lastRefresh, now)
	backingOff := !m.lastFailure.IsZero() && now.Sub(m.lastFailure) < failureBackoff
	m.mu.Unlock()

	if !due && m.Snapshot() != nil {
		return nil
	}
	if backingOff {
		return nil
	}

	var firstErr error
	if _, err := m.RefreshPlaylist(ctx, liveURL); err != nil {
		log.Printf("source: playlist refresh: %v", err)
		firstErr = err
	}
	if epgURL != "" {
		if _, err := m.RefreshGuide(ctx, epgURL); err != nil {
			log.Printf("source: guide refresh: %v", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	m.mu.Lock()
	if firstErr != nil {
		m.lastFailure = now
	} else {
		m.lastRefresh = now
		m.lastFailure = time.Time{}
	}
	m.mu.Unlock()
	return firstErr
}

// LastRefresh returns when the last fully successful refresh ran, zero if
// none has.
func (m *Manager) LastRefresh() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRefresh
}

// SetLastRefresh seeds the cadence clock, typically from a persisted value.
func (m *Manager) SetLastRefresh(t time.Time) {
	m.mu.Lock()
	m.lastRefresh = t
	m.mu.Unlock()
}

// refreshDue reports whether a guide fetched at last needs refreshing at
// now: never fetched, fetched on an earlier calendar day (+08:00 days, the
// guide's publication cycle), or older than guideMaxAge.
func refreshDue(last, now time.Time) bool {
	if last.IsZero() {
		return true
	}
	ly, lm, ld := last.In(guideDayZone).Date()
	ny, nm, nd := now.In(guideDayZone).Date()
	if ly != ny || lm != nm || ld != nd {
		return true
	}
	return now.Sub(last) > guideMaxAge
}

// publish copies the current snapshot, applies mutate and swaps it in.
func (m *Manager) publish(mutate func(*Snapshot)) {
	for {
		old := m.snap.Load()
		next := &Snapshot{FetchedAt: time.Now()}
		if old != nil {
			next.Channels = old.Channels
			next.Guide = old.Guide
		}
		mutate(next)
		if m.snap.CompareAndSwap(old, next) {
			return
		}
	}
}
