// Command iptv-core: refresh and inspect an IPTV playlist + XMLTV guide pair.
//
//	refresh         Download playlist and guide, persist the raw blobs
//	lineup          Print the channel lineup with guide linkage
//	guide           Print the programme schedule for a channel
//	now             Print what is airing on a channel (or every channel)
//	catchup         Print the catch-up URL for a channel's current program
//	prefetch-logos  Warm the artwork cache for every channel logo
//	run             Keep sources fresh on a cadence (for systemd)
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cjlhll/iptv-core/internal/catchup"
	"github.com/cjlhll/iptv-core/internal/config"
	"github.com/cjlhll/iptv-core/internal/epg"
	"github.com/cjlhll/iptv-core/internal/httpclient"
	"github.com/cjlhll/iptv-core/internal/logo"
	"github.com/cjlhll/iptv-core/internal/normalize"
	"github.com/cjlhll/iptv-core/internal/playlist"
	"github.com/cjlhll/iptv-core/internal/prefs"
	"github.com/cjlhll/iptv-core/internal/source"
)

type app struct {
	cfg     *config.Config
	store   *prefs.Store
	manager *source.Manager
}

func newApp(cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	store, err := prefs.Open(cfg.PrefsPath)
	if err != nil {
		return nil, err
	}
	blobs, err := source.NewStore(cfg.SourceDir)
	if err != nil {
		store.Close()
		return nil, err
	}
	m := source.NewManager(blobs, httpclient.WithTimeout(cfg.FetchTimeout))
	if last, err := store.LastEPGRefresh(); err == nil && !last.IsZero() {
		m.SetLastRefresh(last)
	}
	if err := store.SetLiveSourceURL(cfg.LiveSourceURL); err != nil {
		log.Printf("persist live source: %v", err)
	}
	if err := store.SetEPGSourceURL(cfg.EPGSourceURL); err != nil {
		log.Printf("persist epg source: %v", err)
	}
	if err := store.SetPlaylistCacheFile(blobs.PlaylistPath(cfg.LiveSourceURL)); err != nil {
		log.Printf("persist playlist cache path: %v", err)
	}
	return &app{cfg: cfg, store: store, manager: m}, nil
}

func (a *app) Close() { a.store.Close() }

// snapshot ensures sources are loaded (cache first, network when stale) and
// returns the current view.
func (a *app) snapshot(ctx context.Context) (*source.Snapshot, error) {
	err := a.manager.EnsureFresh(ctx, a.cfg.LiveSourceURL, a.cfg.EPGSourceURL, time.Now())
	snap := a.manager.Snapshot()
	if snap == nil {
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("no data loaded")
	}
	if err != nil {
		log.Printf("refresh failed, using cached data: %v", err)
	} else {
		a.recordRefresh()
	}
	return snap, nil
}

// recordRefresh persists the manager's refresh clock so the cadence survives
// process restarts. No-op until a refresh has succeeded.
func (a *app) recordRefresh() {
	t := a.manager.LastRefresh()
	if t.IsZero() {
		return
	}
	if err := a.store.SetLastEPGRefresh(t); err != nil {
		log.Printf("persist refresh time: %v", err)
	}
}

// nowTitle formats NowProgramTitle for display, "-" when the guide has no
// answer for the instant.
func nowTitle(guide *epg.Data, ch playlist.Channel, nowMillis int64) string {
	title, ok := guide.NowProgramTitle(ch, nowMillis)
	if !ok {
		return "-"
	}
	return title
}

// findChannel matches by exact title first, then by normalized name key.
func findChannel(channels []playlist.Channel, name string) (playlist.Channel, bool) {
	for _, ch := range channels {
		if ch.Title == name {
			return ch, true
		}
	}
	want := normalize.Key(name)
	if want == "" {
		return playlist.Channel{}, false
	}
	for _, ch := range channels {
		if normalize.Key(ch.Title) == want {
			return ch, true
		}
	}
	return playlist.Channel{}, false
}

func main() {
	_ = config.LoadEnvFile(".env")
	log.SetFlags(log.LstdFlags)
	log.SetPrefix("[iptv-core] ")

	refreshCmd := flag.NewFlagSet("refresh", flag.ExitOnError)

	lineupCmd := flag.NewFlagSet("lineup", flag.ExitOnError)
	lineupGroup := lineupCmd.String("group", "", "Only channels in this group")

	guideCmd := flag.NewFlagSet("guide", flag.ExitOnError)
	guideChannel := guideCmd.String("channel", "", "Channel name (required)")

	nowCmd := flag.NewFlagSet("now", flag.ExitOnError)
	nowChannel := nowCmd.String("channel", "", "Channel name (default: all channels)")

	catchupCmd := flag.NewFlagSet("catchup", flag.ExitOnError)
	catchupChannel := catchupCmd.String("channel", "", "Channel name (required)")
	catchupAt := catchupCmd.String("at", "", "Program instant, RFC3339 (default: now)")

	prefetchCmd := flag.NewFlagSet("prefetch-logos", flag.ExitOnError)
	prefetchWidth := prefetchCmd.Int("width", 0, "Logo box width (default: IPTV_LOGO_WIDTH)")
	prefetchHeight := prefetchCmd.Int("height", 0, "Logo box height (default: IPTV_LOGO_HEIGHT)")

	runCmd := flag.NewFlagSet("run", flag.ExitOnError)
	runInterval := runCmd.Duration("interval", 30*time.Minute, "How often to re-check source freshness")

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <refresh|lineup|guide|now|catchup|prefetch-logos|run> [flags]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  refresh         Download playlist and guide, persist the raw blobs\n")
		fmt.Fprintf(os.Stderr, "  lineup          Print the channel lineup with guide linkage\n")
		fmt.Fprintf(os.Stderr, "  guide           Print the programme schedule for a channel\n")
		fmt.Fprintf(os.Stderr, "  now             Print what is airing on a channel (or every channel)\n")
		fmt.Fprintf(os.Stderr, "  catchup         Print the catch-up URL for a channel's program\n")
		fmt.Fprintf(os.Stderr, "  prefetch-logos  Warm the artwork cache for every channel logo\n")
		fmt.Fprintf(os.Stderr, "  run             Keep sources fresh on a cadence (for systemd)\n")
		os.Exit(1)
	}

	cfg := config.Load()
	a, err := newApp(cfg)
	if err != nil {
		log.Printf("startup: %v", err)
		os.Exit(1)
	}
	defer a.Close()
	ctx := context.Background()

	switch os.Args[1] {
	case "refresh":
		_ = refreshCmd.Parse(os.Args[2:])
		if _, err := a.manager.RefreshPlaylist(ctx, cfg.LiveSourceURL); err != nil {
			log.Printf("playlist refresh failed: %v", err)
			os.Exit(1)
		}
		if cfg.EPGSourceURL != "" {
			if _, err := a.manager.RefreshGuide(ctx, cfg.EPGSourceURL); err != nil {
				log.Printf("guide refresh failed: %v", err)
				os.Exit(1)
			}
		}
		a.manager.SetLastRefresh(time.Now())
		a.recordRefresh()
		snap := a.manager.Snapshot()
		programs := 0
		if snap.Guide != nil {
			for _, list := range snap.Guide.ProgramsByChannel {
				programs += len(list)
			}
		}
		log.Printf("refreshed: %d channels, %d programs", len(snap.Channels), programs)

	case "lineup":
		_ = lineupCmd.Parse(os.Args[2:])
		snap, err := a.snapshot(ctx)
		if err != nil {
			log.Printf("lineup: %v", err)
			os.Exit(1)
		}
		for _, ch := range snap.Channels {
			if *lineupGroup != "" && ch.Group != *lineupGroup {
				continue
			}
			linked := ""
			if id, ok := snap.Guide.ResolveChannelID(ch); ok {
				linked = " guide=" + id
			}
			catchupNote := ""
			if ch.CatchupMode != "" {
				catchupNote = " catchup=" + ch.CatchupMode
			}
			fmt.Printf("%s\t[%s]%s%s\n", ch.Title, ch.Group, linked, catchupNote)
		}

	case "guide":
		_ = guideCmd.Parse(os.Args[2:])
		if *guideChannel == "" {
			log.Printf("guide: -channel is required")
			os.Exit(1)
		}
		snap, err := a.snapshot(ctx)
		if err != nil {
			log.Printf("guide: %v", err)
			os.Exit(1)
		}
		ch, ok := findChannel(snap.Channels, *guideChannel)
		if !ok {
			log.Printf("no channel named %q", *guideChannel)
			os.Exit(1)
		}
		id, ok := snap.Guide.ResolveChannelID(ch)
		if !ok {
			log.Printf("channel %q has no guide data", ch.Title)
			os.Exit(1)
		}
		for _, p := range snap.Guide.Programs(id) {
			zone := time.FixedZone("", p.OffsetSeconds)
			fmt.Printf("%s - %s\t%s\n",
				time.UnixMilli(p.Start).In(zone).Format("01-02 15:04"),
				time.UnixMilli(p.End).In(zone).Format("15:04"),
				p.Title)
		}

	case "now":
		_ = nowCmd.Parse(os.Args[2:])
		snap, err := a.snapshot(ctx)
		if err != nil {
			log.Printf("now: %v", err)
			os.Exit(1)
		}
		nowMillis := time.Now().UnixMilli()
		if *nowChannel != "" {
			ch, ok := findChannel(snap.Channels, *nowChannel)
			if !ok {
				log.Printf("no channel named %q", *nowChannel)
				os.Exit(1)
			}
			fmt.Printf("%s\t%s\n", ch.Title, nowTitle(snap.Guide, ch, nowMillis))
			if err := a.store.SetLastChannel(ch.Title, ch.URL); err != nil {
				log.Printf("persist last channel: %v", err)
			}
			return
		}
		for _, ch := range snap.Channels {
			fmt.Printf("%s\t%s\n", ch.Title, nowTitle(snap.Guide, ch, nowMillis))
		}

	case "catchup":
		_ = catchupCmd.Parse(os.Args[2:])
		if *catchupChannel == "" {
			log.Printf("catchup: -channel is required")
			os.Exit(1)
		}
		at := time.Now()
		if *catchupAt != "" {
			parsed, err := time.Parse(time.RFC3339, *catchupAt)
			if err != nil {
				log.Printf("catchup: bad -at value: %v", err)
				os.Exit(1)
			}
			at = parsed
		}
		snap, err := a.snapshot(ctx)
		if err != nil {
			log.Printf("catchup: %v", err)
			os.Exit(1)
		}
		ch, ok := findChannel(snap.Channels, *catchupChannel)
		if !ok {
			log.Printf("no channel named %q", *catchupChannel)
			os.Exit(1)
		}
		program, ok := snap.Guide.ProgramAt(ch, at.UnixMilli())
		if !ok {
			log.Printf("no program on %q at %s", ch.Title, at.Format(time.RFC3339))
			os.Exit(1)
		}
		start, stop := catchup.WindowForProgram(program.Start, program.End, time.Now())
		url, ok := catchup.BuildURL(ch.URL, ch.CatchupMode, ch.CatchupSource, start, stop)
		if !ok {
			log.Printf("channel %q does not support catch-up", ch.Title)
			os.Exit(1)
		}
		fmt.Printf("%s\t%s\n", program.Title, url)

	case "prefetch-logos":
		_ = prefetchCmd.Parse(os.Args[2:])
		w, h := *prefetchWidth, *prefetchHeight
		if w <= 0 {
			w = cfg.LogoBoxWidth
		}
		if h <= 0 {
			h = cfg.LogoBoxHeight
		}
		snap, err := a.snapshot(ctx)
		if err != nil {
			log.Printf("prefetch-logos: %v", err)
			os.Exit(1)
		}
		cache, err := logo.New(cfg.LogoDir, httpclient.WithTimeout(cfg.FetchTimeout))
		if err != nil {
			log.Printf("prefetch-logos: %v", err)
			os.Exit(1)
		}
		urls := make([]string, 0, len(snap.Channels))
		for _, ch := range snap.Channels {
			if ch.LogoURL != "" {
				urls = append(urls, ch.LogoURL)
			}
		}
		cache.Prefetch(ctx, urls, w, h)
		log.Printf("prefetched %d logos into %s", len(urls), cfg.LogoDir)

	case "run":
		_ = runCmd.Parse(os.Args[2:])
		if cfg.MetricsAddr != "" {
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				log.Printf("metrics on %s/metrics", cfg.MetricsAddr)
				if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
					log.Printf("metrics server: %v", err)
				}
			}()
		}
		if _, err := a.snapshot(ctx); err != nil {
			log.Printf("initial load: %v", err)
		}

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		ticker := time.NewTicker(*runInterval)
		defer ticker.Stop()
		log.Printf("running; re-checking freshness every %s", *runInterval)
		for {
			select {
			case <-ticker.C:
				if err := a.manager.EnsureFresh(ctx, cfg.LiveSourceURL, cfg.EPGSourceURL, time.Now()); err != nil {
					log.Printf("refresh: %v", err)
				} else {
					a.recordRefresh()
				}
			case s := <-sig:
				log.Printf("received %s, exiting", s)
				return
			}
		}

	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n", os.Args[1])
		os.Exit(1)
	}
}
