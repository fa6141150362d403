package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/hajimehoshi/ebiten/v2"
	_ "github.com/silbinarywolf/preferdiscretegpu"

	"github.com/sudorandom/conflict-globe/pkg/areas"
	"github.com/sudorandom/conflict-globe/pkg/cache"
	"github.com/sudorandom/conflict-globe/pkg/config"
	"github.com/sudorandom/conflict-globe/pkg/events"
	"github.com/sudorandom/conflict-globe/pkg/globe"
	"github.com/sudorandom/conflict-globe/pkg/render"
)

func main() {
	log.SetOutput(os.Stderr)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var cfg config.Viewer
	if _, err := config.Parse(&cfg, os.Args[1:],
		kong.Name("globe-viewer"),
		kong.Description("Desktop conflict-event globe."),
	); err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := cfg.API.Client()
	store := cache.New(client, cache.NewMetrics(nil))
	details := areas.NewService(client, areas.WithCache(cfg.Areas.CacheSize, cfg.Areas.CacheTTL))

	surface := render.NewGlobe(cfg.Width, cfg.Height, time.Now())
	var viewer *render.Viewer
	session := globe.NewSession(store, client, surface, globe.NewScheduler(time.Now()), globe.SessionHooks{
		AreaSelected: func(name string) { viewer.AreaSelected(name) },
	})
	viewer = render.NewViewer(ctx, surface, session, details)

	refresh := func(p events.Period) {
		session.PeriodLoaded(ctx, p)
		viewer.Apply(session.View())
	}
	preloader := cache.NewPreloader(store, events.Periods)
	preloader.Published = refresh
	preloader.Updated = refresh

	go func() {
		b, err := client.Boundaries(ctx)
		if err != nil {
			log.Printf("[BOUNDARIES] Error loading boundaries: %v", err)
			return
		}
		log.Printf("[BOUNDARIES] Loaded %d world areas", len(b.Regions))
		session.SetBoundaries(b)
	}()
	go func() {
		preloader.Preload(ctx)
		viewer.Apply(session.RequestPeriod(ctx, cfg.Period))
	}()

	session.Start()
	defer session.Close()

	ebiten.SetTPS(cfg.TPS)
	if cfg.Headless {
		log.Println("Running in HEADLESS mode (Rendering active).")
	} else {
		ebiten.SetWindowSize(cfg.Width, cfg.Height)
		ebiten.SetWindowTitle("Conflict Globe")
	}
	if err := ebiten.RunGame(viewer); err != nil {
		log.Fatal(err)
	}
}
