package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sudorandom/conflict-globe/pkg/areas"
	"github.com/sudorandom/conflict-globe/pkg/bridge"
	"github.com/sudorandom/conflict-globe/pkg/cache"
	"github.com/sudorandom/conflict-globe/pkg/config"
	"github.com/sudorandom/conflict-globe/pkg/events"
)

func main() {
	log.SetOutput(os.Stderr)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var cfg config.Server
	if _, err := config.Parse(&cfg, os.Args[1:],
		kong.Name("globe-server"),
		kong.Description("Serves globe sessions to browsers over a websocket."),
	); err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	client := cfg.API.Client()
	store := cache.New(client, cache.NewMetrics(reg))
	srv := bridge.New(bridge.Options{
		Cache:      store,
		Feed:       client,
		Areas:      areas.NewService(client, areas.WithCache(cfg.Areas.CacheSize, cfg.Areas.CacheTTL)),
		TickRate:   cfg.TickRate,
		Origins:    cfg.Origins,
		Registerer: reg,
		Gatherer:   reg,
	})

	refresh := func(p events.Period) { srv.PeriodLoaded(ctx, p) }
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
		srv.SetBoundaries(b)
	}()
	go preloader.Preload(ctx)

	go func() {
		if err := srv.Start(cfg.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[BRIDGE] Server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("[BRIDGE] Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[BRIDGE] Shutdown error: %v", err)
	}
	preloader.Wait()
}
