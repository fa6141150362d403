// Package config holds the command-line and environment settings shared by
// the viewer and the server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/sudorandom/conflict-globe/pkg/sources"
)

// API configures the event API client.
type API struct {
	URL       string        `name:"api-url" env:"API_URL" default:"http://localhost:8000" help:"Base URL of the event API."`
	RateLimit float64       `name:"api-rps" env:"API_RPS" default:"10" help:"Outbound requests per second (0 disables pacing)."`
	Burst     int           `name:"api-burst" env:"API_BURST" default:"5" help:"Request burst allowance."`
	Timeout   time.Duration `name:"api-timeout" env:"API_TIMEOUT" default:"30s" help:"Per-request timeout."`
}

// Client builds the event API client these settings describe.
func (a API) Client() *sources.Client {
	return sources.NewClient(a.URL,
		sources.WithHTTPClient(&http.Client{Timeout: a.Timeout}),
		sources.WithRateLimit(a.RateLimit, a.Burst),
	)
}

// Areas configures the area detail cache.
type Areas struct {
	CacheSize int           `name:"area-cache-size" env:"AREA_CACHE_SIZE" default:"128" help:"Area details kept in memory."`
	CacheTTL  time.Duration `name:"area-cache-ttl" env:"AREA_CACHE_TTL" default:"5m" help:"How long an area detail stays fresh."`
}

// Viewer is the desktop globe.
type Viewer struct {
	API   `embed:""`
	Areas `embed:""`

	Width    int  `env:"WINDOW_WIDTH" default:"1280" help:"Initial window width."`
	Height   int  `env:"WINDOW_HEIGHT" default:"720" help:"Initial window height."`
	TPS      int  `env:"TPS" default:"60" help:"Ticks per second (engine updates)."`
	Headless bool `env:"HEADLESS" help:"Run without a local window."`
	Period   int  `env:"PERIOD" default:"1" enum:"1,7,30" help:"Initial period in days."`
}

// Server is the websocket bridge.
type Server struct {
	API   `embed:""`
	Areas `embed:""`

	Listen   string        `env:"LISTEN_ADDR" default:":8080" help:"HTTP listen address."`
	TickRate time.Duration `name:"tick-rate" env:"TICK_RATE" default:"16ms" help:"Scheduler pump interval per session."`
	Origins  []string      `name:"allowed-origin" env:"ALLOWED_ORIGINS" help:"Origins allowed to open a websocket (empty allows all)."`
}

// Parse loads a .env file if one exists, then fills cli from args and the
// environment.
func Parse(cli any, args []string, opts ...kong.Option) (*kong.Context, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("[CONFIG] Error reading .env: %v", err)
	}
	parser, err := kong.New(cli, opts...)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return ctx, nil
}
