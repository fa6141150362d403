// Package bridge serves globe sessions to browsers over a websocket. Every
// connection gets its own Session driving a Remote surface; the event cache
// is shared.
package bridge

import (
	"context"
	"log"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sudorandom/conflict-globe/pkg/areas"
	"github.com/sudorandom/conflict-globe/pkg/events"
	"github.com/sudorandom/conflict-globe/pkg/globe"
	"github.com/sudorandom/conflict-globe/pkg/sources"
)

const (
	defaultTickRate = 16 * time.Millisecond
	defaultWidth    = 1280
	defaultHeight   = 720
	outboundBuffer  = 256
	writeTimeout    = 10 * time.Second
)

// Options configures a Server. Cache is required.
type Options struct {
	Cache globe.EventCache
	Feed  globe.AreaFeed
	Areas *areas.Service

	// TickRate is how often each session's scheduler is pumped.
	TickRate time.Duration
	// Origins lists the browser origins allowed to connect. Empty allows all.
	Origins []string

	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

type Server struct {
	opts     Options
	metrics  *metrics
	upgrader websocket.Upgrader
	echo     *echo.Echo

	mu         sync.Mutex
	clients    map[uuid.UUID]*client
	boundaries *sources.Boundaries
}

func New(opts Options) *Server {
	if opts.TickRate <= 0 {
		opts.TickRate = defaultTickRate
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		opts:    opts,
		metrics: newMetrics(opts.Registerer),
		clients: make(map[uuid.UUID]*client),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Request().URL.Path == "/healthz" || c.Request().URL.Path == "/metrics"
		},
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Printf("[HTTP] %s %s %d %s", v.Method, v.URI, v.Status, v.Latency.Round(time.Millisecond))
			return nil
		},
	}))
	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	e.GET("/ws", s.handleWebsocket)
	s.echo = e
	return s
}

// Handler is the HTTP handler serving every route.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	log.Printf("[BRIDGE] Listening on %s", addr)
	return s.echo.Start(addr)
}

// Shutdown stops accepting requests and disconnects every client.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.echo.Shutdown(ctx)
	s.mu.Lock()
	for _, c := range s.clients {
		c.conn.Close()
	}
	s.mu.Unlock()
	return err
}

// Clients is the number of connected sessions.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// SetBoundaries hands the region layers to every current and future session.
func (s *Server) SetBoundaries(b sources.Boundaries) {
	s.mu.Lock()
	s.boundaries = &b
	clients := s.snapshot()
	s.mu.Unlock()
	for _, c := range clients {
		c.session.SetBoundaries(b)
	}
}

// PeriodLoaded refreshes the sessions showing p. Wire it to the preloader.
func (s *Server) PeriodLoaded(ctx context.Context, p events.Period) {
	s.mu.Lock()
	clients := s.snapshot()
	s.mu.Unlock()
	for _, c := range clients {
		c.session.PeriodLoaded(ctx, p)
		c.send(Message{Type: msgView, Data: c.session.View()})
	}
}

func (s *Server) snapshot() []*client {
	out := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	return out
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.opts.Origins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || slices.Contains(s.opts.Origins, origin)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.Clients(),
	})
}

func (s *Server) handleWebsocket(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already answered the request.
		log.Printf("[BRIDGE] Upgrade error: %v", err)
		return nil
	}

	cl := s.newClient(conn)
	s.mu.Lock()
	s.clients[cl.id] = cl
	b := s.boundaries
	s.mu.Unlock()
	s.metrics.clients.Inc()
	log.Printf("[BRIDGE] Session %s connected from %s", cl.id, c.RealIP())

	if b != nil {
		cl.session.SetBoundaries(*b)
	}
	cl.run(c.Request().Context())

	s.mu.Lock()
	delete(s.clients, cl.id)
	s.mu.Unlock()
	s.metrics.clients.Dec()
	log.Printf("[BRIDGE] Session %s disconnected", cl.id)
	return nil
}
