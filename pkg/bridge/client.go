package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/sudorandom/conflict-globe/pkg/events"
	"github.com/sudorandom/conflict-globe/pkg/globe"
)

// client is one websocket connection and the session behind it.
type client struct {
	id      uuid.UUID
	srv     *Server
	conn    *websocket.Conn
	out     chan Message
	remote  *Remote
	session *globe.Session

	// ctx lives as long as the connection.
	ctx context.Context

	mu       sync.Mutex
	lastFeed []events.Feature
}

func (s *Server) newClient(conn *websocket.Conn) *client {
	c := &client{
		id:   uuid.New(),
		srv:  s,
		conn: conn,
		out:  make(chan Message, outboundBuffer),
		ctx:  context.Background(),
	}
	c.remote = NewRemote(defaultWidth, defaultHeight, c.send)
	c.session = globe.NewSession(s.opts.Cache, s.opts.Feed, c.remote, globe.NewScheduler(time.Now()), globe.SessionHooks{
		AreaSelected: c.areaSelected,
		RotationChanged: func(rotating bool) {
			c.send(Message{Type: msgRotation, Data: rotating})
		},
	})
	return c
}

// send queues m without blocking. A client that stops reading loses
// messages rather than stalling its session.
func (c *client) send(m Message) {
	select {
	case c.out <- m:
	default:
		c.srv.metrics.dropped.Inc()
	}
}

func (c *client) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	c.ctx = ctx

	c.send(Message{Type: msgHello, Data: helloMessage{Session: c.id.String()}})
	c.session.Start()
	defer c.session.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.writeLoop(gctx) })
	g.Go(func() error { return c.pump(gctx) })
	g.Go(func() error { return c.readLoop(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		c.conn.Close()
		return nil
	})
	g.Go(func() error {
		c.send(Message{Type: msgView, Data: c.session.RequestPeriod(gctx, int(events.Periods[0]))})
		return nil
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[BRIDGE] Session %s closed: %v", c.id, err)
	}
}

func (c *client) pump(ctx context.Context) error {
	ticker := time.NewTicker(c.srv.opts.TickRate)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			c.session.Tick(now)
		}
	}
}

func (c *client) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-c.out:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return err
			}
			if err := c.conn.WriteJSON(m); err != nil {
				return fmt.Errorf("write %s: %w", m.Type, err)
			}
		}
	}
}

func (c *client) readLoop(ctx context.Context) error {
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || ctx.Err() != nil {
				return context.Canceled
			}
			return fmt.Errorf("read: %w", err)
		}
		var cmd Command
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.fail("", fmt.Errorf("%w: %v", ErrBadCommand, err))
			continue
		}
		if err := c.dispatch(ctx, cmd); err != nil {
			c.fail(cmd.Type, err)
			c.srv.metrics.commands.WithLabelValues(cmd.Type, "error").Inc()
			continue
		}
		c.srv.metrics.commands.WithLabelValues(cmd.Type, "ok").Inc()
	}
}

func (c *client) fail(command string, err error) {
	log.Printf("[BRIDGE] Session %s: %v", c.id, err)
	c.send(Message{Type: msgError, Data: errorMessage{Command: command, Error: err.Error()}})
}

// dispatch runs one command and answers with the resulting view. Commands
// that wait on the network run in the background so pointer input keeps
// flowing; the session discards their result if it has gone stale.
func (c *client) dispatch(ctx context.Context, cmd Command) error {
	s := c.session
	var view globe.View
	switch cmd.Type {
	case "period":
		if !events.Period(cmd.Days).Valid() {
			return fmt.Errorf("%w: period %d", ErrBadCommand, cmd.Days)
		}
		go func() { c.send(Message{Type: msgView, Data: s.RequestPeriod(ctx, cmd.Days)}) }()
		return nil
	case "search":
		go func() { c.send(Message{Type: msgView, Data: s.SetSearchText(ctx, cmd.Text)}) }()
		return nil
	case "toggle_username":
		go func() { c.send(Message{Type: msgView, Data: s.ToggleUsername(ctx, cmd.Name)}) }()
		return nil
	case "feed":
		go func() {
			feed := s.Feed(ctx)
			c.mu.Lock()
			c.lastFeed = feed
			c.mu.Unlock()
			c.send(Message{Type: msgFeed, Data: feed})
		}()
		return nil
	case "area":
		if cmd.Name == "" {
			return fmt.Errorf("%w: area needs a name", ErrBadCommand)
		}
		go c.sendAreaDetail(cmd.Name)
		return nil
	case "toggle_layer":
		view = s.ToggleLayerGroup(cmd.Layer)
	case "rotate":
		view = s.SetRotating(cmd.On)
	case "select_area":
		view = s.SelectArea(cmd.Name)
	case "locate":
		if cmd.Feature != nil {
			view = s.LocateFeature(*cmd.Feature)
			break
		}
		f, ok := c.feature(cmd.ID)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownFeature, cmd.ID)
		}
		view = s.LocateFeature(f)
	case "pointer_down":
		view = s.Input(func(ctrl *globe.Controller) { ctrl.PointerDown() })
	case "drag_start":
		view = s.Input(func(ctrl *globe.Controller) { ctrl.DragStart() })
	case "touch_start":
		view = s.Input(func(ctrl *globe.Controller) { ctrl.TouchStart() })
	case "pointer_move":
		at, ok := c.at(cmd)
		if !ok {
			view = s.Input(func(ctrl *globe.Controller) { ctrl.PointerLeave() })
			break
		}
		view = s.Input(func(ctrl *globe.Controller) { ctrl.PointerMove(cmd.Point, at) })
	case "pointer_leave":
		view = s.Input(func(ctrl *globe.Controller) { ctrl.PointerLeave() })
	case "click":
		at, _ := c.at(cmd)
		view = s.Input(func(ctrl *globe.Controller) { ctrl.Click(cmd.Point, at) })
	case "close_popup":
		view = s.Input(func(ctrl *globe.Controller) { ctrl.ClosePopup() })
	case "next":
		view = s.Input(func(ctrl *globe.Controller) { ctrl.NextPopup() })
	case "previous":
		view = s.Input(func(ctrl *globe.Controller) { ctrl.PreviousPopup() })
	case "visibility":
		s.SetVisible(cmd.Visible)
		view = s.View()
	case "viewport":
		c.remote.SetViewport(cmd.Width, cmd.Height)
		if cmd.Camera != nil {
			c.remote.SetCamera(*cmd.Camera)
		}
		return nil
	case "camera":
		if cmd.Camera == nil {
			return fmt.Errorf("%w: camera missing", ErrBadCommand)
		}
		c.remote.SetCamera(*cmd.Camera)
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}
	c.send(Message{Type: msgView, Data: view})
	return nil
}

// at resolves the geographic position of a pointer command.
func (c *client) at(cmd Command) (globe.LngLat, bool) {
	if cmd.At != nil {
		return *cmd.At, true
	}
	return c.remote.Unproject(cmd.Point)
}

// feature finds id in the last feed sent, then among the features on the
// map. Generated ids are only unique within one collection, so the feed the
// client picked from comes first.
func (c *client) feature(id events.FeatureID) (events.Feature, bool) {
	c.mu.Lock()
	feed := c.lastFeed
	c.mu.Unlock()
	for _, f := range feed {
		if f.ID == id {
			return f, true
		}
	}

	view := c.session.View()
	if view.Collection == nil {
		return events.Feature{}, false
	}
	for _, f := range view.Collection.Features {
		if f.ID == id {
			return f, true
		}
	}
	return events.Feature{}, false
}

// areaSelected runs under the session lock, so the detail loads elsewhere.
func (c *client) areaSelected(name string) {
	if name == "" {
		c.send(Message{Type: msgAreaDetail})
		return
	}
	go c.sendAreaDetail(name)
}

func (c *client) sendAreaDetail(name string) {
	if c.srv.opts.Areas == nil {
		return
	}
	d := c.srv.opts.Areas.Detail(c.ctx, name)
	c.send(Message{Type: msgAreaDetail, Data: d})
}
