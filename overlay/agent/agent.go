// Package agent is a headless session client. It keeps a websocket to the
// server, reports identity and activity and feeds every event to an engine.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/portal-overlay/overlay/engine"
	"github.com/gosuda/portal-overlay/overlay/protocol"
)

var (
	ErrKicked   = errors.New("agent: kicked by controller")
	ErrRejected = errors.New("agent: server refused the session")
)

const writeWait = 10 * time.Second

type Config struct {
	URL       string
	Name      string
	Page      string
	Activity  string
	Device    string
	Poster    string
	Heartbeat time.Duration
	TickRate  time.Duration
	Dialer    *websocket.Dialer
}

type Agent struct {
	cfg    Config
	engine *engine.Engine

	mu   sync.Mutex
	conn *websocket.Conn
}

func New(cfg Config, eng *engine.Engine) *Agent {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = time.Minute
	}
	if cfg.TickRate <= 0 {
		cfg.TickRate = 33 * time.Millisecond
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if eng == nil {
		eng = engine.New()
	}
	return &Agent{cfg: cfg, engine: eng}
}

func (a *Agent) Engine() *engine.Engine { return a.engine }

// Run connects and blocks until ctx is done, the connection drops or the
// session is kicked.
func (a *Agent) Run(ctx context.Context) error {
	conn, resp, err := a.cfg.Dialer.DialContext(ctx, a.cfg.URL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusServiceUnavailable {
			return ErrRejected
		}
		return fmt.Errorf("dial %s: %w", a.cfg.URL, err)
	}
	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	if err := a.announce(); err != nil {
		return err
	}
	go a.heartbeat(ctx)
	go a.animate(ctx)

	for {
		var ev protocol.ServerEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		a.engine.Handle(ev)
		if ev.Type == protocol.EventError {
			log.Warn().Str("message", ev.Message).Msg("[agent] server error")
		}
		if a.engine.State().Terminated {
			return ErrKicked
		}
	}
}

func (a *Agent) announce() error {
	if err := a.send(protocol.ClientMessage{Type: protocol.TypeSetIdentity, Name: a.cfg.Name}); err != nil {
		return err
	}
	return a.ReportActivity(a.cfg.Page, a.cfg.Activity)
}

func (a *Agent) heartbeat(ctx context.Context) {
	t := time.NewTicker(a.cfg.Heartbeat)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := a.send(protocol.ClientMessage{Type: protocol.TypeUpdateActivity}); err != nil {
				log.Debug().Err(err).Msg("[agent] heartbeat")
				return
			}
		}
	}
}

func (a *Agent) animate(ctx context.Context) {
	t := time.NewTicker(a.cfg.TickRate)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.engine.Tick()
		}
	}
}

// ReportActivity sends page and activity along with the configured device
// and poster. Empty values are left out.
func (a *Agent) ReportActivity(page, activity string) error {
	msg := protocol.ClientMessage{Type: protocol.TypeUpdateActivity}
	if page != "" {
		msg.Page = &page
	}
	if activity != "" {
		msg.Activity = &activity
	}
	if a.cfg.Device != "" {
		msg.Device = &a.cfg.Device
	}
	if a.cfg.Poster != "" {
		msg.Poster = &a.cfg.Poster
	}
	return a.send(msg)
}

func (a *Agent) SendChat(text string) error {
	return a.send(protocol.ClientMessage{Type: protocol.TypeSendChat, Text: text})
}

func (a *Agent) RequestState() error {
	return a.send(protocol.ClientMessage{Type: protocol.TypeRequestAdminState})
}

func (a *Agent) send(msg protocol.ClientMessage) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return errors.New("agent: not connected")
	}
	_ = a.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return a.conn.WriteJSON(msg)
}
