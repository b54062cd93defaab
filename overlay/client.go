package main

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/portal-overlay/overlay/control"
	"github.com/gosuda/portal-overlay/overlay/protocol"
	"github.com/gosuda/portal-overlay/overlay/registry"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	sendBufferSize = 64
	maxMessageSize = 64 << 10
)

// Client is one websocket connection, either a session or a controller.
// It implements control.Peer.
type Client struct {
	id    string
	admin bool
	hub   *control.Hub
	conn  *websocket.Conn
	send  chan protocol.ServerEvent

	mu     sync.Mutex
	closed bool
}

// NewClient creates a client before the upgrade so the hub can refuse it
// while the request can still be answered with a status code.
func NewClient(hub *control.Hub, admin bool) *Client {
	return &Client{
		hub:   hub,
		admin: admin,
		send:  make(chan protocol.ServerEvent, sendBufferSize),
	}
}

func (c *Client) attach(id string, conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.id = id
	c.conn = conn
}

// Push queues ev without blocking. When the queue is full the oldest event
// is dropped.
func (c *Client) Push(ev protocol.ServerEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- ev:
		return
	default:
	}
	select {
	case <-c.send:
		log.Debug().Str("session", c.id).Msg("[overlay] send queue full; dropped oldest")
	default:
	}
	select {
	case c.send <- ev:
	default:
	}
}

// Close ends the write loop, which closes the connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) readLoop() {
	defer func() {
		if c.admin {
			c.hub.Unobserve(c)
		} else {
			c.hub.Disconnect(c.id)
		}
		c.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Str("session", c.id).Msg("read message")
			return
		}
		var msg protocol.ClientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			c.Push(protocol.Error("invalid message format"))
			continue
		}
		if c.admin {
			c.handleAdmin(msg)
		} else {
			c.handleSession(msg)
		}
	}
}

func (c *Client) handleSession(msg protocol.ClientMessage) {
	switch msg.Type {
	case protocol.TypeSetIdentity:
		c.hub.SetIdentity(c.id, msg.Name)
	case protocol.TypeUpdateActivity:
		c.hub.ReportActivity(c.id, registry.Activity{
			Page:     msg.Page,
			Activity: msg.Activity,
			Device:   msg.Device,
			Poster:   msg.Poster,
		})
	case protocol.TypeSendChat:
		if err := c.hub.SendChat(c.id, msg.Text); err != nil {
			c.Push(protocol.Error(err.Error()))
		}
	case protocol.TypeRequestAdminState:
		c.hub.RequestState(c)
	default:
		c.Push(protocol.Error("unsupported message type " + msg.Type))
	}
}

func (c *Client) handleAdmin(msg protocol.ClientMessage) {
	switch msg.Type {
	case protocol.TypeAdminCommand:
		_, _ = c.hub.DispatchRaw(c, msg.Command, msg.Target, msg.Payload)
	case protocol.TypeAdminToggleChat:
		if msg.Enabled == nil {
			c.Push(protocol.Error("admin_toggle_chat requires enabled"))
			return
		}
		_ = c.hub.ToggleChat(*msg.Enabled)
	case protocol.TypeSendChat:
		if err := c.hub.SendAdminChat(msg.Text); err != nil {
			c.Push(protocol.Error(err.Error()))
		}
	case protocol.TypeRequestAdminState:
		c.hub.RequestState(c)
	default:
		c.Push(protocol.Error("unsupported message type " + msg.Type))
	}
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case ev, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := writeJSON(c.conn, ev); err != nil {
				log.Debug().Err(err).Str("session", c.id).Msg("write json")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeJSON encodes without HTML escaping so chat formatting arrives intact.
func writeJSON(conn *websocket.Conn, v any) error {
	w, err := conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return w.Close()
}
