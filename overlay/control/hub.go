// Package control serializes every registry and effect state mutation through
// a single goroutine and fans the results out to connected peers.
package control

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/portal-overlay/overlay/audit"
	"github.com/gosuda/portal-overlay/overlay/chat"
	"github.com/gosuda/portal-overlay/overlay/effects"
	"github.com/gosuda/portal-overlay/overlay/protocol"
	"github.com/gosuda/portal-overlay/overlay/registry"
)

var ErrClosed = errors.New("control: hub closed")

// Peer is the hub side of one connection. Push must not block and must not
// call back into the hub.
type Peer interface {
	Push(protocol.ServerEvent)
	Close()
}

type Config struct {
	MaxSessions     int
	SessionTTL      time.Duration
	EvictInterval   time.Duration
	PublishInterval time.Duration
	ChatGate        chat.Gate

	Journal     *audit.Journal
	Metrics     *Metrics
	Clock       func() time.Time
	IDGenerator func() string
}

func (c *Config) setDefaults() {
	if c.SessionTTL <= 0 {
		c.SessionTTL = 5 * time.Minute
	}
	if c.EvictInterval <= 0 {
		c.EvictInterval = 30 * time.Second
	}
	if c.PublishInterval <= 0 {
		c.PublishInterval = time.Second
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Metrics == nil {
		c.Metrics = NewMetrics(nil)
	}
}

// Hub owns the session registry, the effect store and every peer.
type Hub struct {
	cfg      Config
	registry *registry.Registry
	store    *effects.Store
	relay    *chat.Relay
	journal  *audit.Journal
	metrics  *Metrics

	peers     map[string]Peer
	observers map[Peer]struct{}

	commands  chan func(*Hub)
	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func NewHub(cfg Config) *Hub {
	cfg.setDefaults()
	opts := []registry.Option{registry.WithClock(cfg.Clock)}
	if cfg.IDGenerator != nil {
		opts = append(opts, registry.WithIDGenerator(cfg.IDGenerator))
	}
	h := &Hub{
		cfg:       cfg,
		registry:  registry.New(cfg.MaxSessions, opts...),
		store:     effects.NewStore(),
		relay:     chat.NewRelay(cfg.ChatGate, cfg.Clock),
		journal:   cfg.Journal,
		metrics:   cfg.Metrics,
		peers:     make(map[string]Peer),
		observers: make(map[Peer]struct{}),
		commands:  make(chan func(*Hub), 256),
		closing:   make(chan struct{}),
		done:      make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) loop() {
	defer close(h.done)
	evict := time.NewTicker(h.cfg.EvictInterval)
	defer evict.Stop()
	flush := time.NewTicker(h.cfg.PublishInterval)
	defer flush.Stop()
	for {
		select {
		case fn := <-h.commands:
			fn(h)
		case <-evict.C:
			h.evictStale()
		case <-flush.C:
			if h.registry.FlushDue(h.cfg.PublishInterval) {
				h.publishSessions()
			}
		case <-h.closing:
			return
		}
	}
}

// enqueue blocks until the loop accepts fn; membership changes must never be
// dropped.
func (h *Hub) enqueue(fn func(*Hub)) error {
	select {
	case <-h.closing:
		return ErrClosed
	default:
	}
	select {
	case h.commands <- fn:
		return nil
	case <-h.closing:
		return ErrClosed
	}
}

// call runs fn on the loop and waits for it.
func (h *Hub) call(fn func(*Hub)) error {
	ran := make(chan struct{})
	if err := h.enqueue(func(h *Hub) {
		fn(h)
		close(ran)
	}); err != nil {
		return err
	}
	select {
	case <-ran:
		return nil
	case <-h.done:
		return ErrClosed
	}
}

// Close stops the loop and closes every peer.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.closing)
		<-h.done
		for _, p := range h.peers {
			p.Close()
		}
		for p := range h.observers {
			p.Close()
		}
		h.peers = map[string]Peer{}
		h.observers = map[Peer]struct{}{}
	})
}

// Full reports whether a new session would be refused right now.
func (h *Hub) Full() bool {
	var full bool
	if err := h.call(func(h *Hub) { full = h.registry.Full() }); err != nil {
		return true
	}
	return full
}

// Connect registers a session for p and sends it the welcome, the chat flag
// and the current effect state.
func (h *Hub) Connect(p Peer) (string, error) {
	var (
		id  string
		err error
	)
	if cerr := h.call(func(h *Hub) { id, err = h.connect(p) }); cerr != nil {
		return "", cerr
	}
	return id, err
}

func (h *Hub) connect(p Peer) (string, error) {
	id, err := h.registry.Register()
	if err != nil {
		h.metrics.Rejected.Inc()
		return "", err
	}
	h.peers[id] = p
	st := h.store.Get()
	p.Push(protocol.Welcome(id))
	p.Push(protocol.ChatStatus(st.ChatEnabled))
	p.Push(protocol.StateUpdate(st))
	log.Debug().Str("session", id).Int("sessions", h.registry.Len()).Msg("[control] session connected")
	h.publishSessions()
	return id, nil
}

// Disconnect removes the session. Unknown ids are ignored.
func (h *Hub) Disconnect(id string) {
	_ = h.call(func(h *Hub) {
		if !h.registry.Deregister(id) {
			return
		}
		delete(h.peers, id)
		log.Debug().Str("session", id).Msg("[control] session disconnected")
		h.publishSessions()
	})
}

func (h *Hub) SetIdentity(id, name string) {
	name = chat.SanitizeName(name, registry.DefaultName)
	_ = h.call(func(h *Hub) {
		if h.registry.SetIdentity(id, name) {
			h.publishIfDue(id)
		}
	})
}

func (h *Hub) ReportActivity(id string, a registry.Activity) {
	a = sanitizeActivity(a)
	_ = h.call(func(h *Hub) {
		if h.registry.ReportActivity(id, a) {
			h.publishIfDue(id)
		}
	})
}

func sanitizeActivity(a registry.Activity) registry.Activity {
	clean := func(p *string, fn func(string) string) *string {
		if p == nil {
			return nil
		}
		v := fn(*p)
		return &v
	}
	return registry.Activity{
		Page:     clean(a.Page, chat.SanitizeLabel),
		Activity: clean(a.Activity, chat.SanitizeLabel),
		Device:   clean(a.Device, chat.SanitizeLabel),
		Poster:   clean(a.Poster, chat.SanitizeURL),
	}
}

func (h *Hub) publishIfDue(id string) {
	if h.registry.Due(id, h.cfg.PublishInterval) {
		h.publishSessions()
	}
}

func (h *Hub) publishSessions() {
	h.broadcastObservers(protocol.UserList(h.registry.Snapshot()))
	h.registry.MarkPublished()
	h.metrics.Sessions.Set(float64(h.registry.Len()))
}

// Observe subscribes p to session lists and effect state updates.
func (h *Hub) Observe(p Peer) error {
	return h.call(func(h *Hub) {
		h.observers[p] = struct{}{}
		h.metrics.Observers.Set(float64(len(h.observers)))
		p.Push(protocol.UserList(h.registry.Snapshot()))
		p.Push(protocol.StateUpdate(h.store.Get()))
	})
}

func (h *Hub) Unobserve(p Peer) {
	_ = h.call(func(h *Hub) {
		delete(h.observers, p)
		h.metrics.Observers.Set(float64(len(h.observers)))
	})
}

// RequestState answers a request_admin_state from p.
func (h *Hub) RequestState(p Peer) {
	_ = h.call(func(h *Hub) {
		st := h.store.Get()
		if _, ok := h.observers[p]; ok {
			p.Push(protocol.UserList(h.registry.Snapshot()))
		} else {
			p.Push(protocol.ChatStatus(st.ChatEnabled))
		}
		p.Push(protocol.StateUpdate(st))
	})
}

// SendChat relays text from a session. The sender name is taken from the
// registry.
func (h *Hub) SendChat(id, text string) error {
	var err error
	if cerr := h.call(func(h *Hub) {
		s, ok := h.registry.Get(id)
		if !ok {
			return
		}
		err = h.sendChat(chat.Sender{Name: s.DisplayName, SessionID: id}, text)
	}); cerr != nil {
		return cerr
	}
	return err
}

// SendAdminChat relays text from a controller.
func (h *Hub) SendAdminChat(text string) error {
	var err error
	if cerr := h.call(func(h *Hub) {
		err = h.sendChat(chat.Sender{Admin: true}, text)
	}); cerr != nil {
		return cerr
	}
	return err
}

func (h *Hub) sendChat(from chat.Sender, text string) error {
	msg, err := h.relay.Compose(from, text, h.store.Get().ChatEnabled)
	if err != nil {
		h.metrics.ChatMessages.WithLabelValues("rejected").Inc()
		return err
	}
	ev := protocol.ReceiveChat(msg)
	h.broadcastSessions(ev)
	h.broadcastObservers(ev)
	h.metrics.ChatMessages.WithLabelValues("delivered").Inc()
	return nil
}

// ToggleChat sets the chat flag. Enabling it also opens the chat on every
// session.
func (h *Hub) ToggleChat(enabled bool) error {
	return h.call(func(h *Hub) {
		st, opened := h.store.SetChatEnabled(enabled)
		h.broadcastSessions(protocol.ChatStatus(enabled))
		if opened {
			h.broadcastSessions(openChat)
		}
		h.broadcastObservers(protocol.StateUpdate(st))
		h.journal.Append(audit.Entry{
			At:        h.cfg.Clock(),
			Kind:      "chat",
			Target:    "all",
			Payload:   boolString(enabled),
			Delivered: len(h.peers),
		})
	})
}

func boolString(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

// Sessions returns a point in time copy of the registry.
func (h *Hub) Sessions() []registry.Session {
	var out []registry.Session
	_ = h.call(func(h *Hub) { out = h.registry.Snapshot() })
	return out
}

// State returns the current effect state.
func (h *Hub) State() effects.State {
	var st effects.State
	_ = h.call(func(h *Hub) { st = h.store.Get() })
	return st
}

// EvictStale runs one eviction pass immediately.
func (h *Hub) EvictStale() []string {
	var ids []string
	_ = h.call(func(h *Hub) { ids = h.evictStale() })
	return ids
}

func (h *Hub) evictStale() []string {
	ids := h.registry.EvictStale(h.cfg.SessionTTL)
	if len(ids) == 0 {
		return nil
	}
	for _, id := range ids {
		if p, ok := h.peers[id]; ok {
			delete(h.peers, id)
			p.Close()
		}
	}
	h.metrics.Evicted.Add(float64(len(ids)))
	log.Info().Strs("sessions", ids).Msg("[control] evicted stale sessions")
	h.publishSessions()
	return ids
}

func (h *Hub) broadcastSessions(ev protocol.ServerEvent) {
	for _, id := range h.registry.IDs() {
		if p, ok := h.peers[id]; ok {
			p.Push(ev)
		}
	}
}

func (h *Hub) broadcastObservers(ev protocol.ServerEvent) {
	for p := range h.observers {
		p.Push(ev)
	}
}
