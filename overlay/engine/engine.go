// Package engine applies server commands to the local state of one session.
package engine

import (
	"math/rand"
	"sync"
	"time"

	"github.com/gosuda/portal-overlay/overlay/chat"
	"github.com/gosuda/portal-overlay/overlay/command"
	"github.com/gosuda/portal-overlay/overlay/effects"
	"github.com/gosuda/portal-overlay/overlay/protocol"
)

const (
	DefaultWidth  = 1280
	DefaultHeight = 720
	MediaSize     = 200
	maxSpeed      = 5
	historyLimit  = 100
)

// Effects performs the side effects a session cannot express as state.
// Hooks run while the engine is locked and must not call back into it.
type Effects interface {
	SetEffect(f effects.Field, on bool)
	PlaySound(url string)
	Speak(text string)
	Navigate(url string)
	Terminate()
	Reload()
}

type nopEffects struct{}

func (nopEffects) SetEffect(effects.Field, bool) {}
func (nopEffects) PlaySound(string)              {}
func (nopEffects) Speak(string)                  {}
func (nopEffects) Navigate(string)               {}
func (nopEffects) Terminate()                    {}
func (nopEffects) Reload()                       {}

// Bouncer is a spawned image or video moving around the viewport.
type Bouncer struct {
	Kind command.Kind
	URL  string
	X, Y float64
	DX   float64
	DY   float64
}

type State struct {
	Matrix bool
	Invert bool
	Glitch bool
	Rotate bool
	Freeze bool

	Media []Bouncer
	Alert string

	ChatEnabled bool
	ChatOpen    bool
	Unread      int
	History     []chat.Message

	Terminated bool
}

func (s State) Effects() effects.State {
	return effects.State{
		Matrix:      s.Matrix,
		Invert:      s.Invert,
		Glitch:      s.Glitch,
		Rotate:      s.Rotate,
		Freeze:      s.Freeze,
		ChatEnabled: s.ChatEnabled,
	}
}

type Option func(*Engine)

func WithEffects(fx Effects) Option {
	return func(e *Engine) { e.fx = fx }
}

func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rng = r }
}

func WithViewport(w, h float64) Option {
	return func(e *Engine) { e.width, e.height = w, h }
}

type Engine struct {
	mu        sync.Mutex
	state     State
	sessionID string
	fx        Effects
	rng       *rand.Rand
	width     float64
	height    float64
}

func New(opts ...Option) *Engine {
	e := &Engine{
		fx:     nopEffects{},
		width:  DefaultWidth,
		height: DefaultHeight,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return e
}

// State returns a copy of the local state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.state
	st.Media = append([]Bouncer(nil), e.state.Media...)
	st.History = append([]chat.Message(nil), e.state.History...)
	return st
}

func (e *Engine) SessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionID
}

// Handle routes one server event.
func (e *Engine) Handle(ev protocol.ServerEvent) {
	switch ev.Type {
	case protocol.EventWelcome:
		e.mu.Lock()
		e.sessionID = ev.ID
		e.mu.Unlock()
	case protocol.EventAdminStateUpdate:
		if ev.State != nil {
			e.Replay(ev.State.Effects)
			e.SetChatEnabled(ev.State.ChatEnabled)
		}
	case protocol.EventChatStatus:
		if ev.Enabled != nil {
			e.SetChatEnabled(*ev.Enabled)
		}
	case protocol.EventExecuteCommand:
		if ev.Command != nil {
			e.Apply(*ev.Command)
		}
	case protocol.EventReceiveChat:
		if ev.Chat != nil {
			e.ReceiveChat(*ev.Chat)
		}
	}
}

// Replay brings the toggles in line with a snapshot: one apply per field that
// is on, and an explicit revert for fields that are on locally only.
func (e *Engine) Replay(st effects.State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Terminated {
		return
	}
	for _, f := range effects.Toggles {
		want := st.Value(f)
		if want || e.state.Effects().Value(f) {
			e.setToggle(f, want)
		}
	}
}

// Apply executes one command.
func (e *Engine) Apply(cmd protocol.Command) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Terminated {
		return
	}
	text, _ := cmd.Payload.Text()
	on, _ := cmd.Payload.Bool()
	switch cmd.Type {
	case command.Matrix, command.Invert, command.Glitch, command.Rotate:
		f, _ := cmd.Type.Field()
		e.setToggle(f, on)
	case command.Freeze:
		e.setToggle(effects.Freeze, true)
	case command.Unfreeze:
		e.setToggle(effects.Freeze, false)
	case command.Sound:
		e.fx.PlaySound(text)
	case command.TTS:
		e.fx.Speak(text)
	case command.Image, command.Video:
		e.spawn(cmd.Type, text)
	case command.Redirect:
		e.fx.Navigate(text)
	case command.Kick:
		e.state.Terminated = true
		e.fx.Terminate()
	case command.Reload:
		e.fx.Reload()
	case command.Alert:
		e.state.Alert = text
	case command.OpenChat:
		e.setChatOpen(on)
	case command.Reset:
		for _, f := range effects.Toggles {
			e.setToggle(f, false)
		}
		e.state.Media = nil
		e.state.Alert = ""
	}
}

func (e *Engine) setToggle(f effects.Field, on bool) {
	switch f {
	case effects.Matrix:
		e.state.Matrix = on
	case effects.Invert:
		e.state.Invert = on
	case effects.Glitch:
		e.state.Glitch = on
	case effects.Rotate:
		e.state.Rotate = on
	case effects.Freeze:
		e.state.Freeze = on
	}
	e.fx.SetEffect(f, on)
}

// SetChatEnabled follows the server chat flag. Disabling closes the chat.
func (e *Engine) SetChatEnabled(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.ChatEnabled = v
	if !v {
		e.state.ChatOpen = false
	}
}

// OpenChat opens or closes the chat surface locally.
func (e *Engine) OpenChat(open bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setChatOpen(open)
}

func (e *Engine) setChatOpen(open bool) {
	e.state.ChatOpen = open
	if open {
		e.state.Unread = 0
	}
}

func (e *Engine) ReceiveChat(m chat.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.History = append(e.state.History, m)
	if n := len(e.state.History); n > historyLimit {
		e.state.History = append([]chat.Message(nil), e.state.History[n-historyLimit:]...)
	}
	if !e.state.ChatOpen {
		e.state.Unread++
	}
}

// DismissAlert clears the alert banner.
func (e *Engine) DismissAlert() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Alert = ""
}
