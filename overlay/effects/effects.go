// Package effects holds the process wide effect state.
package effects

import "fmt"

// State is the shared record of persistent toggles and the chat flag.
type State struct {
	Matrix      bool `json:"matrix"`
	Invert      bool `json:"invert"`
	Glitch      bool `json:"glitch"`
	Rotate      bool `json:"rotate"`
	Freeze      bool `json:"freeze"`
	ChatEnabled bool `json:"chatEnabled"`
}

type Field string

const (
	Matrix Field = "matrix"
	Invert Field = "invert"
	Glitch Field = "glitch"
	Rotate Field = "rotate"
	Freeze Field = "freeze"
)

// Toggles lists the toggle fields in canonical order.
var Toggles = []Field{Matrix, Invert, Glitch, Rotate, Freeze}

func ParseField(s string) (Field, error) {
	for _, f := range Toggles {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown effect field %q", s)
}

// Value returns the toggle value of f.
func (s State) Value(f Field) bool {
	switch f {
	case Matrix:
		return s.Matrix
	case Invert:
		return s.Invert
	case Glitch:
		return s.Glitch
	case Rotate:
		return s.Rotate
	case Freeze:
		return s.Freeze
	}
	return false
}

func (s *State) set(f Field, v bool) {
	switch f {
	case Matrix:
		s.Matrix = v
	case Invert:
		s.Invert = v
	case Glitch:
		s.Glitch = v
	case Rotate:
		s.Rotate = v
	case Freeze:
		s.Freeze = v
	}
}

// Active lists the toggles currently on, in canonical order.
func (s State) Active() []Field {
	var out []Field
	for _, f := range Toggles {
		if s.Value(f) {
			out = append(out, f)
		}
	}
	return out
}

// Store owns the single State. Like the registry it is driven from one
// goroutine only.
type Store struct {
	state State
}

func NewStore() *Store { return &Store{} }

func (s *Store) Get() State { return s.state }

// ApplyToggle sets f to v. Setting the current value is allowed.
func (s *Store) ApplyToggle(f Field, v bool) State {
	s.state.set(f, v)
	return s.state
}

// SetChatEnabled sets the chat flag. opened is true only when the flag
// went from false to true.
func (s *Store) SetChatEnabled(v bool) (st State, opened bool) {
	opened = v && !s.state.ChatEnabled
	s.state.ChatEnabled = v
	return s.state, opened
}

// Reset clears every toggle and the chat flag in one assignment.
func (s *Store) Reset() State {
	s.state = State{}
	return s.state
}
