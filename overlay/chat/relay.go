// Package chat builds chat messages and applies the chat gate.
package chat

import (
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	ErrEmptyMessage = errors.New("chat: empty message")
	ErrChatDisabled = errors.New("chat: disabled")
)

// AdminName is the sender name used for controller messages.
const AdminName = "SYSTEM ADMIN"

// Gate decides whether sends are accepted while chat is disabled.
type Gate string

const (
	// GateOpen delivers regardless of the chat flag; clients hide the surface.
	GateOpen Gate = "open"
	// GateStrict rejects non admin sends while chat is disabled.
	GateStrict Gate = "strict"
)

func ParseGate(s string) (Gate, error) {
	switch Gate(s) {
	case "", GateOpen:
		return GateOpen, nil
	case GateStrict:
		return GateStrict, nil
	}
	return "", errors.New("chat: unknown gate " + s)
}

type Message struct {
	ID              string    `json:"id"`
	SenderName      string    `json:"senderName"`
	SenderSessionID string    `json:"senderSessionId,omitempty"`
	Text            string    `json:"text"`
	IsAdmin         bool      `json:"isAdmin"`
	SentAt          time.Time `json:"sentAt"`
}

type Sender struct {
	Name      string
	SessionID string
	Admin     bool
}

type Relay struct {
	gate Gate
	now  func() time.Time
}

func NewRelay(gate Gate, now func() time.Time) *Relay {
	if now == nil {
		now = time.Now
	}
	if gate == "" {
		gate = GateOpen
	}
	return &Relay{gate: gate, now: now}
}

func (r *Relay) Gate() Gate { return r.gate }

// Compose validates and builds a message ready for fan out.
func (r *Relay) Compose(from Sender, text string, chatEnabled bool) (Message, error) {
	text = SanitizeMessage(text)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}
	if r.gate == GateStrict && !chatEnabled && !from.Admin {
		return Message{}, ErrChatDisabled
	}
	name := from.Name
	if from.Admin {
		name = AdminName
	}
	now := r.now()
	return Message{
		ID:              ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		SenderName:      name,
		SenderSessionID: from.SessionID,
		Text:            text,
		IsAdmin:         from.Admin,
		SentAt:          now,
	}, nil
}
