// Package protocol holds the JSON envelopes exchanged over the websocket.
package protocol

import (
	"encoding/json"

	"github.com/gosuda/portal-overlay/overlay/chat"
	"github.com/gosuda/portal-overlay/overlay/command"
	"github.com/gosuda/portal-overlay/overlay/effects"
	"github.com/gosuda/portal-overlay/overlay/registry"
)

// Inbound message types.
const (
	TypeSetIdentity       = "set_identity"
	TypeUpdateActivity    = "update_activity"
	TypeSendChat          = "send_chat"
	TypeRequestAdminState = "request_admin_state"
	TypeAdminCommand      = "admin_command"
	TypeAdminToggleChat   = "admin_toggle_chat"
)

// Outbound event types.
const (
	EventWelcome          = "welcome"
	EventUserList         = "user_list"
	EventAdminStateUpdate = "admin_state_update"
	EventChatStatus       = "chat_status"
	EventExecuteCommand   = "execute_command"
	EventReceiveChat      = "receive_chat"
	EventError            = "error"
)

// ClientMessage is the envelope received from sessions and controllers.
type ClientMessage struct {
	Type     string          `json:"type"`
	Name     string          `json:"name,omitempty"`
	Page     *string         `json:"page,omitempty"`
	Activity *string         `json:"activity,omitempty"`
	Device   *string         `json:"device,omitempty"`
	Poster   *string         `json:"poster,omitempty"`
	Text     string          `json:"text,omitempty"`
	Target   json.RawMessage `json:"target,omitempty"`
	Command  string          `json:"command,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Enabled  *bool           `json:"enabled,omitempty"`
}

// Command is the envelope a session applies.
type Command struct {
	Type    command.Kind    `json:"type"`
	Payload command.Payload `json:"payload"`
}

// AdminState is the effect snapshot sent to observers and new sessions.
type AdminState struct {
	Effects     effects.State `json:"effects"`
	ChatEnabled bool          `json:"chatEnabled"`
}

// ServerEvent is pushed to clients.
type ServerEvent struct {
	Type    string             `json:"type"`
	ID      string             `json:"id,omitempty"`
	Users   []registry.Session `json:"users,omitempty"`
	State   *AdminState        `json:"state,omitempty"`
	Enabled *bool              `json:"enabled,omitempty"`
	Command *Command           `json:"command,omitempty"`
	Chat    *chat.Message      `json:"chat,omitempty"`
	Message string             `json:"message,omitempty"`
}

// MarshalJSON always writes users on a user_list, so an empty registry goes
// out as [].
func (e ServerEvent) MarshalJSON() ([]byte, error) {
	type wire ServerEvent
	if e.Type != EventUserList {
		return json.Marshal(wire(e))
	}
	users := e.Users
	if users == nil {
		users = []registry.Session{}
	}
	return json.Marshal(struct {
		wire
		Users []registry.Session `json:"users"`
	}{wire(e), users})
}

func Welcome(id string) ServerEvent {
	return ServerEvent{Type: EventWelcome, ID: id}
}

func UserList(users []registry.Session) ServerEvent {
	return ServerEvent{Type: EventUserList, Users: users}
}

func StateUpdate(st effects.State) ServerEvent {
	return ServerEvent{Type: EventAdminStateUpdate, State: &AdminState{Effects: st, ChatEnabled: st.ChatEnabled}}
}

func ChatStatus(enabled bool) ServerEvent {
	return ServerEvent{Type: EventChatStatus, Enabled: &enabled}
}

func Execute(kind command.Kind, p command.Payload) ServerEvent {
	return ServerEvent{Type: EventExecuteCommand, Command: &Command{Type: kind, Payload: p}}
}

func ReceiveChat(m chat.Message) ServerEvent {
	return ServerEvent{Type: EventReceiveChat, Chat: &m}
}

func Error(msg string) ServerEvent {
	return ServerEvent{Type: EventError, Message: msg}
}
