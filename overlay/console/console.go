// Package console turns controller command lines into protocol messages.
package console

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/gosuda/portal-overlay/overlay/command"
	"github.com/gosuda/portal-overlay/overlay/protocol"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUsage          = errors.New("usage")
)

const Help = `select all | select <id>...    choose targets
matrix|invert|glitch|rotate on|off
freeze | unfreeze
sound|image|video|redirect <url>
tts|alert <text>
kick | reload | reset | open-chat
chat on|off                     enable or disable chat
say <text>                      chat as admin and open chat everywhere
sessions | state                refresh the view
help | quit`

// Console keeps the current target selection between lines.
type Console struct {
	mu        sync.Mutex
	selection []string
}

func New() *Console { return &Console{} }

// Selection returns the selected ids; empty means every session.
func (c *Console) Selection() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.selection...)
}

// Execute parses one line. A nil result with a nil error means the line only
// changed local state.
func (c *Console) Execute(line string) ([]protocol.ClientMessage, error) {
	args, err := shellwords.Parse(line)
	if err != nil {
		return nil, fmt.Errorf("parse line: %w", err)
	}
	if len(args) == 0 {
		return nil, nil
	}
	name, rest := strings.ToLower(args[0]), args[1:]
	c.mu.Lock()
	defer c.mu.Unlock()
	switch name {
	case "select":
		if len(rest) == 0 || (len(rest) == 1 && rest[0] == "all") {
			c.selection = nil
			return nil, nil
		}
		t := command.IDs(rest...)
		if t.Empty() {
			return nil, fmt.Errorf("%w: select all | select <id>...", ErrUsage)
		}
		c.selection = t.IDs()
		return nil, nil
	case "matrix", "invert", "glitch", "rotate":
		on, err := onOff(name, rest)
		if err != nil {
			return nil, err
		}
		return c.admin(command.Kind(name), command.Bool(on))
	case "freeze", "unfreeze", "kick", "reload", "reset":
		return c.admin(command.Kind(name), command.None())
	case "open-chat", "open_chat":
		return c.admin(command.OpenChat, command.Bool(true))
	case "sound", "image", "video", "redirect":
		if len(rest) != 1 {
			return nil, fmt.Errorf("%w: %s <url>", ErrUsage, name)
		}
		return c.admin(command.Kind(name), command.String(rest[0]))
	case "tts", "alert":
		if len(rest) == 0 {
			return nil, fmt.Errorf("%w: %s <text>", ErrUsage, name)
		}
		return c.admin(command.Kind(name), command.String(strings.Join(rest, " ")))
	case "chat":
		on, err := onOff(name, rest)
		if err != nil {
			return nil, err
		}
		return []protocol.ClientMessage{{Type: protocol.TypeAdminToggleChat, Enabled: &on}}, nil
	case "say":
		if len(rest) == 0 {
			return nil, fmt.Errorf("%w: say <text>", ErrUsage)
		}
		open, err := message(command.All(), command.OpenChat, command.Bool(true))
		if err != nil {
			return nil, err
		}
		return []protocol.ClientMessage{
			{Type: protocol.TypeSendChat, Text: strings.Join(rest, " ")},
			open,
		}, nil
	case "sessions", "state":
		return []protocol.ClientMessage{{Type: protocol.TypeRequestAdminState}}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
}

func (c *Console) admin(k command.Kind, p command.Payload) ([]protocol.ClientMessage, error) {
	t := command.All()
	if len(c.selection) > 0 {
		t = command.IDs(c.selection...)
	}
	msg, err := message(t, k, p)
	if err != nil {
		return nil, err
	}
	return []protocol.ClientMessage{msg}, nil
}

func message(t command.Target, k command.Kind, p command.Payload) (protocol.ClientMessage, error) {
	cmd, err := command.New(k, t, p)
	if err != nil {
		return protocol.ClientMessage{}, err
	}
	target, err := json.Marshal(cmd.Target)
	if err != nil {
		return protocol.ClientMessage{}, err
	}
	payload, err := json.Marshal(cmd.Payload)
	if err != nil {
		return protocol.ClientMessage{}, err
	}
	return protocol.ClientMessage{
		Type:    protocol.TypeAdminCommand,
		Target:  target,
		Command: string(cmd.Kind),
		Payload: payload,
	}, nil
}

func onOff(name string, args []string) (bool, error) {
	if len(args) == 1 {
		switch strings.ToLower(args[0]) {
		case "on", "true", "1":
			return true, nil
		case "off", "false", "0":
			return false, nil
		}
	}
	return false, fmt.Errorf("%w: %s on|off", ErrUsage, name)
}
