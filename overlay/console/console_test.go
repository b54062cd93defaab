package console

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/portal-overlay/overlay/command"
	"github.com/gosuda/portal-overlay/overlay/effects"
	"github.com/gosuda/portal-overlay/overlay/protocol"
	"github.com/gosuda/portal-overlay/overlay/registry"
)

func one(t *testing.T, c *Console, line string) protocol.ClientMessage {
	t.Helper()
	msgs, err := c.Execute(line)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	return msgs[0]
}

func TestToggleLines(t *testing.T) {
	c := New()
	msg := one(t, c, "matrix on")
	assert.Equal(t, protocol.TypeAdminCommand, msg.Type)
	assert.Equal(t, "matrix", msg.Command)
	assert.JSONEq(t, `"all"`, string(msg.Target))
	assert.JSONEq(t, `true`, string(msg.Payload))

	msg = one(t, c, "ROTATE off")
	assert.Equal(t, "rotate", msg.Command)
	assert.JSONEq(t, `false`, string(msg.Payload))

	_, err := c.Execute("glitch maybe")
	require.ErrorIs(t, err, ErrUsage)
}

func TestSelectionIsUsed(t *testing.T) {
	c := New()
	msgs, err := c.Execute("select s1 s2 s1")
	require.NoError(t, err)
	assert.Nil(t, msgs)
	assert.Equal(t, []string{"s1", "s2"}, c.Selection())

	msg := one(t, c, "kick")
	assert.JSONEq(t, `["s1","s2"]`, string(msg.Target))
	assert.JSONEq(t, `null`, string(msg.Payload))

	_, err = c.Execute("select all")
	require.NoError(t, err)
	assert.Empty(t, c.Selection())
	msg = one(t, c, "reload")
	assert.JSONEq(t, `"all"`, string(msg.Target))
}

func TestBlankSelectKeepsSelection(t *testing.T) {
	c := New()
	_, err := c.Execute("select s1")
	require.NoError(t, err)

	_, err = c.Execute(`select " " ""`)
	require.ErrorIs(t, err, ErrUsage)
	assert.Equal(t, []string{"s1"}, c.Selection())
	assert.JSONEq(t, `["s1"]`, string(one(t, c, "kick").Target))
}

func TestQuotedText(t *testing.T) {
	c := New()
	msg := one(t, c, `tts "hello there" friend`)
	assert.Equal(t, "tts", msg.Command)
	assert.JSONEq(t, `"hello there friend"`, string(msg.Payload))

	msg = one(t, c, "image https://a/b.png")
	assert.JSONEq(t, `"https://a/b.png"`, string(msg.Payload))

	_, err := c.Execute("sound")
	require.ErrorIs(t, err, ErrUsage)
	_, err = c.Execute("alert")
	require.ErrorIs(t, err, ErrUsage)
}

func TestFreezeAndOpenChat(t *testing.T) {
	c := New()
	msg := one(t, c, "unfreeze")
	cmd, err := command.Parse(msg.Command, msg.Target, msg.Payload)
	require.NoError(t, err)
	v, _ := cmd.Payload.Bool()
	assert.False(t, v)

	msg = one(t, c, "open-chat")
	assert.Equal(t, "open_chat", msg.Command)
}

func TestChatLines(t *testing.T) {
	c := New()
	msg := one(t, c, "chat on")
	assert.Equal(t, protocol.TypeAdminToggleChat, msg.Type)
	require.NotNil(t, msg.Enabled)
	assert.True(t, *msg.Enabled)

	c.selection = []string{"s9"}
	msgs, err := c.Execute("say welcome everyone")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, protocol.TypeSendChat, msgs[0].Type)
	assert.Equal(t, "welcome everyone", msgs[0].Text)
	assert.Equal(t, "open_chat", msgs[1].Command)
	assert.JSONEq(t, `"all"`, string(msgs[1].Target), "say opens chat for everyone")
}

func TestMiscLines(t *testing.T) {
	c := New()
	msgs, err := c.Execute("   ")
	require.NoError(t, err)
	assert.Nil(t, msgs)

	assert.Equal(t, protocol.TypeRequestAdminState, one(t, c, "state").Type)

	_, err = c.Execute("explode")
	require.ErrorIs(t, err, ErrUnknownCommand)
	_, err = c.Execute(`tts "unterminated`)
	require.Error(t, err)
}

func TestMessagesRoundTripThroughJSON(t *testing.T) {
	msg := one(t, New(), "redirect https://example.com")
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	var back protocol.ClientMessage
	require.NoError(t, json.Unmarshal(b, &back))
	cmd, err := command.Parse(back.Command, back.Target, back.Payload)
	require.NoError(t, err)
	assert.Equal(t, command.Redirect, cmd.Kind)
}

func TestRender(t *testing.T) {
	color.NoColor = true
	now := time.Date(2025, 1, 1, 0, 1, 0, 0, time.UTC)
	var buf bytes.Buffer
	RenderSessions(&buf, []registry.Session{
		{ID: "s1", DisplayName: "neo", CurrentPage: "Movie", CurrentActivity: "Watching", DeviceLabel: "Mobile", LastSeenAt: now.Add(-5 * time.Second)},
	}, []string{"s1"}, now)
	out := buf.String()
	assert.Contains(t, out, "1 session(s)")
	assert.Contains(t, out, "* s1")
	assert.Contains(t, out, "5s ago")

	buf.Reset()
	RenderState(&buf, protocol.AdminState{Effects: effects.State{Matrix: true}, ChatEnabled: true})
	assert.Contains(t, buf.String(), "matrix:on")
	assert.Contains(t, buf.String(), "invert:off")
	assert.Contains(t, buf.String(), "chat:on")
}
