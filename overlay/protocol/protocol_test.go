package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/portal-overlay/overlay/command"
	"github.com/gosuda/portal-overlay/overlay/effects"
	"github.com/gosuda/portal-overlay/overlay/registry"
)

func TestExecuteEnvelope(t *testing.T) {
	b, err := json.Marshal(Execute(command.Redirect, command.String("https://example.com")))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"execute_command","command":{"type":"redirect","payload":"https://example.com"}}`, string(b))

	b, err = json.Marshal(Execute(command.Kick, command.None()))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"execute_command","command":{"type":"kick","payload":null}}`, string(b))

	var ev ServerEvent
	require.NoError(t, json.Unmarshal([]byte(`{"type":"execute_command","command":{"type":"rotate","payload":true}}`), &ev))
	require.NotNil(t, ev.Command)
	assert.Equal(t, command.Rotate, ev.Command.Type)
	v, ok := ev.Command.Payload.Bool()
	assert.True(t, ok)
	assert.True(t, v)
}

func TestStateUpdateEnvelope(t *testing.T) {
	b, err := json.Marshal(StateUpdate(effects.State{Matrix: true, ChatEnabled: true}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"admin_state_update","state":{"effects":{"matrix":true,"invert":false,"glitch":false,"rotate":false,"freeze":false,"chatEnabled":true},"chatEnabled":true}}`, string(b))
}

func TestChatStatusFalseIsEncoded(t *testing.T) {
	b, err := json.Marshal(ChatStatus(false))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"chat_status","enabled":false}`, string(b))
}

func TestEmptyUserListKeepsUsers(t *testing.T) {
	for _, users := range [][]registry.Session{nil, {}} {
		b, err := json.Marshal(UserList(users))
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"user_list","users":[]}`, string(b))
	}

	b, err := json.Marshal(UserList([]registry.Session{{ID: "s1", DisplayName: "neo"}}))
	require.NoError(t, err)
	var ev ServerEvent
	require.NoError(t, json.Unmarshal(b, &ev))
	require.Len(t, ev.Users, 1)
	assert.Equal(t, "neo", ev.Users[0].DisplayName)

	b, err = json.Marshal(Welcome("s1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"welcome","id":"s1"}`, string(b))
}
