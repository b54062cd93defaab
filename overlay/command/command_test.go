package command

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/portal-overlay/overlay/effects"
)

func raw(s string) json.RawMessage {
	if s == "" {
		return nil
	}
	return json.RawMessage(s)
}

func TestParseValid(t *testing.T) {
	cases := []struct {
		name    string
		kind    string
		payload string
		want    Payload
	}{
		{"toggle on", "rotate", "true", Bool(true)},
		{"toggle off", "matrix", "false", Bool(false)},
		{"freeze absent", "freeze", "", Bool(true)},
		{"freeze true", "freeze", "true", Bool(true)},
		{"unfreeze absent", "unfreeze", "null", Bool(false)},
		{"unfreeze false", "unfreeze", "false", Bool(false)},
		{"sound", "sound", `"https://a/b.mp3"`, String("https://a/b.mp3")},
		{"tts", "tts", `"hello there"`, String("hello there")},
		{"redirect", "redirect", `"https://example.com"`, String("https://example.com")},
		{"kick", "kick", "", None()},
		{"reload", "reload", "null", None()},
		{"reset", "reset", "", None()},
		{"open chat", "open_chat", "true", Bool(true)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd, err := Parse(tc.kind, nil, raw(tc.payload))
			require.NoError(t, err)
			assert.Equal(t, Kind(tc.kind), cmd.Kind)
			assert.Equal(t, tc.want, cmd.Payload)
			assert.True(t, cmd.Target.IsAll())
		})
	}
}

func TestParseMalformed(t *testing.T) {
	cases := []struct {
		name    string
		kind    string
		target  string
		payload string
	}{
		{"unknown kind", "explode", "", "true"},
		{"toggle with string", "rotate", "", `"yes"`},
		{"toggle without payload", "glitch", "", ""},
		{"sound with bool", "sound", "", "true"},
		{"empty alert", "alert", "", `"  "`},
		{"kick with payload", "kick", "", `"now"`},
		{"number payload", "matrix", "", "1"},
		{"object payload", "tts", "", `{"text":"x"}`},
		{"freeze false", "freeze", "", "false"},
		{"unfreeze true", "unfreeze", "", "true"},
		{"numeric target", "reload", "42", ""},
		{"object target", "reload", `{"id":"a"}`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.kind, raw(tc.target), raw(tc.payload))
			require.ErrorIs(t, err, ErrMalformedCommand)
		})
	}
}

func TestParseTarget(t *testing.T) {
	for _, in := range []string{"", "null", `"all"`, `[]`} {
		tgt, err := ParseTarget(raw(in))
		require.NoError(t, err, in)
		assert.True(t, tgt.IsAll(), in)
	}

	for _, in := range []string{`""`, `" "`, `[" "]`, `["", ""]`, `[1]`, `{}`} {
		_, err := ParseTarget(raw(in))
		require.ErrorIs(t, err, ErrMalformedCommand, in)
	}

	tgt, err := ParseTarget(raw(`"s1"`))
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, tgt.IDs())

	tgt, err = ParseTarget(raw(`["s1","s2","s1"]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, tgt.IDs())
	assert.Equal(t, "s1,s2", tgt.String())
}

func TestKindClassification(t *testing.T) {
	f, ok := Unfreeze.Field()
	require.True(t, ok)
	assert.Equal(t, effects.Freeze, f)

	assert.True(t, Matrix.Stateful())
	assert.True(t, Reset.Stateful())
	assert.False(t, Sound.Stateful())
	assert.False(t, OpenChat.Stateful())
	assert.False(t, Kind("nope").Valid())
}

func TestPayloadJSON(t *testing.T) {
	for _, p := range []Payload{None(), Bool(true), Bool(false), String("x")} {
		b, err := json.Marshal(p)
		require.NoError(t, err)
		var got Payload
		require.NoError(t, json.Unmarshal(b, &got))
		assert.Equal(t, p, got)
	}
}

func TestNew(t *testing.T) {
	_, err := New(Kick, IDs(" ", ""), None())
	require.ErrorIs(t, err, ErrMalformedCommand)
	_, err = New(Kick, Target{}, None())
	require.ErrorIs(t, err, ErrMalformedCommand)
	assert.False(t, IDs(" ").IsAll())

	cmd, err := New(Unfreeze, IDs("a", "a"), None())
	require.NoError(t, err)
	assert.Equal(t, Bool(false), cmd.Payload)
	assert.Equal(t, []string{"a"}, cmd.Target.IDs())

	_, err = New(Alert, All(), String(""))
	require.ErrorIs(t, err, ErrMalformedCommand)
}
