package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/portal-overlay/overlay/agent"
	"github.com/gosuda/portal-overlay/overlay/command"
	"github.com/gosuda/portal-overlay/overlay/console"
	"github.com/gosuda/portal-overlay/overlay/control"
	"github.com/gosuda/portal-overlay/overlay/engine"
	"github.com/gosuda/portal-overlay/overlay/protocol"
	"github.com/gosuda/portal-overlay/overlay/registry"
)

const testKey = "s3cret"

func newTestServer(t *testing.T, cfg control.Config) (*httptest.Server, *control.Hub) {
	t.Helper()
	reg := prometheus.NewRegistry()
	cfg.Metrics = control.NewMetrics(reg)
	hub := control.NewHub(cfg)
	srv := httptest.NewServer(NewHTTPServer(hub, nil, testKey, reg).Router())
	t.Cleanup(func() {
		srv.Close()
		hub.Close()
	})
	return srv, hub
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func dialSession(t *testing.T, srv *httptest.Server) (*websocket.Conn, string) {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	ev := readUntil(t, conn, func(ev protocol.ServerEvent) bool { return ev.Type == protocol.EventWelcome })
	require.NotEmpty(t, ev.ID)
	return conn, ev.ID
}

func dialAdmin(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set(adminKeyHeader, testKey)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/admin"), header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(protocol.ServerEvent) bool) protocol.ServerEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var ev protocol.ServerEvent
		require.NoError(t, conn.ReadJSON(&ev))
		if match(ev) {
			return ev
		}
	}
}

func isCommand(kind command.Kind) func(protocol.ServerEvent) bool {
	return func(ev protocol.ServerEvent) bool {
		return ev.Type == protocol.EventExecuteCommand && ev.Command != nil && ev.Command.Type == kind
	}
}

func run(t *testing.T, conn *websocket.Conn, con *console.Console, line string) {
	t.Helper()
	msgs, err := con.Execute(line)
	require.NoError(t, err)
	for _, m := range msgs {
		require.NoError(t, conn.WriteJSON(m))
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, control.Config{})
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminRoutesRequireKey(t *testing.T) {
	srv, _ := newTestServer(t, control.Config{})

	resp, err := http.Get(srv.URL + "/api/state")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv, "/ws/admin"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/state?key=" + testKey)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSessionRefusedAtCapacity(t *testing.T) {
	srv, _ := newTestServer(t, control.Config{MaxSessions: 1})
	dialSession(t, srv)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	a := agent.New(agent.Config{URL: wsURL(srv, "/ws")}, nil)
	assert.ErrorIs(t, a.Run(context.Background()), agent.ErrRejected)
}

func TestLateSessionReplaysState(t *testing.T) {
	srv, _ := newTestServer(t, control.Config{})
	admin := dialAdmin(t, srv)
	con := console.New()

	run(t, admin, con, "matrix on")
	run(t, admin, con, "chat on")
	readUntil(t, admin, func(ev protocol.ServerEvent) bool {
		return ev.Type == protocol.EventAdminStateUpdate && ev.State != nil &&
			ev.State.Effects.Matrix && ev.State.ChatEnabled
	})

	eng := engine.New()
	a := agent.New(agent.Config{URL: wsURL(srv, "/ws"), Name: "late"}, eng)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		st := eng.State()
		return st.Matrix && st.ChatEnabled && eng.SessionID() != ""
	}, 3*time.Second, 10*time.Millisecond)
	assert.False(t, eng.State().Invert)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("agent did not stop")
	}
}

func TestTargetedCommandReachesOnlyTarget(t *testing.T) {
	srv, _ := newTestServer(t, control.Config{})
	a, idA := dialSession(t, srv)
	b, _ := dialSession(t, srv)
	admin := dialAdmin(t, srv)
	con := console.New()

	run(t, admin, con, "select "+idA)
	run(t, admin, con, "alert hello")
	run(t, admin, con, "select all")
	run(t, admin, con, "reload")

	ev := readUntil(t, a, func(ev protocol.ServerEvent) bool { return ev.Type == protocol.EventExecuteCommand })
	assert.Equal(t, command.Alert, ev.Command.Type)
	text, _ := ev.Command.Payload.Text()
	assert.Equal(t, "hello", text)
	readUntil(t, a, isCommand(command.Reload))

	// b sees the broadcast first, never the alert.
	ev = readUntil(t, b, func(ev protocol.ServerEvent) bool { return ev.Type == protocol.EventExecuteCommand })
	assert.Equal(t, command.Reload, ev.Command.Type)
}

func TestMalformedCommandErrorsOnlyToController(t *testing.T) {
	srv, _ := newTestServer(t, control.Config{})
	sess, _ := dialSession(t, srv)
	admin := dialAdmin(t, srv)

	require.NoError(t, admin.WriteJSON(protocol.ClientMessage{
		Type:    protocol.TypeAdminCommand,
		Command: "teleport",
		Target:  json.RawMessage(`"all"`),
	}))
	ev := readUntil(t, admin, func(ev protocol.ServerEvent) bool { return ev.Type == protocol.EventError })
	assert.NotEmpty(t, ev.Message)

	run(t, admin, console.New(), "reload")
	ev = readUntil(t, sess, func(ev protocol.ServerEvent) bool { return ev.Type == protocol.EventExecuteCommand })
	assert.Equal(t, command.Reload, ev.Command.Type)
}

func TestSnapshotEndpoints(t *testing.T) {
	srv, hub := newTestServer(t, control.Config{})
	_, id := dialSession(t, srv)
	cmd, err := command.New(command.Glitch, command.All(), command.Bool(true))
	require.NoError(t, err)
	_, err = hub.Dispatch(cmd)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/sessions", nil)
	require.NoError(t, err)
	req.Header.Set(adminKeyHeader, testKey)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	var sessions []registry.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sessions))
	resp.Body.Close()
	require.Len(t, sessions, 1)
	assert.Equal(t, id, sessions[0].ID)
	assert.Equal(t, registry.DefaultName, sessions[0].DisplayName)

	req.URL.Path = "/api/state"
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	var st protocol.AdminState
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	resp.Body.Close()
	assert.True(t, st.Effects.Glitch)
	assert.False(t, st.ChatEnabled)

	req.URL.Path = "/api/audit"
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRelayURLs(t *testing.T) {
	assert.Equal(t,
		[]string{"wss://a.example", "wss://b.example", "wss://c.example"},
		relayURLs([]string{"wss://a.example, wss://b.example", " ", "wss://c.example"}))
	assert.Nil(t, relayURLs([]string{""}))
}

func TestQuoteArgs(t *testing.T) {
	msgs, err := console.New().Execute(strings.Join(quoteArgs([]string{"alert", `say "hi" now`}), " "))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `"say \"hi\" now"`, string(msgs[0].Payload))
}
