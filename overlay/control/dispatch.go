package control

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/portal-overlay/overlay/audit"
	"github.com/gosuda/portal-overlay/overlay/command"
	"github.com/gosuda/portal-overlay/overlay/effects"
	"github.com/gosuda/portal-overlay/overlay/protocol"
)

var openChat = protocol.Execute(command.OpenChat, command.Bool(true))

// Result summarizes one dispatch.
type Result struct {
	Delivered int
	Dropped   int
}

// DispatchRaw parses a controller command. Malformed input is logged and
// answered with an error event to origin only.
func (h *Hub) DispatchRaw(origin Peer, kind string, target, payload json.RawMessage) (Result, error) {
	cmd, err := command.Parse(kind, target, payload)
	if err != nil {
		log.Warn().Err(err).Str("kind", kind).Msg("[control] rejected command")
		h.metrics.Commands.WithLabelValues("invalid", "malformed").Inc()
		if origin != nil {
			origin.Push(protocol.Error(err.Error()))
		}
		return Result{}, err
	}
	return h.Dispatch(cmd)
}

// Dispatch mutates the effect state when cmd is stateful and sends it to every
// resolved target, all in one step of the loop.
func (h *Hub) Dispatch(cmd command.Command) (Result, error) {
	var res Result
	if err := h.call(func(h *Hub) { res = h.dispatch(cmd) }); err != nil {
		return Result{}, err
	}
	return res, nil
}

func (h *Hub) dispatch(cmd command.Command) Result {
	var st effects.State
	switch {
	case cmd.Kind == command.Reset:
		st = h.store.Reset()
	default:
		if f, ok := cmd.Kind.Field(); ok {
			v, _ := cmd.Payload.Bool()
			st = h.store.ApplyToggle(f, v)
		}
	}

	targets, dropped := h.resolve(cmd.Target)
	ev := protocol.Execute(cmd.Kind, cmd.Payload)
	for _, p := range targets {
		p.Push(ev)
	}
	if cmd.Kind == command.Reset {
		h.broadcastSessions(protocol.ChatStatus(false))
	}
	if cmd.Kind.Stateful() {
		h.broadcastObservers(protocol.StateUpdate(st))
	}

	res := Result{Delivered: len(targets), Dropped: dropped}
	h.metrics.Commands.WithLabelValues(string(cmd.Kind), "ok").Inc()
	h.metrics.Dropped.Add(float64(dropped))
	h.journal.Append(audit.Entry{
		At:        h.cfg.Clock(),
		Kind:      string(cmd.Kind),
		Target:    cmd.Target.String(),
		Payload:   cmd.Payload.String(),
		Delivered: res.Delivered,
		Dropped:   res.Dropped,
	})
	log.Debug().
		Str("kind", string(cmd.Kind)).
		Str("target", cmd.Target.String()).
		Int("delivered", res.Delivered).
		Int("dropped", res.Dropped).
		Msg("[control] dispatched")
	return res
}

// resolve expands t once against the current registry. Ids that are no
// longer registered are skipped.
func (h *Hub) resolve(t command.Target) ([]Peer, int) {
	if t.IsAll() {
		ids := h.registry.IDs()
		out := make([]Peer, 0, len(ids))
		for _, id := range ids {
			if p, ok := h.peers[id]; ok {
				out = append(out, p)
			}
		}
		return out, 0
	}
	var (
		out     []Peer
		dropped int
	)
	for _, id := range t.IDs() {
		p, ok := h.peers[id]
		if !ok {
			log.Debug().Str("session", id).Msg("[control] target gone; dropped")
			dropped++
			continue
		}
		out = append(out, p)
	}
	return out, dropped
}
