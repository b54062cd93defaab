// Package command defines the closed set of controller commands and parses
// them from wire input.
package command

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/gosuda/portal-overlay/overlay/effects"
)

var ErrMalformedCommand = errors.New("malformed command")

type Kind string

const (
	Matrix   Kind = "matrix"
	Invert   Kind = "invert"
	Glitch   Kind = "glitch"
	Rotate   Kind = "rotate"
	Freeze   Kind = "freeze"
	Unfreeze Kind = "unfreeze"
	Sound    Kind = "sound"
	TTS      Kind = "tts"
	Image    Kind = "image"
	Video    Kind = "video"
	Redirect Kind = "redirect"
	Kick     Kind = "kick"
	Reload   Kind = "reload"
	Alert    Kind = "alert"
	OpenChat Kind = "open_chat"
	Reset    Kind = "reset"
)

type PayloadType int

const (
	NoPayload PayloadType = iota
	BoolPayload
	StringPayload
)

type kindInfo struct {
	payload PayloadType
	field   effects.Field
}

var kinds = map[Kind]kindInfo{
	Matrix:   {payload: BoolPayload, field: effects.Matrix},
	Invert:   {payload: BoolPayload, field: effects.Invert},
	Glitch:   {payload: BoolPayload, field: effects.Glitch},
	Rotate:   {payload: BoolPayload, field: effects.Rotate},
	Freeze:   {payload: BoolPayload, field: effects.Freeze},
	Unfreeze: {payload: BoolPayload, field: effects.Freeze},
	Sound:    {payload: StringPayload},
	TTS:      {payload: StringPayload},
	Image:    {payload: StringPayload},
	Video:    {payload: StringPayload},
	Redirect: {payload: StringPayload},
	Kick:     {payload: NoPayload},
	Reload:   {payload: NoPayload},
	Alert:    {payload: StringPayload},
	OpenChat: {payload: BoolPayload},
	Reset:    {payload: NoPayload},
}

func (k Kind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

// PayloadType returns the payload shape k carries.
func (k Kind) PayloadType() PayloadType { return kinds[k].payload }

// Field returns the effect toggle k mutates, if any.
func (k Kind) Field() (effects.Field, bool) {
	info := kinds[k]
	return info.field, info.field != ""
}

// Stateful reports whether k changes the shared effect state.
func (k Kind) Stateful() bool {
	_, ok := k.Field()
	return ok || k == Reset
}

// Payload is a tagged value: absent, bool or string.
type Payload struct {
	typ PayloadType
	b   bool
	s   string
}

func None() Payload { return Payload{} }

func Bool(v bool) Payload { return Payload{typ: BoolPayload, b: v} }

func String(v string) Payload { return Payload{typ: StringPayload, s: v} }

func (p Payload) Type() PayloadType { return p.typ }

func (p Payload) Bool() (bool, bool) {
	return p.b, p.typ == BoolPayload
}

func (p Payload) Text() (string, bool) {
	return p.s, p.typ == StringPayload
}

func (p Payload) String() string {
	switch p.typ {
	case BoolPayload:
		return fmt.Sprint(p.b)
	case StringPayload:
		return p.s
	}
	return ""
}

func (p Payload) MarshalJSON() ([]byte, error) {
	switch p.typ {
	case BoolPayload:
		return json.Marshal(p.b)
	case StringPayload:
		return json.Marshal(p.s)
	}
	return []byte("null"), nil
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*p = None()
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedCommand, err)
		}
		*p = String(s)
	default:
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return fmt.Errorf("%w: payload must be bool, string or null", ErrMalformedCommand)
		}
		*p = Bool(b)
	}
	return nil
}

// Target selects either every registered session or an explicit id set.
// The zero value is an empty explicit set and selects nobody.
type Target struct {
	all bool
	ids []string
}

func All() Target { return Target{all: true} }

// IDs builds an explicit target from ids, dropping blanks and duplicates.
// It never widens to All, even when nothing usable is left.
func IDs(ids ...string) Target {
	ids = lo.Uniq(lo.Filter(ids, func(id string, _ int) bool {
		return strings.TrimSpace(id) != ""
	}))
	return Target{ids: ids}
}

func (t Target) IsAll() bool { return t.all }

// Empty reports an explicit target without any id.
func (t Target) Empty() bool { return !t.all && len(t.ids) == 0 }

func (t Target) IDs() []string {
	out := make([]string, len(t.ids))
	copy(out, t.ids)
	return out
}

func (t Target) String() string {
	if t.IsAll() {
		return "all"
	}
	return strings.Join(t.ids, ",")
}

func (t Target) MarshalJSON() ([]byte, error) {
	if t.IsAll() {
		return json.Marshal("all")
	}
	return json.Marshal(t.ids)
}

// Command is a validated controller instruction.
type Command struct {
	Kind    Kind
	Target  Target
	Payload Payload
}

// ParseTarget accepts null, "all", [] for everyone, a single id or an array of
// ids. An explicit selection without any usable id is malformed.
func ParseTarget(raw json.RawMessage) (Target, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return All(), nil
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		if one == "all" {
			return All(), nil
		}
		return explicit(IDs(one))
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return Target{}, fmt.Errorf("%w: target must be \"all\", an id or a list of ids", ErrMalformedCommand)
	}
	if len(many) == 0 {
		return All(), nil
	}
	return explicit(IDs(many...))
}

func explicit(t Target) (Target, error) {
	if t.Empty() {
		return Target{}, fmt.Errorf("%w: target has no usable id", ErrMalformedCommand)
	}
	return t, nil
}

// Parse validates kind, target and payload. freeze and unfreeze accept an
// absent payload and are normalized to true and false.
func Parse(kind string, target, payload json.RawMessage) (Command, error) {
	k := Kind(kind)
	if !k.Valid() {
		return Command{}, fmt.Errorf("%w: unknown kind %q", ErrMalformedCommand, kind)
	}
	t, err := ParseTarget(target)
	if err != nil {
		return Command{}, err
	}
	var p Payload
	if err := p.UnmarshalJSON(payload); err != nil {
		return Command{}, err
	}
	p, err = normalize(k, p)
	if err != nil {
		return Command{}, err
	}
	return Command{Kind: k, Target: t, Payload: p}, nil
}

// New validates an already typed command.
func New(k Kind, t Target, p Payload) (Command, error) {
	if !k.Valid() {
		return Command{}, fmt.Errorf("%w: unknown kind %q", ErrMalformedCommand, k)
	}
	if _, err := explicit(t); err != nil {
		return Command{}, err
	}
	p, err := normalize(k, p)
	if err != nil {
		return Command{}, err
	}
	return Command{Kind: k, Target: t, Payload: p}, nil
}

func normalize(k Kind, p Payload) (Payload, error) {
	switch k {
	case Freeze, Unfreeze:
		want := k == Freeze
		if p.typ == NoPayload {
			return Bool(want), nil
		}
		if v, ok := p.Bool(); !ok || v != want {
			return Payload{}, fmt.Errorf("%w: %s takes no payload or %v", ErrMalformedCommand, k, want)
		}
		return p, nil
	}
	want := k.PayloadType()
	if p.typ != want {
		return Payload{}, fmt.Errorf("%w: %s expects %s payload", ErrMalformedCommand, k, want)
	}
	if want == StringPayload && strings.TrimSpace(p.s) == "" {
		return Payload{}, fmt.Errorf("%w: %s payload is empty", ErrMalformedCommand, k)
	}
	return p, nil
}

func (t PayloadType) String() string {
	switch t {
	case BoolPayload:
		return "bool"
	case StringPayload:
		return "string"
	}
	return "no"
}
