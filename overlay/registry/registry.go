// Package registry keeps the table of connected sessions.
//
// A Registry is not safe for concurrent use; the control hub owns it and
// serializes every call through its loop.
package registry

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrCapacityExceeded = errors.New("registry: capacity exceeded")

const (
	DefaultName     = "Anonymous"
	DefaultPage     = "Launcher"
	DefaultActivity = "Idle"
	DefaultDevice   = "Unknown"
)

// Session is the self-reported metadata of one live connection.
type Session struct {
	ID              string    `json:"id"`
	DisplayName     string    `json:"name"`
	CurrentPage     string    `json:"page"`
	CurrentActivity string    `json:"activity"`
	DeviceLabel     string    `json:"device"`
	PosterThumbnail string    `json:"poster,omitempty"`
	LastSeenAt      time.Time `json:"lastSeenAt"`

	lastPublishedAt time.Time
	dirty           bool
}

// Activity is a partial activity report; nil fields are left untouched.
type Activity struct {
	Page     *string
	Activity *string
	Device   *string
	Poster   *string
}

type Option func(*Registry)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithIDGenerator replaces the uuid based id source.
func WithIDGenerator(gen func() string) Option {
	return func(r *Registry) { r.newID = gen }
}

type Registry struct {
	max      int
	sessions map[string]*Session
	order    []string
	now      func() time.Time
	newID    func() string
}

// New creates a registry holding at most max sessions. max <= 0 means unbounded.
func New(max int, opts ...Option) *Registry {
	r := &Registry{
		max:      max,
		sessions: make(map[string]*Session),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) Len() int { return len(r.order) }

// Full reports whether the next Register would fail.
func (r *Registry) Full() bool {
	return r.max > 0 && len(r.order) >= r.max
}

func (r *Registry) Has(id string) bool {
	_, ok := r.sessions[id]
	return ok
}

func (r *Registry) Register() (string, error) {
	if r.Full() {
		return "", ErrCapacityExceeded
	}
	id := r.newID()
	for r.Has(id) {
		id = r.newID()
	}
	now := r.now()
	r.sessions[id] = &Session{
		ID:              id,
		DisplayName:     DefaultName,
		CurrentPage:     DefaultPage,
		CurrentActivity: DefaultActivity,
		DeviceLabel:     DefaultDevice,
		LastSeenAt:      now,
		lastPublishedAt: now,
	}
	r.order = append(r.order, id)
	return id, nil
}

// Get returns a copy of the session.
func (r *Registry) Get(id string) (Session, bool) {
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// SetIdentity sets the display name. Unknown ids are ignored.
func (r *Registry) SetIdentity(id, name string) bool {
	s, ok := r.sessions[id]
	if !ok {
		return false
	}
	s.DisplayName = name
	s.LastSeenAt = r.now()
	s.dirty = true
	return true
}

// ReportActivity overwrites only the supplied fields and refreshes LastSeenAt.
func (r *Registry) ReportActivity(id string, a Activity) bool {
	s, ok := r.sessions[id]
	if !ok {
		return false
	}
	if a.Page != nil {
		s.CurrentPage = *a.Page
	}
	if a.Activity != nil {
		s.CurrentActivity = *a.Activity
	}
	if a.Device != nil {
		s.DeviceLabel = *a.Device
	}
	if a.Poster != nil {
		s.PosterThumbnail = *a.Poster
	}
	s.LastSeenAt = r.now()
	s.dirty = true
	return true
}

// Snapshot returns copies of every session in insertion order.
func (r *Registry) Snapshot() []Session {
	out := make([]Session, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.sessions[id])
	}
	return out
}

// IDs returns the registered ids in insertion order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Deregister removes the session. Removing an absent id is not an error.
func (r *Registry) Deregister(id string) bool {
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// EvictStale removes every session not seen within ttl and returns their ids.
func (r *Registry) EvictStale(ttl time.Duration) []string {
	cutoff := r.now().Add(-ttl)
	var evicted []string
	kept := r.order[:0]
	for _, id := range r.order {
		if r.sessions[id].LastSeenAt.Before(cutoff) {
			evicted = append(evicted, id)
			delete(r.sessions, id)
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
	return evicted
}
