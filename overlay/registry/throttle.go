package registry

import "time"

// Due reports whether a pending change on id may be published now. A true
// result stamps the session so the next report within interval is held back.
func (r *Registry) Due(id string, interval time.Duration) bool {
	s, ok := r.sessions[id]
	if !ok || !s.dirty {
		return false
	}
	now := r.now()
	if now.Sub(s.lastPublishedAt) < interval {
		return false
	}
	s.lastPublishedAt = now
	return true
}

// FlushDue reports whether any held back change has waited at least interval.
// Matching sessions are stamped like Due.
func (r *Registry) FlushDue(interval time.Duration) bool {
	now := r.now()
	found := false
	for _, id := range r.order {
		s := r.sessions[id]
		if s.dirty && now.Sub(s.lastPublishedAt) >= interval {
			s.lastPublishedAt = now
			found = true
		}
	}
	return found
}

// MarkPublished clears pending changes after a full snapshot went out.
func (r *Registry) MarkPublished() {
	for _, s := range r.sessions {
		s.dirty = false
	}
}
