package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry holds one session machine per signed-in identity. It is the
// server-side stand-in for the original single-user context holder.
type Registry struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*registryEntry

	profiles ProfileResolver
	tenants  TenantResolver
}

type registryEntry struct {
	session  *Session
	lastSeen time.Time
}

func NewRegistry(profiles ProfileResolver, tenants TenantResolver) *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]*registryEntry),
		profiles: profiles,
		tenants:  tenants,
	}
}

// Get returns the session for an identity if one exists, refreshing its
// last-seen timestamp.
func (r *Registry) Get(identityID uuid.UUID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[identityID]
	if !ok {
		return nil, false
	}
	entry.lastSeen = time.Now()
	return entry.session, true
}

// GetOrCreate returns the session for an identity, creating a fresh machine
// in the unauthenticated phase when none exists. The second return reports
// whether it was created.
func (r *Registry) GetOrCreate(identityID uuid.UUID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.sessions[identityID]; ok {
		entry.lastSeen = time.Now()
		return entry.session, false
	}
	sess := New(r.profiles, r.tenants)
	r.sessions[identityID] = &registryEntry{session: sess, lastSeen: time.Now()}
	return sess, true
}

// Remove drops the session for an identity (sign-out path).
func (r *Registry) Remove(identityID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, identityID)
}

// Sweep evicts sessions idle longer than idleFor and returns how many were
// removed.
func (r *Registry) Sweep(idleFor time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-idleFor)
	removed := 0
	for id, entry := range r.sessions {
		if entry.lastSeen.Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

// Each visits every live session. Used by the re-validation sweep.
func (r *Registry) Each(fn func(identityID uuid.UUID, s *Session)) {
	r.mu.Lock()
	snapshot := make(map[uuid.UUID]*Session, len(r.sessions))
	for id, entry := range r.sessions {
		snapshot[id] = entry.session
	}
	r.mu.Unlock()
	for id, sess := range snapshot {
		fn(id, sess)
	}
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
