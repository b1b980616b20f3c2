package session

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// OpenFunc opens the session for one owner, typically over a kv namespace
// derived from the owner id.
type OpenFunc func(ctx context.Context, ownerID int64) (*Session, error)

type registryEntry struct {
	sess         *Session
	lastActivity time.Time
}

// Registry keeps one lazily opened session per owner (a Telegram chat).
type Registry struct {
	mu       sync.Mutex
	sessions map[int64]*registryEntry
	open     OpenFunc
}

func NewRegistry(open OpenFunc) *Registry {
	return &Registry{
		sessions: make(map[int64]*registryEntry),
		open:     open,
	}
}

// Namespace is the kv prefix an owner's session is stored under.
func Namespace(ownerID int64) string {
	return "chat:" + strconv.FormatInt(ownerID, 10)
}

// Get returns the owner's session, opening it on first use. Opening happens
// under the registry lock so two updates from one chat share a session.
func (r *Registry) Get(ctx context.Context, ownerID int64) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.sessions[ownerID]; ok {
		e.lastActivity = time.Now()
		return e.sess, nil
	}

	sess, err := r.open(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	r.sessions[ownerID] = &registryEntry{sess: sess, lastActivity: time.Now()}
	return sess, nil
}

// Lookup returns an already opened session without opening one.
func (r *Registry) Lookup(ownerID int64) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[ownerID]
	if !ok {
		return nil, false
	}
	return e.sess, true
}

func (r *Registry) LastActivity(ownerID int64) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[ownerID]
	if !ok {
		return time.Time{}, false
	}
	return e.lastActivity, true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
