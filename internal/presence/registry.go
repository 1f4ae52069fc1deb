// Package presence tracks which users currently have a live
// connection. The registry holds at most one entry per user identity;
// a second session silently replaces the first (last connection wins).
package presence

import (
	"github.com/c-pro/geche"
)

// Registry maps a user identity to its active connection identifier.
// Implementations must keep Register and Unregister atomic with
// respect to Lookup so delivery never observes a half-updated entry.
type Registry interface {
	// Register unconditionally overwrites any existing entry for userID.
	Register(userID int64, connID string)

	// Lookup returns the active connection identifier for userID.
	Lookup(userID int64) (string, bool)

	// Unregister removes the entry for userID only if it still points
	// at connID. A stale disconnect (the user reconnected elsewhere in
	// the meantime) is a no-op.
	Unregister(userID int64, connID string)
}

type cacheRegistry struct {
	entries *geche.Locker[int64, string]
}

// NewRegistry returns an in-process Registry backed by a locked map
// cache. Suitable for a single relay process; swap the interface for a
// shared store if the relay is ever scaled out.
func NewRegistry() Registry {
	return &cacheRegistry{
		entries: geche.NewLocker[int64, string](geche.NewMapCache[int64, string]()),
	}
}

func (r *cacheRegistry) Register(userID int64, connID string) {
	tx := r.entries.Lock()
	defer tx.Unlock()
	tx.Set(userID, connID)
}

func (r *cacheRegistry) Lookup(userID int64) (string, bool) {
	tx := r.entries.Lock()
	defer tx.Unlock()
	connID, err := tx.Get(userID)
	return connID, err == nil
}

func (r *cacheRegistry) Unregister(userID int64, connID string) {
	tx := r.entries.Lock()
	defer tx.Unlock()
	current, err := tx.Get(userID)
	if err != nil || current != connID {
		return
	}
	_ = tx.Del(userID)
}
