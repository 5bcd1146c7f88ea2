package client

import (
	"sync"

	"github.com/NicolasHaas/netxchat/pkg/model"
)

// Directory caches the users the server has reported for this session.
// The backing slice is never mutated in place: every update builds a new
// slice and swaps it in, so snapshots handed out stay valid.
type Directory struct {
	mu    sync.RWMutex
	users []model.User
}

// Replace swaps in a copy of users as the whole directory.
func (d *Directory) Replace(users []model.User) {
	next := model.CloneUsers(users)
	d.mu.Lock()
	d.users = next
	d.mu.Unlock()
}

// Add records a joined user, replacing any entry with the same session id.
func (d *Directory) Add(u model.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	next := make([]model.User, 0, len(d.users)+1)
	for _, old := range d.users {
		if old.SessionID != u.SessionID {
			next = append(next, old)
		}
	}
	d.users = append(next, u)
}

// Remove drops the user with sessionID. Unknown ids are ignored.
func (d *Directory) Remove(sessionID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	next := make([]model.User, 0, len(d.users))
	for _, old := range d.users {
		if old.SessionID != sessionID {
			next = append(next, old)
		}
	}
	d.users = next
}

// Snapshot returns a fresh copy of the cached users.
func (d *Directory) Snapshot() []model.User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return model.CloneUsers(d.users)
}

// Len returns the number of cached users.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.users)
}

// Reset releases the cache.
func (d *Directory) Reset() {
	d.mu.Lock()
	d.users = nil
	d.mu.Unlock()
}
