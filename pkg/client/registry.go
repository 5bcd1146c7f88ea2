package client

import (
	"sync"
	"time"

	"github.com/NicolasHaas/netxchat/pkg/model"
)

// LoginOutcome is the first argument of a login completion.
type LoginOutcome uint8

const (
	LoginRejected  LoginOutcome = 0
	LoginAccepted  LoginOutcome = 1
	LoginCancelled LoginOutcome = 2
)

func (o LoginOutcome) String() string {
	switch o {
	case LoginRejected:
		return "rejected"
	case LoginAccepted:
		return "accepted"
	case LoginCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// LoginFunc receives the login result. message is the server's reply text
// (the nickname on success, a reason on rejection) or the cancellation
// reason.
type LoginFunc func(outcome LoginOutcome, message string)

// UsersFunc receives a directory snapshot, or a nil slice and a
// cancellation error. The slice is owned by the callee.
type UsersFunc func(users []model.User, err error)

// PingFunc receives the round-trip time measured from the local send
// instant, or an error. elapsed is negative when err is set.
type PingFunc func(target string, elapsed time.Duration, err error)

type opKind string

const (
	opLogin opKind = "login"
	opFetch opKind = "fetch_users"
	opPing  opKind = "ping"
)

type pingKey struct {
	target string
	issued int64
}

type pendingPing struct {
	key    pingKey
	sentAt time.Time
	done   PingFunc
}

// completion is a handle detached from the registry, ready to be invoked
// exactly once outside any lock.
type completion struct {
	op opKind
	fn func()
}

// registry correlates in-flight requests with their completion handles.
// Every removal happens under mu; invocation never does, so a handle may
// issue new requests on the same session.
type registry struct {
	mu     sync.Mutex
	closed bool
	login  LoginFunc
	fetch  UsersFunc
	pings  map[string][]*pendingPing // FIFO per target
}

func newRegistry() *registry {
	return &registry{pings: make(map[string][]*pendingPing)}
}

func (r *registry) registerLogin(done LoginFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrWrongState
	}
	if r.login != nil {
		return ErrAlreadyPending
	}
	r.login = done
	return nil
}

// takeLogin removes and returns the pending login handle, or nil.
func (r *registry) takeLogin() LoginFunc {
	r.mu.Lock()
	defer r.mu.Unlock()
	done := r.login
	r.login = nil
	return done
}

func (r *registry) registerFetch(done UsersFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrWrongState
	}
	if r.fetch != nil {
		return ErrAlreadyPending
	}
	r.fetch = done
	return nil
}

func (r *registry) takeFetch() UsersFunc {
	r.mu.Lock()
	defer r.mu.Unlock()
	done := r.fetch
	r.fetch = nil
	return done
}

func (r *registry) registerPing(p *pendingPing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrWrongState
	}
	for _, q := range r.pings[p.key.target] {
		if q.key == p.key {
			return ErrAlreadyPending
		}
	}
	r.pings[p.key.target] = append(r.pings[p.key.target], p)
	return nil
}

// takePing removes the ping matching key exactly, falling back to the
// oldest pending ping for the same target.
func (r *registry) takePing(key pingKey) *pendingPing {
	r.mu.Lock()
	defer r.mu.Unlock()
	queue := r.pings[key.target]
	for i, p := range queue {
		if p.key == key {
			r.removePingLocked(key.target, i)
			return p
		}
	}
	if len(queue) == 0 {
		return nil
	}
	p := queue[0]
	r.removePingLocked(key.target, 0)
	return p
}

// takeOldestPing removes the oldest pending ping for target.
func (r *registry) takeOldestPing(target string) *pendingPing {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pings[target]) == 0 {
		return nil
	}
	p := r.pings[target][0]
	r.removePingLocked(target, 0)
	return p
}

// discardPing drops an entry whose request never reached the wire without
// invoking its handle. It reports false when the entry was already taken,
// meaning the handle has been or is being invoked.
func (r *registry) discardPing(key pingKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.pings[key.target] {
		if p.key == key {
			r.removePingLocked(key.target, i)
			return true
		}
	}
	return false
}

func (r *registry) removePingLocked(target string, i int) {
	queue := r.pings[target]
	queue = append(queue[:i:i], queue[i+1:]...)
	if len(queue) == 0 {
		delete(r.pings, target)
		return
	}
	r.pings[target] = queue
}

// pending returns the number of live entries.
func (r *registry) pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	if r.login != nil {
		n++
	}
	if r.fetch != nil {
		n++
	}
	for _, queue := range r.pings {
		n += len(queue)
	}
	return n
}

// cancelAll detaches every live entry, bound to reason, and closes the
// registry to new registrations. Pings are returned oldest first per target.
func (r *registry) cancelAll(reason error) []completion {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true

	var out []completion
	if done := r.login; done != nil {
		msg := reason.Error()
		out = append(out, completion{op: opLogin, fn: func() { done(LoginCancelled, msg) }})
		r.login = nil
	}
	if done := r.fetch; done != nil {
		out = append(out, completion{op: opFetch, fn: func() { done(nil, reason) }})
		r.fetch = nil
	}
	for target, queue := range r.pings {
		for _, p := range queue {
			p := p
			out = append(out, completion{op: opPing, fn: func() { p.done(p.key.target, -1, reason) }})
		}
		delete(r.pings, target)
	}
	return out
}
