package server

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"sort"
	"sync"

	"github.com/NicolasHaas/netxchat/pkg/model"
	"github.com/NicolasHaas/netxchat/pkg/transport"
)

// ErrNicknameTaken rejects a login whose nickname is already in use.
var ErrNicknameTaken = errors.New("nickname already in use")

// ErrAlreadyLoggedIn rejects a second login on the same connection.
var ErrAlreadyLoggedIn = errors.New("already logged in")

// Session is one accepted connection.
type Session struct {
	ID       int64
	Nickname string // empty until login
	Channel  transport.Channel

	seq uint64 // login order, for stable user listings
}

// LoggedIn reports whether the session has completed login.
func (s *Session) LoggedIn() bool { return s.Nickname != "" }

// SessionManager manages active client sessions.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[int64]*Session  // sessionID -> session
	byNick   map[string]*Session // nickname -> logged-in session
	seq      uint64
}

// NewSessionManager creates a new session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[int64]*Session),
		byNick:   make(map[string]*Session),
	}
}

// Create registers a new connection under a random non-zero id.
func (sm *SessionManager) Create(ch transport.Channel) *Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	var id int64
	for {
		b := make([]byte, 8)
		if _, err := rand.Read(b); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		id = int64(binary.BigEndian.Uint64(b)) //nolint:gosec // ids span the full int64 range on purpose
		if id != 0 {
			if _, exists := sm.sessions[id]; !exists {
				break
			}
		}
	}

	sess := &Session{ID: id, Channel: ch}
	sm.sessions[id] = sess
	return sess
}

// Login binds nickname to session id.
func (sm *SessionManager) Login(id int64, nickname string) (model.User, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sess, ok := sm.sessions[id]
	if !ok {
		return model.User{}, errors.New("unknown session")
	}
	if sess.LoggedIn() {
		return model.User{}, ErrAlreadyLoggedIn
	}
	if _, taken := sm.byNick[nickname]; taken {
		return model.User{}, ErrNicknameTaken
	}
	sm.seq++
	sess.Nickname = nickname
	sess.seq = sm.seq
	sm.byNick[nickname] = sess
	return model.User{Nickname: nickname, SessionID: id}, nil
}

// Get retrieves a session by ID.
func (sm *SessionManager) Get(id int64) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[id]
}

// Nickname returns the nickname bound to id, or "" before login.
func (sm *SessionManager) Nickname(id int64) string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if s, ok := sm.sessions[id]; ok {
		return s.Nickname
	}
	return ""
}

// GetByNickname retrieves a logged-in session by nickname.
func (sm *SessionManager) GetByNickname(nickname string) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.byNick[nickname]
}

// Remove removes a session and returns it, or nil if it was unknown.
func (sm *SessionManager) Remove(id int64) *Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sess, ok := sm.sessions[id]
	if !ok {
		return nil
	}
	delete(sm.sessions, id)
	if sess.LoggedIn() && sm.byNick[sess.Nickname] == sess {
		delete(sm.byNick, sess.Nickname)
	}
	return sess
}

// Count returns the number of active connections.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// Users returns the logged-in users in login order.
func (sm *SessionManager) Users() []model.User {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sessions := make([]*Session, 0, len(sm.byNick))
	for _, s := range sm.byNick {
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].seq < sessions[j].seq })

	users := make([]model.User, len(sessions))
	for i, s := range sessions {
		users[i] = model.User{Nickname: s.Nickname, SessionID: s.ID}
	}
	return users
}

// LoggedIn returns a snapshot of all logged-in sessions except exclude.
func (sm *SessionManager) LoggedIn(exclude int64) []*Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	result := make([]*Session, 0, len(sm.byNick))
	for _, s := range sm.byNick {
		if s.ID != exclude {
			result = append(result, s)
		}
	}
	return result
}
