package server

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/NicolasHaas/netxchat/pkg/model"
)

func TestSessionManagerLifecycle(t *testing.T) {
	sm := NewSessionManager()
	a := sm.Create(nil)
	b := sm.Create(nil)

	if a.ID == 0 || b.ID == 0 || a.ID == b.ID {
		t.Fatalf("ids = %d, %d; want distinct non-zero", a.ID, b.ID)
	}
	if sm.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", sm.Count())
	}
	if got := sm.Users(); len(got) != 0 {
		t.Fatalf("Users() before login = %+v, want empty", got)
	}

	if _, err := sm.Login(b.ID, "bob"); err != nil {
		t.Fatalf("Login bob: %v", err)
	}
	if _, err := sm.Login(a.ID, "alice"); err != nil {
		t.Fatalf("Login alice: %v", err)
	}

	want := []model.User{{Nickname: "bob", SessionID: b.ID}, {Nickname: "alice", SessionID: a.ID}}
	if diff := cmp.Diff(want, sm.Users()); diff != "" {
		t.Errorf("Users() mismatch (-want +got):\n%s", diff)
	}
	if got := sm.LoggedIn(a.ID); len(got) != 1 || got[0] != b {
		t.Errorf("LoggedIn(alice) = %+v, want [bob]", got)
	}
	if sm.Nickname(a.ID) != "alice" || sm.GetByNickname("bob") != b {
		t.Error("lookup by id or nickname failed")
	}

	if got := sm.Remove(b.ID); got != b {
		t.Errorf("Remove(bob) = %+v", got)
	}
	if sm.Remove(b.ID) != nil {
		t.Error("second Remove(bob) returned a session")
	}
	if sm.GetByNickname("bob") != nil {
		t.Error("bob still indexed after Remove")
	}

	// The nickname is free again once its owner is gone.
	c := sm.Create(nil)
	if _, err := sm.Login(c.ID, "bob"); err != nil {
		t.Errorf("re-login bob: %v", err)
	}
}

func TestSessionManagerLoginErrors(t *testing.T) {
	sm := NewSessionManager()
	a := sm.Create(nil)
	b := sm.Create(nil)
	if _, err := sm.Login(a.ID, "alice"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	tests := []struct {
		name string
		id   int64
		nick string
		want error
	}{
		{"taken", b.ID, "alice", ErrNicknameTaken},
		{"twice", a.ID, "alice2", ErrAlreadyLoggedIn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := sm.Login(tt.id, tt.nick); !errors.Is(err, tt.want) {
				t.Errorf("Login(%q) err = %v, want %v", tt.nick, err, tt.want)
			}
		})
	}
	if _, err := sm.Login(12345, "ghost"); err == nil {
		t.Error("Login on unknown session succeeded")
	}
}
