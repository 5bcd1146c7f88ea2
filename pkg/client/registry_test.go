package client

import (
	"errors"
	"testing"
	"time"

	"github.com/NicolasHaas/netxchat/pkg/model"
)

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := newRegistry()

	if err := r.registerLogin(func(LoginOutcome, string) {}); err != nil {
		t.Fatalf("registerLogin: unexpected error: %v", err)
	}
	if err := r.registerLogin(func(LoginOutcome, string) {}); !errors.Is(err, ErrAlreadyPending) {
		t.Errorf("second registerLogin = %v, want ErrAlreadyPending", err)
	}

	if err := r.registerFetch(func([]model.User, error) {}); err != nil {
		t.Fatalf("registerFetch: unexpected error: %v", err)
	}
	if err := r.registerFetch(func([]model.User, error) {}); !errors.Is(err, ErrAlreadyPending) {
		t.Errorf("second registerFetch = %v, want ErrAlreadyPending", err)
	}

	ping := func(string, time.Duration, error) {}
	if err := r.registerPing(&pendingPing{key: pingKey{"bob", 1}, done: ping}); err != nil {
		t.Fatalf("registerPing: unexpected error: %v", err)
	}
	if err := r.registerPing(&pendingPing{key: pingKey{"bob", 1}, done: ping}); !errors.Is(err, ErrAlreadyPending) {
		t.Errorf("duplicate registerPing = %v, want ErrAlreadyPending", err)
	}
	if err := r.registerPing(&pendingPing{key: pingKey{"bob", 2}, done: ping}); err != nil {
		t.Errorf("registerPing bob/2: unexpected error: %v", err)
	}
	if err := r.registerPing(&pendingPing{key: pingKey{"carol", 1}, done: ping}); err != nil {
		t.Errorf("registerPing carol/1: unexpected error: %v", err)
	}

	if got := r.pending(); got != 5 {
		t.Errorf("pending() = %d, want 5", got)
	}
}

func TestRegistryPingMatching(t *testing.T) {
	r := newRegistry()
	for _, key := range []pingKey{{"bob", 10}, {"bob", 20}, {"bob", 30}, {"carol", 10}} {
		if err := r.registerPing(&pendingPing{key: key}); err != nil {
			t.Fatalf("registerPing(%v): %v", key, err)
		}
	}

	// Exact key wins over queue order.
	if p := r.takePing(pingKey{"bob", 20}); p == nil || p.key.issued != 20 {
		t.Fatalf("takePing(bob,20) = %+v", p)
	}
	// Unknown issue time falls back to the oldest for that target.
	if p := r.takePing(pingKey{"bob", 99}); p == nil || p.key.issued != 10 {
		t.Fatalf("takePing(bob,99) = %+v, want bob/10", p)
	}
	if p := r.takeOldestPing("bob"); p == nil || p.key.issued != 30 {
		t.Fatalf("takeOldestPing(bob) = %+v, want bob/30", p)
	}
	if p := r.takeOldestPing("bob"); p != nil {
		t.Fatalf("takeOldestPing(bob) on empty queue = %+v", p)
	}
	// Other targets are untouched.
	if p := r.takePing(pingKey{"carol", 10}); p == nil {
		t.Fatal("carol ping lost")
	}
	if got := r.pending(); got != 0 {
		t.Errorf("pending() = %d, want 0", got)
	}
}

func TestRegistryDiscardDoesNotInvoke(t *testing.T) {
	r := newRegistry()
	called := false
	key := pingKey{"bob", 1}
	if err := r.registerPing(&pendingPing{key: key, done: func(string, time.Duration, error) { called = true }}); err != nil {
		t.Fatalf("registerPing: %v", err)
	}
	if !r.discardPing(key) {
		t.Fatal("discardPing() = false for a live entry")
	}
	if r.discardPing(key) {
		t.Error("second discardPing() = true")
	}
	for _, c := range r.cancelAll(ErrCancelled) {
		c.fn()
	}
	if called {
		t.Error("discarded ping handle was invoked")
	}
}

func TestRegistryDiscardAfterCancel(t *testing.T) {
	r := newRegistry()
	key := pingKey{"bob", 1}
	if err := r.registerPing(&pendingPing{key: key, done: func(string, time.Duration, error) {}}); err != nil {
		t.Fatalf("registerPing: %v", err)
	}
	if got := len(r.cancelAll(ErrCancelled)); got != 1 {
		t.Fatalf("cancelAll returned %d completions, want 1", got)
	}
	if r.discardPing(key) {
		t.Error("discardPing() = true after cancelAll took the entry")
	}
}

func TestRegistryCancelAll(t *testing.T) {
	r := newRegistry()

	loginOutcome := LoginOutcome(99)
	usersGot := []model.User{{Nickname: "sentinel"}}
	var usersErr error
	var pingCalls []string
	_ = r.registerLogin(func(o LoginOutcome, _ string) { loginOutcome = o })
	_ = r.registerFetch(func(u []model.User, err error) { usersGot, usersErr = u, err })
	for _, key := range []pingKey{{"bob", 1}, {"bob", 2}} {
		_ = r.registerPing(&pendingPing{key: key, done: func(target string, elapsed time.Duration, err error) {
			if elapsed != -1 || !errors.Is(err, ErrCancelled) {
				t.Errorf("ping cancel = (%v, %v)", elapsed, err)
			}
			pingCalls = append(pingCalls, target)
		}})
	}

	comps := r.cancelAll(ErrCancelled)
	if len(comps) != 4 {
		t.Fatalf("cancelAll returned %d completions, want 4", len(comps))
	}
	for _, c := range comps {
		c.fn()
	}

	if loginOutcome != LoginCancelled {
		t.Errorf("login outcome = %v, want cancelled", loginOutcome)
	}
	if usersGot != nil || !errors.Is(usersErr, ErrCancelled) {
		t.Errorf("fetch cancel = (%v, %v), want (nil, ErrCancelled)", usersGot, usersErr)
	}
	if len(pingCalls) != 2 {
		t.Errorf("ping handles fired %d times, want 2", len(pingCalls))
	}

	if again := r.cancelAll(ErrCancelled); len(again) != 0 {
		t.Errorf("second cancelAll returned %d completions", len(again))
	}
	if err := r.registerLogin(func(LoginOutcome, string) {}); !errors.Is(err, ErrWrongState) {
		t.Errorf("registerLogin after cancelAll = %v, want ErrWrongState", err)
	}
}
