package registry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestRegistry() *Registry {
	return New(Config{
		IdleAfter:   5 * time.Minute,
		AwayAfter:   15 * time.Minute,
		GracePeriod: 10 * time.Millisecond,
	}, nil)
}

func TestRegister_MissingIdentity(t *testing.T) {
	r := newTestRegistry()
	cases := [][3]string{
		{"", "s1", "alice"},
		{"u1", "", "alice"},
		{"u1", "s1", ""},
	}
	for _, c := range cases {
		if err := r.Register(context.Background(), c[0], c[1], c[2]); !errors.Is(err, ErrMissingIdentity) {
			t.Fatalf("Register(%q, %q, %q) error = %v, want ErrMissingIdentity", c[0], c[1], c[2], err)
		}
	}
}

func TestRegister_AddsMembershipAndPresence(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	if err := r.Register(ctx, "u1", "s1", "alice"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register(ctx, "u2", "s1", "bob"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	members := r.Members("s1")
	if len(members) != 2 {
		t.Fatalf("len(Members) = %d, want 2", len(members))
	}
	presence := r.Presence("s1")
	if len(presence) != 2 {
		t.Fatalf("len(Presence) = %d, want 2", len(presence))
	}
	for _, p := range presence {
		if p.Status != StatusActive {
			t.Fatalf("status = %q, want %q", p.Status, StatusActive)
		}
	}
}

func TestSweep_IdleAndAwayTransitions(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	_ = r.Register(ctx, "u1", "s1", "alice")

	var changes []StatusChange
	r.OnStatusChange(func(c StatusChange) { changes = append(changes, c) })

	now := time.Now()

	// under 5 minutes: still active
	r.Sweep(now.Add(4 * time.Minute))
	if len(changes) != 0 {
		t.Fatalf("changes = %v, want none under the idle threshold", changes)
	}

	// 5-15 minutes: idle
	r.Sweep(now.Add(6 * time.Minute))
	if len(changes) != 1 || changes[0].Status != StatusIdle {
		t.Fatalf("changes = %v, want one idle transition", changes)
	}

	// repeat sweep at the same inactivity: no duplicate event
	r.Sweep(now.Add(7 * time.Minute))
	if len(changes) != 1 {
		t.Fatalf("changes = %v, want no event without a transition", changes)
	}

	// beyond 15 minutes: away
	r.Sweep(now.Add(16 * time.Minute))
	if len(changes) != 2 || changes[1].Status != StatusAway {
		t.Fatalf("changes = %v, want an away transition", changes)
	}
}

func TestHeartbeat_FlipsBackToActive(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	_ = r.Register(ctx, "u1", "s1", "alice")

	var changes []StatusChange
	r.OnStatusChange(func(c StatusChange) { changes = append(changes, c) })

	r.Sweep(time.Now().Add(6 * time.Minute))
	if len(changes) != 1 || changes[0].Status != StatusIdle {
		t.Fatalf("changes = %v, want idle first", changes)
	}

	status, err := r.Heartbeat(ctx, "u1")
	if err != nil {
		t.Fatalf("Heartbeat() error = %v", err)
	}
	if status != StatusActive {
		t.Fatalf("Heartbeat() status = %q, want %q", status, StatusActive)
	}
	if len(changes) != 2 || changes[1].Status != StatusActive {
		t.Fatalf("changes = %v, want an active transition", changes)
	}

	// active heartbeat emits nothing new
	if _, err := r.Heartbeat(ctx, "u1"); err != nil {
		t.Fatalf("Heartbeat() error = %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("changes = %v, want no event for an already-active user", changes)
	}
}

func TestUnregister_DisposesAfterGracePeriod(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	disposed := make(chan string, 1)
	r.OnSessionEmpty(func(sessionID string) { disposed <- sessionID })

	_ = r.Register(ctx, "u1", "s1", "alice")
	r.Unregister(ctx, "u1", "s1")

	select {
	case sid := <-disposed:
		if sid != "s1" {
			t.Fatalf("disposed session = %q, want %q", sid, "s1")
		}
	case <-time.After(time.Second):
		t.Fatal("session was not disposed after the grace period")
	}
}

func TestUnregister_SecondConnectionKeepsPresence(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	disposed := make(chan string, 1)
	r.OnSessionEmpty(func(sessionID string) { disposed <- sessionID })

	// two tabs, one user
	_ = r.Register(ctx, "u1", "s1", "alice")
	_ = r.Register(ctx, "u1", "s1", "alice")

	if left := r.Unregister(ctx, "u1", "s1"); left {
		t.Fatal("Unregister() = true while another connection is live")
	}
	if got := r.Members("s1"); len(got) != 1 || got[0] != "u1" {
		t.Fatalf("Members() = %v, want u1 still present", got)
	}
	if p := r.Presence("s1"); len(p) != 1 {
		t.Fatalf("Presence() = %v, want one entry for the remaining tab", p)
	}
	select {
	case sid := <-disposed:
		t.Fatalf("session %s disposed while a connection remained", sid)
	case <-time.After(50 * time.Millisecond):
	}

	if left := r.Unregister(ctx, "u1", "s1"); !left {
		t.Fatal("Unregister() = false for the last connection")
	}
	select {
	case <-disposed:
	case <-time.After(time.Second):
		t.Fatal("session was not disposed after the last connection left")
	}
}

func TestUnregister_RejoinWithinGraceCancelsDisposal(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	disposed := make(chan string, 1)
	r.OnSessionEmpty(func(sessionID string) { disposed <- sessionID })

	_ = r.Register(ctx, "u1", "s1", "alice")
	r.Unregister(ctx, "u1", "s1")
	_ = r.Register(ctx, "u2", "s1", "bob")

	select {
	case <-disposed:
		t.Fatal("session disposed despite a re-join within the grace period")
	case <-time.After(50 * time.Millisecond):
	}
}
