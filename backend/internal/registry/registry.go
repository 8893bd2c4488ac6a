package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"collabEngine/backend/internal/cache"
)

type Status string

const (
	StatusActive Status = "active"
	StatusIdle   Status = "idle"
	StatusAway   Status = "away"
)

var ErrMissingIdentity = errors.New("MISSING_IDENTITY")

// UserPresence is the ephemeral per-user activity state. It never affects
// document correctness; timeouts are cosmetic.
type UserPresence struct {
	UserID       string          `json:"userId"`
	Username     string          `json:"username"`
	SessionID    string          `json:"sessionId"`
	Cursor       json.RawMessage `json:"cursor,omitempty"`
	Selection    json.RawMessage `json:"selection,omitempty"`
	Status       Status          `json:"status"`
	LastActivity time.Time       `json:"lastActivity"`
}

type StatusChange struct {
	SessionID string
	UserID    string
	Status    Status
}

type Config struct {
	SweepInterval time.Duration // background sweep cadence
	IdleAfter     time.Duration // active -> idle
	AwayAfter     time.Duration // idle -> away
	GracePeriod   time.Duration // empty session kept alive this long before disposal
	MirrorTTL     time.Duration // logical TTL for the redis mirror entries
}

func (c *Config) setDefaults() {
	if c.SweepInterval <= 0 {
		c.SweepInterval = 30 * time.Second
	}
	if c.IdleAfter <= 0 {
		c.IdleAfter = 5 * time.Minute
	}
	if c.AwayAfter <= 0 {
		c.AwayAfter = 15 * time.Minute
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = 60 * time.Second
	}
	if c.MirrorTTL <= 0 {
		c.MirrorTTL = 10 * time.Minute
	}
}

// Registry owns all presence and session membership state. Nothing else
// mutates these maps; the document path never takes this lock, so the sweep
// cannot block or be blocked by mutation traffic.
type Registry struct {
	cfg Config

	mu          sync.RWMutex
	presence    map[string]*UserPresence
	sessions    map[string]mapset.Set[string]
	conns       map[string]int // live connections per user; several tabs share one presence
	graceTimers map[string]*time.Timer

	// optional cross-instance mirror; failures are logged, never surfaced
	mirror cache.PresenceCache

	onStatusChange func(StatusChange)
	onSessionEmpty func(sessionID string)
}

func New(cfg Config, mirror cache.PresenceCache) *Registry {
	cfg.setDefaults()
	return &Registry{
		cfg:         cfg,
		presence:    make(map[string]*UserPresence),
		sessions:    make(map[string]mapset.Set[string]),
		conns:       make(map[string]int),
		graceTimers: make(map[string]*time.Timer),
		mirror:      mirror,
	}
}

// OnStatusChange installs the sink for idle/away/active transitions. The
// callback runs outside the registry lock.
func (r *Registry) OnStatusChange(fn func(StatusChange)) { r.onStatusChange = fn }

// OnSessionEmpty installs the disposal hook fired after a session has been
// empty for the full grace period.
func (r *Registry) OnSessionEmpty(fn func(sessionID string)) { r.onSessionEmpty = fn }

// Register adds the user to the session and creates (or resets) presence.
// Missing identity fields refuse the connection.
func (r *Registry) Register(ctx context.Context, userID, sessionID, username string) error {
	if userID == "" || sessionID == "" || username == "" {
		return fmt.Errorf("%w: userId=%q sessionId=%q username=%q", ErrMissingIdentity, userID, sessionID, username)
	}

	r.mu.Lock()
	if t := r.graceTimers[sessionID]; t != nil {
		t.Stop()
		delete(r.graceTimers, sessionID)
	}
	members := r.sessions[sessionID]
	if members == nil {
		members = mapset.NewSet[string]()
		r.sessions[sessionID] = members
	}
	members.Add(userID)
	r.conns[userID]++
	r.presence[userID] = &UserPresence{
		UserID:       userID,
		Username:     username,
		SessionID:    sessionID,
		Status:       StatusActive,
		LastActivity: time.Now(),
	}
	r.mu.Unlock()

	if r.mirror != nil {
		if err := r.mirror.AddMember(ctx, sessionID, userID, username, r.cfg.MirrorTTL); err != nil {
			log.Printf("presence mirror add failed (user=%s session=%s): %v", userID, sessionID, err)
		}
	}
	return nil
}

// Unregister drops one connection. Membership and presence only go away with
// the user's last connection, and the return value reports whether that
// happened so the coordinator knows when to announce the departure. The last
// member leaving arms the grace timer; a re-join within the grace period
// disarms it.
func (r *Registry) Unregister(ctx context.Context, userID, sessionID string) bool {
	r.mu.Lock()
	if n := r.conns[userID]; n > 1 {
		r.conns[userID] = n - 1
		r.mu.Unlock()
		return false
	}
	delete(r.conns, userID)
	if members := r.sessions[sessionID]; members != nil {
		members.Remove(userID)
		if members.Cardinality() == 0 {
			sid := sessionID
			r.graceTimers[sid] = time.AfterFunc(r.cfg.GracePeriod, func() { r.disposeIfEmpty(sid) })
		}
	}
	delete(r.presence, userID)
	r.mu.Unlock()

	if r.mirror != nil {
		if err := r.mirror.RemoveMember(ctx, sessionID, userID); err != nil {
			log.Printf("presence mirror remove failed (user=%s session=%s): %v", userID, sessionID, err)
		}
	}
	return true
}

func (r *Registry) disposeIfEmpty(sessionID string) {
	r.mu.Lock()
	members := r.sessions[sessionID]
	empty := members == nil || members.Cardinality() == 0
	if empty {
		delete(r.sessions, sessionID)
	}
	delete(r.graceTimers, sessionID)
	fn := r.onSessionEmpty
	r.mu.Unlock()

	if empty && fn != nil {
		fn(sessionID)
	}
}

// Heartbeat resets the activity clock. An idle/away user flips back to
// active, which emits a status-change to the owning session.
func (r *Registry) Heartbeat(ctx context.Context, userID string) (Status, error) {
	r.mu.Lock()
	p := r.presence[userID]
	if p == nil {
		r.mu.Unlock()
		return "", fmt.Errorf("%w: unknown user %s", ErrMissingIdentity, userID)
	}
	p.LastActivity = time.Now()
	var change *StatusChange
	if p.Status != StatusActive {
		p.Status = StatusActive
		change = &StatusChange{SessionID: p.SessionID, UserID: userID, Status: StatusActive}
	}
	sessionID, username := p.SessionID, p.Username
	fn := r.onStatusChange
	r.mu.Unlock()

	if change != nil && fn != nil {
		fn(*change)
	}
	if r.mirror != nil {
		if err := r.mirror.AddMember(ctx, sessionID, userID, username, r.cfg.MirrorTTL); err != nil {
			log.Printf("presence mirror refresh failed (user=%s): %v", userID, err)
		}
	}
	return StatusActive, nil
}

// UpdateCursor records cursor/selection state for the user's presence entry.
func (r *Registry) UpdateCursor(ctx context.Context, userID string, cursor, selection json.RawMessage) error {
	r.mu.Lock()
	p := r.presence[userID]
	if p == nil {
		r.mu.Unlock()
		return fmt.Errorf("%w: unknown user %s", ErrMissingIdentity, userID)
	}
	if cursor != nil {
		p.Cursor = cursor
	}
	if selection != nil {
		p.Selection = selection
	}
	p.LastActivity = time.Now()
	sessionID := p.SessionID
	r.mu.Unlock()

	if r.mirror != nil && cursor != nil {
		if err := r.mirror.SetCursor(ctx, sessionID, userID, cursor, r.cfg.MirrorTTL); err != nil {
			log.Printf("presence mirror cursor failed (user=%s): %v", userID, err)
		}
	}
	return nil
}

// Members returns the user ids currently in the session.
func (r *Registry) Members(sessionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.sessions[sessionID]
	if members == nil {
		return nil
	}
	return members.ToSlice()
}

// Presence returns presence snapshots for every member of the session.
func (r *Registry) Presence(sessionID string) []UserPresence {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.sessions[sessionID]
	if members == nil {
		return nil
	}
	out := make([]UserPresence, 0, members.Cardinality())
	for userID := range members.Iter() {
		if p := r.presence[userID]; p != nil {
			out = append(out, *p)
		}
	}
	return out
}

// Sweep downgrades stale presence entries: idle after IdleAfter, away after
// AwayAfter. Events fire only on actual transitions.
func (r *Registry) Sweep(now time.Time) {
	var changes []StatusChange
	r.mu.Lock()
	for _, p := range r.presence {
		inactive := now.Sub(p.LastActivity)
		next := p.Status
		switch {
		case inactive >= r.cfg.AwayAfter:
			next = StatusAway
		case inactive >= r.cfg.IdleAfter:
			next = StatusIdle
		}
		if next != p.Status {
			p.Status = next
			changes = append(changes, StatusChange{SessionID: p.SessionID, UserID: p.UserID, Status: next})
		}
	}
	fn := r.onStatusChange
	r.mu.Unlock()

	if fn != nil {
		for _, c := range changes {
			fn(c)
		}
	}
}

// Start runs the background sweep until ctx is cancelled. It only touches
// the presence map, independent of document mutation traffic.
func (r *Registry) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				r.Sweep(now)
			case <-ctx.Done():
				return
			}
		}
	}()
}
