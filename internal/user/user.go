// Package user implements the identity-keyed presence record described in
// spec.md §3/§4.4: a User survives transient disconnects via a
// dangling-grace window, and binds a weakly-held session to at most one
// room.
//
// The registry shape (mutex-guarded map keyed by id, per-user outbound
// sender) is adapted from the reference corpus's global presence store
// (a websocket-session registry keyed by user id under a sync.RWMutex).
package user

import (
	"math"
	"sync"
	"time"

	"github.com/rhythmarena/mpserver/internal/codec"
)

// Sender is the minimal interface a session exposes to its User so the
// session reference can be held weakly: the User never blocks on socket
// I/O, and a lost session silently degrades Send to a no-op.
type Sender interface {
	Enqueue(cmd codec.ServerCommand)
}

// User is the identity-keyed presence record. A User exists while it has an
// active session OR is within its dangling grace period.
type User struct {
	ID       int32
	Name     string
	Language string

	mu      sync.Mutex
	session Sender
	epoch   uint64

	roomMu sync.Mutex
	roomID string // "" = not currently in a room

	gameTimeMu sync.Mutex
	gameTime   float64

	isMonitor bool // set at join time by the room package; read-only elsewhere
}

// New returns a fresh User with gameTime initialized to -Inf, per spec.md §3.
func New(id int32, name, language string) *User {
	return &User{
		ID:       id,
		Name:     name,
		Language: language,
		gameTime: math.Inf(-1),
	}
}

// AttachSession installs s as the user's active session, clearing any
// dangling marker by advancing the epoch. The returned epoch is whatever a
// concurrently-armed dangle timer must match to still evict this user; since
// it has just changed, any pending timer will observe a mismatch and no-op.
func (u *User) AttachSession(s Sender) uint64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.epoch++
	u.session = s
	return u.epoch
}

// Epoch returns the user's current dangling epoch.
func (u *User) Epoch() uint64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.epoch
}

// HasSession reports whether s is still this user's current session. Used
// by the server's lost-connection drain to avoid cancelling a reconnect
// that has already replaced the session (spec.md §4.6).
func (u *User) HasSession(s Sender) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.session == s
}

// Send enqueues cmd on the user's current session, or silently drops it if
// the session reference has gone stale (socket died, not yet reclaimed).
func (u *User) Send(cmd codec.ServerCommand) {
	u.mu.Lock()
	s := u.session
	u.mu.Unlock()
	if s != nil {
		s.Enqueue(cmd)
	}
}

// ArmDangleGrace captures the user's current epoch, clears the session
// reference, and schedules onExpire to run after grace — but only if the
// epoch is still unchanged at that point, i.e. no reconnect has won the
// race via AttachSession in the meantime.
func (u *User) ArmDangleGrace(grace time.Duration, onExpire func()) {
	u.mu.Lock()
	epoch := u.epoch
	u.session = nil
	u.mu.Unlock()

	time.AfterFunc(grace, func() {
		u.mu.Lock()
		stillDangling := u.epoch == epoch
		u.mu.Unlock()
		if stillDangling {
			onExpire()
		}
	})
}

// RoomID returns the room the user currently belongs to, or "" if none.
func (u *User) RoomID() string {
	u.roomMu.Lock()
	defer u.roomMu.Unlock()
	return u.roomID
}

// SetRoomID records which room the user has joined.
func (u *User) SetRoomID(id string) {
	u.roomMu.Lock()
	defer u.roomMu.Unlock()
	u.roomID = id
}

// ClearRoom forgets the user's room membership.
func (u *User) ClearRoom() {
	u.roomMu.Lock()
	defer u.roomMu.Unlock()
	u.roomID = ""
}

// GameTime returns the user's last-reported gameplay clock.
func (u *User) GameTime() float64 {
	u.gameTimeMu.Lock()
	defer u.gameTimeMu.Unlock()
	return u.gameTime
}

// SetGameTime updates the user's gameplay clock, as driven by Touches.
func (u *User) SetGameTime(t float64) {
	u.gameTimeMu.Lock()
	defer u.gameTimeMu.Unlock()
	u.gameTime = t
}

// ResetGameTime restores the initial -Inf gameTime, done when a room
// transitions into Playing (spec.md §4.5).
func (u *User) ResetGameTime() {
	u.SetGameTime(math.Inf(-1))
}

// IsMonitor reports whether the user joined its current room as a monitor.
func (u *User) IsMonitor() bool {
	u.roomMu.Lock()
	defer u.roomMu.Unlock()
	return u.isMonitor
}

// SetMonitor records the user's membership kind for the room it is joining.
func (u *User) SetMonitor(monitor bool) {
	u.roomMu.Lock()
	defer u.roomMu.Unlock()
	u.isMonitor = monitor
}

// Info returns the wire-facing UserInfo snapshot for this user.
func (u *User) Info() codec.UserInfo {
	return codec.UserInfo{ID: u.ID, Name: u.Name, Monitor: u.IsMonitor()}
}
