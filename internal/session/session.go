// Package session owns the per-connection protocol state machine described
// in spec.md §4.3: the auth gate, the heartbeat watchdog, and the mapping
// from each ClientCommand to a room/user operation and its response.
//
// The dispatch-by-type-switch structure and the request/response logging
// around it are adapted from the reference corpus's processControl method
// (client.go), which performs the same job for its newline-delimited
// control protocol; here it drives the binary length-prefixed commands
// internal/codec defines instead.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rhythmarena/mpserver/internal/codec"
	"github.com/rhythmarena/mpserver/internal/identity"
	"github.com/rhythmarena/mpserver/internal/room"
	"github.com/rhythmarena/mpserver/internal/transport"
	"github.com/rhythmarena/mpserver/internal/user"
)

const (
	heartbeatPoll    = time.Second
	heartbeatTimeout = 10 * time.Second
	authTokenLength  = 32
)

var errNotInRoom = errors.New("you are not in a room")

// Deps collects the shared, process-wide dependencies a Session needs to
// service commands. All fields are required.
type Deps struct {
	Identity *identity.Client
	Users    *user.Registry
	Rooms    *room.Registry
}

// Session is the protocol state machine bound to one Connection. A client
// that never sends Authenticate, or never sends a 32-character token, is
// never attached to a User and every other command it sends is dropped
// silently. An Authenticate sent after a successful one is handled again and
// rebinds the Session to the user it resolves to.
type Session struct {
	ID   string
	conn *transport.Connection
	deps Deps
	lost chan<- *Session

	mu   sync.Mutex
	user *user.User
}

// New returns a Session wrapping conn. Once its Serve finishes, the session is
// sent on lost so the server's drain task can decide whether to dangle the
// attached user (spec.md §4.6).
func New(conn *transport.Connection, deps Deps, lost chan<- *Session) *Session {
	return &Session{ID: uuid.NewString(), conn: conn, deps: deps, lost: lost}
}

// Connection returns the underlying transport connection, used by the
// server's drain task to confirm a lost session is still the user's current
// one before evicting.
func (s *Session) Connection() *transport.Connection { return s.conn }

// User returns the user this session has authenticated as, or nil.
func (s *Session) User() *user.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

func (s *Session) setUser(u *user.User) {
	s.mu.Lock()
	s.user = u
	s.mu.Unlock()
}

// Serve runs the connection to completion: the handshake, the heartbeat
// watchdog, and the receive loop dispatching decoded commands. It blocks
// until the connection is lost, then reports itself on the lost channel so
// the caller's drain task can run dangle handling.
func (s *Session) Serve(ctx context.Context) {
	heartbeatDone := make(chan struct{})
	go s.heartbeat(heartbeatDone)

	err := s.conn.Run(func(cmd codec.ClientCommand) { s.dispatch(ctx, cmd) })
	close(heartbeatDone)

	slog.Info("session ended", "session_id", s.ID, "remote", s.conn.RemoteAddr(), "err", err)

	select {
	case s.lost <- s:
	case <-ctx.Done():
	}
}

// heartbeat closes the connection once the peer has gone quiet for longer
// than heartbeatTimeout, per spec.md §5. It polls rather than using a single
// timer so it can observe LastReceived advancing on every frame, including
// a Ping the transport layer already answered on its own.
func (s *Session) heartbeat(done <-chan struct{}) {
	ticker := time.NewTicker(heartbeatPoll)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if time.Since(s.conn.LastReceived()) > heartbeatTimeout {
				slog.Debug("session heartbeat timeout", "session_id", s.ID, "remote", s.conn.RemoteAddr())
				s.conn.Close()
				return
			}
		}
	}
}

func (s *Session) respond(cmd codec.ServerCommand) { s.conn.Enqueue(cmd) }

// dispatch routes one decoded ClientCommand to its handler. Before
// authentication, only Authenticate is accepted; everything else is logged
// and dropped, per spec.md §4.3.
func (s *Session) dispatch(ctx context.Context, cmd codec.ClientCommand) {
	u := s.User()
	if u == nil {
		auth, ok := cmd.(codec.AuthenticateCmd)
		if !ok {
			slog.Debug("session: command before authentication dropped", "session_id", s.ID)
			return
		}
		s.handleAuthenticate(ctx, auth)
		return
	}

	switch c := cmd.(type) {
	case codec.AuthenticateCmd:
		s.handleAuthenticate(ctx, c)
	case codec.ChatCmd:
		s.respond(codec.ChatResponseCmd{Result: s.roomOp(u, func(r *room.Room) error {
			if len(c.Message) > 200 {
				return errChatTooLong
			}
			return r.Chat(u, c.Message)
		})})
	case codec.TouchesCmd:
		s.withRoom(u, func(r *room.Room) { r.Touches(u, c.Frames) })
	case codec.JudgesCmd:
		s.withRoom(u, func(r *room.Room) { r.Judges(u, c.Events) })
	case codec.CreateRoomCmd:
		s.handleCreateRoom(u, c)
	case codec.JoinRoomCmd:
		s.handleJoinRoom(u, c)
	case codec.LeaveRoomCmd:
		s.handleLeaveRoom(u)
	case codec.LockRoomCmd:
		s.respond(codec.LockRoomResponseCmd{Result: s.roomOp(u, func(r *room.Room) error {
			return r.Lock(u, c.Lock)
		})})
	case codec.CycleRoomCmd:
		s.respond(codec.CycleRoomResponseCmd{Result: s.roomOp(u, func(r *room.Room) error {
			return r.Cycle(u, c.Cycle)
		})})
	case codec.SelectChartCmd:
		s.handleSelectChart(ctx, u, c)
	case codec.RequestStartCmd:
		s.respond(codec.RequestStartResponseCmd{Result: s.roomOp(u, func(r *room.Room) error {
			return r.RequestStart(u)
		})})
	case codec.ReadyCmd:
		s.respond(codec.ReadyResponseCmd{Result: s.roomOp(u, func(r *room.Room) error {
			return r.Ready(u)
		})})
	case codec.CancelReadyCmd:
		s.respond(codec.CancelReadyResponseCmd{Result: s.roomOp(u, func(r *room.Room) error {
			return r.CancelReady(u)
		})})
	case codec.PlayedCmd:
		s.handlePlayed(ctx, u, c)
	case codec.AbortCmd:
		s.respond(codec.AbortResponseCmd{Result: s.roomOp(u, func(r *room.Room) error {
			return r.Abort(u)
		})})
	}
}

var errChatTooLong = errors.New("chat message is too long")

// roomOp looks up u's current room and runs fn against it under the room's
// own lock, translating the result into a wire Result. Used for every
// command that expects a success/error acknowledgement.
func (s *Session) roomOp(u *user.User, fn func(*room.Room) error) codec.Result {
	r, ok := s.deps.Rooms.Get(u.RoomID())
	if !ok {
		return codec.Fail(errNotInRoom.Error())
	}
	if err := fn(r); err != nil {
		return codec.Fail(err.Error())
	}
	return codec.Ok()
}

// withRoom runs fn against u's current room if it has one, for the
// fire-and-forget commands that never produce a response (spec.md §9): a
// user with no room, or a room that no longer exists, just drops the frame.
func (s *Session) withRoom(u *user.User, fn func(*room.Room)) {
	if r, ok := s.deps.Rooms.Get(u.RoomID()); ok {
		fn(r)
	}
}

func (s *Session) handleAuthenticate(ctx context.Context, c codec.AuthenticateCmd) {
	if len(c.Token) != authTokenLength {
		s.respond(codec.AuthenticateResponseCmd{Success: false, Error: "token must be exactly 32 characters"})
		return
	}

	profile, err := s.deps.Identity.Me(ctx, c.Token)
	if err != nil {
		slog.Debug("session: authenticate failed", "session_id", s.ID, "err", err)
		s.respond(codec.AuthenticateResponseCmd{Success: false, Error: err.Error()})
		return
	}

	u, _ := s.deps.Users.GetOrCreate(profile.ID, profile.Name, profile.Language)
	u.AttachSession(s.conn)
	s.setUser(u)

	var snap *codec.ClientRoomState
	if roomID := u.RoomID(); roomID != "" {
		if r, ok := s.deps.Rooms.Get(roomID); ok {
			state := r.Snapshot(u.ID)
			snap = &state
		}
	}

	s.respond(codec.AuthenticateResponseCmd{Success: true, User: u.Info(), Room: snap})
	slog.Info("session authenticated", "session_id", s.ID, "user_id", u.ID, "name", u.Name)
}

func (s *Session) handleCreateRoom(u *user.User, c codec.CreateRoomCmd) {
	if u.RoomID() != "" {
		s.respond(codec.CreateRoomResponseCmd{Result: codec.Fail(room.ErrAlreadyInRoom.Error())})
		return
	}
	if _, err := s.deps.Rooms.Create(string(c.ID), u); err != nil {
		s.respond(codec.CreateRoomResponseCmd{Result: codec.Fail(err.Error())})
		return
	}
	s.respond(codec.CreateRoomResponseCmd{Result: codec.Ok()})
}

func (s *Session) handleJoinRoom(u *user.User, c codec.JoinRoomCmd) {
	if u.RoomID() != "" {
		s.respond(codec.JoinRoomResponseCmd{Success: false, Error: room.ErrAlreadyInRoom.Error()})
		return
	}
	r, ok := s.deps.Rooms.Get(string(c.ID))
	if !ok {
		s.respond(codec.JoinRoomResponseCmd{Success: false, Error: "the room does not exist"})
		return
	}
	res, err := r.Join(u, c.Monitor)
	if err != nil {
		s.respond(codec.JoinRoomResponseCmd{Success: false, Error: err.Error()})
		return
	}
	s.respond(codec.JoinRoomResponseCmd{Success: true, State: res.State, Users: res.Users, Live: res.Live})
}

func (s *Session) handleLeaveRoom(u *user.User) {
	r, ok := s.deps.Rooms.Get(u.RoomID())
	if !ok {
		s.respond(codec.LeaveRoomResponseCmd{Result: codec.Fail(errNotInRoom.Error())})
		return
	}
	if destroyed := r.Leave(u); destroyed {
		s.deps.Rooms.Drop(r.ID())
	}
	s.respond(codec.LeaveRoomResponseCmd{Result: codec.Ok()})
}

// handleSelectChart fetches the chart's metadata from the identity service
// before touching the room, per spec.md §5's concurrency rule that upstream
// HTTP calls must complete before a room is locked for mutation.
func (s *Session) handleSelectChart(ctx context.Context, u *user.User, c codec.SelectChartCmd) {
	r, ok := s.deps.Rooms.Get(u.RoomID())
	if !ok {
		s.respond(codec.SelectChartResponseCmd{Result: codec.Fail(errNotInRoom.Error())})
		return
	}
	chart, err := s.deps.Identity.Chart(ctx, c.ChartID)
	if err != nil {
		s.respond(codec.SelectChartResponseCmd{Result: codec.Fail(err.Error())})
		return
	}
	if err := r.SelectChart(u, room.Chart{ID: chart.ID, Name: chart.Name}); err != nil {
		s.respond(codec.SelectChartResponseCmd{Result: codec.Fail(err.Error())})
		return
	}
	s.respond(codec.SelectChartResponseCmd{Result: codec.Ok()})
}

// handlePlayed fetches and verifies the submitted record belongs to this
// user before handing it to the room, per spec.md §7's upstream-HTTP error
// partition and §9's resolution of the record-ownership question.
func (s *Session) handlePlayed(ctx context.Context, u *user.User, c codec.PlayedCmd) {
	r, ok := s.deps.Rooms.Get(u.RoomID())
	if !ok {
		s.respond(codec.PlayedResponseCmd{Result: codec.Fail(errNotInRoom.Error())})
		return
	}
	rec, err := s.deps.Identity.Record(ctx, c.RecordID)
	if err != nil {
		s.respond(codec.PlayedResponseCmd{Result: codec.Fail(err.Error())})
		return
	}
	if rec.Player != u.ID {
		s.respond(codec.PlayedResponseCmd{Result: codec.Fail(room.ErrRecordWrongPlayer.Error())})
		return
	}
	if err := r.Played(u, rec); err != nil {
		s.respond(codec.PlayedResponseCmd{Result: codec.Fail(err.Error())})
		return
	}
	s.respond(codec.PlayedResponseCmd{Result: codec.Ok()})
}
