// Package mpserver wires the TCP listener, the process-wide user/room
// registries, and the identity client together, and runs the single
// lost-connection drain task spec.md §4.6 requires.
//
// The accept loop (bind, spawn a goroutine per accepted connection, stop on
// listener-closed, wait for in-flight handlers to return) is adapted from
// the pack's raw TCP game server accept loop (la2go's gameserver.Server.Run
// /Serve/acceptLoop), generalized from its packet/Blowfish handshake to our
// version-byte handshake and session dispatch.
package mpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/rhythmarena/mpserver/internal/config"
	"github.com/rhythmarena/mpserver/internal/identity"
	"github.com/rhythmarena/mpserver/internal/room"
	"github.com/rhythmarena/mpserver/internal/session"
	"github.com/rhythmarena/mpserver/internal/transport"
	"github.com/rhythmarena/mpserver/internal/user"
)

// dangleGrace is how long a disconnected user's room membership survives
// before it is evicted, per spec.md §5.
const dangleGrace = 10 * time.Second

// Server owns the listener and the shared state every Session dispatches
// against.
type Server struct {
	cfg   config.Config
	users *user.Registry
	rooms *room.Registry
	ident *identity.Client

	mu       sync.Mutex
	listener net.Listener

	lost chan *session.Session
}

// New builds a Server from cfg. It does not bind a listener until Run.
func New(cfg config.Config) *Server {
	return &Server{
		cfg:   cfg,
		users: user.NewRegistry(),
		rooms: room.NewRegistry(room.Config{
			MaxPlayers:     cfg.RoomMaxPlayers,
			MonitorAllowed: cfg.MonitorAllowed,
			DefaultVoting:  cfg.CycleVoting,
		}),
		ident: identity.NewClient(cfg.IdentityBaseURL, cfg.IdentityTimeout()),
		lost:  make(chan *session.Session, 64),
	}
}

// Addr returns the bound listener address, or nil before Run has started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Users returns the process-wide user registry, for metrics logging.
func (s *Server) Users() *user.Registry { return s.users }

// Rooms returns the process-wide room registry, for metrics logging.
func (s *Server) Rooms() *room.Registry { return s.rooms }

// Run binds the configured address and serves until ctx is cancelled. A
// bind address of "::" resolves through Go's dual-stack "tcp" network,
// accepting both IPv4 and IPv6 clients on one socket, per spec.md §4.6.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.BindIP, fmt.Sprintf("%d", s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("mpserver: listen on %s: %w", addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	return s.Serve(ctx, ln)
}

// Serve accepts connections from ln until ctx is cancelled or the listener
// is closed. Exposed separately from Run so tests can serve a net.Listener
// bound to an ephemeral port.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.drainLost(ctx)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	slog.Info("mpserver listening", "addr", ln.Addr().String())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				break
			}
			slog.Error("mpserver: accept failed", "err", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
	wg.Wait()
	return nil
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	c := transport.New(conn)
	// Cancelling ctx closes the socket so Serve's wait for in-flight
	// handlers does not outlive server shutdown.
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()
	deps := session.Deps{Identity: s.ident, Users: s.users, Rooms: s.rooms}
	sess := session.New(c, deps, s.lost)
	sess.Serve(ctx)
}

// drainLost is the single task spec.md §4.6 requires: it serializes every
// lost-connection notification so dangle decisions never race against a
// concurrent reconnect.
func (s *Server) drainLost(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sess := <-s.lost:
			s.handleLost(sess)
		}
	}
}

func (s *Server) handleLost(sess *session.Session) {
	u := sess.User()
	if u == nil {
		return
	}
	if !u.HasSession(sess.Connection()) {
		// A reconnect already attached a new session to this user; this
		// notification describes a connection that is no longer current.
		return
	}

	if r, ok := s.rooms.Get(u.RoomID()); ok && r.IsPlaying() {
		slog.Info("evicting user lost mid-game", "user_id", u.ID, "room_id", r.ID())
		s.evict(u, r)
		return
	}

	u.ArmDangleGrace(dangleGrace, func() {
		slog.Info("dangle grace expired", "user_id", u.ID)
		if r, ok := s.rooms.Get(u.RoomID()); ok {
			s.evict(u, r)
			return
		}
		s.users.Remove(u.ID)
	})
}

func (s *Server) evict(u *user.User, r *room.Room) {
	if destroyed := r.Leave(u); destroyed {
		s.rooms.Drop(r.ID())
	}
	s.users.Remove(u.ID)
}
