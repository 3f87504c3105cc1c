package mpserver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhythmarena/mpserver/internal/codec"
	"github.com/rhythmarena/mpserver/internal/config"
	"github.com/rhythmarena/mpserver/internal/room"
	"github.com/rhythmarena/mpserver/internal/session"
	"github.com/rhythmarena/mpserver/internal/transport"
)

func newTestServer() *Server {
	cfg := config.Defaults()
	cfg.RoomMaxPlayers = 8
	return New(cfg)
}

func TestServeHandshakesAcceptedConnections(t *testing.T) {
	srv := newTestServer()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	var buf [1]byte
	_, err = client.Read(buf[:])
	require.NoError(t, err)
	assert.Equal(t, codec.ProtocolVersion, buf[0])

	_, err = client.Write([]byte{codec.ProtocolVersion})
	require.NoError(t, err)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not stop after cancel")
	}
}

func TestHandleLostIgnoresSessionAlreadyReplaced(t *testing.T) {
	srv := newTestServer()
	u, _ := srv.users.GetOrCreate(1, "alice", "en")

	oldServer, oldClient := net.Pipe()
	defer oldClient.Close()
	oldConn := transport.New(oldServer)

	newServer, newClient := net.Pipe()
	defer newClient.Close()
	newConn := transport.New(newServer)

	u.AttachSession(oldConn)
	u.AttachSession(newConn) // supersedes oldConn

	deps := session.Deps{Identity: srv.ident, Users: srv.users, Rooms: srv.rooms}
	staleSession := session.New(oldConn, deps, srv.lost)

	srv.handleLost(staleSession)

	assert.True(t, u.HasSession(newConn))
}

func TestHandleLostEvictsImmediatelyWhenRoomIsPlaying(t *testing.T) {
	srv := newTestServer()
	host, _ := srv.users.GetOrCreate(1, "alice", "en")
	guest, _ := srv.users.GetOrCreate(2, "bob", "en")

	hostServer, hostClient := net.Pipe()
	defer hostClient.Close()
	hostConn := transport.New(hostServer)
	host.AttachSession(hostConn)

	guestServer, guestClient := net.Pipe()
	defer guestClient.Close()
	guestConn := transport.New(guestServer)
	guest.AttachSession(guestConn)

	r, err := srv.rooms.Create("ROOM1", host)
	require.NoError(t, err)
	_, err = r.Join(guest, false)
	require.NoError(t, err)
	require.NoError(t, r.SelectChart(host, room.Chart{ID: 1, Name: "X"}))
	require.NoError(t, r.RequestStart(host))
	require.NoError(t, r.Ready(host))
	require.NoError(t, r.Ready(guest))
	require.True(t, r.IsPlaying())

	deps := session.Deps{Identity: srv.ident, Users: srv.users, Rooms: srv.rooms}
	hostSession := session.New(hostConn, deps, srv.lost)

	srv.handleLost(hostSession)

	_, stillInRegistry := srv.users.Get(1)
	assert.False(t, stillInRegistry)
}

func TestHandleLostArmsGraceInsteadOfEvictingWhenNotPlaying(t *testing.T) {
	srv := newTestServer()
	host, _ := srv.users.GetOrCreate(1, "alice", "en")

	hostServer, hostClient := net.Pipe()
	defer hostClient.Close()
	hostConn := transport.New(hostServer)
	host.AttachSession(hostConn)

	_, err := srv.rooms.Create("ROOM1", host)
	require.NoError(t, err)

	deps := session.Deps{Identity: srv.ident, Users: srv.users, Rooms: srv.rooms}
	hostSession := session.New(hostConn, deps, srv.lost)

	srv.handleLost(hostSession)

	assert.False(t, host.HasSession(hostConn))
	_, stillInRegistry := srv.users.Get(1)
	assert.True(t, stillInRegistry)
	_, stillInRoom := srv.rooms.Get("ROOM1")
	assert.True(t, stillInRoom)
}
