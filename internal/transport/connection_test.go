package transport

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhythmarena/mpserver/internal/codec"
)

// pipePair returns two net.Conns connected by an in-memory pipe, standing in
// for a real TCP_NODELAY socket in tests.
func pipePair() (net.Conn, net.Conn) {
	return net.Pipe()
}

func TestHandshakeExchangesVersionByte(t *testing.T) {
	server, client := pipePair()
	defer client.Close()

	c := New(server)
	done := make(chan byte, 1)
	go func() {
		v, err := c.Handshake()
		require.NoError(t, err)
		done <- v
	}()

	var clientBuf [1]byte
	_, err := client.Read(clientBuf[:])
	require.NoError(t, err)
	assert.Equal(t, codec.ProtocolVersion, clientBuf[0])

	_, err = client.Write([]byte{7})
	require.NoError(t, err)

	select {
	case v := <-done:
		assert.Equal(t, byte(7), v)
	case <-time.After(time.Second):
		t.Fatal("handshake did not complete")
	}
}

func TestRunAnswersPingWithoutDispatch(t *testing.T) {
	server, client := pipePair()
	defer client.Close()

	c := New(server)
	var dispatched []codec.ClientCommand
	go c.Run(func(cmd codec.ClientCommand) { dispatched = append(dispatched, cmd) })

	drainHandshakeByte(t, client)
	sendClientVersion(t, client)

	writeFrame(t, client, codec.EncodeClientCommand(codec.PingCmd{}))

	reply := readFrame(t, client)
	cmd, err := codec.DecodeServerCommand(reply)
	require.NoError(t, err)
	assert.Equal(t, codec.PongCmd{}, cmd)
	assert.Empty(t, dispatched)
}

func TestRunDispatchesNonPingCommands(t *testing.T) {
	server, client := pipePair()
	defer client.Close()

	c := New(server)
	received := make(chan codec.ClientCommand, 1)
	go c.Run(func(cmd codec.ClientCommand) { received <- cmd })

	drainHandshakeByte(t, client)
	sendClientVersion(t, client)

	writeFrame(t, client, codec.EncodeClientCommand(codec.ChatCmd{Message: "hi"}))

	select {
	case cmd := <-received:
		assert.Equal(t, codec.ChatCmd{Message: "hi"}, cmd)
	case <-time.After(time.Second):
		t.Fatal("dispatch never received the command")
	}
}

func TestRunTerminatesOnOversizedLength(t *testing.T) {
	server, client := pipePair()
	defer client.Close()

	c := New(server)
	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(func(codec.ClientCommand) {}) }()

	drainHandshakeByte(t, client)
	sendClientVersion(t, client)

	oversized := codec.PutUvarint(nil, 3*1024*1024)
	_, err := client.Write(oversized)
	require.NoError(t, err)

	select {
	case err := <-runErr:
		assert.ErrorIs(t, err, codec.ErrPayloadTooLarge)
	case <-time.After(time.Second):
		t.Fatal("Run did not terminate on oversized length")
	}
}

func TestEnqueueDropsSilentlyAfterClose(t *testing.T) {
	server, client := pipePair()
	defer client.Close()

	c := New(server)
	require.NoError(t, c.Close())
	assert.NotPanics(t, func() { c.Enqueue(codec.PongCmd{}) })
}

func drainHandshakeByte(t *testing.T, conn net.Conn) {
	t.Helper()
	var buf [1]byte
	_, err := conn.Read(buf[:])
	require.NoError(t, err)
}

func sendClientVersion(t *testing.T, conn net.Conn) {
	t.Helper()
	_, err := conn.Write([]byte{codec.ProtocolVersion})
	require.NoError(t, err)
}

func writeFrame(t *testing.T, conn net.Conn, payload []byte) {
	t.Helper()
	require.NoError(t, codec.WriteFrame(conn, payload))
}

func readFrame(t *testing.T, conn net.Conn) []byte {
	t.Helper()
	payload, err := codec.ReadFrame(bufio.NewReader(conn))
	require.NoError(t, err)
	return payload
}
