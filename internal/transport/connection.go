// Package transport owns the per-socket duplex framing described in
// spec.md §4.2: the version handshake, the receive task that turns bytes
// into ClientCommands, and the send task that drains an unbounded outbound
// queue. It never interprets a command's meaning — that is Session's job.
//
// The receive/send goroutine pair and the mutex-guarded write path are
// adapted from the reference corpus's per-client goroutine pair
// (client.go's handleClient spawning a control reader alongside
// readDatagrams, and sendRaw's mutex-guarded control-stream writer), ported
// from newline-delimited JSON control messages to the binary
// length-prefixed frames internal/codec defines.
package transport

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rhythmarena/mpserver/internal/codec"
)

// ErrConnectionClosed is returned by Run once the connection has been
// deliberately closed, so callers can distinguish a clean shutdown from a
// genuine transport error.
var ErrConnectionClosed = errors.New("transport: connection closed")

// Connection owns one TCP socket and the unbounded send queue feeding it.
// Enqueue never blocks on the network: it appends to the in-memory queue
// and returns, matching spec.md §4.2's explicit "back-pressure is
// deliberately absent" requirement.
type Connection struct {
	conn   net.Conn
	reader *bufio.Reader

	mu     sync.Mutex
	cond   *sync.Cond
	outbox []codec.ServerCommand
	closed bool

	lastReceived atomic.Int64 // unix nanoseconds
}

// New wraps conn, enabling TCP_NODELAY when the underlying socket supports
// it (spec.md §4.2).
func New(conn net.Conn) *Connection {
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	c := &Connection{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}
	c.cond = sync.NewCond(&c.mu)
	c.lastReceived.Store(time.Now().UnixNano())
	return c
}

// RemoteAddr returns the peer address, for logging.
func (c *Connection) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// LastReceived returns the timestamp of the most recently received frame,
// used by Session's heartbeat watchdog.
func (c *Connection) LastReceived() time.Time {
	return time.Unix(0, c.lastReceived.Load())
}

// Handshake performs the version exchange: each side writes its protocol
// version byte without waiting on the other, per spec.md §4.1.
func (c *Connection) Handshake() (peerVersion byte, err error) {
	writeErr := make(chan error, 1)
	go func() {
		_, err := c.conn.Write([]byte{codec.ProtocolVersion})
		writeErr <- err
	}()

	var buf [1]byte
	_, readErr := c.reader.Read(buf[:])
	if werr := <-writeErr; werr != nil {
		return 0, werr
	}
	if readErr != nil {
		return 0, readErr
	}
	return buf[0], nil
}

// Enqueue appends cmd to the outbound queue and wakes the send task.
// Implements user.Sender so a Connection can be attached directly to a
// User as its session.
func (c *Connection) Enqueue(cmd codec.ServerCommand) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.outbox = append(c.outbox, cmd)
	c.cond.Signal()
}

// Run performs the handshake, starts the send task, and then runs the
// receive loop until a frame-transport error (spec.md §4.2) or Close. Each
// decoded ClientCommand is handed to dispatch, except Ping, which is
// answered with Pong here without consulting dispatch. Run blocks until the
// connection terminates and always closes the socket before returning.
func (c *Connection) Run(dispatch func(codec.ClientCommand)) error {
	if _, err := c.Handshake(); err != nil {
		c.Close()
		return err
	}

	go c.sendLoop()

	err := c.recvLoop(dispatch)
	c.Close()
	return err
}

func (c *Connection) recvLoop(dispatch func(codec.ClientCommand)) error {
	for {
		payload, err := codec.ReadFrame(c.reader)
		if err != nil {
			if c.isClosed() {
				return ErrConnectionClosed
			}
			return err
		}
		c.lastReceived.Store(time.Now().UnixNano())

		cmd, err := codec.DecodeClientCommand(payload)
		if err != nil {
			slog.Debug("transport: frame decode error", "remote", c.RemoteAddr(), "err", err)
			continue
		}
		if _, isPing := cmd.(codec.PingCmd); isPing {
			c.Enqueue(codec.PongCmd{})
			continue
		}
		dispatch(cmd)
	}
}

func (c *Connection) sendLoop() {
	for {
		c.mu.Lock()
		for len(c.outbox) == 0 && !c.closed {
			c.cond.Wait()
		}
		if c.closed {
			c.mu.Unlock()
			return
		}
		cmd := c.outbox[0]
		c.outbox = c.outbox[1:]
		c.mu.Unlock()

		payload := codec.EncodeServerCommand(cmd)
		if err := codec.WriteFrame(c.conn, payload); err != nil {
			slog.Debug("transport: frame write error", "remote", c.RemoteAddr(), "err", err)
			c.Close()
			return
		}
	}
}

func (c *Connection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close tears down the socket and wakes the send task so it exits rather
// than blocking forever on an empty queue. Safe to call more than once and
// from either task, matching spec.md §4.2's "either task's termination
// cancels the other."
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	c.cond.Broadcast()
	return c.conn.Close()
}
