package user

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhythmarena/mpserver/internal/codec"
)

type fakeSender struct {
	mu  sync.Mutex
	got []codec.ServerCommand
}

func (f *fakeSender) Enqueue(cmd codec.ServerCommand) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, cmd)
}

func (f *fakeSender) commands() []codec.ServerCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]codec.ServerCommand(nil), f.got...)
}

func TestNewUserGameTimeStartsAtNegativeInfinity(t *testing.T) {
	u := New(100, "alice", "en")
	assert.True(t, math.IsInf(u.GameTime(), -1))
}

func TestSendDropsSilentlyWithNoSession(t *testing.T) {
	u := New(100, "alice", "en")
	assert.NotPanics(t, func() { u.Send(codec.PongCmd{}) })
}

func TestSendReachesAttachedSession(t *testing.T) {
	u := New(100, "alice", "en")
	sender := &fakeSender{}
	u.AttachSession(sender)

	u.Send(codec.PongCmd{})
	assert.Len(t, sender.commands(), 1)
}

func TestAttachSessionInvalidatesPendingDangleTimer(t *testing.T) {
	u := New(100, "alice", "en")
	u.AttachSession(&fakeSender{})

	expired := make(chan struct{}, 1)
	u.ArmDangleGrace(10*time.Millisecond, func() { expired <- struct{}{} })

	// Reconnect wins the race before the grace period elapses.
	u.AttachSession(&fakeSender{})

	select {
	case <-expired:
		t.Fatal("dangle timer fired despite a reconnect bumping the epoch")
	case <-time.After(30 * time.Millisecond):
	}
}

func TestDangleGraceExpiresWithoutReconnect(t *testing.T) {
	u := New(100, "alice", "en")
	u.AttachSession(&fakeSender{})

	expired := make(chan struct{}, 1)
	u.ArmDangleGrace(5*time.Millisecond, func() { expired <- struct{}{} })

	select {
	case <-expired:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected dangle grace to expire and call onExpire")
	}
}

func TestHasSessionDetectsReplacedSession(t *testing.T) {
	u := New(100, "alice", "en")
	first := &fakeSender{}
	u.AttachSession(first)
	require.True(t, u.HasSession(first))

	second := &fakeSender{}
	u.AttachSession(second)
	assert.False(t, u.HasSession(first))
	assert.True(t, u.HasSession(second))
}

func TestRegistryGetOrCreateIsKeyedByID(t *testing.T) {
	reg := NewRegistry()
	u1, created1 := reg.GetOrCreate(100, "alice", "en")
	require.True(t, created1)

	u2, created2 := reg.GetOrCreate(100, "alice-reconnected", "en")
	assert.False(t, created2)
	assert.Same(t, u1, u2)
}
