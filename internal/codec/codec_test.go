package codec

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloat16RoundTrip(t *testing.T) {
	for _, f := range []float32{0, 1, -1, 0.5, -0.5, 123.25, -10000} {
		h := Float32ToFloat16(f)
		got := Float16ToFloat32(h)
		assert.InDelta(t, float64(f), float64(got), 0.1, "value %v", f)
	}
}

func TestStringRoundTripPreservesUTF8(t *testing.T) {
	w := NewWriter(8)
	w.WriteString("héllo wörld 日本語")
	r := NewReader(w.Bytes())
	got, err := r.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "héllo wörld 日本語", got)
}

func TestBoolRejectsInvalidByte(t *testing.T) {
	r := NewReader([]byte{0x02})
	_, err := r.ReadBool()
	assert.ErrorIs(t, err, ErrInvalidBool)
}

func TestClientCommandRoundTrip(t *testing.T) {
	roomID, err := NewRoomID("ROOM1")
	require.NoError(t, err)

	cases := []ClientCommand{
		PingCmd{},
		AuthenticateCmd{Token: "0123456789abcdef0123456789abcdef"[:32]},
		ChatCmd{Message: "hi"},
		TouchesCmd{Frames: []TouchFrame{{Time: 1.5, Points: []TouchPoint{{ID: 1, X: 0.25, Y: -0.5}}}}},
		JudgesCmd{Events: []JudgeEvent{{Time: 2, LineID: 3, NoteID: 4, Judgement: JudgementPerfect}}},
		CreateRoomCmd{ID: roomID},
		JoinRoomCmd{ID: roomID, Monitor: true},
		LeaveRoomCmd{},
		LockRoomCmd{Lock: true},
		CycleRoomCmd{Cycle: false},
		SelectChartCmd{ChartID: 42},
		RequestStartCmd{},
		ReadyCmd{},
		CancelReadyCmd{},
		PlayedCmd{RecordID: 7},
		AbortCmd{},
	}

	for _, want := range cases {
		payload := EncodeClientCommand(want)
		got, err := DecodeClientCommand(payload)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestServerCommandRoundTrip(t *testing.T) {
	chartID := int32(42)
	cases := []ServerCommand{
		PongCmd{},
		AuthenticateResponseCmd{Success: true, User: UserInfo{ID: 1, Name: "a", Monitor: false}},
		AuthenticateResponseCmd{Success: false, Error: "bad token"},
		ChatResponseCmd{Result: Ok()},
		TouchesBroadcastCmd{Player: 1, Frames: []TouchFrame{{Time: 1, Points: []TouchPoint{}}}},
		JudgesBroadcastCmd{Player: 1, Events: []JudgeEvent{{Time: 1, LineID: 1, NoteID: 1, Judgement: JudgementMiss}}},
		MessageCmd{Message: ChatMsg{User: 1, Content: "hi"}},
		ChangeStateCmd{State: RoomStateData{State: RoomStateSelectChart, ChartID: &chartID}},
		ChangeStateCmd{State: RoomStateData{State: RoomStatePlaying}},
		ChangeHostCmd{IsHost: true},
		CreateRoomResponseCmd{Result: Fail("room already exists")},
		JoinRoomResponseCmd{Success: true, State: RoomStateData{State: RoomStateWaitingForReady}, Users: []UserInfo{{ID: 1, Name: "a"}}, Live: true},
		JoinRoomResponseCmd{Success: false, Error: "room is locked"},
		OnJoinRoomCmd{User: UserInfo{ID: 2, Name: "b"}},
		LeaveRoomResponseCmd{Result: Ok()},
		LockRoomResponseCmd{Result: Ok()},
		CycleRoomResponseCmd{Result: Ok()},
		SelectChartResponseCmd{Result: Ok()},
		RequestStartResponseCmd{Result: Fail("If no one else is in the room, you cannot start")},
		ReadyResponseCmd{Result: Ok()},
		CancelReadyResponseCmd{Result: Ok()},
		PlayedResponseCmd{Result: Ok()},
		AbortResponseCmd{Result: Ok()},
	}

	for _, want := range cases {
		payload := EncodeServerCommand(want)
		got, err := DecodeServerCommand(payload)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestMessageRoundTripAllTags(t *testing.T) {
	cases := []Message{
		ChatMsg{User: 1, Content: "hi"},
		CreateRoomMsg{User: 1},
		JoinRoomMsg{User: 1, Name: "a"},
		LeaveRoomMsg{User: 1, Name: "a"},
		NewHostMsg{User: 2},
		SelectChartMsg{User: 1, Name: "X", ChartID: 42},
		GameStartMsg{User: 1},
		ReadyMsg{User: 2},
		CancelReadyMsg{User: 2},
		CancelGameMsg{User: 1},
		StartPlayingMsg{},
		PlayedMsg{User: 1, Score: 900000, Accuracy: 0.98, FullCombo: true},
		GameEndMsg{},
		AbortMsg{User: 2},
		LockRoomMsg{Lock: true},
		CycleRoomMsg{Cycle: true},
	}

	for _, want := range cases {
		w := NewWriter(8)
		encodeMessage(w, want)
		r := NewReader(w.Bytes())
		got, err := decodeMessage(r)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

// TestFramingSplitAcrossReads verifies that a concatenation of N valid
// frames decodes to exactly the N original payloads regardless of how bytes
// are split across Read calls.
func TestFramingSplitAcrossReads(t *testing.T) {
	payloads := [][]byte{
		EncodeClientCommand(PingCmd{}),
		EncodeClientCommand(ChatCmd{Message: "hello there"}),
		EncodeClientCommand(CreateRoomCmd{ID: "ROOM1"}),
	}

	var wire bytes.Buffer
	for _, p := range payloads {
		require.NoError(t, WriteFrame(&wire, p))
	}

	// A reader that only ever yields one byte per Read forces ReadFrame to
	// assemble frames across many short reads.
	oneByteAtATime := iotest1Byte{r: bytes.NewReader(wire.Bytes())}
	br := bufio.NewReaderSize(oneByteAtATime, 1)

	var decoded [][]byte
	for i := 0; i < len(payloads); i++ {
		payload, err := ReadFrame(br)
		require.NoError(t, err)
		decoded = append(decoded, payload)
	}

	for i, want := range payloads {
		assert.Equal(t, want, decoded[i])
	}
}

type iotest1Byte struct{ r *bytes.Reader }

func (s iotest1Byte) Read(p []byte) (int, error) {
	if len(p) > 1 {
		p = p[:1]
	}
	return s.r.Read(p)
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var wire bytes.Buffer
	header := PutUvarint(nil, uint64(3*1024*1024))
	wire.Write(header)
	br := bufio.NewReader(&wire)
	_, err := ReadFrame(br)
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}
