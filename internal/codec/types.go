package codec

import (
	"errors"
	"regexp"
)

// ErrInvalidRoomID is returned when a RoomId does not match the allowed
// character set and length.
var ErrInvalidRoomID = errors.New("codec: invalid room id")

var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,20}$`)

// RoomID validates and wraps a room identifier string (1-20 chars over
// [A-Za-z0-9_-]).
type RoomID string

// NewRoomID validates s and returns it as a RoomID.
func NewRoomID(s string) (RoomID, error) {
	if !roomIDPattern.MatchString(s) {
		return "", ErrInvalidRoomID
	}
	return RoomID(s), nil
}

// TouchPoint is one finger contact within a TouchFrame.
type TouchPoint struct {
	ID  int8
	X   float32 // encoded as f16 on the wire
	Y   float32 // encoded as f16 on the wire
}

func (p TouchPoint) encode(w *Writer) {
	w.WriteI8(p.ID)
	w.WriteF16(p.X)
	w.WriteF16(p.Y)
}

func decodeTouchPoint(r *Reader) (TouchPoint, error) {
	var p TouchPoint
	var err error
	if p.ID, err = r.ReadI8(); err != nil {
		return p, err
	}
	if p.X, err = r.ReadF16(); err != nil {
		return p, err
	}
	if p.Y, err = r.ReadF16(); err != nil {
		return p, err
	}
	return p, nil
}

// TouchFrame is one sampled instant of the touch surface.
type TouchFrame struct {
	Time   float32
	Points []TouchPoint
}

func (f TouchFrame) encode(w *Writer) {
	w.WriteF32(f.Time)
	w.WriteSeqLen(len(f.Points))
	for _, p := range f.Points {
		p.encode(w)
	}
}

func decodeTouchFrame(r *Reader) (TouchFrame, error) {
	var f TouchFrame
	var err error
	if f.Time, err = r.ReadF32(); err != nil {
		return f, err
	}
	n, err := r.ReadSeqLen()
	if err != nil {
		return f, err
	}
	f.Points = make([]TouchPoint, n)
	for i := range f.Points {
		if f.Points[i], err = decodeTouchPoint(r); err != nil {
			return f, err
		}
	}
	return f, nil
}

func encodeTouchFrames(w *Writer, frames []TouchFrame) {
	w.WriteSeqLen(len(frames))
	for _, f := range frames {
		f.encode(w)
	}
}

func decodeTouchFrames(r *Reader) ([]TouchFrame, error) {
	n, err := r.ReadSeqLen()
	if err != nil {
		return nil, err
	}
	out := make([]TouchFrame, n)
	for i := range out {
		if out[i], err = decodeTouchFrame(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Judgement is the grade assigned to a single note hit.
type Judgement uint8

// The five-plus-one judgement grades, 0..5, per spec.md §6.
const (
	JudgementPerfect Judgement = iota
	JudgementGood
	JudgementBad
	JudgementMiss
	JudgementHoldBreak
	JudgementUnused5
)

// JudgeEvent is one scored note, mirrored to monitors.
type JudgeEvent struct {
	Time      float32
	LineID    uint32
	NoteID    uint32
	Judgement Judgement
}

func (e JudgeEvent) encode(w *Writer) {
	w.WriteF32(e.Time)
	w.WriteU32(e.LineID)
	w.WriteU32(e.NoteID)
	w.WriteU8(uint8(e.Judgement))
}

func decodeJudgeEvent(r *Reader) (JudgeEvent, error) {
	var e JudgeEvent
	var err error
	if e.Time, err = r.ReadF32(); err != nil {
		return e, err
	}
	if e.LineID, err = r.ReadU32(); err != nil {
		return e, err
	}
	if e.NoteID, err = r.ReadU32(); err != nil {
		return e, err
	}
	j, err := r.ReadU8()
	if err != nil {
		return e, err
	}
	if j > 5 {
		return e, ErrInvalidJudgement
	}
	e.Judgement = Judgement(j)
	return e, nil
}

// ErrInvalidJudgement is returned when a judgement byte is outside 0..5.
var ErrInvalidJudgement = errors.New("codec: judgement out of range")

func encodeJudgeEvents(w *Writer, events []JudgeEvent) {
	w.WriteSeqLen(len(events))
	for _, e := range events {
		e.encode(w)
	}
}

func decodeJudgeEvents(r *Reader) ([]JudgeEvent, error) {
	n, err := r.ReadSeqLen()
	if err != nil {
		return nil, err
	}
	out := make([]JudgeEvent, n)
	for i := range out {
		if out[i], err = decodeJudgeEvent(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// UserInfo is the public identity snapshot sent to clients.
type UserInfo struct {
	ID      int32
	Name    string
	Monitor bool
}

func (u UserInfo) encode(w *Writer) {
	w.WriteI32(u.ID)
	w.WriteString(u.Name)
	w.WriteBool(u.Monitor)
}

func decodeUserInfo(r *Reader) (UserInfo, error) {
	var u UserInfo
	var err error
	if u.ID, err = r.ReadI32(); err != nil {
		return u, err
	}
	if u.Name, err = r.ReadString(); err != nil {
		return u, err
	}
	if u.Monitor, err = r.ReadBool(); err != nil {
		return u, err
	}
	return u, nil
}

func encodeUserInfos(w *Writer, users []UserInfo) {
	w.WriteSeqLen(len(users))
	for _, u := range users {
		u.encode(w)
	}
}

func decodeUserInfos(r *Reader) ([]UserInfo, error) {
	n, err := r.ReadSeqLen()
	if err != nil {
		return nil, err
	}
	out := make([]UserInfo, n)
	for i := range out {
		if out[i], err = decodeUserInfo(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// RoomState is the room's coarse state-machine position, as observed by a
// client.
type RoomState uint8

const (
	RoomStateSelectChart RoomState = iota
	RoomStateWaitingForReady
	RoomStatePlaying
)

// RoomStateData is the wire form of a room's state: a tag byte, plus an
// optional chart id carried only by RoomStateSelectChart.
type RoomStateData struct {
	State   RoomState
	ChartID *int32 // only meaningful when State == RoomStateSelectChart
}

func (s RoomStateData) encode(w *Writer) {
	w.WriteU8(uint8(s.State))
	if s.State == RoomStateSelectChart {
		w.WriteOptional(s.ChartID != nil, func(w *Writer) {
			w.WriteI32(*s.ChartID)
		})
	}
}

func decodeRoomStateData(r *Reader) (RoomStateData, error) {
	var s RoomStateData
	tag, err := r.ReadU8()
	if err != nil {
		return s, err
	}
	if tag > uint8(RoomStatePlaying) {
		return s, ErrInvalidTag
	}
	s.State = RoomState(tag)
	if s.State == RoomStateSelectChart {
		var chartID int32
		present, err := r.ReadOptional(func(r *Reader) error {
			var e error
			chartID, e = r.ReadI32()
			return e
		})
		if err != nil {
			return s, err
		}
		if present {
			s.ChartID = &chartID
		}
	}
	return s, nil
}

// ErrInvalidTag is returned when a tagged union's discriminant byte is
// outside its valid range.
var ErrInvalidTag = errors.New("codec: tag out of range")

// ClientRoomState is the snapshot sent to a client so it can resume its UI
// after joining or reconnecting into an existing room.
type ClientRoomState struct {
	RoomID  string
	State   RoomStateData
	Live    bool
	Locked  bool
	Cycle   bool
	IsHost  bool
	IsReady bool
	Users   map[int32]UserInfo
}

func (s ClientRoomState) encode(w *Writer) {
	w.WriteString(s.RoomID)
	s.State.encode(w)
	w.WriteBool(s.Live)
	w.WriteBool(s.Locked)
	w.WriteBool(s.Cycle)
	w.WriteBool(s.IsHost)
	w.WriteBool(s.IsReady)
	w.WriteSeqLen(len(s.Users))
	for id, u := range s.Users {
		w.WriteI32(id)
		u.encode(w)
	}
}

func decodeClientRoomState(r *Reader) (ClientRoomState, error) {
	var s ClientRoomState
	var err error
	if s.RoomID, err = r.ReadString(); err != nil {
		return s, err
	}
	if s.State, err = decodeRoomStateData(r); err != nil {
		return s, err
	}
	if s.Live, err = r.ReadBool(); err != nil {
		return s, err
	}
	if s.Locked, err = r.ReadBool(); err != nil {
		return s, err
	}
	if s.Cycle, err = r.ReadBool(); err != nil {
		return s, err
	}
	if s.IsHost, err = r.ReadBool(); err != nil {
		return s, err
	}
	if s.IsReady, err = r.ReadBool(); err != nil {
		return s, err
	}
	n, err := r.ReadSeqLen()
	if err != nil {
		return s, err
	}
	s.Users = make(map[int32]UserInfo, n)
	for i := 0; i < n; i++ {
		id, err := r.ReadI32()
		if err != nil {
			return s, err
		}
		u, err := decodeUserInfo(r)
		if err != nil {
			return s, err
		}
		s.Users[id] = u
	}
	return s, nil
}

func encodeOptionalClientRoomState(w *Writer, s *ClientRoomState) {
	w.WriteOptional(s != nil, func(w *Writer) {
		s.encode(w)
	})
}

func decodeOptionalClientRoomState(r *Reader) (*ClientRoomState, error) {
	var out *ClientRoomState
	_, err := r.ReadOptional(func(r *Reader) error {
		s, err := decodeClientRoomState(r)
		if err != nil {
			return err
		}
		out = &s
		return nil
	})
	return out, err
}
