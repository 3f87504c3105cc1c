package codec

// Server-to-client command tags, assigned contiguously per spec.md §6.
const (
	STagPong byte = iota
	STagAuthenticateResponse
	STagChatResponse
	STagTouches
	STagJudges
	STagMessage
	STagChangeState
	STagChangeHost
	STagCreateRoomResponse
	STagJoinRoomResponse
	STagOnJoinRoom
	STagLeaveRoomResponse
	STagLockRoomResponse
	STagCycleRoomResponse
	STagSelectChartResponse
	STagRequestStartResponse
	STagReadyResponse
	STagCancelReadyResponse
	STagPlayedResponse
	STagAbortResponse
)

const maxServerTag = STagAbortResponse

// ServerCommand is any command the server may send to a client.
type ServerCommand interface {
	isServerCommand()
}

// Result is the common {success, error} shape shared by every
// *ResponseCommand except AuthenticateResponse and JoinRoomResponse.
type Result struct {
	Success bool
	Error   string // only meaningful when !Success
}

func (r Result) encode(w *Writer) {
	w.WriteBool(r.Success)
	if !r.Success {
		w.WriteString(r.Error)
	}
}

func decodeResult(r *Reader) (Result, error) {
	var res Result
	var err error
	if res.Success, err = r.ReadBool(); err != nil {
		return res, err
	}
	if !res.Success {
		if res.Error, err = r.ReadString(); err != nil {
			return res, err
		}
	}
	return res, nil
}

// Ok builds a successful Result.
func Ok() Result { return Result{Success: true} }

// Fail builds a failed Result carrying a human-readable error message.
func Fail(msg string) Result { return Result{Success: false, Error: msg} }

type PongCmd struct{}

type AuthenticateResponseCmd struct {
	Success bool
	User    UserInfo
	Room    *ClientRoomState // only present on success, when the user was already in a room
	Error   string           // only meaningful when !Success
}

type ChatResponseCmd struct{ Result Result }

type TouchesBroadcastCmd struct {
	Player int32
	Frames []TouchFrame
}

type JudgesBroadcastCmd struct {
	Player int32
	Events []JudgeEvent
}

type MessageCmd struct{ Message Message }

type ChangeStateCmd struct{ State RoomStateData }

type ChangeHostCmd struct{ IsHost bool }

type CreateRoomResponseCmd struct{ Result Result }

type JoinRoomResponseCmd struct {
	Success bool
	State   RoomStateData
	Users   []UserInfo
	Live    bool
	Error   string // only meaningful when !Success
}

type OnJoinRoomCmd struct{ User UserInfo }

type LeaveRoomResponseCmd struct{ Result Result }
type LockRoomResponseCmd struct{ Result Result }
type CycleRoomResponseCmd struct{ Result Result }
type SelectChartResponseCmd struct{ Result Result }
type RequestStartResponseCmd struct{ Result Result }
type ReadyResponseCmd struct{ Result Result }
type CancelReadyResponseCmd struct{ Result Result }
type PlayedResponseCmd struct{ Result Result }
type AbortResponseCmd struct{ Result Result }

func (PongCmd) isServerCommand()                 {}
func (AuthenticateResponseCmd) isServerCommand()  {}
func (ChatResponseCmd) isServerCommand()          {}
func (TouchesBroadcastCmd) isServerCommand()      {}
func (JudgesBroadcastCmd) isServerCommand()       {}
func (MessageCmd) isServerCommand()               {}
func (ChangeStateCmd) isServerCommand()           {}
func (ChangeHostCmd) isServerCommand()            {}
func (CreateRoomResponseCmd) isServerCommand()    {}
func (JoinRoomResponseCmd) isServerCommand()      {}
func (OnJoinRoomCmd) isServerCommand()            {}
func (LeaveRoomResponseCmd) isServerCommand()     {}
func (LockRoomResponseCmd) isServerCommand()      {}
func (CycleRoomResponseCmd) isServerCommand()     {}
func (SelectChartResponseCmd) isServerCommand()   {}
func (RequestStartResponseCmd) isServerCommand()  {}
func (ReadyResponseCmd) isServerCommand()         {}
func (CancelReadyResponseCmd) isServerCommand()   {}
func (PlayedResponseCmd) isServerCommand()        {}
func (AbortResponseCmd) isServerCommand()         {}

// EncodeServerCommand encodes cmd into a fresh payload ready to be framed by
// WriteFrame.
func EncodeServerCommand(cmd ServerCommand) []byte {
	w := NewWriter(16)
	switch c := cmd.(type) {
	case PongCmd:
		w.WriteU8(STagPong)
	case AuthenticateResponseCmd:
		w.WriteU8(STagAuthenticateResponse)
		w.WriteBool(c.Success)
		if c.Success {
			c.User.encode(w)
			encodeOptionalClientRoomState(w, c.Room)
		} else {
			w.WriteString(c.Error)
		}
	case ChatResponseCmd:
		w.WriteU8(STagChatResponse)
		c.Result.encode(w)
	case TouchesBroadcastCmd:
		w.WriteU8(STagTouches)
		w.WriteI32(c.Player)
		encodeTouchFrames(w, c.Frames)
	case JudgesBroadcastCmd:
		w.WriteU8(STagJudges)
		w.WriteI32(c.Player)
		encodeJudgeEvents(w, c.Events)
	case MessageCmd:
		w.WriteU8(STagMessage)
		encodeMessage(w, c.Message)
	case ChangeStateCmd:
		w.WriteU8(STagChangeState)
		c.State.encode(w)
	case ChangeHostCmd:
		w.WriteU8(STagChangeHost)
		w.WriteBool(c.IsHost)
	case CreateRoomResponseCmd:
		w.WriteU8(STagCreateRoomResponse)
		c.Result.encode(w)
	case JoinRoomResponseCmd:
		w.WriteU8(STagJoinRoomResponse)
		w.WriteBool(c.Success)
		if c.Success {
			c.State.encode(w)
			encodeUserInfos(w, c.Users)
			w.WriteBool(c.Live)
		} else {
			w.WriteString(c.Error)
		}
	case OnJoinRoomCmd:
		w.WriteU8(STagOnJoinRoom)
		c.User.encode(w)
	case LeaveRoomResponseCmd:
		w.WriteU8(STagLeaveRoomResponse)
		c.Result.encode(w)
	case LockRoomResponseCmd:
		w.WriteU8(STagLockRoomResponse)
		c.Result.encode(w)
	case CycleRoomResponseCmd:
		w.WriteU8(STagCycleRoomResponse)
		c.Result.encode(w)
	case SelectChartResponseCmd:
		w.WriteU8(STagSelectChartResponse)
		c.Result.encode(w)
	case RequestStartResponseCmd:
		w.WriteU8(STagRequestStartResponse)
		c.Result.encode(w)
	case ReadyResponseCmd:
		w.WriteU8(STagReadyResponse)
		c.Result.encode(w)
	case CancelReadyResponseCmd:
		w.WriteU8(STagCancelReadyResponse)
		c.Result.encode(w)
	case PlayedResponseCmd:
		w.WriteU8(STagPlayedResponse)
		c.Result.encode(w)
	case AbortResponseCmd:
		w.WriteU8(STagAbortResponse)
		c.Result.encode(w)
	}
	return w.Bytes()
}

// DecodeServerCommand decodes one ServerCommand from a complete frame
// payload. Used by the test suite and by any client-side tooling.
func DecodeServerCommand(payload []byte) (ServerCommand, error) {
	if len(payload) == 0 {
		return nil, ErrShortBuffer
	}
	tag := payload[0]
	if tag > maxServerTag {
		return nil, ErrInvalidTag
	}
	r := NewReader(payload[1:])

	switch tag {
	case STagPong:
		return PongCmd{}, nil
	case STagAuthenticateResponse:
		success, err := r.ReadBool()
		if err != nil {
			return nil, err
		}
		if !success {
			errMsg, err := r.ReadString()
			return AuthenticateResponseCmd{Success: false, Error: errMsg}, err
		}
		user, err := decodeUserInfo(r)
		if err != nil {
			return nil, err
		}
		room, err := decodeOptionalClientRoomState(r)
		return AuthenticateResponseCmd{Success: true, User: user, Room: room}, err
	case STagChatResponse:
		res, err := decodeResult(r)
		return ChatResponseCmd{Result: res}, err
	case STagTouches:
		player, err := r.ReadI32()
		if err != nil {
			return nil, err
		}
		frames, err := decodeTouchFrames(r)
		return TouchesBroadcastCmd{Player: player, Frames: frames}, err
	case STagJudges:
		player, err := r.ReadI32()
		if err != nil {
			return nil, err
		}
		events, err := decodeJudgeEvents(r)
		return JudgesBroadcastCmd{Player: player, Events: events}, err
	case STagMessage:
		m, err := decodeMessage(r)
		return MessageCmd{Message: m}, err
	case STagChangeState:
		s, err := decodeRoomStateData(r)
		return ChangeStateCmd{State: s}, err
	case STagChangeHost:
		isHost, err := r.ReadBool()
		return ChangeHostCmd{IsHost: isHost}, err
	case STagCreateRoomResponse:
		res, err := decodeResult(r)
		return CreateRoomResponseCmd{Result: res}, err
	case STagJoinRoomResponse:
		success, err := r.ReadBool()
		if err != nil {
			return nil, err
		}
		if !success {
			errMsg, err := r.ReadString()
			return JoinRoomResponseCmd{Success: false, Error: errMsg}, err
		}
		state, err := decodeRoomStateData(r)
		if err != nil {
			return nil, err
		}
		users, err := decodeUserInfos(r)
		if err != nil {
			return nil, err
		}
		live, err := r.ReadBool()
		return JoinRoomResponseCmd{Success: true, State: state, Users: users, Live: live}, err
	case STagOnJoinRoom:
		u, err := decodeUserInfo(r)
		return OnJoinRoomCmd{User: u}, err
	case STagLeaveRoomResponse:
		res, err := decodeResult(r)
		return LeaveRoomResponseCmd{Result: res}, err
	case STagLockRoomResponse:
		res, err := decodeResult(r)
		return LockRoomResponseCmd{Result: res}, err
	case STagCycleRoomResponse:
		res, err := decodeResult(r)
		return CycleRoomResponseCmd{Result: res}, err
	case STagSelectChartResponse:
		res, err := decodeResult(r)
		return SelectChartResponseCmd{Result: res}, err
	case STagRequestStartResponse:
		res, err := decodeResult(r)
		return RequestStartResponseCmd{Result: res}, err
	case STagReadyResponse:
		res, err := decodeResult(r)
		return ReadyResponseCmd{Result: res}, err
	case STagCancelReadyResponse:
		res, err := decodeResult(r)
		return CancelReadyResponseCmd{Result: res}, err
	case STagPlayedResponse:
		res, err := decodeResult(r)
		return PlayedResponseCmd{Result: res}, err
	case STagAbortResponse:
		res, err := decodeResult(r)
		return AbortResponseCmd{Result: res}, err
	default:
		return nil, ErrInvalidTag
	}
}
