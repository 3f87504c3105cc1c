// Package room implements the per-room state machine described in spec.md
// §4.5: chart selection, ready-up coordination, gameplay start/end, host
// election and cycling, and monitor/player broadcast fan-out.
//
// The struct shape — a single mutex guarding membership slices/maps and a
// host field, with a lock-then-enumerate Broadcast — is adapted from the
// reference corpus's voice-room type (Room{mu, clients map[uint16]*Client,
// ownerID uint16, Broadcast/BroadcastControl}), generalized here from one
// global room per process to many independently-locked rooms keyed by room
// id, and from a flat client set to the SelectChart/WaitingForReady/Playing
// cycle spec.md requires. Host reassignment on leave diverges from the
// corpus's deterministic lowest-id TransferOwnership: spec.md requires a
// uniform random pick, so math/rand/v2 stands in where no pack library
// offers random-choice-from-slice.
package room

import (
	"errors"
	"math/rand/v2"
	"sync"

	"github.com/rhythmarena/mpserver/internal/codec"
	"github.com/rhythmarena/mpserver/internal/identity"
	"github.com/rhythmarena/mpserver/internal/user"
)

// State is the room's position in the SelectChart -> WaitingForReady ->
// Playing cycle.
type State uint8

const (
	StateSelectChart State = iota
	StateWaitingForReady
	StatePlaying
)

func (s State) wire() codec.RoomState {
	switch s {
	case StateWaitingForReady:
		return codec.RoomStateWaitingForReady
	case StatePlaying:
		return codec.RoomStatePlaying
	default:
		return codec.RoomStateSelectChart
	}
}

// Chart is the currently-selected chart, if any.
type Chart struct {
	ID   int32
	Name string
}

// Errors returned by Room operations. Every one is surfaced to the
// initiating client as a {success=false, error=<message>} response per
// spec.md §7 — none of them terminate the connection.
var (
	ErrAlreadyInRoom     = errors.New("you are already in a room")
	ErrRoomLocked        = errors.New("this room is locked")
	ErrWrongState        = errors.New("that action is not valid in the room's current state")
	ErrMonitorNotAllowed = errors.New("you are not allowed to join as a monitor")
	ErrRoomFull          = errors.New("the room is full")
	ErrNotHost           = errors.New("only the host may do that")
	ErrNotMember         = errors.New("you are not in this room")
	ErrChartNotSet       = errors.New("select a chart before starting")
	ErrNotEnoughPlayers  = errors.New("you need another player in the room before starting")
	ErrRecordWrongPlayer = errors.New("that record does not belong to you")
	ErrAlreadySubmitted  = errors.New("you have already submitted a result for this game")
	ErrNotPlaying        = errors.New("the room is not currently playing")
	ErrRoomAlreadyExists = errors.New("a room with that id already exists")
)

// Config is the set of per-room parameters fixed at creation time.
type Config struct {
	MaxPlayers     int
	MonitorAllowed func(userID int32) bool
	DefaultCycle   bool
	DefaultVoting  bool
}

// Room is one coordination unit. All state-machine transitions, membership
// changes, vote updates, and broadcast fan-out happen under mu. Methods
// return a plain error for the caller to wrap into a ServerCommand Result;
// none of them touch the network.
type Room struct {
	mu sync.Mutex

	id  string
	cfg Config

	host        int32
	state       State
	live        bool
	locked      bool
	cycle       bool
	cycleVoting bool
	chart       *Chart

	players  []*user.User
	monitors []*user.User

	votes   map[int32]Chart // userID -> voted chart, meaningful only in cycle+voting
	wait    map[int32]struct{}
	results map[int32]identity.Record
	aborted map[int32]struct{}
}

// New creates a room with creator as its first member and host, per spec.md
// §4.5 ("the creator of a room becomes its host").
func New(id string, creator *user.User, cfg Config) *Room {
	r := &Room{
		id:          id,
		cfg:         cfg,
		host:        creator.ID,
		state:       StateSelectChart,
		cycle:       cfg.DefaultCycle,
		cycleVoting: cfg.DefaultVoting,
		players:     []*user.User{creator},
		votes:       make(map[int32]Chart),
		wait:        make(map[int32]struct{}),
		results:     make(map[int32]identity.Record),
		aborted:     make(map[int32]struct{}),
	}
	creator.SetMonitor(false)
	creator.SetRoomID(id)
	return r
}

// ID returns the room's identifier.
func (r *Room) ID() string {
	return r.id
}

func (r *Room) findIndex(id int32) int {
	for i, p := range r.players {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (r *Room) isPlayer(id int32) bool {
	return r.findIndex(id) >= 0
}

func (r *Room) isMonitor(id int32) bool {
	for _, m := range r.monitors {
		if m.ID == id {
			return true
		}
	}
	return false
}

func (r *Room) isMember(id int32) bool {
	return r.isPlayer(id) || r.isMonitor(id)
}

// membersLocked returns every player and monitor, in that order. Must be
// called with mu held.
func (r *Room) membersLocked() []*user.User {
	all := make([]*user.User, 0, len(r.players)+len(r.monitors))
	all = append(all, r.players...)
	all = append(all, r.monitors...)
	return all
}

// Empty reports whether the room has no players left, meaning it should be
// destroyed per spec.md §3.
func (r *Room) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players) == 0
}

// IsPlaying reports whether the room is currently in the Playing state, used
// by the server's dangle handling to skip the grace period for a player lost
// mid-game (spec.md §4.4).
func (r *Room) IsPlaying() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == StatePlaying
}

// stateData builds the wire RoomStateData for the room's current state.
// Must be called with mu held.
func (r *Room) stateData() codec.RoomStateData {
	d := codec.RoomStateData{State: r.state.wire()}
	if r.state == StateSelectChart && r.chart != nil {
		id := r.chart.ID
		d.ChartID = &id
	}
	return d
}

// snapshotLocked builds the ClientRoomState seen by a given viewer. Monitors
// are included in the user list per the documented resolution of spec.md
// §9's open question. Must be called with mu held.
func (r *Room) snapshotLocked(viewerIsHost bool, viewerReady bool) codec.ClientRoomState {
	users := make(map[int32]codec.UserInfo, len(r.players)+len(r.monitors))
	for _, p := range r.players {
		users[p.ID] = p.Info()
	}
	for _, m := range r.monitors {
		users[m.ID] = m.Info()
	}
	return codec.ClientRoomState{
		RoomID:  r.id,
		State:   r.stateData(),
		Live:    r.live,
		Locked:  r.locked,
		Cycle:   r.cycle,
		IsHost:  viewerIsHost,
		IsReady: viewerReady,
		Users:   users,
	}
}

// Snapshot returns the ClientRoomState as seen by viewer, used to answer the
// AuthenticateResponse room field on reconnect.
func (r *Room) Snapshot(viewerID int32) codec.ClientRoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ready := r.wait[viewerID]
	return r.snapshotLocked(r.host == viewerID, ready)
}

func (r *Room) broadcastAllLocked(msg codec.Message) {
	cmd := codec.MessageCmd{Message: msg}
	for _, p := range r.players {
		p.Send(cmd)
	}
	for _, m := range r.monitors {
		m.Send(cmd)
	}
}

func (r *Room) broadcastMonitorsLocked(cmd codec.ServerCommand) {
	for _, m := range r.monitors {
		m.Send(cmd)
	}
}

func (r *Room) changeStateLocked() {
	data := r.stateData()
	cmd := codec.ChangeStateCmd{State: data}
	for _, p := range r.players {
		p.Send(cmd)
	}
	for _, m := range r.monitors {
		m.Send(cmd)
	}
}

// JoinResult carries what the caller needs to build a JoinRoomResponse.
type JoinResult struct {
	State codec.RoomStateData
	Users []codec.UserInfo
	Live  bool
}

// Join admits u into the room as a player or monitor, per spec.md §4.5's
// join admission rules: the room must be in SelectChart, must not be full
// (players only), must not be locked (players only — monitors bypass lock
// and capacity), and the joining user must already hold a monitor grant to
// join as a monitor. The first monitor ever to join sets live permanently.
func (r *Room) Join(u *user.User, monitor bool) (JoinResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isMember(u.ID) {
		return JoinResult{}, ErrAlreadyInRoom
	}
	if r.state != StateSelectChart {
		return JoinResult{}, ErrWrongState
	}
	if monitor {
		if r.cfg.MonitorAllowed == nil || !r.cfg.MonitorAllowed(u.ID) {
			return JoinResult{}, ErrMonitorNotAllowed
		}
	} else {
		if r.locked {
			return JoinResult{}, ErrRoomLocked
		}
		if r.cfg.MaxPlayers > 0 && len(r.players) >= r.cfg.MaxPlayers {
			return JoinResult{}, ErrRoomFull
		}
	}

	u.SetMonitor(monitor)
	u.SetRoomID(r.id)
	if monitor {
		r.monitors = append(r.monitors, u)
		r.live = true
	} else {
		r.players = append(r.players, u)
	}

	r.broadcastAllLocked(codec.JoinRoomMsg{User: u.ID, Name: u.Name})
	r.broadcastMonitorsLocked(codec.OnJoinRoomCmd{User: u.Info()})

	users := make([]codec.UserInfo, 0, len(r.players)+len(r.monitors))
	for _, m := range r.membersLocked() {
		users = append(users, m.Info())
	}

	return JoinResult{State: r.stateData(), Users: users, Live: r.live}, nil
}

// Leave removes u from the room, reassigning the host at random if the
// departing user was host and other players remain, and checking whether
// the room's remaining players are all ready (spec.md §9: leave always
// re-evaluates readiness). In Playing, the leaver's result or abort is
// dropped and the game ends once every remaining player has submitted or
// aborted. A room is destroyed
// as soon as its last non-monitor player leaves, even if monitors remain
// (spec.md §3's room lifecycle) — the caller should drop it from the
// registry when destroyed is true.
func (r *Room) Leave(u *user.User) (destroyed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wasHost := r.host == u.ID
	if idx := r.findIndex(u.ID); idx >= 0 {
		r.players = append(r.players[:idx], r.players[idx+1:]...)
		delete(r.wait, u.ID)
		delete(r.votes, u.ID)
	} else {
		for i, m := range r.monitors {
			if m.ID == u.ID {
				r.monitors = append(r.monitors[:i], r.monitors[i+1:]...)
				break
			}
		}
	}
	u.ClearRoom()

	if len(r.players) == 0 {
		return true
	}

	r.broadcastAllLocked(codec.LeaveRoomMsg{User: u.ID, Name: u.Name})

	if wasHost {
		r.host = r.players[rand.IntN(len(r.players))].ID
		r.broadcastAllLocked(codec.NewHostMsg{User: r.host})
		for _, p := range r.players {
			p.Send(codec.ChangeHostCmd{IsHost: p.ID == r.host})
		}
	}

	r.maybeAllReadyLocked()
	if r.state == StatePlaying {
		delete(r.results, u.ID)
		delete(r.aborted, u.ID)
		if len(r.results)+len(r.aborted) >= len(r.players) {
			r.endGameLocked()
		}
	}

	return false
}

// maybeAllReadyLocked starts the game once every player and monitor has
// readied up, per spec.md §4.5 and the `wait` invariant in §3. Must be
// called with mu held.
func (r *Room) maybeAllReadyLocked() {
	if r.state != StateWaitingForReady {
		return
	}
	if len(r.players) < 2 {
		return
	}
	for _, m := range r.membersLocked() {
		if _, ready := r.wait[m.ID]; !ready {
			return
		}
	}
	r.startPlayingLocked()
}

func (r *Room) startPlayingLocked() {
	r.state = StatePlaying
	r.wait = make(map[int32]struct{})
	r.results = make(map[int32]identity.Record)
	r.aborted = make(map[int32]struct{})
	for _, p := range r.players {
		p.ResetGameTime()
	}
	r.broadcastAllLocked(codec.StartPlayingMsg{})
	r.changeStateLocked()
}

// Lock toggles whether new players may join; only the host may call this.
func (r *Room) Lock(u *user.User, lock bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.host != u.ID {
		return ErrNotHost
	}
	r.locked = lock
	r.broadcastAllLocked(codec.LockRoomMsg{Lock: lock})
	return nil
}

// Cycle toggles whether the room auto-rotates its host and chart after each
// game; only the host may call this.
func (r *Room) Cycle(u *user.User, cycle bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.host != u.ID {
		return ErrNotHost
	}
	r.cycle = cycle
	r.broadcastAllLocked(codec.CycleRoomMsg{Cycle: cycle})
	return nil
}

// SelectChart records chart as the room's pick. In cycle+voting mode any
// player may submit a vote instead of directly selecting; otherwise only the
// host may select, per spec.md §4.5's chart-selection authority rules.
func (r *Room) SelectChart(u *user.User, chart Chart) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateSelectChart {
		return ErrWrongState
	}
	if !r.isPlayer(u.ID) {
		return ErrNotMember
	}

	if r.cycle && r.cycleVoting {
		c := chart
		r.votes[u.ID] = c
		// The latest vote is published as the room's current chart so the
		// UI reflects it immediately; RequestStart still resolves the final
		// pick uniformly at random from every accumulated vote.
		r.chart = &c
		r.broadcastAllLocked(codec.SelectChartMsg{User: u.ID, Name: u.Name, ChartID: chart.ID})
		r.changeStateLocked()
		return nil
	}

	if r.host != u.ID {
		return ErrNotHost
	}
	c := chart
	r.chart = &c
	r.broadcastAllLocked(codec.SelectChartMsg{User: u.ID, Name: u.Name, ChartID: chart.ID})
	r.changeStateLocked()
	return nil
}

// RequestStart moves the room from SelectChart to WaitingForReady. Only the
// host may call this, and at least one other player must be present
// (spec.md §4.5, §9: a lone player may not start a game). In cycle+voting
// mode a chart is resolved here from the accumulated votes, chosen uniformly
// at random, and the pseudo-host grant handed out during voting is revoked;
// otherwise the host must already have selected a chart directly.
func (r *Room) RequestStart(u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.host != u.ID {
		return ErrNotHost
	}
	if r.state != StateSelectChart {
		return ErrWrongState
	}
	if len(r.players) < 2 {
		return ErrNotEnoughPlayers
	}

	if r.cycle && r.cycleVoting {
		if len(r.votes) == 0 {
			return ErrChartNotSet
		}
		choices := make([]Chart, 0, len(r.votes))
		for _, chart := range r.votes {
			choices = append(choices, chart)
		}
		chosen := choices[rand.IntN(len(choices))]
		r.chart = &chosen
		r.broadcastAllLocked(codec.SelectChartMsg{User: r.host, Name: u.Name, ChartID: chosen.ID})
		for _, m := range r.membersLocked() {
			if m.ID != r.host {
				m.Send(codec.ChangeHostCmd{IsHost: false})
			}
		}
		r.votes = make(map[int32]Chart)
	} else if r.chart == nil {
		return ErrChartNotSet
	}

	r.state = StateWaitingForReady
	r.wait = map[int32]struct{}{r.host: {}}
	r.broadcastAllLocked(codec.GameStartMsg{User: r.host})
	r.changeStateLocked()
	return nil
}

// Ready marks u as ready to play. Per the `wait` invariant in spec.md §3 the
// game starts once every player AND monitor in the room is ready.
func (r *Room) Ready(u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateWaitingForReady {
		return ErrWrongState
	}
	if !r.isMember(u.ID) {
		return ErrNotMember
	}
	r.wait[u.ID] = struct{}{}
	r.broadcastAllLocked(codec.ReadyMsg{User: u.ID})
	r.maybeAllReadyLocked()
	return nil
}

// CancelReady withdraws u's ready status. A non-host withdrawing just drops
// out of `wait`. The host withdrawing always cancels the pending game back
// to SelectChart; in cycle+voting mode this additionally clears the chart
// and re-grants pseudo-host to every non-host via ChangeHost(true), per
// spec.md §9's resolution of the variable-naming discrepancy in the source.
func (r *Room) CancelReady(u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateWaitingForReady {
		return ErrWrongState
	}
	if !r.isMember(u.ID) {
		return ErrNotMember
	}
	delete(r.wait, u.ID)
	r.broadcastAllLocked(codec.CancelReadyMsg{User: u.ID})

	if u.ID == r.host {
		r.state = StateSelectChart
		r.wait = make(map[int32]struct{})
		r.broadcastAllLocked(codec.CancelGameMsg{User: u.ID})
		if r.cycle && r.cycleVoting {
			r.chart = nil
			r.votes = make(map[int32]Chart)
			for _, m := range r.membersLocked() {
				if m.ID != r.host {
					m.Send(codec.ChangeHostCmd{IsHost: true})
				}
			}
		}
		r.changeStateLocked()
	}
	return nil
}

// Played records a completed-play result for u, as verified by the caller
// (the session layer fetches and validates the Record via the identity
// client before calling this — Room never performs network I/O). Once every
// player has submitted, the room ends the game and cycles per configuration.
func (r *Room) Played(u *user.User, rec identity.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StatePlaying {
		return ErrNotPlaying
	}
	if !r.isPlayer(u.ID) {
		return ErrNotMember
	}
	if _, already := r.results[u.ID]; already {
		return ErrAlreadySubmitted
	}
	if _, already := r.aborted[u.ID]; already {
		return ErrAlreadySubmitted
	}
	r.results[u.ID] = rec
	r.broadcastAllLocked(codec.PlayedMsg{
		User:      u.ID,
		Score:     rec.Score,
		Accuracy:  rec.Accuracy,
		FullCombo: rec.FullCombo,
	})

	allIn := len(r.results)+len(r.aborted) >= len(r.players)
	if allIn {
		r.endGameLocked()
	}
	return nil
}

// Abort records that u quit out of the current game without a result.
func (r *Room) Abort(u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StatePlaying {
		return ErrNotPlaying
	}
	if !r.isPlayer(u.ID) {
		return ErrNotMember
	}
	if _, already := r.results[u.ID]; already {
		return ErrAlreadySubmitted
	}
	if _, already := r.aborted[u.ID]; already {
		return ErrAlreadySubmitted
	}
	r.aborted[u.ID] = struct{}{}
	r.broadcastAllLocked(codec.AbortMsg{User: u.ID})

	if len(r.results)+len(r.aborted) >= len(r.players) {
		r.endGameLocked()
	}
	return nil
}

// endGameLocked ends the current game and, if cycling is enabled, applies
// the configured cycling policy. Must be called with mu held.
func (r *Room) endGameLocked() {
	r.state = StateSelectChart
	r.chart = nil
	r.votes = make(map[int32]Chart)
	r.broadcastAllLocked(codec.GameEndMsg{})

	if r.cycle && len(r.players) > 0 {
		if r.cycleVoting {
			// Re-grant pseudo-host to every non-host so all players can
			// submit a vote during the next SelectChart phase; the host
			// itself is unchanged in this mode.
			for _, m := range r.membersLocked() {
				if m.ID != r.host {
					m.Send(codec.ChangeHostCmd{IsHost: true})
				}
			}
		} else {
			r.cycleSequentialLocked()
		}
	}
	r.changeStateLocked()
}

// cycleSequentialLocked rotates the host to the next player in join order,
// per spec.md §4.5's "cycle without voting" host rotation.
func (r *Room) cycleSequentialLocked() {
	idx := r.findIndex(r.host)
	if idx < 0 {
		idx = -1
	}
	next := r.players[(idx+1)%len(r.players)]
	r.host = next.ID
	r.broadcastAllLocked(codec.NewHostMsg{User: r.host})
	for _, p := range r.players {
		p.Send(codec.ChangeHostCmd{IsHost: p.ID == r.host})
	}
}

// Chat broadcasts a chat message from u to every member of the room.
func (r *Room) Chat(u *user.User, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isMember(u.ID) {
		return ErrNotMember
	}
	r.broadcastAllLocked(codec.ChatMsg{User: u.ID, Content: message})
	return nil
}

// Touches fans a player's touch frames out to monitors only, updating the
// player's last-known gameplay clock from the final frame's timestamp.
func (r *Room) Touches(u *user.User, frames []codec.TouchFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isPlayer(u.ID) {
		return
	}
	if n := len(frames); n > 0 {
		u.SetGameTime(float64(frames[n-1].Time))
	}
	r.broadcastMonitorsLocked(codec.TouchesBroadcastCmd{Player: u.ID, Frames: frames})
}

// Judges fans a player's judgement events out to monitors only.
func (r *Room) Judges(u *user.User, events []codec.JudgeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isPlayer(u.ID) {
		return
	}
	r.broadcastMonitorsLocked(codec.JudgesBroadcastCmd{Player: u.ID, Events: events})
}
