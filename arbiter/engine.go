// Package arbiter is the server-side authority over the grid. It applies
// claim events in receipt order, suppresses duplicates with per-player
// watermarks, detects completed rounds and resets the board.
//
// Every exported method holds the engine lock for its whole body and returns
// copies, so callers can encode and send results after the lock is released.
package arbiter

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Jdcabreradev/gridclash/grid"
)

// Rejection reasons. A rejected event changes nothing and is not acknowledged.
var (
	ErrUnknownSlot = errors.New("arbiter: unknown player slot")
	ErrNotOwner    = errors.New("arbiter: slot not registered to sender address")
	ErrOutOfBounds = errors.New("arbiter: cell out of bounds")
	ErrDuplicate   = errors.New("arbiter: sequence at or below watermark")
)

// Phase is the round state.
type Phase uint8

const (
	PhaseWaiting    Phase = iota // No players connected
	PhaseInProgress              // Accepting claims
	PhaseComplete                // Board full, game-over pending for the next tick
)

func (p Phase) String() string {
	switch p {
	case PhaseWaiting:
		return "WaitingForPlayers"
	case PhaseInProgress:
		return "InProgress"
	case PhaseComplete:
		return "Complete"
	default:
		return "InvalidPhase"
	}
}

// Player is one occupied slot.
type Player struct {
	Slot      grid.Owner
	Addr      net.Addr
	Session   uuid.UUID
	Watermark uint32 // Highest event sequence already arbitrated
	JoinedAt  time.Time
	LastSeen  time.Time
}

// Event is a claim as seen by the arbiter.
type Event struct {
	Slot       grid.Owner
	Seq        uint32
	Cell       int
	ClientTime uint64 // Diagnostic only; never used for ordering
}

// Verdict is the outcome of an accepted event.
type Verdict uint8

const (
	VerdictApplied   Verdict = iota // Cell now owned by the sender
	VerdictCellOwned                // Cell already owned; watermark advanced only
	VerdictRoundOver                // Round complete; watermark advanced only
)

func (v Verdict) String() string {
	switch v {
	case VerdictApplied:
		return "Applied"
	case VerdictCellOwned:
		return "CellOwned"
	case VerdictRoundOver:
		return "RoundOver"
	default:
		return "InvalidVerdict"
	}
}

// EventResult reports how ApplyEvent arbitrated one event. Err is non-nil for
// rejected events; Verdict is meaningful only when Err is nil.
type EventResult struct {
	Err       error
	Verdict   Verdict
	Slot      grid.Owner
	Cell      int
	Order     uint64 // Receipt order among accepted events
	Completed bool   // This event filled the last empty cell
}

// JoinResult reports the outcome of a join request.
type JoinResult struct {
	Accepted   bool
	Rejoin     bool // Address already held Slot
	Slot       grid.Owner
	Session    uuid.UUID
	Grid       grid.Grid
	SnapshotID uint32
}

// GameOver describes a finished round.
type GameOver struct {
	Winner grid.Owner
	Round  uint32
	Claims [grid.MaxPlayers]uint8
}

// TickResult is everything one broadcast tick has to send.
type TickResult struct {
	Expired    []Player
	GameOver   *GameOver
	Snapshot   grid.Snapshot
	Recipients []net.Addr
}

// Engine owns the authoritative grid and player table of one server instance.
type Engine struct {
	mu         sync.Mutex
	timeout    time.Duration
	grid       grid.Grid
	players    [grid.MaxPlayers + 1]*Player // indexed by slot, 0 unused
	byAddr     map[string]grid.Owner
	phase      Phase
	round      uint32
	snapshotID uint32
	order      uint64                      // accepted-event counter
	lastClaim  [grid.MaxPlayers + 1]uint64 // order of each slot's latest claim this round
	pending    *GameOver                   // set on completion, emitted by Tick
}

// New creates an engine that frees slots silent for longer than playerTimeout.
func New(playerTimeout time.Duration) *Engine {
	return &Engine{
		timeout: playerTimeout,
		byAddr:  make(map[string]grid.Owner),
		round:   1,
	}
}

// Join registers addr, or returns its existing slot if it already holds one.
func (e *Engine) Join(addr net.Addr, now time.Time) JoinResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	res := JoinResult{Grid: e.grid, SnapshotID: e.snapshotID}

	if slot, ok := e.byAddr[addr.String()]; ok {
		p := e.players[slot]
		p.LastSeen = now
		res.Accepted, res.Rejoin, res.Slot, res.Session = true, true, slot, p.Session
		return res
	}

	for slot := grid.Owner(1); slot <= grid.MaxPlayers; slot++ {
		if e.players[slot] != nil {
			continue
		}
		p := &Player{
			Slot:     slot,
			Addr:     addr,
			Session:  uuid.New(),
			JoinedAt: now,
			LastSeen: now,
		}
		e.players[slot] = p
		e.byAddr[addr.String()] = slot
		if e.phase == PhaseWaiting {
			e.phase = PhaseInProgress
		}
		res.Accepted, res.Slot, res.Session = true, slot, p.Session
		return res
	}
	return res
}

// Touch refreshes the liveness of addr and returns its slot.
func (e *Engine) Touch(addr net.Addr, now time.Time) (grid.Owner, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	slot, ok := e.byAddr[addr.String()]
	if !ok {
		return grid.Empty, false
	}
	e.players[slot].LastSeen = now
	return slot, true
}

// ApplyEvent arbitrates one claim from addr in server receipt order.
func (e *Engine) ApplyEvent(addr net.Addr, ev Event, now time.Time) EventResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	res := EventResult{Slot: ev.Slot, Cell: ev.Cell}

	if !ev.Slot.IsPlayer() || e.players[ev.Slot] == nil {
		res.Err = ErrUnknownSlot
		return res
	}
	p := e.players[ev.Slot]
	if p.Addr.String() != addr.String() {
		res.Err = ErrNotOwner
		return res
	}
	p.LastSeen = now

	if !grid.ValidIndex(ev.Cell) {
		res.Err = ErrOutOfBounds
		return res
	}
	if ev.Seq <= p.Watermark {
		res.Err = ErrDuplicate
		return res
	}

	p.Watermark = ev.Seq
	e.order++
	res.Order = e.order

	switch {
	case e.phase == PhaseComplete:
		res.Verdict = VerdictRoundOver
	case !e.grid.Claim(ev.Cell, ev.Slot):
		res.Verdict = VerdictCellOwned
	default:
		res.Verdict = VerdictApplied
		e.lastClaim[ev.Slot] = e.order
		if e.grid.Full() {
			res.Completed = true
			e.complete()
		}
	}
	return res
}

// complete records the finished round; must be called with mu held.
func (e *Engine) complete() {
	counts := e.grid.Counts()

	var over GameOver
	over.Round = e.round
	for s := grid.Owner(1); s <= grid.MaxPlayers; s++ {
		over.Claims[s-1] = uint8(counts[s])
		if counts[s] == 0 {
			continue
		}
		best := over.Winner
		if best == grid.Empty ||
			counts[s] > counts[best] ||
			(counts[s] == counts[best] && e.lastClaim[s] < e.lastClaim[best]) {
			over.Winner = s
		}
	}

	e.phase = PhaseComplete
	e.pending = &over
}

// Tick expires idle players, emits a pending game-over followed by the board
// reset, and produces the next snapshot.
func (e *Engine) Tick(now time.Time) TickResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	var res TickResult
	res.Expired = e.expireLocked(now)

	if e.pending != nil {
		res.GameOver = e.pending
		e.pending = nil
		e.grid.Reset()
		e.lastClaim = [grid.MaxPlayers + 1]uint64{}
		e.round++
		e.phase = PhaseInProgress
	}
	if len(e.byAddr) == 0 && e.phase == PhaseInProgress {
		e.phase = PhaseWaiting
	}

	e.snapshotID++
	res.Snapshot = grid.Snapshot{
		ID:          e.snapshotID,
		Round:       e.round,
		Roster:      e.rosterLocked(),
		Grid:        e.grid,
		GeneratedAt: now,
	}
	res.Recipients = make([]net.Addr, 0, len(e.byAddr))
	for _, p := range e.players {
		if p != nil {
			res.Recipients = append(res.Recipients, p.Addr)
		}
	}
	return res
}

func (e *Engine) expireLocked(now time.Time) []Player {
	var expired []Player
	for slot, p := range e.players {
		if p == nil || now.Sub(p.LastSeen) <= e.timeout {
			continue
		}
		expired = append(expired, *p)
		delete(e.byAddr, p.Addr.String())
		e.players[slot] = nil
	}
	return expired
}

func (e *Engine) rosterLocked() grid.Roster {
	var r grid.Roster
	for _, p := range e.players {
		if p != nil {
			r = r.With(p.Slot)
		}
	}
	return r
}

// Phase returns the current round state.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Round returns the current round number, starting at 1.
func (e *Engine) Round() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.round
}

// SnapshotID returns the id of the most recent snapshot.
func (e *Engine) SnapshotID() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotID
}

// Grid returns a copy of the board.
func (e *Engine) Grid() grid.Grid {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.grid
}

// Players returns copies of the occupied slots in slot order.
func (e *Engine) Players() []Player {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Player, 0, len(e.byAddr))
	for _, p := range e.players {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out
}

// Player returns a copy of the player in slot.
func (e *Engine) Player(slot grid.Owner) (Player, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !slot.IsPlayer() || e.players[slot] == nil {
		return Player{}, false
	}
	return *e.players[slot], true
}
