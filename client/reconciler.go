package client

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Jdcabreradev/gridclash/grid"
	"github.com/Jdcabreradev/gridclash/protocol"
)

// LogicalState is the newest authoritative view the client has accepted.
// Values are immutable once published.
type LogicalState struct {
	SnapshotID uint32
	Round      uint32
	Roster     grid.Roster
	Grid       grid.Grid
	ServerTime time.Time // Generation time stamped by the server
	ReceivedAt time.Time
}

// PresentedCell is what the renderer draws for one cell. Level is the
// visibility of Owner, from 0 (hidden) to 1 (fully shown).
type PresentedCell struct {
	Owner grid.Owner
	Level float64
}

// Reconciler keeps the logical state and eases the presented board toward it.
// Accept and Seed are called by the network loop; Step and Presented by the
// render loop; State from anywhere.
type Reconciler struct {
	logical atomic.Pointer[LogicalState]
	fade    time.Duration

	mu        sync.Mutex
	presented [grid.Cells]PresentedCell
}

// NewReconciler creates a reconciler whose presented cells take fade to
// disappear and fade to reappear when their owner changes.
func NewReconciler(fade time.Duration) *Reconciler {
	r := &Reconciler{fade: fade}
	r.logical.Store(&LogicalState{})
	for i := range r.presented {
		r.presented[i].Level = 1
	}
	return r
}

// State returns the current logical state.
func (r *Reconciler) State() *LogicalState {
	return r.logical.Load()
}

// Accept publishes a snapshot if its id is newer than everything accepted
// so far. Stale and duplicate snapshots are ignored.
func (r *Reconciler) Accept(next LogicalState) bool {
	for {
		cur := r.logical.Load()
		if next.SnapshotID <= cur.SnapshotID {
			return false
		}
		if r.logical.CompareAndSwap(cur, &next) {
			return true
		}
	}
}

// Seed installs the board carried by a join response. It only takes effect
// while no snapshot has been accepted.
func (r *Reconciler) Seed(g grid.Grid, snapshotID uint32, receivedAt time.Time) bool {
	cur := r.logical.Load()
	if cur.SnapshotID != 0 {
		return false
	}
	return r.logical.CompareAndSwap(cur, &LogicalState{
		SnapshotID: snapshotID,
		Grid:       g,
		ReceivedAt: receivedAt,
	})
}

// Step advances presentation by dt. A cell whose presented owner differs
// from the logical one fades out, switches owner, then fades back in.
func (r *Reconciler) Step(dt time.Duration) {
	target := &r.logical.Load().Grid
	delta := 1.0
	if r.fade > 0 {
		delta = float64(dt) / float64(r.fade)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.presented {
		pc := &r.presented[i]
		want := target[i]
		switch {
		case pc.Owner != want && (pc.Owner == grid.Empty || pc.Level <= delta):
			pc.Owner = want
			pc.Level = 0
			if want == grid.Empty {
				pc.Level = 1
			}
		case pc.Owner != want:
			pc.Level -= delta
		case pc.Level < 1:
			pc.Level += delta
			if pc.Level > 1 {
				pc.Level = 1
			}
		}
		if r.fade <= 0 && pc.Owner == want {
			pc.Level = 1
		}
	}
}

// Presented returns a copy of the presented board.
func (r *Reconciler) Presented() [grid.Cells]PresentedCell {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.presented
}

// Divergence counts presented cells that do not yet fully show their
// logical owner.
func (r *Reconciler) Divergence() int {
	target := &r.logical.Load().Grid
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for i, pc := range r.presented {
		if pc.Owner != target[i] || pc.Level < 1 {
			n++
		}
	}
	return n
}

// Latency is the one-way delay of a message: receive time minus the
// server's header timestamp. It is negative when clocks are skewed.
func Latency(h *protocol.Header, receivedAt time.Time) time.Duration {
	return receivedAt.Sub(h.Time())
}
