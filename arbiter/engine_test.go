package arbiter

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/Jdcabreradev/gridclash/grid"
)

var t0 = time.Unix(1700000000, 0)

func addr(port int) net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
}

func joinN(t *testing.T, e *Engine, n int) []net.Addr {
	t.Helper()
	addrs := make([]net.Addr, n)
	for i := range addrs {
		addrs[i] = addr(40000 + i)
		res := e.Join(addrs[i], t0)
		if !res.Accepted || res.Slot != grid.Owner(i+1) {
			t.Fatalf("Join %d = %+v", i, res)
		}
	}
	return addrs
}

func TestJoinAssignsLowestFreeSlot(t *testing.T) {
	e := New(time.Second)
	if e.Phase() != PhaseWaiting {
		t.Fatalf("initial phase = %v", e.Phase())
	}
	addrs := joinN(t, e, 4)
	if e.Phase() != PhaseInProgress {
		t.Errorf("phase after join = %v", e.Phase())
	}

	if res := e.Join(addr(50000), t0); res.Accepted {
		t.Errorf("fifth join accepted: %+v", res)
	}

	again := e.Join(addrs[2], t0)
	if !again.Accepted || !again.Rejoin || again.Slot != 3 {
		t.Errorf("rejoin = %+v", again)
	}
	p, _ := e.Player(3)
	if again.Session != p.Session {
		t.Error("rejoin changed session")
	}
}

func TestFirstWriterWins(t *testing.T) {
	e := New(time.Second)
	addrs := joinN(t, e, 2)

	r1 := e.ApplyEvent(addrs[0], Event{Slot: 1, Seq: 1, Cell: 10}, t0)
	r2 := e.ApplyEvent(addrs[1], Event{Slot: 2, Seq: 1, Cell: 10}, t0)
	if r1.Err != nil || r1.Verdict != VerdictApplied {
		t.Fatalf("first claim = %+v", r1)
	}
	if r2.Err != nil || r2.Verdict != VerdictCellOwned {
		t.Fatalf("second claim = %+v", r2)
	}
	if r2.Order <= r1.Order {
		t.Errorf("order not increasing: %d then %d", r1.Order, r2.Order)
	}
	g := e.Grid()
	if g.At(10) != 1 {
		t.Errorf("cell 10 owner = %v, want P1", g.At(10))
	}
	if p, _ := e.Player(2); p.Watermark != 1 {
		t.Errorf("loser watermark = %d, want 1", p.Watermark)
	}
}

func TestReplayNeverMutates(t *testing.T) {
	e := New(time.Second)
	addrs := joinN(t, e, 1)

	if r := e.ApplyEvent(addrs[0], Event{Slot: 1, Seq: 5, Cell: 3}, t0); r.Err != nil {
		t.Fatal(r.Err)
	}
	before := e.Grid()
	for _, ev := range []Event{
		{Slot: 1, Seq: 5, Cell: 3},
		{Slot: 1, Seq: 5, Cell: 4},
		{Slot: 1, Seq: 2, Cell: 9},
	} {
		r := e.ApplyEvent(addrs[0], ev, t0)
		if !errors.Is(r.Err, ErrDuplicate) {
			t.Errorf("replay %+v err = %v, want ErrDuplicate", ev, r.Err)
		}
	}
	if after := e.Grid(); after != before {
		t.Error("replayed events mutated the grid")
	}
}

func TestRejections(t *testing.T) {
	e := New(time.Second)
	addrs := joinN(t, e, 2)

	tests := []struct {
		name string
		from net.Addr
		ev   Event
		want error
	}{
		{"empty slot", addrs[0], Event{Slot: 3, Seq: 1, Cell: 0}, ErrUnknownSlot},
		{"zero slot", addrs[0], Event{Slot: 0, Seq: 1, Cell: 0}, ErrUnknownSlot},
		{"invalid slot", addrs[0], Event{Slot: 9, Seq: 1, Cell: 0}, ErrUnknownSlot},
		{"spoofed slot", addrs[1], Event{Slot: 1, Seq: 1, Cell: 0}, ErrNotOwner},
		{"stranger", addr(50001), Event{Slot: 1, Seq: 1, Cell: 0}, ErrNotOwner},
		{"negative cell", addrs[0], Event{Slot: 1, Seq: 1, Cell: -1}, ErrOutOfBounds},
		{"cell 64", addrs[0], Event{Slot: 1, Seq: 1, Cell: 64}, ErrOutOfBounds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := e.ApplyEvent(tt.from, tt.ev, t0)
			if !errors.Is(r.Err, tt.want) {
				t.Errorf("err = %v, want %v", r.Err, tt.want)
			}
		})
	}

	if g := e.Grid(); g.Claimed() != 0 {
		t.Errorf("rejected events claimed %d cells", g.Claimed())
	}
	if p, _ := e.Player(1); p.Watermark != 0 {
		t.Errorf("rejected events advanced watermark to %d", p.Watermark)
	}
}

func TestRoundCompletionEmitsGameOverOnce(t *testing.T) {
	e := New(time.Minute)
	addrs := joinN(t, e, 2)

	for i := 0; i < grid.Cells; i++ {
		slot := 1 + i%2
		if i < 40 {
			slot = 1
		}
		r := e.ApplyEvent(addrs[slot-1], Event{Slot: grid.Owner(slot), Seq: uint32(i + 1), Cell: i}, t0)
		if r.Err != nil || r.Verdict != VerdictApplied {
			t.Fatalf("claim %d = %+v", i, r)
		}
		if r.Completed != (i == grid.Cells-1) {
			t.Fatalf("claim %d Completed = %v", i, r.Completed)
		}
	}
	if e.Phase() != PhaseComplete {
		t.Fatalf("phase = %v, want Complete", e.Phase())
	}

	late := e.ApplyEvent(addrs[1], Event{Slot: 2, Seq: 100, Cell: 0}, t0)
	if late.Err != nil || late.Verdict != VerdictRoundOver {
		t.Fatalf("event during Complete = %+v", late)
	}
	if p, _ := e.Player(2); p.Watermark != 100 {
		t.Errorf("watermark after round-over = %d, want 100", p.Watermark)
	}

	tick := e.Tick(t0)
	if tick.GameOver == nil {
		t.Fatal("first tick after completion has no game-over")
	}
	if tick.GameOver.Winner != 1 || tick.GameOver.Round != 1 {
		t.Errorf("game-over = %+v", tick.GameOver)
	}
	if tick.GameOver.Claims != [grid.MaxPlayers]uint8{52, 12, 0, 0} {
		t.Errorf("claims = %v", tick.GameOver.Claims)
	}
	if tick.Snapshot.Grid.Claimed() != 0 || tick.Snapshot.Round != 2 {
		t.Errorf("snapshot after reset: claimed %d round %d", tick.Snapshot.Grid.Claimed(), tick.Snapshot.Round)
	}
	if e.Phase() != PhaseInProgress {
		t.Errorf("phase after reset = %v", e.Phase())
	}

	if again := e.Tick(t0); again.GameOver != nil {
		t.Error("game-over emitted twice")
	}

	r := e.ApplyEvent(addrs[0], Event{Slot: 1, Seq: 65, Cell: 0}, t0)
	if r.Verdict != VerdictApplied {
		t.Errorf("claim in new round = %+v", r)
	}
}

// Four players each take 16 cells; the player whose 16th claim was
// arbitrated first wins the tie.
func TestTieBreakByReceiptOrder(t *testing.T) {
	e := New(time.Minute)
	addrs := joinN(t, e, 4)

	// Round-robin 1,2,3,4 except the last lap goes 3,1,4,2.
	seq := [5]uint32{}
	cell := 0
	claim := func(slot grid.Owner) {
		seq[slot]++
		r := e.ApplyEvent(addrs[slot-1], Event{Slot: slot, Seq: seq[slot], Cell: cell}, t0)
		if r.Err != nil || r.Verdict != VerdictApplied {
			t.Fatalf("claim cell %d by %v = %+v", cell, slot, r)
		}
		cell++
	}
	for lap := 0; lap < 15; lap++ {
		for s := grid.Owner(1); s <= 4; s++ {
			claim(s)
		}
	}
	for _, s := range []grid.Owner{3, 1, 4, 2} {
		claim(s)
	}

	tick := e.Tick(t0)
	if tick.GameOver == nil {
		t.Fatal("no game-over")
	}
	if tick.GameOver.Winner != 3 {
		t.Errorf("winner = %v, want P3", tick.GameOver.Winner)
	}
	if tick.GameOver.Claims != [grid.MaxPlayers]uint8{16, 16, 16, 16} {
		t.Errorf("claims = %v", tick.GameOver.Claims)
	}
}

func TestExpiryFreesSlotKeepsGrid(t *testing.T) {
	e := New(time.Second)
	addrs := joinN(t, e, 2)
	e.ApplyEvent(addrs[0], Event{Slot: 1, Seq: 1, Cell: 7}, t0)

	e.Touch(addrs[1], t0.Add(1500*time.Millisecond))
	tick := e.Tick(t0.Add(2 * time.Second))
	if len(tick.Expired) != 1 || tick.Expired[0].Slot != 1 {
		t.Fatalf("expired = %+v", tick.Expired)
	}
	if tick.Snapshot.Grid.At(7) != 1 {
		t.Error("expiry cleared the departed player's cell")
	}
	if tick.Snapshot.Roster.Has(1) || !tick.Snapshot.Roster.Has(2) {
		t.Errorf("roster = %08b", tick.Snapshot.Roster)
	}
	if len(tick.Recipients) != 1 {
		t.Errorf("recipients = %v", tick.Recipients)
	}

	res := e.Join(addr(50002), t0.Add(2*time.Second))
	if !res.Accepted || res.Slot != 1 {
		t.Errorf("join after expiry = %+v", res)
	}
	if res.Grid.At(7) != 1 {
		t.Error("join response lost existing grid")
	}
}

func TestAllPlayersExpireReturnsToWaiting(t *testing.T) {
	e := New(time.Second)
	joinN(t, e, 1)
	e.Tick(t0.Add(5 * time.Second))
	if e.Phase() != PhaseWaiting {
		t.Errorf("phase = %v, want Waiting", e.Phase())
	}
	if len(e.Players()) != 0 {
		t.Error("players remain after expiry")
	}
}

func TestSnapshotIDsStrictlyIncrease(t *testing.T) {
	e := New(time.Second)
	joinN(t, e, 1)
	var last uint32
	for i := 0; i < 100; i++ {
		s := e.Tick(t0).Snapshot
		if s.ID <= last {
			t.Fatalf("snapshot id %d after %d", s.ID, last)
		}
		last = s.ID
	}
	if e.SnapshotID() != last {
		t.Errorf("SnapshotID() = %d, want %d", e.SnapshotID(), last)
	}
}
