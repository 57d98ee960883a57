package client

import (
	"testing"
	"time"

	"github.com/Jdcabreradev/gridclash/grid"
	"github.com/Jdcabreradev/gridclash/protocol"
)

func stateWith(id uint32, cell int, owner grid.Owner) LogicalState {
	var g grid.Grid
	g.Claim(cell, owner)
	return LogicalState{SnapshotID: id, Round: 1, Grid: g}
}

func TestAcceptDiscardsStaleSnapshots(t *testing.T) {
	orders := map[string][]uint32{
		"in order": {4, 5},
		"reversed": {5, 4},
	}
	for name, ids := range orders {
		t.Run(name, func(t *testing.T) {
			r := NewReconciler(0)
			for _, id := range ids {
				r.Accept(stateWith(id, int(id), 1))
			}
			st := r.State()
			if st.SnapshotID != 5 {
				t.Errorf("SnapshotID = %d, want 5", st.SnapshotID)
			}
			if st.Grid.At(5) != 1 || st.Grid.At(4) != grid.Empty {
				t.Error("grid is not from snapshot 5")
			}
		})
	}
}

func TestAcceptRejectsDuplicate(t *testing.T) {
	r := NewReconciler(0)
	if !r.Accept(stateWith(3, 0, 1)) {
		t.Fatal("first snapshot rejected")
	}
	if r.Accept(stateWith(3, 1, 2)) {
		t.Error("duplicate id accepted")
	}
}

func TestSeedOnlyBeforeFirstSnapshot(t *testing.T) {
	r := NewReconciler(0)
	var g grid.Grid
	g.Claim(10, 3)
	if !r.Seed(g, 0, time.Now()) {
		t.Fatal("seed on fresh reconciler failed")
	}
	if r.State().Grid.At(10) != 3 {
		t.Error("seed grid not installed")
	}

	r.Accept(stateWith(7, 0, 1))
	if r.Seed(grid.Grid{}, 2, time.Now()) {
		t.Error("seed overwrote an accepted snapshot")
	}
	if r.State().SnapshotID != 7 {
		t.Errorf("SnapshotID = %d", r.State().SnapshotID)
	}
}

func TestPresentationConverges(t *testing.T) {
	fade := 100 * time.Millisecond
	r := NewReconciler(fade)
	r.Accept(stateWith(1, 12, 2))

	if d := r.Divergence(); d != 1 {
		t.Fatalf("Divergence = %d, want 1", d)
	}

	r.Step(40 * time.Millisecond)
	pc := r.Presented()[12]
	if pc.Owner != 2 || pc.Level >= 1 {
		t.Errorf("after first step = %+v", pc)
	}

	for i := 0; i < 5; i++ {
		r.Step(40 * time.Millisecond)
	}
	if d := r.Divergence(); d != 0 {
		t.Fatalf("Divergence after fade = %d", d)
	}
	if pc := r.Presented()[12]; pc.Owner != 2 || pc.Level != 1 {
		t.Errorf("converged cell = %+v", pc)
	}
}

func TestPresentationFadesOutBeforeSwap(t *testing.T) {
	fade := 100 * time.Millisecond
	r := NewReconciler(fade)
	r.Accept(stateWith(1, 0, 1))
	for i := 0; i < 10; i++ {
		r.Step(fade)
	}

	// The round resets: owner 1 fades out before the cell shows empty.
	r.Accept(LogicalState{SnapshotID: 2, Round: 2})
	r.Step(fade / 2)
	if pc := r.Presented()[0]; pc.Owner != 1 || pc.Level != 0.5 {
		t.Errorf("mid fade-out = %+v", pc)
	}
	r.Step(fade)
	if pc := r.Presented()[0]; pc.Owner != grid.Empty || pc.Level != 1 {
		t.Errorf("after fade-out = %+v", pc)
	}
	if r.Divergence() != 0 {
		t.Error("board did not converge after reset")
	}
}

func TestZeroFadeIsInstant(t *testing.T) {
	r := NewReconciler(0)
	r.Accept(stateWith(1, 63, 4))
	r.Step(time.Millisecond)
	if r.Divergence() != 0 {
		t.Error("zero fade did not converge in one step")
	}
}

func TestLatency(t *testing.T) {
	sent := time.UnixMilli(1700000000000)
	h := &protocol.Header{Timestamp: uint64(sent.UnixMilli())}
	if got := Latency(h, sent.Add(35*time.Millisecond)); got != 35*time.Millisecond {
		t.Errorf("Latency = %s", got)
	}
	if got := Latency(h, sent.Add(-5*time.Millisecond)); got != -5*time.Millisecond {
		t.Errorf("skewed Latency = %s", got)
	}
}
