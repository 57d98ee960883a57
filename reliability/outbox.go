// Package reliability tracks client events until the server's state proves
// them applied, rejected or lost, and resends them on a fixed interval.
package reliability

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Jdcabreradev/gridclash/grid"
)

var (
	ErrSequenceInUse = errors.New("reliability: sequence already pending")
	ErrCellInFlight  = errors.New("reliability: cell already has a pending event")
)

// RetryPolicy bounds how often and how many times a pending event is resent.
type RetryPolicy struct {
	Interval   time.Duration
	MaxRetries int // Resends after the original send
}

// DefaultRetryPolicy returns 200ms between resends and at most 10 resends.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Interval: 200 * time.Millisecond, MaxRetries: 10}
}

// Status is how a pending event was resolved.
type Status uint8

const (
	StatusDelivered Status = iota + 1 // The server applied the claim
	StatusLost                        // Another player owns the cell
	StatusRoundOver                   // The round ended before the claim landed
	StatusFailed                      // Retry budget exhausted without confirmation
)

func (s Status) String() string {
	switch s {
	case StatusDelivered:
		return "delivered"
	case StatusLost:
		return "lost"
	case StatusRoundOver:
		return "round-over"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the single final report for one event. StatusRoundOver means
// the round ended before the event was confirmed: a claim applied just
// before the board filled whose acknowledgement was lost is reported
// round-over, since the reset grid no longer shows it.
type Outcome struct {
	Seq        uint32
	Cell       int
	Status     Status
	Retries    int
	SentAt     time.Time
	ResolvedAt time.Time
}

// Resend is a datagram due for retransmission.
type Resend struct {
	Seq      uint32
	Cell     int
	Retry    int
	Datagram []byte
}

type pending struct {
	seq      uint32
	cell     int
	datagram []byte
	sentAt   time.Time
	lastSent time.Time
	retries  int
}

// Outbox holds events that have been sent but not yet resolved. Every event
// added leaves the outbox through exactly one Outcome.
type Outbox struct {
	mu      sync.Mutex
	policy  RetryPolicy
	pending map[uint32]*pending
	byCell  map[int]uint32
}

// NewOutbox creates an empty outbox using policy.
func NewOutbox(policy RetryPolicy) *Outbox {
	return &Outbox{
		policy:  policy,
		pending: make(map[uint32]*pending),
		byCell:  make(map[int]uint32),
	}
}

// Add tracks an event whose encoded datagram was just sent at now. The
// datagram is kept so resends are byte-identical to the original.
func (o *Outbox) Add(seq uint32, cell int, datagram []byte, now time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.pending[seq]; ok {
		return ErrSequenceInUse
	}
	if _, ok := o.byCell[cell]; ok {
		return ErrCellInFlight
	}
	o.pending[seq] = &pending{
		seq:      seq,
		cell:     cell,
		datagram: datagram,
		sentAt:   now,
		lastSent: now,
	}
	o.byCell[cell] = seq
	return nil
}

// InFlight reports whether cell has a pending event.
func (o *Outbox) InFlight(cell int) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.byCell[cell]
	return ok
}

// Len returns the number of pending events.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

// Due collects events whose resend interval has elapsed at now. Events that
// already used their whole retry budget are removed and reported Failed;
// the others are marked resent and returned for transmission.
func (o *Outbox) Due(now time.Time) ([]Resend, []Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var resends []Resend
	var failed []Outcome
	for _, p := range o.sortedLocked() {
		if now.Sub(p.lastSent) < o.policy.Interval {
			continue
		}
		if p.retries >= o.policy.MaxRetries {
			failed = append(failed, o.resolveLocked(p, StatusFailed, now))
			continue
		}
		p.retries++
		p.lastSent = now
		resends = append(resends, Resend{Seq: p.seq, Cell: p.cell, Retry: p.retries, Datagram: p.datagram})
	}
	return resends, failed
}

// ResolveGrid settles every pending event whose cell is owned in g: owned by
// self means delivered, owned by anyone else means lost.
func (o *Outbox) ResolveGrid(g *grid.Grid, self grid.Owner, now time.Time) []Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()

	var out []Outcome
	for _, p := range o.sortedLocked() {
		switch owner := g.At(p.cell); {
		case owner == self:
			out = append(out, o.resolveLocked(p, StatusDelivered, now))
		case owner != grid.Empty:
			out = append(out, o.resolveLocked(p, StatusLost, now))
		}
	}
	return out
}

// Resolve settles the event seq with status, reporting false if it is no
// longer pending.
func (o *Outbox) Resolve(seq uint32, status Status, now time.Time) (Outcome, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	p, ok := o.pending[seq]
	if !ok {
		return Outcome{}, false
	}
	return o.resolveLocked(p, status, now), true
}

// ResolveAll settles every pending event with status, in sequence order.
func (o *Outbox) ResolveAll(status Status, now time.Time) []Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()

	var out []Outcome
	for _, p := range o.sortedLocked() {
		out = append(out, o.resolveLocked(p, status, now))
	}
	return out
}

func (o *Outbox) resolveLocked(p *pending, status Status, now time.Time) Outcome {
	delete(o.pending, p.seq)
	delete(o.byCell, p.cell)
	return Outcome{
		Seq:        p.seq,
		Cell:       p.cell,
		Status:     status,
		Retries:    p.retries,
		SentAt:     p.sentAt,
		ResolvedAt: now,
	}
}

func (o *Outbox) sortedLocked() []*pending {
	out := make([]*pending, 0, len(o.pending))
	for _, p := range o.pending {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}
