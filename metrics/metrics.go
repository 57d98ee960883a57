// Package metrics exposes read-only observation points of the GridClash core.
// Components emit Records to an Observer; nothing in the core ever reads a
// record back, so observers cannot influence protocol behaviour.
package metrics

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Jdcabreradev/gridclash/grid"
	gridlog "github.com/Jdcabreradev/gridclash/logger"
)

// Kind classifies a Record.
type Kind uint8

const (
	KindSnapshotSent Kind = iota + 1
	KindSnapshotReceived
	KindSnapshotAck
	KindEventSent
	KindEventRetried
	KindEventArbitrated
	KindEventOutcome
	KindDatagramDropped
	KindPlayerJoined
	KindPlayerRejected
	KindPlayerExpired
	KindGameOver
	KindTick
)

var kindNames = map[Kind]string{
	KindSnapshotSent:     "snapshot-sent",
	KindSnapshotReceived: "snapshot-received",
	KindSnapshotAck:      "snapshot-ack",
	KindEventSent:        "event-sent",
	KindEventRetried:     "event-retried",
	KindEventArbitrated:  "event-arbitrated",
	KindEventOutcome:     "event-outcome",
	KindDatagramDropped:  "datagram-dropped",
	KindPlayerJoined:     "player-joined",
	KindPlayerRejected:   "player-rejected",
	KindPlayerExpired:    "player-expired",
	KindGameOver:         "game-over",
	KindTick:             "tick",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// MarshalText renders the kind by name in JSON feeds.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Record is one observation. Fields that do not apply to a kind are zero.
type Record struct {
	Origin     uuid.UUID     `json:"origin"`
	Role       string        `json:"role"`
	Kind       Kind          `json:"kind"`
	At         time.Time     `json:"at"`
	SnapshotID uint32        `json:"snapshotId,omitempty"`
	Seq        uint32        `json:"seq,omitempty"`
	Slot       grid.Owner    `json:"slot,omitempty"`
	Cell       int           `json:"cell,omitempty"`
	Latency    time.Duration `json:"latencyNs,omitempty"`
	Count      int           `json:"count,omitempty"`
	Detail     string        `json:"detail,omitempty"`
}

// Observer receives records. Implementations must be safe for concurrent use
// and must not block for long: they are called from network loops.
type Observer interface {
	Observe(Record)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Record)

func (f ObserverFunc) Observe(r Record) { f(r) }

// Nop discards every record.
var Nop Observer = ObserverFunc(func(Record) {})

// Fanout forwards each record to every observer in order.
type Fanout []Observer

func (f Fanout) Observe(r Record) {
	for _, o := range f {
		o.Observe(r)
	}
}

// Stamp fills Origin, Role and At on records emitted by one process.
type Stamp struct {
	Origin uuid.UUID
	Role   string
	Next   Observer
}

func (s Stamp) Observe(r Record) {
	r.Origin = s.Origin
	r.Role = s.Role
	if r.At.IsZero() {
		r.At = time.Now()
	}
	s.Next.Observe(r)
}

// LogObserver writes each record as a DEBUG line.
type LogObserver struct {
	log      *gridlog.Logger
	consumer string
}

// NewLogObserver logs records under consumer.
func NewLogObserver(log *gridlog.Logger, consumer string) *LogObserver {
	return &LogObserver{log: log, consumer: consumer}
}

func (o *LogObserver) Observe(r Record) {
	if !o.log.Enabled(gridlog.DEBUG) {
		return
	}
	o.log.Logf(o.consumer, gridlog.DEBUG, "%s snap=%d seq=%d slot=%d cell=%d latency=%s count=%d %s",
		r.Kind, r.SnapshotID, r.Seq, r.Slot, r.Cell, r.Latency, r.Count, r.Detail)
}

// Recorder keeps every record in memory. Used by tests and short tool runs.
type Recorder struct {
	mu      sync.Mutex
	records []Record
}

func (r *Recorder) Observe(rec Record) {
	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()
}

// Records returns a copy of everything observed so far.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// Filter returns the observed records of kind k.
func (r *Recorder) Filter(k Kind) []Record {
	var out []Record
	for _, rec := range r.Records() {
		if rec.Kind == k {
			out = append(out, rec)
		}
	}
	return out
}
