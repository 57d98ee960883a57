package metrics

import (
	"sync/atomic"
	"time"
)

// Counters aggregates records into running totals.
type Counters struct {
	snapshotsSent     atomic.Uint64
	snapshotsReceived atomic.Uint64
	snapshotAcks      atomic.Uint64
	eventsSent        atomic.Uint64
	eventsRetried     atomic.Uint64
	eventsArbitrated  atomic.Uint64
	delivered         atomic.Uint64
	lost              atomic.Uint64
	roundOver         atomic.Uint64
	failed            atomic.Uint64
	dropped           atomic.Uint64
	joins             atomic.Uint64
	rejections        atomic.Uint64
	expirations       atomic.Uint64
	gamesOver         atomic.Uint64
	latencySamples    atomic.Uint64
	latencySumMicros  atomic.Int64
	latencyMaxMicros  atomic.Int64
	lastLatencyMicros atomic.Int64
	divergenceSum     atomic.Uint64
}

// CountersSnapshot is a point-in-time copy of Counters for JSON output.
type CountersSnapshot struct {
	SnapshotsSent     uint64  `json:"snapshotsSent"`
	SnapshotsReceived uint64  `json:"snapshotsReceived"`
	SnapshotAcks      uint64  `json:"snapshotAcks"`
	EventsSent        uint64  `json:"eventsSent"`
	EventsRetried     uint64  `json:"eventsRetried"`
	EventsArbitrated  uint64  `json:"eventsArbitrated"`
	Delivered         uint64  `json:"delivered"`
	Lost              uint64  `json:"lost"`
	RoundOver         uint64  `json:"roundOver"`
	Failed            uint64  `json:"failed"`
	Dropped           uint64  `json:"dropped"`
	Joins             uint64  `json:"joins"`
	Rejections        uint64  `json:"rejections"`
	Expirations       uint64  `json:"expirations"`
	GamesOver         uint64  `json:"gamesOver"`
	LatencySamples    uint64  `json:"latencySamples"`
	LatencyMeanMs     float64 `json:"latencyMeanMs"`
	LatencyMaxMs      float64 `json:"latencyMaxMs"`
	LatencyLastMs     float64 `json:"latencyLastMs"`
	DivergenceMean    float64 `json:"divergenceMean"` // Presented cells not yet converged, per received snapshot
}

func (c *Counters) Observe(r Record) {
	switch r.Kind {
	case KindSnapshotSent:
		c.snapshotsSent.Add(1)
	case KindSnapshotReceived:
		c.snapshotsReceived.Add(1)
		c.divergenceSum.Add(uint64(r.Count))
		c.recordLatency(r.Latency)
	case KindSnapshotAck:
		c.snapshotAcks.Add(1)
		c.recordLatency(r.Latency)
	case KindEventSent:
		c.eventsSent.Add(1)
	case KindEventRetried:
		c.eventsRetried.Add(1)
	case KindEventArbitrated:
		c.eventsArbitrated.Add(1)
	case KindEventOutcome:
		switch r.Detail {
		case "delivered":
			c.delivered.Add(1)
		case "lost":
			c.lost.Add(1)
		case "round-over":
			c.roundOver.Add(1)
		case "failed":
			c.failed.Add(1)
		}
	case KindDatagramDropped:
		c.dropped.Add(1)
	case KindPlayerJoined:
		c.joins.Add(1)
	case KindPlayerRejected:
		c.rejections.Add(1)
	case KindPlayerExpired:
		c.expirations.Add(1)
	case KindGameOver:
		c.gamesOver.Add(1)
	}
}

func (c *Counters) recordLatency(d time.Duration) {
	micros := d.Microseconds()
	c.latencySamples.Add(1)
	c.latencySumMicros.Add(micros)
	c.lastLatencyMicros.Store(micros)
	for {
		cur := c.latencyMaxMicros.Load()
		if micros <= cur || c.latencyMaxMicros.CompareAndSwap(cur, micros) {
			return
		}
	}
}

// Snapshot returns the current totals.
func (c *Counters) Snapshot() CountersSnapshot {
	s := CountersSnapshot{
		SnapshotsSent:     c.snapshotsSent.Load(),
		SnapshotsReceived: c.snapshotsReceived.Load(),
		SnapshotAcks:      c.snapshotAcks.Load(),
		EventsSent:        c.eventsSent.Load(),
		EventsRetried:     c.eventsRetried.Load(),
		EventsArbitrated:  c.eventsArbitrated.Load(),
		Delivered:         c.delivered.Load(),
		Lost:              c.lost.Load(),
		RoundOver:         c.roundOver.Load(),
		Failed:            c.failed.Load(),
		Dropped:           c.dropped.Load(),
		Joins:             c.joins.Load(),
		Rejections:        c.rejections.Load(),
		Expirations:       c.expirations.Load(),
		GamesOver:         c.gamesOver.Load(),
		LatencySamples:    c.latencySamples.Load(),
		LatencyMaxMs:      float64(c.latencyMaxMicros.Load()) / 1000,
		LatencyLastMs:     float64(c.lastLatencyMicros.Load()) / 1000,
	}
	if s.SnapshotsReceived > 0 {
		s.DivergenceMean = float64(c.divergenceSum.Load()) / float64(s.SnapshotsReceived)
	}
	if s.LatencySamples > 0 {
		s.LatencyMeanMs = float64(c.latencySumMicros.Load()) / float64(s.LatencySamples) / 1000
	}
	return s
}
