// Package server runs the authoritative GridClash endpoint: a receive loop
// that feeds the arbiter and a broadcast loop that sends snapshots and
// game-over notices at a fixed rate.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/Jdcabreradev/gridclash/arbiter"
	"github.com/Jdcabreradev/gridclash/config"
	"github.com/Jdcabreradev/gridclash/grid"
	gridlog "github.com/Jdcabreradev/gridclash/logger"
	"github.com/Jdcabreradev/gridclash/metrics"
	"github.com/Jdcabreradev/gridclash/protocol"
	"github.com/Jdcabreradev/gridclash/reliability"
)

const consumer = "Server"

// Limiters for addresses that never joined are forgotten past this size.
const maxJoinLimiters = 1024

// ErrAlreadyServing is returned by a second concurrent call to Serve.
var ErrAlreadyServing = errors.New("server: already serving")

// Server is one authoritative server instance. Create it with New, bind it
// with Listen (or let Serve do it) and stop it by cancelling Serve's context.
type Server struct {
	cfg    *config.ServerConfig
	log    *gridlog.Logger
	obs    metrics.Observer
	engine *arbiter.Engine
	id     uuid.UUID

	conn    *protocol.PacketConn
	seq     atomic.Uint32
	running atomic.Bool

	limMu    sync.Mutex
	limiters map[string]*rate.Limiter
	dropLog  rate.Sometimes
}

// New validates cfg and builds a server. log and obs may be nil.
func New(cfg *config.ServerConfig, log *gridlog.Logger, obs metrics.Observer) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("server: invalid config: %w", err)
	}
	if obs == nil {
		obs = metrics.Nop
	}
	id := uuid.New()
	return &Server{
		cfg:      cfg,
		log:      log,
		obs:      metrics.Stamp{Origin: id, Role: "server", Next: obs},
		engine:   arbiter.New(cfg.PlayerTimeout),
		id:       id,
		limiters: make(map[string]*rate.Limiter),
		dropLog:  rate.Sometimes{Interval: time.Second},
	}, nil
}

// ID returns the instance identifier attached to logs and metric records.
func (s *Server) ID() uuid.UUID { return s.id }

// Engine exposes the arbiter for inspection.
func (s *Server) Engine() *arbiter.Engine { return s.engine }

// Listen binds the configured UDP address.
func (s *Server) Listen() error {
	pc, err := net.ListenPacket("udp", s.cfg.Address())
	if err != nil {
		return fmt.Errorf("server: bind %s: %w", s.cfg.Address(), err)
	}
	s.conn = protocol.NewPacketConn(pc, s.cfg.MaxMessageSize)
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Serve runs the receive and broadcast loops until ctx is cancelled, then
// closes the socket. Each loop finishes the iteration in progress before it
// returns. A cancelled context is a clean shutdown and yields nil.
func (s *Server) Serve(ctx context.Context) error {
	if s.conn == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyServing
	}
	defer s.running.Store(false)

	s.log.Logf(consumer, gridlog.INFO, "Server %s listening on %s (broadcast every %s, player timeout %s)",
		s.id, s.Addr(), s.cfg.BroadcastPeriod, s.cfg.PlayerTimeout)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.receiveLoop(ctx)
	}()

	err := reliability.Every(ctx, s.cfg.BroadcastPeriod, s.broadcast)
	wg.Wait()

	if cerr := s.conn.Close(); cerr != nil {
		s.log.Logf(consumer, gridlog.WARNING, "Failed to close socket: %v", cerr)
	}
	s.log.Log(consumer, gridlog.INFO, "Server stopped")

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (s *Server) receiveLoop(ctx context.Context) {
	for ctx.Err() == nil {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.PollInterval)); err != nil {
			s.log.Logf(consumer, gridlog.ERROR, "Failed to set read deadline: %v", err)
			return
		}
		msg, addr, err := s.conn.ReadMessage()
		switch {
		case err == nil:
			s.handle(msg, addr, time.Now())
		case protocol.IsTimeout(err):
		case protocol.IsDecodeError(err):
			s.drop(addr, err.Error())
		case protocol.IsClosed(err):
			return
		default:
			s.log.Logf(consumer, gridlog.WARNING, "%v", err)
		}
	}
}

func (s *Server) handle(msg *protocol.Message, addr net.Addr, now time.Time) {
	switch body := msg.Body.(type) {
	case *protocol.JoinRequest:
		s.handleJoin(addr, now)
	case *protocol.Event:
		s.handleEvent(msg.Header, body, addr, now)
	case *protocol.SnapshotAck:
		s.handleSnapshotAck(msg.Header, body, addr, now)
	default:
		s.drop(addr, "unexpected "+msg.Type().String())
	}
}

func (s *Server) handleJoin(addr net.Addr, now time.Time) {
	if !s.joinLimiter(addr).Allow() {
		s.drop(addr, "join rate limited")
		return
	}

	res := s.engine.Join(addr, now)
	resp := &protocol.JoinResponse{Status: protocol.JoinServerFull, Grid: res.Grid}
	if res.Accepted {
		resp.Status, resp.Slot = protocol.JoinAccepted, res.Slot
	}
	s.send(s.message(resp, res.SnapshotID, now), addr)

	switch {
	case !res.Accepted:
		s.log.Logf(consumer, gridlog.WARNING, "Rejected join from %s: server full", addr)
		s.obs.Observe(metrics.Record{Kind: metrics.KindPlayerRejected, Detail: addr.String()})
	case res.Rejoin:
		s.log.Logf(consumer, gridlog.DEBUG, "Repeated join from %s, slot %s", addr, res.Slot)
	default:
		s.log.Logf(consumer, gridlog.INFO, "%s joined from %s (session %s)", res.Slot, addr, res.Session)
		s.obs.Observe(metrics.Record{Kind: metrics.KindPlayerJoined, Slot: res.Slot, Detail: addr.String()})
	}
}

func (s *Server) handleEvent(h protocol.Header, ev *protocol.Event, addr net.Addr, now time.Time) {
	if ev.Action != protocol.ActionClaim {
		s.drop(addr, "unsupported action "+ev.Action.String())
		return
	}

	res := s.engine.ApplyEvent(addr, arbiter.Event{
		Slot:       ev.Slot,
		Seq:        h.Sequence,
		Cell:       int(ev.Cell),
		ClientTime: ev.ClientTime,
	}, now)
	if res.Err != nil {
		s.drop(addr, res.Err.Error())
		return
	}

	s.obs.Observe(metrics.Record{
		Kind:   metrics.KindEventArbitrated,
		Seq:    h.Sequence,
		Slot:   res.Slot,
		Cell:   res.Cell,
		Count:  int(res.Order),
		Detail: res.Verdict.String(),
	})
	s.send(s.message(&protocol.EventAck{EventSeq: h.Sequence, Status: ackStatus(res.Verdict)}, s.engine.SnapshotID(), now), addr)

	if res.Completed {
		s.log.Logf(consumer, gridlog.INFO, "Board full after %s claimed %s", res.Slot, grid.CoordOf(res.Cell))
	}
}

func (s *Server) handleSnapshotAck(h protocol.Header, ack *protocol.SnapshotAck, addr net.Addr, now time.Time) {
	slot, ok := s.engine.Touch(addr, now)
	if !ok {
		s.drop(addr, "snapshot-ack from unknown address")
		return
	}
	rtt := now.Sub(time.UnixMilli(int64(ack.ServerTime)))
	s.obs.Observe(metrics.Record{
		Kind:       metrics.KindSnapshotAck,
		SnapshotID: h.SnapshotID,
		Slot:       slot,
		Latency:    rtt,
	})
}

// broadcast runs one tick: expiry, a pending game-over, then the snapshot.
// Every datagram is encoded once and sent to all recipients after the
// engine lock has been released.
func (s *Server) broadcast(now time.Time) {
	tick := s.engine.Tick(now)

	for _, p := range tick.Expired {
		s.log.Logf(consumer, gridlog.INFO, "%s at %s timed out", p.Slot, p.Addr)
		s.obs.Observe(metrics.Record{Kind: metrics.KindPlayerExpired, Slot: p.Slot, Detail: p.Addr.String()})
	}

	if over := tick.GameOver; over != nil {
		msg := s.message(&protocol.GameOver{Winner: over.Winner, Round: over.Round, Claims: over.Claims}, tick.Snapshot.ID, now)
		s.sendAll(msg, tick.Recipients)
		s.log.Logf(consumer, gridlog.INFO, "Round %d over, winner %s, claims %v", over.Round, over.Winner, over.Claims)
		s.obs.Observe(metrics.Record{Kind: metrics.KindGameOver, Slot: over.Winner, Count: int(over.Round)})
	}

	snap := tick.Snapshot
	msg := s.message(&protocol.Snapshot{Roster: snap.Roster, Round: snap.Round, Grid: snap.Grid}, snap.ID, snap.GeneratedAt)
	s.sendAll(msg, tick.Recipients)
	s.obs.Observe(metrics.Record{
		Kind:       metrics.KindSnapshotSent,
		SnapshotID: snap.ID,
		Count:      len(tick.Recipients),
	})
	s.obs.Observe(metrics.Record{
		Kind:       metrics.KindTick,
		SnapshotID: snap.ID,
		Latency:    time.Since(now),
		Count:      snap.Roster.Count(),
	})
}

// message builds an outgoing message with the next server sequence number.
func (s *Server) message(body protocol.Body, snapshotID uint32, at time.Time) *protocol.Message {
	msg := protocol.NewMessage(body)
	msg.Header.SnapshotID = snapshotID
	msg.Header.Sequence = s.seq.Add(1)
	msg.Header.Timestamp = uint64(at.UnixMilli())
	return msg
}

func (s *Server) sendAll(msg *protocol.Message, to []net.Addr) {
	if len(to) == 0 {
		return
	}
	data, err := protocol.Encode(msg)
	if err != nil {
		s.log.Logf(consumer, gridlog.ERROR, "Failed to encode %s: %v", msg.Type(), err)
		return
	}
	for _, addr := range to {
		s.write(data, addr)
	}
}

func (s *Server) send(msg *protocol.Message, to net.Addr) {
	data, err := protocol.Encode(msg)
	if err != nil {
		s.log.Logf(consumer, gridlog.ERROR, "Failed to encode %s: %v", msg.Type(), err)
		return
	}
	s.write(data, to)
}

func (s *Server) write(data []byte, to net.Addr) {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		if !protocol.IsClosed(err) {
			s.log.Logf(consumer, gridlog.WARNING, "Failed to set write deadline: %v", err)
		}
		return
	}
	if err := s.conn.WriteDatagram(data, to); err != nil && !protocol.IsClosed(err) {
		s.log.Logf(consumer, gridlog.WARNING, "Send to %s failed: %v", to, err)
	}
}

// drop records a discarded datagram. Log lines are throttled; metric
// records are not.
func (s *Server) drop(addr net.Addr, reason string) {
	from := "unknown"
	if addr != nil {
		from = addr.String()
	}
	s.obs.Observe(metrics.Record{Kind: metrics.KindDatagramDropped, Detail: reason})
	s.dropLog.Do(func() {
		s.log.Logf(consumer, gridlog.WARNING, "Dropped datagram from %s: %s", from, reason)
	})
}

// joinLimiter returns the per-address join-request limiter.
func (s *Server) joinLimiter(addr net.Addr) *rate.Limiter {
	key := addr.String()
	s.limMu.Lock()
	defer s.limMu.Unlock()

	lim, ok := s.limiters[key]
	if !ok {
		if len(s.limiters) >= maxJoinLimiters {
			s.limiters = make(map[string]*rate.Limiter)
		}
		lim = rate.NewLimiter(rate.Limit(s.cfg.JoinRate), s.cfg.JoinBurst)
		s.limiters[key] = lim
	}
	return lim
}

func ackStatus(v arbiter.Verdict) protocol.AckStatus {
	switch v {
	case arbiter.VerdictCellOwned:
		return protocol.AckCellOwned
	case arbiter.VerdictRoundOver:
		return protocol.AckRoundOver
	default:
		return protocol.AckApplied
	}
}
