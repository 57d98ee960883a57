// Package client is the player side of GridClash: it joins a server, sends
// claims with retransmission, and reconciles the authoritative snapshots
// into a smoothly presented board.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Jdcabreradev/gridclash/config"
	"github.com/Jdcabreradev/gridclash/grid"
	gridlog "github.com/Jdcabreradev/gridclash/logger"
	"github.com/Jdcabreradev/gridclash/metrics"
	"github.com/Jdcabreradev/gridclash/protocol"
	"github.com/Jdcabreradev/gridclash/reliability"
)

const consumer = "Client"

// Buffer of the Outcomes and GameOvers channels.
const notifyBuffer = 256

var (
	ErrNotJoined    = errors.New("client: not joined")
	ErrServerFull   = errors.New("client: server full")
	ErrJoinTimeout  = errors.New("client: no join response from server")
	ErrOutOfBounds  = errors.New("client: cell out of bounds")
	ErrCellOwned    = errors.New("client: cell already owned")
	ErrClaimPending = errors.New("client: claim for cell already in flight")
)

// Client is one player session. Join must complete before Run starts; after
// that Run is the only reader of the socket while Claim may be called from
// any goroutine.
type Client struct {
	cfg     *config.ClientConfig
	log     *gridlog.Logger
	obs     metrics.Observer
	session uuid.UUID

	conn   *protocol.PacketConn
	server net.Addr

	recon  *Reconciler
	outbox *reliability.Outbox

	seq     atomic.Uint32
	slot    atomic.Uint32
	joined  atomic.Bool
	latency atomic.Int64

	outcomes  chan reliability.Outcome
	gameOvers chan protocol.GameOver
}

// New validates cfg, resolves the server address and opens a local socket.
// log and obs may be nil.
func New(cfg *config.ClientConfig, log *gridlog.Logger, obs metrics.Observer) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("client: invalid config: %w", err)
	}
	server, err := net.ResolveUDPAddr("udp", cfg.ServerAddr)
	if err != nil {
		return nil, fmt.Errorf("client: resolve %s: %w", cfg.ServerAddr, err)
	}
	pc, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return nil, fmt.Errorf("client: open socket: %w", err)
	}
	if obs == nil {
		obs = metrics.Nop
	}

	session := uuid.New()
	return &Client{
		cfg:       cfg,
		log:       log,
		obs:       metrics.Stamp{Origin: session, Role: "client", Next: obs},
		session:   session,
		conn:      protocol.NewPacketConn(pc, cfg.MaxMessageSize),
		server:    server,
		recon:     NewReconciler(cfg.FadeDuration),
		outbox:    reliability.NewOutbox(cfg.RetryPolicy()),
		outcomes:  make(chan reliability.Outcome, notifyBuffer),
		gameOvers: make(chan protocol.GameOver, notifyBuffer),
	}, nil
}

// Session returns the identifier of this client session.
func (c *Client) Session() uuid.UUID { return c.session }

// Slot returns the assigned player slot, or Empty before joining.
func (c *Client) Slot() grid.Owner { return grid.Owner(c.slot.Load()) }

// Joined reports whether the server accepted this client.
func (c *Client) Joined() bool { return c.joined.Load() }

// Reconciler exposes the logical and presented state.
func (c *Client) Reconciler() *Reconciler { return c.recon }

// LastLatency returns the latency of the most recent accepted snapshot.
func (c *Client) LastLatency() time.Duration { return time.Duration(c.latency.Load()) }

// Pending returns the number of claims awaiting an outcome.
func (c *Client) Pending() int { return c.outbox.Len() }

// Outcomes delivers exactly one outcome per claim.
func (c *Client) Outcomes() <-chan reliability.Outcome { return c.outcomes }

// GameOvers delivers round results.
func (c *Client) GameOvers() <-chan protocol.GameOver { return c.gameOvers }

// LocalAddr returns the client's socket address.
func (c *Client) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// Close releases the socket.
func (c *Client) Close() error { return c.conn.Close() }

// Join requests a slot, resending every JoinRetryInterval until the server
// answers or JoinAttempts requests have gone unanswered.
func (c *Client) Join(ctx context.Context) (grid.Owner, error) {
	for attempt := 1; attempt <= c.cfg.JoinAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return grid.Empty, err
		}
		if err := c.send(protocol.NewMessage(&protocol.JoinRequest{})); err != nil {
			c.log.Logf(consumer, gridlog.WARNING, "Join request %d failed: %v", attempt, err)
		}

		deadline := time.Now().Add(c.cfg.JoinRetryInterval)
		for time.Now().Before(deadline) && ctx.Err() == nil {
			if err := c.conn.SetReadDeadline(minTime(deadline, time.Now().Add(c.cfg.PollInterval))); err != nil {
				return grid.Empty, fmt.Errorf("client: set read deadline: %w", err)
			}
			msg, addr, err := c.conn.ReadMessage()
			if err != nil {
				if protocol.IsClosed(err) {
					return grid.Empty, err
				}
				continue
			}
			if !c.fromServer(addr) {
				continue
			}
			resp, ok := msg.Body.(*protocol.JoinResponse)
			if !ok {
				continue
			}
			if resp.Status == protocol.JoinServerFull {
				c.log.Log(consumer, gridlog.WARNING, "Server is full")
				return grid.Empty, ErrServerFull
			}

			c.slot.Store(uint32(resp.Slot))
			c.recon.Seed(resp.Grid, msg.Header.SnapshotID, time.Now())
			c.joined.Store(true)
			c.log.Logf(consumer, gridlog.INFO, "Joined %s as %s (session %s)", c.server, resp.Slot, c.session)
			return resp.Slot, nil
		}
	}
	return grid.Empty, ErrJoinTimeout
}

// Run reads and dispatches server messages and resends due claims until
// ctx is cancelled. It returns nil on cancellation.
func (c *Client) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.PollInterval)); err != nil {
			return fmt.Errorf("client: set read deadline: %w", err)
		}
		msg, addr, err := c.conn.ReadMessage()
		now := time.Now()
		switch {
		case err == nil:
			if c.fromServer(addr) {
				c.handle(msg, now)
			} else {
				c.drop("datagram from " + addr.String())
			}
		case protocol.IsTimeout(err):
		case protocol.IsDecodeError(err):
			c.drop(err.Error())
		case protocol.IsClosed(err):
			return err
		default:
			c.log.Logf(consumer, gridlog.WARNING, "%v", err)
		}
		c.resendDue(now)
	}
	return nil
}

// Claim asks the server for the cell at coord and returns the event
// sequence number. The result arrives later on Outcomes.
func (c *Client) Claim(coord grid.Coord) (uint32, error) {
	if !c.joined.Load() {
		return 0, ErrNotJoined
	}
	if !coord.InBounds() {
		return 0, ErrOutOfBounds
	}
	cell := coord.Index()
	st := c.recon.State()
	if st.Grid.At(cell) != grid.Empty {
		return 0, ErrCellOwned
	}
	if c.outbox.InFlight(cell) {
		return 0, ErrClaimPending
	}

	msg := protocol.NewMessage(&protocol.Event{
		Slot:       c.Slot(),
		Action:     protocol.ActionClaim,
		Cell:       uint16(cell),
		ClientTime: protocol.NowMillis(),
	})
	msg.Header.SnapshotID = st.SnapshotID
	msg.Header.Sequence = c.seq.Add(1)
	msg.Header.SetTimestampIfZero()
	data, err := protocol.Encode(msg)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	if err := c.outbox.Add(msg.Header.Sequence, cell, data, now); err != nil {
		if errors.Is(err, reliability.ErrCellInFlight) {
			return 0, ErrClaimPending
		}
		return 0, err
	}
	if err := c.conn.WriteDatagram(data, c.server); err != nil {
		c.log.Logf(consumer, gridlog.WARNING, "Claim %s send failed, will retry: %v", coord, err)
	}
	c.obs.Observe(metrics.Record{Kind: metrics.KindEventSent, Seq: msg.Header.Sequence, Slot: c.Slot(), Cell: cell})
	return msg.Header.Sequence, nil
}

func (c *Client) handle(msg *protocol.Message, now time.Time) {
	switch body := msg.Body.(type) {
	case *protocol.Snapshot:
		c.handleSnapshot(&msg.Header, body, now)
	case *protocol.EventAck:
		c.handleEventAck(body, now)
	case *protocol.GameOver:
		c.handleGameOver(body, now)
	case *protocol.JoinResponse:
		// Late answer to a resent join request.
	default:
		c.drop("unexpected " + msg.Type().String())
	}
}

func (c *Client) handleSnapshot(h *protocol.Header, snap *protocol.Snapshot, now time.Time) {
	prev := c.recon.State()
	if !c.recon.Accept(LogicalState{
		SnapshotID: h.SnapshotID,
		Round:      snap.Round,
		Roster:     snap.Roster,
		Grid:       snap.Grid,
		ServerTime: h.Time(),
		ReceivedAt: now,
	}) {
		c.log.Logf(consumer, gridlog.DEBUG, "Ignored stale snapshot %d", h.SnapshotID)
		return
	}

	latency := Latency(h, now)
	c.latency.Store(int64(latency))
	if changed := prev.Grid.Diff(&snap.Grid); changed > 0 {
		c.log.Logf(consumer, gridlog.DEBUG, "Snapshot %d changed %d cells", h.SnapshotID, changed)
	}

	ack := protocol.NewMessage(&protocol.SnapshotAck{ServerTime: h.Timestamp, ReceivedAt: uint64(now.UnixMilli())})
	ack.Header.SnapshotID = h.SnapshotID
	if err := c.send(ack); err != nil {
		c.log.Logf(consumer, gridlog.WARNING, "Snapshot ack failed: %v", err)
	}

	c.obs.Observe(metrics.Record{
		Kind:       metrics.KindSnapshotReceived,
		SnapshotID: h.SnapshotID,
		Slot:       c.Slot(),
		Latency:    latency,
		Count:      c.recon.Divergence(),
	})

	for _, out := range c.outbox.ResolveGrid(&snap.Grid, c.Slot(), now) {
		c.emit(out)
	}
}

func (c *Client) handleEventAck(ack *protocol.EventAck, now time.Time) {
	status := reliability.StatusDelivered
	switch ack.Status {
	case protocol.AckCellOwned:
		status = reliability.StatusLost
	case protocol.AckRoundOver:
		status = reliability.StatusRoundOver
	}
	if out, ok := c.outbox.Resolve(ack.EventSeq, status, now); ok {
		c.emit(out)
	}
}

// handleGameOver settles every claim still pending as round-over. The grid
// is reset before the next snapshot, so a claim whose event-ack was lost
// cannot be confirmed any more and is reported round-over even if it landed.
func (c *Client) handleGameOver(over *protocol.GameOver, now time.Time) {
	for _, out := range c.outbox.ResolveAll(reliability.StatusRoundOver, now) {
		c.emit(out)
	}
	c.log.Logf(consumer, gridlog.INFO, "Round %d over, winner %s, claims %v", over.Round, over.Winner, over.Claims)
	c.obs.Observe(metrics.Record{Kind: metrics.KindGameOver, Slot: over.Winner, Count: int(over.Round)})

	select {
	case c.gameOvers <- *over:
	default:
		c.log.Logf(consumer, gridlog.ERROR, "Game-over channel full, round %d result not delivered", over.Round)
	}
}

func (c *Client) resendDue(now time.Time) {
	resends, failed := c.outbox.Due(now)
	for _, r := range resends {
		if err := c.conn.WriteDatagram(r.Datagram, c.server); err != nil {
			c.log.Logf(consumer, gridlog.WARNING, "Resend of event %d failed: %v", r.Seq, err)
		}
		c.obs.Observe(metrics.Record{Kind: metrics.KindEventRetried, Seq: r.Seq, Cell: r.Cell, Count: r.Retry})
	}
	for _, out := range failed {
		c.emit(out)
	}
}

// emit reports an outcome on the channel and as a metric record.
func (c *Client) emit(out reliability.Outcome) {
	c.obs.Observe(metrics.Record{
		Kind:    metrics.KindEventOutcome,
		Seq:     out.Seq,
		Slot:    c.Slot(),
		Cell:    out.Cell,
		Latency: out.ResolvedAt.Sub(out.SentAt),
		Count:   out.Retries,
		Detail:  out.Status.String(),
	})
	if out.Status == reliability.StatusFailed {
		c.log.Logf(consumer, gridlog.WARNING, "Claim of %s failed after %d retries", grid.CoordOf(out.Cell), out.Retries)
	}

	select {
	case c.outcomes <- out:
	default:
		c.log.Logf(consumer, gridlog.ERROR, "Outcome channel full, event %d (%s) not delivered", out.Seq, out.Status)
	}
}

// send stamps the next sequence number on msg and writes it to the server.
func (c *Client) send(msg *protocol.Message) error {
	msg.Header.Sequence = c.seq.Add(1)
	msg.Header.SetTimestampIfZero()
	return c.conn.WriteMessage(msg, c.server)
}

func (c *Client) drop(reason string) {
	c.obs.Observe(metrics.Record{Kind: metrics.KindDatagramDropped, Detail: reason})
	c.log.Logf(consumer, gridlog.DEBUG, "Dropped datagram: %s", reason)
}

// fromServer matches the sender against the resolved server address. A
// server address without a host (":9999") or with an unspecified one
// matches any sender on the server port.
func (c *Client) fromServer(addr net.Addr) bool {
	ua, ok := addr.(*net.UDPAddr)
	su := c.server.(*net.UDPAddr)
	if !ok {
		return addr.String() == c.server.String()
	}
	if ua.Port != su.Port {
		return false
	}
	return len(su.IP) == 0 || su.IP.IsUnspecified() || ua.IP.Equal(su.IP)
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
