package replication

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-mysql-org/go-mysql/mysql"

	"github.com/SisyphusSQ/binrepl/internal/event"
	"github.com/SisyphusSQ/binrepl/internal/gtid"
	"github.com/SisyphusSQ/binrepl/internal/log"
	"github.com/SisyphusSQ/binrepl/internal/metrics"
	"github.com/SisyphusSQ/binrepl/internal/schema"
	"github.com/SisyphusSQ/binrepl/internal/vars"
)

type State int

const (
	StateDisconnected State = iota
	StateAwaitingHandshakeInfo
	StateRegistering
	StateStreaming
	StateClosed
)

var stateNames = [...]string{"disconnected", "awaiting-handshake-info", "registering", "streaming", "closed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// packet markers of the dump stream
const (
	packetOK  = 0x00
	packetEOF = 0xfe
	packetErr = 0xff
)

// Client streams binlog events from a source as a replica. It is not safe
// for concurrent use.
type Client struct {
	opts      Options
	connector Connector
	aux       Auxiliary
	registry  *schema.Registry
	decoder   *event.Decoder
	log       *log.Log

	state     State
	sess      Session
	handshake bool
	checksum  bool

	// pos is the end of the last event handled.
	pos      mysql.Position
	trxStart mysql.Position
	inTrx    bool
	pending  *event.GtidEvent
	gtids    *gtid.Set

	// replay is set after a reconnect. Events up to it were already
	// handled and are not yielded again.
	replay     *mysql.Position
	sessions   int
	reconnects int

	skipped map[uint64]struct{}
	queue   []event.Event
}

func NewClient(opts Options, connector Connector, aux Auxiliary) (*Client, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if connector == nil || aux == nil {
		return nil, fmt.Errorf("%w: connector and auxiliary session are required", vars.InvalidOption)
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	opts.Schema.Strict = opts.Schema.Strict || opts.StrictMetadata

	c := &Client{
		opts:      opts,
		connector: connector,
		aux:       aux,
		registry:  schema.NewRegistry(opts.Schema),
		log:       log.Logger.With(map[string]any{"server_id": opts.ServerID}),
		pos:       opts.StartPos,
		gtids:     gtid.NewSet(),
		skipped:   make(map[uint64]struct{}),
	}
	c.decoder = &event.Decoder{
		VerifyChecksum: opts.VerifyChecksum,
		Registry:       c.registry,
		Location:       opts.Location,
	}
	if opts.GTIDSet != nil {
		c.gtids = opts.GTIDSet.Clone()
	}
	if c.pos.Name != "" && c.pos.Pos < vars.BinlogStartPos {
		c.pos.Pos = vars.BinlogStartPos
	}
	c.trxStart = c.pos
	return c, nil
}

func (c *Client) State() State {
	return c.state
}

// Position is the end of the last event read.
func (c *Client) Position() mysql.Position {
	return c.pos
}

// ResumePosition is where a new client should start so that no
// transaction is split, the start of the open transaction if any.
func (c *Client) ResumePosition() mysql.Position {
	return c.trxStart
}

// GTIDSet returns the committed transactions seen so far, including the
// starting set.
func (c *Client) GTIDSet() *gtid.Set {
	return c.gtids.Clone()
}

// Registry exposes the table metadata of the current binlog file.
func (c *Client) Registry() *schema.Registry {
	return c.registry
}

// Next blocks until the next event. It returns io.EOF once the source ends
// the stream and ErrClosed after Close or a fatal error.
func (c *Client) Next(ctx context.Context) (event.Event, error) {
	for {
		if len(c.queue) > 0 {
			ev := c.queue[0]
			c.queue = c.queue[1:]
			return ev, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var err error
		switch c.state {
		case StateClosed:
			return nil, ErrClosed
		case StateDisconnected:
			c.state = StateAwaitingHandshakeInfo
			if c.handshake {
				c.state = StateRegistering
			}
			continue
		case StateAwaitingHandshakeInfo:
			if err = c.handshakeInfo(ctx); err == nil {
				c.handshake = true
				c.state = StateRegistering
				continue
			}
		case StateRegistering:
			if err = c.register(ctx); err == nil {
				c.state = StateStreaming
				continue
			}
		case StateStreaming:
			var ev event.Event
			if ev, err = c.readEvent(ctx); err == nil {
				if ev != nil {
					return ev, nil
				}
				continue
			}
			if errors.Is(err, io.EOF) && c.state == StateClosed {
				return nil, io.EOF
			}
		}

		if err = c.recover(ctx, err); err != nil {
			return nil, err
		}
	}
}

func (c *Client) Close() error {
	c.state = StateClosed
	c.queue = nil
	return c.closeSession()
}

func (c *Client) closeSession() error {
	if c.sess == nil {
		return nil
	}
	err := c.sess.Close()
	c.sess = nil
	return err
}

// recover turns a transient failure into a reconnect. Anything else closes
// the client.
func (c *Client) recover(ctx context.Context, err error) error {
	if !IsTransient(err) {
		c.log.Error("stop streaming at %s: %v", c.pos, err)
		_ = c.Close()
		return err
	}

	c.reconnects++
	if c.opts.MaxReconnects > 0 && c.reconnects > c.opts.MaxReconnects {
		_ = c.Close()
		return fmt.Errorf("%w (%d): %w", ErrTooManyReconnects, c.opts.MaxReconnects, err)
	}

	c.log.Warn("%v in state %s at %s, reconnect #%d", err, c.state, c.pos, c.reconnects)
	metrics.ReconnectsTotal.Inc()
	_ = c.closeSession()
	c.state = StateDisconnected

	if c.opts.ReconnectDelay <= 0 {
		return nil
	}
	t := time.NewTimer(c.opts.ReconnectDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) handshakeInfo(ctx context.Context) error {
	switch c.opts.Checksum {
	case ChecksumOn:
		c.checksum = true
	case ChecksumOff:
		c.checksum = false
	default:
		enabled, err := c.aux.ChecksumEnabled(ctx)
		if err != nil {
			return fmt.Errorf("read binlog checksum setting: %w", err)
		}
		c.checksum = enabled
	}

	if c.opts.Mode == ModePosition && c.pos.Name == "" {
		pos, err := c.aux.MasterStatus(ctx)
		if err != nil {
			return fmt.Errorf("read source binlog position: %w", err)
		}
		c.pos = pos
		c.trxStart = pos
		c.log.Info("no start position given, start at %s", pos)
	}
	if c.pos.Pos < vars.BinlogStartPos {
		c.pos.Pos = vars.BinlogStartPos
		c.trxStart = c.pos
	}
	return nil
}

func (c *Client) register(ctx context.Context) error {
	sess, err := c.connector.Connect(ctx)
	if err != nil {
		return transportErr(fmt.Errorf("connect: %w", err))
	}
	c.sess = sess

	checksum := "SET @master_binlog_checksum = 'NONE'"
	if c.checksum {
		checksum = vars.SetMasterChecksum
	}
	if err = sess.Execute(checksum); err != nil {
		return transportErr(err)
	}
	if c.opts.HeartbeatPeriod > 0 {
		if err = sess.Execute(fmt.Sprintf(vars.SetHeartbeat, c.opts.HeartbeatPeriod.Nanoseconds())); err != nil {
			return transportErr(err)
		}
	}

	if err = sess.WritePacket(registerSlaveCommand(c.opts.ServerID, c.opts.Report)); err != nil {
		return transportErr(err)
	}
	if err = c.readOK(); err != nil {
		return err
	}

	var flags uint16
	if c.opts.StopAtEnd {
		flags |= dumpNonBlock
	}
	from := c.trxStart
	var cmd []byte
	if c.opts.Mode == ModeGTID {
		cmd = binlogDumpGTIDCommand(c.opts.ServerID, mysql.Position{Pos: vars.BinlogStartPos}, c.gtids, flags)
		c.log.Info("start streaming after gtid set %s", c.gtids)
	} else {
		cmd = binlogDumpCommand(c.opts.ServerID, from, flags)
		c.log.Info("start streaming at %s", from)
	}
	if err = sess.WritePacket(cmd); err != nil {
		return transportErr(err)
	}

	c.decoder.Checksum = c.checksum
	c.queue = nil
	if c.sessions > 0 {
		replay := c.pos
		c.replay = &replay
		c.pos = from
	}
	c.sessions++
	return nil
}

func (c *Client) readOK() error {
	data, err := c.sess.ReadPacket()
	if err != nil {
		return transportErr(err)
	}
	switch {
	case len(data) == 0:
		return transportErr(fmt.Errorf("empty reply"))
	case data[0] == packetOK:
		return nil
	case data[0] == packetErr:
		return transportErr(parseErrPacket(data))
	}
	return &TransportError{Err: fmt.Errorf("unexpected reply 0x%02x", data[0])}
}

// parseErrPacket reads code, optional sql state and message of an error packet.
func parseErrPacket(data []byte) error {
	if len(data) < 3 {
		return fmt.Errorf("short error packet")
	}
	code := uint16(data[1]) | uint16(data[2])<<8
	msg := data[3:]
	if len(msg) >= 6 && msg[0] == '#' {
		msg = msg[6:]
	}
	return mysql.NewError(code, string(msg))
}

func (c *Client) readEvent(ctx context.Context) (event.Event, error) {
	data, err := c.sess.ReadPacket()
	if err != nil {
		return nil, transportErr(err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	switch data[0] {
	case packetOK:
	case packetEOF:
		if len(data) < 9 {
			c.log.Info("source ended the stream at %s", c.pos)
			_ = c.Close()
			return nil, io.EOF
		}
		return nil, nil
	case packetErr:
		return nil, transportErr(parseErrPacket(data))
	default:
		return nil, nil
	}

	metrics.BytesTotal.Add(float64(len(data) - 1))
	ev, err := c.decoder.Decode(data[1:])
	if err != nil {
		return nil, err
	}
	c.reconnects = 0

	yield, err := c.handle(ctx, ev, c.replaying(ev.EventHeader()), false)
	if err != nil || !yield {
		return nil, err
	}
	return ev, nil
}

// replaying reports whether h was already handled before a reconnect.
func (c *Client) replaying(h *event.Header) bool {
	if c.replay == nil {
		return false
	}
	if h.NextPos == 0 || (c.pos.Name == c.replay.Name && h.NextPos <= c.replay.Pos) {
		return true
	}
	c.replay = nil
	return false
}
