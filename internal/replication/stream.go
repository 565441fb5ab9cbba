package replication

import (
	"context"

	"github.com/go-mysql-org/go-mysql/mysql"

	"github.com/SisyphusSQ/binrepl/internal/event"
	"github.com/SisyphusSQ/binrepl/internal/metrics"
)

// handle applies one decoded event to the client state and reports whether
// it should reach the caller. Inner events of a transaction payload are
// queued instead.
func (c *Client) handle(ctx context.Context, ev event.Event, replaying, inner bool) (bool, error) {
	h := ev.EventHeader()
	metrics.EventsTotal.With(h.Type.String()).Inc()

	start := c.pos
	if !inner {
		c.advance(ev)
	}

	kind := EventKind(ev)
	yield := !replaying && (c.opts.Filter.EventAllowed(kind) || transactionControl(ev))
	if !replaying && !yield {
		metrics.EventsFiltered.With("event").Inc()
	}

	switch e := ev.(type) {
	case *event.RotateEvent:
		c.registry.InvalidateAll()
		clear(c.skipped)

	case *event.FormatDescriptionEvent:
		if c.opts.Checksum == ChecksumOff {
			c.decoder.Checksum = false
		}

	case *event.GtidEvent:
		c.beginTrx(start)
		if !e.Anonymous {
			c.pending = e
		}

	case *event.QueryEvent:
		if opensTransaction(e.Query) {
			c.beginTrx(start)
		} else {
			c.commit()
		}
		if yield && e.Schema != "" && !isTransactionControl(e.Query) && !c.opts.Filter.SchemaAllowed(e.Schema) {
			yield = false
			metrics.EventsFiltered.With("schema").Inc()
		}

	case *event.XidEvent:
		c.commit()

	case *event.UnimplementedEvent:
		if e.Code == event.TypeXAPrepare {
			c.commit()
		}

	case *event.TableMapEvent:
		if !c.opts.Filter.TableAllowed(e.Schema, e.Table) {
			c.skipped[e.TableID] = struct{}{}
			metrics.TableMapsTotal.With("skipped").Inc()
			return false, nil
		}
		delete(c.skipped, e.TableID)
		if _, err := c.registry.Register(ctx, e.Spec(), c.aux); err != nil {
			metrics.TableMapsTotal.With("failed").Inc()
			return false, err
		}
		metrics.TableMapsTotal.With("ok").Inc()

	case *event.RowsEvent:
		if _, ok := c.skipped[e.TableID]; ok {
			metrics.EventsFiltered.With("table").Inc()
			return false, nil
		}
		if !yield {
			return false, nil
		}
		if err := e.Materialize(); err != nil {
			return false, err
		}
		rows, _ := e.Rows()
		metrics.RowsTotal.With(kind).Add(float64(len(rows)))

	case *event.TransactionPayloadEvent:
		if err := c.handlePayload(ctx, e, replaying); err != nil {
			return false, err
		}
		return false, nil
	}
	return yield, nil
}

func (c *Client) handlePayload(ctx context.Context, e *event.TransactionPayloadEvent, replaying bool) error {
	raws, err := e.InnerEvents()
	if err != nil {
		return err
	}

	dec := &event.Decoder{Registry: c.registry, Location: c.opts.Location}
	for _, raw := range raws {
		ev, err := dec.Decode(raw)
		if err != nil {
			return err
		}
		yield, err := c.handle(ctx, ev, replaying, true)
		if err != nil {
			return err
		}
		if yield {
			c.queue = append(c.queue, ev)
		}
	}
	return nil
}

// advance moves the tracked position past ev.
func (c *Client) advance(ev event.Event) {
	h := ev.EventHeader()
	switch e := ev.(type) {
	case *event.RotateEvent:
		c.pos = mysql.Position{Name: e.NextFile, Pos: uint32(e.Position)}
	case *event.HeartbeatEvent:
		// carries the source position, not the end of an event
		return
	default:
		if h.NextPos > 0 {
			c.pos.Pos = h.NextPos
		}
	}
	if !c.inTrx {
		c.trxStart = c.pos
	}
	metrics.BinlogPosition.Set(float64(c.pos.Pos))
}

func (c *Client) beginTrx(start mysql.Position) {
	if c.inTrx {
		return
	}
	c.inTrx = true
	c.trxStart = start
}

// commit closes the open transaction and merges its GTID.
func (c *Client) commit() {
	if c.pending != nil {
		if err := c.gtids.AddTransaction(c.pending.SID, c.pending.GNO); err != nil {
			c.log.Warn("merge gtid %s: %v", c.pending.GTID(), err)
		}
		c.pending = nil
	}
	c.inTrx = false
	c.trxStart = c.pos
}
