package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/groupmix/go-controller/internal/wire"
)

// #region conn

// Conn is the serialized engine connection. *websocket.Conn satisfies
// it directly; tests inject in-memory fakes.
type Conn interface {
	ReadJSON(v interface{}) error
	WriteJSON(v interface{}) error
	Close() error
}

// Dialer produces one Conn per Open attempt.
type Dialer interface {
	Dial(url string) (Conn, error)
}

// #endregion

// #region pending

// Pending is the caller's handle on one outstanding request.
type Pending struct {
	id   string
	done chan outcome
}

// ID returns the correlation id assigned at send time.
func (p *Pending) ID() string { return p.id }

// Wait blocks until the request's terminal message arrives or ctx is
// done. Abandoning a Pending via ctx does not unregister it; the entry
// is still resolved by its terminal message or swept by Abort.
func (p *Pending) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case o := <-p.done:
		return o.data, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// #endregion

// #region channel

// Channel owns exactly one live connection to the engine and routes
// every inbound message by correlation id. It never reopens itself:
// after a transport fault or Abort the owner constructs a new one.
type Channel struct {
	id    string
	conn  Conn
	table *table
	diag  DiagnosticSink

	nextID  atomic.Uint64
	writeMu sync.Mutex
	aborted atomic.Bool
}

// Open dials the primary engine endpoint and falls back to the
// secondary on failure. Only when both fail does it return ErrInit.
func Open(d Dialer, primaryURL, fallbackURL string, diag DiagnosticSink) (*Channel, error) {
	if diag == nil {
		diag = LogSink{}
	}
	conn, err := d.Dial(primaryURL)
	if err != nil {
		if fallbackURL == "" {
			return nil, fmt.Errorf("%w: %s: %v", ErrInit, primaryURL, err)
		}
		log.Printf("[CHAN] primary endpoint %s unavailable (%v), trying fallback %s", primaryURL, err, fallbackURL)
		conn, err = d.Dial(fallbackURL)
		if err != nil {
			return nil, fmt.Errorf("%w: fallback %s: %v", ErrInit, fallbackURL, err)
		}
	}

	c := &Channel{
		id:    uuid.New().String(),
		conn:  conn,
		table: newTable(),
		diag:  diag,
	}
	go c.readLoop()
	return c, nil
}

// ID names this channel instance in logs. Correlation ids restart from
// 1 for every instance; the instance id disambiguates across reopens.
func (c *Channel) ID() string { return c.id }

// PendingCount reports how many requests are awaiting a terminal
// message.
func (c *Channel) PendingCount() int { return c.table.size() }

// #endregion

// #region send

// Send registers a correlation entry, transmits the envelope, and
// returns the pending handle. sink may be nil for requests that emit
// no progress.
func (c *Channel) Send(msgType string, payload interface{}, sink ProgressSink) (*Pending, error) {
	id := fmt.Sprintf("req-%d", c.nextID.Add(1))

	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
		}
		data = b
	}

	e := &entry{done: make(chan outcome, 1), sink: sink}
	c.table.register(id, e)

	c.writeMu.Lock()
	err := c.conn.WriteJSON(Envelope{Type: msgType, ID: id, Data: data})
	c.writeMu.Unlock()
	if err != nil {
		c.table.take(id)
		return nil, fmt.Errorf("send %s: %w: %v", msgType, ErrTransport, err)
	}
	return &Pending{id: id, done: e.done}, nil
}

// #endregion

// #region dispatch

func (c *Channel) readLoop() {
	for {
		var env Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			if !c.aborted.Load() {
				log.Printf("[CHAN] %s: connection fault: %v", c.id, err)
			}
			c.rejectAll(fmt.Errorf("%w: %v", ErrTransport, err))
			return
		}
		c.dispatch(env)
	}
}

func (c *Channel) dispatch(env Envelope) {
	switch env.Type {
	case TypeLog, TypeProblemEcho:
		c.diag.Diagnostic(env.Type, env.Data)
		return

	case TypeProgress:
		e, ok := c.table.lookup(env.ID)
		if !ok {
			log.Printf("[CHAN] %s: progress for unknown id %q dropped", c.id, env.ID)
			return
		}
		if e.sink == nil {
			return
		}
		p, err := wire.DecodeProgress(env.Data)
		if err != nil {
			log.Printf("[CHAN] %s: bad progress payload for %q: %v", c.id, env.ID, err)
			return
		}
		e.sink(p)

	case TypeInitialized, TypeResult, TypeRPCResult:
		if e, ok := c.table.take(env.ID); ok {
			e.done <- outcome{data: env.Data}
		} else {
			log.Printf("[CHAN] %s: %s for unknown id %q dropped", c.id, env.Type, env.ID)
		}

	case TypeCancelled:
		if e, ok := c.table.take(env.ID); ok {
			e.done <- outcome{err: ErrCancelled}
		} else {
			log.Printf("[CHAN] %s: cancelled for unknown id %q dropped", c.id, env.ID)
		}

	case TypeError, TypeRPCError:
		if e, ok := c.table.take(env.ID); ok {
			e.done <- outcome{err: decodeEngineError(env.Data)}
		} else {
			log.Printf("[CHAN] %s: error for unknown id %q dropped", c.id, env.ID)
		}

	default:
		log.Printf("[CHAN] %s: unrecognized message type %q (id=%q) dropped", c.id, env.Type, env.ID)
	}
}

func (c *Channel) rejectAll(err error) {
	for _, e := range c.table.drain() {
		e.done <- outcome{err: err}
	}
}

// #endregion

// #region abort

// Abort rejects every pending request as cancelled and force-closes
// the connection. The underlying computation has no cooperative stop
// point, so discarding the connection is the only guaranteed way to
// end it. Safe to call more than once.
func (c *Channel) Abort() {
	if !c.aborted.CompareAndSwap(false, true) {
		return
	}
	c.rejectAll(ErrCancelled)
	if err := c.conn.Close(); err != nil {
		log.Printf("[CHAN] %s: close: %v", c.id, err)
	}
}

// #endregion
