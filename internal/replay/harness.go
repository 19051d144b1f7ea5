package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/groupmix/go-controller/internal/channel"
	"github.com/groupmix/go-controller/internal/schedule"
	"github.com/groupmix/go-controller/internal/wire"
)

// #region result

// Result is the observed outcome of replaying one transcript through
// the real dispatch path.
type Result struct {
	Outcome       string
	ProgressCount int
	Solution      *schedule.Solution
	Err           error
	Mismatches    []string
}

// Passed reports whether the observed outcome matched the
// transcript's expectations.
func (r Result) Passed() bool { return len(r.Mismatches) == 0 }

// #endregion result

// #region script-conn

// scriptConn plays back recorded inbound messages. The first outbound
// write triggers the playback, with the request's freshly allocated
// correlation id substituted into messages recorded without one.
type scriptConn struct {
	mu     sync.Mutex
	script []Message
	queue  chan channel.Envelope
	closed chan struct{}
	once   sync.Once
}

func newScriptConn(script []Message) *scriptConn {
	return &scriptConn{
		script: script,
		queue:  make(chan channel.Envelope, len(script)),
		closed: make(chan struct{}),
	}
}

func (c *scriptConn) WriteJSON(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var env channel.Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}

	c.mu.Lock()
	script := c.script
	c.script = nil
	c.mu.Unlock()
	for _, m := range script {
		id := m.ID
		if id == "" {
			id = env.ID
		}
		c.queue <- channel.Envelope{Type: m.Type, ID: id, Data: m.Data}
	}
	return nil
}

func (c *scriptConn) ReadJSON(v interface{}) error {
	select {
	case env := <-c.queue:
		b, err := json.Marshal(env)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, v)
	case <-c.closed:
		return errors.New("script connection closed")
	}
}

func (c *scriptConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type scriptDialer struct {
	conn *scriptConn
}

func (d scriptDialer) Dial(string) (channel.Conn, error) { return d.conn, nil }

// #endregion script-conn

// #region run

// Run replays a transcript against a fresh Channel and compares the
// observed outcome with the transcript's expectations.
func Run(t *Transcript) (Result, error) {
	conn := newScriptConn(t.Messages)
	ch, err := channel.Open(scriptDialer{conn: conn}, "script://engine", "", channel.LogSink{})
	if err != nil {
		return Result{}, fmt.Errorf("open script channel: %w", err)
	}
	defer ch.Abort()

	var res Result
	var sink channel.ProgressSink
	if t.Request.UseSink {
		// Runs on the dispatch goroutine; the terminal Wait below
		// orders the count read after the last invocation.
		sink = func(schedule.Progress) { res.ProgressCount++ }
	}

	var payload interface{}
	if len(t.Request.Data) > 0 {
		payload = t.Request.Data
	}
	pending, err := ch.Send(t.Request.Type, payload, sink)
	if err != nil {
		return Result{}, fmt.Errorf("send %s: %w", t.Request.Type, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	data, err := pending.Wait(ctx)

	switch {
	case err == nil:
		res.Outcome = "result"
		sol, decErr := wire.DecodeSolution(data, nil)
		if decErr != nil {
			res.Outcome = "error"
			res.Err = decErr
		} else {
			res.Solution = &sol
		}
	case errors.Is(err, channel.ErrCancelled):
		res.Outcome = "cancelled"
		res.Err = err
	default:
		res.Outcome = "error"
		res.Err = err
	}

	res.Mismatches = compare(t.Expect, res)
	return res, nil
}

func compare(want Expectation, got Result) []string {
	var mismatches []string
	if want.Outcome != "" && got.Outcome != want.Outcome {
		mismatches = append(mismatches, fmt.Sprintf("outcome: want %q, got %q", want.Outcome, got.Outcome))
	}
	if got.ProgressCount != want.ProgressCount {
		mismatches = append(mismatches, fmt.Sprintf("progress count: want %d, got %d", want.ProgressCount, got.ProgressCount))
	}
	if want.FinalScore != nil {
		if got.Solution == nil {
			mismatches = append(mismatches, "final score expected but no solution decoded")
		} else if got.Solution.FinalScore != *want.FinalScore {
			mismatches = append(mismatches, fmt.Sprintf("final score: want %v, got %v", *want.FinalScore, got.Solution.FinalScore))
		}
	}
	return mismatches
}

// #endregion run
