package session

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/groupmix/go-controller/internal/auxcall"
	"github.com/groupmix/go-controller/internal/channel"
	"github.com/groupmix/go-controller/internal/schedule"
	"github.com/groupmix/go-controller/internal/wire"
)

// #endregion

// #region states

// State is the controller's lifecycle position.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateReady         State = "ready"
	StateBusy          State = "busy"
	StateTerminated    State = "terminated"
)

var (
	// ErrBusy rejects a solve issued while another is in flight.
	// Overlapping solves are refused outright rather than raced.
	ErrBusy = errors.New("a solve is already in flight")

	// ErrTerminated rejects operations after Terminate until the next
	// Initialize.
	ErrTerminated = errors.New("session terminated")
)

// #endregion

// #region controller

// Config wires a Controller to its engine.
type Config struct {
	PrimaryURL  string
	FallbackURL string
	Dialer      channel.Dialer
	Diagnostics channel.DiagnosticSink
}

// Controller is the public face of the engine: it owns one Channel at
// a time, the lifecycle state machine, and the most recent progress
// snapshot (older snapshots are discarded immediately).
type Controller struct {
	cfg Config

	mu       sync.Mutex
	state    State
	ch       *channel.Channel
	initGen  uint64
	initDone chan struct{}
	initErr  error

	progressMu   sync.Mutex
	lastProgress *schedule.Progress
}

// New builds an uninitialized Controller.
func New(cfg Config) *Controller {
	if cfg.Dialer == nil {
		cfg.Dialer = channel.WebsocketDialer{}
	}
	if cfg.Diagnostics == nil {
		cfg.Diagnostics = channel.LogSink{}
	}
	return &Controller{cfg: cfg, state: StateUninitialized}
}

// State reports the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastProgress returns a copy of the most recent snapshot, or nil if
// none has been observed for the current solve.
func (c *Controller) LastProgress() *schedule.Progress {
	c.progressMu.Lock()
	defer c.progressMu.Unlock()
	if c.lastProgress == nil {
		return nil
	}
	cp := *c.lastProgress
	return &cp
}

func (c *Controller) storeProgress(p schedule.Progress) {
	c.progressMu.Lock()
	c.lastProgress = &p
	c.progressMu.Unlock()
}

func (c *Controller) clearProgress() {
	c.progressMu.Lock()
	c.lastProgress = nil
	c.progressMu.Unlock()
}

// #endregion

// #region initialize

// Initialize opens the channel and performs the INIT handshake.
// Idempotent: when already Ready or Busy it returns immediately, and a
// call that arrives while another Initialize is running waits for that
// attempt instead of opening a second channel.
func (c *Controller) Initialize(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateReady, StateBusy:
		c.mu.Unlock()
		return nil
	case StateInitializing:
		done := c.initDone
		c.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		c.mu.Lock()
		err := c.initErr
		c.mu.Unlock()
		return err
	}

	c.state = StateInitializing
	c.initGen++
	gen := c.initGen
	done := make(chan struct{})
	c.initDone = done
	c.mu.Unlock()

	ch, err := c.openAndInit(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initGen != gen {
		// A cancel or terminate superseded this attempt; the channel,
		// if we got one, belongs to nobody.
		if err == nil && ch != nil {
			defer ch.Abort()
		}
		c.initErr = channel.ErrCancelled
		close(done)
		return channel.ErrCancelled
	}
	if err != nil {
		c.state = StateUninitialized
		c.initErr = err
		close(done)
		return err
	}
	c.ch = ch
	c.state = StateReady
	c.initErr = nil
	close(done)
	log.Printf("[SESSION] engine ready (channel %s)", ch.ID())
	return nil
}

func (c *Controller) openAndInit(ctx context.Context) (*channel.Channel, error) {
	ch, err := channel.Open(c.cfg.Dialer, c.cfg.PrimaryURL, c.cfg.FallbackURL, c.cfg.Diagnostics)
	if err != nil {
		return nil, err
	}
	pending, err := ch.Send(channel.TypeInit, nil, nil)
	if err != nil {
		ch.Abort()
		return nil, err
	}
	if _, err := pending.Wait(ctx); err != nil {
		ch.Abort()
		return nil, fmt.Errorf("init handshake: %w", err)
	}
	return ch, nil
}

// #endregion

// #region solve

// solveRequest embeds the encoded problem and tells the engine whether
// to stream progress.
type solveRequest struct {
	wire.Input
	UseProgress bool `json:"use_progress"`
}

// Solve runs one optimization to completion.
func (c *Controller) Solve(ctx context.Context, p schedule.Problem) (*schedule.Solution, *schedule.Progress, error) {
	return c.solve(ctx, p, nil, nil)
}

// SolveWithProgress additionally streams snapshots to sink. The sink
// runs on the dispatch goroutine; keep it fast.
func (c *Controller) SolveWithProgress(ctx context.Context, p schedule.Problem, sink channel.ProgressSink) (*schedule.Solution, *schedule.Progress, error) {
	return c.solve(ctx, p, nil, sink)
}

// SolveWithWarmStart seeds the optimizer with a previous assignment
// instead of a blank state.
func (c *Controller) SolveWithWarmStart(ctx context.Context, p schedule.Problem, initial []schedule.Assignment, sink channel.ProgressSink) (*schedule.Solution, *schedule.Progress, error) {
	if initial == nil {
		initial = []schedule.Assignment{}
	}
	return c.solve(ctx, p, initial, sink)
}

func (c *Controller) solve(ctx context.Context, p schedule.Problem, initial []schedule.Assignment, sink channel.ProgressSink) (*schedule.Solution, *schedule.Progress, error) {
	for {
		c.mu.Lock()
		switch c.state {
		case StateReady:
			c.state = StateBusy
			ch := c.ch
			c.mu.Unlock()
			return c.runSolve(ctx, ch, p, initial, sink)
		case StateBusy:
			c.mu.Unlock()
			return nil, nil, ErrBusy
		case StateTerminated:
			c.mu.Unlock()
			return nil, nil, ErrTerminated
		default:
			c.mu.Unlock()
			if err := c.Initialize(ctx); err != nil {
				return nil, nil, err
			}
		}
	}
}

func (c *Controller) runSolve(ctx context.Context, ch *channel.Channel, p schedule.Problem, initial []schedule.Assignment, sink channel.ProgressSink) (*schedule.Solution, *schedule.Progress, error) {
	defer c.exitBusy()
	c.clearProgress()

	input, err := wire.EncodeProblem(p, initial)
	if err != nil {
		return nil, nil, err
	}

	// Progress is always recorded so the decoded solution can report
	// iteration/elapsed even when the caller supplied no sink.
	wrapped := func(pr schedule.Progress) {
		c.storeProgress(pr)
		if sink != nil {
			sink(pr)
		}
	}

	pending, err := ch.Send(channel.TypeSolve, solveRequest{Input: input, UseProgress: sink != nil}, wrapped)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("[SESSION] solve %s: %d people, %d groups, %d sessions",
		pending.ID(), len(p.People), len(p.Groups), p.NumSessions)

	data, err := pending.Wait(ctx)
	if err != nil {
		return nil, c.LastProgress(), err
	}

	last := c.LastProgress()
	sol, err := wire.DecodeSolution(data, last)
	if err != nil {
		return nil, last, err
	}
	log.Printf("[SESSION] solve %s done: score=%.3f iterations=%d", pending.ID(), sol.FinalScore, sol.IterationCount)
	return &sol, last, nil
}

func (c *Controller) exitBusy() {
	c.mu.Lock()
	if c.state == StateBusy {
		c.state = StateReady
	}
	c.mu.Unlock()
}

// #endregion

// #region cancel-terminate

// Cancel rejects all pending work, discards the live channel, and
// immediately re-initializes so the next call finds the session ready.
// It always succeeds from the caller's perspective: a re-init failure
// is logged and left for the next operation's auto-init to retry.
func (c *Controller) Cancel(ctx context.Context) error {
	c.mu.Lock()
	c.initGen++
	ch := c.ch
	c.ch = nil
	c.state = StateUninitialized
	c.mu.Unlock()

	if ch != nil {
		log.Printf("[SESSION] cancel: discarding channel %s (%d pending)", ch.ID(), ch.PendingCount())
		ch.Abort()
	}
	if err := c.Initialize(ctx); err != nil {
		log.Printf("[SESSION] reinitialize after cancel failed: %v", err)
	}
	return nil
}

// Terminate discards the channel and all pending entries without
// reinitializing. Only Initialize is valid afterwards.
func (c *Controller) Terminate() {
	c.mu.Lock()
	c.initGen++
	ch := c.ch
	c.ch = nil
	c.state = StateTerminated
	c.mu.Unlock()

	if ch != nil {
		ch.Abort()
	}
	log.Printf("[SESSION] terminated")
}

// #endregion

// #region auxiliary

// DefaultSettings fetches the engine's built-in solver configuration.
// Auxiliary queries multiplex on the live channel and are not gated by
// Busy.
func (c *Controller) DefaultSettings(ctx context.Context) (schedule.SolverSettings, error) {
	ch, err := c.liveChannel(ctx)
	if err != nil {
		return schedule.SolverSettings{}, err
	}
	return c.auxSettings(ctx, ch, auxcall.DefaultSettings())
}

// RecommendedSettings asks the engine to size solver parameters for a
// problem and a desired runtime.
func (c *Controller) RecommendedSettings(ctx context.Context, p schedule.Problem, desiredSeconds float64) (schedule.SolverSettings, error) {
	input, err := wire.EncodeProblem(p, nil)
	if err != nil {
		return schedule.SolverSettings{}, err
	}
	ch, err := c.liveChannel(ctx)
	if err != nil {
		return schedule.SolverSettings{}, err
	}
	return c.auxSettings(ctx, ch, auxcall.RecommendedSettings(input, desiredSeconds))
}

func (c *Controller) auxSettings(ctx context.Context, ch *channel.Channel, call auxcall.Call) (schedule.SolverSettings, error) {
	pending, err := ch.Send(call.Method, call.Payload, nil)
	if err != nil {
		return schedule.SolverSettings{}, err
	}
	data, err := pending.Wait(ctx)
	if err != nil {
		return schedule.SolverSettings{}, err
	}
	return wire.DecodeSettings(data)
}

func (c *Controller) liveChannel(ctx context.Context) (*channel.Channel, error) {
	for {
		c.mu.Lock()
		switch c.state {
		case StateReady, StateBusy:
			ch := c.ch
			c.mu.Unlock()
			return ch, nil
		case StateTerminated:
			c.mu.Unlock()
			return nil, ErrTerminated
		default:
			c.mu.Unlock()
			if err := c.Initialize(ctx); err != nil {
				return nil, err
			}
		}
	}
}

// #endregion
