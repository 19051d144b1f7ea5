package session

// #region imports
import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/groupmix/go-controller/internal/auxcall"
	"github.com/groupmix/go-controller/internal/channel"
	"github.com/groupmix/go-controller/internal/schedule"
	"github.com/groupmix/go-controller/internal/wire"
)

// #endregion

// #region fake-engine

// responder scripts the fake engine: given an outbound envelope, it
// returns the envelopes the engine answers with. Returning nil holds
// the request open so tests can answer (or cancel) it later.
type responder func(env channel.Envelope) []channel.Envelope

// ackInit answers the handshake and nothing else.
func ackInit(env channel.Envelope) []channel.Envelope {
	if env.Type == channel.TypeInit {
		return []channel.Envelope{{Type: channel.TypeInitialized, ID: env.ID}}
	}
	return nil
}

// engineConn plays the engine's half of the connection, answering each
// write through the dialer's current responder.
type engineConn struct {
	dialer  *engineDialer
	inbound chan channel.Envelope
	closed  chan struct{}
	once    sync.Once

	mu   sync.Mutex
	sent []channel.Envelope
}

func (c *engineConn) WriteJSON(v interface{}) error {
	env := v.(channel.Envelope)
	c.mu.Lock()
	c.sent = append(c.sent, env)
	c.mu.Unlock()
	for _, resp := range c.dialer.respondTo(env) {
		if resp.ID == "" {
			resp.ID = env.ID
		}
		c.inbound <- resp
	}
	return nil
}

func (c *engineConn) ReadJSON(v interface{}) error {
	select {
	case env := <-c.inbound:
		*(v.(*channel.Envelope)) = env
		return nil
	case <-c.closed:
		return errors.New("connection closed")
	}
}

func (c *engineConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// push delivers an envelope outside the scripted request/response flow.
func (c *engineConn) push(env channel.Envelope) { c.inbound <- env }

// sentOfType returns the first outbound envelope of the given type.
func (c *engineConn) sentOfType(msgType string) (channel.Envelope, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, env := range c.sent {
		if env.Type == msgType {
			return env, true
		}
	}
	return channel.Envelope{}, false
}

type engineDialer struct {
	mu      sync.Mutex
	dials   int
	fail    bool
	respond responder
	conns   []*engineConn
}

func (d *engineDialer) Dial(url string) (channel.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.fail {
		return nil, errors.New("connection refused")
	}
	c := &engineConn{
		dialer:  d,
		inbound: make(chan channel.Envelope, 64),
		closed:  make(chan struct{}),
	}
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *engineDialer) respondTo(env channel.Envelope) []channel.Envelope {
	d.mu.Lock()
	r := d.respond
	d.mu.Unlock()
	if r == nil {
		return nil
	}
	return r(env)
}

func (d *engineDialer) setResponder(r responder) {
	d.mu.Lock()
	d.respond = r
	d.mu.Unlock()
}

func (d *engineDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *engineDialer) lastConn() *engineConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[len(d.conns)-1]
}

// #endregion fake-engine

// #region helpers

func testController(t *testing.T, r responder) (*Controller, *engineDialer) {
	t.Helper()
	d := &engineDialer{respond: r}
	ctrl := New(Config{PrimaryURL: "ws://engine", Dialer: d})
	t.Cleanup(ctrl.Terminate)
	return ctrl, d
}

func testProblem() schedule.Problem {
	return schedule.Problem{
		People:      []schedule.Person{{ID: "p1"}, {ID: "p2"}},
		Groups:      []schedule.Group{{ID: "g1", Size: 2}},
		NumSessions: 1,
	}
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// waitForSolveSent blocks until some connection has carried a SOLVE
// request. By then the controller is Busy: the state flips before the
// envelope goes out.
func waitForSolveSent(t *testing.T, d *engineDialer) *engineConn {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		d.mu.Lock()
		conns := append([]*engineConn(nil), d.conns...)
		d.mu.Unlock()
		for _, c := range conns {
			if _, ok := c.sentOfType(channel.TypeSolve); ok {
				return c
			}
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("solve request never reached the engine")
	return nil
}

const solveResultBody = `{"schedule": {"session_0": {"g1": ["p1", "p2"]}}, "final_score": 5}`

// solveAndInit answers both the handshake and solve requests.
func solveAndInit(env channel.Envelope) []channel.Envelope {
	if resp := ackInit(env); resp != nil {
		return resp
	}
	if env.Type == channel.TypeSolve {
		return []channel.Envelope{
			{Type: channel.TypeProgress, Data: json.RawMessage(`{"iteration": 10, "elapsed_seconds": 0.5}`)},
			{Type: channel.TypeResult, Data: json.RawMessage(solveResultBody)},
		}
	}
	return nil
}

// #endregion helpers

// #region initialize-tests

func TestInitialize_Idempotent(t *testing.T) {
	ctrl, d := testController(t, ackInit)

	if err := ctrl.Initialize(testCtx(t)); err != nil {
		t.Fatalf("first initialize failed: %v", err)
	}
	if err := ctrl.Initialize(testCtx(t)); err != nil {
		t.Fatalf("second initialize failed: %v", err)
	}
	if got := d.dialCount(); got != 1 {
		t.Errorf("expected exactly 1 dial, got %d", got)
	}
	if ctrl.State() != StateReady {
		t.Errorf("expected ready, got %s", ctrl.State())
	}
}

func TestInitialize_FailureLeavesUninitialized(t *testing.T) {
	d := &engineDialer{fail: true}
	ctrl := New(Config{PrimaryURL: "ws://engine", FallbackURL: "ws://fallback", Dialer: d})

	err := ctrl.Initialize(testCtx(t))
	if !errors.Is(err, channel.ErrInit) {
		t.Fatalf("expected ErrInit, got %v", err)
	}
	if ctrl.State() != StateUninitialized {
		t.Errorf("expected uninitialized after failure, got %s", ctrl.State())
	}

	// A later attempt is allowed to retry from scratch.
	d.mu.Lock()
	d.fail = false
	d.respond = ackInit
	d.mu.Unlock()
	if err := ctrl.Initialize(testCtx(t)); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if ctrl.State() != StateReady {
		t.Errorf("expected ready after retry, got %s", ctrl.State())
	}
}

// #endregion initialize-tests

// #region solve-tests

func TestSolve_AutoInitializes(t *testing.T) {
	ctrl, d := testController(t, solveAndInit)

	sol, _, err := ctrl.Solve(testCtx(t), testProblem())
	if err != nil {
		t.Fatalf("solve failed: %v", err)
	}
	if d.dialCount() != 1 {
		t.Errorf("expected one dial from auto-init, got %d", d.dialCount())
	}
	if sol.FinalScore != 5 {
		t.Errorf("expected score 5, got %v", sol.FinalScore)
	}
	if len(sol.Assignments) != 2 {
		t.Errorf("expected 2 assignments, got %d", len(sol.Assignments))
	}
	// The progress snapshot is recorded even without a caller sink, so
	// the solution still carries iteration/elapsed.
	if sol.IterationCount != 10 || sol.ElapsedMS != 500 {
		t.Errorf("snapshot not folded into solution: iter=%d elapsed=%v", sol.IterationCount, sol.ElapsedMS)
	}
	if ctrl.State() != StateReady {
		t.Errorf("expected ready after solve, got %s", ctrl.State())
	}
}

func TestSolveWithProgress_StreamsToSink(t *testing.T) {
	ctrl, _ := testController(t, func(env channel.Envelope) []channel.Envelope {
		if resp := ackInit(env); resp != nil {
			return resp
		}
		if env.Type == channel.TypeSolve {
			return []channel.Envelope{
				{Type: channel.TypeProgress, Data: json.RawMessage(`{"iteration": 1}`)},
				{Type: channel.TypeProgress, Data: json.RawMessage(`{"iteration": 2}`)},
				{Type: channel.TypeProgress, Data: json.RawMessage(`{"iteration": 3, "elapsed_seconds": 1}`)},
				{Type: channel.TypeResult, Data: json.RawMessage(solveResultBody)},
			}
		}
		return nil
	})

	var mu sync.Mutex
	var seen []uint64
	sol, last, err := ctrl.SolveWithProgress(testCtx(t), testProblem(), func(p schedule.Progress) {
		mu.Lock()
		seen = append(seen, p.Iteration)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("solve failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 || seen[0] != 1 || seen[2] != 3 {
		t.Errorf("progress stream wrong: %v", seen)
	}
	if last == nil || last.Iteration != 3 {
		t.Errorf("expected final snapshot iteration 3, got %+v", last)
	}
	if sol.IterationCount != 3 || sol.ElapsedMS != 1000 {
		t.Errorf("solution counters wrong: iter=%d elapsed=%v", sol.IterationCount, sol.ElapsedMS)
	}
}

func TestSolve_WarmStartCarriesInitialSchedule(t *testing.T) {
	ctrl, d := testController(t, solveAndInit)

	initial := []schedule.Assignment{{PersonID: "p1", GroupID: "g1", SessionID: 0}}
	if _, _, err := ctrl.SolveWithWarmStart(testCtx(t), testProblem(), initial, nil); err != nil {
		t.Fatalf("solve failed: %v", err)
	}

	env, ok := d.lastConn().sentOfType(channel.TypeSolve)
	if !ok {
		t.Fatal("no solve envelope was sent")
	}
	if !strings.Contains(string(env.Data), `"initial_schedule"`) {
		t.Errorf("warm start omitted from payload: %s", env.Data)
	}
	if !strings.Contains(string(env.Data), `"session_0"`) {
		t.Errorf("initial schedule missing session key: %s", env.Data)
	}
}

func TestSolve_RejectsConcurrentSolve(t *testing.T) {
	ctrl, d := testController(t, ackInit) // SOLVE is held open

	errs := make(chan error, 1)
	go func() {
		_, _, err := ctrl.Solve(testCtx(t), testProblem())
		errs <- err
	}()
	conn := waitForSolveSent(t, d)

	if _, _, err := ctrl.Solve(testCtx(t), testProblem()); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	// Release the held solve and make sure it was unharmed.
	env, ok := conn.sentOfType(channel.TypeSolve)
	if !ok {
		t.Fatal("no solve envelope was sent")
	}
	conn.push(channel.Envelope{Type: channel.TypeResult, ID: env.ID, Data: json.RawMessage(solveResultBody)})

	if err := <-errs; err != nil {
		t.Fatalf("first solve failed: %v", err)
	}
	if ctrl.State() != StateReady {
		t.Errorf("expected ready, got %s", ctrl.State())
	}
}

func TestSolve_EngineErrorSurfaced(t *testing.T) {
	ctrl, _ := testController(t, func(env channel.Envelope) []channel.Envelope {
		if resp := ackInit(env); resp != nil {
			return resp
		}
		if env.Type == channel.TypeSolve {
			return []channel.Envelope{{Type: channel.TypeError, Data: json.RawMessage(`{"message": "infeasible"}`)}}
		}
		return nil
	})

	_, _, err := ctrl.Solve(testCtx(t), testProblem())
	var engineErr *channel.EngineError
	if !errors.As(err, &engineErr) || engineErr.Message != "infeasible" {
		t.Fatalf("expected engine error 'infeasible', got %v", err)
	}
	// A per-request failure does not poison the session.
	if ctrl.State() != StateReady {
		t.Errorf("expected ready after engine error, got %s", ctrl.State())
	}
}

func TestSolve_MalformedResultSurfaced(t *testing.T) {
	ctrl, _ := testController(t, func(env channel.Envelope) []channel.Envelope {
		if resp := ackInit(env); resp != nil {
			return resp
		}
		if env.Type == channel.TypeSolve {
			return []channel.Envelope{{Type: channel.TypeResult, Data: json.RawMessage(`{"schedule": {"round_1": {}}}`)}}
		}
		return nil
	})

	_, _, err := ctrl.Solve(testCtx(t), testProblem())
	if !errors.Is(err, wire.ErrDecode) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

// #endregion solve-tests

// #region cancel-terminate-tests

func TestCancel_AbortsSolveAndReinitializes(t *testing.T) {
	ctrl, d := testController(t, ackInit) // SOLVE is held open

	errs := make(chan error, 1)
	go func() {
		_, _, err := ctrl.Solve(testCtx(t), testProblem())
		errs <- err
	}()
	waitForSolveSent(t, d)

	if err := ctrl.Cancel(testCtx(t)); err != nil {
		t.Fatalf("cancel returned %v", err)
	}
	if err := <-errs; !errors.Is(err, channel.ErrCancelled) {
		t.Fatalf("expected ErrCancelled from the aborted solve, got %v", err)
	}
	if ctrl.State() != StateReady {
		t.Errorf("expected ready after cancel's re-init, got %s", ctrl.State())
	}
	if d.dialCount() != 2 {
		t.Errorf("expected a fresh channel after cancel, got %d dials", d.dialCount())
	}

	// The session is immediately usable again.
	d.setResponder(solveAndInit)
	if _, _, err := ctrl.Solve(testCtx(t), testProblem()); err != nil {
		t.Fatalf("solve after cancel failed: %v", err)
	}
}

func TestCancel_WhenIdleStillSucceeds(t *testing.T) {
	ctrl, d := testController(t, ackInit)

	if err := ctrl.Cancel(testCtx(t)); err != nil {
		t.Fatalf("cancel returned %v", err)
	}
	if ctrl.State() != StateReady {
		t.Errorf("expected ready, got %s", ctrl.State())
	}
	if d.dialCount() != 1 {
		t.Errorf("expected one dial, got %d", d.dialCount())
	}
}

func TestTerminate_BlocksEverythingButInitialize(t *testing.T) {
	ctrl, _ := testController(t, solveAndInit)
	if err := ctrl.Initialize(testCtx(t)); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	ctrl.Terminate()
	if ctrl.State() != StateTerminated {
		t.Fatalf("expected terminated, got %s", ctrl.State())
	}

	if _, _, err := ctrl.Solve(testCtx(t), testProblem()); !errors.Is(err, ErrTerminated) {
		t.Errorf("solve: expected ErrTerminated, got %v", err)
	}
	if _, err := ctrl.DefaultSettings(testCtx(t)); !errors.Is(err, ErrTerminated) {
		t.Errorf("settings: expected ErrTerminated, got %v", err)
	}

	// Terminate is not the end of the controller; Initialize revives it.
	if err := ctrl.Initialize(testCtx(t)); err != nil {
		t.Fatalf("revive failed: %v", err)
	}
	if _, _, err := ctrl.Solve(testCtx(t), testProblem()); err != nil {
		t.Fatalf("solve after revive failed: %v", err)
	}
}

// #endregion cancel-terminate-tests

// #region auxiliary-tests

func TestDefaultSettings_DecodedWithDefaults(t *testing.T) {
	ctrl, _ := testController(t, func(env channel.Envelope) []channel.Envelope {
		if resp := ackInit(env); resp != nil {
			return resp
		}
		if env.Type == auxcall.MethodDefaultSettings {
			return []channel.Envelope{{
				Type: channel.TypeRPCResult,
				Data: json.RawMessage(`{"initial_temperature": 2.5, "stop_conditions": {"max_iterations": 7000}}`),
			}}
		}
		return nil
	})

	s, err := ctrl.DefaultSettings(testCtx(t))
	if err != nil {
		t.Fatalf("default settings failed: %v", err)
	}
	if s.Annealing.InitialTemperature != 2.5 {
		t.Errorf("expected engine temperature 2.5, got %v", s.Annealing.InitialTemperature)
	}
	if s.StopConditions.MaxIterations != 7000 {
		t.Errorf("expected engine max iterations 7000, got %d", s.StopConditions.MaxIterations)
	}
	if s.Annealing.CoolingSchedule != schedule.DefaultCoolingSchedule {
		t.Errorf("missing fields not defaulted: %q", s.Annealing.CoolingSchedule)
	}
}

func TestRecommendedSettings_SendsBudget(t *testing.T) {
	ctrl, d := testController(t, func(env channel.Envelope) []channel.Envelope {
		if resp := ackInit(env); resp != nil {
			return resp
		}
		if env.Type == auxcall.MethodRecommendedSettings {
			return []channel.Envelope{{
				Type: channel.TypeRPCResult,
				Data: json.RawMessage(`{"stop_conditions": {"time_limit_seconds": 12}}`),
			}}
		}
		return nil
	})

	s, err := ctrl.RecommendedSettings(testCtx(t), testProblem(), 12)
	if err != nil {
		t.Fatalf("recommended settings failed: %v", err)
	}
	if s.StopConditions.TimeLimitSeconds != 12 {
		t.Errorf("expected time limit 12, got %v", s.StopConditions.TimeLimitSeconds)
	}

	env, ok := d.lastConn().sentOfType(auxcall.MethodRecommendedSettings)
	if !ok {
		t.Fatal("no recommendation request was sent")
	}
	if !strings.Contains(string(env.Data), `"desired_runtime_seconds":12`) {
		t.Errorf("budget missing from request: %s", env.Data)
	}
	if !strings.Contains(string(env.Data), `"problem"`) {
		t.Errorf("problem missing from request: %s", env.Data)
	}
}

func TestAuxiliary_RPCErrorSurfaced(t *testing.T) {
	ctrl, _ := testController(t, func(env channel.Envelope) []channel.Envelope {
		if resp := ackInit(env); resp != nil {
			return resp
		}
		if env.Type == auxcall.MethodDefaultSettings {
			return []channel.Envelope{{Type: channel.TypeRPCError, Data: json.RawMessage(`{"message": "unsupported"}`)}}
		}
		return nil
	})

	_, err := ctrl.DefaultSettings(testCtx(t))
	var engineErr *channel.EngineError
	if !errors.As(err, &engineErr) || engineErr.Message != "unsupported" {
		t.Fatalf("expected engine error 'unsupported', got %v", err)
	}
}

// #endregion auxiliary-tests
