// Package job drives generation and refinement attempts from the caller's
// side: readiness, seed bookkeeping, cancellation and outcome reporting.
package job

import (
	"context"
	"sync"

	"github.com/BaSui01/renderflow/generate"
	"github.com/BaSui01/renderflow/types"
	"github.com/google/uuid"
)

// State is a controller state. The names match generate.Stage.
type State string

const (
	StateIdle             State = State(generate.StageIdle)
	StateValidating       State = State(generate.StageValidating)
	StateDispatching      State = State(generate.StageDispatching)
	StateAwaitingProvider State = State(generate.StageAwaitingProvider)
	StateDownloading      State = State(generate.StageDownloading)
	StatePersisting       State = State(generate.StagePersisting)
	StateDone             State = State(generate.StageDone)
	StateCancelled        State = State(generate.StageCancelled)
	StateFailed           State = State(generate.StageFailed)
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateCancelled || s == StateFailed
}

// transitions lists the forward edges of a state machine. Cancelled and
// Failed are reachable from every non-terminal state and are not listed.
type transitions map[State]State

var generationEdges = transitions{
	StateIdle:             StateValidating,
	StateValidating:       StateDispatching,
	StateDispatching:      StateAwaitingProvider,
	StateAwaitingProvider: StateDownloading,
	StateDownloading:      StatePersisting,
	StatePersisting:       StateDone,
}

var refinementEdges = transitions{
	StateIdle:             StateDispatching,
	StateDispatching:      StateAwaitingProvider,
	StateAwaitingProvider: StateDone,
}

// machine is the state of one attempt. All mutation goes through advance,
// cancel and fail; a terminal state is never left.
type machine struct {
	mu    sync.Mutex
	state State
	edges transitions
	watch func(State)
}

func newMachine(edges transitions, watch func(State)) *machine {
	return &machine{state: StateIdle, edges: edges, watch: watch}
}

func (m *machine) current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// advance moves forward along the edge list up to and including to. It
// returns false when the machine is already terminal or to is not ahead.
func (m *machine) advance(to State) bool {
	m.mu.Lock()
	if m.state.Terminal() {
		m.mu.Unlock()
		return false
	}
	var path []State
	for s := m.state; s != to; {
		next, ok := m.edges[s]
		if !ok {
			m.mu.Unlock()
			return false
		}
		path = append(path, next)
		s = next
	}
	m.state = to
	m.mu.Unlock()

	for _, s := range path {
		m.notify(s)
	}
	return true
}

func (m *machine) cancel() bool { return m.terminate(StateCancelled) }
func (m *machine) fail() bool   { return m.terminate(StateFailed) }

func (m *machine) terminate(to State) bool {
	m.mu.Lock()
	if m.state.Terminal() {
		m.mu.Unlock()
		return false
	}
	m.state = to
	m.mu.Unlock()
	m.notify(to)
	return true
}

func (m *machine) notify(s State) {
	if m.watch != nil {
		m.watch(s)
	}
}

// Outcome is the terminal report of an attempt. Result is set only for Done;
// Err is set for Failed and Cancelled.
type Outcome[T any] struct {
	State  State
	Result *T
	Err    error
}

// Kind classifies the outcome error. Done outcomes have no kind.
func (o Outcome[T]) Kind() types.Kind {
	if o.Err == nil {
		return ""
	}
	return types.KindOf(o.Err)
}

// Attempt is one started generation or refinement.
type Attempt[T any] struct {
	ID      string
	machine *machine
	done    chan struct{}
	outcome Outcome[T]
}

func newAttempt[T any](m *machine) *Attempt[T] {
	return &Attempt[T]{
		ID:      uuid.NewString(),
		machine: m,
		done:    make(chan struct{}),
	}
}

// State returns the attempt's current state.
func (a *Attempt[T]) State() State { return a.machine.current() }

// Done is closed once the outcome is available.
func (a *Attempt[T]) Done() <-chan struct{} { return a.done }

// Wait blocks until the attempt ends or ctx is done. The error is non-nil
// only when ctx ended first.
func (a *Attempt[T]) Wait(ctx context.Context) (Outcome[T], error) {
	select {
	case <-a.done:
		return a.outcome, nil
	case <-ctx.Done():
		return Outcome[T]{State: a.State()}, ctx.Err()
	}
}

// finish records the outcome. A machine cancelled by the caller always
// reports Cancelled, whatever the work returned.
func (a *Attempt[T]) finish(res *T, err error) {
	defer close(a.done)

	switch {
	case err == nil:
		if a.machine.advance(StateDone) {
			a.outcome = Outcome[T]{State: StateDone, Result: res}
			return
		}
	case types.IsErrorCode(err, types.ErrCancelled):
		a.machine.cancel()
		a.outcome = Outcome[T]{State: StateCancelled, Err: err}
		return
	default:
		if a.machine.fail() {
			a.outcome = Outcome[T]{State: StateFailed, Err: err}
			return
		}
	}
	a.outcome = Outcome[T]{State: StateCancelled, Err: types.NewCancelledError(context.Canceled)}
}
