package autosave

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"
)

// Save-cycle phases. These are untyped string constants for
// statekit.StateID compatibility.
const (
	PhaseIdle     = "idle"
	PhasePending  = "pending"
	PhaseSaving   = "saving"
	PhaseRetrying = "retrying"
	PhaseError    = "error"
)

// Save-cycle events.
const (
	eventQueue   = "queue"
	eventFlush   = "flush"
	eventSucceed = "succeed"
	eventRetry   = "retry"
	eventFail    = "fail"
	eventClear   = "clear"
)

// phaseMachine wraps the statekit interpreter that owns the save-cycle
// phase. Making the cycle an explicit machine keeps the single-flight
// invariant visible instead of burying it in captured booleans.
type phaseMachine struct {
	interpreter *statekit.Interpreter[struct{}]
}

func newPhaseMachine() (*phaseMachine, error) {
	builder := statekit.NewMachine[struct{}]("save-cycle").
		WithInitial(statekit.StateID(PhaseIdle))

	builder.State(PhaseIdle).
		On(eventQueue).Target(PhasePending).
		Done()

	builder.State(PhasePending).
		On(eventQueue).Target(PhasePending).
		On(eventFlush).Target(PhaseSaving).
		On(eventClear).Target(PhaseIdle).
		Done()

	builder.State(PhaseSaving).
		On(eventSucceed).Target(PhaseIdle).
		On(eventRetry).Target(PhaseRetrying).
		On(eventFail).Target(PhaseError).
		Done()

	builder.State(PhaseRetrying).
		On(eventFlush).Target(PhaseSaving).
		On(eventClear).Target(PhaseIdle).
		Done()

	// A manual retry flushes straight out of the error phase; the
	// failed payload is still held by the saver.
	builder.State(PhaseError).
		On(eventQueue).Target(PhasePending).
		On(eventFlush).Target(PhaseSaving).
		On(eventClear).Target(PhaseIdle).
		Done()

	machine, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("build save-cycle machine: %w", err)
	}

	interpreter := statekit.NewInterpreter(machine)
	interpreter.Start()
	return &phaseMachine{interpreter: interpreter}, nil
}

// send fires an event. The phase stays put if the event is not valid in
// the current phase, which would indicate a bug in the saver.
func (m *phaseMachine) send(event string) error {
	before := m.current()
	m.interpreter.Send(statekit.Event{Type: statekit.EventType(event)})
	after := m.current()
	if before == after && !(event == eventQueue && before == PhasePending) {
		return fmt.Errorf("save-cycle: event %q not valid in phase %q", event, before)
	}
	return nil
}

func (m *phaseMachine) current() string {
	return string(m.interpreter.State().Value)
}
