package data

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// State is a status value inside one of the domain state machines.
type State string

// StateTransition is one allowed edge.
type StateTransition struct {
	From State
	To   State
}

// StateMachine evaluates status changes against a fixed edge set. A status
// with no outgoing edges is terminal.
type StateMachine struct {
	CurrentState State
	targets      map[State][]State
}

func NewStateMachine(initialState State, transitions []StateTransition) *StateMachine {
	sm := &StateMachine{
		CurrentState: initialState,
		targets:      make(map[State][]State, len(transitions)),
	}
	for _, t := range transitions {
		sm.targets[t.From] = append(sm.targets[t.From], t.To)
	}
	return sm
}

func (sm *StateMachine) CanTransitionTo(targetState State) bool {
	return slices.Contains(sm.targets[sm.CurrentState], targetState)
}

func (sm *StateMachine) TransitionTo(targetState State) error {
	if !sm.CanTransitionTo(targetState) {
		return fmt.Errorf("cannot transition from %s to %s", sm.CurrentState, targetState)
	}
	sm.CurrentState = targetState
	return nil
}
