package workflow

import (
	"context"
	"fmt"
)

// GuardFunc is a function that evaluates whether a transition should be allowed
type GuardFunc func(ctx context.Context) bool

// StateMachine tracks the current state and validates transitions
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire returns true if the trigger has a transition whose guard passes
	CanFire(ctx context.Context, trigger Trigger) bool

	// Fire attempts to execute the trigger, transitioning to the new state if allowed
	Fire(ctx context.Context, trigger Trigger) error

	// PermittedTriggers returns the triggers configured for the current state
	PermittedTriggers() []Trigger
}

// StateMachineBuilder builds a configured state machine
type StateMachineBuilder interface {
	Configure(state State) StateConfiguration
	Build(initialState State) StateMachine
}

// StateConfiguration configures transitions for a specific state
type StateConfiguration interface {
	Permit(trigger Trigger, toState State) StateConfiguration
	PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration
}

type transition struct {
	toState State
	guard   GuardFunc
}

// transitionTable maps state -> trigger -> candidate transitions, tried in order
type transitionTable map[State]map[Trigger][]transition

func (t transitionTable) clone() transitionTable {
	out := make(transitionTable, len(t))
	for state, byTrigger := range t {
		m := make(map[Trigger][]transition, len(byTrigger))
		for trigger, ts := range byTrigger {
			m[trigger] = append([]transition(nil), ts...)
		}
		out[state] = m
	}
	return out
}

type stateMachineBuilder struct {
	table transitionTable
}

type stateConfig struct {
	from  State
	table transitionTable
}

// NewBuilder creates a new state machine builder
func NewBuilder() StateMachineBuilder {
	return &stateMachineBuilder{table: make(transitionTable)}
}

func (b *stateMachineBuilder) Configure(state State) StateConfiguration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}
	if _, ok := b.table[state]; !ok {
		b.table[state] = make(map[Trigger][]transition)
	}
	return &stateConfig{from: state, table: b.table}
}

// Build creates a machine with its own copy of the table, so later Configure calls do not leak into it
func (b *stateMachineBuilder) Build(initialState State) StateMachine {
	if !initialState.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", initialState))
	}
	return &stateMachine{current: initialState, table: b.table.clone()}
}

func (c *stateConfig) Permit(trigger Trigger, toState State) StateConfiguration {
	return c.PermitIf(trigger, toState, nil)
}

func (c *stateConfig) PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration {
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}
	c.table[c.from][trigger] = append(c.table[c.from][trigger], transition{toState: toState, guard: guard})
	return c
}

type stateMachine struct {
	current State
	table   transitionTable
}

func (m *stateMachine) State() State {
	return m.current
}

func (m *stateMachine) CanFire(ctx context.Context, trigger Trigger) bool {
	_, ok := m.pick(ctx, trigger)
	return ok
}

func (m *stateMachine) Fire(ctx context.Context, trigger Trigger) error {
	candidates := m.table[m.current][trigger]
	if len(candidates) == 0 {
		return fmt.Errorf("%w: cannot fire trigger %s from state %s", ErrInvalidTransition, trigger, m.current)
	}
	t, ok := m.pick(ctx, trigger)
	if !ok {
		return fmt.Errorf("%w: trigger %s from state %s", ErrGuardFailed, trigger, m.current)
	}
	m.current = t.toState
	return nil
}

func (m *stateMachine) pick(ctx context.Context, trigger Trigger) (transition, bool) {
	for _, t := range m.table[m.current][trigger] {
		if t.guard == nil || t.guard(ctx) {
			return t, true
		}
	}
	return transition{}, false
}

func (m *stateMachine) PermittedTriggers() []Trigger {
	byTrigger := m.table[m.current]
	triggers := make([]Trigger, 0, len(byTrigger))
	for trigger, ts := range byTrigger {
		if len(ts) > 0 {
			triggers = append(triggers, trigger)
		}
	}
	return triggers
}
