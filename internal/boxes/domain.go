package boxes

import (
	"errors"
	"fmt"
	"time"
)

// State enumerates the transport box lifecycle.
type State string

const (
	StateNew       State = "NEW"
	StateOpened    State = "OPENED"
	StateInTransit State = "IN_TRANSIT"
	StateReceived  State = "RECEIVED"
	StateReserve   State = "RESERVE"
	StateStocked   State = "STOCKED"
	StateClosed    State = "CLOSED"
	StateError     State = "ERROR"
)

// IsValid checks if the state is part of the lifecycle.
func (s State) IsValid() bool {
	switch s {
	case StateNew, StateOpened, StateInTransit, StateReceived, StateReserve, StateStocked, StateClosed, StateError:
		return true
	default:
		return false
	}
}

// IsActive reports whether a box in this state holds its code exclusively.
// Two boxes may never share a code while both are active.
func (s State) IsActive() bool {
	switch s {
	case StateNew, StateOpened, StateInTransit, StateReceived, StateReserve:
		return true
	default:
		return false
	}
}

// ActiveStates lists the states in which a box code counts as taken.
func ActiveStates() []State {
	return []State{StateNew, StateOpened, StateInTransit, StateReceived, StateReserve}
}

// Item is one product line inside a box.
type Item struct {
	ID          int64
	BoxID       int64
	ProductCode string
	ProductName string
	Amount      float64
}

// StateLogEntry is one append-only audit record of a state change.
type StateLogEntry struct {
	ID    int64
	BoxID int64
	State State
	At    time.Time
	Actor string
	Note  string
}

// Box is a tracked shipment container. It is mutated only through the
// transition engine; Version is the optimistic concurrency token compared at
// write time.
type Box struct {
	ID          int64
	Code        string
	State       State
	Location    string
	Description string
	Items       []Item
	StateLog    []StateLogEntry
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// LastLoggedState returns the state of the most recent log entry. It must
// always equal Box.State once at least one entry exists.
func (b *Box) LastLoggedState() (State, bool) {
	if len(b.StateLog) == 0 {
		return "", false
	}
	return b.StateLog[len(b.StateLog)-1].State, true
}

// Sentinel errors shared by service and repository.
var (
	// ErrNotFound indicates the box does not exist.
	ErrNotFound = errors.New("boxes: box not found")
	// ErrConcurrencyConflict indicates the box was modified by another
	// writer since it was read. The caller should reload and retry.
	ErrConcurrencyConflict = errors.New("boxes: box modified by another writer")
)

// ValidationError reports a missing or malformed field on a request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("boxes: invalid %s: %s", e.Field, e.Reason)
}

// UnsupportedTransitionError reports a (from, to) pair with no definition.
type UnsupportedTransitionError struct {
	From State
	To   State
}

func (e *UnsupportedTransitionError) Error() string {
	return fmt.Sprintf("boxes: transition %s -> %s is not supported", e.From, e.To)
}

// ConditionNotMetError reports a guard rejection for the target state.
type ConditionNotMetError struct {
	Target State
	Reason string
}

func (e *ConditionNotMetError) Error() string {
	return fmt.Sprintf("boxes: condition for %s not met: %s", e.Target, e.Reason)
}

// DuplicateActiveCodeError reports that another active box holds the code.
type DuplicateActiveCodeError struct {
	Code string
}

func (e *DuplicateActiveCodeError) Error() string {
	return fmt.Sprintf("boxes: code %q is already active on another box", e.Code)
}
