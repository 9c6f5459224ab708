package stockups

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// State enumerates the stock-up operation lifecycle. The external
// integration layer drives Pending through Verified; terminal states may
// also be set from reconciliation.
type State string

const (
	StatePending   State = "PENDING"
	StateSubmitted State = "SUBMITTED"
	StateVerified  State = "VERIFIED"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
)

// IsValid checks if the state is part of the lifecycle.
func (s State) IsValid() bool {
	switch s {
	case StatePending, StateSubmitted, StateVerified, StateCompleted, StateFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the state ends the normal lifecycle.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// SourceType identifies the entity that spawned an operation.
type SourceType string

// SourceBox marks operations spawned by a transport box.
const SourceBox SourceType = "BOX"

// Operation is one externally executed inventory adjustment tied to a box
// item. The document number is its natural key and dedup handle.
type Operation struct {
	ID             int64
	DocumentNumber string
	SourceType     SourceType
	SourceID       int64
	ProductCode    string
	Amount         float64
	State          State
	ErrorMessage   string
	CreatedAt      time.Time
	SubmittedAt    *time.Time
	VerifiedAt     *time.Time
	CompletedAt    *time.Time
	FailedAt       *time.Time
	UpdatedAt      time.Time
}

// DocumentNumber derives the deterministic natural key for a box item.
func DocumentNumber(boxID int64, productCode string) string {
	return fmt.Sprintf("BOX-%06d-%s", boxID, productCode)
}

var (
	// ErrNotFound indicates the operation does not exist.
	ErrNotFound = errors.New("stockups: operation not found")
	// ErrDuplicateDocument indicates the document number already exists.
	ErrDuplicateDocument = errors.New("stockups: document number already exists")
	// ErrEmptyErrorMessage rejects MarkFailed without a message.
	ErrEmptyErrorMessage = errors.New("stockups: failure requires an error message")
	// ErrTerminalConflict rejects a terminal transition that would overwrite
	// the opposite terminal outcome.
	ErrTerminalConflict = errors.New("stockups: operation already finished with a different outcome")
)

// InvalidTransitionError reports an illegal state move.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("stockups: transition %s -> %s is not allowed", e.From, e.To)
}

// Submit moves a pending operation to Submitted.
func (o *Operation) Submit(now time.Time) error {
	if o.State != StatePending {
		return &InvalidTransitionError{From: o.State, To: StateSubmitted}
	}
	o.State = StateSubmitted
	o.SubmittedAt = &now
	o.UpdatedAt = now
	return nil
}

// Verify moves a submitted operation to Verified.
func (o *Operation) Verify(now time.Time) error {
	if o.State != StateSubmitted {
		return &InvalidTransitionError{From: o.State, To: StateVerified}
	}
	o.State = StateVerified
	o.VerifiedAt = &now
	o.UpdatedAt = now
	return nil
}

// Complete marks a verified operation as Completed. Completing an already
// Completed operation is a no-op; completing a Failed one is a conflict.
func (o *Operation) Complete(now time.Time) error {
	switch o.State {
	case StateCompleted:
		return nil
	case StateFailed:
		return ErrTerminalConflict
	case StateVerified:
		o.State = StateCompleted
		o.CompletedAt = &now
		o.UpdatedAt = now
		return nil
	default:
		return &InvalidTransitionError{From: o.State, To: StateCompleted}
	}
}

// Fail marks a non-terminal operation as Failed with the given message.
// Failing an already Failed operation is a no-op; failing a Completed one is
// a conflict. The message is mandatory.
func (o *Operation) Fail(now time.Time, message string) error {
	switch o.State {
	case StateFailed:
		return nil
	case StateCompleted:
		return ErrTerminalConflict
	}
	if strings.TrimSpace(message) == "" {
		return ErrEmptyErrorMessage
	}
	o.State = StateFailed
	o.ErrorMessage = message
	o.FailedAt = &now
	o.UpdatedAt = now
	return nil
}

// Reset returns a failed operation to Pending, clearing downstream
// timestamps and the error message. Operator recovery only.
func (o *Operation) Reset(now time.Time) error {
	if o.State != StateFailed {
		return &InvalidTransitionError{From: o.State, To: StatePending}
	}
	o.State = StatePending
	o.ErrorMessage = ""
	o.SubmittedAt = nil
	o.VerifiedAt = nil
	o.CompletedAt = nil
	o.FailedAt = nil
	o.UpdatedAt = now
	return nil
}
