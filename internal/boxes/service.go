package boxes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	GetByID(ctx context.Context, id int64) (Box, error)
	GetByIDWithChildren(ctx context.Context, id int64) (Box, error)
	FindByState(ctx context.Context, state State) ([]Box, error)
	IsCodeActive(ctx context.Context, code string, excludeBoxID int64) (bool, error)
	FindStockedByCode(ctx context.Context, code string) ([]Box, error)
	Create(ctx context.Context, box *Box, entry StateLogEntry) error
	Save(ctx context.Context, box *Box, expectedVersion int64, entry StateLogEntry) error
	InsertItem(ctx context.Context, item *Item) error
	DeleteItem(ctx context.Context, boxID, itemID int64) error
}

// OperationSpawner creates stock-up operations when a box is received.
// Implementations must be idempotent per (box, item) pair.
type OperationSpawner interface {
	SpawnForBox(ctx context.Context, boxID int64, items []Item) (int, error)
}

// AuditPort abstracts operator action logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns the box lifecycle and its guarded transition engine.
type Service struct {
	repo    RepositoryPort
	spawner OperationSpawner
	audit   AuditPort
	actors  shared.ActorResolver
	clock   shared.Clock
	logger  *slog.Logger
}

// NewService builds Service. Spawner and audit may be nil.
func NewService(repo RepositoryPort, spawner OperationSpawner, audit AuditPort, actors shared.ActorResolver, clock shared.Clock, logger *slog.Logger) *Service {
	if actors == nil {
		actors = shared.ContextActorResolver{}
	}
	if clock == nil {
		clock = shared.SystemClock
	}
	return &Service{repo: repo, spawner: spawner, audit: audit, actors: actors, clock: clock, logger: logger}
}

// ItemInput describes one product line for creation or item edits.
type ItemInput struct {
	ProductCode string
	ProductName string
	Amount      float64
}

// CreateInput describes a new box request.
type CreateInput struct {
	Code        string
	Description string
	Items       []ItemInput
}

// ErrItemsLocked rejects item edits after a box has been dispatched.
var ErrItemsLocked = errors.New("boxes: items can only be edited before dispatch")

// Create registers a new box in the New state with its first log entry.
func (s *Service) Create(ctx context.Context, input CreateInput) (Box, error) {
	code := strings.TrimSpace(input.Code)
	if code != "" {
		taken, err := s.repo.IsCodeActive(ctx, code, 0)
		if err != nil {
			return Box{}, err
		}
		if taken {
			return Box{}, &DuplicateActiveCodeError{Code: code}
		}
	}
	items := make([]Item, 0, len(input.Items))
	for _, in := range input.Items {
		item, err := newItem(in)
		if err != nil {
			return Box{}, err
		}
		items = append(items, item)
	}
	now := s.clock().UTC()
	actor := s.actors.GetActingUserName(ctx)
	box := Box{
		Code:        code,
		State:       StateNew,
		Description: strings.TrimSpace(input.Description),
		Items:       items,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	entry := StateLogEntry{State: StateNew, At: now, Actor: actor, Note: "box created"}
	if err := s.repo.Create(ctx, &box, entry); err != nil {
		return Box{}, err
	}
	box.StateLog = append(box.StateLog, entry)
	s.recordAudit(ctx, actor, "boxes:create", box.ID, map[string]any{"code": code})
	return box, nil
}

// Get returns the box with items and state log.
func (s *Service) Get(ctx context.Context, id int64) (Box, error) {
	return s.repo.GetByIDWithChildren(ctx, id)
}

// FindByState lists boxes currently in the given state.
func (s *Service) FindByState(ctx context.Context, state State) ([]Box, error) {
	if !state.IsValid() {
		return nil, &ValidationError{Field: "state", Reason: "unknown state"}
	}
	return s.repo.FindByState(ctx, state)
}

// AddItem appends a product line to a box that has not been dispatched yet.
func (s *Service) AddItem(ctx context.Context, boxID int64, input ItemInput) (Item, error) {
	box, err := s.repo.GetByID(ctx, boxID)
	if err != nil {
		return Item{}, err
	}
	if box.State != StateNew && box.State != StateOpened {
		return Item{}, ErrItemsLocked
	}
	item, err := newItem(input)
	if err != nil {
		return Item{}, err
	}
	item.BoxID = boxID
	if err := s.repo.InsertItem(ctx, &item); err != nil {
		return Item{}, err
	}
	return item, nil
}

// RemoveItem deletes a product line from a box that has not been dispatched yet.
func (s *Service) RemoveItem(ctx context.Context, boxID, itemID int64) error {
	box, err := s.repo.GetByID(ctx, boxID)
	if err != nil {
		return err
	}
	if box.State != StateNew && box.State != StateOpened {
		return ErrItemsLocked
	}
	return s.repo.DeleteItem(ctx, boxID, itemID)
}

// RequestTransition moves a box to the target state through the transition
// table. Guard or hook failure leaves the box exactly as it was. A stale
// version surfaces as ErrConcurrencyConflict and must be retried by the
// caller, never merged.
func (s *Service) RequestTransition(ctx context.Context, boxID int64, target State, params TransitionParams) (Box, error) {
	if !target.IsValid() {
		return Box{}, &ValidationError{Field: "target", Reason: "unknown state"}
	}
	box, err := s.repo.GetByIDWithChildren(ctx, boxID)
	if err != nil {
		return Box{}, err
	}
	from := box.State
	if err := s.applyTransition(ctx, &box, target, params); err != nil {
		return Box{}, err
	}
	s.recordAudit(ctx, s.actors.GetActingUserName(ctx), "boxes:transition", box.ID, map[string]any{
		"from": string(from),
		"to":   string(target),
		"note": params.Description,
	})
	return box, nil
}

// applyTransition is the table-driven engine shared by RequestTransition and
// cleanup hooks. It mutates box only on success.
func (s *Service) applyTransition(ctx context.Context, box *Box, target State, params TransitionParams) error {
	def, ok := transitionTable[statePair{from: box.State, to: target}]
	if !ok {
		return &UnsupportedTransitionError{From: box.State, To: target}
	}
	if def.guard != nil {
		if ok, reason := def.guard(box, params); !ok {
			return &ConditionNotMetError{Target: target, Reason: reason}
		}
	}
	if def.hook != nil {
		if err := def.hook(s, ctx, box, params); err != nil {
			return err
		}
	}
	now := s.clock().UTC()
	entry := StateLogEntry{
		BoxID: box.ID,
		State: target,
		At:    now,
		Actor: s.actors.GetActingUserName(ctx),
		Note:  params.Description,
	}
	prev := box.State
	box.State = target
	if err := s.repo.Save(ctx, box, box.Version, entry); err != nil {
		box.State = prev
		return err
	}
	box.Version++
	box.UpdatedAt = now
	box.StateLog = append(box.StateLog, entry)
	if s.logger != nil {
		s.logger.Info("box transitioned",
			slog.Int64("box_id", box.ID),
			slog.String("from", string(prev)),
			slog.String("to", string(target)),
		)
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actor, action string, boxID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   "transport_box",
		EntityID: fmt.Sprintf("%d", boxID),
		Meta:     meta,
		At:       s.clock().UTC(),
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit record failed", slog.Any("error", err))
	}
}

func newItem(input ItemInput) (Item, error) {
	code := strings.TrimSpace(input.ProductCode)
	if code == "" {
		return Item{}, &ValidationError{Field: "product_code", Reason: "required"}
	}
	if input.Amount <= 0 {
		return Item{}, &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	return Item{
		ProductCode: code,
		ProductName: strings.TrimSpace(input.ProductName),
		Amount:      input.Amount,
	}, nil
}
