package stockups

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	GetByID(ctx context.Context, id int64) (Operation, error)
	GetByDocumentNumber(ctx context.Context, docNumber string) (Operation, error)
	GetBySource(ctx context.Context, sourceType SourceType, sourceID int64) ([]Operation, error)
	FindByState(ctx context.Context, state State) ([]Operation, error)
	Insert(ctx context.Context, op *Operation) error
	Update(ctx context.Context, op Operation) error
}

// AuditPort abstracts operator action logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// SpawnItem is one box item an operation should be created for.
type SpawnItem struct {
	ProductCode string
	Amount      float64
}

// Service coordinates stock-up operations.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	actors shared.ActorResolver
	clock  shared.Clock
	logger *slog.Logger
}

// NewService builds Service. Audit may be nil.
func NewService(repo RepositoryPort, audit AuditPort, actors shared.ActorResolver, clock shared.Clock, logger *slog.Logger) *Service {
	if actors == nil {
		actors = shared.ContextActorResolver{}
	}
	if clock == nil {
		clock = shared.SystemClock
	}
	return &Service{repo: repo, audit: audit, actors: actors, clock: clock, logger: logger}
}

// SpawnForBox creates one pending operation per item, keyed by the
// deterministic document number. Items whose document number already exists
// are skipped, so re-running for the same box never duplicates operations.
// It returns the number of operations actually created.
func (s *Service) SpawnForBox(ctx context.Context, boxID int64, items []SpawnItem) (int, error) {
	created := 0
	now := s.clock().UTC()
	for _, item := range items {
		if item.ProductCode == "" {
			return created, fmt.Errorf("stockups: box %d item without product code", boxID)
		}
		if item.Amount == 0 {
			return created, fmt.Errorf("stockups: box %d item %s with zero amount", boxID, item.ProductCode)
		}
		docNumber := DocumentNumber(boxID, item.ProductCode)
		if _, err := s.repo.GetByDocumentNumber(ctx, docNumber); err == nil {
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return created, err
		}
		op := Operation{
			DocumentNumber: docNumber,
			SourceType:     SourceBox,
			SourceID:       boxID,
			ProductCode:    item.ProductCode,
			Amount:         item.Amount,
			State:          StatePending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.repo.Insert(ctx, &op); err != nil {
			// A concurrent spawner won the race; the operation exists.
			if errors.Is(err, ErrDuplicateDocument) {
				continue
			}
			return created, err
		}
		created++
	}
	return created, nil
}

// Get returns a single operation.
func (s *Service) Get(ctx context.Context, id int64) (Operation, error) {
	return s.repo.GetByID(ctx, id)
}

// ListBySource lists operations spawned by the given source entity.
func (s *Service) ListBySource(ctx context.Context, sourceType SourceType, sourceID int64) ([]Operation, error) {
	return s.repo.GetBySource(ctx, sourceType, sourceID)
}

// MarkSubmitted records that the external system accepted the document.
func (s *Service) MarkSubmitted(ctx context.Context, id int64) (Operation, error) {
	return s.mutate(ctx, id, "stockups:submit", func(op *Operation) error {
		return op.Submit(s.clock().UTC())
	})
}

// MarkVerified records external verification of the document.
func (s *Service) MarkVerified(ctx context.Context, id int64) (Operation, error) {
	return s.mutate(ctx, id, "stockups:verify", func(op *Operation) error {
		return op.Verify(s.clock().UTC())
	})
}

// MarkCompleted records the terminal success outcome. Idempotent for an
// already completed operation.
func (s *Service) MarkCompleted(ctx context.Context, id int64) (Operation, error) {
	return s.mutate(ctx, id, "stockups:complete", func(op *Operation) error {
		return op.Complete(s.clock().UTC())
	})
}

// MarkFailed records the terminal failure outcome with a mandatory message.
func (s *Service) MarkFailed(ctx context.Context, id int64, message string) (Operation, error) {
	return s.mutate(ctx, id, "stockups:fail", func(op *Operation) error {
		return op.Fail(s.clock().UTC(), message)
	})
}

// Reset returns a failed operation to Pending for operator-driven recovery.
func (s *Service) Reset(ctx context.Context, id int64) (Operation, error) {
	return s.mutate(ctx, id, "stockups:reset", func(op *Operation) error {
		return op.Reset(s.clock().UTC())
	})
}

func (s *Service) mutate(ctx context.Context, id int64, action string, fn func(*Operation) error) (Operation, error) {
	op, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Operation{}, err
	}
	before := op.State
	if err := fn(&op); err != nil {
		return Operation{}, err
	}
	if op.State == before && before.IsTerminal() {
		// Idempotent terminal repeat, nothing to persist.
		return op, nil
	}
	if err := s.repo.Update(ctx, op); err != nil {
		return Operation{}, err
	}
	s.recordAudit(ctx, action, op, before)
	return op, nil
}

func (s *Service) recordAudit(ctx context.Context, action string, op Operation, from State) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    s.actors.GetActingUserName(ctx),
		Action:   action,
		Entity:   "stock_up_operation",
		EntityID: op.DocumentNumber,
		Meta: map[string]any{
			"from":  string(from),
			"to":    string(op.State),
			"error": op.ErrorMessage,
		},
		At: s.clock().UTC(),
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit record failed", slog.Any("error", err))
	}
}
