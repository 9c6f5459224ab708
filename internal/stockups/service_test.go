package stockups

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	byID    map[int64]Operation
	byDoc   map[string]int64
	nextID  int64
	updates int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{byID: map[int64]Operation{}, byDoc: map[string]int64{}}
}

func (r *memoryRepo) GetByID(ctx context.Context, id int64) (Operation, error) {
	op, ok := r.byID[id]
	if !ok {
		return Operation{}, ErrNotFound
	}
	return op, nil
}

func (r *memoryRepo) GetByDocumentNumber(ctx context.Context, docNumber string) (Operation, error) {
	id, ok := r.byDoc[docNumber]
	if !ok {
		return Operation{}, ErrNotFound
	}
	return r.byID[id], nil
}

func (r *memoryRepo) GetBySource(ctx context.Context, sourceType SourceType, sourceID int64) ([]Operation, error) {
	var out []Operation
	for _, op := range r.byID {
		if op.SourceType == sourceType && op.SourceID == sourceID {
			out = append(out, op)
		}
	}
	return out, nil
}

func (r *memoryRepo) FindByState(ctx context.Context, state State) ([]Operation, error) {
	var out []Operation
	for _, op := range r.byID {
		if op.State == state {
			out = append(out, op)
		}
	}
	return out, nil
}

func (r *memoryRepo) Insert(ctx context.Context, op *Operation) error {
	if _, exists := r.byDoc[op.DocumentNumber]; exists {
		return ErrDuplicateDocument
	}
	r.nextID++
	op.ID = r.nextID
	r.byID[op.ID] = *op
	r.byDoc[op.DocumentNumber] = op.ID
	return nil
}

func (r *memoryRepo) Update(ctx context.Context, op Operation) error {
	if _, ok := r.byID[op.ID]; !ok {
		return ErrNotFound
	}
	r.byID[op.ID] = op
	r.updates++
	return nil
}

func serviceClock() time.Time {
	return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
}

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, nil, nil, serviceClock, nil)
}

func TestSpawnForBoxIsIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	items := []SpawnItem{
		{ProductCode: "SKU-1", Amount: 3},
		{ProductCode: "SKU-2", Amount: 1},
	}

	created, err := svc.SpawnForBox(ctx, 42, items)
	require.NoError(t, err)
	require.Equal(t, 2, created)

	// Re-running for the same box creates nothing new.
	created, err = svc.SpawnForBox(ctx, 42, items)
	require.NoError(t, err)
	require.Zero(t, created)
	require.Len(t, repo.byID, 2)

	op, err := repo.GetByDocumentNumber(ctx, DocumentNumber(42, "SKU-1"))
	require.NoError(t, err)
	require.Equal(t, SourceBox, op.SourceType)
	require.Equal(t, int64(42), op.SourceID)
	require.Equal(t, StatePending, op.State)
	require.InDelta(t, 3.0, op.Amount, 0.0001)
}

func TestSpawnForBoxFillsMissingOperations(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	created, err := svc.SpawnForBox(ctx, 7, []SpawnItem{{ProductCode: "SKU-1", Amount: 2}})
	require.NoError(t, err)
	require.Equal(t, 1, created)

	created, err = svc.SpawnForBox(ctx, 7, []SpawnItem{
		{ProductCode: "SKU-1", Amount: 2},
		{ProductCode: "SKU-3", Amount: 5},
	})
	require.NoError(t, err)
	require.Equal(t, 1, created)
	require.Len(t, repo.byID, 2)
}

func TestSpawnForBoxRejectsInvalidItems(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	_, err := svc.SpawnForBox(context.Background(), 7, []SpawnItem{{ProductCode: "", Amount: 2}})
	require.Error(t, err)

	_, err = svc.SpawnForBox(context.Background(), 7, []SpawnItem{{ProductCode: "SKU-1", Amount: 0}})
	require.Error(t, err)
}

func TestMarkCompletedIdempotentViaService(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	_, err := svc.SpawnForBox(ctx, 1, []SpawnItem{{ProductCode: "SKU-1", Amount: 1}})
	require.NoError(t, err)

	_, err = svc.MarkSubmitted(ctx, 1)
	require.NoError(t, err)
	_, err = svc.MarkVerified(ctx, 1)
	require.NoError(t, err)
	_, err = svc.MarkCompleted(ctx, 1)
	require.NoError(t, err)
	updates := repo.updates

	op, err := svc.MarkCompleted(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, StateCompleted, op.State)
	require.Equal(t, updates, repo.updates, "idempotent repeat must not persist")

	_, err = svc.MarkFailed(ctx, 1, "late failure")
	require.ErrorIs(t, err, ErrTerminalConflict)
}

func TestResetReturnsFailedOperationToPending(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	_, err := svc.SpawnForBox(ctx, 1, []SpawnItem{{ProductCode: "SKU-1", Amount: 1}})
	require.NoError(t, err)

	_, err = svc.MarkFailed(ctx, 1, "document rejected")
	require.NoError(t, err)

	op, err := svc.Reset(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, StatePending, op.State)
	require.Empty(t, op.ErrorMessage)

	stored, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, StatePending, stored.State)
}
