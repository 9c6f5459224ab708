package boxes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	store      map[int64]*Box
	nextBoxID  int64
	nextItemID int64
	failSaveOn map[int64]error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{store: map[int64]*Box{}, failSaveOn: map[int64]error{}}
}

func copyBox(b *Box) Box {
	out := *b
	out.Items = append([]Item(nil), b.Items...)
	out.StateLog = append([]StateLogEntry(nil), b.StateLog...)
	return out
}

func (r *memoryRepo) GetByID(ctx context.Context, id int64) (Box, error) {
	b, ok := r.store[id]
	if !ok {
		return Box{}, ErrNotFound
	}
	return copyBox(b), nil
}

func (r *memoryRepo) GetByIDWithChildren(ctx context.Context, id int64) (Box, error) {
	return r.GetByID(ctx, id)
}

func (r *memoryRepo) FindByState(ctx context.Context, state State) ([]Box, error) {
	var out []Box
	for _, b := range r.store {
		if b.State == state {
			out = append(out, copyBox(b))
		}
	}
	return out, nil
}

func (r *memoryRepo) IsCodeActive(ctx context.Context, code string, excludeBoxID int64) (bool, error) {
	for _, b := range r.store {
		if b.ID != excludeBoxID && b.Code == code && b.State.IsActive() {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryRepo) FindStockedByCode(ctx context.Context, code string) ([]Box, error) {
	var out []Box
	for _, b := range r.store {
		if b.Code == code && b.State == StateStocked {
			out = append(out, copyBox(b))
		}
	}
	return out, nil
}

func (r *memoryRepo) Create(ctx context.Context, box *Box, entry StateLogEntry) error {
	r.nextBoxID++
	box.ID = r.nextBoxID
	for i := range box.Items {
		r.nextItemID++
		box.Items[i].ID = r.nextItemID
		box.Items[i].BoxID = box.ID
	}
	stored := copyBox(box)
	entry.BoxID = box.ID
	stored.StateLog = append(stored.StateLog, entry)
	r.store[box.ID] = &stored
	return nil
}

func (r *memoryRepo) Save(ctx context.Context, box *Box, expectedVersion int64, entry StateLogEntry) error {
	if err, ok := r.failSaveOn[box.ID]; ok {
		return err
	}
	stored, ok := r.store[box.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != expectedVersion {
		return ErrConcurrencyConflict
	}
	stored.State = box.State
	stored.Code = box.Code
	stored.Location = box.Location
	stored.Version++
	stored.UpdatedAt = entry.At
	entry.BoxID = box.ID
	stored.StateLog = append(stored.StateLog, entry)
	return nil
}

func (r *memoryRepo) InsertItem(ctx context.Context, item *Item) error {
	stored, ok := r.store[item.BoxID]
	if !ok {
		return ErrNotFound
	}
	r.nextItemID++
	item.ID = r.nextItemID
	stored.Items = append(stored.Items, *item)
	return nil
}

func (r *memoryRepo) DeleteItem(ctx context.Context, boxID, itemID int64) error {
	stored, ok := r.store[boxID]
	if !ok {
		return ErrNotFound
	}
	for i, item := range stored.Items {
		if item.ID == itemID {
			stored.Items = append(stored.Items[:i], stored.Items[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

type recordingSpawner struct {
	calls [][]Item
	err   error
}

func (s *recordingSpawner) SpawnForBox(ctx context.Context, boxID int64, items []Item) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.calls = append(s.calls, items)
	return len(items), nil
}

func fixedClock() time.Time {
	return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
}

func newTestService(repo *memoryRepo, spawner OperationSpawner) *Service {
	return NewService(repo, spawner, nil, nil, fixedClock, nil)
}

func seedBox(t *testing.T, repo *memoryRepo, svc *Service, items ...ItemInput) Box {
	t.Helper()
	box, err := svc.Create(context.Background(), CreateInput{Items: items})
	require.NoError(t, err)
	return box
}

func advance(t *testing.T, svc *Service, boxID int64, steps ...State) Box {
	t.Helper()
	var (
		box Box
		err error
	)
	for _, target := range steps {
		params := TransitionParams{}
		switch target {
		case StateOpened:
			params.Code = "BX-100"
		case StateReserve:
			params.Location = "A-01-02"
		}
		box, err = svc.RequestTransition(context.Background(), boxID, target, params)
		require.NoError(t, err)
	}
	return box
}

func TestTransitionTableCompleteness(t *testing.T) {
	all := []State{StateNew, StateOpened, StateInTransit, StateReceived, StateReserve, StateStocked, StateClosed, StateError}
	ctx := context.Background()
	for _, from := range all {
		for _, to := range all {
			if _, defined := transitionTable[statePair{from, to}]; defined {
				continue
			}
			repo := newMemoryRepo()
			svc := newTestService(repo, nil)
			box := seedBox(t, repo, svc, ItemInput{ProductCode: "SKU-1", Amount: 2})
			stored := repo.store[box.ID]
			stored.State = from
			logLen := len(stored.StateLog)

			_, err := svc.RequestTransition(ctx, box.ID, to, TransitionParams{Code: "BX-100", Location: "A-01"})
			var unsupported *UnsupportedTransitionError
			require.ErrorAs(t, err, &unsupported, "expected %s -> %s to be unsupported", from, to)
			require.Equal(t, from, unsupported.From)
			require.Equal(t, to, unsupported.To)
			require.Equal(t, from, repo.store[box.ID].State)
			require.Len(t, repo.store[box.ID].StateLog, logLen)
		}
	}
}

func TestOpenRequiresCode(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	box := seedBox(t, repo, svc)

	_, err := svc.RequestTransition(context.Background(), box.ID, StateOpened, TransitionParams{})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	require.Equal(t, "code", validation.Field)
	require.Equal(t, StateNew, repo.store[box.ID].State)
}

func TestOpenDuplicateActiveCode(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	first := seedBox(t, repo, svc)
	second := seedBox(t, repo, svc)

	_, err := svc.RequestTransition(context.Background(), first.ID, StateOpened, TransitionParams{Code: "BX-7"})
	require.NoError(t, err)

	_, err = svc.RequestTransition(context.Background(), second.ID, StateOpened, TransitionParams{Code: "BX-7"})
	var duplicate *DuplicateActiveCodeError
	require.ErrorAs(t, err, &duplicate)
	require.Equal(t, "BX-7", duplicate.Code)
	require.Equal(t, StateNew, repo.store[second.ID].State)
	require.Len(t, repo.store[second.ID].StateLog, 1)
}

func TestOpenClosesStockedBoxHoldingSameCode(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	old := seedBox(t, repo, svc)
	repo.store[old.ID].State = StateStocked
	repo.store[old.ID].Code = "BX-9"

	fresh := seedBox(t, repo, svc)
	_, err := svc.RequestTransition(context.Background(), fresh.ID, StateOpened, TransitionParams{Code: "BX-9"})
	require.NoError(t, err)

	require.Equal(t, StateClosed, repo.store[old.ID].State)
	last := repo.store[old.ID].StateLog[len(repo.store[old.ID].StateLog)-1]
	require.Equal(t, StateClosed, last.State)
	require.Contains(t, last.Note, "reassigned")
	require.Equal(t, StateOpened, repo.store[fresh.ID].State)
	require.Equal(t, "BX-9", repo.store[fresh.ID].Code)
}

func TestReserveRequiresLocation(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	box := seedBox(t, repo, svc, ItemInput{ProductCode: "SKU-1", Amount: 1})
	advance(t, svc, box.ID, StateOpened)

	_, err := svc.RequestTransition(context.Background(), box.ID, StateReserve, TransitionParams{})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	require.Equal(t, "location", validation.Field)
	require.Equal(t, StateOpened, repo.store[box.ID].State)

	updated, err := svc.RequestTransition(context.Background(), box.ID, StateReserve, TransitionParams{Location: "B-02-01"})
	require.NoError(t, err)
	require.Equal(t, "B-02-01", updated.Location)
}

func TestDispatchRequiresItems(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	box := seedBox(t, repo, svc)
	advance(t, svc, box.ID, StateOpened)

	_, err := svc.RequestTransition(context.Background(), box.ID, StateInTransit, TransitionParams{})
	var condition *ConditionNotMetError
	require.ErrorAs(t, err, &condition)
	require.Equal(t, StateInTransit, condition.Target)
}

func TestReceiveSpawnsOperationsPerItem(t *testing.T) {
	repo := newMemoryRepo()
	spawner := &recordingSpawner{}
	svc := newTestService(repo, spawner)
	box := seedBox(t, repo, svc,
		ItemInput{ProductCode: "SKU-1", Amount: 3},
		ItemInput{ProductCode: "SKU-2", Amount: 1},
	)
	advance(t, svc, box.ID, StateOpened, StateInTransit, StateReceived)

	require.Len(t, spawner.calls, 1)
	require.Len(t, spawner.calls[0], 2)
	require.Equal(t, "SKU-1", spawner.calls[0][0].ProductCode)
}

func TestReceiveHookFailureLeavesBoxUntouched(t *testing.T) {
	repo := newMemoryRepo()
	spawner := &recordingSpawner{err: errors.New("stockups down")}
	svc := newTestService(repo, spawner)
	box := seedBox(t, repo, svc, ItemInput{ProductCode: "SKU-1", Amount: 3})
	advance(t, svc, box.ID, StateOpened, StateInTransit)
	logLen := len(repo.store[box.ID].StateLog)

	_, err := svc.RequestTransition(context.Background(), box.ID, StateReceived, TransitionParams{})
	require.Error(t, err)
	require.Equal(t, StateInTransit, repo.store[box.ID].State)
	require.Len(t, repo.store[box.ID].StateLog, logLen)
}

func TestConcurrencyConflictOnStaleVersion(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	box := seedBox(t, repo, svc, ItemInput{ProductCode: "SKU-1", Amount: 1})
	advance(t, svc, box.ID, StateOpened)

	// Two writers read the same snapshot.
	stale, err := repo.GetByIDWithChildren(context.Background(), box.ID)
	require.NoError(t, err)
	logLen := len(repo.store[box.ID].StateLog)

	first := stale
	require.NoError(t, svc.applyTransition(context.Background(), &first, StateInTransit, TransitionParams{}))

	second := stale
	err = svc.applyTransition(context.Background(), &second, StateInTransit, TransitionParams{})
	require.ErrorIs(t, err, ErrConcurrencyConflict)

	require.Equal(t, StateInTransit, repo.store[box.ID].State)
	require.Len(t, repo.store[box.ID].StateLog, logLen+1)
}

func TestStateLogMatchesStateAfterTransitions(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, &recordingSpawner{})
	box := seedBox(t, repo, svc, ItemInput{ProductCode: "SKU-1", Amount: 1})
	advance(t, svc, box.ID, StateOpened, StateInTransit, StateReceived, StateStocked)

	stored := repo.store[box.ID]
	require.Equal(t, StateStocked, stored.State)
	require.Len(t, stored.StateLog, 5)
	last, ok := stored.LastLoggedState()
	require.True(t, ok)
	require.Equal(t, stored.State, last)
	require.Equal(t, fixedClock(), stored.StateLog[len(stored.StateLog)-1].At)
}

func TestCreateRejectsInvalidItems(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)

	_, err := svc.Create(context.Background(), CreateInput{Items: []ItemInput{{ProductCode: "SKU-1", Amount: 0}}})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	require.Equal(t, "amount", validation.Field)

	_, err = svc.Create(context.Background(), CreateInput{Items: []ItemInput{{Amount: 2}}})
	require.ErrorAs(t, err, &validation)
	require.Equal(t, "product_code", validation.Field)
}

func TestItemsLockedAfterDispatch(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	box := seedBox(t, repo, svc, ItemInput{ProductCode: "SKU-1", Amount: 1})
	advance(t, svc, box.ID, StateOpened, StateInTransit)

	_, err := svc.AddItem(context.Background(), box.ID, ItemInput{ProductCode: "SKU-2", Amount: 1})
	require.ErrorIs(t, err, ErrItemsLocked)

	err = svc.RemoveItem(context.Background(), box.ID, box.Items[0].ID)
	require.ErrorIs(t, err, ErrItemsLocked)
}

func TestErrorRecoveryTransitions(t *testing.T) {
	repo := newMemoryRepo()
	spawner := &recordingSpawner{}
	svc := newTestService(repo, spawner)
	box := seedBox(t, repo, svc, ItemInput{ProductCode: "SKU-1", Amount: 1})
	advance(t, svc, box.ID, StateOpened, StateInTransit, StateReceived, StateError)

	// Re-entering Received re-runs the idempotent spawn hook.
	updated := advance(t, svc, box.ID, StateReceived)
	require.Equal(t, StateReceived, updated.State)
	require.Len(t, spawner.calls, 2)
}
