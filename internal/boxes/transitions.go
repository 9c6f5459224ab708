package boxes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// TransitionParams carries the optional request fields a transition may need.
type TransitionParams struct {
	Code        string
	Location    string
	Description string
}

type statePair struct {
	from State
	to   State
}

// guardFunc is a pure predicate over the box and request params. A false
// result is reported as ConditionNotMetError with the returned reason.
type guardFunc func(box *Box, params TransitionParams) (bool, string)

// hookFunc runs a side effect before the state is committed and may fail,
// leaving the box untouched.
type hookFunc func(s *Service, ctx context.Context, box *Box, params TransitionParams) error

type transition struct {
	guard guardFunc
	hook  hookFunc
}

// transitionTable is the closed set of legal lifecycle moves. Pairs absent
// from the table are rejected as unsupported. It is populated in init to
// break the initialization cycle through openHook and applyTransition.
var transitionTable map[statePair]transition

func init() {
	transitionTable = map[statePair]transition{
		{StateNew, StateOpened}:         {hook: (*Service).openHook},
		{StateNew, StateClosed}:         {},
		{StateOpened, StateInTransit}:   {guard: guardHasItems},
		{StateOpened, StateReserve}:     {guard: guardHasItems, hook: (*Service).reserveHook},
		{StateInTransit, StateReceived}: {hook: (*Service).receiveHook},
		{StateReserve, StateReceived}:   {hook: (*Service).receiveHook},
		{StateReceived, StateStocked}:   {},
		{StateReceived, StateError}:     {},
		{StateStocked, StateClosed}:     {},
		{StateError, StateOpened}:       {},
		{StateError, StateReceived}:     {hook: (*Service).receiveHook},
	}
}

func guardHasItems(box *Box, _ TransitionParams) (bool, string) {
	if len(box.Items) == 0 {
		return false, "box has no items"
	}
	return true, ""
}

// openHook assigns the box code. The code must not be active on another box;
// a leftover Stocked box still holding it is closed as cleanup.
func (s *Service) openHook(ctx context.Context, box *Box, params TransitionParams) error {
	code := strings.TrimSpace(params.Code)
	if code == "" {
		code = box.Code
	}
	if code == "" {
		return &ValidationError{Field: "code", Reason: "required to open a box"}
	}
	taken, err := s.repo.IsCodeActive(ctx, code, box.ID)
	if err != nil {
		return err
	}
	if taken {
		return &DuplicateActiveCodeError{Code: code}
	}
	stocked, err := s.repo.FindStockedByCode(ctx, code)
	if err != nil {
		return err
	}
	for i := range stocked {
		if stocked[i].ID == box.ID {
			continue
		}
		note := fmt.Sprintf("code %s reassigned to box %d", code, box.ID)
		if err := s.applyTransition(ctx, &stocked[i], StateClosed, TransitionParams{Description: note}); err != nil {
			return err
		}
	}
	box.Code = code
	return nil
}

// reserveHook requires a storage location before the box may hold reserve stock.
func (s *Service) reserveHook(_ context.Context, box *Box, params TransitionParams) error {
	location := strings.TrimSpace(params.Location)
	if location == "" {
		return &ValidationError{Field: "location", Reason: "required to move a box to reserve"}
	}
	box.Location = location
	return nil
}

// receiveHook spawns one stock-up operation per item. Spawning is idempotent
// on the deterministic document number, so re-entering Received is safe.
func (s *Service) receiveHook(ctx context.Context, box *Box, _ TransitionParams) error {
	if s.spawner == nil {
		return nil
	}
	created, err := s.spawner.SpawnForBox(ctx, box.ID, box.Items)
	if err != nil {
		return fmt.Errorf("boxes: spawn stock-up operations for box %d: %w", box.ID, err)
	}
	if created > 0 && s.logger != nil {
		s.logger.Info("stock-up operations spawned",
			slog.Int64("box_id", box.ID),
			slog.Int("created", created),
		)
	}
	return nil
}
