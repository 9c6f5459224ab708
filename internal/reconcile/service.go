// Package reconcile bridges stock-up operation completion to box completion.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-wms/meridian-wms/internal/boxes"
	"github.com/meridian-wms/meridian-wms/internal/stockups"
)

// NoOperationsMessage is recorded when a received box has no operations at
// all, which means operation creation was skipped upstream.
const NoOperationsMessage = "no stock-up operations found for this box"

// BoxPort is the slice of the box service the tick needs.
type BoxPort interface {
	FindByState(ctx context.Context, state boxes.State) ([]boxes.Box, error)
	RequestTransition(ctx context.Context, boxID int64, target boxes.State, params boxes.TransitionParams) (boxes.Box, error)
}

// OperationPort is the slice of the stockups repository the tick needs.
type OperationPort interface {
	GetBySource(ctx context.Context, sourceType stockups.SourceType, sourceID int64) ([]stockups.Operation, error)
}

// Report accumulates per-tick counters for observability. Processed counts
// every box evaluated; Completed, Failed and Skipped partition it.
type Report struct {
	Processed int
	Completed int
	Failed    int
	Skipped   int
}

// Service runs the periodic reconciliation tick.
type Service struct {
	boxes       BoxPort
	operations  OperationPort
	concurrency int
	logger      *slog.Logger
}

// NewService builds Service. Concurrency below 1 falls back to sequential.
func NewService(boxPort BoxPort, operationPort OperationPort, concurrency int, logger *slog.Logger) *Service {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Service{boxes: boxPort, operations: operationPort, concurrency: concurrency, logger: logger}
}

type outcome int

const (
	outcomeCompleted outcome = iota
	outcomeFailed
	outcomeSkipped
)

// Run evaluates every box awaiting reconciliation once. Boxes are processed
// independently with bounded concurrency; a failure on one box never aborts
// its siblings. Re-running with unchanged operation states is a no-op.
func (s *Service) Run(ctx context.Context) (Report, error) {
	runID := uuid.NewString()
	awaiting, err := s.boxes.FindByState(ctx, boxes.StateReceived)
	if err != nil {
		return Report{}, fmt.Errorf("reconcile: list received boxes: %w", err)
	}

	var (
		mu     sync.Mutex
		report Report
	)
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, box := range awaiting {
		if ctx.Err() != nil {
			break
		}
		box := box
		g.Go(func() error {
			result := s.processBox(ctx, runID, box)
			mu.Lock()
			report.Processed++
			switch result {
			case outcomeCompleted:
				report.Completed++
			case outcomeFailed:
				report.Failed++
			case outcomeSkipped:
				report.Skipped++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if s.logger != nil {
		s.logger.Info("reconciliation tick finished",
			slog.String("run_id", runID),
			slog.Int("processed", report.Processed),
			slog.Int("completed", report.Completed),
			slog.Int("failed", report.Failed),
			slog.Int("skipped", report.Skipped),
		)
	}
	return report, ctx.Err()
}

// processBox applies the decision table to one box. Errors are contained
// here; the box stays in its prior state and is re-evaluated next tick.
func (s *Service) processBox(ctx context.Context, runID string, box boxes.Box) outcome {
	ops, err := s.operations.GetBySource(ctx, stockups.SourceBox, box.ID)
	if err != nil {
		s.logFailure(runID, box.ID, "fetch operations", err)
		return outcomeFailed
	}

	target, note, ok := decide(ops)
	if !ok {
		return outcomeSkipped
	}

	if _, err := s.boxes.RequestTransition(ctx, box.ID, target, boxes.TransitionParams{Description: note}); err != nil {
		s.logFailure(runID, box.ID, fmt.Sprintf("transition to %s", target), err)
		return outcomeFailed
	}
	if target == boxes.StateError {
		return outcomeFailed
	}
	return outcomeCompleted
}

// decide evaluates the aggregation rules in precedence order. ok is false
// when the box should be left untouched.
func decide(ops []stockups.Operation) (target boxes.State, note string, ok bool) {
	if len(ops) == 0 {
		return boxes.StateError, NoOperationsMessage, true
	}
	var failedDocs []string
	completed := 0
	for _, op := range ops {
		switch op.State {
		case stockups.StateCompleted:
			completed++
		case stockups.StateFailed:
			failedDocs = append(failedDocs, op.DocumentNumber)
		}
	}
	if completed == len(ops) {
		return boxes.StateStocked, "all stock-up operations completed", true
	}
	if len(failedDocs) > 0 {
		note := fmt.Sprintf("%d stock-up operation(s) failed: %s", len(failedDocs), strings.Join(failedDocs, ", "))
		return boxes.StateError, note, true
	}
	// Still in progress, the normal case.
	return "", "", false
}

func (s *Service) logFailure(runID string, boxID int64, step string, err error) {
	if s.logger == nil {
		return
	}
	s.logger.Error("reconciliation box failed",
		slog.String("run_id", runID),
		slog.Int64("box_id", boxID),
		slog.String("step", step),
		slog.Any("error", err),
	)
}
