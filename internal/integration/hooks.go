// Package integration glues box lifecycle hooks to the stockups module
// without letting the domain packages import each other.
package integration

import (
	"context"

	"github.com/meridian-wms/meridian-wms/internal/boxes"
	"github.com/meridian-wms/meridian-wms/internal/stockups"
)

// Hooks implements boxes.OperationSpawner on top of the stockups service.
type Hooks struct {
	stockups *stockups.Service
}

// NewHooks wires the stockups service into the box transition engine.
func NewHooks(service *stockups.Service) *Hooks {
	return &Hooks{stockups: service}
}

// SpawnForBox creates one stock-up operation per box item.
func (h *Hooks) SpawnForBox(ctx context.Context, boxID int64, items []boxes.Item) (int, error) {
	spawn := make([]stockups.SpawnItem, 0, len(items))
	for _, item := range items {
		spawn = append(spawn, stockups.SpawnItem{
			ProductCode: item.ProductCode,
			Amount:      item.Amount,
		})
	}
	return h.stockups.SpawnForBox(ctx, boxID, spawn)
}
