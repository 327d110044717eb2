package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/storefrontd/checkout-core/internal/inventory"
	"github.com/storefrontd/checkout-core/internal/model"
)

// restockRetries bounds optimistic retries for compensating adjustments.
// A restock that still conflicts afterwards is logged and dropped; the
// cancelled order's status stays authoritative and the mismatch remains
// observable via stock-vs-order audit.
const restockRetries = 3

// StockExecutor applies post-commit tasks through the concurrency controller.
type StockExecutor struct {
	inv *inventory.Controller
}

// NewStockExecutor constructs a StockExecutor.
func NewStockExecutor(inv *inventory.Controller) *StockExecutor {
	return &StockExecutor{inv: inv}
}

// Execute applies one task.
func (e *StockExecutor) Execute(_ context.Context, t Task) error {
	switch t.Kind {
	case KindRecordSale:
		return e.inv.RecordSale(t.ProductID, t.Quantity)
	case KindRestock:
		return e.restock(t)
	default:
		return fmt.Errorf("unknown task kind %q", t.Kind)
	}
}

func (e *StockExecutor) restock(t Task) error {
	var err error
	for attempt := 0; attempt <= restockRetries; attempt++ {
		_, err = e.inv.Adjust(t.ProductID, t.Quantity, "")
		if err == nil {
			return nil
		}
		if !errors.Is(err, model.ErrConflict) {
			break
		}
	}
	return fmt.Errorf("restock order %s product %s qty %d: %w", t.OrderID, t.ProductID, t.Quantity, err)
}
