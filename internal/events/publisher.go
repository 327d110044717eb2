// Package events emits finalized order records to downstream consumers.
package events

import (
	"context"
	"time"

	"github.com/storefrontd/checkout-core/internal/model"
)

// Event types carried on the order exchange.
const (
	TypeOrderPlaced    = "order.placed"
	TypeOrderCancelled = "order.cancelled"
)

// StockDelta is the signed stock effect of one order line.
type StockDelta struct {
	ProductID string `json:"product_id"`
	Delta     int64  `json:"delta"`
}

// OrderEvent is the envelope published after an order commit or cancellation.
type OrderEvent struct {
	Type        string            `json:"type"`
	OrderID     string            `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	UserID      string            `json:"user_id"`
	Total       float64           `json:"total"`
	Items       []model.OrderItem `json:"items"`
	StockDeltas []StockDelta      `json:"stock_deltas"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

// Publisher emits order events. Publishing happens after the atomic commit;
// failures are logged by the caller and never roll anything back.
type Publisher interface {
	Publish(ctx context.Context, ev OrderEvent) error
}

// NopPublisher discards events; used when no broker is configured.
type NopPublisher struct{}

// Publish discards the event.
func (NopPublisher) Publish(context.Context, OrderEvent) error { return nil }
