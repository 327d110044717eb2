// Package order implements the transaction orchestrator converting a
// validated set of cart lines into a durable order with all-or-nothing stock
// effects.
package order

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/storefrontd/checkout-core/internal/cart"
	"github.com/storefrontd/checkout-core/internal/events"
	"github.com/storefrontd/checkout-core/internal/inventory"
	"github.com/storefrontd/checkout-core/internal/model"
	"github.com/storefrontd/checkout-core/internal/obs"
	"github.com/storefrontd/checkout-core/internal/store"
	"github.com/storefrontd/checkout-core/internal/tasks"
)

// LineRequest is one requested purchase line.
type LineRequest struct {
	ProductID string
	Quantity  int64
}

// PlaceRequest carries everything the caller supplies for one placement
// attempt.
type PlaceRequest struct {
	UserID          string
	Lines           []LineRequest
	ShippingAddress string
	PaymentMethod   string
}

// Orchestrator drives placement attempts through validating, committing and
// post-commit phases, and handles cancellation with compensating restocks.
type Orchestrator struct {
	st    *store.Store
	inv   *inventory.Controller
	carts *cart.Service
	tasks *tasks.Manager
	pub   events.Publisher

	placed    atomic.Uint64
	aborted   atomic.Uint64
	cancelled atomic.Uint64
}

// New constructs an Orchestrator.
func New(st *store.Store, inv *inventory.Controller, carts *cart.Service, tm *tasks.Manager, pub events.Publisher) *Orchestrator {
	if pub == nil {
		pub = events.NopPublisher{}
	}
	return &Orchestrator{st: st, inv: inv, carts: carts, tasks: tm, pub: pub}
}

// Place runs one placement attempt. Every line is re-validated against live
// inventory; a single failing line aborts the whole attempt before anything
// is written. The order record and all stock decrements then commit as one
// atomic unit of work; a commit-time failure rolls everything back and
// surfaces as *model.TransactionAbortedError. Units-sold recording, event
// publication and cart clearing happen after the commit and never undo it.
func (o *Orchestrator) Place(ctx context.Context, req PlaceRequest) (model.Order, error) {
	if req.UserID == "" || len(req.Lines) == 0 {
		return model.Order{}, model.ErrInvalidState
	}
	lines, err := mergeLines(req.Lines)
	if err != nil {
		return model.Order{}, err
	}

	// Validating
	now := time.Now().UTC()
	ord := model.Order{
		OrderID:         uuid.NewString(),
		OrderNumber:     newOrderNumber(now),
		UserID:          req.UserID,
		Status:          model.OrderPending,
		PaymentStatus:   model.PaymentUnpaid,
		PaymentMethod:   req.PaymentMethod,
		ShippingAddress: req.ShippingAddress,
		TransactionID:   uuid.NewString(),
		CreatedAt:       now,
	}
	adjusts := make([]store.StockAdjust, 0, len(lines))
	for _, l := range lines {
		p, ok := o.st.GetProduct(l.ProductID)
		if !ok || !p.Active {
			o.aborted.Add(1)
			return model.Order{}, fmt.Errorf("validate product %s: %w", l.ProductID, model.ErrNotFound)
		}
		if p.Stock < l.Quantity {
			o.aborted.Add(1)
			return model.Order{}, &model.InsufficientStockError{
				ProductID: l.ProductID,
				Requested: l.Quantity,
				Available: p.Stock,
			}
		}
		lineTotal := model.RoundCents(float64(l.Quantity) * p.Price)
		ord.Items = append(ord.Items, model.OrderItem{
			ProductID: p.ProductID,
			Name:      p.Name,
			Quantity:  l.Quantity,
			UnitPrice: p.Price,
			LineTotal: lineTotal,
		})
		ord.Total += lineTotal
		adjusts = append(adjusts, store.StockAdjust{
			ProductID:     p.ProductID,
			Delta:         -l.Quantity,
			ExpectVersion: p.Version,
		})
	}
	ord.Total = model.RoundCents(ord.Total)

	// Reserving / Committing
	if err := o.st.CommitOrder(ord, adjusts, o.inv.GuardLine); err != nil {
		o.aborted.Add(1)
		return model.Order{}, &model.TransactionAbortedError{Cause: err}
	}
	o.placed.Add(1)

	// Committed: effects outside the atomic boundary.
	productIDs := make([]string, 0, len(ord.Items))
	for _, it := range ord.Items {
		productIDs = append(productIDs, it.ProductID)
		o.tasks.Submit(tasks.Task{
			Kind:      tasks.KindRecordSale,
			OrderID:   ord.OrderID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
		})
	}
	if err := o.carts.RemoveLines(ctx, req.UserID, productIDs); err != nil {
		obs.Logger.Error("cart_clear_failed", "order_id", ord.OrderID, "user_id", req.UserID, "error", err)
	}
	o.publish(ctx, events.TypeOrderPlaced, ord)
	return ord, nil
}

// Cancel transitions a pending order to cancelled and issues a compensating
// restock per line through the task pipeline. Restock failures are logged by
// the pipeline and never revert the status change; the order's terminal
// status is authoritative.
func (o *Orchestrator) Cancel(ctx context.Context, orderID, userID string) (model.Order, error) {
	ord, err := o.st.UpdateOrder(orderID, func(cur model.Order) (model.Order, error) {
		if userID != "" && cur.UserID != userID {
			return model.Order{}, model.ErrNotFound
		}
		if cur.Status != model.OrderPending {
			return model.Order{}, model.ErrInvalidState
		}
		cur.Status = model.OrderCancelled
		return cur, nil
	})
	if err != nil {
		return model.Order{}, err
	}
	o.cancelled.Add(1)
	for _, it := range ord.Items {
		o.tasks.Submit(tasks.Task{
			Kind:      tasks.KindRestock,
			OrderID:   ord.OrderID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
		})
	}
	o.publish(ctx, events.TypeOrderCancelled, ord)
	return ord, nil
}

// Get returns the order when it exists and belongs to userID (empty userID
// skips the ownership check).
func (o *Orchestrator) Get(orderID, userID string) (model.Order, error) {
	ord, ok := o.st.GetOrder(orderID)
	if !ok || (userID != "" && ord.UserID != userID) {
		return model.Order{}, model.ErrNotFound
	}
	return ord, nil
}

// ListByUser returns the user's orders, newest first.
func (o *Orchestrator) ListByUser(userID string) []model.Order {
	out := o.st.OrdersByUser(userID)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Stats returns placement counters for the metrics surface.
func (o *Orchestrator) Stats() (placed, aborted, cancelled uint64) {
	return o.placed.Load(), o.aborted.Load(), o.cancelled.Load()
}

func (o *Orchestrator) publish(ctx context.Context, typ string, ord model.Order) {
	ev := events.OrderEvent{
		Type:        typ,
		OrderID:     ord.OrderID,
		OrderNumber: ord.OrderNumber,
		UserID:      ord.UserID,
		Total:       ord.Total,
		Items:       ord.Items,
		OccurredAt:  time.Now().UTC(),
	}
	sign := int64(-1)
	if typ == events.TypeOrderCancelled {
		sign = 1
	}
	for _, it := range ord.Items {
		ev.StockDeltas = append(ev.StockDeltas, events.StockDelta{ProductID: it.ProductID, Delta: sign * it.Quantity})
	}
	if err := o.pub.Publish(ctx, ev); err != nil {
		obs.Logger.Error("order_event_publish_failed", "type", typ, "order_id", ord.OrderID, "error", err)
	}
}

// mergeLines folds duplicate product ids into one line and validates
// quantities.
func mergeLines(in []LineRequest) ([]LineRequest, error) {
	merged := make(map[string]int64, len(in))
	orderOf := make([]string, 0, len(in))
	for _, l := range in {
		if l.ProductID == "" || l.Quantity < 1 {
			return nil, model.ErrInvalidState
		}
		if _, ok := merged[l.ProductID]; !ok {
			orderOf = append(orderOf, l.ProductID)
		}
		merged[l.ProductID] += l.Quantity
	}
	out := make([]LineRequest, 0, len(merged))
	for _, id := range orderOf {
		out = append(out, LineRequest{ProductID: id, Quantity: merged[id]})
	}
	return out, nil
}

// newOrderNumber builds the human-facing, collision-resistant order number.
func newOrderNumber(now time.Time) string {
	frag := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), frag[:8])
}
