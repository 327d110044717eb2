package order

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/storefrontd/checkout-core/internal/cart"
	"github.com/storefrontd/checkout-core/internal/config"
	"github.com/storefrontd/checkout-core/internal/events"
	"github.com/storefrontd/checkout-core/internal/inventory"
	"github.com/storefrontd/checkout-core/internal/model"
	"github.com/storefrontd/checkout-core/internal/obs"
	"github.com/storefrontd/checkout-core/internal/store"
	"github.com/storefrontd/checkout-core/internal/tasks"
)

// recorder captures published order events.
type recorder struct {
	mu  sync.Mutex
	evs []events.OrderEvent
}

func (r *recorder) Publish(_ context.Context, ev events.OrderEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evs = append(r.evs, ev)
	return nil
}

func (r *recorder) all() []events.OrderEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.OrderEvent(nil), r.evs...)
}

type env struct {
	st    *store.Store
	inv   *inventory.Controller
	carts *cart.Service
	mgr   *tasks.Manager
	rec   *recorder
	orch  *Orchestrator
}

func newTestEnv(t *testing.T) *env {
	t.Helper()
	t.Setenv("WORKER_MIN", "1")
	t.Setenv("WORKER_COUNT", "2")
	cfg := config.Load()
	obs.InitLogger()
	st := store.New()
	inv := inventory.New(st, cfg.LockTimeout)
	carts := cart.NewService(cart.NewMemoryStore(cfg.CartTTL, cfg.CartSweepInterval), st)
	q := tasks.NewQueue(64)
	mgr := tasks.NewManager(cfg, q, tasks.NewStockExecutor(inv))
	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)
	t.Cleanup(func() {
		cancel()
		mgr.Stop()
	})
	rec := &recorder{}
	return &env{st: st, inv: inv, carts: carts, mgr: mgr, rec: rec, orch: New(st, inv, carts, mgr, rec)}
}

func (e *env) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if ok := e.mgr.DrainUntil(ctx); !ok {
		t.Fatalf("task drain timeout")
	}
}

func (e *env) put(id, name string, price float64, stock int64, active bool) {
	e.st.PutProduct(model.Product{ProductID: id, Name: name, Price: price, Stock: stock, Active: active, Version: 1})
}

func TestPlaceHappyPath(t *testing.T) {
	e := newTestEnv(t)
	e.put("p1", "Widget", 2.5, 10, true)
	e.put("p2", "Gadget", 0.99, 5, true)
	ctx := context.Background()

	_, err := e.carts.Add(ctx, "u1", "p1", 3)
	require.NoError(t, err)
	_, err = e.carts.Add(ctx, "u1", "p2", 3)
	require.NoError(t, err)

	ord, err := e.orch.Place(ctx, PlaceRequest{
		UserID: "u1",
		Lines: []LineRequest{
			{ProductID: "p1", Quantity: 3},
			{ProductID: "p2", Quantity: 3},
		},
		ShippingAddress: "1 Main St",
		PaymentMethod:   "card",
	})
	require.NoError(t, err)

	require.NotEmpty(t, ord.OrderID)
	require.True(t, strings.HasPrefix(ord.OrderNumber, "ORD-"), "order number %q", ord.OrderNumber)
	require.NotEmpty(t, ord.TransactionID)
	require.Equal(t, model.OrderPending, ord.Status)
	require.Equal(t, model.PaymentUnpaid, ord.PaymentStatus)
	require.Len(t, ord.Items, 2)
	require.Equal(t, 7.5, ord.Items[0].LineTotal)
	require.Equal(t, 2.97, ord.Items[1].LineTotal)
	require.Equal(t, model.RoundCents(7.5+2.97), ord.Total)

	// Stock decremented, version advanced by exactly one per product.
	p1, _ := e.st.GetProduct("p1")
	p2, _ := e.st.GetProduct("p2")
	require.EqualValues(t, 7, p1.Stock)
	require.EqualValues(t, 2, p1.Version)
	require.EqualValues(t, 2, p2.Stock)
	require.EqualValues(t, 2, p2.Version)

	// Ordered lines cleared from the cart.
	view, err := e.carts.View(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, view.Lines)

	// Units-sold counters applied by the task pipeline.
	e.drain(t)
	p1, _ = e.st.GetProduct("p1")
	require.EqualValues(t, 3, p1.UnitsSold)
	require.EqualValues(t, 2, p1.Version, "units-sold recording must not bump the version")

	// Order-placed event with negative stock deltas.
	evs := e.rec.all()
	require.Len(t, evs, 1)
	require.Equal(t, events.TypeOrderPlaced, evs[0].Type)
	require.EqualValues(t, -3, evs[0].StockDeltas[0].Delta)
}

func TestPlaceMergesDuplicateLines(t *testing.T) {
	e := newTestEnv(t)
	e.put("p1", "Widget", 1.0, 10, true)
	ord, err := e.orch.Place(context.Background(), PlaceRequest{
		UserID: "u1",
		Lines: []LineRequest{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p1", Quantity: 3},
		},
	})
	require.NoError(t, err)
	require.Len(t, ord.Items, 1)
	require.EqualValues(t, 5, ord.Items[0].Quantity)
}

func TestPlaceAbortsOnInactiveProduct(t *testing.T) {
	// Cart holds P (stock 2, quantity 2) and Q; Q is deactivated between
	// cart add and checkout. The whole attempt aborts with NotFound and P's
	// stock is untouched.
	e := newTestEnv(t)
	e.put("P", "P", 1.0, 2, true)
	e.put("Q", "Q", 1.0, 5, true)
	ctx := context.Background()
	_, err := e.carts.Add(ctx, "u1", "P", 2)
	require.NoError(t, err)
	_, err = e.carts.Add(ctx, "u1", "Q", 1)
	require.NoError(t, err)

	e.put("Q", "Q", 1.0, 5, false)

	_, err = e.orch.Place(ctx, PlaceRequest{
		UserID: "u1",
		Lines:  []LineRequest{{ProductID: "P", Quantity: 2}, {ProductID: "Q", Quantity: 1}},
	})
	require.ErrorIs(t, err, model.ErrNotFound)

	p, _ := e.st.GetProduct("P")
	require.EqualValues(t, 2, p.Stock)
	require.EqualValues(t, 1, p.Version)
	require.Empty(t, e.orch.ListByUser("u1"), "no order record after an aborted attempt")

	// The cart survives the failed attempt.
	view, _ := e.carts.View(ctx, "u1")
	require.Len(t, view.Lines, 2)
}

func TestPlaceAbortsOnInsufficientStock(t *testing.T) {
	e := newTestEnv(t)
	e.put("p1", "Widget", 1.0, 2, true)
	_, err := e.orch.Place(context.Background(), PlaceRequest{
		UserID: "u1",
		Lines:  []LineRequest{{ProductID: "p1", Quantity: 3}},
	})
	var short *model.InsufficientStockError
	require.ErrorAs(t, err, &short)
	require.EqualValues(t, 2, short.Available)
	p, _ := e.st.GetProduct("p1")
	require.EqualValues(t, 2, p.Stock)
}

func TestPlaceAbortsWhenLocked(t *testing.T) {
	e := newTestEnv(t)
	e.put("p1", "Widget", 1.0, 10, true)
	_, err := e.inv.Acquire("p1", "admin")
	require.NoError(t, err)

	_, err = e.orch.Place(context.Background(), PlaceRequest{
		UserID: "u1",
		Lines:  []LineRequest{{ProductID: "p1", Quantity: 1}},
	})
	var aborted *model.TransactionAbortedError
	require.ErrorAs(t, err, &aborted)
	require.ErrorIs(t, err, model.ErrLocked)

	p, _ := e.st.GetProduct("p1")
	require.EqualValues(t, 10, p.Stock)
	require.EqualValues(t, 1, p.Version)
}

func TestPlaceValidatesRequest(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.orch.Place(context.Background(), PlaceRequest{UserID: "", Lines: []LineRequest{{ProductID: "p", Quantity: 1}}})
	require.ErrorIs(t, err, model.ErrInvalidState)
	_, err = e.orch.Place(context.Background(), PlaceRequest{UserID: "u1"})
	require.ErrorIs(t, err, model.ErrInvalidState)
	_, err = e.orch.Place(context.Background(), PlaceRequest{UserID: "u1", Lines: []LineRequest{{ProductID: "p", Quantity: 0}}})
	require.ErrorIs(t, err, model.ErrInvalidState)
}

func TestCancelRestoresStock(t *testing.T) {
	// Order for quantity 3 takes stock 10 -> 7; cancellation restores it to
	// 10; a second cancellation is InvalidState and leaves stock unchanged.
	e := newTestEnv(t)
	e.put("p1", "Widget", 1.0, 10, true)
	ctx := context.Background()

	ord, err := e.orch.Place(ctx, PlaceRequest{
		UserID: "u1",
		Lines:  []LineRequest{{ProductID: "p1", Quantity: 3}},
	})
	require.NoError(t, err)
	p, _ := e.st.GetProduct("p1")
	require.EqualValues(t, 7, p.Stock)

	cancelled, err := e.orch.Cancel(ctx, ord.OrderID, "u1")
	require.NoError(t, err)
	require.Equal(t, model.OrderCancelled, cancelled.Status)

	e.drain(t)
	p, _ = e.st.GetProduct("p1")
	require.EqualValues(t, 10, p.Stock)

	_, err = e.orch.Cancel(ctx, ord.OrderID, "u1")
	require.ErrorIs(t, err, model.ErrInvalidState)
	e.drain(t)
	p, _ = e.st.GetProduct("p1")
	require.EqualValues(t, 10, p.Stock, "repeated cancellation must not restock twice")

	evs := e.rec.all()
	require.Len(t, evs, 2)
	require.Equal(t, events.TypeOrderCancelled, evs[1].Type)
	require.EqualValues(t, 3, evs[1].StockDeltas[0].Delta)
}

func TestCancelOwnershipAndExistence(t *testing.T) {
	e := newTestEnv(t)
	e.put("p1", "Widget", 1.0, 10, true)
	ctx := context.Background()
	ord, err := e.orch.Place(ctx, PlaceRequest{UserID: "u1", Lines: []LineRequest{{ProductID: "p1", Quantity: 1}}})
	require.NoError(t, err)

	_, err = e.orch.Cancel(ctx, ord.OrderID, "intruder")
	require.ErrorIs(t, err, model.ErrNotFound)
	_, err = e.orch.Cancel(ctx, "ghost", "u1")
	require.ErrorIs(t, err, model.ErrNotFound)

	got, err := e.orch.Get(ord.OrderID, "u1")
	require.NoError(t, err)
	require.Equal(t, model.OrderPending, got.Status)
	_, err = e.orch.Get(ord.OrderID, "intruder")
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestConcurrentPlacementsLastUnit(t *testing.T) {
	// Two users race for the final unit: exactly one order commits and the
	// stock never goes negative.
	e := newTestEnv(t)
	e.put("p1", "Widget", 1.0, 1, true)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	users := []string{"u1", "u2"}
	for i := range users {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.orch.Place(ctx, PlaceRequest{
				UserID: users[i],
				Lines:  []LineRequest{{ProductID: "p1", Quantity: 1}},
			})
		}(i)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			failures++
			var short *model.InsufficientStockError
			var aborted *model.TransactionAbortedError
			if !errors.As(err, &short) && !errors.As(err, &aborted) {
				t.Fatalf("unexpected loser error: %v", err)
			}
		}
	}
	require.Equal(t, 1, failures)
	p, _ := e.st.GetProduct("p1")
	require.EqualValues(t, 0, p.Stock)
	require.EqualValues(t, 2, p.Version)
	total := len(e.orch.ListByUser("u1")) + len(e.orch.ListByUser("u2"))
	require.Equal(t, 1, total)
}

func TestListByUserNewestFirst(t *testing.T) {
	e := newTestEnv(t)
	e.put("p1", "Widget", 1.0, 10, true)
	ctx := context.Background()
	first, err := e.orch.Place(ctx, PlaceRequest{UserID: "u1", Lines: []LineRequest{{ProductID: "p1", Quantity: 1}}})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	second, err := e.orch.Place(ctx, PlaceRequest{UserID: "u1", Lines: []LineRequest{{ProductID: "p1", Quantity: 1}}})
	require.NoError(t, err)

	list := e.orch.ListByUser("u1")
	require.Len(t, list, 2)
	require.Equal(t, second.OrderID, list[0].OrderID)
	require.Equal(t, first.OrderID, list[1].OrderID)
}
