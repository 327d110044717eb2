package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/storefrontd/checkout-core/internal/cart"
	"github.com/storefrontd/checkout-core/internal/config"
	"github.com/storefrontd/checkout-core/internal/inventory"
	"github.com/storefrontd/checkout-core/internal/model"
	"github.com/storefrontd/checkout-core/internal/obs"
	"github.com/storefrontd/checkout-core/internal/order"
	"github.com/storefrontd/checkout-core/internal/store"
	"github.com/storefrontd/checkout-core/internal/tasks"
)

// App bundles the service dependencies behind the HTTP surface.
type App struct {
	Cfg     config.Config
	Store   *store.Store
	Inv     *inventory.Controller
	Carts   *cart.Service
	Orders  *order.Orchestrator
	Tasks   *tasks.Manager
	closing bool
	started time.Time
}

// NewApp wires the handlers' dependencies.
func NewApp(cfg config.Config, st *store.Store, inv *inventory.Controller, carts *cart.Service, orders *order.Orchestrator, tm *tasks.Manager) *App {
	return &App{Cfg: cfg, Store: st, Inv: inv, Carts: carts, Orders: orders, Tasks: tm, started: time.Now()}
}

// StartShutdown rejects new checkouts and closes the task intake so the
// remaining post-commit work can drain.
func (a *App) StartShutdown() {
	a.closing = true
	a.Tasks.CloseIntake()
}

func userID(r *http.Request) string { return r.Header.Get("X-User-Id") }

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		WriteJSONError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "expected application/json")
		return false
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	return true
}

type addLineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

func (a *App) cartItemsHandler(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "X-User-Id header is required")
		return
	}
	if r.Method != http.MethodPost {
		WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	var req addLineRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ProductID == "" || req.Quantity < 1 {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "product_id and quantity >= 1 are required")
		return
	}
	line, err := a.Carts.Add(r.Context(), uid, req.ProductID, req.Quantity)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(line)
}

type setQuantityRequest struct {
	Quantity int64 `json:"quantity"`
}

// cartItemHandler serves /cart/items/{product_id}.
func (a *App) cartItemHandler(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "X-User-Id header is required")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/cart/items/")
	if id == "" || strings.Contains(id, "/") {
		WriteJSONError(w, http.StatusNotFound, "not_found", "")
		return
	}
	switch r.Method {
	case http.MethodPut:
		var req setQuantityRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := a.Carts.SetQuantity(r.Context(), uid, id, req.Quantity); err != nil {
			WriteDomainError(w, err)
			return
		}
	case http.MethodDelete:
		if err := a.Carts.Remove(r.Context(), uid, id); err != nil {
			WriteDomainError(w, err)
			return
		}
	default:
		WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	a.writeCartView(w, r, uid)
}

func (a *App) cartHandler(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "X-User-Id header is required")
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.writeCartView(w, r, uid)
	case http.MethodDelete:
		if err := a.Carts.Clear(r.Context(), uid); err != nil {
			WriteDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
	}
}

func (a *App) writeCartView(w http.ResponseWriter, r *http.Request, uid string) {
	view, err := a.Carts.View(r.Context(), uid)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(view)
}

type checkoutRequest struct {
	ShippingAddress string `json:"shipping_address"`
	PaymentMethod   string `json:"payment_method"`
}

func (a *App) checkoutHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	if a.closing || a.Tasks.IsShuttingDown() {
		WriteJSONError(w, http.StatusServiceUnavailable, "shutting_down", "")
		return
	}
	uid := userID(r)
	if uid == "" {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "X-User-Id header is required")
		return
	}
	var req checkoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	view, err := a.Carts.View(r.Context(), uid)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	if len(view.Lines) == 0 {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "cart is empty")
		return
	}
	lines := make([]order.LineRequest, 0, len(view.Lines))
	for _, l := range view.Lines {
		lines = append(lines, order.LineRequest{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	ord, err := a.Orders.Place(r.Context(), order.PlaceRequest{
		UserID:          uid,
		Lines:           lines,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
	})
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	obs.Logger.Info("order_placed",
		"request_id", RequestIDFromContext(r.Context()),
		"order_id", ord.OrderID,
		"order_number", ord.OrderNumber,
		"user_id", uid,
		"total", ord.Total,
		"lines", len(ord.Items),
	)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(ord)
}

// ordersHandler serves /orders, /orders/{id} and /orders/{id}/cancel.
func (a *App) ordersHandler(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "X-User-Id header is required")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/orders")
	rest = strings.Trim(rest, "/")
	switch {
	case rest == "":
		if r.Method != http.MethodGet {
			WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
			return
		}
		list := a.Orders.ListByUser(uid)
		if list == nil {
			list = []model.Order{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(list)
	case strings.HasSuffix(rest, "/cancel"):
		if r.Method != http.MethodPost {
			WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
			return
		}
		id := strings.TrimSuffix(rest, "/cancel")
		ord, err := a.Orders.Cancel(r.Context(), id, uid)
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		obs.Logger.Info("order_cancelled",
			"request_id", RequestIDFromContext(r.Context()),
			"order_id", ord.OrderID,
			"user_id", uid,
		)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ord)
	case !strings.Contains(rest, "/"):
		if r.Method != http.MethodGet {
			WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
			return
		}
		ord, err := a.Orders.Get(rest, uid)
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ord)
	default:
		WriteJSONError(w, http.StatusNotFound, "not_found", "")
	}
}

type upsertProductRequest struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Stock     int64   `json:"stock"`
	Active    bool    `json:"active"`
}

// postProductHandler is the catalog-management surface: it creates products
// or updates their descriptive fields. Stock on an existing product is never
// touched here; corrections go through the admin stock endpoint.
func (a *App) postProductHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	var req upsertProductRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ProductID == "" {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "product_id is required")
		return
	}
	if req.Price < 0 || req.Stock < 0 {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "price and stock must be >= 0")
		return
	}
	p, err := a.Store.UpdateProduct(req.ProductID, func(cur model.Product) (model.Product, error) {
		cur.Name = req.Name
		cur.Price = req.Price
		cur.Active = req.Active
		return cur, nil
	})
	if err != nil {
		p = model.Product{
			ProductID: req.ProductID,
			Name:      req.Name,
			Price:     req.Price,
			Stock:     req.Stock,
			Active:    req.Active,
			Version:   1,
		}
		a.Store.PutProduct(p)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(p)
}

type stockAdjustRequest struct {
	Delta int64 `json:"delta"`
}

// productsHandler serves GET /products/{id} and the administrative stock
// correction POST /products/{id}/stock, which takes the exclusive lock for
// the duration of the adjustment.
func (a *App) productsHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/products/")
	if rest == "" {
		WriteJSONError(w, http.StatusNotFound, "not_found", "")
		return
	}
	if strings.HasSuffix(rest, "/stock") {
		a.adjustStockHandler(w, r, strings.TrimSuffix(rest, "/stock"))
		return
	}
	if strings.Contains(rest, "/") {
		WriteJSONError(w, http.StatusNotFound, "not_found", "")
		return
	}
	if r.Method != http.MethodGet {
		WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	p, ok := a.Store.GetProduct(rest)
	if !ok {
		WriteJSONError(w, http.StatusNotFound, "not_found", "")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(p)
}

func (a *App) adjustStockHandler(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	var req stockAdjustRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Delta == 0 {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "delta must be non-zero")
		return
	}
	holder := "admin-" + RequestIDFromContext(r.Context())
	if _, err := a.Inv.Acquire(id, holder); err != nil {
		WriteDomainError(w, err)
		return
	}
	p, err := a.Inv.Adjust(id, req.Delta, holder)
	if relErr := a.Inv.Release(id, holder); relErr != nil {
		obs.Logger.Error("lock_release_failed", "product_id", id, "holder", holder, "error", relErr)
	}
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	obs.Logger.Info("stock_adjusted",
		"request_id", RequestIDFromContext(r.Context()),
		"product_id", id,
		"delta", req.Delta,
		"stock", p.Stock,
		"version", p.Version,
	)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(p)
}

func (a *App) healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (a *App) metricsHandler(w http.ResponseWriter, _ *http.Request) {
	enq, proc, backlog, depth := a.Tasks.QueueMetrics()
	products, orders, committed := a.Store.Metrics()
	placed, abortedN, cancelled := a.Orders.Stats()
	m := map[string]any{
		"products":         products,
		"orders":           orders,
		"orders_committed": committed,
		"orders_placed":    placed,
		"orders_aborted":   abortedN,
		"orders_cancelled": cancelled,
		"tasks_enqueued":   enq,
		"tasks_processed":  proc,
		"backlog_size":     backlog,
		"queue_depth":      depth,
		"worker_count":     a.Tasks.WorkerCount(),
		"uptime_sec":       time.Since(a.started).Seconds(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(m)
}
