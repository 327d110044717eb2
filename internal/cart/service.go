package cart

import (
	"context"
	"sort"

	"github.com/storefrontd/checkout-core/internal/model"
	"github.com/storefrontd/checkout-core/internal/store"
)

// Service keeps a user's in-progress selection usable despite concurrent
// catalog changes by reconciling the working set against live inventory on
// every read. Its stock checks are advisory for UX; the order orchestrator
// re-enforces them at commit time.
type Service struct {
	sessions SessionStore
	st       *store.Store
}

// NewService constructs a Service over the injected session store.
func NewService(sessions SessionStore, st *store.Store) *Service {
	return &Service{sessions: sessions, st: st}
}

// Add upserts a line for the product, merging quantities with any existing
// line and taking a fresh price snapshot. It rejects missing or inactive
// products and merged quantities beyond the current stock.
func (s *Service) Add(ctx context.Context, userID, productID string, qty int64) (model.CartLine, error) {
	if qty < 1 {
		return model.CartLine{}, model.ErrInvalidState
	}
	p, ok := s.st.GetProduct(productID)
	if !ok || !p.Active {
		return model.CartLine{}, model.ErrNotFound
	}
	lines, err := s.sessions.Lines(ctx, userID)
	if err != nil {
		return model.CartLine{}, err
	}
	total := qty
	if existing, ok := lines[productID]; ok {
		total += existing.Quantity
	}
	if total > p.Stock {
		return model.CartLine{}, &model.InsufficientStockError{
			ProductID: productID,
			Requested: total,
			Available: p.Stock,
		}
	}
	line := model.CartLine{
		ProductID: productID,
		Name:      p.Name,
		Quantity:  total,
		UnitPrice: p.Price,
		LineTotal: model.RoundCents(float64(total) * p.Price),
	}
	lines[productID] = line
	if err := s.sessions.SaveLines(ctx, userID, lines); err != nil {
		return model.CartLine{}, err
	}
	return line, nil
}

// SetQuantity replaces the line's quantity. Zero removes the line; any other
// value takes a fresh price snapshot and is checked against current stock.
func (s *Service) SetQuantity(ctx context.Context, userID, productID string, qty int64) error {
	if qty < 0 {
		return model.ErrInvalidState
	}
	lines, err := s.sessions.Lines(ctx, userID)
	if err != nil {
		return err
	}
	if _, ok := lines[productID]; !ok {
		return model.ErrNotFound
	}
	if qty == 0 {
		delete(lines, productID)
		return s.sessions.SaveLines(ctx, userID, lines)
	}
	p, ok := s.st.GetProduct(productID)
	if !ok || !p.Active {
		return model.ErrNotFound
	}
	if qty > p.Stock {
		return &model.InsufficientStockError{ProductID: productID, Requested: qty, Available: p.Stock}
	}
	lines[productID] = model.CartLine{
		ProductID: productID,
		Name:      p.Name,
		Quantity:  qty,
		UnitPrice: p.Price,
		LineTotal: model.RoundCents(float64(qty) * p.Price),
	}
	return s.sessions.SaveLines(ctx, userID, lines)
}

// Remove deletes the line for the product, if present.
func (s *Service) Remove(ctx context.Context, userID, productID string) error {
	lines, err := s.sessions.Lines(ctx, userID)
	if err != nil {
		return err
	}
	delete(lines, productID)
	return s.sessions.SaveLines(ctx, userID, lines)
}

// View materializes the cart: every referenced product is re-fetched, cached
// name and price are overwritten with current values, and each line is
// annotated with current availability. Lines for products that no longer
// exist are dropped silently. Total and item count are recomputed from this
// freshened view, never trusted from storage.
func (s *Service) View(ctx context.Context, userID string) (model.CartView, error) {
	lines, err := s.sessions.Lines(ctx, userID)
	if err != nil {
		return model.CartView{}, err
	}
	view := model.CartView{UserID: userID, Lines: []model.CartLine{}}
	fresh := make(map[string]model.CartLine, len(lines))
	dropped := false
	for id, line := range lines {
		p, ok := s.st.GetProduct(id)
		if !ok {
			dropped = true
			continue
		}
		line.Name = p.Name
		line.UnitPrice = p.Price
		line.LineTotal = model.RoundCents(float64(line.Quantity) * p.Price)
		line.AvailableStock = p.Stock
		line.InStock = p.Active && p.Stock >= line.Quantity
		if !p.Active {
			line.AvailableStock = 0
		}
		fresh[id] = line
		view.Lines = append(view.Lines, line)
		view.Total += line.LineTotal
		view.ItemCount += line.Quantity
	}
	view.Total = model.RoundCents(view.Total)
	sort.Slice(view.Lines, func(i, j int) bool {
		return view.Lines[i].ProductID < view.Lines[j].ProductID
	})
	if dropped {
		if err := s.sessions.SaveLines(ctx, userID, fresh); err != nil {
			return model.CartView{}, err
		}
	}
	return view, nil
}

// Clear drops the user's whole working set.
func (s *Service) Clear(ctx context.Context, userID string) error {
	return s.sessions.Drop(ctx, userID)
}

// RemoveLines deletes the lines for the given products, used after a
// successful checkout to clear exactly what was ordered.
func (s *Service) RemoveLines(ctx context.Context, userID string, productIDs []string) error {
	lines, err := s.sessions.Lines(ctx, userID)
	if err != nil {
		return err
	}
	for _, id := range productIDs {
		delete(lines, id)
	}
	return s.sessions.SaveLines(ctx, userID, lines)
}
