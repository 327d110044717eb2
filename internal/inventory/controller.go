// Package inventory implements the concurrency controller for product stock:
// optimistic version-checked adjustments for the common case and pessimistic
// exclusive locks with a stale-reclaim timeout for extended admin windows.
package inventory

import (
	"time"

	"github.com/storefrontd/checkout-core/internal/model"
	"github.com/storefrontd/checkout-core/internal/store"
)

// Controller serializes conflicting mutations to a single product's stock
// without serializing unrelated products.
type Controller struct {
	st          *store.Store
	lockTimeout time.Duration
	now         func() time.Time
}

// New constructs a Controller. lockTimeout is the age past which a held lock
// is considered abandoned and may be reclaimed by any actor.
func New(st *store.Store, lockTimeout time.Duration) *Controller {
	return &Controller{st: st, lockTimeout: lockTimeout, now: time.Now}
}

// lockLive reports whether p carries a lock that has not expired.
func (c *Controller) lockLive(p model.Product) bool {
	return p.LockHolder != "" && c.now().Sub(p.LockedAt) <= c.lockTimeout
}

// lockBlocks reports whether a live lock held by someone other than holder
// forbids the mutation. An empty holder never bypasses any lock.
func (c *Controller) lockBlocks(p model.Product, holder string) bool {
	if p.LockHolder == "" || p.LockHolder == holder {
		return false
	}
	return c.lockLive(p)
}

// Adjust applies a signed stock delta through the optimistic path: read the
// current stock and version, then attempt one conditional write that succeeds
// only if the stored version still equals the one just read and no live
// foreign lock exists. On success the version advances by exactly one.
//
// holder, when non-empty, lets the caller mutate past its own exclusive lock.
// There is no retry loop here; the caller decides whether to retry on
// ErrConflict.
func (c *Controller) Adjust(id string, delta int64, holder string) (model.Product, error) {
	p, ok := c.st.GetProduct(id)
	if !ok {
		return model.Product{}, model.ErrNotFound
	}
	readVersion := p.Version
	return c.st.UpdateProduct(id, func(cur model.Product) (model.Product, error) {
		if c.lockBlocks(cur, holder) {
			return model.Product{}, model.ErrLocked
		}
		if cur.Version != readVersion {
			return model.Product{}, model.ErrConflict
		}
		next := cur.Stock + delta
		if next < 0 {
			return model.Product{}, &model.InsufficientStockError{
				ProductID: id,
				Requested: -delta,
				Available: cur.Stock,
			}
		}
		cur.Stock = next
		cur.Version++
		return cur, nil
	})
}

// Acquire takes the exclusive lock for holder. It succeeds when the product
// is unlocked, when the held lock is stale (silently reclaimed), or when
// holder already owns it. Re-acquiring does not refresh the timestamp, so the
// original timeout still applies. A live lock owned by a
// different actor returns ErrLocked.
func (c *Controller) Acquire(id, holder string) (model.Product, error) {
	return c.st.UpdateProduct(id, func(cur model.Product) (model.Product, error) {
		if cur.LockHolder == holder && cur.LockHolder != "" {
			return cur, nil
		}
		if c.lockLive(cur) {
			return model.Product{}, model.ErrLocked
		}
		cur.LockHolder = holder
		cur.LockedAt = c.now()
		return cur, nil
	})
}

// Release clears the lock fields when holder still owns the lock. A mismatch
// is a no-op, not an error, so a delayed release cannot clobber a newer
// holder.
func (c *Controller) Release(id, holder string) error {
	_, err := c.st.UpdateProduct(id, func(cur model.Product) (model.Product, error) {
		if cur.LockHolder != holder {
			return cur, nil
		}
		cur.LockHolder = ""
		cur.LockedAt = time.Time{}
		return cur, nil
	})
	return err
}

// RecordSale bumps the cumulative units-sold counter. This runs outside the
// atomic order boundary and touches neither stock nor version.
func (c *Controller) RecordSale(id string, qty int64) error {
	_, err := c.st.UpdateProduct(id, func(cur model.Product) (model.Product, error) {
		cur.UnitsSold += qty
		return cur, nil
	})
	return err
}

// GuardLine validates one order-commit stock adjustment against the record as
// it exists at commit time: the product must still be active, not foreign-
// locked, at the validated version, and hold enough stock.
func (c *Controller) GuardLine(p model.Product, a store.StockAdjust) error {
	if !p.Active {
		return model.ErrNotFound
	}
	if c.lockBlocks(p, "") {
		return model.ErrLocked
	}
	if p.Version != a.ExpectVersion {
		return model.ErrConflict
	}
	if p.Stock+a.Delta < 0 {
		return &model.InsufficientStockError{
			ProductID: p.ProductID,
			Requested: -a.Delta,
			Available: p.Stock,
		}
	}
	return nil
}
