// Package model defines domain types used by the checkout core.
package model

import (
	"math"
	"time"
)

// Product represents the current state of a sellable item.
//
// Version is the optimistic concurrency token: it increases by exactly one
// on every committed stock change. LockHolder/LockedAt describe an exclusive
// pessimistic lock; a lock older than the configured timeout is stale and may
// be reclaimed by any actor.
type Product struct {
	ProductID  string    `json:"product_id"`
	Name       string    `json:"name"`
	Price      float64   `json:"price"`
	Stock      int64     `json:"stock"`
	Active     bool      `json:"active"`
	UnitsSold  int64     `json:"units_sold"`
	Version    int64     `json:"version"`
	LockHolder string    `json:"-"`
	LockedAt   time.Time `json:"-"`
}

// Locked reports whether the product carries lock fields at all.
// Staleness is judged by the concurrency controller, not here.
func (p Product) Locked() bool { return p.LockHolder != "" }

// CartLine is one intended purchase inside a user's working set.
// UnitPrice is a snapshot taken at add time and refreshed on every read;
// AvailableStock and InStock are read-time annotations.
type CartLine struct {
	ProductID      string  `json:"product_id"`
	Name           string  `json:"name"`
	Quantity       int64   `json:"quantity"`
	UnitPrice      float64 `json:"unit_price"`
	LineTotal      float64 `json:"line_total"`
	AvailableStock int64   `json:"available_stock"`
	InStock        bool    `json:"in_stock"`
}

// CartView is the materialized cart: lines freshened against live products,
// total and item count recomputed from that freshened view.
type CartView struct {
	UserID    string     `json:"user_id"`
	Lines     []CartLine `json:"lines"`
	Total     float64    `json:"total"`
	ItemCount int64      `json:"item_count"`
}

// OrderStatus enumerates order lifecycle states.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
)

// PaymentStatus enumerates payment states.
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

// OrderItem is a point-in-time copy of a purchased line, never a live
// reference to the product.
type OrderItem struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Quantity  int64   `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	LineTotal float64 `json:"line_total"`
}

// Order is an immutable record of a committed purchase. Total equals the sum
// of the rounded line totals. Status moves forward only, except cancellation
// which is allowed from pending.
type Order struct {
	OrderID         string        `json:"order_id"`
	OrderNumber     string        `json:"order_number"`
	UserID          string        `json:"user_id"`
	Items           []OrderItem   `json:"items"`
	Total           float64       `json:"total"`
	Status          OrderStatus   `json:"status"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	PaymentMethod   string        `json:"payment_method"`
	ShippingAddress string        `json:"shipping_address"`
	TransactionID   string        `json:"transaction_id"`
	CreatedAt       time.Time     `json:"created_at"`
}

// RoundCents rounds a monetary amount to currency precision (2 decimals,
// half away from zero).
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
