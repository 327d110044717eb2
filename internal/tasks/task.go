// Package tasks implements the in-memory post-commit task queue and worker
// manager. Effects that run outside the atomic order boundary (units-sold
// recording, compensating restocks after cancellation) flow through here.
package tasks

import "sync/atomic"

// Kind discriminates post-commit task types.
type Kind string

const (
	// KindRestock applies a compensating positive stock adjustment for a
	// cancelled order line.
	KindRestock Kind = "restock"
	// KindRecordSale bumps a product's cumulative units-sold counter after a
	// committed order.
	KindRecordSale Kind = "record_sale"
)

// Task is one post-commit effect to apply.
type Task struct {
	Kind      Kind
	OrderID   string
	ProductID string
	Quantity  int64
	Sequence  uint64
}

// Sequencer provides monotonically increasing task sequence numbers.
type Sequencer struct{ n atomic.Uint64 }

// Next returns the next sequence number.
func (s *Sequencer) Next() uint64 { return s.n.Add(1) }
