package ledger

import "github.com/ethereum/go-ethereum/common"

// Notifications the ledger emits, one set per committed mutation:
//
//	CreateOrder  -> OrderCreated
//	CancelOrder  -> StatusChanged, then OrderCancelled
//	UpdateStatus -> StatusChanged
//
// Delivery happens after the mutation commits, in mutation order, exactly
// once. Observers (indexers, front-ends) hang off the Notifier interface.

// OrderCreated carries the full record of a freshly registered order.
type OrderCreated struct {
	Order Order `json:"order"`
}

// StatusChanged reports a single status move for an order.
type StatusChanged struct {
	ID   common.Hash `json:"id"`
	From Status      `json:"from"`
	To   Status      `json:"to"`
}

// OrderCancelled reports a creator- or controller-driven cancellation.
type OrderCancelled struct {
	ID      common.Hash    `json:"id"`
	Creator common.Address `json:"creator"`
}

// Notifier receives ledger notifications. The ledger calls
// implementations synchronously after each commit, one mutation at a
// time in commit order; a stalled callback delays every later delivery
// but never reorders it. Callbacks may read the ledger; mutating it
// from inside a callback deadlocks, dispatch a goroutine instead.
type Notifier interface {
	OrderCreated(OrderCreated)
	StatusChanged(StatusChanged)
	OrderCancelled(OrderCancelled)
}

// NopNotifier discards every notification.
type NopNotifier struct{}

func (NopNotifier) OrderCreated(OrderCreated)     {}
func (NopNotifier) StatusChanged(StatusChanged)   {}
func (NopNotifier) OrderCancelled(OrderCancelled) {}

// MultiNotifier fans every notification out to each sink in order.
type MultiNotifier []Notifier

func (m MultiNotifier) OrderCreated(ev OrderCreated) {
	for _, n := range m {
		n.OrderCreated(ev)
	}
}

func (m MultiNotifier) StatusChanged(ev StatusChanged) {
	for _, n := range m {
		n.StatusChanged(ev)
	}
}

func (m MultiNotifier) OrderCancelled(ev OrderCancelled) {
	for _, n := range m {
		n.OrderCancelled(ev)
	}
}

// event is the ledger's internal pending-notification envelope, queued
// while the mutation lock is held and flushed after commit.
type event struct {
	created   *OrderCreated
	changed   *StatusChanged
	cancelled *OrderCancelled
}

func (e event) deliver(n Notifier) {
	switch {
	case e.created != nil:
		n.OrderCreated(*e.created)
	case e.changed != nil:
		n.StatusChanged(*e.changed)
	case e.cancelled != nil:
		n.OrderCancelled(*e.cancelled)
	}
}
