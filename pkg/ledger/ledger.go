package ledger

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/openorder/ledgerd/pkg/util"
)

// OrderStore persists ledger state. Implemented by storage.PebbleStore
// and storage.MemStore. InsertOrder must atomically persist the record,
// its position in the enumeration index, and the new creation counter.
type OrderStore interface {
	InsertOrder(o *Order, nextCount uint64) error
	UpdateOrder(o *Order) error
	LoadAll() (orders []*Order, count uint64, err error)
	Close() error
}

// Ledger is the transparent order registry. It owns the id->record table,
// the insertion-ordered enumeration index, and the creation counter; the
// three only ever move together under one mutex, so no caller observes a
// partially applied mutation. Records are never deleted, only their
// Status mutates, and only through the transition table.
type Ledger struct {
	mu         sync.RWMutex
	emitMu     sync.Mutex // serializes notification delivery in commit order
	orders     map[common.Hash]*Order
	index      []common.Hash // insertion order, append-only
	count      uint64        // total orders ever created
	controller common.Address

	store    OrderStore
	clock    util.Clock
	notifier Notifier
	log      *zap.SugaredLogger
}

// Config wires a Ledger's collaborators. Store, Notifier and Logger are
// optional; Clock defaults to the wall clock.
type Config struct {
	Controller common.Address
	Store      OrderStore
	Clock      util.Clock
	Notifier   Notifier
	Logger     *zap.SugaredLogger
}

// New creates an empty ledger. If cfg.Store already holds state (node
// restart), the table, index and counter are rebuilt from it.
func New(cfg Config) (*Ledger, error) {
	l := &Ledger{
		orders:     make(map[common.Hash]*Order),
		controller: cfg.Controller,
		store:      cfg.Store,
		clock:      cfg.Clock,
		notifier:   cfg.Notifier,
		log:        cfg.Logger,
	}
	if l.clock == nil {
		l.clock = util.RealClock{}
	}
	if l.notifier == nil {
		l.notifier = NopNotifier{}
	}
	if l.log == nil {
		l.log = zap.NewNop().Sugar()
	}

	if l.store != nil {
		orders, count, err := l.store.LoadAll()
		if err != nil {
			return nil, fmt.Errorf("reload ledger state: %w", err)
		}
		for _, o := range orders {
			l.orders[o.ID] = o
			l.index = append(l.index, o.ID)
		}
		l.count = count
		if len(orders) > 0 {
			l.log.Infow("ledger_reloaded", "orders", len(orders), "count", count)
		}
	}
	return l, nil
}

// CreateOrder validates params, derives the fingerprint id, stores the
// record with status Pending, appends it to the enumeration index and
// bumps the creation counter. Emits OrderCreated on success.
func (l *Ledger) CreateOrder(p CreateParams) (common.Hash, error) {
	now := l.clock.Now().Unix()
	if err := p.Validate(now); err != nil {
		return common.Hash{}, err
	}

	l.mu.Lock()
	id := OrderID(p, now, l.count)
	if _, exists := l.orders[id]; exists {
		// Unreachable while the counter is part of the hashed tuple.
		l.mu.Unlock()
		return common.Hash{}, fmt.Errorf("%w: %s", ErrDuplicateID, id.Hex())
	}

	o := &Order{
		ID:          id,
		Creator:     p.Creator,
		InputAsset:  p.InputAsset,
		OutputAsset: p.OutputAsset,
		Amount:      new(big.Int).Set(p.Amount),
		TargetPrice: new(big.Int).Set(p.TargetPrice),
		CreatedAt:   now,
		ExpiresAt:   p.ExpiresAt,
		Status:      Pending,
		Seq:         l.count,
	}

	if l.store != nil {
		if err := l.store.InsertOrder(o, l.count+1); err != nil {
			l.mu.Unlock()
			return common.Hash{}, fmt.Errorf("persist order: %w", err)
		}
	}

	l.orders[id] = o
	l.index = append(l.index, id)
	l.count++
	l.log.Infow("order_created",
		"id", id.Hex(),
		"creator", p.Creator.Hex(),
		"amount", p.Amount.String(),
		"target_price", p.TargetPrice.String(),
		"expires_at", p.ExpiresAt)
	l.emit(event{created: &OrderCreated{Order: o.Snapshot()}})
	return id, nil
}

// CancelOrder withdraws an order. Only the creator may cancel, and only
// while the order is still active. Emits StatusChanged then
// OrderCancelled on success.
func (l *Ledger) CancelOrder(caller common.Address, id common.Hash) error {
	l.mu.Lock()
	o, ok := l.orders[id]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id.Hex())
	}
	if caller != o.Creator {
		l.mu.Unlock()
		return fmt.Errorf("%w: only the creator may cancel", ErrUnauthorized)
	}
	if !o.Status.Active() {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, o.Status)
	}

	old := o.Status
	next, err := Transition(old, Cancelled)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	if err := l.persistStatus(o, next); err != nil {
		l.mu.Unlock()
		return err
	}
	o.Status = next
	l.log.Infow("order_cancelled", "id", id.Hex(), "creator", caller.Hex(), "from", old.String())
	l.emit(
		event{changed: &StatusChanged{ID: id, From: old, To: next}},
		event{cancelled: &OrderCancelled{ID: id, Creator: o.Creator}},
	)
	return nil
}

// UpdateStatus is the privileged controller path. It enforces only that
// the (old, new) pair is structurally legal; the decision to apply it
// belongs to the external execution collaborator. Emits StatusChanged.
func (l *Ledger) UpdateStatus(caller common.Address, id common.Hash, newStatus Status) error {
	l.mu.Lock()
	if caller != l.controller {
		l.mu.Unlock()
		return fmt.Errorf("%w: only the controller may update status", ErrUnauthorized)
	}
	o, ok := l.orders[id]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id.Hex())
	}

	old := o.Status
	next, err := Transition(old, newStatus)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	if err := l.persistStatus(o, next); err != nil {
		l.mu.Unlock()
		return err
	}
	o.Status = next
	l.log.Infow("status_updated", "id", id.Hex(), "from", old.String(), "to", next.String())
	l.emit(event{changed: &StatusChanged{ID: id, From: old, To: next}})
	return nil
}

// emit flushes a committed mutation's notifications. Called with l.mu
// held; it takes the delivery mutex before releasing the state lock, so
// mutations that commit in order also notify in order even when a
// notifier stalls. Delivery itself runs outside the state lock, so a
// notifier may read the ledger and sees only committed state.
func (l *Ledger) emit(evs ...event) {
	l.emitMu.Lock()
	l.mu.Unlock()
	defer l.emitMu.Unlock()
	for _, ev := range evs {
		ev.deliver(l.notifier)
	}
}

// persistStatus write-through: persist the would-be record before the
// in-memory mutation so a store failure leaves no residual state change.
// Caller holds l.mu.
func (l *Ledger) persistStatus(o *Order, next Status) error {
	if l.store == nil {
		return nil
	}
	cp := o.Snapshot()
	cp.Status = next
	if err := l.store.UpdateOrder(&cp); err != nil {
		return fmt.Errorf("persist status: %w", err)
	}
	return nil
}

// GetOrder returns an immutable snapshot of the record.
func (l *Ledger) GetOrder(id common.Hash) (Order, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	o, ok := l.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("%w: %s", ErrNotFound, id.Hex())
	}
	return o.Snapshot(), nil
}

// AllOrders returns every order in insertion order. A non-nil filter
// restricts the result to orders currently in that status.
func (l *Ledger) AllOrders(filter *Status) []Order {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.collect(func(o *Order) bool {
		return filter == nil || o.Status == *filter
	})
}

// OrdersByStatus is AllOrders with a required filter.
func (l *Ledger) OrdersByStatus(s Status) []Order {
	return l.AllOrders(&s)
}

// OrdersByCreator returns the creator's orders in insertion order.
func (l *Ledger) OrdersByCreator(creator common.Address) []Order {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.collect(func(o *Order) bool { return o.Creator == creator })
}

// ActiveOrders returns orders in Pending or Ongoing status, insertion
// order preserved. Derived view: always equals AllOrders filtered to
// the active statuses.
func (l *Ledger) ActiveOrders() []Order {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.collect(func(o *Order) bool { return o.Status.Active() })
}

// collect walks the enumeration index once, appending snapshots of
// matching records. Caller holds at least l.mu.RLock.
func (l *Ledger) collect(match func(*Order) bool) []Order {
	out := make([]Order, 0)
	for _, id := range l.index {
		if o := l.orders[id]; match(o) {
			out = append(out, o.Snapshot())
		}
	}
	return out
}

// IsExpired reports whether the current time is past the order's
// ExpiresAt. Pure read: passing wall-clock expiry never mutates Status;
// the controller applies Expired explicitly via UpdateStatus.
func (l *Ledger) IsExpired(id common.Hash) (bool, error) {
	now := l.clock.Now().Unix()
	l.mu.RLock()
	defer l.mu.RUnlock()
	o, ok := l.orders[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotFound, id.Hex())
	}
	return now > o.ExpiresAt, nil
}

// Count returns the total number of orders ever created.
func (l *Ledger) Count() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

// Controller returns the currently designated controller identity.
func (l *Ledger) Controller() common.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.controller
}

// TransferController hands the controller capability to a new identity.
// Only the current controller may transfer it.
func (l *Ledger) TransferController(caller, next common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.controller {
		return fmt.Errorf("%w: only the controller may transfer control", ErrUnauthorized)
	}
	if next == (common.Address{}) {
		return &ValidationError{Field: "controller", Reason: "must not be the zero address"}
	}
	l.log.Infow("controller_transferred", "from", l.controller.Hex(), "to", next.Hex())
	l.controller = next
	return nil
}
