package ledger_test

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openorder/ledgerd/pkg/ledger"
	"github.com/openorder/ledgerd/pkg/storage"
	"github.com/openorder/ledgerd/pkg/util"
)

var (
	controller = common.HexToAddress("0x00000000000000000000000000000000000000C0")
	makerM     = common.HexToAddress("0x000000000000000000000000000000000000004D")
	makerT     = common.HexToAddress("0x0000000000000000000000000000000000000054")
	assetIn    = common.HexToAddress("0x0000000000000000000000000000000000000aaa")
	assetOut   = common.HexToAddress("0x0000000000000000000000000000000000000bbb")
)

// recorder captures every notification in arrival order.
type recorder struct {
	kinds   []string
	created []ledger.OrderCreated
	changed []ledger.StatusChanged
	cancels []ledger.OrderCancelled
}

func (r *recorder) OrderCreated(ev ledger.OrderCreated) {
	r.kinds = append(r.kinds, "created")
	r.created = append(r.created, ev)
}

func (r *recorder) StatusChanged(ev ledger.StatusChanged) {
	r.kinds = append(r.kinds, "changed")
	r.changed = append(r.changed, ev)
}

func (r *recorder) OrderCancelled(ev ledger.OrderCancelled) {
	r.kinds = append(r.kinds, "cancelled")
	r.cancels = append(r.cancels, ev)
}

func newTestLedger(t *testing.T) (*ledger.Ledger, *util.ManualClock, *recorder) {
	t.Helper()
	clock := util.NewManualClock(time.Unix(1_000_000, 0))
	rec := &recorder{}
	l, err := ledger.New(ledger.Config{
		Controller: controller,
		Store:      storage.NewMemStore(),
		Clock:      clock,
		Notifier:   rec,
	})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	return l, clock, rec
}

func makeParams(creator common.Address, clock *util.ManualClock) ledger.CreateParams {
	return ledger.CreateParams{
		Creator:     creator,
		InputAsset:  assetIn,
		OutputAsset: assetOut,
		Amount:      big.NewInt(1000),
		TargetPrice: big.NewInt(3e14), // 0.0003 at the 1e18 scale
		ExpiresAt:   clock.Now().Add(time.Hour).Unix(),
	}
}

func mustCreate(t *testing.T, l *ledger.Ledger, p ledger.CreateParams) common.Hash {
	t.Helper()
	id, err := l.CreateOrder(p)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return id
}

func TestCreateOrder(t *testing.T) {
	l, clock, rec := newTestLedger(t)

	p := makeParams(makerM, clock)
	if _, err := l.GetOrder(ledger.OrderID(p, clock.Now().Unix(), 0)); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("id present before creation: %v", err)
	}

	id := mustCreate(t, l, p)

	o, err := l.GetOrder(id)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if o.Status != ledger.Pending {
		t.Errorf("status = %s, want Pending", o.Status)
	}
	if o.Creator != makerM || o.InputAsset != assetIn || o.OutputAsset != assetOut {
		t.Error("stored record does not match creation params")
	}
	if o.Amount.Cmp(p.Amount) != 0 || o.TargetPrice.Cmp(p.TargetPrice) != 0 {
		t.Error("stored amount/price do not match creation params")
	}
	if o.CreatedAt != clock.Now().Unix() {
		t.Errorf("createdAt = %d, want %d", o.CreatedAt, clock.Now().Unix())
	}
	if l.Count() != 1 {
		t.Errorf("count = %d, want 1", l.Count())
	}
	if len(rec.created) != 1 || rec.created[0].Order.ID != id {
		t.Errorf("expected exactly one OrderCreated for %s, got %d", id.Hex(), len(rec.created))
	}
}

func TestCreateOrderValidation(t *testing.T) {
	l, clock, rec := newTestLedger(t)

	tests := []struct {
		name   string
		mutate func(*ledger.CreateParams)
	}{
		{"zero input asset", func(p *ledger.CreateParams) { p.InputAsset = common.Address{} }},
		{"zero output asset", func(p *ledger.CreateParams) { p.OutputAsset = common.Address{} }},
		{"equal assets", func(p *ledger.CreateParams) { p.OutputAsset = p.InputAsset }},
		{"nil amount", func(p *ledger.CreateParams) { p.Amount = nil }},
		{"zero amount", func(p *ledger.CreateParams) { p.Amount = big.NewInt(0) }},
		{"negative amount", func(p *ledger.CreateParams) { p.Amount = big.NewInt(-5) }},
		{"zero price", func(p *ledger.CreateParams) { p.TargetPrice = big.NewInt(0) }},
		{"expiry in the past", func(p *ledger.CreateParams) { p.ExpiresAt = clock.Now().Add(-time.Second).Unix() }},
		{"expiry equals now", func(p *ledger.CreateParams) { p.ExpiresAt = clock.Now().Unix() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := makeParams(makerM, clock)
			tt.mutate(&p)
			if _, err := l.CreateOrder(p); !ledger.IsValidation(err) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}

	if l.Count() != 0 {
		t.Errorf("failed creations changed the counter: %d", l.Count())
	}
	if n := len(l.AllOrders(nil)); n != 0 {
		t.Errorf("failed creations stored %d records", n)
	}
	if len(rec.kinds) != 0 {
		t.Errorf("failed creations emitted notifications: %v", rec.kinds)
	}
}

func TestCreateOrderIdenticalParamsDistinctIDs(t *testing.T) {
	l, clock, _ := newTestLedger(t)

	// Same parameters, same frozen clock: only the creation counter
	// differs between the two calls.
	p := makeParams(makerM, clock)
	a := mustCreate(t, l, p)
	b := mustCreate(t, l, p)
	if a == b {
		t.Errorf("identical creations collided on id %s", a.Hex())
	}
	if l.Count() != 2 {
		t.Errorf("count = %d, want 2", l.Count())
	}
}

func TestCancelOrder(t *testing.T) {
	l, clock, rec := newTestLedger(t)
	id := mustCreate(t, l, makeParams(makerM, clock))

	// Strangers cannot cancel.
	if err := l.CancelOrder(makerT, id); !errors.Is(err, ledger.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if o, _ := l.GetOrder(id); o.Status != ledger.Pending {
		t.Fatalf("failed cancel mutated status to %s", o.Status)
	}

	if err := l.CancelOrder(makerM, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if o, _ := l.GetOrder(id); o.Status != ledger.Cancelled {
		t.Errorf("status = %s, want Cancelled", o.Status)
	}

	// StatusChanged then OrderCancelled, after the creation event.
	want := []string{"created", "changed", "cancelled"}
	if len(rec.kinds) != len(want) {
		t.Fatalf("notifications = %v, want %v", rec.kinds, want)
	}
	for i := range want {
		if rec.kinds[i] != want[i] {
			t.Fatalf("notifications = %v, want %v", rec.kinds, want)
		}
	}
	if rec.changed[0].From != ledger.Pending || rec.changed[0].To != ledger.Cancelled {
		t.Errorf("StatusChanged = %s -> %s", rec.changed[0].From, rec.changed[0].To)
	}
	if rec.cancels[0].Creator != makerM {
		t.Errorf("OrderCancelled creator = %s", rec.cancels[0].Creator.Hex())
	}

	// Second cancel fails and never double-emits.
	if err := l.CancelOrder(makerM, id); !errors.Is(err, ledger.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if len(rec.kinds) != len(want) {
		t.Errorf("failed cancel emitted notifications: %v", rec.kinds)
	}
}

func TestCancelOrderWhileOngoing(t *testing.T) {
	l, clock, _ := newTestLedger(t)
	id := mustCreate(t, l, makeParams(makerM, clock))

	if err := l.UpdateStatus(controller, id, ledger.Ongoing); err != nil {
		t.Fatalf("update status: %v", err)
	}
	if err := l.CancelOrder(makerM, id); err != nil {
		t.Fatalf("cancel of ongoing order: %v", err)
	}
	if o, _ := l.GetOrder(id); o.Status != ledger.Cancelled {
		t.Errorf("status = %s, want Cancelled", o.Status)
	}
}

func TestCancelOrderNotFound(t *testing.T) {
	l, _, _ := newTestLedger(t)
	if err := l.CancelOrder(makerM, common.HexToHash("0xdead")); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// driveTo moves a fresh order into the given starting status through the
// controller path.
func driveTo(t *testing.T, l *ledger.Ledger, id common.Hash, target ledger.Status) {
	t.Helper()
	switch target {
	case ledger.Pending:
	case ledger.Ongoing, ledger.Cancelled, ledger.Expired:
		if err := l.UpdateStatus(controller, id, target); err != nil {
			t.Fatalf("drive to %s: %v", target, err)
		}
	case ledger.Succeeded:
		if err := l.UpdateStatus(controller, id, ledger.Ongoing); err != nil {
			t.Fatalf("drive to Ongoing: %v", err)
		}
		if err := l.UpdateStatus(controller, id, ledger.Succeeded); err != nil {
			t.Fatalf("drive to Succeeded: %v", err)
		}
	}
}

func TestUpdateStatusGrid(t *testing.T) {
	statuses := []ledger.Status{ledger.Pending, ledger.Ongoing, ledger.Expired, ledger.Succeeded, ledger.Cancelled}

	for _, from := range statuses {
		for _, to := range statuses {
			t.Run(from.String()+"_to_"+to.String(), func(t *testing.T) {
				l, clock, _ := newTestLedger(t)
				id := mustCreate(t, l, makeParams(makerM, clock))
				driveTo(t, l, id, from)

				err := l.UpdateStatus(controller, id, to)
				if ledger.CanTransition(from, to) {
					if err != nil {
						t.Fatalf("allowed transition failed: %v", err)
					}
					if o, _ := l.GetOrder(id); o.Status != to {
						t.Errorf("status = %s, want %s", o.Status, to)
					}
					return
				}
				if !errors.Is(err, ledger.ErrInvalidTransition) {
					t.Fatalf("expected ErrInvalidTransition, got %v", err)
				}
				if o, _ := l.GetOrder(id); o.Status != from {
					t.Errorf("failed transition mutated status to %s", o.Status)
				}
			})
		}
	}
}

func TestUpdateStatusAuthorization(t *testing.T) {
	l, clock, _ := newTestLedger(t)
	id := mustCreate(t, l, makeParams(makerM, clock))

	// Not even the creator may use the controller path.
	if err := l.UpdateStatus(makerM, id, ledger.Ongoing); !errors.Is(err, ledger.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if o, _ := l.GetOrder(id); o.Status != ledger.Pending {
		t.Errorf("unauthorized call mutated status to %s", o.Status)
	}

	if err := l.UpdateStatus(controller, common.HexToHash("0xbeef"), ledger.Ongoing); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestQueries(t *testing.T) {
	l, clock, _ := newTestLedger(t)

	idA := mustCreate(t, l, makeParams(makerM, clock))
	pB := makeParams(makerT, clock)
	pB.Amount = big.NewInt(2000)
	idB := mustCreate(t, l, pB)

	if n := len(l.ActiveOrders()); n != 2 {
		t.Errorf("active orders = %d, want 2", n)
	}
	if n := len(l.OrdersByCreator(makerM)); n != 1 {
		t.Errorf("orders by %s = %d, want 1", makerM.Hex(), n)
	}
	if n := len(l.OrdersByStatus(ledger.Pending)); n != 2 {
		t.Errorf("pending orders = %d, want 2", n)
	}
	if n := len(l.AllOrders(nil)); n != 2 {
		t.Errorf("all orders = %d, want 2", n)
	}

	// Insertion order is preserved everywhere.
	all := l.AllOrders(nil)
	if all[0].ID != idA || all[1].ID != idB {
		t.Error("enumeration does not preserve insertion order")
	}

	// Cancellation flips status in place; the record never leaves the index.
	if err := l.CancelOrder(makerM, idA); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if n := len(l.AllOrders(nil)); n != 2 {
		t.Errorf("all orders after cancel = %d, want 2", n)
	}
	if n := len(l.ActiveOrders()); n != 1 {
		t.Errorf("active orders after cancel = %d, want 1", n)
	}
	cancelled := ledger.Cancelled
	if got := l.AllOrders(&cancelled); len(got) != 1 || got[0].ID != idA {
		t.Error("status filter did not isolate the cancelled order")
	}
}

// ActiveOrders is a derived view: it must always equal AllOrders
// filtered to the active statuses, whatever the ledger has been through.
func TestActiveOrdersEquivalence(t *testing.T) {
	l, clock, _ := newTestLedger(t)

	ids := make([]common.Hash, 0, 6)
	for i := 0; i < 6; i++ {
		creator := makerM
		if i%2 == 1 {
			creator = makerT
		}
		ids = append(ids, mustCreate(t, l, makeParams(creator, clock)))
	}
	l.UpdateStatus(controller, ids[0], ledger.Ongoing)
	l.UpdateStatus(controller, ids[1], ledger.Expired)
	l.CancelOrder(makerM, ids[2])
	driveTo(t, l, ids[3], ledger.Succeeded)

	checkEquivalence := func() {
		t.Helper()
		var fromAll []common.Hash
		for _, o := range l.AllOrders(nil) {
			if o.Status == ledger.Pending || o.Status == ledger.Ongoing {
				fromAll = append(fromAll, o.ID)
			}
		}
		active := l.ActiveOrders()
		if len(active) != len(fromAll) {
			t.Fatalf("ActiveOrders() has %d entries, filter over AllOrders has %d", len(active), len(fromAll))
		}
		for i, o := range active {
			if o.ID != fromAll[i] {
				t.Fatalf("ActiveOrders()[%d] = %s, filter gives %s", i, o.ID.Hex(), fromAll[i].Hex())
			}
		}
	}

	checkEquivalence()
	l.UpdateStatus(controller, ids[4], ledger.Ongoing)
	checkEquivalence()
	l.CancelOrder(makerT, ids[5])
	checkEquivalence()
}

func TestOrdersByCreatorExactSubset(t *testing.T) {
	l, clock, _ := newTestLedger(t)
	for i := 0; i < 5; i++ {
		creator := makerM
		if i >= 3 {
			creator = makerT
		}
		mustCreate(t, l, makeParams(creator, clock))
	}

	got := l.OrdersByCreator(makerM)
	if len(got) != 3 {
		t.Fatalf("orders by creator = %d, want 3", len(got))
	}
	var prev uint64
	for i, o := range got {
		if o.Creator != makerM {
			t.Errorf("result %d belongs to %s", i, o.Creator.Hex())
		}
		if i > 0 && o.Seq <= prev {
			t.Error("result not in insertion order")
		}
		prev = o.Seq
	}
}

func TestIsExpired(t *testing.T) {
	l, clock, rec := newTestLedger(t)
	id := mustCreate(t, l, makeParams(makerM, clock))

	expired, err := l.IsExpired(id)
	if err != nil {
		t.Fatalf("is expired: %v", err)
	}
	if expired {
		t.Error("fresh order reported expired")
	}

	clock.Advance(2 * time.Hour)
	expired, err = l.IsExpired(id)
	if err != nil {
		t.Fatalf("is expired: %v", err)
	}
	if !expired {
		t.Error("order past its deadline reported live")
	}

	// Expiry is lazy: the read observes it, nothing mutates Status and
	// nothing is emitted until the controller acts.
	if o, _ := l.GetOrder(id); o.Status != ledger.Pending {
		t.Errorf("wall-clock expiry mutated status to %s", o.Status)
	}
	if len(rec.changed) != 0 {
		t.Error("wall-clock expiry emitted a status change")
	}

	if _, err := l.IsExpired(common.HexToHash("0x01")); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	l, clock, _ := newTestLedger(t)
	id := mustCreate(t, l, makeParams(makerM, clock))

	o, _ := l.GetOrder(id)
	o.Amount.SetInt64(1)
	o.Status = ledger.Succeeded

	fresh, _ := l.GetOrder(id)
	if fresh.Amount.Int64() != 1000 || fresh.Status != ledger.Pending {
		t.Error("query result aliases ledger state")
	}
}

func TestControllerLifecycle(t *testing.T) {
	l, clock, rec := newTestLedger(t)
	id := mustCreate(t, l, makeParams(makerM, clock))

	// Pending -> Ongoing -> Succeeded; two status notifications in order.
	if err := l.UpdateStatus(controller, id, ledger.Ongoing); err != nil {
		t.Fatalf("to Ongoing: %v", err)
	}
	if err := l.UpdateStatus(controller, id, ledger.Succeeded); err != nil {
		t.Fatalf("to Succeeded: %v", err)
	}
	if len(rec.changed) != 2 {
		t.Fatalf("status notifications = %d, want 2", len(rec.changed))
	}
	if rec.changed[0].To != ledger.Ongoing || rec.changed[1].To != ledger.Succeeded {
		t.Error("status notifications out of order")
	}

	for _, next := range []ledger.Status{ledger.Pending, ledger.Ongoing, ledger.Cancelled, ledger.Expired} {
		if err := l.UpdateStatus(controller, id, next); !errors.Is(err, ledger.ErrInvalidTransition) {
			t.Errorf("Succeeded -> %s: expected ErrInvalidTransition, got %v", next, err)
		}
	}
}

func TestTransferController(t *testing.T) {
	l, clock, _ := newTestLedger(t)
	id := mustCreate(t, l, makeParams(makerM, clock))

	if err := l.TransferController(makerM, makerT); !errors.Is(err, ledger.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := l.TransferController(controller, common.Address{}); !ledger.IsValidation(err) {
		t.Fatalf("expected ValidationError for zero controller, got %v", err)
	}
	if err := l.TransferController(controller, makerT); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if l.Controller() != makerT {
		t.Errorf("controller = %s, want %s", l.Controller().Hex(), makerT.Hex())
	}

	// Old controller is locked out, new one works.
	if err := l.UpdateStatus(controller, id, ledger.Ongoing); !errors.Is(err, ledger.ErrUnauthorized) {
		t.Errorf("old controller still authorized: %v", err)
	}
	if err := l.UpdateStatus(makerT, id, ledger.Ongoing); err != nil {
		t.Errorf("new controller rejected: %v", err)
	}
}

func TestLedgerReload(t *testing.T) {
	store := storage.NewMemStore()
	clock := util.NewManualClock(time.Unix(1_000_000, 0))

	l1, err := ledger.New(ledger.Config{Controller: controller, Store: store, Clock: clock})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	idA := mustCreate(t, l1, makeParams(makerM, clock))
	idB := mustCreate(t, l1, makeParams(makerT, clock))
	if err := l1.UpdateStatus(controller, idA, ledger.Ongoing); err != nil {
		t.Fatalf("update status: %v", err)
	}

	// Restart against the same store.
	l2, err := ledger.New(ledger.Config{Controller: controller, Store: store, Clock: clock})
	if err != nil {
		t.Fatalf("reload ledger: %v", err)
	}
	if l2.Count() != 2 {
		t.Errorf("count after reload = %d, want 2", l2.Count())
	}
	all := l2.AllOrders(nil)
	if len(all) != 2 || all[0].ID != idA || all[1].ID != idB {
		t.Fatal("reload lost records or insertion order")
	}
	if all[0].Status != ledger.Ongoing || all[1].Status != ledger.Pending {
		t.Error("reload lost status mutations")
	}

	// The counter keeps climbing; new ids cannot collide with old ones.
	idC := mustCreate(t, l2, makeParams(makerM, clock))
	if idC == idA || idC == idB {
		t.Error("post-reload creation collided with an existing id")
	}
	if got, _ := l2.GetOrder(idC); got.Seq != 2 {
		t.Errorf("post-reload seq = %d, want 2", got.Seq)
	}
}

// stallingNotifier wraps a recorder and blocks the delivery of
// StatusChanged events moving to stallOn until release is closed.
type stallingNotifier struct {
	recorder
	stallOn ledger.Status
	stalled chan struct{} // closed when the stalled delivery begins
	release chan struct{}
}

func (s *stallingNotifier) StatusChanged(ev ledger.StatusChanged) {
	if ev.To == s.stallOn {
		close(s.stalled)
		<-s.release
	}
	s.recorder.StatusChanged(ev)
}

func TestStalledNotifierKeepsCommitOrder(t *testing.T) {
	clock := util.NewManualClock(time.Unix(1_000_000, 0))
	n := &stallingNotifier{
		stallOn: ledger.Ongoing,
		stalled: make(chan struct{}),
		release: make(chan struct{}),
	}
	l, err := ledger.New(ledger.Config{
		Controller: controller,
		Clock:      clock,
		Notifier:   n,
	})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	id := mustCreate(t, l, makeParams(makerM, clock))

	updateDone := make(chan error, 1)
	go func() { updateDone <- l.UpdateStatus(controller, id, ledger.Ongoing) }()
	<-n.stalled // Pending->Ongoing is committed, its delivery is in flight

	cancelDone := make(chan error, 1)
	go func() { cancelDone <- l.CancelOrder(makerM, id) }()

	// Let the cancel commit and queue its notifications behind the
	// stalled delivery before unblocking it.
	time.Sleep(50 * time.Millisecond)
	close(n.release)

	if err := <-updateDone; err != nil {
		t.Fatalf("update status: %v", err)
	}
	if err := <-cancelDone; err != nil {
		t.Fatalf("cancel order: %v", err)
	}

	want := []string{"created", "changed", "changed", "cancelled"}
	if len(n.kinds) != len(want) {
		t.Fatalf("notifications = %v, want %v", n.kinds, want)
	}
	for i, k := range want {
		if n.kinds[i] != k {
			t.Fatalf("notifications = %v, want %v", n.kinds, want)
		}
	}
	if n.changed[0].To != ledger.Ongoing || n.changed[1].To != ledger.Cancelled {
		t.Errorf("status stream = %s->%s then %s->%s, want Pending->Ongoing then Ongoing->Cancelled",
			n.changed[0].From, n.changed[0].To, n.changed[1].From, n.changed[1].To)
	}
	if o, _ := l.GetOrder(id); o.Status != ledger.Cancelled {
		t.Errorf("final status = %s, want Cancelled", o.Status)
	}
}
