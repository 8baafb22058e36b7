package storage

import (
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openorder/ledgerd/pkg/ledger"
)

// MemStore is an in-memory OrderStore for tests and ephemeral runs.
type MemStore struct {
	mu     sync.Mutex
	orders map[common.Hash]ledger.Order
	count  uint64
}

func NewMemStore() *MemStore {
	return &MemStore{orders: make(map[common.Hash]ledger.Order)}
}

func (s *MemStore) InsertOrder(o *ledger.Order, nextCount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o.Snapshot()
	s.count = nextCount
	return nil
}

func (s *MemStore) UpdateOrder(o *ledger.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o.Snapshot()
	return nil
}

func (s *MemStore) LoadAll() ([]*ledger.Order, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*ledger.Order, 0, len(s.orders))
	for _, o := range s.orders {
		cp := o.Snapshot()
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, s.count, nil
}

func (s *MemStore) Close() error { return nil }

var _ ledger.OrderStore = (*MemStore)(nil)
