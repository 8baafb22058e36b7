package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/openorder/ledgerd/pkg/ledger"
)

// PebbleStore persists ledger state in Pebble. Layout:
//
//	o:<32-byte-id>  -> JSON order record
//	i:<8-byte-seq>  -> 32-byte id (insertion index, append-only)
//	n               -> 8-byte creation counter
type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// InsertOrder writes the record, its index entry and the new counter in
// one synced batch so the three can never be observed out of step.
func (s *PebbleStore) InsertOrder(o *ledger.Order, nextCount uint64) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(kOrder(o.ID), data, nil); err != nil {
		return err
	}
	if err := b.Set(kIndex(o.Seq), o.ID[:], nil); err != nil {
		return err
	}
	if err := b.Set(kCount(), countValue(nextCount), nil); err != nil {
		return err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit order insert: %w", err)
	}
	return nil
}

// UpdateOrder rewrites an existing record (status changes only; every
// other field is immutable).
func (s *PebbleStore) UpdateOrder(o *ledger.Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	if err := s.db.Set(kOrder(o.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	return nil
}

// LoadAll rebuilds (orders in insertion order, creation counter). Walks
// the index prefix so enumeration order survives restarts.
func (s *PebbleStore) LoadAll() ([]*ledger.Order, uint64, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: indexPrefix,
		UpperBound: keyUpperBound(indexPrefix),
	})
	if err != nil {
		return nil, 0, err
	}
	defer iter.Close()

	var orders []*ledger.Order
	for iter.First(); iter.Valid(); iter.Next() {
		var id common.Hash
		copy(id[:], iter.Value())

		data, closer, err := s.db.Get(kOrder(id))
		if err != nil {
			return nil, 0, fmt.Errorf("index entry %x points at missing order: %w", id, err)
		}
		var o ledger.Order
		uerr := json.Unmarshal(data, &o)
		closer.Close()
		if uerr != nil {
			return nil, 0, fmt.Errorf("unmarshal order %x: %w", id, uerr)
		}
		orders = append(orders, &o)
	}

	count, err := s.loadCount()
	if err != nil {
		return nil, 0, err
	}
	return orders, count, nil
}

func (s *PebbleStore) loadCount() (uint64, error) {
	val, closer, err := s.db.Get(kCount())
	if err == pebble.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer closer.Close()
	return binary.BigEndian.Uint64(val), nil
}

var _ ledger.OrderStore = (*PebbleStore)(nil)
