package storage

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
)

// keys: o:<32-byte-id>, i:<8-byte-seq>, n
func kOrder(id common.Hash) []byte { return append([]byte("o:"), id[:]...) }
func kIndex(seq uint64) []byte     { return append([]byte("i:"), seqKey(seq)...) }
func kCount() []byte               { return []byte("n") }

var indexPrefix = []byte("i:")

func seqKey(seq uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], seq)
	return k[:]
}

func countValue(n uint64) []byte { return seqKey(n) }

// keyUpperBound returns the smallest key greater than every key with
// the given prefix, for iterator bounds.
func keyUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
