package ledger

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// OrderID computes the keccak256 fingerprint of the creation tuple.
// The packing is fixed width so the encoding is unambiguous:
//
//	creator(20) || inputAsset(20) || outputAsset(20) ||
//	amount(32, big-endian) || targetPrice(32, big-endian) ||
//	createdAt(8, big-endian) || seq(8, big-endian)
//
// seq is the ledger's creation counter; it guarantees distinct ids even
// when every other field repeats within the same second.
func OrderID(p CreateParams, createdAt int64, seq uint64) common.Hash {
	var buf [20 + 20 + 20 + 32 + 32 + 8 + 8]byte
	off := 0
	off += copy(buf[off:], p.Creator[:])
	off += copy(buf[off:], p.InputAsset[:])
	off += copy(buf[off:], p.OutputAsset[:])
	p.Amount.FillBytes(buf[off : off+32])
	off += 32
	p.TargetPrice.FillBytes(buf[off : off+32])
	off += 32
	binary.BigEndian.PutUint64(buf[off:], uint64(createdAt))
	off += 8
	binary.BigEndian.PutUint64(buf[off:], seq)

	h := sha3.NewLegacyKeccak256()
	h.Write(buf[:])
	var id common.Hash
	h.Sum(id[:0])
	return id
}

// maxUint256 bounds amount and targetPrice so FillBytes always fits the
// 32-byte slots above. Enforced by CreateParams.Validate.
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
