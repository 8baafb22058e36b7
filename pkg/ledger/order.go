package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PriceScale is the fixed-point scale for TargetPrice: 1e18 units of
// output asset per whole unit of input asset. Avoids floating point.
var PriceScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Order is an intent-to-trade record. Everything except Status is fixed
// at creation; Status only moves through the transition table.
type Order struct {
	ID          common.Hash    `json:"id"`
	Creator     common.Address `json:"creator"`
	InputAsset  common.Address `json:"inputAsset"`
	OutputAsset common.Address `json:"outputAsset"`
	Amount      *big.Int       `json:"amount"`      // input asset units, > 0
	TargetPrice *big.Int       `json:"targetPrice"` // output per input, 1e18 fixed point, > 0
	CreatedAt   int64          `json:"createdAt"`   // unix seconds
	ExpiresAt   int64          `json:"expiresAt"`   // unix seconds, > CreatedAt
	Status      Status         `json:"status"`
	Seq         uint64         `json:"seq"` // creation counter value at insert, part of the fingerprint
}

// Snapshot returns a deep copy so callers can't mutate ledger state
// through a query result.
func (o *Order) Snapshot() Order {
	cp := *o
	cp.Amount = new(big.Int).Set(o.Amount)
	cp.TargetPrice = new(big.Int).Set(o.TargetPrice)
	return cp
}

// CreateParams carries everything a caller supplies to CreateOrder.
type CreateParams struct {
	Creator     common.Address
	InputAsset  common.Address
	OutputAsset common.Address
	Amount      *big.Int
	TargetPrice *big.Int
	ExpiresAt   int64
}

// Validate checks creation preconditions against the registration time.
// Each violated precondition yields a distinct ValidationError.
func (p CreateParams) Validate(now int64) error {
	if p.InputAsset == (common.Address{}) {
		return &ValidationError{Field: "inputAsset", Reason: "must not be the zero address"}
	}
	if p.OutputAsset == (common.Address{}) {
		return &ValidationError{Field: "outputAsset", Reason: "must not be the zero address"}
	}
	if p.InputAsset == p.OutputAsset {
		return &ValidationError{Field: "outputAsset", Reason: "must differ from inputAsset"}
	}
	if p.Amount == nil || p.Amount.Sign() <= 0 {
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if p.Amount.Cmp(maxUint256) > 0 {
		return &ValidationError{Field: "amount", Reason: "exceeds 256 bits"}
	}
	if p.TargetPrice == nil || p.TargetPrice.Sign() <= 0 {
		return &ValidationError{Field: "targetPrice", Reason: "must be positive"}
	}
	if p.TargetPrice.Cmp(maxUint256) > 0 {
		return &ValidationError{Field: "targetPrice", Reason: "exceeds 256 bits"}
	}
	if p.ExpiresAt <= now {
		return &ValidationError{Field: "expiresAt", Reason: "must be strictly in the future"}
	}
	return nil
}
