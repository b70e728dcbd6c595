package valueobjects

import (
	"errors"
	"math/big"
)

// Amount is an arbitrary-precision non-negative integer token quantity.
// All arithmetic is exact; division truncates toward zero.
type Amount struct {
	value *big.Int
}

func NewAmount(v *big.Int) (Amount, error) {
	if v == nil {
		return Amount{}, errors.New("amount is required")
	}
	if v.Sign() < 0 {
		return Amount{}, errors.New("amount must not be negative")
	}
	return Amount{value: new(big.Int).Set(v)}, nil
}

func AmountFromUint64(v uint64) Amount {
	return Amount{value: new(big.Int).SetUint64(v)}
}

// ParseAmount decodes a base-10 amount string, as carried on the wire
// and in NUMERIC database columns.
func ParseAmount(s string) (Amount, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, errors.New("amount must be a base-10 integer")
	}
	return NewAmount(v)
}

func ZeroAmount() Amount {
	return Amount{value: new(big.Int)}
}

func (a Amount) big() *big.Int {
	if a.value == nil {
		return new(big.Int)
	}
	return a.value
}

func (a Amount) IsZero() bool {
	return a.big().Sign() == 0
}

func (a Amount) Cmp(b Amount) int {
	return a.big().Cmp(b.big())
}

func (a Amount) Add(b Amount) Amount {
	return Amount{value: new(big.Int).Add(a.big(), b.big())}
}

// Sub panics when b exceeds a; callers check feasibility first.
func (a Amount) Sub(b Amount) Amount {
	if a.Cmp(b) < 0 {
		panic("amount subtraction underflow")
	}
	return Amount{value: new(big.Int).Sub(a.big(), b.big())}
}

func (a Amount) Mul(b Amount) Amount {
	return Amount{value: new(big.Int).Mul(a.big(), b.big())}
}

// Div truncates toward zero. The divisor must be non-zero.
func (a Amount) Div(b Amount) Amount {
	return Amount{value: new(big.Int).Quo(a.big(), b.big())}
}

// MulUint64 scales the amount by a small counter, e.g. a per-transfer
// fee by the number of recipients.
func (a Amount) MulUint64(n uint64) Amount {
	return Amount{value: new(big.Int).Mul(a.big(), new(big.Int).SetUint64(n))}
}

func (a Amount) String() string {
	return a.big().String()
}
