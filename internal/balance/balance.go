/**
 * @description
 * Normalized token balances and the eligibility rule applied to them. A balance is
 * either fungible (a raw amount scaled by a declared decimals exponent) or countable
 * (a whole number of items); the two are compared against the threshold differently.
 */
package balance

import (
	"math/big"
)

// Kind names the shape a balance was read as.
type Kind string

const (
	KindFungible  Kind = "fungible"
	KindCountable Kind = "countable"
)

// Balance is a FungibleBalance or a CountableBalance.
type Balance interface {
	Kind() Kind
	// String renders the normalized value for logs and notifications.
	String() string
	meets(minimum int64) bool
}

// FungibleBalance is a raw amount with a fractional exponent.
type FungibleBalance struct {
	Raw      *big.Int
	Decimals uint8
}

// Kind implements Balance.
func (FungibleBalance) Kind() Kind { return KindFungible }

// Normalized returns Raw / 10^Decimals.
func (b FungibleBalance) Normalized() *big.Float {
	raw := b.Raw
	if raw == nil {
		raw = new(big.Int)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(b.Decimals)), nil)
	num := new(big.Float).SetPrec(256).SetInt(raw)
	den := new(big.Float).SetPrec(256).SetInt(scale)
	return num.Quo(num, den)
}

// Float64 returns the normalized balance as the nearest float64.
func (b FungibleBalance) Float64() float64 {
	f, _ := b.Normalized().Float64()
	return f
}

// String implements Balance.
func (b FungibleBalance) String() string {
	return b.Normalized().Text('f', -1)
}

func (b FungibleBalance) meets(minimum int64) bool {
	threshold := new(big.Float).SetPrec(256).SetInt64(minimum)
	return b.Normalized().Cmp(threshold) >= 0
}

// CountableBalance is a whole number of held items.
type CountableBalance struct {
	Count *big.Int
}

// Kind implements Balance.
func (CountableBalance) Kind() Kind { return KindCountable }

// String implements Balance.
func (b CountableBalance) String() string {
	if b.Count == nil {
		return "0"
	}
	return b.Count.String()
}

func (b CountableBalance) meets(minimum int64) bool {
	count := b.Count
	if count == nil {
		count = new(big.Int)
	}
	return count.Cmp(big.NewInt(minimum)) >= 0
}

// Evaluate reports whether b satisfies the configured minimum. A nil balance never does.
func Evaluate(b Balance, minimum int64) bool {
	if b == nil {
		return false
	}
	return b.meets(minimum)
}
