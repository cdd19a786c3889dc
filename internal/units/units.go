// Package units converts between the protocol's on-chain fixed-point
// representations and decimals.
//
// Wad = 10^18, Ray = 10^27, Rad = 10^45. Simple token quantities are Wads;
// amounts that are products of rates and quantities (tab, flip/flop bids)
// are Rads and must be compared at full precision before any truncation.
package units

import (
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	WadDigits = 18
	RayDigits = 27
	RadDigits = 45
)

// FromWad converts a raw 10^18 fixed-point integer to a decimal.
func FromWad(x *big.Int) decimal.Decimal {
	if x == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(x, -WadDigits)
}

// FromRay converts a raw 10^27 fixed-point integer to a decimal.
func FromRay(x *big.Int) decimal.Decimal {
	if x == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(x, -RayDigits)
}

// FromRad converts a raw 10^45 fixed-point integer to a decimal.
func FromRad(x *big.Int) decimal.Decimal {
	if x == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(x, -RadDigits)
}

// ToWad converts a decimal to its 10^18 integer form, truncating anything
// below the smallest unit.
func ToWad(d decimal.Decimal) *big.Int {
	return d.Shift(WadDigits).Truncate(0).BigInt()
}

// ToRay converts a decimal to its 10^27 integer form.
func ToRay(d decimal.Decimal) *big.Int {
	return d.Shift(RayDigits).Truncate(0).BigInt()
}

// ToRad converts a decimal to its 10^45 integer form.
func ToRad(d decimal.Decimal) *big.Int {
	return d.Shift(RadDigits).Truncate(0).BigInt()
}

// WadEqual reports whether two decimals are the same quantity once rounded
// to Wad resolution. Used to suppress bids that are economic no-ops.
func WadEqual(a, b decimal.Decimal) bool {
	return a.Truncate(WadDigits).Equal(b.Truncate(WadDigits))
}

// RadEqual reports whether two decimals are the same quantity at Rad
// resolution.
func RadEqual(a, b decimal.Decimal) bool {
	return a.Truncate(RadDigits).Equal(b.Truncate(RadDigits))
}
