package units

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWadRoundTrip(t *testing.T) {
	wad, ok := new(big.Int).SetString("1500000000000000000", 10) // 1.5
	require.True(t, ok)

	d := FromWad(wad)
	assert.True(t, decimal.RequireFromString("1.5").Equal(d))
	assert.Equal(t, wad, ToWad(d))
}

func TestRadPrecision(t *testing.T) {
	// 100 Rad has 45 zeroes; decimal must carry it without loss.
	rad, ok := new(big.Int).SetString("100"+zeroes(45), 10)
	require.True(t, ok)

	d := FromRad(rad)
	assert.True(t, decimal.NewFromInt(100).Equal(d))
	assert.Equal(t, rad, ToRad(d))
}

func TestFromNil(t *testing.T) {
	assert.True(t, FromWad(nil).IsZero())
	assert.True(t, FromRay(nil).IsZero())
	assert.True(t, FromRad(nil).IsZero())
}

func TestToWadTruncates(t *testing.T) {
	// Anything below 10^-18 is not representable on-chain and is cut off.
	d := decimal.RequireFromString("1.0000000000000000019")
	want, _ := new(big.Int).SetString("1000000000000000001", 10)
	assert.Equal(t, want, ToWad(d))
}

func TestWadEqual(t *testing.T) {
	a := decimal.RequireFromString("2.000000000000000000123")
	b := decimal.RequireFromString("2.000000000000000000456")
	assert.True(t, WadEqual(a, b))
	assert.False(t, WadEqual(a, a.Add(decimal.New(1, -18))))
}

func zeroes(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '0'
	}
	return string(b)
}
