package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelector(t *testing.T) {
	// Known selectors from the deployed house ABIs.
	assert.Equal(t, []byte{0x4b, 0x43, 0xed, 0x12}, Selector("tend(uint256,uint256,uint256)"))
	assert.Equal(t, []byte{0x5f, 0xf3, 0xa3, 0x82}, Selector("dent(uint256,uint256,uint256)"))
	assert.Equal(t, []byte{0xc9, 0x59, 0xc4, 0x2b}, Selector("deal(uint256)"))
	assert.Equal(t, []byte{0x70, 0xa0, 0x82, 0x31}, Selector("balanceOf(address)"))
}

func TestPackUint(t *testing.T) {
	data := PackUint(Selector("deal(uint256)"), big.NewInt(0x1234))
	require.Len(t, data, 36)
	assert.Equal(t, byte(0x12), data[4+30])
	assert.Equal(t, byte(0x34), data[4+31])
}

func TestPackAddress(t *testing.T) {
	addr := common.HexToAddress("0xd8515c1e9b2f93858bf0e5409cd08c2ca7342b9f")
	data := PackAddress(nil, addr)
	require.Len(t, data, 32)
	assert.Equal(t, make([]byte, 12), data[:12])
	assert.Equal(t, addr.Bytes(), data[12:])
}

func TestWordDecoding(t *testing.T) {
	addr := common.HexToAddress("0x1926ad8d2fc92ecd89a1f11dd428c4746f9e4e33")
	out := PackUint(nil, big.NewInt(42))
	out = PackAddress(out, addr)

	assert.Equal(t, big.NewInt(42), word(out, 0))
	assert.Equal(t, addr, wordAddr(out, 1))

	// Reading past the payload yields zero, the missing-id sentinel.
	assert.Equal(t, 0, word(out, 5).Sign())
	assert.Equal(t, common.Address{}, wordAddr(out, 9))
}
