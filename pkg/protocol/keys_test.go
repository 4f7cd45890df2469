package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetTokenKey(t *testing.T) {
	assert.Equal(t, TokenKey("137-0xabc-42"), GetTokenKey(ChainPolygon, " 0xAbC ", "42"))
	assert.Equal(t, GetTokenKey(ChainPolygon, "0xABC", "42"), GetTokenKey(ChainPolygon, "0xabc", "42"))
	assert.NotEqual(t, GetTokenKey(ChainPolygon, "0xabc", "42"), GetTokenKey(ChainPolygon, "0xabc", "43"))
}

func TestIsWalletAddress(t *testing.T) {
	assert.True(t, IsWalletAddress("0x00000000000000000000000000000000000000Ff"))
	assert.False(t, IsWalletAddress("0x0"))
	assert.False(t, IsWalletAddress("00000000000000000000000000000000000000ff00"))
	assert.False(t, IsWalletAddress("0x00000000000000000000000000000000000000fg"))
}
