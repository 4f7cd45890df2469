package protocol

import (
	"fmt"
	"regexp"
	"strings"
)

var walletAddressRE = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// NormalizeAddress lowercases an address so that comparisons are
// case-insensitive.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// IsWalletAddress reports whether addr is a 20-byte 0x-prefixed hex address.
func IsWalletAddress(addr string) bool {
	return walletAddressRE.MatchString(addr)
}

// TokenKey identifies a single token id of a contract on a chain.
type TokenKey string

// GetTokenKey builds the key for a token id of a contract.
func GetTokenKey(chainID int, contractAddress, tokenID string) TokenKey {
	return TokenKey(fmt.Sprintf("%d-%s-%s", chainID, NormalizeAddress(contractAddress), tokenID))
}
