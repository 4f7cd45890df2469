// Package wallet holds the local trading key: a secp256k1 key whose
// Keccak-256 derived address identifies the user to peers, and which signs
// and verifies trade orders.
package wallet

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/DeGatchi/vaportrade/pkg/protocol"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/mr-tron/base58"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/sha3"
)

// ErrInvalidMnemonic is returned when an invalid BIP-39 mnemonic phrase is provided.
var ErrInvalidMnemonic = errors.New("wallet: invalid mnemonic phrase")

// Wallet is a secp256k1 signing key and its address.
type Wallet struct {
	key     *secp256k1.PrivateKey
	address string
}

// Generate creates a wallet with a fresh random key.
func Generate() (*Wallet, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return fromKey(key), nil
}

// NewWithMnemonic generates a wallet with a BIP-39 mnemonic for recovery.
// The mnemonic is 24 words and should be written down by the user.
func NewWithMnemonic() (*Wallet, string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return nil, "", err
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, "", err
	}
	w, err := FromMnemonic(mnemonic)
	if err != nil {
		return nil, "", err
	}
	return w, mnemonic, nil
}

// FromMnemonic recovers a wallet from a BIP-39 mnemonic. The same mnemonic
// always produces the same wallet.
func FromMnemonic(mnemonic string) (*Wallet, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed := bip39.NewSeed(mnemonic, "")
	return fromKey(secp256k1.PrivKeyFromBytes(seed[:32])), nil
}

// FromBytes loads a wallet from a 32-byte private key.
func FromBytes(raw []byte) (*Wallet, error) {
	if len(raw) != secp256k1.PrivKeyBytesLen {
		return nil, fmt.Errorf("wallet: private key must be %d bytes", secp256k1.PrivKeyBytesLen)
	}
	return fromKey(secp256k1.PrivKeyFromBytes(raw)), nil
}

func fromKey(key *secp256k1.PrivateKey) *Wallet {
	return &Wallet{key: key, address: AddressOf(key.PubKey())}
}

// Address returns the lowercase 0x-prefixed wallet address.
func (w *Wallet) Address() string {
	return w.address
}

// Bytes returns the raw private key.
func (w *Wallet) Bytes() []byte {
	return w.key.Serialize()
}

// Fingerprint returns a short base58 identifier of the public key for
// display.
func (w *Wallet) Fingerprint() string {
	sum := keccak256(w.key.PubKey().SerializeCompressed())
	return base58.Encode(sum[:8])
}

// AddressOf derives the address of a public key: the last 20 bytes of the
// Keccak-256 hash of its uncompressed encoding.
func AddressOf(pub *secp256k1.PublicKey) string {
	raw := pub.SerializeUncompressed()
	sum := keccak256(raw[1:])
	return protocol.NormalizeAddress("0x" + hex.EncodeToString(sum[12:]))
}

func keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}
