package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"
)

const (
	saltSize = 16
	// keyFileVersion guards the stored JSON layout.
	keyFileVersion = 1
)

// ErrDecrypt is returned when a key file cannot be opened with the given
// passphrase.
var ErrDecrypt = errors.New("wallet: decryption failed (wrong passphrase?)")

// storedKey is the JSON structure sealed inside the key file.
type storedKey struct {
	Version    int    `json:"version"`
	PrivateKey []byte `json:"private_key"`
	Address    string `json:"address"`
}

// deriveKey uses Argon2id to derive an AES-256 key from passphrase.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Save encrypts the wallet key and writes it to path as
// salt || nonce || ciphertext.
func Save(w *Wallet, path, passphrase string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.Marshal(storedKey{
		Version:    keyFileVersion,
		PrivateKey: w.Bytes(),
		Address:    w.Address(),
	})
	if err != nil {
		return fmt.Errorf("failed to serialize key: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}
	gcm, err := newGCM(deriveKey(passphrase, salt))
	if err != nil {
		return err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, saltSize+len(nonce)+len(data)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, data, nil)

	if err := os.WriteFile(path, out, 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

// Load decrypts the wallet stored at path.
func Load(path, passphrase string) (*Wallet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) < saltSize+12 {
		return nil, fmt.Errorf("wallet: key file too short")
	}

	gcm, err := newGCM(deriveKey(passphrase, data[:saltSize]))
	if err != nil {
		return nil, err
	}
	nonce := data[saltSize : saltSize+gcm.NonceSize()]
	plaintext, err := gcm.Open(nil, nonce, data[saltSize+gcm.NonceSize():], nil)
	if err != nil {
		return nil, ErrDecrypt
	}

	var stored storedKey
	if err := json.Unmarshal(plaintext, &stored); err != nil {
		return nil, fmt.Errorf("failed to deserialize key: %w", err)
	}
	if stored.Version != keyFileVersion {
		return nil, fmt.Errorf("wallet: unsupported key file version %d", stored.Version)
	}
	w, err := FromBytes(stored.PrivateKey)
	if err != nil {
		return nil, err
	}
	if stored.Address != w.Address() {
		return nil, fmt.Errorf("wallet: key file address mismatch")
	}
	return w, nil
}

// LoadOrCreate loads the wallet at path, generating and saving a new one if
// the file does not exist. created reports whether a new wallet was made.
func LoadOrCreate(path, passphrase string) (w *Wallet, created bool, err error) {
	w, err = Load(path, passphrase)
	if err == nil {
		return w, false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, false, err
	}
	w, err = Generate()
	if err != nil {
		return nil, false, err
	}
	if err := Save(w, path, passphrase); err != nil {
		return nil, false, err
	}
	return w, true, nil
}
