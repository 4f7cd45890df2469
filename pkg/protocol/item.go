package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Known contract standards.
const (
	ERC20   = "ERC20"
	ERC721  = "ERC721"
	ERC1155 = "ERC1155"
)

// ChainPolygon is the only chain trades are negotiated on.
const ChainPolygon = 137

// MaxDecimals bounds the decimals field of an item.
const MaxDecimals = 255

// Item validation errors.
var (
	ErrInvalidContractType = errors.New("protocol: invalid contract type")
	ErrInvalidAddress      = errors.New("protocol: invalid address")
	ErrInvalidTokenID      = errors.New("protocol: invalid token id")
	ErrInvalidBalance      = errors.New("protocol: invalid balance")
	ErrInvalidDecimals     = errors.New("protocol: invalid decimals")
)

// ContractType is either one of the known token standards or the name of an
// unrecognised one. On the wire a known type is a bare string and an unknown
// type is {"other": "<name>"}.
type ContractType struct {
	Name  string
	Other bool
}

// KnownType returns the ContractType for a known standard.
func KnownType(name string) ContractType {
	return ContractType{Name: name}
}

// OtherType returns a ContractType for an unrecognised standard.
func OtherType(name string) ContractType {
	return ContractType{Name: name, Other: true}
}

// IsKnownContractType reports whether name is one of the supported standards.
func IsKnownContractType(name string) bool {
	switch name {
	case ERC20, ERC721, ERC1155:
		return true
	}
	return false
}

// String returns the contract type name, prefixed with "other:" when unknown.
func (c ContractType) String() string {
	if c.Other {
		return "other:" + c.Name
	}
	return c.Name
}

// Validate checks that the type is either known or a non-empty other name.
func (c ContractType) Validate() error {
	if c.Other {
		if c.Name == "" {
			return fmt.Errorf("%w: empty other type", ErrInvalidContractType)
		}
		return nil
	}
	if !IsKnownContractType(c.Name) {
		return fmt.Errorf("%w: %q", ErrInvalidContractType, c.Name)
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (c ContractType) MarshalJSON() ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.Other {
		return json.Marshal(struct {
			Other string `json:"other"`
		}{c.Name})
	}
	return json.Marshal(c.Name)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *ContractType) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidContractType, err)
		}
		*c = KnownType(name)
		return c.Validate()
	}

	fields, err := decodeObject(data)
	if err == nil {
		err = checkFields(fields, []string{"other"})
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidContractType, err)
	}
	var name string
	if err := decodeField(fields, "other", &name); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidContractType, err)
	}
	*c = OtherType(name)
	return c.Validate()
}

// Item is a token or NFT position offered in a trade.
type Item struct {
	Type            ContractType
	ContractAddress string
	TokenID         string
	Balance         *big.Int
	Decimals        int
	Name            string
	IconURL         string
}

// itemFields lists the exact keys of an item on the wire.
var itemFields = []string{"type", "contractAddress", "tokenID", "balance", "decimals", "name", "iconUrl"}

// Validate checks every field of the item.
func (it Item) Validate() error {
	if err := it.Type.Validate(); err != nil {
		return err
	}
	if !isContractAddress(it.ContractAddress) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, it.ContractAddress)
	}
	if !isDecimalString(it.TokenID) && it.TokenID != "" {
		return fmt.Errorf("%w: %q", ErrInvalidTokenID, it.TokenID)
	}
	if it.Balance == nil || it.Balance.Sign() < 0 {
		return ErrInvalidBalance
	}
	if it.Decimals < 0 || it.Decimals > MaxDecimals {
		return fmt.Errorf("%w: %d", ErrInvalidDecimals, it.Decimals)
	}
	return nil
}

// MarshalJSON encodes the item with its balance as a decimal string.
func (it Item) MarshalJSON() ([]byte, error) {
	if err := it.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Type            ContractType `json:"type"`
		ContractAddress string       `json:"contractAddress"`
		TokenID         string       `json:"tokenID"`
		Balance         string       `json:"balance"`
		Decimals        int          `json:"decimals"`
		Name            string       `json:"name"`
		IconURL         string       `json:"iconUrl"`
	}{
		Type:            it.Type,
		ContractAddress: it.ContractAddress,
		TokenID:         it.TokenID,
		Balance:         it.Balance.String(),
		Decimals:        it.Decimals,
		Name:            it.Name,
		IconURL:         it.IconURL,
	})
}

// UnmarshalJSON decodes and validates an item. Every field is required,
// keys match case-sensitively, and unknown or repeated keys are rejected.
func (it *Item) UnmarshalJSON(data []byte) error {
	fields, err := decodeObject(data)
	if err != nil {
		return err
	}
	if err := checkFields(fields, itemFields); err != nil {
		return err
	}

	var parsed Item
	for _, f := range []struct {
		name string
		dst  any
	}{
		{"type", &parsed.Type},
		{"contractAddress", &parsed.ContractAddress},
		{"tokenID", &parsed.TokenID},
		{"decimals", &parsed.Decimals},
		{"name", &parsed.Name},
		{"iconUrl", &parsed.IconURL},
	} {
		if err := decodeField(fields, f.name, f.dst); err != nil {
			return err
		}
	}
	if parsed.Balance, err = parseBalance(fields["balance"]); err != nil {
		return err
	}
	if err := parsed.Validate(); err != nil {
		return err
	}
	*it = parsed
	return nil
}

// Clone returns a deep copy of the item.
func (it Item) Clone() Item {
	c := it
	if it.Balance != nil {
		c.Balance = new(big.Int).Set(it.Balance)
	}
	return c
}

// SameToken reports whether two items refer to the same token.
func (it Item) SameToken(other Item) bool {
	return strings.EqualFold(it.ContractAddress, other.ContractAddress) && it.TokenID == other.TokenID
}

// Equal reports whether two items describe the same position.
func (it Item) Equal(other Item) bool {
	if !it.SameToken(other) || it.Type != other.Type {
		return false
	}
	if it.Balance == nil || other.Balance == nil {
		return it.Balance == other.Balance
	}
	return it.Balance.Cmp(other.Balance) == 0
}

// CloneItems deep-copies a list of items.
func CloneItems(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}

// ItemsEqual compares two ordered item lists.
func ItemsEqual(a, b []Item) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// parseBalance accepts a decimal string, or the {"type":"BigNumber","hex":"0x.."}
// object browser clients emit when serialising ethers BigNumbers.
func parseBalance(raw json.RawMessage) (*big.Int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, ErrInvalidBalance
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidBalance, err)
		}
		if !isDecimalString(s) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidBalance, s)
		}
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidBalance, s)
		}
		return v, nil
	}

	fields, err := decodeObject(raw)
	if err == nil {
		err = checkFields(fields, []string{"type", "hex"})
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBalance, err)
	}
	var typ, h string
	if err := decodeField(fields, "type", &typ); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBalance, err)
	}
	if err := decodeField(fields, "hex", &h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBalance, err)
	}
	if typ != "BigNumber" {
		return nil, fmt.Errorf("%w: type %q", ErrInvalidBalance, typ)
	}
	if !strings.HasPrefix(h, "0x") || len(h) < 3 || !isHex(h[2:]) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBalance, h)
	}
	v, ok := new(big.Int).SetString(h[2:], 16)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBalance, h)
	}
	return v, nil
}

func isDecimalString(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// isContractAddress accepts 0x-prefixed hex up to 20 bytes, which covers
// both full contract addresses and the "0x0" native token placeholder.
func isContractAddress(s string) bool {
	if !strings.HasPrefix(s, "0x") {
		return false
	}
	body := s[2:]
	return len(body) > 0 && len(body) <= 40 && isHex(body)
}
