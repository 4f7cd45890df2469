package wallet

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/DeGatchi/vaportrade/pkg/protocol"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/mr-tron/base58"
)

// Order verification errors.
var (
	ErrMalformedOrder = errors.New("wallet: malformed signed order")
	ErrBadSignature   = errors.New("wallet: signature does not match maker")
	ErrTermsMismatch  = errors.New("wallet: order does not match the agreed terms")
)

// Order is the signed order exchanged in accept messages. The maker gives
// MakerItems to the taker in exchange for TakerItems.
type Order struct {
	ChainID    int             `json:"chainId"`
	Maker      string          `json:"maker"`
	Taker      string          `json:"taker"`
	MakerItems []protocol.Item `json:"makerItems"`
	TakerItems []protocol.Item `json:"takerItems"`
	Salt       string          `json:"salt"`
	Signature  string          `json:"signature,omitempty"`
}

// Terms returns what the order commits to.
func (o Order) Terms() protocol.OrderTerms {
	return protocol.OrderTerms{
		Maker:      o.Maker,
		Taker:      o.Taker,
		MakerItems: o.MakerItems,
		TakerItems: o.TakerItems,
	}
}

// digest hashes the order without its signature.
func (o Order) digest() ([]byte, error) {
	o.Signature = ""
	if o.MakerItems == nil {
		o.MakerItems = []protocol.Item{}
	}
	if o.TakerItems == nil {
		o.TakerItems = []protocol.Item{}
	}
	data, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	return keccak256([]byte("vaportrade order:"), data), nil
}

// SignOrder signs terms with the wallet key. The wallet must be the maker.
func (w *Wallet) SignOrder(terms protocol.OrderTerms) (json.RawMessage, error) {
	if protocol.NormalizeAddress(terms.Maker) != w.address {
		return nil, fmt.Errorf("wallet: cannot sign for maker %s", terms.Maker)
	}
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	order := Order{
		ChainID:    protocol.ChainPolygon,
		Maker:      w.address,
		Taker:      protocol.NormalizeAddress(terms.Taker),
		MakerItems: protocol.CloneItems(terms.MakerItems),
		TakerItems: protocol.CloneItems(terms.TakerItems),
		Salt:       base58.Encode(salt),
	}
	hash, err := order.digest()
	if err != nil {
		return nil, fmt.Errorf("failed to encode order: %w", err)
	}
	order.Signature = base58.Encode(ecdsa.SignCompact(w.key, hash, false))
	return json.Marshal(order)
}

// VerifyOrder checks that raw is an order signed by its maker and that it
// commits to exactly terms. It implements trade.OrderVerifier.
func (w *Wallet) VerifyOrder(raw json.RawMessage, terms protocol.OrderTerms) error {
	return VerifyOrder(raw, terms)
}

// VerifyOrder checks a signed order against the expected terms.
func VerifyOrder(raw json.RawMessage, terms protocol.OrderTerms) error {
	order, err := ParseOrder(raw)
	if err != nil {
		return err
	}
	if order.ChainID != protocol.ChainPolygon {
		return fmt.Errorf("%w: chain %d", ErrTermsMismatch, order.ChainID)
	}
	if order.Maker != protocol.NormalizeAddress(terms.Maker) || order.Taker != protocol.NormalizeAddress(terms.Taker) {
		return fmt.Errorf("%w: parties", ErrTermsMismatch)
	}
	if !protocol.ItemsEqual(order.MakerItems, terms.MakerItems) || !protocol.ItemsEqual(order.TakerItems, terms.TakerItems) {
		return fmt.Errorf("%w: items", ErrTermsMismatch)
	}

	sig, err := base58.Decode(order.Signature)
	if err != nil {
		return fmt.Errorf("%w: signature encoding", ErrMalformedOrder)
	}
	hash, err := order.digest()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOrder, err)
	}
	pub, _, err := ecdsa.RecoverCompact(sig, hash)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if AddressOf(pub) != order.Maker {
		return ErrBadSignature
	}
	return nil
}

// ParseOrder decodes a signed order. Addresses are normalized.
func ParseOrder(raw json.RawMessage) (Order, error) {
	var order Order
	if err := json.Unmarshal(raw, &order); err != nil {
		return Order{}, fmt.Errorf("%w: %v", ErrMalformedOrder, err)
	}
	if !protocol.IsWalletAddress(order.Maker) || !protocol.IsWalletAddress(order.Taker) {
		return Order{}, fmt.Errorf("%w: invalid party address", ErrMalformedOrder)
	}
	if order.Signature == "" {
		return Order{}, fmt.Errorf("%w: missing signature", ErrMalformedOrder)
	}
	order.Maker = protocol.NormalizeAddress(order.Maker)
	order.Taker = protocol.NormalizeAddress(order.Taker)
	return order, nil
}
