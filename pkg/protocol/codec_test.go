package protocol

import (
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testContract = "0x2791bca1f2de4661ed88a30c99a7a9449aa84174"

func testItem(balance int64) Item {
	return Item{
		Type:            KnownType(ERC20),
		ContractAddress: testContract,
		TokenID:         "0",
		Balance:         big.NewInt(balance),
		Decimals:        6,
		Name:            "USD Coin",
		IconURL:         "https://example.com/usdc.png",
	}
}

func TestMarshalParseRoundTrip(t *testing.T) {
	nft := Item{
		Type:            KnownType(ERC721),
		ContractAddress: "0xa5f1ea7df861952863df2e8d1312f7305dabf215",
		TokenID:         "31337",
		Balance:         big.NewInt(1),
		Decimals:        0,
		Name:            "Gotchi",
		IconURL:         "",
	}

	messages := []Message{
		Address{Address: "0x" + strings.Repeat("ab", 20)},
		TradeRequest{},
		Offer{Items: []Item{testItem(1_000_000), nft}},
		Offer{Items: []Item{}},
		LockIn{IsLocked: true},
		LockIn{IsLocked: false},
		Accept{Order: json.RawMessage(`{"maker":"0x01","signature":"abc"}`)},
		Chat{Message: "gm ☀"},
	}

	for _, m := range messages {
		t.Run(string(m.Type()), func(t *testing.T) {
			data, err := Marshal(m)
			require.NoError(t, err)

			parsed, err := Parse(data)
			require.NoError(t, err)
			assert.Equal(t, m.Type(), parsed.Type())

			again, err := Marshal(parsed)
			require.NoError(t, err)
			assert.JSONEq(t, string(data), string(again))
		})
	}
}

func TestMarshalWireShape(t *testing.T) {
	data, err := Marshal(Offer{Items: []Item{testItem(5)}})
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "offer",
		"offer": [{
			"type": "ERC20",
			"contractAddress": "0x2791bca1f2de4661ed88a30c99a7a9449aa84174",
			"tokenID": "0",
			"balance": "5",
			"decimals": 6,
			"name": "USD Coin",
			"iconUrl": "https://example.com/usdc.png"
		}]
	}`, string(data))

	data, err = Marshal(Offer{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"offer","offer":[]}`, string(data))

	data, err = Marshal(TradeRequest{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"trade_request"}`, string(data))
}

func TestMarshalRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want error
	}{
		{"nil", nil, ErrMalformed},
		{"bad address", Address{Address: "0x123"}, ErrInvalidAddress},
		{"empty chat", Chat{}, ErrEmptyChat},
		{"non-object order", Accept{Order: json.RawMessage(`[1,2]`)}, ErrInvalidOrder},
		{"negative balance", Offer{Items: []Item{testItem(-1)}}, ErrInvalidBalance},
		{"duplicate token", Offer{Items: []Item{testItem(1), testItem(2)}}, ErrDuplicateToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Marshal(tt.msg)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	validItem := `{"type":"ERC20","contractAddress":"0x2791bca1f2de4661ed88a30c99a7a9449aa84174","tokenID":"0","balance":"1","decimals":6,"name":"USDC","iconUrl":""}`

	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ``},
		{"not json", `hello`},
		{"array", `[]`},
		{"null", `null`},
		{"string", `"address"`},
		{"missing type", `{"address":"0x0000000000000000000000000000000000000001"}`},
		{"numeric type", `{"type":1}`},
		{"unknown type", `{"type":"transfer"}`},
		{"type wrong case", `{"type":"Offer","offer":[]}`},
		{"unknown field", `{"type":"trade_request","extra":true}`},
		{"address missing", `{"type":"address"}`},
		{"address null", `{"type":"address","address":null}`},
		{"address not string", `{"type":"address","address":42}`},
		{"address too short", `{"type":"address","address":"0xabc"}`},
		{"offer not array", `{"type":"offer","offer":{}}`},
		{"offer null", `{"type":"offer","offer":null}`},
		{"offer item missing field", `{"type":"offer","offer":[{"type":"ERC20"}]}`},
		{"offer item extra field", `{"type":"offer","offer":[` + strings.TrimSuffix(validItem, "}") + `,"evil":1}]}`},
		{"offer item bad contract type", `{"type":"offer","offer":[` + strings.Replace(validItem, `"ERC20"`, `"ERC9999"`, 1) + `]}`},
		{"offer item negative balance", `{"type":"offer","offer":[` + strings.Replace(validItem, `"balance":"1"`, `"balance":"-1"`, 1) + `]}`},
		{"offer item numeric balance", `{"type":"offer","offer":[` + strings.Replace(validItem, `"balance":"1"`, `"balance":1`, 1) + `]}`},
		{"offer duplicate token", `{"type":"offer","offer":[` + validItem + `,` + validItem + `]}`},
		{"lockin not bool", `{"type":"lockin","isLocked":"true"}`},
		{"lockin missing", `{"type":"lockin"}`},
		{"accept string order", `{"type":"accept","order":"signed"}`},
		{"accept missing order", `{"type":"accept"}`},
		{"chat empty", `{"type":"chat","message":""}`},
		{"chat not string", `{"type":"chat","message":["hi"]}`},
		{"trailing data", `{"type":"trade_request"}{"type":"trade_request"}`},
		{"duplicate message key", `{"type":"chat","message":"hi","message":"again"}`},
		{"message key wrong case", `{"type":"chat","Message":"hi"}`},
		{"offer item miscased keys", `{"type":"offer","offer":[{"TYPE":"ERC20","contractAddress":"0x2791bca1f2de4661ed88a30c99a7a9449aa84174","TokenId":"0","balance":"1","DECIMALS":6,"name":"USDC","IconURL":""}]}`},
		{"offer item duplicate key", `{"type":"offer","offer":[` + strings.TrimSuffix(validItem, "}") + `,"balance":"2"}]}`},
		{"offer item other wrong case", `{"type":"offer","offer":[` + strings.Replace(validItem, `"ERC20"`, `{"Other":"ERC998"}`, 1) + `]}`},
		{"offer item other duplicate", `{"type":"offer","offer":[` + strings.Replace(validItem, `"ERC20"`, `{"other":"ERC998","other":"ERC999"}`, 1) + `]}`},
		{"offer item bignumber hex wrong case", `{"type":"offer","offer":[` + strings.Replace(validItem, `"balance":"1"`, `"balance":{"type":"BigNumber","HEX":"0x01"}`, 1) + `]}`},
		{"offer item bignumber duplicate hex", `{"type":"offer","offer":[` + strings.Replace(validItem, `"balance":"1"`, `"balance":{"type":"BigNumber","hex":"0x01","hex":"0x02"}`, 1) + `]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Parse([]byte(tt.raw))
			assert.Nil(t, msg)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestParseUnknownTypeWrapsBoth(t *testing.T) {
	_, err := Parse([]byte(`{"type":"ping"}`))
	assert.True(t, errors.Is(err, ErrMalformed))
	assert.True(t, errors.Is(err, ErrUnknownType))
}

func TestParseOversized(t *testing.T) {
	raw := `{"type":"chat","message":"` + strings.Repeat("a", MaxMessageBytes) + `"}`
	_, err := Parse([]byte(raw))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseChatTooLong(t *testing.T) {
	raw := `{"type":"chat","message":"` + strings.Repeat("a", MaxChatBytes+1) + `"}`
	_, err := Parse([]byte(raw))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseAcceptPassesOrderThrough(t *testing.T) {
	raw := `{"type":"accept","order":{"maker":"0x01","nested":{"b":[1,2,3]}}}`
	msg, err := Parse([]byte(raw))
	require.NoError(t, err)

	accept, ok := msg.(Accept)
	require.True(t, ok)
	assert.JSONEq(t, `{"maker":"0x01","nested":{"b":[1,2,3]}}`, string(accept.Order))
}

func TestParseOfferDetails(t *testing.T) {
	raw := `{"type":"offer","offer":[
		{"type":{"other":"ERC998"},"contractAddress":"0x0","tokenID":"7","balance":{"type":"BigNumber","hex":"0x0de0b6b3a7640000"},"decimals":18,"name":"Native","iconUrl":""}
	]}`
	msg, err := Parse([]byte(raw))
	require.NoError(t, err)

	offer := msg.(Offer)
	require.Len(t, offer.Items, 1)
	it := offer.Items[0]
	assert.Equal(t, OtherType("ERC998"), it.Type)
	assert.Equal(t, "1000000000000000000", it.Balance.String())
	assert.Equal(t, 18, it.Decimals)
}

func TestParseNeverPanics(t *testing.T) {
	inputs := []string{
		`{"type":"offer","offer":[null]}`,
		`{"type":"offer","offer":[1,2,3]}`,
		`{"type":"offer","offer":[{"type":null}]}`,
		`{"type":"offer","offer":[{"type":{"other":null}}]}`,
		`{"type":null}`,
		`{"type":"accept","order":null}`,
		`{"type":"offer","offer":[{"type":"ERC20","contractAddress":"0x1","tokenID":"1","balance":{"type":"BigNumber","hex":"0x"},"decimals":0,"name":"","iconUrl":""}]}`,
		strings.Repeat("[", 10000),
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() {
			_, err := Parse([]byte(in))
			assert.Error(t, err)
		}, in)
	}
}
