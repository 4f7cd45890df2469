package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Codec errors. Every parse failure wraps ErrMalformed.
var (
	ErrMalformed       = errors.New("protocol: malformed message")
	ErrUnknownType     = errors.New("protocol: unknown message type")
	ErrMessageTooLarge = errors.New("protocol: message exceeds maximum size")
)

// fieldSets lists the exact keys each message type carries besides "type".
var fieldSets = map[MessageType][]string{
	MsgAddress:      {"address"},
	MsgTradeRequest: {},
	MsgOffer:        {"offer"},
	MsgLockIn:       {"isLocked"},
	MsgAccept:       {"order"},
	MsgChat:         {"message"},
}

// Marshal encodes a valid message as a single JSON object.
func Marshal(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil message", ErrMalformed)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	var v any
	switch msg := m.(type) {
	case Address:
		v = struct {
			Type    MessageType `json:"type"`
			Address string      `json:"address"`
		}{MsgAddress, msg.Address}
	case TradeRequest:
		v = struct {
			Type MessageType `json:"type"`
		}{MsgTradeRequest}
	case Offer:
		items := msg.Items
		if items == nil {
			items = []Item{}
		}
		v = struct {
			Type  MessageType `json:"type"`
			Offer []Item      `json:"offer"`
		}{MsgOffer, items}
	case LockIn:
		v = struct {
			Type     MessageType `json:"type"`
			IsLocked bool        `json:"isLocked"`
		}{MsgLockIn, msg.IsLocked}
	case Accept:
		v = struct {
			Type  MessageType     `json:"type"`
			Order json.RawMessage `json:"order"`
		}{MsgAccept, msg.Order}
	case Chat:
		v = struct {
			Type    MessageType `json:"type"`
			Message string      `json:"message"`
		}{MsgChat, msg.Message}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, m)
	}
	return json.Marshal(v)
}

// Parse decodes one wire message. Anything that does not match exactly one
// known shape is rejected with an error wrapping ErrMalformed; Parse never
// panics on hostile input.
func Parse(data []byte) (Message, error) {
	if len(data) > MaxMessageBytes {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, ErrMessageTooLarge)
	}

	fields, err := decodeObject(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	rawType, ok := fields["type"]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, missingField("type"))
	}
	var typ MessageType
	if err := json.Unmarshal(rawType, &typ); err != nil {
		return nil, fmt.Errorf("%w: type: %v", ErrMalformed, err)
	}
	expected, known := fieldSets[typ]
	if !known {
		return nil, fmt.Errorf("%w: %w %q", ErrMalformed, ErrUnknownType, typ)
	}
	if err := checkFields(fields, append([]string{"type"}, expected...)); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, typ, err)
	}

	msg, err := decodeBody(typ, fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, typ, err)
	}
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, typ, err)
	}
	return msg, nil
}

func decodeBody(typ MessageType, fields map[string]json.RawMessage) (Message, error) {
	switch typ {
	case MsgAddress:
		var addr string
		if err := decodeField(fields, "address", &addr); err != nil {
			return nil, err
		}
		return Address{Address: addr}, nil
	case MsgTradeRequest:
		return TradeRequest{}, nil
	case MsgOffer:
		var items []Item
		if err := decodeField(fields, "offer", &items); err != nil {
			return nil, err
		}
		if items == nil {
			return nil, errors.New("offer: must be an array")
		}
		return Offer{Items: items}, nil
	case MsgLockIn:
		var locked bool
		if err := decodeField(fields, "isLocked", &locked); err != nil {
			return nil, err
		}
		return LockIn{IsLocked: locked}, nil
	case MsgAccept:
		order := append(json.RawMessage(nil), bytes.TrimSpace(fields["order"])...)
		return Accept{Order: order}, nil
	case MsgChat:
		var text string
		if err := decodeField(fields, "message", &text); err != nil {
			return nil, err
		}
		return Chat{Message: text}, nil
	}
	return nil, ErrUnknownType
}

// checkFields requires the object to carry exactly the expected keys,
// none of them null. Key matching is case-sensitive.
func checkFields(fields map[string]json.RawMessage, expected []string) error {
	for name := range fields {
		if !contains(expected, name) {
			return fmt.Errorf("unknown field %q", name)
		}
	}
	for _, name := range expected {
		raw, ok := fields[name]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return missingField(name)
		}
	}
	return nil
}

// decodeObject splits one JSON object into its raw members. Duplicate keys
// and trailing data are rejected.
func decodeObject(data []byte) (map[string]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("not an object")
	}
	fields := make(map[string]json.RawMessage)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, errors.New("object key is not a string")
		}
		if _, dup := fields[key]; dup {
			return nil, fmt.Errorf("duplicate field %q", key)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		fields[key] = raw
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after JSON value")
	}
	return fields, nil
}

func decodeField(fields map[string]json.RawMessage, name string, v any) error {
	if err := json.Unmarshal(fields[name], v); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func missingField(name string) error {
	return fmt.Errorf("missing field %q", name)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
