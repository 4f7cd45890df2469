package protocol

// OrderTerms is the trade a signed order commits to: the maker gives
// MakerItems and receives TakerItems.
type OrderTerms struct {
	Maker      string
	Taker      string
	MakerItems []Item
	TakerItems []Item
}

// Clone deep-copies the terms.
func (t OrderTerms) Clone() OrderTerms {
	return OrderTerms{
		Maker:      t.Maker,
		Taker:      t.Taker,
		MakerItems: CloneItems(t.MakerItems),
		TakerItems: CloneItems(t.TakerItems),
	}
}

// Reversed returns the same trade seen from the other side.
func (t OrderTerms) Reversed() OrderTerms {
	return OrderTerms{
		Maker:      t.Taker,
		Taker:      t.Maker,
		MakerItems: t.TakerItems,
		TakerItems: t.MakerItems,
	}
}
