package trade

import (
	"sort"

	"github.com/DeGatchi/vaportrade/pkg/protocol"
)

// BanList is the set of addresses whose trade windows the user closed.
// A ban only hides the window; messages from a banned address are still
// processed.
type BanList struct {
	addrs map[string]struct{}
}

// NewBanList creates an empty ban list.
func NewBanList() *BanList {
	return &BanList{addrs: make(map[string]struct{})}
}

// Ban adds address. It reports whether the address was newly added.
func (b *BanList) Ban(address string) bool {
	address = protocol.NormalizeAddress(address)
	if _, ok := b.addrs[address]; ok {
		return false
	}
	b.addrs[address] = struct{}{}
	return true
}

// Unban removes address. It reports whether the address was present.
func (b *BanList) Unban(address string) bool {
	address = protocol.NormalizeAddress(address)
	if _, ok := b.addrs[address]; !ok {
		return false
	}
	delete(b.addrs, address)
	return true
}

// Banned reports whether address is banned.
func (b *BanList) Banned(address string) bool {
	_, ok := b.addrs[protocol.NormalizeAddress(address)]
	return ok
}

// Len returns the number of banned addresses.
func (b *BanList) Len() int {
	return len(b.addrs)
}

// List returns the banned addresses in sorted order.
func (b *BanList) List() []string {
	out := make([]string, 0, len(b.addrs))
	for a := range b.addrs {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
