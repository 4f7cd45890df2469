package discovery

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/multiformats/go-multiaddr"
)

const (
	// dnsaddrPrefix is the standard prefix for DNSADDR TXT records.
	dnsaddrPrefix = "dnsaddr="

	// defaultTimeout is the default timeout for DNS resolution.
	defaultTimeout = 10 * time.Second
)

var (
	// ErrInvalidDNSADDR is returned when a DNSADDR record is malformed.
	ErrInvalidDNSADDR = errors.New("discovery: invalid DNSADDR record")

	// ErrNoRecords is returned when no valid DNSADDR records are found.
	ErrNoRecords = errors.New("discovery: no DNSADDR records found")
)

// txtResolver interface allows for dependency injection in tests.
type txtResolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// DNSADDRResolver resolves DNSADDR TXT records to tracker multiaddrs.
type DNSADDRResolver struct {
	timeout  time.Duration
	resolver txtResolver
}

// NewDNSADDRResolver creates a new DNSADDR resolver with the specified timeout.
// If timeout is 0, a default of 10 seconds is used.
func NewDNSADDRResolver(timeout time.Duration) *DNSADDRResolver {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &DNSADDRResolver{
		timeout:  timeout,
		resolver: net.DefaultResolver,
	}
}

// ParseDNSADDR parses a single DNSADDR TXT record and returns a multiaddr.
// The record format is: dnsaddr=/dns4/host/tcp/port/p2p/peerID
func ParseDNSADDR(record string) (multiaddr.Multiaddr, error) {
	record = strings.TrimSpace(record)
	if !strings.HasPrefix(record, dnsaddrPrefix) {
		return nil, ErrInvalidDNSADDR
	}

	maStr := strings.TrimPrefix(record, dnsaddrPrefix)
	if maStr == "" {
		return nil, ErrInvalidDNSADDR
	}

	ma, err := multiaddr.NewMultiaddr(maStr)
	if err != nil {
		return nil, ErrInvalidDNSADDR
	}
	return ma, nil
}

// parseRecords extracts valid multiaddrs from a slice of TXT records.
// Invalid records are silently skipped.
func parseRecords(records []string) []multiaddr.Multiaddr {
	addrs := make([]multiaddr.Multiaddr, 0, len(records))
	for _, record := range records {
		ma, err := ParseDNSADDR(record)
		if err != nil {
			continue
		}
		addrs = append(addrs, ma)
	}
	return addrs
}

// Resolve queries DNS TXT records for the given name and returns multiaddrs.
// The name should include the _dnsaddr prefix
// (e.g., "_dnsaddr.trackers.example.com").
func (r *DNSADDRResolver) Resolve(ctx context.Context, dnsaddr string) ([]multiaddr.Multiaddr, error) {
	if dnsaddr == "" {
		return nil, ErrInvalidDNSADDR
	}

	resolveCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	records, err := r.resolver.LookupTXT(resolveCtx, dnsaddr)
	if err != nil {
		return nil, err
	}

	addrs := parseRecords(records)
	if len(addrs) == 0 {
		return nil, ErrNoRecords
	}
	return addrs, nil
}

// SeedResult is the outcome of resolving one DNSADDR seed.
type SeedResult struct {
	Seed  string
	Addrs []multiaddr.Multiaddr
	Err   error
}

// ResolveEach resolves every seed in parallel. Results are returned in seed
// order; each seed's addresses are deduplicated and shuffled to spread load
// across the nodes behind it.
func (r *DNSADDRResolver) ResolveEach(ctx context.Context, seeds []string) []SeedResult {
	results := make([]SeedResult, len(seeds))

	var wg sync.WaitGroup
	for i, seed := range seeds {
		wg.Add(1)
		go func(i int, s string) {
			defer wg.Done()
			addrs, err := r.Resolve(ctx, s)
			results[i] = SeedResult{Seed: s, Addrs: dedupeAddrs(addrs), Err: err}
		}(i, seed)
	}
	wg.Wait()

	for _, res := range results {
		shuffleAddrs(res.Addrs)
	}
	return results
}

func dedupeAddrs(addrs []multiaddr.Multiaddr) []multiaddr.Multiaddr {
	if len(addrs) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(addrs))
	out := addrs[:0]
	for _, a := range addrs {
		key := a.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, a)
	}
	return out
}

// shuffleAddrs randomly shuffles a slice of multiaddrs in place.
func shuffleAddrs(addrs []multiaddr.Multiaddr) {
	if len(addrs) <= 1 {
		return
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	rng.Shuffle(len(addrs), func(i, j int) {
		addrs[i], addrs[j] = addrs[j], addrs[i]
	})
}
