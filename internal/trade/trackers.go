package trade

import (
	"fmt"
	"strings"
)

// FailableTracker is a tracker the transport has connected to. Failed is
// set when the transport later reports a warning for it.
type FailableTracker struct {
	AnnounceURL string `json:"announceURL"`
	Failed      bool   `json:"failed"`
}

// TrackerSet keeps the configured tracker sources and the trackers
// currently connected. Every connected tracker is one of the sources.
//
// Sources removed by SetSources are remembered as retired. A transport
// round started before the swap may still report them; those reports are
// stale rather than a broken invariant.
type TrackerSet struct {
	sources   []string
	retired   map[string]struct{}
	connected []FailableTracker
}

// NewTrackerSet creates a set over the given source list.
func NewTrackerSet(sources []string) *TrackerSet {
	ts := &TrackerSet{retired: make(map[string]struct{})}
	ts.SetSources(sources)
	return ts
}

// Sources returns the configured tracker sources.
func (ts *TrackerSet) Sources() []string {
	return append([]string(nil), ts.sources...)
}

// IsSource reports whether url is a configured source.
func (ts *TrackerSet) IsSource(url string) bool {
	for _, s := range ts.sources {
		if s == url {
			return true
		}
	}
	return false
}

// IsRetired reports whether url was a source before the last SetSources.
func (ts *TrackerSet) IsRetired(url string) bool {
	_, ok := ts.retired[url]
	return ok
}

// Connected records a tracker connection. A reconnect replaces the
// existing entry and clears its failed flag. A retired source returns
// ErrStaleTracker and is not recorded.
func (ts *TrackerSet) Connected(url string) error {
	if !ts.IsSource(url) {
		if ts.IsRetired(url) {
			return fmt.Errorf("%w: %s", ErrStaleTracker, url)
		}
		return fmt.Errorf("%w: %s", ErrUnknownTracker, url)
	}
	for i := range ts.connected {
		if ts.connected[i].AnnounceURL == url {
			ts.connected[i].Failed = false
			return nil
		}
	}
	ts.connected = append(ts.connected, FailableTracker{AnnounceURL: url})
	return nil
}

// MarkFailed flags a connected tracker as failed. It reports whether the
// tracker was found.
func (ts *TrackerSet) MarkFailed(url string) bool {
	for i := range ts.connected {
		if ts.connected[i].AnnounceURL == url {
			ts.connected[i].Failed = true
			return true
		}
	}
	return false
}

// SetSources replaces the source list. Blank and duplicate entries are
// dropped, as are connected trackers no longer listed. Dropped sources
// become retired.
func (ts *TrackerSet) SetSources(sources []string) {
	previous := ts.sources
	seen := make(map[string]struct{}, len(sources))
	ts.sources = ts.sources[:0:0]
	for _, s := range sources {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		ts.sources = append(ts.sources, s)
		delete(ts.retired, s)
	}
	for _, s := range previous {
		if _, ok := seen[s]; !ok {
			ts.retired[s] = struct{}{}
		}
	}

	kept := ts.connected[:0:0]
	for _, t := range ts.connected {
		if _, ok := seen[t.AnnounceURL]; ok {
			kept = append(kept, t)
		}
	}
	ts.connected = kept
}

// Trackers returns the connected trackers in connection order.
func (ts *TrackerSet) Trackers() []FailableTracker {
	return append([]FailableTracker(nil), ts.connected...)
}

// Status returns the number of healthy connected trackers and the number
// of configured sources.
func (ts *TrackerSet) Status() (connected, total int) {
	for _, t := range ts.connected {
		if !t.Failed {
			connected++
		}
	}
	return connected, len(ts.sources)
}
