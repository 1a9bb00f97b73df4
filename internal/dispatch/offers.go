package dispatch

import (
	"sync"
	"time"
)

// offerTable is the ephemeral record of which captains a pending ride was
// broadcast to. Offers live for a bounded window; claims against an expired
// or closed offer are rejected without consulting the store.
type offerTable struct {
	mu     sync.Mutex
	ttl    time.Duration
	offers map[string]*offer
	now    func() time.Time
}

type offer struct {
	candidates map[string]bool
	expiresAt  time.Time
	closed     bool
}

func newOfferTable(ttl time.Duration) *offerTable {
	return &offerTable{ttl: ttl, offers: make(map[string]*offer), now: time.Now}
}

// open records a broadcast. A re-broadcast replaces the previous offer and
// restarts the window.
func (t *offerTable) open(rideID string, candidates []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set := make(map[string]bool, len(candidates))
	for _, id := range candidates {
		set[id] = true
	}
	t.offers[rideID] = &offer{candidates: set, expiresAt: t.now().Add(t.ttl)}
	t.prune()
}

func (t *offerTable) claimable(rideID, captainID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	o, ok := t.offers[rideID]
	if !ok {
		return false
	}
	if o.closed || t.now().After(o.expiresAt) {
		return false
	}
	return o.candidates[captainID]
}

// close marks the offer resolved and returns every candidate except the
// winner.
func (t *offerTable) close(rideID, winner string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	o, ok := t.offers[rideID]
	if !ok {
		return nil
	}
	o.closed = true
	losers := make([]string, 0, len(o.candidates))
	for id := range o.candidates {
		if id != winner {
			losers = append(losers, id)
		}
	}
	return losers
}

// prune drops long-expired entries; called under the lock.
func (t *offerTable) prune() {
	cutoff := t.now().Add(-t.ttl)
	for id, o := range t.offers {
		if o.expiresAt.Before(cutoff) {
			delete(t.offers, id)
		}
	}
}
