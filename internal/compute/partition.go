package compute

import "sync"

// PartitionList is the ordered sequence of miner endpoints that answered
// the current round's partition request, capped at a configured size
// (spec §3 Partition list). Cleared at the start of every round.
type PartitionList struct {
	mu      sync.Mutex
	size    int
	members []string
	seen    map[string]bool
}

// NewPartitionList constructs an empty list capped at size.
func NewPartitionList(size int) *PartitionList {
	return &PartitionList{size: size, seen: make(map[string]bool)}
}

// Add appends endpoint if it is not already present and the list is not
// yet full. Returns the list length after the attempt and whether the
// list just became full as a result of this call.
func (p *PartitionList) Add(endpoint string) (length int, justFilled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seen[endpoint] || len(p.members) >= p.size {
		return len(p.members), false
	}
	p.members = append(p.members, endpoint)
	p.seen[endpoint] = true
	full := len(p.members) == p.size
	return len(p.members), full
}

// Members returns a defensive copy of the current partition membership.
func (p *PartitionList) Members() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.members))
	copy(out, p.members)
	return out
}

// Contains reports whether endpoint is a current partition member.
func (p *PartitionList) Contains(endpoint string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seen[endpoint]
}

// Len reports the current membership count.
func (p *PartitionList) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.members)
}

// Reset clears the list back to empty, ready for the next round (spec
// §4.2 invariant: partition list cleared before leaving Notifying).
func (p *PartitionList) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.members = nil
	p.seen = make(map[string]bool)
}
