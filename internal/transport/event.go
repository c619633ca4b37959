// Package transport implements the peer connect/reconnect/disconnect loops,
// message framing, and local event channel shared by every node role
// (spec §4.1).
//
// Grounded on the teacher's core/network.go libp2p+pubsub node (Node,
// DialSeed, Broadcast/Subscribe), generalized from topic-based pubsub
// broadcast to direct framed peer sessions plus a local event bus, since
// this specification's wire messages are role-to-role request/response
// rather than broadcast gossip.
package transport

import (
	"github.com/aurachain/node/internal/wireproto"
)

// EventKind tags what produced an Event.
type EventKind int

const (
	// EventMessage carries an inbound wire message from a peer.
	EventMessage EventKind = iota
	// EventWarning surfaces a non-fatal failure (e.g. permanent dial
	// failure) on the local event channel rather than aborting the node.
	EventWarning
	// EventPeerUp reports a peer session becoming active.
	EventPeerUp
	// EventPeerDown reports a peer session being torn down (disconnect
	// detection or explicit close).
	EventPeerDown
)

// Event is the unified stream item handle_next_event multiplexes: inbound
// network messages, local notifications, and peer lifecycle transitions.
type Event struct {
	Kind    EventKind
	Peer    string
	Message wireproto.Message
	Err     error
}

// Bus is the local event channel every node's main loop reads from; peers
// and the reconnect/disconnect loops write events into it rather than
// calling into the main loop directly, preserving strict arrival-order
// processing (spec §5).
type Bus struct {
	events chan Event
}

// NewBus constructs a Bus with the given channel capacity.
func NewBus(capacity int) *Bus {
	return &Bus{events: make(chan Event, capacity)}
}

// Publish enqueues ev for the main loop. It never blocks indefinitely: a
// full bus drops the best-effort event being published (Message, PeerUp/Down)
// rather than stalling the publisher, but always delivers Warning events by
// blocking, since those represent actionable operator-visible state.
func (b *Bus) Publish(ev Event) {
	if ev.Kind == EventWarning {
		b.events <- ev
		return
	}
	select {
	case b.events <- ev:
	default:
	}
}

// Events returns the channel the main loop ranges over.
func (b *Bus) Events() <-chan Event { return b.events }

// Close closes the underlying channel; callers must stop publishing first.
func (b *Bus) Close() { close(b.events) }
