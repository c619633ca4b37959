package transport

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"

	"github.com/aurachain/node/internal/wireproto"
)

// ProtocolID is the libp2p stream protocol every node role speaks.
const ProtocolID protocol.ID = "/aurachain/wire/1.0.0"

// FloodTopic is the gossipsub topic Compute's flood_* operations (spec
// §4.2: PartitionList, BlockChallenge, BlockFound) publish to, and every
// partition member subscribes to.
const FloodTopic = "aurachain/flood/1.0.0"

// Host wraps a libp2p host, exposing it as a Dialer plus an inbound-stream
// handler that republishes framed messages onto a Bus. Grounded on the
// teacher's core/network.go NewNode (libp2p.New + mDNS/bootstrap dialing)
// for per-peer streams, and its Broadcast/Subscribe gossipsub pair for the
// flood topic a PeerSet can use in place of its per-peer send loop.
type Host struct {
	host   host.Host
	bus    *Bus
	pubsub *pubsub.PubSub

	topicMu sync.Mutex
	topic   *pubsub.Topic
}

// NewHost constructs a libp2p host listening on listenAddr, registers the
// wire protocol's inbound stream handler, and joins the flood gossipsub
// topic.
func NewHost(ctx context.Context, listenAddr string, bus *Bus) (*Host, error) {
	h, err := libp2p.New(libp2p.ListenAddrStrings(listenAddr))
	if err != nil {
		return nil, fmt.Errorf("transport: create host: %w", err)
	}
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("transport: create pubsub: %w", err)
	}
	th := &Host{host: h, bus: bus, pubsub: ps}
	h.SetStreamHandler(ProtocolID, th.handleInboundStream)
	if err := th.joinFlood(ctx); err != nil {
		h.Close()
		return nil, err
	}
	return th, nil
}

func (h *Host) joinFlood(ctx context.Context) error {
	topic, err := h.pubsub.Join(FloodTopic)
	if err != nil {
		return fmt.Errorf("transport: join flood topic: %w", err)
	}
	h.topicMu.Lock()
	h.topic = topic
	h.topicMu.Unlock()

	sub, err := h.pubsub.Subscribe(FloodTopic)
	if err != nil {
		return fmt.Errorf("transport: subscribe flood topic: %w", err)
	}
	go h.readFlood(ctx, sub)
	return nil
}

func (h *Host) readFlood(ctx context.Context, sub *pubsub.Subscription) {
	self := h.host.ID()
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			return
		}
		if msg.GetFrom() == self {
			continue
		}
		decoded, err := wireproto.ReadFrame(bytes.NewReader(msg.Data))
		if err != nil {
			continue
		}
		h.bus.Publish(Event{Kind: EventMessage, Peer: msg.GetFrom().String(), Message: decoded})
	}
}

// Broadcast publishes msg to the flood topic for every subscribed partition
// member to receive, an alternative to PeerSet.Flood's per-peer send loop
// for the specification's broadcast-shaped flood_* operations.
func (h *Host) Broadcast(msg wireproto.Message) error {
	var buf bytes.Buffer
	if err := wireproto.WriteFrame(&buf, msg); err != nil {
		return fmt.Errorf("transport: encode flood message: %w", err)
	}
	h.topicMu.Lock()
	topic := h.topic
	h.topicMu.Unlock()
	if topic == nil {
		return fmt.Errorf("transport: flood topic not joined")
	}
	return topic.Publish(context.Background(), buf.Bytes())
}

func (h *Host) handleInboundStream(s network.Stream) {
	peerID := s.Conn().RemotePeer().String()
	r := bufio.NewReader(s)
	for {
		msg, err := wireproto.ReadFrame(r)
		if err != nil {
			h.bus.Publish(Event{Kind: EventPeerDown, Peer: peerID, Err: err})
			_ = s.Close()
			return
		}
		h.bus.Publish(Event{Kind: EventMessage, Peer: peerID, Message: msg})
	}
}

// Dial implements Dialer by opening a libp2p stream to addr, which must be
// a full multiaddr/peer-id string as accepted by peer.AddrInfoFromString.
func (h *Host) Dial(addr string) (Session, error) {
	info, err := peer.AddrInfoFromString(addr)
	if err != nil {
		return nil, fmt.Errorf("transport: invalid peer address %q: %w", addr, err)
	}
	ctx := context.Background()
	if err := h.host.Connect(ctx, *info); err != nil {
		return nil, fmt.Errorf("transport: connect to %s: %w", addr, err)
	}
	stream, err := h.host.NewStream(ctx, info.ID, ProtocolID)
	if err != nil {
		return nil, fmt.Errorf("transport: open stream to %s: %w", addr, err)
	}
	return &libp2pSession{stream: stream}, nil
}

// Close tears the host down.
func (h *Host) Close() error { return h.host.Close() }

// Addr returns the host's own dialable multiaddr/peer-id string.
func (h *Host) Addr() string {
	return fmt.Sprintf("%s/p2p/%s", h.host.Addrs()[0].String(), h.host.ID().String())
}

type libp2pSession struct {
	stream network.Stream
}

func (s *libp2pSession) Send(msg wireproto.Message) error {
	return wireproto.WriteFrame(s.stream, msg)
}

func (s *libp2pSession) Close() error { return s.stream.Close() }
