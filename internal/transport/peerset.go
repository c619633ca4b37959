package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/aurachain/node/internal/wireproto"
)

// heartbeatMiss is how long a peer may go without a successful dial or send
// before the disconnect-detection loop tears its session down.
const heartbeatMiss = 3 * heartbeatInterval

const heartbeatInterval = 5 * time.Second

// Broadcaster publishes a message to every subscriber of a shared topic in
// one call, rather than one send per peer. A *Host satisfies this via its
// gossipsub flood topic.
type Broadcaster interface {
	Broadcast(msg wireproto.Message) error
}

// PeerSet owns every outbound peer connection for one node: the live
// session table, the reconnect loop, and the disconnect-detection loop.
type PeerSet struct {
	dialer      Dialer
	bus         *Bus
	logger      *log.Logger
	broadcaster Broadcaster

	sessions   *sessionSet
	lastSeen   map[string]time.Time
	lastSeenMu sync.Mutex

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewPeerSet constructs a PeerSet that dials through dialer and publishes
// lifecycle/warning events onto bus.
func NewPeerSet(dialer Dialer, bus *Bus, logger *log.Logger) *PeerSet {
	if logger == nil {
		logger = log.New()
	}
	return &PeerSet{
		dialer:   dialer,
		bus:      bus,
		logger:   logger,
		sessions: newSessionSet(),
		lastSeen: make(map[string]time.Time),
		stop:     make(chan struct{}),
	}
}

// ConnectInfoPeers dials every address in addrs once, returning which
// connected and which are still outstanding for the reconnect loop to pick
// up (spec §4.1 connect_info_peers).
func (p *PeerSet) ConnectInfoPeers(addrs []string) (connected, pending []string) {
	for _, addr := range addrs {
		if err := p.dialOnce(addr); err != nil {
			p.logger.WithError(err).Warnf("transport: initial dial to %s failed, queued for reconnect", addr)
			pending = append(pending, addr)
			continue
		}
		connected = append(connected, addr)
	}
	return connected, pending
}

func (p *PeerSet) dialOnce(addr string) error {
	sess, err := p.dialer.Dial(addr)
	if err != nil {
		return err
	}
	p.sessions.set(addr, sess)
	p.touch(addr)
	p.bus.Publish(Event{Kind: EventPeerUp, Peer: addr})
	return nil
}

func (p *PeerSet) touch(addr string) {
	p.lastSeenMu.Lock()
	p.lastSeen[addr] = time.Now()
	p.lastSeenMu.Unlock()
}

// LoopsReConnectDisconnect starts the reconnect loop and the
// disconnect-detection loop for addrs. Both loops accept the PeerSet's
// one-shot stop signal (spec §4.1).
func (p *PeerSet) LoopsReConnectDisconnect(ctx context.Context, addrs []string) {
	p.wg.Add(2)
	go p.reconnectLoop(ctx, addrs)
	go p.disconnectLoop(ctx)
}

func (p *PeerSet) reconnectLoop(ctx context.Context, addrs []string) {
	defer p.wg.Done()
	backoffs := make(map[string]*Backoff, len(addrs))
	nextTry := make(map[string]time.Time, len(addrs))
	for _, a := range addrs {
		backoffs[a] = DefaultBackoff()
	}

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, addr := range addrs {
				if _, ok := p.sessions.get(addr); ok {
					continue
				}
				if time.Now().Before(nextTry[addr]) {
					continue
				}
				b := backoffs[addr]
				if err := p.dialOnce(addr); err != nil {
					delay := b.Next()
					nextTry[addr] = time.Now().Add(delay)
					p.logger.WithError(err).Debugf("transport: reconnect to %s backing off %s", addr, delay)
					continue
				}
				b.Reset()
			}
		}
	}
}

func (p *PeerSet) disconnectLoop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			for _, addr := range p.sessions.connectedAddrs() {
				p.lastSeenMu.Lock()
				last, ok := p.lastSeen[addr]
				p.lastSeenMu.Unlock()
				if ok && now.Sub(last) > heartbeatMiss {
					p.teardown(addr, fmt.Errorf("heartbeat miss exceeded %s", heartbeatMiss))
				}
			}
		}
	}
}

func (p *PeerSet) teardown(addr string, cause error) {
	if sess, ok := p.sessions.get(addr); ok {
		_ = sess.Close()
	}
	p.sessions.remove(addr)
	p.bus.Publish(Event{Kind: EventPeerDown, Peer: addr, Err: cause})
}

// LoopWaitConnectToPeersAsync blocks until every address in expected has an
// active session, or ctx is cancelled. This is the hard precondition for
// starting the Raft loop (spec §4.1).
func (p *PeerSet) LoopWaitConnectToPeersAsync(ctx context.Context, expected []string) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if p.allConnected(expected) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *PeerSet) allConnected(expected []string) bool {
	for _, addr := range expected {
		if _, ok := p.sessions.get(addr); !ok {
			return false
		}
	}
	return true
}

// Send delivers msg to addr's session if one exists; a send to a
// disconnected peer is dropped, never blocking the caller (spec §4.1).
func (p *PeerSet) Send(addr string, msg wireproto.Message) {
	sess, ok := p.sessions.get(addr)
	if !ok {
		return
	}
	if err := sess.Send(msg); err != nil {
		p.logger.WithError(err).Debugf("transport: send to %s failed", addr)
		p.teardown(addr, err)
		return
	}
	p.touch(addr)
}

// UseBroadcast registers b as Flood's preferred delivery path. When set,
// Flood publishes once to b instead of looping over addrs.
func (p *PeerSet) UseBroadcast(b Broadcaster) {
	p.broadcaster = b
}

// Flood delivers msg to every address in addrs (spec §4.2 flood_*
// operations). If a Broadcaster is registered via UseBroadcast, it is used
// in preference to the per-peer loop; on its failure, Flood falls back to
// sending individually so a transient pubsub error never silently drops a
// flood.
func (p *PeerSet) Flood(addrs []string, msg wireproto.Message) {
	if p.broadcaster != nil {
		if err := p.broadcaster.Broadcast(msg); err == nil {
			return
		}
		p.logger.Debug("transport: broadcast flood failed, falling back to per-peer send")
	}
	for _, addr := range addrs {
		p.Send(addr, msg)
	}
}

// Stop signals both loops to stop, drains nothing further, and awaits their
// exit (spec §4.1: "drain in-flight sends and close cleanly").
func (p *PeerSet) Stop() {
	close(p.stop)
	p.wg.Wait()
	for _, addr := range p.sessions.connectedAddrs() {
		if sess, ok := p.sessions.get(addr); ok {
			_ = sess.Close()
		}
	}
}

// Connected reports whether addr currently has a live session.
func (p *PeerSet) Connected(addr string) bool {
	_, ok := p.sessions.get(addr)
	return ok
}
