package transport

import (
	"sync"

	"github.com/aurachain/node/internal/wireproto"
)

// Session is a bidirectional framed message channel to one peer.
type Session interface {
	// Send writes msg to the peer. Per spec §4.1, a send to a disconnected
	// peer is dropped rather than blocking the sender.
	Send(msg wireproto.Message) error
	Close() error
}

// Dialer opens Sessions to peer addresses. The production implementation
// is libp2p-backed (see libp2p.go); tests substitute a fake.
type Dialer interface {
	Dial(addr string) (Session, error)
}

// sessionSet is the connect/reconnect/disconnect loops' shared view of live
// sessions, guarded by a mutex since both loops and the main send path
// touch it (spec §5 shared-state discipline).
type sessionSet struct {
	mu     sync.RWMutex
	byPeer map[string]Session
}

func newSessionSet() *sessionSet {
	return &sessionSet{byPeer: make(map[string]Session)}
}

func (s *sessionSet) get(addr string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.byPeer[addr]
	return sess, ok
}

func (s *sessionSet) set(addr string, sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byPeer[addr] = sess
}

func (s *sessionSet) remove(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byPeer, addr)
}

// connectedAddrs returns every address with a live session.
func (s *sessionSet) connectedAddrs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.byPeer))
	for addr := range s.byPeer {
		out = append(out, addr)
	}
	return out
}

func (s *sessionSet) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byPeer)
}
