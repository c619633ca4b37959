package transport

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aurachain/node/internal/wireproto"
)

type fakeSession struct {
	mu  sync.Mutex
	out []wireproto.Message
}

func (f *fakeSession) Send(msg wireproto.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, msg)
	return nil
}

func (f *fakeSession) Close() error { return nil }

func (f *fakeSession) sent() []wireproto.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]wireproto.Message, len(f.out))
	copy(out, f.out)
	return out
}

type fakeDialer struct {
	mu       sync.Mutex
	fail     map[string]bool
	sessions map[string]*fakeSession
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{fail: make(map[string]bool), sessions: make(map[string]*fakeSession)}
}

func (d *fakeDialer) Dial(addr string) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail[addr] {
		return nil, fmt.Errorf("fakeDialer: %s unreachable", addr)
	}
	s := &fakeSession{}
	d.sessions[addr] = s
	return s, nil
}

func TestConnectInfoPeersSplitsConnectedAndPending(t *testing.T) {
	d := newFakeDialer()
	d.fail["bad:1"] = true
	bus := NewBus(8)
	ps := NewPeerSet(d, bus, nil)

	connected, pending := ps.ConnectInfoPeers([]string{"good:1", "bad:1"})
	if len(connected) != 1 || connected[0] != "good:1" {
		t.Fatalf("unexpected connected: %v", connected)
	}
	if len(pending) != 1 || pending[0] != "bad:1" {
		t.Fatalf("unexpected pending: %v", pending)
	}
	if !ps.Connected("good:1") {
		t.Fatal("expected good:1 connected")
	}
}

func TestReconnectLoopEventuallyConnects(t *testing.T) {
	d := newFakeDialer()
	d.fail["flaky:1"] = true
	bus := NewBus(16)
	ps := NewPeerSet(d, bus, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ps.LoopsReConnectDisconnect(ctx, []string{"flaky:1"})

	d.mu.Lock()
	d.fail["flaky:1"] = false
	d.mu.Unlock()

	deadline := time.Now().Add(3 * time.Second)
	for !ps.Connected("flaky:1") && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !ps.Connected("flaky:1") {
		t.Fatal("expected reconnect loop to eventually establish session")
	}
	ps.Stop()
}

func TestFloodDeliversToEveryPeerBestEffort(t *testing.T) {
	d := newFakeDialer()
	bus := NewBus(8)
	ps := NewPeerSet(d, bus, nil)
	ps.ConnectInfoPeers([]string{"m1", "m2", "m3"})

	msg := wireproto.NewBlockFound("deadbeef")
	ps.Flood([]string{"m1", "m2", "m3", "unknown-peer"}, msg)

	for _, addr := range []string{"m1", "m2", "m3"} {
		sess := d.sessions[addr]
		got := sess.sent()
		if len(got) != 1 || got[0].Kind != wireproto.KindBlockFound {
			t.Fatalf("expected %s to receive the flooded message, got %v", addr, got)
		}
	}
}

func TestLoopWaitConnectToPeersAsyncResolvesWhenReady(t *testing.T) {
	d := newFakeDialer()
	bus := NewBus(8)
	ps := NewPeerSet(d, bus, nil)
	ps.ConnectInfoPeers([]string{"p1", "p2"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := ps.LoopWaitConnectToPeersAsync(ctx, []string{"p1", "p2"}); err != nil {
		t.Fatalf("expected wait to resolve, got %v", err)
	}
}

func TestBackoffStaysWithinBounds(t *testing.T) {
	b := &Backoff{Initial: 1 * time.Second, Cap: 30 * time.Second}
	for i := 0; i < 10; i++ {
		d := b.Next()
		if d < 0 || d > b.Cap {
			t.Fatalf("backoff delay %s out of bounds", d)
		}
	}
}
