package miner

import (
	"context"
	"testing"
	"time"

	"github.com/aurachain/node/internal/chainmodel"
	"github.com/aurachain/node/internal/transport"
	"github.com/aurachain/node/internal/wireproto"
)

type recordingSession struct {
	out chan wireproto.Message
}

func (s *recordingSession) Send(msg wireproto.Message) error {
	s.out <- msg
	return nil
}
func (s *recordingSession) Close() error { return nil }

type recordingDialer struct {
	session *recordingSession
}

func (d *recordingDialer) Dial(addr string) (transport.Session, error) { return d.session, nil }

func TestRequestPartitionSendsToCompute(t *testing.T) {
	bus := transport.NewBus(8)
	session := &recordingSession{out: make(chan wireproto.Message, 4)}
	peers := transport.NewPeerSet(&recordingDialer{session: session}, bus, nil)
	peers.ConnectInfoPeers([]string{"compute-1"})

	n := New(Config{Endpoint: "miner-1", ComputeAddr: "compute-1"}, peers, bus, nil)
	n.RequestPartition()

	select {
	case msg := <-session.out:
		if msg.Kind != wireproto.KindPartitionRequest || msg.PartitionRequest.MinerEndpoint != "miner-1" {
			t.Fatalf("unexpected message: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("expected partition_request to be sent")
	}
}

func TestSolveSubmitsFirstValidNonce(t *testing.T) {
	bus := transport.NewBus(8)
	session := &recordingSession{out: make(chan wireproto.Message, 4)}
	peers := transport.NewPeerSet(&recordingDialer{session: session}, bus, nil)
	peers.ConnectInfoPeers([]string{"compute-1"})

	n := New(Config{Endpoint: "miner-1", ComputeAddr: "compute-1"}, peers, bus, nil)
	n.inPartition.Store(true)

	var target [32]byte
	for i := range target {
		target[i] = 0xff
	}
	challenge := &wireproto.BlockChallenge{Header: chainmodel.BlockHeader{Height: 1}, Target: target}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n.solve(ctx, challenge)

	select {
	case msg := <-session.out:
		if msg.Kind != wireproto.KindBlockSolution {
			t.Fatalf("expected block_solution, got %v", msg.Kind)
		}
		digest := chainmodel.PoWHash(msg.BlockSolution.Header, msg.BlockSolution.Nonce)
		if !chainmodel.MeetsTarget(digest, target) {
			t.Fatalf("submitted nonce does not meet target")
		}
	default:
		t.Fatal("expected a solution to be submitted")
	}
}

func TestSolveAbortsWhenContextCancelled(t *testing.T) {
	bus := transport.NewBus(8)
	session := &recordingSession{out: make(chan wireproto.Message, 4)}
	peers := transport.NewPeerSet(&recordingDialer{session: session}, bus, nil)
	peers.ConnectInfoPeers([]string{"compute-1"})

	n := New(Config{Endpoint: "miner-1", ComputeAddr: "compute-1"}, peers, bus, nil)
	n.inPartition.Store(true)

	var target [32]byte // unattainably strict: all-zero target, no digest is < it
	challenge := &wireproto.BlockChallenge{Header: chainmodel.BlockHeader{Height: 1}, Target: target}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	n.solve(ctx, challenge)

	select {
	case msg := <-session.out:
		t.Fatalf("expected no solution to be submitted, got %+v", msg)
	default:
	}
}
