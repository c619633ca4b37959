// Package miner implements the Miner role: joining a Compute node's
// partition, searching for a proof-of-work nonce against the issued
// challenge, and submitting the first solution found (spec §4.2, §6).
//
// Grounded on the teacher's core/network.go event-driven message
// handling style, generalized to this specification's partition/PoW
// protocol; the digest and target comparison themselves are
// internal/chainmodel.PoWHash/MeetsTarget, already shared with
// internal/compute's acceptance check.
package miner

import (
	"context"
	"math"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/aurachain/node/internal/chainmodel"
	"github.com/aurachain/node/internal/transport"
	"github.com/aurachain/node/internal/wireproto"
)

// Config carries a Miner's own reachable endpoint and the Compute node
// it partitions against.
type Config struct {
	Endpoint    string
	ComputeAddr string
}

// Node owns one Miner role's event loop: it announces itself, waits for
// a partition assignment and PoW challenge, searches for a solution, and
// submits it.
type Node struct {
	cfg    Config
	peers  *transport.PeerSet
	bus    *transport.Bus
	logger *log.Logger

	inPartition atomic.Bool
	solving     atomic.Bool
}

// New constructs a Miner node.
func New(cfg Config, peers *transport.PeerSet, bus *transport.Bus, logger *log.Logger) *Node {
	if logger == nil {
		logger = log.New()
	}
	return &Node{cfg: cfg, peers: peers, bus: bus, logger: logger}
}

// RequestPartition announces this miner's endpoint to Compute (spec §4.2
// partition protocol, Miner -> Compute).
func (n *Node) RequestPartition() {
	n.peers.Send(n.cfg.ComputeAddr, wireproto.NewPartitionRequest(n.cfg.Endpoint))
}

// Run services the bus until done fires or ctx is cancelled: a
// PartitionList confirms membership, a BlockChallenge starts a solve
// attempt in its own goroutine (cancelled if the round concludes via
// BlockFound before a solution is found), and a BlockFound notification
// ends the round, re-arming for the next RequestPartition.
func (n *Node) Run(ctx context.Context, done <-chan struct{}) {
	var cancelSolve context.CancelFunc
	defer func() {
		if cancelSolve != nil {
			cancelSolve()
		}
	}()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case ev, ok := <-n.bus.Events():
			if !ok {
				return
			}
			switch {
			case ev.Kind != transport.EventMessage:
				continue
			case ev.Message.Kind == wireproto.KindPartitionList:
				n.handlePartitionList(ev.Message.PartitionList)
			case ev.Message.Kind == wireproto.KindBlockChallenge:
				if cancelSolve != nil {
					cancelSolve()
				}
				var solveCtx context.Context
				solveCtx, cancelSolve = context.WithCancel(ctx)
				go n.solve(solveCtx, ev.Message.BlockChallenge)
			case ev.Message.Kind == wireproto.KindBlockFound:
				if cancelSolve != nil {
					cancelSolve()
					cancelSolve = nil
				}
				n.inPartition.Store(false)
				n.solving.Store(false)
			}
		}
	}
}

func (n *Node) handlePartitionList(list *wireproto.PartitionList) {
	if list == nil {
		return
	}
	for _, member := range list.Members {
		if member == n.cfg.Endpoint {
			n.inPartition.Store(true)
			return
		}
	}
	n.inPartition.Store(false)
}

// solve brute-forces nonce values looking for one satisfying the
// challenge's target, submitting the first hit (spec §4.2 PoW
// acceptance: "the first submission that satisfies H(header||nonce) <
// target"). It exits without submitting if ctx is cancelled first (the
// round concluded via a rival miner's solution).
func (n *Node) solve(ctx context.Context, challenge *wireproto.BlockChallenge) {
	if challenge == nil || !n.inPartition.Load() {
		return
	}
	n.solving.Store(true)
	defer n.solving.Store(false)

	for nonce := uint64(0); nonce < math.MaxUint64; nonce++ {
		select {
		case <-ctx.Done():
			return
		default:
		}
		digest := chainmodel.PoWHash(challenge.Header, nonce)
		if chainmodel.MeetsTarget(digest, challenge.Target) {
			n.peers.Send(n.cfg.ComputeAddr, wireproto.NewBlockSolution(challenge.Header, nonce, n.cfg.Endpoint))
			return
		}
	}
}
