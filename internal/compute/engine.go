package compute

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/aurachain/node/internal/chainmodel"
	"github.com/aurachain/node/internal/transport"
	"github.com/aurachain/node/internal/wireproto"
	"github.com/aurachain/node/pkg/utils"
)

// Phase is one state of the per-round state machine (spec §4.2).
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAccumulating
	PhasePartitionOpen
	PhaseChallenging
	PhaseAssembling
	PhaseNotifying
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAccumulating:
		return "accumulating"
	case PhasePartitionOpen:
		return "partition_open"
	case PhaseChallenging:
		return "challenging"
	case PhaseAssembling:
		return "assembling"
	case PhaseNotifying:
		return "notifying"
	default:
		return "unknown"
	}
}

// Response mirrors the {success, reason} shape every mempool-facing
// operation returns (spec §4.2 receive_transactions).
type Response struct {
	Success bool
	Reason  string
}

// Config carries the round's tunable parameters and timeouts.
type Config struct {
	PartitionSize      int
	MinTx              int
	AccumulateDeadline time.Duration // BLOCK_TIMEOUT (spec §5)
	StorageSendTimeout time.Duration // STORAGE_SEND_TIMEOUT (spec §5)
	StorageAddr        string
	Target             [32]byte
	TickInterval       time.Duration
}

// DefaultConfig fills in the specification's named timeout constants.
func DefaultConfig() Config {
	return Config{
		PartitionSize:      3,
		MinTx:              1,
		AccumulateDeadline: 1000 * time.Millisecond, // BLOCK_TIMEOUT
		StorageSendTimeout: 30 * time.Second,         // STORAGE_SEND_TIMEOUT
		TickInterval:       10 * time.Millisecond,    // RAFT_TICK cadence reused for round polling
	}
}

// Engine drives one Compute node's block round: mempool admission,
// partition collection, PoW challenge/acceptance, and the hand-off to
// Storage. All phase transitions happen on the single goroutine running
// Run, per spec §5's single-threaded cooperative model; network I/O for
// the storage hand-off runs on its own task (goroutine) that waits on the
// ack channel and, only if no ack arrives in time, resets the round under
// e.mu and publishes a warning on the bus.
type Engine struct {
	cfg     Config
	mempool *Mempool
	parts   *PartitionList
	utxo    *chainmodel.UTXOSet
	peers   *transport.PeerSet
	bus     *transport.Bus
	logger  *log.Logger

	mu              sync.Mutex
	phase           Phase
	height          uint64
	prevHash        string
	accumulatedAt   time.Time
	challengeHeader chainmodel.BlockHeader
	challengeTxs    []chainmodel.Transaction
	sealed          bool
	pendingHash     string
	pendingBlock    *chainmodel.Block
	pendingAck      chan struct{}
}

// NewEngine constructs an Engine seeded at genesis (height 0, empty prev
// hash) unless overridden by SetTip.
func NewEngine(cfg Config, utxo *chainmodel.UTXOSet, peers *transport.PeerSet, bus *transport.Bus, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New()
	}
	if cfg.PartitionSize <= 0 {
		cfg.PartitionSize = 3
	}
	return &Engine{
		cfg:     cfg,
		mempool: NewMempool(0),
		parts:   NewPartitionList(cfg.PartitionSize),
		utxo:    utxo,
		peers:   peers,
		bus:     bus,
		logger:  logger,
		phase:   PhaseIdle,
	}
}

// SetTip updates the chain tip this Engine builds candidate blocks atop.
func (e *Engine) SetTip(height uint64, prevHash string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.height = height
	e.prevHash = prevHash
}

// Phase reports the current round phase.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// ReceiveTransactions validates and admits txs, moving Idle to
// Accumulating on the first admission of a round (spec §4.2
// receive_transactions).
func (e *Engine) ReceiveTransactions(txs []chainmodel.Transaction) Response {
	allAdmitted, results := e.mempool.AdmitBatch(txs, e.utxo)
	admitted := 0
	for _, r := range results {
		if r.Admitted {
			admitted++
		}
	}

	e.mu.Lock()
	if admitted > 0 && e.phase == PhaseIdle {
		e.phase = PhaseAccumulating
		e.accumulatedAt = time.Now()
	}
	e.mu.Unlock()

	if allAdmitted {
		return Response{Success: true, Reason: "All transactions successfully added to tx pool"}
	}
	return Response{Success: false, Reason: fmt.Sprintf("%d/%d transactions successfully added to tx pool", admitted, len(txs))}
}

// Run drives the round state machine: it dispatches inbound bus events and
// polls for the accumulation deadline / partition completion on a fixed
// tick, exactly the "suspension points" spec §5 describes.
func (e *Engine) Run(done <-chan struct{}) {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case ev, ok := <-e.bus.Events():
			if !ok {
				return
			}
			e.handleEvent(ev)
		case <-ticker.C:
			e.checkDeadline()
		}
	}
}

func (e *Engine) handleEvent(ev transport.Event) {
	if ev.Kind != transport.EventMessage {
		return
	}
	switch ev.Message.Kind {
	case wireproto.KindSendTransactions:
		e.ReceiveTransactions(ev.Message.SendTransactions.Txs)
	case wireproto.KindPartitionRequest:
		e.handlePartitionRequest(ev.Message.PartitionRequest)
	case wireproto.KindBlockSolution:
		e.handleBlockSolution(ev.Message.BlockSolution)
	case wireproto.KindBlockStored:
		e.handleBlockStored(ev.Message.BlockStored)
	}
}

// checkDeadline moves Accumulating to PartitionOpen once the deadline has
// elapsed or enough transactions have accumulated (spec §4.2 state
// machine). PartitionOpen itself is a waiting phase: handlePartitionRequest
// advances PartitionOpen to Challenging once the list fills.
func (e *Engine) checkDeadline() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != PhaseAccumulating {
		return
	}
	elapsed := time.Since(e.accumulatedAt) >= e.cfg.AccumulateDeadline
	enough := e.mempool.Len() >= e.cfg.MinTx
	if elapsed || enough {
		e.phase = PhasePartitionOpen
	}
}

func (e *Engine) handlePartitionRequest(req *wireproto.PartitionRequest) {
	if req == nil {
		return
	}
	_, full := e.parts.Add(req.MinerEndpoint)
	if full {
		e.beginChallenge()
	}
}

// beginChallenge snapshots the current mempool into a candidate block
// header and floods the partition list plus the PoW challenge to every
// member, exactly once each (spec §8 scenario S5).
func (e *Engine) beginChallenge() {
	e.mu.Lock()
	txs := e.mempool.Snapshot()
	header := chainmodel.BlockHeader{
		PrevHash:   e.prevHash,
		MerkleRoot: chainmodel.BuildMerkleRoot(txs),
		Timestamp:  time.Now().Unix(),
		Height:     e.height + 1,
	}
	e.challengeHeader = header
	e.challengeTxs = txs
	e.phase = PhaseChallenging
	members := e.parts.Members()
	e.mu.Unlock()

	e.peers.Flood(members, wireproto.NewPartitionList(members))
	e.peers.Flood(members, wireproto.NewBlockChallenge(header, e.cfg.Target))
}

// handleBlockSolution accepts the first valid, in-partition PoW submission
// for the current round and discards everything after (spec §4.2 PoW
// acceptance).
func (e *Engine) handleBlockSolution(sol *wireproto.BlockSolution) {
	if sol == nil {
		return
	}

	e.mu.Lock()
	if e.phase != PhaseChallenging || e.sealed {
		e.mu.Unlock()
		return
	}
	if !e.parts.Contains(sol.MinerEndpoint) {
		e.mu.Unlock()
		e.logger.Warnf("compute: rejecting PoW solution from non-partition miner %s", sol.MinerEndpoint)
		return
	}
	if sol.Header != e.challengeHeader {
		e.mu.Unlock()
		return
	}
	digest := chainmodel.PoWHash(sol.Header, sol.Nonce)
	if !chainmodel.MeetsTarget(digest, e.cfg.Target) {
		e.mu.Unlock()
		return
	}

	sealedHeader := sol.Header
	sealedHeader.Nonce = sol.Nonce
	block := chainmodel.Block{Header: sealedHeader, Transactions: e.challengeTxs}
	e.sealed = true
	e.phase = PhaseAssembling
	e.mu.Unlock()

	e.sendBlockToStorage(block)
}

// sendBlockToStorage hands the assembled block to Storage once, retrying
// with backoff until acknowledged or STORAGE_SEND_TIMEOUT elapses (spec
// §4.2 send_block_to_storage). It runs on its own task; besides the guarded
// pending-block slot, the only Engine state it touches is the round reset
// onStorageSendTimeout performs under e.mu.
func (e *Engine) sendBlockToStorage(block chainmodel.Block) {
	hash := block.Hash()
	ack := make(chan struct{})

	e.mu.Lock()
	e.pendingHash = hash
	blockCopy := block
	e.pendingBlock = &blockCopy
	e.pendingAck = ack
	e.mu.Unlock()

	go func() {
		backoff := transport.DefaultBackoff()
		deadline := time.Now().Add(e.cfg.StorageSendTimeout)
		msg := wireproto.NewAppendBlock(block)
		for {
			e.peers.Send(e.cfg.StorageAddr, msg)
			select {
			case <-ack:
				return
			case <-time.After(backoff.Next()):
				if time.Now().After(deadline) {
					e.onStorageSendTimeout(hash)
					return
				}
			}
		}
	}()
}

func (e *Engine) onStorageSendTimeout(hash string) {
	e.mu.Lock()
	if e.pendingHash != hash {
		e.mu.Unlock()
		return
	}
	e.resetRoundLocked()
	e.mu.Unlock()

	e.bus.Publish(transport.Event{
		Kind: transport.EventWarning,
		Err:  utils.NewError(utils.KindStorage, fmt.Sprintf("send_block_to_storage: no ack for %s within timeout", hash), nil),
	})
}

// handleBlockStored applies the now-durable block, drains the sealed
// transactions from the mempool, floods BlockFound to the partition, and
// resets for the next round (spec §4.2 Assembling -> Notifying -> Idle).
func (e *Engine) handleBlockStored(stored *wireproto.BlockStored) {
	if stored == nil {
		return
	}

	e.mu.Lock()
	if e.pendingHash != stored.BlockHash || e.pendingAck == nil {
		e.mu.Unlock()
		return
	}
	ack := e.pendingAck
	e.pendingAck = nil
	block := e.pendingBlock
	e.phase = PhaseNotifying
	members := e.parts.Members()
	e.mu.Unlock()

	close(ack)

	if block != nil {
		if err := e.utxo.ApplyBlock(block); err != nil {
			e.logger.WithError(err).Error("compute: apply stored block to utxo set")
		}
		e.mempool.mu.Lock()
		for _, tx := range block.Transactions {
			delete(e.mempool.byHash, tx.Hash())
			for _, in := range tx.Inputs {
				delete(e.mempool.spentIn, in.PrevOut)
			}
		}
		e.mempool.mu.Unlock()
	}

	e.peers.Flood(members, wireproto.NewBlockFound(stored.BlockHash))

	e.mu.Lock()
	e.height++
	e.prevHash = stored.BlockHash
	e.resetRoundLocked()
	e.mu.Unlock()
}

// resetRoundLocked clears all per-round state and returns to Idle. Callers
// must hold e.mu.
func (e *Engine) resetRoundLocked() {
	e.parts.Reset()
	e.sealed = false
	e.pendingHash = ""
	e.pendingBlock = nil
	e.pendingAck = nil
	e.phase = PhaseIdle
}
