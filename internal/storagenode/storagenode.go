// Package storagenode implements the Storage node: a Raft-replicated
// block log, atomic block persistence, snapshotting, and acknowledgment
// of Compute's AppendBlock proposals (spec §4.3).
//
// Grounded on the teacher's storage-adjacent IPFS gateway shape for the
// "durable handle plus blocking worker" split (core/storage.go), but the
// actual persistence contract (column-family KV write batch, Raft commit
// gating) follows the specification directly since the teacher has no
// Raft-backed block log; the Raft drive loop itself is internal/raftlog,
// grounded on the Quorum reference eventLoop.
package storagenode

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/aurachain/node/internal/chainmodel"
	"github.com/aurachain/node/internal/raftlog"
	"github.com/aurachain/node/internal/store"
	"github.com/aurachain/node/internal/transport"
	"github.com/aurachain/node/internal/wireproto"
)

// Column names for the Storage node's KV store (spec §6 persisted state
// layout): blocks keyed by 8-byte big-endian index, hash_index mapping
// block hash to that same index, meta for snapshot bookkeeping.
const (
	ColumnBlocks    = "blocks"
	ColumnHashIndex = "hash_index"
	ColumnMeta      = "meta"

	metaKeyLastApplied = "last_applied_index"
)

// Config carries the Storage node's tunables.
type Config struct {
	SnapshotInterval uint64 // spec's SNAPSHOT_INTERVAL, in committed entries
	ComputeAddr      string
}

// Node owns one Storage role's KV handle and Raft group.
type Node struct {
	cfg    Config
	kv     store.Store
	raft   *raftlog.Node
	peers  *transport.PeerSet
	bus    *transport.Bus
	logger *log.Logger

	mu            sync.Mutex
	sinceSnapshot uint64
	lastApplied   uint64
}

// Open opens the Storage node's KV handle at mode/base and constructs its
// Raft group, replaying lastApplied from the meta column if present
// (spec §4.3 step 5: snapshot loaded first, then the caller replays the
// log tail via raftCfg's storage).
func Open(mode store.Mode, base string, cfg Config, raftCfg raftlog.Config, peers *transport.PeerSet, bus *transport.Bus, logger *log.Logger) (*Node, error) {
	if logger == nil {
		logger = log.New()
	}
	if cfg.SnapshotInterval == 0 {
		cfg.SnapshotInterval = 1000
	}
	kv, err := store.Open(mode, base, "storage", []string{ColumnBlocks, ColumnHashIndex, ColumnMeta})
	if err != nil {
		return nil, fmt.Errorf("storagenode: open kv: %w", err)
	}

	raftCfg.Logger = logger
	n := &Node{
		cfg:    cfg,
		kv:     kv,
		raft:   raftlog.New(raftCfg),
		peers:  peers,
		bus:    bus,
		logger: logger,
	}
	n.restoreMeta()
	return n, nil
}

func (n *Node) restoreMeta() {
	raw, ok, err := n.kv.Get(ColumnMeta, []byte(metaKeyLastApplied))
	if err != nil || !ok || len(raw) != 8 {
		return
	}
	n.lastApplied = binary.BigEndian.Uint64(raw)
}

// LastApplied returns the last Raft index this node has durably applied.
func (n *Node) LastApplied() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastApplied
}

// GetBlock returns the block at index, if present.
func (n *Node) GetBlock(index uint64) (*chainmodel.Block, bool, error) {
	key := indexKey(index)
	raw, ok, err := n.kv.Get(ColumnBlocks, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	var block chainmodel.Block
	if err := json.Unmarshal(raw, &block); err != nil {
		return nil, false, fmt.Errorf("storagenode: decode block at index %d: %w", index, err)
	}
	return &block, true, nil
}

// GetBlockByHash resolves hash through hash_index, then reads the block.
func (n *Node) GetBlockByHash(hash string) (*chainmodel.Block, bool, error) {
	raw, ok, err := n.kv.Get(ColumnHashIndex, []byte(hash))
	if err != nil || !ok {
		return nil, ok, err
	}
	if len(raw) != 8 {
		return nil, false, fmt.Errorf("storagenode: malformed hash_index entry for %s", hash)
	}
	return n.GetBlock(binary.BigEndian.Uint64(raw))
}

// ProposeBlock submits block to the local Raft group (Compute -> Storage
// AppendBlock, spec §4.3 step 1).
func (n *Node) ProposeBlock(ctx context.Context, block chainmodel.Block) error {
	data, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("storagenode: encode block: %w", err)
	}
	return n.raft.Propose(ctx, data)
}

// Run drives the Storage node: the Raft loop on its own task, and this
// goroutine applying committed entries and servicing AppendBlock requests
// arriving over the bus. They communicate exclusively by channel, per
// spec §4.3's "no shared mutable state" concurrency model.
func (n *Node) Run(ctx context.Context) {
	go n.raft.Run(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-n.raft.CommittedEntries():
			if !ok {
				return
			}
			n.applyEntry(entry.Index, entry.Data)
		case ev, ok := <-n.bus.Events():
			if !ok {
				return
			}
			n.handleEvent(ctx, ev)
		}
	}
}

func (n *Node) handleEvent(ctx context.Context, ev transport.Event) {
	if ev.Kind != transport.EventMessage || ev.Message.Kind != wireproto.KindAppendBlock {
		return
	}
	if ev.Message.AppendBlock == nil {
		return
	}
	if err := n.ProposeBlock(ctx, ev.Message.AppendBlock.Block); err != nil {
		n.logger.WithError(err).Warn("storagenode: propose append_block failed")
	}
}

// applyEntry persists one committed block atomically (blocks[index] and
// hash_index[hash] in a single write batch, spec §4.3 step 2), acknowledges
// Compute, and snapshots every cfg.SnapshotInterval entries. A write
// failure here is fatal per spec §4.3 failure semantics.
func (n *Node) applyEntry(index uint64, data []byte) {
	if len(data) == 0 {
		return
	}
	var block chainmodel.Block
	if err := json.Unmarshal(data, &block); err != nil {
		n.logger.WithError(err).Error("storagenode: decode committed block, skipping malformed entry")
		return
	}
	hash := block.Hash()
	key := indexKey(index)
	blockBytes, err := json.Marshal(block)
	if err != nil {
		n.logger.WithError(err).Error("storagenode: re-encode committed block, skipping")
		return
	}

	ops := []store.Op{
		{Column: ColumnBlocks, Key: key, Value: blockBytes},
		{Column: ColumnHashIndex, Key: []byte(hash), Value: key},
	}
	if err := n.kv.WriteBatch(ops); err != nil {
		n.logger.WithError(err).Fatal("storagenode: write failure persisting committed block is fatal")
	}

	n.mu.Lock()
	n.lastApplied = index
	n.sinceSnapshot++
	due := n.sinceSnapshot >= n.cfg.SnapshotInterval
	if due {
		n.sinceSnapshot = 0
	}
	n.mu.Unlock()

	if n.cfg.ComputeAddr != "" {
		n.peers.Send(n.cfg.ComputeAddr, wireproto.NewBlockStored(hash))
	}

	if due {
		n.snapshot(index)
	}
}

// snapshot records (last_applied_index, compact block index) to the meta
// column and truncates the Raft log up to index (spec §4.3 step 4).
func (n *Node) snapshot(index uint64) {
	if err := n.kv.Put(ColumnMeta, []byte(metaKeyLastApplied), indexKey(index)); err != nil {
		n.logger.WithError(err).Error("storagenode: write snapshot metadata")
		return
	}
	if err := n.raft.CompactTo(index); err != nil {
		n.logger.WithError(err).Warn("storagenode: compact raft log")
	}
}

// Close stops the Raft loop and closes the KV handle (spec §4.3 shutdown:
// close_raft_loop, then the request loop drains and exits).
func (n *Node) Close() error {
	n.raft.Close()
	return n.kv.Close()
}

func indexKey(index uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, index)
	return b
}
