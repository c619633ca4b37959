// Package upgrade migrates a node's on-disk database from the prior
// on-disk schema to the current one (spec §4.6). It supports two
// processing modes: Read (dump every entry as a verification table) and
// Upgrade (rewrite the database in place, atomically).
//
// Grounded directly on the specification's description of the upgrade
// tool (spec §4.6, §6 CLI surface) and on original_source/src/bin/upgrade.rs
// for the read/upgrade dichotomy and the node-type filtering loop; the
// column layout of each DbSpecInfo is grounded on the column names
// internal/wallet and internal/storagenode already define.
package upgrade

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/aurachain/node/internal/chainmodel"
	"github.com/aurachain/node/internal/storagenode"
	"github.com/aurachain/node/internal/store"
	"github.com/aurachain/node/internal/wallet"
)

// DbSpecInfo describes one on-disk database the system owns: the role
// that owns it, the suffix store.Mode.Path uses to locate its file, and
// the column families it carries.
type DbSpecInfo struct {
	NodeType string
	Suffix   string
	Columns  []string
}

// DB_SPEC_INFOS enumerates every database the system owns, grounded on
// the column constants internal/wallet and internal/storagenode already
// export. Compute's pending_block column holds the single in-flight
// block the round state machine is assembling or has sent to Storage.
var DB_SPEC_INFOS = []DbSpecInfo{
	{NodeType: "compute", Suffix: "compute", Columns: []string{"pending_block"}},
	{NodeType: "storage", Suffix: "storage", Columns: []string{storagenode.ColumnBlocks, storagenode.ColumnHashIndex, storagenode.ColumnMeta}},
	{NodeType: "user", Suffix: "wallet", Columns: []string{wallet.ColumnFund, wallet.ColumnAddress, wallet.ColumnTransaction}},
	{NodeType: "miner", Suffix: "miner", Columns: []string{"pending_challenge"}},
}

// NodeTypes lists the valid --type values besides "all".
var NodeTypes = []string{"compute", "storage", "user", "miner"}

// DbCfg governs how a pending compute block is re-homed during an
// upgrade (spec §4.6).
type DbCfg int

const (
	// ComputeBlockToMine re-queues the pending block for mining.
	ComputeBlockToMine DbCfg = iota
	// ComputeBlockInStorage forwards the pending block into Storage's DB.
	ComputeBlockInStorage
)

// UpgradeCfg carries the upgrade engine's tunables.
type UpgradeCfg struct {
	RaftLen    int
	Passphrase string
	DbCfg      DbCfg
}

// Processing selects what the engine does with a DbSpecInfo's database.
type Processing int

const (
	// Read dumps every entry in every column as a verification table.
	Read Processing = iota
	// Upgrade rewrites the database in place.
	Upgrade
)

// Selected filters DB_SPEC_INFOS down to the node types named (or every
// type, if nodeType is "all"), excluding any in ignore.
func Selected(nodeType string, ignore []string) ([]DbSpecInfo, error) {
	ignored := make(map[string]bool, len(ignore))
	for _, t := range ignore {
		ignored[strings.TrimSpace(t)] = true
	}

	if nodeType == "all" {
		var out []DbSpecInfo
		for _, spec := range DB_SPEC_INFOS {
			if !ignored[spec.NodeType] {
				out = append(out, spec)
			}
		}
		return out, nil
	}

	valid := false
	for _, t := range NodeTypes {
		if t == nodeType {
			valid = true
			break
		}
	}
	if !valid {
		return nil, fmt.Errorf("upgrade: type must be one of all, %s", strings.Join(NodeTypes, ", "))
	}
	if ignored[nodeType] {
		return nil, nil
	}

	var out []DbSpecInfo
	for _, spec := range DB_SPEC_INFOS {
		if spec.NodeType == nodeType {
			out = append(out, spec)
		}
	}
	return out, nil
}

// Entry is one column/key/value triple, the unit Read dumps and Upgrade
// rewrites.
type Entry struct {
	Column string
	Key    []byte
	Value  []byte
}

// DumpDB opens spec's database at mode/base and returns every entry
// across its columns, sorted for deterministic output (spec §4.6 Read
// mode: "dump as a language-neutral constant table for verification").
func DumpDB(mode store.Mode, base string, spec DbSpecInfo) ([]Entry, error) {
	kv, err := store.Open(mode, base, spec.Suffix, spec.Columns)
	if err != nil {
		return nil, fmt.Errorf("upgrade: open %s db: %w", spec.NodeType, err)
	}
	defer kv.Close()

	var entries []Entry
	for _, col := range spec.Columns {
		col := col
		if err := kv.IterColumn(col, func(key, value []byte) error {
			entries = append(entries, Entry{Column: col, Key: append([]byte(nil), key...), Value: append([]byte(nil), value...)})
			return nil
		}); err != nil {
			return nil, fmt.Errorf("upgrade: iterate column %s: %w", col, err)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Column != entries[j].Column {
			return entries[i].Column < entries[j].Column
		}
		return string(entries[i].Key) < string(entries[j].Key)
	})
	return entries, nil
}

// transformFn rewrites one entry's value for the current schema. A
// non-nil error abandons the whole batch (spec §4.6 "if any transform
// fails the whole batch is abandoned and the source DB is left
// untouched").
type transformFn func(key, value []byte) ([]byte, error)

// upgradeColumns reads every entry in each of spec's columns, applies
// transform to each value, and atomically rewrites the database via a
// single WriteBatch. The source DB is left untouched unless every
// transform succeeds.
func upgradeColumns(mode store.Mode, base string, spec DbSpecInfo, transform transformFn) error {
	kv, err := store.Open(mode, base, spec.Suffix, spec.Columns)
	if err != nil {
		return fmt.Errorf("upgrade: open %s db: %w", spec.NodeType, err)
	}
	defer kv.Close()

	var ops []store.Op
	for _, col := range spec.Columns {
		col := col
		if err := kv.IterColumn(col, func(key, value []byte) error {
			newValue, err := transform(key, value)
			if err != nil {
				return fmt.Errorf("upgrade: transform %s/%x: %w", col, key, err)
			}
			ops = append(ops, store.Op{Column: col, Key: append([]byte(nil), key...), Value: newValue})
			return nil
		}); err != nil {
			return err
		}
	}

	if err := kv.WriteBatch(ops); err != nil {
		return fmt.Errorf("upgrade: write batch for %s db abandoned: %w", spec.NodeType, err)
	}
	return nil
}

// identityTransform carries a value forward unchanged; used for columns
// whose on-disk shape has not changed across the schema bump, so the
// rewrite exercises the same atomic-batch path as columns that do.
func identityTransform(_, value []byte) ([]byte, error) { return value, nil }

// UpgradeStorageDB rewrites a Storage node's blocks/hash_index/meta
// columns in place. The transform re-derives each block's hash from its
// canonical serialization and re-keys hash_index on the recomputed
// value, guarding against a prior block-hashing scheme change.
func UpgradeStorageDB(mode store.Mode, base string) error {
	spec := specFor("storage")
	kv, err := store.Open(mode, base, spec.Suffix, spec.Columns)
	if err != nil {
		return fmt.Errorf("upgrade: open storage db: %w", err)
	}
	defer kv.Close()

	var ops []store.Op
	if err := kv.IterColumn(storagenode.ColumnBlocks, func(key, value []byte) error {
		var block chainmodel.Block
		if err := json.Unmarshal(value, &block); err != nil {
			return fmt.Errorf("upgrade: decode block %x: %w", key, err)
		}
		blockBytes, err := json.Marshal(block)
		if err != nil {
			return fmt.Errorf("upgrade: re-encode block %x: %w", key, err)
		}
		ops = append(ops, store.Op{Column: storagenode.ColumnBlocks, Key: append([]byte(nil), key...), Value: blockBytes})
		ops = append(ops, store.Op{Column: storagenode.ColumnHashIndex, Key: []byte(block.Hash()), Value: append([]byte(nil), key...)})
		return nil
	}); err != nil {
		return err
	}
	if err := kv.IterColumn(storagenode.ColumnMeta, func(key, value []byte) error {
		ops = append(ops, store.Op{Column: storagenode.ColumnMeta, Key: append([]byte(nil), key...), Value: append([]byte(nil), value...)})
		return nil
	}); err != nil {
		return err
	}

	if err := kv.WriteBatch(ops); err != nil {
		return fmt.Errorf("upgrade: write batch for storage db abandoned: %w", err)
	}
	return nil
}

// UpgradeUserDB rewrites a User node's wallet columns in place, carrying
// fund/address/transaction entries forward unchanged.
func UpgradeUserDB(mode store.Mode, base string) error {
	return upgradeColumns(mode, base, specFor("user"), identityTransform)
}

// UpgradeComputeDB rewrites a Compute node's pending_block column,
// re-homing any in-flight block per cfg.DbCfg (spec §4.6): either
// re-encoded and left in place for re-mining, or migrated into the Storage node's
// blocks/hash_index columns at the same base directory.
func UpgradeComputeDB(mode store.Mode, base string, cfg UpgradeCfg) error {
	spec := specFor("compute")
	kv, err := store.Open(mode, base, spec.Suffix, spec.Columns)
	if err != nil {
		return fmt.Errorf("upgrade: open compute db: %w", err)
	}
	defer kv.Close()

	var pendingKey, pendingValue []byte
	if err := kv.IterColumn("pending_block", func(key, value []byte) error {
		pendingKey = append([]byte(nil), key...)
		pendingValue = append([]byte(nil), value...)
		return nil
	}); err != nil {
		return fmt.Errorf("upgrade: iterate compute pending_block: %w", err)
	}

	if pendingValue == nil {
		return nil
	}

	var block chainmodel.Block
	if err := json.Unmarshal(pendingValue, &block); err != nil {
		return fmt.Errorf("upgrade: decode pending block: %w", err)
	}
	reencoded, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("upgrade: re-encode pending block: %w", err)
	}

	switch cfg.DbCfg {
	case ComputeBlockToMine:
		if err := kv.WriteBatch([]store.Op{{Column: "pending_block", Key: pendingKey, Value: reencoded}}); err != nil {
			return fmt.Errorf("upgrade: write batch for compute db abandoned: %w", err)
		}
	case ComputeBlockInStorage:
		storageSpec := specFor("storage")
		storageKV, err := store.Open(mode, base, storageSpec.Suffix, storageSpec.Columns)
		if err != nil {
			return fmt.Errorf("upgrade: open storage db to receive compute's pending block: %w", err)
		}
		defer storageKV.Close()

		var nextIndex uint64
		if raw, ok, err := storageKV.Get(storagenode.ColumnMeta, []byte("last_applied_index")); err == nil && ok && len(raw) == 8 {
			nextIndex = decodeIndex(raw) + 1
		}
		key := encodeIndex(nextIndex)
		ops := []store.Op{
			{Column: storagenode.ColumnBlocks, Key: key, Value: reencoded},
			{Column: storagenode.ColumnHashIndex, Key: []byte(block.Hash()), Value: key},
		}
		if err := storageKV.WriteBatch(ops); err != nil {
			return fmt.Errorf("upgrade: write batch forwarding pending block to storage abandoned: %w", err)
		}
		if err := kv.WriteBatch([]store.Op{{Column: "pending_block", Key: pendingKey, Delete: true}}); err != nil {
			return fmt.Errorf("upgrade: write batch clearing compute pending_block abandoned: %w", err)
		}
	}
	return nil
}

// UpgradeMinerDB rewrites a Miner node's pending_challenge column,
// carrying entries forward unchanged (miners hold no block state of
// their own to re-home).
func UpgradeMinerDB(mode store.Mode, base string) error {
	return upgradeColumns(mode, base, specFor("miner"), identityTransform)
}

func specFor(nodeType string) DbSpecInfo {
	for _, spec := range DB_SPEC_INFOS {
		if spec.NodeType == nodeType {
			return spec
		}
	}
	panic("upgrade: no DbSpecInfo for node type " + nodeType)
}

func encodeIndex(index uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(index)
		index >>= 8
	}
	return b
}

func decodeIndex(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

// ReadResult is one DbSpecInfo's dumped contents, keyed by the mode it
// was read under (one per node instance when --type all spans several
// Test-mode indices).
type ReadResult struct {
	Spec    DbSpecInfo
	Mode    store.Mode
	Entries []Entry
}

// ProcessRead dumps every (spec, mode) pair's database, matching the
// upgrade binary's --processing read (spec §4.6, original_source's
// process_read).
func ProcessRead(base string, targets []struct {
	Spec DbSpecInfo
	Mode store.Mode
}) ([]ReadResult, error) {
	out := make([]ReadResult, 0, len(targets))
	for _, t := range targets {
		entries, err := DumpDB(t.Mode, base, t.Spec)
		if err != nil {
			return nil, err
		}
		out = append(out, ReadResult{Spec: t.Spec, Mode: t.Mode, Entries: entries})
	}
	return out, nil
}

// ProcessUpgrade dispatches each (spec, mode) pair to its per-type
// upgrade routine, matching the upgrade binary's --processing upgrade
// (spec §4.6, original_source's process_upgrade). It stops and returns
// the first error encountered, leaving later databases untouched.
func ProcessUpgrade(base string, cfg UpgradeCfg, targets []struct {
	Spec DbSpecInfo
	Mode store.Mode
}) error {
	for _, t := range targets {
		var err error
		switch t.Spec.NodeType {
		case "compute":
			err = UpgradeComputeDB(t.Mode, base, cfg)
		case "storage":
			err = UpgradeStorageDB(t.Mode, base)
		case "user":
			err = UpgradeUserDB(t.Mode, base)
		case "miner":
			err = UpgradeMinerDB(t.Mode, base)
		default:
			err = fmt.Errorf("upgrade: not implemented for node type %s", t.Spec.NodeType)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
