// Package nodecfg layers the per-role Config structs internal/compute,
// internal/storagenode, internal/usernode and internal/store already
// expose on top of pkg/config's file-loaded settings, so that each
// cmd/<role> binary does nothing but parse flags, call nodecfg.Load<Role>,
// and run.
//
// Grounded on the teacher's cmd/synnergy flag-to-struct wiring, generalized
// from a single monolithic core.Config to this specification's per-role
// split (spec §4, §6 CLI surface: --config, --index, role-specific flags).
package nodecfg

import (
	"fmt"
	"time"

	"github.com/aurachain/node/internal/compute"
	"github.com/aurachain/node/internal/store"
	"github.com/aurachain/node/internal/storagenode"
	"github.com/aurachain/node/internal/usernode"
	"github.com/aurachain/node/pkg/config"
)

// Flags carries the CLI surface spec §6 names, already parsed by cobra in
// the cmd/<role> binary.
type Flags struct {
	ConfigPath     string
	Index          int
	APIPort        int
	Passphrase     string
	ComputeIndex   int
	PeerUserIndex  int
	IP             string
	Port           int
	ComputeAddrArg string
}

// ResolveMode converts a config.DbModeSpec into a store.Mode, applying the
// node's --index offset additively per spec §9 ("Test(n) ... additively
// offsets by the node index ... values like 1000 + idx").
func ResolveMode(spec config.DbModeSpec, idx int) store.Mode {
	switch spec.Kind {
	case "test":
		return store.TestMode(spec.Index + idx)
	case "in_memory":
		return store.InMemoryMode()
	default:
		return store.LiveMode()
	}
}

func addrsOf(specs []config.NodeSpec) []string {
	out := make([]string, 0, len(specs))
	for _, s := range specs {
		out = append(out, s.Address)
	}
	return out
}

// ComputeConfig is everything cmd/compute needs to construct and run an
// internal/compute.Engine: its KV mode/base (mempool is in-memory, so only
// a base path for future columns), peer lists, and the round Config.
type ComputeConfig struct {
	Mode        store.Mode
	Base        string
	Listen      string
	MinerAddrs  []string
	UserAddrs   []string
	StorageAddr string
	Engine      compute.Config
}

// LoadCompute builds a ComputeConfig from cfg for the node at index idx.
func LoadCompute(cfg *config.Config, idx int, flags Flags) (*ComputeConfig, error) {
	if idx < 0 || idx >= len(cfg.ComputeNodes) {
		return nil, fmt.Errorf("nodecfg: compute index %d out of range (%d configured)", idx, len(cfg.ComputeNodes))
	}
	storageAddr := ""
	if len(cfg.StorageNodes) > 0 {
		storageAddr = cfg.StorageNodes[0].Address
	}
	round := compute.DefaultConfig()
	if cfg.PartitionSize > 0 {
		round.PartitionSize = cfg.PartitionSize
	}
	if cfg.MinTx > 0 {
		round.MinTx = cfg.MinTx
	}
	if cfg.AccumulateMs > 0 {
		round.AccumulateDeadline = time.Duration(cfg.AccumulateMs) * time.Millisecond
	}
	if cfg.StorageSendTimeout > 0 {
		round.StorageSendTimeout = time.Duration(cfg.StorageSendTimeout) * time.Second
	}
	round.StorageAddr = storageAddr

	return &ComputeConfig{
		Mode:        ResolveMode(cfg.ComputeDbMode, idx),
		Base:        cfg.DBPath,
		Listen:      cfg.ComputeNodes[idx].Address,
		StorageAddr: storageAddr,
		Engine:      round,
	}, nil
}

// StorageConfig is everything cmd/storage needs.
type StorageConfig struct {
	Mode        store.Mode
	Base        string
	Listen      string
	ComputeAddr string
	Node        storagenode.Config
}

// LoadStorage builds a StorageConfig from cfg for the node at index idx.
func LoadStorage(cfg *config.Config, idx int) (*StorageConfig, error) {
	if idx < 0 || idx >= len(cfg.StorageNodes) {
		return nil, fmt.Errorf("nodecfg: storage index %d out of range (%d configured)", idx, len(cfg.StorageNodes))
	}
	computeAddr := ""
	if len(cfg.ComputeNodes) > 0 {
		computeAddr = cfg.ComputeNodes[0].Address
	}
	snapshotEvery := uint64(cfg.SnapshotInterval)
	if snapshotEvery == 0 {
		snapshotEvery = 1000
	}
	return &StorageConfig{
		Mode:        ResolveMode(cfg.StorageDbMode, idx),
		Base:        cfg.DBPath,
		Listen:      cfg.StorageNodes[idx].Address,
		ComputeAddr: computeAddr,
		Node:        storagenode.Config{SnapshotInterval: snapshotEvery, ComputeAddr: computeAddr},
	}, nil
}

// UserConfig is everything cmd/user needs, including its HTTP API port.
type UserConfig struct {
	Mode       store.Mode
	Base       string
	Listen     string
	Passphrase string
	APIPort    int
	User       usernode.Config
}

// LoadUser builds a UserConfig from cfg for the node at index idx.
func LoadUser(cfg *config.Config, idx int, flags Flags) (*UserConfig, error) {
	if idx < 0 || idx >= len(cfg.UserNodes) {
		return nil, fmt.Errorf("nodecfg: user index %d out of range (%d configured)", idx, len(cfg.UserNodes))
	}
	computeAddr := ""
	if flags.ComputeIndex >= 0 && flags.ComputeIndex < len(cfg.ComputeNodes) {
		computeAddr = cfg.ComputeNodes[flags.ComputeIndex].Address
	} else if len(cfg.ComputeNodes) > 0 {
		computeAddr = cfg.ComputeNodes[0].Address
	}

	u := usernode.DefaultConfig()
	u.ComputeAddr = computeAddr
	u.PeerAddrs = append([]string{computeAddr}, addrsOf(cfg.StorageNodes)...)

	apiPort := cfg.APIPort
	if flags.APIPort != 0 {
		apiPort = flags.APIPort
	}
	passphrase := cfg.Passphrase
	if flags.Passphrase != "" {
		passphrase = flags.Passphrase
	}

	return &UserConfig{
		Mode:       ResolveMode(cfg.UserDbMode, idx),
		Base:       cfg.DBPath,
		Listen:     cfg.UserNodes[idx].Address,
		Passphrase: passphrase,
		APIPort:    apiPort,
		User:       u,
	}, nil
}

// MinerConfig is everything cmd/miner needs: it has no persistent store of
// its own (a miner is stateless between rounds per spec §4.2/§6), only its
// listen address and the Compute endpoint it partitions against.
type MinerConfig struct {
	Listen      string
	ComputeAddr string
}

// LoadMiner builds a MinerConfig from cfg for the node at index idx.
func LoadMiner(cfg *config.Config, idx int) (*MinerConfig, error) {
	if idx < 0 || idx >= len(cfg.MinerNodes) {
		return nil, fmt.Errorf("nodecfg: miner index %d out of range (%d configured)", idx, len(cfg.MinerNodes))
	}
	computeAddr := ""
	if len(cfg.ComputeNodes) > 0 {
		computeAddr = cfg.ComputeNodes[0].Address
	}
	return &MinerConfig{
		Listen:      cfg.MinerNodes[idx].Address,
		ComputeAddr: computeAddr,
	}, nil
}
