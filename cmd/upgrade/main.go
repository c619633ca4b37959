// Command upgrade migrates a node role's on-disk database to the current
// schema, or dumps it for verification (spec §4.6, §6).
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	log "github.com/sirupsen/logrus"

	"github.com/aurachain/node/internal/nodecfg"
	"github.com/aurachain/node/internal/store"
	"github.com/aurachain/node/internal/upgrade"
	"github.com/aurachain/node/pkg/config"
)

func main() {
	logger := log.New()

	var configPath string
	var index int
	var nodeType string
	var processing string
	var computeBlock string
	var passphrase string
	var ignoreCSV string

	root := &cobra.Command{
		Use:   "upgrade",
		Short: "run a database upgrade",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(logger, configPath, index, nodeType, processing, computeBlock, passphrase, ignoreCSV)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "configuration file (without extension)")
	root.Flags().IntVarP(&index, "index", "i", 0, "test-mode node index to offset by")
	root.Flags().StringVar(&nodeType, "type", "", "node type to upgrade: all, compute, storage, user, miner")
	root.Flags().StringVar(&processing, "processing", "", "processing mode: read or upgrade")
	root.Flags().StringVar(&computeBlock, "compute_block", "mine", "re-home a pending compute block: mine or discard")
	root.Flags().StringVar(&passphrase, "passphrase", "", "wallet passphrase, if the user database is encrypted")
	root.Flags().StringVar(&ignoreCSV, "ignore", "", "comma-separated node types to skip")
	_ = root.MarkFlagRequired("type")
	_ = root.MarkFlagRequired("processing")

	if err := root.Execute(); err != nil {
		logger.WithError(err).Fatal("upgrade: fatal error")
		os.Exit(1)
	}
}

func run(logger *log.Logger, configPath string, index int, nodeType, processing, computeBlock, passphrase, ignoreCSV string) error {
	cfg, err := config.Load(configPath, "")
	if err != nil {
		return err
	}

	var ignore []string
	if ignoreCSV != "" {
		ignore = strings.Split(ignoreCSV, ",")
	}
	specs, err := upgrade.Selected(nodeType, ignore)
	if err != nil {
		return err
	}

	targets, err := resolveTargets(cfg, nodeType, index, specs)
	if err != nil {
		return err
	}

	switch processing {
	case "read":
		results, err := upgrade.ProcessRead(cfg.DBPath, targets)
		if err != nil {
			return fmt.Errorf("upgrade: read out error, aborting: %w", err)
		}
		printReadResults(results)
	case "upgrade":
		dbCfg := upgrade.ComputeBlockToMine
		if computeBlock == "discard" {
			dbCfg = upgrade.ComputeBlockInStorage
		}
		ucfg := upgrade.UpgradeCfg{Passphrase: passphrase, DbCfg: dbCfg}
		if err := upgrade.ProcessUpgrade(cfg.DBPath, ucfg, targets); err != nil {
			return fmt.Errorf("upgrade: upgrade error, aborting: %w", err)
		}
		logger.Infof("upgrade: completed for type=%s", nodeType)
	default:
		return fmt.Errorf("upgrade: processing must be read or upgrade")
	}
	return nil
}

// resolveTargets pairs each selected DbSpecInfo with the store.Mode(s) it
// should run against: one per configured node of that type when --type
// all spans several Test-mode indices, or the single node at --index
// otherwise (spec §4.6, original_source's node_specs enumeration loop).
func resolveTargets(cfg *config.Config, nodeType string, index int, specs []upgrade.DbSpecInfo) ([]struct {
	Spec upgrade.DbSpecInfo
	Mode store.Mode
}, error) {
	var out []struct {
		Spec upgrade.DbSpecInfo
		Mode store.Mode
	}
	for _, spec := range specs {
		dbMode, count := dbModeAndCount(cfg, spec.NodeType)
		if nodeType == "all" {
			for i := 0; i < count; i++ {
				out = append(out, struct {
					Spec upgrade.DbSpecInfo
					Mode store.Mode
				}{Spec: spec, Mode: nodecfg.ResolveMode(dbMode, i)})
			}
			continue
		}
		out = append(out, struct {
			Spec upgrade.DbSpecInfo
			Mode store.Mode
		}{Spec: spec, Mode: nodecfg.ResolveMode(dbMode, index)})
	}
	return out, nil
}

func dbModeAndCount(cfg *config.Config, nodeType string) (config.DbModeSpec, int) {
	switch nodeType {
	case "compute":
		return cfg.ComputeDbMode, len(cfg.ComputeNodes)
	case "storage":
		return cfg.StorageDbMode, len(cfg.StorageNodes)
	case "user":
		return cfg.UserDbMode, len(cfg.UserNodes)
	case "miner":
		return cfg.MinerDbMode, len(cfg.MinerNodes)
	default:
		return config.DbModeSpec{}, 0
	}
}

func printReadResults(results []upgrade.ReadResult) {
	fmt.Println("/// !!! AUTOGENERATED: DO NOT EDIT !!!")
	for _, r := range results {
		fmt.Printf("/// Database for %s (%s)\n", r.Spec.NodeType, r.Spec.Suffix)
		for _, e := range r.Entries {
			fmt.Printf("(%q, %s, %s),\n", e.Column, hex.EncodeToString(e.Key), hex.EncodeToString(e.Value))
		}
	}
}
