// Command storage runs a Storage node (spec §4.3): the Raft-replicated
// block log and its atomic persistence.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	log "github.com/sirupsen/logrus"

	"github.com/aurachain/node/internal/nodecfg"
	"github.com/aurachain/node/internal/raftlog"
	"github.com/aurachain/node/internal/storagenode"
	"github.com/aurachain/node/internal/transport"
	"github.com/aurachain/node/pkg/config"
)

func main() {
	logger := log.New()

	var configPath string
	var index int

	root := &cobra.Command{
		Use:   "storage",
		Short: "run a Storage node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(logger, configPath, index)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "configuration file (without extension)")
	root.Flags().IntVarP(&index, "index", "i", 0, "test-mode node index")

	if err := root.Execute(); err != nil {
		logger.WithError(err).Fatal("storage: fatal error")
		os.Exit(1)
	}
}

func run(logger *log.Logger, configPath string, index int) error {
	cfg, err := config.Load(configPath, "")
	if err != nil {
		return err
	}
	scfg, err := nodecfg.LoadStorage(cfg, index)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	bus := transport.NewBus(256)
	host, err := transport.NewHost(ctx, scfg.Listen, bus)
	if err != nil {
		return err
	}
	defer host.Close()

	peers := transport.NewPeerSet(host, bus, logger)
	if scfg.ComputeAddr != "" {
		peers.ConnectInfoPeers([]string{scfg.ComputeAddr})
		peers.LoopsReConnectDisconnect(ctx, []string{scfg.ComputeAddr})
	}

	raftCfg := raftlog.Config{ID: uint64(index) + 1, Peers: []uint64{uint64(index) + 1}, Logger: logger}
	node, err := storagenode.Open(scfg.Mode, scfg.Base, scfg.Node, raftCfg, peers, bus, logger)
	if err != nil {
		return err
	}
	defer node.Close()

	logger.Infof("storage: listening on %s, compute at %s", scfg.Listen, scfg.ComputeAddr)
	node.Run(ctx)
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()
	return ctx, cancel
}
