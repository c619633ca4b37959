// Command miner runs a Miner node (spec §4.2, §6): partition
// membership and proof-of-work search against a Compute node.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	log "github.com/sirupsen/logrus"

	"github.com/aurachain/node/internal/miner"
	"github.com/aurachain/node/internal/nodecfg"
	"github.com/aurachain/node/internal/transport"
	"github.com/aurachain/node/pkg/config"
)

func main() {
	logger := log.New()

	var configPath string
	var index int

	root := &cobra.Command{
		Use:   "miner",
		Short: "run a Miner node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(logger, configPath, index)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "configuration file (without extension)")
	root.Flags().IntVarP(&index, "index", "i", 0, "test-mode node index")

	if err := root.Execute(); err != nil {
		logger.WithError(err).Fatal("miner: fatal error")
		os.Exit(1)
	}
}

func run(logger *log.Logger, configPath string, index int) error {
	cfg, err := config.Load(configPath, "")
	if err != nil {
		return err
	}
	mcfg, err := nodecfg.LoadMiner(cfg, index)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	bus := transport.NewBus(256)
	host, err := transport.NewHost(ctx, mcfg.Listen, bus)
	if err != nil {
		return err
	}
	defer host.Close()

	peers := transport.NewPeerSet(host, bus, logger)
	if mcfg.ComputeAddr != "" {
		peers.ConnectInfoPeers([]string{mcfg.ComputeAddr})
		peers.LoopsReConnectDisconnect(ctx, []string{mcfg.ComputeAddr})
	}

	node := miner.New(miner.Config{Endpoint: mcfg.Listen, ComputeAddr: mcfg.ComputeAddr}, peers, bus, logger)
	node.RequestPartition()

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(done)
	}()

	logger.Infof("miner: listening on %s, compute at %s", mcfg.Listen, mcfg.ComputeAddr)
	node.Run(ctx, done)
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
