// Command compute runs a Compute node (spec §4.2): transaction
// admission, partition/PoW coordination, and block hand-off to Storage.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	log "github.com/sirupsen/logrus"

	"github.com/aurachain/node/internal/chainmodel"
	"github.com/aurachain/node/internal/compute"
	"github.com/aurachain/node/internal/nodecfg"
	"github.com/aurachain/node/internal/transport"
	"github.com/aurachain/node/pkg/config"
)

func main() {
	logger := log.New()

	var configPath string
	var index int
	var ip string
	var port int

	root := &cobra.Command{
		Use:   "compute",
		Short: "run a Compute node",
		RunE: func(cmd *cobra.Command, args []string) error {
			var listenOverride string
			if cmd.Flags().Changed("ip") || cmd.Flags().Changed("port") {
				if ip == "" {
					ip = "0.0.0.0"
				}
				listenOverride = fmt.Sprintf("%s:%d", ip, port)
			}
			return run(logger, configPath, index, listenOverride)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "configuration file (without extension)")
	root.Flags().IntVarP(&index, "index", "i", 0, "test-mode node index")
	root.Flags().StringVar(&ip, "ip", "0.0.0.0", "listen address override (defaults to 0.0.0.0)")
	root.Flags().IntVarP(&port, "port", "p", 0, "listen port override (defaults to 0, an ephemeral port)")

	if err := root.Execute(); err != nil {
		logger.WithError(err).Fatal("compute: fatal error")
		os.Exit(1)
	}
}

func run(logger *log.Logger, configPath string, index int, listenOverride string) error {
	cfg, err := config.Load(configPath, "")
	if err != nil {
		return err
	}
	ccfg, err := nodecfg.LoadCompute(cfg, index, nodecfg.Flags{ConfigPath: configPath, Index: index})
	if err != nil {
		return err
	}
	if listenOverride != "" {
		ccfg.Listen = listenOverride
	}

	ctx, cancel := signalContext()
	defer cancel()

	bus := transport.NewBus(256)
	host, err := transport.NewHost(ctx, ccfg.Listen, bus)
	if err != nil {
		return err
	}
	defer host.Close()

	peers := transport.NewPeerSet(host, bus, logger)
	peers.UseBroadcast(host)
	if ccfg.StorageAddr != "" {
		peers.ConnectInfoPeers([]string{ccfg.StorageAddr})
		peers.LoopsReConnectDisconnect(ctx, []string{ccfg.StorageAddr})
	}

	utxo := chainmodel.NewUTXOSet()
	engine := compute.NewEngine(ccfg.Engine, utxo, peers, bus, logger)

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(done)
	}()

	logger.Infof("compute: listening on %s, storage at %s", ccfg.Listen, ccfg.StorageAddr)
	engine.Run(done)
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
