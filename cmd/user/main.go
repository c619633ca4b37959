// Command user runs a User node (spec §4.4): wallet ownership, payment
// construction, and the HTTP wallet API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	log "github.com/sirupsen/logrus"

	"github.com/aurachain/node/internal/chainmodel"
	"github.com/aurachain/node/internal/httpapi"
	"github.com/aurachain/node/internal/nodecfg"
	"github.com/aurachain/node/internal/transport"
	"github.com/aurachain/node/internal/usernode"
	"github.com/aurachain/node/internal/wallet"
	"github.com/aurachain/node/pkg/config"
)

// startupPayment carries a one-shot --amount/--peer_user_index request to
// pay a configured peer User node as soon as startup handshakes complete.
type startupPayment struct {
	PeerUserIndex int
	Amount        uint64
}

func main() {
	logger := log.New()

	var configPath string
	var index int
	var apiPort int
	var passphrase string
	var computeIndex int
	var peerUserIndex int
	var amount uint64

	root := &cobra.Command{
		Use:   "user",
		Short: "run a User node",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := nodecfg.Flags{
				ConfigPath:    configPath,
				Index:         index,
				APIPort:       apiPort,
				Passphrase:    passphrase,
				ComputeIndex:  computeIndex,
				PeerUserIndex: peerUserIndex,
			}
			var payment *startupPayment
			if cmd.Flags().Changed("amount") {
				payment = &startupPayment{PeerUserIndex: peerUserIndex, Amount: amount}
			}
			return run(logger, configPath, index, flags, payment)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "configuration file (without extension)")
	root.Flags().IntVarP(&index, "index", "i", 0, "test-mode node index")
	root.Flags().IntVar(&apiPort, "api_port", 0, "HTTP wallet API port override")
	root.Flags().StringVar(&passphrase, "passphrase", "", "wallet secret-key encryption passphrase")
	root.Flags().IntVar(&computeIndex, "compute_index", -1, "configured Compute node to attach to")
	root.Flags().IntVar(&peerUserIndex, "peer_user_index", 0, "configured peer User node to pay at startup")
	root.Flags().Uint64VarP(&amount, "amount", "a", 0, "amount of tokens to send the peer user node at startup")

	if err := root.Execute(); err != nil {
		logger.WithError(err).Fatal("user: fatal error")
		os.Exit(1)
	}
}

func run(logger *log.Logger, configPath string, index int, flags nodecfg.Flags, payment *startupPayment) error {
	cfg, err := config.Load(configPath, "")
	if err != nil {
		return err
	}
	ucfg, err := nodecfg.LoadUser(cfg, index, flags)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	bus := transport.NewBus(256)
	host, err := transport.NewHost(ctx, ucfg.Listen, bus)
	if err != nil {
		return err
	}
	defer host.Close()

	peers := transport.NewPeerSet(host, bus, logger)

	wdb, err := wallet.Open(ucfg.Mode, ucfg.Base, ucfg.Passphrase)
	if err != nil {
		return err
	}
	defer wdb.Close()

	utxo := chainmodel.NewUTXOSet()
	node := usernode.New(ucfg.User, wdb, utxo, peers, bus, nil, logger)

	if err := node.SendStartupRequests(ctx); err != nil {
		logger.WithError(err).Warn("user: startup handshake did not complete, continuing")
	}

	svc := httpapi.NewService(node, logger)

	if payment != nil && payment.Amount > 0 {
		if payment.PeerUserIndex < 0 || payment.PeerUserIndex >= len(cfg.UserNodes) {
			return fmt.Errorf("user: peer_user_index %d out of range (%d configured)", payment.PeerUserIndex, len(cfg.UserNodes))
		}
		peerIP := cfg.UserNodes[payment.PeerUserIndex].Address
		logger.Infof("user: paying %d to peer user node at %s", payment.Amount, peerIP)
		if _, err := svc.MakeIPPayment(ctx, peerIP, wallet.TokenAmount(payment.Amount)); err != nil {
			logger.WithError(err).Warn("user: startup payment failed, continuing")
		}
	}

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(done)
	}()
	go node.Run(done)

	server := httpapi.NewServer(fmt.Sprintf(":%d", ucfg.APIPort), svc, logger)
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Infof("user: listening on %s, wallet API on :%d", ucfg.Listen, ucfg.APIPort)
	return server.ListenAndServe()
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
