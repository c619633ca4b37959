// Package usernode implements the User node: wallet ownership, payment
// construction, UTXO observation, and the startup handshake with its
// peers (spec §4.4).
//
// Grounded on the teacher's wallet-server request handling for the
// "single DB handle shared under a mutex" discipline (spec §9), with
// payment construction itself delegated entirely to internal/wallet
// (FetchInputsForPayment already implements §4.4's algorithm bit-exact
// against the specification's test vectors).
package usernode

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/aurachain/node/internal/chainmodel"
	"github.com/aurachain/node/internal/transport"
	"github.com/aurachain/node/internal/wallet"
	"github.com/aurachain/node/internal/wireproto"
	"github.com/aurachain/node/pkg/utils"
)

// BlockSource resolves a block hash to its full contents. In production
// this is satisfied directly by an in-process *storagenode.Node (the
// specification names GetBlock only as an operation Storage's request
// loop services, without adding it to the closed wire-message union, so
// this repository treats same-process resolution as the integration
// point rather than inventing a ninth wire message).
type BlockSource interface {
	GetBlockByHash(hash string) (*chainmodel.Block, bool, error)
}

// Config carries the User node's peer addresses and timeouts.
type Config struct {
	ComputeAddr    string
	PeerAddrs      []string
	StartupRetries int
	StartupTimeout time.Duration
}

// DefaultConfig fills in reasonable startup-handshake bounds.
func DefaultConfig() Config {
	return Config{StartupRetries: 5, StartupTimeout: 5 * time.Second}
}

// Node owns one User role's wallet handle, UTXO view, and peer set.
type Node struct {
	cfg    Config
	wallet *wallet.WalletDB
	utxo   *chainmodel.UTXOSet
	peers  *transport.PeerSet
	bus    *transport.Bus
	blocks BlockSource
	logger *log.Logger
}

// New constructs a User node around an already-open wallet handle.
func New(cfg Config, wdb *wallet.WalletDB, utxo *chainmodel.UTXOSet, peers *transport.PeerSet, bus *transport.Bus, blocks BlockSource, logger *log.Logger) *Node {
	if logger == nil {
		logger = log.New()
	}
	return &Node{cfg: cfg, wallet: wdb, utxo: utxo, peers: peers, bus: bus, blocks: blocks, logger: logger}
}

// Wallet returns the node's wallet handle, the shared resource the HTTP
// API mutex-guards alongside this node's own main loop (spec §9).
func (n *Node) Wallet() *wallet.WalletDB { return n.wallet }

// SendStartupRequests dials this User's configured peers and blocks until
// every peer has an active session, retrying the wait up to StartupRetries
// times (spec §4.4 send_startup_requests / §4.1 hard precondition for
// downstream loops). It sends no announcement message of its own: peers
// learn of this User only through the session it opens.
func (n *Node) SendStartupRequests(ctx context.Context) error {
	_, pending := n.peers.ConnectInfoPeers(n.cfg.PeerAddrs)
	if len(pending) > 0 {
		n.peers.LoopsReConnectDisconnect(ctx, n.cfg.PeerAddrs)
	}

	attempts := n.cfg.StartupRetries
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		attemptCtx, cancel := context.WithTimeout(ctx, n.cfg.StartupTimeout)
		lastErr = n.peers.LoopWaitConnectToPeersAsync(attemptCtx, n.cfg.PeerAddrs)
		cancel()
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return utils.NewError(utils.KindNetwork, "send_startup_requests: peers unreachable after bounded retries", lastErr)
}

// MakePayment constructs and submits a payment of amount to destAddress,
// following spec §4.4's payment-construction algorithm via
// wallet.FetchInputsForPayment, then floods the resulting transaction to
// Compute.
func (n *Node) MakePayment(amount wallet.TokenAmount, destAddress string) (*chainmodel.Transaction, error) {
	result, err := n.wallet.FetchInputsForPayment(amount)
	if err != nil {
		return nil, err
	}

	outputs := []chainmodel.TxOut{{Asset: chainmodel.NewTokenAsset(uint64(amount)), Address: destAddress}}
	if result.ChangeOut != nil {
		outputs = append(outputs, *result.ChangeOut)
	}
	tx := chainmodel.Transaction{Inputs: result.Inputs, Outputs: outputs}

	if result.ChangeOut != nil {
		changeOp := chainmodel.OutPoint{THash: tx.Hash(), N: uint32(len(outputs) - 1)}
		if err := n.wallet.SaveTransactionToWallet(changeOp, result.ChangeAddr); err != nil {
			n.logger.WithError(err).Error("usernode: record pending change output")
		}
	}

	n.peers.Send(n.cfg.ComputeAddr, wireproto.NewSendTransactions([]chainmodel.Transaction{tx}))
	return &tx, nil
}

// ObserveBlock updates the local UTXO view and credits every output this
// wallet owns, confirming any pending change output recorded by a prior
// MakePayment and discovering any output newly received at a known
// address (spec §4.4 step 4, §2 "Users observe their spent/received
// outputs").
func (n *Node) ObserveBlock(block *chainmodel.Block) error {
	if err := n.utxo.ApplyBlock(block); err != nil {
		return fmt.Errorf("usernode: apply observed block to utxo view: %w", err)
	}

	knownAddrs, err := n.wallet.KnownAddresses()
	if err != nil {
		return err
	}
	owned := make(map[string]bool, len(knownAddrs))
	for _, a := range knownAddrs {
		owned[a] = true
	}

	for _, tx := range block.Transactions {
		hash := tx.Hash()
		for i, out := range tx.Outputs {
			if out.Asset.Kind != chainmodel.AssetToken || !owned[out.Address] {
				continue
			}
			op := chainmodel.OutPoint{THash: hash, N: uint32(i)}
			if _, err := n.wallet.GetTransactionStore(op); err != nil {
				if err := n.wallet.SaveTransactionToWallet(op, wallet.PaymentAddress{Address: out.Address, Net: wallet.NetworkVersion}); err != nil {
					n.logger.WithError(err).Error("usernode: record newly observed payment")
					continue
				}
			}
			if err := n.wallet.SavePaymentToWallet(op, wallet.TokenAmount(out.Asset.Token)); err != nil {
				n.logger.WithError(err).Error("usernode: credit observed payment")
			}
		}
	}
	return nil
}

// Run services the bus until done fires: a BlockFound notification
// resolves the block via BlockSource and feeds it to ObserveBlock.
func (n *Node) Run(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case ev, ok := <-n.bus.Events():
			if !ok {
				return
			}
			n.handleEvent(ev)
		}
	}
}

func (n *Node) handleEvent(ev transport.Event) {
	if ev.Kind != transport.EventMessage || ev.Message.Kind != wireproto.KindBlockFound {
		return
	}
	if ev.Message.BlockFound == nil || n.blocks == nil {
		return
	}
	block, ok, err := n.blocks.GetBlockByHash(ev.Message.BlockFound.BlockHash)
	if err != nil {
		n.logger.WithError(err).Error("usernode: resolve block announced by block_found")
		return
	}
	if !ok {
		n.logger.Warnf("usernode: block_found for unknown hash %s", ev.Message.BlockFound.BlockHash)
		return
	}
	if err := n.ObserveBlock(block); err != nil {
		n.logger.WithError(err).Error("usernode: observe block")
	}
}
