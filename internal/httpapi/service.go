// Package httpapi implements the User node's TLS-terminated HTTP wallet
// API (spec §6): GET /wallet_info, POST /make_payment, POST
// /make_ip_payment, POST /request_donation, GET /wallet_keypairs, POST
// /import_keypairs, POST /update_running_total, GET
// /wallet_encapsulation_data, GET /payment_address.
//
// Grounded on the teacher's walletserver controller/service/routes split
// (walletserver/controllers, walletserver/services, walletserver/routes),
// adapted from gorilla/mux to chi (the module's direct HTTP router
// dependency) and from the teacher's account-keyed HDWallet operations to
// this specification's FundStore/AddressStore-backed UTXO wallet. The
// wallet KV handle this Service drives is the same one the User node's
// main loop owns (internal/usernode.Node.Wallet), shared under the
// WalletDB's own mutex per spec §9.
package httpapi

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/aurachain/node/internal/chainmodel"
	"github.com/aurachain/node/internal/usernode"
	"github.com/aurachain/node/internal/wallet"
	"github.com/aurachain/node/pkg/utils"
)

// DefaultDonationAmount is requested when a caller does not specify one
// explicitly (the original's donation faucet used a fixed amount).
const DefaultDonationAmount wallet.TokenAmount = 1

// Service implements the wallet API's business logic over a User node's
// shared wallet handle, with direct peer-to-peer HTTP calls for the
// make_ip_payment / request_donation flows that address a peer by IP
// rather than by on-chain transaction.
type Service struct {
	node   *usernode.Node
	client *http.Client
	logger *log.Logger
}

// NewService constructs a Service bound to node's wallet and peer set.
func NewService(node *usernode.Node, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New()
	}
	return &Service{node: node, client: &http.Client{Timeout: 5 * time.Second}, logger: logger}
}

func (s *Service) wallet() *wallet.WalletDB { return s.node.Wallet() }

// FundStoreView is the JSON shape of GET /wallet_info: the running total
// plus the full set of unspent outputs this wallet currently tracks.
type FundStoreView struct {
	RunningTotal wallet.TokenAmount `json:"running_total"`
	Transactions []FundEntry        `json:"transactions"`
	Addresses    int                `json:"address_count"`
}

// FundEntry is one OutPoint -> amount pair in a FundStoreView.
type FundEntry struct {
	TxHash string             `json:"t_hash"`
	N      uint32             `json:"n"`
	Amount wallet.TokenAmount `json:"amount"`
}

// WalletInfo implements GET /wallet_info.
func (s *Service) WalletInfo() (*FundStoreView, error) {
	fs, err := s.wallet().GetFundStore()
	if err != nil {
		return nil, err
	}
	addrs, err := s.wallet().KnownAddresses()
	if err != nil {
		return nil, err
	}
	view := &FundStoreView{RunningTotal: fs.RunningTotal, Addresses: len(addrs)}
	for _, op := range fs.SortedOutPoints() {
		view.Transactions = append(view.Transactions, FundEntry{TxHash: op.THash, N: op.N, Amount: fs.Transactions[op]})
	}
	return view, nil
}

// MakePayment implements POST /make_payment: construct and flood a payment
// of amount to address via the User node's usual on-chain path.
func (s *Service) MakePayment(address string, amount wallet.TokenAmount) (*chainmodel.Transaction, error) {
	if amount == 0 {
		return nil, utils.NewError(utils.KindValidation, "amount must be positive", nil)
	}
	return s.node.MakePayment(amount, address)
}

// peerAddressResponse is the shape peerAddressAt expects back from a
// peer's own GET /payment_address.
type peerAddressResponse struct {
	Address string `json:"address"`
}

func (s *Service) peerAddressAt(ctx context.Context, ip string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://%s/payment_address", ip), nil)
	if err != nil {
		return "", utils.NewError(utils.KindNetwork, "build peer payment_address request", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", utils.NewError(utils.KindNetwork, "reach peer wallet API at "+ip, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", utils.NewError(utils.KindNetwork, fmt.Sprintf("peer %s returned status %d", ip, resp.StatusCode), nil)
	}
	var out peerAddressResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", utils.NewError(utils.KindNetwork, "decode peer payment_address response", err)
	}
	return out.Address, nil
}

// MakeIPPayment implements POST /make_ip_payment: resolve the destination
// address by asking the peer wallet API listening at ip for its current
// payment address, then pay it the usual on-chain way.
func (s *Service) MakeIPPayment(ctx context.Context, ip string, amount wallet.TokenAmount) (*chainmodel.Transaction, error) {
	addr, err := s.peerAddressAt(ctx, ip)
	if err != nil {
		return nil, err
	}
	return s.MakePayment(addr, amount)
}

// RequestDonation implements POST /request_donation: mint a fresh local
// payment address and ask the peer wallet API at ip to pay it.
func (s *Service) RequestDonation(ctx context.Context, ip string, amount wallet.TokenAmount) error {
	if amount == 0 {
		amount = DefaultDonationAmount
	}
	addr, _, err := s.wallet().GeneratePaymentAddress()
	if err != nil {
		return err
	}
	body, err := json.Marshal(map[string]any{"address": addr.Address, "amount": amount})
	if err != nil {
		return utils.NewError(utils.KindValidation, "encode donation request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("http://%s/make_payment", ip), bytes.NewReader(body))
	if err != nil {
		return utils.NewError(utils.KindNetwork, "build donation request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return utils.NewError(utils.KindNetwork, "reach peer wallet API at "+ip, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return utils.NewError(utils.KindNetwork, fmt.Sprintf("peer %s declined donation request (status %d)", ip, resp.StatusCode), nil)
	}
	return nil
}

// KeypairView is the public half of one wallet address's keys, the shape
// GET /wallet_keypairs returns (secret keys are never included in it).
type KeypairView struct {
	Address   string `json:"address"`
	PublicKey string `json:"public_key"`
}

// WalletKeypairs implements GET /wallet_keypairs.
func (s *Service) WalletKeypairs() ([]KeypairView, error) {
	stores, err := s.wallet().GetAddressStores()
	if err != nil {
		return nil, err
	}
	out := make([]KeypairView, 0, len(stores))
	for addr, as := range stores {
		out = append(out, KeypairView{Address: addr, PublicKey: hex.EncodeToString(as.PublicKey)})
	}
	return out, nil
}

// ImportKeypairs implements POST /import_keypairs: each entry carries a
// hex-encoded ed25519 public/secret key pair to adopt into this wallet.
func (s *Service) ImportKeypairs(entries []ImportKeypairRequest) ([]wallet.PaymentAddress, error) {
	out := make([]wallet.PaymentAddress, 0, len(entries))
	for _, e := range entries {
		pub, err := hex.DecodeString(e.PublicKey)
		if err != nil || len(pub) != ed25519.PublicKeySize {
			return nil, utils.NewError(utils.KindValidation, "malformed public_key", err)
		}
		priv, err := hex.DecodeString(e.SecretKey)
		if err != nil || len(priv) != ed25519.PrivateKeySize {
			return nil, utils.NewError(utils.KindValidation, "malformed secret_key", err)
		}
		addr, err := s.wallet().ImportKeypair(ed25519.PublicKey(pub), ed25519.PrivateKey(priv))
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

// ImportKeypairRequest is one entry of the POST /import_keypairs body.
type ImportKeypairRequest struct {
	PublicKey string `json:"public_key"`
	SecretKey string `json:"secret_key"`
}

// UpdateRunningTotal implements POST /update_running_total.
func (s *Service) UpdateRunningTotal() (wallet.TokenAmount, error) {
	return s.wallet().ReconcileRunningTotal()
}

// WalletEncapsulationData implements GET /wallet_encapsulation_data.
func (s *Service) WalletEncapsulationData() wallet.EncapsulationData {
	return s.wallet().EncapsulationData()
}

// PaymentAddress implements GET /payment_address: mint a fresh address.
func (s *Service) PaymentAddress() (wallet.PaymentAddress, error) {
	addr, _, err := s.wallet().GeneratePaymentAddress()
	return addr, err
}
