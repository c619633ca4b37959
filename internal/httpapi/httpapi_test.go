package httpapi

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aurachain/node/internal/chainmodel"
	"github.com/aurachain/node/internal/store"
	"github.com/aurachain/node/internal/transport"
	"github.com/aurachain/node/internal/usernode"
	"github.com/aurachain/node/internal/wallet"
	"github.com/aurachain/node/internal/wireproto"
)

type noopSession struct{}

func (noopSession) Send(_ wireproto.Message) error { return nil }
func (noopSession) Close() error                   { return nil }

type noopDialer struct{}

func (noopDialer) Dial(addr string) (transport.Session, error) { return noopSession{}, nil }

func newTestServer(t *testing.T) (*httptest.Server, *wallet.WalletDB) {
	t.Helper()
	wdb, err := wallet.Open(store.InMemoryMode(), "", "")
	if err != nil {
		t.Fatalf("open wallet: %v", err)
	}
	utxo := chainmodel.NewUTXOSet()
	bus := transport.NewBus(8)
	peers := transport.NewPeerSet(noopDialer{}, bus, nil)

	node := usernode.New(usernode.DefaultConfig(), wdb, utxo, peers, bus, nil, nil)
	svc := NewService(node, nil)
	ctrl := NewController(svc)
	ts := httptest.NewServer(Routes(ctrl, nil))
	t.Cleanup(ts.Close)
	return ts, wdb
}

func TestWalletInfoReturnsEmptyFundStoreOnFreshWallet(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/wallet_info")
	if err != nil {
		t.Fatalf("get wallet_info: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var view FundStoreView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.RunningTotal != 0 || len(view.Transactions) != 0 {
		t.Fatalf("expected empty fund store, got %+v", view)
	}
}

func TestPaymentAddressMintsFreshAddress(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/payment_address")
	if err != nil {
		t.Fatalf("get payment_address: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var addr wallet.PaymentAddress
	if err := json.NewDecoder(resp.Body).Decode(&addr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if addr.Address == "" {
		t.Fatalf("expected non-empty address")
	}
}

func TestMakePaymentRejectsZeroAmount(t *testing.T) {
	ts, _ := newTestServer(t)

	body, _ := json.Marshal(makePaymentRequest{Address: "dest", Amount: 0})
	resp, err := http.Post(ts.URL+"/make_payment", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post make_payment: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero amount, got %d", resp.StatusCode)
	}
}

func TestMakePaymentInsufficientFundsReturns400(t *testing.T) {
	ts, _ := newTestServer(t)

	body, _ := json.Marshal(makePaymentRequest{Address: "dest", Amount: 1000})
	resp, err := http.Post(ts.URL+"/make_payment", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post make_payment: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for insufficient funds, got %d", resp.StatusCode)
	}
}

func TestWalletKeypairsListsImportedKey(t *testing.T) {
	ts, _ := newTestServer(t)

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	body, _ := json.Marshal([]ImportKeypairRequest{{PublicKey: hex.EncodeToString(pub), SecretKey: hex.EncodeToString(priv)}})
	resp, err := http.Post(ts.URL+"/import_keypairs", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post import_keypairs: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	kpResp, err := http.Get(ts.URL + "/wallet_keypairs")
	if err != nil {
		t.Fatalf("get wallet_keypairs: %v", err)
	}
	defer kpResp.Body.Close()
	var keys []KeypairView
	if err := json.NewDecoder(kpResp.Body).Decode(&keys); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("expected one imported keypair, got %d", len(keys))
	}
}

func TestWalletEncapsulationDataReportsUnencryptedInMemoryWallet(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/wallet_encapsulation_data")
	if err != nil {
		t.Fatalf("get wallet_encapsulation_data: %v", err)
	}
	defer resp.Body.Close()
	var data wallet.EncapsulationData
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.Encrypted {
		t.Fatalf("expected unencrypted passphrase-less wallet to report Encrypted=false")
	}
}

func TestUpdateRunningTotalReconcilesAfterDirectCredit(t *testing.T) {
	ts, wdb := newTestServer(t)

	addr, _, err := wdb.GeneratePaymentAddress()
	if err != nil {
		t.Fatalf("generate address: %v", err)
	}
	op := chainmodel.OutPoint{THash: "h1", N: 0}
	if err := wdb.SaveTransactionToWallet(op, addr); err != nil {
		t.Fatalf("save transaction: %v", err)
	}
	if err := wdb.SavePaymentToWallet(op, 5); err != nil {
		t.Fatalf("save payment: %v", err)
	}

	resp, err := http.Post(ts.URL+"/update_running_total", "application/json", nil)
	if err != nil {
		t.Fatalf("post update_running_total: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var out map[string]wallet.TokenAmount
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["running_total"] != 5 {
		t.Fatalf("expected reconciled running total 5, got %d", out["running_total"])
	}
}
