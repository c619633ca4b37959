package usernode

import (
	"testing"

	"github.com/aurachain/node/internal/chainmodel"
	"github.com/aurachain/node/internal/store"
	"github.com/aurachain/node/internal/transport"
	"github.com/aurachain/node/internal/wallet"
	"github.com/aurachain/node/internal/wireproto"
)

type fakeSession struct {
	out []wireproto.Message
}

func (f *fakeSession) Send(msg wireproto.Message) error {
	f.out = append(f.out, msg)
	return nil
}
func (f *fakeSession) Close() error { return nil }

type fakeDialer struct {
	sessions map[string]*fakeSession
}

func newFakeDialer() *fakeDialer { return &fakeDialer{sessions: make(map[string]*fakeSession)} }

func (d *fakeDialer) Dial(addr string) (transport.Session, error) {
	s := &fakeSession{}
	d.sessions[addr] = s
	return s, nil
}

type fakeBlockSource struct {
	byHash map[string]*chainmodel.Block
}

func (f *fakeBlockSource) GetBlockByHash(hash string) (*chainmodel.Block, bool, error) {
	b, ok := f.byHash[hash]
	return b, ok, nil
}

func newTestNode(t *testing.T) (*Node, *wallet.WalletDB, *fakeDialer) {
	t.Helper()
	wdb, err := wallet.Open(store.InMemoryMode(), "", "")
	if err != nil {
		t.Fatalf("open wallet: %v", err)
	}
	utxo := chainmodel.NewUTXOSet()
	bus := transport.NewBus(8)
	dialer := newFakeDialer()
	peers := transport.NewPeerSet(dialer, bus, nil)
	peers.ConnectInfoPeers([]string{"compute-1"})

	cfg := DefaultConfig()
	cfg.ComputeAddr = "compute-1"
	node := New(cfg, wdb, utxo, peers, bus, &fakeBlockSource{byHash: make(map[string]*chainmodel.Block)}, nil)
	return node, wdb, dialer
}

func TestMakePaymentFloodsTransactionAndRecordsPendingChange(t *testing.T) {
	node, wdb, dialer := newTestNode(t)

	addr, _, err := wdb.GeneratePaymentAddress()
	if err != nil {
		t.Fatalf("generate address: %v", err)
	}
	if err := wdb.SaveTransactionToWallet(chainmodel.OutPoint{THash: "h1", N: 0}, addr); err != nil {
		t.Fatalf("save transaction: %v", err)
	}
	if err := wdb.SavePaymentToWallet(chainmodel.OutPoint{THash: "h1", N: 0}, 10); err != nil {
		t.Fatalf("save payment: %v", err)
	}

	tx, err := node.MakePayment(3, "dest-addr")
	if err != nil {
		t.Fatalf("make payment: %v", err)
	}
	if len(tx.Outputs) != 2 {
		t.Fatalf("expected destination + change outputs, got %d", len(tx.Outputs))
	}

	sent := dialer.sessions["compute-1"].out
	if len(sent) != 1 || sent[0].Kind != wireproto.KindSendTransactions {
		t.Fatalf("expected one send_transactions flood, got %v", sent)
	}
	if len(sent[0].SendTransactions.Txs) != 1 {
		t.Fatalf("expected exactly one transaction in the flood")
	}
}

func TestObserveBlockCreditsNewlyOwnedOutput(t *testing.T) {
	node, wdb, _ := newTestNode(t)

	addr, _, err := wdb.GeneratePaymentAddress()
	if err != nil {
		t.Fatalf("generate address: %v", err)
	}

	block := &chainmodel.Block{
		Transactions: []chainmodel.Transaction{{
			Outputs: []chainmodel.TxOut{{Asset: chainmodel.NewTokenAsset(7), Address: addr.Address}},
		}},
	}

	if err := node.ObserveBlock(block); err != nil {
		t.Fatalf("observe block: %v", err)
	}

	fs, err := wdb.GetFundStore()
	if err != nil {
		t.Fatalf("get fund store: %v", err)
	}
	if fs.RunningTotal != 7 {
		t.Fatalf("expected running total 7 after observing owned output, got %d", fs.RunningTotal)
	}
}
