package compute

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/aurachain/node/internal/chainmodel"
	"github.com/aurachain/node/internal/transport"
	"github.com/aurachain/node/internal/wireproto"
)

func coinbaseTx(address string, amount uint64) chainmodel.Transaction {
	return chainmodel.Transaction{
		Outputs: []chainmodel.TxOut{{Asset: chainmodel.Asset{Kind: chainmodel.AssetToken, Token: amount}, Address: address}},
	}
}

func signedSpend(t *testing.T, op chainmodel.OutPoint, pub ed25519.PublicKey, priv ed25519.PrivateKey, amount uint64, address string) chainmodel.Transaction {
	t.Helper()
	sig := ed25519.Sign(priv, []byte(op.THash))
	return chainmodel.Transaction{
		Inputs:  []chainmodel.TxIn{{PrevOut: op, Signatures: [][]byte{sig}, PubKeys: [][]byte{pub}}},
		Outputs: []chainmodel.TxOut{{Asset: chainmodel.Asset{Kind: chainmodel.AssetToken, Token: amount}, Address: address}},
	}
}

func TestMempoolAdmitRejectsDoubleSpend(t *testing.T) {
	utxo := chainmodel.NewUTXOSet()
	pub, priv, _ := ed25519.GenerateKey(nil)
	funding := coinbaseTx("addrA", 10)
	fundingHash := funding.Hash()
	op := chainmodel.OutPoint{THash: fundingHash, N: 0}
	utxo.ApplyBlock(&chainmodel.Block{Transactions: []chainmodel.Transaction{funding}})

	spend1 := signedSpend(t, op, pub, priv, 10, "addrB")
	spend2 := signedSpend(t, op, pub, priv, 10, "addrC")

	mp := NewMempool(0)
	r1 := mp.Admit(spend1, utxo)
	if !r1.Admitted {
		t.Fatalf("expected first spend admitted, got reason %q", r1.Reason)
	}
	r2 := mp.Admit(spend2, utxo)
	if r2.Admitted {
		t.Fatal("expected double-spend of same outpoint to be rejected")
	}
}

func TestPartitionListCapsAndFillsOnce(t *testing.T) {
	pl := NewPartitionList(2)
	_, full1 := pl.Add("m1")
	if full1 {
		t.Fatal("expected not full after first member")
	}
	_, full2 := pl.Add("m2")
	if !full2 {
		t.Fatal("expected full after second member reaches cap")
	}
	length, full3 := pl.Add("m3")
	if full3 || length != 2 {
		t.Fatalf("expected third add to be ignored once capped, got length=%d full=%v", length, full3)
	}
}

func TestEngineReceiveTransactionsAllAdmittedResponse(t *testing.T) {
	utxo := chainmodel.NewUTXOSet()
	bus := transport.NewBus(8)
	engine := NewEngine(DefaultConfig(), utxo, transport.NewPeerSet(nil, bus, nil), bus, nil)

	resp := engine.ReceiveTransactions([]chainmodel.Transaction{coinbaseTx("addrA", 5)})
	if !resp.Success {
		t.Fatalf("expected success response, got %+v", resp)
	}
	if engine.Phase() != PhaseAccumulating {
		t.Fatalf("expected phase Accumulating after first admission, got %s", engine.Phase())
	}
}

func TestPartitionCompletionFloodsListAndChallengeOnce(t *testing.T) {
	utxo := chainmodel.NewUTXOSet()
	bus := transport.NewBus(8)
	dialer := newCountingDialer()
	peers := transport.NewPeerSet(dialer, bus, nil)
	peers.ConnectInfoPeers([]string{"m1", "m2"})

	cfg := DefaultConfig()
	cfg.PartitionSize = 2
	engine := NewEngine(cfg, utxo, peers, bus, nil)
	engine.ReceiveTransactions([]chainmodel.Transaction{coinbaseTx("addrA", 5)})

	engine.handlePartitionRequest(&wireproto.PartitionRequest{MinerEndpoint: "m1"})
	engine.handlePartitionRequest(&wireproto.PartitionRequest{MinerEndpoint: "m2"})

	if engine.Phase() != PhaseChallenging {
		t.Fatalf("expected Challenging phase after partition fills, got %s", engine.Phase())
	}
	if engine.parts.Len() != 2 {
		t.Fatalf("expected partition list to retain its 2 members until round reset, got %d", engine.parts.Len())
	}

	for _, addr := range []string{"m1", "m2"} {
		sess := dialer.sessions[addr]
		sent := sess.sent()
		if len(sent) != 2 {
			t.Fatalf("expected %s to receive exactly PartitionList then BlockChallenge, got %d messages", addr, len(sent))
		}
		if sent[0].Kind != wireproto.KindPartitionList || sent[1].Kind != wireproto.KindBlockChallenge {
			t.Fatalf("unexpected message order for %s: %v", addr, sent)
		}
	}
}

// countingDialer / countingSession mirror the transport package's own test
// doubles, duplicated here since those are unexported.
type countingSession struct {
	out []wireproto.Message
}

func (s *countingSession) Send(msg wireproto.Message) error {
	s.out = append(s.out, msg)
	return nil
}
func (s *countingSession) Close() error { return nil }
func (s *countingSession) sent() []wireproto.Message {
	out := make([]wireproto.Message, len(s.out))
	copy(out, s.out)
	return out
}

type countingDialer struct {
	sessions map[string]*countingSession
}

func newCountingDialer() *countingDialer {
	return &countingDialer{sessions: make(map[string]*countingSession)}
}

func (d *countingDialer) Dial(addr string) (transport.Session, error) {
	s := &countingSession{}
	d.sessions[addr] = s
	return s, nil
}

func TestStorageRoundTripAppliesBlockAndResetsRound(t *testing.T) {
	utxo := chainmodel.NewUTXOSet()
	bus := transport.NewBus(16)
	dialer := newCountingDialer()
	peers := transport.NewPeerSet(dialer, bus, nil)
	peers.ConnectInfoPeers([]string{"storage-1", "m1"})

	cfg := DefaultConfig()
	cfg.PartitionSize = 1
	cfg.StorageAddr = "storage-1"
	cfg.StorageSendTimeout = 2 * time.Second
	for i := range cfg.Target {
		cfg.Target[i] = 0xff // permissive target: any digest satisfies H < target
	}
	engine := NewEngine(cfg, utxo, peers, bus, nil)

	engine.ReceiveTransactions([]chainmodel.Transaction{coinbaseTx("addrA", 5)})
	engine.handlePartitionRequest(&wireproto.PartitionRequest{MinerEndpoint: "m1"})
	if engine.Phase() != PhaseChallenging {
		t.Fatalf("expected Challenging, got %s", engine.Phase())
	}

	header := engine.challengeHeader
	engine.handleBlockSolution(&wireproto.BlockSolution{Header: header, Nonce: 0, MinerEndpoint: "m1"})
	if engine.Phase() != PhaseAssembling {
		t.Fatalf("expected Assembling after valid solution, got %s", engine.Phase())
	}

	deadline := time.Now().Add(2 * time.Second)
	var sawAppendBlock bool
	for time.Now().Before(deadline) {
		sent := dialer.sessions["storage-1"].sent()
		if len(sent) > 0 && sent[0].Kind == wireproto.KindAppendBlock {
			sawAppendBlock = true
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !sawAppendBlock {
		t.Fatal("expected AppendBlock to be sent to storage")
	}

	blockHash := dialer.sessions["storage-1"].sent()[0].AppendBlock.Block.Hash()
	engine.handleBlockStored(&wireproto.BlockStored{BlockHash: blockHash})

	if engine.Phase() != PhaseIdle {
		t.Fatalf("expected Idle after block stored and round reset, got %s", engine.Phase())
	}
	if engine.parts.Len() != 0 {
		t.Fatal("expected partition list reset after round completes")
	}

	foundSent := dialer.sessions["m1"].sent()
	var sawFound bool
	for _, m := range foundSent {
		if m.Kind == wireproto.KindBlockFound {
			sawFound = true
		}
	}
	if !sawFound {
		t.Fatal("expected BlockFound flooded to partition after block stored")
	}
}
