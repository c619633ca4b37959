package storagenode

import (
	"context"
	"testing"
	"time"

	"github.com/aurachain/node/internal/chainmodel"
	"github.com/aurachain/node/internal/raftlog"
	"github.com/aurachain/node/internal/store"
	"github.com/aurachain/node/internal/transport"
	"github.com/aurachain/node/internal/wireproto"
)

type recordingSession struct {
	out []wireproto.Message
}

func (s *recordingSession) Send(msg wireproto.Message) error {
	s.out = append(s.out, msg)
	return nil
}
func (s *recordingSession) Close() error { return nil }

type recordingDialer struct {
	sessions map[string]*recordingSession
}

func newRecordingDialer() *recordingDialer {
	return &recordingDialer{sessions: make(map[string]*recordingSession)}
}

func (d *recordingDialer) Dial(addr string) (transport.Session, error) {
	s := &recordingSession{}
	d.sessions[addr] = s
	return s, nil
}

func TestAppendBlockCommitsAndAcksCompute(t *testing.T) {
	bus := transport.NewBus(8)
	dialer := newRecordingDialer()
	peers := transport.NewPeerSet(dialer, bus, nil)
	peers.ConnectInfoPeers([]string{"compute-1"})

	cfg := Config{SnapshotInterval: 1000, ComputeAddr: "compute-1"}
	raftCfg := raftlog.Config{ID: 1, Peers: []uint64{1}, TickInterval: 5 * time.Millisecond}

	node, err := Open(store.InMemoryMode(), "", cfg, raftCfg, peers, bus, nil)
	if err != nil {
		t.Fatalf("open storage node: %v", err)
	}
	defer node.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go node.Run(ctx)

	block := chainmodel.Block{
		Header: chainmodel.BlockHeader{PrevHash: "genesis", MerkleRoot: "root", Height: 1},
		Transactions: []chainmodel.Transaction{{
			Outputs: []chainmodel.TxOut{{Asset: chainmodel.Asset{Kind: chainmodel.AssetToken, Token: 10}, Address: "addrA"}},
		}},
	}
	hash := block.Hash()

	deadline := time.After(3 * time.Second)
	for {
		if err := node.ProposeBlock(context.Background(), block); err == nil {
			break
		}
		select {
		case <-deadline:
			t.Fatal("propose never succeeded")
		case <-time.After(10 * time.Millisecond):
		}
	}

	waitUntil := time.Now().Add(3 * time.Second)
	for time.Now().Before(waitUntil) {
		if _, ok, _ := node.GetBlockByHash(hash); ok {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	got, ok, err := node.GetBlockByHash(hash)
	if err != nil || !ok {
		t.Fatalf("expected block retrievable by hash, ok=%v err=%v", ok, err)
	}
	if got.Header.Height != 1 {
		t.Fatalf("unexpected retrieved block: %+v", got)
	}

	byIndex, ok, err := node.GetBlock(node.LastApplied())
	if err != nil || !ok {
		t.Fatalf("expected block retrievable by last-applied index, ok=%v err=%v", ok, err)
	}
	if byIndex.Hash() != hash {
		t.Fatalf("block retrieved by index does not match block retrieved by hash")
	}

	sess := dialer.sessions["compute-1"]
	var acked bool
	for _, m := range sess.out {
		if m.Kind == wireproto.KindBlockStored && m.BlockStored.BlockHash == hash {
			acked = true
		}
	}
	if !acked {
		t.Fatal("expected BlockStored ack sent to compute address")
	}

	if node.LastApplied() == 0 {
		t.Fatal("expected last applied index to advance")
	}
}
