package raftlog

import (
	"context"
	"testing"
	"time"

	"go.etcd.io/etcd/raft/v3/raftpb"
)

func TestSingleNodeProposeCommits(t *testing.T) {
	n := New(Config{
		ID:            1,
		Peers:         []uint64{1},
		TickInterval:  5 * time.Millisecond,
		SnapshotEvery: 1000,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Run(ctx)
	defer n.Close()

	deadline := time.After(3 * time.Second)
	for {
		if err := n.Propose(context.Background(), []byte("hello")); err == nil {
			break
		}
		select {
		case <-deadline:
			t.Fatal("propose never succeeded")
		case <-time.After(10 * time.Millisecond):
		}
	}

	select {
	case entry := <-n.CommittedEntries():
		if entry.Type != raftpb.EntryNormal {
			t.Fatalf("expected normal entry, got %v", entry.Type)
		}
		if string(entry.Data) != "hello" {
			t.Fatalf("unexpected committed payload: %q", entry.Data)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for committed entry")
	}

	if n.AppliedIndex() == 0 {
		t.Fatal("expected applied index to advance past zero")
	}
}

func TestNoopTransportDropsMessages(t *testing.T) {
	var tr NoopTransport
	tr.Send([]raftpb.Message{{}, {}})
}
