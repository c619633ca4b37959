package wireproto

import (
	"bytes"
	"testing"

	"github.com/aurachain/node/internal/chainmodel"
)

func TestMessageValidateRejectsEmptyPayload(t *testing.T) {
	m := Message{Kind: KindBlockFound}
	if err := m.Validate(); err == nil {
		t.Fatal("expected error for missing payload")
	}
}

func TestMessageValidateRejectsUnknownKind(t *testing.T) {
	m := Message{Kind: "bogus"}
	if err := m.Validate(); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestFrameRoundTrip(t *testing.T) {
	msg := NewBlockSolution(chainmodel.BlockHeader{Height: 3}, 42, "miner-1:9000")
	var buf bytes.Buffer
	if err := WriteFrame(&buf, msg); err != nil {
		t.Fatal(err)
	}

	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != KindBlockSolution || got.BlockSolution.Nonce != 42 {
		t.Fatalf("unexpected round-tripped message: %+v", got)
	}
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x7F, 0xFF, 0xFF, 0xFF})
	if _, err := ReadFrame(&buf); err == nil {
		t.Fatal("expected oversized frame to be rejected")
	}
}

func TestPartitionListRoundTrip(t *testing.T) {
	msg := NewPartitionList([]string{"m1", "m2", "m3"})
	data, err := msg.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.PartitionList.Members) != 3 {
		t.Fatalf("expected 3 members, got %d", len(got.PartitionList.Members))
	}
}
