package store

import (
	"testing"

	"github.com/aurachain/node/internal/testutil"
)

func TestMemStoreWriteBatchAtomic(t *testing.T) {
	s, err := Open(InMemoryMode(), "", "wallet", []string{"fund", "address"})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.Put("fund", []byte("k"), []byte("v1")); err != nil {
		t.Fatal(err)
	}

	err = s.WriteBatch([]Op{
		{Column: "fund", Key: []byte("k"), Value: []byte("v2")},
		{Column: "missing-column", Key: []byte("k"), Value: []byte("v3")},
	})
	if err == nil {
		t.Fatal("expected batch referencing unknown column to fail")
	}

	v, ok, err := s.Get("fund", []byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	if !ok || string(v) != "v1" {
		t.Fatalf("expected unmodified value v1, got %q ok=%v", v, ok)
	}
}

func TestMemStoreGetDeleteRoundTrip(t *testing.T) {
	s, err := Open(InMemoryMode(), "", "wallet", []string{"fund"})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.Put("fund", []byte("a"), []byte("1")); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("fund", []byte("a")); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Get("fund", []byte("a")); ok {
		t.Fatal("expected key to be gone after delete")
	}
}

func TestBoltStorePersistsAcrossReopen(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatal(err)
	}
	defer sb.Cleanup()

	mode := TestMode(1000)
	path := mode.Path(sb.Root, "blocks")
	if path == "" {
		t.Fatal("expected non-empty path for test mode")
	}

	s, err := Open(mode, sb.Root, "blocks", []string{"blocks", "hash_index"})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put("blocks", []byte{0, 0, 0, 0, 0, 0, 0, 1}, []byte("block-bytes")); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(mode, sb.Root, "blocks", []string{"blocks", "hash_index"})
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	v, ok, err := reopened.Get("blocks", []byte{0, 0, 0, 0, 0, 0, 0, 1})
	if err != nil {
		t.Fatal(err)
	}
	if !ok || string(v) != "block-bytes" {
		t.Fatalf("expected persisted value, got %q ok=%v", v, ok)
	}
}

func TestModePaths(t *testing.T) {
	if got := LiveMode().Path("/data", "wallet"); got != "/data/wallet.live" {
		t.Fatalf("unexpected live path: %s", got)
	}
	if got := TestMode(1003).Path("/data", "wallet"); got != "/data/wallet.test.1003" {
		t.Fatalf("unexpected test path: %s", got)
	}
	if got := InMemoryMode().Path("/data", "wallet"); got != "" {
		t.Fatalf("expected empty path for in-memory mode, got %s", got)
	}
}
