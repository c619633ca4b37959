package chainmodel

import (
	"crypto/ed25519"
	"testing"
)

func TestAssetAddSameVariant(t *testing.T) {
	a := NewTokenAsset(3)
	b := NewTokenAsset(5)
	sum, err := a.Add(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Token != 8 {
		t.Fatalf("expected 8, got %d", sum.Token)
	}
}

func TestAssetAddMismatchedVariant(t *testing.T) {
	a := NewTokenAsset(3)
	b := NewDataAsset([]byte("x"))
	if _, err := a.Add(b); err == nil {
		t.Fatal("expected error adding mismatched asset variants")
	}
}

func TestOutPointOrdering(t *testing.T) {
	a := OutPoint{THash: "aa", N: 1}
	b := OutPoint{THash: "aa", N: 2}
	c := OutPoint{THash: "bb", N: 0}
	if !a.Less(b) {
		t.Fatal("expected a < b by index")
	}
	if !b.Less(c) {
		t.Fatal("expected b < c by hash")
	}
	if CompareOutPoints(a, a) != 0 {
		t.Fatal("expected equal outpoints to compare 0")
	}
}

func TestTxInVerify(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	prev := OutPoint{THash: "deadbeef", N: 0}
	sig := ed25519.Sign(priv, []byte(prev.THash))
	in := TxIn{PrevOut: prev, Signatures: [][]byte{sig}, PubKeys: [][]byte{pub}}
	if err := in.Verify(); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}

	in.Signatures[0][0] ^= 0xFF
	if err := in.Verify(); err == nil {
		t.Fatal("expected tampered signature to fail verification")
	}
}

func TestTransactionHashStableWithoutSignatures(t *testing.T) {
	tx := Transaction{
		Inputs: []TxIn{{PrevOut: OutPoint{THash: "aa", N: 0}}},
		Outputs: []TxOut{
			{Asset: NewTokenAsset(10), Address: "addr1"},
		},
	}
	h1 := tx.Hash()

	pub, priv, _ := ed25519.GenerateKey(nil)
	tx.Inputs[0].Signatures = [][]byte{ed25519.Sign(priv, []byte("aa"))}
	tx.Inputs[0].PubKeys = [][]byte{pub}
	h2 := tx.Hash()

	if h1 != h2 {
		t.Fatalf("expected hash stable across signing: %s != %s", h1, h2)
	}
}

func TestCheckBalancedRejectsMismatch(t *testing.T) {
	utxo := map[OutPoint]TxOut{
		{THash: "src", N: 0}: {Asset: NewTokenAsset(10), Address: "a"},
	}
	lookup := func(op OutPoint) (TxOut, bool) { out, ok := utxo[op]; return out, ok }

	balanced := Transaction{
		Inputs:  []TxIn{{PrevOut: OutPoint{THash: "src", N: 0}}},
		Outputs: []TxOut{{Asset: NewTokenAsset(10), Address: "b"}},
	}
	if err := balanced.CheckBalanced(lookup); err != nil {
		t.Fatalf("expected balanced tx to pass, got %v", err)
	}

	unbalanced := Transaction{
		Inputs:  []TxIn{{PrevOut: OutPoint{THash: "src", N: 0}}},
		Outputs: []TxOut{{Asset: NewTokenAsset(11), Address: "b"}},
	}
	if err := unbalanced.CheckBalanced(lookup); err == nil {
		t.Fatal("expected unbalanced tx to be rejected")
	}
}

func TestCheckBalancedSkipsCoinbase(t *testing.T) {
	coinbase := Transaction{Outputs: []TxOut{{Asset: NewTokenAsset(50), Address: "miner"}}}
	if err := coinbase.CheckBalanced(func(OutPoint) (TxOut, bool) { return TxOut{}, false }); err != nil {
		t.Fatalf("coinbase should skip balance check, got %v", err)
	}
}

func TestMerkleRootOddDuplicatesLast(t *testing.T) {
	r1 := MerkleRoot([]string{"a", "b", "c"})
	r2 := MerkleRoot([]string{"a", "b", "c", "c"})
	if r1 != r2 {
		t.Fatalf("expected odd-length merkle root to duplicate last element: %s != %s", r1, r2)
	}
}

func TestUTXOApplyBlockAtomic(t *testing.T) {
	u := NewUTXOSet()
	genesis := OutPoint{THash: "genesis", N: 0}
	u.m = map[OutPoint]TxOut{genesis: {Asset: NewTokenAsset(100), Address: "a"}}

	tx := Transaction{
		Inputs:  []TxIn{{PrevOut: genesis}},
		Outputs: []TxOut{{Asset: NewTokenAsset(100), Address: "b"}},
	}
	blk := &Block{Transactions: []Transaction{tx}}

	if err := u.ApplyBlock(blk); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Has(genesis) {
		t.Fatal("expected spent outpoint to be removed")
	}
	produced := OutPoint{THash: tx.Hash(), N: 0}
	if !u.Has(produced) {
		t.Fatal("expected produced outpoint to be present")
	}
}

func TestUTXOApplyBlockRejectsMissingInput(t *testing.T) {
	u := NewUTXOSet()
	tx := Transaction{Inputs: []TxIn{{PrevOut: OutPoint{THash: "missing", N: 0}}}}
	blk := &Block{Transactions: []Transaction{tx}}
	if err := u.ApplyBlock(blk); err == nil {
		t.Fatal("expected error applying block with unknown input")
	}
	if u.Len() != 0 {
		t.Fatal("expected no partial mutation on failed apply")
	}
}
