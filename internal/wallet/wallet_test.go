package wallet

import (
	"testing"

	"github.com/aurachain/node/internal/chainmodel"
	"github.com/aurachain/node/internal/store"
)

func TestConstructAddressVectorS1(t *testing.T) {
	pub := []byte{
		196, 234, 50, 92, 76, 102, 62, 4, 231, 81, 211, 133, 33, 164, 134, 52,
		44, 68, 174, 18, 14, 59, 108, 187, 150, 190, 169, 229, 215, 130, 78, 78,
	}
	addr := ConstructAddress(pub, 0)
	if addr.Address != "fd86f2230f4fd5bfd9cd882732792279" {
		t.Fatalf("unexpected address: %s", addr.Address)
	}
	if len(addr.Address) != 32 {
		t.Fatalf("expected 32-char address, got %d", len(addr.Address))
	}
}

func newTestWallet(t *testing.T) *WalletDB {
	t.Helper()
	w, err := Open(store.InMemoryMode(), "", "")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func fundWith(t *testing.T, w *WalletDB, hash string, amount TokenAmount) chainmodel.OutPoint {
	t.Helper()
	addr, _, err := w.GeneratePaymentAddress()
	if err != nil {
		t.Fatal(err)
	}
	op := chainmodel.OutPoint{THash: hash, N: 0}
	if err := w.SaveTransactionToWallet(op, addr); err != nil {
		t.Fatal(err)
	}
	if err := w.SavePaymentToWallet(op, amount); err != nil {
		t.Fatal(err)
	}
	return op
}

func TestPaymentWithExactFundsS2(t *testing.T) {
	w := newTestWallet(t)
	fundWith(t, w, "h1", 3)
	fundWith(t, w, "h2", 5)

	result, err := w.FetchInputsForPayment(8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Inputs) != 2 {
		t.Fatalf("expected 2 inputs, got %d", len(result.Inputs))
	}
	if result.ChangeOut != nil {
		t.Fatalf("expected no change output, got %+v", result.ChangeOut)
	}

	fs, err := w.GetFundStore()
	if err != nil {
		t.Fatal(err)
	}
	if fs.RunningTotal != 0 {
		t.Fatalf("expected running_total 0, got %d", fs.RunningTotal)
	}
	if len(fs.Transactions) != 0 {
		t.Fatalf("expected empty transactions, got %d", len(fs.Transactions))
	}
}

func TestPaymentWithChangeS3(t *testing.T) {
	w := newTestWallet(t)
	addr, _, err := w.GeneratePaymentAddress()
	if err != nil {
		t.Fatal(err)
	}
	op := chainmodel.OutPoint{THash: "h1", N: 0}
	if err := w.SaveTransactionToWallet(op, addr); err != nil {
		t.Fatal(err)
	}
	if err := w.SavePaymentToWallet(op, 10); err != nil {
		t.Fatal(err)
	}

	result, err := w.FetchInputsForPayment(3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Inputs) != 1 {
		t.Fatalf("expected 1 input, got %d", len(result.Inputs))
	}
	if result.ChangeOut == nil {
		t.Fatal("expected a change output")
	}
	if result.ChangeAmount != 7 {
		t.Fatalf("expected change amount 7, got %d", result.ChangeAmount)
	}

	addrs, err := w.GetAddressStores()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := addrs[addr.Address]; ok {
		t.Fatal("expected old address entry removed")
	}
	if _, ok := addrs[result.ChangeAddr.Address]; !ok {
		t.Fatal("expected new change address entry present")
	}
}

func TestPaymentInsufficientFundsS4(t *testing.T) {
	w := newTestWallet(t)
	fundWith(t, w, "h1", 2)

	_, err := w.FetchInputsForPayment(5)
	if err == nil {
		t.Fatal("expected insufficient funds error")
	}

	fs, err := w.GetFundStore()
	if err != nil {
		t.Fatal(err)
	}
	if fs.RunningTotal != 2 {
		t.Fatalf("expected fund store unchanged at 2, got %d", fs.RunningTotal)
	}
}

func TestWalletEncryptionRoundTrip(t *testing.T) {
	w, err := Open(store.InMemoryMode(), "", "hunter2-passphrase")
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	addr, keys, err := w.GeneratePaymentAddress()
	if err != nil {
		t.Fatal(err)
	}
	stores, err := w.GetAddressStores()
	if err != nil {
		t.Fatal(err)
	}
	got, ok := stores[addr.Address]
	if !ok {
		t.Fatal("expected address store to round-trip")
	}
	if string(got.SecretKey) != string(keys.SecretKey) {
		t.Fatal("expected secret key to decrypt back to original")
	}
}
