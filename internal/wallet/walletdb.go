package wallet

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aurachain/node/internal/chainmodel"
	"github.com/aurachain/node/internal/store"
	"github.com/aurachain/node/pkg/utils"
)

// NetworkVersion is the wallet's address derivation network byte.
const NetworkVersion uint8 = 0

// Column names within the wallet's KV store.
const (
	ColumnFund        = "fund"
	ColumnAddress     = "address"
	ColumnTransaction = "transaction"
)

// Fixed keys within ColumnFund / ColumnAddress, mirroring the original's
// FUND_KEY / ADDRESS_KEY constants; per-OutPoint transaction records use the
// serialized OutPoint itself as key within ColumnTransaction.
const (
	fundKey    = "fund_store"
	addressKey = "address_store"
)

var walletColumns = []string{ColumnFund, ColumnAddress, ColumnTransaction}

// WalletDB is the User node's and HTTP API's shared handle onto wallet
// state. All writes go through this one handle, guarded by mu, matching the
// specification's single-writer-via-mutex discipline (spec §9).
type WalletDB struct {
	mu  sync.Mutex
	kv  store.Store
	enc *encryptor // nil when no passphrase is configured
}

// Open constructs a WalletDB over the given mode/base path, optionally
// encrypting secret key material at rest when passphrase is non-empty.
func Open(mode store.Mode, base string, passphrase string) (*WalletDB, error) {
	kv, err := store.Open(mode, base, "wallet", walletColumns)
	if err != nil {
		return nil, utils.NewError(utils.KindStorage, "open wallet store", err)
	}
	var enc *encryptor
	if passphrase != "" {
		enc, err = newEncryptor(passphrase)
		if err != nil {
			return nil, utils.NewError(utils.KindWalletLocked, "derive wallet encryption key", err)
		}
	}
	return &WalletDB{kv: kv, enc: enc}, nil
}

func (w *WalletDB) Close() error { return w.kv.Close() }

// addressStoreJSON is the on-disk shape of an AddressStore: the secret key
// is stored encrypted (when a passphrase is configured) or raw otherwise.
type addressStoreJSON struct {
	PublicKey []byte `json:"public_key"`
	SecretKey []byte `json:"secret_key"`
	Encrypted bool   `json:"encrypted"`
}

func (w *WalletDB) encodeAddressStore(a AddressStore) ([]byte, error) {
	secret := []byte(a.SecretKey)
	encrypted := false
	if w.enc != nil {
		ct, err := w.enc.encrypt(secret)
		if err != nil {
			return nil, err
		}
		secret = ct
		encrypted = true
	}
	return json.Marshal(addressStoreJSON{
		PublicKey: a.PublicKey,
		SecretKey: secret,
		Encrypted: encrypted,
	})
}

func (w *WalletDB) decodeAddressStore(data []byte) (AddressStore, error) {
	var raw addressStoreJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return AddressStore{}, err
	}
	secret := raw.SecretKey
	if raw.Encrypted {
		if w.enc == nil {
			return AddressStore{}, utils.NewError(utils.KindWalletLocked, "wallet is encrypted but no passphrase configured", nil)
		}
		pt, err := w.enc.decrypt(secret)
		if err != nil {
			return AddressStore{}, utils.NewError(utils.KindWalletLocked, "decrypt address secret key", err)
		}
		secret = pt
	}
	return AddressStore{
		PublicKey: ed25519.PublicKey(raw.PublicKey),
		SecretKey: ed25519.PrivateKey(secret),
	}, nil
}

// GetFundStore returns the wallet's current FundStore, or an empty one if
// none has been persisted yet.
func (w *WalletDB) GetFundStore() (*FundStore, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.getFundStoreLocked()
}

func (w *WalletDB) getFundStoreLocked() (*FundStore, error) {
	data, ok, err := w.kv.Get(ColumnFund, []byte(fundKey))
	if err != nil {
		return nil, utils.NewError(utils.KindStorage, "read fund store", err)
	}
	if !ok {
		return NewFundStore(), nil
	}
	var raw struct {
		RunningTotal TokenAmount
		Transactions map[string]TokenAmount
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, utils.NewError(utils.KindStorage, "decode fund store", err)
	}
	fs := NewFundStore()
	fs.RunningTotal = raw.RunningTotal
	for k, v := range raw.Transactions {
		op, err := decodeOutPointKey(k)
		if err != nil {
			return nil, err
		}
		fs.Transactions[op] = v
	}
	return fs, nil
}

func (w *WalletDB) setFundStoreLocked(fs *FundStore) error {
	raw := struct {
		RunningTotal TokenAmount
		Transactions map[string]TokenAmount
	}{RunningTotal: fs.RunningTotal, Transactions: make(map[string]TokenAmount, len(fs.Transactions))}
	for op, v := range fs.Transactions {
		raw.Transactions[encodeOutPointKey(op)] = v
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return utils.NewError(utils.KindStorage, "encode fund store", err)
	}
	if err := w.kv.Put(ColumnFund, []byte(fundKey), data); err != nil {
		return utils.NewError(utils.KindStorage, "write fund store", err)
	}
	return nil
}

func encodeOutPointKey(op chainmodel.OutPoint) string {
	return fmt.Sprintf("%s:%d", op.THash, op.N)
}

func decodeOutPointKey(s string) (chainmodel.OutPoint, error) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			var n uint32
			if _, err := fmt.Sscanf(s[i+1:], "%d", &n); err != nil {
				return chainmodel.OutPoint{}, err
			}
			return chainmodel.OutPoint{THash: s[:i], N: n}, nil
		}
	}
	return chainmodel.OutPoint{}, fmt.Errorf("malformed outpoint key %q", s)
}

// GetAddressStores returns every address this wallet currently holds keys for.
func (w *WalletDB) GetAddressStores() (map[string]AddressStore, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.getAddressStoresLocked()
}

func (w *WalletDB) getAddressStoresLocked() (map[string]AddressStore, error) {
	data, ok, err := w.kv.Get(ColumnAddress, []byte(addressKey))
	if err != nil {
		return nil, utils.NewError(utils.KindStorage, "read address stores", err)
	}
	out := make(map[string]AddressStore)
	if !ok {
		return out, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, utils.NewError(utils.KindStorage, "decode address stores", err)
	}
	for addr, enc := range raw {
		as, err := w.decodeAddressStore(enc)
		if err != nil {
			return nil, err
		}
		out[addr] = as
	}
	return out, nil
}

func (w *WalletDB) setAddressStoresLocked(stores map[string]AddressStore) error {
	raw := make(map[string]json.RawMessage, len(stores))
	for addr, as := range stores {
		enc, err := w.encodeAddressStore(as)
		if err != nil {
			return err
		}
		raw[addr] = enc
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return utils.NewError(utils.KindStorage, "encode address stores", err)
	}
	if err := w.kv.Put(ColumnAddress, []byte(addressKey), data); err != nil {
		return utils.NewError(utils.KindStorage, "write address stores", err)
	}
	return nil
}

// GetTransactionStore returns the TransactionStore recorded for op.
func (w *WalletDB) GetTransactionStore(op chainmodel.OutPoint) (TransactionStore, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	data, ok, err := w.kv.Get(ColumnTransaction, []byte(encodeOutPointKey(op)))
	if err != nil {
		return TransactionStore{}, utils.NewError(utils.KindStorage, "read transaction store", err)
	}
	if !ok {
		return TransactionStore{}, fmt.Errorf("transaction not present in wallet: %s:%d", op.THash, op.N)
	}
	var ts TransactionStore
	if err := json.Unmarshal(data, &ts); err != nil {
		return TransactionStore{}, utils.NewError(utils.KindStorage, "decode transaction store", err)
	}
	return ts, nil
}

// SaveTransactionsToWallet persists a batch of OutPoint -> TransactionStore
// entries atomically.
func (w *WalletDB) SaveTransactionsToWallet(entries map[chainmodel.OutPoint]TransactionStore) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	ops := make([]store.Op, 0, len(entries))
	for op, ts := range entries {
		data, err := json.Marshal(ts)
		if err != nil {
			return utils.NewError(utils.KindStorage, "encode transaction store entry", err)
		}
		ops = append(ops, store.Op{Column: ColumnTransaction, Key: []byte(encodeOutPointKey(op)), Value: data})
	}
	if err := w.kv.WriteBatch(ops); err != nil {
		return utils.NewError(utils.KindStorage, "write transaction store batch", err)
	}
	return nil
}

// SaveTransactionToWallet is the single-entry convenience form of
// SaveTransactionsToWallet.
func (w *WalletDB) SaveTransactionToWallet(op chainmodel.OutPoint, addr PaymentAddress) error {
	return w.SaveTransactionsToWallet(map[chainmodel.OutPoint]TransactionStore{
		op: {Address: addr.Address, Net: addr.Net},
	})
}

// SavePaymentToWallet records a newly received output, updating the
// FundStore's running total and transaction set (spec §8 invariant 3).
func (w *WalletDB) SavePaymentToWallet(op chainmodel.OutPoint, amount TokenAmount) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	fs, err := w.getFundStoreLocked()
	if err != nil {
		return err
	}
	fs.RunningTotal += amount
	fs.Transactions[op] = amount
	return w.setFundStoreLocked(fs)
}

// GeneratePaymentAddress creates a fresh keypair, derives its address, and
// persists the address's keys to the wallet.
func (w *WalletDB) GeneratePaymentAddress() (PaymentAddress, AddressStore, error) {
	pub, priv, err := GenerateKeypair()
	if err != nil {
		return PaymentAddress{}, AddressStore{}, utils.NewError(utils.KindStorage, "generate keypair", err)
	}
	addr := ConstructAddress(pub, NetworkVersion)
	keys := AddressStore{PublicKey: pub, SecretKey: priv}

	w.mu.Lock()
	defer w.mu.Unlock()
	stores, err := w.getAddressStoresLocked()
	if err != nil {
		return PaymentAddress{}, AddressStore{}, err
	}
	stores[addr.Address] = keys
	if err := w.setAddressStoresLocked(stores); err != nil {
		return PaymentAddress{}, AddressStore{}, err
	}
	return addr, keys, nil
}

// EncapsulationData reports this wallet's at-rest encryption parameters
// (spec §6 GET /wallet_encapsulation_data); it never exposes the passphrase
// or any derived key.
func (w *WalletDB) EncapsulationData() EncapsulationData {
	return EncapsulationData{
		Algorithm: "scrypt-aes256gcm",
		ScryptN:   scryptN,
		ScryptR:   scryptR,
		ScryptP:   scryptP,
		KeyLen:    scryptKeyLen,
		SaltLen:   saltLen,
		Encrypted: w.enc != nil,
	}
}

// ImportKeypair inserts an externally supplied ed25519 keypair under its
// derived address (spec §6 POST /import_keypairs).
func (w *WalletDB) ImportKeypair(pub ed25519.PublicKey, priv ed25519.PrivateKey) (PaymentAddress, error) {
	addr := ConstructAddress(pub, NetworkVersion)
	w.mu.Lock()
	defer w.mu.Unlock()
	stores, err := w.getAddressStoresLocked()
	if err != nil {
		return PaymentAddress{}, err
	}
	stores[addr.Address] = AddressStore{PublicKey: pub, SecretKey: priv}
	if err := w.setAddressStoresLocked(stores); err != nil {
		return PaymentAddress{}, err
	}
	return addr, nil
}

// ReconcileRunningTotal recomputes FundStore.RunningTotal as the sum of its
// Transactions and persists the result, restoring spec §8 invariant 3 if it
// has ever drifted (spec §6 POST /update_running_total).
func (w *WalletDB) ReconcileRunningTotal() (TokenAmount, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fs, err := w.getFundStoreLocked()
	if err != nil {
		return 0, err
	}
	var total TokenAmount
	for _, v := range fs.Transactions {
		total += v
	}
	fs.RunningTotal = total
	if err := w.setFundStoreLocked(fs); err != nil {
		return 0, err
	}
	return total, nil
}

// KnownAddresses returns every address this wallet currently holds keys for.
func (w *WalletDB) KnownAddresses() ([]string, error) {
	stores, err := w.GetAddressStores()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(stores))
	for addr := range stores {
		out = append(out, addr)
	}
	return out, nil
}
