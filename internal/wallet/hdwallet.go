// Package wallet implements keypair generation, HD derivation, address
// derivation, and the FundStore/AddressStore/TransactionStore persistence
// used by the User node and the HTTP wallet API.
//
// Grounded on the teacher's core/wallet.go for the overall HD/BIP-39 shape
// (SLIP-10-style hardened-only derivation over ed25519), generalized to
// this specification's UTXO accounting and its bit-exact address scheme.
package wallet

import (
	"crypto/ed25519"
	crand "crypto/rand"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	bip39 "github.com/tyler-smith/go-bip39"
)

const (
	hardenedOffset uint32 = 0x80000000
	masterHMACKey         = "ed25519 seed"
)

// HDWallet keeps master key material in memory only; callers persist keys
// through AddressStore/WalletDB, never the wallet's internal seed.
type HDWallet struct {
	seed        []byte
	masterKey   []byte
	masterChain []byte
	logger      *log.Logger
}

// Seed returns a copy of the wallet's master seed.
func (w *HDWallet) Seed() []byte {
	out := make([]byte, len(w.seed))
	copy(out, w.seed)
	return out
}

// NewRandomWallet generates entropyBits (128 or 256) of random entropy and
// returns the derived wallet plus its BIP-39 recovery mnemonic.
func NewRandomWallet(entropyBits int, lg *log.Logger) (*HDWallet, string, error) {
	if entropyBits != 128 && entropyBits != 256 {
		return nil, "", fmt.Errorf("unsupported entropy size %d", entropyBits)
	}
	entropy, err := bip39.NewEntropy(entropyBits)
	if err != nil {
		return nil, "", fmt.Errorf("entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, "", fmt.Errorf("mnemonic: %w", err)
	}
	seed := bip39.NewSeed(mnemonic, "")
	w, err := NewHDWalletFromSeed(seed, lg)
	if err != nil {
		return nil, "", err
	}
	return w, mnemonic, nil
}

// WalletFromMnemonic imports an existing BIP-39 phrase, optionally salted
// with an additional passphrase per BIP-39 itself.
func WalletFromMnemonic(mnemonic, passphrase string, lg *log.Logger) (*HDWallet, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.New("invalid mnemonic checksum")
	}
	seed := bip39.NewSeed(mnemonic, passphrase)
	return NewHDWalletFromSeed(seed, lg)
}

// NewHDWalletFromSeed derives the SLIP-10 master key/chain-code pair from a
// raw seed.
func NewHDWalletFromSeed(seed []byte, lg *log.Logger) (*HDWallet, error) {
	if len(seed) < 16 {
		return nil, errors.New("seed too short")
	}
	if lg == nil {
		lg = log.New()
	}
	I := hmacSHA512([]byte(masterHMACKey), seed)
	w := &HDWallet{
		seed:        seed,
		masterKey:   I[:32],
		masterChain: I[32:],
		logger:      lg,
	}
	lg.Infof("wallet: master key initialised (%d bytes seed)", len(seed))
	return w, nil
}

// derivePrivate returns the key material and chain code for a hardened
// child index. ed25519 supports hardened derivation only.
func derivePrivate(parentKey, parentChain []byte, index uint32) (key, ccode []byte, err error) {
	if index < hardenedOffset {
		return nil, nil, errors.New("non-hardened derivation not supported for ed25519")
	}
	data := make([]byte, 1+32+4)
	copy(data[1:], parentKey)
	binary.BigEndian.PutUint32(data[33:], index)

	I := hmacSHA512(parentChain, data)
	return I[:32], I[32:], nil
}

func hmacSHA512(key, data []byte) []byte {
	h := hmac.New(sha512.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// PrivateKey returns the ed25519 keypair at hardened path m / account' / index'.
func (w *HDWallet) PrivateKey(account, index uint32) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	account |= hardenedOffset
	index |= hardenedOffset

	k1, c1, err := derivePrivate(w.masterKey, w.masterChain, account)
	if err != nil {
		return nil, nil, err
	}
	k2, _, err := derivePrivate(k1, c1, index)
	if err != nil {
		return nil, nil, err
	}
	priv := ed25519.NewKeyFromSeed(k2)
	pub := priv.Public().(ed25519.PublicKey)
	return priv, pub, nil
}

// GenerateKeypair produces a fresh, non-HD-derived ed25519 keypair, matching
// the original wallet's sign::gen_keypair() path used for one-off payment
// addresses (each address gets its own random keypair rather than a
// deterministic HD path).
func GenerateKeypair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(crand.Reader)
}
