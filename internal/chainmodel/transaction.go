package chainmodel

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// TxIn references a prior output and carries one detached signature/public
// key pair per required signer. Grounded on the original wallet's
// sign_detached(tx_hash.t_hash, secret_key) scheme: each signature commits
// to the ASCII bytes of the referenced OutPoint's transaction hash.
type TxIn struct {
	PrevOut    OutPoint `json:"prev_out"`
	Signatures [][]byte `json:"signatures"`
	PubKeys    [][]byte `json:"pub_keys"`
}

// Verify checks that every signature on in verifies against in.PrevOut.THash
// under the paired public key. It fails closed: zero signatures is invalid.
func (in TxIn) Verify() error {
	if len(in.Signatures) == 0 || len(in.Signatures) != len(in.PubKeys) {
		return errors.New("txin: signature/pubkey count mismatch")
	}
	msg := []byte(in.PrevOut.THash)
	for i, sig := range in.Signatures {
		pub := in.PubKeys[i]
		if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
			return fmt.Errorf("txin: malformed signature/pubkey at index %d", i)
		}
		if !ed25519.Verify(ed25519.PublicKey(pub), msg, sig) {
			return fmt.Errorf("txin: signature %d does not verify against %s", i, in.PrevOut.THash)
		}
	}
	return nil
}

// TxOut carries an asset, an optional locktime, an optional DRS/script tag
// and a destination address.
type TxOut struct {
	Asset    Asset   `json:"asset"`
	Locktime *uint64 `json:"locktime,omitempty"`
	DRS      []byte  `json:"drs,omitempty"`
	Address  string  `json:"address"`
}

// Transaction is an ordered sequence of inputs and outputs. Its identity
// (Hash) is the SHA3-256 of the canonical, signature-stripped serialization.
type Transaction struct {
	Inputs  []TxIn  `json:"inputs"`
	Outputs []TxOut `json:"outputs"`
}

// IsCoinbase reports whether tx has no inputs, i.e. it mints new supply
// rather than spending existing outputs (block reward / genesis).
func (tx *Transaction) IsCoinbase() bool {
	return len(tx.Inputs) == 0
}

// canonicalNoSigs writes the byte-stable, signature-free encoding of tx:
// every input's OutPoint (length-prefixed hash + index) followed by every
// output's full contents. This is what callers hash to obtain t_hash and
// is intentionally independent of signature material so that signing a
// transaction never changes its own identity.
func (tx *Transaction) canonicalNoSigs() []byte {
	var buf bytes.Buffer
	var u32 [4]byte

	binary.BigEndian.PutUint32(u32[:], uint32(len(tx.Inputs)))
	buf.Write(u32[:])
	for _, in := range tx.Inputs {
		binary.BigEndian.PutUint32(u32[:], uint32(len(in.PrevOut.THash)))
		buf.Write(u32[:])
		buf.WriteString(in.PrevOut.THash)
		binary.BigEndian.PutUint32(u32[:], in.PrevOut.N)
		buf.Write(u32[:])
	}

	binary.BigEndian.PutUint32(u32[:], uint32(len(tx.Outputs)))
	buf.Write(u32[:])
	for _, out := range tx.Outputs {
		buf.WriteByte(byte(out.Asset.Kind))
		var u64 [8]byte
		binary.BigEndian.PutUint64(u64[:], out.Asset.Token)
		buf.Write(u64[:])
		binary.BigEndian.PutUint32(u32[:], uint32(len(out.Asset.Data)))
		buf.Write(u32[:])
		buf.Write(out.Asset.Data)

		if out.Locktime != nil {
			buf.WriteByte(1)
			binary.BigEndian.PutUint64(u64[:], *out.Locktime)
			buf.Write(u64[:])
		} else {
			buf.WriteByte(0)
		}

		binary.BigEndian.PutUint32(u32[:], uint32(len(out.DRS)))
		buf.Write(u32[:])
		buf.Write(out.DRS)

		binary.BigEndian.PutUint32(u32[:], uint32(len(out.Address)))
		buf.Write(u32[:])
		buf.WriteString(out.Address)
	}
	return buf.Bytes()
}

// Hash computes t_hash: the hex-encoded SHA3-256 digest of the canonical,
// signature-stripped serialization.
func (tx *Transaction) Hash() string {
	sum := sha3.Sum256(tx.canonicalNoSigs())
	return fmt.Sprintf("%x", sum)
}

// TokenInputOutputBalance sums Token-variant inputs against Token-variant
// outputs, used to enforce invariant 3 of spec §3 (non-coinbase balance).
// utxoOf resolves a TxIn's referenced output so its asset can be summed.
func (tx *Transaction) TokenInputOutputBalance(utxoOf func(OutPoint) (TxOut, bool)) (inSum, outSum uint64, err error) {
	for _, in := range tx.Inputs {
		out, ok := utxoOf(in.PrevOut)
		if !ok {
			return 0, 0, fmt.Errorf("input %s:%d not found in UTXO set", in.PrevOut.THash, in.PrevOut.N)
		}
		if out.Asset.Kind != AssetToken {
			continue
		}
		inSum += out.Asset.Token
	}
	for _, out := range tx.Outputs {
		if out.Asset.Kind != AssetToken {
			continue
		}
		outSum += out.Asset.Token
	}
	return inSum, outSum, nil
}

// CheckBalanced enforces that, for a non-coinbase transaction, summed
// Token inputs equal summed Token outputs (spec §3 Transaction invariant).
func (tx *Transaction) CheckBalanced(utxoOf func(OutPoint) (TxOut, bool)) error {
	if tx.IsCoinbase() {
		return nil
	}
	inSum, outSum, err := tx.TokenInputOutputBalance(utxoOf)
	if err != nil {
		return err
	}
	if inSum != outSum {
		return fmt.Errorf("unbalanced transaction: inputs=%d outputs=%d", inSum, outSum)
	}
	return nil
}
