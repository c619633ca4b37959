package chainmodel

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// BlockHeader carries the fields that identify and chain a block. Grounded
// on the teacher's BlockHeader (core/consensus.go) but trimmed to the
// fields this specification names, plus the PoW Nonce this engine adds.
type BlockHeader struct {
	PrevHash   string `json:"prev_hash"`
	MerkleRoot string `json:"merkle_root"`
	Nonce      uint64 `json:"nonce"`
	Timestamp  int64  `json:"timestamp"`
	Height     uint64 `json:"height"`
}

// Block is a header plus an ordered sequence of transactions.
type Block struct {
	Header       BlockHeader   `json:"header"`
	Transactions []Transaction `json:"transactions"`
}

// SerializeForPoW returns the byte-stable encoding of the header hashed
// against nonce candidates during mining; it excludes Nonce itself so the
// miner can vary the nonce without re-serializing the rest of the header.
func (h BlockHeader) SerializeForPoW() []byte {
	buf := make([]byte, 0, len(h.PrevHash)+len(h.MerkleRoot)+16)
	buf = append(buf, []byte(h.PrevHash)...)
	buf = append(buf, []byte(h.MerkleRoot)...)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(h.Timestamp))
	buf = append(buf, ts[:]...)
	var ht [8]byte
	binary.BigEndian.PutUint64(ht[:], h.Height)
	buf = append(buf, ht[:]...)
	return buf
}

// PoWHash computes H(header || nonce) for the given candidate nonce.
func PoWHash(h BlockHeader, nonce uint64) [32]byte {
	data := h.SerializeForPoW()
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	data = append(data, n[:]...)
	return sha3.Sum256(data)
}

// MeetsTarget reports whether digest, read as a big-endian integer, is
// strictly less than target (also big-endian, same length convention).
func MeetsTarget(digest [32]byte, target [32]byte) bool {
	for i := range digest {
		if digest[i] != target[i] {
			return digest[i] < target[i]
		}
	}
	return false // exactly equal to target does not satisfy strict '<'
}

// MerkleRoot computes the SHA3-256 pairwise merkle root over the hex tx
// hashes in tx order, duplicating the odd element out at each level.
func MerkleRoot(txHashes []string) string {
	if len(txHashes) == 0 {
		sum := sha3.Sum256(nil)
		return fmt.Sprintf("%x", sum)
	}
	level := make([][]byte, len(txHashes))
	for i, h := range txHashes {
		level[i] = []byte(h)
	}
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([][]byte, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			combined := append(append([]byte{}, level[i]...), level[i+1]...)
			sum := sha3.Sum256(combined)
			next = append(next, []byte(fmt.Sprintf("%x", sum)))
		}
		level = next
	}
	return string(level[0])
}

// BuildMerkleRoot is a convenience wrapper computing tx hashes then the root.
func BuildMerkleRoot(txs []Transaction) string {
	hashes := make([]string, len(txs))
	for i := range txs {
		hashes[i] = txs[i].Hash()
	}
	return MerkleRoot(hashes)
}

// Hash returns the hex SHA3-256 digest identifying this block (its header).
func (b *Block) Hash() string {
	sum := sha3.Sum256(append(b.Header.SerializeForPoW(), func() []byte {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], b.Header.Nonce)
		return n[:]
	}()...))
	return fmt.Sprintf("%x", sum)
}
