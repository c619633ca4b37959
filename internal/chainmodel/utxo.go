package chainmodel

import (
	"fmt"
	"sync"
)

// UTXOSet maps OutPoint to the TxOut it references. It never holds an
// output that has been spent (spec §3 UTXO set invariant).
type UTXOSet struct {
	mu sync.RWMutex
	m  map[OutPoint]TxOut
}

// NewUTXOSet constructs an empty UTXO set.
func NewUTXOSet() *UTXOSet {
	return &UTXOSet{m: make(map[OutPoint]TxOut)}
}

// Get returns the output for op, if unspent.
func (u *UTXOSet) Get(op OutPoint) (TxOut, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out, ok := u.m[op]
	return out, ok
}

// Has reports whether op is currently unspent.
func (u *UTXOSet) Has(op OutPoint) bool {
	_, ok := u.Get(op)
	return ok
}

// Len returns the number of unspent outputs tracked.
func (u *UTXOSet) Len() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.m)
}

// ApplyBlock atomically removes every outpoint spent by b's transactions
// and inserts every output b's transactions produce: UTXO' = (UTXO \
// spent(B)) ∪ produced(B) (spec §8 invariant 2). It validates that every
// spent outpoint is present before mutating anything, so a malformed
// block never leaves the set partially updated.
func (u *UTXOSet) ApplyBlock(b *Block) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	for _, tx := range b.Transactions {
		for _, in := range tx.Inputs {
			if _, ok := u.m[in.PrevOut]; !ok {
				return fmt.Errorf("apply block: missing input %s:%d", in.PrevOut.THash, in.PrevOut.N)
			}
		}
	}

	for _, tx := range b.Transactions {
		hash := tx.Hash()
		for _, in := range tx.Inputs {
			delete(u.m, in.PrevOut)
		}
		for n, out := range tx.Outputs {
			u.m[OutPoint{THash: hash, N: uint32(n)}] = out
		}
	}
	return nil
}

// Snapshot returns a defensive copy of the full outpoint -> output map.
func (u *UTXOSet) Snapshot() map[OutPoint]TxOut {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make(map[OutPoint]TxOut, len(u.m))
	for k, v := range u.m {
		out[k] = v
	}
	return out
}

// ByAddress returns every unspent outpoint owned by address, for wallet
// scanning of newly observed blocks.
func (u *UTXOSet) ByAddress(address string) map[OutPoint]TxOut {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make(map[OutPoint]TxOut)
	for k, v := range u.m {
		if v.Address == address {
			out[k] = v
		}
	}
	return out
}
