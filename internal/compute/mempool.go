// Package compute implements the Compute node: mempool admission, the
// partition/PoW round state machine, flood fan-out to miners, and the
// block hand-off to Storage.
//
// Grounded on the teacher's transaction-pool shape in
// core/transaction_pool.go (map keyed by hash, first-in-wins conflict
// rule) generalized to this specification's UTXO admission rules; the
// round state machine and flood operations are original to this
// specification (§4.2), implemented as a single-threaded cooperative loop
// per spec §5 — do not add goroutine-level parallelism to Engine's state
// transitions.
package compute

import (
	"fmt"
	"sync"

	"github.com/aurachain/node/internal/chainmodel"
)

// Mempool holds admitted, unconfirmed transactions keyed by t_hash.
// Bounded by maxSize; insertion order is irrelevant (spec §3).
type Mempool struct {
	mu       sync.Mutex
	maxSize  int
	byHash   map[string]chainmodel.Transaction
	spentIn  map[chainmodel.OutPoint]string // outpoint -> admitting tx hash
}

// NewMempool constructs an empty mempool bounded at maxSize entries.
func NewMempool(maxSize int) *Mempool {
	return &Mempool{
		maxSize: maxSize,
		byHash:  make(map[string]chainmodel.Transaction),
		spentIn: make(map[chainmodel.OutPoint]string),
	}
}

// Len returns the number of admitted transactions.
func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byHash)
}

// AdmitResult reports the fate of one submitted transaction.
type AdmitResult struct {
	Hash     string
	Admitted bool
	Reason   string
}

// Admit validates and inserts tx, rejecting it if any input fails
// signature verification, is missing from utxo, or conflicts with an
// input already claimed by a previously admitted transaction in this
// round (first-in wins, spec §4.2 receive_transactions).
func (m *Mempool) Admit(tx chainmodel.Transaction, utxo *chainmodel.UTXOSet) AdmitResult {
	hash := tx.Hash()

	for _, in := range tx.Inputs {
		if err := in.Verify(); err != nil {
			return AdmitResult{Hash: hash, Admitted: false, Reason: err.Error()}
		}
		if !utxo.Has(in.PrevOut) {
			return AdmitResult{Hash: hash, Admitted: false, Reason: fmt.Sprintf("unknown input %s:%d", in.PrevOut.THash, in.PrevOut.N)}
		}
	}
	if err := tx.CheckBalanced(utxo.Get); err != nil {
		return AdmitResult{Hash: hash, Admitted: false, Reason: err.Error()}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxSize > 0 && len(m.byHash) >= m.maxSize {
		return AdmitResult{Hash: hash, Admitted: false, Reason: "mempool full"}
	}
	if _, exists := m.byHash[hash]; exists {
		return AdmitResult{Hash: hash, Admitted: true, Reason: "already admitted"}
	}
	for _, in := range tx.Inputs {
		if owner, claimed := m.spentIn[in.PrevOut]; claimed && owner != hash {
			return AdmitResult{Hash: hash, Admitted: false, Reason: fmt.Sprintf("input %s:%d already claimed by %s", in.PrevOut.THash, in.PrevOut.N, owner)}
		}
	}

	m.byHash[hash] = tx
	for _, in := range tx.Inputs {
		m.spentIn[in.PrevOut] = hash
	}
	return AdmitResult{Hash: hash, Admitted: true}
}

// AdmitBatch applies Admit to every tx in txs and reports the overall
// response per spec §4.2 receive_transactions: success iff every tx was
// admitted.
func (m *Mempool) AdmitBatch(txs []chainmodel.Transaction, utxo *chainmodel.UTXOSet) (allAdmitted bool, results []AdmitResult) {
	results = make([]AdmitResult, 0, len(txs))
	allAdmitted = true
	for _, tx := range txs {
		r := m.Admit(tx, utxo)
		results = append(results, r)
		if !r.Admitted {
			allAdmitted = false
		}
	}
	return allAdmitted, results
}

// Snapshot returns every currently-admitted transaction without removing
// them, for building a PoW candidate block before the round seals.
func (m *Mempool) Snapshot() []chainmodel.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]chainmodel.Transaction, 0, len(m.byHash))
	for _, tx := range m.byHash {
		out = append(out, tx)
	}
	return out
}

// DrainForBlock removes and returns every currently-admitted transaction,
// clearing both the hash index and the spent-input index (spec §4.2
// invariant: sealed-block entries are removed before the next round).
func (m *Mempool) DrainForBlock() []chainmodel.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]chainmodel.Transaction, 0, len(m.byHash))
	for _, tx := range m.byHash {
		out = append(out, tx)
	}
	m.byHash = make(map[string]chainmodel.Transaction)
	m.spentIn = make(map[chainmodel.OutPoint]string)
	return out
}
