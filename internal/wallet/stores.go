package wallet

import (
	"crypto/ed25519"
	"sort"

	"github.com/aurachain/node/internal/chainmodel"
)

// TokenAmount is the wallet's token unit; kept distinct from a bare uint64
// so arithmetic on balances reads clearly at call sites.
type TokenAmount uint64

// FundStore tracks every unspent output this wallet owns and their summed
// value. Invariant: RunningTotal == sum of Transactions' values, enforced
// by every mutator in this package (spec §8 invariant 3).
type FundStore struct {
	RunningTotal TokenAmount
	Transactions map[chainmodel.OutPoint]TokenAmount
}

// NewFundStore returns an empty FundStore.
func NewFundStore() *FundStore {
	return &FundStore{Transactions: make(map[chainmodel.OutPoint]TokenAmount)}
}

// SortedOutPoints returns the store's OutPoint keys in ascending order,
// standing in for the original's BTreeMap<OutPoint, _> iteration order —
// payment construction depends on this exact ordering.
func (f *FundStore) SortedOutPoints() []chainmodel.OutPoint {
	out := make([]chainmodel.OutPoint, 0, len(f.Transactions))
	for op := range f.Transactions {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// AddressStore maps a wallet address to its ed25519 keypair.
type AddressStore struct {
	PublicKey ed25519.PublicKey
	SecretKey ed25519.PrivateKey
}

// TransactionStore records which wallet address owns a given received
// output, plus the network version it was derived under.
type TransactionStore struct {
	Address string
	Net     uint8
}
