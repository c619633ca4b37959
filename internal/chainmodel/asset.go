// Package chainmodel defines the wire-stable data model shared by every
// node role: assets, outpoints, transactions, blocks and the UTXO set.
//
// Grounded on the teacher's core/common_structs.go (UTXO/TxInput/TxOutput
// shapes) and core/ledger.go (merkle/hash helpers), generalized from the
// teacher's account-based asset model to the tagged Token/Data asset and
// UTXO accounting this specification requires.
package chainmodel

import "fmt"

// AssetKind tags the variant carried by an Asset.
type AssetKind uint8

const (
	AssetToken AssetKind = iota
	AssetData
)

// Asset is a tagged value: either an atomic count of token units or an
// opaque data payload. Addition is only defined within the same variant.
type Asset struct {
	Kind  AssetKind
	Token uint64
	Data  []byte
}

// NewTokenAsset constructs a Token-variant asset.
func NewTokenAsset(amount uint64) Asset {
	return Asset{Kind: AssetToken, Token: amount}
}

// NewDataAsset constructs a Data-variant asset.
func NewDataAsset(data []byte) Asset {
	out := make([]byte, len(data))
	copy(out, data)
	return Asset{Kind: AssetData, Data: out}
}

// Add returns the sum of two assets of the same variant. It returns an
// error if the variants differ.
func (a Asset) Add(b Asset) (Asset, error) {
	if a.Kind != b.Kind {
		return Asset{}, fmt.Errorf("cannot add asset variants %d and %d", a.Kind, b.Kind)
	}
	switch a.Kind {
	case AssetToken:
		return NewTokenAsset(a.Token + b.Token), nil
	case AssetData:
		out := make([]byte, 0, len(a.Data)+len(b.Data))
		out = append(out, a.Data...)
		out = append(out, b.Data...)
		return Asset{Kind: AssetData, Data: out}, nil
	default:
		return Asset{}, fmt.Errorf("unknown asset kind %d", a.Kind)
	}
}

func (a Asset) String() string {
	switch a.Kind {
	case AssetToken:
		return fmt.Sprintf("Token(%d)", a.Token)
	case AssetData:
		return fmt.Sprintf("Data(%d bytes)", len(a.Data))
	default:
		return "Asset(unknown)"
	}
}
