package wallet

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// PaymentAddress is a derived wallet address plus the network version byte
// it was derived under.
type PaymentAddress struct {
	Address string `json:"address"`
	Net     uint8  `json:"net"`
}

// ConstructAddress derives a PaymentAddress from an ed25519 public key:
//
//	address = hex(SHA3-256(net || SHA3-256(serialize(pub_key)))[:16])
//
// serialize(pub_key) is bincode's length-prefixed encoding of a fixed-size
// byte array: an 8-byte little-endian length (always 32) followed by the
// raw key bytes. This prefix is load-bearing for bit-exact parity with the
// original wallet's test vectors — a bare SHA3-256 of the 32 raw bytes
// produces a different digest.
func ConstructAddress(pub ed25519.PublicKey, net uint8) PaymentAddress {
	prefixed := make([]byte, 8+len(pub))
	binary.LittleEndian.PutUint64(prefixed[:8], uint64(len(pub)))
	copy(prefixed[8:], pub)

	firstHash := sha3.Sum256(prefixed)

	netPrefixed := make([]byte, 1+len(firstHash))
	netPrefixed[0] = net
	copy(netPrefixed[1:], firstHash[:])

	secondHash := sha3.Sum256(netPrefixed)
	truncated := secondHash[:16]

	return PaymentAddress{
		Address: fmt.Sprintf("%x", truncated),
		Net:     net,
	}
}
