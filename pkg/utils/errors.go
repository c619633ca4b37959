// Package utils provides shared utility helpers used across the node
// binaries: error wrapping/taxonomy, and environment lookups with fallbacks.
package utils

import "fmt"

// Wrap adds context to an error message. It returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Kind tags an error with the taxonomy a node's callers dispatch on: fatal
// vs. retryable vs. surfaced-to-caller.
type Kind int

const (
	// KindConfig marks invalid CLI flags or settings; fatal at startup.
	KindConfig Kind = iota
	// KindNetwork marks a transient failure retried by the reconnect loop.
	KindNetwork
	// KindConsensusTimeout marks a Raft/partition round that must restart.
	KindConsensusTimeout
	// KindValidation marks a rejected transaction or signature; not fatal.
	KindValidation
	// KindStorage marks a KV or Raft write failure; fatal to the node.
	KindStorage
	// KindInsufficientFunds marks a payment that exceeds the wallet balance.
	KindInsufficientFunds
	// KindWalletLocked marks an operation requiring a passphrase that was
	// not supplied or did not match.
	KindWalletLocked
)

// NodeError is a typed error carrying the taxonomy Kind alongside the
// underlying cause, so callers can dispatch on Kind without string matching.
type NodeError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *NodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *NodeError) Unwrap() error { return e.Cause }

// NewError constructs a NodeError of the given kind.
func NewError(kind Kind, message string, cause error) error {
	return &NodeError{Kind: kind, Message: message, Cause: cause}
}

// IsKind reports whether err is a NodeError of the given kind.
func IsKind(err error, kind Kind) bool {
	ne, ok := err.(*NodeError)
	return ok && ne.Kind == kind
}
