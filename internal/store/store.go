// Package store provides the column-family key/value abstraction shared by
// every node role: a durable file-backed mode, an indexed test mode, and an
// in-memory mode, behind one interface.
package store

import "fmt"

// Mode selects a KV store's backend and on-disk location.
type Mode struct {
	kind  modeKind
	index int
}

type modeKind int

const (
	kindLive modeKind = iota
	kindTest
	kindInMemory
)

// LiveMode opens the durable, single on-disk instance.
func LiveMode() Mode { return Mode{kind: kindLive} }

// TestMode opens an indexed on-disk instance, suffixed by n so that
// concurrently running test nodes never share a file. Index offsets (e.g.
// "1000 + idx" for a given role) are the caller's responsibility to apply
// before constructing the Mode; Mode itself just carries the final index.
func TestMode(n int) Mode { return Mode{kind: kindTest, index: n} }

// InMemoryMode opens a store backed by nothing but process memory.
func InMemoryMode() Mode { return Mode{kind: kindInMemory} }

// Path returns the on-disk path for a Live or Test mode rooted at base (a
// directory), or "" for InMemory. suffix identifies the logical database
// within base (e.g. "wallet", "blocks").
func (m Mode) Path(base, suffix string) string {
	switch m.kind {
	case kindLive:
		return fmt.Sprintf("%s/%s.live", base, suffix)
	case kindTest:
		return fmt.Sprintf("%s/%s.test.%d", base, suffix, m.index)
	default:
		return ""
	}
}

// IsInMemory reports whether m selects the in-memory backend.
func (m Mode) IsInMemory() bool { return m.kind == kindInMemory }

// Op describes one mutation to apply as part of a WriteBatch. A nil Value
// with Delete set to true removes Key from column Column.
type Op struct {
	Column string
	Key    []byte
	Value  []byte
	Delete bool
}

// Store is the uniform column-family KV interface every backend satisfies.
// A successful WriteBatch is all-or-nothing: concurrent readers observe
// either the pre- or post-batch state, never a partial mix (spec §4.5).
type Store interface {
	Get(column string, key []byte) ([]byte, bool, error)
	Put(column string, key, value []byte) error
	Delete(column string, key []byte) error
	IterColumn(column string, fn func(key, value []byte) error) error
	WriteBatch(ops []Op) error
	Close() error
}

// Open constructs the appropriate Store implementation for mode. base is the
// directory root for file-backed modes; suffix names the logical database;
// columns lists every column family the caller will use.
func Open(mode Mode, base, suffix string, columns []string) (Store, error) {
	if mode.IsInMemory() {
		return newMemStore(columns), nil
	}
	return newBoltStore(mode.Path(base, suffix), columns)
}
