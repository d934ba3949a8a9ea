// Package kvstore defines the ordered byte-keyed persistent map the
// storage engine is built on, and a Badger-backed implementation of
// it. The interface is the narrow trait spec'd for the core: get,
// insert, remove, scan_prefix, apply_batch, flush — scoped to one of
// two logical namespaces, "catalog" or "data".
package kvstore


// Namespace separates catalog entries (databases, tables, users) from
// data entries (row versions, secondary indexes, metadata) within one
// physical keyspace.
type Namespace byte

const (
	NamespaceCatalog Namespace = 'C'
	NamespaceData    Namespace = 'D'
)

// Op is one mutation in a batch: either an upsert (Value non-nil) or a
// delete (Value nil).
type Op struct {
	Namespace Namespace
	Key       []byte
	Value     []byte // nil means delete
}

// Store is the KV substrate the storage engine consumes. Every method
// is synchronous and no cursor is left open across calls: ScanPrefix
// returns a fully materialized slice.
type Store interface {
	// Get returns the value at key in ns, or ok=false if absent.
	Get(ns Namespace, key []byte) (value []byte, ok bool, err error)

	// Insert writes key=value in ns, outside of any batch.
	Insert(ns Namespace, key, value []byte) error

	// Remove deletes key from ns, outside of any batch.
	Remove(ns Namespace, key []byte) error

	// ScanPrefix returns every (key, value) pair in ns whose key has
	// the given prefix, ordered lexicographically by key. Returned keys
	// have the prefix still attached; namespace tagging is transparent.
	ScanPrefix(ns Namespace, prefix []byte) ([]KV, error)

	// ApplyBatch commits every Op atomically: either all writes land or
	// none do.
	ApplyBatch(ops []Op) error

	// Flush forces durability of everything written so far.
	Flush() error

	// Close releases underlying resources.
	Close() error
}

// KV is one scanned key/value pair.
type KV struct {
	Key   []byte
	Value []byte
}
