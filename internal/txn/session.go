// Package txn implements the transaction coordinator: per-session
// state, read-view acquisition, the pending-writes overlay, savepoints,
// and commit/rollback. It sits between internal/sqlexec and
// internal/mvcc, and never touches the KV substrate directly.
package txn

import (
	"sync/atomic"

	"miniql/internal/core"
	"miniql/internal/mvcc"
)

// RowKey addresses one row for the pending-writes overlay.
type RowKey struct {
	DB    string
	Table string
	PK    int64
}

// savepoint is a named snapshot of the pending-writes buffer.
type savepoint struct {
	name    string
	pending map[RowKey]*core.Row
}

// State is the per-session transaction state: the current transaction
// id (if any), its read view, and a buffer of not-yet-committed row
// mutations keyed by RowKey. A present key with a nil *core.Row is a
// pending delete; a present key with a non-nil row is a pending
// upsert; an absent key falls through to the MVCC store.
type State struct {
	InTxn      bool
	TxID       uint64
	ReadView   mvcc.ReadView
	Pending    map[RowKey]*core.Row
	Savepoints []savepoint
}

func newState() *State {
	return &State{Pending: make(map[RowKey]*core.Row)}
}

// PendingEntry reports whether key has a buffered write: ok is false
// if the key is untouched by this transaction; otherwise row is the
// pending row (nil meaning a pending delete).
func (s *State) PendingEntry(key RowKey) (row *core.Row, ok bool) {
	row, ok = s.Pending[key]
	return
}

// connCounter hands out unique connection ids for sessions created in
// this process; a real deployment would receive a conn id from the
// wire adapter instead, but the core still needs one to key the lock
// table.
var connCounter uint32

// NextConnID allocates a process-unique connection id.
func NextConnID() uint32 {
	return atomic.AddUint32(&connCounter, 1)
}

// Session is one connection's mutable state: identity, the current
// database, session variables, and the active transaction (if any).
type Session struct {
	ConnID     uint32
	Username   string
	CurrentDB  string
	Autocommit bool
	Vars       *Variables
	Txn        *State
}

// NewSession starts a fresh session with autocommit on and no active
// transaction, per MySQL's default.
func NewSession(connID uint32, username string) *Session {
	return &Session{
		ConnID:     connID,
		Username:   username,
		Autocommit: true,
		Vars:       DefaultVariables(),
	}
}

// InTxn reports whether an explicit transaction is open.
func (s *Session) InTxn() bool {
	return s.Txn != nil && s.Txn.InTxn
}

// ShouldBufferWrites is the write-buffering policy: true iff an
// explicit transaction is open, or autocommit is off.
func (s *Session) ShouldBufferWrites() bool {
	return s.InTxn() || !s.Autocommit
}
