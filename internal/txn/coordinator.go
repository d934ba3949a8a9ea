package txn

import (
	"sort"

	"miniql/internal/core"
	"miniql/internal/enginerr"
	"miniql/internal/lockmgr"
	"miniql/internal/mvcc"
)

// Coordinator owns the MVCC store, the lock manager, and the
// process-wide transaction id allocator, and exposes the transaction
// lifecycle: starting, committing, and rolling back a session's
// transaction, savepoints, and pending-overlay reads.
type Coordinator struct {
	store  *mvcc.Store
	locks  *lockmgr.Manager
	txnMgr *mvcc.TxnManager
	lookup mvcc.TableLookup
}

// NewCoordinator wires a coordinator over an already-open MVCC store
// and lock manager. lookup resolves a table definition by (db, table)
// for ApplyChanges' index maintenance.
func NewCoordinator(store *mvcc.Store, locks *lockmgr.Manager, txnMgr *mvcc.TxnManager, lookup mvcc.TableLookup) *Coordinator {
	return &Coordinator{store: store, locks: locks, txnMgr: txnMgr, lookup: lookup}
}

// Store exposes the underlying MVCC store for read-only catalog access
// (DDL, SHOW, information_schema) that does not go through the
// pending-writes overlay.
func (c *Coordinator) Store() *mvcc.Store { return c.store }

// Locks exposes the lock manager so the executor can build a
// lockmgr.Guard scoped to one statement.
func (c *Coordinator) Locks() *lockmgr.Manager { return c.locks }

// EnsureActive starts a new transaction for the session if none is
// active yet: the manager atomically allocates the next tx id and
// snapshots the active set before inserting the new id.
func (c *Coordinator) EnsureActive(s *Session) *State {
	if s.Txn != nil && (s.Txn.InTxn || s.Txn.TxID != 0) {
		return s.Txn
	}
	txID, view := c.txnMgr.StartTxn()
	s.Txn = &State{
		InTxn:    false, // set true only by an explicit BEGIN; implicit txns leave this false
		TxID:     txID,
		ReadView: view,
		Pending:  make(map[RowKey]*core.Row),
	}
	return s.Txn
}

// Begin starts an explicit transaction (BEGIN/START TRANSACTION). If
// one is already open, the open transaction simply continues; neither
// Begin nor the executor commits it first.
func (c *Coordinator) Begin(s *Session) {
	st := c.EnsureActive(s)
	st.InTxn = true
}

// Commit applies any pending writes atomically, releases the
// transaction id and every row lock the session holds, and clears
// pending/savepoint state. A session with no active transaction is a
// no-op.
func (c *Coordinator) Commit(s *Session) error {
	if s.Txn == nil {
		return nil
	}
	st := s.Txn
	if len(st.Pending) > 0 {
		changes := make([]mvcc.RowChange, 0, len(st.Pending))
		for key, row := range st.Pending {
			changes = append(changes, mvcc.RowChange{DB: key.DB, Table: key.Table, PK: key.PK, Row: row})
		}
		sort.Slice(changes, func(i, j int) bool {
			if changes[i].DB != changes[j].DB {
				return changes[i].DB < changes[j].DB
			}
			if changes[i].Table != changes[j].Table {
				return changes[i].Table < changes[j].Table
			}
			return changes[i].PK < changes[j].PK
		})
		if err := c.store.ApplyChanges(c.lookup, changes, st.TxID); err != nil {
			return err
		}
	}
	c.txnMgr.Finish(st.TxID)
	c.locks.UnlockAll(s.ConnID)
	s.Txn = nil
	return nil
}

// Rollback drops pending writes, releases the transaction id and every
// row lock the session holds, and clears savepoint state.
func (c *Coordinator) Rollback(s *Session) {
	if s.Txn == nil {
		return
	}
	c.txnMgr.Finish(s.Txn.TxID)
	c.locks.UnlockAll(s.ConnID)
	s.Txn = nil
}

// Savepoint pushes a named snapshot of the pending-writes buffer.
// Requires an active transaction.
func (c *Coordinator) Savepoint(s *Session, name string) error {
	if s.Txn == nil {
		return enginerr.NotFoundf("no active transaction for SAVEPOINT")
	}
	c.EnsureActive(s).InTxn = true
	snap := make(map[RowKey]*core.Row, len(s.Txn.Pending))
	for k, v := range s.Txn.Pending {
		if v != nil {
			clone := v.Clone()
			snap[k] = &clone
		} else {
			snap[k] = nil
		}
	}
	s.Txn.Savepoints = append(s.Txn.Savepoints, savepoint{name: name, pending: snap})
	return nil
}

// RollbackTo replaces the pending buffer with the snapshot of the last
// savepoint matching name and truncates the stack after that entry.
func (c *Coordinator) RollbackTo(s *Session, name string) error {
	if s.Txn == nil {
		return enginerr.NotFoundf("no active transaction for ROLLBACK TO SAVEPOINT")
	}
	idx := lastSavepointIndex(s.Txn.Savepoints, name)
	if idx < 0 {
		return enginerr.NotFoundf("no such savepoint: %s", name)
	}
	restored := make(map[RowKey]*core.Row, len(s.Txn.Savepoints[idx].pending))
	for k, v := range s.Txn.Savepoints[idx].pending {
		if v != nil {
			clone := v.Clone()
			restored[k] = &clone
		} else {
			restored[k] = nil
		}
	}
	s.Txn.Pending = restored
	s.Txn.Savepoints = s.Txn.Savepoints[:idx+1]
	return nil
}

// ReleaseSavepoint truncates the stack up to (not including) the last
// entry matching name.
func (c *Coordinator) ReleaseSavepoint(s *Session, name string) error {
	if s.Txn == nil {
		return enginerr.NotFoundf("no active transaction for RELEASE SAVEPOINT")
	}
	idx := lastSavepointIndex(s.Txn.Savepoints, name)
	if idx < 0 {
		return enginerr.NotFoundf("no such savepoint: %s", name)
	}
	s.Txn.Savepoints = s.Txn.Savepoints[:idx]
	return nil
}

func lastSavepointIndex(stack []savepoint, name string) int {
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i].name == name {
			return i
		}
	}
	return -1
}

// TxnGetRow returns the pending overlay's entry for key if the session
// has touched it this transaction; otherwise it falls back to the MVCC
// store under the session's read view.
func (c *Coordinator) TxnGetRow(s *Session, db, table string, pk int64) (*core.Row, bool, error) {
	if s.Txn != nil {
		if row, ok := s.Txn.PendingEntry(RowKey{DB: db, Table: table, PK: pk}); ok {
			return row, row != nil, nil
		}
	}
	view := c.viewFor(s)
	return c.store.GetRow(db, table, pk, view)
}

// TxnScanRows merges the session's pending-writes overlay over an MVCC
// scan: pending upserts override the scanned row, pending deletes
// remove it, and rows the overlay never touched pass through unchanged.
func (c *Coordinator) TxnScanRows(s *Session, db, table string) ([]mvcc.RowWithPK, error) {
	view := c.viewFor(s)
	base, err := c.store.ScanRows(db, table, view)
	if err != nil {
		return nil, err
	}

	byPK := make(map[int64]core.Row, len(base))
	order := make([]int64, 0, len(base))
	for _, r := range base {
		byPK[r.PK] = r.Row
		order = append(order, r.PK)
	}

	if s.Txn != nil {
		for key, row := range s.Txn.Pending {
			if key.DB != db || key.Table != table {
				continue
			}
			if _, existed := byPK[key.PK]; !existed && row != nil {
				order = append(order, key.PK)
			}
			if row == nil {
				delete(byPK, key.PK)
			} else {
				byPK[key.PK] = *row
			}
		}
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	out := make([]mvcc.RowWithPK, 0, len(byPK))
	seen := make(map[int64]bool, len(order))
	for _, pk := range order {
		if seen[pk] {
			continue
		}
		seen[pk] = true
		row, ok := byPK[pk]
		if !ok {
			continue
		}
		out = append(out, mvcc.RowWithPK{PK: pk, Row: row})
	}
	return out, nil
}

// viewFor returns the read view a session's reads should use: its own
// transaction's snapshot if one is active, or a fresh own-transaction
// view otherwise (an implicit, immediately-visible-to-self read).
func (c *Coordinator) viewFor(s *Session) mvcc.ReadView {
	if s.Txn != nil {
		return s.Txn.ReadView
	}
	return c.EnsureActive(s).ReadView
}
