package mvcc

import "sync"

// TxnManager allocates transaction ids and tracks the set of currently
// active ones, guarded by a single read/write lock. It is the
// "manager" the transaction coordinator consults to start a
// transaction: allocation and the read-view snapshot happen under the
// same lock, so a transaction's own id is never present in its own
// active set.
type TxnManager struct {
	mu        sync.RWMutex
	nextTxID  uint64
	activeSet map[uint64]struct{}
}

// NewTxnManager starts tx-id allocation at nextTxID (as recovered from
// the store's persisted watermark).
func NewTxnManager(nextTxID uint64) *TxnManager {
	if nextTxID == 0 {
		nextTxID = 1
	}
	return &TxnManager{
		nextTxID:  nextTxID,
		activeSet: make(map[uint64]struct{}),
	}
}

// StartTxn allocates a new transaction id and returns it alongside a
// ReadView snapshotting the active set as it stood immediately before
// this id was inserted.
func (m *TxnManager) StartTxn() (uint64, ReadView) {
	m.mu.Lock()
	defer m.mu.Unlock()

	view := ReadView{
		VisibleUpTo: m.nextTxID,
		ActiveSet:   snapshotActiveSet(m.activeSet),
	}
	txID := m.nextTxID
	m.nextTxID++
	m.activeSet[txID] = struct{}{}
	view.OwnTxID = &txID
	return txID, view
}

// Finish removes txID from the active set, called on both commit and
// rollback.
func (m *TxnManager) Finish(txID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.activeSet, txID)
}

func snapshotActiveSet(active map[uint64]struct{}) map[uint64]struct{} {
	out := make(map[uint64]struct{}, len(active))
	for k := range active {
		out[k] = struct{}{}
	}
	return out
}
