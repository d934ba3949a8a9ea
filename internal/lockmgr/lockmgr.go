// Package lockmgr implements the engine's row lock table: a
// process-wide map from row key to owning connection id, non-blocking
// acquisition, and a scoped guard that accumulates newly-acquired
// locks for one statement.
package lockmgr

import (
	"sync"

	"miniql/internal/enginerr"
)

// Manager is a process-wide table of row_key -> owner_conn_id plus its
// reverse index, guarded by a single mutex. Locks never block: a
// conflicting acquisition fails immediately with LockWaitTimeout.
type Manager struct {
	mu      sync.Mutex
	byKey   map[string]uint32
	byOwner map[uint32]map[string]struct{}
}

// New returns an empty lock table.
func New() *Manager {
	return &Manager{
		byKey:   make(map[string]uint32),
		byOwner: make(map[uint32]map[string]struct{}),
	}
}

// Lock attempts to acquire key for owner. It returns acquired=true if
// the lock was newly taken, false if owner already held it
// (reentrant, a no-op), or a *enginerr.LockWaitTimeoutError if another
// owner holds it.
func (m *Manager) Lock(owner uint32, key []byte) (acquired bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := string(key)
	current, held := m.byKey[k]
	switch {
	case !held:
		m.byKey[k] = owner
		if m.byOwner[owner] == nil {
			m.byOwner[owner] = make(map[string]struct{})
		}
		m.byOwner[owner][k] = struct{}{}
		return true, nil
	case current == owner:
		return false, nil
	default:
		return false, enginerr.LockWaitTimeoutf("row is locked by another session")
	}
}

// Unlock releases key if owner currently holds it; otherwise a no-op.
func (m *Manager) Unlock(owner uint32, key []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unlockLocked(owner, string(key))
}

func (m *Manager) unlockLocked(owner uint32, k string) {
	if m.byKey[k] != owner {
		return
	}
	delete(m.byKey, k)
	if keys, ok := m.byOwner[owner]; ok {
		delete(keys, k)
		if len(keys) == 0 {
			delete(m.byOwner, owner)
		}
	}
}

// UnlockAll releases every key held by owner. Called on commit,
// rollback, and connection termination.
func (m *Manager) UnlockAll(owner uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys, ok := m.byOwner[owner]
	if !ok {
		return
	}
	for k := range keys {
		if m.byKey[k] == owner {
			delete(m.byKey, k)
		}
	}
	delete(m.byOwner, owner)
}

// Guard accumulates locks newly acquired during one statement. On
// statement success, Keep transfers ownership to the session (to be
// released at commit/rollback); otherwise Close releases everything
// the guard accumulated. This mirrors a Drop-guard in languages with
// scope-based destructors: Go has no implicit destructor, so callers
// must defer Close explicitly.
type Guard struct {
	mgr      *Manager
	owner    uint32
	acquired [][]byte
	kept     bool
}

// NewGuard starts a new scoped lock accumulator for owner.
func NewGuard(mgr *Manager, owner uint32) *Guard {
	return &Guard{mgr: mgr, owner: owner}
}

// Lock acquires key for the guard's owner, recording it if newly
// acquired so Close can release it on the error path.
func (g *Guard) Lock(key []byte) error {
	acquired, err := g.mgr.Lock(g.owner, key)
	if err != nil {
		return err
	}
	if acquired {
		g.acquired = append(g.acquired, key)
	}
	return nil
}

// Keep marks the guard's locks as transferred to the session; Close
// becomes a no-op afterward.
func (g *Guard) Keep() {
	g.kept = true
}

// Close releases every lock the guard newly acquired, unless Keep was
// called. Safe to call unconditionally via defer.
func (g *Guard) Close() {
	if g.kept {
		return
	}
	for _, key := range g.acquired {
		g.mgr.Unlock(g.owner, key)
	}
	g.acquired = nil
}
