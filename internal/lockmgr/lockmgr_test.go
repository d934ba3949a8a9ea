package lockmgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"miniql/internal/enginerr"
)

func TestLockNewAcquisition(t *testing.T) {
	m := New()
	acquired, err := m.Lock(1, []byte("k"))
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestLockReentrantIsNoOp(t *testing.T) {
	m := New()
	_, err := m.Lock(1, []byte("k"))
	require.NoError(t, err)
	acquired, err := m.Lock(1, []byte("k"))
	require.NoError(t, err)
	assert.False(t, acquired)
}

func TestLockConflictFailsImmediately(t *testing.T) {
	m := New()
	_, err := m.Lock(1, []byte("k"))
	require.NoError(t, err)
	_, err = m.Lock(2, []byte("k"))
	require.Error(t, err)
	var lockErr *enginerr.LockWaitTimeoutError
	assert.ErrorAs(t, err, &lockErr)
}

func TestUnlockAllReleasesEveryOwnedKey(t *testing.T) {
	m := New()
	_, _ = m.Lock(1, []byte("a"))
	_, _ = m.Lock(1, []byte("b"))
	m.UnlockAll(1)

	acquired, err := m.Lock(2, []byte("a"))
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestGuardReleasesOnClose(t *testing.T) {
	m := New()
	g := NewGuard(m, 1)
	require.NoError(t, g.Lock([]byte("k")))
	g.Close()

	acquired, err := m.Lock(2, []byte("k"))
	require.NoError(t, err)
	assert.True(t, acquired, "guard released the lock since Keep was never called")
}

func TestGuardKeepRetainsLockAfterClose(t *testing.T) {
	m := New()
	g := NewGuard(m, 1)
	require.NoError(t, g.Lock([]byte("k")))
	g.Keep()
	g.Close()

	_, err := m.Lock(2, []byte("k"))
	assert.Error(t, err, "lock was kept by owner 1")
}

func TestGuardOnlyReleasesNewlyAcquiredLocks(t *testing.T) {
	m := New()
	_, err := m.Lock(1, []byte("pre-existing"))
	require.NoError(t, err)

	g := NewGuard(m, 1)
	require.NoError(t, g.Lock([]byte("pre-existing"))) // reentrant, not newly acquired
	g.Close()

	_, err = m.Lock(2, []byte("pre-existing"))
	assert.Error(t, err, "guard must not release a lock it did not newly acquire")
}
