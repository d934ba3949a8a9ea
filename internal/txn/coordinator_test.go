package txn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"miniql/internal/core"
	"miniql/internal/kvstore"
	"miniql/internal/lockmgr"
	"miniql/internal/mvcc"
)

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	kv, err := kvstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	store := mvcc.New(kv)
	require.NoError(t, store.CreateDatabase("d"))
	def := &core.TableDef{
		DB:         "d",
		Name:       "t",
		PrimaryKey: "id",
		Columns: []core.ColumnDef{
			{Name: "id", Type: core.TypeInt},
			{Name: "v", Type: core.TypeInt, Nullable: true},
		},
	}
	require.NoError(t, store.CreateTable(def))

	txnMgr := mvcc.NewTxnManager(1)
	return NewCoordinator(store, lockmgr.New(), txnMgr, store.GetTable)
}

func TestBeginCommitRoundTrip(t *testing.T) {
	c := newTestCoordinator(t)
	sess := NewSession(NextConnID(), "root")

	c.Begin(sess)
	assert.True(t, sess.InTxn())

	c.EnsureActive(sess)
	sess.Txn.Pending[RowKey{DB: "d", Table: "t", PK: 1}] = &core.Row{Values: []core.Cell{core.IntCell(1), core.IntCell(42)}}

	require.NoError(t, c.Commit(sess))
	assert.False(t, sess.InTxn())

	row, ok, err := c.Store().GetRow("d", "t", 1, mvcc.ReadView{VisibleUpTo: ^uint64(0)})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(42), row.Values[1].I)
}

func TestRollbackDiscardsPending(t *testing.T) {
	c := newTestCoordinator(t)
	sess := NewSession(NextConnID(), "root")

	c.Begin(sess)
	c.EnsureActive(sess)
	sess.Txn.Pending[RowKey{DB: "d", Table: "t", PK: 1}] = &core.Row{Values: []core.Cell{core.IntCell(1), core.IntCell(1)}}
	c.Rollback(sess)

	_, ok, err := c.Store().GetRow("d", "t", 1, mvcc.ReadView{VisibleUpTo: ^uint64(0)})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSavepointRollback(t *testing.T) {
	c := newTestCoordinator(t)
	sess := NewSession(NextConnID(), "root")

	c.Begin(sess)
	c.EnsureActive(sess)
	sess.Txn.Pending[RowKey{DB: "d", Table: "t", PK: 1}] = &core.Row{Values: []core.Cell{core.IntCell(1), core.IntCell(1)}}
	require.NoError(t, c.Savepoint(sess, "sp1"))
	sess.Txn.Pending[RowKey{DB: "d", Table: "t", PK: 2}] = &core.Row{Values: []core.Cell{core.IntCell(2), core.IntCell(2)}}

	require.NoError(t, c.RollbackTo(sess, "sp1"))
	_, ok := sess.Txn.PendingEntry(RowKey{DB: "d", Table: "t", PK: 2})
	assert.False(t, ok)
	_, ok = sess.Txn.PendingEntry(RowKey{DB: "d", Table: "t", PK: 1})
	assert.True(t, ok)

	require.NoError(t, c.Commit(sess))
}

func TestShouldBufferWrites(t *testing.T) {
	sess := NewSession(NextConnID(), "root")
	assert.False(t, sess.ShouldBufferWrites())

	sess.Autocommit = false
	assert.True(t, sess.ShouldBufferWrites())

	sess.Autocommit = true
	sess.Txn = newState()
	sess.Txn.InTxn = true
	assert.True(t, sess.ShouldBufferWrites())
}
