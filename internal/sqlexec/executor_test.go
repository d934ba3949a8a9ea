package sqlexec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"miniql/internal/kvstore"
	"miniql/internal/lockmgr"
	"miniql/internal/mvcc"
	"miniql/internal/parsesql"
	"miniql/internal/txn"
)

type testEngine struct {
	t     *testing.T
	store *mvcc.Store
	coord *txn.Coordinator
	exec  *Executor
	ps    *parsesql.Parser
	sess  *txn.Session
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	kv, err := kvstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	store := mvcc.New(kv)
	require.NoError(t, store.EnsureRootUser(""))

	txnMgr := mvcc.NewTxnManager(1)
	coord := txn.NewCoordinator(store, lockmgr.New(), txnMgr, store.GetTable)

	return &testEngine{
		t:     t,
		store: store,
		coord: coord,
		exec:  New(coord),
		ps:    parsesql.New(),
		sess:  txn.NewSession(txn.NextConnID(), "root"),
	}
}

func (e *testEngine) run(sql string) *Outcome {
	e.t.Helper()
	stmt, err := e.ps.ParseOne(sql)
	require.NoError(e.t, err)
	out, err := e.exec.Execute(e.sess, stmt)
	require.NoError(e.t, err)
	return out
}

func (e *testEngine) runErr(sql string) error {
	e.t.Helper()
	stmt, err := e.ps.ParseOne(sql)
	require.NoError(e.t, err)
	_, err = e.exec.Execute(e.sess, stmt)
	return err
}

func TestCreateInsertSelect(t *testing.T) {
	e := newTestEngine(t)
	e.run("CREATE DATABASE shop")
	e.run("USE shop")
	e.run("CREATE TABLE items (id INT PRIMARY KEY AUTO_INCREMENT, name TEXT, price FLOAT)")
	e.run("INSERT INTO items (name, price) VALUES ('widget', 9.99)")
	e.run("INSERT INTO items (name, price) VALUES ('gadget', 19.99)")

	out := e.run("SELECT id, name, price FROM items ORDER BY id")
	require.NotNil(t, out.Result)
	require.Len(t, out.Result.Rows, 2)
	assert.Equal(t, int64(1), out.Result.Rows[0][0].I)
	assert.Equal(t, "widget", out.Result.Rows[0][1].S)
	assert.Equal(t, int64(2), out.Result.Rows[1][0].I)
}

func TestUpdateDeleteRequireWhere(t *testing.T) {
	e := newTestEngine(t)
	e.run("CREATE DATABASE shop")
	e.run("USE shop")
	e.run("CREATE TABLE items (id INT PRIMARY KEY, name TEXT)")
	e.run("INSERT INTO items (id, name) VALUES (1, 'a')")

	assert.Error(t, e.runErr("UPDATE items SET name = 'b'"))
	assert.Error(t, e.runErr("DELETE FROM items"))

	e.run("UPDATE items SET name = 'b' WHERE id = 1")
	out := e.run("SELECT name FROM items WHERE id = 1")
	assert.Equal(t, "b", out.Result.Rows[0][0].S)

	e.run("DELETE FROM items WHERE id = 1")
	out = e.run("SELECT name FROM items WHERE id = 1")
	assert.Len(t, out.Result.Rows, 0)
}

func TestTransactionRollback(t *testing.T) {
	e := newTestEngine(t)
	e.run("CREATE DATABASE shop")
	e.run("USE shop")
	e.run("CREATE TABLE items (id INT PRIMARY KEY, name TEXT)")

	e.run("BEGIN")
	e.run("INSERT INTO items (id, name) VALUES (1, 'a')")
	e.run("ROLLBACK")

	out := e.run("SELECT name FROM items")
	assert.Len(t, out.Result.Rows, 0)
}

func TestJoinAndGroupBy(t *testing.T) {
	e := newTestEngine(t)
	e.run("CREATE DATABASE shop")
	e.run("USE shop")
	e.run("CREATE TABLE customers (id INT PRIMARY KEY, name TEXT)")
	e.run("CREATE TABLE orders (id INT PRIMARY KEY, customer_id INT, amount INT)")
	e.run("INSERT INTO customers (id, name) VALUES (1, 'alice')")
	e.run("INSERT INTO customers (id, name) VALUES (2, 'bob')")
	e.run("INSERT INTO orders (id, customer_id, amount) VALUES (1, 1, 10)")
	e.run("INSERT INTO orders (id, customer_id, amount) VALUES (2, 1, 20)")
	e.run("INSERT INTO orders (id, customer_id, amount) VALUES (3, 2, 5)")

	out := e.run(`SELECT customers.name, SUM(orders.amount) FROM customers
		JOIN orders ON customers.id = orders.customer_id
		GROUP BY customers.name ORDER BY customers.name`)
	require.Len(t, out.Result.Rows, 2)
	assert.Equal(t, "alice", out.Result.Rows[0][0].S)
	assert.Equal(t, int64(30), out.Result.Rows[0][1].I)
	assert.Equal(t, "bob", out.Result.Rows[1][0].S)
	assert.Equal(t, int64(5), out.Result.Rows[1][1].I)
}

func TestCountStarWithNoMatchingRows(t *testing.T) {
	e := newTestEngine(t)
	e.run("CREATE DATABASE shop")
	e.run("USE shop")
	e.run("CREATE TABLE items (id INT PRIMARY KEY)")

	out := e.run("SELECT COUNT(*) FROM items WHERE id = 1")
	require.Len(t, out.Result.Rows, 1)
	assert.Equal(t, int64(0), out.Result.Rows[0][0].I)
}

func TestShowDatabasesAndTables(t *testing.T) {
	e := newTestEngine(t)
	e.run("CREATE DATABASE shop")
	e.run("USE shop")
	e.run("CREATE TABLE items (id INT PRIMARY KEY)")

	out := e.run("SHOW DATABASES")
	var names []string
	for _, r := range out.Result.Rows {
		names = append(names, r[0].S)
	}
	assert.Contains(t, names, "shop")
	assert.Contains(t, names, "information_schema")

	out = e.run("SHOW TABLES")
	require.Len(t, out.Result.Rows, 1)
	assert.Equal(t, "items", out.Result.Rows[0][0].S)
}

func TestDuplicatePrimaryKeyRejected(t *testing.T) {
	e := newTestEngine(t)
	e.run("CREATE DATABASE shop")
	e.run("USE shop")
	e.run("CREATE TABLE items (id INT PRIMARY KEY)")
	e.run("INSERT INTO items (id) VALUES (1)")
	assert.Error(t, e.runErr("INSERT INTO items (id) VALUES (1)"))
}

func TestMultiRowInsertFailureStagesNothing(t *testing.T) {
	e := newTestEngine(t)
	e.run("CREATE DATABASE shop")
	e.run("USE shop")
	e.run("CREATE TABLE inv (id INT PRIMARY KEY, name TEXT, qty INT)")
	e.run("INSERT INTO inv VALUES (1, 'Existing', 1)")

	e.run("BEGIN")
	err := e.runErr("INSERT INTO inv VALUES (2, 'B', 2), (1, 'Dup', 3), (3, 'C', 4)")
	require.Error(t, err)

	out := e.run("SELECT id FROM inv ORDER BY id")
	require.Len(t, out.Result.Rows, 1)
	assert.Equal(t, int64(1), out.Result.Rows[0][0].I)
	e.run("ROLLBACK")
}

func TestAlterTableBackfillsExistingRows(t *testing.T) {
	e := newTestEngine(t)
	e.run("CREATE DATABASE shop")
	e.run("USE shop")
	e.run("CREATE TABLE t (id INT PRIMARY KEY, v INT)")
	e.run("INSERT INTO t VALUES (1, 10)")

	e.run("ALTER TABLE t ADD COLUMN w INT")

	out := e.run("SELECT id, v, w FROM t")
	require.Len(t, out.Result.Rows, 1)
	assert.Equal(t, int64(1), out.Result.Rows[0][0].I)
	assert.Equal(t, int64(10), out.Result.Rows[0][1].I)
	assert.True(t, out.Result.Rows[0][2].IsNull())
}

func TestSetAndShowVariables(t *testing.T) {
	e := newTestEngine(t)
	e.run("SET autocommit = 0")
	assert.False(t, e.sess.Autocommit)
	e.run("SET autocommit = 1")
	assert.True(t, e.sess.Autocommit)

	out := e.run("SHOW VARIABLES LIKE 'autocommit'")
	require.Len(t, out.Result.Rows, 1)
	assert.Equal(t, "autocommit", out.Result.Rows[0][0].S)
}
