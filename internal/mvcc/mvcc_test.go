package mvcc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"miniql/internal/core"
	"miniql/internal/kvstore"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	kv, err := kvstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return New(kv)
}

func mustCreateTable(t *testing.T, s *Store, def *core.TableDef) {
	t.Helper()
	require.NoError(t, s.CreateDatabase(def.DB))
	require.NoError(t, s.CreateTable(def))
}

func lookupFor(def *core.TableDef) TableLookup {
	return func(db, table string) (*core.TableDef, error) { return def, nil }
}

func sampleTable() *core.TableDef {
	return &core.TableDef{
		DB:         "d",
		Name:       "t",
		PrimaryKey: "id",
		Columns: []core.ColumnDef{
			{Name: "id", Type: core.TypeInt},
			{Name: "v", Type: core.TypeInt, Nullable: true},
		},
	}
}

func TestReadViewVisibility(t *testing.T) {
	own := uint64(5)
	view := ReadView{VisibleUpTo: 5, ActiveSet: map[uint64]struct{}{3: {}}, OwnTxID: &own}
	assert.True(t, view.Visible(5), "own txn always visible")
	assert.True(t, view.Visible(2), "committed before snapshot and not active")
	assert.False(t, view.Visible(3), "active at snapshot time")
	assert.False(t, view.Visible(6), "not yet started at snapshot time")
}

func TestApplyChangesAndGetRow(t *testing.T) {
	s := openTestStore(t)
	table := sampleTable()
	mustCreateTable(t, s, table)

	row := &core.Row{Values: []core.Cell{core.IntCell(1), core.IntCell(10)}}
	require.NoError(t, s.ApplyChanges(lookupFor(table), []RowChange{{DB: "d", Table: "t", PK: 1, Row: row}}, 1))

	got, ok, err := s.GetRow("d", "t", 1, maximalView())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(10), got.Values[1].I)
}

func TestGetRowRespectsSnapshot(t *testing.T) {
	s := openTestStore(t)
	table := sampleTable()
	mustCreateTable(t, s, table)

	row1 := &core.Row{Values: []core.Cell{core.IntCell(1), core.IntCell(10)}}
	require.NoError(t, s.ApplyChanges(lookupFor(table), []RowChange{{DB: "d", Table: "t", PK: 1, Row: row1}}, 1))

	// A view whose snapshot predates tx 2 must not see tx 2's write.
	snapshot := ReadView{VisibleUpTo: 2, ActiveSet: map[uint64]struct{}{}}
	row2 := &core.Row{Values: []core.Cell{core.IntCell(1), core.IntCell(99)}}
	require.NoError(t, s.ApplyChanges(lookupFor(table), []RowChange{{DB: "d", Table: "t", PK: 1, Row: row2}}, 2))

	got, ok, err := s.GetRow("d", "t", 1, snapshot)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(10), got.Values[1].I, "snapshot predates tx 2's commit")

	latest, ok, err := s.GetRow("d", "t", 1, maximalView())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(99), latest.Values[1].I)
}

func TestTombstoneMasksOlderVersions(t *testing.T) {
	s := openTestStore(t)
	table := sampleTable()
	mustCreateTable(t, s, table)

	row := &core.Row{Values: []core.Cell{core.IntCell(1), core.IntCell(10)}}
	require.NoError(t, s.ApplyChanges(lookupFor(table), []RowChange{{DB: "d", Table: "t", PK: 1, Row: row}}, 1))
	require.NoError(t, s.ApplyChanges(lookupFor(table), []RowChange{{DB: "d", Table: "t", PK: 1, Row: nil}}, 2))

	_, ok, err := s.GetRow("d", "t", 1, maximalView())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScanRowsResolvesNewestPerPK(t *testing.T) {
	s := openTestStore(t)
	table := sampleTable()
	mustCreateTable(t, s, table)

	require.NoError(t, s.ApplyChanges(lookupFor(table), []RowChange{
		{DB: "d", Table: "t", PK: 2, Row: &core.Row{Values: []core.Cell{core.IntCell(2), core.IntCell(20)}}},
		{DB: "d", Table: "t", PK: 1, Row: &core.Row{Values: []core.Cell{core.IntCell(1), core.IntCell(10)}}},
	}, 1))
	require.NoError(t, s.ApplyChanges(lookupFor(table), []RowChange{
		{DB: "d", Table: "t", PK: 1, Row: &core.Row{Values: []core.Cell{core.IntCell(1), core.IntCell(11)}}},
	}, 2))

	rows, err := s.ScanRowsLegacy("d", "t")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0].PK)
	assert.Equal(t, int64(11), rows[0].Row.Values[1].I)
	assert.Equal(t, int64(2), rows[1].PK)
}

func TestAutoIncrementAllocatesSequentially(t *testing.T) {
	s := openTestStore(t)
	first, err := s.AllocateAutoIncrement("d", "t")
	require.NoError(t, err)
	second, err := s.AllocateAutoIncrement("d", "t")
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(2), second)
}

func TestAutoIncrementBumpNeverGoesBackward(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.BumpAutoIncrementNext("d", "t", 10))
	next, ok, err := s.AutoIncrementNext("d", "t")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(10), next)

	require.NoError(t, s.BumpAutoIncrementNext("d", "t", 5))
	next, _, err = s.AutoIncrementNext("d", "t")
	require.NoError(t, err)
	assert.Equal(t, int64(10), next, "bump never lowers the counter")
}

func TestEnsureAutoIncrementInitializedOnlyOnce(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.EnsureAutoIncrementInitialized("d", "t", 5))
	allocated, err := s.AllocateAutoIncrement("d", "t")
	require.NoError(t, err)
	assert.Equal(t, int64(6), allocated)

	require.NoError(t, s.EnsureAutoIncrementInitialized("d", "t", 100))
	next, _, err := s.AutoIncrementNext("d", "t")
	require.NoError(t, err)
	assert.Equal(t, int64(7), next, "already initialized, second call is a no-op")
}

func TestTxnManagerOwnIDNeverInOwnActiveSet(t *testing.T) {
	mgr := NewTxnManager(1)
	txID, view := mgr.StartTxn()
	assert.Equal(t, uint64(1), txID)
	_, active := view.ActiveSet[txID]
	assert.False(t, active)
	assert.True(t, view.Visible(txID))
}

func TestTxnManagerSnapshotsActiveSetAtStart(t *testing.T) {
	mgr := NewTxnManager(1)
	t1, _ := mgr.StartTxn()
	_, viewT2 := mgr.StartTxn()
	_, active := viewT2.ActiveSet[t1]
	assert.True(t, active, "t1 was still active when t2 started")

	mgr.Finish(t1)
	_, viewT3 := mgr.StartTxn()
	_, active = viewT3.ActiveSet[t1]
	assert.False(t, active, "t1 finished before t3 started")
}

func TestDropDatabaseCascades(t *testing.T) {
	s := openTestStore(t)
	table := sampleTable()
	mustCreateTable(t, s, table)
	require.NoError(t, s.ApplyChanges(lookupFor(table), []RowChange{
		{DB: "d", Table: "t", PK: 1, Row: &core.Row{Values: []core.Cell{core.IntCell(1), core.IntCell(10)}}},
	}, 1))

	require.NoError(t, s.DropDatabase("d"))

	dbs, err := s.ListDatabases()
	require.NoError(t, err)
	assert.NotContains(t, dbs, "d")

	_, err = s.GetTable("d", "t")
	assert.Error(t, err)
}
