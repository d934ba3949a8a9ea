package sqlexec

import (
	"github.com/pingcap/tidb/pkg/parser/ast"

	"miniql/internal/auth"
	"miniql/internal/core"
	"miniql/internal/enginerr"
	"miniql/internal/keycodec"
	"miniql/internal/lockmgr"
	"miniql/internal/txn"
)

// extractTableName unwraps the thin ResultSetNode tree INSERT/UPDATE/
// DELETE's target clauses parse to (a lone table, possibly wrapped in
// a TableSource alias or a one-sided Join) down to the underlying
// TableName.
func extractTableName(node ast.ResultSetNode) (*ast.TableName, string, error) {
	switch n := node.(type) {
	case *ast.TableName:
		return n, "", nil
	case *ast.TableSource:
		tn, _, err := extractTableName(n.Source)
		if err != nil {
			return nil, "", err
		}
		return tn, n.AsName.O, nil
	case *ast.Join:
		if n.Right != nil {
			return nil, "", enginerr.NotSupportedf("multi-table statements are not supported")
		}
		return extractTableName(n.Left)
	default:
		return nil, "", enginerr.NotSupportedf("unsupported target table expression: %T", node)
	}
}

func (ex *Executor) resolveDB(sess *txn.Session, tn *ast.TableName) string {
	if tn.Schema.O != "" {
		return tn.Schema.O
	}
	return sess.CurrentDB
}

// execInsert handles column-list expansion, literal type coercion,
// auto-increment allocation, duplicate-pk rejection (against both
// committed and pending rows), and statement-level atomicity under a
// single lock guard.
func (ex *Executor) execInsert(sess *txn.Session, n *ast.InsertStmt) (*Outcome, error) {
	tn, _, err := extractTableName(n.Table.TableRefs)
	if err != nil {
		return nil, err
	}
	db := ex.resolveDB(sess, tn)
	if db == "" {
		return nil, enginerr.NotFoundf("no database selected")
	}
	if err := ex.requirePriv(sess, db, auth.PrivInsert); err != nil {
		return nil, err
	}
	table := tn.Name.O
	def, err := ex.coord.Store().GetTable(db, table)
	if err != nil {
		return nil, err
	}

	targetCols := n.Columns
	colIdx := make([]int, len(targetCols))
	if len(targetCols) == 0 {
		colIdx = make([]int, len(def.Columns))
		for i := range def.Columns {
			colIdx[i] = i
		}
	} else {
		for i, c := range targetCols {
			idx := def.ColumnIndex(c.Name.O)
			if idx < 0 {
				return nil, enginerr.NotFoundf("unknown column: %s", c.Name.O)
			}
			colIdx[i] = idx
		}
	}

	pkIdx := def.PrimaryKeyIndex()
	ex.coord.EnsureActive(sess)

	guard := lockmgr.NewGuard(ex.coord.Locks(), sess.ConnID)
	defer guard.Close()

	seenPK := map[int64]bool{}
	stmtRows := map[txn.RowKey]*core.Row{}
	ctx := &evalCtx{sess: sess}
	affected := uint64(0)
	var lastInsertID int64

	for _, values := range n.Lists {
		if len(values) != len(colIdx) {
			return nil, enginerr.Invalidf("column count does not match value count")
		}
		row := make([]core.Cell, len(def.Columns))
		for i := range row {
			row[i] = core.NullCell()
		}
		provided := make([]bool, len(def.Columns))
		for i, expr := range values {
			v, err := evalScalar(ctx, expr)
			if err != nil {
				return nil, err
			}
			coerced, cerr := core.CoerceLiteral(v, def.Columns[colIdx[i]])
			if cerr != nil {
				return nil, enginerr.Invalidf("%s", cerr.Error())
			}
			row[colIdx[i]] = coerced
			provided[colIdx[i]] = true
		}

		for i, col := range def.Columns {
			if provided[i] {
				continue
			}
			if i == pkIdx && def.AutoIncrement {
				continue
			}
			if !col.Nullable {
				return nil, enginerr.Invalidf("field %q doesn't have a default value", col.Name)
			}
		}

		var pk int64
		if def.AutoIncrement && (!provided[pkIdx] || row[pkIdx].IsNull() || row[pkIdx].I == 0) {
			id, err := ex.coord.Store().AllocateAutoIncrement(db, table)
			if err != nil {
				return nil, err
			}
			pk = id
			row[pkIdx] = core.IntCell(pk)
		} else {
			v, ok := row[pkIdx].AsInt64()
			if !ok {
				return nil, enginerr.Invalidf("primary key value must be an integer")
			}
			pk = v
			if def.AutoIncrement {
				if err := ex.coord.Store().BumpAutoIncrementNext(db, table, pk+1); err != nil {
					return nil, err
				}
			}
		}

		if seenPK[pk] {
			return nil, enginerr.Invalidf("duplicate entry %d for primary key", pk)
		}
		if _, exists, err := ex.coord.TxnGetRow(sess, db, table, pk); err != nil {
			return nil, err
		} else if exists {
			return nil, enginerr.Invalidf("duplicate entry %d for primary key", pk)
		}
		seenPK[pk] = true

		if err := guard.Lock(keycodec.RowPKPrefix(db, table, pk)); err != nil {
			return nil, err
		}

		stored := core.Row{Values: row}
		stmtRows[txn.RowKey{DB: db, Table: table, PK: pk}] = &stored
		affected++
		lastInsertID = pk
	}

	for key, row := range stmtRows {
		sess.Txn.Pending[key] = row
	}
	guard.Keep()
	return okOutcome(affected, lastInsertID), nil
}

// execUpdate handles single-table UPDATE: WHERE is mandatory, the
// primary key column may not be assigned, and matching rows are
// re-evaluated and written back as new pending versions.
func (ex *Executor) execUpdate(sess *txn.Session, n *ast.UpdateStmt) (*Outcome, error) {
	tn, _, err := extractTableName(n.TableRefs.TableRefs)
	if err != nil {
		return nil, err
	}
	db := ex.resolveDB(sess, tn)
	if db == "" {
		return nil, enginerr.NotFoundf("no database selected")
	}
	if err := ex.requirePriv(sess, db, auth.PrivUpdate); err != nil {
		return nil, err
	}
	table := tn.Name.O
	def, err := ex.coord.Store().GetTable(db, table)
	if err != nil {
		return nil, err
	}
	if n.Where == nil {
		return nil, enginerr.NotSupportedf("UPDATE without WHERE is not supported")
	}

	assignIdx := make([]int, len(n.List))
	for i, a := range n.List {
		idx := def.ColumnIndex(a.Column.Name.O)
		if idx < 0 {
			return nil, enginerr.NotFoundf("unknown column: %s", a.Column.Name.O)
		}
		if idx == def.PrimaryKeyIndex() {
			return nil, enginerr.Invalidf("the primary key column cannot be updated")
		}
		assignIdx[i] = idx
	}

	cols := make([]colRef, len(def.Columns))
	for i, c := range def.Columns {
		cols[i] = colRef{table: table, name: c.Name}
	}
	cm := newColumnMap(cols)

	scanned, err := ex.coord.TxnScanRows(sess, db, table)
	if err != nil {
		return nil, err
	}

	ex.coord.EnsureActive(sess)
	guard := lockmgr.NewGuard(ex.coord.Locks(), sess.ConnID)
	defer guard.Close()

	stmtRows := map[txn.RowKey]*core.Row{}
	affected := uint64(0)
	for _, r := range scanned {
		rowCells := r.Row.Values
		tri, err := evalBool(&evalCtx{row: rowCells, cm: cm, sess: sess}, n.Where)
		if err != nil {
			return nil, err
		}
		if !tri.Passes() {
			continue
		}
		if err := guard.Lock(keycodec.RowPKPrefix(db, table, r.PK)); err != nil {
			return nil, err
		}

		newRow := make([]core.Cell, len(rowCells))
		copy(newRow, rowCells)
		ctx := &evalCtx{row: rowCells, cm: cm, sess: sess}
		for i, a := range n.List {
			v, err := evalScalar(ctx, a.Expr)
			if err != nil {
				return nil, err
			}
			coerced, cerr := core.CoerceLiteral(v, def.Columns[assignIdx[i]])
			if cerr != nil {
				return nil, enginerr.Invalidf("%s", cerr.Error())
			}
			newRow[assignIdx[i]] = coerced
		}

		stored := core.Row{Values: newRow}
		stmtRows[txn.RowKey{DB: db, Table: table, PK: r.PK}] = &stored
		affected++
	}

	for key, row := range stmtRows {
		sess.Txn.Pending[key] = row
	}
	guard.Keep()
	return okOutcome(affected, 0), nil
}

// execDelete handles single-table DELETE: WHERE is mandatory; matching
// rows become pending tombstones.
func (ex *Executor) execDelete(sess *txn.Session, n *ast.DeleteStmt) (*Outcome, error) {
	tn, _, err := extractTableName(n.TableRefs.TableRefs)
	if err != nil {
		return nil, err
	}
	db := ex.resolveDB(sess, tn)
	if db == "" {
		return nil, enginerr.NotFoundf("no database selected")
	}
	if err := ex.requirePriv(sess, db, auth.PrivDelete); err != nil {
		return nil, err
	}
	table := tn.Name.O
	def, err := ex.coord.Store().GetTable(db, table)
	if err != nil {
		return nil, err
	}
	if n.Where == nil {
		return nil, enginerr.NotSupportedf("DELETE without WHERE is not supported")
	}

	cols := make([]colRef, len(def.Columns))
	for i, c := range def.Columns {
		cols[i] = colRef{table: table, name: c.Name}
	}
	cm := newColumnMap(cols)

	scanned, err := ex.coord.TxnScanRows(sess, db, table)
	if err != nil {
		return nil, err
	}

	ex.coord.EnsureActive(sess)
	guard := lockmgr.NewGuard(ex.coord.Locks(), sess.ConnID)
	defer guard.Close()

	stmtKeys := make([]txn.RowKey, 0, len(scanned))
	affected := uint64(0)
	for _, r := range scanned {
		tri, err := evalBool(&evalCtx{row: r.Row.Values, cm: cm, sess: sess}, n.Where)
		if err != nil {
			return nil, err
		}
		if !tri.Passes() {
			continue
		}
		if err := guard.Lock(keycodec.RowPKPrefix(db, table, r.PK)); err != nil {
			return nil, err
		}
		stmtKeys = append(stmtKeys, txn.RowKey{DB: db, Table: table, PK: r.PK})
		affected++
	}

	for _, key := range stmtKeys {
		sess.Txn.Pending[key] = nil
	}
	guard.Keep()
	return okOutcome(affected, 0), nil
}
