package sqlexec

import (
	"strings"

	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/opcode"

	"miniql/internal/auth"
	"miniql/internal/core"
	"miniql/internal/enginerr"
	"miniql/internal/txn"
)

// resolveFrom composes a query's FROM clause into a single rowSet:
// comma-separated tables form cartesian products, and every JOIN
// composes left and right under its predicate rule.
// Callers must only invoke this when the query has a FROM clause; a
// FROM-less SELECT is handled separately by the query stage.
func (ex *Executor) resolveFrom(sess *txn.Session, from *ast.TableRefsClause) (*rowSet, error) {
	return ex.resolveResultSetNode(sess, from.TableRefs)
}

func (ex *Executor) resolveResultSetNode(sess *txn.Session, node ast.ResultSetNode) (*rowSet, error) {
	switch n := node.(type) {
	case *ast.Join:
		return ex.resolveJoin(sess, n)
	case *ast.TableSource:
		inner, err := ex.resolveResultSetNode(sess, n.Source)
		if err != nil {
			return nil, err
		}
		if n.AsName.O != "" {
			inner = renameTable(inner, n.AsName.O)
		}
		return inner, nil
	case *ast.TableName:
		return ex.scanTableName(sess, n)
	case *ast.SelectStmt:
		return nil, enginerr.NotSupportedf("subqueries in FROM are not supported")
	default:
		return nil, enginerr.NotSupportedf("unsupported FROM clause element: %T", node)
	}
}

func renameTable(rs *rowSet, alias string) *rowSet {
	out := &rowSet{cols: make([]colRef, len(rs.cols)), rows: rs.rows}
	for i, c := range rs.cols {
		out.cols[i] = colRef{table: alias, name: c.name}
	}
	return out
}

// scanTableName resolves a single FROM-clause table reference: either
// a synthesized information_schema table or a real table scanned
// through the coordinator's pending-overlay-aware read path.
func (ex *Executor) scanTableName(sess *txn.Session, tn *ast.TableName) (*rowSet, error) {
	db := tn.Schema.O
	if db == "" {
		db = sess.CurrentDB
	}
	tableName := tn.Name.O

	if strings.EqualFold(db, "information_schema") {
		return ex.synthesizeInformationSchema(sess, tableName)
	}

	if db == "" {
		return nil, enginerr.NotFoundf("no database selected")
	}
	if err := ex.requirePriv(sess, db, auth.PrivSelect); err != nil {
		return nil, err
	}

	def, err := ex.coord.Store().GetTable(db, tableName)
	if err != nil {
		return nil, err
	}
	scanned, err := ex.coord.TxnScanRows(sess, db, tableName)
	if err != nil {
		return nil, err
	}

	cols := make([]colRef, len(def.Columns))
	for i, c := range def.Columns {
		cols[i] = colRef{table: tableName, name: c.Name}
	}
	rows := make([][]core.Cell, len(scanned))
	for i, r := range scanned {
		rows[i] = r.Row.Values
	}
	return &rowSet{cols: cols, rows: rows}, nil
}

// joinCond is the resolved predicate for one join: either a set of
// equi-join index pairs (extracted whenever the predicate decomposes
// cleanly into left_col = right_col conjuncts) or a general
// expression evaluated against the concatenated row.
type joinCond struct {
	pairs [][2]int    // [leftIdx, rightIdx]; nil if unset
	expr  ast.ExprNode // general predicate; nil if pairs is the whole story
	cm    *columnMap   // column map over the concatenated row, for expr
}

func (jc *joinCond) keep(sess *txn.Session, l, r []core.Cell) (bool, error) {
	if jc == nil {
		return true, nil
	}
	for _, p := range jc.pairs {
		lv, rv := l[p[0]], r[p[1]]
		if lv.IsNull() || rv.IsNull() || lv.Compare(rv) != 0 {
			return false, nil
		}
	}
	if jc.expr == nil {
		return true, nil
	}
	combined := concatRows(l, r)
	tri, err := evalBool(&evalCtx{row: combined, cm: jc.cm, sess: sess}, jc.expr)
	if err != nil {
		return false, err
	}
	return tri == TriTrue, nil
}

// resolveJoin composes two ResultSetNodes under a Join's predicate
// rule: INNER/CROSS keep matching pairs, LEFT/RIGHT OUTER preserve
// every row of their preserved side, USING/NATURAL synthesize an
// equi-join predicate from shared column names.
func (ex *Executor) resolveJoin(sess *txn.Session, j *ast.Join) (*rowSet, error) {
	left, err := ex.resolveResultSetNode(sess, j.Left)
	if err != nil {
		return nil, err
	}
	if j.Right == nil {
		return left, nil
	}
	right, err := ex.resolveResultSetNode(sess, j.Right)
	if err != nil {
		return nil, err
	}

	leftCM := newColumnMap(left.cols)
	rightCM := newColumnMap(right.cols)

	var cond *joinCond
	switch {
	case j.On != nil:
		if pairs, ok := extractEquiPairs(j.On.Expr, leftCM, rightCM); ok {
			cond = &joinCond{pairs: pairs}
		} else {
			combinedCM := newColumnMap(combineCols(left.cols, right.cols))
			cond = &joinCond{expr: j.On.Expr, cm: combinedCM}
		}
	case len(j.Using) > 0:
		pairs, err := pairsFromUsing(j.Using, leftCM, rightCM)
		if err != nil {
			return nil, err
		}
		cond = &joinCond{pairs: pairs}
	case j.NaturalJoin:
		cond = &joinCond{pairs: pairsFromNatural(left.cols, right.cols, leftCM, rightCM)}
	}

	out := &rowSet{cols: combineCols(left.cols, right.cols)}

	switch j.Tp {
	case ast.LeftJoin:
		for _, l := range left.rows {
			matched := false
			for _, r := range right.rows {
				ok, err := cond.keep(sess, l, r)
				if err != nil {
					return nil, err
				}
				if ok {
					matched = true
					out.rows = append(out.rows, concatRows(l, r))
				}
			}
			if !matched {
				out.rows = append(out.rows, concatRows(l, nullRow(len(right.cols))))
			}
		}
	case ast.RightJoin:
		for _, r := range right.rows {
			matched := false
			for _, l := range left.rows {
				ok, err := cond.keep(sess, l, r)
				if err != nil {
					return nil, err
				}
				if ok {
					matched = true
					out.rows = append(out.rows, concatRows(l, r))
				}
			}
			if !matched {
				out.rows = append(out.rows, concatRows(nullRow(len(left.cols)), r))
			}
		}
	default:
		// Comma joins and plain/INNER JOIN carry no outer-join Tp value
		// in the parsed tree; both behave like CROSS JOIN here, with an
		// ON/USING predicate (if any) filtering the product.
		for _, l := range left.rows {
			for _, r := range right.rows {
				ok, err := cond.keep(sess, l, r)
				if err != nil {
					return nil, err
				}
				if ok {
					out.rows = append(out.rows, concatRows(l, r))
				}
			}
		}
	}

	return out, nil
}

// pairsFromUsing resolves a JOIN ... USING(cols) clause into equi-join
// index pairs; each column must resolve to exactly one column on the
// left side and exactly one column on the right side.
func pairsFromUsing(using []*ast.ColumnName, leftCM, rightCM *columnMap) ([][2]int, error) {
	pairs := make([][2]int, 0, len(using))
	for _, col := range using {
		name := col.Name.O
		li, ok := leftCM.has(name)
		if !ok {
			return nil, enginerr.NotFoundf("USING column not found on left side: %s", name)
		}
		ri, ok := rightCM.has(name)
		if !ok {
			return nil, enginerr.NotFoundf("USING column not found on right side: %s", name)
		}
		pairs = append(pairs, [2]int{li, ri})
	}
	return pairs, nil
}

// pairsFromNatural resolves a NATURAL JOIN into equi-join index pairs:
// every right-table column name appearing in exactly one left-table
// column participates.
func pairsFromNatural(leftCols, rightCols []colRef, leftCM, rightCM *columnMap) [][2]int {
	var pairs [][2]int
	seen := map[string]bool{}
	for _, rc := range rightCols {
		lname := strings.ToLower(rc.name)
		if seen[lname] {
			continue
		}
		seen[lname] = true
		li, ok := leftCM.has(rc.name)
		if !ok {
			continue
		}
		ri, _ := rightCM.has(rc.name)
		pairs = append(pairs, [2]int{li, ri})
	}
	return pairs
}

// extractEquiPairs decomposes a conjunction of left_col = right_col
// terms into index pairs, enabling the direct cell-equality fast path
// instead of full predicate evaluation. Returns ok=false if any
// conjunct is not a simple column-to-column equality spanning exactly
// one side each.
func extractEquiPairs(expr ast.ExprNode, leftCM, rightCM *columnMap) ([][2]int, bool) {
	var pairs [][2]int
	var walk func(e ast.ExprNode) bool
	walk = func(e ast.ExprNode) bool {
		bin, ok := e.(*ast.BinaryOperationExpr)
		if !ok {
			return false
		}
		if bin.Op == opcode.LogicAnd {
			return walk(bin.L) && walk(bin.R)
		}
		if bin.Op != opcode.EQ {
			return false
		}
		lc, lok := bin.L.(*ast.ColumnNameExpr)
		rc, rok := bin.R.(*ast.ColumnNameExpr)
		if !lok || !rok {
			return false
		}
		if li, err := leftCM.resolve(lc.Name.Table.O, lc.Name.Name.O); err == nil {
			if ri, err := rightCM.resolve(rc.Name.Table.O, rc.Name.Name.O); err == nil {
				pairs = append(pairs, [2]int{li, ri})
				return true
			}
		}
		if li, err := leftCM.resolve(rc.Name.Table.O, rc.Name.Name.O); err == nil {
			if ri, err := rightCM.resolve(lc.Name.Table.O, lc.Name.Name.O); err == nil {
				pairs = append(pairs, [2]int{li, ri})
				return true
			}
		}
		return false
	}
	if expr != nil && walk(expr) {
		return pairs, true
	}
	return nil, false
}
