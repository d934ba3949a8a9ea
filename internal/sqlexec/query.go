package sqlexec

import (
	"sort"
	"strings"

	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/test_driver"

	"miniql/internal/core"
	"miniql/internal/enginerr"
	"miniql/internal/txn"
)

// projField is one resolved output column of a projection: either a
// direct positional reference into the composed row (produced by
// wildcard expansion) or a general expression to evaluate.
type projField struct {
	colIdx int // >= 0 for a direct column reference, -1 for expr
	expr   ast.ExprNode
	alias  string
}

func fieldAlias(f *ast.SelectField) string {
	if f.AsName.O != "" {
		return f.AsName.O
	}
	if col, ok := f.Expr.(*ast.ColumnNameExpr); ok {
		return col.Name.Name.O
	}
	return strings.TrimSpace(f.Expr.Text())
}

func countDistinctTables(cols []colRef) int {
	seen := map[string]bool{}
	for _, c := range cols {
		if c.table != "" {
			seen[strings.ToLower(c.table)] = true
		}
	}
	if len(seen) == 0 {
		return 1
	}
	return len(seen)
}

// buildProjFields expands a select field list's wildcards against the
// composed FROM row set. cols may be nil for a FROM-less SELECT.
func buildProjFields(fields []*ast.SelectField, cols []colRef) ([]projField, error) {
	multiTable := countDistinctTables(cols) > 1
	out := make([]projField, 0, len(fields))
	for _, f := range fields {
		if f.WildCard != nil {
			tbl := f.WildCard.Table.O
			matched := false
			for i, c := range cols {
				if tbl != "" && !strings.EqualFold(c.table, tbl) {
					continue
				}
				matched = true
				alias := c.name
				if tbl == "" && multiTable && c.table != "" {
					alias = c.table + "." + c.name
				}
				out = append(out, projField{colIdx: i, alias: alias})
			}
			if !matched {
				if tbl == "" {
					return nil, enginerr.NotFoundf("SELECT * with no tables in FROM")
				}
				return nil, enginerr.NotFoundf("unknown table for wildcard: %s", tbl)
			}
			continue
		}
		out = append(out, projField{colIdx: -1, expr: f.Expr, alias: fieldAlias(f)})
	}
	return out, nil
}

func evalProjField(ctx *evalCtx, f projField) (core.Cell, error) {
	if f.colIdx >= 0 {
		return ctx.row[f.colIdx], nil
	}
	return evalScalar(ctx, f.expr)
}

// asTopAggregate reports whether expr is itself an aggregate call (not
// merely containing one), the shape the grouped projection stage
// folds directly rather than evaluating against a representative row.
func asTopAggregate(e ast.ExprNode) (*ast.AggregateFuncExpr, bool) {
	return isAggregateExpr(e)
}

func isCountStar(agg *ast.AggregateFuncExpr) bool {
	if !strings.EqualFold(agg.F, "count") {
		return false
	}
	if len(agg.Args) == 0 {
		return true
	}
	if len(agg.Args) == 1 {
		if col, ok := agg.Args[0].(*ast.ColumnNameExpr); ok && col.Name.Name.O == "*" {
			return true
		}
		if strings.TrimSpace(agg.Args[0].Text()) == "*" {
			return true
		}
	}
	return false
}

// groupData accumulates one group's aggregator state plus the
// representative row (the group's first input row) non-aggregate
// fields are evaluated against.
type groupData struct {
	rep  []core.Cell
	aggs map[int]*aggregator
}

// execSelect runs the full SELECT pipeline: FROM composition, WHERE
// filtering, projection (with GROUP BY / aggregate folding), HAVING,
// DISTINCT, ORDER BY, and LIMIT/OFFSET, in that order.
func (ex *Executor) execSelect(sess *txn.Session, stmt *ast.SelectStmt) (*Outcome, error) {
	if stmt.From == nil {
		return ex.execSelectNoFrom(sess, stmt)
	}

	base, err := ex.resolveFrom(sess, stmt.From)
	if err != nil {
		return nil, err
	}
	cm := newColumnMap(base.cols)

	filtered := make([][]core.Cell, 0, len(base.rows))
	for _, row := range base.rows {
		tri, err := evalBool(&evalCtx{row: row, cm: cm, sess: sess}, stmt.Where)
		if err != nil {
			return nil, err
		}
		if tri.Passes() {
			filtered = append(filtered, row)
		}
	}

	projFields, err := buildProjFields(stmt.Fields.Fields, base.cols)
	if err != nil {
		return nil, err
	}

	hasAgg := stmt.GroupBy != nil && len(stmt.GroupBy.Items) > 0
	if !hasAgg {
		for _, f := range stmt.Fields.Fields {
			if f.Expr != nil && containsAggregateExpr(f.Expr) {
				hasAgg = true
				break
			}
		}
	}

	var outCols []ColumnMeta
	var outRows [][]core.Cell

	if hasAgg {
		outRows, err = ex.execGrouped(sess, stmt, cm, filtered, projFields)
		if err != nil {
			return nil, err
		}
		outCols = projColumnMeta(projFields)
		outRows, err = applyHaving(sess, stmt.Having, outCols, outRows)
		if err != nil {
			return nil, err
		}
		outRows = dedupDistinct(distinctRequested(stmt), outRows)
		outRows, err = orderGrouped(sess, stmt.OrderBy, outCols, outRows)
		if err != nil {
			return nil, err
		}
	} else {
		type pair struct {
			base []core.Cell
			proj []core.Cell
		}
		pairs := make([]pair, 0, len(filtered))
		for _, row := range filtered {
			ctx := &evalCtx{row: row, cm: cm, sess: sess}
			proj := make([]core.Cell, len(projFields))
			for i, f := range projFields {
				v, err := evalProjField(ctx, f)
				if err != nil {
					return nil, err
				}
				proj[i] = v
			}
			pairs = append(pairs, pair{base: row, proj: proj})
		}

		if distinctRequested(stmt) {
			seen := map[string]bool{}
			deduped := pairs[:0]
			for _, p := range pairs {
				key := rowHashKey(p.proj)
				if seen[key] {
					continue
				}
				seen[key] = true
				deduped = append(deduped, p)
			}
			pairs = deduped
		}

		if stmt.OrderBy != nil {
			outCols = projColumnMeta(projFields)
			outCM := columnMapForOutput(outCols)
			var sortErr error
			sort.SliceStable(pairs, func(i, j int) bool {
				if sortErr != nil {
					return false
				}
				less, err := lessByOrderItems(sess, stmt.OrderBy.Items, cm, outCM, pairs[i].base, pairs[i].proj, pairs[j].base, pairs[j].proj)
				if err != nil {
					sortErr = err
				}
				return less
			})
			if sortErr != nil {
				return nil, sortErr
			}
		}

		outRows = make([][]core.Cell, len(pairs))
		for i, p := range pairs {
			outRows[i] = p.proj
		}
		outCols = projColumnMeta(projFields)
	}

	outRows = applyLimit(sess, stmt.Limit, outRows)

	return rowsOutcome(&ResultSet{Columns: outCols, Rows: outRows}), nil
}

// execSelectNoFrom handles `SELECT <exprs>` with no FROM clause: a
// single synthetic row, used for things like `SELECT @@version` or
// `SELECT 1+1`.
func (ex *Executor) execSelectNoFrom(sess *txn.Session, stmt *ast.SelectStmt) (*Outcome, error) {
	projFields, err := buildProjFields(stmt.Fields.Fields, nil)
	if err != nil {
		return nil, err
	}
	ctx := &evalCtx{sess: sess}
	row := make([]core.Cell, len(projFields))
	for i, f := range projFields {
		v, err := evalProjField(ctx, f)
		if err != nil {
			return nil, err
		}
		row[i] = v
	}
	return rowsOutcome(&ResultSet{Columns: projColumnMeta(projFields), Rows: [][]core.Cell{row}}), nil
}

func containsAggregateExpr(e ast.ExprNode) bool {
	found := false
	e.Accept(&aggFinder{hit: &found})
	return found
}

func projColumnMeta(fields []projField) []ColumnMeta {
	out := make([]ColumnMeta, len(fields))
	for i, f := range fields {
		out[i] = ColumnMeta{Name: f.alias, Type: core.TypeText}
	}
	return out
}

func distinctRequested(stmt *ast.SelectStmt) bool {
	return stmt.SelectStmtOpts != nil && stmt.SelectStmtOpts.Distinct
}

func rowHashKey(row []core.Cell) string {
	var b strings.Builder
	for _, c := range row {
		b.WriteString(cellText(c))
		b.WriteByte(0)
		if c.IsNull() {
			b.WriteByte(1)
		}
		b.WriteByte(0)
	}
	return b.String()
}

func dedupDistinct(distinct bool, rows [][]core.Cell) [][]core.Cell {
	if !distinct {
		return rows
	}
	seen := map[string]bool{}
	out := rows[:0]
	for _, r := range rows {
		key := rowHashKey(r)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

// execGrouped folds filtered rows into groups per stmt.GroupBy (or one
// implicit group when the query has aggregates but no GROUP BY),
// producing one output row per group under the representative-row
// rule.
func (ex *Executor) execGrouped(sess *txn.Session, stmt *ast.SelectStmt, cm *columnMap, rows [][]core.Cell, fields []projField) ([][]core.Cell, error) {
	var groupItems []ast.ExprNode
	if stmt.GroupBy != nil {
		for _, item := range stmt.GroupBy.Items {
			groupItems = append(groupItems, item.Expr)
		}
	}

	order := []string{}
	groups := map[string]*groupData{}

	ensureGroup := func(key string, rep []core.Cell) *groupData {
		g, ok := groups[key]
		if !ok {
			g = &groupData{rep: rep, aggs: map[int]*aggregator{}}
			groups[key] = g
			order = append(order, key)
		}
		return g
	}

	for _, row := range rows {
		ctx := &evalCtx{row: row, cm: cm, sess: sess}
		var keyB strings.Builder
		if len(groupItems) > 0 {
			for _, item := range groupItems {
				v, err := evalScalar(ctx, item)
				if err != nil {
					return nil, err
				}
				keyB.WriteString(cellText(v))
				keyB.WriteByte(0)
			}
		}
		g := ensureGroup(keyB.String(), row)

		for idx, f := range fields {
			agg, isAgg := asTopAggregate(f.expr)
			if !isAgg {
				continue
			}
			a, ok := g.aggs[idx]
			if !ok {
				kind, ok := aggKindFromName(agg.F, isCountStar(agg))
				if !ok {
					return nil, enginerr.NotSupportedf("unsupported aggregate function: %s", agg.F)
				}
				a = newAggregator(kind)
				g.aggs[idx] = a
			}
			var val core.Cell
			if !isCountStar(agg) && len(agg.Args) > 0 {
				v, err := evalScalar(ctx, agg.Args[0])
				if err != nil {
					return nil, err
				}
				val = v
			}
			if err := a.add(val); err != nil {
				return nil, err
			}
		}
	}

	if len(groupItems) == 0 && len(order) == 0 {
		g := &groupData{aggs: map[int]*aggregator{}}
		for idx, f := range fields {
			agg, isAgg := asTopAggregate(f.expr)
			if !isAgg {
				continue
			}
			kind, ok := aggKindFromName(agg.F, isCountStar(agg))
			if !ok {
				return nil, enginerr.NotSupportedf("unsupported aggregate function: %s", agg.F)
			}
			g.aggs[idx] = newAggregator(kind)
		}
		order = append(order, "")
		groups[""] = g
	}

	out := make([][]core.Cell, 0, len(order))
	for _, key := range order {
		g := groups[key]
		row := make([]core.Cell, len(fields))
		for idx, f := range fields {
			if agg, isAgg := asTopAggregate(f.expr); isAgg {
				row[idx] = g.aggs[idx].finish()
				continue
			}
			if g.rep == nil {
				row[idx] = core.NullCell()
				continue
			}
			v, err := evalProjField(&evalCtx{row: g.rep, cm: cm, sess: sess}, f)
			if err != nil {
				return nil, err
			}
			row[idx] = v
		}
		out = append(out, row)
	}
	return out, nil
}

func columnMapForOutput(cols []ColumnMeta) *columnMap {
	refs := make([]colRef, len(cols))
	for i, c := range cols {
		refs[i] = colRef{name: c.Name}
	}
	return newColumnMap(refs)
}

func applyHaving(sess *txn.Session, having *ast.HavingClause, cols []ColumnMeta, rows [][]core.Cell) ([][]core.Cell, error) {
	if having == nil {
		return rows, nil
	}
	cm := columnMapForOutput(cols)
	out := rows[:0]
	for _, row := range rows {
		tri, err := evalBool(&evalCtx{row: row, cm: cm, sess: sess}, having.Expr)
		if err != nil {
			return nil, err
		}
		if tri.Passes() {
			out = append(out, row)
		}
	}
	return out, nil
}

func orderGrouped(sess *txn.Session, orderBy *ast.OrderByClause, cols []ColumnMeta, rows [][]core.Cell) ([][]core.Cell, error) {
	if orderBy == nil {
		return rows, nil
	}
	cm := columnMapForOutput(cols)
	var sortErr error
	sort.SliceStable(rows, func(i, j int) bool {
		if sortErr != nil {
			return false
		}
		less, err := lessByOrderItems(sess, orderBy.Items, cm, cm, rows[i], rows[i], rows[j], rows[j])
		if err != nil {
			sortErr = err
		}
		return less
	})
	return rows, sortErr
}

// lessByOrderItems evaluates an ORDER BY item list against a pair of
// rows, preferring (in order) an integer-literal output-column
// position, an output alias match, then a base-row expression
// evaluation, then a table-qualified column matched to an output
// column by its bare name.
func lessByOrderItems(sess *txn.Session, items []*ast.ByItem, baseCM, outCM *columnMap, baseI, projI, baseJ, projJ []core.Cell) (bool, error) {
	for _, item := range items {
		vi, err := evalOrderItem(sess, item.Expr, baseCM, outCM, baseI, projI)
		if err != nil {
			return false, err
		}
		vj, err := evalOrderItem(sess, item.Expr, baseCM, outCM, baseJ, projJ)
		if err != nil {
			return false, err
		}
		cmp := vi.Compare(vj)
		if cmp == 0 {
			continue
		}
		if item.Desc {
			return cmp > 0, nil
		}
		return cmp < 0, nil
	}
	return false, nil
}

func evalOrderItem(sess *txn.Session, expr ast.ExprNode, baseCM, outCM *columnMap, base, proj []core.Cell) (core.Cell, error) {
	if lit, ok := expr.(*test_driver.ValueExpr); ok {
		kind := lit.Datum.Kind()
		if kind == test_driver.KindInt64 || kind == test_driver.KindUint64 {
			idx := int(datumToCell(lit.Datum).I) - 1
			if idx >= 0 && idx < len(proj) {
				return proj[idx], nil
			}
		}
	}
	if col, ok := expr.(*ast.ColumnNameExpr); ok && col.Name.Table.O == "" {
		if idx, ok := outCM.has(col.Name.Name.O); ok {
			return proj[idx], nil
		}
	}
	if base != nil {
		if v, err := evalScalar(&evalCtx{row: base, cm: baseCM, sess: sess}, expr); err == nil {
			return v, nil
		}
	}
	if col, ok := expr.(*ast.ColumnNameExpr); ok && col.Name.Table.O != "" {
		if idx, ok := outCM.has(col.Name.Name.O); ok {
			return proj[idx], nil
		}
	}
	return evalScalar(&evalCtx{row: proj, cm: outCM, sess: sess}, expr)
}

// applyLimit applies LIMIT/OFFSET, supporting both `LIMIT n OFFSET m`
// and `LIMIT m, n` forms (tidb's parser folds both into Limit.Count /
// Limit.Offset).
func applyLimit(sess *txn.Session, limit *ast.Limit, rows [][]core.Cell) [][]core.Cell {
	if limit == nil {
		return rows
	}
	ctx := &evalCtx{sess: sess}
	offset := int64(0)
	if limit.Offset != nil {
		if v, err := evalScalar(ctx, limit.Offset); err == nil {
			offset, _ = v.AsInt64()
		}
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= int64(len(rows)) {
		return nil
	}
	rows = rows[offset:]
	if limit.Count != nil {
		if v, err := evalScalar(ctx, limit.Count); err == nil {
			count, _ := v.AsInt64()
			if count < 0 {
				count = 0
			}
			if count < int64(len(rows)) {
				rows = rows[:count]
			}
		}
	}
	return rows
}
