package sqlexec

import (
	"strconv"
	"strings"

	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/opcode"
	"github.com/pingcap/tidb/pkg/parser/test_driver"

	"miniql/internal/core"
	"miniql/internal/enginerr"
	"miniql/internal/txn"
)

// evalCtx bundles everything scalar expression evaluation needs: the
// composed row currently being evaluated, the column map that
// resolves identifiers against it, and the session (for @@var and
// session functions like DATABASE()).
type evalCtx struct {
	row  []core.Cell
	cm   *columnMap
	sess *txn.Session
	now  func() core.Cell // DATE/DATETIME "now" source, stubbed for deterministic tests
}

// evalScalar evaluates any expression node to a single cell. Logic and
// comparison operators reduce to Int 1/0/Null cells (MySQL's
// convention for boolean-valued scalar expressions); evalBool unwraps
// that back into a TriBool for predicate contexts.
func evalScalar(ctx *evalCtx, e ast.ExprNode) (core.Cell, error) {
	switch n := e.(type) {
	case nil:
		return core.NullCell(), nil

	case *test_driver.ValueExpr:
		return datumToCell(n.Datum), nil

	case *ast.ColumnNameExpr:
		idx, err := ctx.cm.resolve(n.Name.Table.O, n.Name.Name.O)
		if err != nil {
			return core.Cell{}, err
		}
		return ctx.row[idx], nil

	case *ast.ParenthesesExpr:
		return evalScalar(ctx, n.Expr)

	case *ast.IsNullExpr:
		v, err := evalScalar(ctx, n.Expr)
		if err != nil {
			return core.Cell{}, err
		}
		isNull := v.IsNull()
		if n.Not {
			isNull = !isNull
		}
		return boolCell(isNull), nil

	case *ast.IsTruthExpr:
		v, err := evalScalar(ctx, n.Expr)
		if err != nil {
			return core.Cell{}, err
		}
		tri := cellToTri(v)
		want := TriTrue
		if n.True == 0 {
			want = TriFalse
		}
		result := tri == want
		if n.Not {
			result = !result
		}
		return boolCell(result), nil

	case *ast.BetweenExpr:
		return evalBetween(ctx, n)

	case *ast.PatternInExpr:
		return evalIn(ctx, n)

	case *ast.PatternLikeOrIlikeExpr:
		return evalLike(ctx, n)

	case *ast.UnaryOperationExpr:
		return evalUnary(ctx, n)

	case *ast.BinaryOperationExpr:
		return evalBinary(ctx, n)

	case *ast.FuncCallExpr:
		return evalFuncCall(ctx, n)

	case *ast.VariableExpr:
		return evalSysVar(ctx, n)

	case *ast.ColumnName:
		idx, err := ctx.cm.resolve(n.Table.O, n.Name.O)
		if err != nil {
			return core.Cell{}, err
		}
		return ctx.row[idx], nil

	case *ast.SubqueryExpr:
		return core.Cell{}, enginerr.NotSupportedf("subqueries are not supported")

	default:
		return core.Cell{}, enginerr.NotSupportedf("unsupported expression: %T", e)
	}
}

// evalBool evaluates expr and interprets the result as a TriBool, the
// single entry point WHERE/HAVING/ON clauses use to decide whether a
// row is kept.
func evalBool(ctx *evalCtx, expr ast.ExprNode) (TriBool, error) {
	if expr == nil {
		return TriTrue, nil
	}
	if bin, ok := expr.(*ast.BinaryOperationExpr); ok {
		switch bin.Op {
		case opcode.LogicAnd:
			l, err := evalBool(ctx, bin.L)
			if err != nil {
				return TriUnknown, err
			}
			if l == TriFalse {
				return TriFalse, nil
			}
			r, err := evalBool(ctx, bin.R)
			if err != nil {
				return TriUnknown, err
			}
			return l.And(r), nil
		case opcode.LogicOr:
			l, err := evalBool(ctx, bin.L)
			if err != nil {
				return TriUnknown, err
			}
			if l == TriTrue {
				return TriTrue, nil
			}
			r, err := evalBool(ctx, bin.R)
			if err != nil {
				return TriUnknown, err
			}
			return l.Or(r), nil
		}
	}
	if un, ok := expr.(*ast.UnaryOperationExpr); ok && un.Op == opcode.Not {
		v, err := evalBool(ctx, un.V)
		if err != nil {
			return TriUnknown, err
		}
		return v.Not(), nil
	}
	v, err := evalScalar(ctx, expr)
	if err != nil {
		return TriUnknown, err
	}
	return cellToTri(v), nil
}

func evalUnary(ctx *evalCtx, n *ast.UnaryOperationExpr) (core.Cell, error) {
	switch n.Op {
	case opcode.Not, opcode.Not2:
		tri, err := evalBool(ctx, n.V)
		if err != nil {
			return core.Cell{}, err
		}
		return triToCell(tri.Not()), nil
	case opcode.Minus:
		v, err := evalScalar(ctx, n.V)
		if err != nil {
			return core.Cell{}, err
		}
		switch v.Kind {
		case core.KindInt:
			return core.IntCell(-v.I), nil
		case core.KindFloat:
			return core.FloatCell(-v.F), nil
		case core.KindNull:
			return core.NullCell(), nil
		default:
			return core.Cell{}, enginerr.Invalidf("cannot negate non-numeric value")
		}
	case opcode.Plus:
		return evalScalar(ctx, n.V)
	default:
		return core.Cell{}, enginerr.NotSupportedf("unsupported unary operator")
	}
}

func evalBinary(ctx *evalCtx, n *ast.BinaryOperationExpr) (core.Cell, error) {
	switch n.Op {
	case opcode.LogicAnd, opcode.LogicOr:
		tri, err := evalBool(ctx, n)
		if err != nil {
			return core.Cell{}, err
		}
		return triToCell(tri), nil
	}

	l, err := evalScalar(ctx, n.L)
	if err != nil {
		return core.Cell{}, err
	}
	r, err := evalScalar(ctx, n.R)
	if err != nil {
		return core.Cell{}, err
	}

	switch n.Op {
	case opcode.EQ, opcode.NE, opcode.LT, opcode.LE, opcode.GT, opcode.GE:
		if l.IsNull() || r.IsNull() {
			return core.NullCell(), nil
		}
		return boolCell(compareOp(n.Op, l.Compare(r))), nil
	case opcode.NullEQ:
		if l.IsNull() && r.IsNull() {
			return boolCell(true), nil
		}
		if l.IsNull() || r.IsNull() {
			return boolCell(false), nil
		}
		return boolCell(l.Compare(r) == 0), nil
	case opcode.Plus, opcode.Minus, opcode.Mul, opcode.Div, opcode.Mod:
		return evalArith(n.Op, l, r)
	default:
		return core.Cell{}, enginerr.NotSupportedf("unsupported binary operator")
	}
}

func compareOp(op opcode.Op, cmp int) bool {
	switch op {
	case opcode.EQ:
		return cmp == 0
	case opcode.NE:
		return cmp != 0
	case opcode.LT:
		return cmp < 0
	case opcode.LE:
		return cmp <= 0
	case opcode.GT:
		return cmp > 0
	case opcode.GE:
		return cmp >= 0
	default:
		return false
	}
}

func evalArith(op opcode.Op, l, r core.Cell) (core.Cell, error) {
	if l.IsNull() || r.IsNull() {
		return core.NullCell(), nil
	}
	lf, lok := l.AsFloat64()
	rf, rok := r.AsFloat64()
	if !lok || !rok {
		return core.Cell{}, enginerr.Invalidf("arithmetic on non-numeric value")
	}
	bothInt := l.Kind == core.KindInt && r.Kind == core.KindInt
	switch op {
	case opcode.Plus:
		if bothInt {
			return core.IntCell(l.I + r.I), nil
		}
		return core.FloatCell(lf + rf), nil
	case opcode.Minus:
		if bothInt {
			return core.IntCell(l.I - r.I), nil
		}
		return core.FloatCell(lf - rf), nil
	case opcode.Mul:
		if bothInt {
			return core.IntCell(l.I * r.I), nil
		}
		return core.FloatCell(lf * rf), nil
	case opcode.Div:
		if rf == 0 {
			return core.NullCell(), nil
		}
		return core.FloatCell(lf / rf), nil
	case opcode.Mod:
		if bothInt {
			if r.I == 0 {
				return core.NullCell(), nil
			}
			return core.IntCell(l.I % r.I), nil
		}
		return core.Cell{}, enginerr.Invalidf("MOD requires integer operands")
	default:
		return core.Cell{}, enginerr.NotSupportedf("unsupported arithmetic operator")
	}
}

func evalBetween(ctx *evalCtx, n *ast.BetweenExpr) (core.Cell, error) {
	v, err := evalScalar(ctx, n.Expr)
	if err != nil {
		return core.Cell{}, err
	}
	lo, err := evalScalar(ctx, n.Left)
	if err != nil {
		return core.Cell{}, err
	}
	hi, err := evalScalar(ctx, n.Right)
	if err != nil {
		return core.Cell{}, err
	}
	if v.IsNull() || lo.IsNull() || hi.IsNull() {
		return core.NullCell(), nil
	}
	in := v.Compare(lo) >= 0 && v.Compare(hi) <= 0
	if n.Not {
		in = !in
	}
	return boolCell(in), nil
}

func evalIn(ctx *evalCtx, n *ast.PatternInExpr) (core.Cell, error) {
	if n.Sel != nil {
		return core.Cell{}, enginerr.NotSupportedf("subqueries are not supported")
	}
	needle, err := evalScalar(ctx, n.Expr)
	if err != nil {
		return core.Cell{}, err
	}
	if needle.IsNull() {
		return core.NullCell(), nil
	}
	sawNull := false
	match := false
	for _, item := range n.List {
		v, err := evalScalar(ctx, item)
		if err != nil {
			return core.Cell{}, err
		}
		if v.IsNull() {
			sawNull = true
			continue
		}
		if needle.Compare(v) == 0 {
			match = true
			break
		}
	}
	switch {
	case match:
		return boolCell(!n.Not), nil
	case sawNull:
		return core.NullCell(), nil
	default:
		return boolCell(n.Not), nil
	}
}

func evalLike(ctx *evalCtx, n *ast.PatternLikeOrIlikeExpr) (core.Cell, error) {
	v, err := evalScalar(ctx, n.Expr)
	if err != nil {
		return core.Cell{}, err
	}
	p, err := evalScalar(ctx, n.Pattern)
	if err != nil {
		return core.Cell{}, err
	}
	if v.IsNull() || p.IsNull() {
		return core.NullCell(), nil
	}
	escape := byte('\\')
	if n.Escape != 0 {
		escape = byte(n.Escape)
	}
	matched := likeMatch(cellText(v), cellText(p), escape)
	if n.Not {
		matched = !matched
	}
	return boolCell(matched), nil
}

// likeMatch implements SQL LIKE: '%' matches any run (including
// empty), '_' matches exactly one rune, and escape escapes the
// following meta character into a literal. Matching is
// case-insensitive, matching the engine's default collation.
func likeMatch(s, pattern string, escape byte) bool {
	sr := []rune(strings.ToLower(s))
	pr := []rune(strings.ToLower(pattern))
	return likeMatchRunes(sr, pr, rune(escape))
}

func likeMatchRunes(s, p []rune, escape rune) bool {
	var memo map[[2]int]bool
	var rec func(si, pi int) bool
	rec = func(si, pi int) bool {
		key := [2]int{si, pi}
		if memo == nil {
			memo = map[[2]int]bool{}
		}
		if v, ok := memo[key]; ok {
			return v
		}
		result := matchStep(s, p, si, pi, escape, rec)
		memo[key] = result
		return result
	}
	return rec(0, 0)
}

func matchStep(s, p []rune, si, pi int, escape rune, rec func(int, int) bool) bool {
	if pi == len(p) {
		return si == len(s)
	}
	c := p[pi]
	if c == escape && pi+1 < len(p) {
		if si == len(s) || s[si] != p[pi+1] {
			return false
		}
		return rec(si+1, pi+2)
	}
	switch c {
	case '%':
		for k := si; k <= len(s); k++ {
			if rec(k, pi+1) {
				return true
			}
		}
		return false
	case '_':
		if si == len(s) {
			return false
		}
		return rec(si+1, pi+1)
	default:
		if si == len(s) || s[si] != c {
			return false
		}
		return rec(si+1, pi+1)
	}
}

func cellText(c core.Cell) string {
	switch c.Kind {
	case core.KindText:
		return c.S
	case core.KindInt:
		return strconv.FormatInt(c.I, 10)
	case core.KindFloat:
		return strconv.FormatFloat(c.F, 'g', -1, 64)
	case core.KindDate:
		return core.FormatDate(c.I)
	case core.KindDateTime:
		return core.FormatDateTime(c.I)
	default:
		return ""
	}
}

// datumToCell converts a tidb parser literal (test_driver's minimal
// Datum implementation, registered for its side effect of handling
// literal expressions) into a core.Cell.
func datumToCell(d test_driver.Datum) core.Cell {
	switch d.Kind() {
	case test_driver.KindNull:
		return core.NullCell()
	case test_driver.KindInt64:
		return core.IntCell(d.GetInt64())
	case test_driver.KindUint64:
		return core.IntCell(int64(d.GetUint64()))
	case test_driver.KindFloat32:
		return core.FloatCell(float64(d.GetFloat32()))
	case test_driver.KindFloat64:
		return core.FloatCell(d.GetFloat64())
	case test_driver.KindString:
		return core.TextCell(d.GetString())
	case test_driver.KindBytes:
		return core.TextCell(string(d.GetBytes()))
	case test_driver.KindMysqlDecimal:
		text := d.GetMysqlDecimal().String()
		if f, err := strconv.ParseFloat(text, 64); err == nil {
			return core.FloatCell(f)
		}
		return core.TextCell(text)
	default:
		return core.TextCell(d.GetString())
	}
}
