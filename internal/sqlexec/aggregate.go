package sqlexec

import (
	"strings"

	"github.com/pingcap/tidb/pkg/parser/ast"

	"miniql/internal/core"
	"miniql/internal/enginerr"
)

// aggKind is the closed set of recognized aggregate functions, modeled
// as a sum type rather than open polymorphism.
type aggKind int

const (
	aggCount aggKind = iota
	aggCountStar
	aggSum
	aggAvg
	aggMin
	aggMax
)

// aggregator accumulates one aggregate function's state across a
// group's rows: add(cell) folds in one input, finish() produces the
// group's output cell.
type aggregator struct {
	kind  aggKind
	sum   core.Cell
	count int64
	have  bool
}

func newAggregator(kind aggKind) *aggregator {
	return &aggregator{kind: kind}
}

// add folds in one row's value for this aggregate. Null inputs are
// skipped by every variant except COUNT(*), which counts every row
// regardless of nulls.
func (a *aggregator) add(c core.Cell) error {
	switch a.kind {
	case aggCountStar:
		a.count++
		return nil
	case aggCount:
		if !c.IsNull() {
			a.count++
		}
		return nil
	case aggSum, aggAvg:
		if c.IsNull() {
			return nil
		}
		if !a.have {
			a.sum = c
			a.have = true
		} else {
			sum, ok := a.sum.Add(c)
			if !ok {
				return enginerr.Invalidf("SUM/AVG over non-numeric value")
			}
			a.sum = sum
		}
		a.count++
		return nil
	case aggMin:
		if c.IsNull() {
			return nil
		}
		if !a.have || c.Compare(a.sum) < 0 {
			a.sum = c
			a.have = true
		}
		return nil
	case aggMax:
		if c.IsNull() {
			return nil
		}
		if !a.have || c.Compare(a.sum) > 0 {
			a.sum = c
			a.have = true
		}
		return nil
	default:
		return enginerr.NotSupportedf("unsupported aggregate")
	}
}

// finish produces the group's output cell for this aggregate.
func (a *aggregator) finish() core.Cell {
	switch a.kind {
	case aggCountStar, aggCount:
		return core.IntCell(a.count)
	case aggSum:
		if !a.have {
			return core.NullCell()
		}
		return a.sum
	case aggAvg:
		if !a.have || a.count == 0 {
			return core.NullCell()
		}
		v, _ := a.sum.DivCount(int(a.count))
		return v
	case aggMin, aggMax:
		if !a.have {
			return core.NullCell()
		}
		return a.sum
	default:
		return core.NullCell()
	}
}

// aggKindFromName maps an AggregateFuncExpr's function name to its
// aggKind, given whether the argument is the bare "*" wildcard.
func aggKindFromName(name string, isStar bool) (aggKind, bool) {
	switch strings.ToLower(name) {
	case "count":
		if isStar {
			return aggCountStar, true
		}
		return aggCount, true
	case "sum":
		return aggSum, true
	case "avg":
		return aggAvg, true
	case "min":
		return aggMin, true
	case "max":
		return aggMax, true
	default:
		return 0, false
	}
}

// isAggregateExpr reports whether e is itself an AggregateFuncExpr
// (used by asTopAggregate to pick out top-level aggregate fields).
func isAggregateExpr(e ast.ExprNode) (*ast.AggregateFuncExpr, bool) {
	agg, ok := e.(*ast.AggregateFuncExpr)
	return agg, ok
}

// containsAggregate reports whether any select field's expression is
// (or contains) an aggregate call.
func containsAggregate(fields []*ast.SelectField) bool {
	found := false
	visitor := &aggFinder{hit: &found}
	for _, f := range fields {
		if f.Expr == nil {
			continue
		}
		f.Expr.Accept(visitor)
	}
	return found
}

// aggFinder is a tiny ast.Visitor that flips a flag on the first
// AggregateFuncExpr it sees.
type aggFinder struct {
	hit *bool
}

func (f *aggFinder) Enter(n ast.Node) (ast.Node, bool) {
	if _, ok := n.(*ast.AggregateFuncExpr); ok {
		*f.hit = true
	}
	return n, false
}

func (f *aggFinder) Leave(n ast.Node) (ast.Node, bool) { return n, true }
