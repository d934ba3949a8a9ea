package sqlexec

import (
	"strings"

	"miniql/internal/core"
	"miniql/internal/enginerr"
)

// colRef names one column of a composed row set: the table it came
// from (possibly an alias; empty for expression-derived columns that
// are never addressable by table-qualified name) and its own name.
type colRef struct {
	table string
	name  string
}

// rowSet is a materialized, positionally-aligned set of composed rows
// produced by FROM composition: comma-joins, JOINs, or a single table
// scan. Every row in Rows has len(Cols) cells.
type rowSet struct {
	cols []colRef
	rows [][]core.Cell
}

func (rs *rowSet) width() int { return len(rs.cols) }

// columnMap resolves identifiers against a rowSet's columns:
// lower(name) -> index and lower(table.name) -> index, with
// unqualified collisions marked ambiguous.
type columnMap struct {
	qualified map[string]int
	bare      map[string]int // -1 marks an ambiguous bare name
}

func newColumnMap(cols []colRef) *columnMap {
	cm := &columnMap{qualified: map[string]int{}, bare: map[string]int{}}
	for i, c := range cols {
		if c.table != "" {
			cm.qualified[strings.ToLower(c.table)+"."+strings.ToLower(c.name)] = i
		}
		if c.name == "" {
			continue
		}
		key := strings.ToLower(c.name)
		if _, exists := cm.bare[key]; exists {
			cm.bare[key] = -1
		} else {
			cm.bare[key] = i
		}
	}
	return cm
}

// resolve looks up a (possibly table-qualified) identifier. A
// table-qualified name resolves only against the qualified entries
// and does not fall back to the bare name. Schema qualifiers collapse
// into the table qualifier since this engine never resolves
// cross-database FROM clauses.
func (cm *columnMap) resolve(table, name string) (int, error) {
	lname := strings.ToLower(name)
	if table != "" {
		key := strings.ToLower(table) + "." + lname
		if idx, ok := cm.qualified[key]; ok {
			return idx, nil
		}
		return -1, enginerr.NotFoundf("unknown column: %s.%s", table, name)
	}
	idx, ok := cm.bare[lname]
	if !ok {
		return -1, enginerr.NotFoundf("unknown column: %s", name)
	}
	if idx == -1 {
		return -1, enginerr.Invalidf("ambiguous column reference: %s", name)
	}
	return idx, nil
}

// has reports whether name resolves unambiguously against this map,
// without producing an error (used by USING/NATURAL synthesis).
func (cm *columnMap) has(name string) (int, bool) {
	idx, ok := cm.bare[strings.ToLower(name)]
	if !ok || idx == -1 {
		return 0, false
	}
	return idx, true
}

// combineCols concatenates two rowSets' column schemas (used to build the
// schema of a cartesian/join product before rows are paired up).
func combineCols(left, right []colRef) []colRef {
	out := make([]colRef, 0, len(left)+len(right))
	out = append(out, left...)
	out = append(out, right...)
	return out
}

func concatRows(l, r []core.Cell) []core.Cell {
	out := make([]core.Cell, 0, len(l)+len(r))
	out = append(out, l...)
	out = append(out, r...)
	return out
}

func nullRow(n int) []core.Cell {
	out := make([]core.Cell, n)
	for i := range out {
		out[i] = core.NullCell()
	}
	return out
}
