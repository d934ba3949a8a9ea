// Package sqlexec dispatches parsed statements (ast.StmtNode, from
// internal/parsesql) onto the transaction coordinator and MVCC store:
// expression evaluation under three-valued logic, joins, grouping,
// catalog DDL, session variables, and information_schema synthesis.
package sqlexec

import "miniql/internal/core"

// ColumnMeta describes one output column of a result set.
type ColumnMeta struct {
	Name string
	Type core.SqlType
}

// ResultSet is returned by any statement that produces rows (SELECT,
// SHOW, DESCRIBE).
type ResultSet struct {
	Columns []ColumnMeta
	Rows    [][]core.Cell
}

// OKResult is returned by any statement that mutates state without
// producing rows (INSERT/UPDATE/DELETE/DDL/txn control).
type OKResult struct {
	AffectedRows uint64
	LastInsertID int64
	Info         string
}

// Outcome is the executor's uniform return value: exactly one of
// Result or OK is non-nil.
type Outcome struct {
	Result *ResultSet
	OK     *OKResult
}

func rowsOutcome(rs *ResultSet) *Outcome { return &Outcome{Result: rs} }

func okOutcome(affected uint64, lastInsertID int64) *Outcome {
	return &Outcome{OK: &OKResult{AffectedRows: affected, LastInsertID: lastInsertID}}
}

func okInfo(info string) *Outcome {
	return &Outcome{OK: &OKResult{Info: info}}
}
