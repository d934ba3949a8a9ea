package sqlexec

import (
	"fmt"
	"strings"

	"github.com/pingcap/tidb/pkg/parser/ast"

	"miniql/internal/core"
	"miniql/internal/enginerr"
	"miniql/internal/txn"
)

// execSet handles SET SESSION var = expr / SET NAMES / SET
// TRANSACTION. SESSION scope only; enabling autocommit amid pending
// writes triggers an implicit commit.
func (ex *Executor) execSet(sess *txn.Session, n *ast.SetStmt) (*Outcome, error) {
	for _, assign := range n.Variables {
		if assign.IsGlobal {
			return nil, enginerr.NotSupportedf("GLOBAL-scope system variables are not supported")
		}
		name := strings.ToLower(assign.Name)

		if name == "names" || assign.Name == ast.SetNames {
			cs := exprLiteralText(assign.Value)
			sess.Vars.CharacterSetClient = cs
			sess.Vars.CharacterSetConn = cs
			sess.Vars.CharacterSetResult = cs
			continue
		}

		switch name {
		case "autocommit":
			v, err := evalScalar(&evalCtx{sess: sess}, assign.Value)
			if err != nil {
				return nil, err
			}
			enable := cellToTri(v).Passes()
			if enable && !sess.Autocommit && sess.Txn != nil && len(sess.Txn.Pending) > 0 {
				if err := ex.coord.Commit(sess); err != nil {
					return nil, err
				}
			}
			sess.Autocommit = enable
		case "transaction_isolation", "tx_isolation":
			sess.Vars.Isolation = exprLiteralText(assign.Value)
		case "transaction_read_only", "tx_read_only":
			v, err := evalScalar(&evalCtx{sess: sess}, assign.Value)
			if err != nil {
				return nil, err
			}
			sess.Vars.TransactionReadOnly = cellToTri(v).Passes()
		case "sql_mode":
			sess.Vars.SQLMode = exprLiteralText(assign.Value)
		case "time_zone":
			sess.Vars.TimeZone = exprLiteralText(assign.Value)
		case "character_set_client":
			sess.Vars.CharacterSetClient = exprLiteralText(assign.Value)
		case "character_set_connection":
			sess.Vars.CharacterSetConn = exprLiteralText(assign.Value)
		case "character_set_results":
			sess.Vars.CharacterSetResult = exprLiteralText(assign.Value)
		case "collation_connection":
			sess.Vars.CollationConn = exprLiteralText(assign.Value)
		default:
			return nil, &enginerr.UnknownSystemVariableError{Name: assign.Name}
		}
	}
	return okInfo("SET"), nil
}

func exprLiteralText(e ast.ExprNode) string {
	v, err := evalScalar(&evalCtx{}, e)
	if err != nil {
		return ""
	}
	return cellText(v)
}

// execShow implements the supported SHOW statements. DESCRIBE t is
// parsed by the tidb grammar as an ExplainStmt wrapping a ShowColumns
// statement; dispatch unwraps it so it shares this path.
func (ex *Executor) execShow(sess *txn.Session, n *ast.ShowStmt) (*Outcome, error) {
	switch n.Tp {
	case ast.ShowDatabases:
		return ex.showDatabases(n)
	case ast.ShowTables:
		return ex.showTables(sess, n)
	case ast.ShowColumns:
		return ex.showColumns(sess, n)
	case ast.ShowIndex:
		return ex.showIndex(sess, n)
	case ast.ShowTableStatus:
		return ex.showTableStatus(sess, n)
	case ast.ShowCreateTable:
		return ex.showCreateTable(sess, n)
	case ast.ShowVariables:
		return ex.showVariables(sess, n)
	default:
		return nil, enginerr.NotSupportedf("unsupported SHOW statement")
	}
}

func likeFilter(n *ast.ShowStmt) (string, bool) {
	if n.Pattern == nil {
		return "", false
	}
	return exprLiteralText(n.Pattern.Pattern), true
}

func (ex *Executor) showDatabases(n *ast.ShowStmt) (*Outcome, error) {
	dbs, err := ex.coord.Store().ListDatabases()
	if err != nil {
		return nil, err
	}
	dbs = append(dbs, "information_schema", "mysql", "performance_schema", "sys")
	pattern, hasPattern := likeFilter(n)
	rows := make([][]core.Cell, 0, len(dbs))
	for _, db := range dbs {
		if hasPattern && !likeMatch(db, pattern, '\\') {
			continue
		}
		rows = append(rows, []core.Cell{core.TextCell(db)})
	}
	return rowsOutcome(&ResultSet{Columns: []ColumnMeta{{Name: "Database", Type: core.TypeText}}, Rows: rows}), nil
}

func (ex *Executor) targetDB(sess *txn.Session, n *ast.ShowStmt) string {
	if n.DBName != "" {
		return n.DBName
	}
	if n.Table != nil && n.Table.Schema.O != "" {
		return n.Table.Schema.O
	}
	return sess.CurrentDB
}

func (ex *Executor) showTables(sess *txn.Session, n *ast.ShowStmt) (*Outcome, error) {
	db := ex.targetDB(sess, n)
	if db == "" {
		return nil, enginerr.NotFoundf("no database selected")
	}
	if strings.EqualFold(db, "information_schema") {
		names := []string{"SCHEMATA", "TABLES", "COLUMNS", "STATISTICS"}
		rows := make([][]core.Cell, len(names))
		for i, name := range names {
			rows[i] = []core.Cell{core.TextCell(name)}
		}
		return rowsOutcome(&ResultSet{Columns: []ColumnMeta{{Name: "Tables_in_" + db, Type: core.TypeText}}, Rows: rows}), nil
	}
	tables, err := ex.coord.Store().ListTables(db)
	if err != nil {
		return nil, err
	}
	pattern, hasPattern := likeFilter(n)
	rows := make([][]core.Cell, 0, len(tables))
	for _, t := range tables {
		if hasPattern && !likeMatch(t, pattern, '\\') {
			continue
		}
		rows = append(rows, []core.Cell{core.TextCell(t)})
	}
	return rowsOutcome(&ResultSet{Columns: []ColumnMeta{{Name: "Tables_in_" + db, Type: core.TypeText}}, Rows: rows}), nil
}

func columnTypeName(t core.SqlType) string {
	switch t {
	case core.TypeInt:
		return "int"
	case core.TypeFloat:
		return "float"
	case core.TypeText:
		return "text"
	case core.TypeDate:
		return "date"
	case core.TypeDateTime:
		return "datetime"
	default:
		return "text"
	}
}

func (ex *Executor) showColumns(sess *txn.Session, n *ast.ShowStmt) (*Outcome, error) {
	db := ex.targetDB(sess, n)
	if db == "" || n.Table == nil {
		return nil, enginerr.NotFoundf("no table specified")
	}
	def, err := ex.coord.Store().GetTable(db, n.Table.Name.O)
	if err != nil {
		return nil, err
	}
	pattern, hasPattern := likeFilter(n)
	rows := make([][]core.Cell, 0, len(def.Columns))
	for _, c := range def.Columns {
		if hasPattern && !likeMatch(c.Name, pattern, '\\') {
			continue
		}
		null := "YES"
		if !c.Nullable {
			null = "NO"
		}
		key := ""
		if c.Name == def.PrimaryKey {
			key = "PRI"
		}
		extra := ""
		if c.Name == def.PrimaryKey && def.AutoIncrement {
			extra = "auto_increment"
		}
		rows = append(rows, []core.Cell{
			core.TextCell(c.Name),
			core.TextCell(columnTypeName(c.Type)),
			core.TextCell(null),
			core.TextCell(key),
			core.NullCell(),
			core.TextCell(extra),
		})
	}
	cols := []ColumnMeta{
		{Name: "Field", Type: core.TypeText},
		{Name: "Type", Type: core.TypeText},
		{Name: "Null", Type: core.TypeText},
		{Name: "Key", Type: core.TypeText},
		{Name: "Default", Type: core.TypeText},
		{Name: "Extra", Type: core.TypeText},
	}
	return rowsOutcome(&ResultSet{Columns: cols, Rows: rows}), nil
}

func (ex *Executor) showIndex(sess *txn.Session, n *ast.ShowStmt) (*Outcome, error) {
	db := ex.targetDB(sess, n)
	if db == "" || n.Table == nil {
		return nil, enginerr.NotFoundf("no table specified")
	}
	table := n.Table.Name.O
	def, err := ex.coord.Store().GetTable(db, table)
	if err != nil {
		return nil, err
	}
	cardinality, err := ex.coord.Store().CountRows(db, table)
	if err != nil {
		return nil, err
	}

	cols := []ColumnMeta{
		{Name: "Table", Type: core.TypeText},
		{Name: "Non_unique", Type: core.TypeInt},
		{Name: "Key_name", Type: core.TypeText},
		{Name: "Seq_in_index", Type: core.TypeInt},
		{Name: "Column_name", Type: core.TypeText},
		{Name: "Cardinality", Type: core.TypeInt},
	}
	var rows [][]core.Cell
	rows = append(rows, []core.Cell{
		core.TextCell(table), core.IntCell(0), core.TextCell("PRIMARY"),
		core.IntCell(1), core.TextCell(def.PrimaryKey), core.IntCell(int64(cardinality)),
	})
	for _, idx := range def.Indexes {
		for i, col := range idx.Columns {
			rows = append(rows, []core.Cell{
				core.TextCell(table), core.IntCell(1), core.TextCell(idx.Name),
				core.IntCell(int64(i + 1)), core.TextCell(col), core.IntCell(int64(cardinality)),
			})
		}
	}
	return rowsOutcome(&ResultSet{Columns: cols, Rows: rows}), nil
}

func (ex *Executor) showTableStatus(sess *txn.Session, n *ast.ShowStmt) (*Outcome, error) {
	db := ex.targetDB(sess, n)
	if db == "" {
		return nil, enginerr.NotFoundf("no database selected")
	}
	tables, err := ex.coord.Store().ListTables(db)
	if err != nil {
		return nil, err
	}
	pattern, hasPattern := likeFilter(n)
	cols := []ColumnMeta{
		{Name: "Name", Type: core.TypeText},
		{Name: "Engine", Type: core.TypeText},
		{Name: "Rows", Type: core.TypeInt},
		{Name: "Auto_increment", Type: core.TypeInt},
	}
	var rows [][]core.Cell
	for _, t := range tables {
		if hasPattern && !likeMatch(t, pattern, '\\') {
			continue
		}
		count, err := ex.coord.Store().CountRows(db, t)
		if err != nil {
			return nil, err
		}
		var next core.Cell = core.NullCell()
		if v, ok, err := ex.coord.Store().AutoIncrementNext(db, t); err == nil && ok {
			next = core.IntCell(v)
		}
		rows = append(rows, []core.Cell{
			core.TextCell(t), core.TextCell("miniql"), core.IntCell(int64(count)), next,
		})
	}
	return rowsOutcome(&ResultSet{Columns: cols, Rows: rows}), nil
}

// showCreateTable renders a CREATE TABLE statement reconstructing def,
// grounded on the original engine's handle_show_create assembly.
func (ex *Executor) showCreateTable(sess *txn.Session, n *ast.ShowStmt) (*Outcome, error) {
	db := ex.targetDB(sess, n)
	if db == "" || n.Table == nil {
		return nil, enginerr.NotFoundf("no table specified")
	}
	table := n.Table.Name.O
	def, err := ex.coord.Store().GetTable(db, table)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE `%s` (\n", table)
	parts := make([]string, 0, len(def.Columns)+1)
	for _, c := range def.Columns {
		line := fmt.Sprintf("  `%s` %s", c.Name, strings.ToUpper(columnTypeName(c.Type)))
		if !c.Nullable {
			line += " NOT NULL"
		}
		if c.Name == def.PrimaryKey && def.AutoIncrement {
			line += " AUTO_INCREMENT"
		}
		parts = append(parts, line)
	}
	if def.PrimaryKey != "" {
		parts = append(parts, fmt.Sprintf("  PRIMARY KEY (`%s`)", def.PrimaryKey))
	}
	for _, idx := range def.Indexes {
		parts = append(parts, fmt.Sprintf("  KEY `%s` (`%s`)", idx.Name, strings.Join(idx.Columns, "`, `")))
	}
	b.WriteString(strings.Join(parts, ",\n"))
	b.WriteString("\n)")

	cols := []ColumnMeta{{Name: "Table", Type: core.TypeText}, {Name: "Create Table", Type: core.TypeText}}
	rows := [][]core.Cell{{core.TextCell(table), core.TextCell(b.String())}}
	return rowsOutcome(&ResultSet{Columns: cols, Rows: rows}), nil
}

func (ex *Executor) showVariables(sess *txn.Session, n *ast.ShowStmt) (*Outcome, error) {
	names := []string{
		"autocommit", "version", "version_comment", "transaction_isolation",
		"transaction_read_only", "sql_mode", "time_zone", "character_set_client",
		"character_set_connection", "character_set_results", "collation_connection",
		"lower_case_table_names", "max_allowed_packet", "socket",
	}
	pattern, hasPattern := likeFilter(n)
	cols := []ColumnMeta{{Name: "Variable_name", Type: core.TypeText}, {Name: "Value", Type: core.TypeText}}
	var rows [][]core.Cell
	for _, name := range names {
		if hasPattern && !likeMatch(name, pattern, '\\') {
			continue
		}
		v, err := LookupSessionVariable(sess, name)
		if err != nil {
			continue
		}
		rows = append(rows, []core.Cell{core.TextCell(name), core.TextCell(cellText(v))})
	}
	return rowsOutcome(&ResultSet{Columns: cols, Rows: rows}), nil
}

// synthesizeInformationSchema produces SCHEMATA, TABLES, COLUMNS, and
// STATISTICS, computed on the fly from the catalog rather than
// persisted.
func (ex *Executor) synthesizeInformationSchema(sess *txn.Session, tableName string) (*rowSet, error) {
	switch strings.ToUpper(tableName) {
	case "SCHEMATA":
		return ex.infoSchemaSchemata()
	case "TABLES":
		return ex.infoSchemaTables()
	case "COLUMNS":
		return ex.infoSchemaColumns()
	case "STATISTICS":
		return ex.infoSchemaStatistics()
	default:
		return nil, enginerr.NotFoundf("unknown information_schema table: %s", tableName)
	}
}

func (ex *Executor) infoSchemaSchemata() (*rowSet, error) {
	dbs, err := ex.coord.Store().ListDatabases()
	if err != nil {
		return nil, err
	}
	cols := []colRef{{table: "SCHEMATA", name: "SCHEMA_NAME"}}
	rows := make([][]core.Cell, len(dbs))
	for i, db := range dbs {
		rows[i] = []core.Cell{core.TextCell(db)}
	}
	return &rowSet{cols: cols, rows: rows}, nil
}

func (ex *Executor) infoSchemaTables() (*rowSet, error) {
	dbs, err := ex.coord.Store().ListDatabases()
	if err != nil {
		return nil, err
	}
	cols := []colRef{
		{table: "TABLES", name: "TABLE_SCHEMA"},
		{table: "TABLES", name: "TABLE_NAME"},
		{table: "TABLES", name: "TABLE_ROWS"},
	}
	var rows [][]core.Cell
	for _, db := range dbs {
		tables, err := ex.coord.Store().ListTables(db)
		if err != nil {
			return nil, err
		}
		for _, t := range tables {
			count, err := ex.coord.Store().CountRows(db, t)
			if err != nil {
				return nil, err
			}
			rows = append(rows, []core.Cell{core.TextCell(db), core.TextCell(t), core.IntCell(int64(count))})
		}
	}
	return &rowSet{cols: cols, rows: rows}, nil
}

func (ex *Executor) infoSchemaColumns() (*rowSet, error) {
	dbs, err := ex.coord.Store().ListDatabases()
	if err != nil {
		return nil, err
	}
	cols := []colRef{
		{table: "COLUMNS", name: "TABLE_SCHEMA"},
		{table: "COLUMNS", name: "TABLE_NAME"},
		{table: "COLUMNS", name: "COLUMN_NAME"},
		{table: "COLUMNS", name: "ORDINAL_POSITION"},
		{table: "COLUMNS", name: "DATA_TYPE"},
		{table: "COLUMNS", name: "IS_NULLABLE"},
	}
	var rows [][]core.Cell
	for _, db := range dbs {
		tables, err := ex.coord.Store().ListTables(db)
		if err != nil {
			return nil, err
		}
		for _, t := range tables {
			def, err := ex.coord.Store().GetTable(db, t)
			if err != nil {
				return nil, err
			}
			for i, c := range def.Columns {
				nullable := "YES"
				if !c.Nullable {
					nullable = "NO"
				}
				rows = append(rows, []core.Cell{
					core.TextCell(db), core.TextCell(t), core.TextCell(c.Name),
					core.IntCell(int64(i + 1)), core.TextCell(columnTypeName(c.Type)), core.TextCell(nullable),
				})
			}
		}
	}
	return &rowSet{cols: cols, rows: rows}, nil
}

func (ex *Executor) infoSchemaStatistics() (*rowSet, error) {
	dbs, err := ex.coord.Store().ListDatabases()
	if err != nil {
		return nil, err
	}
	cols := []colRef{
		{table: "STATISTICS", name: "TABLE_SCHEMA"},
		{table: "STATISTICS", name: "TABLE_NAME"},
		{table: "STATISTICS", name: "INDEX_NAME"},
		{table: "STATISTICS", name: "SEQ_IN_INDEX"},
		{table: "STATISTICS", name: "COLUMN_NAME"},
		{table: "STATISTICS", name: "CARDINALITY"},
	}
	var rows [][]core.Cell
	for _, db := range dbs {
		tables, err := ex.coord.Store().ListTables(db)
		if err != nil {
			return nil, err
		}
		for _, t := range tables {
			def, err := ex.coord.Store().GetTable(db, t)
			if err != nil {
				return nil, err
			}
			count, err := ex.coord.Store().CountRows(db, t)
			if err != nil {
				return nil, err
			}
			card := int64(count)
			rows = append(rows, []core.Cell{
				core.TextCell(db), core.TextCell(t), core.TextCell("PRIMARY"),
				core.IntCell(1), core.TextCell(def.PrimaryKey), core.IntCell(card),
			})
			for _, idx := range def.Indexes {
				for i, col := range idx.Columns {
					rows = append(rows, []core.Cell{
						core.TextCell(db), core.TextCell(t), core.TextCell(idx.Name),
						core.IntCell(int64(i + 1)), core.TextCell(col), core.IntCell(card),
					})
				}
			}
		}
	}
	return &rowSet{cols: cols, rows: rows}, nil
}
