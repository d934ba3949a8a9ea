package sqlexec

import (
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/mysql"

	"miniql/internal/auth"
	"miniql/internal/core"
	"miniql/internal/enginerr"
	"miniql/internal/txn"
)

// sqlTypeFromColumnDef maps a parsed column's declared type to the
// engine's five-type scalar domain: any integer family becomes Int,
// any floating/decimal family becomes Float, any character/text family
// becomes Text, DATE stays Date, and DATETIME/TIMESTAMP become
// DateTime.
func sqlTypeFromColumnDef(col *ast.ColumnDef) (core.SqlType, error) {
	switch col.Tp.GetType() {
	case mysql.TypeTiny, mysql.TypeShort, mysql.TypeInt24, mysql.TypeLong, mysql.TypeLonglong:
		return core.TypeInt, nil
	case mysql.TypeFloat, mysql.TypeDouble, mysql.TypeNewDecimal, mysql.TypeDecimal:
		return core.TypeFloat, nil
	case mysql.TypeVarchar, mysql.TypeString, mysql.TypeVarString, mysql.TypeBlob,
		mysql.TypeTinyBlob, mysql.TypeMediumBlob, mysql.TypeLongBlob:
		return core.TypeText, nil
	case mysql.TypeDate, mysql.TypeNewDate:
		return core.TypeDate, nil
	case mysql.TypeDatetime, mysql.TypeTimestamp:
		return core.TypeDateTime, nil
	default:
		return 0, enginerr.NotSupportedf("unsupported column type for %s", col.Name.Name.O)
	}
}

// buildTableDef translates a parsed CREATE TABLE statement into a
// core.TableDef, resolving the primary key from either a column-level
// PRIMARY KEY option or a table-level PRIMARY KEY(...) constraint, and
// secondary indexes from KEY/INDEX constraints.
func buildTableDef(db string, n *ast.CreateTableStmt) (*core.TableDef, error) {
	def := &core.TableDef{DB: db, Name: n.Table.Name.O}

	for _, col := range n.Cols {
		sqlType, err := sqlTypeFromColumnDef(col)
		if err != nil {
			return nil, err
		}
		nullable := true
		for _, opt := range col.Options {
			switch opt.Tp {
			case ast.ColumnOptionNotNull, ast.ColumnOptionPrimaryKey:
				nullable = false
			case ast.ColumnOptionAutoIncrement:
				def.AutoIncrement = true
			}
			if opt.Tp == ast.ColumnOptionPrimaryKey {
				def.PrimaryKey = col.Name.Name.O
			}
		}
		def.Columns = append(def.Columns, core.ColumnDef{
			Name:     col.Name.Name.O,
			Type:     sqlType,
			Nullable: nullable,
		})
	}

	for _, c := range n.Constraints {
		switch c.Tp {
		case ast.ConstraintPrimaryKey:
			if len(c.Keys) > 0 {
				def.PrimaryKey = c.Keys[0].Column.Name.O
				if idx := def.ColumnIndex(def.PrimaryKey); idx >= 0 {
					def.Columns[idx].Nullable = false
				}
			}
		case ast.ConstraintIndex, ast.ConstraintKey:
			name := c.Name
			if name == "" && len(c.Keys) > 0 {
				name = c.Keys[0].Column.Name.O
			}
			cols := make([]string, len(c.Keys))
			for i, k := range c.Keys {
				cols[i] = k.Column.Name.O
			}
			def.Indexes = append(def.Indexes, core.IndexDef{Name: name, Columns: cols})
		case ast.ConstraintUniq, ast.ConstraintUniqKey, ast.ConstraintUniqIndex:
			return nil, enginerr.NotSupportedf("UNIQUE indexes are not supported")
		}
	}

	return def, nil
}

// execCreateDatabase implements CREATE DATABASE. Requires the global
// CREATE privilege.
func (ex *Executor) execCreateDatabase(sess *txn.Session, n *ast.CreateDatabaseStmt) (*Outcome, error) {
	if err := ex.requirePriv(sess, "", auth.PrivCreate); err != nil {
		return nil, err
	}
	name := n.Name.O
	if n.IfNotExists {
		dbs, err := ex.coord.Store().ListDatabases()
		if err != nil {
			return nil, err
		}
		for _, existing := range dbs {
			if existing == name {
				return okInfo("CREATE DATABASE"), nil
			}
		}
	}
	if err := ex.coord.Store().CreateDatabase(name); err != nil {
		return nil, err
	}
	return okInfo("CREATE DATABASE"), nil
}

// execDropDatabase implements DROP DATABASE. Requires the global DROP
// privilege.
func (ex *Executor) execDropDatabase(sess *txn.Session, n *ast.DropDatabaseStmt) (*Outcome, error) {
	if err := ex.requirePriv(sess, "", auth.PrivDrop); err != nil {
		return nil, err
	}
	name := n.Name.O
	if err := ex.coord.Store().DropDatabase(name); err != nil {
		if n.IfExists {
			return okInfo("DROP DATABASE"), nil
		}
		return nil, err
	}
	return okInfo("DROP DATABASE"), nil
}

// execCreateTable implements CREATE TABLE, translating the parsed
// column and constraint list into a core.TableDef and validating its
// structural invariants before persisting it.
func (ex *Executor) execCreateTable(sess *txn.Session, n *ast.CreateTableStmt) (*Outcome, error) {
	db := n.Table.Schema.O
	if db == "" {
		db = sess.CurrentDB
	}
	if db == "" {
		return nil, enginerr.NotFoundf("no database selected")
	}
	if err := ex.requirePriv(sess, db, auth.PrivCreate); err != nil {
		return nil, err
	}

	def, err := buildTableDef(db, n)
	if err != nil {
		return nil, err
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}

	if err := ex.coord.Store().CreateTable(def); err != nil {
		if n.IfNotExists {
			return okInfo("CREATE TABLE"), nil
		}
		return nil, err
	}
	if def.AutoIncrement {
		if err := ex.coord.Store().EnsureAutoIncrementInitialized(db, def.Name, 0); err != nil {
			return nil, err
		}
	}
	return okInfo("CREATE TABLE"), nil
}

// execDropTable implements DROP TABLE.
func (ex *Executor) execDropTable(sess *txn.Session, n *ast.DropTableStmt) (*Outcome, error) {
	for _, tn := range n.Tables {
		db := tn.Schema.O
		if db == "" {
			db = sess.CurrentDB
		}
		if db == "" {
			return nil, enginerr.NotFoundf("no database selected")
		}
		if err := ex.requirePriv(sess, db, auth.PrivDrop); err != nil {
			return nil, err
		}
		if err := ex.coord.Store().DropTable(db, tn.Name.O); err != nil {
			if n.IfExists {
				continue
			}
			return nil, err
		}
	}
	return okInfo("DROP TABLE"), nil
}

// execAlterTable implements ALTER TABLE ADD COLUMN, the only supported
// ALTER variant. Existing rows are backfilled with a Null cell for
// every added column in a fresh system transaction, via a legacy
// full-table scan, so every stored row's Values slice stays in lockstep
// with the updated catalog's column count.
func (ex *Executor) execAlterTable(sess *txn.Session, n *ast.AlterTableStmt) (*Outcome, error) {
	db := n.Table.Schema.O
	if db == "" {
		db = sess.CurrentDB
	}
	if db == "" {
		return nil, enginerr.NotFoundf("no database selected")
	}
	if err := ex.requirePriv(sess, db, auth.PrivCreate); err != nil {
		return nil, err
	}
	table := n.Table.Name.O
	def, err := ex.coord.Store().GetTable(db, table)
	if err != nil {
		return nil, err
	}

	addedCount := 0
	for _, spec := range n.Specs {
		if spec.Tp != ast.AlterTableAddColumns {
			return nil, enginerr.NotSupportedf("unsupported ALTER TABLE operation")
		}
		for _, col := range spec.NewColumns {
			sqlType, err := sqlTypeFromColumnDef(col)
			if err != nil {
				return nil, err
			}
			nullable := true
			for _, opt := range col.Options {
				if opt.Tp == ast.ColumnOptionNotNull {
					nullable = false
				}
			}
			if !nullable {
				return nil, enginerr.NotSupportedf("ALTER TABLE ADD COLUMN requires a nullable column")
			}
			def.Columns = append(def.Columns, core.ColumnDef{
				Name:     col.Name.Name.O,
				Type:     sqlType,
				Nullable: true,
			})
			addedCount++
		}
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}

	existing, err := ex.coord.Store().ScanRowsLegacy(db, table)
	if err != nil {
		return nil, err
	}

	if err := ex.coord.Store().UpdateTable(def); err != nil {
		return nil, err
	}

	if len(existing) > 0 {
		ex.coord.EnsureActive(sess)
		for _, r := range existing {
			padded := make([]core.Cell, len(r.Row.Values)+addedCount)
			copy(padded, r.Row.Values)
			for i := len(r.Row.Values); i < len(padded); i++ {
				padded[i] = core.NullCell()
			}
			sess.Txn.Pending[txn.RowKey{DB: db, Table: table, PK: r.PK}] = &core.Row{Values: padded}
		}
		if err := ex.coord.Commit(sess); err != nil {
			return nil, err
		}
	}

	return okInfo("ALTER TABLE"), nil
}

// execCreateIndex implements CREATE INDEX: it records the index with
// every listed column in the catalog (UNIQUE constraints in CREATE
// TABLE are rejected by buildTableDef's constraint handling, and
// CREATE UNIQUE INDEX is rejected here for the same reason).
func (ex *Executor) execCreateIndex(sess *txn.Session, n *ast.CreateIndexStmt) (*Outcome, error) {
	if n.KeyType == ast.IndexKeyTypeUnique {
		return nil, enginerr.NotSupportedf("UNIQUE indexes are not supported")
	}
	db := n.Table.Schema.O
	if db == "" {
		db = sess.CurrentDB
	}
	if db == "" {
		return nil, enginerr.NotFoundf("no database selected")
	}
	if err := ex.requirePriv(sess, db, auth.PrivCreate); err != nil {
		return nil, err
	}
	table := n.Table.Name.O
	def, err := ex.coord.Store().GetTable(db, table)
	if err != nil {
		return nil, err
	}
	if len(n.IndexPartSpecifications) == 0 {
		return nil, enginerr.Invalidf("CREATE INDEX requires at least one column")
	}
	cols := make([]string, len(n.IndexPartSpecifications))
	for i, spec := range n.IndexPartSpecifications {
		cols[i] = spec.Column.Name.O
		if def.ColumnIndex(cols[i]) < 0 {
			return nil, enginerr.NotFoundf("unknown column: %s", cols[i])
		}
	}
	def.Indexes = append(def.Indexes, core.IndexDef{Name: n.IndexName, Columns: cols})
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if err := ex.coord.Store().UpdateTable(def); err != nil {
		return nil, err
	}
	return okInfo("CREATE INDEX"), nil
}
