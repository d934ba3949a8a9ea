package sqlexec

import (
	"github.com/pingcap/tidb/pkg/parser/ast"

	"miniql/internal/auth"
	"miniql/internal/enginerr"
	"miniql/internal/mvcc"
	"miniql/internal/txn"
)

// Executor dispatches parsed statements onto the transaction
// coordinator. It holds no per-session state of its own; every
// operation takes the session explicitly.
type Executor struct {
	coord *txn.Coordinator
}

// New wires an executor over an already-open transaction coordinator.
func New(coord *txn.Coordinator) *Executor {
	return &Executor{coord: coord}
}

// isDDL reports whether stmt is a statement kind that triggers an
// implicit commit of the session's current transaction before it
// runs.
func isDDL(stmt ast.StmtNode) bool {
	switch stmt.(type) {
	case *ast.CreateDatabaseStmt, *ast.DropDatabaseStmt,
		*ast.CreateTableStmt, *ast.DropTableStmt, *ast.AlterTableStmt,
		*ast.CreateIndexStmt:
		return true
	default:
		return false
	}
}

// Execute dispatches one parsed statement for sess, applying the
// write-buffering and implicit-transaction policy around it: DDL
// commits any open transaction first; DML and SELECT run inside
// whatever transaction is (or becomes) active, with the coordinator
// auto-committing on success / rolling back on error when autocommit
// is on and no explicit transaction is open.
func (ex *Executor) Execute(sess *txn.Session, stmt ast.StmtNode) (*Outcome, error) {
	if isDDL(stmt) {
		if err := ex.coord.Commit(sess); err != nil {
			return nil, err
		}
	}

	switch stmt.(type) {
	case *ast.BeginStmt, *ast.CommitStmt, *ast.RollbackStmt,
		*ast.SavepointStmt, *ast.ReleaseSavepointStmt,
		*ast.UseStmt, *ast.SetStmt:
		return ex.dispatch(sess, stmt)
	}

	buffered := sess.ShouldBufferWrites()
	out, err := ex.dispatch(sess, stmt)
	if buffered {
		return out, err
	}
	if err != nil {
		ex.coord.Rollback(sess)
		return nil, err
	}
	if cerr := ex.coord.Commit(sess); cerr != nil {
		return nil, cerr
	}
	return out, nil
}

func (ex *Executor) dispatch(sess *txn.Session, stmt ast.StmtNode) (*Outcome, error) {
	switch n := stmt.(type) {
	case *ast.SelectStmt:
		return ex.execSelect(sess, n)
	case *ast.InsertStmt:
		return ex.execInsert(sess, n)
	case *ast.UpdateStmt:
		return ex.execUpdate(sess, n)
	case *ast.DeleteStmt:
		return ex.execDelete(sess, n)
	case *ast.CreateDatabaseStmt:
		return ex.execCreateDatabase(sess, n)
	case *ast.DropDatabaseStmt:
		return ex.execDropDatabase(sess, n)
	case *ast.CreateTableStmt:
		return ex.execCreateTable(sess, n)
	case *ast.DropTableStmt:
		return ex.execDropTable(sess, n)
	case *ast.AlterTableStmt:
		return ex.execAlterTable(sess, n)
	case *ast.CreateIndexStmt:
		return ex.execCreateIndex(sess, n)
	case *ast.BeginStmt:
		ex.coord.Begin(sess)
		return okInfo("BEGIN"), nil
	case *ast.CommitStmt:
		if err := ex.coord.Commit(sess); err != nil {
			return nil, err
		}
		return okInfo("COMMIT"), nil
	case *ast.RollbackStmt:
		return ex.execRollback(sess, n)
	case *ast.SavepointStmt:
		if err := ex.coord.Savepoint(sess, n.Name); err != nil {
			return nil, err
		}
		return okInfo("SAVEPOINT"), nil
	case *ast.ReleaseSavepointStmt:
		if err := ex.coord.ReleaseSavepoint(sess, n.Name); err != nil {
			return nil, err
		}
		return okInfo("RELEASE SAVEPOINT"), nil
	case *ast.UseStmt:
		return ex.execUse(sess, n)
	case *ast.SetStmt:
		return ex.execSet(sess, n)
	case *ast.ShowStmt:
		return ex.execShow(sess, n)
	case *ast.ExplainStmt:
		if show, ok := n.Stmt.(*ast.ShowStmt); ok {
			return ex.execShow(sess, show)
		}
		return nil, enginerr.NotSupportedf("unsupported statement: %T", stmt)
	default:
		return nil, enginerr.NotSupportedf("unsupported statement: %T", stmt)
	}
}

func (ex *Executor) execRollback(sess *txn.Session, n *ast.RollbackStmt) (*Outcome, error) {
	if n.SavepointName != "" {
		if err := ex.coord.RollbackTo(sess, n.SavepointName); err != nil {
			return nil, err
		}
		return okInfo("ROLLBACK TO SAVEPOINT"), nil
	}
	ex.coord.Rollback(sess)
	return okInfo("ROLLBACK"), nil
}

func (ex *Executor) execUse(sess *txn.Session, n *ast.UseStmt) (*Outcome, error) {
	dbs, err := ex.coord.Store().ListDatabases()
	if err != nil {
		return nil, err
	}
	found := false
	for _, db := range dbs {
		if db == n.DBName {
			found = true
			break
		}
	}
	if !found {
		return nil, enginerr.NotFoundf("unknown database: %s", n.DBName)
	}
	sess.CurrentDB = n.DBName
	return okInfo("USE"), nil
}

// requirePriv checks that sess's user holds the corresponding
// privilege, scoped to the named database (or global when db is
// empty).
func (ex *Executor) requirePriv(sess *txn.Session, db string, needed auth.Priv) error {
	user, ok, err := ex.coord.Store().GetUser(sess.Username)
	if err != nil {
		return err
	}
	if !ok {
		return enginerr.AccessDeniedf("unknown user: %s", sess.Username)
	}
	if !auth.HasPriv(user, db, needed) {
		return enginerr.AccessDeniedf("user %s lacks required privilege", sess.Username)
	}
	return nil
}

// tableLookup adapts the coordinator's store into an mvcc.TableLookup
// for ApplyChanges' column/index-aware encode path.
func (ex *Executor) tableLookup() mvcc.TableLookup {
	return ex.coord.Store().GetTable
}
