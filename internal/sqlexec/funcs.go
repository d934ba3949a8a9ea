package sqlexec

import (
	"strconv"
	"strings"

	"github.com/pingcap/tidb/pkg/parser/ast"

	"miniql/internal/core"
	"miniql/internal/enginerr"
	"miniql/internal/txn"
)

const engineVersion = "8.0.34-miniql"
const engineVersionComment = "miniql single-node MySQL-compatible engine"

// evalFuncCall handles the small set of session-reporting functions:
// DATABASE()/SCHEMA(), VERSION(), CONNECTION_ID(), USER()/CURRENT_USER().
func evalFuncCall(ctx *evalCtx, n *ast.FuncCallExpr) (core.Cell, error) {
	switch strings.ToLower(n.FnName.O) {
	case "database", "schema":
		if ctx.sess.CurrentDB == "" {
			return core.NullCell(), nil
		}
		return core.TextCell(ctx.sess.CurrentDB), nil
	case "version":
		return core.TextCell(engineVersion), nil
	case "connection_id":
		return core.IntCell(int64(ctx.sess.ConnID)), nil
	case "user", "current_user", "session_user", "system_user":
		return core.TextCell(ctx.sess.Username + "@%"), nil
	default:
		return core.Cell{}, enginerr.NotSupportedf("unsupported function: %s", n.FnName.O)
	}
}

// evalSysVar resolves @@var / @@session.var / @@global.var references
// appearing in a FROM-less SELECT.
func evalSysVar(ctx *evalCtx, n *ast.VariableExpr) (core.Cell, error) {
	if n.IsGlobal {
		return core.Cell{}, enginerr.NotSupportedf("GLOBAL-scope system variables are not supported")
	}
	v, err := LookupSessionVariable(ctx.sess, n.Name)
	if err != nil {
		return core.Cell{}, err
	}
	return v, nil
}

// LookupSessionVariable resolves one of the recognized system
// variables against a session's current value.
func LookupSessionVariable(sess *txn.Session, name string) (core.Cell, error) {
	switch strings.ToLower(name) {
	case "autocommit":
		return boolCell(sess.Autocommit), nil
	case "version":
		return core.TextCell(engineVersion), nil
	case "version_comment":
		return core.TextCell(engineVersionComment), nil
	case "transaction_isolation", "tx_isolation":
		return core.TextCell(sess.Vars.Isolation), nil
	case "transaction_read_only":
		return boolCell(sess.Vars.TransactionReadOnly), nil
	case "sql_mode":
		return core.TextCell(sess.Vars.SQLMode), nil
	case "time_zone":
		return core.TextCell(sess.Vars.TimeZone), nil
	case "character_set_client":
		return core.TextCell(sess.Vars.CharacterSetClient), nil
	case "character_set_connection":
		return core.TextCell(sess.Vars.CharacterSetConn), nil
	case "character_set_results":
		return core.TextCell(sess.Vars.CharacterSetResult), nil
	case "collation_connection":
		return core.TextCell(sess.Vars.CollationConn), nil
	case "lower_case_table_names":
		return core.IntCell(0), nil
	case "max_allowed_packet":
		return core.IntCell(64 * 1024 * 1024), nil
	case "socket":
		return core.TextCell(""), nil
	default:
		return core.Cell{}, &enginerr.UnknownSystemVariableError{Name: name}
	}
}

// parseIntLiteral parses s as a base-10 int64, reporting whether it
// parsed.
func parseIntLiteral(s string) (int64, bool) {
	v, err := strconv.ParseInt(s, 10, 64)
	return v, err == nil
}
