// Package parsesql wraps the pingcap/tidb SQL parser to turn SQL text
// into a list of ast.StmtNode statements the executor dispatches on.
package parsesql

import (
	"strings"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"

	"miniql/internal/enginerr"
)

// Parser parses MySQL-dialect SQL text into statement trees. It wraps
// a single tidb parser instance and is not safe for concurrent use by
// multiple goroutines without external synchronization.
type Parser struct {
	p *parser.Parser
}

// New returns a ready-to-use parser.
func New() *Parser {
	return &Parser{p: parser.New()}
}

// ParseOne parses exactly one SQL statement, trimming a single
// trailing semicolon. It is an error for the text to contain more or
// fewer than one statement.
func (ps *Parser) ParseOne(sql string) (ast.StmtNode, error) {
	stmts, err := ps.Parse(sql)
	if err != nil {
		return nil, err
	}
	if len(stmts) != 1 {
		return nil, enginerr.Parsef("expected exactly one statement, got %d", len(stmts))
	}
	return stmts[0], nil
}

// Parse parses SQL text that may contain multiple semicolon-separated
// statements.
func (ps *Parser) Parse(sql string) ([]ast.StmtNode, error) {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return nil, enginerr.Parsef("empty statement")
	}
	stmts, _, err := ps.p.Parse(trimmed, "", "")
	if err != nil {
		return nil, enginerr.Parsef("%s", err.Error())
	}
	return stmts, nil
}
