package parsesql

import (
	"testing"

	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOne(t *testing.T) {
	p := New()

	stmt, err := p.ParseOne("SELECT 1")
	require.NoError(t, err)
	_, ok := stmt.(*ast.SelectStmt)
	assert.True(t, ok)

	stmt, err = p.ParseOne("SELECT 1;")
	require.NoError(t, err)
	_, ok = stmt.(*ast.SelectStmt)
	assert.True(t, ok)
}

func TestParseOneRejectsMultiple(t *testing.T) {
	p := New()
	_, err := p.ParseOne("SELECT 1; SELECT 2;")
	assert.Error(t, err)
}

func TestParseOneRejectsEmpty(t *testing.T) {
	p := New()
	_, err := p.ParseOne("   ")
	assert.Error(t, err)
}

func TestParseMultiple(t *testing.T) {
	p := New()
	stmts, err := p.Parse("CREATE TABLE t (id INT PRIMARY KEY); INSERT INTO t VALUES (1);")
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	_, ok := stmts[0].(*ast.CreateTableStmt)
	assert.True(t, ok)
	_, ok = stmts[1].(*ast.InsertStmt)
	assert.True(t, ok)
}

func TestParseInvalidSQL(t *testing.T) {
	p := New()
	_, err := p.Parse("SELECT FROM WHERE")
	assert.Error(t, err)
}
