package postgres

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// RequiresNoTransaction parses the migration SQL with the PostgreSQL parser
// and reports whether any statement is a CREATE INDEX CONCURRENTLY, which
// cannot run inside a transaction block. Unparseable SQL reports false and
// is left for the backend to reject with a proper error position.
func (c *Conn) RequiresNoTransaction(sql string) bool {
	tree, err := pg_query.Parse(sql)
	if err != nil {
		return false
	}

	for _, stmt := range tree.Stmts {
		node, ok := stmt.Stmt.Node.(*pg_query.Node_IndexStmt)
		if !ok {
			continue
		}

		if node.IndexStmt != nil && node.IndexStmt.Concurrent {
			return true
		}
	}

	return false
}
