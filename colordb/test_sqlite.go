//go:build !test_db_postgres

package colordb

import (
	"testing"
)

// activeTestDB is the name of the database backend the tests run against.
const activeTestDB = "sqlite"

// NewTestDB is a helper function that creates an SQLite database for testing.
func NewTestDB(t *testing.T) *SqliteStore {
	return NewTestSqliteDB(t)
}

// NewTestDbHandleFromPath is a helper function that creates a new handle to an
// existing SQLite database for testing.
func NewTestDbHandleFromPath(t *testing.T, dbPath string) *SqliteStore {
	return NewTestSqliteDbHandleFromPath(t, dbPath)
}
