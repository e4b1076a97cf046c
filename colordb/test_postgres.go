//go:build test_db_postgres

package colordb

import (
	"testing"
)

// activeTestDB is the name of the database backend the tests run against.
const activeTestDB = "postgres"

// NewTestDB is a helper function that creates a Postgres database for testing.
func NewTestDB(t *testing.T) *PostgresStore {
	return NewTestPostgresDB(t)
}

// NewTestDbHandleFromPath is a helper function that creates a new handle to an
// existing Postgres database for testing.
func NewTestDbHandleFromPath(t *testing.T, dbPath string) *PostgresStore {
	return NewTestPostgresDB(t)
}
