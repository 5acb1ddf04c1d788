//go:build integration

// Package testdb provides utilities for tests that run against a real
// PostgreSQL database.
//
// Each test runs in its own transaction, which is rolled back when the test
// completes, so tests can run in parallel and need no manual cleanup:
//
//	func TestTaskStore(t *testing.T) {
//	    t.Parallel()
//	    db := testdb.GetTestDBWithT(t)
//
//	    testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
//	        tasks := postgres.NewPostgresTaskStore(tx, nil)
//	        // ...
//	    })
//	}
//
// GetTestDBWithT skips the test when no database URL is configured. The URL
// is read from VIETGUARD_TEST_DB_URL, then DATABASE_URL, then
// VIETGUARD_DATABASE_URL. The embedded migrations are applied once per
// process.
package testdb
