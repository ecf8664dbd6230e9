// Package testdb provides helpers for tests that need a real Postgres
// database.
//
// Tests run inside a transaction that is rolled back when they finish, so
// they can run in parallel without cleaning up after themselves:
//
//	func TestSchemaStore(t *testing.T) {
//	    db := testdb.GetTestDBWithT(t) // skips without DATABASE_URL
//
//	    testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
//	        s := postgres.NewSchemaStore(tx)
//	        ...
//	    })
//	}
//
// The database URL is read from DATABASE_URL, RELAY_TEST_DB_URL or
// RELAY_DATABASE_URL, in that order. Migrations are applied once per
// connection.
package testdb
