// Package postgres holds the PostgreSQL-backed pieces of taskrelay: goose
// migrations, the task schema document store and the mapping from driver
// errors to store errors.
//
// Connections are opened through database/sql with the pgx stdlib driver, so
// every type here accepts the store.DBTX and store.TxBeginner interfaces and
// works equally well against a *sql.DB, a *sql.Tx or go-sqlmock in tests.
package postgres
