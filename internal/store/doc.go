// Package store defines the database abstractions shared by persistence
// code: DBTX for queries that may run inside a transaction, Database for
// pools that can be health checked, RunInTransaction, and the store error
// taxonomy.
package store
