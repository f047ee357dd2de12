// Package store is the local relational mirror of congregation data.
//
// It is backed by SQLite (modernc.org/sqlite, WAL mode) with the schema
// managed by embedded goose migrations. Writes are serialized through a
// single writer lock and grouped in transactions; readers use the pool and
// only ever observe committed state. Every committed transaction publishes
// one ChangeSet listing the tables it touched, in dependency order, to the
// subscribers interested in them.
package store
