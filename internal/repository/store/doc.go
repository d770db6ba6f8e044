// Package store is the durable persistence layer and its change feed.
//
// It wraps a SQLite database behind typed insert/query/update operations for
// the guard domain records and publishes a ChangeEvent to per-family
// subscribers after every successful write. The store is the single source
// of truth; every in-memory structure elsewhere in the module is a
// process-local cache over it.
package store
