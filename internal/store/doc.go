// Package store defines the persistence interfaces of the scan gateway.
// Implementations live under internal/platform (postgres for production,
// memory for tests and single-process runs). Every status change goes
// through a conditional write so concurrent writers cannot both apply it.
package store
