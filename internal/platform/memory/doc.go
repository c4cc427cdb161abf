// Package memory provides an in-process implementation of the store
// interfaces. It backs the service when no database is configured and is
// the store used by package tests throughout the module.
//
// Entities are copied on the way in and on the way out, so callers never
// share memory with the store. Task updates follow the same optimistic
// version check as the PostgreSQL implementation.
package memory
