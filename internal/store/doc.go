// Package store defines the storage capability the orchestration engine and
// device registry depend on: create/get/update access to tasks, generated
// content, publish accounts and devices, with optimistic concurrency on tasks.
// Implementations live under internal/platform.
package store
