// Package task owns the lifecycle of publishing tasks: validation of task
// specs, the per-task state machine, the retry policy, and the engine that
// drives many tasks concurrently through generation, scheduled publishing and
// completion while persisting every step.
package task
