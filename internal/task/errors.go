package task

import "errors"

// Common errors returned by the engine
var (
	// ErrCapability marks a generation or publish failure. It never reaches
	// Submit callers; it ends up in the task's error message.
	ErrCapability = errors.New("capability call failed")

	// ErrEngineStopped is returned when work is submitted after Stop.
	ErrEngineStopped = errors.New("engine is stopped")

	// ErrEngineRunning is returned by Start on an engine already started.
	ErrEngineRunning = errors.New("engine already started")

	// ErrTaskNotActive is returned when a watcher is attached to a task that
	// is no longer driven by the engine.
	ErrTaskNotActive = errors.New("task is not active")
)
