package relay

import "errors"

var (
	// ErrUnknownDevice is returned for task commands from a device that was
	// never registered.
	ErrUnknownDevice = errors.New("unknown device")

	// ErrInvalidCommand is returned when a command or its params fail validation.
	ErrInvalidCommand = errors.New("invalid command")

	// ErrRateLimited is returned when a device sends commands too quickly.
	ErrRateLimited = errors.New("too many commands")

	// ErrTaskNotOwned is returned when a device cancels a task it did not issue.
	ErrTaskNotOwned = errors.New("task was not issued by this device")
)
