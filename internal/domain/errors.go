// Package domain defines the core business entities and errors.
package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity or task spec fails validation.
	// It is always wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTaskStatus is returned when a task status is not recognised.
	ErrInvalidTaskStatus = errors.New("invalid task status")

	// ErrInvalidTaskType is returned when a task type is not recognised.
	ErrInvalidTaskType = errors.New("invalid task type")

	// ErrInvalidTransition is returned when a task is moved between two states
	// the lifecycle does not connect.
	ErrInvalidTransition = errors.New("invalid task status transition")

	// ErrEmptyGenerationConfig is returned when a generating task has neither
	// a theme nor keywords.
	ErrEmptyGenerationConfig = errors.New("generation config cannot be empty")

	// ErrNegativeMaxRetries is returned when max retries is below zero.
	ErrNegativeMaxRetries = errors.New("max retries cannot be negative")

	// ErrMissingAccount is returned when a publishing task has no account.
	ErrMissingAccount = errors.New("account ID is required to publish")

	// ErrMissingContent is returned when a publish-only task has no content.
	ErrMissingContent = errors.New("content ID is required for publish tasks")

	// ErrAccountNotActive is returned when the target account cannot be published to.
	ErrAccountNotActive = errors.New("account is not active")

	// ErrEmptyDeviceID is returned when a device has no identifier.
	ErrEmptyDeviceID = errors.New("device ID cannot be empty")
)
