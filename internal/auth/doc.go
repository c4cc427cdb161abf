// Package auth issues and validates the bearer tokens that protect the
// operator REST API.
package auth
