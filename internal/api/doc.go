// Package api exposes the task engine and the mobile command relay over
// HTTP. Handlers translate requests into engine and relay calls and map
// their errors to status codes without leaking internal details.
package api
