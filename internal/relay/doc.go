// Package relay translates commands sent by registered mobile devices into
// device registrations, task submissions and task cancellations, and pushes
// task results back to the device that asked for them.
package relay
