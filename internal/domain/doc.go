// Package domain contains the core entities of the publishing pipeline: tasks,
// generated content, publish target accounts and mobile devices. It is
// independent of storage, transport and the orchestration engine.
package domain
