package domain

import (
	"time"

	"github.com/google/uuid"
)

// AccountStatus is the publishing state of an account
type AccountStatus string

// Possible account status values
const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusInactive  AccountStatus = "inactive"
	AccountStatusSuspended AccountStatus = "suspended"
)

// Account is a social platform account a task publishes to. Accounts are
// managed outside the engine; the engine only reads them.
type Account struct {
	ID        uuid.UUID     `json:"id"`
	Platform  string        `json:"platform"`
	Name      string        `json:"name"`
	Status    AccountStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// CanPublish reports whether posts may be sent to the account.
func (a *Account) CanPublish() bool {
	return a.Status == AccountStatusActive
}
