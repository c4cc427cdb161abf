package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/postpilot/internal/domain"
	"github.com/phrazzld/postpilot/internal/store"
)

// PostgresAccountStore gives read access to publish target accounts and an
// upsert used by the operator CLI.
type PostgresAccountStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresAccountStore creates an account store over a connection or transaction.
func NewPostgresAccountStore(db store.DBTX, logger *slog.Logger) *PostgresAccountStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresAccountStore{
		db:     db,
		logger: logger.With(slog.String("component", "account_store")),
	}
}

var _ store.AccountStore = (*PostgresAccountStore)(nil)

// GetAccount implements store.AccountStore.GetAccount.
func (s *PostgresAccountStore) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	var a domain.Account
	err := s.db.QueryRowContext(ctx, `
		SELECT id, platform, name, status, created_at, updated_at
		FROM accounts WHERE id = $1`, id,
	).Scan(&a.ID, &a.Platform, &a.Name, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, mapNotFound(err, store.ErrAccountNotFound)
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

// PutAccount inserts the account or overwrites its platform, name and status.
func (s *PostgresAccountStore) PutAccount(ctx context.Context, a *domain.Account) error {
	if a.ID == uuid.Nil || strings.TrimSpace(a.Platform) == "" || strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("%w: account needs an ID, platform and name", store.ErrInvalidEntity)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, platform, name, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			platform = EXCLUDED.platform,
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`,
		a.ID, a.Platform, a.Name, a.Status, a.CreatedAt.UTC(), a.UpdatedAt.UTC(),
	)
	if err != nil {
		s.logger.Error("failed to put account", "account_id", a.ID, "error", err)
		return MapError(err)
	}
	return nil
}
