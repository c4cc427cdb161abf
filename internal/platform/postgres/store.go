package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	// registers the pgx database/sql driver
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/phrazzld/postpilot/internal/domain"
	"github.com/phrazzld/postpilot/internal/store"
)

// Store bundles the PostgreSQL stores behind store.Store.
type Store struct {
	*PostgresTaskStore
	*PostgresContentStore
	*PostgresAccountStore
	*PostgresDeviceStore

	db     *sql.DB
	logger *slog.Logger
}

var _ store.Store = (*Store)(nil)

// New creates a Store over db.
func New(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{
		PostgresTaskStore:    NewPostgresTaskStore(db, logger),
		PostgresContentStore: NewPostgresContentStore(db, logger),
		PostgresAccountStore: NewPostgresAccountStore(db, logger),
		PostgresDeviceStore:  NewPostgresDeviceStore(db, logger),
		db:                   db,
		logger:               logger,
	}
}

// PutAccounts upserts accounts in a single transaction. Either all of them
// are written or none are.
func (s *Store) PutAccounts(ctx context.Context, accounts []*domain.Account) error {
	return store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		accountStore := NewPostgresAccountStore(tx, s.logger)
		for _, a := range accounts {
			if err := accountStore.PutAccount(ctx, a); err != nil {
				return fmt.Errorf("account %s: %w", a.ID, err)
			}
		}
		return nil
	})
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
