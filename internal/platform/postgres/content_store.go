package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/postpilot/internal/domain"
	"github.com/phrazzld/postpilot/internal/platform/logger"
	"github.com/phrazzld/postpilot/internal/store"
)

// PostgresContentStore implements store.ContentStore. Media lists and tags
// are stored as JSONB arrays.
type PostgresContentStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresContentStore creates a content store over a connection or transaction.
func NewPostgresContentStore(db store.DBTX, logger *slog.Logger) *PostgresContentStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresContentStore{
		db:     db,
		logger: logger.With(slog.String("component", "content_store")),
	}
}

var _ store.ContentStore = (*PostgresContentStore)(nil)

// CreateContent implements store.ContentStore.CreateContent.
func (s *PostgresContentStore) CreateContent(ctx context.Context, content *domain.Content) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := content.Validate(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	images, err := jsonList(content.Images)
	if err != nil {
		return err
	}
	videos, err := jsonList(content.Videos)
	if err != nil {
		return err
	}
	tags, err := jsonList(content.Tags)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO contents (id, title, text, images, videos, tags, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		content.ID, content.Title, content.Text, images, videos, tags, content.CreatedAt.UTC(),
	)
	if err != nil {
		log.Error("failed to create content", "content_id", content.ID, "error", err)
		return MapError(err)
	}
	return nil
}

// GetContent implements store.ContentStore.GetContent.
func (s *PostgresContentStore) GetContent(ctx context.Context, id uuid.UUID) (*domain.Content, error) {
	var (
		content              domain.Content
		images, videos, tags []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, text, images, videos, tags, created_at
		FROM contents WHERE id = $1`, id,
	).Scan(&content.ID, &content.Title, &content.Text, &images, &videos, &tags, &content.CreatedAt)
	if err != nil {
		return nil, mapNotFound(err, store.ErrContentNotFound)
	}

	for _, f := range []struct {
		raw []byte
		dst *[]string
	}{{images, &content.Images}, {videos, &content.Videos}, {tags, &content.Tags}} {
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("decoding content %s: %w", id, err)
		}
		if *f.dst == nil {
			*f.dst = []string{}
		}
	}
	content.CreatedAt = content.CreatedAt.UTC()
	return &content, nil
}

func jsonList(values []string) ([]byte, error) {
	if values == nil {
		values = []string{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}
	return b, nil
}
