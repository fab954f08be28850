package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oakensoft/tenantgate/internal/models"
	"github.com/oakensoft/tenantgate/internal/store"
	"github.com/rs/zerolog/log"
)

// ConfigStore implements store.ConfigStore using PostgreSQL as the backend.
// Saves are atomic upserts keyed by tenant ID, so concurrent submissions for
// the same tenant never interleave partial URL lists.
type ConfigStore struct {
	pool *pgxpool.Pool
	cfg  *ConfigStoreConfig
}

// NewConfigStore creates a new PostgreSQL-backed tenant config store.
// It establishes a connection pool and optionally runs migrations.
func NewConfigStore(ctx context.Context, cfg *ConfigStoreConfig) (*ConfigStore, error) {
	cfg.ApplyDefaults()

	pool, err := NewPool(ctx, &PoolConfig{ConnString: cfg.ConnString})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("database", pool.Config().ConnConfig.Database).
		Str("host", pool.Config().ConnConfig.Host).
		Msg("Connected to PostgreSQL")

	if cfg.AutoMigrate {
		if err := runMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return &ConfigStore{pool: pool, cfg: cfg}, nil
}

// Close releases the underlying connection pool.
func (s *ConfigStore) Close() {
	s.pool.Close()
}

// Ping verifies database connectivity, used by health checks.
func (s *ConfigStore) Ping(ctx context.Context) error {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()
	return s.pool.Ping(ctx)
}

// SaveConfig upserts the configuration for a tenant, minting a new revision.
// CreatedAt is preserved across replacements.
func (s *ConfigStore) SaveConfig(ctx context.Context, tenantID string, sharepointURLs []string) (*models.TenantConfig, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, store.ErrInvalidTenantID
	}
	if len(sharepointURLs) == 0 {
		return nil, store.ErrEmptyURLList
	}

	revisionID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to mint revision ID: %w", err)
	}

	query := `
		INSERT INTO tenant_configs (
			tenant_id, sharepoint_urls, revision_id
		) VALUES (
			$1, $2, $3
		)
		ON CONFLICT (tenant_id) DO UPDATE SET
			sharepoint_urls = EXCLUDED.sharepoint_urls,
			revision_id = EXCLUDED.revision_id,
			updated_at = now()
		RETURNING tenant_id, sharepoint_urls, revision_id, created_at, updated_at
	`

	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	var cfg models.TenantConfig
	err = s.pool.QueryRow(ctx, query, tenantID, sharepointURLs, revisionID).Scan(
		&cfg.TenantID,
		&cfg.SharePointURLs,
		&cfg.RevisionID,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save tenant config: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("tenant_id", cfg.TenantID).
		Str("revision_id", cfg.RevisionID.String()).
		Int("url_count", len(cfg.SharePointURLs)).
		Msg("Saved tenant config")

	return &cfg, nil
}

// GetConfig retrieves the configuration for a tenant.
func (s *ConfigStore) GetConfig(ctx context.Context, tenantID string) (*models.TenantConfig, error) {
	query := `
		SELECT tenant_id, sharepoint_urls, revision_id, created_at, updated_at
		FROM tenant_configs
		WHERE tenant_id = $1
	`

	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	var cfg models.TenantConfig
	err := s.pool.QueryRow(ctx, query, tenantID).Scan(
		&cfg.TenantID,
		&cfg.SharePointURLs,
		&cfg.RevisionID,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to get tenant config: %w", mapPostgresError(err))
	}

	return &cfg, nil
}

// DeleteConfig removes the configuration for a tenant.
func (s *ConfigStore) DeleteConfig(ctx context.Context, tenantID string) error {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	result, err := s.pool.Exec(ctx, `DELETE FROM tenant_configs WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete tenant config: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrConfigNotFound
	}

	log.Info().
		Str("tenant_id", tenantID).
		Msg("Deleted tenant config")

	return nil
}

// ListConfigs returns all stored tenant configurations ordered by tenant ID.
func (s *ConfigStore) ListConfigs(ctx context.Context) ([]*models.TenantConfig, error) {
	query := `
		SELECT tenant_id, sharepoint_urls, revision_id, created_at, updated_at
		FROM tenant_configs
		ORDER BY tenant_id
	`

	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenant configs: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var configs []*models.TenantConfig
	for rows.Next() {
		var cfg models.TenantConfig
		err := rows.Scan(
			&cfg.TenantID,
			&cfg.SharePointURLs,
			&cfg.RevisionID,
			&cfg.CreatedAt,
			&cfg.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant config: %w", err)
		}
		configs = append(configs, &cfg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tenant configs: %w", err)
	}

	return configs, nil
}

// queryContext bounds a query with the configured timeout when one is set.
func (s *ConfigStore) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.QueryTimeoutSeconds <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, time.Duration(s.cfg.QueryTimeoutSeconds)*time.Second)
}
