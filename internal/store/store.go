package store

import (
	"context"
	"errors"

	"github.com/oakensoft/tenantgate/internal/models"
)

// Sentinel errors for common error conditions
var (
	ErrConfigNotFound  = errors.New("tenant config not found")
	ErrInvalidTenantID = errors.New("invalid tenant ID")
	ErrEmptyURLList    = errors.New("sharepoint URL list is empty")
)

// ConfigStore defines the interface for tenant configuration persistence.
// Saving is an upsert keyed by tenant ID; every save mints a new revision.
type ConfigStore interface {
	SaveConfig(ctx context.Context, tenantID string, sharepointURLs []string) (*models.TenantConfig, error)
	GetConfig(ctx context.Context, tenantID string) (*models.TenantConfig, error)
	DeleteConfig(ctx context.Context, tenantID string) error
	ListConfigs(ctx context.Context) ([]*models.TenantConfig, error)
}
