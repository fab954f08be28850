package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oakensoft/tenantgate/internal/models"
	"github.com/oakensoft/tenantgate/internal/store"
)

// ConfigStore implements store.ConfigStore using in-memory storage.
// This implementation is for testing and single-instance deployments -
// data is lost on restart.
type ConfigStore struct {
	mu sync.RWMutex

	configs map[string]*models.TenantConfig // tenant_id -> TenantConfig
}

// NewConfigStore creates a new in-memory tenant config store.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{
		configs: make(map[string]*models.TenantConfig),
	}
}

// SaveConfig upserts the configuration for a tenant, minting a new revision.
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
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cfg := &models.TenantConfig{
		TenantID:       tenantID,
		SharePointURLs: append([]string(nil), sharepointURLs...),
		RevisionID:     revisionID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if existing, ok := s.configs[tenantID]; ok {
		cfg.CreatedAt = existing.CreatedAt
	}

	s.configs[tenantID] = cfg

	// Clone to avoid external modifications
	clone := *cfg
	clone.SharePointURLs = append([]string(nil), cfg.SharePointURLs...)
	return &clone, nil
}

// GetConfig retrieves the configuration for a tenant.
func (s *ConfigStore) GetConfig(ctx context.Context, tenantID string) (*models.TenantConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, exists := s.configs[tenantID]
	if !exists {
		return nil, store.ErrConfigNotFound
	}

	clone := *cfg
	clone.SharePointURLs = append([]string(nil), cfg.SharePointURLs...)
	return &clone, nil
}

// DeleteConfig removes the configuration for a tenant.
func (s *ConfigStore) DeleteConfig(ctx context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.configs[tenantID]; !exists {
		return store.ErrConfigNotFound
	}

	delete(s.configs, tenantID)
	return nil
}

// ListConfigs returns all stored tenant configurations ordered by tenant ID.
func (s *ConfigStore) ListConfigs(ctx context.Context) ([]*models.TenantConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	configs := make([]*models.TenantConfig, 0, len(s.configs))
	for _, cfg := range s.configs {
		clone := *cfg
		clone.SharePointURLs = append([]string(nil), cfg.SharePointURLs...)
		configs = append(configs, &clone)
	}

	sort.Slice(configs, func(i, j int) bool {
		return configs[i].TenantID < configs[j].TenantID
	})

	return configs, nil
}
