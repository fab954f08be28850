//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"

	"github.com/oakensoft/tenantgate/internal/store"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgresContainer(t *testing.T, ctx context.Context) (*ConfigStore, func()) {
	// Start postgres container
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	connString := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	// Create store with auto-migrate enabled
	cfg := &ConfigStoreConfig{
		ConnString:  connString,
		AutoMigrate: true, // Enable migrations for tests
	}

	configStore, err := NewConfigStore(ctx, cfg)
	require.NoError(t, err)

	cleanup := func() {
		configStore.Close()
		_ = container.Terminate(ctx)
	}

	return configStore, cleanup
}

func TestIntegration_ConfigLifecycle(t *testing.T) {
	ctx := context.Background()
	configStore, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	t.Run("save config", func(t *testing.T) {
		saved, err := configStore.SaveConfig(ctx, "tenant-1", []string{
			"https://contoso.sharepoint.example/sites/a",
			"https://contoso.sharepoint.example/sites/b",
		})
		require.NoError(t, err)
		require.Equal(t, "tenant-1", saved.TenantID)
		require.Len(t, saved.SharePointURLs, 2)
		require.False(t, saved.CreatedAt.IsZero())
		require.Equal(t, saved.CreatedAt, saved.UpdatedAt)
	})

	t.Run("get config", func(t *testing.T) {
		got, err := configStore.GetConfig(ctx, "tenant-1")
		require.NoError(t, err)
		require.Equal(t, []string{
			"https://contoso.sharepoint.example/sites/a",
			"https://contoso.sharepoint.example/sites/b",
		}, got.SharePointURLs)
	})

	t.Run("resave replaces list and bumps revision", func(t *testing.T) {
		before, err := configStore.GetConfig(ctx, "tenant-1")
		require.NoError(t, err)

		saved, err := configStore.SaveConfig(ctx, "tenant-1", []string{
			"https://contoso.sharepoint.example/sites/c",
		})
		require.NoError(t, err)
		require.NotEqual(t, before.RevisionID, saved.RevisionID)
		require.Equal(t, before.CreatedAt, saved.CreatedAt)
		require.Equal(t, []string{"https://contoso.sharepoint.example/sites/c"}, saved.SharePointURLs)
	})

	t.Run("get missing tenant", func(t *testing.T) {
		_, err := configStore.GetConfig(ctx, "absent")
		require.ErrorIs(t, err, store.ErrConfigNotFound)
	})

	t.Run("list configs", func(t *testing.T) {
		_, err := configStore.SaveConfig(ctx, "tenant-0", []string{"https://fabrikam.sharepoint.example"})
		require.NoError(t, err)

		configs, err := configStore.ListConfigs(ctx)
		require.NoError(t, err)
		require.Len(t, configs, 2)
		require.Equal(t, "tenant-0", configs[0].TenantID)
		require.Equal(t, "tenant-1", configs[1].TenantID)
	})

	t.Run("delete config", func(t *testing.T) {
		require.NoError(t, configStore.DeleteConfig(ctx, "tenant-0"))
		require.ErrorIs(t, configStore.DeleteConfig(ctx, "tenant-0"), store.ErrConfigNotFound)
	})

	t.Run("validation errors", func(t *testing.T) {
		_, err := configStore.SaveConfig(ctx, "  ", []string{"https://x.example"})
		require.ErrorIs(t, err, store.ErrInvalidTenantID)

		_, err = configStore.SaveConfig(ctx, "tenant-2", nil)
		require.ErrorIs(t, err, store.ErrEmptyURLList)
	})

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, configStore.Ping(ctx))
	})
}
