package memory

import (
	"context"
	"testing"

	"github.com/oakensoft/tenantgate/internal/store"
	"github.com/stretchr/testify/require"
)

func TestConfigStore_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewConfigStore()

	saved, err := s.SaveConfig(ctx, "tenant-1", []string{"https://contoso.sharepoint.example/sites/a"})
	require.NoError(t, err)
	require.Equal(t, "tenant-1", saved.TenantID)
	require.NotEqual(t, saved.RevisionID.String(), "00000000-0000-0000-0000-000000000000")
	require.False(t, saved.CreatedAt.IsZero())

	got, err := s.GetConfig(ctx, "tenant-1")
	require.NoError(t, err)
	require.Equal(t, saved.RevisionID, got.RevisionID)
	require.Equal(t, []string{"https://contoso.sharepoint.example/sites/a"}, got.SharePointURLs)
}

func TestConfigStore_SaveReplacesAndBumpsRevision(t *testing.T) {
	ctx := context.Background()
	s := NewConfigStore()

	first, err := s.SaveConfig(ctx, "tenant-1", []string{"https://a.example"})
	require.NoError(t, err)

	second, err := s.SaveConfig(ctx, "tenant-1", []string{"https://b.example", "https://c.example"})
	require.NoError(t, err)

	require.NotEqual(t, first.RevisionID, second.RevisionID)
	require.Equal(t, first.CreatedAt, second.CreatedAt)

	got, err := s.GetConfig(ctx, "tenant-1")
	require.NoError(t, err)
	require.Equal(t, []string{"https://b.example", "https://c.example"}, got.SharePointURLs)
}

func TestConfigStore_Validation(t *testing.T) {
	ctx := context.Background()
	s := NewConfigStore()

	_, err := s.SaveConfig(ctx, "", []string{"https://a.example"})
	require.ErrorIs(t, err, store.ErrInvalidTenantID)

	_, err = s.SaveConfig(ctx, "   ", []string{"https://a.example"})
	require.ErrorIs(t, err, store.ErrInvalidTenantID)

	_, err = s.SaveConfig(ctx, "tenant-1", nil)
	require.ErrorIs(t, err, store.ErrEmptyURLList)
}

func TestConfigStore_GetMissing(t *testing.T) {
	s := NewConfigStore()

	_, err := s.GetConfig(context.Background(), "absent")
	require.ErrorIs(t, err, store.ErrConfigNotFound)
}

func TestConfigStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := NewConfigStore()

	_, err := s.SaveConfig(ctx, "tenant-1", []string{"https://a.example"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteConfig(ctx, "tenant-1"))
	require.ErrorIs(t, s.DeleteConfig(ctx, "tenant-1"), store.ErrConfigNotFound)

	_, err = s.GetConfig(ctx, "tenant-1")
	require.ErrorIs(t, err, store.ErrConfigNotFound)
}

func TestConfigStore_ListOrdered(t *testing.T) {
	ctx := context.Background()
	s := NewConfigStore()

	for _, id := range []string{"tenant-c", "tenant-a", "tenant-b"} {
		_, err := s.SaveConfig(ctx, id, []string{"https://" + id + ".example"})
		require.NoError(t, err)
	}

	configs, err := s.ListConfigs(ctx)
	require.NoError(t, err)
	require.Len(t, configs, 3)
	require.Equal(t, "tenant-a", configs[0].TenantID)
	require.Equal(t, "tenant-b", configs[1].TenantID)
	require.Equal(t, "tenant-c", configs[2].TenantID)
}

func TestConfigStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewConfigStore()

	_, err := s.SaveConfig(ctx, "tenant-1", []string{"https://a.example"})
	require.NoError(t, err)

	got, err := s.GetConfig(ctx, "tenant-1")
	require.NoError(t, err)
	got.SharePointURLs[0] = "https://tampered.example"

	again, err := s.GetConfig(ctx, "tenant-1")
	require.NoError(t, err)
	require.Equal(t, []string{"https://a.example"}, again.SharePointURLs)
}
