package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oakensoft/tenantgate/internal/authz"
	"github.com/oakensoft/tenantgate/internal/models"
)

func TestListTransitiveDirectoryRoles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users/user-1/transitiveMemberOf/microsoft.graph.directoryRole", r.URL.Path)
		require.Equal(t, "roleTemplateId,displayName", r.URL.Query().Get("$select"))

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"value": []models.DirectoryRole{
				{RoleTemplateID: "62e90394-69f5-4237-9190-012177145e10", DisplayName: "Global Administrator"},
				{RoleTemplateID: "fe930be7-5e62-47db-91af-98c3a49a38b1", DisplayName: "SharePoint Administrator"},
			},
		}))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})

	roles, err := client.ListTransitiveDirectoryRoles(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, roles, 2)
	require.Equal(t, "62e90394-69f5-4237-9190-012177145e10", roles[0].RoleTemplateID)
}

func TestListTransitiveDirectoryRoles_FollowsNextLink(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if r.URL.Query().Get("page") == "2" {
			require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
				"value": []models.DirectoryRole{{RoleTemplateID: "role-2"}},
			}))
			return
		}

		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"value":           []models.DirectoryRole{{RoleTemplateID: "role-1"}},
			"@odata.nextLink": fmt.Sprintf("%s/users/user-1/transitiveMemberOf/microsoft.graph.directoryRole?page=2", server.URL),
		}))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})

	roles, err := client.ListTransitiveDirectoryRoles(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, []models.DirectoryRole{{RoleTemplateID: "role-1"}, {RoleTemplateID: "role-2"}}, roles)
}

func TestListTransitiveDirectoryRoles_DeniedStatuses(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		client := NewClient(Config{BaseURL: server.URL})

		_, err := client.ListTransitiveDirectoryRoles(context.Background(), "user-1")
		require.ErrorIs(t, err, authz.ErrBackendDenied)

		server.Close()
	}
}

func TestListTransitiveDirectoryRoles_Unavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})

	_, err := client.ListTransitiveDirectoryRoles(context.Background(), "user-1")
	require.ErrorIs(t, err, authz.ErrBackendUnavailable)
}

func TestListTransitiveDirectoryRoles_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused

	client := NewClient(Config{BaseURL: server.URL})

	_, err := client.ListTransitiveDirectoryRoles(context.Background(), "user-1")
	require.ErrorIs(t, err, authz.ErrBackendUnavailable)
}
