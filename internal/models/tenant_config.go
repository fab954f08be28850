package models

import (
	"time"

	"github.com/google/uuid"
)

// TenantConfig is the onboarding configuration a tenant administrator submits
// after granting admin consent. One row per tenant; saving again replaces the
// URL list and bumps the revision.
type TenantConfig struct {
	TenantID       string
	SharePointURLs []string
	RevisionID     uuid.UUID // UUIDv7, new on every save

	CreatedAt time.Time
	UpdatedAt time.Time
}
