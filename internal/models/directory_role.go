package models

// DirectoryRole is a directory role assignment held by a user, either directly
// or inherited through group membership. RoleTemplateID is the tenant-independent
// identifier used for comparisons; DisplayName is informational only.
type DirectoryRole struct {
	RoleTemplateID string `json:"roleTemplateId"`
	DisplayName    string `json:"displayName"`
}
