package authz

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// AllowList is the set of directory role template IDs that qualify a user as
// tenant administrator. It is injected configuration loaded at process start,
// never a source constant, and comparisons are case-insensitive.
type AllowList struct {
	ids     []string
	indexed map[string]struct{}
}

// NewAllowList builds an allow-list from role template IDs. Order is preserved
// for display; lookups are case-insensitive.
func NewAllowList(ids []string) (*AllowList, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("allow-list must contain at least one role template ID")
	}

	indexed := make(map[string]struct{}, len(ids))
	kept := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		key := strings.ToLower(id)
		if _, ok := indexed[key]; ok {
			continue
		}
		indexed[key] = struct{}{}
		kept = append(kept, id)
	}

	if len(kept) == 0 {
		return nil, fmt.Errorf("allow-list must contain at least one role template ID")
	}

	return &AllowList{ids: kept, indexed: indexed}, nil
}

// allowListFile is the YAML shape of the allow-list configuration file.
type allowListFile struct {
	AdminRoleTemplateIDs []string `yaml:"adminRoleTemplateIds"`
}

// LoadAllowList reads the allow-list from a YAML file:
//
//	adminRoleTemplateIds:
//	  - 62e90394-69f5-4237-9190-012177145e10 # Global Administrator
func LoadAllowList(path string) (*AllowList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read allow-list file: %w", err)
	}

	var file allowListFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse allow-list file: %w", err)
	}

	return NewAllowList(file.AdminRoleTemplateIDs)
}

// Contains reports whether the given role template ID is on the allow-list.
// Comparison is case-insensitive.
func (a *AllowList) Contains(roleTemplateID string) bool {
	if roleTemplateID == "" {
		return false
	}
	_, ok := a.indexed[strings.ToLower(roleTemplateID)]
	return ok
}

// IDs returns the configured role template IDs in their original order.
func (a *AllowList) IDs() []string {
	out := make([]string, len(a.ids))
	copy(out, a.ids)
	return out
}
