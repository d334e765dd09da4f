// Package registry holds the ordered list of operation identifiers the
// server loads at startup and the discovery step that turns them into
// tools.
package registry

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var defaultOperations = []string{
	"users/list_users",
	"users/get_user",
	"users/create_user",
	"users/update_user",
	"users/activate_user",
	"users/deactivate_user",
	"users/suspend_user",
	"users/unsuspend_user",
	"users/unlock_user",
	"users/delete_user",
	"users/list_user_groups",
	"users/list_user_factors",
	"groups/list_groups",
	"groups/get_group",
	"groups/create_group",
	"groups/update_group",
	"groups/delete_group",
	"groups/list_group_users",
	"groups/add_user_to_group",
	"groups/remove_user_from_group",
	"apps/list_applications",
	"apps/get_application",
	"apps/activate_application",
	"apps/deactivate_application",
	"apps/delete_application",
	"apps/list_application_users",
	"apps/assign_user_to_application",
	"apps/remove_user_from_application",
	"apps/assign_group_to_application",
	"logs/get_logs",
	"policies/list_policies",
}

// Default returns a copy of the built-in identifier list.
func Default() []string {
	out := make([]string, len(defaultOperations))
	copy(out, defaultOperations)
	return out
}

type fileFormat struct {
	Tools []string `yaml:"tools"`
}

// LoadFile reads an identifier list from a YAML document of the form
// {tools: [id, ...]}. Blank entries are dropped; order is kept.
func LoadFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry file: %w", err)
	}
	var doc fileFormat
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse registry file: %w", err)
	}
	ids := make([]string, 0, len(doc.Tools))
	for _, id := range doc.Tools {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, errors.New("registry file lists no tools")
	}
	return ids, nil
}

// Resolve returns the list from path, or the default list when path is
// empty.
func Resolve(path string) ([]string, error) {
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}
