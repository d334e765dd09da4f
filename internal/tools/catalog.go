package tools

import (
	"github.com/dmarma/okta-mcp-server/internal/mcp"
	"github.com/dmarma/okta-mcp-server/internal/registry"
)

// Catalog maps every known operation identifier to a factory bound to api.
func Catalog(api API) registry.Catalog {
	bind := func(build func(API) (mcp.Tool, error)) registry.Factory {
		return func() (mcp.Tool, error) { return build(api) }
	}
	userAction := func(name, description, action string) registry.Factory {
		return func() (mcp.Tool, error) { return userLifecycle(api, name, description, action) }
	}
	appAction := func(name, description, action string) registry.Factory {
		return func() (mcp.Tool, error) { return appLifecycle(api, name, description, action) }
	}

	return registry.Catalog{
		"users/list_users":        bind(listUsers),
		"users/get_user":          bind(getUser),
		"users/create_user":       bind(createUser),
		"users/update_user":       bind(updateUser),
		"users/activate_user":     userAction("activate_user", "Activate a staged or deprovisioned Okta user.", "activate"),
		"users/deactivate_user":   userAction("deactivate_user", "Deactivate an Okta user.", "deactivate"),
		"users/suspend_user":      userAction("suspend_user", "Suspend an active Okta user.", "suspend"),
		"users/unsuspend_user":    userAction("unsuspend_user", "Return a suspended Okta user to active.", "unsuspend"),
		"users/unlock_user":       userAction("unlock_user", "Unlock a locked-out Okta user.", "unlock"),
		"users/delete_user":       bind(deleteUser),
		"users/list_user_groups":  bind(listUserGroups),
		"users/list_user_factors": bind(listUserFactors),

		"groups/list_groups":            bind(listGroups),
		"groups/get_group":              bind(getGroup),
		"groups/create_group":           bind(createGroup),
		"groups/update_group":           bind(updateGroup),
		"groups/delete_group":           bind(deleteGroup),
		"groups/list_group_users":       bind(listGroupUsers),
		"groups/add_user_to_group":      bind(addUserToGroup),
		"groups/remove_user_from_group": bind(removeUserFromGroup),

		"apps/list_applications":            bind(listApplications),
		"apps/get_application":              bind(getApplication),
		"apps/activate_application":         appAction("activate_application", "Activate an Okta application.", "activate"),
		"apps/deactivate_application":       appAction("deactivate_application", "Deactivate an Okta application.", "deactivate"),
		"apps/delete_application":           bind(deleteApplication),
		"apps/list_application_users":       bind(listApplicationUsers),
		"apps/assign_user_to_application":   bind(assignUserToApplication),
		"apps/remove_user_from_application": bind(removeUserFromApplication),
		"apps/assign_group_to_application":  bind(assignGroupToApplication),

		"logs/get_logs":          bind(getLogs),
		"policies/list_policies": bind(listPolicies),
	}
}
