package tools

import (
	"context"
	"net/http"

	"github.com/dmarma/okta-mcp-server/internal/mcp"
)

type listAppsArgs struct {
	Query  string `json:"q,omitempty" jsonschema_description:"Matches the start of the application name or label"`
	Filter string `json:"filter,omitempty" jsonschema_description:"Okta filter expression, e.g. status eq \"ACTIVE\""`
	Limit  int    `json:"limit,omitempty" jsonschema:"default=20,minimum=1,maximum=200" jsonschema_description:"Maximum number of applications to return"`
	After  string `json:"after,omitempty" jsonschema_description:"Pagination cursor returned as nextCursor by a previous call"`
}

type appArgs struct {
	AppID string `json:"appId" jsonschema_description:"Okta application id"`
}

type appUsersArgs struct {
	AppID string `json:"appId" jsonschema_description:"Okta application id"`
	Limit int    `json:"limit,omitempty" jsonschema:"default=20,minimum=1,maximum=200" jsonschema_description:"Maximum number of assignments to return"`
	After string `json:"after,omitempty" jsonschema_description:"Pagination cursor returned as nextCursor by a previous call"`
}

type appUserArgs struct {
	AppID   string         `json:"appId" jsonschema_description:"Okta application id"`
	UserID  string         `json:"userId" jsonschema_description:"Okta user id"`
	Profile map[string]any `json:"profile,omitempty" jsonschema_description:"App-specific profile for the assignment"`
}

type appUnassignArgs struct {
	AppID  string `json:"appId" jsonschema_description:"Okta application id"`
	UserID string `json:"userId" jsonschema_description:"Okta user id"`
}

type appGroupArgs struct {
	AppID    string `json:"appId" jsonschema_description:"Okta application id"`
	GroupID  string `json:"groupId" jsonschema_description:"Okta group id"`
	Priority *int   `json:"priority,omitempty" jsonschema_description:"Assignment priority; lower values win"`
}

func listApplications(api API) (mcp.Tool, error) {
	return newOperation("list_applications", "List applications in the Okta organization.",
		func(ctx context.Context, a listAppsArgs) (any, error) {
			q := pageQuery(a.Limit, a.After)
			setIf(q, "q", a.Query)
			setIf(q, "filter", a.Filter)

			var apps []map[string]any
			page, err := api.Do(ctx, http.MethodGet, "/api/v1/apps", q, nil, &apps)
			if err != nil {
				return nil, err
			}
			return listResult("applications", apps, page), nil
		})
}

func getApplication(api API) (mcp.Tool, error) {
	return newOperation("get_application", "Get a single Okta application.",
		func(ctx context.Context, a appArgs) (any, error) {
			if err := nonEmpty("appId", a.AppID); err != nil {
				return nil, err
			}
			var app map[string]any
			if _, err := api.Do(ctx, http.MethodGet, pathf("/api/v1/apps/%s", a.AppID), nil, nil, &app); err != nil {
				return nil, err
			}
			return app, nil
		})
}

func appLifecycle(api API, name, description, action string) (mcp.Tool, error) {
	return newOperation(name, description,
		func(ctx context.Context, a appArgs) (any, error) {
			if err := nonEmpty("appId", a.AppID); err != nil {
				return nil, err
			}
			path := pathf("/api/v1/apps/%s/lifecycle/", a.AppID) + action
			if _, err := api.Do(ctx, http.MethodPost, path, nil, nil, nil); err != nil {
				return nil, err
			}
			return map[string]any{"appId": a.AppID, "action": action, "success": true}, nil
		})
}

func deleteApplication(api API) (mcp.Tool, error) {
	return newOperation("delete_application", "Delete an inactive Okta application.",
		func(ctx context.Context, a appArgs) (any, error) {
			if err := nonEmpty("appId", a.AppID); err != nil {
				return nil, err
			}
			if _, err := api.Do(ctx, http.MethodDelete, pathf("/api/v1/apps/%s", a.AppID), nil, nil, nil); err != nil {
				return nil, err
			}
			return map[string]any{"appId": a.AppID, "deleted": true}, nil
		})
}

func listApplicationUsers(api API) (mcp.Tool, error) {
	return newOperation("list_application_users", "List users assigned to an Okta application.",
		func(ctx context.Context, a appUsersArgs) (any, error) {
			if err := nonEmpty("appId", a.AppID); err != nil {
				return nil, err
			}
			var users []map[string]any
			page, err := api.Do(ctx, http.MethodGet, pathf("/api/v1/apps/%s/users", a.AppID), pageQuery(a.Limit, a.After), nil, &users)
			if err != nil {
				return nil, err
			}
			return listResult("users", users, page), nil
		})
}

func assignUserToApplication(api API) (mcp.Tool, error) {
	return newOperation("assign_user_to_application", "Assign an Okta user to an application.",
		func(ctx context.Context, a appUserArgs) (any, error) {
			if err := nonEmpty("appId", a.AppID); err != nil {
				return nil, err
			}
			if err := nonEmpty("userId", a.UserID); err != nil {
				return nil, err
			}
			body := map[string]any{"id": a.UserID, "scope": "USER"}
			if len(a.Profile) > 0 {
				body["profile"] = a.Profile
			}
			var assignment map[string]any
			if _, err := api.Do(ctx, http.MethodPost, pathf("/api/v1/apps/%s/users", a.AppID), nil, body, &assignment); err != nil {
				return nil, err
			}
			return assignment, nil
		})
}

func removeUserFromApplication(api API) (mcp.Tool, error) {
	return newOperation("remove_user_from_application", "Remove a user assignment from an Okta application.",
		func(ctx context.Context, a appUnassignArgs) (any, error) {
			if err := nonEmpty("appId", a.AppID); err != nil {
				return nil, err
			}
			if err := nonEmpty("userId", a.UserID); err != nil {
				return nil, err
			}
			if _, err := api.Do(ctx, http.MethodDelete, pathf("/api/v1/apps/%s/users/%s", a.AppID, a.UserID), nil, nil, nil); err != nil {
				return nil, err
			}
			return map[string]any{"appId": a.AppID, "userId": a.UserID, "removed": true}, nil
		})
}

func assignGroupToApplication(api API) (mcp.Tool, error) {
	return newOperation("assign_group_to_application", "Assign an Okta group to an application.",
		func(ctx context.Context, a appGroupArgs) (any, error) {
			if err := nonEmpty("appId", a.AppID); err != nil {
				return nil, err
			}
			if err := nonEmpty("groupId", a.GroupID); err != nil {
				return nil, err
			}
			body := map[string]any{}
			if a.Priority != nil {
				body["priority"] = *a.Priority
			}
			var assignment map[string]any
			if _, err := api.Do(ctx, http.MethodPut, pathf("/api/v1/apps/%s/groups/%s", a.AppID, a.GroupID), nil, body, &assignment); err != nil {
				return nil, err
			}
			return assignment, nil
		})
}
