package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/dmarma/okta-mcp-server/internal/mcp"
)

// requiredProfileFields are the attributes Okta needs to create a user.
var requiredProfileFields = []string{"login", "email", "firstName", "lastName"}

type listUsersArgs struct {
	Query  string `json:"q,omitempty" jsonschema_description:"Matches the start of login, email, firstName or lastName"`
	Filter string `json:"filter,omitempty" jsonschema_description:"Okta filter expression, e.g. status eq \"ACTIVE\""`
	Search string `json:"search,omitempty" jsonschema_description:"Okta search expression over profile attributes"`
	Limit  int    `json:"limit,omitempty" jsonschema:"default=20,minimum=1,maximum=200" jsonschema_description:"Maximum number of users to return"`
	After  string `json:"after,omitempty" jsonschema_description:"Pagination cursor returned as nextCursor by a previous call"`
}

type userArgs struct {
	UserID string `json:"userId" jsonschema_description:"Okta user id, login or login shortname"`
}

type userLifecycleArgs struct {
	UserID    string `json:"userId" jsonschema_description:"Okta user id"`
	SendEmail bool   `json:"sendEmail,omitempty" jsonschema:"default=false" jsonschema_description:"Send the lifecycle email to the user"`
}

type createUserArgs struct {
	Profile     map[string]any `json:"profile" jsonschema_description:"User profile; login, email, firstName and lastName are required"`
	Credentials map[string]any `json:"credentials,omitempty" jsonschema_description:"Optional credentials object, e.g. {\"password\":{\"value\":\"...\"}}"`
	GroupIDs    []string       `json:"groupIds,omitempty" jsonschema_description:"Groups to add the new user to"`
	Activate    *bool          `json:"activate,omitempty" jsonschema_description:"Activate the user on creation (default true)"`
}

type updateUserArgs struct {
	UserID  string         `json:"userId" jsonschema_description:"Okta user id"`
	Profile map[string]any `json:"profile" jsonschema_description:"Profile attributes to update; omitted attributes are kept"`
}

func listUsers(api API) (mcp.Tool, error) {
	return newOperation("list_users", "List users in the Okta organization, optionally filtered.",
		func(ctx context.Context, a listUsersArgs) (any, error) {
			q := pageQuery(a.Limit, a.After)
			setIf(q, "q", a.Query)
			setIf(q, "filter", a.Filter)
			setIf(q, "search", a.Search)

			var users []map[string]any
			page, err := api.Do(ctx, http.MethodGet, "/api/v1/users", q, nil, &users)
			if err != nil {
				return nil, err
			}
			return listResult("users", users, page), nil
		})
}

func getUser(api API) (mcp.Tool, error) {
	return newOperation("get_user", "Get a single Okta user by id or login.",
		func(ctx context.Context, a userArgs) (any, error) {
			if err := nonEmpty("userId", a.UserID); err != nil {
				return nil, err
			}
			var user map[string]any
			if _, err := api.Do(ctx, http.MethodGet, pathf("/api/v1/users/%s", a.UserID), nil, nil, &user); err != nil {
				return nil, err
			}
			return user, nil
		})
}

func createUser(api API) (mcp.Tool, error) {
	return newOperation("create_user", "Create a new Okta user.",
		func(ctx context.Context, a createUserArgs) (any, error) {
			if missing := missingProfileFields(a.Profile); len(missing) > 0 {
				return nil, fmt.Errorf("profile is missing required fields: %s", strings.Join(missing, ", "))
			}
			activate := true
			if a.Activate != nil {
				activate = *a.Activate
			}
			body := map[string]any{"profile": a.Profile}
			if len(a.Credentials) > 0 {
				body["credentials"] = a.Credentials
			}
			if len(a.GroupIDs) > 0 {
				body["groupIds"] = a.GroupIDs
			}

			var user map[string]any
			q := url.Values{"activate": {strconv.FormatBool(activate)}}
			if _, err := api.Do(ctx, http.MethodPost, "/api/v1/users", q, body, &user); err != nil {
				return nil, err
			}
			return user, nil
		})
}

func missingProfileFields(profile map[string]any) []string {
	var missing []string
	for _, f := range requiredProfileFields {
		v, ok := profile[f]
		if !ok || v == nil {
			missing = append(missing, f)
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

func updateUser(api API) (mcp.Tool, error) {
	return newOperation("update_user", "Update profile attributes of an Okta user.",
		func(ctx context.Context, a updateUserArgs) (any, error) {
			if err := nonEmpty("userId", a.UserID); err != nil {
				return nil, err
			}
			if len(a.Profile) == 0 {
				return nil, fmt.Errorf("profile must contain at least one attribute")
			}
			var user map[string]any
			body := map[string]any{"profile": a.Profile}
			if _, err := api.Do(ctx, http.MethodPost, pathf("/api/v1/users/%s", a.UserID), nil, body, &user); err != nil {
				return nil, err
			}
			return user, nil
		})
}

// userLifecycle builds the operations that post to a lifecycle endpoint.
func userLifecycle(api API, name, description, action string) (mcp.Tool, error) {
	return newOperation(name, description,
		func(ctx context.Context, a userLifecycleArgs) (any, error) {
			if err := nonEmpty("userId", a.UserID); err != nil {
				return nil, err
			}
			q := url.Values{}
			if a.SendEmail {
				q.Set("sendEmail", "true")
			}
			var out map[string]any
			path := pathf("/api/v1/users/%s/lifecycle/", a.UserID) + action
			if _, err := api.Do(ctx, http.MethodPost, path, q, nil, &out); err != nil {
				return nil, err
			}
			result := map[string]any{"userId": a.UserID, "action": action, "success": true}
			if len(out) > 0 {
				result["details"] = out
			}
			return result, nil
		})
}

func deleteUser(api API) (mcp.Tool, error) {
	return newOperation("delete_user", "Permanently delete a deactivated Okta user.",
		func(ctx context.Context, a userLifecycleArgs) (any, error) {
			if err := nonEmpty("userId", a.UserID); err != nil {
				return nil, err
			}
			q := url.Values{}
			if a.SendEmail {
				q.Set("sendEmail", "true")
			}
			if _, err := api.Do(ctx, http.MethodDelete, pathf("/api/v1/users/%s", a.UserID), q, nil, nil); err != nil {
				return nil, err
			}
			return map[string]any{"userId": a.UserID, "deleted": true}, nil
		})
}

func listUserGroups(api API) (mcp.Tool, error) {
	return newOperation("list_user_groups", "List the groups an Okta user belongs to.",
		func(ctx context.Context, a userArgs) (any, error) {
			if err := nonEmpty("userId", a.UserID); err != nil {
				return nil, err
			}
			var groups []map[string]any
			page, err := api.Do(ctx, http.MethodGet, pathf("/api/v1/users/%s/groups", a.UserID), nil, nil, &groups)
			if err != nil {
				return nil, err
			}
			return listResult("groups", groups, page), nil
		})
}

func listUserFactors(api API) (mcp.Tool, error) {
	return newOperation("list_user_factors", "List the MFA factors enrolled for an Okta user.",
		func(ctx context.Context, a userArgs) (any, error) {
			if err := nonEmpty("userId", a.UserID); err != nil {
				return nil, err
			}
			var factors []map[string]any
			page, err := api.Do(ctx, http.MethodGet, pathf("/api/v1/users/%s/factors", a.UserID), nil, nil, &factors)
			if err != nil {
				return nil, err
			}
			return listResult("factors", factors, page), nil
		})
}
