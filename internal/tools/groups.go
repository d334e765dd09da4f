package tools

import (
	"context"
	"net/http"

	"github.com/dmarma/okta-mcp-server/internal/mcp"
)

type listGroupsArgs struct {
	Query  string `json:"q,omitempty" jsonschema_description:"Matches the start of the group name"`
	Filter string `json:"filter,omitempty" jsonschema_description:"Okta filter expression, e.g. type eq \"OKTA_GROUP\""`
	Search string `json:"search,omitempty" jsonschema_description:"Okta search expression over group attributes"`
	Limit  int    `json:"limit,omitempty" jsonschema:"default=20,minimum=1,maximum=200" jsonschema_description:"Maximum number of groups to return"`
	After  string `json:"after,omitempty" jsonschema_description:"Pagination cursor returned as nextCursor by a previous call"`
}

type groupArgs struct {
	GroupID string `json:"groupId" jsonschema_description:"Okta group id"`
}

type createGroupArgs struct {
	Name        string `json:"name" jsonschema_description:"Group name"`
	Description string `json:"description,omitempty" jsonschema_description:"Group description"`
}

type updateGroupArgs struct {
	GroupID     string `json:"groupId" jsonschema_description:"Okta group id"`
	Name        string `json:"name" jsonschema_description:"New group name"`
	Description string `json:"description,omitempty" jsonschema_description:"New group description"`
}

type groupUsersArgs struct {
	GroupID string `json:"groupId" jsonschema_description:"Okta group id"`
	Limit   int    `json:"limit,omitempty" jsonschema:"default=20,minimum=1,maximum=200" jsonschema_description:"Maximum number of members to return"`
	After   string `json:"after,omitempty" jsonschema_description:"Pagination cursor returned as nextCursor by a previous call"`
}

type groupMemberArgs struct {
	GroupID string `json:"groupId" jsonschema_description:"Okta group id"`
	UserID  string `json:"userId" jsonschema_description:"Okta user id"`
}

func listGroups(api API) (mcp.Tool, error) {
	return newOperation("list_groups", "List groups in the Okta organization, optionally filtered.",
		func(ctx context.Context, a listGroupsArgs) (any, error) {
			q := pageQuery(a.Limit, a.After)
			setIf(q, "q", a.Query)
			setIf(q, "filter", a.Filter)
			setIf(q, "search", a.Search)

			var groups []map[string]any
			page, err := api.Do(ctx, http.MethodGet, "/api/v1/groups", q, nil, &groups)
			if err != nil {
				return nil, err
			}
			return listResult("groups", groups, page), nil
		})
}

func getGroup(api API) (mcp.Tool, error) {
	return newOperation("get_group", "Get a single Okta group.",
		func(ctx context.Context, a groupArgs) (any, error) {
			if err := nonEmpty("groupId", a.GroupID); err != nil {
				return nil, err
			}
			var group map[string]any
			if _, err := api.Do(ctx, http.MethodGet, pathf("/api/v1/groups/%s", a.GroupID), nil, nil, &group); err != nil {
				return nil, err
			}
			return group, nil
		})
}

func groupProfile(name, description string) map[string]any {
	profile := map[string]any{"name": name}
	if description != "" {
		profile["description"] = description
	}
	return map[string]any{"profile": profile}
}

func createGroup(api API) (mcp.Tool, error) {
	return newOperation("create_group", "Create an Okta group.",
		func(ctx context.Context, a createGroupArgs) (any, error) {
			if err := nonEmpty("name", a.Name); err != nil {
				return nil, err
			}
			var group map[string]any
			if _, err := api.Do(ctx, http.MethodPost, "/api/v1/groups", nil, groupProfile(a.Name, a.Description), &group); err != nil {
				return nil, err
			}
			return group, nil
		})
}

func updateGroup(api API) (mcp.Tool, error) {
	return newOperation("update_group", "Replace the profile of an Okta group.",
		func(ctx context.Context, a updateGroupArgs) (any, error) {
			if err := nonEmpty("groupId", a.GroupID); err != nil {
				return nil, err
			}
			if err := nonEmpty("name", a.Name); err != nil {
				return nil, err
			}
			var group map[string]any
			if _, err := api.Do(ctx, http.MethodPut, pathf("/api/v1/groups/%s", a.GroupID), nil, groupProfile(a.Name, a.Description), &group); err != nil {
				return nil, err
			}
			return group, nil
		})
}

func deleteGroup(api API) (mcp.Tool, error) {
	return newOperation("delete_group", "Delete an Okta group.",
		func(ctx context.Context, a groupArgs) (any, error) {
			if err := nonEmpty("groupId", a.GroupID); err != nil {
				return nil, err
			}
			if _, err := api.Do(ctx, http.MethodDelete, pathf("/api/v1/groups/%s", a.GroupID), nil, nil, nil); err != nil {
				return nil, err
			}
			return map[string]any{"groupId": a.GroupID, "deleted": true}, nil
		})
}

func listGroupUsers(api API) (mcp.Tool, error) {
	return newOperation("list_group_users", "List the members of an Okta group.",
		func(ctx context.Context, a groupUsersArgs) (any, error) {
			if err := nonEmpty("groupId", a.GroupID); err != nil {
				return nil, err
			}
			var users []map[string]any
			page, err := api.Do(ctx, http.MethodGet, pathf("/api/v1/groups/%s/users", a.GroupID), pageQuery(a.Limit, a.After), nil, &users)
			if err != nil {
				return nil, err
			}
			return listResult("users", users, page), nil
		})
}

func addUserToGroup(api API) (mcp.Tool, error) {
	return newOperation("add_user_to_group", "Add an Okta user to a group.",
		func(ctx context.Context, a groupMemberArgs) (any, error) {
			if err := nonEmpty("groupId", a.GroupID); err != nil {
				return nil, err
			}
			if err := nonEmpty("userId", a.UserID); err != nil {
				return nil, err
			}
			if _, err := api.Do(ctx, http.MethodPut, pathf("/api/v1/groups/%s/users/%s", a.GroupID, a.UserID), nil, nil, nil); err != nil {
				return nil, err
			}
			return map[string]any{"groupId": a.GroupID, "userId": a.UserID, "added": true}, nil
		})
}

func removeUserFromGroup(api API) (mcp.Tool, error) {
	return newOperation("remove_user_from_group", "Remove an Okta user from a group.",
		func(ctx context.Context, a groupMemberArgs) (any, error) {
			if err := nonEmpty("groupId", a.GroupID); err != nil {
				return nil, err
			}
			if err := nonEmpty("userId", a.UserID); err != nil {
				return nil, err
			}
			if _, err := api.Do(ctx, http.MethodDelete, pathf("/api/v1/groups/%s/users/%s", a.GroupID, a.UserID), nil, nil, nil); err != nil {
				return nil, err
			}
			return map[string]any{"groupId": a.GroupID, "userId": a.UserID, "removed": true}, nil
		})
}
