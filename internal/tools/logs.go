package tools

import (
	"context"
	"net/http"
	"net/url"

	"github.com/dmarma/okta-mcp-server/internal/mcp"
)

type getLogsArgs struct {
	Since     string `json:"since,omitempty" jsonschema_description:"Lower time bound (ISO 8601)"`
	Until     string `json:"until,omitempty" jsonschema_description:"Upper time bound (ISO 8601)"`
	Filter    string `json:"filter,omitempty" jsonschema_description:"System Log filter expression, e.g. eventType eq \"user.session.start\""`
	Query     string `json:"q,omitempty" jsonschema_description:"Keyword search across event fields"`
	SortOrder string `json:"sortOrder,omitempty" jsonschema:"enum=ASCENDING,enum=DESCENDING,default=ASCENDING" jsonschema_description:"Order of returned events"`
	Limit     int    `json:"limit,omitempty" jsonschema:"default=100,minimum=1,maximum=1000" jsonschema_description:"Maximum number of events to return"`
	After     string `json:"after,omitempty" jsonschema_description:"Pagination cursor returned as nextCursor by a previous call"`
}

type listPoliciesArgs struct {
	Type   string `json:"type" jsonschema:"enum=OKTA_SIGN_ON,enum=PASSWORD,enum=MFA_ENROLL,enum=IDP_DISCOVERY,enum=ACCESS_POLICY,enum=PROFILE_ENROLLMENT" jsonschema_description:"Policy type"`
	Status string `json:"status,omitempty" jsonschema:"enum=ACTIVE,enum=INACTIVE" jsonschema_description:"Only return policies with this status"`
}

func getLogs(api API) (mcp.Tool, error) {
	return newOperation("get_logs", "Read events from the Okta System Log.",
		func(ctx context.Context, a getLogsArgs) (any, error) {
			q := pageQuery(a.Limit, a.After)
			setIf(q, "since", a.Since)
			setIf(q, "until", a.Until)
			setIf(q, "filter", a.Filter)
			setIf(q, "q", a.Query)
			setIf(q, "sortOrder", a.SortOrder)

			var events []map[string]any
			page, err := api.Do(ctx, http.MethodGet, "/api/v1/logs", q, nil, &events)
			if err != nil {
				return nil, err
			}
			return listResult("events", events, page), nil
		})
}

func listPolicies(api API) (mcp.Tool, error) {
	return newOperation("list_policies", "List Okta policies of a given type.",
		func(ctx context.Context, a listPoliciesArgs) (any, error) {
			if err := nonEmpty("type", a.Type); err != nil {
				return nil, err
			}
			q := url.Values{"type": {a.Type}}
			setIf(q, "status", a.Status)

			var policies []map[string]any
			page, err := api.Do(ctx, http.MethodGet, "/api/v1/policies", q, nil, &policies)
			if err != nil {
				return nil, err
			}
			return listResult("policies", policies, page), nil
		})
}
