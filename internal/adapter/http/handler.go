package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/groupdir/internal/app"
	"github.com/neomorfeo/groupdir/internal/domain"
)

const timeFormat = "2006-01-02T15:04:05Z"

// GroupResponse is the API representation of a group.
type GroupResponse struct {
	ID          string   `json:"id" doc:"Unique identifier"`
	ParentID    string   `json:"parent_id" doc:"Parent group ID, empty for root-level groups"`
	Label       string   `json:"label" doc:"Name, unique among siblings of the same type"`
	Type        string   `json:"type,omitempty" doc:"Free-form group type"`
	Description string   `json:"description,omitempty" doc:"Free-form description"`
	ChildIDs    []string `json:"child_ids,omitempty" doc:"Direct children, only filled on single-group lookups"`
	CreatedAt   string   `json:"created_at" doc:"Creation timestamp (ISO 8601)"`
	UpdatedAt   string   `json:"updated_at" doc:"Last update timestamp (ISO 8601)"`
}

func toGroupResponse(g domain.Group) GroupResponse {
	return GroupResponse{
		ID:          g.ID,
		ParentID:    g.ParentID,
		Label:       g.Label,
		Type:        g.Type,
		Description: g.Description,
		ChildIDs:    g.ChildIDs,
		CreatedAt:   g.CreatedAt.Format(timeFormat),
		UpdatedAt:   g.UpdatedAt.Format(timeFormat),
	}
}

func toGroupResponses(groups []domain.Group) []GroupResponse {
	resp := make([]GroupResponse, len(groups))
	for i, g := range groups {
		resp[i] = toGroupResponse(g)
	}
	return resp
}

// GroupPage is one window of a lazily loaded group list.
type GroupPage struct {
	Total int             `json:"total" doc:"Number of groups matching the query"`
	Items []GroupResponse `json:"items"`
}

// --- Mutations ---

// MutationOutput carries the committed group. Warning is set when a
// post-phase listener failed after the change was stored.
type MutationOutput struct {
	Warning string `header:"Warning"`
	Body    GroupResponse
}

type CreateGroupInput struct {
	Body struct {
		ParentID    string `json:"parent_id,omitempty" doc:"Parent group ID; omit to create at the root"`
		Label       string `json:"label" minLength:"1" maxLength:"255" doc:"Group name"`
		Type        string `json:"type,omitempty" maxLength:"100" doc:"Group type"`
		Description string `json:"description,omitempty" doc:"Description"`
		Broadcast   bool   `json:"broadcast,omitempty" default:"true" doc:"Notify listeners"`
	}
}

type GetGroupInput struct {
	ID string `path:"id" doc:"Group ID"`
}

type GetGroupOutput struct {
	Body GroupResponse
}

type SaveGroupInput struct {
	ID   string `path:"id" doc:"Group ID"`
	Body struct {
		Label       string `json:"label" minLength:"1" maxLength:"255" doc:"Group name"`
		Type        string `json:"type,omitempty" maxLength:"100" doc:"Group type"`
		Description string `json:"description,omitempty" doc:"Description"`
		Broadcast   bool   `json:"broadcast,omitempty" default:"true" doc:"Notify listeners"`
	}
}

type MoveGroupInput struct {
	ID   string `path:"id" doc:"Group ID"`
	Body struct {
		OriginParentID string `json:"origin_parent_id" doc:"Current parent; empty for root"`
		TargetParentID string `json:"target_parent_id" doc:"New parent; empty for root"`
	}
}

type RemoveGroupInput struct {
	ID        string `path:"id" doc:"Group ID"`
	Broadcast bool   `query:"broadcast" required:"false" default:"true" doc:"Notify listeners"`
}

// --- Listings ---

type ListChildrenInput struct {
	ParentID string `query:"parent_id" required:"false" doc:"Parent group ID; empty lists root-level groups"`
	Keyword  string `query:"keyword" required:"false" doc:"Case-insensitive label substring"`
	Offset   int    `query:"offset" required:"false" minimum:"0" default:"0" doc:"Index of the first group"`
	Limit    int    `query:"limit" required:"false" minimum:"0" maximum:"500" default:"50" doc:"Max results"`
}

type SearchGroupsInput struct {
	Keyword string `query:"keyword" required:"false" doc:"Case-insensitive label substring"`
	Offset  int    `query:"offset" required:"false" minimum:"0" default:"0" doc:"Index of the first group"`
	Limit   int    `query:"limit" required:"false" minimum:"0" maximum:"500" default:"50" doc:"Max results"`
}

type GroupPageOutput struct {
	Body GroupPage
}

type GroupListOutput struct {
	Body []GroupResponse
}

// --- Memberships ---

type UserGroupsInput struct {
	User           string `path:"user" doc:"User name"`
	MembershipType string `query:"membership_type" required:"false" doc:"Membership type; empty or * matches any"`
	Keyword        string `query:"keyword" required:"false" doc:"Case-insensitive label substring"`
	Type           string `query:"type" required:"false" doc:"Group type"`
}

type MembershipInput struct {
	ID             string `path:"id" doc:"Group ID"`
	User           string `path:"user" doc:"User name"`
	MembershipType string `path:"type" doc:"Membership type"`
}

type CapabilitiesOutput struct {
	Body struct {
		Move          bool `json:"move" doc:"Groups can be relinked"`
		KeywordSearch bool `json:"keyword_search" doc:"Groups can be searched by label"`
	}
}

// Register adds all group directory routes to the Huma API.
func Register(api huma.API, svc *app.DirectoryService) {
	huma.Register(api, huma.Operation{
		OperationID: "create-group",
		Method:      http.MethodPost,
		Path:        "/api/v1/groups",
		Summary:     "Create a group",
		Tags:        []string{"Groups"},
	}, func(ctx context.Context, input *CreateGroupInput) (*MutationOutput, error) {
		group := svc.NewGroupInstance(input.Body.Label, input.Body.Type, input.Body.Description)
		return mutationOutput(svc.CreateGroup(ctx, group, input.Body.ParentID, input.Body.Broadcast))
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-group",
		Method:      http.MethodGet,
		Path:        "/api/v1/groups/{id}",
		Summary:     "Get a group by ID",
		Tags:        []string{"Groups"},
	}, func(ctx context.Context, input *GetGroupInput) (*GetGroupOutput, error) {
		group, found, err := svc.FindGroupByID(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		if !found {
			return nil, toHumaError(domain.ErrGroupNotFound)
		}
		return &GetGroupOutput{Body: toGroupResponse(group)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "save-group",
		Method:      http.MethodPut,
		Path:        "/api/v1/groups/{id}",
		Summary:     "Update a group's label, type and description",
		Tags:        []string{"Groups"},
	}, func(ctx context.Context, input *SaveGroupInput) (*MutationOutput, error) {
		group := svc.NewGroupInstance(input.Body.Label, input.Body.Type, input.Body.Description)
		group.ID = input.ID
		return mutationOutput(svc.SaveGroup(ctx, group, input.Body.Broadcast))
	})

	huma.Register(api, huma.Operation{
		OperationID: "move-group",
		Method:      http.MethodPost,
		Path:        "/api/v1/groups/{id}/move",
		Summary:     "Move a group under another parent",
		Tags:        []string{"Groups"},
	}, func(ctx context.Context, input *MoveGroupInput) (*MutationOutput, error) {
		return mutationOutput(svc.MoveGroup(ctx, input.Body.OriginParentID, input.Body.TargetParentID, input.ID))
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-group",
		Method:      http.MethodDelete,
		Path:        "/api/v1/groups/{id}",
		Summary:     "Remove a childless group and its memberships",
		Tags:        []string{"Groups"},
	}, func(ctx context.Context, input *RemoveGroupInput) (*MutationOutput, error) {
		return mutationOutput(svc.RemoveGroup(ctx, input.ID, input.Broadcast))
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-children",
		Method:      http.MethodGet,
		Path:        "/api/v1/groups",
		Summary:     "List the children of a group",
		Tags:        []string{"Groups"},
	}, func(ctx context.Context, input *ListChildrenInput) (*GroupPageOutput, error) {
		if input.Keyword == "" {
			groups, err := svc.FindGroups(ctx, input.ParentID)
			if err != nil {
				return nil, toHumaError(err)
			}
			return &GroupPageOutput{Body: slicePage(groups, input.Offset, input.Limit)}, nil
		}

		list, err := svc.FindGroupChildren(ctx, input.ParentID, input.Keyword)
		if err != nil {
			return nil, toHumaError(err)
		}
		page, err := loadPage(ctx, list, input.Offset, input.Limit)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &GroupPageOutput{Body: page}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "search-groups",
		Method:      http.MethodGet,
		Path:        "/api/v1/search/groups",
		Summary:     "Search groups by label across the whole directory",
		Tags:        []string{"Groups"},
	}, func(ctx context.Context, input *SearchGroupsInput) (*GroupPageOutput, error) {
		list, err := svc.FindGroupsByKeyword(ctx, input.Keyword)
		if err != nil {
			return nil, toHumaError(err)
		}
		page, err := loadPage(ctx, list, input.Offset, input.Limit)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &GroupPageOutput{Body: page}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-all-groups",
		Method:      http.MethodGet,
		Path:        "/api/v1/directory",
		Summary:     "Dump every group in the directory",
		Tags:        []string{"Groups"},
	}, func(ctx context.Context, _ *struct{}) (*GroupListOutput, error) {
		groups, err := svc.GetAllGroups(ctx)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &GroupListOutput{Body: toGroupResponses(groups)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-capabilities",
		Method:      http.MethodGet,
		Path:        "/api/v1/capabilities",
		Summary:     "Report optional operations supported by the store",
		Tags:        []string{"Groups"},
	}, func(_ context.Context, _ *struct{}) (*CapabilitiesOutput, error) {
		caps := svc.Capabilities()
		out := &CapabilitiesOutput{}
		out.Body.Move = caps.Move
		out.Body.KeywordSearch = caps.KeywordSearch
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-membership",
		Method:        http.MethodPut,
		Path:          "/api/v1/groups/{id}/members/{user}/{type}",
		Summary:       "Grant a user a membership in a group",
		Tags:          []string{"Memberships"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *MembershipInput) (*struct{}, error) {
		if err := svc.AddMembership(ctx, input.User, input.ID, input.MembershipType); err != nil {
			return nil, toHumaError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-membership",
		Method:        http.MethodDelete,
		Path:          "/api/v1/groups/{id}/members/{user}/{type}",
		Summary:       "Revoke a user's membership in a group",
		Tags:          []string{"Memberships"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *MembershipInput) (*struct{}, error) {
		if err := svc.RemoveMembership(ctx, input.User, input.ID, input.MembershipType); err != nil {
			return nil, toHumaError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-user-groups",
		Method:      http.MethodGet,
		Path:        "/api/v1/users/{user}/groups",
		Summary:     "List the groups a user belongs to",
		Tags:        []string{"Memberships"},
	}, func(ctx context.Context, input *UserGroupsInput) (*GroupListOutput, error) {
		var groups []domain.Group
		var err error
		if input.Keyword != "" || input.Type != "" {
			groups, err = svc.FindGroupsOfUserByKeyword(ctx, input.User, input.Keyword, input.Type)
		} else {
			groups, err = svc.ResolveGroupByMembership(ctx, input.User, input.MembershipType)
		}
		if err != nil {
			return nil, toHumaError(err)
		}
		return &GroupListOutput{Body: toGroupResponses(groups)}, nil
	})
}

// mutationOutput renders the result of a mutation. A post-phase listener
// failure still returns the committed group, flagged with a Warning header.
func mutationOutput(group domain.Group, err error) (*MutationOutput, error) {
	var listenerErr *domain.ListenerError
	if errors.As(err, &listenerErr) && listenerErr.Phase == domain.PhasePost && group.ID != "" {
		return &MutationOutput{
			Warning: `199 groupdir "` + listenerErr.Error() + `"`,
			Body:    toGroupResponse(group),
		}, nil
	}
	if err != nil {
		return nil, toHumaError(err)
	}
	return &MutationOutput{Body: toGroupResponse(group)}, nil
}

func loadPage(ctx context.Context, list domain.GroupList, offset, limit int) (GroupPage, error) {
	total, err := list.Size(ctx)
	if err != nil {
		return GroupPage{}, err
	}
	groups, err := list.Load(ctx, offset, limit)
	if err != nil {
		return GroupPage{}, err
	}
	return GroupPage{Total: total, Items: toGroupResponses(groups)}, nil
}

func slicePage(groups []domain.Group, offset, limit int) GroupPage {
	start := min(offset, len(groups))
	end := min(start+limit, len(groups))
	return GroupPage{Total: len(groups), Items: toGroupResponses(groups[start:end])}
}

// toHumaError translates domain errors to Huma HTTP errors.
func toHumaError(err error) error {
	if errors.Is(err, domain.ErrGroupNotFound) {
		return huma.Error404NotFound("group not found")
	}
	if errors.Is(err, domain.ErrMembershipNotFound) {
		return huma.Error404NotFound("membership not found")
	}

	var dupErr *domain.DuplicateNameError
	if errors.As(err, &dupErr) {
		return huma.Error409Conflict(dupErr.Error())
	}

	var childErr *domain.HasChildrenError
	if errors.As(err, &childErr) {
		return huma.Error409Conflict(childErr.Error())
	}

	var mismatchErr *domain.ParentMismatchError
	if errors.As(err, &mismatchErr) {
		return huma.Error409Conflict(mismatchErr.Error())
	}

	var cycleErr *domain.CycleError
	if errors.As(err, &cycleErr) {
		return huma.Error422UnprocessableEntity(cycleErr.Error())
	}

	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		return huma.Error422UnprocessableEntity(validationErr.Error())
	}

	var listenerErr *domain.ListenerError
	if errors.As(err, &listenerErr) {
		return huma.Error409Conflict(listenerErr.Error())
	}

	var unsupportedErr *domain.UnsupportedOperationError
	if errors.As(err, &unsupportedErr) {
		return huma.NewError(http.StatusNotImplemented, unsupportedErr.Error())
	}

	return huma.Error500InternalServerError("internal server error")
}
