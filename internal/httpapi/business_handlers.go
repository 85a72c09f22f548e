package httpapi

import (
	"net/http"
	"strings"

	"utilitygrid.org/internal/audit"
	"utilitygrid.org/internal/membership"
)

type memberPayload struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type createBusinessRequest struct {
	Name    string          `json:"name"`
	Address string          `json:"address"`
	Members []memberPayload `json:"members"`
}

type createSiteRequest struct {
	Name    string          `json:"name"`
	Address string          `json:"address"`
	Members []memberPayload `json:"members"`
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

type businessInviteRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type acceptInviteRequest struct {
	Token string `json:"token"`
}

func toMembers(payload []memberPayload) []membership.Member {
	members := make([]membership.Member, len(payload))
	for i, m := range payload {
		members[i] = membership.Member{UserID: m.UserID, Role: membership.Role(m.Role)}
	}
	return members
}

// handleBusinesses: POST creates a business, GET lists the principal's.
func (a *API) handleBusinesses(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req createBusinessRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		business, err := a.memberships.CreateBusiness(r.Context(), req.Name, req.Address, toMembers(req.Members))
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "membership.business.create", map[string]any{
			"business_id": business.ID,
			"members":     len(business.Members),
		})
		writeJSON(w, http.StatusCreated, map[string]any{"business": business})
	case http.MethodGet:
		businesses, err := a.memberships.BusinessesForUser(r.Context(), p.UserID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"businesses": businesses})
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

// handleBusinessScoped routes /v1/businesses/{id}[/sites|/members/{uid}/role|/invites|/utilities|/quotes].
func (a *API) handleBusinessScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/businesses/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	businessID := parts[0]

	p, ok := a.principal(w, r)
	if !ok {
		return
	}

	switch {
	case len(parts) == 1:
		a.handleBusiness(w, r, p, businessID)
	case len(parts) == 2 && parts[1] == "sites":
		a.handleCreateSite(w, r, p, businessID)
	case len(parts) == 4 && parts[1] == "members" && parts[3] == "role":
		a.handleUpdateMemberRole(w, r, p, businessID, parts[2])
	case len(parts) == 2 && parts[1] == "invites":
		a.handleInviteToBusiness(w, r, p, businessID)
	case len(parts) == 2 && parts[1] == "utilities":
		a.handleBusinessUtilities(w, r, p, businessID)
	case len(parts) == 2 && parts[1] == "quotes":
		a.handleBusinessQuotes(w, r, p, businessID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}
