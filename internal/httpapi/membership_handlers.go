package httpapi

import (
	"net/http"
	"strings"

	"utilitygrid.org/internal/audit"
	"utilitygrid.org/internal/authz"
	"utilitygrid.org/internal/membership"
)

type siteInviteRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (a *API) handleBusiness(w http.ResponseWriter, r *http.Request, p authz.Principal, businessID string) {
	switch r.Method {
	case http.MethodGet:
		// Any membership grants read access.
		if err := a.engine.AuthorizeBusiness(r.Context(), p, businessID); err != nil {
			handleDomainError(w, r, err)
			return
		}
		business, err := a.memberships.FindBusiness(r.Context(), businessID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"business": business})
	case http.MethodDelete:
		if err := a.engine.AuthorizeBusiness(r.Context(), p, businessID, membership.RoleOwner); err != nil {
			handleDomainError(w, r, err)
			return
		}
		if err := a.memberships.DeleteBusiness(r.Context(), businessID); err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEntity(r.Context(), "business", businessID, "deleted")
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

func (a *API) handleCreateSite(w http.ResponseWriter, r *http.Request, p authz.Principal, businessID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if err := a.engine.AuthorizeBusiness(r.Context(), p, businessID, membership.RoleOwner, membership.RoleManager); err != nil {
		handleDomainError(w, r, err)
		return
	}
	var req createSiteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	site, err := a.memberships.CreateSite(r.Context(), businessID, req.Name, req.Address, toMembers(req.Members))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "membership.site.create", map[string]any{
		"site_id":     site.ID,
		"business_id": businessID,
	})
	writeJSON(w, http.StatusCreated, map[string]any{"site": site})
}

func (a *API) handleUpdateMemberRole(w http.ResponseWriter, r *http.Request, p authz.Principal, businessID, userID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	// Role changes are owner-only.
	if err := a.engine.AuthorizeBusiness(r.Context(), p, businessID, membership.RoleOwner); err != nil {
		handleDomainError(w, r, err)
		return
	}
	var req updateRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.memberships.UpdateMemberRole(r.Context(), businessID, userID, membership.Role(req.Role)); err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "membership.role.update", map[string]any{
		"business_id": businessID,
		"user_id":     userID,
		"role":        req.Role,
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "role_updated"})
}

func (a *API) handleInviteToBusiness(w http.ResponseWriter, r *http.Request, p authz.Principal, businessID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if err := a.engine.AuthorizeBusiness(r.Context(), p, businessID, membership.RoleOwner, membership.RoleManager); err != nil {
		handleDomainError(w, r, err)
		return
	}
	var req businessInviteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	inv, err := a.memberships.InviteToBusiness(r.Context(), businessID, req.UserID, p.UserID, membership.Role(req.Role))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "membership.invite.create", map[string]any{
		"invite_id":   inv.ID,
		"business_id": businessID,
	})
	writeJSON(w, http.StatusCreated, map[string]any{"invite": inv})
}

// handleInviteScoped routes /v1/invites/accept and /v1/invites/{id}/revoke.
func (a *API) handleInviteScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/invites/"), "/")
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	parts := strings.Split(path, "/")
	switch {
	case path == "accept":
		a.handleAcceptBusinessInvite(w, r, p)
	case len(parts) == 2 && parts[1] == "revoke":
		a.handleRevokeBusinessInvite(w, r, p, parts[0])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleAcceptBusinessInvite(w http.ResponseWriter, r *http.Request, p authz.Principal) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req acceptInviteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	business, err := a.memberships.AcceptBusinessInvite(r.Context(), req.Token, p.UserID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "membership.invite.accept", map[string]any{
		"business_id": business.ID,
	})
	writeJSON(w, http.StatusOK, map[string]any{"business": business})
}

func (a *API) handleRevokeBusinessInvite(w http.ResponseWriter, r *http.Request, p authz.Principal, inviteID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	inv, err := a.memberships.FindInvite(r.Context(), inviteID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if err := a.engine.AuthorizeBusiness(r.Context(), p, inv.BusinessID, membership.RoleOwner, membership.RoleManager); err != nil {
		handleDomainError(w, r, err)
		return
	}
	if err := a.memberships.RevokeBusinessInvite(r.Context(), inviteID); err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "membership.invite.revoke", map[string]any{"invite_id": inviteID})
	writeJSON(w, http.StatusOK, map[string]any{"status": "revoked"})
}

// handleSites lists the principal's sites.
func (a *API) handleSites(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	sites, err := a.memberships.SitesForUser(r.Context(), p.UserID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sites": sites})
}

// handleSiteScoped routes /v1/sites/{id}[/invites|/utilities].
func (a *API) handleSiteScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/sites/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	siteID := parts[0]

	p, ok := a.principal(w, r)
	if !ok {
		return
	}

	switch {
	case len(parts) == 1:
		a.handleSite(w, r, p, siteID)
	case len(parts) == 2 && parts[1] == "invites":
		a.handleInviteToSite(w, r, p, siteID)
	case len(parts) == 2 && parts[1] == "utilities":
		a.handleSiteUtilities(w, r, p, siteID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleSite(w http.ResponseWriter, r *http.Request, p authz.Principal, siteID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if err := a.engine.AuthorizeSite(r.Context(), p, siteID); err != nil {
		handleDomainError(w, r, err)
		return
	}
	site, err := a.memberships.FindSite(r.Context(), siteID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"site": site})
}

func (a *API) handleInviteToSite(w http.ResponseWriter, r *http.Request, p authz.Principal, siteID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if err := a.engine.AuthorizeSite(r.Context(), p, siteID, membership.RoleOwner, membership.RoleManager); err != nil {
		handleDomainError(w, r, err)
		return
	}
	var req siteInviteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	outcome, err := a.memberships.InviteToSite(r.Context(), siteID, req.Email, membership.Role(req.Role), p.UserID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "membership.site.invite", map[string]any{"site_id": siteID})
	if outcome.Member != nil {
		writeJSON(w, http.StatusOK, map[string]any{"member": outcome.Member})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"invitation": outcome.Invitation})
}

func (a *API) handleAcceptSiteInvite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req acceptInviteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	site, err := a.memberships.AcceptSiteInvite(r.Context(), req.Token, p.UserID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "membership.site.invite.accept", map[string]any{"site_id": site.ID})
	writeJSON(w, http.StatusOK, map[string]any{"site": site})
}
