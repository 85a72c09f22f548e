package httpapi

import (
	"net/http"
	"strings"
	"time"

	"utilitygrid.org/internal/audit"
	"utilitygrid.org/internal/authz"
	"utilitygrid.org/internal/membership"
	"utilitygrid.org/internal/utility"
)

type attachUtilityRequest struct {
	BusinessID    string     `json:"business_id"`
	SiteID        string     `json:"site_id"`
	Type          string     `json:"type"`
	Supplier      string     `json:"supplier"`
	Identifier    string     `json:"identifier"`
	ContractStart *time.Time `json:"contract_start"`
	ContractEnd   *time.Time `json:"contract_end"`
	Status        string     `json:"status"`
}

type utilityStatusRequest struct {
	Status string `json:"status"`
}

// handleUtilities attaches a utility to a site and/or business. The caller
// must hold owner or manager on every scope the utility is attached to.
func (a *API) handleUtilities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req attachUtilityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.BusinessID) != "" {
		if err := a.engine.AuthorizeBusiness(r.Context(), p, req.BusinessID, membership.RoleOwner, membership.RoleManager); err != nil {
			handleDomainError(w, r, err)
			return
		}
	}
	if strings.TrimSpace(req.SiteID) != "" {
		if err := a.engine.AuthorizeSite(r.Context(), p, req.SiteID, membership.RoleOwner, membership.RoleManager); err != nil {
			handleDomainError(w, r, err)
			return
		}
	}
	u, err := a.utilities.Attach(r.Context(), utility.AttachInput{
		BusinessID:    req.BusinessID,
		SiteID:        req.SiteID,
		Type:          utility.Type(req.Type),
		Supplier:      req.Supplier,
		Identifier:    req.Identifier,
		ContractStart: req.ContractStart,
		ContractEnd:   req.ContractEnd,
		Status:        utility.Status(req.Status),
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "utility.attach", map[string]any{
		"utility_id":  u.ID,
		"business_id": u.BusinessID,
		"site_id":     u.SiteID,
	})
	writeJSON(w, http.StatusCreated, map[string]any{"utility": u})
}

// handleUtilityScoped routes /v1/utilities/{id}[/status].
func (a *API) handleUtilityScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/utilities/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	utilityID := parts[0]

	p, ok := a.principal(w, r)
	if !ok {
		return
	}

	switch {
	case len(parts) == 1:
		a.handleUtility(w, r, p, utilityID)
	case len(parts) == 2 && parts[1] == "status":
		a.handleUtilityStatus(w, r, p, utilityID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleUtility(w http.ResponseWriter, r *http.Request, p authz.Principal, utilityID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	u, err := a.utilities.Find(r.Context(), utilityID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if err := a.authorizeUtilityScope(r, p, u); err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"utility": u})
}

func (a *API) handleUtilityStatus(w http.ResponseWriter, r *http.Request, p authz.Principal, utilityID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	u, err := a.utilities.Find(r.Context(), utilityID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if err := a.authorizeUtilityScope(r, p, u, membership.RoleOwner, membership.RoleManager); err != nil {
		handleDomainError(w, r, err)
		return
	}
	var req utilityStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.utilities.UpdateStatus(r.Context(), utilityID, utility.Status(req.Status)); err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEntity(r.Context(), "utility", utilityID, "status "+req.Status)
	writeJSON(w, http.StatusOK, map[string]any{"status": "updated"})
}

// authorizeUtilityScope grants access through either owning scope: membership
// of the attached business or the attached site is enough.
func (a *API) authorizeUtilityScope(r *http.Request, p authz.Principal, u *utility.Utility, roles ...membership.Role) error {
	var err error
	if u.BusinessID != "" {
		if err = a.engine.AuthorizeBusiness(r.Context(), p, u.BusinessID, roles...); err == nil {
			return nil
		}
	}
	if u.SiteID != "" {
		if err = a.engine.AuthorizeSite(r.Context(), p, u.SiteID, roles...); err == nil {
			return nil
		}
	}
	if err == nil {
		err = authz.ErrUnauthorized
	}
	return err
}

func (a *API) handleBusinessUtilities(w http.ResponseWriter, r *http.Request, p authz.Principal, businessID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if err := a.engine.AuthorizeBusiness(r.Context(), p, businessID); err != nil {
		handleDomainError(w, r, err)
		return
	}
	list, err := a.utilities.ListForBusiness(r.Context(), businessID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"utilities": list})
}

func (a *API) handleSiteUtilities(w http.ResponseWriter, r *http.Request, p authz.Principal, siteID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if err := a.engine.AuthorizeSite(r.Context(), p, siteID); err != nil {
		handleDomainError(w, r, err)
		return
	}
	list, err := a.utilities.ListForSite(r.Context(), siteID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"utilities": list})
}
