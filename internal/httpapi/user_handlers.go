package httpapi

import (
	"net/http"
	"strings"

	"utilitygrid.org/internal/audit"
)

type updateProfileRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type changePasswordRequest struct {
	NewPassword string `json:"new_password"`
}

type pushTokenRequest struct {
	Token string `json:"token"`
}

// handleUserScoped routes /v1/users/{id}[/password|/push-tokens|/businesses|/sites].
// Every operation here is self-or-admin.
func (a *API) handleUserScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	userID := parts[0]

	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	if err := a.engine.SelfOrAdmin(p, userID); err != nil {
		handleDomainError(w, r, err)
		return
	}

	switch {
	case len(parts) == 1:
		a.handleUser(w, r, userID)
	case len(parts) == 2 && parts[1] == "password":
		a.handleChangePassword(w, r, userID)
	case len(parts) == 2 && parts[1] == "push-tokens":
		a.handleRegisterPushToken(w, r, userID)
	case len(parts) == 2 && parts[1] == "businesses":
		a.handleUserBusinesses(w, r, userID)
	case len(parts) == 2 && parts[1] == "sites":
		a.handleUserSites(w, r, userID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleUser(w http.ResponseWriter, r *http.Request, userID string) {
	switch r.Method {
	case http.MethodGet:
		user, err := a.identities.Find(r.Context(), userID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": user.Public()})
	case http.MethodPut:
		var req updateProfileRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.identities.UpdateProfile(r.Context(), userID, req.FirstName, req.LastName); err != nil {
			handleDomainError(w, r, err)
			return
		}
		user, err := a.identities.Find(r.Context(), userID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": user.Public()})
	case http.MethodDelete:
		if err := a.identities.Delete(r.Context(), userID); err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEntity(r.Context(), "user", userID, "deleted")
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.identities.ChangePassword(r.Context(), userID, req.NewPassword); err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEntity(r.Context(), "user", userID, "password changed")
	writeJSON(w, http.StatusOK, map[string]any{"status": "password_changed"})
}

func (a *API) handleRegisterPushToken(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req pushTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.identities.RegisterPushToken(r.Context(), userID, req.Token); err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "registered"})
}

func (a *API) handleUserBusinesses(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	businesses, err := a.memberships.BusinessesForUser(r.Context(), userID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"businesses": businesses})
}

func (a *API) handleUserSites(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	sites, err := a.memberships.SitesForUser(r.Context(), userID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sites": sites})
}
