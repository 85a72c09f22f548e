package httpapi

import (
	"net/http"
	"strings"

	"utilitygrid.org/internal/audit"
	"utilitygrid.org/internal/authz"
	"utilitygrid.org/internal/membership"
	"utilitygrid.org/internal/quote"
)

type createQuoteRequest struct {
	BusinessID string `json:"business_id"`
	SiteID     string `json:"site_id"`
	Type       string `json:"type"`
	Details    string `json:"details"`
}

type sendQuoteRequest struct {
	Recipients []string `json:"recipients"`
}

type respondQuoteRequest struct {
	Accept bool `json:"accept"`
}

// handleQuotes creates a pending quote. Owners and managers of the business
// may raise quotes against it.
func (a *API) handleQuotes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req createQuoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.engine.AuthorizeBusiness(r.Context(), p, req.BusinessID, membership.RoleOwner, membership.RoleManager); err != nil {
		handleDomainError(w, r, err)
		return
	}
	q, err := a.quotes.Create(r.Context(), req.BusinessID, req.SiteID, p.UserID, req.Details, quote.Type(req.Type))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "quote.create", map[string]any{
		"quote_id":    q.ID,
		"business_id": q.BusinessID,
	})
	writeJSON(w, http.StatusCreated, map[string]any{"quote": q})
}

// handleQuoteScoped routes /v1/quotes/{id}[/send|/respond|/expire].
func (a *API) handleQuoteScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/quotes/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	quoteID := parts[0]

	p, ok := a.principal(w, r)
	if !ok {
		return
	}

	switch {
	case len(parts) == 1:
		a.handleQuote(w, r, p, quoteID)
	case len(parts) == 2 && parts[1] == "send":
		a.handleSendQuote(w, r, p, quoteID)
	case len(parts) == 2 && parts[1] == "respond":
		a.handleRespondQuote(w, r, p, quoteID)
	case len(parts) == 2 && parts[1] == "expire":
		a.handleExpireQuote(w, r, p, quoteID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

// quoteForAction loads the quote and authorizes against its business.
func (a *API) quoteForAction(r *http.Request, p authz.Principal, quoteID string, roles ...membership.Role) (*quote.Quote, error) {
	q, err := a.quotes.Find(r.Context(), quoteID)
	if err != nil {
		return nil, err
	}
	if err := a.engine.AuthorizeBusiness(r.Context(), p, q.BusinessID, roles...); err != nil {
		return nil, err
	}
	return q, nil
}

func (a *API) handleQuote(w http.ResponseWriter, r *http.Request, p authz.Principal, quoteID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	q, err := a.quoteForAction(r, p, quoteID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quote": q})
}

func (a *API) handleSendQuote(w http.ResponseWriter, r *http.Request, p authz.Principal, quoteID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, err := a.quoteForAction(r, p, quoteID, membership.RoleOwner, membership.RoleManager); err != nil {
		handleDomainError(w, r, err)
		return
	}
	var req sendQuoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	q, err := a.quotes.Send(r.Context(), quoteID, req.Recipients)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "quote.send", map[string]any{
		"quote_id":   q.ID,
		"recipients": len(q.Recipients),
	})
	writeJSON(w, http.StatusOK, map[string]any{"quote": q})
}

func (a *API) handleRespondQuote(w http.ResponseWriter, r *http.Request, p authz.Principal, quoteID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, err := a.quoteForAction(r, p, quoteID, membership.RoleOwner, membership.RoleManager); err != nil {
		handleDomainError(w, r, err)
		return
	}
	var req respondQuoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	q, err := a.quotes.Respond(r.Context(), quoteID, req.Accept)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "quote.respond", map[string]any{
		"quote_id": q.ID,
		"status":   q.Status,
	})
	writeJSON(w, http.StatusOK, map[string]any{"quote": q})
}

func (a *API) handleExpireQuote(w http.ResponseWriter, r *http.Request, p authz.Principal, quoteID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, err := a.quoteForAction(r, p, quoteID, membership.RoleOwner, membership.RoleManager); err != nil {
		handleDomainError(w, r, err)
		return
	}
	q, err := a.quotes.Expire(r.Context(), quoteID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "quote.expire", map[string]any{"quote_id": q.ID})
	writeJSON(w, http.StatusOK, map[string]any{"quote": q})
}

func (a *API) handleBusinessQuotes(w http.ResponseWriter, r *http.Request, p authz.Principal, businessID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if err := a.engine.AuthorizeBusiness(r.Context(), p, businessID); err != nil {
		handleDomainError(w, r, err)
		return
	}
	list, err := a.quotes.List(r.Context(), businessID, quote.Status(r.URL.Query().Get("status")))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quotes": list})
}
