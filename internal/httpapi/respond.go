package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"utilitygrid.org/internal/authz"
	"utilitygrid.org/internal/identity"
	"utilitygrid.org/internal/membership"
	"utilitygrid.org/internal/quote"
	"utilitygrid.org/internal/token"
	"utilitygrid.org/internal/utility"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleDomainError maps domain sentinels to the error taxonomy: 401 for
// credential failures, 403 for insufficient role or membership, 404 for
// absent entities, 409 for conflicts, 400 for invalid input, 500 otherwise.
// 401 and 403 are never conflated, and neither hides behind a 404.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var missing *membership.MissingUsersError
	switch {
	case errors.Is(err, authz.ErrUnauthenticated),
		errors.Is(err, identity.ErrInvalidCredentials),
		errors.Is(err, token.ErrInvalidToken),
		errors.Is(err, token.ErrTokenExpired),
		errors.Is(err, token.ErrRefreshRevoked),
		errors.Is(err, token.ErrRefreshExpired):
		writeError(w, r, http.StatusUnauthorized, err.Error())
	case errors.Is(err, authz.ErrUnauthorized):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, identity.ErrNotFound),
		errors.Is(err, membership.ErrNotFound),
		errors.Is(err, membership.ErrNotAMember),
		errors.Is(err, utility.ErrNotFound),
		errors.Is(err, quote.ErrNotFound),
		errors.Is(err, token.ErrRefreshNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, identity.ErrEmailTaken),
		errors.Is(err, membership.ErrLastOwner),
		errors.Is(err, membership.ErrHasDependents),
		errors.Is(err, membership.ErrInviteUsed),
		errors.Is(err, membership.ErrInviteExpired),
		errors.Is(err, quote.ErrInvalidTransition):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.As(err, &missing):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, identity.ErrInvalidInput),
		errors.Is(err, membership.ErrInvalidInput),
		errors.Is(err, utility.ErrInvalidInput),
		errors.Is(err, quote.ErrInvalidInput),
		errors.Is(err, identity.ErrOTPNotFound),
		errors.Is(err, identity.ErrOTPExpired):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
