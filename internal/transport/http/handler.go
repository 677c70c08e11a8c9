package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"secgate/internal/domain"
	"secgate/internal/dto"
	"secgate/internal/netutil"
	"secgate/internal/pipeline"
	"secgate/internal/service"
)

type Handler struct {
	auth     service.AuthService
	tokens   service.TokenService
	sessions service.SessionService
	csrf     service.CSRFService
	cookies  *CookieManager

	sessionTTL time.Duration
	csrfTTL    time.Duration
	trustProxy bool
}

func (h *Handler) clientIP(r *http.Request) string {
	return netutil.ClientIP(r, h.trustProxy)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// writeError maps domain sentinel errors onto the response contract. Unknown
// errors collapse to a generic 500 so driver details never leak.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	name := "InternalError"
	message := "An internal error occurred."

	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		status, name, message = http.StatusUnauthorized, "AuthenticationError", "Invalid username or password."
	case errors.Is(err, domain.ErrTokenExpired):
		status, name, message = http.StatusUnauthorized, "AuthenticationError", "Token has expired."
	case errors.Is(err, domain.ErrTokenInvalid), errors.Is(err, domain.ErrTokenKind):
		status, name, message = http.StatusUnauthorized, "AuthenticationError", "Token is invalid."
	case errors.Is(err, domain.ErrTokenRevoked):
		status, name, message = http.StatusUnauthorized, "AuthenticationError", "Token has been revoked."
	case errors.Is(err, domain.ErrUserDisabled):
		status, name, message = http.StatusUnauthorized, "AuthenticationError", "Account is disabled."
	case errors.Is(err, domain.ErrSessionInvalid):
		status, name, message = http.StatusUnauthorized, "AuthenticationError", "Session is invalid or expired."
	case errors.Is(err, domain.ErrCSRF):
		status, name, message = http.StatusForbidden, "CSRFViolation", "CSRF validation failed."
	case errors.Is(err, domain.ErrForbidden):
		status, name, message = http.StatusForbidden, "AuthorizationError", "Access denied."
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrDangerousContent):
		status, name, message = http.StatusBadRequest, "ValidationError", "Request failed validation."
	case errors.Is(err, domain.ErrRateLimited):
		status, name, message = http.StatusTooManyRequests, "RateLimitExceeded", "Too many requests."
	}
	writeJSON(w, status, errorBody{Error: name, Message: message, Code: status})
}

func decode[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:   "ValidationError",
			Message: "Request body is not valid JSON.",
			Code:    http.StatusBadRequest,
		})
		return v, false
	}
	return v, true
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[dto.RegisterRequest](w, r)
	if !ok {
		return
	}
	res, err := h.auth.Register(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[dto.LoginRequest](w, r)
	if !ok {
		return
	}
	res, err := h.auth.Login(r.Context(), req, h.clientIP(r), r.UserAgent())
	if err != nil {
		writeError(w, err)
		return
	}
	h.cookies.SetSessionCookie(w, res.SessionToken, h.sessionTTL)
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[dto.RefreshRequest](w, r)
	if !ok {
		return
	}
	res, err := h.tokens.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	var req dto.LogoutRequest
	// An empty body is fine: the session cookie alone is enough to log out.
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := h.auth.Logout(r.Context(), req.RefreshToken, cookieValue(r, "session_token")); err != nil {
		writeError(w, err)
		return
	}
	h.cookies.ClearSessionCookies(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (h *Handler) issueCSRF(w http.ResponseWriter, r *http.Request) {
	view := pipeline.SessionFrom(r.Context())
	if view == nil {
		writeError(w, domain.ErrSessionInvalid)
		return
	}
	action := r.URL.Query().Get("action")
	if action == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:   "ValidationError",
			Message: "The action parameter is required.",
			Code:    http.StatusBadRequest,
		})
		return
	}
	token, err := h.csrf.Issue(r.Context(), view.SessionToken, action)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cookies.SetCSRFCookie(w, token, h.csrfTTL)
	writeJSON(w, http.StatusOK, map[string]string{"csrfToken": token, "action": action})
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	view := pipeline.SessionFrom(r.Context())
	if view == nil {
		writeError(w, domain.ErrSessionInvalid)
		return
	}
	list, err := h.sessions.List(r.Context(), view.UserID, view.SessionToken)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": list})
}

func (h *Handler) revokeSessions(w http.ResponseWriter, r *http.Request) {
	view := pipeline.SessionFrom(r.Context())
	if view == nil {
		writeError(w, domain.ErrSessionInvalid)
		return
	}
	var req struct {
		IncludeCurrent bool `json:"includeCurrent"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	except := view.SessionToken
	if req.IncludeCurrent {
		except = ""
	}
	n, err := h.sessions.InvalidateAll(r.Context(), view.UserID, except)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.IncludeCurrent {
		h.cookies.ClearSessionCookies(w)
	}
	writeJSON(w, http.StatusOK, map[string]any{"revoked": n})
}
