package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"accountapi/internal/httpx"

	"github.com/rs/zerolog"
)

type HTTPHandler struct {
	service *Service
	msg     httpx.Localizer
	log     zerolog.Logger
}

func NewHTTPHandler(service *Service, msg httpx.Localizer, log zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{service: service, msg: msg, log: log}
}

type loginReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login handles POST /api/1.0/auth
func (h *HTTPHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Fail(w, r, h.msg, http.StatusUnauthorized, "authentication_failure", nil)
		return
	}
	req.Email = strings.TrimSpace(req.Email)

	// Malformed credentials are reported like wrong ones.
	if len(httpx.ValidateStruct(req)) > 0 {
		httpx.Fail(w, r, h.msg, http.StatusUnauthorized, "authentication_failure", nil)
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	switch {
	case err == nil:
		httpx.JSONSuccess(w, r, result)
	case errors.Is(err, ErrAuthFailure):
		httpx.Fail(w, r, h.msg, http.StatusUnauthorized, "authentication_failure", nil)
	case errors.Is(err, ErrForbiddenInactive):
		httpx.Fail(w, r, h.msg, http.StatusForbidden, "inactive_authentication_failure", nil)
	default:
		h.log.Error().Err(err).Str("request_id", httpx.RequestIDFrom(r)).Msg("login failed")
		httpx.Fail(w, r, h.msg, http.StatusInternalServerError, "internal_error", nil)
	}
}

// Logout handles POST /api/1.0/logout. It always reports success.
func (h *HTTPHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if value, ok := httpx.BearerToken(r); ok {
		if err := h.service.Logout(r.Context(), value); err != nil {
			h.log.Warn().Err(err).Str("request_id", httpx.RequestIDFrom(r)).Msg("logout could not delete token")
		}
	}
	httpx.Message(w, r, h.msg, http.StatusOK, "logout_success")
}
