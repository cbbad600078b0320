package user

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"accountapi/internal/file"
	"accountapi/internal/httpx"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
)

// MaxImageBytes caps a decoded profile image.
const MaxImageBytes = 2 * 1024 * 1024

type HTTPHandler struct {
	service *Service
	files   file.Store
	msg     httpx.Localizer
	log     zerolog.Logger
}

func NewHTTPHandler(service *Service, files file.Store, msg httpx.Localizer, log zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{service: service, files: files, msg: msg, log: log}
}

func (h *HTTPHandler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.log.Error().Err(err).Str("request_id", httpx.RequestIDFrom(r)).Str("path", r.URL.Path).Msg("request failed")
	httpx.Fail(w, r, h.msg, http.StatusInternalServerError, "internal_error", nil)
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

type registerReq struct {
	Username string `json:"username" validate:"required,min=4,max=32"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,password_pattern"`
}

// Register handles POST /api/1.0/users
func (h *HTTPHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerReq
	if err := decode(r, &req); err != nil {
		httpx.Fail(w, r, h.msg, http.StatusBadRequest, "bad_request", nil)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)

	fieldErrs := httpx.ValidateStruct(req)
	if _, bad := fieldErrs["email"]; !bad {
		inUse, err := h.service.EmailInUse(r.Context(), req.Email)
		if err != nil {
			h.internalError(w, r, err)
			return
		}
		if inUse {
			if fieldErrs == nil {
				fieldErrs = map[string]string{}
			}
			fieldErrs["email"] = "email_in_use"
		}
	}
	if len(fieldErrs) > 0 {
		httpx.Fail(w, r, h.msg, http.StatusBadRequest, "validation_failure", fieldErrs)
		return
	}

	_, err := h.service.Register(r.Context(), req.Username, req.Email, req.Password)
	switch {
	case err == nil:
		httpx.Message(w, r, h.msg, http.StatusOK, "user_create_success")
	case errors.Is(err, ErrAlreadyExists):
		httpx.Fail(w, r, h.msg, http.StatusBadRequest, "validation_failure", map[string]string{"email": "email_in_use"})
	case errors.Is(err, ErrEmailFailure):
		h.log.Warn().Err(err).Msg("registration rolled back")
		httpx.Fail(w, r, h.msg, http.StatusBadGateway, "email_failure", nil)
	default:
		h.internalError(w, r, err)
	}
}

// Activate handles POST /api/1.0/users/token/{token}
func (h *HTTPHandler) Activate(w http.ResponseWriter, r *http.Request) {
	err := h.service.Activate(r.Context(), r.PathValue("token"))
	switch {
	case err == nil:
		httpx.Message(w, r, h.msg, http.StatusOK, "account_activation_success")
	case errors.Is(err, ErrInvalidToken):
		httpx.Fail(w, r, h.msg, http.StatusBadRequest, "account_activation_failure", nil)
	default:
		h.internalError(w, r, err)
	}
}

// List handles GET /api/1.0/users
func (h *HTTPHandler) List(w http.ResponseWriter, r *http.Request) {
	page, size := httpx.Pagination(r)
	result, err := h.service.List(r.Context(), page, size, httpx.UserIDFrom(r))
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	httpx.JSONSuccess(w, r, result)
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

// Get handles GET /api/1.0/users/{id}
func (h *HTTPHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.Fail(w, r, h.msg, http.StatusNotFound, "user_not_found", nil)
		return
	}
	u, err := h.service.Get(r.Context(), id)
	switch {
	case err == nil:
		httpx.JSONSuccess(w, r, u.Summary())
	case errors.Is(err, ErrNotFound):
		httpx.Fail(w, r, h.msg, http.StatusNotFound, "user_not_found", nil)
	default:
		h.internalError(w, r, err)
	}
}

type updateReq struct {
	Username string  `json:"username" validate:"required,min=4,max=32"`
	Image    *string `json:"image"`
}

// decodeImage returns the image bytes and a message key when they are not
// an acceptable profile image.
func decodeImage(encoded string) ([]byte, string) {
	if i := strings.Index(encoded, ";base64,"); i >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[i+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, "image_invalid"
	}
	if len(data) > MaxImageBytes {
		return nil, "profile_image_size"
	}
	mt := mimetype.Detect(data)
	if !mt.Is("image/png") && !mt.Is("image/jpeg") {
		return nil, "unsupported_image_file"
	}
	return data, ""
}

// Update handles PUT /api/1.0/users/{id}
func (h *HTTPHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	actor := httpx.UserIDFrom(r)
	if !ok || actor == 0 || actor != id {
		httpx.Fail(w, r, h.msg, http.StatusForbidden, "unauthorized_user_update", nil)
		return
	}

	var req updateReq
	if err := decode(r, &req); err != nil {
		httpx.Fail(w, r, h.msg, http.StatusBadRequest, "bad_request", nil)
		return
	}
	req.Username = strings.TrimSpace(req.Username)

	fieldErrs := httpx.ValidateStruct(req)
	in := UpdateInput{Username: req.Username}
	if req.Image != nil && *req.Image != "" {
		data, key := decodeImage(*req.Image)
		if key != "" {
			if fieldErrs == nil {
				fieldErrs = map[string]string{}
			}
			fieldErrs["image"] = key
		}
		in.Image = data
	}
	if len(fieldErrs) > 0 {
		httpx.Fail(w, r, h.msg, http.StatusBadRequest, "validation_failure", fieldErrs)
		return
	}

	u, err := h.service.Update(r.Context(), actor, id, in)
	switch {
	case err == nil:
		httpx.JSONSuccess(w, r, u.Summary())
	case errors.Is(err, ErrForbidden):
		httpx.Fail(w, r, h.msg, http.StatusForbidden, "unauthorized_user_update", nil)
	case errors.Is(err, ErrNotFound):
		httpx.Fail(w, r, h.msg, http.StatusNotFound, "user_not_found", nil)
	default:
		h.internalError(w, r, err)
	}
}

// Delete handles DELETE /api/1.0/users/{id}
func (h *HTTPHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	actor := httpx.UserIDFrom(r)
	if !ok || actor == 0 || actor != id {
		httpx.Fail(w, r, h.msg, http.StatusForbidden, "unauthorized_user_delete", nil)
		return
	}

	err := h.service.Delete(r.Context(), actor, id)
	switch {
	case err == nil:
		httpx.Message(w, r, h.msg, http.StatusOK, "user_delete_success")
	case errors.Is(err, ErrForbidden):
		httpx.Fail(w, r, h.msg, http.StatusForbidden, "unauthorized_user_delete", nil)
	default:
		h.internalError(w, r, err)
	}
}

type resetRequestReq struct {
	Email string `json:"email" validate:"required,email"`
}

// RequestPasswordReset handles POST /api/1.0/user/password
func (h *HTTPHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequestReq
	if err := decode(r, &req); err != nil {
		httpx.Fail(w, r, h.msg, http.StatusBadRequest, "bad_request", nil)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if fieldErrs := httpx.ValidateStruct(req); len(fieldErrs) > 0 {
		httpx.Fail(w, r, h.msg, http.StatusBadRequest, "validation_failure", fieldErrs)
		return
	}

	err := h.service.RequestPasswordReset(r.Context(), req.Email)
	switch {
	case err == nil:
		httpx.Message(w, r, h.msg, http.StatusOK, "password_reset_request_success")
	case errors.Is(err, ErrEmailNotInUse):
		httpx.Fail(w, r, h.msg, http.StatusNotFound, "email_not_inuse", nil)
	case errors.Is(err, ErrEmailFailure):
		httpx.Fail(w, r, h.msg, http.StatusBadGateway, "email_failure", nil)
	default:
		h.internalError(w, r, err)
	}
}

type resetPasswordReq struct {
	PasswordResetToken string `json:"passwordResetToken"`
	Password           string `json:"password" validate:"required,min=6,password_pattern"`
}

// ResetPassword handles PUT /api/1.0/user/password. The reset token is
// checked before the new password so that a stale link is reported as such.
func (h *HTTPHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordReq
	if err := decode(r, &req); err != nil {
		httpx.Fail(w, r, h.msg, http.StatusBadRequest, "bad_request", nil)
		return
	}

	if err := h.service.CheckResetToken(r.Context(), req.PasswordResetToken); err != nil {
		if errors.Is(err, ErrInvalidResetToken) {
			httpx.Fail(w, r, h.msg, http.StatusForbidden, "unauthorized_password_reset", nil)
			return
		}
		h.internalError(w, r, err)
		return
	}

	if fieldErrs := httpx.ValidateStruct(req); len(fieldErrs) > 0 {
		httpx.Fail(w, r, h.msg, http.StatusBadRequest, "validation_failure", fieldErrs)
		return
	}

	err := h.service.ResetPassword(r.Context(), req.PasswordResetToken, req.Password)
	switch {
	case err == nil:
		httpx.Message(w, r, h.msg, http.StatusOK, "password_update_success")
	case errors.Is(err, ErrInvalidResetToken):
		httpx.Fail(w, r, h.msg, http.StatusForbidden, "unauthorized_password_reset", nil)
	default:
		h.internalError(w, r, err)
	}
}

// Image handles GET /images/{name}
func (h *HTTPHandler) Image(w http.ResponseWriter, r *http.Request) {
	rc, err := h.files.Open(r.Context(), r.PathValue("name"))
	if err != nil {
		if errors.Is(err, file.ErrNotFound) || errors.Is(err, file.ErrInvalidName) {
			httpx.Fail(w, r, h.msg, http.StatusNotFound, "not_found", nil)
			return
		}
		h.internalError(w, r, err)
		return
	}
	data, err := io.ReadAll(io.LimitReader(rc, MaxImageBytes+1))
	_ = rc.Close()
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", mimetype.Detect(data).String())
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
