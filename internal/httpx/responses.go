package httpx

import (
	"encoding/json"
	"net/http"
	"time"
)

type SuccessResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
	Meta    any  `json:"meta,omitempty"`
}

type ErrorResponse struct {
	Success bool              `json:"success"`
	Error   ErrorResponseBody `json:"error"`
	Meta    any               `json:"meta,omitempty"`
}

// ErrorResponseBody carries a stable message key in Code and its localized
// text in Message. ValidationErrors maps field names to localized text.
type ErrorResponseBody struct {
	Code             string            `json:"code"`
	Message          string            `json:"message"`
	ValidationErrors map[string]string `json:"validationErrors,omitempty"`
}

// Localizer turns a message key into text for the caller's language.
type Localizer interface {
	Localize(r *http.Request, key string) string
}

func buildMeta(r *http.Request) map[string]any {
	meta := map[string]any{
		"path":      r.URL.Path,
		"timestamp": time.Now().UnixMilli(),
	}
	if requestID := RequestIDFrom(r); requestID != "" {
		meta["request_id"] = requestID
	}
	return meta
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func JSONSuccess(w http.ResponseWriter, r *http.Request, data any) {
	writeJSON(w, http.StatusOK, SuccessResponse{
		Success: true,
		Data:    data,
		Meta:    buildMeta(r),
	})
}

func JSONSuccessCreated(w http.ResponseWriter, r *http.Request, data any) {
	writeJSON(w, http.StatusCreated, SuccessResponse{
		Success: true,
		Data:    data,
		Meta:    buildMeta(r),
	})
}

func JSONError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string, validationErrors map[string]string) {
	writeJSON(w, statusCode, ErrorResponse{
		Success: false,
		Error: ErrorResponseBody{
			Code:             code,
			Message:          message,
			ValidationErrors: validationErrors,
		},
		Meta: buildMeta(r),
	})
}

// Message writes {"message": <localized key>} with the given status.
func Message(w http.ResponseWriter, r *http.Request, l Localizer, status int, key string) {
	writeJSON(w, status, SuccessResponse{
		Success: true,
		Data:    map[string]string{"message": l.Localize(r, key)},
		Meta:    buildMeta(r),
	})
}

// Fail writes an error whose message and per-field errors are message keys
// resolved through l.
func Fail(w http.ResponseWriter, r *http.Request, l Localizer, status int, key string, fieldKeys map[string]string) {
	var localized map[string]string
	if len(fieldKeys) > 0 {
		localized = make(map[string]string, len(fieldKeys))
		for field, k := range fieldKeys {
			localized[field] = l.Localize(r, k)
		}
	}
	JSONError(w, r, status, key, l.Localize(r, key), localized)
}
