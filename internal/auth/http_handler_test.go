package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"accountapi/internal/entity"
	"accountapi/internal/httpx"
	"accountapi/internal/i18n"
	"accountapi/internal/user"

	"github.com/golang/mock/gomock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) (*HTTPHandler, deps) {
	t.Helper()
	s, d := newTestService(t)
	return NewHTTPHandler(s, i18n.MustNew("en"), zerolog.Nop()), d
}

func loginRequest(body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/api/1.0/auth", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func TestHTTPHandler_Login(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		h, d := newTestHandler(t)
		u := entity.User{ID: 1, Username: "user1", Password: "digest"}
		d.users.EXPECT().FindByEmail(gomock.Any(), "user1@mail.com").Return(u, nil)
		d.hasher.EXPECT().Verify("P4ssword", "digest").Return(true)
		d.tokens.EXPECT().Issue(gomock.Any(), u).Return("tok", nil)

		w := httptest.NewRecorder()
		h.Login(w, loginRequest(`{"email":"user1@mail.com","password":"P4ssword"}`))

		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Data LoginResult `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, LoginResult{ID: 1, Username: "user1", Token: "tok"}, body.Data)
		assert.NotContains(t, w.Body.String(), "digest")
	})

	t.Run("malformed email is an auth failure", func(t *testing.T) {
		h, _ := newTestHandler(t)
		w := httptest.NewRecorder()
		h.Login(w, loginRequest(`{"email":"not-an-email","password":"P4ssword"}`))

		require.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "Incorrect credentials")
	})

	t.Run("malformed body", func(t *testing.T) {
		h, _ := newTestHandler(t)
		w := httptest.NewRecorder()
		h.Login(w, loginRequest(`{`))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		h, d := newTestHandler(t)
		d.users.EXPECT().FindByEmail(gomock.Any(), gomock.Any()).Return(entity.User{}, user.ErrNotFound)

		w := httptest.NewRecorder()
		h.Login(w, loginRequest(`{"email":"user1@mail.com","password":"P4ssword"}`))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("inactive", func(t *testing.T) {
		h, d := newTestHandler(t)
		d.users.EXPECT().FindByEmail(gomock.Any(), gomock.Any()).Return(entity.User{ID: 1, Inactive: true}, nil)
		d.hasher.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(true)

		w := httptest.NewRecorder()
		r := loginRequest(`{"email":"user1@mail.com","password":"P4ssword"}`)
		r.Header.Set("Accept-Language", "ko")
		h.Login(w, r)

		require.Equal(t, http.StatusForbidden, w.Code)
		var body httpx.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "inactive_authentication_failure", body.Error.Code)
		assert.Equal(t, "비활성화된 계정입니다", body.Error.Message)
	})

	t.Run("token store failure", func(t *testing.T) {
		h, d := newTestHandler(t)
		d.users.EXPECT().FindByEmail(gomock.Any(), gomock.Any()).Return(entity.User{ID: 1}, nil)
		d.hasher.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(true)
		d.tokens.EXPECT().Issue(gomock.Any(), gomock.Any()).Return("", errors.New("db down"))

		w := httptest.NewRecorder()
		h.Login(w, loginRequest(`{"email":"user1@mail.com","password":"P4ssword"}`))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestHTTPHandler_Logout(t *testing.T) {
	t.Run("deletes presented token", func(t *testing.T) {
		h, d := newTestHandler(t)
		d.tokens.EXPECT().Delete(gomock.Any(), "tok").Return(nil)

		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/api/1.0/logout", nil)
		r.Header.Set("Authorization", "Bearer tok")
		h.Logout(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("no token still succeeds", func(t *testing.T) {
		h, _ := newTestHandler(t)
		w := httptest.NewRecorder()
		h.Logout(w, httptest.NewRequest(http.MethodPost, "/api/1.0/logout", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("storage failure still succeeds", func(t *testing.T) {
		h, d := newTestHandler(t)
		d.tokens.EXPECT().Delete(gomock.Any(), "tok").Return(errors.New("db down"))

		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/api/1.0/logout", nil)
		r.Header.Set("Authorization", "Bearer tok")
		h.Logout(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Logged out")
	})
}
