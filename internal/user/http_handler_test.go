package user

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"accountapi/internal/entity"
	"accountapi/internal/httpx"
	"accountapi/internal/i18n"

	"github.com/golang/mock/gomock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) (*HTTPHandler, serviceDeps) {
	t.Helper()
	svc, d := newTestService(t)
	return NewHTTPHandler(svc, d.files, i18n.MustNew("en"), zerolog.Nop()), d
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) httpx.ErrorResponseBody {
	t.Helper()
	var body httpx.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	return body.Error
}

func asUser(r *http.Request, id int64) *http.Request {
	return r.WithContext(httpx.ContextWithUser(r.Context(), id))
}

func TestHTTPHandler_Register(t *testing.T) {
	valid := map[string]any{"username": "user1", "email": "user1@mail.com", "password": "P4ssword"}

	t.Run("validation errors", func(t *testing.T) {
		h, _ := newTestHandler(t)
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/api/1.0/users", jsonBody(t, map[string]any{
			"username": "usr", "email": nil, "password": "lowercase",
		}))

		h.Register(w, r)

		require.Equal(t, http.StatusBadRequest, w.Code)
		e := decodeError(t, w)
		assert.Equal(t, "validation_failure", e.Code)
		assert.Equal(t, "Validation Failure", e.Message)
		assert.Equal(t, map[string]string{
			"username": "Must have min 4 and max 32 characters",
			"email":    "E-mail cannot be null",
			"password": "Password must have at least 1 uppercase, 1 lowercase letter and 1 number",
		}, e.ValidationErrors)
	})

	t.Run("email in use", func(t *testing.T) {
		h, d := newTestHandler(t)
		d.repo.EXPECT().Find(gomock.Any(), Criteria{Email: "user1@mail.com"}).Return(entity.User{ID: 1}, nil)

		w := httptest.NewRecorder()
		h.Register(w, httptest.NewRequest(http.MethodPost, "/api/1.0/users", jsonBody(t, valid)))

		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "E-mail in use", decodeError(t, w).ValidationErrors["email"])
	})

	t.Run("success", func(t *testing.T) {
		h, d := newTestHandler(t)
		d.repo.EXPECT().Find(gomock.Any(), gomock.Any()).Return(entity.User{}, ErrNotFound).Times(2)
		d.hasher.EXPECT().Hash("P4ssword").Return("hashed", nil)
		d.mailer.EXPECT().SendAccountActivation(gomock.Any(), "user1@mail.com", gomock.Any()).Return(nil)
		d.repo.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(runConfirm(1))

		w := httptest.NewRecorder()
		h.Register(w, httptest.NewRequest(http.MethodPost, "/api/1.0/users", jsonBody(t, valid)))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "User created")
	})

	t.Run("mail failure", func(t *testing.T) {
		h, d := newTestHandler(t)
		d.repo.EXPECT().Find(gomock.Any(), gomock.Any()).Return(entity.User{}, ErrNotFound).Times(2)
		d.hasher.EXPECT().Hash(gomock.Any()).Return("hashed", nil)
		d.mailer.EXPECT().SendAccountActivation(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("smtp down"))
		d.repo.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(runConfirm(1))

		w := httptest.NewRecorder()
		h.Register(w, httptest.NewRequest(http.MethodPost, "/api/1.0/users", jsonBody(t, valid)))

		require.Equal(t, http.StatusBadGateway, w.Code)
		assert.Equal(t, "E-mail Failure", decodeError(t, w).Message)
	})

	t.Run("localized", func(t *testing.T) {
		h, _ := newTestHandler(t)
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/api/1.0/users", jsonBody(t, map[string]any{}))
		r.Header.Set("Accept-Language", "ko")

		h.Register(w, r)

		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "유효성 검사 실패", decodeError(t, w).Message)
	})
}

func TestHTTPHandler_Activate(t *testing.T) {
	h, d := newTestHandler(t)

	d.repo.EXPECT().Update(gomock.Any(), Criteria{ActivationToken: "bad"}, gomock.Any()).Return(entity.User{}, ErrNotFound)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/1.0/users/token/bad", nil)
	r.SetPathValue("token", "bad")
	h.Activate(w, r)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "account_activation_failure", decodeError(t, w).Code)
}

func TestHTTPHandler_List_ExcludesViewer(t *testing.T) {
	h, d := newTestHandler(t)
	d.repo.EXPECT().ListActive(gomock.Any(), int64(7), 10, 0).Return([]entity.User{}, 0, nil)

	w := httptest.NewRecorder()
	h.List(w, asUser(httptest.NewRequest(http.MethodGet, "/api/1.0/users?size=50", nil), 7))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data Page `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 10, body.Data.Size)
	assert.Empty(t, body.Data.Content)
}

func TestHTTPHandler_Get(t *testing.T) {
	h, d := newTestHandler(t)

	t.Run("malformed id", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/1.0/users/abc", nil)
		r.SetPathValue("id", "abc")
		h.Get(w, r)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("found", func(t *testing.T) {
		d.repo.EXPECT().Find(gomock.Any(), Criteria{ID: 5}).Return(entity.User{ID: 5, Username: "user5", Email: "user5@mail.com", Password: "secret"}, nil)

		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/1.0/users/5", nil)
		r.SetPathValue("id", "5")
		h.Get(w, r)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"username":"user5"`)
		assert.NotContains(t, w.Body.String(), "secret")
	})
}

func TestHTTPHandler_Update(t *testing.T) {
	t.Run("anonymous", func(t *testing.T) {
		h, _ := newTestHandler(t)
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPut, "/api/1.0/users/5", jsonBody(t, map[string]any{"username": "user5"}))
		r.SetPathValue("id", "5")
		h.Update(w, r)

		require.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "You are not authorized to update user", decodeError(t, w).Message)
	})

	t.Run("other user", func(t *testing.T) {
		h, _ := newTestHandler(t)
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPut, "/api/1.0/users/5", jsonBody(t, map[string]any{"username": "user5"}))
		r.SetPathValue("id", "5")
		h.Update(w, asUser(r, 6))

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	imageCases := []struct {
		name  string
		image string
		want  string
	}{
		{"not base64", "%%%", "Image must be base64 encoded"},
		{"text file", base64.StdEncoding.EncodeToString([]byte("just some text")), "Only JPEG or PNG files are allowed"},
		{"too big", base64.StdEncoding.EncodeToString(append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0}, MaxImageBytes)...)), "Your profile image cannot be bigger than 2MB"},
	}
	for _, tc := range imageCases {
		t.Run(tc.name, func(t *testing.T) {
			h, _ := newTestHandler(t)
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPut, "/api/1.0/users/5", jsonBody(t, map[string]any{"username": "user5", "image": tc.image}))
			r.SetPathValue("id", "5")
			h.Update(w, asUser(r, 5))

			require.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tc.want, decodeError(t, w).ValidationErrors["image"])
		})
	}

	t.Run("success with png", func(t *testing.T) {
		h, d := newTestHandler(t)
		d.repo.EXPECT().Find(gomock.Any(), Criteria{ID: 5}).Return(entity.User{ID: 5}, nil)
		d.repo.EXPECT().Update(gomock.Any(), Criteria{ID: 5}, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ Criteria, p Patch) (entity.User, error) {
				return entity.User{ID: 5, Username: *p.Username, Image: p.Image}, nil
			})

		w := httptest.NewRecorder()
		img := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngHeader)
		r := httptest.NewRequest(http.MethodPut, "/api/1.0/users/5", jsonBody(t, map[string]any{"username": "user5-updated", "image": img}))
		r.SetPathValue("id", "5")
		h.Update(w, asUser(r, 5))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"username":"user5-updated"`)
	})
}

func TestHTTPHandler_Delete_OtherUser(t *testing.T) {
	h, _ := newTestHandler(t)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodDelete, "/api/1.0/users/5", nil)
	r.SetPathValue("id", "5")
	h.Delete(w, asUser(r, 6))

	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "unauthorized_user_delete", decodeError(t, w).Code)
}

func TestHTTPHandler_RequestPasswordReset(t *testing.T) {
	t.Run("invalid email", func(t *testing.T) {
		h, _ := newTestHandler(t)
		w := httptest.NewRecorder()
		h.RequestPasswordReset(w, httptest.NewRequest(http.MethodPost, "/api/1.0/user/password", jsonBody(t, map[string]any{"email": "not-an-email"})))

		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "E-mail is not valid", decodeError(t, w).ValidationErrors["email"])
	})

	t.Run("unknown email", func(t *testing.T) {
		h, d := newTestHandler(t)
		d.repo.EXPECT().Find(gomock.Any(), gomock.Any()).Return(entity.User{}, ErrNotFound)

		w := httptest.NewRecorder()
		h.RequestPasswordReset(w, httptest.NewRequest(http.MethodPost, "/api/1.0/user/password", jsonBody(t, map[string]any{"email": "user1@mail.com"})))

		require.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "E-mail is not in use", decodeError(t, w).Message)
	})
}

func TestHTTPHandler_ResetPassword(t *testing.T) {
	t.Run("invalid token wins over invalid password", func(t *testing.T) {
		h, d := newTestHandler(t)
		d.repo.EXPECT().Find(gomock.Any(), Criteria{PasswordResetToken: "stale"}).Return(entity.User{}, ErrNotFound)

		w := httptest.NewRecorder()
		h.ResetPassword(w, httptest.NewRequest(http.MethodPut, "/api/1.0/user/password", jsonBody(t, map[string]any{
			"passwordResetToken": "stale", "password": "x",
		})))

		require.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "unauthorized_password_reset", decodeError(t, w).Code)
	})

	t.Run("valid token, weak password", func(t *testing.T) {
		h, d := newTestHandler(t)
		d.repo.EXPECT().Find(gomock.Any(), Criteria{PasswordResetToken: "fresh"}).Return(entity.User{ID: 1}, nil)

		w := httptest.NewRecorder()
		h.ResetPassword(w, httptest.NewRequest(http.MethodPut, "/api/1.0/user/password", jsonBody(t, map[string]any{
			"passwordResetToken": "fresh", "password": nil,
		})))

		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Password cannot be null", decodeError(t, w).ValidationErrors["password"])
	})

	t.Run("success", func(t *testing.T) {
		h, d := newTestHandler(t)
		d.repo.EXPECT().Find(gomock.Any(), Criteria{PasswordResetToken: "fresh"}).Return(entity.User{ID: 1}, nil).Times(2)
		d.hasher.EXPECT().Hash("N3wPassword").Return("h", nil)
		d.repo.EXPECT().Update(gomock.Any(), Criteria{ID: 1}, gomock.Any()).Return(entity.User{ID: 1}, nil)
		d.tokens.EXPECT().InvalidateAll(gomock.Any(), int64(1)).Return(nil)

		w := httptest.NewRecorder()
		h.ResetPassword(w, httptest.NewRequest(http.MethodPut, "/api/1.0/user/password", jsonBody(t, map[string]any{
			"passwordResetToken": "fresh", "password": "N3wPassword",
		})))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Password is updated")
	})
}

func TestHTTPHandler_Image(t *testing.T) {
	h, d := newTestHandler(t)
	name, err := d.files.Save(context.Background(), pngHeader)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/images/"+name, nil)
	r.SetPathValue("name", name)
	h.Image(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, string(pngHeader), w.Body.String())

	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodGet, "/images/missing", nil)
	r.SetPathValue("name", strings.Repeat("a", 32))
	h.Image(w, r)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
