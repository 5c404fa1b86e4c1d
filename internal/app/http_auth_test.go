package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"digiprofile/api/internal/authpw"
	"digiprofile/api/internal/store"
)

func withPasswords(p PasswordAuth) func(*Deps) {
	return func(d *Deps) { d.Passwords = p }
}

func TestSignInRefreshAndLogout(t *testing.T) {
	fs := newFakeStore()
	editor := store.User{ID: "usr_1", Email: "ram@example.test", DisplayName: "Ram", Role: "editor"}
	fs.users[editor.ID] = editor
	passwords := &fakePasswords{
		signInFn: func(_ context.Context, email, password string) (store.User, error) {
			if email == editor.Email && password == "correct horse" {
				return editor, nil
			}
			return store.User{}, authpw.ErrInvalidCredentials
		},
	}
	env := newTestEnv(t, fs, withPasswords(passwords))

	rr := env.do(t, http.MethodPost, "/api/auth/signin", "", `{"email":"ram@example.test","password":"nope"}`)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", decodeEnvelope(t, rr).Code)

	rr = env.do(t, http.MethodPost, "/api/auth/signin", "", `{"email":"ram@example.test","password":"correct horse"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var signedIn struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
		Role         string `json:"role"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &signedIn))
	assert.Equal(t, "editor", signedIn.Role)

	rr = env.do(t, http.MethodGet, "/api/session", signedIn.AccessToken, "")
	assert.Contains(t, rr.Body.String(), `"authenticated":true`)

	rr = env.do(t, http.MethodPost, "/api/auth/refresh", "", `{"refreshToken":"`+signedIn.RefreshToken+`"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var refreshed struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &refreshed))
	assert.NotEqual(t, signedIn.RefreshToken, refreshed.RefreshToken)

	rr = env.do(t, http.MethodPost, "/api/auth/refresh", "", `{"refreshToken":"`+signedIn.RefreshToken+`"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code, "a rotated refresh token is spent")

	rr = env.do(t, http.MethodPost, "/api/auth/logout", refreshed.AccessToken, `{"refreshToken":"`+refreshed.RefreshToken+`"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/session", refreshed.AccessToken, "")
	assert.Contains(t, rr.Body.String(), `"authenticated":false`)
	rr = env.do(t, http.MethodPost, "/api/auth/refresh", "", `{"refreshToken":"`+refreshed.RefreshToken+`"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestSignInWithoutPasswordServiceIsUnavailable(t *testing.T) {
	env := newTestEnv(t, newFakeStore())

	rr := env.do(t, http.MethodPost, "/api/auth/signin", "", `{"email":"a@b.c","password":"x"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "AUTH_UNAVAILABLE", decodeEnvelope(t, rr).Code)
}

func TestDeactivatedUserTokenIsRejected(t *testing.T) {
	env := newTestEnv(t, newFakeStore())
	token := env.tokenFor(t, "editor")
	user := env.store.users["usr_editor"]
	now := user.CreatedAt
	user.DeactivatedAt = &now
	env.store.users["usr_editor"] = user

	rr := env.do(t, http.MethodPost, "/api/datasets/"+skillsSlug+"/records", token, `{}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestWriteRoutesRequireRole(t *testing.T) {
	writes := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{name: "create record", method: http.MethodPost, path: "/api/datasets/" + skillsSlug + "/records", body: `{}`},
		{name: "update record", method: http.MethodPut, path: "/api/datasets/" + skillsSlug + "/records/rec_1", body: `{}`},
		{name: "delete record", method: http.MethodDelete, path: "/api/datasets/" + skillsSlug + "/records/rec_1?confirm=true"},
		{name: "import", method: http.MethodPost, path: "/api/datasets/" + skillsSlug + "/import", body: `{}`},
		{name: "create farm", method: http.MethodPost, path: "/api/farms", body: `{}`},
		{name: "delete farm", method: http.MethodDelete, path: "/api/farms/farm_1?confirm=true"},
	}

	for _, tc := range writes {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, newFakeStore(skillRecords()...))

			rr := env.do(t, tc.method, tc.path, "", tc.body)
			assert.Equal(t, http.StatusUnauthorized, rr.Code, "anonymous")

			rr = env.do(t, tc.method, tc.path, env.tokenFor(t, "viewer"), tc.body)
			assert.Equal(t, http.StatusForbidden, rr.Code, "viewer")
			assert.Equal(t, "FORBIDDEN", decodeEnvelope(t, rr).Code)

			rr = env.do(t, tc.method, tc.path, env.tokenFor(t, "editor"), tc.body)
			assert.NotEqual(t, http.StatusForbidden, rr.Code, "editor")
			assert.NotEqual(t, http.StatusUnauthorized, rr.Code, "editor")
		})
	}
}

func TestAdminRoutes(t *testing.T) {
	var got authpw.UserRequest
	passwords := &fakePasswords{
		createUserFn: func(_ context.Context, req authpw.UserRequest) (store.User, error) {
			got = req
			if req.Email == "taken@example.test" {
				return store.User{}, authpw.ErrEmailTaken
			}
			return store.User{ID: "usr_new", Email: req.Email, DisplayName: req.DisplayName, Role: req.Role}, nil
		},
	}
	env := newTestEnv(t, newFakeStore(), withPasswords(passwords))

	body := `{"email":"sita@example.test","password":"long enough","displayName":"Sita","role":"editor"}`
	rr := env.do(t, http.MethodPost, "/api/users", env.tokenFor(t, "editor"), body)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	admin := env.tokenFor(t, "admin")
	rr = env.do(t, http.MethodPost, "/api/users", admin, body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "sita@example.test", got.Email)
	assert.Equal(t, "editor", got.Role)
	assert.NotContains(t, rr.Body.String(), "long enough")

	rr = env.do(t, http.MethodPost, "/api/users", admin, `{"email":"taken@example.test","password":"long enough"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/admin/reindex", admin, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"indexed":0}`, rr.Body.String())
}

func TestChangePasswordMapsWrongCurrentPassword(t *testing.T) {
	passwords := &fakePasswords{
		changePasswordFn: func(_ context.Context, userID, current, next string) error {
			if current != "old password" {
				return authpw.ErrInvalidCredentials
			}
			if len(next) < 8 {
				return authpw.ErrWeakPassword
			}
			return nil
		},
	}
	env := newTestEnv(t, newFakeStore(), withPasswords(passwords))
	token := env.tokenFor(t, "viewer")

	rr := env.do(t, http.MethodPost, "/api/auth/password", token, `{"currentPassword":"wrong","newPassword":"new password"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	rr = env.do(t, http.MethodPost, "/api/auth/password", token, `{"currentPassword":"old password","newPassword":"short"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = env.do(t, http.MethodPost, "/api/auth/password", token, `{"currentPassword":"old password","newPassword":"new password"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestMapErrorFallsBackToServerError(t *testing.T) {
	status, code, _, _ := mapError(errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "SERVER_ERROR", code)

	status, code, _, _ = mapError(context.DeadlineExceeded)
	assert.Equal(t, http.StatusGatewayTimeout, status)
	assert.Equal(t, "TIMEOUT", code)
}
